package search

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/filter"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/keyword"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/query"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/rank"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/segment"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/store"
)

func TestSQLBuilderWhere(t *testing.T) {
	plan := keyword.Compile(segment.Unigram{}, "纯爱", "百合", []string{"禁"})
	f := &filter.Filter{
		ChannelIDs:     []int64{10},
		TagGroups:      [][]int64{{1}},
		IncludeAuthors: []int64{},
		Replies:        query.ParseRange("(1,5]"),
		Keywords:       plan,
	}
	b := &sqlBuilder{}
	where := b.where(f)

	assert.True(t, strings.HasPrefix(where, "t.not_found_count = 0 AND t.channel_id = ANY($1::bigint[])"))
	assert.Contains(t, where, "tt.tag_id = ANY($2::bigint[])")
	assert.Contains(t, where, "t.author_id = ANY($3::bigint[])", "an empty include list still constrains")
	assert.Contains(t, where, "t.reply_count > $4")
	assert.Contains(t, where, "t.reply_count <= $5")
	assert.Contains(t, where, "token_phrase_match(t.title_tokens, $6::text[], $7::boolean)")
	assert.Contains(t, where, "NOT (")
	assert.Contains(t, where, "token_phrase_near(t.excerpt_tokens")
	assert.Equal(t, []string{"纯", "爱"}, b.args[5])
	assert.Equal(t, true, b.args[6])

	assert.Equal(t, "FALSE", (&sqlBuilder{}).where(&filter.Filter{Impossible: true}))

	scattered := &sqlBuilder{}
	cond := scattered.keywordConds(keyword.Compile(segment.Unigram{}, "", "百合", nil))
	assert.Equal(t, []string{"NOT (" +
		"(token_phrase_match(t.title_tokens, $1::text[], $2::boolean) OR token_phrase_match(t.excerpt_tokens, $1::text[], $2::boolean)) AND " +
		"(token_phrase_match(t.title_tokens, $3::text[], $4::boolean) OR token_phrase_match(t.excerpt_tokens, $3::text[], $4::boolean)))"}, cond)
	assert.Equal(t, []any{[]string{"百"}, false, []string{"合"}, true}, scattered.args)
}

func TestSQLBuilderOrderBy(t *testing.T) {
	params := rank.DefaultParams()
	b := &sqlBuilder{}
	got, err := b.orderBy(Sort{Method: query.SortReplyCount, Order: query.Asc}, &params)
	require.NoError(t, err)
	assert.Equal(t, "t.reply_count ASC, t.thread_id ASC", got)
	assert.Empty(t, b.args)

	got, err = b.orderBy(Sort{Method: query.SortComprehensive, Order: query.Desc}, &params)
	require.NoError(t, err)
	assert.Equal(t, "score DESC, t.thread_id ASC", got)
	assert.Len(t, b.args, 3)
	assert.Contains(t, b.score, "sqrt(ln(")

	_, err = b.orderBy(Sort{Method: query.SortCustom, Order: query.Desc}, &params)
	assert.ErrorIs(t, err, query.ErrInvalidSortMethod)
}

// TestPgSearchAgreesWithMemory runs the same queries through both backends.
func TestPgSearchAgreesWithMemory(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dsn := strings.TrimSpace(os.Getenv("SEARCH_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("SEARCH_TEST_DATABASE_URL is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := store.Open(ctx, dsn, store.DefaultPoolConfig())
	require.NoError(t, err)
	defer db.Close()
	_, err = db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`)
	require.NoError(t, err)
	require.NoError(t, store.ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")))

	seg := segment.Unigram{}
	pg := store.NewPostgresStore(db, seg)
	fixture := corpus()
	for _, th := range fixture.threads {
		require.NoError(t, pg.UpsertThread(ctx, th))
	}
	for _, a := range fixture.authors {
		require.NoError(t, pg.UpsertAuthor(ctx, a))
	}
	for user, ids := range fixture.collections {
		for _, id := range ids {
			require.NoError(t, pg.AddToCollection(ctx, user, id))
		}
	}

	mem := NewMemory(pg, seg, testLogger(t))
	require.NoError(t, mem.Refresh(ctx))
	params := rank.NewHolder(rank.Params{ExplorationFactor: 1.414, StrengthWeight: 10, TotalDisplayCount: 48})
	viaPG := NewService(NewPgSearch(db), pg, seg, params, nil)
	viaMemory := NewService(mem, pg, seg, params, nil)

	queries := []query.SearchQuery{
		{},
		{ExcludeKeywords: "百合破坏", ExemptionMarkers: []string{"禁", "🈲"}},
		{ExcludeKeywords: "百合", ExemptionMarkers: []string{"禁", "🈲"}},
		{ExcludeKeywords: "百合破坏"},
		{ExcludeKeywords: "百合破坏 小说"},
		{ExcludeKeywords: "讨论破坏"},
		{ExcludeKeywords: `"讨论破坏"`},
		{Keywords: "小说/百合, 推荐"},
		{Keywords: `"小说"`},
		{IncludeTags: []string{"a", "c"}, TagLogic: query.TagOr, SortMethod: query.SortCreatedAt},
		{IncludeTags: []string{"a", "c"}, TagLogic: query.TagAnd},
		{ExcludeTags: []string{"a"}, SortMethod: query.SortReplyCount, SortOrder: query.Asc},
		{AuthorName: "builder"},
		{CollectionUserID: 7},
		{SortMethod: query.SortCustom, CustomBaseSort: query.SortReactionCount, ReactionCountRange: "[2, 9)"},
	}
	for _, q := range queries {
		for _, window := range [][2]int{{0, 10}, {1, 2}} {
			want, err := viaMemory.Search(ctx, q, window[0], window[1])
			require.NoError(t, err)
			got, err := viaPG.Search(ctx, q, window[0], window[1])
			require.NoError(t, err)
			assert.Equal(t, want.Total, got.Total, "%+v", q)
			assert.Equal(t, want.IDs(), got.IDs(), "%+v", q)
		}
	}
}
