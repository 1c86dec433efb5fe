package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/filter"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/forum"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/keyword"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/query"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/rank"
)

func TestCompileFilter(t *testing.T) {
	after := time.UnixMilli(1_700_000_000_000)
	f := &filter.Filter{
		ChannelIDs:       []int64{10, 20},
		TagGroups:        [][]int64{{1, 11}, {2}},
		ExcludeTagIDs:    []int64{3},
		IncludeAuthors:   []int64{100},
		ExcludeAuthors:   []int64{200},
		ExcludeThreadIDs: []int64{5},
		CreatedAfter:     &after,
		Reactions:        query.ParseRange("[0, 100)"),
	}
	assert.Equal(t, []string{
		"notFoundCount = 0",
		"channelId IN [10, 20]",
		"tagIds IN [1, 11]",
		"tagIds IN [2]",
		"NOT tagIds IN [3]",
		"authorId IN [100]",
		"NOT authorId IN [200]",
		"NOT threadId IN [5]",
		"createdAt >= 1700000000000",
		"reactionCount >= 0",
		"reactionCount < 100",
	}, CompileFilter(f))

	assert.Equal(t, []string{"notFoundCount = 0"}, CompileFilter(&filter.Filter{}))
}

func TestExpressible(t *testing.T) {
	plain := &filter.Filter{}
	withKeywords := &filter.Filter{Keywords: &keyword.Plan{Include: [][]keyword.Term{{{Tokens: []string{"x"}}}}}}

	assert.True(t, Expressible(plain, Sort{Method: query.SortCreatedAt, Order: query.Desc}))
	assert.False(t, Expressible(plain, Sort{Method: query.SortComprehensive, Order: query.Desc}))
	assert.False(t, Expressible(withKeywords, Sort{Method: query.SortReplyCount, Order: query.Asc}))
}

func TestMeiliSort(t *testing.T) {
	got, err := meiliSort(Sort{Method: query.SortLastActiveAt, Order: query.Asc})
	require.NoError(t, err)
	assert.Equal(t, []string{"lastActiveAt:asc", "threadId:asc"}, got)

	_, err = meiliSort(Sort{Method: query.SortComprehensive, Order: query.Desc})
	assert.ErrorIs(t, err, ErrNotExpressible)
}

func TestThreadDocRoundTrip(t *testing.T) {
	created := time.Date(2025, 3, 4, 5, 6, 7, 8_000_000, time.UTC)
	th := forum.Thread{
		ID:            9,
		ChannelID:     10,
		Title:         "纯爱小说",
		AuthorID:      100,
		CreatedAt:     created,
		LastActiveAt:  created.Add(time.Hour),
		ReactionCount: 3,
		ReplyCount:    4,
		DisplayCount:  5,
		Excerpt:       "excerpt",
		Tags:          []forum.Tag{{ID: 1, ChannelID: 10, Name: "a"}, {ID: 2, ChannelID: 10, Name: "b"}},
	}
	doc := newThreadDoc(th)
	assert.Equal(t, []int64{1, 2}, doc.TagIDs)
	assert.Equal(t, created.UnixMilli(), doc.CreatedAt)
	assert.Equal(t, th, doc.thread())

	empty := newThreadDoc(forum.Thread{ID: 1})
	assert.NotNil(t, empty.Tags)
	assert.NotNil(t, empty.TagIDs)
}

type hydratorFunc func(ctx context.Context, ids []int64) ([]forum.Thread, error)

func (f hydratorFunc) ThreadsByIDs(ctx context.Context, ids []int64) ([]forum.Thread, error) {
	return f(ctx, ids)
}

func TestHydrateDropsDeletedHits(t *testing.T) {
	page := Page{Total: 10, Offset: 0, Limit: 3, Items: []rank.Ranked{
		{Thread: forum.Thread{ID: 1, ReactionCount: 1}},
		{Thread: forum.Thread{ID: 2}},
		{Thread: forum.Thread{ID: 3}},
	}}
	current := hydratorFunc(func(_ context.Context, ids []int64) ([]forum.Thread, error) {
		assert.Equal(t, []int64{1, 2, 3}, ids)
		return []forum.Thread{
			{ID: 1, ReactionCount: 8, TitleTokens: []string{"a"}},
			{ID: 2, NotFoundCount: 1},
		}, nil
	})

	got, err := hydrate(context.Background(), current, page)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, got.IDs(), "soft-deleted and vanished threads are dropped")
	assert.Equal(t, 8, got.Total)
	assert.Equal(t, int64(8), got.Items[0].ReactionCount)
	assert.Nil(t, got.Items[0].TitleTokens)
}
