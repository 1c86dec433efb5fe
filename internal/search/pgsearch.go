package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/filter"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/keyword"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/query"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/rank"
)

// PgSearch compiles filters to SQL over the threads table. Token matching uses
// the token_phrase_* functions from the migrations, so it agrees with the
// in-memory matcher.
type PgSearch struct {
	db *sql.DB
}

func NewPgSearch(db *sql.DB) *PgSearch {
	return &PgSearch{db: db}
}

func (p *PgSearch) Name() string { return "postgres" }

// Healthy always returns true; if Postgres is down the whole service is down.
func (p *PgSearch) Healthy() bool {
	return true
}

// Search runs the count and the page query in one read-only repeatable-read
// transaction so both see the same rows.
func (p *PgSearch) Search(ctx context.Context, f *filter.Filter, sort Sort, params *rank.Params, offset, limit int) (Page, error) {
	b := &sqlBuilder{}
	where := b.where(f)
	countArgs := len(b.args)
	orderBy, err := b.orderBy(sort, params)
	if err != nil {
		return Page{}, err
	}
	offsetArg := b.arg(max(offset, 0))
	limitArg := b.arg(max(limit, 0))

	page := emptyPage(offset, limit)
	err = inReadTx(ctx, p.db, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM threads t WHERE `+where, b.args[:countArgs]...).Scan(&page.Total); err != nil {
			return fmt.Errorf("count threads: %w", err)
		}
		if page.Total == 0 || offset >= page.Total {
			return nil
		}

		rows, err := tx.QueryContext(ctx, fmt.Sprintf(`
			SELECT t.thread_id, t.channel_id, t.title, t.author_id, t.created_at, t.last_active_at,
				t.reaction_count, t.reply_count, t.display_count, t.first_message_excerpt, t.thumbnail_url,
				COALESCE((
					SELECT json_agg(json_build_object('id', tg.tag_id, 'channelId', tg.channel_id, 'name', tg.name) ORDER BY tg.tag_id)
					FROM thread_tags tt JOIN tags tg ON tg.tag_id = tt.tag_id
					WHERE tt.thread_id = t.thread_id
				), '[]')::text,
				%s AS score
			FROM threads t
			WHERE %s
			ORDER BY %s
			OFFSET %s LIMIT %s
		`, b.score, where, orderBy, offsetArg, limitArg), b.args...)
		if err != nil {
			return fmt.Errorf("page threads: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				item    rank.Ranked
				tagJSON string
				score   float64
			)
			if err := rows.Scan(
				&item.ID,
				&item.ChannelID,
				&item.Title,
				&item.AuthorID,
				&item.CreatedAt,
				&item.LastActiveAt,
				&item.ReactionCount,
				&item.ReplyCount,
				&item.DisplayCount,
				&item.Excerpt,
				&item.ThumbnailURL,
				&tagJSON,
				&score,
			); err != nil {
				return fmt.Errorf("scan thread: %w", err)
			}
			if err := json.Unmarshal([]byte(tagJSON), &item.Tags); err != nil {
				return fmt.Errorf("decode tags of thread %d: %w", item.ID, err)
			}
			if sort.Method == query.SortComprehensive {
				item.Score = score
			}
			page.Items = append(page.Items, item)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate threads: %w", err)
		}
		return nil
	})
	if err != nil {
		return Page{}, err
	}
	return page, nil
}

func inReadTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// sqlBuilder accumulates positional arguments while rendering a filter.
type sqlBuilder struct {
	args  []any
	score string
}

func (b *sqlBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *sqlBuilder) where(f *filter.Filter) string {
	if f.Impossible {
		return "FALSE"
	}
	conds := []string{"t.not_found_count = 0"}
	add := func(format string, args ...any) {
		conds = append(conds, fmt.Sprintf(format, args...))
	}

	if len(f.ChannelIDs) > 0 {
		add("t.channel_id = ANY(%s::bigint[])", b.arg(f.ChannelIDs))
	}
	for _, group := range f.TagGroups {
		add("EXISTS (SELECT 1 FROM thread_tags tt WHERE tt.thread_id = t.thread_id AND tt.tag_id = ANY(%s::bigint[]))", b.arg(group))
	}
	if len(f.ExcludeTagIDs) > 0 {
		add("NOT EXISTS (SELECT 1 FROM thread_tags tt WHERE tt.thread_id = t.thread_id AND tt.tag_id = ANY(%s::bigint[]))", b.arg(f.ExcludeTagIDs))
	}
	if f.IncludeAuthors != nil {
		add("t.author_id = ANY(%s::bigint[])", b.arg(f.IncludeAuthors))
	}
	if len(f.ExcludeAuthors) > 0 {
		add("NOT (t.author_id = ANY(%s::bigint[]))", b.arg(f.ExcludeAuthors))
	}
	if f.ThreadIDs != nil {
		add("t.thread_id = ANY(%s::bigint[])", b.arg(f.ThreadIDs))
	}
	if len(f.ExcludeThreadIDs) > 0 {
		add("NOT (t.thread_id = ANY(%s::bigint[]))", b.arg(f.ExcludeThreadIDs))
	}
	if f.CreatedAfter != nil {
		add("t.created_at >= %s", b.arg(*f.CreatedAfter))
	}
	if f.CreatedBefore != nil {
		add("t.created_at <= %s", b.arg(*f.CreatedBefore))
	}
	if f.ActiveAfter != nil {
		add("t.last_active_at >= %s", b.arg(*f.ActiveAfter))
	}
	if f.ActiveBefore != nil {
		add("t.last_active_at <= %s", b.arg(*f.ActiveBefore))
	}
	b.rangeConds(&conds, "t.reaction_count", f.Reactions)
	b.rangeConds(&conds, "t.reply_count", f.Replies)
	if f.Keywords != nil {
		conds = append(conds, b.keywordConds(f.Keywords)...)
	}
	return strings.Join(conds, " AND ")
}

func (b *sqlBuilder) rangeConds(conds *[]string, column string, r query.Range) {
	if !r.Valid() {
		return
	}
	*conds = append(*conds,
		fmt.Sprintf("%s %s %s", column, comparison(r.MinOp), b.arg(*r.Min)),
		fmt.Sprintf("%s %s %s", column, comparison(r.MaxOp), b.arg(*r.Max)),
	)
}

func comparison(op string) string {
	switch op {
	case ">=", ">", "<=", "<":
		return op
	}
	panic(fmt.Sprintf("search: unexpected range operator %q", op))
}

var tokenColumns = []string{"t.title_tokens", "t.excerpt_tokens"}

func (b *sqlBuilder) keywordConds(plan *keyword.Plan) []string {
	var conds []string
	for _, group := range plan.Include {
		alts := make([]string, 0, len(group))
		for _, term := range group {
			alts = append(alts, b.termMatch(term))
		}
		conds = append(conds, "("+strings.Join(alts, " OR ")+")")
	}
	for _, term := range plan.Exclude {
		match := b.termMatch(term)
		if !term.Exact {
			match = b.scatteredMatch(term)
		}
		if len(plan.Markers) == 0 {
			conds = append(conds, "NOT "+match)
			continue
		}
		conds = append(conds, fmt.Sprintf("NOT (%s AND NOT %s)", match, b.exempt(term.Anchor(), plan.Markers)))
	}
	return conds
}

func (b *sqlBuilder) termMatch(term keyword.Term) string {
	phrase := b.arg(term.Tokens)
	prefix := b.arg(!term.Exact)
	fields := make([]string, len(tokenColumns))
	for i, col := range tokenColumns {
		fields[i] = fmt.Sprintf("token_phrase_match(%s, %s::text[], %s::boolean)", col, phrase, prefix)
	}
	return "(" + strings.Join(fields, " OR ") + ")"
}

// scatteredMatch requires every token of term somewhere in the thread's token
// columns, the last one as a prefix.
func (b *sqlBuilder) scatteredMatch(term keyword.Term) string {
	parts := make([]string, 0, len(term.Tokens))
	for _, tok := range term.Scatter() {
		parts = append(parts, b.termMatch(tok))
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

func (b *sqlBuilder) exempt(anchor keyword.Term, markers [][]string) string {
	token := b.arg(anchor.Tokens[0])
	prefix := b.arg(!anchor.Exact)
	gap := b.arg(keyword.NearGap)
	var near []string
	for _, marker := range markers {
		m := b.arg(marker)
		for _, col := range tokenColumns {
			near = append(near, fmt.Sprintf("token_phrase_near(%s, %s::text, %s::boolean, %s::text[], %s::int)", col, token, prefix, m, gap))
		}
	}
	return "(" + strings.Join(near, " OR ") + ")"
}

// orderBy renders the ORDER BY clause and, for comprehensive sorting, the UCB1
// score expression.
func (b *sqlBuilder) orderBy(sort Sort, params *rank.Params) (string, error) {
	b.score = "0::float8"
	var key string
	switch sort.Method {
	case query.SortComprehensive:
		n := "GREATEST(t.display_count, 1)::float8"
		b.score = fmt.Sprintf("(%s::float8 * (t.reaction_count::float8 / %s) + %s::float8 * sqrt(ln(GREATEST(%s::bigint, 1)::float8) / %s))",
			b.arg(params.StrengthWeight), n, b.arg(params.ExplorationFactor), b.arg(params.TotalDisplayCount), n)
		key = "score"
	case query.SortCreatedAt:
		key = "t.created_at"
	case query.SortLastActiveAt:
		key = "t.last_active_at"
	case query.SortReactionCount:
		key = "t.reaction_count"
	case query.SortReplyCount:
		key = "t.reply_count"
	default:
		return "", fmt.Errorf("%w: %q", query.ErrInvalidSortMethod, sort.Method)
	}
	dir := "DESC"
	if sort.Order == query.Asc {
		dir = "ASC"
	}
	return fmt.Sprintf("%s %s, t.thread_id ASC", key, dir), nil
}

