package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/forum"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/segment"
)

const threadColumns = `
	t.thread_id, t.channel_id, t.title, t.author_id, t.created_at, t.last_active_at,
	t.reaction_count, t.reply_count, t.display_count, t.first_message_excerpt,
	t.thumbnail_url, t.not_found_count, t.title_tokens, t.excerpt_tokens`

// UpsertThread writes a thread, its token columns and its tag links in one
// transaction. This is the only write path for indexed thread content, so the
// token columns can never lag the text they are derived from. display_count is
// only set on first insert.
func (s *PostgresStore) UpsertThread(ctx context.Context, t forum.Thread) error {
	t.Normalize()
	t.Tokenize(s.seg)

	return inTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO threads (
				thread_id, channel_id, title, author_id, created_at, last_active_at,
				reaction_count, reply_count, display_count, first_message_excerpt,
				thumbnail_url, not_found_count, title_tokens, excerpt_tokens
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (thread_id) DO UPDATE SET
				channel_id=EXCLUDED.channel_id,
				title=EXCLUDED.title,
				author_id=EXCLUDED.author_id,
				created_at=EXCLUDED.created_at,
				last_active_at=EXCLUDED.last_active_at,
				reaction_count=EXCLUDED.reaction_count,
				reply_count=EXCLUDED.reply_count,
				first_message_excerpt=EXCLUDED.first_message_excerpt,
				thumbnail_url=EXCLUDED.thumbnail_url,
				not_found_count=EXCLUDED.not_found_count,
				title_tokens=EXCLUDED.title_tokens,
				excerpt_tokens=EXCLUDED.excerpt_tokens,
				updated_at=NOW()
		`, t.ID, t.ChannelID, t.Title, t.AuthorID, t.CreatedAt, t.LastActiveAt,
			t.ReactionCount, t.ReplyCount, t.DisplayCount, t.Excerpt,
			t.ThumbnailURL, t.NotFoundCount, nonNil(t.TitleTokens), nonNil(t.ExcerptTokens),
		); err != nil {
			return fmt.Errorf("upsert thread %d: %w", t.ID, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM thread_tags WHERE thread_id=$1`, t.ID); err != nil {
			return fmt.Errorf("clear thread tags %d: %w", t.ID, err)
		}
		for _, tag := range t.Tags {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO tags (tag_id, channel_id, name)
				VALUES ($1, $2, $3)
				ON CONFLICT (tag_id) DO UPDATE SET channel_id=EXCLUDED.channel_id, name=EXCLUDED.name
			`, tag.ID, tag.ChannelID, tag.Name); err != nil {
				return fmt.Errorf("upsert tag %d: %w", tag.ID, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO thread_tags (thread_id, tag_id)
				VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, t.ID, tag.ID); err != nil {
				return fmt.Errorf("link tag %d to thread %d: %w", tag.ID, t.ID, err)
			}
		}
		return nil
	})
}

// UpsertAuthor records the names an author can be searched by.
func (s *PostgresStore) UpsertAuthor(ctx context.Context, a forum.Author) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO authors (author_id, name, global_name, display_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (author_id) DO UPDATE SET
			name=EXCLUDED.name, global_name=EXCLUDED.global_name, display_name=EXCLUDED.display_name
	`, a.ID, a.Name, a.GlobalName, a.DisplayName)
	if err != nil {
		return fmt.Errorf("upsert author %d: %w", a.ID, err)
	}
	return nil
}

// AddToCollection adds a thread to a user's collection.
func (s *PostgresStore) AddToCollection(ctx context.Context, userID, threadID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_collections (user_id, thread_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, userID, threadID)
	if err != nil {
		return fmt.Errorf("add thread %d to collection of %d: %w", threadID, userID, err)
	}
	return nil
}

// ListThreads loads every thread with its tags, soft-deleted ones included.
func (s *PostgresStore) ListThreads(ctx context.Context) ([]forum.Thread, error) {
	return s.loadThreads(ctx, `SELECT `+threadColumns+` FROM threads t ORDER BY t.thread_id`)
}

// ThreadsByIDs loads the given threads in the order of ids. Unknown ids are
// skipped.
func (s *PostgresStore) ThreadsByIDs(ctx context.Context, ids []int64) ([]forum.Thread, error) {
	if len(ids) == 0 {
		return []forum.Thread{}, nil
	}
	items, err := s.loadThreads(ctx, `SELECT `+threadColumns+` FROM threads t WHERE t.thread_id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]forum.Thread, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	ordered := make([]forum.Thread, 0, len(ids))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			ordered = append(ordered, item)
		}
	}
	return ordered, nil
}

func (s *PostgresStore) loadThreads(ctx context.Context, query string, args ...any) ([]forum.Thread, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	types := pgtype.NewMap()
	items := make([]forum.Thread, 0)
	for rows.Next() {
		var item forum.Thread
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
			&item.NotFoundCount,
			types.SQLScanner(&item.TitleTokens),
			types.SQLScanner(&item.ExcerptTokens),
		); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate threads: %w", err)
	}
	if err := s.attachTags(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *PostgresStore) attachTags(ctx context.Context, items []forum.Thread) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]int64, len(items))
	index := make(map[int64]int, len(items))
	for i, item := range items {
		ids[i] = item.ID
		index[item.ID] = i
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tt.thread_id, tg.tag_id, tg.channel_id, tg.name
		FROM thread_tags tt
		JOIN tags tg ON tg.tag_id = tt.tag_id
		WHERE tt.thread_id = ANY($1)
		ORDER BY tt.thread_id, tg.tag_id
	`, ids)
	if err != nil {
		return fmt.Errorf("list thread tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			threadID int64
			tag      forum.Tag
		)
		if err := rows.Scan(&threadID, &tag.ID, &tag.ChannelID, &tag.Name); err != nil {
			return fmt.Errorf("scan thread tag: %w", err)
		}
		i := index[threadID]
		items[i].Tags = append(items[i].Tags, tag)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate thread tags: %w", err)
	}
	return nil
}

// RetokenizeAll rewrites every thread's token columns with the store's segmenter
// and returns the number of threads updated.
func (s *PostgresStore) RetokenizeAll(ctx context.Context) (int, error) {
	type text struct {
		id             int64
		title, excerpt string
	}
	rows, err := s.db.QueryContext(ctx, `SELECT thread_id, title, first_message_excerpt FROM threads`)
	if err != nil {
		return 0, fmt.Errorf("list thread text: %w", err)
	}
	var texts []text
	for rows.Next() {
		var t text
		if err := rows.Scan(&t.id, &t.title, &t.excerpt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan thread text: %w", err)
		}
		texts = append(texts, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate thread text: %w", err)
	}

	err = inTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `UPDATE threads SET title_tokens=$2, excerpt_tokens=$3 WHERE thread_id=$1`)
		if err != nil {
			return fmt.Errorf("prepare retokenize: %w", err)
		}
		defer stmt.Close()
		for _, t := range texts {
			title := nonNil(segment.Tokens(s.seg, t.title))
			excerpt := nonNil(segment.Tokens(s.seg, t.excerpt))
			if _, err := stmt.ExecContext(ctx, t.id, title, excerpt); err != nil {
				return fmt.Errorf("retokenize thread %d: %w", t.id, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(texts), nil
}

func nonNil(tokens []string) []string {
	if tokens == nil {
		return []string{}
	}
	return tokens
}
