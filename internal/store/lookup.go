package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// TagIDsByName resolves tag names to every tag id carrying that name, across
// channels. Names with no tag are absent from the result.
func (s *PostgresStore) TagIDsByName(ctx context.Context, names []string) (map[string][]int64, error) {
	out := make(map[string][]int64)
	if len(names) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, tag_id
		FROM tags
		WHERE name = ANY($1)
		ORDER BY name, tag_id
	`, names)
	if err != nil {
		return nil, fmt.Errorf("resolve tag names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name string
			id   int64
		)
		if err := rows.Scan(&name, &id); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out[name] = append(out[name], id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return out, nil
}

// AuthorIDsByName matches name case-insensitively against the account name, or
// as a substring of the global or display name.
func (s *PostgresStore) AuthorIDsByName(ctx context.Context, name string) ([]int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	return s.queryIDs(ctx, "resolve author name", `
		SELECT author_id
		FROM authors
		WHERE LOWER(name) = LOWER($1)
		   OR STRPOS(global_name, $1) > 0
		   OR STRPOS(display_name, $1) > 0
		ORDER BY author_id
	`, name)
}

// CollectionThreadIDs lists the threads a user has collected.
func (s *PostgresStore) CollectionThreadIDs(ctx context.Context, userID int64) ([]int64, error) {
	return s.queryIDs(ctx, "list collection", `
		SELECT thread_id
		FROM user_collections
		WHERE user_id=$1
		ORDER BY thread_id
	`, userID)
}

// TagsForChannels lists the distinct tag names of the given channels, or of all
// channels when none are given.
func (s *PostgresStore) TagsForChannels(ctx context.Context, channelIDs []int64) ([]string, error) {
	return s.queryNames(ctx, "list channel tags", `
		SELECT DISTINCT name
		FROM tags
		WHERE cardinality($1::bigint[]) = 0 OR channel_id = ANY($1)
		ORDER BY name
	`, nonNilIDs(channelIDs))
}

// TagsForAuthor lists the distinct tag names on an author's live threads.
func (s *PostgresStore) TagsForAuthor(ctx context.Context, authorID int64) ([]string, error) {
	return s.queryNames(ctx, "list author tags", `
		SELECT DISTINCT tg.name
		FROM threads t
		JOIN thread_tags tt ON tt.thread_id = t.thread_id
		JOIN tags tg ON tg.tag_id = tt.tag_id
		WHERE t.author_id=$1 AND t.not_found_count = 0
		ORDER BY tg.name
	`, authorID)
}

// TagsForCollection lists the distinct tag names on a user's collected threads.
func (s *PostgresStore) TagsForCollection(ctx context.Context, userID int64) ([]string, error) {
	return s.queryNames(ctx, "list collection tags", `
		SELECT DISTINCT tg.name
		FROM user_collections uc
		JOIN threads t ON t.thread_id = uc.thread_id
		JOIN thread_tags tt ON tt.thread_id = t.thread_id
		JOIN tags tg ON tg.tag_id = tt.tag_id
		WHERE uc.user_id=$1 AND t.not_found_count = 0
		ORDER BY tg.name
	`, userID)
}

func (s *PostgresStore) queryIDs(ctx context.Context, what, query string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	defer rows.Close()
	return collect[int64](rows, what)
}

func (s *PostgresStore) queryNames(ctx context.Context, what, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	defer rows.Close()
	return collect[string](rows, what)
}

func collect[T any](rows *sql.Rows, what string) ([]T, error) {
	out := make([]T, 0)
	for rows.Next() {
		var v T
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", what, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate: %w", what, err)
	}
	return out, nil
}

func nonNilIDs(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
