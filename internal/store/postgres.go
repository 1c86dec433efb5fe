// Package store is the Postgres thread repository and ranking config store.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/segment"
)

// ErrNoRankingConfig is returned when the ranking_config row has not been seeded.
var ErrNoRankingConfig = errors.New("ranking config not initialised")

type PostgresStore struct {
	db  *sql.DB
	seg segment.Segmenter
}

// NewPostgresStore wraps db. seg produces the token columns written by
// UpsertThread and RetokenizeAll, so it must be the segmenter queries use.
func NewPostgresStore(db *sql.DB, seg segment.Segmenter) *PostgresStore {
	return &PostgresStore{db: db, seg: seg}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func inTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
