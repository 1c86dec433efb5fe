package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/rank"
)

// EnsureRankingConfig seeds the ranking_config row if it does not exist yet. An
// existing row is left untouched.
func (s *PostgresStore) EnsureRankingConfig(ctx context.Context, seed rank.Params) error {
	total := max(seed.TotalDisplayCount, 1)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ranking_config (id, exploration_factor, strength_weight, total_display_count)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, seed.ExplorationFactor, seed.StrengthWeight, total)
	if err != nil {
		return fmt.Errorf("seed ranking config: %w", err)
	}
	return nil
}

// LoadRankingParams reads the (C, W, N) triple. Version is left zero; the
// snapshot holder assigns it.
func (s *PostgresStore) LoadRankingParams(ctx context.Context) (rank.Params, error) {
	var p rank.Params
	err := s.db.QueryRowContext(ctx, `
		SELECT exploration_factor, strength_weight, total_display_count
		FROM ranking_config
		WHERE id=1
	`).Scan(&p.ExplorationFactor, &p.StrengthWeight, &p.TotalDisplayCount)
	if errors.Is(err, sql.ErrNoRows) {
		return rank.Params{}, ErrNoRankingConfig
	}
	if err != nil {
		return rank.Params{}, fmt.Errorf("load ranking config: %w", err)
	}
	return p, nil
}

// SaveRankingWeights replaces C and W. N is owned by CommitImpressions.
func (s *PostgresStore) SaveRankingWeights(ctx context.Context, explorationFactor, strengthWeight float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ranking_config
		SET exploration_factor=$1, strength_weight=$2, updated_at=NOW()
		WHERE id=1
	`, explorationFactor, strengthWeight)
	if err != nil {
		return fmt.Errorf("save ranking weights: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("save ranking weights rows: %w", err)
	} else if n == 0 {
		return ErrNoRankingConfig
	}
	return nil
}

// CommitImpressions adds each count to its thread's display_count and the sum of
// all counts to total_display_count in one transaction. Ids with no thread still
// count towards the total.
func (s *PostgresStore) CommitImpressions(ctx context.Context, counts map[int64]int64) error {
	if len(counts) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(counts))
	deltas := make([]int64, 0, len(counts))
	var total int64
	for id, n := range counts {
		ids = append(ids, id)
		deltas = append(deltas, n)
		total += n
	}

	return inTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE threads t
			SET display_count = t.display_count + d.n
			FROM unnest($1::bigint[], $2::bigint[]) AS d(id, n)
			WHERE t.thread_id = d.id
		`, ids, deltas); err != nil {
			return fmt.Errorf("add display counts: %w", err)
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE ranking_config
			SET total_display_count = total_display_count + $1, updated_at=NOW()
			WHERE id=1
		`, total)
		if err != nil {
			return fmt.Errorf("add total display count: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("add total display count rows: %w", err)
		} else if n == 0 {
			return ErrNoRankingConfig
		}
		return nil
	})
}
