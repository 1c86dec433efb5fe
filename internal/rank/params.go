// Package rank orders matched threads, either by a direct field or by a UCB1
// bandit score computed from one RankingParams snapshot.
package rank

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	DefaultExplorationFactor = 1.414
	DefaultStrengthWeight    = 10.0
)

// Params is one immutable ranking-parameter snapshot. Readers get a pointer to a
// value that is never mutated after it is published.
type Params struct {
	ExplorationFactor float64 `json:"explorationFactor"`
	StrengthWeight    float64 `json:"strengthWeight"`
	TotalDisplayCount int64   `json:"totalDisplayCount"`
	Version           uint64  `json:"version"`
}

// DefaultParams returns the parameters used before the config store is read.
func DefaultParams() Params {
	return Params{
		ExplorationFactor: DefaultExplorationFactor,
		StrengthWeight:    DefaultStrengthWeight,
		TotalDisplayCount: 1,
	}
}

// Source reads the durable parameter triple.
type Source interface {
	LoadRankingParams(ctx context.Context) (Params, error)
}

// Holder publishes Params snapshots. Load is lock-free; writers serialise on mu so
// versions increase monotonically.
type Holder struct {
	mu  sync.Mutex
	cur atomic.Pointer[Params]
}

func NewHolder(initial Params) *Holder {
	h := &Holder{}
	p := initial
	h.cur.Store(&p)
	return h
}

// Load returns the current snapshot.
func (h *Holder) Load() *Params {
	return h.cur.Load()
}

// Store publishes p as a new snapshot and returns it. The version is assigned by
// the holder.
func (h *Holder) Store(p Params) *Params {
	h.mu.Lock()
	defer h.mu.Unlock()
	p.Version = h.cur.Load().Version + 1
	h.cur.Store(&p)
	return &p
}

// Reload reads the triple from src and publishes it. The current snapshot stays in
// place on error.
func (h *Holder) Reload(ctx context.Context, src Source) (*Params, error) {
	p, err := src.LoadRankingParams(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ranking params: %w", err)
	}
	return h.Store(p), nil
}
