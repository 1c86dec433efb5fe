package search

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"

	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/filter"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/forum"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/rank"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/segment"
)

// Loader reads the full thread set for a snapshot.
type Loader interface {
	ListThreads(ctx context.Context) ([]forum.Thread, error)
}

type snapshot struct {
	threads  []forum.Thread
	loadedAt time.Time
}

// Memory evaluates filters in process over an immutable snapshot of the thread
// set. A search sees exactly one snapshot; refreshes swap the pointer. Results
// are at most one refresh interval stale.
type Memory struct {
	loader Loader
	seg    segment.Segmenter
	log    logr.Logger
	snap   atomic.Pointer[snapshot]
}

func NewMemory(loader Loader, seg segment.Segmenter, log logr.Logger) *Memory {
	m := &Memory{loader: loader, seg: seg, log: log}
	m.snap.Store(&snapshot{})
	return m
}

func (m *Memory) Name() string { return "memory" }

// Healthy reports whether a snapshot has been loaded.
func (m *Memory) Healthy() bool {
	return !m.snap.Load().loadedAt.IsZero()
}

// LoadedAt is the time the current snapshot was taken.
func (m *Memory) LoadedAt() time.Time {
	return m.snap.Load().loadedAt
}

// Replace installs threads as the new snapshot. Token fields are recomputed with
// the backend's segmenter so documents and queries always agree.
func (m *Memory) Replace(threads []forum.Thread) {
	own := make([]forum.Thread, len(threads))
	copy(own, threads)
	for i := range own {
		own[i].Normalize()
		own[i].Tokenize(m.seg)
	}
	m.snap.Store(&snapshot{threads: own, loadedAt: time.Now()})
}

// Refresh reloads the snapshot from the loader. The old snapshot stays in place
// on error.
func (m *Memory) Refresh(ctx context.Context) error {
	if m.loader == nil {
		return nil
	}
	threads, err := m.loader.ListThreads(ctx)
	if err != nil {
		return fmt.Errorf("refresh memory index: %w", err)
	}
	m.Replace(threads)
	m.log.V(1).Info("memory index refreshed", "threads", len(threads))
	return nil
}

// Run refreshes on every tick until ctx is cancelled.
func (m *Memory) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.Refresh(ctx); err != nil && ctx.Err() == nil {
				m.log.Error(err, "memory index refresh failed")
			}
		}
	}
}

func (m *Memory) Search(_ context.Context, f *filter.Filter, sort Sort, params *rank.Params, offset, limit int) (Page, error) {
	snap := m.snap.Load()
	matched := make([]forum.Thread, 0)
	for i := range snap.threads {
		if f.Match(&snap.threads[i]) {
			matched = append(matched, snap.threads[i])
		}
	}
	ordered := rank.Order(matched, sort.Method, sort.Order, params)
	lo, hi := rank.Page(len(ordered), offset, limit)
	return Page{Items: ordered[lo:hi], Total: len(ordered), Offset: offset, Limit: limit}, nil
}
