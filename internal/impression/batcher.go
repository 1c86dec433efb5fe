// Package impression buffers "thread was shown" events in memory and periodically
// commits them to the config store as display-count increments.
package impression

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

const DefaultInterval = 60 * time.Second

// Committer durably adds per-thread increments to display counts and their sum to
// the global exposure total, in one transaction.
type Committer interface {
	CommitImpressions(ctx context.Context, counts map[int64]int64) error
}

// Option configures a Batcher.
type Option func(*Batcher)

func WithLogger(l logr.Logger) Option {
	return func(b *Batcher) { b.log = l }
}

// WithOnCommit registers a hook that runs after every successful commit, outside
// any lock. The total is the number of impressions committed.
func WithOnCommit(fn func(ctx context.Context, total int64)) Option {
	return func(b *Batcher) { b.onCommit = fn }
}

// Batcher accumulates impressions. Delivery is at-least-once: a failed commit puts
// the batch back for the next cycle.
type Batcher struct {
	committer Committer
	interval  time.Duration
	log       logr.Logger
	onCommit  func(context.Context, int64)

	mu      sync.Mutex
	pending map[int64]int64

	// flushMu serialises flushes so the ticker and Close never commit concurrently.
	flushMu sync.Mutex
}

func New(c Committer, interval time.Duration, opts ...Option) *Batcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	b := &Batcher{
		committer: c,
		interval:  interval,
		log:       logr.Discard(),
		pending:   make(map[int64]int64),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Record counts one impression for each id. It never blocks on I/O.
func (b *Batcher) Record(ids ...int64) {
	if len(ids) == 0 {
		return
	}
	b.mu.Lock()
	for _, id := range ids {
		b.pending[id]++
	}
	b.mu.Unlock()
}

// Pending returns a copy of the uncommitted counts.
func (b *Batcher) Pending() map[int64]int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.pending)
}

func (b *Batcher) take() map[int64]int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		return nil
	}
	batch := b.pending
	b.pending = make(map[int64]int64, len(batch))
	return batch
}

func (b *Batcher) restore(batch map[int64]int64) {
	b.mu.Lock()
	for id, n := range batch {
		b.pending[id] += n
	}
	b.mu.Unlock()
}

// Flush commits everything pending. On failure the batch is merged back into the
// live map and the error is returned. The commit hook runs after the flush lock
// is released.
func (b *Batcher) Flush(ctx context.Context) error {
	total, err := b.commit(ctx)
	if err != nil || total == 0 {
		return err
	}
	if b.onCommit != nil {
		b.onCommit(ctx, total)
	}
	return nil
}

func (b *Batcher) commit(ctx context.Context) (int64, error) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	batch := b.take()
	if batch == nil {
		return 0, nil
	}
	var total int64
	for _, n := range batch {
		total += n
	}

	if err := b.committer.CommitImpressions(ctx, batch); err != nil {
		b.restore(batch)
		return 0, fmt.Errorf("commit %d impressions for %d threads: %w", total, len(batch), err)
	}
	b.log.V(1).Info("impressions committed", "threads", len(batch), "total", total)
	return total, nil
}

// Run flushes on every tick until ctx is cancelled. A flush already in progress
// when ctx is cancelled runs to completion.
func (b *Batcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := b.Flush(context.WithoutCancel(ctx)); err != nil {
				b.log.Error(err, "impression flush failed, will retry")
			}
		}
	}
}

// Close performs the final flush during shutdown.
func (b *Batcher) Close(ctx context.Context) error {
	if err := b.Flush(ctx); err != nil {
		b.log.Error(err, "final impression flush failed", "pending", len(b.Pending()))
		return err
	}
	return nil
}
