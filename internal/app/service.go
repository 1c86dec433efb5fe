package app

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-logr/logr"

	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/notify"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/query"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/rank"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/search"
)

// RankingStore persists the ranking parameters.
type RankingStore interface {
	rank.Source
	SaveRankingWeights(ctx context.Context, explorationFactor, strengthWeight float64) error
}

// Broadcaster tells other instances that the ranking parameters changed.
type Broadcaster interface {
	Publish(ctx context.Context, version uint64) error
}

// Checker is one readiness dependency.
type Checker interface {
	Ping(ctx context.Context) error
}

// CheckFunc adapts a function to Checker.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Ping(ctx context.Context) error { return f(ctx) }

type Service struct {
	search  *search.Service
	tags    search.TagSource
	ranking RankingStore
	params  *rank.Holder
	bus     Broadcaster
	checks  map[string]Checker
	log     logr.Logger
}

type Option func(*Service)

func WithBroadcaster(b Broadcaster) Option {
	return func(s *Service) { s.bus = b }
}

// WithCheck registers a dependency reported by the readiness endpoint.
func WithCheck(name string, c Checker) Option {
	return func(s *Service) { s.checks[name] = c }
}

func WithLogger(l logr.Logger) Option {
	return func(s *Service) { s.log = l }
}

func New(searchService *search.Service, tags search.TagSource, ranking RankingStore, params *rank.Holder, opts ...Option) *Service {
	s := &Service{
		search:  searchService,
		tags:    tags,
		ranking: ranking,
		params:  params,
		checks:  map[string]Checker{},
		log:     logr.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scope selects the search entry point. At most one of AuthorID and
// CollectionUserID may be set; with neither the default channel strategy is used.
type Scope struct {
	ChannelIDs       []int64
	AuthorID         *int64
	CollectionUserID *int64
}

func (s *Service) strategy(scope Scope) (search.Strategy, error) {
	switch {
	case scope.AuthorID != nil && scope.CollectionUserID != nil:
		return nil, validationError("authorId", "authorId and collectionUserId are mutually exclusive")
	case scope.AuthorID != nil:
		return search.AuthorStrategy{Tags: s.tags, AuthorID: *scope.AuthorID}, nil
	case scope.CollectionUserID != nil:
		return search.CollectionStrategy{Tags: s.tags, UserID: *scope.CollectionUserID}, nil
	default:
		return search.DefaultStrategy{Tags: s.tags, ChannelIDs: scope.ChannelIDs}, nil
	}
}

// Search runs q inside scope. When record is set the returned page is counted
// as displayed.
func (s *Service) Search(ctx context.Context, scope Scope, q query.SearchQuery, offset, limit int, record bool) (search.Page, error) {
	strategy, err := s.strategy(scope)
	if err != nil {
		return search.Page{}, err
	}
	page, err := s.search.SearchWith(ctx, strategy, q, offset, limit)
	if err != nil {
		return search.Page{}, err
	}
	if record && len(page.Items) > 0 {
		s.search.RecordImpressions(page.IDs()...)
	}
	return page, nil
}

func (s *Service) RecordImpressions(ids []int64) {
	s.search.RecordImpressions(ids...)
}

func (s *Service) AvailableTags(ctx context.Context, scope Scope) ([]string, error) {
	strategy, err := s.strategy(scope)
	if err != nil {
		return nil, err
	}
	return s.search.AvailableTags(ctx, strategy)
}

func (s *Service) Ranking() *rank.Params {
	return s.params.Load()
}

// UpdateRanking stores new weights, swaps the snapshot and broadcasts the change.
func (s *Service) UpdateRanking(ctx context.Context, explorationFactor, strengthWeight float64) (*rank.Params, error) {
	if explorationFactor < 0 {
		return nil, validationError("explorationFactor", "explorationFactor must not be negative")
	}
	if strengthWeight < 0 {
		return nil, validationError("strengthWeight", "strengthWeight must not be negative")
	}
	if err := s.ranking.SaveRankingWeights(ctx, explorationFactor, strengthWeight); err != nil {
		return nil, fmt.Errorf("save ranking weights: %w", err)
	}
	return s.ReloadRanking(ctx)
}

// ReloadRanking re-reads the stored parameters and broadcasts the new version.
func (s *Service) ReloadRanking(ctx context.Context) (*rank.Params, error) {
	p, err := s.params.Reload(ctx, s.ranking)
	if err != nil {
		return nil, err
	}
	s.broadcast(ctx, p.Version)
	return p, nil
}

// AfterImpressionCommit picks up the new total display count after a flush.
func (s *Service) AfterImpressionCommit(ctx context.Context, total int64) {
	p, err := s.ReloadRanking(ctx)
	if err != nil {
		s.log.Error(err, "reload ranking after impression commit", "impressions", total)
		return
	}
	s.log.V(1).Info("ranking reloaded after impression commit", "impressions", total, "version", p.Version, "totalDisplayCount", p.TotalDisplayCount)
}

// ApplyReloadEvent reloads on behalf of another instance without re-broadcasting.
func (s *Service) ApplyReloadEvent(ctx context.Context, ev notify.Event) {
	p, err := s.params.Reload(ctx, s.ranking)
	if err != nil {
		s.log.Error(err, "reload ranking on remote event", "origin", ev.Origin, "remoteVersion", ev.Version)
		return
	}
	s.log.Info("ranking reloaded on remote event", "origin", ev.Origin, "version", p.Version)
}

func (s *Service) broadcast(ctx context.Context, version uint64) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, version); err != nil {
		s.log.Error(err, "broadcast ranking reload", "version", version)
	}
}

// Ready pings every registered dependency. The result maps each name to its
// error, nil when healthy.
func (s *Service) Ready(ctx context.Context) map[string]error {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make(map[string]error, len(names))
	for _, name := range names {
		out[name] = s.checks[name].Ping(ctx)
	}
	return out
}

func requirePositive(field string, v int64) error {
	if v <= 0 {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", field+" must be positive", map[string]any{"field": field})
	}
	return nil
}
