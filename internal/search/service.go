package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/filter"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/impression"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/query"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/rank"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/segment"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Service is the search entry point. It validates and compiles the query, takes
// one ranking snapshot, and runs the query on the mirror when it can express it,
// otherwise on the primary backend.
type Service struct {
	primary  Backend
	mirror   Backend
	resolver filter.Resolver
	seg      segment.Segmenter
	params   *rank.Holder
	batcher  *impression.Batcher
	log      logr.Logger

	defaultLimit int
	maxLimit     int
}

// Option configures a Service.
type Option func(*Service)

// WithMirror adds a secondary backend tried before the primary.
func WithMirror(b Backend) Option {
	return func(s *Service) { s.mirror = b }
}

func WithLimits(defaultLimit, maxLimit int) Option {
	return func(s *Service) {
		if defaultLimit > 0 {
			s.defaultLimit = defaultLimit
		}
		if maxLimit > 0 {
			s.maxLimit = maxLimit
		}
	}
}

func WithLogger(l logr.Logger) Option {
	return func(s *Service) { s.log = l }
}

func NewService(primary Backend, resolver filter.Resolver, seg segment.Segmenter, params *rank.Holder, batcher *impression.Batcher, opts ...Option) *Service {
	s := &Service{
		primary:      primary,
		resolver:     resolver,
		seg:          seg,
		params:       params,
		batcher:      batcher,
		log:          logr.Discard(),
		defaultLimit: DefaultLimit,
		maxLimit:     MaxLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.defaultLimit > s.maxLimit {
		s.defaultLimit = s.maxLimit
	}
	return s
}

// Search returns one page of q's ordered match set and the total match count.
// Zero matches is a normal empty page.
func (s *Service) Search(ctx context.Context, q query.SearchQuery, offset, limit int) (Page, error) {
	q, err := query.New(q)
	if err != nil {
		return Page{}, err
	}
	offset = max(offset, 0)
	if limit <= 0 {
		limit = s.defaultLimit
	}
	limit = min(limit, s.maxLimit)

	f, err := filter.Compile(ctx, q, s.resolver, s.seg)
	if err != nil {
		return Page{}, fmt.Errorf("compile filter: %w", err)
	}
	if f.Impossible {
		return emptyPage(offset, limit), nil
	}

	params := s.params.Load()
	sort := Sort{Method: q.EffectiveSort(), Order: q.SortOrder}

	if s.mirror != nil && s.mirror.Healthy() && Expressible(f, sort) {
		page, err := s.mirror.Search(ctx, f, sort, params, offset, limit)
		if err == nil {
			return page, nil
		}
		if !errors.Is(err, ErrNotExpressible) {
			s.log.Error(err, "mirror search failed, falling back", "mirror", s.mirror.Name(), "primary", s.primary.Name())
		}
	}

	page, err := s.primary.Search(ctx, f, sort, params, offset, limit)
	if err != nil {
		return Page{}, fmt.Errorf("%s search: %w", s.primary.Name(), err)
	}
	return page, nil
}

// SearchWith narrows q through strategy before searching.
func (s *Service) SearchWith(ctx context.Context, strategy Strategy, q query.SearchQuery, offset, limit int) (Page, error) {
	return s.Search(ctx, strategy.Modify(q), offset, limit)
}

// RecordImpressions reports that ids were shown to a user. It never blocks on I/O.
func (s *Service) RecordImpressions(ids ...int64) {
	if s.batcher != nil {
		s.batcher.Record(ids...)
	}
}

// AvailableTags lists the tags a caller of strategy may filter by.
func (s *Service) AvailableTags(ctx context.Context, strategy Strategy) ([]string, error) {
	tags, err := strategy.AvailableTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("available tags: %w", err)
	}
	return tags, nil
}

// Params returns the ranking snapshot searches currently use.
func (s *Service) Params() *rank.Params {
	return s.params.Load()
}
