// Package filter compiles a SearchQuery into a typed predicate over threads. The
// same Filter value is evaluated in memory by Match, rendered to SQL by the
// Postgres backend and to filter expressions by the Meilisearch backend.
package filter

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/forum"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/keyword"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/query"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/segment"
)

// Resolver looks up the identifiers a query refers to by name.
type Resolver interface {
	TagIDsByName(ctx context.Context, names []string) (map[string][]int64, error)
	AuthorIDsByName(ctx context.Context, name string) ([]int64, error)
	CollectionThreadIDs(ctx context.Context, userID int64) ([]int64, error)
}

// Filter is a conjunction of constraints. Nil slices and nil pointers impose no
// constraint.
type Filter struct {
	ChannelIDs []int64

	// TagGroups must each intersect the thread's tag ids.
	TagGroups     [][]int64
	ExcludeTagIDs []int64

	IncludeAuthors []int64
	ExcludeAuthors []int64

	ThreadIDs        []int64
	ExcludeThreadIDs []int64

	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	ActiveAfter   *time.Time
	ActiveBefore  *time.Time

	Reactions query.Range
	Replies   query.Range

	Keywords *keyword.Plan

	// Impossible is set when a constraint resolved to an empty set, e.g. an
	// author name nobody has. Such a filter matches nothing.
	Impossible bool
}

// Compile resolves names in q and builds its Filter. q must already have passed
// query.New.
func Compile(ctx context.Context, q query.SearchQuery, r Resolver, seg segment.Segmenter) (*Filter, error) {
	f := &Filter{
		ChannelIDs:       slices.Clone(q.ChannelIDs),
		ExcludeAuthors:   slices.Clone(q.ExcludeAuthors),
		ExcludeThreadIDs: slices.Clone(q.ExcludeThreadIDs),
		CreatedAfter:     q.CreatedAfter,
		CreatedBefore:    q.CreatedBefore,
		ActiveAfter:      q.ActiveAfter,
		ActiveBefore:     q.ActiveBefore,
		Reactions:        query.ParseRange(q.ReactionCountRange),
		Replies:          query.ParseRange(q.ReplyCountRange),
	}

	if err := f.compileTags(ctx, q, r); err != nil {
		return nil, err
	}
	if err := f.compileAuthors(ctx, q, r); err != nil {
		return nil, err
	}

	if q.CollectionUserID != 0 {
		ids, err := r.CollectionThreadIDs(ctx, q.CollectionUserID)
		if err != nil {
			return nil, fmt.Errorf("resolve collection: %w", err)
		}
		f.ThreadIDs = ids
		if len(ids) == 0 {
			f.Impossible = true
		}
	}

	if plan := keyword.Compile(seg, q.Keywords, q.ExcludeKeywords, q.ExemptionMarkers); !plan.Empty() {
		f.Keywords = plan
	}
	return f, nil
}

func (f *Filter) compileTags(ctx context.Context, q query.SearchQuery, r Resolver) error {
	names := append(slices.Clone(q.IncludeTags), q.ExcludeTags...)
	if len(names) == 0 {
		return nil
	}
	byName, err := r.TagIDsByName(ctx, names)
	if err != nil {
		return fmt.Errorf("resolve tags: %w", err)
	}

	// Names that resolve to no tag are skipped rather than failing the query.
	switch q.TagLogic {
	case query.TagOr:
		var all []int64
		for _, name := range q.IncludeTags {
			all = append(all, byName[name]...)
		}
		if len(all) > 0 {
			f.TagGroups = [][]int64{all}
		}
	default:
		for _, name := range q.IncludeTags {
			if ids := byName[name]; len(ids) > 0 {
				f.TagGroups = append(f.TagGroups, ids)
			}
		}
	}
	for _, name := range q.ExcludeTags {
		f.ExcludeTagIDs = append(f.ExcludeTagIDs, byName[name]...)
	}
	return nil
}

func (f *Filter) compileAuthors(ctx context.Context, q query.SearchQuery, r Resolver) error {
	if len(q.IncludeAuthors) > 0 {
		f.IncludeAuthors = slices.Clone(q.IncludeAuthors)
	}
	name := strings.TrimSpace(q.AuthorName)
	if name == "" {
		return nil
	}
	matched, err := r.AuthorIDsByName(ctx, name)
	if err != nil {
		return fmt.Errorf("resolve author %q: %w", name, err)
	}
	if f.IncludeAuthors != nil {
		f.IncludeAuthors = slices.DeleteFunc(f.IncludeAuthors, func(id int64) bool {
			return !slices.Contains(matched, id)
		})
	} else {
		f.IncludeAuthors = matched
	}
	if len(f.IncludeAuthors) == 0 {
		f.Impossible = true
	}
	return nil
}

// Match evaluates the filter against one thread.
func (f *Filter) Match(t *forum.Thread) bool {
	if f.Impossible || t.NotFoundCount > 0 {
		return false
	}
	if len(f.ChannelIDs) > 0 && !slices.Contains(f.ChannelIDs, t.ChannelID) {
		return false
	}
	for _, group := range f.TagGroups {
		if !t.HasTag(group) {
			return false
		}
	}
	if len(f.ExcludeTagIDs) > 0 && t.HasTag(f.ExcludeTagIDs) {
		return false
	}
	if f.IncludeAuthors != nil && !slices.Contains(f.IncludeAuthors, t.AuthorID) {
		return false
	}
	if slices.Contains(f.ExcludeAuthors, t.AuthorID) {
		return false
	}
	if f.ThreadIDs != nil && !slices.Contains(f.ThreadIDs, t.ID) {
		return false
	}
	if slices.Contains(f.ExcludeThreadIDs, t.ID) {
		return false
	}
	if !within(t.CreatedAt, f.CreatedAfter, f.CreatedBefore) || !within(t.LastActiveAt, f.ActiveAfter, f.ActiveBefore) {
		return false
	}
	if !f.Reactions.Contains(t.ReactionCount) || !f.Replies.Contains(t.ReplyCount) {
		return false
	}
	return f.Keywords.Match(t.Fields())
}

func within(v time.Time, after, before *time.Time) bool {
	if after != nil && v.Before(*after) {
		return false
	}
	if before != nil && v.After(*before) {
		return false
	}
	return true
}
