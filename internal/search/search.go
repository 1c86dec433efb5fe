// Package search executes compiled filters against an index backend and pages the
// ranked result.
package search

import (
	"context"
	"errors"

	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/filter"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/query"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/rank"
)

// ErrNotExpressible is returned by a backend that cannot evaluate some part of a
// filter or sort. The facade then falls back to the primary backend.
var ErrNotExpressible = errors.New("query not expressible by backend")

// Sort is the resolved ranking for one call; custom mode has already been
// replaced by its base method.
type Sort struct {
	Method query.SortMethod
	Order  query.SortOrder
}

// Page is one window of an ordered match set. Total counts every match,
// independent of Offset and Limit.
type Page struct {
	Items  []rank.Ranked `json:"items"`
	Total  int           `json:"total"`
	Offset int           `json:"offset"`
	Limit  int           `json:"limit"`
}

// IDs returns the thread ids on the page in order.
func (p Page) IDs() []int64 {
	ids := make([]int64, len(p.Items))
	for i, item := range p.Items {
		ids[i] = item.ID
	}
	return ids
}

func emptyPage(offset, limit int) Page {
	return Page{Items: []rank.Ranked{}, Offset: offset, Limit: limit}
}

// Backend evaluates a filter over its view of the thread index. Total and Items
// must come from the same predicate and the same point-in-time view.
type Backend interface {
	Name() string
	Healthy() bool
	Search(ctx context.Context, f *filter.Filter, sort Sort, params *rank.Params, offset, limit int) (Page, error)
}
