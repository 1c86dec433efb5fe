// Package query defines the caller-supplied search request and the small string
// grammars (numeric ranges, time bounds) it carries.
package query

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type SortMethod string

const (
	SortComprehensive SortMethod = "comprehensive"
	SortCreatedAt     SortMethod = "created_at"
	SortLastActiveAt  SortMethod = "last_active_at"
	SortReactionCount SortMethod = "reaction_count"
	SortReplyCount    SortMethod = "reply_count"
	SortCustom        SortMethod = "custom"
)

// Base reports whether m is a ranking style on its own, i.e. anything but custom.
func (m SortMethod) Base() bool {
	switch m {
	case SortComprehensive, SortCreatedAt, SortLastActiveAt, SortReactionCount, SortReplyCount:
		return true
	}
	return false
}

type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

type TagLogic string

const (
	TagAnd TagLogic = "and"
	TagOr  TagLogic = "or"
)

var (
	ErrInvalidSortMethod = errors.New("invalid sort method")
	ErrInvalidSortOrder  = errors.New("invalid sort order")
	ErrInvalidTagLogic   = errors.New("invalid tag logic")
	ErrCustomBaseSort    = errors.New("custom sort requires a non-custom base sort")
)

// DefaultExemptionMarkers apply when a caller leaves the exemption list unset.
var DefaultExemptionMarkers = []string{"禁", "🈲"}

// SearchQuery is the full set of constraints for one search call. It is treated as
// an immutable value: helpers return modified copies.
type SearchQuery struct {
	ChannelIDs []int64

	IncludeTags []string
	ExcludeTags []string
	TagLogic    TagLogic

	IncludeAuthors []int64
	ExcludeAuthors []int64
	AuthorName     string

	Keywords         string
	ExcludeKeywords  string
	ExemptionMarkers []string

	ReactionCountRange string
	ReplyCountRange    string

	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	ActiveAfter   *time.Time
	ActiveBefore  *time.Time

	SortMethod     SortMethod
	SortOrder      SortOrder
	CustomBaseSort SortMethod

	ExcludeThreadIDs []int64

	// CollectionUserID restricts candidates to one user's collected threads.
	CollectionUserID int64
}

// New fills defaults into q and validates it. Every query entering the search
// core goes through New so configuration errors surface before any work starts.
func New(q SearchQuery) (SearchQuery, error) {
	q = q.withDefaults()
	if err := q.Validate(); err != nil {
		return SearchQuery{}, err
	}
	return q, nil
}

func (q SearchQuery) withDefaults() SearchQuery {
	if q.TagLogic == "" {
		q.TagLogic = TagAnd
	}
	if q.SortMethod == "" {
		q.SortMethod = SortComprehensive
	}
	if q.SortOrder == "" {
		q.SortOrder = Desc
	}
	return q
}

// Validate checks the enumerations and the custom-sort contract.
func (q SearchQuery) Validate() error {
	switch q.TagLogic {
	case TagAnd, TagOr:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidTagLogic, q.TagLogic)
	}
	switch q.SortOrder {
	case Asc, Desc:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSortOrder, q.SortOrder)
	}
	if q.SortMethod == SortCustom {
		if !q.CustomBaseSort.Base() {
			return fmt.Errorf("%w: got %q", ErrCustomBaseSort, q.CustomBaseSort)
		}
		return nil
	}
	if !q.SortMethod.Base() {
		return fmt.Errorf("%w: %q", ErrInvalidSortMethod, q.SortMethod)
	}
	return nil
}

// EffectiveSort resolves custom mode to its base ranking.
func (q SearchQuery) EffectiveSort() SortMethod {
	if q.SortMethod == SortCustom {
		return q.CustomBaseSort
	}
	return q.SortMethod
}

// ParseSortMethod accepts the wire names of the sort methods.
func ParseSortMethod(s string) (SortMethod, error) {
	m := SortMethod(strings.ToLower(strings.TrimSpace(s)))
	if m == SortCustom || m.Base() {
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSortMethod, s)
}

// ParseSortOrder accepts "asc" or "desc" in any case.
func ParseSortOrder(s string) (SortOrder, error) {
	o := SortOrder(strings.ToLower(strings.TrimSpace(s)))
	switch o {
	case Asc, Desc:
		return o, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSortOrder, s)
}

// ParseTagLogic accepts "and" or "or" in any case.
func ParseTagLogic(s string) (TagLogic, error) {
	l := TagLogic(strings.ToLower(strings.TrimSpace(s)))
	switch l {
	case TagAnd, TagOr:
		return l, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTagLogic, s)
}
