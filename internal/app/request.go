package app

import (
	"slices"
	"strings"
	"time"

	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/query"
)

type searchRequest struct {
	ChannelIDs       []int64 `json:"channelIds"`
	AuthorID         *int64  `json:"authorId"`
	CollectionUserID *int64  `json:"collectionUserId"`

	IncludeTags []string `json:"includeTags"`
	ExcludeTags []string `json:"excludeTags"`
	TagLogic    string   `json:"tagLogic"`

	IncludeAuthors []int64 `json:"includeAuthors"`
	ExcludeAuthors []int64 `json:"excludeAuthors"`
	AuthorName     string  `json:"authorName"`

	Keywords        string `json:"keywords"`
	ExcludeKeywords string `json:"excludeKeywords"`
	// Absent or null means the default markers; an empty list disables exemption.
	ExemptionMarkers *[]string `json:"exemptionMarkers"`

	ReactionCountRange string `json:"reactionCountRange"`
	ReplyCountRange    string `json:"replyCountRange"`

	CreatedAfter  string `json:"createdAfter"`
	CreatedBefore string `json:"createdBefore"`
	ActiveAfter   string `json:"activeAfter"`
	ActiveBefore  string `json:"activeBefore"`

	SortMethod     string `json:"sortMethod"`
	SortOrder      string `json:"sortOrder"`
	CustomBaseSort string `json:"customBaseSort"`

	ExcludeThreadIDs []int64 `json:"excludeThreadIds"`

	Offset int `json:"offset"`
	Limit  int `json:"limit"`

	RecordImpressions *bool `json:"recordImpressions"`
}

func (r searchRequest) scope() Scope {
	return Scope{ChannelIDs: r.ChannelIDs, AuthorID: r.AuthorID, CollectionUserID: r.CollectionUserID}
}

func (r searchRequest) record() bool {
	return r.RecordImpressions == nil || *r.RecordImpressions
}

// toQuery converts the request into a validated SearchQuery. Time strings are
// resolved against now.
func (r searchRequest) toQuery(now time.Time) (query.SearchQuery, error) {
	q := query.SearchQuery{
		ChannelIDs:         r.ChannelIDs,
		IncludeTags:        r.IncludeTags,
		ExcludeTags:        r.ExcludeTags,
		IncludeAuthors:     r.IncludeAuthors,
		ExcludeAuthors:     r.ExcludeAuthors,
		AuthorName:         r.AuthorName,
		Keywords:           r.Keywords,
		ExcludeKeywords:    r.ExcludeKeywords,
		ExemptionMarkers:   slices.Clone(query.DefaultExemptionMarkers),
		ReactionCountRange: r.ReactionCountRange,
		ReplyCountRange:    r.ReplyCountRange,
		ExcludeThreadIDs:   r.ExcludeThreadIDs,
	}
	if r.ExemptionMarkers != nil {
		q.ExemptionMarkers = *r.ExemptionMarkers
	}

	bounds := []struct {
		field string
		value string
		dst   **time.Time
	}{
		{"createdAfter", r.CreatedAfter, &q.CreatedAfter},
		{"createdBefore", r.CreatedBefore, &q.CreatedBefore},
		{"activeAfter", r.ActiveAfter, &q.ActiveAfter},
		{"activeBefore", r.ActiveBefore, &q.ActiveBefore},
	}
	for _, b := range bounds {
		t, err := query.ParseTime(b.value, now)
		if err != nil {
			return query.SearchQuery{}, validationError(b.field, err.Error())
		}
		*b.dst = t
	}

	if s := strings.TrimSpace(r.TagLogic); s != "" {
		l, err := query.ParseTagLogic(s)
		if err != nil {
			return query.SearchQuery{}, validationError("tagLogic", err.Error())
		}
		q.TagLogic = l
	}
	if s := strings.TrimSpace(r.SortOrder); s != "" {
		o, err := query.ParseSortOrder(s)
		if err != nil {
			return query.SearchQuery{}, validationError("sortOrder", err.Error())
		}
		q.SortOrder = o
	}
	if s := strings.TrimSpace(r.SortMethod); s != "" {
		m, err := query.ParseSortMethod(s)
		if err != nil {
			return query.SearchQuery{}, validationError("sortMethod", err.Error())
		}
		q.SortMethod = m
	}
	if s := strings.TrimSpace(r.CustomBaseSort); s != "" {
		m, err := query.ParseSortMethod(s)
		if err != nil {
			return query.SearchQuery{}, validationError("customBaseSort", err.Error())
		}
		q.CustomBaseSort = m
	}
	return query.New(q)
}
