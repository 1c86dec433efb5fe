package search

import (
	"context"
	"slices"

	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/query"
)

// TagSource lists tag names for the different search entry points.
type TagSource interface {
	TagsForChannels(ctx context.Context, channelIDs []int64) ([]string, error)
	TagsForAuthor(ctx context.Context, authorID int64) ([]string, error)
	TagsForCollection(ctx context.Context, userID int64) ([]string, error)
}

// Strategy is one search entry point. It decides which tags a caller may pick
// from and how the caller's query is narrowed before it runs.
type Strategy interface {
	AvailableTags(ctx context.Context) ([]string, error)
	Modify(q query.SearchQuery) query.SearchQuery
}

// DefaultStrategy searches the given channels, or everything when none are set.
type DefaultStrategy struct {
	Tags       TagSource
	ChannelIDs []int64
}

func (s DefaultStrategy) AvailableTags(ctx context.Context) ([]string, error) {
	return s.Tags.TagsForChannels(ctx, s.ChannelIDs)
}

func (s DefaultStrategy) Modify(q query.SearchQuery) query.SearchQuery {
	if len(s.ChannelIDs) > 0 {
		q.ChannelIDs = slices.Clone(s.ChannelIDs)
	}
	return q
}

// AuthorStrategy searches one author's threads.
type AuthorStrategy struct {
	Tags     TagSource
	AuthorID int64
}

func (s AuthorStrategy) AvailableTags(ctx context.Context) ([]string, error) {
	return s.Tags.TagsForAuthor(ctx, s.AuthorID)
}

func (s AuthorStrategy) Modify(q query.SearchQuery) query.SearchQuery {
	q.IncludeAuthors = []int64{s.AuthorID}
	return q
}

// CollectionStrategy searches the threads a user has collected.
type CollectionStrategy struct {
	Tags   TagSource
	UserID int64
}

func (s CollectionStrategy) AvailableTags(ctx context.Context) ([]string, error) {
	return s.Tags.TagsForCollection(ctx, s.UserID)
}

func (s CollectionStrategy) Modify(q query.SearchQuery) query.SearchQuery {
	q.CollectionUserID = s.UserID
	return q
}
