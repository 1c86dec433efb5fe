// Package forum holds the indexed forum records shared by the search core.
package forum

import (
	"time"

	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/segment"
)

// Thread is one indexed forum thread. Everything except DisplayCount is owned by
// the indexing collaborator; DisplayCount is advanced by impression commits.
type Thread struct {
	ID            int64     `json:"threadId"`
	ChannelID     int64     `json:"channelId"`
	Title         string    `json:"title"`
	AuthorID      int64     `json:"authorId"`
	CreatedAt     time.Time `json:"createdAt"`
	LastActiveAt  time.Time `json:"lastActiveAt"`
	ReactionCount int64     `json:"reactionCount"`
	ReplyCount    int64     `json:"replyCount"`
	DisplayCount  int64     `json:"displayCount"`
	Excerpt       string    `json:"excerpt"`
	ThumbnailURL  string    `json:"thumbnailUrl,omitempty"`
	NotFoundCount int       `json:"-"`
	Tags          []Tag     `json:"tags"`

	TitleTokens   []string `json:"-"`
	ExcerptTokens []string `json:"-"`
}

// Tag is a channel-scoped tag. The same name may exist in several channels.
type Tag struct {
	ID        int64  `json:"id"`
	ChannelID int64  `json:"channelId"`
	Name      string `json:"name"`
}

// Author identifies a thread author under the names the platform exposes.
type Author struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	GlobalName  string `json:"globalName"`
	DisplayName string `json:"displayName"`
}

// Tokenize fills the token fields from Title and Excerpt.
func (t *Thread) Tokenize(seg segment.Segmenter) {
	t.TitleTokens = segment.Tokens(seg, t.Title)
	t.ExcerptTokens = segment.Tokens(seg, t.Excerpt)
}

// Fields returns the token fields in match order.
func (t *Thread) Fields() [][]string {
	return [][]string{t.TitleTokens, t.ExcerptTokens}
}

// HasTag reports whether any of the thread's tags has one of ids.
func (t *Thread) HasTag(ids []int64) bool {
	for _, tag := range t.Tags {
		for _, id := range ids {
			if tag.ID == id {
				return true
			}
		}
	}
	return false
}

// Normalize applies write-time defaults: LastActiveAt falls back to CreatedAt and
// counters never go negative.
func (t *Thread) Normalize() {
	if t.LastActiveAt.IsZero() {
		t.LastActiveAt = t.CreatedAt
	}
	if t.DisplayCount < 0 {
		t.DisplayCount = 0
	}
	if t.ReactionCount < 0 {
		t.ReactionCount = 0
	}
	if t.ReplyCount < 0 {
		t.ReplyCount = 0
	}
}
