package rank

import (
	"cmp"
	"math"
	"slices"

	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/forum"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/query"
)

// Ranked is a thread with its comprehensive score. Score is zero for direct-field
// sorts.
type Ranked struct {
	forum.Thread
	Score float64 `json:"score,omitempty"`
}

// Score is the UCB1 value W*(x/n) + C*sqrt(ln(N)/n) with n and N floored to 1.
func Score(p *Params, reactions, displays int64) float64 {
	n := float64(max(1, displays))
	total := float64(max(1, p.TotalDisplayCount))
	return p.StrengthWeight*(float64(reactions)/n) + p.ExplorationFactor*math.Sqrt(math.Log(total)/n)
}

// Order sorts threads by method in the given direction. Ties fall back to thread id
// ascending so pages are deterministic.
func Order(threads []forum.Thread, method query.SortMethod, order query.SortOrder, p *Params) []Ranked {
	out := make([]Ranked, len(threads))
	for i, t := range threads {
		out[i] = Ranked{Thread: t}
		if method == query.SortComprehensive {
			out[i].Score = Score(p, t.ReactionCount, t.DisplayCount)
		}
	}

	key := compareBy(method)
	slices.SortStableFunc(out, func(a, b Ranked) int {
		c := key(a, b)
		if order == query.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func compareBy(method query.SortMethod) func(a, b Ranked) int {
	switch method {
	case query.SortCreatedAt:
		return func(a, b Ranked) int { return a.CreatedAt.Compare(b.CreatedAt) }
	case query.SortLastActiveAt:
		return func(a, b Ranked) int { return a.LastActiveAt.Compare(b.LastActiveAt) }
	case query.SortReactionCount:
		return func(a, b Ranked) int { return cmp.Compare(a.ReactionCount, b.ReactionCount) }
	case query.SortReplyCount:
		return func(a, b Ranked) int { return cmp.Compare(a.ReplyCount, b.ReplyCount) }
	default:
		return func(a, b Ranked) int { return cmp.Compare(a.Score, b.Score) }
	}
}

// Page clamps [offset, offset+limit) to a result of total items.
func Page(total, offset, limit int) (lo, hi int) {
	lo = min(max(offset, 0), total)
	hi = min(lo+max(limit, 0), total)
	return lo, hi
}
