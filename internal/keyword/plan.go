package keyword

import (
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/segment"
)

// NearGap is the largest number of tokens allowed between an exemption marker and
// the first token of an excluded term.
const NearGap = 4

// Term is a segmented term. Exact terms match their tokens as a phrase; prefix
// terms match the same phrase except that the last token only needs to be a
// prefix of the document token.
type Term struct {
	Tokens []string
	Exact  bool
}

// Anchor returns the single-token term used for exemption proximity checks. For
// a one-token prefix term the anchor keeps prefix matching.
func (t Term) Anchor() Term {
	return Term{Tokens: t.Tokens[:1], Exact: t.Exact || len(t.Tokens) > 1}
}

// Scatter splits t into single-token terms: exact for every token but the last,
// which keeps t's prefix matching.
func (t Term) Scatter() []Term {
	out := make([]Term, len(t.Tokens))
	last := len(t.Tokens) - 1
	for i, tok := range t.Tokens {
		out[i] = Term{Tokens: []string{tok}, Exact: t.Exact || i < last}
	}
	return out
}

// Plan is a compiled keyword constraint. A nil or empty Plan matches everything.
type Plan struct {
	// Include holds AND-groups of OR-terms.
	Include [][]Term
	// Exclude holds terms any one of which removes a document, unless an
	// exemption marker sits near it. Quoted exclude terms match as a phrase;
	// unquoted ones match when each of their tokens occurs anywhere.
	Exclude []Term
	// Markers holds the segmented exemption markers.
	Markers [][]string
}

// Compile segments both expressions and the exemption markers. It never fails:
// terms that segment to nothing are dropped, and blank expressions compile to no
// constraint.
func Compile(seg segment.Segmenter, include, exclude string, markers []string) *Plan {
	p := &Plan{}
	for _, group := range ParseInclude(include) {
		var terms []Term
		for _, raw := range group {
			if term, ok := segmentTerm(seg, raw); ok {
				terms = append(terms, term)
			}
		}
		if len(terms) > 0 {
			p.Include = append(p.Include, terms)
		}
	}
	for _, raw := range ParseExclude(exclude) {
		if term, ok := segmentTerm(seg, raw); ok {
			p.Exclude = append(p.Exclude, term)
		}
	}
	if len(p.Exclude) > 0 {
		for _, marker := range markers {
			if tokens := segment.Tokens(seg, marker); len(tokens) > 0 {
				p.Markers = append(p.Markers, tokens)
			}
		}
	}
	return p
}

func segmentTerm(seg segment.Segmenter, raw RawTerm) (Term, bool) {
	tokens := segment.Tokens(seg, raw.Text)
	if len(tokens) == 0 {
		return Term{}, false
	}
	return Term{Tokens: tokens, Exact: raw.Exact}, true
}

// Empty reports whether the plan constrains nothing.
func (p *Plan) Empty() bool {
	return p == nil || len(p.Include) == 0 && len(p.Exclude) == 0
}
