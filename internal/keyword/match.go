package keyword

import "strings"

// Match evaluates the plan against a document given as token fields (title,
// excerpt, ...). Phrases and proximity never span two fields.
func (p *Plan) Match(fields [][]string) bool {
	if p.Empty() {
		return true
	}
	for _, group := range p.Include {
		if !anyTermMatches(group, fields) {
			return false
		}
	}
	for _, term := range p.Exclude {
		if p.excludes(term, fields) {
			return false
		}
	}
	return true
}

func anyTermMatches(terms []Term, fields [][]string) bool {
	for _, term := range terms {
		if termMatches(term, fields) {
			return true
		}
	}
	return false
}

func termMatches(term Term, fields [][]string) bool {
	for _, field := range fields {
		if len(Positions(field, term)) > 0 {
			return true
		}
	}
	return false
}

// scatteredMatch reports whether every token of term occurs somewhere in the
// document, in any field and any order. All tokens but the last must match
// exactly and the last as a prefix.
func scatteredMatch(term Term, fields [][]string) bool {
	for _, tok := range term.Scatter() {
		if !termMatches(tok, fields) {
			return false
		}
	}
	return true
}

func (p *Plan) excludes(term Term, fields [][]string) bool {
	matched := scatteredMatch(term, fields)
	if term.Exact {
		matched = termMatches(term, fields)
	}
	if !matched {
		return false
	}
	if len(p.Markers) == 0 {
		return true
	}
	anchor := term.Anchor()
	for _, field := range fields {
		anchors := Positions(field, anchor)
		if len(anchors) == 0 {
			continue
		}
		for _, marker := range p.Markers {
			if near(anchors, Positions(field, Term{Tokens: marker, Exact: true}), len(marker)) {
				return false
			}
		}
	}
	return true
}

// near reports whether some marker occurrence lies within NearGap tokens of some
// single-token anchor occurrence.
func near(anchors, markers []int, markerLen int) bool {
	for _, a := range anchors {
		for _, m := range markers {
			var gap int
			if m < a {
				gap = a - (m + markerLen)
			} else {
				gap = m - (a + 1)
			}
			if gap <= NearGap {
				return true
			}
		}
	}
	return false
}

// Positions returns every index in field where term starts.
func Positions(field []string, term Term) []int {
	n := len(term.Tokens)
	if n == 0 || len(field) < n {
		return nil
	}
	var out []int
	for i := 0; i+n <= len(field); i++ {
		if phraseAt(field[i:i+n], term) {
			out = append(out, i)
		}
	}
	return out
}

func phraseAt(window []string, term Term) bool {
	last := len(term.Tokens) - 1
	for j, tok := range term.Tokens {
		if j == last && !term.Exact {
			if !strings.HasPrefix(window[j], tok) {
				return false
			}
			continue
		}
		if window[j] != tok {
			return false
		}
	}
	return true
}
