// Package keyword compiles the include/exclude keyword expressions produced by the
// search UI into token match plans.
//
// Include grammar: comma-separated groups are ANDed, slash-separated terms inside a
// group are ORed. A term wrapped in double quotes is an exact phrase; any other
// term is a prefix term whose last token may be the prefix of a word.
//
// Exclude grammar: every term separated by a comma, slash or whitespace is
// excluded on its own (the terms are ORed). Quotes work the same way.
package keyword

import (
	"strings"
	"unicode"
)

// RawTerm is one unsegmented term from an expression.
type RawTerm struct {
	Text  string
	Exact bool
}

var fullWidth = strings.NewReplacer("，", ",", "／", "/")

// ParseInclude splits an include expression into AND-groups of OR-terms. Empty
// groups and empty terms are dropped.
func ParseInclude(expr string) [][]RawTerm {
	expr = fullWidth.Replace(expr)
	var groups [][]RawTerm
	for _, group := range splitOutsideQuotes(expr, func(r rune) bool { return r == ',' }) {
		var terms []RawTerm
		for _, part := range splitOutsideQuotes(group, func(r rune) bool { return r == '/' }) {
			if term, ok := rawTerm(part); ok {
				terms = append(terms, term)
			}
		}
		if len(terms) > 0 {
			groups = append(groups, terms)
		}
	}
	return groups
}

// ParseExclude splits an exclude expression into independent terms.
func ParseExclude(expr string) []RawTerm {
	expr = fullWidth.Replace(expr)
	var terms []RawTerm
	sep := func(r rune) bool { return r == ',' || r == '/' || unicode.IsSpace(r) }
	for _, part := range splitOutsideQuotes(expr, sep) {
		if term, ok := rawTerm(part); ok {
			terms = append(terms, term)
		}
	}
	return terms
}

func rawTerm(s string) (RawTerm, bool) {
	s = strings.TrimSpace(s)
	if len(s) > 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		inner := strings.TrimSpace(s[1 : len(s)-1])
		if inner == "" {
			return RawTerm{}, false
		}
		return RawTerm{Text: inner, Exact: true}, true
	}
	if s == "" {
		return RawTerm{}, false
	}
	return RawTerm{Text: s}, true
}

func splitOutsideQuotes(s string, isSep func(rune) bool) []string {
	var (
		parts   []string
		current strings.Builder
		quoted  bool
	)
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			current.WriteRune(r)
		case !quoted && isSep(r):
			parts = append(parts, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	return append(parts, current.String())
}
