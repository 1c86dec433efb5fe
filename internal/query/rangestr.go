package query

import (
	"regexp"
	"strconv"
	"strings"
)

var rangePattern = regexp.MustCompile(`^([(\[])\s*(-?\d+)\s*,\s*(-?\d+)\s*([)\]])$`)

var fullWidth = strings.NewReplacer("，", ",", "（", "(", "）", ")", "【", "[", "】", "]")

// Range is a parsed interval such as "[0, 100)". The zero value means "no constraint".
type Range struct {
	Min   *int64
	Max   *int64
	MinOp string // ">=" or ">"
	MaxOp string // "<=" or "<"
}

// ParseRange parses mathematical interval notation with integer bounds. Anything
// that does not parse, including an interval whose lower bound exceeds its upper
// bound, yields the zero Range.
func ParseRange(s string) Range {
	s = fullWidth.Replace(strings.TrimSpace(s))
	m := rangePattern.FindStringSubmatch(s)
	if m == nil {
		return Range{}
	}
	lo, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return Range{}
	}
	hi, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return Range{}
	}
	if lo > hi {
		return Range{}
	}

	r := Range{Min: &lo, Max: &hi, MinOp: ">", MaxOp: "<"}
	if m[1] == "[" {
		r.MinOp = ">="
	}
	if m[4] == "]" {
		r.MaxOp = "<="
	}
	return r
}

// Valid reports whether the range constrains anything.
func (r Range) Valid() bool {
	return r.Min != nil && r.Max != nil
}

// Contains reports whether v lies inside the range. An invalid range contains everything.
func (r Range) Contains(v int64) bool {
	if !r.Valid() {
		return true
	}
	if r.MinOp == ">=" && v < *r.Min || r.MinOp == ">" && v <= *r.Min {
		return false
	}
	if r.MaxOp == "<=" && v > *r.Max || r.MaxOp == "<" && v >= *r.Max {
		return false
	}
	return true
}
