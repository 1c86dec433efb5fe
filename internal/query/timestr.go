package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	absoluteDate = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	relativeDate = regexp.MustCompile(`(?i)^([+-]?)\s*(\d+)\s*(d|day|天|w|week|周|星期|y|year|年)$`)
)

// ParseTime reads a time bound. It accepts an absolute date (YYYY-MM-DD, UTC
// midnight) or an offset from now such as "-7d", "2周" or "+1y". Unsigned and
// negative offsets point into the past; only "+" points into the future. An empty
// string returns nil.
func ParseTime(s string, now time.Time) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	if m := absoluteDate.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		if t.Year() != year || int(t.Month()) != month || t.Day() != day {
			return nil, fmt.Errorf("invalid date %q", s)
		}
		return &t, nil
	}

	m := relativeDate.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("unrecognised time %q", s)
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, fmt.Errorf("invalid offset %q: %w", s, err)
	}
	if m[1] != "+" {
		n = -n
	}

	var t time.Time
	switch strings.ToLower(m[3]) {
	case "d", "day", "天":
		t = now.AddDate(0, 0, n)
	case "w", "week", "周", "星期":
		t = now.AddDate(0, 0, 7*n)
	default:
		// A year counts as 365 days.
		t = now.AddDate(0, 0, 365*n)
	}
	return &t, nil
}
