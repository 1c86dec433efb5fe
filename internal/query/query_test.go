package query

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		in      string
		min     int64
		max     int64
		minOp   string
		maxOp   string
		invalid bool
	}{
		{in: "[0, 100)", min: 0, max: 100, minOp: ">=", maxOp: "<"},
		{in: "(5,10]", min: 5, max: 10, minOp: ">", maxOp: "<="},
		{in: "  [ -3 , 3 ]  ", min: -3, max: 3, minOp: ">=", maxOp: "<="},
		{in: "【10，20）", min: 10, max: 20, minOp: ">=", maxOp: "<"},
		{in: "abc", invalid: true},
		{in: "", invalid: true},
		{in: "[1.5, 3)", invalid: true},
		{in: "[10, 5]", invalid: true},
		{in: "0, 100", invalid: true},
		{in: "[0, 99999999999999999999)", invalid: true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			r := ParseRange(tc.in)
			if tc.invalid {
				assert.False(t, r.Valid())
				assert.Nil(t, r.Min)
				assert.Nil(t, r.Max)
				assert.Empty(t, r.MinOp)
				assert.Empty(t, r.MaxOp)
				return
			}
			require.True(t, r.Valid())
			assert.Equal(t, tc.min, *r.Min)
			assert.Equal(t, tc.max, *r.Max)
			assert.Equal(t, tc.minOp, r.MinOp)
			assert.Equal(t, tc.maxOp, r.MaxOp)
		})
	}
}

func TestRangeContains(t *testing.T) {
	halfOpen := ParseRange("[0, 100)")
	assert.True(t, halfOpen.Contains(0))
	assert.True(t, halfOpen.Contains(99))
	assert.False(t, halfOpen.Contains(100))
	assert.False(t, halfOpen.Contains(-1))

	leftOpen := ParseRange("(5,10]")
	assert.False(t, leftOpen.Contains(5))
	assert.True(t, leftOpen.Contains(10))

	assert.True(t, Range{}.Contains(-42), "zero range imposes no constraint")
}

func TestNewAppliesDefaults(t *testing.T) {
	q, err := New(SearchQuery{})
	require.NoError(t, err)
	assert.Equal(t, TagAnd, q.TagLogic)
	assert.Equal(t, SortComprehensive, q.SortMethod)
	assert.Equal(t, Desc, q.SortOrder)
	assert.Equal(t, SortComprehensive, q.EffectiveSort())
}

func TestNewRejectsBadQueries(t *testing.T) {
	tests := []struct {
		name string
		q    SearchQuery
		want error
	}{
		{"custom without base", SearchQuery{SortMethod: SortCustom}, ErrCustomBaseSort},
		{"custom on custom", SearchQuery{SortMethod: SortCustom, CustomBaseSort: SortCustom}, ErrCustomBaseSort},
		{"unknown sort", SearchQuery{SortMethod: "hot"}, ErrInvalidSortMethod},
		{"unknown order", SearchQuery{SortOrder: "sideways"}, ErrInvalidSortOrder},
		{"unknown tag logic", SearchQuery{TagLogic: "xor"}, ErrInvalidTagLogic},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.q)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestCustomSortResolvesBase(t *testing.T) {
	q, err := New(SearchQuery{SortMethod: SortCustom, CustomBaseSort: SortReplyCount})
	require.NoError(t, err)
	assert.Equal(t, SortReplyCount, q.EffectiveSort())
}

func TestParseSortMethod(t *testing.T) {
	m, err := ParseSortMethod(" Reaction_Count ")
	require.NoError(t, err)
	assert.Equal(t, SortReactionCount, m)

	_, err = ParseSortMethod("random")
	assert.ErrorIs(t, err, ErrInvalidSortMethod)
}

func TestParseSortOrderAndTagLogic(t *testing.T) {
	o, err := ParseSortOrder("ASC")
	require.NoError(t, err)
	assert.Equal(t, Asc, o)
	_, err = ParseSortOrder("sideways")
	assert.ErrorIs(t, err, ErrInvalidSortOrder)

	l, err := ParseTagLogic(" Or")
	require.NoError(t, err)
	assert.Equal(t, TagOr, l)
	_, err = ParseTagLogic("xor")
	assert.ErrorIs(t, err, ErrInvalidTagLogic)
}

func TestParseTime(t *testing.T) {
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

	got, err := ParseTime("", now)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ParseTime("2024-02-29", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), *got)

	got, err = ParseTime("-7d", now)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, -7), *got)

	got, err = ParseTime("2周", now)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, -14), *got)

	got, err = ParseTime("+1y", now)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, 365), *got)

	_, err = ParseTime("2023-02-30", now)
	assert.Error(t, err)

	_, err = ParseTime("yesterday", now)
	assert.Error(t, err)
}
