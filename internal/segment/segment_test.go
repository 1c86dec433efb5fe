package segment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnigramCut(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"han runes split", "百合破坏", []string{"百", "合", "破", "坏"}},
		{"emoji stands alone", "🈲百合", []string{"🈲", "百", "合"}},
		{"latin run kept together", "Go语言 v2", []string{"Go", "语", "言", "v2"}},
		{"punctuation emitted", "禁：请", []string{"禁", "：", "请"}},
		{"empty", "", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Unigram{}.Cut(tc.in))
		})
	}
}

func TestTokensNormalises(t *testing.T) {
	got := Tokens(Unigram{}, "禁：请勿讨论 ABC!")
	assert.Equal(t, []string{"禁", "请", "勿", "讨", "论", "abc"}, got)

	assert.Nil(t, Tokens(Unigram{}, "   "))
}

func TestNewRejectsUnknownSegmenter(t *testing.T) {
	_, err := New("whitespace")
	require.Error(t, err)

	seg, err := New("unigram")
	require.NoError(t, err)
	assert.IsType(t, Unigram{}, seg)
}

func TestGsePartitionsInput(t *testing.T) {
	if testing.Short() {
		t.Skip("loading the gse dictionary is slow")
	}
	seg, err := NewGse()
	require.NoError(t, err)

	tokens := Tokens(seg, "关于百合破坏的讨论")
	require.NotEmpty(t, tokens)
	assert.Equal(t, "关于百合破坏的讨论", strings.Join(tokens, ""))
}
