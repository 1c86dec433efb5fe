// Package segment splits forum text into word tokens for keyword matching.
package segment

import (
	"fmt"
	"strings"
	"unicode"
)

// Segmenter cuts text into word-sized pieces. Implementations must be safe for
// concurrent use.
type Segmenter interface {
	Cut(text string) []string
}

// New returns the segmenter registered under name.
func New(name string) (Segmenter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "gse":
		return NewGse()
	case "unigram":
		return Unigram{}, nil
	default:
		return nil, fmt.Errorf("unknown segmenter %q", name)
	}
}

// Tokens cuts text with seg and normalises the pieces: surrounding whitespace and
// punctuation are stripped, Latin letters are lower-cased, and empty pieces are
// dropped. Indexing and query compilation both go through Tokens so that the two
// sides always agree on token boundaries.
func Tokens(seg Segmenter, text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	raw := seg.Cut(text)
	out := make([]string, 0, len(raw))
	for _, piece := range raw {
		tok := strings.ToLower(strings.TrimFunc(piece, isSeparator))
		if tok == "" {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r)
}

// Unigram is a dictionary-free segmenter. Every CJK rune becomes its own token,
// runs of letters and digits form one token, and any other visible rune (emoji,
// symbols) stands alone.
type Unigram struct{}

func (Unigram) Cut(text string) []string {
	var (
		out  []string
		word strings.Builder
	)
	flush := func() {
		if word.Len() > 0 {
			out = append(out, word.String())
			word.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case isCJK(r):
			flush()
			out = append(out, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r):
			word.WriteRune(r)
		default:
			flush()
			out = append(out, string(r))
		}
	}
	flush()
	return out
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}
