package keyword

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/segment"
)

var seg = segment.Unigram{}

func TestParseInclude(t *testing.T) {
	groups := ParseInclude(`百合, "纯爱小说"/推荐 ，, 甜文／`)
	assert.Equal(t, [][]RawTerm{
		{{Text: "百合"}},
		{{Text: "纯爱小说", Exact: true}, {Text: "推荐"}},
		{{Text: "甜文"}},
	}, groups)

	assert.Empty(t, ParseInclude(""))
	assert.Empty(t, ParseInclude(" , / ,"))
}

func TestParseIncludeKeepsSeparatorsInsideQuotes(t *testing.T) {
	groups := ParseInclude(`"a,b/c", d`)
	assert.Equal(t, [][]RawTerm{
		{{Text: "a,b/c", Exact: true}},
		{{Text: "d"}},
	}, groups)
}

func TestParseExclude(t *testing.T) {
	terms := ParseExclude("百合破坏 小说，虐/ \"be 结局\"")
	assert.Equal(t, []RawTerm{
		{Text: "百合破坏"},
		{Text: "小说"},
		{Text: "虐"},
		{Text: "be 结局", Exact: true},
	}, terms)
}

func TestEmptyExpressionsCompileToNoConstraint(t *testing.T) {
	p := Compile(seg, "   ", "", []string{"禁"})
	assert.True(t, p.Empty())
	assert.True(t, p.Match(nil))
	assert.Empty(t, p.Markers, "markers are irrelevant without exclude terms")
}

func TestPrefixAndExactTerms(t *testing.T) {
	doc := [][]string{segment.Tokens(seg, "Golang generics tutorial"), nil}

	assert.True(t, Compile(seg, "gen", "", nil).Match(doc))
	assert.False(t, Compile(seg, `"gen"`, "", nil).Match(doc))
	assert.True(t, Compile(seg, `"generics"`, "", nil).Match(doc))
	assert.True(t, Compile(seg, "golang gener", "", nil).Match(doc), "leading tokens exact, last token prefix")
	assert.False(t, Compile(seg, "gola generics", "", nil).Match(doc), "only the last token may be a prefix")
	assert.False(t, Compile(seg, "generics golang", "", nil).Match(doc), "tokens must be consecutive")
}

func TestIncludeGroupsAndAlternatives(t *testing.T) {
	doc := [][]string{segment.Tokens(seg, "纯爱小说分享"), segment.Tokens(seg, "甜文推荐")}

	assert.True(t, Compile(seg, "纯爱, 推荐", "", nil).Match(doc), "groups may match different fields")
	assert.True(t, Compile(seg, "百合/纯爱", "", nil).Match(doc))
	assert.False(t, Compile(seg, "百合/悬疑, 推荐", "", nil).Match(doc))
}

type titled struct {
	name  string
	title string
}

var corpus = []titled{
	{"T1", "关于百合破坏的讨论"},
	{"T2", "🈲百合破坏"},
	{"T3", "小说推荐"},
	{"T4", "禁：请勿讨论百合破坏话题"},
	{"T5", "纯爱小说分享"},
}

func survivors(s segment.Segmenter, p *Plan) []string {
	var out []string
	for _, doc := range corpus {
		if p.Match([][]string{segment.Tokens(s, doc.title)}) {
			out = append(out, doc.name)
		}
	}
	sort.Strings(out)
	return out
}

var (
	gseOnce sync.Once
	gseSeg  *segment.Gse
	gseErr  error
)

// segmenters returns the segmenters the corpus tests run against. The gse
// dictionary is loaded once and skipped in short mode.
func segmenters(t *testing.T) map[string]segment.Segmenter {
	t.Helper()
	out := map[string]segment.Segmenter{"unigram": seg}
	if testing.Short() {
		return out
	}
	gseOnce.Do(func() { gseSeg, gseErr = segment.NewGse() })
	require.NoError(t, gseErr)
	out["gse"] = gseSeg
	return out
}

func TestExclusionWithExemptionMarkers(t *testing.T) {
	markers := []string{"禁", "🈲"}

	for name, s := range segmenters(t) {
		for _, term := range []string{"百合破坏", "百合破", "百合"} {
			t.Run(name+"/"+term, func(t *testing.T) {
				got := survivors(s, Compile(s, "", term, markers))
				assert.Equal(t, []string{"T2", "T3", "T4", "T5"}, got)
			})
		}
	}
}

func TestExclusionWithoutMarkersIsUnconditional(t *testing.T) {
	for name, s := range segmenters(t) {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, []string{"T3", "T5"}, survivors(s, Compile(s, "", "百合破坏", nil)))
			assert.Equal(t, []string{"T3", "T5"}, survivors(s, Compile(s, "", "百合破坏", []string{})))
		})
	}
}

func TestExclusionTermsAreOred(t *testing.T) {
	for name, s := range segmenters(t) {
		t.Run(name, func(t *testing.T) {
			assert.Empty(t, survivors(s, Compile(s, "", "百合破坏 小说", nil)))
		})
	}
}

func TestUnquotedExcludeTokensMatchAnywhere(t *testing.T) {
	scattered := [][]string{segment.Tokens(seg, "百合作品被破坏")}

	assert.False(t, Compile(seg, "", "百合破坏", nil).Match(scattered), "tokens need not be adjacent")
	assert.False(t, Compile(seg, "", "百合破", nil).Match(scattered), "last token matches as a prefix")
	assert.True(t, Compile(seg, "", `"百合破坏"`, nil).Match(scattered), "quoted terms stay phrases")
	assert.True(t, Compile(seg, "百合破坏", "", nil).Match([][]string{segment.Tokens(seg, "百合破坏")}))
	assert.False(t, Compile(seg, "百合破坏", "", nil).Match(scattered), "include terms stay phrases")

	split := [][]string{segment.Tokens(seg, "百合作品"), segment.Tokens(seg, "已被破坏")}
	assert.False(t, Compile(seg, "", "百合破坏", nil).Match(split), "tokens may sit in different fields")
	assert.True(t, Compile(seg, "", "百合破坏", []string{"禁"}).Match([][]string{segment.Tokens(seg, "禁百合作品被破坏")}))
}

func TestScatter(t *testing.T) {
	assert.Equal(t, []Term{
		{Tokens: []string{"百合"}, Exact: true},
		{Tokens: []string{"破"}},
	}, Term{Tokens: []string{"百合", "破"}}.Scatter())
	assert.Equal(t, []Term{
		{Tokens: []string{"a"}, Exact: true},
		{Tokens: []string{"b"}, Exact: true},
	}, Term{Tokens: []string{"a", "b"}, Exact: true}.Scatter())
}

func TestMarkerBeyondGapDoesNotExempt(t *testing.T) {
	p := Compile(seg, "", "百合", []string{"禁"})

	// Four tokens between marker and anchor: exempt.
	assert.True(t, p.Match([][]string{segment.Tokens(seg, "禁一二三四百合")}))
	// Five tokens between: excluded.
	assert.False(t, p.Match([][]string{segment.Tokens(seg, "禁一二三四五百合")}))
	// Marker after the anchor counts too.
	assert.True(t, p.Match([][]string{segment.Tokens(seg, "百合一二禁")}))
	// Marker in another field does not exempt.
	assert.False(t, p.Match([][]string{segment.Tokens(seg, "百合"), segment.Tokens(seg, "禁")}))
}

func TestPositions(t *testing.T) {
	field := []string{"a", "bc", "a", "bd"}
	assert.Equal(t, []int{0, 2}, Positions(field, Term{Tokens: []string{"a", "b"}}))
	assert.Equal(t, []int{2}, Positions(field, Term{Tokens: []string{"a", "bd"}, Exact: true}))
	assert.Nil(t, Positions(field, Term{Tokens: []string{"a", "bc", "a", "bd", "x"}}))
}
