package segment

import (
	"fmt"

	"github.com/go-ego/gse"
)

// Gse segments Chinese text with the dictionary embedded in go-ego/gse.
type Gse struct {
	seg gse.Segmenter
}

// NewGse loads the embedded simplified-Chinese dictionary. Loading takes a moment,
// so one instance should be shared for the life of the process.
func NewGse() (*Gse, error) {
	g := &Gse{}
	g.seg.SkipLog = true
	if err := g.seg.LoadDictEmbed(); err != nil {
		return nil, fmt.Errorf("load gse dictionary: %w", err)
	}
	return g, nil
}

// Cut splits text using the dictionary plus the HMM model for unknown words.
func (g *Gse) Cut(text string) []string {
	return g.seg.Cut(text, true)
}
