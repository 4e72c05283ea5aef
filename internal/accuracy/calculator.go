/**
 * Accuracy Calculator - reference-based OCR metrics
 *
 * Character and word accuracy, BLEU, Levenshtein distance, confidence to
 * accuracy correlation and categorized error analysis against ground truth.
 * Texts are NFC-normalized and whitespace-collapsed before comparison so
 * composed and decomposed forms of the same syllable compare equal.
 */

package accuracy

import (
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
	"golang.org/x/text/unicode/norm"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/logging"
)

// Options configures the calculator
type Options struct {
	// ConfusablePairs are character pairs that recognizers commonly swap in the target script
	ConfusablePairs [][2]string
	// TopErrors caps each error frequency list
	TopErrors int
}

// DefaultOptions returns options with the Devanagari confusable pairs
func DefaultOptions() Options {
	return Options{
		ConfusablePairs: DevanagariConfusablePairs,
		TopErrors:       10,
	}
}

// DevanagariConfusablePairs are visually similar Devanagari characters
var DevanagariConfusablePairs = [][2]string{
	{"ब", "व"}, {"घ", "ध"}, {"भ", "म"}, {"ड", "ङ"}, {"ढ", "द"},
	{"ठ", "ढ"}, {"प", "ष"}, {"य", "थ"}, {"ा", "ो"},
	{"ि", "ी"}, {"ु", "ू"}, {"े", "ै"}, {"ं", "ँ"},
}

// Calculator computes reference-based metrics
type Calculator struct {
	opts   Options
	dmp    *diffmatchpatch.DiffMatchPatch
	logger *logging.Logger

	// characterAccuracy is CharacterAccuracy; tests replace it to force a failure
	characterAccuracy func(extracted, reference string) float64
}

// NewCalculator creates a calculator
func NewCalculator(opts Options, logger *logging.Logger) *Calculator {
	if opts.TopErrors <= 0 {
		opts.TopErrors = 10
	}
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0 // exact alignment, no deadline
	c := &Calculator{
		opts:   opts,
		dmp:    dmp,
		logger: logging.OrDefault(logger, "AccuracyCalculator"),
	}
	c.characterAccuracy = c.CharacterAccuracy
	return c
}

// Normalize applies NFC, collapses whitespace runs to one space and trims
func Normalize(text string) string {
	return strings.Join(strings.Fields(norm.NFC.String(text)), " ")
}

// CharacterAccuracy is 1 - edit distance / longer normalized length, in [0,1].
// An empty reference scores 0; two texts that normalize to nothing score 1.
func (c *Calculator) CharacterAccuracy(extracted, reference string) float64 {
	if reference == "" {
		return 0.0
	}

	ext := []rune(Normalize(extracted))
	ref := []rune(Normalize(reference))
	if len(ext) == 0 && len(ref) == 0 {
		return 1.0
	}

	longest := len(ext)
	if len(ref) > longest {
		longest = len(ref)
	}

	acc := 1.0 - float64(levenshtein(ext, ref))/float64(longest)
	if acc < 0 {
		return 0.0
	}
	return acc
}

// WordAccuracy is the share of reference words matched in aligned equal runs
func (c *Calculator) WordAccuracy(extracted, reference string) float64 {
	extWords := strings.Fields(norm.NFC.String(extracted))
	refWords := strings.Fields(norm.NFC.String(reference))

	if len(refWords) == 0 {
		if len(extWords) == 0 {
			return 1.0
		}
		return 0.0
	}

	codec := newWordCodec()
	a, b := codec.encode(refWords), codec.encode(extWords)
	matched := 0
	for _, d := range c.dmp.DiffMainRunes(a, b, false) {
		if d.Type == diffmatchpatch.DiffEqual {
			matched += utf8.RuneCountInString(d.Text)
		}
	}

	return clamp01(float64(matched) / float64(len(refWords)))
}

// EditDistance is the Levenshtein distance between the normalized texts, in runes
func (c *Calculator) EditDistance(extracted, reference string) int {
	return levenshtein([]rune(Normalize(extracted)), []rune(Normalize(reference)))
}

// levenshtein computes the exact edit distance with two rolling rows
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// wordCodec encodes each distinct word as one private-use rune so word
// sequences can be aligned by the character differ.
type wordCodec struct {
	ids   map[string]rune
	words []string
}

const wordCodecBase = rune(0xE000)

func newWordCodec() *wordCodec {
	return &wordCodec{ids: make(map[string]rune)}
}

func (wc *wordCodec) encode(words []string) []rune {
	out := make([]rune, len(words))
	for i, w := range words {
		r, ok := wc.ids[w]
		if !ok {
			r = wordCodecBase + rune(len(wc.words))
			wc.ids[w] = r
			wc.words = append(wc.words, w)
		}
		out[i] = r
	}
	return out
}

func (wc *wordCodec) decode(encoded string) []string {
	words := make([]string, 0, utf8.RuneCountInString(encoded))
	for _, r := range encoded {
		words = append(words, wc.words[r-wordCodecBase])
	}
	return words
}

func clamp01(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
