package accuracy

import (
	"math"
	"strings"
)

const (
	bleuMaxOrder = 4
	// bleuEpsilon replaces a zero n-gram match count (smoothing method 1)
	bleuEpsilon = 0.1
)

// BLEUScore is sentence-level BLEU of extracted against reference with
// uniform weights up to 4-grams, epsilon smoothing and a brevity penalty.
// Texts shorter than four words use their own length as the maximum order.
func (c *Calculator) BLEUScore(extracted, reference string) float64 {
	hyp := strings.Fields(Normalize(extracted))
	ref := strings.Fields(Normalize(reference))
	if len(hyp) == 0 || len(ref) == 0 {
		return 0.0
	}

	order := min(bleuMaxOrder, len(hyp))
	logSum := 0.0
	for n := 1; n <= order; n++ {
		matches, total := clippedMatches(hyp, ref, n)
		if n == 1 && matches == 0 {
			return 0.0
		}
		p := float64(matches) / float64(total)
		if matches == 0 {
			p = bleuEpsilon / float64(total)
		}
		logSum += math.Log(p) / float64(order)
	}

	bp := 1.0
	if len(hyp) < len(ref) {
		bp = math.Exp(1 - float64(len(ref))/float64(len(hyp)))
	}

	return clamp01(bp * math.Exp(logSum))
}

// clippedMatches counts hypothesis n-grams also present in the reference,
// each clipped to its reference count, and the total hypothesis n-grams.
func clippedMatches(hyp, ref []string, n int) (int, int) {
	refCounts := ngramCounts(ref, n)
	hypCounts := ngramCounts(hyp, n)

	matches, total := 0, 0
	for gram, count := range hypCounts {
		total += count
		matches += min(count, refCounts[gram])
	}
	if total == 0 {
		total = 1
	}
	return matches, total
}

func ngramCounts(words []string, n int) map[string]int {
	counts := make(map[string]int)
	for i := 0; i+n <= len(words); i++ {
		counts[strings.Join(words[i:i+n], "\x00")]++
	}
	return counts
}
