package accuracy

import (
	"math"
	"strings"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/model"
)

// CorrelationAnalysis relates per-page engine confidence to measured character accuracy
type CorrelationAnalysis struct {
	Correlation     float64    `json:"correlation"`
	SampleSize      int        `json:"sample_size"`
	AvgConfidence   float64    `json:"avg_confidence"`
	AvgAccuracy     float64    `json:"avg_accuracy"`
	ConfidenceRange [2]float64 `json:"confidence_range"`
	AccuracyRange   [2]float64 `json:"accuracy_range"`
}

// AnalyzeConfidenceCorrelation computes the Pearson correlation over pages
// whose reference text is non-empty. references are keyed by page number.
func (c *Calculator) AnalyzeConfidenceCorrelation(results []*model.OCRResult, references map[int]string) CorrelationAnalysis {
	var conf, acc []float64
	for _, r := range results {
		if r == nil {
			continue
		}
		ref := references[r.PageNumber]
		if strings.TrimSpace(ref) == "" {
			continue
		}
		conf = append(conf, r.ConfidenceScore)
		acc = append(acc, c.CharacterAccuracy(r.Text, ref))
	}

	analysis := CorrelationAnalysis{SampleSize: len(conf)}
	if len(conf) == 0 {
		return analysis
	}

	analysis.AvgConfidence = mean(conf)
	analysis.AvgAccuracy = mean(acc)
	analysis.ConfidenceRange = span(conf)
	analysis.AccuracyRange = span(acc)

	if len(conf) >= 2 {
		analysis.Correlation = pearson(conf, acc)
	}

	return analysis
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func span(xs []float64) [2]float64 {
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return [2]float64{lo, hi}
}

// pearson returns 0 when either series has zero variance
func pearson(xs, ys []float64) float64 {
	mx, my := mean(xs), mean(ys)
	var cov, vx, vy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0
	}
	r := cov / math.Sqrt(vx*vy)
	return math.Max(-1, math.Min(1, r))
}
