package accuracy

import (
	"fmt"
	"math"
	"strings"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/model"
)

// Result wraps an AccuracyReport with its fail-soft status
type Result struct {
	Report         *model.AccuracyReport
	PagesEvaluated int
	Degraded       bool
	Reason         string
}

// CreateComprehensiveAccuracyReport averages every metric over the pages of
// one engine that have non-empty reference text. It never panics out.
func (c *Calculator) CreateComprehensiveAccuracyReport(results []*model.OCRResult, references map[int]string, engineName string) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			reason := fmt.Sprintf("%v", r)
			c.logger.Error("Accuracy report failed", "engine", engineName, "error", reason)
			result = Result{
				Report:   emptyReport(engineName, "Accuracy calculation failed: "+reason),
				Degraded: true,
				Reason:   reason,
			}
		}
	}()

	var charSum, wordSum, bleuSum float64
	editSum, pages := 0, 0
	for _, r := range results {
		if r == nil {
			continue
		}
		ref := references[r.PageNumber]
		if strings.TrimSpace(ref) == "" {
			continue
		}
		charSum += c.characterAccuracy(r.Text, ref)
		wordSum += c.WordAccuracy(r.Text, ref)
		bleuSum += c.BLEUScore(r.Text, ref)
		editSum += c.EditDistance(r.Text, ref)
		pages++
	}

	if pages == 0 {
		return Result{Report: emptyReport(engineName, "No reference text available for any processed page")}
	}

	n := float64(pages)
	avgChar := charSum / n
	report := &model.AccuracyReport{
		EngineName:        engineName,
		CharacterAccuracy: clamp01(avgChar),
		WordAccuracy:      clamp01(wordSum / n),
		BLEUScore:         clamp01(bleuSum / n),
		EditDistance:      int(math.Round(float64(editSum) / n)),
		ManualCorrections: map[string]string{},
		UserRating:        int(math.Round(avgChar * 10)),
		Comments:          fmt.Sprintf("Automatic evaluation against reference text on %d page(s)", pages),
	}

	c.logger.Debug("Accuracy computed",
		"engine", engineName,
		"pages", pages,
		"characterAccuracy", report.CharacterAccuracy,
		"wordAccuracy", report.WordAccuracy)

	return Result{Report: report, PagesEvaluated: pages}
}

func emptyReport(engineName, comment string) *model.AccuracyReport {
	return &model.AccuracyReport{
		EngineName:        engineName,
		ManualCorrections: map[string]string{},
		Comments:          comment,
	}
}
