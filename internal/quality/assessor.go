/**
 * Quality Assessor - reference-free scoring of OCR output
 *
 * Scores an engine's text from the text itself and the engine's per-page
 * confidences: target-script detection rate, mean confidence and table
 * structure preservation, combined with fixed weights.
 *
 * Assessment never panics out: an internal failure yields a Degraded
 * assessment carrying an all-zero report.
 */

package quality

import (
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/logging"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/model"
)

const (
	weightScript     = 0.4
	weightConfidence = 0.4
	weightTable      = 0.2

	maxSpecialCharRatio = 0.3
	minRepeatRun        = 4
	maxLetterCategories = 2
)

// Issue labels. They carry no numbers so reports from different engines can be compared.
const (
	IssueNoText             = "No text extracted"
	IssueLowScriptRate      = "Low target script detection rate"
	IssueLowConfidence      = "Low average confidence"
	IssueTableStructureLost = "Table structure not preserved"
	IssueShortText          = "Extracted text is very short"
	IssueSpecialCharacters  = "High ratio of special characters"
	IssueRepeatedCharacters = "Repeated character sequences detected"
	IssueMixedCategories    = "Mixed character categories detected"
	IssueAssessmentFailed   = "Quality assessment failed"
)

// Options holds the assessment thresholds
type Options struct {
	TargetScript            string
	MinScriptRate           float64
	MinConfidence           float64
	MinTextLength           int
	TableAlignmentThreshold float64
}

// DefaultOptions returns the thresholds used for Devanagari documents
func DefaultOptions() Options {
	return Options{
		TargetScript:            "Devanagari",
		MinScriptRate:           0.7,
		MinConfidence:           0.6,
		MinTextLength:           50,
		TableAlignmentThreshold: 0.7,
	}
}

// Assessment wraps a QualityReport with its fail-soft status
type Assessment struct {
	Report   *model.QualityReport
	Degraded bool
	Reason   string
}

// Assessor computes QualityReports
type Assessor struct {
	opts   Options
	script *unicode.RangeTable
	logger *logging.Logger

	// scriptRate is DetectScriptRate; tests replace it to force a failure
	scriptRate func(string) float64
}

// NewAssessor creates an assessor for opts.TargetScript
func NewAssessor(opts Options, logger *logging.Logger) *Assessor {
	logger = logging.OrDefault(logger, "QualityAssessor")
	script, ok := unicode.Scripts[opts.TargetScript]
	if !ok {
		logger.Warn("Unknown target script, script detection will report 0", "script", opts.TargetScript)
	}
	a := &Assessor{opts: opts, script: script, logger: logger}
	a.scriptRate = a.DetectScriptRate
	return a
}

// DetectScriptRate returns the fraction of letters and digits in text that
// belong to the target script. Whitespace, punctuation and marks are not counted.
func (a *Assessor) DetectScriptRate(text string) float64 {
	total, inScript := 0, 0
	for _, r := range text {
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) {
			continue
		}
		total++
		if a.script != nil && unicode.Is(a.script, r) {
			inScript++
		}
	}
	if total == 0 {
		return 0.0
	}
	return float64(inScript) / float64(total)
}

// AssessTextQuality scores text and the per-page confidences of one engine
func (a *Assessor) AssessTextQuality(text string, confidences []float64, engineName string) (assessment Assessment) {
	defer func() {
		if r := recover(); r != nil {
			reason := fmt.Sprintf("%v", r)
			a.logger.Error("Quality assessment failed", "engine", engineName, "error", reason)
			assessment = Assessment{
				Report:   degradedReport(engineName),
				Degraded: true,
				Reason:   reason,
			}
		}
	}()

	report := &model.QualityReport{
		EngineName:      engineName,
		Recommendations: []string{},
		IssuesDetected:  []string{},
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		report.IssuesDetected = append(report.IssuesDetected, IssueNoText)
		report.Recommendations = append(report.Recommendations,
			"Check engine configuration and input image quality; the engine returned no text")
		return Assessment{Report: report}
	}

	report.ScriptDetectionRate = clamp01(a.scriptRate(trimmed))
	report.ConfidenceAverage = meanConfidence(confidences)

	tables := a.AnalyzeTableStructure(text)
	report.TableStructureScore = 1.0
	if tables.HasTables {
		report.TableStructureScore = tables.Confidence
	}

	report.OverallScore = clamp01(weightScript*report.ScriptDetectionRate +
		weightConfidence*report.ConfidenceAverage +
		weightTable*report.TableStructureScore)

	add := func(issue, recommendation string) {
		report.IssuesDetected = append(report.IssuesDetected, issue)
		report.Recommendations = append(report.Recommendations, recommendation)
	}

	if report.ScriptDetectionRate < a.opts.MinScriptRate {
		add(IssueLowScriptRate, fmt.Sprintf(
			"Only %.1f%% of characters are %s; use an engine or language pack trained for %s",
			report.ScriptDetectionRate*100, a.opts.TargetScript, a.opts.TargetScript))
	}

	if report.ConfidenceAverage < a.opts.MinConfidence {
		add(IssueLowConfidence, fmt.Sprintf(
			"Average confidence is %.2f; improve scan resolution, contrast or skew before OCR",
			report.ConfidenceAverage))
	}

	if tables.HasTables && !tables.StructurePreserved {
		add(IssueTableStructureLost,
			"Use an engine with layout or table detection for tabular pages")
	}

	if n := utf8.RuneCountInString(trimmed); n < a.opts.MinTextLength {
		add(IssueShortText, fmt.Sprintf(
			"Only %d characters extracted; verify the page is not blank or cropped", n))
	}

	if specialCharRatio(trimmed) > maxSpecialCharRatio {
		add(IssueSpecialCharacters,
			"Check the source image for noise, stains or scanning artifacts")
	}

	if hasRepeatedRun(trimmed, minRepeatRun) {
		add(IssueRepeatedCharacters,
			"Repeated characters often indicate recognition artifacts; review the output")
	}

	if n := letterCategoryCount(trimmed); n > maxLetterCategories {
		add(IssueMixedCategories, fmt.Sprintf(
			"Text mixes %d letter categories; verify the engine language settings", n))
	}

	a.logger.Debug("Quality assessed",
		"engine", engineName,
		"overall", report.OverallScore,
		"scriptRate", report.ScriptDetectionRate,
		"confidence", report.ConfidenceAverage,
		"issues", len(report.IssuesDetected))

	return Assessment{Report: report}
}

func degradedReport(engineName string) *model.QualityReport {
	return &model.QualityReport{
		EngineName:      engineName,
		Recommendations: []string{"Re-run the assessment; the quality report could not be computed"},
		IssuesDetected:  []string{IssueAssessmentFailed},
	}
}

func meanConfidence(confidences []float64) float64 {
	if len(confidences) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, c := range confidences {
		sum += clamp01(c)
	}
	return sum / float64(len(confidences))
}

// specialCharRatio is the share of runes that are neither letters, digits,
// combining marks nor whitespace.
func specialCharRatio(text string) float64 {
	total, special := 0, 0
	for _, r := range text {
		total++
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r) || unicode.IsSpace(r) {
			continue
		}
		special++
	}
	if total == 0 {
		return 0
	}
	return float64(special) / float64(total)
}

// hasRepeatedRun reports a run of at least n identical non-space runes
func hasRepeatedRun(text string, n int) bool {
	var prev rune
	run := 0
	for _, r := range text {
		if r == prev && !unicode.IsSpace(r) {
			run++
			if run >= n {
				return true
			}
			continue
		}
		prev = r
		run = 1
	}
	return false
}

var letterCategories = []*unicode.RangeTable{unicode.Lu, unicode.Ll, unicode.Lt, unicode.Lm, unicode.Lo}

// letterCategoryCount counts the distinct letter categories (Lu, Ll, Lt, Lm, Lo)
// in text. Spaces, punctuation, digits and combining marks are not counted.
func letterCategoryCount(text string) int {
	seen := make([]bool, len(letterCategories))
	count := 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		for i, table := range letterCategories {
			if !seen[i] && unicode.Is(table, r) {
				seen[i] = true
				count++
			}
		}
	}
	return count
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
