package quality

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/logging"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/model"
)

func newTestAssessor() *Assessor {
	return NewAssessor(DefaultOptions(), logging.NewLoggerWithWriter("test", &bytes.Buffer{}, logging.LevelError))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestDetectScriptRate(t *testing.T) {
	a := newTestAssessor()

	cases := []struct {
		name string
		text string
		want float64
	}{
		{"empty", "", 0.0},
		{"punctuation only", " ... !! ", 0.0},
		{"pure devanagari", "नमस्ते दुनिया", 1.0},
		{"latin only", "hello world", 0.0},
		// four Devanagari letters and one Latin letter
		{"mixed", "क ख ग घ x", 0.8},
		{"punctuation ignored", "क, ख! ग? घ. x;", 0.8},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := a.DetectScriptRate(tc.text); math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("DetectScriptRate(%q) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}

func TestAnalyzeTableStructure(t *testing.T) {
	a := newTestAssessor()

	t.Run("single line", func(t *testing.T) {
		got := a.AnalyzeTableStructure("single line, no separators")
		if got.HasTables || got.TableCount != 0 || got.Confidence != 1.0 {
			t.Errorf("Unexpected analysis: %+v", got)
		}
	})

	t.Run("aligned table", func(t *testing.T) {
		text := "| नाम | उम्र |\n| राम | 30 |\n| सीता | 28 |"
		got := a.AnalyzeTableStructure(text)
		if !got.HasTables || got.TableCount != 1 || !got.StructurePreserved || got.Confidence != 1.0 {
			t.Errorf("Unexpected analysis: %+v", got)
		}
	})

	t.Run("two tables", func(t *testing.T) {
		text := "a | b | c\nd | e | f\n\nprose line\n\ng | h | i\nj | k | l"
		got := a.AnalyzeTableStructure(text)
		if got.TableCount != 2 {
			t.Errorf("TableCount = %d, want 2", got.TableCount)
		}
	})

	t.Run("ragged table", func(t *testing.T) {
		text := "a | b | c\nc | d | e | f | g | h | i | j | k | l | m | n\no | p | q"
		got := a.AnalyzeTableStructure(text)
		if !got.HasTables || got.StructurePreserved {
			t.Errorf("Expected an unpreserved table: %+v", got)
		}
		if got.Confidence < 0 || got.Confidence > 1 {
			t.Errorf("Confidence out of range: %v", got.Confidence)
		}
	})
}

func TestAssessTextQualityEmptyText(t *testing.T) {
	a := newTestAssessor()
	for _, text := range []string{"", "   \n\t "} {
		got := a.AssessTextQuality(text, []float64{0.0}, "Y")
		if got.Degraded {
			t.Errorf("Empty text is not a degraded assessment")
		}
		r := got.Report
		if r.OverallScore != 0 || r.ScriptDetectionRate != 0 || r.ConfidenceAverage != 0 || r.TableStructureScore != 0 {
			t.Errorf("Expected all-zero report, got %+v", r)
		}
		if !contains(r.IssuesDetected, IssueNoText) {
			t.Errorf("Issues = %v", r.IssuesDetected)
		}
	}
}

func TestAssessTextQualityDegradesOnFailure(t *testing.T) {
	a := newTestAssessor()
	a.scriptRate = func(string) float64 { panic("script table corrupted") }

	got := a.AssessTextQuality(strings.Repeat("नमस्ते दुनिया ", 10), []float64{0.9}, "Z")
	if !got.Degraded {
		t.Fatal("Expected a degraded assessment")
	}
	if got.Reason != "script table corrupted" {
		t.Errorf("Reason = %q", got.Reason)
	}
	r := got.Report
	if r.EngineName != "Z" || r.OverallScore != 0 || r.ScriptDetectionRate != 0 || r.ConfidenceAverage != 0 || r.TableStructureScore != 0 {
		t.Errorf("Expected all-zero report, got %+v", r)
	}
	if !contains(r.IssuesDetected, IssueAssessmentFailed) {
		t.Errorf("Issues = %v", r.IssuesDetected)
	}
}

func TestAssessTextQualityWeights(t *testing.T) {
	a := newTestAssessor()
	// 4 of 5 letters in script, no table lines
	text := strings.Repeat("क ख ग घ x ", 10)
	got := a.AssessTextQuality(text, []float64{0.9, 0.9}, "X").Report

	want := 0.4*0.8 + 0.4*0.9 + 0.2*1.0
	if math.Abs(got.OverallScore-want) > 1e-9 {
		t.Errorf("OverallScore = %v, want %v", got.OverallScore, want)
	}
	if got.EngineName != "X" {
		t.Errorf("EngineName = %s", got.EngineName)
	}
	if contains(got.IssuesDetected, IssueLowScriptRate) || contains(got.IssuesDetected, IssueLowConfidence) {
		t.Errorf("Unexpected threshold issues: %v", got.IssuesDetected)
	}
}

func TestAssessTextQualityIssues(t *testing.T) {
	a := newTestAssessor()

	cases := []struct {
		name  string
		text  string
		confs []float64
		want  string
	}{
		{"low script", strings.Repeat("latin words only ", 5), []float64{0.9}, IssueLowScriptRate},
		{"low confidence", strings.Repeat("नमस्ते ", 20), []float64{0.2, 0.3}, IssueLowConfidence},
		{"short", "नमस्ते", []float64{0.9}, IssueShortText},
		{"special", strings.Repeat("क#@! ", 20), []float64{0.9}, IssueSpecialCharacters},
		{"repeated", strings.Repeat("नमस्ते ", 10) + "ककककक", []float64{0.9}, IssueRepeatedCharacters},
		{"mixed categories", strings.Repeat("नमस्ते Hello ", 10), []float64{0.9}, IssueMixedCategories},
		{"lost table", strings.Repeat("नमस्ते ", 10) + "\na | b | c\nc | d | e | f | g | h | i | j | k | l | m | n\no | p | q", []float64{0.9}, IssueTableStructureLost},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := a.AssessTextQuality(tc.text, tc.confs, "e").Report
			if !contains(got.IssuesDetected, tc.want) {
				t.Errorf("Expected issue %q, got %v", tc.want, got.IssuesDetected)
			}
			if len(got.Recommendations) != len(got.IssuesDetected) {
				t.Errorf("Every issue should carry a recommendation: %v / %v", got.IssuesDetected, got.Recommendations)
			}
		})
	}
}

func TestScoresStayInRange(t *testing.T) {
	a := newTestAssessor()
	inputs := []struct {
		text  string
		confs []float64
	}{
		{"", nil},
		{"x", []float64{5, -3}},
		{"| a | b |\n| c | d |", []float64{math.NaN()}},
		{strings.Repeat("क", 1000), []float64{1}},
	}

	for _, in := range inputs {
		r := a.AssessTextQuality(in.text, in.confs, "e").Report
		for name, v := range map[string]float64{
			"overall": r.OverallScore, "script": r.ScriptDetectionRate,
			"confidence": r.ConfidenceAverage, "table": r.TableStructureScore,
		} {
			if v < 0 || v > 1 || math.IsNaN(v) {
				t.Errorf("%s = %v out of range for %q", name, v, in.text)
			}
		}
	}
}

func TestCompareQualityReports(t *testing.T) {
	reports := []*model.QualityReport{
		{EngineName: "b", OverallScore: 0.8, ScriptDetectionRate: 0.9, ConfidenceAverage: 0.8,
			IssuesDetected: []string{IssueShortText}, Recommendations: []string{"r1", "r2"}},
		{EngineName: "a", OverallScore: 0.8, ScriptDetectionRate: 0.7, ConfidenceAverage: 0.6,
			IssuesDetected: []string{IssueShortText, IssueLowConfidence}, Recommendations: []string{"r2", "r3"}},
		{EngineName: "c", OverallScore: 0.2, ScriptDetectionRate: 0.2, ConfidenceAverage: 0.1,
			IssuesDetected: []string{IssueLowConfidence}, Recommendations: []string{"r4"}},
		nil,
	}

	s := CompareQualityReports(reports)
	if s.EngineCount != 3 || s.BestEngine != "a" || s.WorstEngine != "c" {
		t.Errorf("Unexpected best/worst: %+v", s)
	}
	if math.Abs(s.AverageScriptRate-0.6) > 1e-9 || math.Abs(s.AverageConfidence-0.5) > 1e-9 {
		t.Errorf("Unexpected averages: %v %v", s.AverageScriptRate, s.AverageConfidence)
	}
	if len(s.CommonIssues) != 2 || s.CommonIssues[0] != IssueShortText {
		t.Errorf("CommonIssues = %v", s.CommonIssues)
	}
	if strings.Join(s.Recommendations, ",") != "r1,r2,r3,r4" {
		t.Errorf("Recommendations = %v", s.Recommendations)
	}

	empty := CompareQualityReports(nil)
	if empty.EngineCount != 0 || empty.BestEngine != "" {
		t.Errorf("Unexpected empty summary: %+v", empty)
	}
}

func TestCompareQualityReportsCapsRecommendations(t *testing.T) {
	var recs []string
	for i := 0; i < 15; i++ {
		recs = append(recs, strings.Repeat("r", i+1))
	}
	s := CompareQualityReports([]*model.QualityReport{{EngineName: "a", Recommendations: recs}})
	if len(s.Recommendations) != maxSummaryRecommendations {
		t.Errorf("Expected %d recommendations, got %d", maxSummaryRecommendations, len(s.Recommendations))
	}
}

func TestLetterCategoryCount(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"devanagari with marks and danda", "नमस्ते, दुनिया। १२३ घर!", 1},
		{"latin sentence", "Hello world.", 2},
		{"devanagari and latin", "नमस्ते Hello", 3},
		{"no letters", "123 ... !!", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := letterCategoryCount(tc.text); got != tc.want {
				t.Errorf("letterCategoryCount(%q) = %d, want %d", tc.text, got, tc.want)
			}
		})
	}
}
