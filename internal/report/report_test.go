package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/accuracy"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/logging"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/model"
)

func newTestReporter() *Reporter {
	r := NewReporter(Options{TargetScript: "Devanagari", MinScriptRate: 0.7},
		logging.NewLoggerWithWriter("test", &bytes.Buffer{}, logging.LevelError))
	r.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return r
}

func pages(engine string, conf, secs float64, texts ...string) []*model.OCRResult {
	out := make([]*model.OCRResult, 0, len(texts))
	for i, t := range texts {
		out = append(out, &model.OCRResult{
			Text:            t,
			ConfidenceScore: conf,
			ProcessingTime:  secs,
			EngineName:      engine,
			PageNumber:      i + 1,
		})
	}
	return out
}

func sampleResults() map[string][]*model.OCRResult {
	return map[string][]*model.OCRResult{
		"tesseract": pages("tesseract", 0.7, 1.0, "नमस्ते", "दुनिया"),
		"mageagent": pages("mageagent", 0.9, 4.0, "नमस्ते दुनिया", "भारत"),
		"ollama":    pages("ollama", 0.5, 8.0, "hello"),
	}
}

func engineOrder(rows []Row) []string {
	names := make([]string, len(rows))
	for i, r := range rows {
		names[i] = r.Engine
	}
	return names
}

func TestCreateEngineComparisonTable(t *testing.T) {
	r := newTestReporter()

	t.Run("ranked by confidence without quality reports", func(t *testing.T) {
		rows := r.CreateEngineComparisonTable(sampleResults(), nil)
		got := strings.Join(engineOrder(rows), ",")
		if got != "mageagent,tesseract,ollama" {
			t.Errorf("Unexpected order: %s", got)
		}
		if rows[0].PagesProcessed != 2 || rows[0].AvgProcessingTime != 4.0 {
			t.Errorf("Unexpected mageagent row: %+v", rows[0])
		}
		if rows[1].TotalCharacters != len([]rune("नमस्ते"))+len([]rune("दुनिया")) {
			t.Errorf("TotalCharacters counted bytes, not runes: %d", rows[1].TotalCharacters)
		}
		if !rows[1].CostKnown || rows[1].CostPerPage != 0 || rows[1].ScriptSupport != "Good" {
			t.Errorf("Unexpected reference data: %+v", rows[1])
		}
	})

	t.Run("ranked by quality when every engine has a report", func(t *testing.T) {
		qr := map[string]*model.QualityReport{
			"tesseract": {EngineName: "tesseract", OverallScore: 0.95, ScriptDetectionRate: 1},
			"mageagent": {EngineName: "mageagent", OverallScore: 0.80, ScriptDetectionRate: 1},
			"ollama":    {EngineName: "ollama", OverallScore: 0.10},
		}
		rows := r.CreateEngineComparisonTable(sampleResults(), qr)
		if got := strings.Join(engineOrder(rows), ","); got != "tesseract,mageagent,ollama" {
			t.Errorf("Unexpected order: %s", got)
		}
	})

	t.Run("partial quality reports fall back to confidence", func(t *testing.T) {
		qr := map[string]*model.QualityReport{
			"ollama": {EngineName: "ollama", OverallScore: 1.0},
		}
		rows := r.CreateEngineComparisonTable(sampleResults(), qr)
		if rows[0].Engine != "mageagent" {
			t.Errorf("Expected confidence ranking, got %v", engineOrder(rows))
		}
	})

	t.Run("ties break alphabetically", func(t *testing.T) {
		results := map[string][]*model.OCRResult{
			"zeta":  pages("zeta", 0.8, 1, "a"),
			"alpha": pages("alpha", 0.8, 1, "b"),
			"mid":   pages("mid", 0.8, 1, "c"),
		}
		rows := r.CreateEngineComparisonTable(results, nil)
		if got := strings.Join(engineOrder(rows), ","); got != "alpha,mid,zeta" {
			t.Errorf("Unexpected order: %s", got)
		}
	})

	t.Run("engines without pages are left out", func(t *testing.T) {
		results := map[string][]*model.OCRResult{"empty": nil, "tesseract": pages("tesseract", 0.5, 1, "x")}
		if rows := r.CreateEngineComparisonTable(results, nil); len(rows) != 1 {
			t.Errorf("Expected 1 row, got %d", len(rows))
		}
	})
}

func TestReferenceLookups(t *testing.T) {
	if cost, ok := CostPerPage("mageagent"); !ok || cost != 0.0015 {
		t.Errorf("CostPerPage(mageagent) = %v, %v", cost, ok)
	}
	if _, ok := CostPerPage("unknown-engine"); ok {
		t.Error("Expected unknown engine cost to be unknown")
	}
	if got := ScriptSupportRating("unknown-engine"); got != "Unknown" {
		t.Errorf("ScriptSupportRating = %q, want Unknown", got)
	}
}

func TestGeneratePerformanceDashboard(t *testing.T) {
	r := newTestReporter()

	results := sampleResults()
	results["<script>"] = pages("<script>", 0.2, 1, "x")

	out, err := r.GeneratePerformanceDashboard(results, nil)
	if err != nil {
		t.Fatalf("GeneratePerformanceDashboard failed: %v", err)
	}

	for _, want := range []string{
		"<!DOCTYPE html>",
		"OCR Engine Performance Dashboard",
		"Highest confidence",
		"Fastest",
		"Most text extracted",
		"Engines compared",
		`class="tier-high"`,
		`class="tier-low"`,
		"&lt;script&gt;",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Dashboard missing %q", want)
		}
	}
	if strings.Contains(out, "<script>") {
		t.Error("Engine names must be escaped")
	}
}

func TestGeneratePerformanceDashboardEmpty(t *testing.T) {
	out, err := newTestReporter().GeneratePerformanceDashboard(nil, nil)
	if err != nil {
		t.Fatalf("GeneratePerformanceDashboard failed: %v", err)
	}
	if !strings.Contains(out, "No engine produced results.") {
		t.Error("Expected empty-state message")
	}
}

func TestCreateDetailedComparisonReport(t *testing.T) {
	r := newTestReporter()
	qr := map[string]*model.QualityReport{
		"tesseract": {EngineName: "tesseract", OverallScore: 0.9, ScriptDetectionRate: 0.95,
			Recommendations: []string{"Check image resolution"}},
		"mageagent": {EngineName: "mageagent", OverallScore: 0.8, ScriptDetectionRate: 0.9},
		"ollama":    {EngineName: "ollama", OverallScore: 0.1, ScriptDetectionRate: 0},
	}

	out := r.CreateDetailedComparisonReport(sampleResults(), qr)

	for _, want := range []string{
		"# OCR Engine Comparison Report",
		"Generated: 2024-03-01 12:00:00 UTC",
		"## Executive Summary",
		"- **Best quality:** tesseract (score 0.900)",
		"## Comparison Table",
		"### mageagent",
		"- Check image resolution",
		"Estimated cost: $0.0015 per page, $0.0030 for this batch",
		"Best free engine: tesseract",
		"Best for Devanagari text: mageagent, tesseract",
		"Test several engines",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Report missing %q", want)
		}
	}
}

func TestCreateDetailedComparisonReportNoScriptEngine(t *testing.T) {
	r := newTestReporter()
	qr := map[string]*model.QualityReport{
		"ollama": {EngineName: "ollama", OverallScore: 0.2, ScriptDetectionRate: 0.1},
	}
	results := map[string][]*model.OCRResult{"ollama": pages("ollama", 0.5, 1, "hello")}

	out := r.CreateDetailedComparisonReport(results, qr)
	if !strings.Contains(out, "No engine reached a 70% Devanagari detection rate") {
		t.Errorf("Expected low-script recommendation, got:\n%s", out)
	}
}

func TestRenderHTML(t *testing.T) {
	md := newTestReporter().CreateDetailedComparisonReport(sampleResults(), nil)

	out, err := RenderHTML(md)
	if err != nil {
		t.Fatalf("RenderHTML failed: %v", err)
	}
	for _, want := range []string{"<h1>OCR Engine Comparison Report</h1>", "<table>", "<th>Engine</th>", "<td>mageagent</td>"} {
		if !strings.Contains(out, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
}

func TestGenerateCharts(t *testing.T) {
	r := newTestReporter()

	charts, err := r.GenerateCharts(sampleResults(), nil)
	if err != nil {
		t.Fatalf("GenerateCharts failed: %v", err)
	}

	for _, name := range []string{ChartConfidence, ChartProcessingTime, ChartQualityVsSpeed, ChartScriptDetection} {
		svg, ok := charts[name]
		if !ok {
			t.Errorf("Missing chart %s", name)
			continue
		}
		if !strings.HasPrefix(svg, "<svg") || !strings.Contains(svg, `xmlns="http://www.w3.org/2000/svg"`) {
			t.Errorf("%s is not an SVG document: %.80s", name, svg)
		}
		for _, engine := range []string{"mageagent", "ollama", "tesseract"} {
			if !strings.Contains(svg, engine) {
				t.Errorf("%s missing label %s", name, engine)
			}
		}
	}

	if got := strings.Count(charts[ChartConfidence], "<rect"); got != 4 {
		t.Errorf("Expected background plus 3 bars, got %d rects", got)
	}
}

func TestGenerateChartsEmpty(t *testing.T) {
	charts, err := newTestReporter().GenerateCharts(nil, nil)
	if err != nil || len(charts) != 0 {
		t.Errorf("Expected no charts and no error, got %d charts, err=%v", len(charts), err)
	}
}

func TestRenderChartRecoversPanic(t *testing.T) {
	_, err := renderChart(func() *html.Node { panic("boom") })
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("Expected recovered panic error, got %v", err)
	}
}

func TestCreateErrorAnalysisSection(t *testing.T) {
	r := newTestReporter()
	if got := r.CreateErrorAnalysisSection(nil); got != "" {
		t.Errorf("Expected no section without analyses, got %q", got)
	}

	section := r.CreateErrorAnalysisSection(map[string]accuracy.ErrorAnalysis{
		"tesseract": {
			CharacterErrors:      accuracy.CharacterErrors{Substitutions: []accuracy.Count{{Item: "ब→व", Count: 3}}},
			WordErrors:           accuracy.WordErrors{Missing: []accuracy.Count{{Item: "घर", Count: 1}}},
			ScriptSpecificErrors: []accuracy.ConfusionCount{{Pair: [2]string{"ब", "व"}, Count: 3}},
		},
		"mageagent": {},
	})

	for _, want := range []string{"## Error Analysis", "### mageagent", "No differences", "ब→व (3)", "Missing words: घर (1)", "Devanagari confusions: ब/व (3)"} {
		if !strings.Contains(section, want) {
			t.Errorf("Section missing %q:\n%s", want, section)
		}
	}
	if strings.Index(section, "### mageagent") > strings.Index(section, "### tesseract") {
		t.Error("Engines should be listed alphabetically")
	}
}
