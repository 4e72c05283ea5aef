package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/model"
)

// CreateDetailedComparisonReport renders a markdown report: executive summary,
// one section per engine and consolidated recommendations.
func (r *Reporter) CreateDetailedComparisonReport(results map[string][]*model.OCRResult, qualityReports map[string]*model.QualityReport) string {
	rows := r.CreateEngineComparisonTable(results, qualityReports)

	var b strings.Builder
	b.WriteString("# OCR Engine Comparison Report\n\n")
	fmt.Fprintf(&b, "Generated: %s  \nTarget script: %s\n\n", r.now().Format("2006-01-02 15:04:05 MST"), r.opts.TargetScript)

	if len(rows) == 0 {
		b.WriteString("No engine produced results for this batch.\n")
		return b.String()
	}

	h := summarize(rows)
	b.WriteString("## Executive Summary\n\n")
	fmt.Fprintf(&b, "- **Highest confidence:** %s (%.1f%%)\n", h.BestConfidence.Engine, h.BestConfidence.AvgConfidence*100)
	fmt.Fprintf(&b, "- **Fastest:** %s (%.2f s per page)\n", h.Fastest.Engine, h.Fastest.AvgProcessingTime)
	if h.BestQuality.HasQuality {
		fmt.Fprintf(&b, "- **Best quality:** %s (score %.3f)\n", h.BestQuality.Engine, h.BestQuality.QualityScore)
	} else {
		b.WriteString("- **Best quality:** not assessed\n")
	}
	fmt.Fprintf(&b, "- **Engines compared:** %d\n\n", h.EngineCount)

	b.WriteString("## Comparison Table\n\n")
	b.WriteString("| Engine | Pages | Avg confidence | Avg time (s) | Characters | Quality | Script detection | Cost/page | Script support |\n")
	b.WriteString("|---|---:|---:|---:|---:|---:|---:|---:|---|\n")
	for _, row := range rows {
		fmt.Fprintf(&b, "| %s | %d | %.1f%% | %.2f | %d | %s | %s | %s | %s |\n",
			escapeCell(row.Engine), row.PagesProcessed, row.AvgConfidence*100, row.AvgProcessingTime,
			row.TotalCharacters, qualityCell(row), scriptCell(row), costCell(row), row.ScriptSupport)
	}
	b.WriteString("\n## Engine Details\n\n")

	for _, row := range rows {
		fmt.Fprintf(&b, "### %s\n\n", row.Engine)
		fmt.Fprintf(&b, "- Pages processed: %d\n", row.PagesProcessed)
		fmt.Fprintf(&b, "- Average confidence: %.1f%%\n", row.AvgConfidence*100)
		fmt.Fprintf(&b, "- Average processing time: %.2f s per page (%.1f characters/s)\n", row.AvgProcessingTime, row.CharactersPerSecond)
		fmt.Fprintf(&b, "- Characters extracted: %d\n", row.TotalCharacters)
		if row.HasQuality {
			fmt.Fprintf(&b, "- Quality score: %.3f\n", row.QualityScore)
			fmt.Fprintf(&b, "- %s detection rate: %.1f%%\n", r.opts.TargetScript, row.ScriptDetectionRate*100)
		}
		if row.CostKnown {
			fmt.Fprintf(&b, "- Estimated cost: $%.4f per page, $%.4f for this batch\n",
				row.CostPerPage, row.CostPerPage*float64(row.PagesProcessed))
		} else {
			b.WriteString("- Estimated cost: unknown\n")
		}
		fmt.Fprintf(&b, "- Script support: %s\n", row.ScriptSupport)

		if qr := qualityReports[row.Engine]; qr != nil && len(qr.Recommendations) > 0 {
			b.WriteString("\nRecommendations:\n\n")
			for _, rec := range qr.Recommendations {
				fmt.Fprintf(&b, "- %s\n", rec)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("## Recommendations\n\n")
	for _, rec := range r.recommendations(rows) {
		fmt.Fprintf(&b, "- %s\n", rec)
	}

	return b.String()
}

// recommendations returns the consolidated advice for rows sorted by rank
func (r *Reporter) recommendations(rows []Row) []string {
	var recs []string

	for _, row := range rows {
		if row.CostKnown && row.CostPerPage == 0 {
			recs = append(recs, fmt.Sprintf("Best free engine: %s", row.Engine))
			break
		}
	}

	var scriptEngines []string
	for _, row := range rows {
		if row.HasQuality && row.ScriptDetectionRate >= r.opts.MinScriptRate {
			scriptEngines = append(scriptEngines, row.Engine)
		}
	}
	sort.Strings(scriptEngines)
	if len(scriptEngines) > 0 {
		recs = append(recs, fmt.Sprintf("Best for %s text: %s", r.opts.TargetScript, strings.Join(scriptEngines, ", ")))
	} else {
		recs = append(recs, fmt.Sprintf("No engine reached a %.0f%% %s detection rate; consider engines trained for this script",
			r.opts.MinScriptRate*100, r.opts.TargetScript))
	}

	recs = append(recs, "Test several engines on representative pages before committing to one for production")
	return recs
}

func qualityCell(row Row) string {
	if !row.HasQuality {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", row.QualityScore)
}

func scriptCell(row Row) string {
	if !row.HasQuality {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", row.ScriptDetectionRate*100)
}

func costCell(row Row) string {
	if !row.CostKnown {
		return "unknown"
	}
	return fmt.Sprintf("$%.4f", row.CostPerPage)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
