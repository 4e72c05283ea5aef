/**
 * Comparison Reporter - ranked tables, dashboard, detailed report, charts
 *
 * Every report is derived from the per-engine result lists of one run plus
 * the optional quality reports. Ranking is by quality score when a report
 * exists for every engine, otherwise by mean confidence; ties resolve
 * alphabetically by engine name.
 */

package report

import (
	"sort"
	"time"
	"unicode/utf8"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/logging"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/model"
)

// Options configures the reporter
type Options struct {
	TargetScript  string
	MinScriptRate float64
}

// Reporter renders comparison reports
type Reporter struct {
	opts   Options
	logger *logging.Logger
	now    func() time.Time
}

// NewReporter creates a reporter
func NewReporter(opts Options, logger *logging.Logger) *Reporter {
	if opts.TargetScript == "" {
		opts.TargetScript = "Devanagari"
	}
	return &Reporter{
		opts:   opts,
		logger: logging.OrDefault(logger, "ComparisonReporter"),
		now:    time.Now,
	}
}

// Row is one engine line of the comparison table
type Row struct {
	Engine              string  `json:"engine"`
	PagesProcessed      int     `json:"pages_processed"`
	AvgConfidence       float64 `json:"avg_confidence"`
	AvgProcessingTime   float64 `json:"avg_processing_time"`
	TotalCharacters     int     `json:"total_characters"`
	CharactersPerSecond float64 `json:"characters_per_second"`
	HasQuality          bool    `json:"has_quality"`
	QualityScore        float64 `json:"quality_score"`
	ScriptDetectionRate float64 `json:"script_detection_rate"`
	CostPerPage         float64 `json:"cost_per_page"`
	CostKnown           bool    `json:"cost_known"`
	ScriptSupport       string  `json:"script_support"`
}

// rankScore is the scalar the table is sorted by
func (r Row) rankScore(byQuality bool) float64 {
	if byQuality {
		return r.QualityScore
	}
	return r.AvgConfidence
}

// CreateEngineComparisonTable builds one row per engine with at least one page.
// qualityReports may be nil.
func (r *Reporter) CreateEngineComparisonTable(results map[string][]*model.OCRResult, qualityReports map[string]*model.QualityReport) []Row {
	rows := make([]Row, 0, len(results))
	byQuality := len(qualityReports) > 0

	for name, pages := range results {
		if len(pages) == 0 {
			continue
		}

		row := Row{
			Engine:         name,
			PagesProcessed: len(pages),
			ScriptSupport:  ScriptSupportRating(name),
		}
		row.CostPerPage, row.CostKnown = CostPerPage(name)

		var confSum, timeSum float64
		for _, p := range pages {
			confSum += p.ConfidenceScore
			timeSum += p.ProcessingTime
			row.TotalCharacters += utf8.RuneCountInString(p.Text)
		}
		n := float64(len(pages))
		row.AvgConfidence = confSum / n
		row.AvgProcessingTime = timeSum / n
		if timeSum > 0 {
			row.CharactersPerSecond = float64(row.TotalCharacters) / timeSum
		}

		if qr, ok := qualityReports[name]; ok && qr != nil {
			row.HasQuality = true
			row.QualityScore = qr.OverallScore
			row.ScriptDetectionRate = qr.ScriptDetectionRate
		} else {
			byQuality = false
		}

		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		si, sj := rows[i].rankScore(byQuality), rows[j].rankScore(byQuality)
		if si != sj {
			return si > sj
		}
		return rows[i].Engine < rows[j].Engine
	})

	return rows
}

// highlights are the four headline figures shared by the dashboard and the detailed report
type highlights struct {
	BestConfidence Row
	Fastest        Row
	MostText       Row
	BestQuality    Row
	EngineCount    int
}

// summarize picks highlight rows; rows must be non-empty and sorted by rank
func summarize(rows []Row) highlights {
	h := highlights{
		BestConfidence: rows[0],
		Fastest:        rows[0],
		MostText:       rows[0],
		BestQuality:    rows[0],
		EngineCount:    len(rows),
	}
	for _, row := range rows[1:] {
		if better(row.AvgConfidence, h.BestConfidence.AvgConfidence, row.Engine, h.BestConfidence.Engine) {
			h.BestConfidence = row
		}
		if better(-row.AvgProcessingTime, -h.Fastest.AvgProcessingTime, row.Engine, h.Fastest.Engine) {
			h.Fastest = row
		}
		if better(float64(row.TotalCharacters), float64(h.MostText.TotalCharacters), row.Engine, h.MostText.Engine) {
			h.MostText = row
		}
		if better(row.QualityScore, h.BestQuality.QualityScore, row.Engine, h.BestQuality.Engine) {
			h.BestQuality = row
		}
	}
	return h
}

// better reports whether (score, name) outranks (bestScore, bestName)
func better(score, bestScore float64, name, bestName string) bool {
	if score != bestScore {
		return score > bestScore
	}
	return name < bestName
}
