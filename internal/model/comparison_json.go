package model

import (
	"encoding/json"
	"time"
	"unicode/utf8"
)

// EngineResultSummary is the serialized view of a representative OCRResult
type EngineResultSummary struct {
	ConfidenceScore    float64 `json:"confidence_score"`
	ProcessingTime     float64 `json:"processing_time"`
	TextLength         int     `json:"text_length"`
	BoundingBoxesCount int     `json:"bounding_boxes_count"`
}

// ComparisonDocument is the JSON-serializable form of a ComparisonReport
type ComparisonDocument struct {
	GeneratedTime        string                         `json:"generated_time"`
	BestPerformingEngine string                         `json:"best_performing_engine"`
	QualityRankings      [][2]interface{}               `json:"quality_rankings"`
	ProcessingTimes      map[string]float64             `json:"processing_times"`
	CostAnalysis         map[string]float64             `json:"cost_analysis"`
	EngineResults        map[string]EngineResultSummary `json:"engine_results"`
}

// Document converts the report into its serialized shape
func (r *ComparisonReport) Document() ComparisonDocument {
	generated := r.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}

	doc := ComparisonDocument{
		GeneratedTime:        generated.Format(time.RFC3339),
		BestPerformingEngine: r.BestPerformingEngine,
		QualityRankings:      make([][2]interface{}, 0, len(r.QualityRankings)),
		ProcessingTimes:      make(map[string]float64, len(r.ProcessingTimes)),
		CostAnalysis:         make(map[string]float64, len(r.CostAnalysis)),
		EngineResults:        make(map[string]EngineResultSummary, len(r.EngineResults)),
	}

	for _, rank := range r.QualityRankings {
		doc.QualityRankings = append(doc.QualityRankings, [2]interface{}{rank.EngineName, rank.Score})
	}
	for name, t := range r.ProcessingTimes {
		doc.ProcessingTimes[name] = t
	}
	for name, c := range r.CostAnalysis {
		doc.CostAnalysis[name] = c
	}
	for name, res := range r.EngineResults {
		if res == nil {
			continue
		}
		doc.EngineResults[name] = EngineResultSummary{
			ConfidenceScore:    res.ConfidenceScore,
			ProcessingTime:     res.ProcessingTime,
			TextLength:         utf8.RuneCountInString(res.Text),
			BoundingBoxesCount: len(res.BoundingBoxes),
		}
	}

	return doc
}

// MarshalJSON emits the comparison document format
func (r *ComparisonReport) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Document())
}
