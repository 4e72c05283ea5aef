/**
 * Result and report types shared by every comparison component.
 *
 * OCRResult is produced once per (engine, page) attempt; every report type is
 * derived from a batch of OCRResults and recomputed per run. Only the
 * AccuracyDatabase outlives a run.
 */

package model

import (
	"time"
)

// BoundingBox represents pixel coordinates of a recognized region
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// OCRResult is the normalized output of one engine for one page
type OCRResult struct {
	Text            string        `json:"text"`
	ConfidenceScore float64       `json:"confidence_score"`
	BoundingBoxes   []BoundingBox `json:"bounding_boxes"`
	ProcessingTime  float64       `json:"processing_time"` // seconds
	EngineName      string        `json:"engine_name"`
	PageNumber      int           `json:"page_number"`
	Timestamp       time.Time     `json:"timestamp"`
}

// TableAnalysis is the intermediate table-structure judgment for one text
type TableAnalysis struct {
	HasTables          bool    `json:"has_tables"`
	TableCount         int     `json:"table_count"`
	StructurePreserved bool    `json:"structure_preserved"`
	Confidence         float64 `json:"confidence"`
}

// QualityReport is the reference-free quality judgment of one engine run
type QualityReport struct {
	EngineName          string   `json:"engine_name"`
	OverallScore        float64  `json:"overall_score"`
	ScriptDetectionRate float64  `json:"script_detection_rate"`
	ConfidenceAverage   float64  `json:"confidence_average"`
	TableStructureScore float64  `json:"table_structure_score"`
	Recommendations     []string `json:"recommendations"`
	IssuesDetected      []string `json:"issues_detected"`
}

// AccuracyReport scores one engine against known-correct text.
//
// Two producers fill it. The reference-based calculator populates every
// metric. Manual feedback ingestion leaves BLEUScore and EditDistance at zero
// (not computed) and sets CharacterAccuracy and WordAccuracy to the same
// rescaled reviewer score.
type AccuracyReport struct {
	EngineName        string            `json:"engine_name"`
	CharacterAccuracy float64           `json:"character_accuracy"`
	WordAccuracy      float64           `json:"word_accuracy"`
	BLEUScore         float64           `json:"bleu_score"`
	EditDistance      int               `json:"edit_distance"`
	ManualCorrections map[string]string `json:"manual_corrections"`
	UserRating        int               `json:"user_rating"`
	Comments          string            `json:"comments"`
}

// EngineScore is one (engine, score) ranking entry
type EngineScore struct {
	EngineName string
	Score      float64
}

// ComparisonReport is the orchestrator's ranked summary of one batch
type ComparisonReport struct {
	EngineResults        map[string]*OCRResult
	BestPerformingEngine string
	QualityRankings      []EngineScore
	ProcessingTimes      map[string]float64
	CostAnalysis         map[string]float64
	GeneratedAt          time.Time
}

// Evaluation is one recorded human (or automatic) judgment in the accuracy database
type Evaluation struct {
	Timestamp         time.Time `json:"timestamp"`
	CharacterAccuracy float64   `json:"character_accuracy"`
	WordAccuracy      float64   `json:"word_accuracy"`
	UserRating        int       `json:"user_rating"`
	Comments          string    `json:"comments"`
}

// EngineAccuracyHistory holds the rolling evaluations of one engine
type EngineAccuracyHistory struct {
	Evaluations      []Evaluation `json:"evaluations"`
	AverageAccuracy  float64      `json:"average_accuracy"`
	TotalEvaluations int          `json:"total_evaluations"`
}

// AccuracyDatabase is the persisted, monotonically growing evaluation store
type AccuracyDatabase struct {
	Created     time.Time                         `json:"created"`
	LastUpdated time.Time                         `json:"last_updated"`
	Engines     map[string]*EngineAccuracyHistory `json:"engines"`
}

// NewAccuracyDatabase returns an empty database stamped with now
func NewAccuracyDatabase(now time.Time) *AccuracyDatabase {
	return &AccuracyDatabase{
		Created:     now,
		LastUpdated: now,
		Engines:     make(map[string]*EngineAccuracyHistory),
	}
}

// Record appends one evaluation for engine and recomputes its running average rating
func (db *AccuracyDatabase) Record(engine string, eval Evaluation) {
	if db.Engines == nil {
		db.Engines = make(map[string]*EngineAccuracyHistory)
	}
	history, ok := db.Engines[engine]
	if !ok || history == nil {
		history = &EngineAccuracyHistory{Evaluations: []Evaluation{}}
		db.Engines[engine] = history
	}
	history.Evaluations = append(history.Evaluations, eval)

	total := 0
	for _, e := range history.Evaluations {
		total += e.UserRating
	}
	history.TotalEvaluations = len(history.Evaluations)
	history.AverageAccuracy = float64(total) / float64(history.TotalEvaluations)
	db.LastUpdated = eval.Timestamp
}
