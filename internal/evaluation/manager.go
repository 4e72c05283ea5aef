/**
 * Evaluation Manager - human feedback loop for OCR engine comparison
 *
 * Emits evaluation forms for reviewers, turns filled forms into per-engine
 * AccuracyReports and appends them to the persistent accuracy database.
 *
 * Reports derived from manual feedback carry a single reviewer score:
 * CharacterAccuracy and WordAccuracy both hold mean score / 10, while
 * BLEUScore and EditDistance are not computed and stay zero.
 */

package evaluation

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/logging"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/model"
)

// Store persists accuracy evaluations
type Store interface {
	// AppendEvaluations records one evaluation per engine, creating the
	// database if needed, and returns the location written to
	AppendEvaluations(ctx context.Context, evals map[string]model.Evaluation) (string, error)
	// Load returns the current database; an absent database is returned empty
	Load(ctx context.Context) (*model.AccuracyDatabase, error)
}

// Options configures the evaluation manager
type Options struct {
	// FormTextCap truncates extracted text in forms; zero disables truncation
	FormTextCap int
}

// DefaultOptions returns the standard evaluation settings
func DefaultOptions() Options {
	return Options{FormTextCap: 500}
}

// Manager bridges automated results and reviewer judgment
type Manager struct {
	opts   Options
	store  Store
	logger *logging.Logger
	now    func() time.Time
}

// NewManager creates an evaluation manager. store may be nil when only forms
// and summaries are needed.
func NewManager(opts Options, store Store, logger *logging.Logger) *Manager {
	return &Manager{
		opts:   opts,
		store:  store,
		logger: logging.OrDefault(logger, "EvaluationManager"),
		now:    time.Now,
	}
}

type engineFeedback struct {
	scores      []float64
	corrections map[string]string
	comments    []string
}

// ProcessManualFeedback aggregates filled rows per engine. Rows whose score is
// still a placeholder, or is not a number in [1,10], are ignored; engines left
// without a valid row are absent from the result.
func (m *Manager) ProcessManualFeedback(form *Form) map[string]*model.AccuracyReport {
	reports := make(map[string]*model.AccuracyReport)
	if form == nil {
		return reports
	}

	byEngine := make(map[string]*engineFeedback)
	ignored := 0
	for _, row := range form.Rows {
		score, ok := parseScore(row.AccuracyScore)
		if !ok || row.Engine == "" {
			ignored++
			continue
		}

		fb, exists := byEngine[row.Engine]
		if !exists {
			fb = &engineFeedback{corrections: make(map[string]string)}
			byEngine[row.Engine] = fb
		}
		fb.scores = append(fb.scores, score)

		if text := strings.TrimSpace(row.CorrectText); text != "" && !isPlaceholder(text) {
			fb.corrections[fmt.Sprintf("page_%d", row.Page)] = text
		}
		if c := strings.TrimSpace(row.Comments); c != "" && !isPlaceholder(c) {
			fb.comments = append(fb.comments, c)
		}
		if issues := strings.TrimSpace(row.IssuesFound); issues != "" && !isPlaceholder(issues) {
			fb.comments = append(fb.comments, fmt.Sprintf("page %d issues: %s", row.Page, issues))
		}
	}

	for engine, fb := range byEngine {
		var sum float64
		for _, s := range fb.scores {
			sum += s
		}
		mean := sum / float64(len(fb.scores))

		reports[engine] = &model.AccuracyReport{
			EngineName:        engine,
			CharacterAccuracy: mean / 10,
			WordAccuracy:      mean / 10,
			ManualCorrections: fb.corrections,
			UserRating:        int(math.Round(mean)),
			Comments:          strings.Join(fb.comments, "; "),
		}
	}

	m.logger.Info("Processed manual feedback",
		"engines", len(reports),
		"rows", len(form.Rows),
		"ignored", ignored)

	return reports
}

// parseScore accepts a reviewer score in [1,10]
func parseScore(field string) (float64, bool) {
	field = strings.TrimSpace(field)
	if field == "" || isPlaceholder(field) {
		return 0, false
	}
	score, err := strconv.ParseFloat(field, 64)
	if err != nil || math.IsNaN(score) || score < 1 || score > 10 {
		return 0, false
	}
	return score, true
}

// UpdateEngineAccuracyScores appends one evaluation per engine to the accuracy
// database and returns where it was written
func (m *Manager) UpdateEngineAccuracyScores(ctx context.Context, feedback map[string]*model.AccuracyReport) (string, error) {
	if m.store == nil {
		return "", fmt.Errorf("no accuracy store configured")
	}

	now := m.now().UTC()
	evals := make(map[string]model.Evaluation, len(feedback))
	for engine, report := range feedback {
		if report == nil {
			continue
		}
		evals[engine] = model.Evaluation{
			Timestamp:         now,
			CharacterAccuracy: report.CharacterAccuracy,
			WordAccuracy:      report.WordAccuracy,
			UserRating:        report.UserRating,
			Comments:          report.Comments,
		}
	}

	location, err := m.store.AppendEvaluations(ctx, evals)
	if err != nil {
		return "", fmt.Errorf("failed to update accuracy scores: %w", err)
	}

	m.logger.Info("Updated engine accuracy scores", "engines", len(evals), "location", location)
	return location, nil
}

// AccuracyHistory returns the persisted database, engines sorted by average rating
func (m *Manager) AccuracyHistory(ctx context.Context) (*model.AccuracyDatabase, []string, error) {
	if m.store == nil {
		return nil, nil, fmt.Errorf("no accuracy store configured")
	}
	db, err := m.store.Load(ctx)
	if err != nil {
		return nil, nil, err
	}

	names := make([]string, 0, len(db.Engines))
	for name := range db.Engines {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ai, aj := db.Engines[names[i]].AverageAccuracy, db.Engines[names[j]].AverageAccuracy
		if ai != aj {
			return ai > aj
		}
		return names[i] < names[j]
	})
	return db, names, nil
}
