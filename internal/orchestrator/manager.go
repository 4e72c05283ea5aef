/**
 * Engine registry and orchestrator
 *
 * Holds the registered engines and drives every engine over every page.
 * Engines run in a bounded worker pool; pages of one engine run sequentially
 * in ascending order. A failure on one (engine, page) pair is handed to the
 * run's error Handler and never aborts other pages or other engines.
 */

package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/engines"
	ocrerrors "github.com/adverant/nexus/ocr-comparison-worker/internal/errors"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/logging"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/model"
)

// Options configures the orchestrator
type Options struct {
	MaxConcurrentEngines int
}

// RunResult is the outcome of one orchestration call.
// Results holds every engine that was not skipped or produced at least one page.
type RunResult struct {
	RunID         string
	Results       map[string][]*model.OCRResult
	EngineOrder   []string // engines present in Results, registration order
	Failures      []ocrerrors.Failure
	FailedEngines []string
}

// PageCount returns the total number of successful (engine, page) results
func (r *RunResult) PageCount() int {
	n := 0
	for _, pages := range r.Results {
		n += len(pages)
	}
	return n
}

// Manager is the engine registry and orchestrator
type Manager struct {
	opts   Options
	logger *logging.Logger

	mu      sync.RWMutex
	engines map[string]engines.Engine
	order   []string
}

// NewManager creates an empty registry
func NewManager(opts Options, logger *logging.Logger) *Manager {
	if opts.MaxConcurrentEngines < 1 {
		opts.MaxConcurrentEngines = 1
	}
	return &Manager{
		opts:    opts,
		logger:  logging.OrDefault(logger, "Orchestrator"),
		engines: make(map[string]engines.Engine),
	}
}

// RegisterEngine probes engine and stores it under its name.
// An unavailable engine is an expected condition: it is logged and (false, nil) returned.
func (m *Manager) RegisterEngine(ctx context.Context, engine engines.Engine) (bool, error) {
	name := engine.Name()

	m.mu.RLock()
	_, exists := m.engines[name]
	m.mu.RUnlock()
	if exists {
		return false, ocrerrors.NewDuplicateEngineError(name)
	}

	if err := engine.Available(ctx); err != nil {
		m.logger.Warn("Engine unavailable, not registering", "engine", name, "error", err)
		return false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.engines[name]; exists {
		return false, ocrerrors.NewDuplicateEngineError(name)
	}
	m.engines[name] = engine
	m.order = append(m.order, name)

	m.logger.Info("Engine registered",
		"engine", name,
		"local", engine.IsLocal(),
		"costPerPage", engine.CostPerPage(),
		"supportsTargetScript", engine.SupportsTargetScript())

	return true, nil
}

// EngineNames returns registered engine names in registration order
func (m *Manager) EngineNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// Engine returns the registered engine called name
func (m *Manager) Engine(name string) (engines.Engine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.engines[name]
	return e, ok
}

// ProcessWithAllEngines runs every registered engine over images (page i is images[i-1]).
// A nil image is a page rejected upstream: it is skipped and later pages keep their numbers.
// When every engine yields zero pages the RunResult is still returned, together
// with an ALL_ENGINES_FAILED error.
func (m *Manager) ProcessWithAllEngines(ctx context.Context, images [][]byte) (*RunResult, error) {
	m.mu.RLock()
	selected := make([]engines.Engine, 0, len(m.order))
	for _, name := range m.order {
		selected = append(selected, m.engines[name])
	}
	m.mu.RUnlock()

	return m.run(ctx, selected, images)
}

// ProcessWithSingleEngine runs the engine called name over images
func (m *Manager) ProcessWithSingleEngine(ctx context.Context, name string, images [][]byte) (*RunResult, error) {
	engine, ok := m.Engine(name)
	if !ok {
		return nil, ocrerrors.NewEngineNotFoundError(name)
	}
	return m.run(ctx, []engines.Engine{engine}, images)
}

// ProcessWithEngines runs the named subset of registered engines, in registration order
func (m *Manager) ProcessWithEngines(ctx context.Context, names []string, images [][]byte) (*RunResult, error) {
	if len(names) == 0 {
		return m.ProcessWithAllEngines(ctx, images)
	}

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := m.Engine(name); !ok {
			return nil, ocrerrors.NewEngineNotFoundError(name)
		}
		wanted[name] = true
	}

	m.mu.RLock()
	selected := make([]engines.Engine, 0, len(names))
	for _, name := range m.order {
		if wanted[name] {
			selected = append(selected, m.engines[name])
		}
	}
	m.mu.RUnlock()

	return m.run(ctx, selected, images)
}

type engineOutcome struct {
	pages   []*model.OCRResult
	skipped bool
}

func (m *Manager) run(ctx context.Context, selected []engines.Engine, images [][]byte) (*RunResult, error) {
	if len(selected) == 0 {
		return nil, ocrerrors.NewNoEnginesRegisteredError()
	}
	usable := 0
	for _, image := range images {
		if image != nil {
			usable++
		}
	}
	if usable == 0 {
		return nil, ocrerrors.NewNoPagesError()
	}

	runID := uuid.New().String()
	logger := m.logger.With("run", runID)
	handler := ocrerrors.NewHandler(logger.Named("ErrorHandler"))

	logger.Info("Starting comparison run",
		"engines", len(selected),
		"pages", len(images),
		"maxConcurrent", m.opts.MaxConcurrentEngines)
	startTime := time.Now()

	outcomes := make([]engineOutcome, len(selected))
	sem := make(chan struct{}, m.opts.MaxConcurrentEngines)
	var wg sync.WaitGroup

	for i, engine := range selected {
		wg.Add(1)
		go func(i int, engine engines.Engine) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[i] = m.runEngine(ctx, engine, images, handler, logger)
		}(i, engine)
	}
	wg.Wait()

	result := &RunResult{
		RunID:         runID,
		Results:       make(map[string][]*model.OCRResult, len(selected)),
		Failures:      handler.Failures(),
		FailedEngines: handler.FailedEngines(),
	}

	for i, engine := range selected {
		outcome := outcomes[i]
		if outcome.skipped && len(outcome.pages) == 0 {
			continue
		}
		result.Results[engine.Name()] = outcome.pages
		result.EngineOrder = append(result.EngineOrder, engine.Name())
	}

	if !handler.ShouldContinueProcessing(len(selected)) {
		logger.Warn("Every engine reported at least one failure", "failedEngines", result.FailedEngines)
	}

	total := result.PageCount()
	logger.Info("Comparison run finished",
		"pages", total,
		"failures", len(result.Failures),
		"duration", time.Since(startTime))

	if total == 0 {
		return result, ocrerrors.NewAllEnginesFailedError(len(selected), len(images), result.FailedEngines, result.Failures)
	}

	return result, nil
}

// runEngine processes every page with one engine, stopping early only when the
// handler asks to skip the engine or ctx is done.
func (m *Manager) runEngine(ctx context.Context, engine engines.Engine, images [][]byte, handler *ocrerrors.Handler, logger *logging.Logger) engineOutcome {
	name := engine.Name()
	logger = logger.With("engine", name)
	var outcome engineOutcome

	for i, image := range images {
		page := i + 1
		if image == nil {
			// rejected before OCR; the page number stays reserved
			continue
		}

		if err := ctx.Err(); err != nil {
			handler.HandleEngineError(name, err, page)
			outcome.skipped = true
			break
		}

		res, err := extractPage(ctx, engine, image, page)
		if err != nil {
			decision := handler.HandleEngineError(name, err, page)
			if decision.SkipEngine {
				outcome.skipped = true
				break
			}
			continue
		}

		logger.Debug("Page processed",
			"page", page,
			"confidence", res.ConfidenceScore,
			"seconds", res.ProcessingTime,
			"chars", len(res.Text))
		outcome.pages = append(outcome.pages, res)
	}

	return outcome
}

// extractPage calls the engine with panic isolation and normalizes the result identity
func extractPage(ctx context.Context, engine engines.Engine, image []byte, page int) (res *model.OCRResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("engine panicked: %v", r)
		}
	}()

	startTime := time.Now()
	out, err := engine.ExtractText(ctx, image, page)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("engine returned no result")
	}

	normalized := *out
	normalized.PageNumber = page
	normalized.EngineName = engine.Name()
	if normalized.ConfidenceScore < 0 {
		normalized.ConfidenceScore = 0
	} else if normalized.ConfidenceScore > 1 {
		normalized.ConfidenceScore = 1
	}
	if normalized.ProcessingTime <= 0 {
		normalized.ProcessingTime = time.Since(startTime).Seconds()
	}
	if normalized.Timestamp.IsZero() {
		normalized.Timestamp = time.Now()
	}
	return &normalized, nil
}

// GetEngineComparison ranks engines by mean confidence.
// Ties are broken alphabetically by engine name; cost is per-page cost times pages processed.
func (m *Manager) GetEngineComparison(results map[string][]*model.OCRResult) *model.ComparisonReport {
	report := &model.ComparisonReport{
		EngineResults:   make(map[string]*model.OCRResult),
		QualityRankings: []model.EngineScore{},
		ProcessingTimes: make(map[string]float64),
		CostAnalysis:    make(map[string]float64),
		GeneratedAt:     time.Now(),
	}

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pages := results[name]
		if len(pages) == 0 {
			continue
		}

		var confSum, timeSum float64
		var best *model.OCRResult
		for _, r := range pages {
			confSum += r.ConfidenceScore
			timeSum += r.ProcessingTime
			if best == nil || r.ConfidenceScore > best.ConfidenceScore {
				best = r
			}
		}

		n := float64(len(pages))
		report.EngineResults[name] = best
		report.ProcessingTimes[name] = timeSum / n
		report.QualityRankings = append(report.QualityRankings, model.EngineScore{
			EngineName: name,
			Score:      confSum / n,
		})

		if engine, ok := m.Engine(name); ok {
			report.CostAnalysis[name] = engine.CostPerPage() * n
		} else {
			report.CostAnalysis[name] = 0
		}
	}

	sort.SliceStable(report.QualityRankings, func(i, j int) bool {
		return report.QualityRankings[i].Score > report.QualityRankings[j].Score
	})

	if len(report.QualityRankings) > 0 {
		report.BestPerformingEngine = report.QualityRankings[0].EngineName
	}

	return report
}
