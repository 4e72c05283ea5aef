/**
 * Comparison Processor for the OCR Comparison Worker
 *
 * Runs one comparison job end to end:
 * - every selected engine over every page (orchestrator)
 * - reference-free quality per engine
 * - reference-based accuracy and confidence correlation when references are given
 * - comparison report, table, dashboard, detailed report, charts and evaluation form
 *
 * Report rendering is best-effort: a rendering failure becomes a note on the
 * result and never fails the job.
 */

package processor

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/accuracy"
	ocrerrors "github.com/adverant/nexus/ocr-comparison-worker/internal/errors"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/evaluation"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/logging"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/model"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/orchestrator"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/quality"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/report"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/storage"
)

// Job statuses written to the job store and queue
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ComparisonProcessorInterface is what the queue consumers need from the processor
type ComparisonProcessorInterface interface {
	ProcessComparison(ctx context.Context, req *ProcessRequest) (*ProcessResult, error)
	UpdateJobStatus(ctx context.Context, jobID string, status string, metadata map[string]interface{}) error
	RecordCompletion(ctx context.Context, result *ProcessResult) error
	RecordFailure(ctx context.Context, jobID string, cause error) error
}

// JobStore persists comparison job status
type JobStore interface {
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
}

// ProcessorConfig holds processor dependencies
type ProcessorConfig struct {
	Options      Options
	Orchestrator *orchestrator.Manager
	Jobs         JobStore         // optional
	Store        evaluation.Store // optional, needed for feedback ingestion
	Logger       *logging.Logger
}

// ProcessRequest is one comparison job
type ProcessRequest struct {
	JobID string
	// Pages are encoded page images; page N is Pages[N-1]. A nil entry is a
	// page rejected before OCR that keeps its number.
	Pages [][]byte
	// PageFailures describes the rejected pages
	PageFailures []ocrerrors.Failure
	// References holds known-correct text keyed by page number
	References map[int]string
	// Engines restricts the run to a subset; empty means every registered engine
	Engines  []string
	Metadata map[string]interface{}
}

// ProcessResult is everything one comparison run produced
type ProcessResult struct {
	JobID            string                                  `json:"job_id"`
	RunID            string                                  `json:"run_id"`
	PagesSubmitted   int                                     `json:"pages_submitted"`
	EngineOrder      []string                                `json:"engines"`
	Comparison       *model.ComparisonReport                 `json:"comparison"`
	Table            []report.Row                            `json:"table"`
	QualityReports   map[string]*model.QualityReport         `json:"quality_reports"`
	QualitySummary   quality.Summary                         `json:"quality_summary"`
	AccuracyReports  map[string]*model.AccuracyReport        `json:"accuracy_reports,omitempty"`
	Correlations     map[string]accuracy.CorrelationAnalysis `json:"correlations,omitempty"`
	ErrorAnalyses    map[string]accuracy.ErrorAnalysis       `json:"error_analyses,omitempty"`
	Failures         []ocrerrors.Failure                     `json:"failures"`
	FailedEngines    []string                                `json:"failed_engines"`
	Notes            []string                                `json:"notes,omitempty"`
	ProcessingTimeMs int64                                   `json:"processing_time_ms"`

	Results            map[string][]*model.OCRResult `json:"-"`
	DashboardHTML      string                        `json:"-"`
	DetailedReport     string                        `json:"-"`
	DetailedReportHTML string                        `json:"-"`
	Charts             map[string]string             `json:"-"`
	EvaluationForm     *evaluation.Form              `json:"-"`
}

// BestScore returns the winning engine's ranking score, zero when nothing ranked
func (r *ProcessResult) BestScore() float64 {
	if r.Comparison == nil || len(r.Comparison.QualityRankings) == 0 {
		return 0
	}
	return r.Comparison.QualityRankings[0].Score
}

// FeedbackResult is the outcome of ingesting one filled evaluation form
type FeedbackResult struct {
	Reports     map[string]*model.AccuracyReport
	Location    string
	Summary     string
	SummaryHTML string
}

// ComparisonProcessor runs comparison jobs
type ComparisonProcessor struct {
	opts         Options
	orchestrator *orchestrator.Manager
	jobs         JobStore
	assessor     *quality.Assessor
	calculator   *accuracy.Calculator
	reporter     *report.Reporter
	evaluation   *evaluation.Manager
	logger       *logging.Logger
}

// NewComparisonProcessor creates a processor around an orchestrator that
// already has its engines registered
func NewComparisonProcessor(cfg *ProcessorConfig) (*ComparisonProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}

	logger := logging.OrDefault(cfg.Logger, "ComparisonProcessor")

	return &ComparisonProcessor{
		opts:         cfg.Options,
		orchestrator: cfg.Orchestrator,
		jobs:         cfg.Jobs,
		assessor:     quality.NewAssessor(cfg.Options.Quality, logger.Named("QualityAssessor")),
		calculator:   accuracy.NewCalculator(cfg.Options.Accuracy, logger.Named("AccuracyCalculator")),
		reporter:     report.NewReporter(cfg.Options.Report, logger.Named("ComparisonReporter")),
		evaluation:   evaluation.NewManager(cfg.Options.Evaluation, cfg.Store, logger.Named("EvaluationManager")),
		logger:       logger,
	}, nil
}

// ProcessComparison runs the comparison pipeline over req.Pages
func (p *ComparisonProcessor) ProcessComparison(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	if usablePages(req.Pages) == 0 {
		return nil, ocrerrors.NewNoPagesError()
	}
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	logger := p.logger.With("job", req.JobID)
	logger.Info("Starting comparison pipeline", "pages", len(req.Pages), "references", len(req.References))

	// Step 1: Run the engines
	var run *orchestrator.RunResult
	var err error
	if len(req.Engines) > 0 {
		logger.Info("Step 1: Running selected engines", "engines", req.Engines)
		run, err = p.orchestrator.ProcessWithEngines(ctx, req.Engines, req.Pages)
	} else {
		logger.Info("Step 1: Running all registered engines", "engines", p.orchestrator.EngineNames())
		run, err = p.orchestrator.ProcessWithAllEngines(ctx, req.Pages)
	}
	if err != nil {
		return nil, fmt.Errorf("engine run failed: %w", err)
	}

	result := &ProcessResult{
		JobID:           req.JobID,
		RunID:           run.RunID,
		PagesSubmitted:  len(req.Pages),
		EngineOrder:     run.EngineOrder,
		Results:         run.Results,
		Failures:        run.Failures,
		FailedEngines:   run.FailedEngines,
		QualityReports:  make(map[string]*model.QualityReport, len(run.Results)),
		AccuracyReports: map[string]*model.AccuracyReport{},
		Correlations:    map[string]accuracy.CorrelationAnalysis{},
		ErrorAnalyses:   map[string]accuracy.ErrorAnalysis{},
	}
	result.Failures = append(append([]ocrerrors.Failure{}, req.PageFailures...), result.Failures...)
	for _, f := range req.PageFailures {
		result.note("page %d rejected before OCR: %s", f.Page, f.Message)
	}
	if result.FailedEngines == nil {
		result.FailedEngines = []string{}
	}
	logger.Info("Engines finished", "run", run.RunID, "results", run.PageCount(), "failed_engines", run.FailedEngines)

	// Step 2: Reference-free quality
	logger.Info("Step 2: Assessing text quality")
	reports := make([]*model.QualityReport, 0, len(run.EngineOrder))
	for _, name := range run.EngineOrder {
		text, confidences := aggregate(run.Results[name])
		assessment := p.assessor.AssessTextQuality(text, confidences, name)
		if assessment.Degraded {
			result.note("quality assessment for %s degraded: %s", name, assessment.Reason)
		}
		result.QualityReports[name] = assessment.Report
		reports = append(reports, assessment.Report)
	}
	result.QualitySummary = quality.CompareQualityReports(reports)

	// Step 3: Reference-based accuracy
	if len(req.References) > 0 {
		logger.Info("Step 3: Measuring accuracy against references")
		for _, name := range run.EngineOrder {
			pages := run.Results[name]
			acc := p.calculator.CreateComprehensiveAccuracyReport(pages, req.References, name)
			if acc.Degraded {
				result.note("accuracy report for %s degraded: %s", name, acc.Reason)
			}
			result.AccuracyReports[name] = acc.Report
			result.Correlations[name] = p.calculator.AnalyzeConfidenceCorrelation(pages, req.References)
			if analysis, ok := p.calculator.AnalyzeEngineErrors(pages, req.References); ok {
				result.ErrorAnalyses[name] = analysis
			}
		}
	} else {
		logger.Info("Step 3: No references supplied, skipping accuracy")
	}

	// Step 4: Reports
	logger.Info("Step 4: Building comparison reports")
	result.Comparison = p.orchestrator.GetEngineComparison(run.Results)
	result.Table = p.reporter.CreateEngineComparisonTable(run.Results, result.QualityReports)

	if result.DashboardHTML, err = p.reporter.GeneratePerformanceDashboard(run.Results, result.QualityReports); err != nil {
		result.note("dashboard not rendered: %v", err)
	}

	result.DetailedReport = p.reporter.CreateDetailedComparisonReport(run.Results, result.QualityReports)
	if section := p.reporter.CreateErrorAnalysisSection(result.ErrorAnalyses); section != "" {
		result.DetailedReport += "\n" + section
	}
	if result.DetailedReportHTML, err = report.RenderHTML(result.DetailedReport); err != nil {
		result.note("detailed report HTML not rendered: %v", err)
	}

	if result.Charts, err = p.reporter.GenerateCharts(run.Results, result.QualityReports); err != nil {
		result.note("charts incomplete: %v", err)
	}

	result.EvaluationForm = p.evaluation.GenerateEvaluationForm(run.Results)

	for _, n := range result.Notes {
		logger.Warn("Pipeline note", "note", n)
	}

	result.ProcessingTimeMs = time.Since(startTime).Milliseconds()
	logger.Info("Comparison completed",
		"best_engine", result.Comparison.BestPerformingEngine,
		"duration_ms", result.ProcessingTimeMs)

	return result, nil
}

// IngestFeedback parses a filled evaluation form, records the reviewer scores
// in the accuracy database and summarizes them
func (p *ComparisonProcessor) IngestFeedback(ctx context.Context, r io.Reader) (*FeedbackResult, error) {
	form, err := evaluation.ParseForm(r)
	if err != nil {
		return nil, err
	}

	reports := p.evaluation.ProcessManualFeedback(form)
	if len(reports) == 0 {
		return nil, ocrerrors.NewInvalidFeedbackError("no row carries a valid accuracy score", nil)
	}

	location, err := p.evaluation.UpdateEngineAccuracyScores(ctx, reports)
	if err != nil {
		return nil, err
	}

	result := &FeedbackResult{
		Reports:  reports,
		Location: location,
		Summary:  p.evaluation.GenerateEvaluationSummary(reports),
	}
	// The feedback is already persisted; a rendering failure only loses the HTML view
	if result.SummaryHTML, err = report.RenderHTML(result.Summary); err != nil {
		p.logger.Warn("Failed to render evaluation summary", "error", err)
	}
	return result, nil
}

// AccuracyHistory returns the persisted per-engine evaluation history, best first
func (p *ComparisonProcessor) AccuracyHistory(ctx context.Context) (*model.AccuracyDatabase, []string, error) {
	return p.evaluation.AccuracyHistory(ctx)
}

// UpdateJobStatus updates job status in the job store
func (p *ComparisonProcessor) UpdateJobStatus(ctx context.Context, jobID string, status string, metadata map[string]interface{}) error {
	update := &storage.JobUpdate{
		JobID:    jobID,
		Status:   status,
		Metadata: metadata,
	}

	// Extract specific fields from metadata if present
	if metadata != nil {
		if pages, ok := metadata["pages"].(int); ok {
			update.PagesProcessed = pages
		}
		if errorMsg, ok := metadata["error"].(string); ok {
			update.ErrorCode = "PROCESSING_ERROR"
			update.ErrorMessage = errorMsg
		}
		if code, ok := metadata["code"].(string); ok {
			update.ErrorCode = code
		}
	}

	return p.saveJob(ctx, update)
}

// RecordCompletion stores the summary of a finished comparison
func (p *ComparisonProcessor) RecordCompletion(ctx context.Context, result *ProcessResult) error {
	update := &storage.JobUpdate{
		JobID:            result.JobID,
		Status:           StatusCompleted,
		BestScore:        result.BestScore(),
		EnginesCompared:  len(result.EngineOrder),
		PagesProcessed:   result.PagesSubmitted,
		FailedEngines:    result.FailedEngines,
		ProcessingTimeMs: result.ProcessingTimeMs,
		Metadata: map[string]interface{}{
			"runId":         result.RunID,
			"qualityBest":   result.QualitySummary.BestEngine,
			"failureCount":  len(result.Failures),
			"charts":        chartNames(result.Charts),
			"notes":         result.Notes,
			"accuracyRated": len(result.AccuracyReports) > 0,
		},
	}
	if result.Comparison != nil {
		update.BestEngine = result.Comparison.BestPerformingEngine
	}
	return p.saveJob(ctx, update)
}

// RecordFailure stores a failed job with its classified error
func (p *ComparisonProcessor) RecordFailure(ctx context.Context, jobID string, cause error) error {
	if cause == nil {
		cause = fmt.Errorf("unknown error")
	}
	return p.saveJob(ctx, &storage.JobUpdate{
		JobID:        jobID,
		Status:       StatusFailed,
		ErrorCode:    string(ocrerrors.Classify(cause)),
		ErrorMessage: cause.Error(),
		Metadata:     ocrerrors.Wrap("", 0, cause).ToMap(),
	})
}

func (p *ComparisonProcessor) saveJob(ctx context.Context, update *storage.JobUpdate) error {
	if p.jobs == nil {
		p.logger.Debug("No job store configured", "job", update.JobID, "status", update.Status)
		return nil
	}
	if err := p.jobs.UpdateJobStatus(ctx, update); err != nil {
		return fmt.Errorf("failed to update job %s to %s: %w", update.JobID, update.Status, err)
	}
	return nil
}

func (r *ProcessResult) note(format string, args ...interface{}) {
	r.Notes = append(r.Notes, fmt.Sprintf(format, args...))
}

func usablePages(images [][]byte) int {
	n := 0
	for _, image := range images {
		if image != nil {
			n++
		}
	}
	return n
}

// aggregate joins page texts in page order and collects per-page confidences
func aggregate(pages []*model.OCRResult) (string, []float64) {
	sorted := make([]*model.OCRResult, 0, len(pages))
	for _, p := range pages {
		if p != nil {
			sorted = append(sorted, p)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].PageNumber < sorted[j].PageNumber })

	texts := make([]string, 0, len(sorted))
	confidences := make([]float64, 0, len(sorted))
	for _, p := range sorted {
		if strings.TrimSpace(p.Text) != "" {
			texts = append(texts, p.Text)
		}
		confidences = append(confidences, p.ConfidenceScore)
	}
	return strings.Join(texts, "\n\n"), confidences
}

func chartNames(charts map[string]string) []string {
	names := make([]string, 0, len(charts))
	for name := range charts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
