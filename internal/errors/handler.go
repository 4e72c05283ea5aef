package errors

import (
	"sync"
	"time"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/logging"
)

// Decision tells the orchestrator what to do after an engine error
type Decision struct {
	Continue   bool      // the batch keeps going; always true today
	SkipEngine bool      // stop sending further pages of this run to the engine
	Code       ErrorCode // classified kind
}

// Failure is one recorded (engine, page) error
type Failure struct {
	Engine    string    `json:"engine"`
	Page      int       `json:"page,omitempty"`
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler applies the recovery policy and accumulates failed engines for one run.
// It is safe for concurrent use by the orchestrator's engine workers.
type Handler struct {
	mu       sync.Mutex
	failed   map[string]struct{}
	order    []string
	failures []Failure
	logger   *logging.Logger
}

// NewHandler creates an empty failure accumulator
func NewHandler(logger *logging.Logger) *Handler {
	return &Handler{
		failed: make(map[string]struct{}),
		logger: logging.OrDefault(logger, "ErrorHandler"),
	}
}

// HandleEngineError logs err according to its kind, records the engine as failed
// and returns the policy decision. page is 0 when the error is not page-scoped.
func (h *Handler) HandleEngineError(engine string, err error, page int) Decision {
	ee := Wrap(engine, page, err)
	decision := Decision{Continue: true, Code: ee.Code}

	switch ee.Code {
	case ErrorEngineNotAvailable:
		decision.SkipEngine = true
		h.logger.Warn("Engine not available, skipping for the rest of the run",
			"engine", engine, "page", page, "error", err)
	case ErrorAPILimitExceeded:
		decision.SkipEngine = true
		h.logger.Warn("API limit exceeded, skipping engine for the rest of the run",
			"engine", engine, "page", page, "error", err)
	case ErrorUnsupportedFormat:
		h.logger.Error("Unsupported input format, continuing with other pages",
			"engine", engine, "page", page, "error", err)
	case ErrorPreprocessingFailure:
		h.logger.Warn("Preprocessing failed, continuing",
			"engine", engine, "page", page, "error", err)
	default:
		h.logger.Error("Unclassified engine failure",
			"engine", engine, "page", page, "code", ee.Code, "error", err, "details", ee.ToMap())
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, seen := h.failed[engine]; !seen {
		h.failed[engine] = struct{}{}
		h.order = append(h.order, engine)
	}
	h.failures = append(h.failures, Failure{
		Engine:    engine,
		Page:      page,
		Code:      ee.Code,
		Message:   err.Error(),
		Timestamp: ee.Timestamp,
	})

	return decision
}

// ShouldContinueProcessing is false only once every engine has failed at least once
func (h *Handler) ShouldContinueProcessing(totalEngines int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.failed) < totalEngines
}

// FailedEngines returns distinct failed engine names in first-failure order
func (h *Handler) FailedEngines() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.order))
	copy(out, h.order)
	return out
}

// Failures returns every recorded failure in observation order
func (h *Handler) Failures() []Failure {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Failure, len(h.failures))
	copy(out, h.failures)
	return out
}

// ResetFailedEngines clears the accumulator
func (h *Handler) ResetFailedEngines() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failed = make(map[string]struct{})
	h.order = nil
	h.failures = nil
}
