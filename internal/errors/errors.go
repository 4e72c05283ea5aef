package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

/**
 * Error taxonomy for the OCR comparison worker
 *
 * Engine failures are classified by ErrorCode so the Handler policy table can
 * decide whether an engine keeps receiving pages. Orchestration-level codes
 * cover the few conditions that are surfaced to callers as hard failures.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Engine errors (non-fatal to the batch)
	ErrorEngineNotAvailable   ErrorCode = "ENGINE_NOT_AVAILABLE"
	ErrorAPILimitExceeded     ErrorCode = "API_LIMIT_EXCEEDED"
	ErrorUnsupportedFormat    ErrorCode = "UNSUPPORTED_FORMAT"
	ErrorPreprocessingFailure ErrorCode = "PREPROCESSING_FAILED"
	ErrorOCRFailed            ErrorCode = "OCR_FAILED"

	// Orchestration errors
	ErrorEngineNotFound      ErrorCode = "ENGINE_NOT_FOUND"
	ErrorDuplicateEngine     ErrorCode = "DUPLICATE_ENGINE"
	ErrorAllEnginesFailed    ErrorCode = "ALL_ENGINES_FAILED"
	ErrorNoEnginesRegistered ErrorCode = "NO_ENGINES_REGISTERED"
	ErrorNoPages             ErrorCode = "NO_PAGES"

	// Storage errors
	ErrorStorageFailed   ErrorCode = "STORAGE_FAILED"
	ErrorInvalidFeedback ErrorCode = "INVALID_FEEDBACK"
)

// Sentinels usable with errors.Is against any *EngineError carrying the same code
var (
	ErrEngineNotFound      = &EngineError{Code: ErrorEngineNotFound}
	ErrDuplicateEngine     = &EngineError{Code: ErrorDuplicateEngine}
	ErrAllEnginesFailed    = &EngineError{Code: ErrorAllEnginesFailed}
	ErrNoEnginesRegistered = &EngineError{Code: ErrorNoEnginesRegistered}
	ErrNoPages             = &EngineError{Code: ErrorNoPages}
)

// EngineError represents a structured engine or orchestration error
type EngineError struct {
	Code      ErrorCode
	Message   string
	Engine    string
	Page      int // 0 when not page-scoped
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Is matches on code so sentinels compare equal to any error of the same kind
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Factory functions for common errors

func NewEngineNotAvailableError(engine string, cause error) *EngineError {
	return &EngineError{
		Code:      ErrorEngineNotAvailable,
		Message:   fmt.Sprintf("Engine %s is not available", engine),
		Engine:    engine,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewAPILimitExceededError(engine string, cause error) *EngineError {
	return &EngineError{
		Code:      ErrorAPILimitExceeded,
		Message:   fmt.Sprintf("API quota or rate limit exceeded for %s", engine),
		Engine:    engine,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewUnsupportedFormatError(engine string, page int, format string) *EngineError {
	return &EngineError{
		Code:      ErrorUnsupportedFormat,
		Message:   fmt.Sprintf("Unsupported input format: %s", format),
		Engine:    engine,
		Page:      page,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"format": format,
		},
	}
}

func NewPreprocessingError(engine string, page int, step string, cause error) *EngineError {
	return &EngineError{
		Code:      ErrorPreprocessingFailure,
		Message:   fmt.Sprintf("Preprocessing step %s failed", step),
		Engine:    engine,
		Page:      page,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"step": step,
		},
		Cause: cause,
	}
}

func NewOCRFailedError(engine string, page int, cause error) *EngineError {
	return &EngineError{
		Code:      ErrorOCRFailed,
		Message:   fmt.Sprintf("OCR failed on page %d", page),
		Engine:    engine,
		Page:      page,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewEngineNotFoundError(engine string) *EngineError {
	return &EngineError{
		Code:      ErrorEngineNotFound,
		Message:   fmt.Sprintf("Engine not found: %s", engine),
		Engine:    engine,
		Timestamp: time.Now(),
	}
}

func NewDuplicateEngineError(engine string) *EngineError {
	return &EngineError{
		Code:      ErrorDuplicateEngine,
		Message:   fmt.Sprintf("Engine already registered: %s", engine),
		Engine:    engine,
		Timestamp: time.Now(),
	}
}

// NewAllEnginesFailedError carries the run's accumulated failures so the job
// record keeps which engines failed and why
func NewAllEnginesFailedError(engines int, pages int, failedEngines []string, failures []Failure) *EngineError {
	if failedEngines == nil {
		failedEngines = []string{}
	}
	if failures == nil {
		failures = []Failure{}
	}
	message := fmt.Sprintf("All %d engines produced no output for %d pages", engines, pages)
	if len(failedEngines) > 0 {
		message += fmt.Sprintf(" (failed: %s)", strings.Join(failedEngines, ", "))
	}
	return &EngineError{
		Code:      ErrorAllEnginesFailed,
		Message:   message,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"engines":        engines,
			"pages":          pages,
			"failed_engines": failedEngines,
			"failures":       failures,
		},
	}
}

func NewNoEnginesRegisteredError() *EngineError {
	return &EngineError{
		Code:      ErrorNoEnginesRegistered,
		Message:   "No engines registered",
		Timestamp: time.Now(),
	}
}

func NewNoPagesError() *EngineError {
	return &EngineError{
		Code:      ErrorNoPages,
		Message:   "No page images supplied",
		Timestamp: time.Now(),
	}
}

func NewInvalidFeedbackError(reason string, cause error) *EngineError {
	return &EngineError{
		Code:      ErrorInvalidFeedback,
		Message:   fmt.Sprintf("Invalid evaluation feedback: %s", reason),
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewStorageFailedError(location string, cause error) *EngineError {
	return &EngineError{
		Code:      ErrorStorageFailed,
		Message:   fmt.Sprintf("Failed to persist accuracy data at %s", location),
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// Classify returns the code of the first EngineError in err's chain.
// Deadline and cancellation errors are reported as OCR failures with a timeout detail.
func Classify(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var ee *EngineError
	if stderrors.As(err, &ee) {
		return ee.Code
	}
	return ErrorOCRFailed
}

// Wrap ensures err is an *EngineError scoped to engine and page
func Wrap(engine string, page int, err error) *EngineError {
	var ee *EngineError
	if stderrors.As(err, &ee) {
		scoped := *ee
		if scoped.Engine == "" {
			scoped.Engine = engine
		}
		if scoped.Page == 0 {
			scoped.Page = page
		}
		if scoped.Timestamp.IsZero() {
			scoped.Timestamp = time.Now()
		}
		return &scoped
	}
	wrapped := NewOCRFailedError(engine, page, err)
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		wrapped.Details = map[string]interface{}{"timeout": true}
	}
	return wrapped
}

// ToMap converts error to map for job status storage
func (e *EngineError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	if e.Engine != "" {
		result["engine"] = e.Engine
	}
	if e.Page > 0 {
		result["page"] = e.Page
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
