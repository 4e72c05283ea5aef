package queue

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"time"

	ocrerrors "github.com/adverant/nexus/ocr-comparison-worker/internal/errors"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/logging"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/processor"
)

const defaultProcessingTimeout = 600000 * time.Millisecond

// permanentCodes are failures a retry cannot fix
var permanentCodes = map[ocrerrors.ErrorCode]bool{
	ocrerrors.ErrorNoPages:              true,
	ocrerrors.ErrorUnsupportedFormat:    true,
	ocrerrors.ErrorPreprocessingFailure: true,
	ocrerrors.ErrorEngineNotFound:       true,
	ocrerrors.ErrorNoEnginesRegistered:  true,
	ocrerrors.ErrorInvalidFeedback:      true,
}

// Retryable reports whether a failed job is worth another attempt
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var ee *ocrerrors.EngineError
	if !stderrors.As(err, &ee) {
		return true
	}
	return !permanentCodes[ee.Code]
}

// jobRunner is the part of job handling both transports share
type jobRunner struct {
	processor processor.ComparisonProcessorInterface
	fetcher   PageFetcher
	timeout   time.Duration
	logger    *logging.Logger
}

func newJobRunner(proc processor.ComparisonProcessorInterface, fetcher PageFetcher, timeoutMs int64, logger *logging.Logger) *jobRunner {
	timeout := defaultProcessingTimeout
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}
	return &jobRunner{
		processor: proc,
		fetcher:   fetcher,
		timeout:   timeout,
		logger:    logger,
	}
}

// run executes one job and records its final status. The job store update
// for a failure is only written when final is true.
func (r *jobRunner) run(ctx context.Context, payload *JobPayload, final func(error) bool) (*processor.ProcessResult, error) {
	startTime := time.Now()
	logger := r.logger.With("job", payload.JobID)

	if err := r.processor.UpdateJobStatus(ctx, payload.JobID, processor.StatusProcessing, map[string]interface{}{
		"pages":    len(payload.Pages) + len(payload.PageURLs),
		"userId":   payload.UserID,
		"engines":  payload.Engines,
		"metadata": payload.Metadata,
	}); err != nil {
		logger.Warn("Failed to update status to processing", "error", err)
	}

	processCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.execute(processCtx, payload)
	duration := time.Since(startTime)

	if err != nil {
		if processCtx.Err() == context.DeadlineExceeded {
			logger.Error("Processing timed out", "duration", duration, "timeout", r.timeout)
			err = fmt.Errorf("processing timeout after %v: %w", r.timeout, err)
		} else {
			logger.Error("Processing failed", "duration", duration, "error", err)
		}

		if final(err) {
			if updateErr := r.processor.RecordFailure(ctx, payload.JobID, err); updateErr != nil {
				logger.Warn("Failed to update status to failed", "error", updateErr)
			}
		}
		return nil, err
	}

	if err := r.processor.RecordCompletion(ctx, result); err != nil {
		logger.Warn("Failed to update status to completed", "error", err)
	}

	logger.Info("Processing completed",
		"duration", duration,
		"best_engine", result.Comparison.BestPerformingEngine,
		"failed_engines", result.FailedEngines)
	return result, nil
}

func (r *jobRunner) execute(ctx context.Context, payload *JobPayload) (*processor.ProcessResult, error) {
	req, err := payload.Request(ctx, r.fetcher)
	if err != nil {
		return nil, err
	}
	for _, f := range req.PageFailures {
		r.logger.Warn("Page rejected before OCR", "job", payload.JobID, "page", f.Page, "code", f.Code, "error", f.Message)
	}
	return r.processor.ProcessComparison(ctx, req)
}

// formCSV renders the job's evaluation form
func formCSV(result *processor.ProcessResult) (string, error) {
	var buf bytes.Buffer
	if err := result.EvaluationForm.WriteCSV(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
