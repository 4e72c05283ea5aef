package errors

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/logging"
)

func quietHandler() *Handler {
	return NewHandler(logging.NewLoggerWithWriter("test", &bytes.Buffer{}, logging.LevelDebug))
}

func TestHandleEngineErrorPolicy(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode ErrorCode
		wantSkip bool
	}{
		{"not available", NewEngineNotAvailableError("a", nil), ErrorEngineNotAvailable, true},
		{"api limit", NewAPILimitExceededError("a", fmt.Errorf("429")), ErrorAPILimitExceeded, true},
		{"unsupported", NewUnsupportedFormatError("a", 1, "image/x-foo"), ErrorUnsupportedFormat, false},
		{"preprocessing", NewPreprocessingError("a", 1, "deskew", fmt.Errorf("bad")), ErrorPreprocessingFailure, false},
		{"plain error", fmt.Errorf("segfault in native lib"), ErrorOCRFailed, false},
		{"wrapped", fmt.Errorf("call: %w", NewAPILimitExceededError("a", nil)), ErrorAPILimitExceeded, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := quietHandler()
			d := h.HandleEngineError("a", tc.err, 1)
			if !d.Continue {
				t.Errorf("Expected Continue=true for every kind")
			}
			if d.Code != tc.wantCode {
				t.Errorf("Code = %s, want %s", d.Code, tc.wantCode)
			}
			if d.SkipEngine != tc.wantSkip {
				t.Errorf("SkipEngine = %v, want %v", d.SkipEngine, tc.wantSkip)
			}
		})
	}
}

func TestShouldContinueProcessing(t *testing.T) {
	h := quietHandler()
	if !h.ShouldContinueProcessing(2) {
		t.Fatal("Expected to continue with no failures")
	}

	h.HandleEngineError("a", fmt.Errorf("x"), 1)
	h.HandleEngineError("a", fmt.Errorf("y"), 2)
	if !h.ShouldContinueProcessing(2) {
		t.Fatal("One engine failing twice must not stop a two-engine run")
	}

	h.HandleEngineError("b", fmt.Errorf("z"), 1)
	if h.ShouldContinueProcessing(2) {
		t.Fatal("Expected stop once every engine has failed")
	}

	if got := h.FailedEngines(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("FailedEngines = %v", got)
	}
	if got := len(h.Failures()); got != 3 {
		t.Errorf("Expected 3 recorded failures, got %d", got)
	}

	h.ResetFailedEngines()
	if len(h.FailedEngines()) != 0 || len(h.Failures()) != 0 {
		t.Error("Reset did not clear the accumulator")
	}
}

func TestHandlerConcurrentUse(t *testing.T) {
	h := quietHandler()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.HandleEngineError(fmt.Sprintf("e%d", i%5), fmt.Errorf("fail"), i)
		}(i)
	}
	wg.Wait()

	if got := len(h.FailedEngines()); got != 5 {
		t.Errorf("Expected 5 distinct failed engines, got %d", got)
	}
	if got := len(h.Failures()); got != 50 {
		t.Errorf("Expected 50 failures, got %d", got)
	}
}

func TestSentinelsMatchByCode(t *testing.T) {
	err := fmt.Errorf("process: %w", NewEngineNotFoundError("ghost"))
	if !stderrors.Is(err, ErrEngineNotFound) {
		t.Error("Expected errors.Is to match ErrEngineNotFound")
	}
	if stderrors.Is(err, ErrAllEnginesFailed) {
		t.Error("Did not expect match against a different code")
	}
}

func TestWrapTimeout(t *testing.T) {
	ee := Wrap("remote", 4, context.DeadlineExceeded)
	if ee.Code != ErrorOCRFailed || ee.Page != 4 || ee.Engine != "remote" {
		t.Fatalf("Unexpected wrap: %+v", ee)
	}
	if ee.Details["timeout"] != true {
		t.Errorf("Expected timeout detail, got %v", ee.Details)
	}
}

func TestToMap(t *testing.T) {
	m := NewOCRFailedError("tesseract", 2, fmt.Errorf("boom")).ToMap()
	if m["error_code"] != "OCR_FAILED" || m["engine"] != "tesseract" || m["page"] != 2 || m["cause"] != "boom" {
		t.Errorf("Unexpected map: %v", m)
	}
}
