package engines

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/clients"
	ocrerrors "github.com/adverant/nexus/ocr-comparison-worker/internal/errors"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/logging"
)

var (
	_ Engine = (*TesseractEngine)(nil)
	_ Engine = (*MageAgentEngine)(nil)
	_ Engine = (*OllamaEngine)(nil)
)

func quietLogger() *logging.Logger {
	return logging.NewLoggerWithWriter("test", &bytes.Buffer{}, logging.LevelError)
}

func TestTesseractSupportsTargetScript(t *testing.T) {
	cases := []struct {
		langs  []string
		script string
		want   bool
	}{
		{[]string{"hin", "eng"}, "Devanagari", true},
		{[]string{"eng"}, "Devanagari", false},
		{[]string{"ben"}, "Bengali", true},
		{nil, "Latin", true},
	}

	for _, tc := range cases {
		e := NewTesseractEngine(TesseractConfig{Languages: tc.langs, TargetScript: tc.script})
		if got := e.SupportsTargetScript(); got != tc.want {
			t.Errorf("SupportsTargetScript(%v, %s) = %v, want %v", tc.langs, tc.script, got, tc.want)
		}
	}
}

func TestMageAgentEngineExtractText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/internal/vision/extract-text" {
			http.NotFound(w, r)
			return
		}
		var req clients.VisionOCRRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Format != "base64" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(clients.VisionOCRResponse{
			Success: true,
			Data: clients.VisionOCRData{
				Text:       "नमस्ते दुनिया",
				Confidence: 0.93,
				ModelUsed:  "vision-large",
				Words: []clients.VisionWord{
					{Text: "नमस्ते", Confidence: 0.95, BoundingBox: clients.VisionBoundingBox{X: 1, Y: 2, Width: 30, Height: 10}},
				},
			},
		})
	}))
	defer server.Close()

	e := NewMageAgentEngine(clients.NewMageAgentClient(server.URL, quietLogger()), "hi")
	result, err := e.ExtractText(context.Background(), []byte("png-bytes"), 3)
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}

	if result.PageNumber != 3 || result.EngineName != MageAgentEngineName {
		t.Errorf("Unexpected identity: page=%d engine=%s", result.PageNumber, result.EngineName)
	}
	if result.ConfidenceScore != 0.93 || e.ConfidenceScore() != 0.93 {
		t.Errorf("Confidence not propagated: %v / %v", result.ConfidenceScore, e.ConfidenceScore())
	}
	if len(result.BoundingBoxes) != 1 || result.BoundingBoxes[0].Width != 30 {
		t.Errorf("Unexpected boxes: %+v", result.BoundingBoxes)
	}
}

func TestMageAgentStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		want   ocrerrors.ErrorCode
	}{
		{http.StatusTooManyRequests, ocrerrors.ErrorAPILimitExceeded},
		{http.StatusUnauthorized, ocrerrors.ErrorEngineNotAvailable},
		{http.StatusUnsupportedMediaType, ocrerrors.ErrorUnsupportedFormat},
		{http.StatusInternalServerError, ocrerrors.ErrorOCRFailed},
	}

	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tc.status)
			}))
			defer server.Close()

			e := NewMageAgentEngine(clients.NewMageAgentClient(server.URL, quietLogger()), "")
			_, err := e.ExtractText(context.Background(), []byte("x"), 1)
			if got := ocrerrors.Classify(err); got != tc.want {
				t.Errorf("Classify() = %s, want %s (err=%v)", got, tc.want, err)
			}
		})
	}
}

func TestMageAgentAvailable(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	e := NewMageAgentEngine(clients.NewMageAgentClient(healthy.URL, quietLogger()), "")
	if err := e.Available(context.Background()); err != nil {
		t.Errorf("Available() error = %v", err)
	}

	unconfigured := NewMageAgentEngine(nil, "")
	err := unconfigured.Available(context.Background())
	var ee *ocrerrors.EngineError
	if !stderrors.As(err, &ee) || ee.Code != ocrerrors.ErrorEngineNotAvailable {
		t.Errorf("Expected ENGINE_NOT_AVAILABLE, got %v", err)
	}
}

func TestNewOllamaEngineRejectsBadURL(t *testing.T) {
	if _, err := NewOllamaEngine(OllamaConfig{BaseURL: "not a url", Model: "m"}); err == nil {
		t.Error("Expected error for URL without host")
	}
	if _, err := NewOllamaEngine(OllamaConfig{BaseURL: "http://localhost:11434/api/chat", Model: "m"}); err != nil {
		t.Errorf("NewOllamaEngine() error = %v", err)
	}
}

func TestHeuristicConfidence(t *testing.T) {
	if got := heuristicConfidence("", "Devanagari"); got != 0 {
		t.Errorf("Empty text confidence = %v, want 0", got)
	}
	if got := heuristicConfidence("--- ...", "Devanagari"); got != 0.3 {
		t.Errorf("Punctuation-only confidence = %v, want 0.3", got)
	}

	native := heuristicConfidence("नमस्ते दुनिया", "Devanagari")
	foreign := heuristicConfidence("hello world", "Devanagari")
	if native <= foreign {
		t.Errorf("Expected target-script text to score higher: %v <= %v", native, foreign)
	}
	if native > 0.9 {
		t.Errorf("Confidence above cap: %v", native)
	}
}
