package engines

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/ollama/ollama/api"

	ocrerrors "github.com/adverant/nexus/ocr-comparison-worker/internal/errors"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/model"
)

// OllamaEngineName is the registry key of the Ollama vision engine
const OllamaEngineName = "ollama"

const transcribePrompt = "Transcribe all text in this image exactly as written, preserving line breaks " +
	"and table layout. Output only the transcription, with no commentary."

// OllamaConfig holds Ollama configuration
type OllamaConfig struct {
	BaseURL      string
	Model        string
	TargetScript string
	Timeout      time.Duration
}

// OllamaEngine transcribes pages with a self-hosted vision model.
// Vision models report no confidence, so the score is a text-shape heuristic.
type OllamaEngine struct {
	client       *api.Client
	model        string
	targetScript string
	timeout      time.Duration

	mu             sync.Mutex
	lastConfidence float64
}

// NewOllamaEngine creates an engine talking to the Ollama server at cfg.BaseURL
func NewOllamaEngine(cfg OllamaConfig) (*OllamaEngine, error) {
	parsedURL, err := url.Parse(cfg.BaseURL)
	if err != nil || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid OLLAMA_URL %q", cfg.BaseURL)
	}

	baseURL := &url.URL{Scheme: parsedURL.Scheme, Host: parsedURL.Host}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Second // vision models on CPU are slow
	}

	return &OllamaEngine{
		client:       api.NewClient(baseURL, http.DefaultClient),
		model:        cfg.Model,
		targetScript: cfg.TargetScript,
		timeout:      timeout,
	}, nil
}

func (o *OllamaEngine) Name() string               { return OllamaEngineName }
func (o *OllamaEngine) IsLocal() bool              { return false }
func (o *OllamaEngine) CostPerPage() float64       { return 0.0 }
func (o *OllamaEngine) SupportsTargetScript() bool { return true }

func (o *OllamaEngine) ConfidenceScore() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastConfidence
}

func (o *OllamaEngine) Available(ctx context.Context) error {
	if err := o.client.Heartbeat(ctx); err != nil {
		return ocrerrors.NewEngineNotAvailableError(o.Name(), err)
	}
	return nil
}

func (o *OllamaEngine) ExtractText(ctx context.Context, image []byte, pageNumber int) (*model.OCRResult, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	startTime := time.Now()

	streamFalse := false
	req := &api.ChatRequest{
		Model: o.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: transcribePrompt,
				Images:  []api.ImageData{api.ImageData(image)},
			},
		},
		Stream:  &streamFalse,
		Options: map[string]any{"temperature": 0},
	}

	var content strings.Builder
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return nil, classifyOllamaError(o.Name(), pageNumber, err)
	}

	text := strings.TrimSpace(content.String())
	confidence := heuristicConfidence(text, o.targetScript)

	o.mu.Lock()
	o.lastConfidence = confidence
	o.mu.Unlock()

	return &model.OCRResult{
		Text:            text,
		ConfidenceScore: confidence,
		ProcessingTime:  time.Since(startTime).Seconds(),
		EngineName:      o.Name(),
		PageNumber:      pageNumber,
		Timestamp:       time.Now(),
	}, nil
}

func classifyOllamaError(engine string, page int, err error) error {
	var se api.StatusError
	if stderrors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusNotFound:
			// model not pulled
			return ocrerrors.NewEngineNotAvailableError(engine, err)
		case http.StatusTooManyRequests, http.StatusServiceUnavailable:
			return ocrerrors.NewAPILimitExceededError(engine, err)
		case http.StatusBadRequest:
			return ocrerrors.NewUnsupportedFormatError(engine, page, se.ErrorMessage)
		}
	}
	return ocrerrors.Wrap(engine, page, err)
}

// heuristicConfidence scores a transcription in [0.3, 0.9]: longer text and a
// higher share of target-script letters raise it.
func heuristicConfidence(text, targetScript string) float64 {
	if text == "" {
		return 0.0
	}

	confidence := 0.5
	if len([]rune(text)) > 200 {
		confidence += 0.1
	}

	table := unicode.Scripts[targetScript]
	letters, inScript := 0, 0
	for _, r := range text {
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) {
			continue
		}
		letters++
		if table != nil && unicode.Is(table, r) {
			inScript++
		}
	}

	if letters == 0 {
		return 0.3
	}
	confidence += 0.3 * float64(inScript) / float64(letters)

	if confidence > 0.9 {
		confidence = 0.9
	}
	return confidence
}
