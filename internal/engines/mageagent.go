/**
 * MageAgent engine - remote vision OCR
 *
 * MageAgent routes the page to its best available vision model. HTTP status
 * codes are mapped onto the engine error taxonomy so quota exhaustion and
 * credential problems stop the engine for the rest of a run.
 */

package engines

import (
	"context"
	stderrors "errors"
	"net/http"
	"sync"
	"time"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/clients"
	ocrerrors "github.com/adverant/nexus/ocr-comparison-worker/internal/errors"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/model"
)

const (
	// MageAgentEngineName is the registry key of the MageAgent engine
	MageAgentEngineName = "mageagent"

	mageAgentCostPerPage = 0.0015
)

// MageAgentEngine adapts MageAgentClient to the Engine contract
type MageAgentEngine struct {
	client         *clients.MageAgentClient
	language       string
	preferAccuracy bool

	mu             sync.Mutex
	lastConfidence float64
}

// NewMageAgentEngine creates an engine backed by client. language is passed
// through to MageAgent ("hi", "multi", ...).
func NewMageAgentEngine(client *clients.MageAgentClient, language string) *MageAgentEngine {
	if language == "" {
		language = "multi"
	}
	return &MageAgentEngine{
		client:         client,
		language:       language,
		preferAccuracy: true,
	}
}

func (m *MageAgentEngine) Name() string               { return MageAgentEngineName }
func (m *MageAgentEngine) IsLocal() bool              { return false }
func (m *MageAgentEngine) CostPerPage() float64       { return mageAgentCostPerPage }
func (m *MageAgentEngine) SupportsTargetScript() bool { return true }

func (m *MageAgentEngine) ConfidenceScore() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastConfidence
}

func (m *MageAgentEngine) Available(ctx context.Context) error {
	if m.client == nil {
		return ocrerrors.NewEngineNotAvailableError(m.Name(), stderrors.New("MAGEAGENT_URL not configured"))
	}
	if err := m.client.HealthCheck(ctx); err != nil {
		return ocrerrors.NewEngineNotAvailableError(m.Name(), err)
	}
	return nil
}

func (m *MageAgentEngine) ExtractText(ctx context.Context, image []byte, pageNumber int) (*model.OCRResult, error) {
	startTime := time.Now()

	resp, err := m.client.ExtractTextFromBytes(ctx, image, m.preferAccuracy, m.language)
	if err != nil {
		return nil, classifyMageAgentError(m.Name(), pageNumber, err)
	}

	boxes := make([]model.BoundingBox, 0, len(resp.Data.Words))
	for _, w := range resp.Data.Words {
		boxes = append(boxes, model.BoundingBox{
			X:      w.BoundingBox.X,
			Y:      w.BoundingBox.Y,
			Width:  w.BoundingBox.Width,
			Height: w.BoundingBox.Height,
		})
	}

	confidence := clamp01(resp.Data.Confidence)
	m.mu.Lock()
	m.lastConfidence = confidence
	m.mu.Unlock()

	return &model.OCRResult{
		Text:            resp.Data.Text,
		ConfidenceScore: confidence,
		BoundingBoxes:   boxes,
		ProcessingTime:  time.Since(startTime).Seconds(),
		EngineName:      m.Name(),
		PageNumber:      pageNumber,
		Timestamp:       time.Now(),
	}, nil
}

// classifyMageAgentError maps transport failures onto engine error codes
func classifyMageAgentError(engine string, page int, err error) error {
	var se *clients.StatusError
	if !stderrors.As(err, &se) {
		return ocrerrors.Wrap(engine, page, err)
	}

	switch se.StatusCode {
	case http.StatusTooManyRequests, http.StatusPaymentRequired:
		return ocrerrors.NewAPILimitExceededError(engine, err)
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusServiceUnavailable:
		return ocrerrors.NewEngineNotAvailableError(engine, err)
	case http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge:
		return ocrerrors.NewUnsupportedFormatError(engine, page, se.Body)
	default:
		return ocrerrors.NewOCRFailedError(engine, page, err)
	}
}
