/**
 * Tesseract engine - local, free, offline OCR
 *
 * Uses gosseract with the configured language packs. Word-level boxes give
 * both bounding boxes and the page confidence (mean word confidence).
 */

package engines

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/otiai10/gosseract/v2"

	ocrerrors "github.com/adverant/nexus/ocr-comparison-worker/internal/errors"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/model"
)

// TesseractEngineName is the registry key of the Tesseract engine
const TesseractEngineName = "tesseract"

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	Languages    []string // e.g. ["hin", "eng"]
	TargetScript string   // Unicode script the languages are expected to cover
}

// TesseractEngine runs gosseract in-process
type TesseractEngine struct {
	languages    []string
	targetScript string

	mu             sync.Mutex
	lastConfidence float64
}

// scriptLanguages maps Tesseract traineddata names to the script they recognize
var scriptLanguages = map[string]string{
	"hin": "Devanagari", "mar": "Devanagari", "nep": "Devanagari", "san": "Devanagari",
	"ben": "Bengali", "asm": "Bengali",
	"tam": "Tamil", "tel": "Telugu", "kan": "Kannada", "mal": "Malayalam",
	"guj": "Gujarati", "pan": "Gurmukhi", "ori": "Oriya",
	"ara": "Arabic", "urd": "Arabic", "fas": "Arabic",
	"rus": "Cyrillic", "ukr": "Cyrillic",
	"ell": "Greek", "heb": "Hebrew", "tha": "Thai",
	"eng": "Latin", "fra": "Latin", "deu": "Latin", "spa": "Latin",
}

// NewTesseractEngine creates a new Tesseract engine
func NewTesseractEngine(cfg TesseractConfig) *TesseractEngine {
	langs := cfg.Languages
	if len(langs) == 0 {
		langs = []string{"eng"}
	}
	return &TesseractEngine{
		languages:    langs,
		targetScript: cfg.TargetScript,
	}
}

func (t *TesseractEngine) Name() string         { return TesseractEngineName }
func (t *TesseractEngine) IsLocal() bool        { return true }
func (t *TesseractEngine) CostPerPage() float64 { return 0.0 }

// SupportsTargetScript reports whether any configured language pack covers the target script
func (t *TesseractEngine) SupportsTargetScript() bool {
	for _, lang := range t.languages {
		if scriptLanguages[lang] == t.targetScript {
			return true
		}
	}
	return false
}

func (t *TesseractEngine) ConfidenceScore() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastConfidence
}

// Available checks that libtesseract loads and every configured language is installed
func (t *TesseractEngine) Available(ctx context.Context) error {
	installed, err := gosseract.GetAvailableLanguages()
	if err != nil {
		return ocrerrors.NewEngineNotAvailableError(t.Name(), err)
	}

	have := make(map[string]bool, len(installed))
	for _, lang := range installed {
		have[lang] = true
	}

	var missing []string
	for _, lang := range t.languages {
		if !have[lang] {
			missing = append(missing, lang)
		}
	}
	if len(missing) > 0 {
		return ocrerrors.NewEngineNotAvailableError(t.Name(),
			fmt.Errorf("missing traineddata: %s", strings.Join(missing, ", ")))
	}

	return nil
}

// ExtractText performs OCR on one page image
func (t *TesseractEngine) ExtractText(ctx context.Context, image []byte, pageNumber int) (*model.OCRResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	startTime := time.Now()

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.languages...); err != nil {
		return nil, ocrerrors.NewEngineNotAvailableError(t.Name(), err)
	}

	if err := client.SetImageFromBytes(image); err != nil {
		return nil, ocrerrors.NewUnsupportedFormatError(t.Name(), pageNumber, err.Error())
	}

	text, err := client.Text()
	if err != nil {
		return nil, ocrerrors.NewOCRFailedError(t.Name(), pageNumber, err)
	}

	// Word boxes are best-effort; a page without them still has text
	var boxes []model.BoundingBox
	confidence := 0.0
	words, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err == nil && len(words) > 0 {
		boxes = make([]model.BoundingBox, 0, len(words))
		sum := 0.0
		for _, w := range words {
			boxes = append(boxes, model.BoundingBox{
				X:      w.Box.Min.X,
				Y:      w.Box.Min.Y,
				Width:  w.Box.Dx(),
				Height: w.Box.Dy(),
			})
			sum += w.Confidence
		}
		confidence = clamp01(sum / float64(len(words)) / 100.0)
	}

	t.mu.Lock()
	t.lastConfidence = confidence
	t.mu.Unlock()

	return &model.OCRResult{
		Text:            strings.TrimSpace(text),
		ConfidenceScore: confidence,
		BoundingBoxes:   boxes,
		ProcessingTime:  time.Since(startTime).Seconds(),
		EngineName:      t.Name(),
		PageNumber:      pageNumber,
		Timestamp:       time.Now(),
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
