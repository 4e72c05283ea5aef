// Package engines defines the capability contract every OCR engine satisfies
// and ships the engines the worker can run out of the box.
package engines

import (
	"context"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/model"
)

// Engine is an independent text-recognition implementation, local or remote.
type Engine interface {
	// ExtractText recognizes one encoded page image. The result must carry
	// pageNumber and Name().
	ExtractText(ctx context.Context, image []byte, pageNumber int) (*model.OCRResult, error)
	Name() string
	SupportsTargetScript() bool
	// ConfidenceScore reflects the most recent ExtractText call.
	ConfidenceScore() float64
	IsLocal() bool
	CostPerPage() float64
	// Available probes runtime dependencies or credentials; nil means usable.
	Available(ctx context.Context) error
}
