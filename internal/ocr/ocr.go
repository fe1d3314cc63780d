// Package ocr extracts text from source documents. The Engine interface
// isolates the pipeline from the extraction backend; errors are tagged with
// the services markers so executors can tell retryable trouble from poison
// input.
package ocr

import (
	"context"
	"fmt"

	"docpipe/internal/config"
	"docpipe/internal/services"
)

// Engine extracts text from the document at path.
type Engine interface {
	// ExtractText returns the document's text content. A corrupt or
	// unreadable document yields services.ErrValidation; backend trouble
	// yields services.ErrTransient.
	ExtractText(ctx context.Context, path string) (string, error)
	// Name identifies the backend in logs.
	Name() string
}

// NewEngine builds the configured extraction backend.
func NewEngine(cfg *config.Config) (Engine, error) {
	switch cfg.OCR.Engine {
	case "fitz":
		return NewFitzEngine(), nil
	case "stub":
		return NewStubEngine(), nil
	default:
		return nil, fmt.Errorf("unknown ocr engine %q", cfg.OCR.Engine)
	}
}

func checkContext(ctx context.Context, operation, path string) error {
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrTimeout, "ocr", operation, path, err)
	}
	return nil
}
