package ocr

import (
	"context"
	"os"

	"docpipe/internal/services"
)

// StubEngine treats the source file's bytes as its text content. It exists
// for tests and local experiments where a plain-text fixture stands in for a
// scanned document.
type StubEngine struct{}

// NewStubEngine builds the stub backend.
func NewStubEngine() *StubEngine {
	return &StubEngine{}
}

// Name implements Engine.
func (e *StubEngine) Name() string { return "stub" }

// ExtractText implements Engine.
func (e *StubEngine) ExtractText(ctx context.Context, path string) (string, error) {
	if err := checkContext(ctx, "read", path); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", services.Wrap(services.ErrValidation, "ocr", "read", path, err)
	}
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "ocr", "read", path, err)
	}
	return string(data), nil
}
