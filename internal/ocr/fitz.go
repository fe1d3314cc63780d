package ocr

import (
	"context"
	"strings"

	"github.com/gen2brain/go-fitz"

	"docpipe/internal/services"
)

// FitzEngine extracts text with MuPDF. It handles PDFs natively and renders
// image formats through the same document API.
type FitzEngine struct{}

// NewFitzEngine builds the MuPDF-backed engine.
func NewFitzEngine() *FitzEngine {
	return &FitzEngine{}
}

// Name implements Engine.
func (e *FitzEngine) Name() string { return "fitz" }

// ExtractText implements Engine. Documents MuPDF cannot open are poison
// input, not a backend fault.
func (e *FitzEngine) ExtractText(ctx context.Context, path string) (string, error) {
	if err := checkContext(ctx, "open", path); err != nil {
		return "", err
	}

	doc, err := fitz.New(path)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "ocr", "open", path, err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return "", services.Wrap(services.ErrValidation, "ocr", "open", path+": document has no pages", nil)
	}

	var builder strings.Builder
	for page := 0; page < pageCount; page++ {
		if err := checkContext(ctx, "extract page", path); err != nil {
			return "", err
		}
		text, err := doc.Text(page)
		if err != nil {
			return "", services.Wrap(services.ErrValidation, "ocr", "extract page", path, err)
		}
		if builder.Len() > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(text)
	}
	return builder.String(), nil
}
