package ocr_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"docpipe/internal/ocr"
	"docpipe/internal/services"
	"docpipe/internal/testsupport"
)

func TestNewEngineSelectsBackend(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	cfg.OCR.Engine = "stub"
	engine, err := ocr.NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine stub: %v", err)
	}
	if engine.Name() != "stub" {
		t.Fatalf("engine = %q", engine.Name())
	}

	cfg.OCR.Engine = "fitz"
	engine, err = ocr.NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine fitz: %v", err)
	}
	if engine.Name() != "fitz" {
		t.Fatalf("engine = %q", engine.Name())
	}

	cfg.OCR.Engine = "tesseract"
	if _, err := ocr.NewEngine(cfg); err == nil {
		t.Fatal("expected error for unknown engine")
	}
}

func TestStubEngineReadsFixture(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "invoice.png")
	if err := os.WriteFile(path, []byte("invoice total due"), 0o644); err != nil {
		t.Fatalf("seed fixture: %v", err)
	}

	engine := ocr.NewStubEngine()
	text, err := engine.ExtractText(context.Background(), path)
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if text != "invoice total due" {
		t.Fatalf("text = %q", text)
	}
}

func TestStubEngineMissingFileIsPermanent(t *testing.T) {
	engine := ocr.NewStubEngine()
	_, err := engine.ExtractText(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	if !services.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestStubEngineHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := ocr.NewStubEngine()
	_, err := engine.ExtractText(ctx, "anything")
	if !services.IsTransient(err) {
		t.Fatalf("expected timeout-tagged error, got %v", err)
	}
}

func TestFitzEngineRejectsCorruptDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corrupt.pdf")
	if err := os.WriteFile(path, []byte("%PDF-not really"), 0o644); err != nil {
		t.Fatalf("seed fixture: %v", err)
	}

	engine := ocr.NewFitzEngine()
	_, err := engine.ExtractText(context.Background(), path)
	if !services.IsPermanent(err) {
		t.Fatalf("expected permanent error for corrupt pdf, got %v", err)
	}
}
