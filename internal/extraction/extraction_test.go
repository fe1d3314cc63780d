package extraction_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"docpipe/internal/blobstore"
	"docpipe/internal/bus"
	"docpipe/internal/docstore"
	"docpipe/internal/events"
	"docpipe/internal/extraction"
	"docpipe/internal/services"
	"docpipe/internal/testsupport"
)

type fakeEngine struct {
	calls     atomic.Int64
	failUntil int64
	failWith  error
	text      string
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) ExtractText(ctx context.Context, path string) (string, error) {
	call := f.calls.Add(1)
	if f.failWith != nil && (f.failUntil == 0 || call <= f.failUntil) {
		return "", f.failWith
	}
	if f.text != "" {
		return f.text, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "ocr", "read", path, err)
	}
	return string(data), nil
}

func seedSource(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("seed %s: %v", name, err)
	}
}

func TestProcessHappyPath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	blobs := blobstore.NewFS(cfg)
	router := bus.New(nil)
	defer router.Close()

	published := make(chan cloudevents.Event, 1)
	if err := router.Subscribe(events.TypeDocumentExtracted, "test", func(ctx context.Context, e cloudevents.Event) error {
		published <- e
		return nil
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	seedSource(t, cfg.Paths.InboxDir, "invoice.png", "invoice total due $56")
	doc := testsupport.NewDocument(t, store, "doc-1", "inbox/invoice.png")

	executor := extraction.NewExecutor(cfg, store, blobs, &fakeEngine{}, router, nil)
	if err := executor.Process(context.Background(), doc.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	updated, err := store.GetByID(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if updated.Status != docstore.StatusExtracted {
		t.Fatalf("status = %s, want extracted", updated.Status)
	}
	if updated.ExtractedTextLocator != "texts/doc-1.txt" {
		t.Fatalf("text locator = %q", updated.ExtractedTextLocator)
	}
	if updated.ExtractAttempts != 1 {
		t.Fatalf("attempts = %d, want 1", updated.ExtractAttempts)
	}

	data, err := blobs.Read(context.Background(), updated.ExtractedTextLocator)
	if err != nil {
		t.Fatalf("Read artifact: %v", err)
	}
	if string(data) != "invoice total due $56" {
		t.Fatalf("artifact = %q", data)
	}

	select {
	case e := <-published:
		payload, err := events.Payload(e)
		if err != nil {
			t.Fatalf("Payload: %v", err)
		}
		if payload.DocumentID != doc.ID || payload.TextLocator != "texts/doc-1.txt" {
			t.Fatalf("payload = %#v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for extracted event")
	}
}

func TestProcessDuplicateTriggerExtractsOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	blobs := blobstore.NewFS(cfg)

	seedSource(t, cfg.Paths.InboxDir, "receipt.jpg", "receipt")
	doc := testsupport.NewDocument(t, store, "doc-1", "inbox/receipt.jpg")

	engine := &fakeEngine{}
	executor := extraction.NewExecutor(cfg, store, blobs, engine, nil, nil)

	for i := 0; i < 3; i++ {
		if err := executor.Process(context.Background(), doc.ID); err != nil {
			t.Fatalf("Process delivery %d: %v", i, err)
		}
	}

	if calls := engine.calls.Load(); calls != 1 {
		t.Fatalf("engine called %d times, want 1", calls)
	}
	updated, _ := store.GetByID(context.Background(), doc.ID)
	if updated.ExtractAttempts != 1 {
		t.Fatalf("attempts = %d, want 1", updated.ExtractAttempts)
	}
}

func TestProcessRetriesTransientFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(3))
	cfg.Pipeline.RetryBackoffMillis = 1
	store := testsupport.MustOpenStore(t, cfg)
	blobs := blobstore.NewFS(cfg)

	seedSource(t, cfg.Paths.InboxDir, "contract.pdf", "service agreement")
	doc := testsupport.NewDocument(t, store, "doc-1", "inbox/contract.pdf")

	engine := &fakeEngine{
		failUntil: 2,
		failWith:  services.Wrap(services.ErrTransient, "ocr", "extract", "backend busy", nil),
	}
	executor := extraction.NewExecutor(cfg, store, blobs, engine, nil, nil)

	if err := executor.Process(context.Background(), doc.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	updated, _ := store.GetByID(context.Background(), doc.ID)
	if updated.Status != docstore.StatusExtracted {
		t.Fatalf("status = %s, want extracted", updated.Status)
	}
	if updated.ExtractAttempts != 3 {
		t.Fatalf("attempts = %d, want 3", updated.ExtractAttempts)
	}
}

func TestProcessExhaustedRetriesReturnsExhausted(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(2))
	cfg.Pipeline.RetryBackoffMillis = 1
	store := testsupport.MustOpenStore(t, cfg)
	blobs := blobstore.NewFS(cfg)

	seedSource(t, cfg.Paths.InboxDir, "stuck.pdf", "data")
	doc := testsupport.NewDocument(t, store, "doc-1", "inbox/stuck.pdf")

	engine := &fakeEngine{
		failWith: services.Wrap(services.ErrTransient, "ocr", "extract", "backend down", nil),
	}
	executor := extraction.NewExecutor(cfg, store, blobs, engine, nil, nil)

	err := executor.Process(context.Background(), doc.ID)
	if !errors.Is(err, services.ErrExhausted) {
		t.Fatalf("expected exhausted marker, got %v", err)
	}

	updated, _ := store.GetByID(context.Background(), doc.ID)
	if updated.Status != docstore.StatusExtracting {
		t.Fatalf("status = %s; failure routing is the lane's job", updated.Status)
	}
	if updated.ExtractAttempts != 2 {
		t.Fatalf("attempts = %d, want 2", updated.ExtractAttempts)
	}
}

func TestProcessPermanentErrorIsNotRetried(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(3))
	store := testsupport.MustOpenStore(t, cfg)
	blobs := blobstore.NewFS(cfg)

	seedSource(t, cfg.Paths.InboxDir, "poison.pdf", "data")
	doc := testsupport.NewDocument(t, store, "doc-1", "inbox/poison.pdf")

	engine := &fakeEngine{
		failWith: services.Wrap(services.ErrValidation, "ocr", "open", "corrupt document", nil),
	}
	executor := extraction.NewExecutor(cfg, store, blobs, engine, nil, nil)

	err := executor.Process(context.Background(), doc.ID)
	if !services.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls := engine.calls.Load(); calls != 1 {
		t.Fatalf("engine called %d times, want 1", calls)
	}
}

func TestProcessSkipsTerminalRecord(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	blobs := blobstore.NewFS(cfg)

	doc := testsupport.NewDocument(t, store, "doc-1", "inbox/done.pdf")
	if err := store.MarkFailed(context.Background(), doc.ID, "intake", "unsupported file type"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	engine := &fakeEngine{}
	executor := extraction.NewExecutor(cfg, store, blobs, engine, nil, nil)
	if err := executor.Process(context.Background(), doc.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if calls := engine.calls.Load(); calls != 0 {
		t.Fatalf("engine called %d times, want 0", calls)
	}
}
