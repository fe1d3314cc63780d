package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"docpipe/internal/blobstore"
	"docpipe/internal/bus"
	"docpipe/internal/config"
	"docpipe/internal/docstore"
	"docpipe/internal/intake"
	"docpipe/internal/notifications"
	"docpipe/internal/ocr"
	"docpipe/internal/pipeline"
	"docpipe/internal/services"
	"docpipe/internal/sink"
	"docpipe/internal/testsupport"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
	loads  []notifications.Payload
	fail   error
}

func (r *recordingNotifier) Publish(ctx context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.events = append(r.events, event)
	r.loads = append(r.loads, payload)
	return nil
}

func (r *recordingNotifier) recorded() ([]notifications.Event, []notifications.Payload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notifications.Event(nil), r.events...), append([]notifications.Payload(nil), r.loads...)
}

type failingEngine struct{}

func (failingEngine) Name() string { return "failing" }

func (failingEngine) ExtractText(ctx context.Context, path string) (string, error) {
	return "", services.Wrap(services.ErrTransient, "ocr", "extract", "backend down", nil)
}

func newTestConfig(t *testing.T) *config.Config {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(2))
	cfg.Pipeline.RetryBackoffMillis = 1
	return cfg
}

func startManager(t *testing.T, cfg *config.Config, engine ocr.Engine, notifier notifications.Service) (*pipeline.Manager, *docstore.Store, *sink.Store) {
	t.Helper()

	store := testsupport.MustOpenStore(t, cfg)
	isolated := testsupport.MustOpenSink(t, cfg)
	router := bus.New(nil)
	t.Cleanup(router.Close)

	if engine == nil {
		var err error
		engine, err = ocr.NewEngine(cfg)
		if err != nil {
			t.Fatalf("ocr.NewEngine: %v", err)
		}
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	manager := pipeline.NewManager(cfg, store, isolated, blobstore.NewFS(cfg), engine, router, notifier, nil)
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("manager.Start: %v", err)
	}
	t.Cleanup(manager.Stop)
	return manager, store, isolated
}

func waitFor(t *testing.T, timeout time.Duration, describe string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", describe)
}

func seedInbox(t *testing.T, cfg *config.Config, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(cfg.Paths.InboxDir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("seed %s: %v", name, err)
	}
}

func TestPipelineProcessesDocumentEndToEnd(t *testing.T) {
	cfg := newTestConfig(t)
	notifier := &recordingNotifier{}
	_, store, _ := startManager(t, cfg, nil, notifier)

	seedInbox(t, cfg, "invoice.png", "invoice #42 amount due $56")
	id := intake.DocumentID("inbox/invoice.png")

	waitFor(t, 10*time.Second, "document classified and notified", func() bool {
		doc, err := store.GetByID(context.Background(), id)
		return err == nil && doc.Status == docstore.StatusClassified && doc.NotifiedAt != nil
	})

	doc, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if doc.Category != "INVOICE" {
		t.Fatalf("category = %q, want INVOICE", doc.Category)
	}
	if doc.ExtractedTextLocator == "" {
		t.Fatal("expected extracted text locator")
	}

	events, payloads := notifier.recorded()
	if len(events) != 1 || events[0] != notifications.EventDocumentClassified {
		t.Fatalf("notifications = %v", events)
	}
	if payloads[0].Category != "INVOICE" || payloads[0].OriginalFileName != "invoice.png" {
		t.Fatalf("payload = %#v", payloads[0])
	}

	// The source object leaves the inbox once the document is done.
	waitFor(t, 5*time.Second, "source archived", func() bool {
		_, err := os.Stat(filepath.Join(cfg.Paths.InboxDir, "invoice.png"))
		return os.IsNotExist(err)
	})
}

func TestPipelineRejectsUnsupportedObject(t *testing.T) {
	cfg := newTestConfig(t)
	notifier := &recordingNotifier{}
	_, store, isolated := startManager(t, cfg, nil, notifier)

	seedInbox(t, cfg, "notes.docx", "not a supported type")
	id := intake.DocumentID("inbox/notes.docx")

	waitFor(t, 10*time.Second, "record failed at intake", func() bool {
		doc, err := store.GetByID(context.Background(), id)
		return err == nil && doc.Status == docstore.StatusFailed
	})

	doc, _ := store.GetByID(context.Background(), id)
	if doc.FailureReason != intake.ReasonUnsupportedFileType {
		t.Fatalf("reason = %q", doc.FailureReason)
	}

	waitFor(t, 5*time.Second, "sink entry recorded", func() bool {
		entries, err := isolated.List(context.Background())
		return err == nil && len(entries) == 1
	})
	entries, _ := isolated.List(context.Background())
	if entries[0].Stage != "intake" || entries[0].DocumentID != id {
		t.Fatalf("sink entry = %#v", entries[0])
	}

	events, _ := notifier.recorded()
	if len(events) != 1 || events[0] != notifications.EventDocumentFailed {
		t.Fatalf("notifications = %v", events)
	}
}

func TestPipelineIsolatesExhaustedDocumentWithoutBlockingOthers(t *testing.T) {
	cfg := newTestConfig(t)
	notifier := &recordingNotifier{}

	// All extractions fail, so every document exhausts its budget. The point
	// is that each failure is isolated per document.
	_, store, isolated := startManager(t, cfg, failingEngine{}, notifier)

	seedInbox(t, cfg, "first.png", "ignored")
	seedInbox(t, cfg, "second.png", "ignored")
	firstID := intake.DocumentID("inbox/first.png")
	secondID := intake.DocumentID("inbox/second.png")

	for _, id := range []string{firstID, secondID} {
		id := id
		waitFor(t, 15*time.Second, "record failed after exhaustion", func() bool {
			doc, err := store.GetByID(context.Background(), id)
			return err == nil && doc.Status == docstore.StatusFailed
		})
	}

	for _, id := range []string{firstID, secondID} {
		doc, _ := store.GetByID(context.Background(), id)
		if doc.FailureReason != pipeline.ReasonExtractionExhausted {
			t.Fatalf("reason = %q", doc.FailureReason)
		}
		if doc.FailedStage != "extraction" {
			t.Fatalf("stage = %q", doc.FailedStage)
		}
		if doc.ExtractAttempts != 2 {
			t.Fatalf("attempts = %d, want 2", doc.ExtractAttempts)
		}
	}

	waitFor(t, 5*time.Second, "both sink entries recorded", func() bool {
		count, err := isolated.Count(context.Background())
		return err == nil && count == 2
	})
}

func TestPipelineFailedDocumentDoesNotBlockHealthyOne(t *testing.T) {
	cfg := newTestConfig(t)
	_, store, _ := startManager(t, cfg, nil, &recordingNotifier{})

	seedInbox(t, cfg, "bad.docx", "unsupported")
	seedInbox(t, cfg, "receipt.jpg", "receipt for purchase")
	badID := intake.DocumentID("inbox/bad.docx")
	goodID := intake.DocumentID("inbox/receipt.jpg")

	waitFor(t, 10*time.Second, "bad record failed", func() bool {
		doc, err := store.GetByID(context.Background(), badID)
		return err == nil && doc.Status == docstore.StatusFailed
	})
	waitFor(t, 10*time.Second, "good record classified", func() bool {
		doc, err := store.GetByID(context.Background(), goodID)
		return err == nil && doc.Status == docstore.StatusClassified
	})

	doc, _ := store.GetByID(context.Background(), goodID)
	if doc.Category != "RECEIPT" {
		t.Fatalf("category = %q, want RECEIPT", doc.Category)
	}
}

func TestPipelineRecoversInFlightWorkOnStartup(t *testing.T) {
	cfg := newTestConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	blobs := blobstore.NewFS(cfg)
	ctx := context.Background()

	// A record stuck in extracted from a previous run, artifact intact.
	doc := testsupport.NewDocument(t, store, "doc-recover", "inbox/old.pdf")
	locator, err := blobs.WriteText(ctx, doc.ID, "service agreement between parties")
	if err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	if err := store.Transition(ctx, doc.ID, docstore.StatusReceived, docstore.StatusExtracting, nil); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.Transition(ctx, doc.ID, docstore.StatusExtracting, docstore.StatusExtracted, &docstore.TransitionUpdate{
		ExtractedTextLocator: locator,
	}); err != nil {
		t.Fatalf("complete extraction: %v", err)
	}

	isolated := testsupport.MustOpenSink(t, cfg)
	router := bus.New(nil)
	t.Cleanup(router.Close)
	engine, err := ocr.NewEngine(cfg)
	if err != nil {
		t.Fatalf("ocr.NewEngine: %v", err)
	}

	manager := pipeline.NewManager(cfg, store, isolated, blobs, engine, router, &recordingNotifier{}, nil)
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("manager.Start: %v", err)
	}
	t.Cleanup(manager.Stop)

	waitFor(t, 10*time.Second, "recovered record classified", func() bool {
		updated, err := store.GetByID(ctx, doc.ID)
		return err == nil && updated.Status == docstore.StatusClassified && updated.NotifiedAt != nil
	})

	updated, _ := store.GetByID(ctx, doc.ID)
	if updated.Category != "CONTRACT" {
		t.Fatalf("category = %q, want CONTRACT", updated.Category)
	}
}

func TestPipelineNotificationFailureLeavesRecordClassified(t *testing.T) {
	cfg := newTestConfig(t)
	notifier := &recordingNotifier{
		fail: services.Wrap(services.ErrTransient, "notifications", "send", "ntfy unreachable", nil),
	}
	_, store, isolated := startManager(t, cfg, nil, notifier)

	seedInbox(t, cfg, "invoice.png", "invoice total")
	id := intake.DocumentID("inbox/invoice.png")

	waitFor(t, 15*time.Second, "notification parked in sink", func() bool {
		entries, err := isolated.List(context.Background())
		if err != nil {
			return false
		}
		for _, entry := range entries {
			if entry.Stage == "notify" {
				return true
			}
		}
		return false
	})

	doc, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if doc.Status != docstore.StatusClassified {
		t.Fatalf("status = %s, want classified", doc.Status)
	}
	if doc.NotifiedAt != nil {
		t.Fatal("expected no notification recorded")
	}
	if doc.FailureReason != "" {
		t.Fatalf("unexpected failure reason %q", doc.FailureReason)
	}
}
