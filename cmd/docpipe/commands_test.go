package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"docpipe/internal/docstore"
	"docpipe/internal/sink"
	"docpipe/internal/testsupport"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env.configPath, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, env.configPath, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	// A second init refuses to clobber the file.
	if _, _, err := runCLI(t, env.configPath, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error for existing config file")
	}
}

func TestStatusCommandSummarizesPipeline(t *testing.T) {
	env := setupCLITestEnv(t)
	classifiedDocument(t, env.store, "doc-invoice", "INVOICE")
	failedDocument(t, env.store, "doc-broken", "extraction", "extraction_exhausted")

	out, _, err := runCLI(t, env.configPath, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Daemon")
	requireContains(t, out, "classified")
	requireContains(t, out, "failed")
	requireContains(t, out, "Total: 2")
}

func TestListCommandFiltersByStatus(t *testing.T) {
	env := setupCLITestEnv(t)
	classifiedDocument(t, env.store, "doc-invoice", "INVOICE")
	failedDocument(t, env.store, "doc-broken", "extraction", "extraction_exhausted")

	out, _, err := runCLI(t, env.configPath, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, "doc-invoice")
	requireContains(t, out, "doc-broken")

	out, _, err = runCLI(t, env.configPath, "list", "--status", "failed")
	if err != nil {
		t.Fatalf("list --status failed: %v", err)
	}
	requireContains(t, out, "doc-broken")
	if strings.Contains(out, "doc-invoice") {
		t.Fatalf("expected only failed documents, got %q", out)
	}

	if _, _, err := runCLI(t, env.configPath, "list", "--status", "bogus"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestShowCommandResolvesIDPrefix(t *testing.T) {
	env := setupCLITestEnv(t)
	doc := classifiedDocument(t, env.store, "doc-invoice", "INVOICE")

	out, _, err := runCLI(t, env.configPath, "show", doc.ID)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, doc.ID)
	requireContains(t, out, "INVOICE")

	out, _, err = runCLI(t, env.configPath, "show", doc.ID[:8])
	if err != nil {
		t.Fatalf("show by prefix: %v", err)
	}
	requireContains(t, out, doc.ID)

	if _, _, err := runCLI(t, env.configPath, "show", "no-such-document"); err == nil {
		t.Fatal("expected error for missing document")
	}
}

func TestRetryCommandResetsFailedDocument(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	doc := failedDocument(t, env.store, "doc-broken", "extraction", "extraction_exhausted")

	// The pipeline archived the source when it isolated the document.
	archiveDir := filepath.Join(env.cfg.Paths.ProcessedDir, "archive")
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		t.Fatalf("mkdir archive: %v", err)
	}
	if err := os.WriteFile(filepath.Join(archiveDir, "doc-broken.pdf"), []byte("pdf-bytes"), 0o644); err != nil {
		t.Fatalf("seed archive: %v", err)
	}
	if _, err := env.isolated.Record(ctx, &sink.Entry{
		DocumentID: doc.ID,
		Stage:      "extraction",
		Reason:     "extraction_exhausted",
	}); err != nil {
		t.Fatalf("seed sink: %v", err)
	}

	out, _, err := runCLI(t, env.configPath, "retry", doc.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	requireContains(t, out, "Retried 1 failed documents")

	updated, err := env.store.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if updated.Status != docstore.StatusReceived {
		t.Fatalf("status = %s, want received", updated.Status)
	}
	if updated.FailureReason != "" || updated.FailedStage != "" {
		t.Fatalf("expected cleared failure details, got %q/%q", updated.FailureReason, updated.FailedStage)
	}

	if _, err := os.Stat(filepath.Join(env.cfg.Paths.InboxDir, "doc-broken.pdf")); err != nil {
		t.Fatalf("expected restored source in inbox: %v", err)
	}
	count, err := env.isolated.Count(ctx)
	if err != nil {
		t.Fatalf("sink count: %v", err)
	}
	if count != 0 {
		t.Fatalf("sink count = %d, want 0", count)
	}

	// A healthy document is refused.
	healthy := classifiedDocument(t, env.store, "doc-invoice", "INVOICE")
	out, _, err = runCLI(t, env.configPath, "retry", healthy.ID)
	if err != nil {
		t.Fatalf("retry healthy: %v", err)
	}
	requireContains(t, out, "is not failed")
}

func TestIsolatedListReplayAndRemove(t *testing.T) {
	notified := atomic.Int64{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		notified.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	env := setupCLITestEnv(t, testsupport.WithNtfyTopic(srv.URL))
	ctx := context.Background()

	// A classified document whose notification never went out.
	doc := classifiedDocument(t, env.store, "doc-invoice", "INVOICE")
	entryID, err := env.isolated.Record(ctx, &sink.Entry{
		DocumentID: doc.ID,
		Stage:      "notify",
		Reason:     "notification_exhausted",
	})
	if err != nil {
		t.Fatalf("seed sink: %v", err)
	}

	out, _, err := runCLI(t, env.configPath, "isolated", "list")
	if err != nil {
		t.Fatalf("isolated list: %v", err)
	}
	requireContains(t, out, "notification_exhausted")

	out, _, err = runCLI(t, env.configPath, "isolated", "show", strconv.FormatInt(entryID, 10))
	if err != nil {
		t.Fatalf("isolated show: %v", err)
	}
	requireContains(t, out, doc.ID)

	out, _, err = runCLI(t, env.configPath, "isolated", "replay", strconv.FormatInt(entryID, 10))
	if err != nil {
		t.Fatalf("isolated replay: %v", err)
	}
	requireContains(t, out, "Notification delivered")
	if got := notified.Load(); got != 1 {
		t.Fatalf("notification requests = %d, want 1", got)
	}

	updated, err := env.store.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if updated.NotifiedAt == nil {
		t.Fatal("expected notified timestamp")
	}
	count, err := env.isolated.Count(ctx)
	if err != nil {
		t.Fatalf("sink count: %v", err)
	}
	if count != 0 {
		t.Fatalf("sink count = %d, want 0", count)
	}

	// Remove discards entries without touching the record.
	other, err := env.isolated.Record(ctx, &sink.Entry{DocumentID: "gone", Stage: "extraction", Reason: "extraction_exhausted"})
	if err != nil {
		t.Fatalf("seed sink: %v", err)
	}
	out, _, err = runCLI(t, env.configPath, "isolated", "remove", strconv.FormatInt(other, 10))
	if err != nil {
		t.Fatalf("isolated remove: %v", err)
	}
	requireContains(t, out, "Removed 1 isolated entries")
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env.configPath, "test-notify")
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Notifications are not configured")
}
