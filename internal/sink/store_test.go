package sink_test

import (
	"context"
	"testing"

	"docpipe/internal/sink"
	"docpipe/internal/testsupport"
)

func TestRecordListRemove(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenSink(t, cfg)
	ctx := context.Background()

	first := &sink.Entry{
		DocumentID: "doc-1",
		Stage:      "extraction",
		Reason:     "extraction_exhausted",
		Payload:    []byte(`{"document_id":"doc-1"}`),
		Attempts:   3,
		LastError:  "ocr timed out",
	}
	id, err := store.Record(ctx, first)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if id == 0 {
		t.Fatal("expected assigned id")
	}

	if _, err := store.Record(ctx, &sink.Entry{
		DocumentID: "doc-2",
		Stage:      "intake",
		Reason:     "unsupported file type",
	}); err != nil {
		t.Fatalf("Record second: %v", err)
	}

	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].DocumentID != "doc-1" || entries[0].Attempts != 3 {
		t.Fatalf("unexpected first entry: %#v", entries[0])
	}
	if string(entries[0].Payload) != `{"document_id":"doc-1"}` {
		t.Fatalf("payload = %q", entries[0].Payload)
	}

	fetched, err := store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fetched.Reason != "extraction_exhausted" || fetched.LastError != "ocr timed out" {
		t.Fatalf("unexpected entry: %#v", fetched)
	}

	removed, err := store.Remove(ctx, id)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 remaining, got %d", count)
	}

	if _, err := store.GetByID(ctx, id); err == nil {
		t.Fatal("expected error for removed entry")
	}
}

func TestRecordRequiresDocumentID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenSink(t, cfg)

	if _, err := store.Record(context.Background(), &sink.Entry{Stage: "extraction"}); err == nil {
		t.Fatal("expected error for missing document id")
	}
	if _, err := store.Record(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil entry")
	}
}
