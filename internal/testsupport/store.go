package testsupport

import (
	"context"
	"testing"

	"docpipe/internal/config"
	"docpipe/internal/docstore"
	"docpipe/internal/sink"
)

// MustOpenStore opens a docstore.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *docstore.Store {
	t.Helper()

	store, err := docstore.Open(cfg)
	if err != nil {
		t.Fatalf("docstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenSink opens a sink.Store for tests and registers cleanup.
func MustOpenSink(t testing.TB, cfg *config.Config) *sink.Store {
	t.Helper()

	store, err := sink.Open(cfg)
	if err != nil {
		t.Fatalf("sink.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewDocument creates a received document record for tests using the provided
// store.
func NewDocument(t testing.TB, store *docstore.Store, id, locator string) *docstore.Document {
	t.Helper()

	doc := &docstore.Document{
		ID:               id,
		SourceLocator:    locator,
		OriginalFileName: locator,
		ContentType:      "application/pdf",
		SizeBytes:        1024,
	}
	created, err := store.CreateIfAbsent(context.Background(), doc)
	if err != nil {
		t.Fatalf("store.CreateIfAbsent: %v", err)
	}
	if !created {
		t.Fatalf("expected new record for %s", id)
	}
	fetched, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("store.GetByID: %v", err)
	}
	return fetched
}
