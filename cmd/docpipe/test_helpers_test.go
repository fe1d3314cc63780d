package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"docpipe/internal/config"
	"docpipe/internal/docstore"
	"docpipe/internal/sink"
	"docpipe/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *docstore.Store
	isolated   *sink.Store
	configPath string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	cfg.Paths.APIBind = ""

	configPath := filepath.Join(t.TempDir(), "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		store:      testsupport.MustOpenStore(t, cfg),
		isolated:   testsupport.MustOpenSink(t, cfg),
		configPath: configPath,
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// classifiedDocument walks a record through the full lifecycle so list and
// replay commands have something real to act on.
func classifiedDocument(t *testing.T, store *docstore.Store, id, category string) *docstore.Document {
	t.Helper()
	ctx := context.Background()

	doc := testsupport.NewDocument(t, store, id, "inbox/"+id+".pdf")
	steps := []struct {
		from, to docstore.Status
		update   *docstore.TransitionUpdate
	}{
		{docstore.StatusReceived, docstore.StatusExtracting, nil},
		{docstore.StatusExtracting, docstore.StatusExtracted, &docstore.TransitionUpdate{ExtractedTextLocator: "texts/" + id + ".txt"}},
		{docstore.StatusExtracted, docstore.StatusClassifying, nil},
		{docstore.StatusClassifying, docstore.StatusClassified, &docstore.TransitionUpdate{Category: category}},
	}
	for _, step := range steps {
		if err := store.Transition(ctx, doc.ID, step.from, step.to, step.update); err != nil {
			t.Fatalf("transition %s -> %s: %v", step.from, step.to, err)
		}
	}

	updated, err := store.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	return updated
}

func failedDocument(t *testing.T, store *docstore.Store, id, stage, reason string) *docstore.Document {
	t.Helper()
	ctx := context.Background()

	doc := testsupport.NewDocument(t, store, id, "inbox/"+id+".pdf")
	if err := store.MarkFailed(ctx, doc.ID, stage, reason); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	updated, err := store.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	return updated
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
