package testsupport

import (
	"path/filepath"
	"testing"

	"docpipe/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.InboxDir = filepath.Join(base, "inbox")
	cfg.Paths.ProcessedDir = filepath.Join(base, "processed")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.OCR.Engine = "stub"
	cfg.Pipeline.PollInterval = 1
	cfg.Pipeline.InboxScanInterval = 1

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithMaxAttempts overrides the bounded retry attempts on the test config.
func WithMaxAttempts(attempts int) ConfigOption {
	return func(c *config.Config) {
		c.Pipeline.MaxAttempts = attempts
	}
}

// WithNtfyTopic points notifications at the provided endpoint (usually a
// httptest server URL).
func WithNtfyTopic(topic string) ConfigOption {
	return func(c *config.Config) {
		c.Notifications.NtfyTopic = topic
	}
}
