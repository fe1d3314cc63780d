package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"docpipe/internal/blobstore"
	"docpipe/internal/bus"
	"docpipe/internal/classify"
	"docpipe/internal/config"
	"docpipe/internal/docstore"
	"docpipe/internal/extraction"
	"docpipe/internal/intake"
	"docpipe/internal/logging"
	"docpipe/internal/notifications"
	"docpipe/internal/ocr"
	"docpipe/internal/retry"
	"docpipe/internal/sink"
)

// Manager wires the stage executors to their triggers and supervises the
// processing lanes.
type Manager struct {
	cfg      *config.Config
	store    *docstore.Store
	isolated *sink.Store
	blobs    blobstore.Store
	router   *bus.Bus
	notifier notifications.Service
	logger   *slog.Logger

	intake     *intake.Executor
	extraction *extraction.Executor
	classify   *classify.Executor
	watcher    *intake.Watcher

	pollInterval       time.Duration
	errorRetryInterval time.Duration
	reclaimAfter       time.Duration
	notifyPolicy       retry.Policy

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// NewManager constructs a pipeline manager and its stage executors.
func NewManager(
	cfg *config.Config,
	store *docstore.Store,
	isolated *sink.Store,
	blobs blobstore.Store,
	engine ocr.Engine,
	router *bus.Bus,
	notifier notifications.Service,
	logger *slog.Logger,
) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}

	m := &Manager{
		cfg:      cfg,
		store:    store,
		isolated: isolated,
		blobs:    blobs,
		router:   router,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "pipeline"),

		pollInterval:       time.Duration(cfg.Pipeline.PollInterval) * time.Second,
		errorRetryInterval: time.Duration(cfg.Pipeline.ErrorRetryInterval) * time.Second,
		reclaimAfter:       time.Duration(cfg.Pipeline.ReclaimAfter) * time.Second,
		notifyPolicy: retry.Policy{
			MaxAttempts:    cfg.Pipeline.MaxAttempts,
			InitialBackoff: time.Duration(cfg.Pipeline.RetryBackoffMillis) * time.Millisecond,
		},
	}
	if m.pollInterval <= 0 {
		m.pollInterval = 2 * time.Second
	}
	if m.errorRetryInterval <= 0 {
		m.errorRetryInterval = 5 * time.Second
	}

	m.intake = intake.NewExecutor(store, blobs, logger)
	m.extraction = extraction.NewExecutor(cfg, store, blobs, engine, router, logger)
	m.classify = classify.NewExecutor(cfg, store, blobs, router, logger)
	m.watcher = intake.NewWatcher(cfg, m.handleObjectCreated, logger)
	return m
}

// LastError reports the most recent lane-level error, for health output.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// Running reports whether the lanes are active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
