package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"docpipe/internal/api"
	"docpipe/internal/blobstore"
	"docpipe/internal/bus"
	"docpipe/internal/config"
	"docpipe/internal/docstore"
	"docpipe/internal/logging"
	"docpipe/internal/notifications"
	"docpipe/internal/ocr"
	"docpipe/internal/pipeline"
	"docpipe/internal/preflight"
	"docpipe/internal/sink"
)

// Daemon owns the long-running pipeline services.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *docstore.Store
	isolated *sink.Store
	router   *bus.Bus
	manager  *pipeline.Manager
	docSvc   *api.DocumentService
	server   *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon and its dependency graph from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	store, err := docstore.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}
	isolated, err := sink.Open(cfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open isolation sink: %w", err)
	}
	engine, err := ocr.NewEngine(cfg)
	if err != nil {
		_ = isolated.Close()
		_ = store.Close()
		return nil, err
	}

	router := bus.New(logger)
	blobs := blobstore.NewFS(cfg)
	notifier := notifications.NewService(cfg)
	manager := pipeline.NewManager(cfg, store, isolated, blobs, engine, router, notifier, logger)

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		isolated: isolated,
		router:   router,
		manager:  manager,
		docSvc:   api.NewDocumentService(store, isolated),
		lockPath: filepath.Join(cfg.Paths.LogDir, "docpiped.lock"),
	}
	d.lock = flock.New(d.lockPath)
	d.server = newAPIServer(cfg, d.docSvc, d.logger)
	return d, nil
}

// Start acquires the instance lock and launches the pipeline and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another docpipe daemon instance is already running")
	}

	for _, result := range preflight.RunAll(ctx, d.cfg) {
		if result.Passed {
			continue
		}
		d.logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail))
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.manager.Start(runCtx); err != nil {
		cancel()
		d.cancel = nil
		_ = d.lock.Unlock()
		return fmt.Errorf("start pipeline: %w", err)
	}
	if err := d.server.start(runCtx); err != nil {
		d.manager.Stop()
		cancel()
		d.cancel = nil
		_ = d.lock.Unlock()
		return err
	}

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("lock", d.lockPath),
		logging.String("inbox", d.cfg.Paths.InboxDir))
	return nil
}

// Stop stops background processing and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.server.stop()
	d.manager.Stop()
	d.router.Close()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and releases its stores.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.isolated != nil {
		errs = append(errs, d.isolated.Close())
	}
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	return errors.Join(errs...)
}

// Running reports whether the daemon is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// APIAddr reports the bound status API address, empty until started.
func (d *Daemon) APIAddr() string {
	return d.server.addr()
}
