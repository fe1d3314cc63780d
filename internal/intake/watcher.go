package intake

import (
	"context"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"docpipe/internal/blobstore"
	"docpipe/internal/config"
	"docpipe/internal/logging"
)

// Watcher polls the inbox directory and reports new objects to a handler.
// Polling is deliberately dumb: the same file is reported on every scan until
// something moves it, and the deterministic record id makes those repeats
// harmless.
type Watcher struct {
	dir      string
	interval time.Duration
	handle   func(ctx context.Context, obj ObjectCreated)
	logger   *slog.Logger
}

// NewWatcher builds an inbox watcher that invokes handle for every object it
// sees.
func NewWatcher(cfg *config.Config, handle func(ctx context.Context, obj ObjectCreated), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	interval := time.Duration(cfg.Pipeline.InboxScanInterval) * time.Second
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Watcher{
		dir:      cfg.Paths.InboxDir,
		interval: interval,
		handle:   handle,
		logger:   logging.NewComponentLogger(logger, "inbox-watcher"),
	}
}

// Run scans until the context ends. It performs one scan immediately so a
// pre-populated inbox is picked up without waiting for the first tick.
func (w *Watcher) Run(ctx context.Context) error {
	w.scan(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

// Scan performs a single inbox pass outside the Run loop.
func (w *Watcher) Scan(ctx context.Context) {
	w.scan(ctx)
}

func (w *Watcher) scan(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("inbox scan failed", logging.Error(err))
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		w.handle(ctx, ObjectCreated{
			Locator:     blobstore.SourceLocator(name),
			ContentType: supportedExtensions[strings.ToLower(path.Ext(name))],
			SizeBytes:   info.Size(),
		})
	}
}
