// Package extraction runs the OCR stage. The executor claims a received
// record through a conditional status update, extracts text under a
// per-attempt timeout, persists the artifact, and publishes the extracted
// event only after the status change is durable.
package extraction

import (
	"context"
	"log/slog"
	"time"

	"docpipe/internal/blobstore"
	"docpipe/internal/bus"
	"docpipe/internal/config"
	"docpipe/internal/docstore"
	"docpipe/internal/events"
	"docpipe/internal/logging"
	"docpipe/internal/ocr"
	"docpipe/internal/retry"
	"docpipe/internal/services"
)

// Stage is the name extraction uses in attempt counters, failure records,
// and sink entries.
const Stage = "extraction"

// Executor processes one document at a time through the extraction stage.
type Executor struct {
	store   *docstore.Store
	blobs   blobstore.Store
	engine  ocr.Engine
	router  *bus.Bus
	policy  retry.Policy
	timeout time.Duration
	logger  *slog.Logger
}

// NewExecutor builds the extraction executor from configuration.
func NewExecutor(
	cfg *config.Config,
	store *docstore.Store,
	blobs blobstore.Store,
	engine ocr.Engine,
	router *bus.Bus,
	logger *slog.Logger,
) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := time.Duration(cfg.OCR.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Executor{
		store:  store,
		blobs:  blobs,
		engine: engine,
		router: router,
		policy: retry.Policy{
			MaxAttempts:    cfg.Pipeline.MaxAttempts,
			InitialBackoff: time.Duration(cfg.Pipeline.RetryBackoffMillis) * time.Millisecond,
		},
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, Stage),
	}
}

// Process runs the extraction stage for a document. Losing the claim to a
// concurrent delivery is a skip, not an error; the record already advanced.
// Transient trouble is retried under the stage policy, and the returned error
// carries the services marker the lane needs for failure routing.
func (e *Executor) Process(ctx context.Context, documentID string) error {
	ctx = services.WithDocumentID(services.WithStage(ctx, Stage), documentID)
	logger := logging.WithContext(ctx, e.logger)

	doc, err := e.store.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.AtOrPast(docstore.StatusExtracted) {
		logger.Debug("record already extracted, skipping",
			logging.String("status", string(doc.Status)))
		return nil
	}

	if err := e.store.Transition(ctx, documentID, docstore.StatusReceived, docstore.StatusExtracting, nil); err != nil {
		if services.IsConflict(err) {
			logger.Debug("lost extraction claim, skipping")
			return nil
		}
		return err
	}
	logger.Info("extraction started",
		logging.String("locator", doc.SourceLocator))

	sourcePath, err := e.blobs.Resolve(doc.SourceLocator)
	if err != nil {
		return err
	}

	var text string
	err = e.policy.Do(ctx, logger, Stage, func(ctx context.Context, attempt int) error {
		if err := e.store.IncrementAttempt(ctx, documentID, Stage); err != nil {
			logger.Warn("attempt counter update failed", logging.Error(err))
		}
		attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		extracted, err := e.engine.ExtractText(attemptCtx, sourcePath)
		if err != nil {
			return err
		}
		text = extracted
		return nil
	})
	if err != nil {
		return err
	}

	locator, err := e.blobs.WriteText(ctx, documentID, text)
	if err != nil {
		return err
	}

	if err := e.store.Transition(ctx, documentID, docstore.StatusExtracting, docstore.StatusExtracted, &docstore.TransitionUpdate{
		ExtractedTextLocator: locator,
	}); err != nil {
		if services.IsConflict(err) {
			logger.Debug("record advanced during extraction, skipping publish")
			return nil
		}
		return err
	}

	logger.Info("extraction complete",
		logging.String("text_locator", locator),
		logging.Int("text_bytes", len(text)))

	return e.publishExtracted(ctx, doc, locator)
}

func (e *Executor) publishExtracted(ctx context.Context, doc *docstore.Document, textLocator string) error {
	if e.router == nil {
		return nil
	}
	event, err := events.New(events.TypeDocumentExtracted, events.DocumentPayload{
		DocumentID:       doc.ID,
		SourceLocator:    doc.SourceLocator,
		OriginalFileName: doc.OriginalFileName,
		TextLocator:      textLocator,
	})
	if err != nil {
		return err
	}
	return e.router.Publish(ctx, event)
}
