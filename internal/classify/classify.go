// Package classify runs the classification stage. The executor consumes
// extracted events, assigns a category with the pure rule classifier, and
// publishes the classified event once the status change is durable. Because
// the classifier itself cannot fail, retries only cover reading the text
// artifact.
package classify

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
	"docpipe/internal/retry"
	"docpipe/internal/rules"
	"docpipe/internal/services"
)

// Stage is the name classification uses in attempt counters, failure
// records, and sink entries.
const Stage = "classify"

// Executor processes extracted documents into categories.
type Executor struct {
	store      *docstore.Store
	blobs      blobstore.Store
	classifier *rules.Classifier
	router     *bus.Bus
	policy     retry.Policy
	logger     *slog.Logger
}

// NewExecutor builds the classification executor from configuration.
func NewExecutor(
	cfg *config.Config,
	store *docstore.Store,
	blobs blobstore.Store,
	router *bus.Bus,
	logger *slog.Logger,
) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{
		store:      store,
		blobs:      blobs,
		classifier: rules.New(cfg.Classification.DefaultCategory),
		router:     router,
		policy: retry.Policy{
			MaxAttempts:    cfg.Pipeline.MaxAttempts,
			InitialBackoff: time.Duration(cfg.Pipeline.RetryBackoffMillis) * time.Millisecond,
		},
		logger: logging.NewComponentLogger(logger, Stage),
	}
}

// Process runs the classification stage for a document. Records that are not
// sitting in extracted are skipped: either an earlier delivery already moved
// them forward, or the trigger arrived out of order and the extraction lane
// will re-trigger later.
func (e *Executor) Process(ctx context.Context, documentID string) error {
	ctx = services.WithDocumentID(services.WithStage(ctx, Stage), documentID)
	logger := logging.WithContext(ctx, e.logger)

	doc, err := e.store.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.AtOrPast(docstore.StatusClassifying) {
		logger.Debug("record already classifying or beyond, skipping",
			logging.String("status", string(doc.Status)))
		return nil
	}
	if doc.Status != docstore.StatusExtracted {
		logger.Debug("record not ready for classification, skipping",
			logging.String("status", string(doc.Status)))
		return nil
	}

	if err := e.store.Transition(ctx, documentID, docstore.StatusExtracted, docstore.StatusClassifying, nil); err != nil {
		if services.IsConflict(err) {
			logger.Debug("lost classification claim, skipping")
			return nil
		}
		return err
	}
	logger.Info("classification started",
		logging.String("text_locator", doc.ExtractedTextLocator))

	var text []byte
	err = e.policy.Do(ctx, logger, Stage, func(ctx context.Context, attempt int) error {
		if err := e.store.IncrementAttempt(ctx, documentID, Stage); err != nil {
			logger.Warn("attempt counter update failed", logging.Error(err))
		}
		data, err := e.blobs.Read(ctx, doc.ExtractedTextLocator)
		if err != nil {
			return err
		}
		text = data
		return nil
	})
	if err != nil {
		return err
	}

	category := e.classifier.Classify(string(text))

	if err := e.store.Transition(ctx, documentID, docstore.StatusClassifying, docstore.StatusClassified, &docstore.TransitionUpdate{
		Category: category,
	}); err != nil {
		if services.IsConflict(err) {
			logger.Debug("record advanced during classification, skipping publish")
			return nil
		}
		return err
	}

	logger.Info("classification complete",
		logging.String("category", category))

	return e.publishClassified(ctx, doc, category)
}

func (e *Executor) publishClassified(ctx context.Context, doc *docstore.Document, category string) error {
	if e.router == nil {
		return nil
	}
	event, err := events.New(events.TypeDocumentClassified, events.DocumentPayload{
		DocumentID:       doc.ID,
		SourceLocator:    doc.SourceLocator,
		OriginalFileName: doc.OriginalFileName,
		TextLocator:      doc.ExtractedTextLocator,
		Category:         category,
	})
	if err != nil {
		return err
	}
	return e.router.Publish(ctx, event)
}
