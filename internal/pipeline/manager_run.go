package pipeline

import (
	"context"
	"errors"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"docpipe/internal/classify"
	"docpipe/internal/docstore"
	"docpipe/internal/events"
	"docpipe/internal/extraction"
	"docpipe/internal/logging"
)

// Start subscribes the stage lanes, republishes triggers for work that was
// in flight at the last shutdown, and begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("pipeline already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	if err := m.router.Subscribe(events.TypeDocumentExtracted, "classify-lane", m.handleExtracted); err != nil {
		m.Stop()
		return err
	}
	if err := m.router.Subscribe(events.TypeDocumentClassified, "notify-lane", m.handleClassified); err != nil {
		m.Stop()
		return err
	}

	if err := m.recover(runCtx); err != nil {
		m.logger.Warn("startup recovery incomplete", logging.Error(err))
	}

	m.wg.Add(3)
	go m.runWatcherLane(runCtx)
	go m.runExtractionLane(runCtx)
	go m.runReclaimLane(runCtx)

	m.logger.Info("pipeline started")
	return nil
}

// Stop terminates background processing and waits for the lanes to drain.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("pipeline stopped")
}

func (m *Manager) runWatcherLane(ctx context.Context) {
	defer m.wg.Done()
	_ = m.watcher.Run(ctx)
}

func (m *Manager) runExtractionLane(ctx context.Context) {
	defer m.wg.Done()
	logger := logging.NewComponentLogger(m.logger, "extraction-lane")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		doc, err := m.store.NextByStatus(ctx, docstore.StatusReceived)
		if err != nil {
			m.setLastError(err)
			logger.Error("failed to fetch next received record",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check record database access"))
			m.sleep(ctx, m.errorRetryInterval)
			continue
		}
		if doc == nil {
			m.sleep(ctx, m.pollInterval)
			continue
		}

		if err := m.extraction.Process(ctx, doc.ID); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.routeFailure(ctx, extraction.Stage, events.DocumentPayload{
				DocumentID:       doc.ID,
				SourceLocator:    doc.SourceLocator,
				OriginalFileName: doc.OriginalFileName,
			}, err)
		}
	}
}

func (m *Manager) runReclaimLane(ctx context.Context) {
	defer m.wg.Done()
	if m.reclaimAfter <= 0 {
		return
	}
	logger := logging.NewComponentLogger(m.logger, "reclaim-lane")

	ticker := time.NewTicker(m.reclaimAfter)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-m.reclaimAfter)
			count, err := m.store.ReclaimStale(ctx, cutoff)
			if err != nil {
				logger.Warn("reclaim stale processing failed; stuck records may remain",
					logging.Error(err))
				continue
			}
			if count > 0 {
				logger.Info("reclaimed stale processing records",
					logging.Int64("count", count))
			}
		}
	}
}

func (m *Manager) handleExtracted(ctx context.Context, e cloudevents.Event) error {
	payload, err := events.Payload(e)
	if err != nil {
		m.logger.Warn("dropping malformed extracted event", logging.Error(err))
		return nil
	}
	if err := m.classify.Process(ctx, payload.DocumentID); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		m.routeFailure(ctx, classify.Stage, payload, err)
	}
	return nil
}

// recover republishes triggers for records whose downstream work never
// happened: extracted records missing a classification and classified
// records missing their notification. At-least-once delivery makes
// republishing safe.
func (m *Manager) recover(ctx context.Context) error {
	extracted, err := m.store.List(ctx, docstore.StatusExtracted)
	if err != nil {
		return err
	}
	for _, doc := range extracted {
		event, err := events.New(events.TypeDocumentExtracted, events.DocumentPayload{
			DocumentID:       doc.ID,
			SourceLocator:    doc.SourceLocator,
			OriginalFileName: doc.OriginalFileName,
			TextLocator:      doc.ExtractedTextLocator,
		})
		if err != nil {
			return err
		}
		if err := m.router.Publish(ctx, event); err != nil {
			return err
		}
		m.logger.Info("republished extraction result",
			logging.String(logging.FieldDocumentID, doc.ID))
	}

	classified, err := m.store.List(ctx, docstore.StatusClassified)
	if err != nil {
		return err
	}
	for _, doc := range classified {
		if doc.NotifiedAt != nil {
			continue
		}
		event, err := events.New(events.TypeDocumentClassified, events.DocumentPayload{
			DocumentID:       doc.ID,
			SourceLocator:    doc.SourceLocator,
			OriginalFileName: doc.OriginalFileName,
			TextLocator:      doc.ExtractedTextLocator,
			Category:         doc.Category,
		})
		if err != nil {
			return err
		}
		if err := m.router.Publish(ctx, event); err != nil {
			return err
		}
		m.logger.Info("republished pending notification",
			logging.String(logging.FieldDocumentID, doc.ID))
	}
	return nil
}
