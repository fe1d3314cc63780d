package pipeline

import (
	"context"
	"errors"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"docpipe/internal/docstore"
	"docpipe/internal/events"
	"docpipe/internal/intake"
	"docpipe/internal/logging"
	"docpipe/internal/notifications"
	"docpipe/internal/services"
)

// NotifyStage is the attempt-counter and sink name for notification work.
const NotifyStage = "notify"

// handleClassified delivers the single user notification for a classified
// record. RecordNotified is the dedup point: however many times the event is
// redelivered, only one delivery stamps the record.
func (m *Manager) handleClassified(ctx context.Context, e cloudevents.Event) error {
	payload, err := events.Payload(e)
	if err != nil {
		m.logger.Warn("dropping malformed classified event", logging.Error(err))
		return nil
	}

	ctx = services.WithDocumentID(services.WithStage(ctx, NotifyStage), payload.DocumentID)
	logger := logging.WithContext(ctx, m.logger)

	doc, err := m.store.GetByID(ctx, payload.DocumentID)
	if err != nil {
		m.setLastError(err)
		logger.Warn("classified record lookup failed", logging.Error(err))
		return nil
	}
	if doc.NotifiedAt != nil {
		logger.Debug("record already notified, skipping")
		return nil
	}
	if doc.Status != docstore.StatusClassified {
		logger.Debug("record not classified, skipping notification",
			logging.String("status", string(doc.Status)))
		return nil
	}

	err = m.notifyPolicy.Do(ctx, logger, NotifyStage, func(ctx context.Context, attempt int) error {
		if err := m.store.IncrementAttempt(ctx, doc.ID, NotifyStage); err != nil {
			logger.Warn("attempt counter update failed", logging.Error(err))
		}
		return m.notifier.Publish(ctx, notifications.EventDocumentClassified, notifications.Payload{
			DocumentID:       doc.ID,
			OriginalFileName: doc.OriginalFileName,
			Category:         doc.Category,
		})
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		// The record stays classified; only the undelivered notification is
		// parked for the operator.
		m.routeFailure(ctx, NotifyStage, payload, err)
		return nil
	}

	if err := m.store.RecordNotified(ctx, doc.ID); err != nil {
		if services.IsConflict(err) {
			logger.Debug("notification already recorded by concurrent delivery")
			return nil
		}
		logger.Warn("failed to record notification", logging.Error(err))
		return nil
	}

	logger.Info("notification delivered",
		logging.String("category", doc.Category))
	m.archiveSource(ctx, doc.SourceLocator)
	return nil
}

// handleObjectCreated is the inbox watcher callback. Admission failures are
// terminal at intake: the record is created failed and the rejected object
// goes straight to the isolation sink.
func (m *Manager) handleObjectCreated(ctx context.Context, obj intake.ObjectCreated) {
	doc, created, err := m.intake.Handle(ctx, obj)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			m.setLastError(err)
			m.logger.Warn("intake failed",
				logging.String("locator", obj.Locator),
				logging.Error(err))
		}
		return
	}
	if !created || doc.Status != docstore.StatusFailed {
		return
	}

	payload := events.DocumentPayload{
		DocumentID:       doc.ID,
		SourceLocator:    doc.SourceLocator,
		OriginalFileName: doc.OriginalFileName,
	}
	m.isolate(ctx, "intake", payload, 1, doc.FailureReason, doc.FailureReason)
	m.notifyFailure(ctx, doc.ID, doc.OriginalFileName, "intake", doc.FailureReason)
	m.archiveSource(ctx, doc.SourceLocator)
}

func (m *Manager) notifyFailure(ctx context.Context, documentID, fileName, stage, reason string) {
	err := m.notifier.Publish(ctx, notifications.EventDocumentFailed, notifications.Payload{
		DocumentID:       documentID,
		OriginalFileName: fileName,
		Stage:            stage,
		Reason:           reason,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Warn("failure notification not delivered",
			logging.String(logging.FieldDocumentID, documentID),
			logging.Error(err))
	}
}
