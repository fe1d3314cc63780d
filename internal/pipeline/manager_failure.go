package pipeline

import (
	"context"
	"encoding/json"
	"errors"

	"docpipe/internal/classify"
	"docpipe/internal/events"
	"docpipe/internal/extraction"
	"docpipe/internal/logging"
	"docpipe/internal/services"
	"docpipe/internal/sink"
)

// Reason codes persisted when a stage's retry budget runs out.
const (
	ReasonExtractionExhausted = "extraction_exhausted"
	ReasonClassifyExhausted   = "classification_exhausted"
	ReasonNotifyExhausted     = "notification_exhausted"
)

// routeFailure is the single place stage errors become durable outcomes.
// Exhausted retries and permanent errors fail the record (except for the
// notify stage, whose record keeps its classified status) and park the
// triggering payload in the isolation sink. Anything else is logged and left
// for redelivery or the reclaimer.
func (m *Manager) routeFailure(ctx context.Context, stage string, payload events.DocumentPayload, stageErr error) {
	if stageErr == nil || services.IsConflict(stageErr) {
		return
	}
	logger := m.logger.With(
		logging.String(logging.FieldDocumentID, payload.DocumentID),
		logging.String(logging.FieldStage, stage))

	exhausted := errors.Is(stageErr, services.ErrExhausted)
	permanent := services.IsPermanent(stageErr)
	if !exhausted && !permanent {
		m.setLastError(stageErr)
		logger.Warn("stage failed, leaving record for redelivery",
			logging.Error(stageErr))
		return
	}

	reason := services.FailureReason(stageErr)
	if exhausted {
		switch stage {
		case extraction.Stage:
			reason = ReasonExtractionExhausted
		case classify.Stage:
			reason = ReasonClassifyExhausted
		case NotifyStage:
			reason = ReasonNotifyExhausted
		}
	}

	logger.Error("stage failed permanently",
		logging.String("reason", reason),
		logging.Error(stageErr))
	m.setLastError(stageErr)

	attempts := m.stageAttempts(ctx, payload.DocumentID, stage)

	if stage != NotifyStage {
		if err := m.store.MarkFailed(ctx, payload.DocumentID, stage, reason); err != nil {
			if services.IsConflict(err) {
				logger.Debug("record already terminal, skipping failure mark")
			} else {
				logger.Error("failed to persist failure state", logging.Error(err))
			}
		}
	}

	m.isolate(ctx, stage, payload, attempts, reason, stageErr.Error())
	m.notifyFailure(ctx, payload.DocumentID, payload.OriginalFileName, stage, reason)
	m.archiveSource(ctx, payload.SourceLocator)
}

// isolate parks the triggering payload in the sink so an operator can replay
// it later. Sink trouble must never take the lane down; it is logged and
// dropped.
func (m *Manager) isolate(ctx context.Context, stage string, payload events.DocumentPayload, attempts int, reason, lastError string) {
	if m.isolated == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		m.logger.Error("failed to encode sink payload",
			logging.String(logging.FieldDocumentID, payload.DocumentID),
			logging.Error(err))
		data = nil
	}
	if _, err := m.isolated.Record(ctx, &sink.Entry{
		DocumentID: payload.DocumentID,
		Stage:      stage,
		Reason:     reason,
		Payload:    data,
		Attempts:   attempts,
		LastError:  lastError,
	}); err != nil {
		m.logger.Error("failed to record isolated document",
			logging.String(logging.FieldDocumentID, payload.DocumentID),
			logging.Error(err))
		return
	}
	m.logger.Info("document isolated",
		logging.String(logging.FieldDocumentID, payload.DocumentID),
		logging.String(logging.FieldStage, stage),
		logging.String("reason", reason))
}

func (m *Manager) stageAttempts(ctx context.Context, documentID, stage string) int {
	doc, err := m.store.GetByID(ctx, documentID)
	if err != nil {
		return 0
	}
	switch stage {
	case extraction.Stage:
		return doc.ExtractAttempts
	case classify.Stage:
		return doc.ClassifyAttempts
	case NotifyStage:
		return doc.NotifyAttempts
	default:
		return 0
	}
}

// archiveSource moves a finished record's source object out of the inbox so
// the watcher stops reporting it. Best effort: a leftover file only costs
// duplicate no-op notifications.
func (m *Manager) archiveSource(ctx context.Context, locator string) {
	if locator == "" {
		return
	}
	if _, err := m.blobs.Archive(ctx, locator); err != nil {
		if services.IsPermanent(err) {
			return
		}
		m.logger.Debug("source archive deferred",
			logging.String("locator", locator),
			logging.Error(err))
	}
}
