package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"docpipe/internal/services"
)

const documentColumns = "id, source_locator, original_file_name, content_type, size_bytes, status, extracted_text_locator, category, failure_reason, failed_stage, extract_attempts, classify_attempts, notify_attempts, notified_at, created_at, updated_at"

// CreateIfAbsent inserts a document record unless one already exists for its
// id. It reports whether a new row was created; a duplicate is not an error.
// This is the intake idempotency primitive: deterministic ids make duplicate
// upload notifications collapse onto the same row.
func (s *Store) CreateIfAbsent(ctx context.Context, doc *Document) (bool, error) {
	if doc == nil {
		return false, errors.New("document is nil")
	}
	if doc.ID == "" {
		return false, errors.New("document id is required")
	}
	if doc.SourceLocator == "" {
		return false, errors.New("document source locator is required")
	}
	if doc.Status == "" {
		doc.Status = StatusReceived
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	timestamp := now.Format(time.RFC3339Nano)

	res, err := s.execWithRetry(
		ctx,
		`INSERT OR IGNORE INTO documents (
            id, source_locator, original_file_name, content_type, size_bytes,
            status, failure_reason, failed_stage, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID,
		doc.SourceLocator,
		nullableString(doc.OriginalFileName),
		nullableString(doc.ContentType),
		doc.SizeBytes,
		doc.Status,
		nullableString(doc.FailureReason),
		nullableString(doc.FailedStage),
		timestamp,
		timestamp,
	)
	if err != nil {
		return false, fmt.Errorf("insert document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// GetByID fetches a document record by identifier. A missing record returns
// services.ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "docstore", "get document", id, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// TransitionUpdate carries the stage-owned fields a conditional transition
// may set alongside the status change.
type TransitionUpdate struct {
	ExtractedTextLocator string
	Category             string
}

// Transition performs the conditional status update that is the pipeline's
// sole mutual-exclusion primitive. The update succeeds only when the record's
// current status equals from; losing the race to a concurrent duplicate
// delivery yields services.ErrConflict, a missing record services.ErrNotFound.
func (s *Store) Transition(ctx context.Context, id string, from, to Status, update *TransitionUpdate) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	query := `UPDATE documents SET status = ?, updated_at = ?`
	args := []any{to, now}
	if update != nil {
		if update.ExtractedTextLocator != "" {
			query += `, extracted_text_locator = ?`
			args = append(args, update.ExtractedTextLocator)
		}
		if update.Category != "" {
			query += `, category = ?`
			args = append(args, update.Category)
		}
	}
	query += ` WHERE id = ? AND status = ?`
	args = append(args, id, from)

	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	return services.Wrap(services.ErrConflict, "docstore", "transition",
		fmt.Sprintf("%s is no longer %s", id, from), nil)
}

// MarkFailed moves a record into the terminal failed status from any
// non-terminal status, recording the failing stage and a human-readable
// reason. A record already terminal yields services.ErrConflict.
func (s *Store) MarkFailed(ctx context.Context, id, stage, reason string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE documents
         SET status = ?, failure_reason = ?, failed_stage = ?, updated_at = ?
         WHERE id = ? AND status NOT IN (?, ?)`,
		StatusFailed,
		reason,
		stage,
		now,
		id,
		StatusClassified,
		StatusFailed,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	return services.Wrap(services.ErrConflict, "docstore", "mark failed",
		fmt.Sprintf("%s is already terminal", id), nil)
}

// IncrementAttempt bumps the per-stage retry counter for a record.
func (s *Store) IncrementAttempt(ctx context.Context, id, stage string) error {
	var column string
	switch stage {
	case "extraction":
		column = "extract_attempts"
	case "classify":
		column = "classify_attempts"
	case "notify":
		column = "notify_attempts"
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE documents SET `+column+` = `+column+` + 1, updated_at = ? WHERE id = ?`,
		now,
		id,
	); err != nil {
		return fmt.Errorf("increment %s: %w", column, err)
	}
	return nil
}

// RecordNotified stamps the single user notification for a classified record.
// A second call conflicts, which is how duplicate notification deliveries are
// suppressed across restarts.
func (s *Store) RecordNotified(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE documents SET notified_at = ?, updated_at = ? WHERE id = ? AND notified_at IS NULL`,
		now,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("record notified: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrConflict, "docstore", "record notified",
			fmt.Sprintf("%s already notified", id), nil)
	}
	return nil
}

// NextByStatus returns the oldest record matching any of the provided
// statuses, or nil when none exist. This is the creation change feed the
// extraction lane consumes.
func (s *Store) NextByStatus(ctx context.Context, statuses ...Status) (*Document, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}

	query := `SELECT ` + documentColumns + ` FROM documents WHERE status IN (` + placeholders + `) ORDER BY created_at LIMIT 1`
	row := s.db.QueryRowContext(ensureContext(ctx), query, args...)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// List returns records filtered by status set (or all records when no status
// is provided), ordered by creation time.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Document, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + documentColumns + ` FROM documents`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ensureContext(ctx), baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ensureContext(ctx), baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ReclaimStale rolls records stuck in a processing status back to their
// stage's entry status once updated_at falls behind the cutoff. Abandoned
// attempts (caller timeout, crash) become re-claimable without operator help.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var total int64
	for _, tr := range staleRollbackTransitions {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE documents SET status = ?, updated_at = ? WHERE status = ? AND updated_at < ?`,
			tr.to,
			now,
			tr.from,
			cutoff.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return total, fmt.Errorf("reclaim stale %s: %w", tr.from, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("rows affected: %w", err)
		}
		total += affected
	}
	return total, nil
}

// RetryFailed moves failed records back to received for reprocessing,
// clearing failure details, attempt counters, and stage-owned fields so the
// record carries no artifacts from the aborted pass. With no ids, all failed
// records are retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	setClause := `SET status = ?, failure_reason = NULL, failed_stage = NULL,
            extracted_text_locator = NULL, category = NULL,
            extract_attempts = 0, classify_attempts = 0, notify_attempts = 0, updated_at = ?`

	if len(ids) == 0 {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE documents `+setClause+` WHERE status = ?`,
			StatusReceived, now, StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed documents: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := []any{StatusReceived, now}
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, StatusFailed)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE documents `+setClause+` WHERE id IN (`+placeholders+`) AND status = ?`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("retry selected documents: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of records grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM documents GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("document stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates record state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusReceived:
			health.Received += count
		case StatusClassified:
			health.Classified += count
		case StatusFailed:
			health.Failed += count
		default:
			if _, ok := processingStatuses[status]; ok {
				health.Processing += count
			}
		}
	}
	return health, nil
}

func scanDocument(scanner interface{ Scan(dest ...any) error }) (*Document, error) {
	var (
		id            string
		sourceLocator string
		fileName      sql.NullString
		contentType   sql.NullString
		sizeBytes     sql.NullInt64
		statusStr     string
		textLocator   sql.NullString
		category      sql.NullString
		failureReason sql.NullString
		failedStage   sql.NullString
		extractTries  sql.NullInt64
		classifyTries sql.NullInt64
		notifyTries   sql.NullInt64
		notifiedRaw   sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sourceLocator,
		&fileName,
		&contentType,
		&sizeBytes,
		&statusStr,
		&textLocator,
		&category,
		&failureReason,
		&failedStage,
		&extractTries,
		&classifyTries,
		&notifyTries,
		&notifiedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	doc := &Document{
		ID:                   id,
		SourceLocator:        sourceLocator,
		OriginalFileName:     fileName.String,
		ContentType:          contentType.String,
		SizeBytes:            sizeBytes.Int64,
		Status:               Status(statusStr),
		ExtractedTextLocator: textLocator.String,
		Category:             category.String,
		FailureReason:        failureReason.String,
		FailedStage:          failedStage.String,
		ExtractAttempts:      int(extractTries.Int64),
		ClassifyAttempts:     int(classifyTries.Int64),
		NotifyAttempts:       int(notifyTries.Int64),
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		doc.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		doc.UpdatedAt = updated
	}
	if notifiedRaw.Valid {
		if notified, err := parseTimeString(notifiedRaw.String); err == nil {
			doc.NotifiedAt = &notified
		}
	}
	return doc, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
