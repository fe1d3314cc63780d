package sink

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"docpipe/internal/config"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// Entry is a document parked in the isolation sink after its stage gave up.
// The payload preserves the triggering event so an operator replay can resume
// from where the pipeline stopped.
type Entry struct {
	ID         int64
	DocumentID string
	Stage      string
	Reason     string
	Payload    []byte
	Attempts   int
	LastError  string
	CreatedAt  time.Time
}

// Store manages isolated document persistence. It lives in its own database
// file so a wedged sink never contends with the record store's writers.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the isolation sink database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.LogDir, "isolated.db"))
}

// OpenPath opens the isolation sink database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sink db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Record parks an entry in the sink and returns its assigned id.
func (s *Store) Record(ctx context.Context, entry *Entry) (int64, error) {
	if entry == nil {
		return 0, errors.New("entry is nil")
	}
	if entry.DocumentID == "" {
		return 0, errors.New("entry document id is required")
	}
	now := time.Now().UTC()
	entry.CreatedAt = now

	res, err := s.db.ExecContext(
		ensureContext(ctx),
		`INSERT INTO isolated_documents (document_id, stage, reason, payload, attempts, last_error, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.DocumentID,
		entry.Stage,
		entry.Reason,
		entry.Payload,
		entry.Attempts,
		entry.LastError,
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("record isolated document: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("isolated entry id: %w", err)
	}
	entry.ID = id
	return id, nil
}

// List returns all sink entries ordered by arrival.
func (s *Store) List(ctx context.Context) ([]*Entry, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT id, document_id, stage, reason, payload, attempts, last_error, created_at
         FROM isolated_documents ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list isolated documents: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetByID fetches a single sink entry.
func (s *Store) GetByID(ctx context.Context, id int64) (*Entry, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT id, document_id, stage, reason, payload, attempts, last_error, created_at
         FROM isolated_documents WHERE id = ?`,
		id,
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("isolated entry %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get isolated entry: %w", err)
	}
	return entry, nil
}

// Remove deletes sink entries after a successful replay (or an operator
// discard). It reports how many rows were removed.
func (s *Store) Remove(ctx context.Context, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}
	res, err := s.db.ExecContext(
		ensureContext(ctx),
		`DELETE FROM isolated_documents WHERE id IN (`+string(placeholders)+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("remove isolated entries: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of parked entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ensureContext(ctx), `SELECT COUNT(1) FROM isolated_documents`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count isolated documents: %w", err)
	}
	return count, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create sink schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return tx.Commit()
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("sink schema version %d, expected %d (delete the database to recreate)", version, schemaVersion)
	}
	return nil
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		entry      Entry
		payload    sql.NullString
		lastError  sql.NullString
		createdRaw string
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.DocumentID,
		&entry.Stage,
		&entry.Reason,
		&payload,
		&entry.Attempts,
		&lastError,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	if payload.Valid {
		entry.Payload = []byte(payload.String)
	}
	entry.LastError = lastError.String
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		entry.CreatedAt = created
	}
	return &entry, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
