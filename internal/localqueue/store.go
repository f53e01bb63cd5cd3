package localqueue

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"fieldcapture/internal/capture"
	"fieldcapture/internal/faults"
)

// timeColumnFormat is fixed-width so enqueue timestamps sort correctly as
// text; RFC3339Nano trims trailing zeros and breaks lexicographic order.
const timeColumnFormat = "2006-01-02T15:04:05.000000000Z"

const pendingSchema = `
CREATE TABLE IF NOT EXISTS pending_captures (
    id TEXT PRIMARY KEY,
    visit_stop_id TEXT NOT NULL,
    capture_type TEXT NOT NULL,
    local_blob_ref TEXT,
    caption TEXT,
    transcript TEXT,
    sentiment TEXT,
    lat REAL,
    lng REAL,
    captured_by TEXT NOT NULL,
    enqueued_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pending_enqueued ON pending_captures(enqueued_at, id);
`

// Store manages pending capture persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore initializes or connects to the pending capture database.
func OpenStore(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("queue database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure queue directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(pendingSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create queue schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Durable reports that records survive restarts.
func (s *Store) Durable() bool { return true }

// Enqueue persists a new pending capture and returns it with id and
// timestamp assigned.
func (s *Store) Enqueue(ctx context.Context, record NewPendingCapture) (*PendingCapture, error) {
	if err := validateNew(record); err != nil {
		return nil, err
	}

	pending := &PendingCapture{
		ID:           uuid.NewString(),
		VisitStopID:  record.VisitStopID,
		Type:         record.Type,
		LocalBlobRef: record.LocalBlobRef,
		Caption:      record.Caption,
		Transcript:   record.Transcript,
		Sentiment:    record.Sentiment,
		Location:     record.Location,
		CapturedBy:   record.CapturedBy,
		EnqueuedAt:   time.Now().UTC(),
	}

	var lat, lng any
	if pending.Location != nil {
		lat = pending.Location.Lat
		lng = pending.Location.Lng
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO pending_captures (
            id, visit_stop_id, capture_type, local_blob_ref, caption,
            transcript, sentiment, lat, lng, captured_by, enqueued_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pending.ID,
		pending.VisitStopID,
		string(pending.Type),
		nullableString(pending.LocalBlobRef),
		nullableString(pending.Caption),
		nullableString(pending.Transcript),
		nullableString(pending.Sentiment),
		lat,
		lng,
		string(pending.CapturedBy),
		pending.EnqueuedAt.Format(timeColumnFormat),
	)
	if err != nil {
		return nil, faults.Wrap(faults.ErrTransient, "localqueue", "enqueue", "insert pending capture", err)
	}
	return pending, nil
}

// List returns a restartable iterator over pending records in enqueue order.
func (s *Store) List(ctx context.Context) *Iterator {
	return newIterator(s.fetchAfter)
}

// Remove deletes a record by id. Removing an already-removed record is a no-op.
func (s *Store) Remove(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_captures WHERE id = ?`, id)
	if err != nil {
		return faults.Wrap(faults.ErrTransient, "localqueue", "remove", id, err)
	}
	return nil
}

// Count recomputes the pending total from storage truth.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_captures`)
	if err := row.Scan(&count); err != nil {
		return 0, faults.Wrap(faults.ErrTransient, "localqueue", "count", "count pending captures", err)
	}
	return count, nil
}

func (s *Store) fetchAfter(ctx context.Context, afterEnqueued time.Time, afterID string, limit int) ([]*PendingCapture, error) {
	query := `SELECT id, visit_stop_id, capture_type, local_blob_ref, caption,
            transcript, sentiment, lat, lng, captured_by, enqueued_at
        FROM pending_captures
        WHERE enqueued_at > ? OR (enqueued_at = ? AND id > ?)
        ORDER BY enqueued_at, id
        LIMIT ?`
	cursor := ""
	if !afterEnqueued.IsZero() {
		cursor = afterEnqueued.UTC().Format(timeColumnFormat)
	}
	rows, err := s.db.QueryContext(ctx, query, cursor, cursor, afterID, limit)
	if err != nil {
		return nil, faults.Wrap(faults.ErrTransient, "localqueue", "list", "query pending captures", err)
	}
	defer rows.Close()

	var records []*PendingCapture
	for rows.Next() {
		record, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanPending(scanner interface{ Scan(dest ...any) error }) (*PendingCapture, error) {
	var (
		id          string
		visitStopID string
		captureType string
		blobRef     sql.NullString
		caption     sql.NullString
		transcript  sql.NullString
		sentiment   sql.NullString
		lat         sql.NullFloat64
		lng         sql.NullFloat64
		capturedBy  string
		enqueuedRaw string
	)
	if err := scanner.Scan(
		&id,
		&visitStopID,
		&captureType,
		&blobRef,
		&caption,
		&transcript,
		&sentiment,
		&lat,
		&lng,
		&capturedBy,
		&enqueuedRaw,
	); err != nil {
		return nil, err
	}

	record := &PendingCapture{
		ID:           id,
		VisitStopID:  visitStopID,
		Type:         capture.Type(captureType),
		LocalBlobRef: blobRef.String,
		Caption:      caption.String,
		Transcript:   transcript.String,
		Sentiment:    sentiment.String,
		CapturedBy:   capture.CapturedBy(capturedBy),
	}
	if lat.Valid && lng.Valid {
		record.Location = &capture.Location{Lat: lat.Float64, Lng: lng.Float64}
	}
	if enqueued, err := time.Parse(timeColumnFormat, enqueuedRaw); err == nil {
		record.EnqueuedAt = enqueued
	} else if enqueued, err := time.Parse(time.RFC3339Nano, enqueuedRaw); err == nil {
		record.EnqueuedAt = enqueued
	}
	return record, nil
}

func validateNew(record NewPendingCapture) error {
	if strings.TrimSpace(record.VisitStopID) == "" {
		return faults.Wrap(faults.ErrValidation, "localqueue", "enqueue", "visit stop id is required", nil)
	}
	if _, ok := capture.ParseType(string(record.Type)); !ok {
		return faults.Wrap(faults.ErrValidation, "localqueue", "enqueue", fmt.Sprintf("unknown capture type %q", record.Type), nil)
	}
	if _, ok := capture.ParseCapturedBy(string(record.CapturedBy)); !ok {
		return faults.Wrap(faults.ErrValidation, "localqueue", "enqueue", fmt.Sprintf("unknown captured_by %q", record.CapturedBy), nil)
	}
	if record.Type.RequiresAsset() && strings.TrimSpace(record.LocalBlobRef) == "" {
		return faults.Wrap(faults.ErrValidation, "localqueue", "enqueue", fmt.Sprintf("%s captures require a local blob", record.Type), nil)
	}
	return nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
