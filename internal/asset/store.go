package asset

import (
	"context"
	"database/sql"
	"errors"
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

const assetSchema = `
CREATE TABLE IF NOT EXISTS media_assets (
    id TEXT PRIMARY KEY,
    property_id TEXT,
    original_filename TEXT,
    file_type TEXT NOT NULL,
    mime_type TEXT,
    size_bytes INTEGER NOT NULL DEFAULT 0,
    storage_locator TEXT,
    status TEXT NOT NULL,
    processing_error TEXT,
    thumbnail_locator TEXT,
    preview_locator TEXT,
    extracted_text TEXT,
    width INTEGER,
    height INTEGER,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    processed_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_media_assets_status ON media_assets(status);
`

// Store manages media asset persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the server metadata database.
func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, errors.New("server database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure data directory: %w", err)
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

	if _, err := db.Exec(assetSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create asset schema: %w", err)
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

// DB exposes the shared connection so the capture record store can live in
// the same database file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Create inserts a new asset in uploading with an empty storage locator.
func (s *Store) Create(ctx context.Context, record NewAsset) (*Asset, error) {
	if _, ok := capture.ParseFileType(string(record.FileType)); !ok {
		return nil, faults.Wrap(faults.ErrValidation, "asset", "create", fmt.Sprintf("unknown file type %q", record.FileType), nil)
	}

	now := time.Now().UTC()
	created := &Asset{
		ID:               uuid.NewString(),
		PropertyID:       record.PropertyID,
		OriginalFilename: record.OriginalFilename,
		FileType:         record.FileType,
		MimeType:         record.MimeType,
		SizeBytes:        record.SizeBytes,
		Status:           StatusUploading,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO media_assets (
            id, property_id, original_filename, file_type, mime_type,
            size_bytes, storage_locator, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?, ?)`,
		created.ID,
		nullableString(created.PropertyID),
		nullableString(created.OriginalFilename),
		string(created.FileType),
		nullableString(created.MimeType),
		created.SizeBytes,
		string(StatusUploading),
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, faults.Wrap(faults.ErrTransient, "asset", "create", "insert media asset", err)
	}
	return created, nil
}

// GetByID fetches an asset by identifier. Returns faults.ErrNotFound when
// no row exists.
func (s *Store) GetByID(ctx context.Context, id string) (*Asset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM media_assets WHERE id = ?`, id)
	record, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, faults.Wrap(faults.ErrNotFound, "asset", "get", id, nil)
	}
	if err != nil {
		return nil, faults.Wrap(faults.ErrTransient, "asset", "get", id, err)
	}
	return record, nil
}

// MarkProcessing advances uploading → processing once bytes are confirmed
// durably stored, recording the storage locator in the same write.
func (s *Store) MarkProcessing(ctx context.Context, id, storageLocator string) error {
	if strings.TrimSpace(storageLocator) == "" {
		return faults.Wrap(faults.ErrValidation, "asset", "mark processing", "storage locator is required", nil)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE media_assets
         SET status = ?, storage_locator = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(StatusProcessing),
		storageLocator,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		string(StatusUploading),
	)
	if err != nil {
		return faults.Wrap(faults.ErrTransient, "asset", "mark processing", id, err)
	}
	return s.requireTransition(ctx, res, id, StatusProcessing)
}

// MarkReady advances processing → ready, persisting the worker-produced
// derivative fields and the processed-at timestamp. Ready is terminal.
func (s *Store) MarkReady(ctx context.Context, id string, derived Derivatives) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE media_assets
         SET status = ?, processing_error = NULL, thumbnail_locator = ?,
             preview_locator = ?, extracted_text = ?, width = ?, height = ?,
             processed_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(StatusReady),
		nullableString(derived.ThumbnailLocator),
		nullableString(derived.PreviewLocator),
		nullableString(derived.ExtractedText),
		derived.Width,
		derived.Height,
		now,
		now,
		id,
		string(StatusProcessing),
	)
	if err != nil {
		return faults.Wrap(faults.ErrTransient, "asset", "mark ready", id, err)
	}
	return s.requireTransition(ctx, res, id, StatusReady)
}

// MarkFailed advances processing → failed with a human-readable error. The
// original bytes stay where they are; only the derivative work failed.
func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE media_assets
         SET status = ?, processing_error = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(StatusFailed),
		strings.TrimSpace(message),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		string(StatusProcessing),
	)
	if err != nil {
		return faults.Wrap(faults.ErrTransient, "asset", "mark failed", id, err)
	}
	return s.requireTransition(ctx, res, id, StatusFailed)
}

// Retry moves a failed asset back to processing, clearing the recorded
// error. It is the only transition out of failed and never fires
// automatically. Returns faults.ErrNotFailed when the asset is in any other
// status; concurrent retries are not mutually excluded and last-writer-wins.
func (s *Store) Retry(ctx context.Context, id string) (*Asset, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE media_assets
         SET status = ?, processing_error = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(StatusProcessing),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		string(StatusFailed),
	)
	if err != nil {
		return nil, faults.Wrap(faults.ErrTransient, "asset", "retry", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, faults.Wrap(faults.ErrTransient, "asset", "retry", "rows affected", err)
	}
	if affected == 0 {
		current, getErr := s.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, faults.Wrap(faults.ErrNotFailed, "asset", "retry", fmt.Sprintf("status is %s", current.Status), nil)
	}
	return s.GetByID(ctx, id)
}

// Delete removes the metadata row. Byte cleanup happens before this call;
// see the ingest service cascade.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM media_assets WHERE id = ?`, id); err != nil {
		return faults.Wrap(faults.ErrTransient, "asset", "delete", id, err)
	}
	return nil
}

// CountByStatus returns a count of assets grouped by status.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM media_assets GROUP BY status`)
	if err != nil {
		return nil, faults.Wrap(faults.ErrTransient, "asset", "stats", "group by status", err)
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

func (s *Store) requireTransition(ctx context.Context, res sql.Result, id string, target Status) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return faults.Wrap(faults.ErrTransient, "asset", "transition", "rows affected", err)
	}
	if affected > 0 {
		return nil
	}
	current, getErr := s.GetByID(ctx, id)
	if getErr != nil {
		return getErr
	}
	return faults.Wrap(faults.ErrValidation, "asset", "transition",
		fmt.Sprintf("cannot move %s asset to %s", current.Status, target), nil)
}

const assetColumns = "id, property_id, original_filename, file_type, mime_type, size_bytes, storage_locator, status, processing_error, thumbnail_locator, preview_locator, extracted_text, width, height, created_at, updated_at, processed_at"

func scanAsset(scanner interface{ Scan(dest ...any) error }) (*Asset, error) {
	var (
		id           string
		propertyID   sql.NullString
		filename     sql.NullString
		fileType     string
		mimeType     sql.NullString
		sizeBytes    int64
		locator      sql.NullString
		statusStr    string
		procError    sql.NullString
		thumbnail    sql.NullString
		preview      sql.NullString
		extracted    sql.NullString
		width        sql.NullInt64
		height       sql.NullInt64
		createdRaw   string
		updatedRaw   string
		processedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&propertyID,
		&filename,
		&fileType,
		&mimeType,
		&sizeBytes,
		&locator,
		&statusStr,
		&procError,
		&thumbnail,
		&preview,
		&extracted,
		&width,
		&height,
		&createdRaw,
		&updatedRaw,
		&processedRaw,
	); err != nil {
		return nil, err
	}

	record := &Asset{
		ID:               id,
		PropertyID:       propertyID.String,
		OriginalFilename: filename.String,
		FileType:         capture.FileType(fileType),
		MimeType:         mimeType.String,
		SizeBytes:        sizeBytes,
		StorageLocator:   locator.String,
		Status:           Status(statusStr),
		ProcessingError:  procError.String,
		ThumbnailLocator: thumbnail.String,
		PreviewLocator:   preview.String,
		ExtractedText:    extracted.String,
		Width:            int(width.Int64),
		Height:           int(height.Int64),
	}
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		record.CreatedAt = created
	}
	if updated, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		record.UpdatedAt = updated
	}
	if processedRaw.Valid {
		if processed, err := time.Parse(time.RFC3339Nano, processedRaw.String); err == nil {
			record.ProcessedAt = &processed
		}
	}
	return record, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
