package ingest

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fieldcapture/internal/capture"
	"fieldcapture/internal/faults"
)

// timeColumnFormat is fixed width so text comparison in ORDER BY matches
// chronological order.
const timeColumnFormat = "2006-01-02T15:04:05.000000000Z"

const recordSchema = `
CREATE TABLE IF NOT EXISTS capture_records (
    id TEXT PRIMARY KEY,
    visit_stop_id TEXT NOT NULL,
    media_asset_id TEXT,
    capture_type TEXT NOT NULL,
    caption TEXT,
    transcript TEXT,
    sentiment TEXT,
    lat REAL,
    lng REAL,
    captured_by TEXT NOT NULL,
    captured_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_capture_records_stop ON capture_records(visit_stop_id, captured_at);
`

// CaptureRecord is the server-side persisted capture. Storage order is
// irrelevant; listings order by captured_at for display.
type CaptureRecord struct {
	ID           string
	VisitStopID  string
	MediaAssetID string
	CaptureType  capture.Type
	Caption      string
	Transcript   string
	Sentiment    string
	Location     *capture.Location
	CapturedBy   capture.CapturedBy
	CapturedAt   time.Time
}

// SQLRecordStore persists capture records in the shared server database.
type SQLRecordStore struct {
	db *sql.DB
}

// NewRecordStore creates the capture record table on the shared connection.
func NewRecordStore(db *sql.DB) (*SQLRecordStore, error) {
	if db == nil {
		return nil, errors.New("record store requires a database connection")
	}
	if _, err := db.Exec(recordSchema); err != nil {
		return nil, faults.Wrap(faults.ErrTransient, "ingest", "init", "create capture schema", err)
	}
	return &SQLRecordStore{db: db}, nil
}

// Insert persists a new capture record.
func (s *SQLRecordStore) Insert(ctx context.Context, record *CaptureRecord) error {
	var lat, lng any
	if record.Location != nil {
		lat = record.Location.Lat
		lng = record.Location.Lng
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO capture_records (
            id, visit_stop_id, media_asset_id, capture_type, caption,
            transcript, sentiment, lat, lng, captured_by, captured_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.VisitStopID,
		nullableString(record.MediaAssetID),
		string(record.CaptureType),
		nullableString(record.Caption),
		nullableString(record.Transcript),
		nullableString(record.Sentiment),
		lat,
		lng,
		string(record.CapturedBy),
		record.CapturedAt.UTC().Format(timeColumnFormat),
	)
	if err != nil {
		return faults.Wrap(faults.ErrTransient, "ingest", "insert capture", record.ID, err)
	}
	return nil
}

// GetByID fetches a capture record by identifier.
func (s *SQLRecordStore) GetByID(ctx context.Context, id string) (*CaptureRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM capture_records WHERE id = ?`, id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, faults.Wrap(faults.ErrNotFound, "ingest", "get capture", id, nil)
	}
	if err != nil {
		return nil, faults.Wrap(faults.ErrTransient, "ingest", "get capture", id, err)
	}
	return record, nil
}

// ListByVisitStop returns a visit stop's captures ordered by capture time.
func (s *SQLRecordStore) ListByVisitStop(ctx context.Context, visitStopID string) ([]*CaptureRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+recordColumns+` FROM capture_records WHERE visit_stop_id = ? ORDER BY captured_at, id`,
		visitStopID,
	)
	if err != nil {
		return nil, faults.Wrap(faults.ErrTransient, "ingest", "list captures", visitStopID, err)
	}
	defer rows.Close()

	var records []*CaptureRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Delete removes a capture record by identifier.
func (s *SQLRecordStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM capture_records WHERE id = ?`, id); err != nil {
		return faults.Wrap(faults.ErrTransient, "ingest", "delete capture", id, err)
	}
	return nil
}

const recordColumns = "id, visit_stop_id, media_asset_id, capture_type, caption, transcript, sentiment, lat, lng, captured_by, captured_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*CaptureRecord, error) {
	var (
		id          string
		visitStopID string
		assetID     sql.NullString
		captureType string
		caption     sql.NullString
		transcript  sql.NullString
		sentiment   sql.NullString
		lat         sql.NullFloat64
		lng         sql.NullFloat64
		capturedBy  string
		capturedRaw string
	)
	if err := scanner.Scan(
		&id,
		&visitStopID,
		&assetID,
		&captureType,
		&caption,
		&transcript,
		&sentiment,
		&lat,
		&lng,
		&capturedBy,
		&capturedRaw,
	); err != nil {
		return nil, err
	}

	record := &CaptureRecord{
		ID:           id,
		VisitStopID:  visitStopID,
		MediaAssetID: assetID.String,
		CaptureType:  capture.Type(captureType),
		Caption:      caption.String,
		Transcript:   transcript.String,
		Sentiment:    sentiment.String,
		CapturedBy:   capture.CapturedBy(capturedBy),
	}
	if lat.Valid && lng.Valid {
		record.Location = &capture.Location{Lat: lat.Float64, Lng: lng.Float64}
	}
	if captured, err := time.Parse(timeColumnFormat, capturedRaw); err == nil {
		record.CapturedAt = captured
	} else if captured, err := time.Parse(time.RFC3339Nano, capturedRaw); err == nil {
		record.CapturedAt = captured
	}
	return record, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
