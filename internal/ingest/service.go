package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"fieldcapture/internal/asset"
	"fieldcapture/internal/capture"
	"fieldcapture/internal/faults"
	"fieldcapture/internal/logging"
)

// AssetStore is the slice of the asset store the ingest service needs.
type AssetStore interface {
	Create(ctx context.Context, record asset.NewAsset) (*asset.Asset, error)
	MarkProcessing(ctx context.Context, id string, storageLocator string) error
	GetByID(ctx context.Context, id string) (*asset.Asset, error)
	Delete(ctx context.Context, id string) error
}

// RecordStore persists capture records.
type RecordStore interface {
	Insert(ctx context.Context, record *CaptureRecord) error
	GetByID(ctx context.Context, id string) (*CaptureRecord, error)
	ListByVisitStop(ctx context.Context, visitStopID string) ([]*CaptureRecord, error)
	Delete(ctx context.Context, id string) error
}

// Dispatcher hands an asset to the background processing pool. Dispatch
// never blocks; a full queue is logged by the implementation and the asset
// stays in processing until a retry re-dispatches it.
type Dispatcher interface {
	Dispatch(assetID string, fileType capture.FileType)
}

// ScoreClient notifies the visit scoring service that a stop gained a
// capture. Implementations report Enabled so the service can skip the
// goroutine entirely when no scorer is configured.
type ScoreClient interface {
	Enabled() bool
	Score(ctx context.Context, visitStopID string) error
}

// BlobRemover deletes stored bytes by locator.
type BlobRemover interface {
	Delete(locator string) error
}

const scoreTimeout = 10 * time.Second

// Request carries one submitted capture.
type Request struct {
	VisitStopID      string
	CaptureType      string
	StorageLocator   string
	OriginalFilename string
	MimeType         string
	SizeBytes        int64
	Caption          string
	Transcript       string
	Sentiment        string
	Location         *capture.Location
	CapturedBy       string
}

// Result reports the identifiers minted for an accepted capture.
type Result struct {
	CaptureID    string
	MediaAssetID string
}

// Service turns submitted captures into capture records plus, for media
// captures, an asset row handed to the processing pool.
type Service struct {
	assets  AssetStore
	records RecordStore
	pool    Dispatcher
	scorer  ScoreClient
	blobs   BlobRemover
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewService wires the ingest service. scorer may be nil.
func NewService(assets AssetStore, records RecordStore, pool Dispatcher, scorer ScoreClient, blobs BlobRemover, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		assets:  assets,
		records: records,
		pool:    pool,
		scorer:  scorer,
		blobs:   blobs,
		logger:  logging.NewComponentLogger(logger, "ingest"),
		nowFunc: time.Now,
	}
}

// Create accepts one capture. For photo and voice note captures with
// uploaded bytes it first creates the asset row and confirms the bytes via
// the processing transition; only then is the capture record written. If
// the record insert fails the asset row is removed so no orphan metadata
// survives a partial create.
func (s *Service) Create(ctx context.Context, req Request) (*Result, error) {
	if req.VisitStopID == "" {
		return nil, faults.Wrap(faults.ErrValidation, "ingest", "create", "visit stop id is required", nil)
	}
	captureType, ok := capture.ParseType(req.CaptureType)
	if !ok {
		return nil, faults.Wrap(faults.ErrValidation, "ingest", "create", "unknown capture type "+req.CaptureType, nil)
	}
	capturedBy := capture.BySales
	if req.CapturedBy != "" {
		capturedBy, ok = capture.ParseCapturedBy(req.CapturedBy)
		if !ok {
			return nil, faults.Wrap(faults.ErrValidation, "ingest", "create", "unknown captured_by "+req.CapturedBy, nil)
		}
	}

	var (
		assetID  string
		fileType capture.FileType
	)
	if captureType.RequiresAsset() && req.StorageLocator != "" {
		fileType = fileTypeFor(captureType, req.MimeType)
		created, err := s.assets.Create(ctx, asset.NewAsset{
			PropertyID:       req.VisitStopID,
			OriginalFilename: req.OriginalFilename,
			FileType:         fileType,
			MimeType:         req.MimeType,
			SizeBytes:        req.SizeBytes,
		})
		if err != nil {
			return nil, err
		}
		assetID = created.ID
		if err := s.assets.MarkProcessing(ctx, assetID, req.StorageLocator); err != nil {
			s.compensate(ctx, assetID)
			return nil, err
		}
	}

	record := &CaptureRecord{
		ID:           uuid.New().String(),
		VisitStopID:  req.VisitStopID,
		MediaAssetID: assetID,
		CaptureType:  captureType,
		Caption:      req.Caption,
		Transcript:   req.Transcript,
		Sentiment:    req.Sentiment,
		Location:     req.Location,
		CapturedBy:   capturedBy,
		CapturedAt:   s.nowFunc().UTC(),
	}
	if err := s.records.Insert(ctx, record); err != nil {
		if assetID != "" {
			s.compensate(ctx, assetID)
		}
		return nil, err
	}

	if assetID != "" && s.pool != nil {
		s.pool.Dispatch(assetID, fileType)
	}
	if s.scorer != nil && s.scorer.Enabled() {
		go s.score(record.VisitStopID)
	}

	s.logger.Info("capture accepted",
		logging.String(logging.FieldCaptureID, record.ID),
		logging.String(logging.FieldVisitStop, record.VisitStopID),
		logging.String(logging.FieldEventType, string(captureType)))
	return &Result{CaptureID: record.ID, MediaAssetID: assetID}, nil
}

// GetByID returns one capture record.
func (s *Service) GetByID(ctx context.Context, id string) (*CaptureRecord, error) {
	return s.records.GetByID(ctx, id)
}

// ListByVisitStop returns a stop's captures in capture-time order.
func (s *Service) ListByVisitStop(ctx context.Context, visitStopID string) ([]*CaptureRecord, error) {
	if visitStopID == "" {
		return nil, faults.Wrap(faults.ErrValidation, "ingest", "list", "visit stop id is required", nil)
	}
	return s.records.ListByVisitStop(ctx, visitStopID)
}

// Delete removes a capture record and, when it owns an asset, the asset's
// stored bytes and derivatives before the metadata rows. Blob removal
// failures are logged and do not abort the delete; the row removal is what
// callers observe.
func (s *Service) Delete(ctx context.Context, captureID string) error {
	record, err := s.records.GetByID(ctx, captureID)
	if err != nil {
		return err
	}

	if record.MediaAssetID != "" {
		media, err := s.assets.GetByID(ctx, record.MediaAssetID)
		if err == nil {
			s.removeBlobs(media)
			if err := s.assets.Delete(ctx, media.ID); err != nil {
				return err
			}
		} else {
			s.logger.Warn("asset lookup failed during capture delete",
				logging.String(logging.FieldAssetID, record.MediaAssetID),
				logging.Error(err))
		}
	}

	return s.records.Delete(ctx, captureID)
}

func (s *Service) removeBlobs(media *asset.Asset) {
	if s.blobs == nil {
		return
	}
	for _, locator := range []string{media.StorageLocator, media.ThumbnailLocator, media.PreviewLocator} {
		if locator == "" {
			continue
		}
		if err := s.blobs.Delete(locator); err != nil {
			s.logger.Warn("blob removal failed",
				logging.String(logging.FieldAssetID, media.ID),
				logging.String("locator", locator),
				logging.Error(err))
		}
	}
}

// compensate rolls back the asset row created for a capture whose record
// insert never happened. A failed cleanup leaves an orphan row, which is
// harmless but worth a warning for the operator.
func (s *Service) compensate(ctx context.Context, assetID string) {
	if err := s.assets.Delete(ctx, assetID); err != nil {
		s.logger.Warn("orphan asset cleanup failed",
			logging.String(logging.FieldAssetID, assetID),
			logging.Error(err))
	}
}

func (s *Service) score(visitStopID string) {
	ctx, cancel := context.WithTimeout(context.Background(), scoreTimeout)
	defer cancel()
	if err := s.scorer.Score(ctx, visitStopID); err != nil {
		s.logger.Warn("visit score refresh failed",
			logging.String(logging.FieldVisitStop, visitStopID),
			logging.Error(err))
	}
}

// fileTypeFor classifies uploaded bytes. The MIME type wins when present;
// otherwise the capture type implies the family.
func fileTypeFor(captureType capture.Type, mimeType string) capture.FileType {
	if mimeType != "" {
		return capture.ClassifyMIME(mimeType)
	}
	if captureType == capture.TypeVoiceNote {
		return capture.FileAudio
	}
	return capture.FileImage
}
