package ingest_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"fieldcapture/internal/asset"
	"fieldcapture/internal/capture"
	"fieldcapture/internal/faults"
	"fieldcapture/internal/ingest"
)

type recordedDispatch struct {
	assetID  string
	fileType capture.FileType
}

type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched []recordedDispatch
}

func (d *fakeDispatcher) Dispatch(assetID string, fileType capture.FileType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatched = append(d.dispatched, recordedDispatch{assetID: assetID, fileType: fileType})
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dispatched)
}

type fakeScorer struct {
	mu     sync.Mutex
	calls  []string
	err    error
	called chan struct{}
}

func newFakeScorer(err error) *fakeScorer {
	return &fakeScorer{err: err, called: make(chan struct{}, 8)}
}

func (s *fakeScorer) Enabled() bool { return true }

func (s *fakeScorer) Score(_ context.Context, visitStopID string) error {
	s.mu.Lock()
	s.calls = append(s.calls, visitStopID)
	s.mu.Unlock()
	s.called <- struct{}{}
	return s.err
}

type fakeBlobs struct {
	mu      sync.Mutex
	deleted []string
	err     error
}

func (b *fakeBlobs) Delete(locator string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, locator)
	return b.err
}

// failingRecords wraps the real store and fails the first insert.
type failingRecords struct {
	ingest.RecordStore
	failures int
}

func (f *failingRecords) Insert(ctx context.Context, record *ingest.CaptureRecord) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("disk full")
	}
	return f.RecordStore.Insert(ctx, record)
}

type fixture struct {
	assets  *asset.Store
	records *ingest.SQLRecordStore
	pool    *fakeDispatcher
	blobs   *fakeBlobs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := asset.Open(filepath.Join(t.TempDir(), "fieldcapture.db"))
	if err != nil {
		t.Fatalf("asset.Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	records, err := ingest.NewRecordStore(store.DB())
	if err != nil {
		t.Fatalf("NewRecordStore failed: %v", err)
	}
	return &fixture{assets: store, records: records, pool: &fakeDispatcher{}, blobs: &fakeBlobs{}}
}

func (f *fixture) service(scorer ingest.ScoreClient) *ingest.Service {
	return ingest.NewService(f.assets, f.records, f.pool, scorer, f.blobs, nil)
}

func photoRequest() ingest.Request {
	return ingest.Request{
		VisitStopID:      "stop-1",
		CaptureType:      "photo",
		StorageLocator:   "ab/photo-locator",
		OriginalFilename: "shelf.jpg",
		MimeType:         "image/jpeg",
		SizeBytes:        2048,
		Caption:          "end cap display",
		CapturedBy:       "sales",
	}
}

func TestCreateRequiresVisitStopAndType(t *testing.T) {
	svc := newFixture(t).service(nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, ingest.Request{CaptureType: "photo"}); !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("expected validation error for missing visit stop, got %v", err)
	}
	if _, err := svc.Create(ctx, ingest.Request{VisitStopID: "stop-1", CaptureType: "selfie"}); !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("expected validation error for unknown type, got %v", err)
	}
}

func TestCreatePhotoCreatesAssetAndDispatches(t *testing.T) {
	f := newFixture(t)
	svc := f.service(nil)
	ctx := context.Background()

	result, err := svc.Create(ctx, photoRequest())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if result.MediaAssetID == "" {
		t.Fatal("photo capture must mint an asset id")
	}

	media, err := f.assets.GetByID(ctx, result.MediaAssetID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if media.Status != asset.StatusProcessing {
		t.Fatalf("accepted bytes must be processing, got %s", media.Status)
	}
	if media.StorageLocator != "ab/photo-locator" {
		t.Fatalf("locator not recorded: %q", media.StorageLocator)
	}

	if f.pool.count() != 1 {
		t.Fatalf("expected one dispatch, got %d", f.pool.count())
	}
	if f.pool.dispatched[0].fileType != capture.FileImage {
		t.Fatalf("expected image dispatch, got %s", f.pool.dispatched[0].fileType)
	}

	record, err := svc.GetByID(ctx, result.CaptureID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if record.MediaAssetID != result.MediaAssetID {
		t.Fatalf("record must reference the asset, got %q", record.MediaAssetID)
	}
}

func TestCreateNoteSkipsAsset(t *testing.T) {
	f := newFixture(t)
	svc := f.service(nil)

	result, err := svc.Create(context.Background(), ingest.Request{
		VisitStopID: "stop-1",
		CaptureType: "note",
		Caption:     "manager asked about pricing",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if result.MediaAssetID != "" {
		t.Fatalf("note capture must not mint an asset, got %q", result.MediaAssetID)
	}
	if f.pool.count() != 0 {
		t.Fatalf("note capture must not dispatch, got %d", f.pool.count())
	}
}

func TestCreateCompensatesOnRecordFailure(t *testing.T) {
	f := newFixture(t)
	failing := &failingRecords{RecordStore: f.records, failures: 1}
	svc := ingest.NewService(f.assets, failing, f.pool, nil, f.blobs, nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, photoRequest()); err == nil {
		t.Fatal("expected record insert failure to surface")
	}

	stats, err := f.assets.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus failed: %v", err)
	}
	for status, n := range stats {
		if n != 0 {
			t.Fatalf("asset row must be rolled back, found %d in %s", n, status)
		}
	}
	if f.pool.count() != 0 {
		t.Fatalf("failed create must not dispatch, got %d", f.pool.count())
	}
}

func TestScorerFailureDoesNotAffectCreate(t *testing.T) {
	f := newFixture(t)
	scorer := newFakeScorer(errors.New("scorer offline"))
	svc := f.service(scorer)

	result, err := svc.Create(context.Background(), photoRequest())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if result.CaptureID == "" {
		t.Fatal("expected capture id")
	}

	select {
	case <-scorer.called:
	case <-time.After(2 * time.Second):
		t.Fatal("scorer was never invoked")
	}
}

func TestListByVisitStopOrdersByCaptureTime(t *testing.T) {
	f := newFixture(t)
	svc := f.service(nil)
	ctx := context.Background()

	for _, caption := range []string{"first", "second", "third"} {
		if _, err := svc.Create(ctx, ingest.Request{
			VisitStopID: "stop-1",
			CaptureType: "note",
			Caption:     caption,
		}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	if _, err := svc.Create(ctx, ingest.Request{VisitStopID: "stop-2", CaptureType: "note"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	records, err := svc.ListByVisitStop(ctx, "stop-1")
	if err != nil {
		t.Fatalf("ListByVisitStop failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 captures for stop-1, got %d", len(records))
	}
	for i, caption := range []string{"first", "second", "third"} {
		if records[i].Caption != caption {
			t.Fatalf("capture %d out of order: %q", i, records[i].Caption)
		}
	}
}

func TestDeleteCascadesToAssetAndBlobs(t *testing.T) {
	f := newFixture(t)
	svc := f.service(nil)
	ctx := context.Background()

	result, err := svc.Create(ctx, photoRequest())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := f.assets.MarkReady(ctx, result.MediaAssetID, asset.Derivatives{
		ThumbnailLocator: "ab/thumb",
		PreviewLocator:   "ab/preview",
	}); err != nil {
		t.Fatalf("MarkReady failed: %v", err)
	}

	if err := svc.Delete(ctx, result.CaptureID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := svc.GetByID(ctx, result.CaptureID); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("capture must be gone, got %v", err)
	}
	if _, err := f.assets.GetByID(ctx, result.MediaAssetID); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("asset row must be gone, got %v", err)
	}

	f.blobs.mu.Lock()
	deleted := len(f.blobs.deleted)
	f.blobs.mu.Unlock()
	if deleted != 3 {
		t.Fatalf("expected bytes, thumbnail and preview removed, got %d", deleted)
	}
}

func TestDeleteMissingCapture(t *testing.T) {
	svc := newFixture(t).service(nil)
	if err := svc.Delete(context.Background(), "no-such-capture"); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
