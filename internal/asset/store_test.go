package asset_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"fieldcapture/internal/asset"
	"fieldcapture/internal/capture"
	"fieldcapture/internal/faults"
)

func newStore(t *testing.T) *asset.Store {
	t.Helper()
	store, err := asset.Open(filepath.Join(t.TempDir(), "fieldcapture.db"))
	if err != nil {
		t.Fatalf("asset.Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func createImage(t *testing.T, store *asset.Store) *asset.Asset {
	t.Helper()
	record, err := store.Create(context.Background(), asset.NewAsset{
		PropertyID:       "prop-1",
		OriginalFilename: "storefront.jpg",
		FileType:         capture.FileImage,
		MimeType:         "image/jpeg",
		SizeBytes:        1024,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return record
}

func TestCreateStartsUploadingWithoutLocator(t *testing.T) {
	store := newStore(t)
	record := createImage(t, store)

	fetched, err := store.GetByID(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != asset.StatusUploading {
		t.Fatalf("expected uploading, got %s", fetched.Status)
	}
	if fetched.StorageLocator != "" {
		t.Fatalf("locator must be empty while uploading, got %q", fetched.StorageLocator)
	}
}

func TestCreateRejectsUnknownFileType(t *testing.T) {
	store := newStore(t)
	_, err := store.Create(context.Background(), asset.NewAsset{FileType: "spreadsheet"})
	if !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHappyPathTransitions(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	record := createImage(t, store)

	if err := store.MarkProcessing(ctx, record.ID, "ab/some-locator-uuid"); err != nil {
		t.Fatalf("MarkProcessing failed: %v", err)
	}
	if err := store.MarkReady(ctx, record.ID, asset.Derivatives{
		ThumbnailLocator: "ab/thumb",
		PreviewLocator:   "ab/preview",
		Width:            640,
		Height:           480,
	}); err != nil {
		t.Fatalf("MarkReady failed: %v", err)
	}

	fetched, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != asset.StatusReady {
		t.Fatalf("expected ready, got %s", fetched.Status)
	}
	if fetched.ThumbnailLocator != "ab/thumb" || fetched.Width != 640 || fetched.Height != 480 {
		t.Fatalf("derivatives not persisted: %#v", fetched)
	}
	if fetched.ProcessedAt == nil {
		t.Fatal("expected processed_at to be set")
	}
}

func TestReadyIsTerminal(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	record := createImage(t, store)

	if err := store.MarkProcessing(ctx, record.ID, "ab/loc"); err != nil {
		t.Fatalf("MarkProcessing failed: %v", err)
	}
	if err := store.MarkReady(ctx, record.ID, asset.Derivatives{}); err != nil {
		t.Fatalf("MarkReady failed: %v", err)
	}

	if err := store.MarkFailed(ctx, record.ID, "late worker callback"); !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("expected guarded rejection of failed-after-ready, got %v", err)
	}
	if _, err := store.Retry(ctx, record.ID); !errors.Is(err, faults.ErrNotFailed) {
		t.Fatalf("expected not-failed rejection, got %v", err)
	}

	fetched, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != asset.StatusReady {
		t.Fatalf("ready must be terminal, got %s", fetched.Status)
	}
}

func TestMarkProcessingRequiresUploading(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	record := createImage(t, store)

	if err := store.MarkProcessing(ctx, record.ID, "ab/loc"); err != nil {
		t.Fatalf("MarkProcessing failed: %v", err)
	}
	if err := store.MarkProcessing(ctx, record.ID, "ab/other"); !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("expected rejection of double processing transition, got %v", err)
	}
}

func TestRetryOnlyFromFailed(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	record := createImage(t, store)

	if err := store.MarkProcessing(ctx, record.ID, "ab/loc"); err != nil {
		t.Fatalf("MarkProcessing failed: %v", err)
	}

	// processing → retry is the "not failed" rejection path
	if _, err := store.Retry(ctx, record.ID); !errors.Is(err, faults.ErrNotFailed) {
		t.Fatalf("expected not-failed error, got %v", err)
	}
	fetched, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != asset.StatusProcessing {
		t.Fatalf("rejected retry must not mutate status, got %s", fetched.Status)
	}

	if err := store.MarkFailed(ctx, record.ID, "decode error"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	retried, err := store.Retry(ctx, record.ID)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if retried.Status != asset.StatusProcessing {
		t.Fatalf("expected processing after retry, got %s", retried.Status)
	}
	if retried.ProcessingError != "" {
		t.Fatalf("retry must clear the error, got %q", retried.ProcessingError)
	}
	if retried.StorageLocator != "ab/loc" {
		t.Fatalf("original bytes locator must survive failure and retry, got %q", retried.StorageLocator)
	}
}

func TestRetryMissingAsset(t *testing.T) {
	store := newStore(t)
	if _, err := store.Retry(context.Background(), "no-such-id"); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCountByStatus(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	a := createImage(t, store)
	createImage(t, store)
	if err := store.MarkProcessing(ctx, a.ID, "ab/loc"); err != nil {
		t.Fatalf("MarkProcessing failed: %v", err)
	}

	stats, err := store.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus failed: %v", err)
	}
	if stats[asset.StatusUploading] != 1 || stats[asset.StatusProcessing] != 1 {
		t.Fatalf("unexpected stats %#v", stats)
	}
}
