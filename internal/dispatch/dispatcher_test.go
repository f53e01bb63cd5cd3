package dispatch_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fieldcapture/internal/asset"
	"fieldcapture/internal/blobstore"
	"fieldcapture/internal/capture"
	"fieldcapture/internal/dispatch"
)

type fixture struct {
	assets *asset.Store
	blobs  *blobstore.Store
	pool   *dispatch.Dispatcher
}

func newFixture(t *testing.T, opts dispatch.Options) *fixture {
	t.Helper()
	dir := t.TempDir()

	assets, err := asset.Open(filepath.Join(dir, "fieldcapture.db"))
	if err != nil {
		t.Fatalf("asset.Open failed: %v", err)
	}
	t.Cleanup(func() { assets.Close() })

	blobs, err := blobstore.New(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("blobstore.New failed: %v", err)
	}

	pool := dispatch.New(assets, blobs, opts, nil)
	pool.Start()
	t.Cleanup(pool.Stop)
	return &fixture{assets: assets, blobs: blobs, pool: pool}
}

func (f *fixture) storeProcessingAsset(t *testing.T, fileType capture.FileType, mimeType string, payload []byte) *asset.Asset {
	t.Helper()
	ctx := context.Background()

	locator, _, err := f.blobs.Save(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	record, err := f.assets.Create(ctx, asset.NewAsset{
		PropertyID:       "prop-1",
		OriginalFilename: "upload.bin",
		FileType:         fileType,
		MimeType:         mimeType,
		SizeBytes:        int64(len(payload)),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := f.assets.MarkProcessing(ctx, record.ID, locator); err != nil {
		t.Fatalf("MarkProcessing failed: %v", err)
	}
	record.StorageLocator = locator
	return record
}

func (f *fixture) waitForStatus(t *testing.T, id string, want asset.Status) *asset.Asset {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		record, err := f.assets.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if record.Status == want {
			return record
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("asset %s never reached %s", id, want)
	return nil
}

func testPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 64, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	return buf.Bytes()
}

func TestImageProducesDerivativesAndDimensions(t *testing.T) {
	f := newFixture(t, dispatch.Options{Workers: 1, QueueDepth: 4})
	record := f.storeProcessingAsset(t, capture.FileImage, "image/png", testPNG(t, 800, 600))

	f.pool.Dispatch(record.ID, capture.FileImage)
	ready := f.waitForStatus(t, record.ID, asset.StatusReady)

	if ready.Width != 800 || ready.Height != 600 {
		t.Fatalf("dimensions not recorded: %dx%d", ready.Width, ready.Height)
	}
	if ready.ThumbnailLocator == "" || ready.PreviewLocator == "" {
		t.Fatalf("derivative locators missing: %#v", ready)
	}
	if ready.ProcessedAt == nil {
		t.Fatal("processed_at must be set")
	}

	thumb, err := f.blobs.Open(ready.ThumbnailLocator)
	if err != nil {
		t.Fatalf("thumbnail not stored: %v", err)
	}
	defer thumb.Close()
	decoded, _, err := image.Decode(thumb)
	if err != nil {
		t.Fatalf("thumbnail not decodable: %v", err)
	}
	if decoded.Bounds().Dx() > 320 || decoded.Bounds().Dy() > 320 {
		t.Fatalf("thumbnail exceeds bound: %v", decoded.Bounds())
	}
}

func TestCorruptImageFails(t *testing.T) {
	f := newFixture(t, dispatch.Options{Workers: 1, QueueDepth: 4})
	record := f.storeProcessingAsset(t, capture.FileImage, "image/png", []byte("not an image"))

	f.pool.Dispatch(record.ID, capture.FileImage)
	failed := f.waitForStatus(t, record.ID, asset.StatusFailed)

	if failed.ProcessingError == "" {
		t.Fatal("failure reason must be recorded")
	}
	if failed.StorageLocator == "" {
		t.Fatal("original bytes must stay reachable after failure")
	}
}

func TestTextDocumentExtractsSnippet(t *testing.T) {
	f := newFixture(t, dispatch.Options{Workers: 1, QueueDepth: 4})
	body := []byte("visit summary: shelf restocked, promo materials placed")
	record := f.storeProcessingAsset(t, capture.FileDocument, "text/plain", body)

	f.pool.Dispatch(record.ID, capture.FileDocument)
	ready := f.waitForStatus(t, record.ID, asset.StatusReady)

	if !strings.Contains(ready.ExtractedText, "shelf restocked") {
		t.Fatalf("snippet missing: %q", ready.ExtractedText)
	}
}

func TestUnsupportedTypeStaysProcessing(t *testing.T) {
	f := newFixture(t, dispatch.Options{Workers: 1, QueueDepth: 4})
	record := f.storeProcessingAsset(t, capture.FileVideo, "video/mp4", []byte("frames"))

	f.pool.Dispatch(record.ID, capture.FileVideo)
	time.Sleep(200 * time.Millisecond)

	after, err := f.assets.GetByID(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if after.Status != asset.StatusProcessing {
		t.Fatalf("unsupported types must stay processing, got %s", after.Status)
	}
}

func TestDispatchNeverBlocksWhenQueueFull(t *testing.T) {
	f := newFixture(t, dispatch.Options{Workers: 1, QueueDepth: 1})
	f.pool.Stop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			f.pool.Dispatch("overflow", capture.FileImage)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch blocked on a full queue")
	}
}
