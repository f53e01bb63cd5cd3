package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"fieldcapture/internal/asset"
	"fieldcapture/internal/blobstore"
	"fieldcapture/internal/config"
	"fieldcapture/internal/dispatch"
	"fieldcapture/internal/ingest"
	"fieldcapture/internal/server"
	"fieldcapture/internal/testsupport"
)

type harness struct {
	daemon  *server.Daemon
	cfg     *config.Config
	baseURL string
	token   string
}

func startDaemon(t *testing.T, mutate func(cfg *config.Config)) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if mutate != nil {
		mutate(cfg)
	}

	assets, err := asset.Open(cfg.ServerDBPath())
	if err != nil {
		t.Fatalf("asset.Open failed: %v", err)
	}
	records, err := ingest.NewRecordStore(assets.DB())
	if err != nil {
		t.Fatalf("NewRecordStore failed: %v", err)
	}
	blobs, err := blobstore.New(cfg.Paths.BlobDir)
	if err != nil {
		t.Fatalf("blobstore.New failed: %v", err)
	}
	pool := dispatch.New(assets, blobs, dispatch.Options{
		Workers:        cfg.Server.DispatchWorkers,
		QueueDepth:     cfg.Server.DispatchQueueDepth,
		ThumbnailMaxPx: cfg.Server.ThumbnailMaxPx,
		PreviewMaxPx:   cfg.Server.PreviewMaxPx,
	}, nil)
	svc := ingest.NewService(assets, records, pool, nil, blobs, nil)

	daemon, err := server.New(cfg, assets, svc, blobs, pool, nil)
	if err != nil {
		t.Fatalf("server.New failed: %v", err)
	}
	if err := daemon.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start failed: %v", err)
	}
	t.Cleanup(func() { daemon.Close() })

	return &harness{
		daemon:  daemon,
		cfg:     cfg,
		baseURL: "http://" + daemon.Addr(),
		token:   cfg.Server.APIToken,
	}
}

func (h *harness) do(t *testing.T, method, path string, body io.Reader, out any) *http.Response {
	t.Helper()
	request, err := http.NewRequest(method, h.baseURL+path, body)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if h.token != "" {
		request.Header.Set("Authorization", "Bearer "+h.token)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	t.Cleanup(func() { response.Body.Close() })
	if out != nil {
		if err := json.NewDecoder(response.Body).Decode(out); err != nil && err != io.EOF {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return response
}

func (h *harness) submitPhoto(t *testing.T, visitStop string) (captureID, assetID string) {
	t.Helper()

	var upload struct {
		Locator   string `json:"locator"`
		SizeBytes int64  `json:"size_bytes"`
	}
	response := h.do(t, http.MethodPost, "/api/uploads", bytes.NewReader(testsupport.PNG(t, 400, 300)), &upload)
	if response.StatusCode != http.StatusCreated {
		t.Fatalf("upload returned %d", response.StatusCode)
	}

	payload := fmt.Sprintf(`{
        "visit_stop_id": %q,
        "capture_type": "photo",
        "storage_locator": %q,
        "original_filename": "shelf.png",
        "mime_type": "image/png",
        "size_bytes": %d,
        "captured_by": "sales"
    }`, visitStop, upload.Locator, upload.SizeBytes)

	var submit struct {
		CaptureID    string `json:"capture_id"`
		MediaAssetID string `json:"media_asset_id"`
	}
	response = h.do(t, http.MethodPost, "/api/captures", bytes.NewBufferString(payload), &submit)
	if response.StatusCode != http.StatusCreated {
		t.Fatalf("submit returned %d", response.StatusCode)
	}
	if submit.CaptureID == "" || submit.MediaAssetID == "" {
		t.Fatalf("missing identifiers in %+v", submit)
	}
	return submit.CaptureID, submit.MediaAssetID
}

func (h *harness) waitForAssetStatus(t *testing.T, assetID, want string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var status map[string]any
		response := h.do(t, http.MethodGet, "/api/assets/"+assetID, nil, &status)
		if response.StatusCode != http.StatusOK {
			t.Fatalf("status poll returned %d", response.StatusCode)
		}
		if status["status"] == want {
			return status
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("asset %s never reached %s", assetID, want)
	return nil
}

func TestSubmitFlowProcessesPhoto(t *testing.T) {
	h := startDaemon(t, nil)
	_, assetID := h.submitPhoto(t, "stop-1")

	status := h.waitForAssetStatus(t, assetID, "ready")
	if locator, _ := status["thumbnail_locator"].(string); locator == "" {
		t.Fatalf("ready asset missing thumbnail: %v", status)
	}
}

func TestListReturnsVisitStopCaptures(t *testing.T) {
	h := startDaemon(t, nil)
	h.submitPhoto(t, "stop-7")
	h.submitPhoto(t, "stop-7")
	h.submitPhoto(t, "stop-other")

	var list struct {
		Captures []map[string]any `json:"captures"`
	}
	response := h.do(t, http.MethodGet, "/api/captures?visit_stop=stop-7", nil, &list)
	if response.StatusCode != http.StatusOK {
		t.Fatalf("list returned %d", response.StatusCode)
	}
	if len(list.Captures) != 2 {
		t.Fatalf("expected 2 captures for stop-7, got %d", len(list.Captures))
	}
}

func TestRetryRejectedUnlessFailed(t *testing.T) {
	h := startDaemon(t, nil)
	_, assetID := h.submitPhoto(t, "stop-1")
	h.waitForAssetStatus(t, assetID, "ready")

	response := h.do(t, http.MethodPost, "/api/assets/"+assetID+"/retry", nil, nil)
	if response.StatusCode != http.StatusConflict {
		t.Fatalf("retry of ready asset must 409, got %d", response.StatusCode)
	}
}

func TestRetryReprocessesFailedAsset(t *testing.T) {
	h := startDaemon(t, nil)

	// corrupt bytes fail image processing
	var upload struct {
		Locator string `json:"locator"`
	}
	h.do(t, http.MethodPost, "/api/uploads", bytes.NewBufferString("not a png"), &upload)
	payload := fmt.Sprintf(`{"visit_stop_id":"stop-1","capture_type":"photo","storage_locator":%q,"mime_type":"image/png","captured_by":"sales"}`, upload.Locator)
	var submit struct {
		MediaAssetID string `json:"media_asset_id"`
	}
	h.do(t, http.MethodPost, "/api/captures", bytes.NewBufferString(payload), &submit)
	h.waitForAssetStatus(t, submit.MediaAssetID, "failed")

	var retried map[string]any
	response := h.do(t, http.MethodPost, "/api/assets/"+submit.MediaAssetID+"/retry", nil, &retried)
	if response.StatusCode != http.StatusOK {
		t.Fatalf("retry returned %d", response.StatusCode)
	}
	// bytes are still corrupt; the retry run fails again
	h.waitForAssetStatus(t, submit.MediaAssetID, "failed")
}

func TestSubmitValidation(t *testing.T) {
	h := startDaemon(t, nil)
	response := h.do(t, http.MethodPost, "/api/captures", bytes.NewBufferString(`{"capture_type":"photo"}`), nil)
	if response.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing visit stop must 400, got %d", response.StatusCode)
	}
}

func TestDeleteCascades(t *testing.T) {
	h := startDaemon(t, nil)
	captureID, assetID := h.submitPhoto(t, "stop-1")
	h.waitForAssetStatus(t, assetID, "ready")

	response := h.do(t, http.MethodDelete, "/api/captures/"+captureID, nil, nil)
	if response.StatusCode != http.StatusNoContent {
		t.Fatalf("delete returned %d", response.StatusCode)
	}

	response = h.do(t, http.MethodGet, "/api/assets/"+assetID, nil, nil)
	if response.StatusCode != http.StatusNotFound {
		t.Fatalf("asset must be gone after capture delete, got %d", response.StatusCode)
	}
}

func TestAuthRequiredWhenTokenConfigured(t *testing.T) {
	h := startDaemon(t, func(cfg *config.Config) {
		cfg.Server.APIToken = "secret-token"
	})

	request, err := http.NewRequest(http.MethodGet, h.baseURL+"/api/captures?visit_stop=stop-1", nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", response.StatusCode)
	}

	var list map[string]any
	if authed := h.do(t, http.MethodGet, "/api/captures?visit_stop=stop-1", nil, &list); authed.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", authed.StatusCode)
	}
}

func TestSecondDaemonInstanceRejected(t *testing.T) {
	h := startDaemon(t, nil)

	cfg := testsupport.NewConfig(t)
	// same lock directory as the running daemon
	cfg.Paths.LogDir = h.cfg.Paths.LogDir

	assets, err := asset.Open(cfg.ServerDBPath())
	if err != nil {
		t.Fatalf("asset.Open failed: %v", err)
	}
	defer assets.Close()
	records, err := ingest.NewRecordStore(assets.DB())
	if err != nil {
		t.Fatalf("NewRecordStore failed: %v", err)
	}
	blobs, err := blobstore.New(cfg.Paths.BlobDir)
	if err != nil {
		t.Fatalf("blobstore.New failed: %v", err)
	}
	pool := dispatch.New(assets, blobs, dispatch.Options{Workers: 1, QueueDepth: 1}, nil)
	svc := ingest.NewService(assets, records, pool, nil, blobs, nil)

	second, err := server.New(cfg, assets, svc, blobs, pool, nil)
	if err != nil {
		t.Fatalf("server.New failed: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("second instance must fail to acquire the lock")
	}
}
