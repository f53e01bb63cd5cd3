package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"fieldcapture/internal/api"
	"fieldcapture/internal/config"
	"fieldcapture/internal/faults"
	"fieldcapture/internal/localqueue"
)

// HTTPSubmitter pushes pending captures to the ingest daemon. Media
// captures are two requests: the raw bytes first, then the capture
// metadata referencing the returned locator.
type HTTPSubmitter struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPSubmitter builds a submitter from the client config section. The
// per-request timeout comes from the drain context, not the HTTP client.
func NewHTTPSubmitter(cfg config.Client) *HTTPSubmitter {
	return &HTTPSubmitter{
		baseURL:    cfg.ServerURL,
		token:      cfg.APIToken,
		httpClient: &http.Client{},
	}
}

// Submit uploads the record's bytes when present and posts the capture.
func (s *HTTPSubmitter) Submit(ctx context.Context, record *localqueue.PendingCapture) error {
	request := api.SubmitRequest{
		VisitStopID: record.VisitStopID,
		CaptureType: string(record.Type),
		Caption:     record.Caption,
		Transcript:  record.Transcript,
		Sentiment:   record.Sentiment,
		Location:    record.Location,
		CapturedBy:  string(record.CapturedBy),
	}

	if record.Type.RequiresAsset() && record.LocalBlobRef != "" {
		upload, err := s.uploadBytes(ctx, record.LocalBlobRef)
		if err != nil {
			return err
		}
		request.StorageLocator = upload.Locator
		request.SizeBytes = upload.SizeBytes
		request.OriginalFilename = filepath.Base(record.LocalBlobRef)
		request.MimeType = mimeTypeFor(record.LocalBlobRef)
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return faults.Wrap(faults.ErrPermanent, "syncer", "encode capture", record.ID, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/captures", bytes.NewReader(payload))
	if err != nil {
		return faults.Wrap(faults.ErrPermanent, "syncer", "build request", record.ID, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	s.authorize(httpReq)

	response, err := s.httpClient.Do(httpReq)
	if err != nil {
		return faults.Wrap(faults.ErrTransient, "syncer", "submit capture", record.ID, err)
	}
	defer drainAndClose(response.Body)

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return statusError("submit capture", record.ID, response)
	}
	return nil
}

// Ping probes the daemon health endpoint. Used by the reconnect loop to
// decide when a new drain pass is worth attempting.
func (s *HTTPSubmitter) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/health", nil)
	if err != nil {
		return faults.Wrap(faults.ErrPermanent, "syncer", "build request", "health", err)
	}
	s.authorize(httpReq)

	response, err := s.httpClient.Do(httpReq)
	if err != nil {
		return faults.Wrap(faults.ErrTransient, "syncer", "ping", "health", err)
	}
	defer drainAndClose(response.Body)
	if response.StatusCode != http.StatusOK {
		return statusError("ping", "health", response)
	}
	return nil
}

func (s *HTTPSubmitter) uploadBytes(ctx context.Context, path string) (*api.UploadResponse, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, faults.Wrap(faults.ErrPermanent, "syncer", "open local blob", path, err)
	}
	defer file.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/uploads", file)
	if err != nil {
		return nil, faults.Wrap(faults.ErrPermanent, "syncer", "build request", path, err)
	}
	httpReq.Header.Set("Content-Type", "application/octet-stream")
	s.authorize(httpReq)

	response, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, faults.Wrap(faults.ErrTransient, "syncer", "upload bytes", path, err)
	}
	defer drainAndClose(response.Body)

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, statusError("upload bytes", path, response)
	}
	var upload api.UploadResponse
	if err := json.NewDecoder(response.Body).Decode(&upload); err != nil {
		return nil, faults.Wrap(faults.ErrTransient, "syncer", "decode upload response", path, err)
	}
	return &upload, nil
}

func (s *HTTPSubmitter) authorize(request *http.Request) {
	if s.token != "" {
		request.Header.Set("Authorization", "Bearer "+s.token)
	}
}

// statusError classifies a non-2xx response. 4xx responses will not
// succeed on retry and are marked permanent; everything else is transient.
func statusError(operation, subject string, response *http.Response) error {
	marker := faults.ErrTransient
	if response.StatusCode >= 400 && response.StatusCode < 500 {
		marker = faults.ErrPermanent
	}
	detail := fmt.Errorf("unexpected status %d", response.StatusCode)
	var body api.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(response.Body, 4096)).Decode(&body); err == nil && body.Error != "" {
		detail = fmt.Errorf("status %d: %s", response.StatusCode, body.Error)
	}
	return faults.Wrap(marker, "syncer", operation, subject, detail)
}

func mimeTypeFor(path string) string {
	if mimeType := mime.TypeByExtension(filepath.Ext(path)); mimeType != "" {
		return mimeType
	}
	return "application/octet-stream"
}

func drainAndClose(body io.ReadCloser) {
	io.Copy(io.Discard, body)
	body.Close()
}
