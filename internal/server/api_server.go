package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"fieldcapture/internal/api"
	"fieldcapture/internal/config"
	"fieldcapture/internal/faults"
	"fieldcapture/internal/ingest"
	"fieldcapture/internal/logging"
)

type apiServer struct {
	bind           string
	maxUploadBytes int64
	logger         *slog.Logger
	daemon         *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:           cfg.Server.Bind,
		maxUploadBytes: cfg.Server.MaxUploadBytes,
		logger:         logger,
		daemon:         d,
	}

	token := cfg.Server.APIToken
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", srv.handleHealth)
	mux.HandleFunc("/api/uploads", authMiddleware(token, srv.handleUploads))
	mux.HandleFunc("/api/captures", authMiddleware(token, srv.handleCaptures))
	mux.HandleFunc("/api/captures/", authMiddleware(token, srv.handleCaptureItem))
	mux.HandleFunc("/api/assets/", authMiddleware(token, srv.handleAsset))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return err
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	s.writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
}

// handleUploads streams the request body into the blob store and returns
// the locator the capture submission should reference.
func (s *apiServer) handleUploads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	body := http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	locator, size, err := s.daemon.blobs.Save(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit", "validation")
			return
		}
		s.log().Error("upload failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "upload failed", "")
		return
	}
	s.writeJSON(w, http.StatusCreated, api.UploadResponse{Locator: locator, SizeBytes: size})
}

func (s *apiServer) handleCaptures(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmit(w, r)
	case http.MethodGet:
		s.handleList(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
	}
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var request api.SubmitRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&request); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", "validation")
		return
	}

	result, err := s.daemon.svc.Create(r.Context(), ingest.Request{
		VisitStopID:      request.VisitStopID,
		CaptureType:      request.CaptureType,
		StorageLocator:   request.StorageLocator,
		OriginalFilename: request.OriginalFilename,
		MimeType:         request.MimeType,
		SizeBytes:        request.SizeBytes,
		Caption:          request.Caption,
		Transcript:       request.Transcript,
		Sentiment:        request.Sentiment,
		Location:         request.Location,
		CapturedBy:       request.CapturedBy,
	})
	if err != nil {
		s.writeFault(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.SubmitResponse{
		CaptureID:    result.CaptureID,
		MediaAssetID: result.MediaAssetID,
	})
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	visitStop := strings.TrimSpace(r.URL.Query().Get("visit_stop"))
	records, err := s.daemon.svc.ListByVisitStop(r.Context(), visitStop)
	if err != nil {
		s.writeFault(w, err)
		return
	}

	views := make([]api.CaptureView, 0, len(records))
	for _, record := range records {
		views = append(views, api.CaptureView{
			ID:           record.ID,
			VisitStopID:  record.VisitStopID,
			MediaAssetID: record.MediaAssetID,
			CaptureType:  string(record.CaptureType),
			Caption:      record.Caption,
			Transcript:   record.Transcript,
			Sentiment:    record.Sentiment,
			Location:     record.Location,
			CapturedBy:   string(record.CapturedBy),
			CapturedAt:   record.CapturedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, api.CaptureListResponse{Captures: views})
}

func (s *apiServer) handleCaptureItem(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/captures/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "capture not found", "not_found")
		return
	}

	switch r.Method {
	case http.MethodDelete:
		if err := s.daemon.svc.Delete(r.Context(), id); err != nil {
			s.writeFault(w, err)
			return
		}
		s.writeJSON(w, http.StatusNoContent, nil)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
	}
}

// handleAsset serves the status poll and the explicit retry. Retry moves a
// failed asset back to processing and hands it to the pool again.
func (s *apiServer) handleAsset(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/assets/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		s.writeError(w, http.StatusNotFound, "asset not found", "not_found")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		record, err := s.daemon.assets.GetByID(r.Context(), id)
		if err != nil {
			s.writeFault(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.AssetStatusResponse{
			ID:               record.ID,
			Status:           string(record.Status),
			ProcessedAt:      record.ProcessedAt,
			ProcessingError:  record.ProcessingError,
			ThumbnailLocator: record.ThumbnailLocator,
		})
	case action == "retry" && r.Method == http.MethodPost:
		record, err := s.daemon.assets.Retry(r.Context(), id)
		if err != nil {
			s.writeFault(w, err)
			return
		}
		s.daemon.pool.Dispatch(record.ID, record.FileType)
		s.writeJSON(w, http.StatusOK, api.AssetStatusResponse{
			ID:     record.ID,
			Status: string(record.Status),
		})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
	}
}

// writeFault maps the error taxonomy onto HTTP statuses.
func (s *apiServer) writeFault(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, faults.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error(), "not_found")
	case errors.Is(err, faults.ErrNotFailed):
		s.writeError(w, http.StatusConflict, err.Error(), "not_failed")
	case errors.Is(err, faults.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error(), "validation")
	default:
		s.log().Error("request failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error", "")
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message, kind string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message, Kind: kind})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
