package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"comic2kindle/internal/config"
	"comic2kindle/internal/devices"
	"comic2kindle/internal/jobs"
	"comic2kindle/internal/logging"
	"comic2kindle/internal/services"
	"comic2kindle/internal/sessions"
	"comic2kindle/internal/workflow"
)

// maxUploadBytes caps a single upload request body.
const maxUploadBytes = 1 << 30

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions", srv.handleCreateSession)
	mux.HandleFunc("POST /api/sessions/{id}/files", srv.handleUpload)
	mux.HandleFunc("GET /api/sessions/{id}/files", srv.handleListFiles)
	mux.HandleFunc("DELETE /api/sessions/{id}", srv.handleRemoveSession)
	mux.HandleFunc("GET /api/devices", srv.handleDevices)
	mux.HandleFunc("GET /api/metadata/search", srv.handleMetadataSearch)
	mux.HandleFunc("POST /api/convert", srv.handleConvert)
	mux.HandleFunc("GET /api/convert", srv.handleListJobs)
	mux.HandleFunc("GET /api/convert/{job}/status", srv.handleJobStatus)
	mux.HandleFunc("GET /api/download/{session}/bundle", srv.handleBundle)
	mux.HandleFunc("GET /api/download/{session}/{file}", srv.handleDownload)
	mux.HandleFunc("GET /api/status", srv.handleStatus)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return errors.New("api bind address not configured")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
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

type jobResponse struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	Status      string     `json:"status"`
	Progress    float64    `json:"progress"`
	CurrentFile string     `json:"current_file,omitempty"`
	OutputFiles []string   `json:"output_files,omitempty"`
	Warnings    []string   `json:"warnings,omitempty"`
	Error       string     `json:"error,omitempty"`
	ErrorKind   string     `json:"error_kind,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// toJobResponse shapes a stored job for API consumers. Output paths are
// reduced to filenames usable with the download endpoints.
func toJobResponse(job *jobs.Job) jobResponse {
	outputs := make([]string, 0, len(job.OutputFiles))
	for _, path := range job.OutputFiles {
		outputs = append(outputs, filepath.Base(path))
	}
	return jobResponse{
		ID:          job.ID,
		SessionID:   job.SessionID,
		Status:      string(job.Status),
		Progress:    job.Progress,
		CurrentFile: job.CurrentFile,
		OutputFiles: outputs,
		Warnings:    job.Warnings,
		Error:       job.ErrorMessage,
		ErrorKind:   string(job.ErrorKind),
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
	}
}

func (s *apiServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := s.daemon.sessions.Create(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"session_id": sessionID})
}

func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if !s.daemon.sessions.Exists(sessionID) {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	uploads := r.MultipartForm.File["file"]
	if len(uploads) == 0 {
		s.writeError(w, http.StatusBadRequest, "no file parts in upload")
		return
	}

	saved := make([]*sessions.File, 0, len(uploads))
	for _, header := range uploads {
		part, err := header.Open()
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "read upload part")
			return
		}
		data, err := io.ReadAll(part)
		_ = part.Close()
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "read upload part")
			return
		}
		file, err := s.daemon.sessions.SaveFile(sessionID, header.Filename, data)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		saved = append(saved, file)
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"files": saved})
}

func (s *apiServer) handleListFiles(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if !s.daemon.sessions.Exists(sessionID) {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	files, err := s.daemon.sessions.ListFiles(sessionID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *apiServer) handleRemoveSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if !s.daemon.sessions.Exists(sessionID) {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	canceled := s.daemon.coordinator.Cancel(sessionID)
	if _, err := s.daemon.store.DeleteBySession(r.Context(), sessionID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	if err := s.daemon.sessions.Remove(sessionID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"canceled_jobs": canceled})
}

func (s *apiServer) handleDevices(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"devices": devices.All()})
}

func (s *apiServer) handleMetadataSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	results := s.daemon.catalog.Search(r.Context(), query, limit)
	s.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *apiServer) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req workflow.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	job, err := s.daemon.coordinator.Submit(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, toJobResponse(job))
}

func (s *apiServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var (
		list []*jobs.Job
		err  error
	)
	if sessionID := strings.TrimSpace(r.URL.Query().Get("session")); sessionID != "" {
		list, err = s.daemon.store.BySession(r.Context(), sessionID)
	} else {
		list, err = s.daemon.store.List(r.Context())
	}
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	shaped := make([]jobResponse, 0, len(list))
	for _, job := range list {
		shaped = append(shaped, toJobResponse(job))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": shaped})
}

func (s *apiServer) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.daemon.store.GetByID(r.Context(), r.PathValue("job"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")
	filename := r.PathValue("file")
	path, err := s.daemon.sessions.OutputFile(sessionID, filename)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}

func (s *apiServer) handleBundle(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")
	if !s.daemon.sessions.Exists(sessionID) {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	outputs, err := s.daemon.sessions.ListOutputs(sessionID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if len(outputs) == 0 {
		s.writeError(w, http.StatusNotFound, "session has no output artifacts")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sessionID+".zip"))
	if err := s.daemon.sessions.WriteBundle(sessionID, w); err != nil {
		// Headers may already be sent; log rather than rewrite the status.
		s.logger.Warn("bundle download failed",
			logging.String("session_id", sessionID),
			logging.Error(err))
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		s.writeError(w, http.StatusNotFound, services.Message(err))
	case errors.Is(err, services.ErrValidation):
		s.writeError(w, http.StatusBadRequest, services.Message(err))
	case errors.Is(err, services.ErrConfiguration):
		s.writeError(w, http.StatusServiceUnavailable, services.Message(err))
	default:
		s.writeError(w, http.StatusInternalServerError, services.Message(err))
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
