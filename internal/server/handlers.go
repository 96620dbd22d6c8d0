package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/agent"
	"github.com/xkilldash9x/formpilot/internal/dataset"
)

// handleHealth confirms the server is responsive.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleBatch accepts a multipart upload and streams the whole batch run as
// NDJSON. The response stays open until the last row finishes or the client
// disconnects, which cancels the run through the request context.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.Server.MaxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart form: %v", err))
		return
	}

	url := r.FormValue("url")
	if url == "" {
		s.respondError(w, http.StatusBadRequest, "form field 'url' is required")
		return
	}
	apiKey := r.FormValue("api_key")
	if apiKey == "" {
		s.respondError(w, http.StatusBadRequest, "form field 'api_key' is required")
		return
	}
	sessionID := r.FormValue("session_id")
	if sessionID == "" {
		s.respondError(w, http.StatusBadRequest, "form field 'session_id' is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "form field 'file' is required")
		return
	}
	defer file.Close()

	ds, err := dataset.Parse(file, header.Filename)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("could not parse %s: %v", header.Filename, err))
		return
	}

	decider, err := s.decider(ctx, apiKey)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Runs past the concurrency cap wait here for a slot; the only way out
	// early is the client giving up.
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer s.sem.Release(1)

	stream, err := newEventStream(w, s.logger)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("Batch run accepted.",
		zap.String("session_id", sessionID),
		zap.String("url", url),
		zap.String("filename", ds.Filename),
		zap.Int("rows", len(ds.Rows)),
	)

	runner := s.newRunner(decider, stream)
	agent.NewBatch(s.pages, runner, s.store, s.cfg.Agent, stream, s.logger).Run(ctx, url, sessionID, ds)
}

// handleDownload renders a session's result table as a CSV attachment.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	table, ok := s.store.Snapshot(sessionID)
	if !ok {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("unknown session: %s", sessionID))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dataset.DownloadFilename(table)))
	if err := dataset.WriteCSV(w, table); err != nil {
		// Headers are gone; all that is left is logging the broken download.
		s.logger.Error("Result download failed mid-write.",
			zap.String("session_id", sessionID), zap.Error(err))
	}
}

// respondJSON sends a JSON response body with the given status.
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// respondError sends a standardized JSON error response.
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, map[string]string{"error": message})
}
