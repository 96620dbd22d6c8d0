package server

import (
	"errors"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// eventStream writes progress events as NDJSON, one self-contained JSON
// object per line, flushed per event so clients see progress live.
type eventStream struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	logger  *zap.Logger
}

// newEventStream commits the response to NDJSON streaming. It fails before
// writing anything when the writer cannot flush.
func newEventStream(w http.ResponseWriter, logger *zap.Logger) (*eventStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &eventStream{w: w, flusher: flusher, logger: logger.Named("stream")}, nil
}

// Emit writes one event line. Write failures mean the client is gone; the
// run itself stops separately through its context, so they are not fatal here.
func (s *eventStream) Emit(event schemas.Event) {
	line, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("Could not marshal event.",
			zap.String("type", string(event.Type)), zap.Error(err))
		return
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(line); err != nil {
		s.logger.Debug("Event write failed; client likely disconnected.", zap.Error(err))
		return
	}
	s.flusher.Flush()
}
