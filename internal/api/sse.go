package api

import (
	"fmt"
	"net/http"
)

// sseWriter adapts an http.ResponseWriter to the pipeline's event sink. Each
// unit on the wire is a `data: <payload>` line followed by a blank line.
type sseWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	f, _ := w.(http.Flusher)
	return &sseWriter{w: w, f: f}
}

// Open sends the streaming headers. After this the channel is committed to
// event-stream framing and status codes are no longer available.
func (s *sseWriter) Open() {
	s.w.Header().Set("Content-Type", "text/event-stream")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
	s.flush()
}

func (s *sseWriter) Send(data string) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *sseWriter) flush() {
	if s.f != nil {
		s.f.Flush()
	}
}
