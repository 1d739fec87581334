package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"finassist/internal/domain"
)

// sseWriter writes server-sent event frames. Each outbound event becomes
// one frame named by its kind; the terminal success signal is a "done"
// frame emitted when the event channel closes without an error.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEWriter prepares w for event streaming. Returns an error when the
// response writer cannot flush incrementally.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	return &sseWriter{w: w, flusher: flusher}, nil
}

// WriteEvent writes one outbound event as an SSE frame. Message and error
// payloads are JSON strings; chart payloads are JSON objects.
func (s *sseWriter) WriteEvent(event domain.OutboundEvent) error {
	var payload any
	if event.Kind == domain.OutboundChart {
		payload = event.Chart
	} else {
		payload = event.Text
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sse payload: %w", err)
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event.Kind, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteDone writes the terminal success frame.
func (s *sseWriter) WriteDone() error {
	if _, err := fmt.Fprint(s.w, "event: done\ndata: {}\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
