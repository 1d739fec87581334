package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/oklog/ulid/v2"

	"finassist/internal/domain"
)

// ChatRequest is the inbound payload for one question. The final user
// message is the question; everything before it is conversation history.
type ChatRequest struct {
	Messages []domain.Message `json:"messages"`
}

// split separates the request into question and history. Returns false
// when the request carries no answerable question.
func (r ChatRequest) split() (question string, history []domain.Message, ok bool) {
	if len(r.Messages) == 0 {
		return "", nil, false
	}
	last := r.Messages[len(r.Messages)-1]
	if last.Role != domain.RoleUser || last.Content == "" {
		return "", nil, false
	}
	return last.Content, r.Messages[:len(r.Messages)-1], true
}

// handleChat answers one question over an SSE stream: message frames while
// the agent speaks, chart frames after the trace is finalized, then a done
// frame. A stream failure truncates the sequence with exactly one error
// frame instead.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	question, history, ok := req.split()
	if !ok {
		http.Error(w, "request must end with a user message", http.StatusBadRequest)
		return
	}

	requestID := ulid.Make().String()
	ctx := domain.ContextWithRequestID(r.Context(), requestID)

	sse, err := newSSEWriter(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.logger.Info("chat request accepted",
		"request_id", requestID,
		"history_len", len(history),
	)

	handle := s.agent.RunStream(ctx, question, history)
	events := s.mux.Run(ctx, handle)

	errored := false
	for event := range events {
		if event.Kind == domain.OutboundError {
			errored = true
		}
		if err := sse.WriteEvent(event); err != nil {
			// Consumer is gone; ctx cancellation unwinds the pipeline.
			s.logger.Info("chat consumer disconnected", "request_id", requestID)
			return
		}
	}

	if !errored {
		if err := sse.WriteDone(); err != nil {
			s.logger.Info("chat consumer disconnected before done frame", "request_id", requestID)
		}
	}
}

// handleHealthz reports liveness plus data-store reachability.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
			s.logger.Warn("healthz store ping failed", "error", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  status,
		"service": "finassist",
	})
}
