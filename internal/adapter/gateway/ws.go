package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/oklog/ulid/v2"

	"finassist/internal/domain"
)

// FrameType identifies the kind of frame on the WebSocket connection.
type FrameType string

const (
	FrameTypeRequest  FrameType = "request"
	FrameTypeResponse FrameType = "response"
	FrameTypeEvent    FrameType = "event"
)

// Frame is the envelope exchanged with WebSocket clients. A chat request
// frame produces a series of event frames carrying outbound events and a
// closing response frame with the same correlation ID.
type Frame struct {
	Type    FrameType       `json:"type"`
	ID      uint64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// handleWS serves the WebSocket variant of the chat stream. Questions are
// processed one at a time per connection; each produces the same ordered
// event sequence as the SSE endpoint.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{
			"localhost",
			"localhost:*",
			"127.0.0.1",
			"127.0.0.1:*",
		},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer ws.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	s.logger.Info("websocket client connected")

	for {
		var frame Frame
		if err := wsjson.Read(ctx, ws, &frame); err != nil {
			return // connection closed
		}

		if frame.Type != FrameTypeRequest || frame.Method != "chat" {
			s.writeFrame(ctx, ws, Frame{
				Type:  FrameTypeResponse,
				ID:    frame.ID,
				Error: "unsupported frame",
			})
			continue
		}

		s.serveChatFrame(ctx, ws, frame)
	}
}

func (s *Server) serveChatFrame(ctx context.Context, ws *websocket.Conn, frame Frame) {
	var req ChatRequest
	if err := json.Unmarshal(frame.Payload, &req); err != nil {
		s.writeFrame(ctx, ws, Frame{
			Type:  FrameTypeResponse,
			ID:    frame.ID,
			Error: "invalid chat payload",
		})
		return
	}
	question, history, ok := req.split()
	if !ok {
		s.writeFrame(ctx, ws, Frame{
			Type:  FrameTypeResponse,
			ID:    frame.ID,
			Error: "invalid chat payload",
		})
		return
	}

	requestID := ulid.Make().String()
	reqCtx := domain.ContextWithRequestID(ctx, requestID)

	handle := s.agent.RunStream(reqCtx, question, history)
	events := s.mux.Run(reqCtx, handle)

	for event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		if !s.writeFrame(ctx, ws, Frame{Type: FrameTypeEvent, ID: frame.ID, Payload: payload}) {
			return
		}
	}

	s.writeFrame(ctx, ws, Frame{Type: FrameTypeResponse, ID: frame.ID})
}

func (s *Server) writeFrame(ctx context.Context, ws *websocket.Conn, frame Frame) bool {
	if err := wsjson.Write(ctx, ws, frame); err != nil {
		s.logger.Info("websocket write failed, dropping client", "error", err)
		return false
	}
	return true
}
