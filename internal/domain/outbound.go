package domain

import "encoding/json"

// OutboundKind tags the variants of the core's output protocol.
type OutboundKind string

const (
	OutboundMessage OutboundKind = "message"
	OutboundChart   OutboundKind = "chart"
	OutboundError   OutboundKind = "error"
)

// OutboundEvent is the unit of the streaming response protocol. Exactly one
// payload field is set, selected by Kind: Text for message and error events,
// Chart for chart events. A request's event channel closing without a
// preceding error event is the success signal.
type OutboundEvent struct {
	Kind  OutboundKind
	Text  string
	Chart *ChartEvent
}

// NewMessageEvent wraps a text delta.
func NewMessageEvent(delta string) OutboundEvent {
	return OutboundEvent{Kind: OutboundMessage, Text: delta}
}

// NewChartEvent wraps a validated chart payload.
func NewChartEvent(chart ChartEvent) OutboundEvent {
	return OutboundEvent{Kind: OutboundChart, Chart: &chart}
}

// NewErrorEvent wraps a human-readable failure cause.
func NewErrorEvent(cause string) OutboundEvent {
	return OutboundEvent{Kind: OutboundError, Text: cause}
}

// MarshalJSON renders the event as a tagged union {"kind": ..., "payload": ...}.
func (e OutboundEvent) MarshalJSON() ([]byte, error) {
	var payload any
	if e.Kind == OutboundChart {
		payload = e.Chart
	} else {
		payload = e.Text
	}
	return json.Marshal(struct {
		Kind    OutboundKind `json:"kind"`
		Payload any          `json:"payload"`
	}{Kind: e.Kind, Payload: payload})
}
