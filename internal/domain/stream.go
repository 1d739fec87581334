package domain

// StreamHandle is the agent adapter's view of one in-flight streamed run.
//
// Snapshots yields the agent's full answer-so-far at each observation point;
// under correct agent behavior every snapshot is a prefix-extension of the
// previous one. After the snapshots channel closes, Trace and Err become
// valid: Trace returns the full exchanged-message trace (possibly empty if
// the underlying runtime exposed none) and Err returns the terminal stream
// error, if any.
type StreamHandle interface {
	Snapshots() <-chan string
	Trace() []Message
	Err() error
}

// StreamDeltaPayload is the payload for EventStreamDelta events.
type StreamDeltaPayload struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done,omitempty"`
}

// StreamCompletedPayload is the payload for EventStreamCompleted events.
type StreamCompletedPayload struct {
	Content string `json:"content"`
	Usage   *Usage `json:"usage,omitempty"`
}

// StreamErrorPayload is the payload for EventStreamError events.
type StreamErrorPayload struct {
	Error string `json:"error"`
}
