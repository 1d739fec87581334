package usecase

import (
	"context"
	"encoding/json"
	"sync"

	"finassist/internal/domain"
)

// streamHandle is the Agent's StreamHandle implementation. The run loop
// writes snapshots, then records the trace and terminal error before
// closing the channel, so both accessors are valid once the channel ends.
type streamHandle struct {
	snapshots chan string

	mu    sync.Mutex
	trace any
	err   error
}

func newStreamHandle() *streamHandle {
	return &streamHandle{snapshots: make(chan string, snapshotBuffer)}
}

func (h *streamHandle) Snapshots() <-chan string { return h.snapshots }

func (h *streamHandle) Trace() []domain.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return NormalizeTrace(h.trace)
}

func (h *streamHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// send pushes one snapshot unless the consumer is gone.
func (h *streamHandle) send(ctx context.Context, snapshot string) bool {
	select {
	case h.snapshots <- snapshot:
		return true
	case <-ctx.Done():
		return false
	}
}

func (h *streamHandle) finish(trace any) {
	h.mu.Lock()
	h.trace = trace
	h.mu.Unlock()
}

func (h *streamHandle) fail(trace any, err error) {
	h.mu.Lock()
	h.trace = trace
	h.err = err
	h.mu.Unlock()
}

func (h *streamHandle) close() {
	close(h.snapshots)
}

// NormalizeTrace converts whatever trace representation an agent runtime
// exposes into the canonical message slice. Recognized shapes:
//
//   - []domain.Message (passed through)
//   - raw JSON ([]byte or json.RawMessage) encoding a message array
//   - []any of mappings with role/content and tool invocations under a
//     "tool_calls" or "parts" key
//
// Anything unrecognized yields an empty trace; schema drift in the agent
// runtime must degrade to "no charts", never to a failed request.
func NormalizeTrace(raw any) []domain.Message {
	switch v := raw.(type) {
	case nil:
		return nil
	case []domain.Message:
		return v
	case json.RawMessage:
		return decodeTraceJSON(v)
	case []byte:
		return decodeTraceJSON(v)
	case []any:
		var trace []domain.Message
		for _, item := range v {
			if msg, ok := normalizeMessage(item); ok {
				trace = append(trace, msg)
			}
		}
		return trace
	default:
		return nil
	}
}

func decodeTraceJSON(data []byte) []domain.Message {
	var items []any
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}
	return NormalizeTrace(items)
}

// normalizeMessage coerces a single trace entry. Entries that are not
// mappings are dropped.
func normalizeMessage(item any) (domain.Message, bool) {
	m, ok := item.(map[string]any)
	if !ok {
		return domain.Message{}, false
	}

	msg := domain.Message{}
	if role, ok := m["role"].(string); ok {
		msg.Role = role
	}
	if content, ok := m["content"].(string); ok {
		msg.Content = content
	}

	// Some runtimes expose invocations as "tool_calls", others nest them
	// under "parts".
	calls, ok := m["tool_calls"].([]any)
	if !ok {
		calls, _ = m["parts"].([]any)
	}
	for _, c := range calls {
		if call, ok := normalizeToolCall(c); ok {
			msg.ToolCalls = append(msg.ToolCalls, call)
		}
	}

	return msg, true
}

func normalizeToolCall(item any) (domain.ToolCall, bool) {
	m, ok := item.(map[string]any)
	if !ok {
		return domain.ToolCall{}, false
	}

	call := domain.ToolCall{}
	if id, ok := m["id"].(string); ok {
		call.ID = id
	}
	name, ok := m["name"].(string)
	if !ok {
		name, ok = m["tool_name"].(string)
	}
	if !ok || name == "" {
		return domain.ToolCall{}, false
	}
	call.Name = name

	switch args := m["arguments"].(type) {
	case string:
		call.Arguments = json.RawMessage(args)
	case map[string]any:
		if data, err := json.Marshal(args); err == nil {
			call.Arguments = data
		}
	case nil:
		if args, ok := m["args"].(map[string]any); ok {
			if data, err := json.Marshal(args); err == nil {
				call.Arguments = data
			}
		}
	}

	return call, true
}
