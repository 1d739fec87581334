package usecase

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finassist/internal/domain"
)

func TestNormalizeTraceNil(t *testing.T) {
	assert.Empty(t, NormalizeTrace(nil))
}

func TestNormalizeTracePassthrough(t *testing.T) {
	trace := []domain.Message{{Role: domain.RoleUser, Content: "hi"}}
	assert.Equal(t, trace, NormalizeTrace(trace))
}

func TestNormalizeTraceMapShapeWithToolCalls(t *testing.T) {
	raw := []any{
		map[string]any{
			"role":    "assistant",
			"content": "rendering",
			"tool_calls": []any{
				map[string]any{
					"id":        "c1",
					"name":      "render_chart",
					"arguments": map[string]any{"type": "pie"},
				},
			},
		},
	}

	trace := NormalizeTrace(raw)
	require.Len(t, trace, 1)
	require.Len(t, trace[0].ToolCalls, 1)
	assert.Equal(t, "render_chart", trace[0].ToolCalls[0].Name)
	assert.JSONEq(t, `{"type":"pie"}`, string(trace[0].ToolCalls[0].Arguments))
}

func TestNormalizeTracePartsShape(t *testing.T) {
	raw := []any{
		map[string]any{
			"role": "assistant",
			"parts": []any{
				map[string]any{
					"tool_name": "render_chart",
					"args":      map[string]any{"type": "bar"},
				},
			},
		},
	}

	trace := NormalizeTrace(raw)
	require.Len(t, trace, 1)
	require.Len(t, trace[0].ToolCalls, 1)
	assert.Equal(t, "render_chart", trace[0].ToolCalls[0].Name)
	assert.JSONEq(t, `{"type":"bar"}`, string(trace[0].ToolCalls[0].Arguments))
}

func TestNormalizeTraceRawJSON(t *testing.T) {
	raw := json.RawMessage(`[
		{"role":"assistant","content":"done","tool_calls":[
			{"id":"c1","name":"render_chart","arguments":"{\"type\":\"pie\"}"}
		]}
	]`)

	trace := NormalizeTrace(raw)
	require.Len(t, trace, 1)
	assert.Equal(t, "done", trace[0].Content)
	require.Len(t, trace[0].ToolCalls, 1)
	assert.JSONEq(t, `{"type":"pie"}`, string(trace[0].ToolCalls[0].Arguments))
}

func TestNormalizeTraceUnrecognizedShape(t *testing.T) {
	assert.Empty(t, NormalizeTrace(42))
	assert.Empty(t, NormalizeTrace("not a trace"))
	assert.Empty(t, NormalizeTrace([]byte("{broken")))
}

func TestNormalizeTraceDropsNonMappingEntries(t *testing.T) {
	raw := []any{
		"stray string",
		map[string]any{"role": "user", "content": "hi"},
	}

	trace := NormalizeTrace(raw)
	require.Len(t, trace, 1)
	assert.Equal(t, "hi", trace[0].Content)
}

func TestNormalizeTraceToolCallWithoutNameDropped(t *testing.T) {
	raw := []any{
		map[string]any{
			"role": "assistant",
			"tool_calls": []any{
				map[string]any{"id": "c1"},
			},
		},
	}

	trace := NormalizeTrace(raw)
	require.Len(t, trace, 1)
	assert.Empty(t, trace[0].ToolCalls)
}
