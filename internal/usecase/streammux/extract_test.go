package streammux

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finassist/internal/domain"
)

func newTestExtractor() *Extractor {
	return NewExtractor(slog.Default())
}

func chartCall(id, args string) domain.ToolCall {
	return domain.ToolCall{ID: id, Name: domain.ToolRenderChart, Arguments: json.RawMessage(args)}
}

func traceWith(calls ...domain.ToolCall) []domain.Message {
	return []domain.Message{{Role: domain.RoleAssistant, ToolCalls: calls}}
}

func TestExtractValidPieChart(t *testing.T) {
	trace := traceWith(chartCall("c1",
		`{"type":"pie","title":"Spending by Category","data":[{"name":"Food","value":500},{"name":"Transport","value":120}]}`))

	charts := newTestExtractor().Extract(trace)
	require.Len(t, charts, 1)
	assert.Equal(t, domain.ChartTypePie, charts[0].Type)
	assert.Equal(t, "Spending by Category", charts[0].Title)
	require.Len(t, charts[0].Data, 2)
	assert.Equal(t, "Food", charts[0].Data[0].Name)
	assert.Equal(t, 500.0, charts[0].Data[0].Value)
	assert.Equal(t, "Transport", charts[0].Data[1].Name)
	assert.Equal(t, 120.0, charts[0].Data[1].Value)
}

func TestExtractMissingTypeDefaultsToBar(t *testing.T) {
	trace := traceWith(chartCall("c1",
		`{"title":"Monthly","data":[{"name":"Jan","value":100}]}`))

	charts := newTestExtractor().Extract(trace)
	require.Len(t, charts, 1)
	assert.Equal(t, domain.ChartTypeBar, charts[0].Type)
}

func TestExtractMalformedTypeDefaultsToBar(t *testing.T) {
	trace := traceWith(chartCall("c1",
		`{"type":42,"data":[{"name":"Jan","value":100}]}`))

	charts := newTestExtractor().Extract(trace)
	require.Len(t, charts, 1)
	assert.Equal(t, domain.ChartTypeBar, charts[0].Type)
}

func TestExtractUnsupportedTypeSkipped(t *testing.T) {
	trace := traceWith(chartCall("c1",
		`{"type":"scatter","data":[{"name":"a","value":1}]}`))

	charts := newTestExtractor().Extract(trace)
	assert.Empty(t, charts)
}

func TestExtractMissingDataSkipped(t *testing.T) {
	trace := traceWith(chartCall("c1", `{"type":"pie","title":"No data"}`))

	charts := newTestExtractor().Extract(trace)
	assert.Empty(t, charts)
}

func TestExtractBadInvocationDoesNotAbortLaterOnes(t *testing.T) {
	trace := traceWith(
		chartCall("bad", `not json at all`),
		chartCall("good", `{"type":"bar","title":"OK","data":[{"name":"a","value":1}]}`),
	)

	charts := newTestExtractor().Extract(trace)
	require.Len(t, charts, 1)
	assert.Equal(t, "OK", charts[0].Title)
}

func TestExtractPreservesInvocationOrder(t *testing.T) {
	trace := []domain.Message{
		{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{
			chartCall("c1", `{"type":"pie","title":"first","data":[{"name":"a","value":1}]}`),
		}},
		{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{
			chartCall("c2", `{"type":"bar","title":"second","data":[{"name":"b","value":2}]}`),
		}},
	}

	charts := newTestExtractor().Extract(trace)
	require.Len(t, charts, 2)
	assert.Equal(t, "first", charts[0].Title)
	assert.Equal(t, "second", charts[1].Title)
}

func TestExtractIgnoresOtherTools(t *testing.T) {
	trace := traceWith(domain.ToolCall{
		ID:        "c1",
		Name:      "get_recent_expenses",
		Arguments: json.RawMessage(`{"limit":5}`),
	})

	charts := newTestExtractor().Extract(trace)
	assert.Empty(t, charts)
}

func TestExtractSkipsToolResultEchoes(t *testing.T) {
	// A tool result turn echoes the originating call ID without arguments.
	// Only the assistant invocation produces a chart.
	trace := []domain.Message{
		{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{
			chartCall("c1", `{"type":"pie","title":"Spending","data":[{"name":"Food","value":500}]}`),
		}},
		{Role: domain.RoleTool, Name: domain.ToolRenderChart, Content: "Chart visual generated.",
			ToolCalls: []domain.ToolCall{{ID: "c1", Name: domain.ToolRenderChart}}},
	}

	charts := newTestExtractor().Extract(trace)
	require.Len(t, charts, 1)
	assert.Equal(t, "Spending", charts[0].Title)
}

func TestExtractNilTrace(t *testing.T) {
	assert.Empty(t, newTestExtractor().Extract(nil))
}
