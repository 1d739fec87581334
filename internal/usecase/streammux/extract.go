package streammux

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"finassist/internal/domain"
)

// Extractor recovers chart payloads from a finalized message trace. Tool
// payloads are best-effort output from a language model, so coercion is
// lenient: a bad invocation is skipped and logged, never fatal.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(logger *slog.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract scans trace for render_chart invocations and returns their
// validated chart payloads in invocation order. A nil or empty trace
// yields an empty result. Extract never fails as a whole; per-invocation
// problems are isolated.
func (e *Extractor) Extract(trace []domain.Message) []domain.ChartEvent {
	var charts []domain.ChartEvent
	for _, msg := range trace {
		// Tool result turns echo the originating call ID for the wire
		// encoding; only non-tool turns carry real invocations.
		if msg.Role == domain.RoleTool {
			continue
		}
		for _, call := range msg.ToolCalls {
			if call.Name != domain.ToolRenderChart {
				continue
			}
			chart, ok := e.coerce(call)
			if !ok {
				continue
			}
			charts = append(charts, chart)
		}
	}
	return charts
}

// coerce turns one invocation's arguments into a ChartEvent. Fields are
// decoded independently so one malformed field does not poison the rest.
func (e *Extractor) coerce(call domain.ToolCall) (domain.ChartEvent, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(call.Arguments, &fields); err != nil {
		err = fmt.Errorf("%w: arguments not an object: %v", domain.ErrMalformedTrace, err)
		e.logger.Warn("chart invocation arguments not an object, skipping",
			"tool_call_id", call.ID,
			"code", string(domain.ErrorCodeOf(err)),
			"error", err,
		)
		return domain.ChartEvent{}, false
	}

	chartType := domain.ChartTypeBar
	if raw, ok := fields["type"]; ok {
		var t string
		if err := json.Unmarshal(raw, &t); err == nil && t != "" {
			chartType = t
		}
	}
	if !domain.ValidChartType(chartType) {
		e.logger.Warn("chart invocation has unsupported type, skipping",
			"tool_call_id", call.ID,
			"type", chartType,
		)
		return domain.ChartEvent{}, false
	}

	raw, ok := fields["data"]
	if !ok {
		e.logger.Warn("chart invocation missing data, skipping",
			"tool_call_id", call.ID,
		)
		return domain.ChartEvent{}, false
	}
	var data []domain.ChartPoint
	if err := json.Unmarshal(raw, &data); err != nil {
		err = fmt.Errorf("%w: data not decodable: %v", domain.ErrMalformedTrace, err)
		e.logger.Warn("chart invocation data not decodable, skipping",
			"tool_call_id", call.ID,
			"code", string(domain.ErrorCodeOf(err)),
			"error", err,
		)
		return domain.ChartEvent{}, false
	}
	if len(data) == 0 {
		e.logger.Warn("chart invocation data empty, skipping",
			"tool_call_id", call.ID,
		)
		return domain.ChartEvent{}, false
	}

	var title string
	if raw, ok := fields["title"]; ok {
		// Best effort. A missing or malformed title still renders.
		_ = json.Unmarshal(raw, &title)
	}

	return domain.ChartEvent{Type: chartType, Title: title, Data: data}, true
}
