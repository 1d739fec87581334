package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"finassist/internal/domain"
	"finassist/internal/infra/tracer"
)

// chartAck is the fixed acknowledgment the model receives for a chart
// invocation.
const chartAck = "Chart visual generated."

// RenderChartTool is the visualization marker. It performs no rendering;
// its invocation is recovered from the message trace after the stream
// completes and turned into a chart event there.
type RenderChartTool struct {
	logger *slog.Logger
}

// NewRenderChartTool creates the marker tool.
func NewRenderChartTool(logger *slog.Logger) *RenderChartTool {
	return &RenderChartTool{logger: logger}
}

func (t *RenderChartTool) Name() string { return domain.ToolRenderChart }

func (t *RenderChartTool) Description() string {
	return "Renders a chart for the user. type is 'pie' or 'bar'; data is an array of {name, value} points."
}

func (t *RenderChartTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"type": {
					"type": "string",
					"enum": ["pie", "bar"],
					"description": "Chart type"
				},
				"title": {
					"type": "string",
					"description": "Descriptive chart title"
				},
				"data": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"name":  {"type": "string"},
							"value": {"type": "number"}
						},
						"required": ["name", "value"]
					},
					"description": "Chart data points"
				}
			},
			"required": ["data"]
		}`),
	}
}

type renderChartParams struct {
	Type  string              `json:"type"`
	Title string              `json:"title"`
	Data  []domain.ChartPoint `json:"data"`
}

func (t *RenderChartTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.render_chart", t.logger, params,
		func(_ context.Context, span trace.Span, p renderChartParams) (any, error) {
			span.SetAttributes(
				tracer.StringAttr("chart.type", p.Type),
				tracer.IntAttr("chart.points", len(p.Data)),
			)
			return TextResult(chartAck), nil
		},
	)
}
