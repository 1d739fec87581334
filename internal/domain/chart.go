package domain

// ToolRenderChart is the name of the visualization marker tool. Invocations
// of this tool are recovered from the message trace after a stream completes;
// the tool itself performs no rendering.
const ToolRenderChart = "render_chart"

// Chart types accepted by the frontend.
const (
	ChartTypePie = "pie"
	ChartTypeBar = "bar"
)

// ChartPoint is a single labeled value in a chart's data series.
type ChartPoint struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// ChartEvent is a validated chart payload derived from a render_chart
// invocation, ready to be forwarded to the consumer.
type ChartEvent struct {
	Type  string       `json:"type"`
	Title string       `json:"title"`
	Data  []ChartPoint `json:"data"`
}

// ValidChartType reports whether t is a chart type the consumer can render.
func ValidChartType(t string) bool {
	return t == ChartTypePie || t == ChartTypeBar
}
