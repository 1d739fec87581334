package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"finassist/internal/domain"
	"finassist/internal/infra/tracer"
)

// Execute is the standard tool execution pipeline: parse params -> start
// trace -> run handler -> format result.
//
// The agent runtime consumes tool output as a string under all
// circumstances, so handler errors never propagate: they become an error
// ToolResult whose content starts with "Error: " for the model to read.
//
// The handler receives the parsed params and an active trace span. It
// should return:
//   - (any Go value, nil): JSON-marshaled into a success ToolResult
//   - (string, nil): wrapped in a plain-text ToolResult
//   - (*domain.ToolResult, nil): returned as-is
//   - (nil, error): turned into an error ToolResult with logging
func Execute[P any](
	ctx context.Context,
	spanName string,
	logger *slog.Logger,
	rawParams json.RawMessage,
	handler func(ctx context.Context, span trace.Span, params P) (any, error),
) (*domain.ToolResult, error) {
	ctx, span := tracer.StartSpan(ctx, spanName,
		trace.WithAttributes(tracer.StringAttr("tool.name", spanName)),
	)
	defer span.End()

	var p P
	if len(rawParams) > 0 {
		if err := json.Unmarshal(rawParams, &p); err != nil {
			tracer.RecordError(span, err)
			return &domain.ToolResult{IsError: true, Content: fmt.Sprintf("Error: invalid params: %v", err)}, nil
		}
	}

	result, err := handler(ctx, span, p)
	if err != nil {
		tracer.RecordError(span, err)
		logger.Warn(spanName+" failed",
			"code", string(domain.ErrorCodeOf(err)),
			"error", err,
		)
		return &domain.ToolResult{IsError: true, Content: fmt.Sprintf("Error: %v", err)}, nil
	}

	return formatResult(span, result)
}

// formatResult converts the handler's return value into a ToolResult.
func formatResult(span trace.Span, result any) (*domain.ToolResult, error) {
	switch v := result.(type) {
	case *domain.ToolResult:
		if v.IsError {
			tracer.RecordError(span, fmt.Errorf("%s", v.Content))
		} else {
			tracer.SetOK(span)
		}
		return v, nil
	case string:
		tracer.SetOK(span)
		return &domain.ToolResult{Content: v}, nil
	default:
		res, err := JSONResult(result)
		if err != nil {
			tracer.RecordError(span, err)
			return ErrResult("failed to format response: %v", err)
		}
		tracer.SetOK(span)
		return res, nil
	}
}

// ErrResult creates an error ToolResult. Use for validation errors inside
// handlers that should reach the model without a warning log.
func ErrResult(format string, args ...any) (*domain.ToolResult, error) {
	return &domain.ToolResult{
		IsError: true,
		Content: "Error: " + fmt.Sprintf(format, args...),
	}, nil
}

// JSONResult marshals v as indented JSON into a success ToolResult.
func JSONResult(v any) (*domain.ToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &domain.ToolResult{Content: string(data)}, nil
}

// TextResult creates a plain text success ToolResult.
func TextResult(s string) *domain.ToolResult {
	return &domain.ToolResult{Content: s}
}
