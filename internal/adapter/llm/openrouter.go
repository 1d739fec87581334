package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"finassist/internal/domain"
	"finassist/internal/infra/config"
	"finassist/internal/infra/tracer"
)

// Compile-time interface assertions.
var (
	_ domain.LLMProvider          = (*Provider)(nil)
	_ domain.StreamingLLMProvider = (*Provider)(nil)
)

// attributionTransport injects the OpenRouter attribution headers
// (HTTP-Referer and X-Title) into every request.
type attributionTransport struct {
	base http.RoundTripper
}

func (t *attributionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("HTTP-Referer", "https://localhost")
	clone.Header.Set("X-Title", "Financial Assistant")
	return t.base.RoundTrip(clone)
}

// Provider talks to any OpenAI-compatible chat-completions API. The
// "openrouter" provider type additionally sends OpenRouter's attribution
// headers.
type Provider struct {
	name    string
	model   string
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewProvider creates a provider with configured timeouts and pooling.
func NewProvider(cfg config.Provider, logger *slog.Logger) *Provider {
	client := NewHTTPClient(cfg)
	if cfg.Type == "openrouter" {
		client.Transport = &attributionTransport{base: client.Transport}
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}

	return &Provider{
		name:    cfg.Name,
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  client,
		logger:  logger,
	}
}

// Name implements domain.LLMProvider.
func (p *Provider) Name() string { return p.name }

// Chat implements domain.LLMProvider.
func (p *Provider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.chat",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.model", req.Model),
		),
	)
	defer span.End()

	if req.Model == "" {
		req.Model = p.model
	}

	body, err := json.Marshal(toWireRequest(req))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := doJSONRequest(ctx, p.client, p.baseURL+"/chat/completions", body, p.headers())
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	var wire wireResponse
	if err := json.Unmarshal(respBody, &wire); err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	result := fromWireResponse(wire)
	span.SetAttributes(
		tracer.IntAttr("llm.prompt_tokens", result.Usage.PromptTokens),
		tracer.IntAttr("llm.completion_tokens", result.Usage.CompletionTokens),
	)
	tracer.SetOK(span)
	p.logger.Debug("llm chat completed",
		"provider", p.name,
		"model", result.Model,
		"tokens", result.Usage.TotalTokens,
	)

	return result, nil
}

// ChatStream implements domain.StreamingLLMProvider.
func (p *Provider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	if req.Model == "" {
		req.Model = p.model
	}
	req.Stream = true

	body, err := json.Marshal(toWireRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpResp, err := doStreamRequest(ctx, p.client, p.baseURL+"/chat/completions", body, p.headers())
	if err != nil {
		return nil, err
	}

	ch := parseSSEStream(ctx, httpResp.Body, func(data []byte) (*domain.StreamDelta, error) {
		var chunk wireStreamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			return nil, err
		}

		delta := &domain.StreamDelta{}
		if len(chunk.Choices) > 0 {
			c := chunk.Choices[0]
			delta.Content = c.Delta.Content
			for _, tc := range c.Delta.ToolCalls {
				delta.ToolCalls = append(delta.ToolCalls, domain.ToolCall{
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: json.RawMessage(tc.Function.Arguments),
				})
			}
			if c.FinishReason != nil && *c.FinishReason != "" {
				delta.Done = true
			}
		}
		if chunk.Usage != nil {
			delta.Usage = &domain.Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		return delta, nil
	})

	return ch, nil
}

func (p *Provider) headers() map[string]string {
	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}
	return headers
}

// --- chat-completions wire types ---

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	Name       string         `json:"name,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireTool struct {
	Type     string           `json:"type"`
	Function wireToolFunction `json:"function"`
}

type wireToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type wireToolCall struct {
	ID       string               `json:"id"`
	Type     string               `json:"type"`
	Function wireToolCallFunction `json:"function"`
}

type wireToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   wireUsage    `json:"usage"`
	Created int64        `json:"created"`
}

type wireChoice struct {
	Index        int         `json:"index"`
	Message      wireMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type wireStreamChunk struct {
	ID      string             `json:"id"`
	Choices []wireStreamChoice `json:"choices"`
	Usage   *wireUsage         `json:"usage,omitempty"`
}

type wireStreamChoice struct {
	Delta        wireStreamDelta `json:"delta"`
	FinishReason *string         `json:"finish_reason"`
}

type wireStreamDelta struct {
	Content   string         `json:"content,omitempty"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
}

func toWireRequest(req domain.ChatRequest) wireRequest {
	msgs := make([]wireMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msg := wireMessage{
			Role:    m.Role,
			Content: m.Content,
			Name:    m.Name,
		}

		// Tool result turns carry the originating call ID in ToolCalls[0].
		if m.Role == domain.RoleTool && len(m.ToolCalls) > 0 {
			msg.ToolCallID = m.ToolCalls[0].ID
		}

		// Assistant turns carry their tool invocations.
		if len(m.ToolCalls) > 0 && m.Role != domain.RoleTool {
			msg.ToolCalls = make([]wireToolCall, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				msg.ToolCalls[i] = wireToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: wireToolCallFunction{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				}
			}
		}

		msgs = append(msgs, msg)
	}

	out := wireRequest{
		Model:    req.Model,
		Messages: msgs,
		Stream:   req.Stream,
	}

	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		out.Temperature = &req.Temperature
	}

	if len(req.Tools) > 0 {
		out.Tools = make([]wireTool, len(req.Tools))
		for i, t := range req.Tools {
			out.Tools[i] = wireTool{
				Type: "function",
				Function: wireToolFunction{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			}
		}
	}

	return out
}

func fromWireResponse(resp wireResponse) *domain.ChatResponse {
	result := &domain.ChatResponse{
		ID:    resp.ID,
		Model: resp.Model,
		Usage: domain.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		CreatedAt: time.Unix(resp.Created, 0),
	}

	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		msg := domain.Message{
			Role:      choice.Message.Role,
			Content:   choice.Message.Content,
			Name:      choice.Message.Name,
			Timestamp: result.CreatedAt,
		}

		if len(choice.Message.ToolCalls) > 0 {
			msg.ToolCalls = make([]domain.ToolCall, len(choice.Message.ToolCalls))
			for i, tc := range choice.Message.ToolCalls {
				msg.ToolCalls[i] = domain.ToolCall{
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: json.RawMessage(tc.Function.Arguments),
				}
			}
		}

		result.Message = msg
	}

	return result
}
