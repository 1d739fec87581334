package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"finassist/internal/domain"
	"finassist/internal/infra/tracer"
	"finassist/internal/usecase/eventbus"
)

// Recovery loop constants.
const (
	maxLLMRetries  = 3
	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 10 * time.Second

	snapshotBuffer = 16
)

// AgentDeps holds injected dependencies for the agent.
type AgentDeps struct {
	LLM           domain.LLMProvider
	Tools         domain.ToolExecutor
	Logger        *slog.Logger
	Bus           domain.EventBus // optional, nil = no events
	SystemPrompt  string
	Model         string
	MaxIterations int
	Timeout       time.Duration // upper bound per run, 0 = unbounded
}

// Agent orchestrates the ask-think-act loop over the financial tools.
type Agent struct {
	deps AgentDeps
}

// NewAgent creates an agent with the given dependencies.
func NewAgent(deps AgentDeps) *Agent {
	if deps.MaxIterations <= 0 {
		deps.MaxIterations = 10
	}
	return &Agent{deps: deps}
}

// Run answers a question synchronously and returns the final answer text
// plus the full exchanged-message trace.
func (a *Agent) Run(ctx context.Context, question string, history []domain.Message) (string, []domain.Message, error) {
	handle := a.RunStream(ctx, question, history)

	// The last snapshot is the complete answer.
	var answer string
	for s := range handle.Snapshots() {
		answer = s
	}
	if err := handle.Err(); err != nil {
		return "", nil, err
	}
	return answer, handle.Trace(), nil
}

// RunStream answers a question with incremental output. The returned handle
// yields the full answer-so-far at each observation point; after its
// snapshot channel closes, the message trace and terminal error are
// available on the handle.
func (a *Agent) RunStream(ctx context.Context, question string, history []domain.Message) domain.StreamHandle {
	h := newStreamHandle()
	go func() {
		runCtx := ctx
		cancel := context.CancelFunc(func() {})
		if a.deps.Timeout > 0 {
			// Bounds the whole run. The transport's own context stays
			// untouched, so expiry surfaces as a stream error rather
			// than a silent disconnect.
			runCtx, cancel = context.WithTimeout(ctx, a.deps.Timeout)
		}
		defer cancel()

		runCtx, span := tracer.StartSpan(runCtx, "agent.run_stream")
		defer span.End()
		a.runLoop(runCtx, span, question, history, h)
	}()
	return h
}

// runLoop is the shared agent loop. It closes h.snapshots when the run
// terminates, success or not, with trace and error recorded on h first.
func (a *Agent) runLoop(ctx context.Context, span trace.Span, question string, history []domain.Message, h *streamHandle) {
	defer h.close()

	a.publish(ctx, domain.EventMessageReceived, map[string]int{"history_len": len(history)})
	a.publish(ctx, domain.EventStreamStarted, nil)

	messages := a.buildMessages(question, history)

	// The full answer so far, grown across iterations so every snapshot
	// extends the previous one.
	var answer strings.Builder

	for i := 0; i < a.deps.MaxIterations; i++ {
		if ctx.Err() != nil {
			h.fail(messages, domain.WrapOp("Agent.RunStream", ctx.Err()))
			return
		}

		span.AddEvent("agent.iteration", trace.WithAttributes(tracer.IntAttr("iteration", i)))

		req := domain.ChatRequest{
			Model:    a.deps.Model,
			Messages: messages,
			Tools:    a.deps.Tools.Schemas(),
			Stream:   true,
		}

		a.publish(ctx, domain.EventLLMCallStarted, nil)
		msg, usage, err := a.callLLM(ctx, req, &answer, h)
		if err != nil {
			a.publish(ctx, domain.EventAgentError, map[string]string{"error": err.Error()})
			tracer.RecordError(span, err)
			h.fail(messages, domain.NewDomainError("Agent.RunStream", domain.ErrStreamFailure, err.Error()))
			return
		}
		a.publish(ctx, domain.EventLLMCallCompleted, nil)

		messages = append(messages, msg)

		a.deps.Logger.Debug("llm response",
			"iteration", i,
			"tool_calls", len(msg.ToolCalls),
			"tokens", usage.TotalTokens,
		)

		// No tool calls = final response.
		if len(msg.ToolCalls) == 0 {
			tracer.SetOK(span)
			h.finish(messages)
			return
		}

		// Execute tool calls in parallel. Results land in an indexed
		// slice so the transcript preserves the original call order.
		toolMsgs := make([]domain.Message, len(msg.ToolCalls))
		var wg sync.WaitGroup
		for idx, call := range msg.ToolCalls {
			wg.Add(1)
			go func(idx int, c domain.ToolCall) {
				defer wg.Done()
				toolMsgs[idx] = a.executeTool(ctx, c)
			}(idx, call)
		}
		wg.Wait()
		messages = append(messages, toolMsgs...)
	}

	tracer.RecordError(span, domain.ErrMaxIterations)
	h.fail(messages, domain.WrapOp("Agent.RunStream", domain.ErrMaxIterations))
}

// buildMessages assembles the prompt transcript: system persona, prior
// conversation, then the new question.
func (a *Agent) buildMessages(question string, history []domain.Message) []domain.Message {
	messages := make([]domain.Message, 0, len(history)+2)
	if a.deps.SystemPrompt != "" {
		messages = append(messages, domain.Message{
			Role:    domain.RoleSystem,
			Content: a.deps.SystemPrompt,
		})
	}
	messages = append(messages, history...)
	messages = append(messages, domain.Message{
		Role:      domain.RoleUser,
		Content:   question,
		Timestamp: time.Now(),
	})
	return messages
}

// callLLM performs one model call with retry on transient errors. In
// streaming mode content deltas are appended to answer and the grown text
// is pushed to h as a snapshot; tool-call fragments are accumulated into
// the returned assistant message.
func (a *Agent) callLLM(ctx context.Context, req domain.ChatRequest, answer *strings.Builder, h *streamHandle) (domain.Message, domain.Usage, error) {
	sp, canStream := a.deps.LLM.(domain.StreamingLLMProvider)

	var lastErr error
	for attempt := 0; attempt < maxLLMRetries; attempt++ {
		var msg domain.Message
		var usage domain.Usage
		var callErr error

		if canStream {
			llmCtx, llmSpan := tracer.StartSpan(ctx, "agent.llm_stream")
			deltaCh, err := sp.ChatStream(llmCtx, req)
			llmSpan.End()

			if err != nil {
				callErr = err
			} else {
				acc := newStreamAccumulator()
				for delta := range deltaCh {
					if delta.Err != nil {
						// Truncated stream. Any partial text already
						// reached the consumer as snapshots; the call
						// itself failed.
						callErr = delta.Err
						break
					}
					acc.addDelta(delta)
					if delta.Content != "" {
						answer.WriteString(delta.Content)
						if !h.send(ctx, answer.String()) {
							// Consumer gone; stop reading the provider.
							return domain.Message{}, domain.Usage{}, ctx.Err()
						}
					}
				}
				if callErr == nil {
					msg, usage = acc.build()
				}
			}
		} else {
			llmCtx, llmSpan := tracer.StartSpan(ctx, "agent.llm_call")
			resp, err := a.deps.LLM.Chat(llmCtx, req)
			llmSpan.End()

			if err != nil {
				callErr = err
			} else {
				msg = resp.Message
				usage = resp.Usage
				if msg.Content != "" {
					answer.WriteString(msg.Content)
					if !h.send(ctx, answer.String()) {
						return domain.Message{}, domain.Usage{}, ctx.Err()
					}
				}
			}
		}

		if callErr == nil {
			return msg, usage, nil
		}
		lastErr = callErr

		if !domain.IsRetryableError(callErr) || attempt == maxLLMRetries-1 {
			return domain.Message{}, domain.Usage{}, lastErr
		}

		delay := retryBackoff(attempt)
		a.deps.Logger.Info("retrying LLM call after error",
			"attempt", attempt+1, "delay", delay, "error", callErr)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return domain.Message{}, domain.Usage{}, ctx.Err()
		}
	}

	return domain.Message{}, domain.Usage{}, lastErr
}

// executeTool runs a single tool call and returns the result as a Message.
// Failures become error text in the transcript; the model is expected to
// read the string and adjust, so nothing propagates past the tool boundary.
func (a *Agent) executeTool(ctx context.Context, call domain.ToolCall) domain.Message {
	ctx, span := tracer.StartSpan(ctx, "agent.execute_tool",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	toolMsg := func(content string) domain.Message {
		return domain.Message{
			Role:    domain.RoleTool,
			Name:    call.Name,
			Content: content,
			// The wire encoding reads the originating call ID from
			// ToolCalls[0]; the echo carries nothing else so the turn
			// never looks like a fresh invocation.
			ToolCalls: []domain.ToolCall{{ID: call.ID}},
			Timestamp: time.Now(),
		}
	}

	tool, err := a.deps.Tools.Get(call.Name)
	if err != nil {
		tracer.RecordError(span, err)
		return toolMsg(fmt.Sprintf("Error: %s", err))
	}

	a.publish(ctx, domain.EventToolCallStarted, map[string]string{"tool": call.Name})
	result, err := tool.Execute(ctx, call.Arguments)
	a.publish(ctx, domain.EventToolCallCompleted, map[string]string{
		"tool":    call.Name,
		"success": fmt.Sprintf("%v", err == nil),
	})

	if err != nil {
		tracer.RecordError(span, err)
		return toolMsg(fmt.Sprintf("Error: %s", err))
	}

	tracer.SetOK(span)
	return toolMsg(result.Content)
}

// retryBackoff computes exponential backoff with jitter.
func retryBackoff(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<uint(attempt))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	// Add 0-25% jitter.
	jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
	return delay + jitter
}

func (a *Agent) publish(ctx context.Context, eventType domain.EventType, payload any) {
	eventbus.Emit(ctx, a.deps.Bus, a.deps.Logger, eventType, payload)
}

// maxToolCallsPerDelta bounds the slots the accumulator will allocate.
// Indices beyond it are dropped so a malformed stream cannot exhaust memory.
const maxToolCallsPerDelta = 50

// streamAccumulator collects incremental deltas into a complete message.
type streamAccumulator struct {
	content   strings.Builder
	toolCalls []domain.ToolCall // accumulated by index
	usage     domain.Usage
}

func newStreamAccumulator() *streamAccumulator {
	return &streamAccumulator{}
}

// addDelta merges a single streaming delta into the accumulator.
// Tool calls are tracked by index: the first delta for a slot provides ID
// and Name, later deltas append to Arguments.
func (acc *streamAccumulator) addDelta(delta domain.StreamDelta) {
	acc.content.WriteString(delta.Content)

	for idx, tc := range delta.ToolCalls {
		if idx >= maxToolCallsPerDelta {
			break
		}

		for len(acc.toolCalls) <= idx {
			acc.toolCalls = append(acc.toolCalls, domain.ToolCall{})
		}

		existing := &acc.toolCalls[idx]
		if tc.ID != "" {
			existing.ID = tc.ID
		}
		if tc.Name != "" {
			existing.Name = tc.Name
		}
		if len(tc.Arguments) > 0 {
			existing.Arguments = append(existing.Arguments, tc.Arguments...)
		}
	}

	if delta.Usage != nil {
		acc.usage = *delta.Usage
	}
}

// build returns the accumulated message and usage.
func (acc *streamAccumulator) build() (domain.Message, domain.Usage) {
	msg := domain.Message{
		Role:      domain.RoleAssistant,
		Content:   acc.content.String(),
		ToolCalls: acc.toolCalls,
		Timestamp: time.Now(),
	}
	return msg, acc.usage
}
