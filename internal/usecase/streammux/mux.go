package streammux

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"finassist/internal/domain"
	"finassist/internal/infra/tracer"
	"finassist/internal/usecase/eventbus"
)

// outboundBuffer absorbs short bursts of deltas without blocking the
// stream reader on a slow consumer.
const outboundBuffer = 16

// Multiplexer turns one agent stream into a single ordered sequence of
// outbound events: text deltas while the stream runs, then any charts
// recovered from the finalized trace, then close. An unrecoverable stream
// failure is surfaced as exactly one error event before close.
//
// One Multiplexer serves many requests; all per-request state lives in Run.
type Multiplexer struct {
	extractor *Extractor
	logger    *slog.Logger
	bus       domain.EventBus
}

// New creates a Multiplexer.
func New(logger *slog.Logger, bus domain.EventBus) *Multiplexer {
	return &Multiplexer{
		extractor: NewExtractor(logger),
		logger:    logger,
		bus:       bus,
	}
}

// Run consumes handle and returns the request's outbound event channel.
// The channel closing without a preceding error event is the success
// signal; the transport layer translates the close into its own terminal
// frame. If ctx is cancelled the consumer is gone: Run stops reading
// snapshots, drops any pending events, and returns promptly.
func (m *Multiplexer) Run(ctx context.Context, handle domain.StreamHandle) <-chan domain.OutboundEvent {
	out := make(chan domain.OutboundEvent, outboundBuffer)

	go func() {
		defer close(out)

		ctx, span := tracer.StartSpan(ctx, "streammux.Run")
		defer span.End()

		previous := ""
		for {
			select {
			case <-ctx.Done():
				m.logger.Info("consumer disconnected, releasing stream",
					"request_id", domain.RequestIDFromContext(ctx),
				)
				return
			case snapshot, ok := <-handle.Snapshots():
				if !ok {
					m.drain(ctx, span, out, handle, previous)
					return
				}
				delta, reset := NextDelta(previous, snapshot)
				if reset {
					m.logger.Warn("non-monotonic snapshot, emitting full restart",
						"request_id", domain.RequestIDFromContext(ctx),
						"code", string(domain.ErrorCodeOf(domain.ErrProtocolViolation)),
						"previous_len", len(previous),
						"current_len", len(snapshot),
					)
				}
				previous = snapshot
				if delta == "" {
					continue
				}
				if !m.emit(ctx, out, domain.NewMessageEvent(delta)) {
					return
				}
				eventbus.Emit(ctx, m.bus, m.logger, domain.EventStreamDelta,
					domain.StreamDeltaPayload{Content: delta})
			}
		}
	}()

	return out
}

// drain runs after the snapshot channel closes. A terminal stream error
// produces a single error event and ends the request; otherwise charts
// recovered from the trace are forwarded in invocation order, strictly
// after all text.
func (m *Multiplexer) drain(ctx context.Context, span trace.Span, out chan<- domain.OutboundEvent, handle domain.StreamHandle, finalText string) {
	if err := handle.Err(); err != nil {
		m.logger.Error("agent stream failed",
			"request_id", domain.RequestIDFromContext(ctx),
			"code", string(domain.ErrorCodeOf(err)),
			"error", err,
		)
		tracer.RecordError(span, err)
		m.emit(ctx, out, domain.NewErrorEvent(err.Error()))
		eventbus.Emit(ctx, m.bus, m.logger, domain.EventStreamError,
			domain.StreamErrorPayload{Error: err.Error()})
		return
	}

	charts := m.extractor.Extract(handle.Trace())
	for _, chart := range charts {
		if !m.emit(ctx, out, domain.NewChartEvent(chart)) {
			return
		}
		eventbus.Emit(ctx, m.bus, m.logger, domain.EventChartExtracted, chart)
	}

	span.SetAttributes(
		tracer.IntAttr("stream.text_len", len(finalText)),
		tracer.IntAttr("stream.charts", len(charts)),
	)
	tracer.SetOK(span)
	eventbus.Emit(ctx, m.bus, m.logger, domain.EventStreamCompleted,
		domain.StreamCompletedPayload{Content: finalText})
}

// emit sends one event unless the consumer is gone. Returns false when the
// context was cancelled and the request should end.
func (m *Multiplexer) emit(ctx context.Context, out chan<- domain.OutboundEvent, event domain.OutboundEvent) bool {
	select {
	case out <- event:
		return true
	case <-ctx.Done():
		return false
	}
}
