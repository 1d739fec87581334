package streammux

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finassist/internal/domain"
)

// fakeHandle is a scripted StreamHandle for multiplexer tests.
type fakeHandle struct {
	snapshots chan string
	trace     []domain.Message
	err       error
}

func newFakeHandle(snapshots []string, trace []domain.Message, err error) *fakeHandle {
	ch := make(chan string, len(snapshots))
	for _, s := range snapshots {
		ch <- s
	}
	close(ch)
	return &fakeHandle{snapshots: ch, trace: trace, err: err}
}

func (h *fakeHandle) Snapshots() <-chan string { return h.snapshots }
func (h *fakeHandle) Trace() []domain.Message  { return h.trace }
func (h *fakeHandle) Err() error               { return h.err }

func newTestMux() *Multiplexer {
	return New(slog.Default(), nil)
}

func collect(t *testing.T, out <-chan domain.OutboundEvent) []domain.OutboundEvent {
	t.Helper()
	var events []domain.OutboundEvent
	for {
		select {
		case ev, ok := <-out:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for outbound channel to close")
		}
	}
}

func TestRunEmitsDeltasAndCloses(t *testing.T) {
	handle := newFakeHandle([]string{"He", "Hello", "Hello!"}, nil, nil)

	events := collect(t, newTestMux().Run(context.Background(), handle))

	require.Len(t, events, 3)
	var text string
	for _, ev := range events {
		assert.Equal(t, domain.OutboundMessage, ev.Kind)
		text += ev.Text
	}
	assert.Equal(t, "Hello!", text)
}

func TestRunSuppressesEmptyDeltas(t *testing.T) {
	handle := newFakeHandle([]string{"Hi", "Hi", "Hi there"}, nil, nil)

	events := collect(t, newTestMux().Run(context.Background(), handle))

	require.Len(t, events, 2)
	assert.Equal(t, "Hi", events[0].Text)
	assert.Equal(t, " there", events[1].Text)
}

func TestRunNonMonotonicRestart(t *testing.T) {
	handle := newFakeHandle([]string{"First draft", "Restarted"}, nil, nil)

	events := collect(t, newTestMux().Run(context.Background(), handle))

	require.Len(t, events, 2)
	assert.Equal(t, "First draft", events[0].Text)
	assert.Equal(t, "Restarted", events[1].Text)
}

func TestRunChartsFollowAllText(t *testing.T) {
	trace := []domain.Message{{
		Role: domain.RoleAssistant,
		ToolCalls: []domain.ToolCall{{
			ID:   "c1",
			Name: domain.ToolRenderChart,
			Arguments: json.RawMessage(
				`{"type":"pie","title":"Spending by Category","data":[{"name":"Food","value":500}]}`),
		}},
	}}
	handle := newFakeHandle([]string{"Here is", "Here is your chart."}, trace, nil)

	events := collect(t, newTestMux().Run(context.Background(), handle))

	require.Len(t, events, 3)
	assert.Equal(t, domain.OutboundMessage, events[0].Kind)
	assert.Equal(t, domain.OutboundMessage, events[1].Kind)
	assert.Equal(t, domain.OutboundChart, events[2].Kind)
	require.NotNil(t, events[2].Chart)
	assert.Equal(t, domain.ChartTypePie, events[2].Chart.Type)

	// Hard ordering invariant: no chart before the last message event.
	lastMessage, firstChart := -1, -1
	for i, ev := range events {
		switch ev.Kind {
		case domain.OutboundMessage:
			lastMessage = i
		case domain.OutboundChart:
			if firstChart == -1 {
				firstChart = i
			}
		}
	}
	assert.Greater(t, firstChart, lastMessage)
}

func TestRunStreamFailureEmitsSingleError(t *testing.T) {
	streamErr := domain.NewDomainError("Agent.RunStream", domain.ErrStreamFailure, "connection reset")
	handle := newFakeHandle([]string{"Partial answ"}, nil, streamErr)

	events := collect(t, newTestMux().Run(context.Background(), handle))

	require.Len(t, events, 2)
	assert.Equal(t, domain.OutboundMessage, events[0].Kind)
	assert.Equal(t, domain.OutboundError, events[1].Kind)
	assert.Contains(t, events[1].Text, "connection reset")
}

func TestRunErrorSuppressesCharts(t *testing.T) {
	trace := []domain.Message{{
		Role: domain.RoleAssistant,
		ToolCalls: []domain.ToolCall{{
			ID:        "c1",
			Name:      domain.ToolRenderChart,
			Arguments: json.RawMessage(`{"type":"bar","data":[{"name":"a","value":1}]}`),
		}},
	}}
	handle := newFakeHandle(nil, trace, domain.ErrStreamFailure)

	events := collect(t, newTestMux().Run(context.Background(), handle))

	require.Len(t, events, 1)
	assert.Equal(t, domain.OutboundError, events[0].Kind)
}

func TestRunCancellationStopsPromptly(t *testing.T) {
	// Open snapshot channel that never closes: the mux must exit on cancel.
	open := make(chan string)
	handle := &fakeHandle{snapshots: open}

	ctx, cancel := context.WithCancel(context.Background())
	out := newTestMux().Run(ctx, handle)

	open <- "first"
	ev := <-out
	assert.Equal(t, "first", ev.Text)

	cancel()

	select {
	case _, ok := <-out:
		assert.False(t, ok, "channel should close after cancellation, not emit")
	case <-time.After(2 * time.Second):
		t.Fatal("multiplexer did not release the stream after cancellation")
	}
}

func TestRunEmptyStream(t *testing.T) {
	handle := newFakeHandle(nil, nil, nil)
	events := collect(t, newTestMux().Run(context.Background(), handle))
	assert.Empty(t, events)
}
