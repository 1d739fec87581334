package llm

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"finassist/internal/domain"
)

var (
	sseDataPrefix = []byte("data: ")
	sseDoneToken  = []byte("[DONE]")
)

// parseSSEStream reads "data:" lines from body and converts each payload into
// a StreamDelta using the provider-specific parseLine function. The returned
// channel closes when the stream ends or ctx is cancelled.
//
// Completion is explicit: a stream that ends without the provider's
// completion signal is truncated, whether the transport reported an error or
// the connection simply dropped. Truncation is delivered as a final delta
// with Err set so consumers never mistake a partial answer for a finished
// one.
func parseSSEStream(ctx context.Context, body io.ReadCloser, parseLine func(data []byte) (*domain.StreamDelta, error)) <-chan domain.StreamDelta {
	ch := make(chan domain.StreamDelta, 16)

	emit := func(delta domain.StreamDelta) bool {
		select {
		case ch <- delta:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(ch)
		defer body.Close()

		scanner := bufio.NewScanner(body)
		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}

			data, ok := sseData(scanner.Bytes())
			if !ok {
				continue
			}

			if bytes.Equal(data, sseDoneToken) {
				emit(domain.StreamDelta{Done: true})
				return
			}

			delta, err := parseLine(data)
			if err != nil || delta == nil {
				// Unparseable payloads are skipped, not fatal.
				continue
			}
			if !emit(*delta) {
				return
			}
			if delta.Done {
				return
			}
		}

		// The loop only falls through when the body ended before a
		// completion signal.
		cause := scanner.Err()
		if cause == nil {
			cause = io.ErrUnexpectedEOF
		}
		emit(domain.StreamDelta{
			Err: fmt.Errorf("%w: stream interrupted: %v", domain.ErrProviderError, cause),
		})
	}()
	return ch
}

// sseData extracts the payload of a "data:" line. Blank lines, comments and
// other SSE fields yield ok == false.
func sseData(line []byte) ([]byte, bool) {
	if len(line) == 0 || line[0] == ':' {
		return nil, false
	}
	if !bytes.HasPrefix(line, sseDataPrefix) {
		return nil, false
	}
	return bytes.TrimPrefix(line, sseDataPrefix), true
}
