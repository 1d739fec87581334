package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrToolNotFound  = fmt.Errorf("tool not found")
	ErrProviderError = fmt.Errorf("provider error")

	// ErrDataSource marks a database or query failure inside a registry
	// tool. It is recovered locally by returning an error string to the
	// agent and never surfaces as a protocol-level failure.
	ErrDataSource = fmt.Errorf("data source failure")

	// ErrStreamFailure marks an agent stream that raised or terminated
	// abnormally mid-flight. Surfaced to the consumer as a single error
	// event, after which the request ends.
	ErrStreamFailure = fmt.Errorf("stream failure")

	// ErrMalformedTrace marks a message trace whose shape could not be
	// recognized or an invocation whose arguments could not be coerced.
	// Recovered per-invocation.
	ErrMalformedTrace = fmt.Errorf("malformed trace")

	// ErrProtocolViolation marks a non-monotonic snapshot sequence.
	// Recoverable: the differ resets and the text visibly restarts.
	ErrProtocolViolation = fmt.Errorf("snapshot protocol violation")

	// ErrMaxIterations marks an agent loop that hit its iteration cap
	// without producing a final answer.
	ErrMaxIterations = fmt.Errorf("max agent iterations reached")

	// Resilience errors mapped from LLM API responses.
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
	ErrContextOverflow = fmt.Errorf("context window exceeded")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Agent.RunStream")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category for monitoring.
type ErrorCode string

const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeInvalidInput      ErrorCode = "INVALID_INPUT"
	CodeToolNotFound      ErrorCode = "TOOL_NOT_FOUND"
	CodeProviderError     ErrorCode = "PROVIDER_ERROR"
	CodeDataSource        ErrorCode = "DATA_SOURCE"
	CodeStreamFailure     ErrorCode = "STREAM_FAILURE"
	CodeMalformedTrace    ErrorCode = "MALFORMED_TRACE"
	CodeProtocolViolation ErrorCode = "PROTOCOL_VIOLATION"
	CodeMaxIterations     ErrorCode = "MAX_ITERATIONS"
	CodeRateLimit         ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid       ErrorCode = "AUTH_INVALID"
	CodeContextOverflow   ErrorCode = "CONTEXT_OVERFLOW"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrInvalidInput:      CodeInvalidInput,
	ErrToolNotFound:      CodeToolNotFound,
	ErrProviderError:     CodeProviderError,
	ErrDataSource:        CodeDataSource,
	ErrStreamFailure:     CodeStreamFailure,
	ErrMalformedTrace:    CodeMalformedTrace,
	ErrProtocolViolation: CodeProtocolViolation,
	ErrMaxIterations:     CodeMaxIterations,
	ErrRateLimit:         CodeRateLimit,
	ErrAuthInvalid:       CodeAuthInvalid,
	ErrContextOverflow:   CodeContextOverflow,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and walks the error chain with errors.Is.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	if code, ok := errorCodeMap[err]; ok {
		return code
	}
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeUnknown
}

// IsRetryableError reports whether err is a transient error that may
// succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrContextOverflow)
}
