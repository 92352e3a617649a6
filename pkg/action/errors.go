package action

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrorKind classifies why an invocation could not produce a tool result.
type ErrorKind string

const (
	ConfigMissing         ErrorKind = "ConfigMissing"
	ToolNotConfigured     ErrorKind = "ToolNotConfigured"
	ProcessSpawnFailure   ErrorKind = "ProcessSpawnFailure"
	ProcessTimeout        ErrorKind = "ProcessTimeout"
	ProcessDiedMidRequest ErrorKind = "ProcessDiedMidRequest"
	ProcessExitFailure    ErrorKind = "ProcessExitFailure"
	ParseFailure          ErrorKind = "ParseFailure"
	UpstreamEngineFailure ErrorKind = "UpstreamEngineFailure"
)

// MaxDiagnosticLen caps subprocess diagnostics carried in error responses.
const MaxDiagnosticLen = 200

const errorPrefix = "Error: "

// InvokeError is the typed failure returned by every execution strategy.
type InvokeError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *InvokeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *InvokeError) Unwrap() error {
	return e.Err
}

// NewError builds an InvokeError. cause may be nil.
func NewError(kind ErrorKind, cause error, format string, args ...any) *InvokeError {
	return &InvokeError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf extracts the ErrorKind from err, defaulting to UpstreamEngineFailure
// for errors that did not come from an execution strategy.
func KindOf(err error) ErrorKind {
	var ie *InvokeError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return UpstreamEngineFailure
}

// Truncate shortens s to at most n runes, appending an ellipsis when cut.
// The cut never splits a UTF-8 sequence.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i, count := 0, 0
	for i = range s {
		if count == n {
			break
		}
		count++
	}
	return s[:i] + "..."
}

// ErrorResponse builds the standardized failure response: a Wait action whose
// thought carries the error text.
func ErrorResponse(message string) Response {
	r := Default()
	r.Thought = errorPrefix + message
	return r
}

// FromError converts any error into an error response.
func FromError(err error) Response {
	var ie *InvokeError
	if errors.As(err, &ie) {
		detail := ie.Message
		if ie.Err != nil {
			detail += " (" + ie.Err.Error() + ")"
		}
		return ErrorResponse(fmt.Sprintf("%s: %s", ie.Kind, Truncate(detail, MaxDiagnosticLen)))
	}
	return ErrorResponse(Truncate(err.Error(), MaxDiagnosticLen))
}
