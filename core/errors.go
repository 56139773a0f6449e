package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind is the closed set of error classifications every raw provider
// or transport failure is mapped onto.
type ErrorKind string

const (
	KindMalformedToolCall ErrorKind = "malformed_tool_call"
	KindIncompleteJSON    ErrorKind = "incomplete_json"
	KindNetwork           ErrorKind = "network"
	KindAuth              ErrorKind = "auth"
	KindRateLimit         ErrorKind = "rate_limit"
	KindCancelled         ErrorKind = "cancelled"
	KindTimeout           ErrorKind = "timeout"
	KindUnsupported       ErrorKind = "unsupported"
	KindUnknown           ErrorKind = "unknown"
)

// recoverable reports whether the retry wrapper should retry this kind.
// Auth, Unsupported and Cancelled are not recoverable; a cancelled stream
// still ends with a Cancelled error on its End event, but is never retried.
func (k ErrorKind) recoverable() bool {
	switch k {
	case KindMalformedToolCall, KindIncompleteJSON, KindNetwork, KindRateLimit, KindTimeout, KindUnknown:
		return true
	default:
		return false
	}
}

// ErrInvalidMessage is returned by Message.Validate / ValidateHistory.
var ErrInvalidMessage = errors.New("invalid message")

// ErrInvalidTool is returned by the tool schema converter.
var ErrInvalidTool = errors.New("invalid tool descriptor")

// ClassifiedError wraps an underlying provider/transport error with its
// ErrorKind classification, a generated error code, and optional structured
// context. The original error is retained for diagnostics but is not meant
// to be surfaced verbatim to end users.
type ClassifiedError struct {
	Kind      ErrorKind
	Code      string
	Message   string
	Timestamp time.Time
	Context   map[string]interface{}
	Err       error
}

func (e *ClassifiedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Recoverable reports whether the retry wrapper should retry this error.
func (e *ClassifiedError) Recoverable() bool { return e.Kind.recoverable() }

// errorCode maps an ErrorKind to the short programmatic code used in
// ClassifiedError.Code.
func errorCode(kind ErrorKind) string {
	switch kind {
	case KindMalformedToolCall:
		return "MALFORMED_TOOL_CALL"
	case KindIncompleteJSON:
		return "INCOMPLETE_JSON"
	case KindNetwork:
		return "NETWORK_ERROR"
	case KindAuth:
		return "AUTH_ERROR"
	case KindRateLimit:
		return "RATE_LIMIT_EXCEEDED"
	case KindCancelled:
		return "CANCELLED"
	case KindTimeout:
		return "REQUEST_TIMEOUT"
	case KindUnsupported:
		return "UNSUPPORTED_OPERATION"
	default:
		return "UNKNOWN_ERROR"
	}
}

// displayMessage gives each kind its user-facing description.
func displayMessage(kind ErrorKind) string {
	switch kind {
	case KindMalformedToolCall:
		return "the provider signalled a malformed function call"
	case KindIncompleteJSON:
		return "tool call arguments never parsed as valid JSON"
	case KindNetwork:
		return "a transport-level connection error occurred"
	case KindAuth:
		return "authentication with the provider failed"
	case KindRateLimit:
		return "the provider's rate limit or quota was exceeded"
	case KindCancelled:
		return "the request was cancelled"
	case KindTimeout:
		return "the request timed out"
	case KindUnsupported:
		return "this operation is not implemented by the adapter"
	default:
		return "an unclassified error occurred"
	}
}

// Classify maps a raw provider/transport error onto the closed ErrorKind
// set. Classification inspects the error's message (and, for errors that
// implement StatusCoder, its HTTP status code) rather than parsing each
// provider SDK's bespoke error type, so the same table works across every
// adapter.
func Classify(err error, ctx map[string]interface{}) *ClassifiedError {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return newClassified(KindCancelled, err, ctx)
	}

	if sc, ok := err.(StatusCoder); ok {
		if kind, ok := classifyStatus(sc.StatusCode()); ok {
			return newClassified(kind, err, ctx)
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "context canceled", "context deadline exceeded and cancelled"):
		return newClassified(KindCancelled, err, ctx)
	case containsAny(msg, "deadline exceeded", "timeout", "timed out"):
		return newClassified(KindTimeout, err, ctx)
	case containsAny(msg, "malformed_function_call", "malformed function call", "malformed tool call"):
		return newClassified(KindMalformedToolCall, err, ctx)
	case containsAny(msg, "401", "403", "api key", "authentication", "unauthorized", "permission denied", "invalid_api_key"):
		return newClassified(KindAuth, err, ctx)
	case containsAny(msg, "429", "rate limit", "rate_limit", "quota", "too many requests"):
		return newClassified(KindRateLimit, err, ctx)
	case containsAny(msg, "connection refused", "connection reset", "no such host", "network", "eof", "broken pipe"):
		return newClassified(KindNetwork, err, ctx)
	case containsAny(msg, "not implemented", "unsupported"):
		return newClassified(KindUnsupported, err, ctx)
	default:
		return newClassified(KindUnknown, err, ctx)
	}
}

// StatusCoder is implemented by errors that expose an HTTP status code
// through a StatusCode method. Only the error value itself is checked, not
// the errors it wraps; provider errors without such a method are classified
// by message (the Gemini adapter writes the status code into its error
// message for that reason).
type StatusCoder interface {
	StatusCode() int
}

func classifyStatus(code int) (ErrorKind, bool) {
	switch {
	case code == 401 || code == 403:
		return KindAuth, true
	case code == 429:
		return KindRateLimit, true
	case code == 408 || code == 504:
		return KindTimeout, true
	case code >= 500:
		return KindNetwork, true
	default:
		return KindUnknown, false
	}
}

func newClassified(kind ErrorKind, err error, ctx map[string]interface{}) *ClassifiedError {
	return &ClassifiedError{
		Kind:      kind,
		Code:      errorCode(kind),
		Message:   displayMessage(kind),
		Timestamp: time.Now().UTC(),
		Context:   ctx,
		Err:       err,
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
