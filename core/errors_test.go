package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusError struct {
	code int
}

func (e *statusError) Error() string   { return fmt.Sprintf("http status %d", e.code) }
func (e *statusError) StatusCode() int { return e.code }

func TestClassifyByMessage(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		kind        ErrorKind
		recoverable bool
	}{
		{"rate limit", errors.New("429: rate limit exceeded"), KindRateLimit, true},
		{"quota", errors.New("quota exhausted for project"), KindRateLimit, true},
		{"auth", errors.New("invalid API key provided"), KindAuth, false},
		{"forbidden", errors.New("403 permission denied"), KindAuth, false},
		{"timeout", errors.New("request timed out"), KindTimeout, true},
		{"deadline", errors.New("context deadline exceeded"), KindTimeout, true},
		{"network", errors.New("dial tcp: connection refused"), KindNetwork, true},
		{"eof", errors.New("unexpected EOF"), KindNetwork, true},
		{"malformed", errors.New("MALFORMED_FUNCTION_CALL"), KindMalformedToolCall, true},
		{"unsupported", errors.New("operation not implemented"), KindUnsupported, false},
		{"unknown", errors.New("something odd happened"), KindUnknown, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := Classify(tt.err, nil)
			require.NotNil(t, classified)
			assert.Equal(t, tt.kind, classified.Kind)
			assert.Equal(t, tt.recoverable, classified.Recoverable())
			assert.NotEmpty(t, classified.Code)
			assert.False(t, classified.Timestamp.IsZero())
		})
	}
}

func TestClassifyContextCanceled(t *testing.T) {
	classified := Classify(context.Canceled, nil)
	require.NotNil(t, classified)
	assert.Equal(t, KindCancelled, classified.Kind)
	assert.False(t, classified.Recoverable())
}

func TestClassifyByStatusCode(t *testing.T) {
	tests := []struct {
		code int
		kind ErrorKind
	}{
		{401, KindAuth},
		{403, KindAuth},
		{429, KindRateLimit},
		{408, KindTimeout},
		{504, KindTimeout},
		{500, KindNetwork},
		{503, KindNetwork},
	}
	for _, tt := range tests {
		classified := Classify(&statusError{code: tt.code}, nil)
		assert.Equal(t, tt.kind, classified.Kind, "status %d", tt.code)
	}
}

func TestClassifyNil(t *testing.T) {
	assert.Nil(t, Classify(nil, nil))
}

func TestClassifiedErrorWrapsOriginal(t *testing.T) {
	cause := errors.New("rate limit hit")
	classified := Classify(cause, map[string]interface{}{"model": "gpt-4o-mini", "message_count": 3})

	assert.ErrorIs(t, classified, cause)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", classified.Code)
	assert.Equal(t, "gpt-4o-mini", classified.Context["model"])
	assert.Contains(t, classified.Error(), "RATE_LIMIT_EXCEEDED")
}
