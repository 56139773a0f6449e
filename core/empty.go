package core

import (
	"context"
	"fmt"
)

// EmptyAdapter is the no-op fallback Adapter the Factory hands out when a
// provider builder is missing or fails to construct. StreamChat yields a
// single End event immediately; everything else reports Unsupported.
type EmptyAdapter struct {
	logger Logger
}

// NewEmptyAdapter builds an EmptyAdapter. A nil logger defaults to NoopLogger.
func NewEmptyAdapter(logger Logger) *EmptyAdapter {
	if logger == nil {
		logger = NoopLogger{}
	}
	return &EmptyAdapter{logger: logger}
}

func (e *EmptyAdapter) StreamChat(ctx context.Context, messages []Message, opts StreamOptions, cancel *CancelToken) (<-chan Event, error) {
	if err := ValidateHistory(messages); err != nil {
		return nil, err
	}
	out := make(chan Event, 1)
	out <- EndEvent()
	close(out)
	return out, nil
}

func (e *EmptyAdapter) ListModels(ctx context.Context) ([]ModelInfo, error) {
	return nil, Classify(fmt.Errorf("unsupported: empty adapter has no model catalog"), nil)
}

func (e *EmptyAdapter) SampleText(ctx context.Context, prompt string, opts *SampleOptions) (string, error) {
	return "", Classify(fmt.Errorf("unsupported: empty adapter cannot sample text"), nil)
}

func (e *EmptyAdapter) Cancel() {}

func (e *EmptyAdapter) Dispose() error { return nil }
