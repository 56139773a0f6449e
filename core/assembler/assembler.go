// Package assembler reassembles tool-call arguments delivered as
// incremental JSON fragments into complete core.ToolCall values, exactly
// once per content-block index.
package assembler

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/fritzprix/libr-agent-sub001/core"
)

// DefaultMaxArgBuffer is the per-block byte cap on accumulated argument
// JSON before the accumulator is discarded.
const DefaultMaxArgBuffer = 200_000

// accumulator tracks one content-block's in-flight tool-call arguments.
type accumulator struct {
	id           string
	name         string
	partialJSON  strings.Builder
	initialInput json.RawMessage
	yielded      bool
	discarded    bool
}

// Assembler is the per-stream-call state machine. It is not safe for reuse
// across calls; one Assembler is owned exclusively by one StreamChat
// invocation.
type Assembler struct {
	mu          sync.Mutex
	maxArgBytes int
	blocks      map[int]*accumulator
	logger      core.Logger
}

// Option configures an Assembler at construction time.
type Option func(*Assembler)

// WithMaxArgBuffer overrides DefaultMaxArgBuffer.
func WithMaxArgBuffer(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.maxArgBytes = n
		}
	}
}

// WithLogger attaches a Logger for buffer-exceeded/parse-failure diagnostics.
func WithLogger(logger core.Logger) Option {
	return func(a *Assembler) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New builds an Assembler ready to consume BlockStart/ArgDelta/BlockStop
// events for one stream.
func New(opts ...Option) *Assembler {
	a := &Assembler{
		maxArgBytes: DefaultMaxArgBuffer,
		blocks:      make(map[int]*accumulator),
		logger:      core.NoopLogger{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BlockStart registers a new tool_use content block at index. initialInput,
// if non-nil, is retained verbatim as the BlockStop fallback.
func (a *Assembler) BlockStart(index int, id, name string, initialInput json.RawMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.blocks[index] = &accumulator{id: id, name: name, initialInput: initialInput}
}

// ArgDelta appends fragment to the accumulator at index and, on the first
// delta whose accumulated buffer parses as JSON, returns a completed
// core.ToolCall event. Subsequent deltas for the same index never re-emit.
// If the buffer exceeds the configured cap, the accumulator is discarded,
// marked yielded, and no event is ever emitted for that index again.
func (a *Assembler) ArgDelta(ctx context.Context, index int, fragment string) (core.Event, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	acc, ok := a.blocks[index]
	if !ok || acc.yielded || acc.discarded {
		return core.Event{}, false
	}

	acc.partialJSON.WriteString(fragment)

	if acc.partialJSON.Len() > a.maxArgBytes {
		acc.discarded = true
		acc.yielded = true
		a.logger.Error(ctx, "assembler: argument buffer exceeded cap, discarding tool call",
			core.F("block_index", index), core.F("tool_call_id", acc.id), core.F("max_bytes", a.maxArgBytes))
		return core.Event{}, false
	}

	raw, valid := core.RawArguments([]byte(strings.TrimSpace(acc.partialJSON.String())))
	if !valid {
		return core.Event{}, false
	}

	acc.yielded = true
	return core.ToolCallEvent(index, core.ToolCall{ID: acc.id, Name: acc.name, Arguments: raw, Type: "function"}), true
}

// BlockStop finalizes the content block at index. If no event was yielded
// by ArgDelta, it makes one final parse attempt, falling back to the
// verbatim initial input if parsing still fails, and logs a parse-failure
// with no event emitted if neither succeeds. The accumulator is removed
// either way.
func (a *Assembler) BlockStop(ctx context.Context, index int) (core.Event, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	acc, ok := a.blocks[index]
	if !ok {
		return core.Event{}, false
	}
	defer delete(a.blocks, index)

	if acc.yielded {
		return core.Event{}, false
	}

	if raw, valid := core.RawArguments([]byte(strings.TrimSpace(acc.partialJSON.String()))); valid {
		return core.ToolCallEvent(index, core.ToolCall{ID: acc.id, Name: acc.name, Arguments: raw, Type: "function"}), true
	}

	if acc.initialInput != nil {
		return core.ToolCallEvent(index, core.ToolCall{ID: acc.id, Name: acc.name, Arguments: acc.initialInput, Type: "function"}), true
	}

	a.logger.Error(ctx, "assembler: tool call arguments never parsed as valid JSON",
		core.F("block_index", index), core.F("tool_call_id", acc.id))
	return core.Event{}, false
}

// Reset drops all in-flight accumulator state without emitting anything,
// for cancellation: no ToolCall event may be emitted for an incompletely
// received tool-use block once the caller cancels.
func (a *Assembler) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.blocks = make(map[int]*accumulator)
}

// CompleteOneShot builds an already-complete ToolCall event for adapters
// (Gemini) that receive whole arguments per event rather
// than streamed fragments, routing them through the same
// yield-at-most-once bookkeeping as the incremental path.
func (a *Assembler) CompleteOneShot(index int, id, name string, arguments json.RawMessage) (core.Event, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if acc, ok := a.blocks[index]; ok && (acc.yielded || acc.discarded) {
		return core.Event{}, false
	}
	a.blocks[index] = &accumulator{id: id, name: name, yielded: true}
	if arguments == nil {
		arguments = json.RawMessage("{}")
	}
	return core.ToolCallEvent(index, core.ToolCall{ID: id, Name: name, Arguments: arguments, Type: "function"}), true
}
