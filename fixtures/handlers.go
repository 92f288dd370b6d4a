package fixtures

import (
	"context"
	"sync"

	es "github.com/tidemark/eventsource"
)

// HandlerSpy is a scripted mock Handler. Configure a result script with
// Succeed/Fail/Panic; each invocation consumes one step, the last step
// repeats forever.
type HandlerSpy struct {
	mu sync.Mutex

	// Calls counts invocations.
	Calls int

	// LastEventType is the event type of the last handled event.
	LastEventType string

	script []scriptStep
	out    any
}

type scriptStep struct {
	err     error
	panicee any
}

// NewHandlerSpy creates a handler that succeeds on every call until
// scripted otherwise.
func NewHandlerSpy() *HandlerSpy {
	return &HandlerSpy{}
}

// Returning sets the output returned by successful calls.
func (h *HandlerSpy) Returning(out any) *HandlerSpy {
	h.out = out
	return h
}

// Succeed appends a successful step to the script.
func (h *HandlerSpy) Succeed() *HandlerSpy {
	h.script = append(h.script, scriptStep{})
	return h
}

// Fail appends a failing step to the script.
func (h *HandlerSpy) Fail(err error) *HandlerSpy {
	h.script = append(h.script, scriptStep{err: err})
	return h
}

// Panic appends a panicking step to the script.
func (h *HandlerSpy) Panic(v any) *HandlerSpy {
	h.script = append(h.script, scriptStep{panicee: v})
	return h
}

// Handle implements Handler.
func (h *HandlerSpy) Handle(ctx context.Context, hctx *es.EventHandlerContext) (any, error) {
	h.mu.Lock()
	step := scriptStep{}
	if len(h.script) > 0 {
		idx := h.Calls
		if idx >= len(h.script) {
			idx = len(h.script) - 1
		}
		step = h.script[idx]
	}
	h.Calls++
	h.LastEventType = hctx.EventType()
	out := h.out
	h.mu.Unlock()

	if step.panicee != nil {
		panic(step.panicee)
	}
	if step.err != nil {
		return nil, step.err
	}
	return out, nil
}

// CallCount returns the number of invocations.
func (h *HandlerSpy) CallCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Calls
}

var _ es.Handler = (*HandlerSpy)(nil)
