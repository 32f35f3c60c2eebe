// Package transform applies ordered payload transformations before signing.
//
// Transformers are named strategy objects registered at start-up: globals run
// first, then any transformers registered for the specific event type, both
// in registration order. A transformer error (or panic) aborts processing for
// that single endpoint's event only; sibling deliveries of the same emission
// are unaffected.
package transform

import (
	"fmt"
	"sync"
)

// Transformer mutates, redacts or enriches a payload.
type Transformer interface {
	Name() string
	Transform(eventType string, payload map[string]any) (map[string]any, error)
}

// Func adapts a function to the Transformer interface.
func Func(name string, fn func(eventType string, payload map[string]any) (map[string]any, error)) Transformer {
	return funcTransformer{name: name, fn: fn}
}

type funcTransformer struct {
	name string
	fn   func(string, map[string]any) (map[string]any, error)
}

func (t funcTransformer) Name() string { return t.name }
func (t funcTransformer) Transform(eventType string, payload map[string]any) (map[string]any, error) {
	return t.fn(eventType, payload)
}

type Pipeline struct {
	mu     sync.RWMutex
	global []Transformer
	byType map[string][]Transformer
}

func NewPipeline() *Pipeline {
	return &Pipeline{byType: map[string][]Transformer{}}
}

func (p *Pipeline) RegisterGlobal(t Transformer) {
	p.mu.Lock()
	p.global = append(p.global, t)
	p.mu.Unlock()
}

func (p *Pipeline) RegisterForType(eventType string, t Transformer) {
	p.mu.Lock()
	p.byType[eventType] = append(p.byType[eventType], t)
	p.mu.Unlock()
}

// Process runs the payload through all applicable transformers. The returned
// error names the transformer that failed or panicked.
func (p *Pipeline) Process(eventType string, payload map[string]any) (map[string]any, error) {
	p.mu.RLock()
	chain := make([]Transformer, 0, len(p.global)+len(p.byType[eventType]))
	chain = append(chain, p.global...)
	chain = append(chain, p.byType[eventType]...)
	p.mu.RUnlock()

	var err error
	for _, t := range chain {
		payload, err = apply(t, eventType, payload)
		if err != nil {
			return nil, err
		}
	}
	return payload, nil
}

// Error reports which transformer aborted processing.
type Error struct {
	Transformer string
	Err         error
}

func (e *Error) Error() string { return fmt.Sprintf("transformer %s: %v", e.Transformer, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func apply(t Transformer, eventType string, payload map[string]any) (out map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Transformer: t.Name(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	out, err = t.Transform(eventType, payload)
	if err != nil {
		return nil, &Error{Transformer: t.Name(), Err: err}
	}
	return out, nil
}

// CloneMap deep-copies a payload so per-endpoint transformations never leak
// into sibling deliveries of the same emission.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
