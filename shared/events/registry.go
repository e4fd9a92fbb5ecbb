package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Handler applies one event. Handlers must be idempotent: a message is
// delivered again until its handler returns nil.
type Handler func(ctx context.Context, evt Event) error

var (
	ErrUnknownEventType = errors.New("events: unknown event type")
	ErrNilHandler       = errors.New("events: nil handler")
	ErrDuplicateHandler = errors.New("events: handler already registered")
)

// Registry maps event types to handlers. It is filled before a consumer
// starts and read-only afterwards.
type Registry struct {
	handlers map[EventType]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[EventType]Handler)}
}

func (r *Registry) Register(t EventType, h Handler) error {
	if !t.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, t)
	}
	if h == nil {
		return fmt.Errorf("%w for %s", ErrNilHandler, t)
	}
	if _, exists := r.handlers[t]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, t)
	}
	r.handlers[t] = h
	return nil
}

// MustRegister is Register for wiring code where a failure is a bug.
func (r *Registry) MustRegister(t EventType, h Handler) {
	if err := r.Register(t, h); err != nil {
		panic(err)
	}
}

func (r *Registry) Lookup(t EventType) (Handler, bool) {
	h, ok := r.handlers[t]
	return h, ok
}

func (r *Registry) Types() []EventType {
	types := make([]EventType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
