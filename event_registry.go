package eventsource

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

// EventRegistry maps event type names to factory functions so storage
// adapters can decode persisted payloads back into concrete events. It is an
// explicit object: construct one at startup and hand it to the adapters that
// need it.
type EventRegistry struct {
	mu        sync.RWMutex
	factories map[string]func() Event
}

// NewEventRegistry creates an empty registry.
func NewEventRegistry() *EventRegistry {
	return &EventRegistry{
		factories: make(map[string]func() Event),
	}
}

// Register registers a factory under name. The factory must return a fresh
// instance on every call.
//
// Panics on a nil factory, a factory returning nil, or a duplicate name;
// registration happens once at startup and a broken table should fail fast.
func (r *EventRegistry) Register(name string, factory func() Event) {
	if factory == nil {
		panic("cannot register nil factory")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		panic(fmt.Sprintf("event already registered: %s", name))
	}
	if factory() == nil {
		panic(fmt.Sprintf("factory returned nil for event: %s", name))
	}

	r.factories[name] = factory
}

// NewEvent creates a new instance of a registered event by name.
func (r *EventRegistry) NewEvent(name string) (Event, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("event not registered: %s", name)
	}
	ev := factory()
	if ev == nil {
		return nil, fmt.Errorf("factory returned nil for event: %s", name)
	}
	return ev, nil
}

// Decode instantiates the event named by eventType and unmarshals the JSON
// payload into it. Value-typed events are decoded through a fresh pointer so
// the unmarshal target is addressable.
func (r *EventRegistry) Decode(eventType string, data []byte) (Event, error) {
	ev, err := r.NewEvent(eventType)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return ev, nil
	}

	rv := reflect.ValueOf(ev)
	if rv.Kind() == reflect.Pointer {
		if err := json.Unmarshal(data, ev); err != nil {
			return nil, fmt.Errorf("decode event %q: %w", eventType, err)
		}
		return ev, nil
	}

	ptr := reflect.New(rv.Type())
	ptr.Elem().Set(rv)
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("decode event %q: %w", eventType, err)
	}
	return ptr.Elem().Interface().(Event), nil
}

// RegisterEvent registers T under its default type name (TypeName of T).
// Pointer and value event types are both supported.
func RegisterEvent[T Event](r *EventRegistry) {
	var zero T
	name := TypeName(zero)

	rt := reflect.TypeOf((*T)(nil)).Elem()
	if rt.Kind() == reflect.Pointer {
		elem := rt.Elem()
		r.Register(name, func() Event {
			return reflect.New(elem).Interface().(Event)
		})
		return
	}

	r.Register(name, func() Event {
		var ev T
		return ev
	})
}
