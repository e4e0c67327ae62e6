package agent

import (
	"fmt"
	"sync"
)

// Event names emitted by EventDispatchingAgent.
const (
	PrePersist  = "object_agent.pre_persist"
	PostPersist = "object_agent.post_persist"
	PreRemove   = "object_agent.pre_remove"
	PostRemove  = "object_agent.post_remove"
)

// Event is delivered to listeners around persist and remove.
type Event struct {
	Name   string
	Agent  Agent
	Object any
}

// Listener handles one event. A non-nil error aborts the operation that
// emitted the event.
type Listener func(Event) error

// Dispatcher delivers events to listeners.
type Dispatcher interface {
	Dispatch(event Event) error
}

// EventBus is a synchronous Dispatcher. Listeners run on the caller's
// goroutine in subscription order; the first error stops delivery.
type EventBus struct {
	mu        sync.RWMutex
	listeners map[string][]Listener
}

// NewEventBus creates an EventBus with no listeners.
func NewEventBus() *EventBus {
	return &EventBus{listeners: make(map[string][]Listener)}
}

// Subscribe registers l for events named name.
func (b *EventBus) Subscribe(name string, l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[name] = append(b.listeners[name], l)
}

// Dispatch delivers event to every listener subscribed to event.Name.
func (b *EventBus) Dispatch(event Event) error {
	b.mu.RLock()
	listeners := append([]Listener(nil), b.listeners[event.Name]...)
	b.mu.RUnlock()

	for i, l := range listeners {
		if err := l(event); err != nil {
			return fmt.Errorf("listener %d for %s: %w", i, event.Name, err)
		}
	}
	return nil
}
