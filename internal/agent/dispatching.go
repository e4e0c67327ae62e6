package agent

import (
	"github.com/roach88/objectagent/internal/capability"
	"github.com/roach88/objectagent/internal/query"
)

// EventDispatchingAgent wraps an Agent and emits events around Persist and
// Remove. Every other call is delegated unchanged.
type EventDispatchingAgent struct {
	agent      Agent
	dispatcher Dispatcher
}

var _ Agent = (*EventDispatchingAgent)(nil)

// NewEventDispatchingAgent wraps agent, sending events to dispatcher.
func NewEventDispatchingAgent(agent Agent, dispatcher Dispatcher) *EventDispatchingAgent {
	return &EventDispatchingAgent{agent: agent, dispatcher: dispatcher}
}

// Unwrap returns the wrapped agent.
func (a *EventDispatchingAgent) Unwrap() Agent { return a.agent }

func (a *EventDispatchingAgent) Supports(entityType string) bool {
	return a.agent.Supports(entityType)
}

func (a *EventDispatchingAgent) Capabilities() capability.Capabilities {
	return a.agent.Capabilities()
}

func (a *EventDispatchingAgent) Find(identifier any, entityType string) (any, error) {
	return a.agent.Find(identifier, entityType)
}

func (a *EventDispatchingAgent) FindMany(identifiers []any, entityType string) ([]any, error) {
	return a.agent.FindMany(identifiers, entityType)
}

// Persist emits PrePersist, persists with the wrapped agent, then emits
// PostPersist. A listener error on PrePersist leaves nothing staged.
func (a *EventDispatchingAgent) Persist(object any) error {
	if err := a.dispatch(PrePersist, object); err != nil {
		return err
	}
	if err := a.agent.Persist(object); err != nil {
		return err
	}
	return a.dispatch(PostPersist, object)
}

// Remove emits PreRemove, removes with the wrapped agent, then emits
// PostRemove.
func (a *EventDispatchingAgent) Remove(object any) error {
	if err := a.dispatch(PreRemove, object); err != nil {
		return err
	}
	if err := a.agent.Remove(object); err != nil {
		return err
	}
	return a.dispatch(PostRemove, object)
}

func (a *EventDispatchingAgent) Flush() error {
	return a.agent.Flush()
}

func (a *EventDispatchingAgent) Query(q *query.Query) (*Cursor, error) {
	return a.agent.Query(q)
}

func (a *EventDispatchingAgent) QueryCount(q *query.Query) (int, error) {
	return a.agent.QueryCount(q)
}

func (a *EventDispatchingAgent) Identifier(object any) (any, error) {
	return a.agent.Identifier(object)
}

func (a *EventDispatchingAgent) CanonicalType(entityType string) string {
	return a.agent.CanonicalType(entityType)
}

func (a *EventDispatchingAgent) SetParent(object, parent any) error {
	return a.agent.SetParent(object, parent)
}

func (a *EventDispatchingAgent) dispatch(name string, object any) error {
	return a.dispatcher.Dispatch(Event{Name: name, Agent: a.agent, Object: object})
}
