package agent

import (
	"fmt"

	"github.com/roach88/objectagent/internal/agenterr"
)

// Entry names one agent in a Registry.
type Entry struct {
	Name  string
	Agent Agent
}

// Registry resolves the agent for an entity type or a name.
//
// It is fixed at construction: entries keep their registration order and
// there is no mutation API, so lookups are safe from any goroutine.
type Registry struct {
	entries []Entry
	byName  map[string]Agent
}

// NewRegistry creates a Registry. Names must be unique and agents non-nil.
func NewRegistry(entries ...Entry) (*Registry, error) {
	r := &Registry{
		entries: make([]Entry, 0, len(entries)),
		byName:  make(map[string]Agent, len(entries)),
	}
	for i, e := range entries {
		if e.Agent == nil {
			return nil, agenterr.InvalidArgument("registry entry %d (%q) has no agent", i, e.Name)
		}
		if e.Name == "" {
			return nil, agenterr.InvalidArgument("registry entry %d (%T) has no name", i, e.Agent)
		}
		if _, dup := r.byName[e.Name]; dup {
			return nil, agenterr.InvalidArgument("agent name %q is registered twice", e.Name)
		}
		r.entries = append(r.entries, e)
		r.byName[e.Name] = e.Agent
	}
	return r, nil
}

// FindFor returns the first agent, in registration order, that supports
// entityType.
func (r *Registry) FindFor(entityType string) (Agent, error) {
	for _, e := range r.entries {
		if e.Agent.Supports(entityType) {
			return e.Agent, nil
		}
	}
	return nil, agenterr.AgentNotFound(entityType, r.describe())
}

// Get returns the agent registered under name.
func (r *Registry) Get(name string) (Agent, error) {
	a, ok := r.byName[name]
	if !ok {
		return nil, agenterr.AgentNotFound(name, r.describe())
	}
	return a, nil
}

// Name returns the registration name of a. Agents obtained through the
// registry are always known; an unknown instance is an internal bug and
// panics.
func (r *Registry) Name(a Agent) string {
	for _, e := range r.entries {
		if e.Agent == a {
			return e.Name
		}
	}
	panic(fmt.Sprintf("agent: %T is not registered", a))
}

// Entries returns the registrations in order.
func (r *Registry) Entries() []Entry {
	return append([]Entry(nil), r.entries...)
}

func (r *Registry) describe() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = fmt.Sprintf("%s (%T)", e.Name, e.Agent)
	}
	return names
}
