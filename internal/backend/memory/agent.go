// Package memory implements an agent over in-process collections.
//
// Criteria compile to Go predicates evaluated against every object of the
// queried collection. The backend cannot negate pattern matches or nullity,
// so not_contains and not_null are rejected. Selects, joins, group-bys and
// having are rejected with a capability violation.
package memory

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/objectagent/internal/agent"
	"github.com/roach88/objectagent/internal/agenterr"
	"github.com/roach88/objectagent/internal/capability"
	"github.com/roach88/objectagent/internal/compile"
	"github.com/roach88/objectagent/internal/metadata"
	"github.com/roach88/objectagent/internal/query"
	"github.com/roach88/objectagent/internal/value"
)

// Name identifies the backend in errors and logs.
const Name = "memory"

// DefaultCapabilities lists what the memory agent supports.
var DefaultCapabilities = capability.New(capability.Config{
	SupportedComparators: []query.Comparator{
		query.Equals,
		query.NotEquals,
		query.LessThan,
		query.LessThanOrEqual,
		query.GreaterThan,
		query.GreaterThanOrEqual,
		query.In,
		query.NotIn,
		query.Contains,
		query.IsNull,
	},
	CanQueryCount: true,
})

type opKind int

const (
	opPersist opKind = iota
	opRemove
)

type stagedOp struct {
	kind   opKind
	object any
}

// Agent is the memory backend.
type Agent struct {
	store  *Store
	caps   capability.Capabilities
	logger *slog.Logger
	staged []stagedOp
}

var _ agent.Agent = (*Agent)(nil)

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// WithCapabilities narrows the default capabilities, e.g. to disable count.
func WithCapabilities(caps capability.Capabilities) Option {
	return func(a *Agent) { a.caps = a.caps.Narrow(caps) }
}

// New creates an agent over store.
func New(store *Store, opts ...Option) *Agent {
	a := &Agent{store: store, caps: DefaultCapabilities, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Store returns the underlying store.
func (a *Agent) Store() *Store { return a.store }

func (a *Agent) Supports(entityType string) bool {
	return a.store.HasCollection(entityType)
}

func (a *Agent) Capabilities() capability.Capabilities { return a.caps }

// Find requires entityType: collections are keyed by type.
func (a *Agent) Find(identifier any, entityType string) (any, error) {
	if entityType == "" {
		return nil, agenterr.MandatoryArgument(Name, "entityType", identifier)
	}
	if err := a.requireSingleID(entityType); err != nil {
		return nil, err
	}
	obj, ok := a.store.Find(entityType, identifier)
	if !ok {
		return nil, agenterr.ObjectNotFound(entityType, identifier)
	}
	return obj, nil
}

func (a *Agent) FindMany(identifiers []any, entityType string) ([]any, error) {
	if entityType == "" {
		return nil, agenterr.MandatoryArgument(Name, "entityType", identifiers)
	}
	if err := a.requireSingleID(entityType); err != nil {
		return nil, err
	}
	out := make([]any, 0, len(identifiers))
	for _, id := range identifiers {
		obj, err := a.Find(id, entityType)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}

// requireSingleID rejects lookups on a type keyed by several fields.
func (a *Agent) requireSingleID(entityType string) error {
	class, ok := a.store.Classes().Class(entityType)
	if !ok {
		return nil
	}
	if _, ok := class.SingleID(); !ok {
		return agenterr.CompositeIdentifier(Name, class.Name(), class.IDFieldNames())
	}
	return nil
}

func (a *Agent) Persist(object any) error {
	if err := a.check(object); err != nil {
		return err
	}
	a.staged = append(a.staged, stagedOp{kind: opPersist, object: object})
	return nil
}

func (a *Agent) Remove(object any) error {
	if err := a.check(object); err != nil {
		return err
	}
	a.staged = append(a.staged, stagedOp{kind: opRemove, object: object})
	return nil
}

// check validates object before staging so that Flush cannot fail on it.
func (a *Agent) check(object any) error {
	class, err := a.store.classOf(object)
	if err != nil {
		return err
	}
	id, err := class.Identifier(Name, object)
	if err != nil {
		return err
	}
	if value.IsNull(id) {
		return agenterr.InvalidArgument("object of type %q has no identifier", class.Name())
	}
	return nil
}

// Flush applies staged operations in order. Operations that were not applied
// stay staged when an error occurs.
func (a *Agent) Flush() error {
	for len(a.staged) > 0 {
		op := a.staged[0]
		var err error
		switch op.kind {
		case opPersist:
			err = a.store.Put(op.object)
		case opRemove:
			err = a.store.Delete(op.object)
		}
		if err != nil {
			a.logger.Error("flush failed", "agent", Name, "pending", len(a.staged), "error", err)
			return err
		}
		a.staged = a.staged[1:]
	}
	a.logger.Debug("flushed", "agent", Name)
	return nil
}

func (a *Agent) Query(q *query.Query) (*agent.Cursor, error) {
	objects, err := a.run(q, true)
	if err != nil {
		return nil, err
	}
	return agent.SliceCursor(objects), nil
}

func (a *Agent) QueryCount(q *query.Query) (int, error) {
	if !a.caps.CanQueryCount() {
		return 0, agenterr.CapabilityViolation(Name, "query count")
	}
	objects, err := a.run(q, false)
	if err != nil {
		return 0, err
	}
	return len(objects), nil
}

// Explain checks q as Query would and describes how it is evaluated.
func (a *Agent) Explain(q *query.Query) (string, error) {
	class, match, err := a.prepare(q)
	if err != nil {
		return "", err
	}
	desc := fmt.Sprintf("scan collection %q", class.Name())
	if match != nil {
		desc += " with predicate"
	}
	if len(q.Orderings()) > 0 {
		desc += fmt.Sprintf(", sort by %d ordering(s)", len(q.Orderings()))
	}
	if first, ok := q.FirstResult(); ok {
		desc += fmt.Sprintf(", skip %d", first)
	}
	if limit, ok := q.MaxResults(); ok {
		desc += fmt.Sprintf(", take %d", limit)
	}
	return desc, nil
}

// prepare resolves the class of q and compiles its criteria. The predicate
// is nil when q has no criteria.
func (a *Agent) prepare(q *query.Query) (*metadata.Class, Predicate, error) {
	if err := compile.RejectUnsupported(Name, q, a.caps.CanQuerySelect(), a.caps.CanQueryJoin(), a.caps.CanQueryHaving()); err != nil {
		return nil, nil, err
	}
	class, ok := a.store.Classes().Class(q.EntityType())
	if !ok {
		return nil, nil, agenterr.InvalidArgument("no class registered for type %q", q.EntityType())
	}
	if !q.HasCriteria() {
		return class, nil, nil
	}
	match, err := Compile(class, a.caps, q.Criteria())
	if err != nil {
		return nil, nil, err
	}
	return class, match, nil
}

func (a *Agent) run(q *query.Query, paginate bool) ([]any, error) {
	class, match, err := a.prepare(q)
	if err != nil {
		return nil, err
	}
	objects, err := a.store.Objects(class.Name())
	if err != nil {
		return nil, err
	}

	if match != nil {
		filtered := objects[:0]
		for _, obj := range objects {
			if match(obj) {
				filtered = append(filtered, obj)
			}
		}
		objects = filtered
	}

	if err := sortObjects(class, objects, q.Orderings()); err != nil {
		return nil, err
	}
	if paginate {
		objects = compile.Paginate(objects, q)
	}

	a.logger.Debug("query executed", "agent", Name, "type", class.Name(), "results", len(objects))
	return objects, nil
}

func sortObjects(class *metadata.Class, objects []any, orderings []query.Ordering) error {
	if len(orderings) == 0 {
		return nil
	}
	fields := make([]string, len(orderings))
	for i, o := range orderings {
		name, err := resolveField(class, o.Field)
		if err != nil {
			return err
		}
		fields[i] = name
	}

	sort.SliceStable(objects, func(i, j int) bool {
		for k, o := range orderings {
			vi, _ := class.Get(objects[i], fields[k])
			vj, _ := class.Get(objects[j], fields[k])
			if o.Direction == query.Desc {
				vi, vj = vj, vi
			}
			if value.Less(vi, vj) {
				return true
			}
			if value.Less(vj, vi) {
				return false
			}
		}
		return false
	})
	return nil
}

// Identifier reads the identifier field of object.
func (a *Agent) Identifier(object any) (any, error) {
	class, err := a.store.classOf(object)
	if err != nil {
		return nil, err
	}
	return class.Identifier(Name, object)
}

func (a *Agent) CanonicalType(entityType string) string {
	return a.store.Classes().Canonical(entityType)
}

func (a *Agent) SetParent(object, parent any) error {
	return agenterr.CapabilityViolation(Name, "set parent")
}
