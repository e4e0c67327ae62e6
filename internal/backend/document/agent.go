// Package document implements an agent over a hierarchical node tree.
//
// Every object is stored at a node identified by a UUID. A class's parent
// field places its objects below the parent's node, its nodename field
// names the node (the UUID is used otherwise), and the remaining fields are
// stored as node properties. Nodes record their type, so Find works without
// one.
//
// When a workspace file is configured the tree is loaded from it on Open and
// written back as YAML on every successful Flush.
package document

import (
	"fmt"
	"log/slog"
	"reflect"
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
const Name = "document"

// DefaultCapabilities lists what the document agent supports.
var DefaultCapabilities = capability.New(capability.Config{
	SupportedComparators: query.Comparators,
	CanSetParent:         true,
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

// Agent is the document backend. It is not safe for concurrent use.
type Agent struct {
	tree    *Tree
	classes *metadata.Registry
	caps    capability.Capabilities
	logger  *slog.Logger
	ids     IDGenerator
	file    string

	objects map[string]any
	staged  []stagedOp
}

var _ agent.Agent = (*Agent)(nil)

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// WithCapabilities narrows the default capabilities.
func WithCapabilities(caps capability.Capabilities) Option {
	return func(a *Agent) { a.caps = a.caps.Narrow(caps) }
}

// WithIDGenerator sets the node UUID generator. Defaults to UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(a *Agent) { a.ids = g }
}

// WithWorkspaceFile writes the tree to path after every flush.
func WithWorkspaceFile(path string) Option {
	return func(a *Agent) { a.file = path }
}

// New creates an agent over tree.
func New(tree *Tree, classes *metadata.Registry, opts ...Option) *Agent {
	a := &Agent{
		tree:    tree,
		classes: classes,
		caps:    DefaultCapabilities,
		logger:  slog.Default(),
		ids:     UUIDv7Generator{},
		objects: make(map[string]any),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Open loads the workspace file at path (an empty tree when it does not
// exist) and returns an agent that saves back to it.
func Open(path string, classes *metadata.Registry, opts ...Option) (*Agent, error) {
	tree, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return New(tree, classes, append([]Option{WithWorkspaceFile(path)}, opts...)...), nil
}

// Tree returns the current tree.
func (a *Agent) Tree() *Tree { return a.tree }

func (a *Agent) Supports(entityType string) bool {
	_, ok := a.classes.Class(entityType)
	return ok
}

func (a *Agent) Capabilities() capability.Capabilities { return a.caps }

// Find looks up the node with UUID identifier. entityType is optional; when
// given, a node of another type is reported as not found.
func (a *Agent) Find(identifier any, entityType string) (any, error) {
	var class *metadata.Class
	if entityType != "" {
		var err error
		if class, err = a.lookupClass(entityType); err != nil {
			return nil, err
		}
	}
	uuid := fmt.Sprint(identifier)
	n, ok := a.tree.Node(uuid)
	if !ok {
		return nil, agenterr.ObjectNotFound(entityType, identifier)
	}
	if class != nil && n.Type != class.Name() {
		return nil, agenterr.ObjectNotFound(entityType, identifier)
	}
	return a.hydrate(n)
}

func (a *Agent) FindMany(identifiers []any, entityType string) ([]any, error) {
	if entityType != "" {
		if _, err := a.lookupClass(entityType); err != nil {
			return nil, err
		}
	}
	out := make([]any, len(identifiers))
	for i, identifier := range identifiers {
		obj, err := a.Find(identifier, entityType)
		if err != nil {
			return nil, err
		}
		out[i] = obj
	}
	return out, nil
}

// lookupClass resolves entityType for a find and rejects types keyed by
// several fields.
func (a *Agent) lookupClass(entityType string) (*metadata.Class, error) {
	class, err := a.class(entityType)
	if err != nil {
		return nil, err
	}
	if _, ok := class.SingleID(); !ok {
		return nil, agenterr.CompositeIdentifier(Name, class.Name(), class.IDFieldNames())
	}
	return class, nil
}

func (a *Agent) Persist(object any) error {
	if _, err := a.classOf(object); err != nil {
		return err
	}
	a.staged = append(a.staged, stagedOp{kind: opPersist, object: object})
	return nil
}

func (a *Agent) Remove(object any) error {
	if _, err := a.classOf(object); err != nil {
		return err
	}
	a.staged = append(a.staged, stagedOp{kind: opRemove, object: object})
	return nil
}

// assignedID records a UUID generated during a flush so it can be reset
// when the flush fails.
type assignedID struct {
	class  *metadata.Class
	object any
	field  string
}

// Flush applies staged operations to a copy of the tree and swaps it in
// once every operation (and the workspace write) succeeded. On failure the
// tree is unchanged, generated UUIDs are reset and every operation stays
// staged.
func (a *Agent) Flush() error {
	if len(a.staged) == 0 {
		return nil
	}

	next := a.tree.Clone()
	var assigned []assignedID
	var removed []string
	fail := func(cause error) error {
		for _, as := range assigned {
			if err := as.class.Set(as.object, as.field, nil); err != nil {
				a.logger.Warn("reset generated identifier failed", "agent", Name, "error", err)
			}
		}
		a.logger.Error("flush failed", "agent", Name, "pending", len(a.staged), "error", cause)
		return cause
	}

	for i, op := range a.staged {
		var err error
		switch op.kind {
		case opPersist:
			err = a.write(next, op.object, &assigned)
		case opRemove:
			var uuids []string
			uuids, err = a.delete(next, op.object)
			removed = append(removed, uuids...)
		}
		if err != nil {
			return fail(fmt.Errorf("flush operation %d: %w", i, err))
		}
	}
	if a.file != "" {
		if err := SaveFile(next, a.file); err != nil {
			return fail(err)
		}
	}

	a.tree = next
	for _, uuid := range removed {
		delete(a.objects, uuid)
	}
	for _, op := range a.staged {
		if op.kind != opPersist {
			continue
		}
		if uuid, err := a.uuidOf(op.object); err == nil && uuid != "" {
			a.objects[uuid] = op.object
		}
	}
	a.logger.Info("flushed", "agent", Name, "operations", len(a.staged), "nodes", next.Len())
	a.staged = nil
	return nil
}

// write creates or updates the node of object in tree.
func (a *Agent) write(tree *Tree, object any, assigned *[]assignedID) error {
	class, err := a.classOf(object)
	if err != nil {
		return err
	}
	idField, _ := class.SingleID()

	uuid, err := a.uuidOf(object)
	if err != nil {
		return err
	}
	if uuid == "" {
		uuid = a.ids.Generate()
		if err := class.Set(object, idField.Name, uuid); err != nil {
			return err
		}
		*assigned = append(*assigned, assignedID{class: class, object: object, field: idField.Name})
	}

	parent, err := a.parentNode(tree, class, object)
	if err != nil {
		return err
	}
	name, err := nodeName(class, object, uuid)
	if err != nil {
		return err
	}
	props, err := properties(class, object)
	if err != nil {
		return err
	}

	if n, ok := tree.Node(uuid); ok {
		if n.Type != class.Name() {
			return agenterr.InvalidArgument("node %s holds a %q, not a %q", uuid, n.Type, class.Name())
		}
		if err := tree.Move(n, parent, name); err != nil {
			return err
		}
		n.Properties = props
		return nil
	}
	_, err = tree.Add(parent, uuid, name, class.Name(), props)
	return err
}

func (a *Agent) delete(tree *Tree, object any) ([]string, error) {
	uuid, err := a.uuidOf(object)
	if err != nil {
		return nil, err
	}
	n, ok := tree.Node(uuid)
	if uuid == "" || !ok {
		class, _ := a.classOf(object)
		return nil, agenterr.ObjectNotFound(class.Name(), uuid)
	}
	return tree.Remove(n), nil
}

// parentNode returns the node the parent field of object points to, or the
// root when the class has no parent mapping or the parent is unset.
func (a *Agent) parentNode(tree *Tree, class *metadata.Class, object any) (*Node, error) {
	f, ok := class.ParentField()
	if !ok {
		return tree.Root(), nil
	}
	parent, err := class.Get(object, f.Name)
	if err != nil {
		return nil, err
	}
	if value.IsNull(parent) {
		return tree.Root(), nil
	}
	uuid, err := a.uuidOf(parent)
	if err != nil {
		return nil, err
	}
	n, ok := tree.Node(uuid)
	if uuid == "" || !ok {
		return nil, agenterr.InvalidArgument("parent %T of %q object is not persisted", parent, class.Name())
	}
	return n, nil
}

func nodeName(class *metadata.Class, object any, uuid string) (string, error) {
	f, ok := class.NodeNameField()
	if !ok {
		return uuid, nil
	}
	v, err := class.Get(object, f.Name)
	if err != nil {
		return "", err
	}
	if value.IsNull(v) || fmt.Sprint(v) == "" {
		return uuid, nil
	}
	return fmt.Sprint(v), nil
}

// properties returns the stored fields of object. Identifier, node name and
// parent live in the node itself.
func properties(class *metadata.Class, object any) (map[string]any, error) {
	props := make(map[string]any)
	for _, f := range class.Fields() {
		if f.ID || f.Parent || f.NodeName {
			continue
		}
		v, err := class.Get(object, f.Name)
		if err != nil {
			return nil, err
		}
		if value.IsNull(v) {
			continue
		}
		props[f.Name] = v
	}
	return props, nil
}

// record returns the queryable view of n for class: its properties plus the
// identifier and node name fields.
func record(class *metadata.Class, n *Node) map[string]any {
	props := make(map[string]any, len(n.Properties)+2)
	for k, v := range n.Properties {
		props[k] = v
	}
	if f, ok := class.SingleID(); ok {
		props[f.Name] = n.UUID
	}
	if f, ok := class.NodeNameField(); ok {
		props[f.Name] = n.Name
	}
	return props
}

// hydrate returns the object stored at n, creating it on first sight.
func (a *Agent) hydrate(n *Node) (any, error) {
	if obj, ok := a.objects[n.UUID]; ok {
		return obj, nil
	}
	class, ok := a.classes.Class(n.Type)
	if !ok {
		return nil, agenterr.InvalidArgument("node %s has unregistered type %q", n.Path(), n.Type)
	}

	obj := class.New()
	for name, v := range record(class, n) {
		if _, ok := class.Field(name); !ok {
			continue
		}
		if err := class.Set(obj, name, v); err != nil {
			return nil, err
		}
	}
	a.objects[n.UUID] = obj

	if f, ok := class.ParentField(); ok && n.Parent() != nil && n.Parent().Parent() != nil {
		parent, err := a.hydrate(n.Parent())
		if err != nil {
			return nil, err
		}
		if err := class.Set(obj, f.Name, parent); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

// Explain renders the statement Query would evaluate for q.
func (a *Agent) Explain(q *query.Query) (string, error) {
	stmt, err := CompileQuery(a.classes, a.caps, q)
	if err != nil {
		return "", err
	}
	return stmt.String(), nil
}

// Query evaluates q over the nodes of its type in document order, then
// sorts by the orderings and applies pagination.
func (a *Agent) Query(q *query.Query) (*agent.Cursor, error) {
	stmt, err := CompileQuery(a.classes, a.caps, q)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("query", "agent", Name, "statement", stmt.String())

	type match struct {
		node  *Node
		props map[string]any
	}
	var matches []match
	a.tree.Walk(func(n *Node) bool {
		if n.Type != stmt.Class.Name() {
			return true
		}
		props := record(stmt.Class, n)
		if stmt.Match(props) {
			matches = append(matches, match{node: n, props: props})
		}
		return true
	})

	if len(stmt.Orderings) > 0 {
		sort.SliceStable(matches, func(i, j int) bool {
			for _, o := range stmt.Orderings {
				vi, vj := matches[i].props[o.Field], matches[j].props[o.Field]
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
	}
	matches = compile.Paginate(matches, q)

	i := 0
	next := func() (any, bool, error) {
		if i >= len(matches) {
			return nil, false, nil
		}
		obj, err := a.hydrate(matches[i].node)
		if err != nil {
			return nil, false, err
		}
		i++
		return obj, true, nil
	}
	return agent.NewCursor(next, nil), nil
}

func (a *Agent) QueryCount(q *query.Query) (int, error) {
	return 0, agenterr.CapabilityViolation(Name, "query count")
}

// Identifier returns the node UUID of object. Objects that were never
// flushed have none.
func (a *Agent) Identifier(object any) (any, error) {
	uuid, err := a.uuidOf(object)
	if err != nil {
		return nil, err
	}
	if uuid == "" {
		return nil, agenterr.InvalidArgument("%T has no node yet, flush it first", object)
	}
	return uuid, nil
}

func (a *Agent) CanonicalType(entityType string) string {
	return a.classes.Canonical(entityType)
}

// SetParent assigns parent to the parent field of object. The node moves on
// the next flush.
func (a *Agent) SetParent(object, parent any) error {
	if !a.caps.CanSetParent() {
		return agenterr.CapabilityViolation(Name, "set parent")
	}
	class, err := a.classOf(object)
	if err != nil {
		return err
	}
	f, ok := class.ParentField()
	if !ok {
		return agenterr.NoParentMapping(Name, class.Name())
	}
	if _, err := a.classOf(parent); err != nil {
		return err
	}
	if !reflect.TypeOf(parent).AssignableTo(f.Type) {
		return agenterr.InvalidArgument("parent field %q of type %q cannot hold %T", f.Name, class.Name(), parent)
	}
	return class.Set(object, f.Name, parent)
}

func (a *Agent) class(entityType string) (*metadata.Class, error) {
	class, ok := a.classes.Class(entityType)
	if !ok {
		return nil, agenterr.InvalidArgument("no class registered for type %q", entityType)
	}
	return class, nil
}

// classOf returns the class of object. Document classes need a single
// string identifier to hold the node UUID.
func (a *Agent) classOf(object any) (*metadata.Class, error) {
	class, ok := a.classes.ClassOf(object)
	if !ok {
		return nil, agenterr.InvalidArgument("no class registered for object of type %T", object)
	}
	if !class.Owns(object) {
		return nil, agenterr.InvalidArgument("object of type %T must be passed by pointer", object)
	}
	id, ok := class.SingleID()
	if !ok {
		return nil, agenterr.CompositeIdentifier(Name, class.Name(), class.IDFieldNames())
	}
	if id.Type.Kind() != reflect.String {
		return nil, agenterr.InvalidArgument("identifier field %q of type %q must be a string to hold a UUID", id.Name, class.Name())
	}
	return class, nil
}

func (a *Agent) uuidOf(object any) (string, error) {
	class, err := a.classOf(object)
	if err != nil {
		return "", err
	}
	v, err := class.Identifier(Name, object)
	if err != nil {
		return "", err
	}
	if value.IsNull(v) {
		return "", nil
	}
	return fmt.Sprint(v), nil
}
