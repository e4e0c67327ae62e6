// Package metadata maps Go structs to logical entity types.
//
// Every backend needs the same facts about an entity: its logical name, its
// identifier field(s), which field holds the parent in a hierarchy, and how
// to read and write fields by name. They are read once from struct tags:
//
//	type Page struct {
//	    ID     int64  `agent:"id,id"`
//	    Title  string `agent:"title"`
//	    Parent any    `agent:"parent,parent"`
//	    Name   string `agent:"name,nodename"`
//	    PageID int64  `agent:"page_id,ref=page"`
//	    Cache  string `agent:"-"`
//	}
//
// Untagged exported fields are mapped under their Go name with a lowered
// first letter ("Title" → "title", "ID" → "id"). A field named "id" is the
// identifier when no field carries the id option.
package metadata

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/roach88/objectagent/internal/agenterr"
)

// TagName is the struct tag key read by Register.
const TagName = "agent"

// Field describes one mapped struct field.
type Field struct {
	Name     string
	GoName   string
	Type     reflect.Type
	ID       bool
	Parent   bool
	NodeName bool
	Ref      string

	index []int
}

// Class is the metadata of one entity type.
type Class struct {
	name    string
	table   string
	typ     reflect.Type
	aliases []string
	fields  []Field
	byName  map[string]int
}

// ClassOption configures Register.
type ClassOption func(*Class)

// WithTable sets the storage name (table, collection or node type) used by
// backends. Defaults to the entity name.
func WithTable(table string) ClassOption {
	return func(c *Class) { c.table = table }
}

// WithAliases registers surrogate names that resolve to this class, such as
// proxy or legacy type identifiers.
func WithAliases(aliases ...string) ClassOption {
	return func(c *Class) { c.aliases = append(c.aliases, aliases...) }
}

// Name returns the logical entity type.
func (c *Class) Name() string { return c.name }

// Table returns the storage name.
func (c *Class) Table() string { return c.table }

// Type returns the struct type (never a pointer).
func (c *Class) Type() reflect.Type { return c.typ }

// Fields returns the mapped fields in declaration order.
func (c *Class) Fields() []Field { return append([]Field(nil), c.fields...) }

// Field looks up a field by logical name.
func (c *Class) Field(name string) (Field, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Field{}, false
	}
	return c.fields[i], true
}

// IDFields returns the identifier field(s).
func (c *Class) IDFields() []Field {
	var ids []Field
	for _, f := range c.fields {
		if f.ID {
			ids = append(ids, f)
		}
	}
	return ids
}

// IDFieldNames returns the names of the identifier field(s).
func (c *Class) IDFieldNames() []string {
	var names []string
	for _, f := range c.IDFields() {
		names = append(names, f.Name)
	}
	return names
}

// SingleID returns the identifier field when the class has exactly one.
func (c *Class) SingleID() (Field, bool) {
	ids := c.IDFields()
	if len(ids) != 1 {
		return Field{}, false
	}
	return ids[0], true
}

// ParentField returns the parent-mapped field, if any.
func (c *Class) ParentField() (Field, bool) {
	for _, f := range c.fields {
		if f.Parent {
			return f, true
		}
	}
	return Field{}, false
}

// NodeNameField returns the nodename-mapped field, if any.
func (c *Class) NodeNameField() (Field, bool) {
	for _, f := range c.fields {
		if f.NodeName {
			return f, true
		}
	}
	return Field{}, false
}

// Relation returns the field referencing entity type target, if any.
func (c *Class) Relation(target string) (Field, bool) {
	for _, f := range c.fields {
		if f.Ref == target {
			return f, true
		}
	}
	return Field{}, false
}

// New returns a pointer to a new zero value of the class type.
func (c *Class) New() any {
	return reflect.New(c.typ).Interface()
}

// Owns reports whether obj is a pointer to the class type.
func (c *Class) Owns(obj any) bool {
	rv := reflect.ValueOf(obj)
	return rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Type() == c.typ
}

func (c *Class) structValue(obj any) (reflect.Value, error) {
	rv := reflect.ValueOf(obj)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Type() != c.typ {
		return reflect.Value{}, agenterr.InvalidArgument("object of type %T is not a %q", obj, c.name)
	}
	return rv, nil
}

// Get reads field name from obj.
func (c *Class) Get(obj any, name string) (any, error) {
	f, ok := c.Field(name)
	if !ok {
		return nil, agenterr.InvalidArgument("type %q has no field %q", c.name, name)
	}
	rv, err := c.structValue(obj)
	if err != nil {
		return nil, err
	}
	fv := rv.FieldByIndex(f.index)
	if fv.Kind() == reflect.Pointer || fv.Kind() == reflect.Interface {
		if fv.IsNil() {
			return nil, nil
		}
		if fv.Kind() == reflect.Pointer && f.Ref == "" && !f.Parent {
			return fv.Elem().Interface(), nil
		}
	}
	return fv.Interface(), nil
}

// Set writes value into field name of obj, which must be a pointer.
func (c *Class) Set(obj any, name string, value any) error {
	f, ok := c.Field(name)
	if !ok {
		return agenterr.InvalidArgument("type %q has no field %q", c.name, name)
	}
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Type() != c.typ {
		return agenterr.InvalidArgument("cannot set %q on %T, expected *%s", name, obj, c.typ.Name())
	}
	fv := rv.Elem().FieldByIndex(f.index)
	converted, err := Convert(value, fv.Type())
	if err != nil {
		return fmt.Errorf("set %s.%s: %w", c.name, name, err)
	}
	fv.Set(converted)
	return nil
}

// Values returns every mapped field value of obj keyed by field name.
func (c *Class) Values(obj any) (map[string]any, error) {
	values := make(map[string]any, len(c.fields))
	for _, f := range c.fields {
		v, err := c.Get(obj, f.Name)
		if err != nil {
			return nil, err
		}
		values[f.Name] = v
	}
	return values, nil
}

// Identifier returns the single identifier value of obj. Classes with a
// composite or missing key fail with an unsupported-identifier error naming
// implementation.
func (c *Class) Identifier(implementation string, obj any) (any, error) {
	id, ok := c.SingleID()
	if !ok {
		return nil, agenterr.CompositeIdentifier(implementation, c.name, c.IDFieldNames())
	}
	return c.Get(obj, id.Name)
}

// Registry holds the classes known to an application. Register during
// startup; lookups are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	classes []*Class
	byName  map[string]*Class
	byType  map[reflect.Type]*Class
	aliases map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]*Class),
		byType:  make(map[reflect.Type]*Class),
		aliases: make(map[string]string),
	}
}

// Register maps the struct type of prototype (a struct or pointer to struct)
// to the logical entity type name.
func (r *Registry) Register(name string, prototype any, opts ...ClassOption) (*Class, error) {
	if name == "" {
		return nil, agenterr.InvalidArgument("entity type name must not be empty")
	}
	typ := reflect.TypeOf(prototype)
	for typ != nil && typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ == nil || typ.Kind() != reflect.Struct {
		return nil, agenterr.InvalidArgument("entity type %q must be a struct, got %T", name, prototype)
	}

	c := &Class{name: name, table: name, typ: typ, byName: make(map[string]int)}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.readFields(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return nil, agenterr.InvalidArgument("entity type %q is already registered", name)
	}
	if other, exists := r.byType[typ]; exists {
		return nil, agenterr.InvalidArgument("struct %s is already registered as %q", typ, other.name)
	}
	r.classes = append(r.classes, c)
	r.byName[name] = c
	r.byType[typ] = c
	for _, alias := range c.aliases {
		r.aliases[alias] = name
	}
	return c, nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, prototype any, opts ...ClassOption) *Class {
	c, err := r.Register(name, prototype, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Class looks up a class by entity type name or alias.
func (r *Registry) Class(name string) (*Class, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if canonical, ok := r.aliases[name]; ok {
		name = canonical
	}
	c, ok := r.byName[name]
	return c, ok
}

// ClassOf looks up the class of obj.
func (r *Registry) ClassOf(obj any) (*Class, bool) {
	typ := reflect.TypeOf(obj)
	for typ != nil && typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byType[typ]
	return c, ok
}

// Canonical resolves an alias to its entity type name. Unknown names are
// returned unchanged.
func (r *Registry) Canonical(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if canonical, ok := r.aliases[name]; ok {
		return canonical
	}
	return name
}

// Classes returns the registered classes in registration order.
func (r *Registry) Classes() []*Class {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Class(nil), r.classes...)
}

func (c *Class) readFields() error {
	for i := 0; i < c.typ.NumField(); i++ {
		sf := c.typ.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag, hasTag := sf.Tag.Lookup(TagName)
		if tag == "-" {
			continue
		}

		f := Field{GoName: sf.Name, Type: sf.Type, index: sf.Index}
		parts := strings.Split(tag, ",")
		f.Name = parts[0]
		if !hasTag || f.Name == "" {
			f.Name = lowerFirst(sf.Name)
		}
		for _, opt := range parts[1:] {
			switch {
			case opt == "id":
				f.ID = true
			case opt == "parent":
				f.Parent = true
			case opt == "nodename":
				f.NodeName = true
			case strings.HasPrefix(opt, "ref="):
				f.Ref = strings.TrimPrefix(opt, "ref=")
			case opt == "":
			default:
				return agenterr.InvalidArgument("unknown %s tag option %q on %s.%s", TagName, opt, c.typ.Name(), sf.Name)
			}
		}

		if _, dup := c.byName[f.Name]; dup {
			return agenterr.InvalidArgument("duplicate field %q on %s", f.Name, c.typ.Name())
		}
		c.byName[f.Name] = len(c.fields)
		c.fields = append(c.fields, f)
	}

	if len(c.IDFields()) == 0 {
		if i, ok := c.byName["id"]; ok {
			c.fields[i].ID = true
		}
	}
	return nil
}

func lowerFirst(s string) string {
	if s == strings.ToUpper(s) {
		return strings.ToLower(s)
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
