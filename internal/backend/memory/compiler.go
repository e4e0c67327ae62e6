package memory

import (
	"github.com/roach88/objectagent/internal/agenterr"
	"github.com/roach88/objectagent/internal/capability"
	"github.com/roach88/objectagent/internal/compile"
	"github.com/roach88/objectagent/internal/metadata"
	"github.com/roach88/objectagent/internal/query"
	"github.com/roach88/objectagent/internal/value"
)

// SourceAlias is the alias of the queried collection. Collections cannot be
// joined, so it is the only alias a field may carry.
const SourceAlias = "a"

// Predicate reports whether an object matches compiled criteria.
type Predicate func(obj any) bool

// compiler turns an expression into a Predicate.
//
// Empty composites follow the boolean identities: AND() matches everything,
// OR() matches nothing.
type compiler struct {
	class *metadata.Class
	caps  capability.Capabilities
}

var _ compile.Visitor[Predicate] = compiler{}

// Compile compiles expr into a Predicate over objects of class.
func Compile(class *metadata.Class, caps capability.Capabilities, expr query.Expression) (Predicate, error) {
	return compile.Walk[Predicate](compiler{class: class, caps: caps}, expr)
}

func (c compiler) Comparison(cmp query.Comparison) (Predicate, error) {
	if !c.caps.Supports(cmp.Comparator()) {
		return nil, compile.Unsupported(Name, cmp.Comparator())
	}
	field, err := resolveField(c.class, cmp.Field())
	if err != nil {
		return nil, err
	}
	get := func(obj any) any {
		v, _ := c.class.Get(obj, field)
		return v
	}
	want := cmp.Value()

	switch cmp.Comparator() {
	case query.Equals:
		return func(obj any) bool { return value.Equal(get(obj), want) }, nil
	case query.NotEquals:
		return func(obj any) bool { return !value.Equal(get(obj), want) }, nil
	case query.LessThan:
		return ordered(get, want, func(r int) bool { return r < 0 }), nil
	case query.LessThanOrEqual:
		return ordered(get, want, func(r int) bool { return r <= 0 }), nil
	case query.GreaterThan:
		return ordered(get, want, func(r int) bool { return r > 0 }), nil
	case query.GreaterThanOrEqual:
		return ordered(get, want, func(r int) bool { return r >= 0 }), nil
	case query.In:
		set := cmp.Values()
		return func(obj any) bool { return value.In(get(obj), set) }, nil
	case query.NotIn:
		set := cmp.Values()
		return func(obj any) bool { return !value.In(get(obj), set) }, nil
	case query.Contains:
		return func(obj any) bool { return value.Contains(get(obj), want) }, nil
	case query.IsNull:
		return func(obj any) bool { return value.IsNull(get(obj)) }, nil
	case query.NotContains, query.IsNotNull:
		return nil, compile.Unsupported(Name, cmp.Comparator())
	default:
		compile.UnknownComparator(cmp.Comparator())
		return nil, nil
	}
}

func (c compiler) Composite(comp query.Composite, children []Predicate) (Predicate, error) {
	if comp.Type() == query.OrType {
		return func(obj any) bool {
			for _, p := range children {
				if p(obj) {
					return true
				}
			}
			return false
		}, nil
	}
	return func(obj any) bool {
		for _, p := range children {
			if !p(obj) {
				return false
			}
		}
		return true
	}, nil
}

// resolveField maps a possibly qualified field to a mapped field name.
func resolveField(class *metadata.Class, qualified string) (string, error) {
	alias, name := compile.SplitField(SourceAlias, qualified)
	if alias != SourceAlias {
		return "", agenterr.InvalidArgument("unknown alias %q in field %q, the %s agent only knows %q",
			alias, qualified, Name, SourceAlias)
	}
	if _, ok := class.Field(name); !ok {
		return "", agenterr.InvalidArgument("type %q has no field %q", class.Name(), name)
	}
	return name, nil
}

func ordered(get func(any) any, want any, accept func(int) bool) Predicate {
	return func(obj any) bool {
		got := get(obj)
		if value.IsNull(got) {
			return false
		}
		r, ok := value.Compare(got, want)
		return ok && accept(r)
	}
}
