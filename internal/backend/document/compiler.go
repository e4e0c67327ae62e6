package document

import (
	"fmt"
	"strings"

	"github.com/roach88/objectagent/internal/agenterr"
	"github.com/roach88/objectagent/internal/capability"
	"github.com/roach88/objectagent/internal/compile"
	"github.com/roach88/objectagent/internal/metadata"
	"github.com/roach88/objectagent/internal/query"
)

// SourceAlias is the selector name of the queried node type.
const SourceAlias = "a"

// compiler turns an expression into a constraint tree.
//
// IN becomes an OR of equalities and NOT IN its negation. Null checks test
// property existence: null is NOT(exists). Empty composites follow the
// boolean identities.
type compiler struct {
	class *metadata.Class
	caps  capability.Capabilities
}

var _ compile.Visitor[Constraint] = compiler{}

// Compile compiles expr into a constraint over nodes of class.
func Compile(class *metadata.Class, caps capability.Capabilities, expr query.Expression) (Constraint, error) {
	return compile.Walk[Constraint](compiler{class: class, caps: caps}, expr)
}

func (c compiler) Comparison(cmp query.Comparison) (Constraint, error) {
	if !c.caps.Supports(cmp.Comparator()) {
		return nil, compile.Unsupported(Name, cmp.Comparator())
	}
	prop, err := property(c.class, cmp.Field())
	if err != nil {
		return nil, err
	}
	compare := func(op Operator, v any) Constraint {
		return Comparison{Selector: SourceAlias, Property: prop, Operator: op, Literal: v}
	}

	switch cmp.Comparator() {
	case query.Equals:
		return compare(OpEqual, cmp.Value()), nil
	case query.NotEquals:
		return compare(OpNotEqual, cmp.Value()), nil
	case query.LessThan:
		return compare(OpLessThan, cmp.Value()), nil
	case query.LessThanOrEqual:
		return compare(OpLessThanOrEqual, cmp.Value()), nil
	case query.GreaterThan:
		return compare(OpGreaterThan, cmp.Value()), nil
	case query.GreaterThanOrEqual:
		return compare(OpGreaterThanOrEqual, cmp.Value()), nil
	case query.In, query.NotIn:
		values := cmp.Values()
		or := make(Or, len(values))
		for i, v := range values {
			or[i] = compare(OpEqual, v)
		}
		if cmp.Comparator() == query.In {
			return or, nil
		}
		if len(values) == 0 {
			return And{}, nil
		}
		return present(prop, Not{Constraint: or}), nil
	case query.Contains:
		return Like{Selector: SourceAlias, Property: prop, Substring: fmt.Sprint(cmp.Value())}, nil
	case query.NotContains:
		return present(prop, Not{Constraint: Like{Selector: SourceAlias, Property: prop, Substring: fmt.Sprint(cmp.Value())}}), nil
	case query.IsNull:
		return Not{Constraint: Exists{Selector: SourceAlias, Property: prop}}, nil
	case query.IsNotNull:
		return Exists{Selector: SourceAlias, Property: prop}, nil
	default:
		compile.UnknownComparator(cmp.Comparator())
		return nil, nil
	}
}

// present restricts a negated constraint to nodes that have prop, so it
// treats an absent property the way OpNotEqual does.
func present(prop string, negated Not) Constraint {
	return And{Exists{Selector: SourceAlias, Property: prop}, negated}
}

func (c compiler) Composite(comp query.Composite, children []Constraint) (Constraint, error) {
	if comp.Type() == query.OrType {
		return Or(children), nil
	}
	return And(children), nil
}

// property resolves a field to the property it is stored under. Parent
// fields are structural and cannot be queried.
func property(class *metadata.Class, qualified string) (string, error) {
	alias, name := compile.SplitField(SourceAlias, qualified)
	if alias != SourceAlias {
		return "", agenterr.InvalidArgument("unknown alias %q in field %q, the %s agent only knows %q",
			alias, qualified, Name, SourceAlias)
	}
	f, ok := class.Field(name)
	if !ok {
		return "", agenterr.InvalidArgument("type %q has no field %q", class.Name(), name)
	}
	if f.Parent {
		return "", agenterr.InvalidArgument("field %q of type %q is the parent mapping and cannot be queried", name, class.Name())
	}
	return name, nil
}

// Statement is a compiled document query.
type Statement struct {
	Class *metadata.Class

	// Constraint is nil when the query has no criteria.
	Constraint Constraint

	Orderings []query.Ordering
	Query     *query.Query
}

// Match reports whether a node with props satisfies the statement.
func (s Statement) Match(props map[string]any) bool {
	return s.Constraint == nil || s.Constraint.Match(props)
}

// String renders the statement in JCR-SQL2 syntax.
func (s Statement) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT * FROM [%s] AS %s", s.Class.Table(), SourceAlias)
	if s.Constraint != nil {
		b.WriteString(" WHERE " + s.Constraint.String())
	}
	if len(s.Orderings) > 0 {
		parts := make([]string, len(s.Orderings))
		for i, o := range s.Orderings {
			parts[i] = propertyRef(SourceAlias, o.Field) + " " + strings.ToUpper(string(o.Direction))
		}
		b.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}
	if limit, ok := s.Query.MaxResults(); ok {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	if first, ok := s.Query.FirstResult(); ok {
		fmt.Fprintf(&b, " OFFSET %d", first)
	}
	return b.String()
}

// CompileQuery validates q against caps and compiles it.
func CompileQuery(classes *metadata.Registry, caps capability.Capabilities, q *query.Query) (Statement, error) {
	if err := compile.RejectUnsupported(Name, q, caps.CanQuerySelect(), caps.CanQueryJoin(), caps.CanQueryHaving()); err != nil {
		return Statement{}, err
	}
	class, ok := classes.Class(q.EntityType())
	if !ok {
		return Statement{}, agenterr.InvalidArgument("no class registered for type %q", q.EntityType())
	}

	stmt := Statement{Class: class, Query: q}
	if q.HasCriteria() {
		constraint, err := Compile(class, caps, q.Criteria())
		if err != nil {
			return Statement{}, err
		}
		stmt.Constraint = constraint
	}
	for _, o := range q.Orderings() {
		prop, err := property(class, o.Field)
		if err != nil {
			return Statement{}, err
		}
		stmt.Orderings = append(stmt.Orderings, query.Ordering{Field: prop, Direction: o.Direction})
	}
	return stmt, nil
}
