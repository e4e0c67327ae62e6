package query

import "github.com/roach88/objectagent/internal/agenterr"

// JoinType is INNER or LEFT.
type JoinType string

const (
	InnerJoin JoinType = "INNER"
	LeftJoin  JoinType = "LEFT"
)

// Valid reports whether t is a known join type.
func (t JoinType) Valid() bool {
	return t == InnerJoin || t == LeftJoin
}

// Join describes a join against a relation or another entity type.
//
// Target is either a relation path ("a.page") or an entity type name. When
// Condition is set it becomes (part of) the join predicate.
type Join struct {
	typ       JoinType
	target    string
	alias     string
	fromAlias string
	condition Expression
}

// JoinOption configures optional parts of a Join.
type JoinOption func(*Join)

// From sets the alias the join originates from.
func From(alias string) JoinOption {
	return func(j *Join) { j.fromAlias = alias }
}

// On sets the join condition.
func On(condition Expression) JoinOption {
	return func(j *Join) { j.condition = condition }
}

// NewJoin creates a Join.
func NewJoin(typ JoinType, target, alias string, opts ...JoinOption) (Join, error) {
	if !typ.Valid() {
		return Join{}, agenterr.InvalidArgument(`unknown join type %q, known joins: "INNER", "LEFT"`, typ)
	}
	if target == "" {
		return Join{}, agenterr.InvalidArgument("join requires a target")
	}
	if alias == "" {
		return Join{}, agenterr.InvalidArgument("join on %q requires an alias", target)
	}
	j := Join{typ: typ, target: target, alias: alias}
	for _, opt := range opts {
		opt(&j)
	}
	return j, nil
}

// MustJoin is like NewJoin but panics on error.
func MustJoin(typ JoinType, target, alias string, opts ...JoinOption) Join {
	j, err := NewJoin(typ, target, alias, opts...)
	if err != nil {
		panic(err)
	}
	return j
}

func (j Join) Type() JoinType        { return j.typ }
func (j Join) Target() string        { return j.target }
func (j Join) Alias() string         { return j.alias }
func (j Join) FromAlias() string     { return j.fromAlias }
func (j Join) Condition() Expression { return j.condition }
func (j Join) HasCondition() bool    { return j.condition != nil }
