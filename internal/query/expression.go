package query

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/objectagent/internal/agenterr"
)

// Comparator identifies the operator of a Comparison.
type Comparator string

const (
	Equals             Comparator = "eq"
	NotEquals          Comparator = "neq"
	LessThan           Comparator = "lt"
	LessThanOrEqual    Comparator = "lte"
	GreaterThan        Comparator = "gt"
	GreaterThanOrEqual Comparator = "gte"
	In                 Comparator = "in"
	NotIn              Comparator = "nin"
	Contains           Comparator = "contains"
	NotContains        Comparator = "not_contains"
	IsNull             Comparator = "null"
	IsNotNull          Comparator = "not_null"
)

// Comparators lists every valid comparator in declaration order.
var Comparators = []Comparator{
	Equals,
	NotEquals,
	LessThan,
	LessThanOrEqual,
	GreaterThan,
	GreaterThanOrEqual,
	In,
	NotIn,
	Contains,
	NotContains,
	IsNull,
	IsNotNull,
}

// Valid reports whether c belongs to the enumerated comparator set.
func (c Comparator) Valid() bool {
	for _, known := range Comparators {
		if c == known {
			return true
		}
	}
	return false
}

// IsSet reports whether c takes a sequence value (in / nin).
func (c Comparator) IsSet() bool {
	return c == In || c == NotIn
}

// IsNullCheck reports whether c ignores its value (null / not_null).
func (c Comparator) IsNullCheck() bool {
	return c == IsNull || c == IsNotNull
}

// ParseComparator converts a string to a Comparator.
func ParseComparator(s string) (Comparator, error) {
	c := Comparator(s)
	if !c.Valid() {
		return "", unknownComparator(s)
	}
	return c, nil
}

func unknownComparator(s string) error {
	names := make([]string, len(Comparators))
	for i, c := range Comparators {
		names[i] = string(c)
	}
	return agenterr.InvalidArgument(`unknown comparator %q, known comparators: "%s"`, s, strings.Join(names, `", "`))
}

// Expression is a node of the criteria AST.
//
// This is a sealed interface: only Comparison and Composite implement it, so
// compilers can switch over the two variants exhaustively.
type Expression interface {
	expressionNode()
}

// Comparison is a single field/operator/value predicate.
type Comparison struct {
	comparator Comparator
	field      string
	value      any
}

func (Comparison) expressionNode() {}

// Compare creates a Comparison.
//
// The comparator must be in the enumerated set. In and NotIn require a slice
// or array value, which is copied. IsNull and IsNotNull discard the value.
func Compare(comparator Comparator, field string, value any) (Comparison, error) {
	if !comparator.Valid() {
		return Comparison{}, unknownComparator(string(comparator))
	}
	if field == "" {
		return Comparison{}, agenterr.InvalidArgument("comparison %q requires a field", comparator)
	}

	switch {
	case comparator.IsSet():
		values, ok := toSequence(value)
		if !ok {
			return Comparison{}, agenterr.InvalidArgument(
				"comparison %q on field %q requires a sequence value, got %T", comparator, field, value)
		}
		value = values
	case comparator.IsNullCheck():
		value = nil
	}

	return Comparison{comparator: comparator, field: field, value: value}, nil
}

// MustCompare is like Compare but panics on error. Intended for literals.
func MustCompare(comparator Comparator, field string, value any) Comparison {
	c, err := Compare(comparator, field, value)
	if err != nil {
		panic(err)
	}
	return c
}

// Comparator returns the comparison operator.
func (c Comparison) Comparator() Comparator { return c.comparator }

// Field returns the (possibly dotted) field name.
func (c Comparison) Field() string { return c.field }

// Value returns the comparison value. For In and NotIn it is a fresh []any.
func (c Comparison) Value() any {
	if values, ok := c.value.([]any); ok && c.comparator.IsSet() {
		return append([]any(nil), values...)
	}
	return c.value
}

// Values returns the sequence value of an In or NotIn comparison, nil otherwise.
func (c Comparison) Values() []any {
	if !c.comparator.IsSet() {
		return nil
	}
	values, _ := c.value.([]any)
	return append([]any(nil), values...)
}

// String renders the comparison for diagnostics.
func (c Comparison) String() string {
	if c.comparator.IsNullCheck() {
		return fmt.Sprintf("%s(%s)", c.comparator, c.field)
	}
	return fmt.Sprintf("%s(%s, %v)", c.comparator, c.field, c.value)
}

func toSequence(value any) ([]any, bool) {
	if value == nil {
		return nil, false
	}
	if values, ok := value.([]any); ok {
		return append([]any{}, values...), true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		// []byte is a scalar value, not a set
		return nil, false
	}
	values := make([]any, rv.Len())
	for i := range values {
		values[i] = rv.Index(i).Interface()
	}
	return values, true
}

// CompositeType is the boolean combinator of a Composite.
type CompositeType string

const (
	AndType CompositeType = "and"
	OrType  CompositeType = "or"
)

// Valid reports whether t is AND or OR.
func (t CompositeType) Valid() bool {
	return t == AndType || t == OrType
}

// Composite groups child expressions with AND or OR.
//
// A Composite with zero children is legal. Every compiler in this module
// treats it with its boolean identity: AND() is true, OR() is false.
type Composite struct {
	typ      CompositeType
	children []Expression
}

func (Composite) expressionNode() {}

// NewComposite creates a Composite. Children keep their declared order.
func NewComposite(typ CompositeType, children ...Expression) (Composite, error) {
	if !typ.Valid() {
		return Composite{}, agenterr.InvalidArgument(`invalid composite type %q, must be one of "and", "or"`, typ)
	}
	for i, child := range children {
		if child == nil {
			return Composite{}, agenterr.InvalidArgument("composite child %d is not an expression", i)
		}
	}
	return Composite{typ: typ, children: append([]Expression(nil), children...)}, nil
}

// And creates an AND composite. It panics if a child is nil.
func And(children ...Expression) Composite {
	return mustComposite(AndType, children)
}

// Or creates an OR composite. It panics if a child is nil.
func Or(children ...Expression) Composite {
	return mustComposite(OrType, children)
}

func mustComposite(typ CompositeType, children []Expression) Composite {
	c, err := NewComposite(typ, children...)
	if err != nil {
		panic(err)
	}
	return c
}

// Type returns AND or OR.
func (c Composite) Type() CompositeType { return c.typ }

// Children returns a copy of the child expressions in declared order.
func (c Composite) Children() []Expression {
	return append([]Expression(nil), c.children...)
}

// Len returns the number of children.
func (c Composite) Len() int { return len(c.children) }
