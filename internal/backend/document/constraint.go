package document

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/objectagent/internal/value"
)

// Constraint is a node of a compiled constraint tree. Literals are inlined;
// the tree carries no parameters.
type Constraint interface {
	// Match reports whether a node with props satisfies the constraint.
	Match(props map[string]any) bool

	// String renders the constraint in JCR-SQL2 syntax.
	String() string
}

// Operator is a property comparison operator.
type Operator string

const (
	OpEqual              Operator = "="
	OpNotEqual           Operator = "<>"
	OpLessThan           Operator = "<"
	OpLessThanOrEqual    Operator = "<="
	OpGreaterThan        Operator = ">"
	OpGreaterThanOrEqual Operator = ">="
)

// Comparison compares a property with a literal. An absent or null property
// never matches, not even OpNotEqual. The compiler gives NOT IN and NOT LIKE
// the same rule; an empty NOT IN still matches every node.
type Comparison struct {
	Selector string
	Property string
	Operator Operator
	Literal  any
}

func (c Comparison) Match(props map[string]any) bool {
	got, ok := props[c.Property]
	if !ok || value.IsNull(got) {
		return false
	}
	switch c.Operator {
	case OpEqual:
		return value.Equal(got, c.Literal)
	case OpNotEqual:
		return !value.Equal(got, c.Literal)
	}
	r, ok := value.Compare(got, c.Literal)
	if !ok {
		return false
	}
	switch c.Operator {
	case OpLessThan:
		return r < 0
	case OpLessThanOrEqual:
		return r <= 0
	case OpGreaterThan:
		return r > 0
	case OpGreaterThanOrEqual:
		return r >= 0
	}
	return false
}

func (c Comparison) String() string {
	return fmt.Sprintf("%s %s %s", propertyRef(c.Selector, c.Property), c.Operator, literal(c.Literal))
}

// Like matches properties containing Substring.
type Like struct {
	Selector  string
	Property  string
	Substring string
}

func (l Like) Match(props map[string]any) bool {
	got, ok := props[l.Property]
	return ok && value.Contains(got, l.Substring)
}

func (l Like) String() string {
	return fmt.Sprintf("%s LIKE %s", propertyRef(l.Selector, l.Property), literal("%"+likeEscaper.Replace(l.Substring)+"%"))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Exists matches nodes that have the property.
type Exists struct {
	Selector string
	Property string
}

func (e Exists) Match(props map[string]any) bool {
	v, ok := props[e.Property]
	return ok && !value.IsNull(v)
}

func (e Exists) String() string {
	return propertyRef(e.Selector, e.Property) + " IS NOT NULL"
}

// Not negates its constraint.
type Not struct {
	Constraint Constraint
}

func (n Not) Match(props map[string]any) bool { return !n.Constraint.Match(props) }

func (n Not) String() string {
	s := n.Constraint.String()
	switch c := n.Constraint.(type) {
	case And:
		if len(c) > 1 {
			return "NOT " + s
		}
	case Or:
		if len(c) > 1 {
			return "NOT " + s
		}
	}
	return "NOT (" + s + ")"
}

// And matches when every constraint matches; an empty And matches all.
type And []Constraint

func (a And) Match(props map[string]any) bool {
	for _, c := range a {
		if !c.Match(props) {
			return false
		}
	}
	return true
}

func (a And) String() string { return join(a, " AND ", "TRUE") }

// Or matches when any constraint matches; an empty Or matches none.
type Or []Constraint

func (o Or) Match(props map[string]any) bool {
	for _, c := range o {
		if c.Match(props) {
			return true
		}
	}
	return false
}

func (o Or) String() string { return join(o, " OR ", "FALSE") }

func join(cs []Constraint, sep, empty string) string {
	switch len(cs) {
	case 0:
		return empty
	case 1:
		return cs[0].String()
	}
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func propertyRef(selector, property string) string {
	return selector + ".[" + property + "]"
}

func literal(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case time.Time:
		return "CAST('" + v.Format(time.RFC3339Nano) + "' AS DATE)"
	case fmt.Stringer:
		return literal(v.String())
	}
	return fmt.Sprint(v)
}
