// Package compile defines the protocol every backend compiler follows to turn
// a query.Expression into a backend-native filter.
//
// A backend implements Visitor for its native representation T and calls
// Walk. Walk dispatches on the sealed Expression variants, compiles composite
// children depth-first in declared order, and hands the compiled children to
// Visitor.Composite so the native output keeps the caller's ordering.
package compile

import (
	"fmt"
	"strings"

	"github.com/roach88/objectagent/internal/agenterr"
	"github.com/roach88/objectagent/internal/query"
)

// Separator marks a field that already names a source alias.
const Separator = "."

// Visitor compiles expression nodes into a native representation T.
type Visitor[T any] interface {
	// Comparison compiles a single predicate.
	Comparison(c query.Comparison) (T, error)

	// Composite combines already compiled children, which are passed in the
	// composite's declared order. children is empty for an empty composite.
	Composite(c query.Composite, children []T) (T, error)
}

// Walk compiles expr with v.
func Walk[T any](v Visitor[T], expr query.Expression) (T, error) {
	switch e := expr.(type) {
	case query.Comparison:
		return v.Comparison(e)
	case query.Composite:
		children := make([]T, 0, e.Len())
		for _, child := range e.Children() {
			compiled, err := Walk(v, child)
			if err != nil {
				var zero T
				return zero, err
			}
			children = append(children, compiled)
		}
		return v.Composite(e, children)
	default:
		// The interface is sealed; reaching this is an AST construction bug.
		panic(fmt.Sprintf("compile: unknown expression %T", expr))
	}
}

// UnknownComparator panics for a comparator outside the enumerated set.
// Backends call it from the default branch of their comparator switch.
func UnknownComparator(c query.Comparator) {
	panic(fmt.Sprintf("compile: unknown comparator %q", c))
}

// Unsupported returns the capability violation for a comparator the backend
// cannot express.
func Unsupported(backend string, c query.Comparator) error {
	return agenterr.ComparatorNotSupported(backend, string(c))
}

// QualifyField prefixes field with alias unless it already contains the
// separator, in which case it designates a foreign alias and is returned as-is.
func QualifyField(alias, field string) string {
	if strings.Contains(field, Separator) {
		return field
	}
	return alias + Separator + field
}

// SplitField splits a qualified field into alias and name. An unqualified
// field yields defaultAlias.
func SplitField(defaultAlias, field string) (alias, name string) {
	if i := strings.Index(field, Separator); i >= 0 {
		return field[:i], field[i+len(Separator):]
	}
	return defaultAlias, field
}
