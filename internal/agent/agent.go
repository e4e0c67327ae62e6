package agent

import (
	"github.com/roach88/objectagent/internal/capability"
	"github.com/roach88/objectagent/internal/query"
)

// Agent is the persistence façade every backend implements.
//
// All operations run to completion before returning. An empty entityType
// argument means "not given"; backends whose storage is not self-describing
// then fail with a mandatory-argument error.
type Agent interface {
	// Supports reports whether the agent handles entityType. Never fails.
	Supports(entityType string) bool

	// Capabilities returns what the agent supports. No side effects.
	Capabilities() capability.Capabilities

	// Find returns the object with identifier. Missing objects fail with an
	// object-not-found error naming the type (if given) and the identifier.
	Find(identifier any, entityType string) (any, error)

	// FindMany returns the objects in the order of identifiers.
	FindMany(identifiers []any, entityType string) ([]any, error)

	// Persist stages object for insertion or update.
	Persist(object any) error

	// Remove stages object for deletion.
	Remove(object any) error

	// Flush commits staged changes. On failure staged changes are kept.
	Flush() error

	// Query compiles and executes q.
	Query(q *query.Query) (*Cursor, error)

	// QueryCount returns the number of results Query would produce without
	// pagination. Fails with a capability violation when unsupported.
	QueryCount(q *query.Query) (int, error)

	// Identifier returns the identifier of a managed object.
	Identifier(object any) (any, error)

	// CanonicalType resolves surrogate type identifiers to the real type.
	CanonicalType(entityType string) string

	// SetParent places object below parent in a hierarchical store.
	SetParent(object, parent any) error
}
