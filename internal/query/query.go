package query

import (
	"reflect"
	"strings"

	"github.com/roach88/objectagent/internal/agenterr"
)

// Direction is the sort direction of an Ordering.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection converts "asc"/"desc" (any case) to a Direction.
func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToLower(s))
	if d != Asc && d != Desc {
		return "", agenterr.InvalidArgument(`unknown ordering direction %q, must be "asc" or "desc"`, s)
	}
	return d, nil
}

// Ordering sorts results by one field.
type Ordering struct {
	Field     string
	Direction Direction
}

// OrderAsc orders by field ascending.
func OrderAsc(field string) Ordering { return Ordering{Field: field, Direction: Asc} }

// OrderDesc orders by field descending.
func OrderDesc(field string) Ordering { return Ordering{Field: field, Direction: Desc} }

// Select projects one expression, optionally under an alias.
// An empty Alias means the expression is selected as-is.
type Select struct {
	Expr  string
	Alias string
}

// Query is an immutable description of a read against one entity type.
//
// Build one with New and derive variants with CloneWith; neither mutates an
// existing Query.
type Query struct {
	entityType  string
	selects     []Select
	joins       []Join
	criteria    Expression
	having      Expression
	groupBys    []string
	orderings   []Ordering
	firstResult *int
	maxResults  *int
}

// Option sets one part of a Query.
type Option func(*Query)

// WithSelects replaces the select list. Empty means the default projection.
func WithSelects(selects ...Select) Option {
	return func(q *Query) { q.selects = append([]Select(nil), selects...) }
}

// WithJoins replaces the joins.
func WithJoins(joins ...Join) Option {
	return func(q *Query) { q.joins = append([]Join(nil), joins...) }
}

// WithCriteria sets the root filter expression. nil removes it.
func WithCriteria(expr Expression) Option {
	return func(q *Query) { q.criteria = expr }
}

// WithHaving sets the having expression, applied after grouping.
func WithHaving(expr Expression) Option {
	return func(q *Query) { q.having = expr }
}

// WithGroupBys replaces the group-by fields.
func WithGroupBys(fields ...string) Option {
	return func(q *Query) { q.groupBys = append([]string(nil), fields...) }
}

// WithOrderings replaces the orderings.
func WithOrderings(orderings ...Ordering) Option {
	return func(q *Query) { q.orderings = append([]Ordering(nil), orderings...) }
}

// WithFirstResult sets the pagination offset.
func WithFirstResult(n int) Option {
	return func(q *Query) { q.firstResult = &n }
}

// WithMaxResults sets the pagination limit.
func WithMaxResults(n int) Option {
	return func(q *Query) { q.maxResults = &n }
}

// WithoutPagination clears both pagination bounds.
func WithoutPagination() Option {
	return func(q *Query) {
		q.firstResult = nil
		q.maxResults = nil
	}
}

// New creates a Query against entityType.
func New(entityType string, opts ...Option) (*Query, error) {
	q := &Query{entityType: entityType}
	for _, opt := range opts {
		opt(q)
	}
	if err := q.validate(); err != nil {
		return nil, err
	}
	return q, nil
}

// MustNew is like New but panics on error.
func MustNew(entityType string, opts ...Option) *Query {
	q, err := New(entityType, opts...)
	if err != nil {
		panic(err)
	}
	return q
}

// CloneWith returns a new Query with only the given parts overridden.
// The receiver is left untouched and shares no slices with the result.
func (q *Query) CloneWith(opts ...Option) (*Query, error) {
	clone := q.copy()
	for _, opt := range opts {
		opt(clone)
	}
	if err := clone.validate(); err != nil {
		return nil, err
	}
	return clone, nil
}

func (q *Query) copy() *Query {
	c := &Query{
		entityType: q.entityType,
		selects:    append([]Select(nil), q.selects...),
		joins:      append([]Join(nil), q.joins...),
		criteria:   q.criteria,
		having:     q.having,
		groupBys:   append([]string(nil), q.groupBys...),
		orderings:  append([]Ordering(nil), q.orderings...),
	}
	if q.firstResult != nil {
		n := *q.firstResult
		c.firstResult = &n
	}
	if q.maxResults != nil {
		n := *q.maxResults
		c.maxResults = &n
	}
	return c
}

func (q *Query) validate() error {
	if q.entityType == "" {
		return agenterr.InvalidArgument("query requires an entity type")
	}
	if q.firstResult != nil && *q.firstResult < 0 {
		return agenterr.InvalidArgument("first result must be non-negative, got %d", *q.firstResult)
	}
	if q.maxResults != nil && *q.maxResults < 0 {
		return agenterr.InvalidArgument("max results must be non-negative, got %d", *q.maxResults)
	}
	for _, o := range q.orderings {
		if o.Field == "" {
			return agenterr.InvalidArgument("ordering requires a field")
		}
		if o.Direction != Asc && o.Direction != Desc {
			return agenterr.InvalidArgument(`unknown ordering direction %q for field %q`, o.Direction, o.Field)
		}
	}
	for _, s := range q.selects {
		if s.Expr == "" {
			return agenterr.InvalidArgument("select requires an expression")
		}
	}
	for _, j := range q.joins {
		if !j.typ.Valid() {
			return agenterr.InvalidArgument("join %q has no valid type, build joins with NewJoin", j.alias)
		}
	}
	if q.having != nil && len(q.groupBys) == 0 {
		return agenterr.InvalidArgument("having requires at least one group-by field")
	}
	return nil
}

// EntityType returns the logical type being queried.
func (q *Query) EntityType() string { return q.entityType }

// Selects returns a copy of the select list.
func (q *Query) Selects() []Select { return append([]Select(nil), q.selects...) }

// Joins returns a copy of the joins.
func (q *Query) Joins() []Join { return append([]Join(nil), q.joins...) }

// Criteria returns the root expression, or nil.
func (q *Query) Criteria() Expression { return q.criteria }

// HasCriteria reports whether a root expression is set.
func (q *Query) HasCriteria() bool { return q.criteria != nil }

// Having returns the having expression, or nil.
func (q *Query) Having() Expression { return q.having }

// GroupBys returns a copy of the group-by fields.
func (q *Query) GroupBys() []string { return append([]string(nil), q.groupBys...) }

// Orderings returns a copy of the orderings.
func (q *Query) Orderings() []Ordering { return append([]Ordering(nil), q.orderings...) }

// FirstResult returns the pagination offset and whether it is set.
func (q *Query) FirstResult() (int, bool) {
	if q.firstResult == nil {
		return 0, false
	}
	return *q.firstResult, true
}

// MaxResults returns the pagination limit and whether it is set.
func (q *Query) MaxResults() (int, bool) {
	if q.maxResults == nil {
		return 0, false
	}
	return *q.maxResults, true
}

// IsPaginated reports whether either pagination bound is set.
func (q *Query) IsPaginated() bool {
	return q.firstResult != nil || q.maxResults != nil
}

// Equal reports structural equality.
func (q *Query) Equal(other *Query) bool {
	if q == nil || other == nil {
		return q == other
	}
	return q.entityType == other.entityType &&
		equalSlices(q.selects, other.selects) &&
		equalSlices(q.joins, other.joins) &&
		reflect.DeepEqual(q.criteria, other.criteria) &&
		reflect.DeepEqual(q.having, other.having) &&
		equalSlices(q.groupBys, other.groupBys) &&
		equalSlices(q.orderings, other.orderings) &&
		equalInt(q.firstResult, other.firstResult) &&
		equalInt(q.maxResults, other.maxResults)
}

// equalSlices treats nil and empty as equal.
func equalSlices[T any](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	return len(a) == 0 || reflect.DeepEqual(a, b)
}

func equalInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
