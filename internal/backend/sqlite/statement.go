package sqlite

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/objectagent/internal/agenterr"
	"github.com/roach88/objectagent/internal/capability"
	"github.com/roach88/objectagent/internal/compile"
	"github.com/roach88/objectagent/internal/metadata"
	"github.com/roach88/objectagent/internal/query"
)

// Statement is a compiled SQL statement with its bound parameters.
type Statement struct {
	SQL    string
	Params []compile.Parameter

	// Class is the queried entity type.
	Class *metadata.Class

	// Projected is true when the statement selects explicit columns rather
	// than whole entities.
	Projected bool
}

// Args returns the parameters as sql.Named arguments.
func (s Statement) Args() []any {
	args := make([]any, len(s.Params))
	for i, p := range s.Params {
		args[i] = sql.Named(p.Name, p.Value)
	}
	return args
}

// String renders the SQL followed by the parameters, one per line.
func (s Statement) String() string {
	var b strings.Builder
	b.WriteString(s.SQL)
	for _, p := range s.Params {
		fmt.Fprintf(&b, "\n  :%s = %#v", p.Name, p.Value)
	}
	return b.String()
}

// Compile builds the SELECT statement for q.
//
// Clauses are applied in this order: selects, joins, where, group by,
// having, order by, limit/offset. Results are ordered by the identifier
// after the requested orderings so pagination is deterministic.
func Compile(classes *metadata.Registry, caps capability.Capabilities, q *query.Query) (Statement, error) {
	return build(classes, caps, q, true)
}

// CompileCount builds the statement counting the unpaginated results of q.
func CompileCount(classes *metadata.Registry, caps capability.Capabilities, q *query.Query) (Statement, error) {
	stmt, err := build(classes, caps, q, false)
	if err != nil {
		return Statement{}, err
	}
	stmt.SQL = "SELECT COUNT(*) FROM (" + stmt.SQL + ")"
	stmt.Projected = true
	return stmt, nil
}

func build(classes *metadata.Registry, caps capability.Capabilities, q *query.Query, paginate bool) (Statement, error) {
	if err := compile.RejectUnsupported(Name, q, caps.CanQuerySelect(), caps.CanQueryJoin(), caps.CanQueryHaving()); err != nil {
		return Statement{}, err
	}
	class, ok := classes.Class(q.EntityType())
	if !ok {
		return Statement{}, agenterr.InvalidArgument("no class registered for type %q", q.EntityType())
	}

	c := newCompiler(caps)
	if err := c.bind(SourceAlias, class); err != nil {
		return Statement{}, err
	}

	joins, err := joinClauses(c, classes, q.Joins())
	if err != nil {
		return Statement{}, err
	}
	selectList, err := selectClause(c, q.Selects())
	if err != nil {
		return Statement{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s %s", selectList, quoteIdent(class.Table()), SourceAlias)
	for _, j := range joins {
		b.WriteString(" " + j)
	}

	if q.HasCriteria() {
		where, err := c.expression(q.Criteria())
		if err != nil {
			return Statement{}, err
		}
		b.WriteString(" WHERE " + where)
	}

	groupBys := q.GroupBys()
	if len(groupBys) > 0 {
		cols := make([]string, len(groupBys))
		for i, g := range groupBys {
			if cols[i], err = c.column(g); err != nil {
				return Statement{}, err
			}
		}
		b.WriteString(" GROUP BY " + strings.Join(cols, ", "))
	}

	c.selectScope = true
	if having := q.Having(); having != nil {
		sqlHaving, err := c.expression(having)
		if err != nil {
			return Statement{}, err
		}
		b.WriteString(" HAVING " + sqlHaving)
	}

	if paginate {
		order, err := orderClause(c, class, q.Orderings(), len(groupBys) == 0 && len(q.Selects()) == 0)
		if err != nil {
			return Statement{}, err
		}
		if order != "" {
			b.WriteString(" ORDER BY " + order)
		}
		b.WriteString(limitClause(q))
	}

	return Statement{
		SQL:       b.String(),
		Params:    c.params.All(),
		Class:     class,
		Projected: len(q.Selects()) > 0,
	}, nil
}

// joinClauses binds every join alias, then renders the joins. Aliases are
// bound first so conditions can reference any of them.
func joinClauses(c *compiler, classes *metadata.Registry, joins []query.Join) ([]string, error) {
	targets := make([]*metadata.Class, len(joins))
	for i, j := range joins {
		target, ok := classes.Class(j.Target())
		if !ok {
			return nil, agenterr.InvalidArgument("join target %q is not a registered type", j.Target())
		}
		if err := c.bind(j.Alias(), target); err != nil {
			return nil, err
		}
		targets[i] = target
	}

	clauses := make([]string, len(joins))
	for i, j := range joins {
		var on string
		var err error
		if j.HasCondition() {
			on, err = c.expression(j.Condition())
		} else {
			on, err = relationCondition(c, j, targets[i])
		}
		if err != nil {
			return nil, err
		}
		clauses[i] = fmt.Sprintf("%s JOIN %s %s ON %s", j.Type(), quoteIdent(targets[i].Table()), j.Alias(), on)
	}
	return clauses, nil
}

// relationCondition derives the ON condition of a join without one from a
// ref= field on either side.
func relationCondition(c *compiler, j query.Join, target *metadata.Class) (string, error) {
	from := j.FromAlias()
	if from == "" {
		from = SourceAlias
	}
	source, ok := c.aliases[from]
	if !ok {
		return "", agenterr.InvalidArgument("join %q starts from unknown alias %q", j.Alias(), from)
	}

	if ref, ok := source.Relation(target.Name()); ok {
		id, ok := target.SingleID()
		if !ok {
			return "", agenterr.CompositeIdentifier(Name, target.Name(), target.IDFieldNames())
		}
		return fmt.Sprintf("%s.%s = %s.%s", j.Alias(), quoteIdent(id.Name), from, quoteIdent(ref.Name)), nil
	}
	if ref, ok := target.Relation(source.Name()); ok {
		id, ok := source.SingleID()
		if !ok {
			return "", agenterr.CompositeIdentifier(Name, source.Name(), source.IDFieldNames())
		}
		return fmt.Sprintf("%s.%s = %s.%s", j.Alias(), quoteIdent(ref.Name), from, quoteIdent(id.Name)), nil
	}
	return "", agenterr.InvalidArgument("no relation between %q and %q, give the join a condition", source.Name(), target.Name())
}

var aggregatePattern = regexp.MustCompile(`^(?i:(COUNT|SUM|AVG|MIN|MAX))\(\s*(\*|[A-Za-z_][A-Za-z0-9_.]*)\s*\)$`)

// selectClause renders the projection. Expressions are field references or
// single-argument aggregates over one, e.g. "a.title" or "COUNT(a.id)".
func selectClause(c *compiler, selects []query.Select) (string, error) {
	if len(selects) == 0 {
		return SourceAlias + ".*", nil
	}
	parts := make([]string, len(selects))
	for i, s := range selects {
		expr, err := selectExpr(c, s.Expr)
		if err != nil {
			return "", err
		}
		alias := s.Alias
		if alias == "" {
			alias = defaultSelectAlias(s.Expr)
		}
		if !identPattern.MatchString(alias) {
			return "", agenterr.InvalidArgument("invalid select alias %q", alias)
		}
		c.selects[alias] = true
		parts[i] = expr + " AS " + quoteIdent(alias)
	}
	return strings.Join(parts, ", "), nil
}

func selectExpr(c *compiler, expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	if m := aggregatePattern.FindStringSubmatch(expr); m != nil {
		arg := m[2]
		if arg != "*" {
			col, err := c.column(arg)
			if err != nil {
				return "", err
			}
			arg = col
		}
		return strings.ToUpper(m[1]) + "(" + arg + ")", nil
	}
	return c.column(expr)
}

// defaultSelectAlias names an unaliased select after its field: "a.title"
// and "title" become "title", "COUNT(a.id)" becomes "count_id".
func defaultSelectAlias(expr string) string {
	expr = strings.TrimSpace(expr)
	if m := aggregatePattern.FindStringSubmatch(expr); m != nil {
		_, name := compile.SplitField(SourceAlias, m[2])
		if name == "*" {
			return strings.ToLower(m[1])
		}
		return strings.ToLower(m[1]) + "_" + name
	}
	_, name := compile.SplitField(SourceAlias, expr)
	return name
}

func orderClause(c *compiler, class *metadata.Class, orderings []query.Ordering, tiebreak bool) (string, error) {
	var parts []string
	ordered := make(map[string]bool)
	for _, o := range orderings {
		col, err := c.column(o.Field)
		if err != nil {
			return "", err
		}
		ordered[col] = true
		parts = append(parts, col+" "+strings.ToUpper(string(o.Direction)))
	}
	if id, ok := class.SingleID(); ok && tiebreak {
		col := SourceAlias + "." + quoteIdent(id.Name)
		if !ordered[col] {
			parts = append(parts, col+" ASC")
		}
	}
	return strings.Join(parts, ", "), nil
}

func limitClause(q *query.Query) string {
	first, hasFirst := q.FirstResult()
	limit, hasLimit := q.MaxResults()
	switch {
	case hasLimit && hasFirst:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, first)
	case hasLimit:
		return fmt.Sprintf(" LIMIT %d", limit)
	case hasFirst:
		return fmt.Sprintf(" LIMIT -1 OFFSET %d", first)
	}
	return ""
}
