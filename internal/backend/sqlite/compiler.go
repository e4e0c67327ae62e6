package sqlite

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/objectagent/internal/agenterr"
	"github.com/roach88/objectagent/internal/capability"
	"github.com/roach88/objectagent/internal/compile"
	"github.com/roach88/objectagent/internal/metadata"
	"github.com/roach88/objectagent/internal/query"
)

// SourceAlias is the table alias of the queried entity type. Unqualified
// fields are qualified with it.
const SourceAlias = "a"

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// compiler renders expressions as SQL boolean expressions with named
// parameters.
//
// Parameters are named after their field ("a.title" binds :title, "u.name"
// binds :u_name); repeated fields get a numeric suffix (:title_2). Empty
// composites follow the boolean identities: AND() renders "1 = 1" and OR()
// renders "1 = 0".
type compiler struct {
	caps    capability.Capabilities
	params  *compile.Parameters
	aliases map[string]*metadata.Class
	selects map[string]bool

	// selectScope allows bare select aliases as fields (having, order by).
	selectScope bool
}

var _ compile.Visitor[string] = (*compiler)(nil)

func newCompiler(caps capability.Capabilities) *compiler {
	return &compiler{
		caps:    caps,
		params:  compile.NewParameters(compile.FieldNames),
		aliases: make(map[string]*metadata.Class),
		selects: make(map[string]bool),
	}
}

// bind makes alias refer to class in field references.
func (c *compiler) bind(alias string, class *metadata.Class) error {
	if !identPattern.MatchString(alias) {
		return agenterr.InvalidArgument("invalid alias %q", alias)
	}
	if _, dup := c.aliases[alias]; dup {
		return agenterr.InvalidArgument("alias %q is used twice", alias)
	}
	c.aliases[alias] = class
	return nil
}

func (c *compiler) expression(expr query.Expression) (string, error) {
	return compile.Walk[string](c, expr)
}

// column resolves a field to a qualified, quoted column. In select scope a
// bare name that matches a select alias refers to that alias.
func (c *compiler) column(field string) (string, error) {
	if c.selectScope && !strings.Contains(field, compile.Separator) && c.selects[field] {
		return quoteIdent(field), nil
	}
	alias, name := compile.SplitField(SourceAlias, field)
	class, ok := c.aliases[alias]
	if !ok {
		return "", agenterr.InvalidArgument("unknown alias %q in field %q", alias, field)
	}
	if _, ok := class.Field(name); !ok {
		return "", agenterr.InvalidArgument("type %q has no field %q", class.Name(), name)
	}
	return alias + "." + quoteIdent(name), nil
}

// placeholder binds value and returns its token. Fields of the source alias
// bind under their bare name.
func (c *compiler) placeholder(field string, value any) string {
	if alias, name := compile.SplitField(SourceAlias, field); alias == SourceAlias {
		field = name
	}
	return ":" + c.params.Register(field, value)
}

func (c *compiler) Comparison(cmp query.Comparison) (string, error) {
	if !c.caps.Supports(cmp.Comparator()) {
		return "", compile.Unsupported(Name, cmp.Comparator())
	}
	col, err := c.column(cmp.Field())
	if err != nil {
		return "", err
	}

	binary := func(op string) (string, error) {
		return fmt.Sprintf("%s %s %s", col, op, c.placeholder(cmp.Field(), cmp.Value())), nil
	}

	switch cmp.Comparator() {
	case query.Equals:
		return binary("=")
	case query.NotEquals:
		return binary("<>")
	case query.LessThan:
		return binary("<")
	case query.LessThanOrEqual:
		return binary("<=")
	case query.GreaterThan:
		return binary(">")
	case query.GreaterThanOrEqual:
		return binary(">=")
	case query.In, query.NotIn:
		return c.membership(col, cmp), nil
	case query.Contains:
		return fmt.Sprintf(`%s LIKE %s ESCAPE '\'`, col, c.placeholder(cmp.Field(), likePattern(cmp.Value()))), nil
	case query.NotContains:
		return fmt.Sprintf(`%s NOT LIKE %s ESCAPE '\'`, col, c.placeholder(cmp.Field(), likePattern(cmp.Value()))), nil
	case query.IsNull:
		return col + " IS NULL", nil
	case query.IsNotNull:
		return col + " IS NOT NULL", nil
	default:
		compile.UnknownComparator(cmp.Comparator())
		return "", nil
	}
}

// membership renders IN / NOT IN with one parameter per element. An empty
// set matches nothing (IN) or everything (NOT IN).
func (c *compiler) membership(col string, cmp query.Comparison) string {
	values := cmp.Values()
	if len(values) == 0 {
		if cmp.Comparator() == query.In {
			return "1 = 0"
		}
		return "1 = 1"
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = c.placeholder(cmp.Field(), v)
	}
	op := "IN"
	if cmp.Comparator() == query.NotIn {
		op = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", col, op, strings.Join(placeholders, ", "))
}

func (c *compiler) Composite(comp query.Composite, children []string) (string, error) {
	and := comp.Type() == query.AndType
	switch len(children) {
	case 0:
		if and {
			return "1 = 1", nil
		}
		return "1 = 0", nil
	case 1:
		return children[0], nil
	}
	sep := " OR "
	if and {
		sep = " AND "
	}
	return "(" + strings.Join(children, sep) + ")", nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(v any) string {
	return "%" + likeEscaper.Replace(fmt.Sprint(v)) + "%"
}
