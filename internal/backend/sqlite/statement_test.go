package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/objectagent/internal/agenterr"
	"github.com/roach88/objectagent/internal/capability"
	"github.com/roach88/objectagent/internal/query"
	"github.com/roach88/objectagent/internal/testutil"
)

func TestCompile_Golden(t *testing.T) {
	tests := []struct {
		name  string
		count bool
		query *query.Query
	}{
		{
			name: "where_comparators",
			query: query.MustNew("page", query.WithCriteria(query.And(
				query.MustCompare(query.Equals, "title", "Hello"),
				query.MustCompare(query.NotEquals, "rank", 1),
				query.MustCompare(query.LessThan, "rank", 2),
				query.MustCompare(query.LessThanOrEqual, "rank", 3),
				query.MustCompare(query.GreaterThan, "rank", 4),
				query.MustCompare(query.GreaterThanOrEqual, "rank", 5),
				query.MustCompare(query.In, "title", []string{"a", "b"}),
				query.MustCompare(query.NotIn, "title", []string{"c"}),
				query.MustCompare(query.Contains, "title", "50%_off"),
				query.MustCompare(query.NotContains, "title", `x\y`),
				query.MustCompare(query.IsNull, "body", nil),
				query.MustCompare(query.IsNotNull, "body", nil),
			))),
		},
		{
			name: "join_group_having",
			query: query.MustNew("page",
				query.WithSelects(
					query.Select{Expr: "a.title"},
					query.Select{Expr: "COUNT(c.id)", Alias: "comments"},
				),
				query.WithJoins(
					query.MustJoin(query.InnerJoin, "comment", "c"),
					query.MustJoin(query.LeftJoin, "user", "u"),
				),
				query.WithCriteria(query.MustCompare(query.Equals, "u.name", "ada")),
				query.WithGroupBys("a.title"),
				query.WithHaving(query.MustCompare(query.GreaterThan, "comments", 1)),
				query.WithOrderings(query.OrderDesc("comments")),
				query.WithMaxResults(10),
			),
		},
		{
			name:  "count",
			count: true,
			query: query.MustNew("page",
				query.WithCriteria(query.MustCompare(query.Equals, "title", "Hello")),
				query.WithOrderings(query.OrderAsc("title")),
				query.WithFirstResult(1),
				query.WithMaxResults(1),
			),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compileFn := Compile
			if tt.count {
				compileFn = CompileCount
			}
			stmt, err := compileFn(testClasses(), DefaultCapabilities, tt.query)
			require.NoError(t, err)
			testutil.AssertGolden(t, tt.name, []byte(stmt.String()))
		})
	}
}

func TestCompile_EmptyComposites(t *testing.T) {
	and, err := Compile(testClasses(), DefaultCapabilities, query.MustNew("page", query.WithCriteria(query.And())))
	require.NoError(t, err)
	assert.Equal(t, `SELECT a.* FROM "page" a WHERE 1 = 1 ORDER BY a."id" ASC`, and.SQL)

	or, err := Compile(testClasses(), DefaultCapabilities, query.MustNew("page", query.WithCriteria(query.Or())))
	require.NoError(t, err)
	assert.Equal(t, `SELECT a.* FROM "page" a WHERE 1 = 0 ORDER BY a."id" ASC`, or.SQL)
}

func TestCompile_NestedCompositeKeepsOrder(t *testing.T) {
	q := query.MustNew("page", query.WithCriteria(query.Or(
		query.MustCompare(query.Equals, "title", "b"),
		query.And(
			query.MustCompare(query.Equals, "title", "a"),
			query.MustCompare(query.GreaterThan, "rank", 3),
		),
	)))
	stmt, err := Compile(testClasses(), DefaultCapabilities, q)
	require.NoError(t, err)

	assert.Equal(t,
		`SELECT a.* FROM "page" a WHERE (a."title" = :title OR (a."title" = :title_2 AND a."rank" > :rank)) ORDER BY a."id" ASC`,
		stmt.SQL)
	assert.Equal(t, map[string]any{"title": "b", "title_2": "a", "rank": 3}, paramMap(stmt))
}

func TestCompile_EmptySets(t *testing.T) {
	q := query.MustNew("page", query.WithCriteria(query.And(
		query.MustCompare(query.In, "title", []string{}),
		query.MustCompare(query.NotIn, "title", []string{}),
	)))
	stmt, err := Compile(testClasses(), DefaultCapabilities, q)
	require.NoError(t, err)
	assert.Equal(t, `SELECT a.* FROM "page" a WHERE (1 = 0 AND 1 = 1) ORDER BY a."id" ASC`, stmt.SQL)
	assert.Empty(t, stmt.Params)
}

func TestCompile_Pagination(t *testing.T) {
	tests := []struct {
		name string
		opts []query.Option
		want string
	}{
		{"limit and offset", []query.Option{query.WithFirstResult(3), query.WithMaxResults(2)}, ` LIMIT 2 OFFSET 3`},
		{"limit only", []query.Option{query.WithMaxResults(2)}, ` LIMIT 2`},
		{"offset only", []query.Option{query.WithFirstResult(3)}, ` LIMIT -1 OFFSET 3`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]query.Option{query.WithOrderings(query.OrderAsc("title"))}, tt.opts...)
			stmt, err := Compile(testClasses(), DefaultCapabilities, query.MustNew("page", opts...))
			require.NoError(t, err)
			assert.Equal(t, `SELECT a.* FROM "page" a ORDER BY a."title" ASC, a."id" ASC`+tt.want, stmt.SQL)
		})
	}
}

func TestCompile_JoinCondition(t *testing.T) {
	q := query.MustNew("page",
		query.WithJoins(query.MustJoin(query.LeftJoin, "user", "u",
			query.On(query.MustCompare(query.Equals, "u.name", "ada")))),
		query.WithCriteria(query.MustCompare(query.Equals, "u.name", "bob")),
	)
	stmt, err := Compile(testClasses(), DefaultCapabilities, q)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT a.* FROM "page" a LEFT JOIN "user" u ON u."name" = :u_name WHERE u."name" = :u_name_2 ORDER BY a."id" ASC`,
		stmt.SQL)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name  string
		query *query.Query
	}{
		{"unknown type", query.MustNew("nope")},
		{"unknown field", query.MustNew("page", query.WithCriteria(query.MustCompare(query.Equals, "nope", 1)))},
		{"unknown alias", query.MustNew("page", query.WithCriteria(query.MustCompare(query.Equals, "x.title", 1)))},
		{"unknown join target", query.MustNew("page", query.WithJoins(query.MustJoin(query.InnerJoin, "nope", "n")))},
		{"duplicate alias", query.MustNew("page", query.WithJoins(query.MustJoin(query.InnerJoin, "user", "a")))},
		{"invalid alias", query.MustNew("page", query.WithJoins(query.MustJoin(query.InnerJoin, "user", `u"; --`)))},
		{"no relation", query.MustNew("user", query.WithJoins(query.MustJoin(query.InnerJoin, "comment", "c")))},
		{"raw select", query.MustNew("page", query.WithSelects(query.Select{Expr: "1; DROP TABLE page"}))},
		{"select alias outside scope", query.MustNew("page",
			query.WithSelects(query.Select{Expr: "a.title", Alias: "t"}),
			query.WithCriteria(query.MustCompare(query.Equals, "t", "x")))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(testClasses(), DefaultCapabilities, tt.query)
			require.Error(t, err)
			assert.True(t, agenterr.IsInvalidArgument(err), "got %v", err)
		})
	}
}

func TestCompile_NarrowedCapabilities(t *testing.T) {
	caps := DefaultCapabilities.Narrow(capability.New(capability.Config{
		SupportedComparators: []query.Comparator{query.Equals},
	}))

	_, err := Compile(testClasses(), caps, query.MustNew("page",
		query.WithCriteria(query.MustCompare(query.Contains, "title", "x"))))
	require.Error(t, err)
	assert.True(t, agenterr.IsCapabilityViolation(err))
	assert.Contains(t, err.Error(), `"contains"`)

	_, err = Compile(testClasses(), caps, query.MustNew("page",
		query.WithJoins(query.MustJoin(query.InnerJoin, "user", "u"))))
	assert.True(t, agenterr.IsCapabilityViolation(err))
}

func TestCompile_DefaultSelectAliases(t *testing.T) {
	q := query.MustNew("page", query.WithSelects(
		query.Select{Expr: "title"},
		query.Select{Expr: "count(*)"},
		query.Select{Expr: "MAX(a.rank)"},
	))
	stmt, err := Compile(testClasses(), DefaultCapabilities, q)
	require.NoError(t, err)
	assert.Equal(t, `SELECT a."title" AS "title", COUNT(*) AS "count", MAX(a."rank") AS "max_rank" FROM "page" a`, stmt.SQL)
	assert.True(t, stmt.Projected)
}

func paramMap(stmt Statement) map[string]any {
	m := make(map[string]any, len(stmt.Params))
	for _, p := range stmt.Params {
		m[p.Name] = p.Value
	}
	return m
}
