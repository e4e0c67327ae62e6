package query

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/objectagent/internal/agenterr"
)

func TestFromMap(t *testing.T) {
	q, err := FromMap(map[string]any{
		"from":    "page",
		"selects": []any{"a.title", map[string]any{"COUNT(a.id)": "n"}},
		"joins": []any{
			map[string]any{"join": "a.author", "alias": "u", "type": "LEFT"},
		},
		"criteria": map[string]any{
			"eq": map[string]any{"title": "Hello"},
			"or": map[string]any{
				"gt":   map[string]any{"rank": 3},
				"null": map[string]any{"summary": nil},
			},
		},
		"groupBys":    []any{"a.rank"},
		"having":      map[string]any{"gte": map[string]any{"n": 1}},
		"orderings":   []any{map[string]any{"title": "DESC"}, map[string]any{"rank": "asc"}},
		"firstResult": json.Number("5"),
		"maxResults":  float64(10),
	})
	require.NoError(t, err)

	assert.Equal(t, "page", q.EntityType())
	assert.Equal(t, []Select{{Expr: "a.title"}, {Expr: "COUNT(a.id)", Alias: "n"}}, q.Selects())
	require.Len(t, q.Joins(), 1)
	assert.Equal(t, MustJoin(LeftJoin, "a.author", "u"), q.Joins()[0])

	want := And(
		MustCompare(Equals, "title", "Hello"),
		Or(MustCompare(GreaterThan, "rank", 3), MustCompare(IsNull, "summary", nil)),
	)
	assert.Equal(t, want, q.Criteria())
	assert.Equal(t, And(MustCompare(GreaterThanOrEqual, "n", 1)), q.Having())
	assert.Equal(t, []string{"a.rank"}, q.GroupBys())
	assert.Equal(t, []Ordering{OrderDesc("title"), OrderAsc("rank")}, q.Orderings())

	first, _ := q.FirstResult()
	limit, _ := q.MaxResults()
	assert.Equal(t, 5, first)
	assert.Equal(t, 10, limit)
}

func TestFromMap_CriteriaListKeepsOrder(t *testing.T) {
	q, err := FromMap(map[string]any{
		"from": "page",
		"criteria": []any{
			map[string]any{"lt": map[string]any{"rank": 9}},
			map[string]any{"eq": map[string]any{"title": "x"}},
		},
		"orderings": map[string]any{"title": "asc", "rank": "desc"},
	})
	require.NoError(t, err)

	root := q.Criteria().(Composite)
	require.Equal(t, 2, root.Len())
	assert.Equal(t, LessThan, root.Children()[0].(Comparison).Comparator())
	assert.Equal(t, []Ordering{OrderDesc("rank"), OrderAsc("title")}, q.Orderings(), "mapping keys sort lexically")
}

func TestFromMap_JoinCondition(t *testing.T) {
	q, err := FromMap(map[string]any{
		"from": "page",
		"joins": []any{map[string]any{
			"join":      "tag",
			"alias":     "t",
			"from":      "a",
			"condition": map[string]any{"eq": map[string]any{"t.label": "go"}},
		}},
	})
	require.NoError(t, err)

	j := q.Joins()[0]
	assert.Equal(t, InnerJoin, j.Type())
	assert.Equal(t, "a", j.FromAlias())
	assert.Equal(t, And(MustCompare(Equals, "t.label", "go")), j.Condition())
}

func TestFromMap_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  map[string]any
		want string
	}{
		{"no from", map[string]any{}, `you must specify the "from" part of the query`},
		{"empty from", map[string]any{"from": ""}, `"from" part`},
		{"unknown key", map[string]any{"from": "page", "where": nil}, `"where"`},
		{"unknown operator", map[string]any{"from": "page", "criteria": map[string]any{"like": map[string]any{"a": 1}}}, `unknown expression operator "like" in {"like":{"a":1}}`},
		{"comparison not a mapping", map[string]any{"from": "page", "criteria": map[string]any{"eq": 3}}, `comparison "eq" must have a mapping`},
		{"in scalar", map[string]any{"from": "page", "criteria": map[string]any{"in": map[string]any{"id": 1}}}, "requires a sequence value"},
		{"join missing keys", map[string]any{"from": "page", "joins": []any{map[string]any{"type": "LEFT"}}}, `keys ["join" "alias"] are required for join`},
		{"join unknown key", map[string]any{"from": "page", "joins": []any{map[string]any{"join": "x", "alias": "b", "on": 1}}}, `"on"`},
		{"joins not a list", map[string]any{"from": "page", "joins": map[string]any{}}, "joins must be a list"},
		{"bad join type", map[string]any{"from": "page", "joins": []any{map[string]any{"join": "x", "alias": "b", "type": "CROSS"}}}, `unknown join type "CROSS"`},
		{"bad direction", map[string]any{"from": "page", "orderings": map[string]any{"a": "up"}}, "unknown ordering direction"},
		{"fractional limit", map[string]any{"from": "page", "maxResults": 1.5}, "maxResults must be an integer"},
		{"string offset", map[string]any{"from": "page", "firstResult": "3"}, "firstResult must be an integer"},
		{"groupBys not a list", map[string]any{"from": "page", "groupBys": "a"}, "groupBys must be a list"},
		{"select alias not a string", map[string]any{"from": "page", "selects": map[string]any{"a": 1}}, "selects must be a string"},
		{"orderings scalar", map[string]any{"from": "page", "orderings": "a"}, "orderings must be a mapping or a list of mappings"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromMap(tt.doc)
			require.Error(t, err)
			assert.True(t, agenterr.IsInvalidArgument(err), "got %v", err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
