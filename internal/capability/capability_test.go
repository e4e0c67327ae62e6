package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/objectagent/internal/agenterr"
	"github.com/roach88/objectagent/internal/query"
)

func TestNew(t *testing.T) {
	c := New(Config{
		SupportedComparators: []query.Comparator{query.In, query.Equals, query.In},
		CanQueryCount:        true,
	})

	assert.Equal(t, []query.Comparator{query.Equals, query.In}, c.Comparators(), "canonical order, no duplicates")
	assert.True(t, c.Supports(query.In))
	assert.False(t, c.Supports(query.Contains))
	assert.True(t, c.CanQueryCount())
	assert.False(t, c.CanSetParent())
	assert.False(t, c.CanQueryJoin())
	assert.False(t, c.CanQuerySelect())
	assert.False(t, c.CanQueryHaving())

	comparators := c.Comparators()
	comparators[0] = query.Contains
	assert.False(t, c.Supports(query.Contains), "Comparators returns a copy")

	zero := New(Config{})
	assert.Empty(t, zero.Comparators())
}

func TestFromMap(t *testing.T) {
	c, err := FromMap(map[string]any{
		KeySupportedComparators: []any{"eq", "not_null"},
		KeyCanSetParent:         true,
		KeyCanQueryJoin:         false,
		KeyCanQueryHaving:       nil,
	})
	require.NoError(t, err)
	assert.Equal(t, []query.Comparator{query.Equals, query.IsNotNull}, c.Comparators())
	assert.True(t, c.CanSetParent())
	assert.False(t, c.CanQueryHaving())

	c, err = FromMap(map[string]any{KeySupportedComparators: []string{"lt"}})
	require.NoError(t, err)
	assert.Equal(t, []query.Comparator{query.LessThan}, c.Comparators())

	empty, err := FromMap(nil)
	require.NoError(t, err)
	assert.Equal(t, New(Config{}), empty)
}

func TestFromMap_Errors(t *testing.T) {
	tests := []struct {
		name string
		m    map[string]any
		want string
	}{
		{"unknown keys", map[string]any{"can_fly": true, "can_swim": true}, `unknown capabilities "can_fly", "can_swim"`},
		{"unknown comparator", map[string]any{KeySupportedComparators: []any{"like"}}, `unknown comparator "like"`},
		{"comparators not a list", map[string]any{KeySupportedComparators: "eq"}, "supported_comparators must be a list"},
		{"comparator not a string", map[string]any{KeySupportedComparators: []any{1}}, "comparator must be a string"},
		{"flag not a bool", map[string]any{KeyCanQueryCount: "yes"}, "can_query_count must be a boolean"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromMap(tt.m)
			require.Error(t, err)
			assert.True(t, agenterr.IsInvalidArgument(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNarrow(t *testing.T) {
	wide := New(Config{
		SupportedComparators: query.Comparators,
		CanQueryCount:        true,
		CanQueryJoin:         true,
		CanSetParent:         false,
	})
	narrow := New(Config{
		SupportedComparators: []query.Comparator{query.Equals, query.Contains},
		CanQueryCount:        true,
		CanSetParent:         true,
	})

	got := wide.Narrow(narrow)
	assert.Equal(t, []query.Comparator{query.Equals, query.Contains}, got.Comparators())
	assert.True(t, got.CanQueryCount())
	assert.False(t, got.CanQueryJoin())
	assert.False(t, got.CanSetParent())
	assert.Equal(t, got, narrow.Narrow(wide), "intersection is symmetric")
}

func TestMap_RoundTrip(t *testing.T) {
	c := New(Config{
		SupportedComparators: []query.Comparator{query.GreaterThan, query.NotIn},
		CanQuerySelect:       true,
	})

	m := c.Map()
	assert.Equal(t, []string{"gt", "nin"}, m[KeySupportedComparators])
	assert.Equal(t, true, m[KeyCanQuerySelect])
	assert.Equal(t, false, m[KeyCanQueryCount])
	assert.Len(t, m, 6)

	back, err := FromMap(m)
	require.NoError(t, err)
	assert.Equal(t, c, back)
}
