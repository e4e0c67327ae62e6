package cli

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/objectagent/internal/agenterr"
	"github.com/roach88/objectagent/internal/backend/memory"
	"github.com/roach88/objectagent/internal/backend/sqlite"
	"github.com/roach88/objectagent/internal/capability"
	"github.com/roach88/objectagent/internal/query"
)

func TestLoadConfig(t *testing.T) {
	dir := testWorkspace(t)

	cfg, err := LoadConfig(filepath.Join(dir, "objectagent.yaml"))
	require.NoError(t, err)

	require.NotNil(t, cfg.SQL)
	assert.Equal(t, filepath.Join(dir, "data.db"), cfg.SQL.Path)
	assert.True(t, cfg.SQL.CreateSchema)
	assert.Equal(t, []string{"page"}, cfg.SQL.Types)

	require.NotNil(t, cfg.Document)
	assert.Equal(t, filepath.Join(dir, "workspace.yaml"), cfg.Document.Workspace)

	require.NotNil(t, cfg.Memory)
	assert.Equal(t, filepath.Join(dir, "fixtures.yaml"), cfg.Memory.Fixtures)
	assert.Equal(t, []any{"eq", "in"}, cfg.Memory.Capabilities["supported_comparators"])

	assert.Len(t, cfg.Types, 4)
	assert.Equal(t, []string{"page_proxy"}, cfg.Types["page"].Aliases)
	assert.True(t, cfg.Types["note"].Fields[2].Parent)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	dir := testWorkspace(t)
	t.Setenv("OBJECTAGENT_SQL_PATH", ":memory:")

	cfg, err := LoadConfig(filepath.Join(dir, "objectagent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":memory:", cfg.SQL.Path)
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestBuildClasses(t *testing.T) {
	types := map[string]TypeConfig{
		"page": {
			Table:   "pages",
			Aliases: []string{"page_proxy"},
			Fields: []FieldConfig{
				{Name: "id", Kind: "int", ID: true},
				{Name: "title", Kind: "string"},
				{Name: "published_at", Kind: "time", Nullable: true},
				{Name: "author_id", Kind: "int", Ref: "user"},
			},
		},
		"user": {Fields: []FieldConfig{{Name: "id", Kind: "int", ID: true}}},
		"team": {Fields: []FieldConfig{{Name: "id", Kind: "int", ID: true}}},
	}

	classes, err := BuildClasses(types)
	require.NoError(t, err)

	page, ok := classes.Class("page_proxy")
	require.True(t, ok)
	assert.Equal(t, "page", page.Name())
	assert.Equal(t, "pages", page.Table())
	assert.Equal(t, []string{"id"}, page.IDFieldNames())

	published, ok := page.Field("published_at")
	require.True(t, ok)
	assert.Equal(t, reflect.TypeOf(&time.Time{}), published.Type)
	assert.Equal(t, "PublishedAt", published.GoName)

	rel, ok := page.Relation("user")
	require.True(t, ok)
	assert.Equal(t, "author_id", rel.Name)

	user, _ := classes.Class("user")
	team, _ := classes.Class("team")
	assert.NotEqual(t, user.Type(), team.Type(), "identical field sets stay distinct types")

	obj := page.New()
	require.NoError(t, page.Set(obj, "title", "Hello"))
	got, err := page.Get(obj, "title")
	require.NoError(t, err)
	assert.Equal(t, "Hello", got)
	c, ok := classes.ClassOf(obj)
	require.True(t, ok)
	assert.Same(t, page, c)
}

func TestBuildClasses_Errors(t *testing.T) {
	tests := []struct {
		name  string
		types map[string]TypeConfig
		want  string
	}{
		{"no fields", map[string]TypeConfig{"page": {}}, "declares no fields"},
		{"unknown kind", map[string]TypeConfig{"page": {Fields: []FieldConfig{{Name: "x", Kind: "decimal"}}}}, `kind "decimal"`},
		{"unnamed field", map[string]TypeConfig{"page": {Fields: []FieldConfig{{Kind: "int"}}}}, "has no name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildClasses(tt.types)
			require.Error(t, err)
			assert.True(t, agenterr.IsInvalidArgument(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGoName(t *testing.T) {
	assert.Equal(t, "Title", goName(0, "title"))
	assert.Equal(t, "AuthorId", goName(1, "author_id"))
	assert.Equal(t, "F2", goName(2, "_"))
	assert.Equal(t, "X1", goName(3, "x1"))
	assert.Equal(t, "F41st", goName(4, "1st"))
}

func TestNarrow(t *testing.T) {
	caps, err := narrow(sqlite.DefaultCapabilities, nil)
	require.NoError(t, err)
	assert.Equal(t, sqlite.DefaultCapabilities, caps)

	caps, err = narrow(sqlite.DefaultCapabilities, map[string]any{capability.KeyCanQueryCount: false})
	require.NoError(t, err)
	assert.False(t, caps.CanQueryCount())
	assert.True(t, caps.CanQueryJoin(), "keys left out keep their default")
	assert.Equal(t, sqlite.DefaultCapabilities.Comparators(), caps.Comparators())

	caps, err = narrow(memory.DefaultCapabilities, map[string]any{
		capability.KeySupportedComparators: []any{"eq", "not_contains"},
		capability.KeyCanQueryJoin:         true,
	})
	require.NoError(t, err)
	assert.Equal(t, []query.Comparator{query.Equals}, caps.Comparators(), "nothing is enabled beyond the defaults")
	assert.False(t, caps.CanQueryJoin())

	_, err = narrow(memory.DefaultCapabilities, map[string]any{"can_fly": true})
	assert.True(t, agenterr.IsInvalidArgument(err))
}
