package document

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/objectagent/internal/metadata"
	"github.com/roach88/objectagent/internal/testutil"
)

type folder struct {
	ID   string `agent:"uuid,id"`
	Name string `agent:"name,nodename"`
}

type page struct {
	ID      string  `agent:"uuid,id"`
	Name    string  `agent:"name,nodename"`
	Parent  any     `agent:"parent,parent"`
	Title   string  `agent:"title"`
	Rank    int     `agent:"rank"`
	Summary *string `agent:"summary"`
}

// tag has no parent mapping and no node name.
type tag struct {
	ID    string `agent:"uuid,id"`
	Label string `agent:"label"`
}

func testClasses() *metadata.Registry {
	classes := metadata.NewRegistry()
	classes.MustRegister("folder", folder{})
	classes.MustRegister("page", page{}, metadata.WithAliases("page_proxy"))
	classes.MustRegister("tag", tag{})
	return classes
}

// newTestAgent returns an agent over an empty tree with sequential UUIDs.
func newTestAgent(t *testing.T, opts ...Option) *Agent {
	t.Helper()
	opts = append([]Option{WithIDGenerator(testutil.NewSequentialIDs())}, opts...)
	return New(NewTree(), testClasses(), opts...)
}

// seedPages persists one root-level page per title and flushes.
func seedPages(t *testing.T, a *Agent, titles ...string) []*page {
	t.Helper()
	pages := make([]*page, len(titles))
	for i, title := range titles {
		pages[i] = &page{Name: fmt.Sprintf("page-%d", i+1), Title: title, Rank: (i + 1) * 10}
		require.NoError(t, a.Persist(pages[i]))
	}
	require.NoError(t, a.Flush())
	return pages
}

func nodeID(n int) string {
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", n)
}
