package sqlite

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/objectagent/internal/metadata"
)

type page struct {
	ID       int64   `agent:"id,id"`
	Title    string  `agent:"title"`
	Rank     int     `agent:"rank"`
	AuthorID int64   `agent:"author_id,ref=user"`
	Body     *string `agent:"body"`
}

type user struct {
	ID   int64  `agent:"id,id"`
	Name string `agent:"name"`
}

type comment struct {
	ID     int64  `agent:"id,id"`
	PageID int64  `agent:"page_id,ref=page"`
	Text   string `agent:"text"`
}

type membership struct {
	UserID  int64 `agent:"user_id,id"`
	GroupID int64 `agent:"group_id,id"`
	Role    string
}

func testClasses() *metadata.Registry {
	classes := metadata.NewRegistry()
	classes.MustRegister("page", page{}, metadata.WithAliases("page_proxy"))
	classes.MustRegister("user", user{})
	classes.MustRegister("comment", comment{})
	classes.MustRegister("membership", membership{})
	return classes
}

// createTestAgent opens an in-memory database with the test schema.
func createTestAgent(t *testing.T, opts ...Option) *Agent {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	classes := testClasses()
	require.NoError(t, CreateSchema(db, classes))
	return New(db, classes, opts...)
}

// seedPages persists one page per title and flushes.
func seedPages(t *testing.T, a *Agent, titles ...string) []*page {
	t.Helper()
	pages := make([]*page, len(titles))
	for i, title := range titles {
		pages[i] = &page{Title: title, Rank: (i + 1) * 10}
		require.NoError(t, a.Persist(pages[i]))
	}
	require.NoError(t, a.Flush())
	return pages
}
