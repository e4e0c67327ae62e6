package document

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/objectagent/internal/agenterr"
)

func buildTree(t *testing.T) (*Tree, *Node, *Node) {
	t.Helper()
	tree := NewTree()
	docs, err := tree.Add(tree.Root(), nodeID(1), "docs", "folder", nil)
	require.NoError(t, err)
	intro, err := tree.Add(docs, nodeID(2), "intro", "page", map[string]any{"title": "Intro", "rank": 10})
	require.NoError(t, err)
	return tree, docs, intro
}

func TestTree_Paths(t *testing.T) {
	tree, docs, intro := buildTree(t)

	assert.Equal(t, "/", tree.Root().Path())
	assert.Equal(t, "/docs", docs.Path())
	assert.Equal(t, "/docs/intro", intro.Path())

	n, ok := tree.NodeAt("/docs/intro")
	require.True(t, ok)
	assert.Same(t, intro, n)

	n, ok = tree.NodeAt("/")
	require.True(t, ok)
	assert.Same(t, tree.Root(), n)

	_, ok = tree.NodeAt("/docs/missing")
	assert.False(t, ok)
}

func TestTree_AddRejectsInvalidNodes(t *testing.T) {
	tree, docs, _ := buildTree(t)

	_, err := tree.Add(docs, nodeID(3), "intro", "page", nil)
	assert.True(t, agenterr.IsInvalidArgument(err))

	_, err = tree.Add(docs, nodeID(2), "other", "page", nil)
	assert.True(t, agenterr.IsInvalidArgument(err))

	_, err = tree.Add(docs, nodeID(3), "a/b", "page", nil)
	assert.True(t, agenterr.IsInvalidArgument(err))

	_, err = tree.Add(docs, "", "empty", "page", nil)
	assert.True(t, agenterr.IsInvalidArgument(err))
}

func TestTree_Move(t *testing.T) {
	tree, docs, intro := buildTree(t)

	require.NoError(t, tree.Move(intro, tree.Root(), "welcome"))
	assert.Equal(t, "/welcome", intro.Path())
	assert.Empty(t, docs.Children)

	err := tree.Move(docs, docs, "docs")
	assert.True(t, agenterr.IsInvalidArgument(err), "cannot move below itself")
}

func TestTree_RemoveSubtree(t *testing.T) {
	tree, docs, _ := buildTree(t)

	removed := tree.Remove(docs)
	assert.Equal(t, []string{nodeID(1), nodeID(2)}, removed)
	assert.Zero(t, tree.Len())
	assert.Empty(t, tree.Root().Children)
}

func TestTree_CloneIsIndependent(t *testing.T) {
	tree, _, intro := buildTree(t)

	clone := tree.Clone()
	n, ok := clone.Node(intro.UUID)
	require.True(t, ok)
	n.Properties["title"] = "Changed"
	clone.Remove(n)

	assert.Equal(t, "Intro", intro.Properties["title"])
	_, ok = tree.Node(intro.UUID)
	assert.True(t, ok)
	assert.Equal(t, 1, clone.Len())
}

func TestTree_WalkDocumentOrder(t *testing.T) {
	tree, docs, _ := buildTree(t)
	_, err := tree.Add(tree.Root(), nodeID(3), "about", "page", nil)
	require.NoError(t, err)
	_, err = tree.Add(docs, nodeID(4), "setup", "page", nil)
	require.NoError(t, err)

	var paths []string
	tree.Walk(func(n *Node) bool {
		paths = append(paths, n.Path())
		return true
	})
	assert.Equal(t, []string{"/docs", "/docs/intro", "/docs/setup", "/about"}, paths)
}

func TestTree_YAMLRoundTrip(t *testing.T) {
	tree, _, _ := buildTree(t)

	var buf bytes.Buffer
	n, err := tree.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	read, err := ReadTree(&buf)
	require.NoError(t, err)
	intro, ok := read.NodeAt("/docs/intro")
	require.True(t, ok)
	assert.Equal(t, nodeID(2), intro.UUID)
	assert.Equal(t, "page", intro.Type)
	assert.Equal(t, map[string]any{"title": "Intro", "rank": 10}, intro.Properties)
	assert.Equal(t, 2, read.Len())
}

func TestReadTree_Empty(t *testing.T) {
	tree, err := ReadTree(strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, tree.Len())
}

func TestReadTree_DuplicateUUID(t *testing.T) {
	doc := `
uuid: ""
name: ""
children:
  - uuid: dup
    name: one
  - uuid: dup
    name: two
`
	_, err := ReadTree(strings.NewReader(doc))
	require.Error(t, err)
	assert.True(t, agenterr.IsInvalidArgument(err))
	assert.Contains(t, err.Error(), "UUID dup is used twice")
}
