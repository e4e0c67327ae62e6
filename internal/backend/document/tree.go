package document

import (
	"io"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/objectagent/internal/agenterr"
)

// Node is one node of the tree. Properties hold the mapped fields of the
// object stored at the node; a nil field is stored as an absent property.
type Node struct {
	UUID       string         `yaml:"uuid"`
	Name       string         `yaml:"name"`
	Type       string         `yaml:"type,omitempty"`
	Properties map[string]any `yaml:"properties,omitempty"`
	Children   []*Node        `yaml:"children,omitempty"`

	parent *Node
}

// Parent returns the parent node, nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Path returns the absolute path of n, "/" for the root.
func (n *Node) Path() string {
	if n.parent == nil {
		return "/"
	}
	var parts []string
	for cur := n; cur.parent != nil; cur = cur.parent {
		parts = append(parts, cur.Name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/")
}

func (n *Node) child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (n *Node) detach() {
	p := n.parent
	if p == nil {
		return
	}
	for i, c := range p.Children {
		if c == n {
			p.Children = append(p.Children[:i:i], p.Children[i+1:]...)
			break
		}
	}
	n.parent = nil
}

// isAncestorOf reports whether n is other or one of its ancestors.
func (n *Node) isAncestorOf(other *Node) bool {
	for cur := other; cur != nil; cur = cur.parent {
		if cur == n {
			return true
		}
	}
	return false
}

// Tree is a hierarchy of typed nodes indexed by UUID. The root has no UUID
// and holds no object.
//
// Thread-safety: a Tree is not safe for concurrent use; the agent guards it.
type Tree struct {
	root   *Node
	byUUID map[string]*Node
}

// NewTree returns a tree holding only the root.
func NewTree() *Tree {
	return &Tree{root: &Node{}, byUUID: make(map[string]*Node)}
}

// Root returns the root node.
func (t *Tree) Root() *Node { return t.root }

// Len returns the number of nodes below the root.
func (t *Tree) Len() int { return len(t.byUUID) }

// Node returns the node with the given UUID.
func (t *Tree) Node(uuid string) (*Node, bool) {
	n, ok := t.byUUID[uuid]
	return n, ok
}

// NodeAt resolves an absolute path.
func (t *Tree) NodeAt(path string) (*Node, bool) {
	cur := t.root
	for _, name := range strings.Split(strings.Trim(path, "/"), "/") {
		if name == "" {
			continue
		}
		if cur = cur.child(name); cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// Add creates a node under parent. Sibling names are unique.
func (t *Tree) Add(parent *Node, uuid, name, typ string, props map[string]any) (*Node, error) {
	if uuid == "" {
		return nil, agenterr.InvalidArgument("node %q requires a UUID", name)
	}
	if _, dup := t.byUUID[uuid]; dup {
		return nil, agenterr.InvalidArgument("node %s already exists", uuid)
	}
	if err := checkName(parent, name, nil); err != nil {
		return nil, err
	}
	n := &Node{UUID: uuid, Name: name, Type: typ, Properties: props, parent: parent}
	parent.Children = append(parent.Children, n)
	t.byUUID[uuid] = n
	return n, nil
}

// Move reattaches n under parent with the given name.
func (t *Tree) Move(n, parent *Node, name string) error {
	if n.parent == parent && n.Name == name {
		return nil
	}
	if n.isAncestorOf(parent) {
		return agenterr.InvalidArgument("cannot move %s below itself (%s)", n.Path(), parent.Path())
	}
	if err := checkName(parent, name, n); err != nil {
		return err
	}
	n.detach()
	n.Name = name
	n.parent = parent
	parent.Children = append(parent.Children, n)
	return nil
}

// Remove deletes n and its subtree and returns the UUIDs removed, n first.
func (t *Tree) Remove(n *Node) []string {
	var removed []string
	var visit func(*Node)
	visit = func(cur *Node) {
		removed = append(removed, cur.UUID)
		delete(t.byUUID, cur.UUID)
		for _, c := range cur.Children {
			visit(c)
		}
	}
	visit(n)
	n.detach()
	return removed
}

// Walk calls fn for every node below the root in document order (depth
// first, children in insertion order). fn returning false stops the walk.
func (t *Tree) Walk(fn func(*Node) bool) {
	var visit func(*Node) bool
	visit = func(n *Node) bool {
		for _, c := range n.Children {
			if !fn(c) || !visit(c) {
				return false
			}
		}
		return true
	}
	visit(t.root)
}

// Clone returns a deep copy of the tree. Property maps are copied; property
// values are shared.
func (t *Tree) Clone() *Tree {
	out := &Tree{byUUID: make(map[string]*Node, len(t.byUUID))}
	var clone func(n, parent *Node) *Node
	clone = func(n, parent *Node) *Node {
		c := &Node{UUID: n.UUID, Name: n.Name, Type: n.Type, Properties: maps.Clone(n.Properties), parent: parent}
		if parent != nil {
			out.byUUID[c.UUID] = c
		}
		for _, child := range n.Children {
			c.Children = append(c.Children, clone(child, c))
		}
		return c
	}
	out.root = clone(t.root, nil)
	return out
}

func checkName(parent *Node, name string, self *Node) error {
	if name == "" || strings.Contains(name, "/") {
		return agenterr.InvalidArgument("invalid node name %q", name)
	}
	if existing := parent.child(name); existing != nil && existing != self {
		return agenterr.InvalidArgument("node %s already exists", joinPath(parent.Path(), name))
	}
	return nil
}

func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

// ReadTree decodes a tree written by WriteTo.
func ReadTree(r io.Reader) (*Tree, error) {
	var root Node
	if err := yaml.NewDecoder(r).Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return NewTree(), nil
		}
		return nil, errors.Wrap(err, "decode workspace")
	}

	t := &Tree{root: &root, byUUID: make(map[string]*Node)}
	var index func(n *Node) error
	index = func(n *Node) error {
		names := make(map[string]bool, len(n.Children))
		for _, c := range n.Children {
			if c.UUID == "" {
				return agenterr.InvalidArgument("node %s has no UUID", joinPath(n.Path(), c.Name))
			}
			if _, dup := t.byUUID[c.UUID]; dup {
				return agenterr.InvalidArgument("UUID %s is used twice", c.UUID)
			}
			if names[c.Name] {
				return agenterr.InvalidArgument("node %s already exists", joinPath(n.Path(), c.Name))
			}
			names[c.Name] = true
			c.parent = n
			t.byUUID[c.UUID] = c
			if err := index(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := index(t.root); err != nil {
		return nil, err
	}
	return t, nil
}

// WriteTo encodes the tree as YAML.
func (t *Tree) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	enc := yaml.NewEncoder(cw)
	enc.SetIndent(2)
	if err := enc.Encode(t.root); err != nil {
		return cw.n, errors.Wrap(err, "encode workspace")
	}
	if err := enc.Close(); err != nil {
		return cw.n, errors.Wrap(err, "encode workspace")
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// LoadFile reads the workspace file at path. A missing file is an empty
// tree.
func LoadFile(path string) (*Tree, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewTree(), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "open workspace")
	}
	defer f.Close()
	return ReadTree(f)
}

// SaveFile writes the tree to path through a temporary file in the same
// directory, so a failed write leaves the previous file intact.
func SaveFile(t *Tree, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create workspace file")
	}
	defer os.Remove(tmp.Name())

	if _, err := t.WriteTo(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "write workspace file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "replace workspace file %s", path)
	}
	return nil
}
