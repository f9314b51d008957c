// Package tree keeps the project file listing received from the session
// server and renders it for the terminal.
package tree

import (
	"sort"
	"strings"
	"sync"

	"github.com/WINOT/wide.py/internal/domain/ports"
)

// Node is a single project entry.
type Node struct {
	Path  string
	IsDir bool
}

// Tree is an in-memory project listing. Entries are deduplicated by path;
// a later AddNode for a known path updates its directory flag.
type Tree struct {
	mu    sync.Mutex
	nodes map[string]bool
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{nodes: make(map[string]bool)}
}

// AddNode records a project entry.
func (t *Tree) AddNode(path string, isDir bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes[path] = isDir
}

// Len returns the number of known entries.
func (t *Tree) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.nodes)
}

// Has reports whether path is a known entry.
func (t *Tree) Has(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.nodes[path]
	return ok
}

// Nodes returns all entries sorted by path, directories carrying their flag.
func (t *Tree) Nodes() []Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Node, 0, len(t.nodes))
	for path, isDir := range t.nodes {
		out = append(out, Node{Path: path, IsDir: isDir})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Render formats the listing one entry per line, directories suffixed with
// a slash, indented by depth.
func (t *Tree) Render() string {
	var b strings.Builder
	for _, node := range t.Nodes() {
		depth := strings.Count(strings.TrimPrefix(node.Path, "/"), "/")
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(node.Path)
		if node.IsDir {
			b.WriteString("/")
		}
		b.WriteString("\n")
	}
	return b.String()
}

var _ ports.Tree = (*Tree)(nil)
