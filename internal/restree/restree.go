// Package restree implements sid's resource tree: a single-owner tree
// of long-lived components (worker proxies, module registries, the KV
// store) with typed parent/child links, destroyed children-first, and
// weak lookups by type and id that never extend a node's lifetime
// (spec.md §5 "resource discipline"; supplemented from
// original_source/include/resource.h, spec.md §9 "single-owner tree of
// resource nodes with weak references").
package restree

import (
	"fmt"
	"sort"
	"sync"
)

// Destroyer is implemented by anything a resource node owns and must
// release when the node is torn down.
type Destroyer interface {
	Destroy() error
}

// Node is one entry in the tree: a typed, identified resource plus its
// children. The zero value is not usable; create nodes via Tree.Add.
type Node struct {
	Type     string
	ID       string
	Resource Destroyer

	tree     *Tree
	parent   *Node
	children []*Node
}

// Dump is the serialized form of one node, used by SYSTEM_CMD_RESOURCES
// (spec.md §4.6, §C.2).
type Dump struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Children []Dump `json:"children,omitempty"`
}

// Tree is the single owner of every node added to it. It is not safe
// for concurrent structural mutation from multiple goroutines without
// external synchronization beyond what its internal mutex provides for
// lookups; the daemon's single event loop is its only writer.
type Tree struct {
	mu   sync.RWMutex
	root *Node
	byID map[string]*Node // "type:id" -> node, for weak lookups
}

// New returns an empty tree with a synthetic, resourceless root node.
func New() *Tree {
	t := &Tree{byID: make(map[string]*Node)}
	t.root = &Node{Type: "root", ID: "", tree: t}
	return t
}

func key(typ, id string) string { return typ + ":" + id }

// Root returns the tree's root node, to which top-level resources
// attach (in the daemon: the KV store and the worker pool).
func (t *Tree) Root() *Node { return t.root }

// Add creates a child node under parent (use Tree.Root() for a
// top-level resource) owning resource, and registers it for lookup.
func (t *Tree) Add(parent *Node, typ, id string, resource Destroyer) (*Node, error) {
	if parent == nil {
		parent = t.root
	}
	if parent.tree != t {
		return nil, fmt.Errorf("restree: parent node belongs to a different tree")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	k := key(typ, id)
	if _, exists := t.byID[k]; exists {
		return nil, fmt.Errorf("restree: duplicate resource %s", k)
	}

	n := &Node{Type: typ, ID: id, Resource: resource, tree: t, parent: parent}
	parent.children = append(parent.children, n)
	t.byID[k] = n
	return n, nil
}

// Lookup resolves a weak reference by type and id. The returned node
// must not be retained past the current tree walk: it carries no
// lifetime guarantee of its own.
func (t *Tree) Lookup(typ, id string) (*Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.byID[key(typ, id)]
	return n, ok
}

// Destroy tears down node and every descendant, children-first, and
// unregisters each from the tree's lookup index. Destruction continues
// past individual failures; all encountered errors are joined.
func (t *Tree) Destroy(node *Node) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.destroyLocked(node)
}

func (t *Tree) destroyLocked(node *Node) error {
	var errs []error
	// children-first, reverse registration order
	for i := len(node.children) - 1; i >= 0; i-- {
		if err := t.destroyLocked(node.children[i]); err != nil {
			errs = append(errs, err)
		}
	}
	node.children = nil

	if node.Resource != nil {
		if err := node.Resource.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("restree: destroy %s:%s: %w", node.Type, node.ID, err))
		}
	}
	if node.Type != "root" {
		delete(t.byID, key(node.Type, node.ID))
	}
	if node.parent != nil {
		node.parent.removeChild(node)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("restree: %d error(s) during teardown: %v", len(errs), errs)
}

func (n *Node) removeChild(child *Node) {
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i], n.children[i+1:]...)
			return
		}
	}
}

// Shutdown tears down the entire tree from the root.
func (t *Tree) Shutdown() error {
	return t.Destroy(t.root)
}

// DumpTree serializes the tree from its root for SYSTEM_CMD_RESOURCES.
func (t *Tree) DumpTree() Dump {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return dumpNode(t.root)
}

func dumpNode(n *Node) Dump {
	d := Dump{Type: n.Type, ID: n.ID}
	children := make([]*Node, len(n.children))
	copy(children, n.children)
	sort.Slice(children, func(i, j int) bool {
		if children[i].Type != children[j].Type {
			return children[i].Type < children[j].Type
		}
		return children[i].ID < children[j].ID
	})
	for _, c := range children {
		d.Children = append(d.Children, dumpNode(c))
	}
	return d
}

// ChildCount returns the number of direct children of node.
func (n *Node) ChildCount() int { return len(n.children) }
