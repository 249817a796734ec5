// Package devices implements the hierarchical device tree that mirrors the
// registered UAVs, and the per-client path subscriptions with change
// notification.
package devices

import (
	"sort"
	"strings"
	"sync"

	"github.com/flocklink/fleetd/core/model"
)

// NodeKind classifies a device tree node.
type NodeKind string

const (
	KindRoot    NodeKind = "root"
	KindUAV     NodeKind = "uav"
	KindDevice  NodeKind = "device"
	KindChannel NodeKind = "channel"
)

// Node is one entry in the device tree. Nodes are owned by the tree and must
// only be accessed through it.
type Node struct {
	kind     NodeKind
	name     string
	children map[string]*Node
	value    any
}

func newNode(kind NodeKind, name string) *Node {
	return &Node{kind: kind, name: name, children: make(map[string]*Node)}
}

// Kind returns the node's classification.
func (n *Node) Kind() NodeKind { return n.kind }

// Value returns the node's current value, nil for non-channel nodes.
func (n *Node) Value() any { return n.value }

// View returns the serializable representation of the subtree rooted at the
// node.
func (n *Node) View() map[string]any {
	view := map[string]any{"kind": string(n.kind)}
	if n.value != nil {
		view["value"] = n.value
	}
	if len(n.children) > 0 {
		children := make(map[string]any, len(n.children))
		for name, child := range n.children {
			children[name] = child.View()
		}
		view["children"] = children
	}
	return view
}

// values collects the channel values of the subtree keyed by absolute path.
func (n *Node) values(prefix string, out map[string]any) {
	if n.kind == KindChannel {
		out[prefix] = n.value
	}
	for name, child := range n.children {
		child.values(prefix+"/"+name, out)
	}
}

// Tree is the hierarchical namespace of UAV, device and channel nodes. Root
// level nodes are keyed by UAV id and follow UAV registration in lockstep;
// the tree mirrors the registry, it does not own the lifecycle.
type Tree struct {
	mu   sync.RWMutex
	root *Node
}

// NewTree creates an empty device tree.
func NewTree() *Tree {
	return &Tree{root: newNode(KindRoot, "")}
}

// AddUAV creates the root-level node for the given UAV id. Re-adding an
// existing id keeps the current subtree.
func (t *Tree) AddUAV(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.root.children[id]; !ok {
		t.root.children[id] = newNode(KindUAV, id)
	}
}

// RemoveUAV destroys the subtree of the given UAV id, reporting whether it
// existed.
func (t *Tree) RemoveUAV(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.root.children[id]; !ok {
		return false
	}
	delete(t.root.children, id)
	return true
}

// Resolve returns the node at the given slash-delimited path, or
// ErrNoSuchPath when any segment is missing. The empty path and "/" resolve
// to the root.
func (t *Tree) Resolve(path string) (*Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.resolveLocked(path)
}

func (t *Tree) resolveLocked(path string) (*Node, error) {
	node := t.root
	for _, segment := range splitPath(path) {
		child, ok := node.children[segment]
		if !ok {
			return nil, model.ErrNoSuchPath
		}
		node = child
	}
	return node, nil
}

// View returns the serializable subtree at the given path.
func (t *Tree) View(path string) (map[string]any, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	node, err := t.resolveLocked(path)
	if err != nil {
		return nil, err
	}
	return node.View(), nil
}

// Values returns the channel values in the subtree at the given path, keyed
// by absolute path.
func (t *Tree) Values(path string) (map[string]any, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	node, err := t.resolveLocked(path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any)
	node.values(CanonicalPath(path), out)
	return out, nil
}

// Batch is a scoped mutation context. It holds the tree's write lock from
// Begin until Close; Close reports the set of changed paths so the caller
// can schedule subscriber notification.
type Batch struct {
	tree    *Tree
	changed map[string]struct{}
}

// Begin opens a mutation batch, taking exclusive ownership of the tree.
func (t *Tree) Begin() *Batch {
	t.mu.Lock()
	return &Batch{tree: t, changed: make(map[string]struct{})}
}

// Set updates the channel value at the given path, creating missing device
// and channel nodes below an existing UAV root. Setting a path whose UAV root
// does not exist fails with ErrNoSuchPath.
func (b *Batch) Set(path string, value any) error {
	segments := splitPath(path)
	if len(segments) < 2 {
		return model.ErrNoSuchPath
	}
	uav, ok := b.tree.root.children[segments[0]]
	if !ok {
		return model.ErrNoSuchPath
	}
	node := uav
	for _, segment := range segments[1 : len(segments)-1] {
		child, ok := node.children[segment]
		if !ok {
			child = newNode(KindDevice, segment)
			node.children[segment] = child
		}
		node = child
	}
	leafName := segments[len(segments)-1]
	leaf, ok := node.children[leafName]
	if !ok {
		leaf = newNode(KindChannel, leafName)
		node.children[leafName] = leaf
	}
	leaf.value = value
	b.changed[CanonicalPath(path)] = struct{}{}
	return nil
}

// Close releases the tree and returns the sorted list of changed paths.
func (b *Batch) Close() []string {
	b.tree.mu.Unlock()
	changed := make([]string, 0, len(b.changed))
	for path := range b.changed {
		changed = append(changed, path)
	}
	sort.Strings(changed)
	return changed
}

// CanonicalPath normalizes a device tree path to the form /a/b/c.
func CanonicalPath(path string) string {
	segments := splitPath(path)
	if len(segments) == 0 {
		return "/"
	}
	return "/" + strings.Join(segments, "/")
}

// IsAtOrUnder reports whether path lies at or below root in the tree.
func IsAtOrUnder(path, root string) bool {
	path, root = CanonicalPath(path), CanonicalPath(root)
	if root == "/" {
		return true
	}
	return path == root || strings.HasPrefix(path, root+"/")
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
