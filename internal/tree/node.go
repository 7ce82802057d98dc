// Package tree builds the display tree published to viewers from a
// clustering result.
package tree

import (
	"encoding/json"
	"slices"
)

// Kind distinguishes group nodes (clusters) from leaf nodes (items).
type Kind uint8

const (
	KindGroup Kind = iota
	KindLeaf
)

func (k Kind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindLeaf:
		return "leaf"
	default:
		return "unknown"
	}
}

// Node is one node of the display tree.
//
// A node has at most one owning parent. A node reused within a pass (a
// cluster or item listed under several parents) is owned by the first parent
// and linked from the others, so it appears in every parent's children while
// Parent still reports a single owner.
type Node struct {
	Kind  Kind
	ID    string
	Label string

	parent   *Node
	children []*Node
	index    map[*Node]struct{}
}

// NewGroup returns a group node.
func NewGroup(id, label string) *Node {
	return &Node{Kind: KindGroup, ID: id, Label: label}
}

// NewLeaf returns a leaf node.
func NewLeaf(id, label string) *Node {
	return &Node{Kind: KindLeaf, ID: id, Label: label}
}

// Parent returns the owning parent, or nil for a root or detached node.
func (n *Node) Parent() *Node { return n.parent }

// Children returns a copy of the ordered children.
func (n *Node) Children() []*Node { return slices.Clone(n.children) }

// Len returns the number of children.
func (n *Node) Len() int { return len(n.children) }

// Child returns the i-th child.
func (n *Node) Child(i int) *Node { return n.children[i] }

// Has reports whether child is already among n's children.
func (n *Node) Has(child *Node) bool {
	_, ok := n.index[child]
	return ok
}

// Add makes n the owner of child and appends it. A child owned elsewhere is
// detached from its old parent first. Adding a child n already holds is a
// no-op; the return value reports whether anything changed.
func (n *Node) Add(child *Node) bool {
	n.mustBeGroup()
	if child.parent == n && n.Has(child) {
		return false
	}
	if child.parent != nil {
		child.Detach()
	}
	child.parent = n
	if !n.Has(child) {
		n.appendChild(child)
	}
	return true
}

// Link appends child as a shared reference without changing its owner.
// Linking an unowned child is the same as Add.
func (n *Node) Link(child *Node) bool {
	n.mustBeGroup()
	if child.parent == nil {
		return n.Add(child)
	}
	if n.Has(child) {
		return false
	}
	n.appendChild(child)
	return true
}

// Detach removes n from its owning parent.
func (n *Node) Detach() {
	p := n.parent
	if p == nil {
		return
	}
	if i := slices.Index(p.children, n); i >= 0 {
		p.children = slices.Delete(p.children, i, i+1)
	}
	delete(p.index, n)
	n.parent = nil
}

// Walk visits n and its descendants depth-first in child order. Returning
// false from fn skips the node's children. Shared nodes are visited once per
// reference.
func (n *Node) Walk(fn func(node *Node, depth int) bool) {
	n.walk(fn, 0)
}

func (n *Node) walk(fn func(*Node, int) bool, depth int) {
	if !fn(n, depth) {
		return
	}
	for _, c := range n.children {
		c.walk(fn, depth+1)
	}
}

func (n *Node) appendChild(child *Node) {
	if n.index == nil {
		n.index = make(map[*Node]struct{})
	}
	n.index[child] = struct{}{}
	n.children = append(n.children, child)
}

func (n *Node) mustBeGroup() {
	if n.Kind != KindGroup {
		panic("tree: leaf nodes cannot have children")
	}
}

type nodeJSON struct {
	Kind     string      `json:"kind"`
	ID       string      `json:"id,omitempty"`
	Label    string      `json:"label"`
	Children []*nodeJSON `json:"children,omitempty"`
}

func (n *Node) toJSON() *nodeJSON {
	out := &nodeJSON{Kind: n.Kind.String(), ID: n.ID, Label: n.Label}
	for _, c := range n.children {
		out.Children = append(out.Children, c.toJSON())
	}
	return out
}

// MarshalJSON encodes the subtree rooted at n. Shared nodes are expanded
// under every parent that references them.
func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.toJSON())
}

// Equal reports whether two trees have the same shape, kinds, ids and labels
// in the same child order.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind || a.ID != b.ID || a.Label != b.Label || len(a.children) != len(b.children) {
		return false
	}
	for i := range a.children {
		if !Equal(a.children[i], b.children[i]) {
			return false
		}
	}
	return true
}
