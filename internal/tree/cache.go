package tree

// Key identifies a source entity within one pass.
type Key struct {
	Kind Kind
	ID   string
}

// Cache maps source entities to the nodes built for them during one
// synchronization pass. Source ids are not stable across snapshots, so a
// Cache must never outlive the pass that filled it.
type Cache struct {
	nodes map[Key]*Node
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{nodes: make(map[Key]*Node)}
}

// Get returns the node cached for (kind, id).
func (c *Cache) Get(kind Kind, id string) (*Node, bool) {
	n, ok := c.nodes[Key{Kind: kind, ID: id}]
	return n, ok
}

// Put caches n under (n.Kind, n.ID), replacing any previous entry.
func (c *Cache) Put(n *Node) {
	c.nodes[Key{Kind: n.Kind, ID: n.ID}] = n
}

