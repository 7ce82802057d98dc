package tree

import (
	"github.com/starford/clustermap/internal/models"
)

// RootLabel labels the synthetic root of every synchronized tree.
const RootLabel = "All clusters"

// Stats summarizes one synchronization pass.
type Stats struct {
	Groups int // group nodes created
	Leaves int // leaf nodes created
	Reused int // cache hits
}

// Synchronizer turns clustering results into display trees.
//
// It is not safe for concurrent use; the bridge runs it on the render
// context only.
type Synchronizer struct {
	cache *Cache
	stats Stats
}

// NewSynchronizer returns a Synchronizer with an empty cache.
func NewSynchronizer() *Synchronizer {
	return &Synchronizer{cache: NewCache()}
}

// Synchronize builds a fresh display tree for result.
//
// Every call starts from an empty identity cache. Within the pass a cluster
// or item id resolves to a single node; later occurrences are linked rather
// than rebuilt. Each group lists its subclusters first, then its items, both
// in source order. On error no tree is returned and the previous pass's
// cache is left as it was.
func (s *Synchronizer) Synchronize(result *models.ClusterResult) (*Node, error) {
	if result == nil {
		return nil, &InvalidResultError{Reason: "nil result"}
	}

	p := &pass{
		cache:  NewCache(),
		onPath: make(map[string]struct{}),
	}
	root := NewGroup("", RootLabel)
	for _, c := range result.Clusters {
		if err := p.cluster(root, c); err != nil {
			return nil, err
		}
	}

	s.cache = p.cache
	s.stats = p.stats
	return root, nil
}

// Cache returns the identity cache of the last successful pass.
func (s *Synchronizer) Cache() *Cache { return s.cache }

// LastStats returns the statistics of the last successful pass.
func (s *Synchronizer) LastStats() Stats { return s.stats }

type pass struct {
	cache  *Cache
	onPath map[string]struct{}
	stats  Stats
}

func (p *pass) cluster(parent *Node, c *models.Cluster) error {
	if c == nil {
		return &InvalidResultError{Reason: "nil cluster", ClusterID: parent.ID}
	}
	if c.ID == "" {
		return &InvalidResultError{Reason: "cluster without id", ClusterID: parent.ID}
	}
	if _, ok := p.onPath[c.ID]; ok {
		return &InvalidResultError{Reason: "cluster cycle", ClusterID: c.ID}
	}

	if n, ok := p.cache.Get(KindGroup, c.ID); ok {
		p.stats.Reused++
		attach(parent, n)
		return nil
	}

	n := NewGroup(c.ID, c.Label)
	p.cache.Put(n)
	p.stats.Groups++
	attach(parent, n)

	p.onPath[c.ID] = struct{}{}
	defer delete(p.onPath, c.ID)

	for _, sub := range c.Subclusters {
		if err := p.cluster(n, sub); err != nil {
			return err
		}
	}
	for _, it := range c.Items {
		if err := p.item(n, it); err != nil {
			return err
		}
	}
	return nil
}

func (p *pass) item(parent *Node, it *models.Item) error {
	if it == nil {
		return &InvalidResultError{Reason: "nil item", ClusterID: parent.ID}
	}
	if it.ID == "" {
		return &InvalidResultError{Reason: "item without id", ClusterID: parent.ID}
	}

	if n, ok := p.cache.Get(KindLeaf, it.ID); ok {
		p.stats.Reused++
		attach(parent, n)
		return nil
	}

	n := NewLeaf(it.ID, ItemLabel(it))
	p.cache.Put(n)
	p.stats.Leaves++
	attach(parent, n)
	return nil
}

// attach appends n to parent once: the first parent owns it, later parents
// link to it.
func attach(parent, n *Node) {
	if n.Parent() == nil {
		parent.Add(n)
		return
	}
	parent.Link(n)
}

// ItemLabel returns "[id] title", or "[id]" when the title is empty.
func ItemLabel(it *models.Item) string {
	label := "[" + it.ID + "]"
	if t := it.Title(); t != "" {
		label += " " + t
	}
	return label
}
