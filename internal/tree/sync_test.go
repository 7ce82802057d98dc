package tree

import (
	"errors"
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/starford/clustermap/internal/apperr"
	"github.com/starford/clustermap/internal/models"
)

func item(id, title string) *models.Item {
	it := &models.Item{ID: id}
	if title != "" {
		it.Fields = map[string]string{models.TitleField: title}
	}
	return it
}

func labels(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Label
	}
	return out
}

func TestSynchronize_Example(t *testing.T) {
	result := &models.ClusterResult{Clusters: []*models.Cluster{{
		ID:    "1",
		Label: "Topic X",
		Items: []*models.Item{item("10", "Doc A")},
		Subclusters: []*models.Cluster{{
			ID:    "2",
			Label: "Topic X.1",
			Items: []*models.Item{item("11", "")},
		}},
	}}}

	root, err := NewSynchronizer().Synchronize(result)
	if err != nil {
		t.Fatalf("Synchronize: %v", err)
	}
	if root.Label != RootLabel || root.Len() != 1 {
		t.Fatalf("root = %q with %d children", root.Label, root.Len())
	}
	topic := root.Child(0)
	if topic.Label != "Topic X" {
		t.Errorf("top group = %q", topic.Label)
	}
	got := labels(topic.Children())
	if len(got) != 2 || got[0] != "Topic X.1" || got[1] != "[10] Doc A" {
		t.Fatalf("children = %v, want [Topic X.1, [10] Doc A]", got)
	}
	sub := topic.Child(0)
	if sub.Kind != KindGroup || sub.Len() != 1 || sub.Child(0).Label != "[11]" {
		t.Errorf("subcluster children = %v", labels(sub.Children()))
	}
	if topic.Child(1).Kind != KindLeaf {
		t.Error("item should be a leaf")
	}
}

func TestSynchronize_NilResult(t *testing.T) {
	_, err := NewSynchronizer().Synchronize(nil)
	var ire *InvalidResultError
	if !errors.As(err, &ire) {
		t.Fatalf("err = %v, want InvalidResultError", err)
	}
	if !errors.Is(err, apperr.ErrInvalidResult) {
		t.Error("InvalidResultError should match apperr.ErrInvalidResult")
	}
}

func TestSynchronize_CycleRejected(t *testing.T) {
	a := &models.Cluster{ID: "A", Label: "A"}
	b := &models.Cluster{ID: "B", Label: "B"}
	a.Subclusters = []*models.Cluster{b}
	b.Subclusters = []*models.Cluster{a}

	_, err := NewSynchronizer().Synchronize(&models.ClusterResult{Clusters: []*models.Cluster{a}})
	var ire *InvalidResultError
	if !errors.As(err, &ire) {
		t.Fatalf("err = %v, want InvalidResultError", err)
	}
	if ire.ClusterID != "A" {
		t.Errorf("cycle reported at %q, want A", ire.ClusterID)
	}
}

func TestSynchronize_SelfCycleRejected(t *testing.T) {
	a := &models.Cluster{ID: "A", Label: "A"}
	a.Subclusters = []*models.Cluster{{ID: "A", Label: "A again"}}

	_, err := NewSynchronizer().Synchronize(&models.ClusterResult{Clusters: []*models.Cluster{a}})
	if !errors.Is(err, apperr.ErrInvalidResult) {
		t.Fatalf("err = %v, want invalid result", err)
	}
}

func TestSynchronize_MalformedEntries(t *testing.T) {
	cases := map[string]*models.ClusterResult{
		"nil cluster":  {Clusters: []*models.Cluster{nil}},
		"empty id":     {Clusters: []*models.Cluster{{Label: "x"}}},
		"nil item":     {Clusters: []*models.Cluster{{ID: "1", Items: []*models.Item{nil}}}},
		"empty itemid": {Clusters: []*models.Cluster{{ID: "1", Items: []*models.Item{{}}}}},
	}
	for name, r := range cases {
		if _, err := NewSynchronizer().Synchronize(r); !errors.Is(err, apperr.ErrInvalidResult) {
			t.Errorf("%s: err = %v, want invalid result", name, err)
		}
	}
}

func TestSynchronize_SharedClusterSingleNode(t *testing.T) {
	shared := &models.Cluster{ID: "s", Label: "Shared", Items: []*models.Item{item("1", "One")}}
	result := &models.ClusterResult{Clusters: []*models.Cluster{
		{ID: "a", Label: "A", Subclusters: []*models.Cluster{shared}},
		{ID: "b", Label: "B", Subclusters: []*models.Cluster{shared}},
	}}

	s := NewSynchronizer()
	root, err := s.Synchronize(result)
	if err != nil {
		t.Fatalf("Synchronize: %v", err)
	}

	a, b := root.Child(0), root.Child(1)
	if a.Child(0) != b.Child(0) {
		t.Fatal("shared cluster should be one node referenced from both parents")
	}
	n, ok := s.Cache().Get(KindGroup, "s")
	if !ok || n != a.Child(0) {
		t.Error("cache should hold the shared node")
	}
	if n.Parent() != a {
		t.Error("first parent should own the shared node")
	}
	if n.Len() != 1 {
		t.Errorf("shared cluster children built twice: len = %d", n.Len())
	}
	if st := s.LastStats(); st.Groups != 3 || st.Leaves != 1 || st.Reused != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestSynchronize_SharedItemAndIdempotentAppend(t *testing.T) {
	doc := item("7", "Doc")
	result := &models.ClusterResult{Clusters: []*models.Cluster{
		{ID: "a", Label: "A", Items: []*models.Item{doc, doc}},
		{ID: "b", Label: "B", Items: []*models.Item{item("7", "Doc")}},
		{ID: "a", Label: "A duplicate"},
	}}

	root, err := NewSynchronizer().Synchronize(result)
	if err != nil {
		t.Fatalf("Synchronize: %v", err)
	}
	if root.Len() != 2 {
		t.Fatalf("duplicate top-level cluster appended twice: %v", labels(root.Children()))
	}
	a, b := root.Child(0), root.Child(1)
	if a.Len() != 1 {
		t.Errorf("item appended twice to the same parent: %v", labels(a.Children()))
	}
	if a.Child(0) != b.Child(0) {
		t.Error("shared item should be one leaf node")
	}
}

func TestSynchronize_CacheIsPerPass(t *testing.T) {
	result := &models.ClusterResult{Clusters: []*models.Cluster{{ID: "1", Label: "One"}}}
	s := NewSynchronizer()

	first, _ := s.Synchronize(result)
	cache := s.Cache()
	second, _ := s.Synchronize(result)

	if first.Child(0) == second.Child(0) {
		t.Error("nodes must not be reused across passes")
	}
	if s.Cache() == cache {
		t.Error("each pass should start with a fresh cache")
	}
	if first.Child(0).Parent() != first {
		t.Error("second pass must not re-parent nodes of the first tree")
	}
}

func TestSynchronize_FailedPassKeepsPreviousCache(t *testing.T) {
	s := NewSynchronizer()
	if _, err := s.Synchronize(&models.ClusterResult{Clusters: []*models.Cluster{{ID: "1", Label: "One"}}}); err != nil {
		t.Fatal(err)
	}
	good := s.Cache()

	bad := &models.Cluster{ID: "x"}
	bad.Subclusters = []*models.Cluster{bad}
	if _, err := s.Synchronize(&models.ClusterResult{Clusters: []*models.Cluster{bad}}); err == nil {
		t.Fatal("expected error")
	}
	if s.Cache() != good {
		t.Error("failed pass must not replace the cache")
	}
	if _, ok := s.Cache().Get(KindGroup, "x"); ok {
		t.Error("failed pass leaked entries into the cache")
	}
}

func TestSynchronize_DoesNotMutateInput(t *testing.T) {
	c := &models.Cluster{ID: "1", Label: "One", Items: []*models.Item{item("2", "")}}
	result := &models.ClusterResult{Clusters: []*models.Cluster{c}}
	if _, err := NewSynchronizer().Synchronize(result); err != nil {
		t.Fatal(err)
	}
	if len(result.Clusters) != 1 || c.Label != "One" || len(c.Items) != 1 || c.Items[0].Fields != nil {
		t.Error("input result was modified")
	}
}

func TestItemLabel(t *testing.T) {
	if got := ItemLabel(item("3", "")); got != "[3]" {
		t.Errorf("label = %q", got)
	}
	if got := ItemLabel(item("3", "Title")); got != "[3] Title" {
		t.Errorf("label = %q", got)
	}
}

// resultShape describes an acyclic result by index: a cluster only lists
// subclusters with a higher index.
type resultShape struct {
	subs   [][]int
	items  [][]int
	titles []string
	top    []int
}

func drawShape(t *rapid.T) resultShape {
	nc := rapid.IntRange(0, 8).Draw(t, "clusters")
	ni := rapid.IntRange(0, 10).Draw(t, "items")
	s := resultShape{
		subs:   make([][]int, nc),
		items:  make([][]int, nc),
		titles: make([]string, ni),
	}
	for i := range s.titles {
		s.titles[i] = rapid.SampledFrom([]string{"", "Doc", "Another doc"}).Draw(t, "title")
	}
	for i := 0; i < nc; i++ {
		if i+1 < nc {
			s.subs[i] = rapid.SliceOfN(rapid.IntRange(i+1, nc-1), 0, 3).Draw(t, "subs")
		}
		if ni > 0 {
			s.items[i] = rapid.SliceOfN(rapid.IntRange(0, ni-1), 0, 4).Draw(t, "members")
		}
	}
	if nc > 0 {
		s.top = rapid.SliceOfN(rapid.IntRange(0, nc-1), 0, nc).Draw(t, "top")
	}
	return s
}

func clusterID(i int) string { return fmt.Sprintf("c%d", i) }
func itemID(i int) string    { return fmt.Sprintf("i%d", i) }

func (s resultShape) build() *models.ClusterResult {
	clusters := make([]*models.Cluster, len(s.subs))
	for i := len(s.subs) - 1; i >= 0; i-- {
		c := &models.Cluster{ID: clusterID(i), Label: "Cluster " + clusterID(i)}
		for _, sub := range s.subs[i] {
			c.Subclusters = append(c.Subclusters, clusters[sub])
		}
		for _, m := range s.items[i] {
			c.Items = append(c.Items, item(itemID(m), s.titles[m]))
		}
		clusters[i] = c
	}
	r := &models.ClusterResult{}
	for _, i := range s.top {
		r.Clusters = append(r.Clusters, clusters[i])
	}
	return r
}

func TestSynchronize_DeterministicProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		shape := drawShape(t)

		a, err := NewSynchronizer().Synchronize(shape.build())
		if err != nil {
			t.Fatalf("Synchronize: %v", err)
		}
		b, err := NewSynchronizer().Synchronize(shape.build())
		if err != nil {
			t.Fatalf("Synchronize: %v", err)
		}
		if !Equal(a, b) {
			t.Fatal("structurally identical inputs produced different trees")
		}
	})
}

func TestSynchronize_ChildOrderProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		shape := drawShape(t)
		s := NewSynchronizer()
		if _, err := s.Synchronize(shape.build()); err != nil {
			t.Fatalf("Synchronize: %v", err)
		}

		for i := range shape.subs {
			n, ok := s.Cache().Get(KindGroup, clusterID(i))
			if !ok {
				continue
			}
			var want []Key
			seen := make(map[Key]bool)
			add := func(k Key) {
				if !seen[k] {
					seen[k] = true
					want = append(want, k)
				}
			}
			for _, sub := range shape.subs[i] {
				add(Key{Kind: KindGroup, ID: clusterID(sub)})
			}
			for _, m := range shape.items[i] {
				add(Key{Kind: KindLeaf, ID: itemID(m)})
			}

			if n.Len() != len(want) {
				t.Fatalf("%s: %d children, want %d", n.ID, n.Len(), len(want))
			}
			for j, k := range want {
				c := n.Child(j)
				if c.Kind != k.Kind || c.ID != k.ID {
					t.Fatalf("%s child %d = %s/%s, want %s/%s", n.ID, j, c.Kind, c.ID, k.Kind, k.ID)
				}
				if cached, _ := s.Cache().Get(k.Kind, k.ID); cached != c {
					t.Fatalf("%s child %d is not the cached node", n.ID, j)
				}
				if c.Parent() == nil {
					t.Fatalf("%s child %d has no owner", n.ID, j)
				}
			}
		}
	})
}
