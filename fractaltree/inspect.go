package fractaltree

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
)

// Visualize prints a human-readable dump of the tree to stdout.
// Informational only.
func (t *Tree[K, D]) Visualize() error {
	return t.VisualizeTo(os.Stdout)
}

// VisualizeTo writes a human-readable dump of the tree to w: a geometry
// summary, then each level's nodes (id, pivot keys, buffer occupancy), then
// the leaves. Loading the dumped blocks goes through the caches and may
// evict, like any other traversal.
func (t *Tree[K, D]) VisualizeTo(w io.Writer) error {
	p := func(format string, args ...interface{}) { fmt.Fprintf(w, format, args...) }

	p("fractal tree: depth=%d nodes=%d leaves=%d\n", t.depth, len(t.nodes), len(t.leaves))
	p("  geometry: block=%s pool=%s V_n=%d B_n=%d B_l=%d caches=%d/%d\n",
		humanize.IBytes(uint64(t.geo.rawBlockSize)),
		humanize.IBytes(uint64(t.geo.rawMemoryPoolSize)),
		t.geo.maxValues, t.geo.maxBufferItems, t.geo.maxLeafItems,
		t.geo.nodeCacheCapacity, t.geo.leafCacheCapacity)
	p("  splits: singular=%d root=%d node=%d leaf=%d flushes: inner=%d bottom=%d\n",
		t.stats.SingularRootSplits, t.stats.RootSplits, t.stats.NodeSplits,
		t.stats.LeafSplits, t.stats.BufferFlushes, t.stats.BottomFlushes)
	nodeStats, leafStats := t.CacheStats()
	p("  node cache: hits=%d misses=%d evictions=%d writebacks=%d\n",
		nodeStats.Hits, nodeStats.Misses, nodeStats.Evictions, nodeStats.WriteBacks)
	p("  leaf cache: hits=%d misses=%d evictions=%d writebacks=%d\n",
		leafStats.Hits, leafStats.Misses, leafStats.Evictions, leafStats.WriteBacks)

	queue := []*node[K, D]{t.root}
	for level := 1; len(queue) > 0; level++ {
		p("  level %d:\n", level)
		var next []*node[K, D]
		for _, n := range queue {
			if err := t.loadNode(n); err != nil {
				return err
			}

			if t.depth == 1 {
				p("    [node %d] singular root, buffer=%d/%d\n",
					n.id, n.numBufferItems, t.geo.maxBufferItems)
				continue
			}

			keys := make([]K, 0, n.numValues)
			for i := 0; i < n.numValues; i++ {
				keys = append(keys, n.valueAt(i).Key)
			}
			p("    [node %d] values=%v children=%v buffer=%d/%d\n",
				n.id, keys, n.childIDRange(0, n.numChildren()), n.numBufferItems, t.geo.maxBufferItems)

			if level == t.depth-1 {
				for i := 0; i < n.numChildren(); i++ {
					l := t.leafByID(n.childID(i))
					if err := t.loadLeaf(l); err != nil {
						return err
					}
					var lo, hi K
					if l.numBufferItems > 0 {
						lo = l.block.buffer[0].Key
						hi = l.block.buffer[l.numBufferItems-1].Key
					}
					p("      [leaf %d] items=%d/%d range=[%v, %v]\n",
						l.id, l.numBufferItems, t.geo.maxLeafItems, lo, hi)
					if err := t.loadNode(n); err != nil {
						return err
					}
				}
			} else if level < t.depth-1 {
				for i := 0; i < n.numChildren(); i++ {
					next = append(next, t.nodeByID(n.childID(i)))
				}
			}
		}
		queue = next
	}

	return nil
}
