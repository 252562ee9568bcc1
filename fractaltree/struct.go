// Package fractaltree implements an external-memory fractal tree: an
// ordered key->value index whose working set exceeds internal memory.
// Inner nodes carry a buffer of pending inserts that is flushed toward the
// leaves in batches, so inserts cost asymptotically fewer block transfers
// than a B-tree while lookups and range scans stay B-tree-like.
//
// The tree is single-threaded: all operations run on the calling goroutine
// in program order, blocking only on block store I/O.
package fractaltree

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/henrifroese/external-memory-fractal-tree/storage_engine/blockstore"
	"github.com/henrifroese/external-memory-fractal-tree/storage_engine/pagecache"
)

// Params carries the instantiation parameters of a tree.
type Params[K, D any] struct {
	// RawBlockSize is the size in bytes of one store block. Must match the
	// store's block size.
	RawBlockSize int
	// RawMemoryPoolSize is the total in-memory budget in bytes for cached
	// block images, split evenly between the node and leaf caches.
	RawMemoryPoolSize int
	// Compare is the strict weak order on keys: negative if a < b, zero if
	// equal, positive if a > b.
	Compare func(a, b K) int
	// Codec lays keys and data out on raw blocks.
	Codec ValueCodec[K, D]
	// Store allocates blocks and performs raw I/O.
	Store blockstore.Store
	// Alloc is the allocation strategy passed to the store for every new
	// block.
	Alloc blockstore.AllocationStrategy
	// Logger receives debug traces. Nil means no logging.
	Logger *zap.Logger
}

// Tree is the fractal tree engine.
//
// Parent->child references are by integer id into the node and leaf maps,
// not by in-memory handle: a child's block image may be evicted and
// reloaded while the object, found under the same id, stays put.
type Tree[K, D any] struct {
	geo   geometry
	cmp   func(a, b K) int
	codec ValueCodec[K, D]

	store blockstore.Store
	alloc blockstore.AllocationStrategy

	// The root's block image is always resident; it never enters a cache.
	root      *node[K, D]
	rootBlock *nodeBlock[K, D]

	nodes  map[int]*node[K, D]
	leaves map[int]*leaf[K, D]

	nodeIO    *nodeBlockIO[K, D]
	leafIO    *leafBlockIO[K, D]
	nodeCache *pagecache.Cache[nodeBlock[K, D], blockstore.BID]
	leafCache *pagecache.Cache[leafBlock[K, D], blockstore.BID]
	dirty     *pagecache.DirtySet[blockstore.BID]

	depth      int // 1 = the tree is just the root, no children
	nextNodeID int
	nextLeafID int

	stats TreeStats

	logger *zap.Logger
}

// TreeStats counts structural events over the tree's lifetime.
type TreeStats struct {
	SingularRootSplits int
	RootSplits         int
	NodeSplits         int
	LeafSplits         int
	BufferFlushes      int
	BottomFlushes      int
}

// Depth returns the current tree depth; 1 means the root has no children.
func (t *Tree[K, D]) Depth() int {
	return t.depth
}

// NumNodes returns the number of inner nodes, root included.
func (t *Tree[K, D]) NumNodes() int {
	return len(t.nodes)
}

// NumLeaves returns the number of leaves.
func (t *Tree[K, D]) NumLeaves() int {
	return len(t.leaves)
}

// Stats returns the lifetime split and flush counters.
func (t *Tree[K, D]) Stats() TreeStats {
	return t.stats
}

// CacheStats returns the node and leaf cache activity counters.
func (t *Tree[K, D]) CacheStats() (nodes, leaves pagecache.Stats) {
	return t.nodeCache.GetStats(), t.leafCache.GetStats()
}

// ############################################# OBJECT RESOLUTION #############################################

// nodeByID resolves a child identifier to its node object. An unknown id is
// a programming error.
func (t *Tree[K, D]) nodeByID(id int) *node[K, D] {
	n, ok := t.nodes[id]
	if !ok {
		panic(fmt.Sprintf("unknown node id %d", id))
	}
	return n
}

// leafByID resolves a child identifier to its leaf object.
func (t *Tree[K, D]) leafByID(id int) *leaf[K, D] {
	l, ok := t.leaves[id]
	if !ok {
		panic(fmt.Sprintf("unknown leaf id %d", id))
	}
	return l
}

// ############################################# LOAD / DIRTY #############################################

// loadNode re-attaches n's block image, reading it through the node cache
// if necessary. The root is always attached. Any previously attached image
// pointer of another node may be invalidated by this call.
func (t *Tree[K, D]) loadNode(n *node[K, D]) error {
	if n == t.root {
		return nil
	}
	block, err := t.nodeCache.Load(n.bid)
	if err != nil {
		return fmt.Errorf("failed to load node %d: %w", n.id, err)
	}
	n.attach(block)
	return nil
}

// loadLeaf re-attaches l's block image through the leaf cache.
func (t *Tree[K, D]) loadLeaf(l *leaf[K, D]) error {
	block, err := t.leafCache.Load(l.bid)
	if err != nil {
		return fmt.Errorf("failed to load leaf %d: %w", l.id, err)
	}
	l.attach(block)
	return nil
}

// markNodeDirty records that n's image must be written back before
// eviction. The root is exempt: its image is not cache-managed and is
// written on Close.
func (t *Tree[K, D]) markNodeDirty(n *node[K, D]) {
	if n == t.root {
		return
	}
	t.dirty.Add(n.bid)
}

func (t *Tree[K, D]) markLeafDirty(l *leaf[K, D]) {
	t.dirty.Add(l.bid)
}

// ############################################# OBJECT CREATION #############################################

// newNode allocates a block, registers a node object under a fresh id, and
// persists its initial contents. The initial image is written directly to
// the store, not through the cache, so no resident image is evicted.
func (t *Tree[K, D]) newNode(values []Value[K, D], childIDs []int, buffer []Value[K, D]) (*node[K, D], error) {
	blockID, err := t.store.NewBlock(t.alloc)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate node block: %w", err)
	}

	n := newNodeObject[K, D](t.nextNodeID, blockID, &t.geo, t.cmp)
	t.nextNodeID++

	block := newNodeBlock[K, D](&t.geo)
	n.attach(block)
	n.setValuesAndChildIDs(values, childIDs)
	n.setBuffer(buffer)
	if err := t.nodeIO.WriteBlock(blockID, block); err != nil {
		return nil, fmt.Errorf("failed to write new node %d: %w", n.id, err)
	}
	n.detach()

	t.nodes[n.id] = n
	return n, nil
}

// newLeaf allocates a block, registers a leaf object under a fresh id, and
// persists its initial contents.
func (t *Tree[K, D]) newLeaf(items []Value[K, D]) (*leaf[K, D], error) {
	blockID, err := t.store.NewBlock(t.alloc)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate leaf block: %w", err)
	}

	l := newLeafObject[K, D](t.nextLeafID, blockID, &t.geo, t.cmp)
	t.nextLeafID++

	block := newLeafBlock[K, D](&t.geo)
	l.attach(block)
	l.setBuffer(items)
	if err := t.leafIO.WriteBlock(blockID, block); err != nil {
		return nil, fmt.Errorf("failed to write new leaf %d: %w", l.id, err)
	}
	l.detach()

	t.leaves[l.id] = l
	return l, nil
}
