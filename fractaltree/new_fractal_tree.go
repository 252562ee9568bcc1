package fractaltree

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/henrifroese/external-memory-fractal-tree/storage_engine/blockstore"
	"github.com/henrifroese/external-memory-fractal-tree/storage_engine/pagecache"
)

// New creates an empty tree: depth 1, a single root node with a resident
// block image, no children, no leaves. Every static requirement on the
// derived capacities is checked here and reported as an error.
func New[K, D any](p Params[K, D]) (*Tree[K, D], error) {
	if p.Store == nil {
		return nil, fmt.Errorf("a block store is required")
	}
	if p.Compare == nil {
		return nil, fmt.Errorf("a key comparator is required")
	}
	if p.Codec == nil {
		return nil, fmt.Errorf("a value codec is required")
	}
	if p.Store.BlockSize() != p.RawBlockSize {
		return nil, fmt.Errorf("store block size %d does not match raw block size %d",
			p.Store.BlockSize(), p.RawBlockSize)
	}

	geo, err := deriveGeometry(p.RawBlockSize, p.RawMemoryPoolSize, p.Codec.KeySize(), p.Codec.DataSize())
	if err != nil {
		return nil, fmt.Errorf("invalid tree parameters: %w", err)
	}

	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &Tree[K, D]{
		geo:    geo,
		cmp:    p.Compare,
		codec:  p.Codec,
		store:  p.Store,
		alloc:  p.Alloc,
		nodes:  make(map[int]*node[K, D]),
		leaves: make(map[int]*leaf[K, D]),
		dirty:  pagecache.NewDirtySet[blockstore.BID](),
		depth:  1,
		logger: logger,
	}

	t.nodeIO = newNodeBlockIO[K, D](p.Store, &t.geo, p.Codec)
	t.leafIO = newLeafBlockIO[K, D](p.Store, &t.geo, p.Codec)
	t.nodeCache = pagecache.New[nodeBlock[K, D], blockstore.BID](
		geo.nodeCacheCapacity,
		func() *nodeBlock[K, D] { return newNodeBlock[K, D](&t.geo) },
		t.nodeIO,
		t.dirty,
	)
	t.leafCache = pagecache.New[leafBlock[K, D], blockstore.BID](
		geo.leafCacheCapacity,
		func() *leafBlock[K, D] { return newLeafBlock[K, D](&t.geo) },
		t.leafIO,
		t.dirty,
	)

	// The root owns its block image for the tree's lifetime; only its BID
	// comes from the store, so the image can be persisted on Close.
	rootBID, err := p.Store.NewBlock(p.Alloc)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate root block: %w", err)
	}
	t.rootBlock = newNodeBlock[K, D](&t.geo)
	t.root = newNodeObject[K, D](t.nextNodeID, rootBID, &t.geo, t.cmp)
	t.nextNodeID++
	t.root.attach(t.rootBlock)
	t.nodes[t.root.id] = t.root

	logger.Debug("fractal tree created",
		zap.Int("max_values", geo.maxValues),
		zap.Int("max_buffer_items", geo.maxBufferItems),
		zap.Int("max_leaf_items", geo.maxLeafItems),
		zap.Int("node_cache_capacity", geo.nodeCacheCapacity),
		zap.Int("leaf_cache_capacity", geo.leafCacheCapacity),
	)

	return t, nil
}

// Close writes the root's resident image and every dirty cached image back
// to the store. The store itself stays open; it is owned by the caller.
func (t *Tree[K, D]) Close() error {
	if err := t.nodeIO.WriteBlock(t.root.bid, t.rootBlock); err != nil {
		return fmt.Errorf("failed to write root block: %w", err)
	}
	if err := t.nodeCache.Close(); err != nil {
		return fmt.Errorf("failed to close node cache: %w", err)
	}
	if err := t.leafCache.Close(); err != nil {
		return fmt.Errorf("failed to close leaf cache: %w", err)
	}
	return nil
}
