package fractaltree

import (
	"fmt"
	"math"
)

// childIDSize is the on-block size of one child identifier (uint32,
// little-endian).
const childIDSize = 4

/*
geometry holds every capacity derived from the instantiation parameters.

A node block packs, in order: buffer (maxBufferItems values), values
(maxValues values), childIDs (maxValues+1 identifiers). A leaf block packs a
single buffer of maxLeafItems values. Both fit in one raw block.

maxValues uses the halved square-root formula; the un-halved variant leaves
too little slack for the small-split invariant once buffer space is carved
out of the block.
*/
type geometry struct {
	rawBlockSize      int
	rawMemoryPoolSize int
	valueSize         int

	maxValues      int // V_n: pivot values per node
	maxBufferItems int // B_n: buffered messages per node
	maxLeafItems   int // B_l: values per leaf

	nodeCacheCapacity int
	leafCacheCapacity int
}

// deriveGeometry computes and validates the capacities for the given raw
// block size, memory pool size, and value layout. Every violated static
// requirement is reported as an error.
func deriveGeometry(rawBlockSize, rawMemoryPoolSize, keySize, dataSize int) (geometry, error) {
	var g geometry

	if rawBlockSize <= 0 {
		return g, fmt.Errorf("raw block size must be positive, got %d", rawBlockSize)
	}
	if rawMemoryPoolSize <= 0 {
		return g, fmt.Errorf("raw memory pool size must be positive, got %d", rawMemoryPoolSize)
	}
	if keySize <= 0 {
		return g, fmt.Errorf("key size must be positive, got %d", keySize)
	}
	if dataSize < 0 {
		return g, fmt.Errorf("datum size must be non-negative, got %d", dataSize)
	}

	g.rawBlockSize = rawBlockSize
	g.rawMemoryPoolSize = rawMemoryPoolSize
	g.valueSize = keySize + dataSize

	g.maxValues = int(math.Sqrt(float64(rawBlockSize)/float64(g.valueSize)) / 2)
	if g.maxValues < 3 {
		return g, fmt.Errorf("node value capacity %d below minimum 3; raw block size %d is too small for value size %d",
			g.maxValues, rawBlockSize, g.valueSize)
	}

	g.maxBufferItems = (rawBlockSize - g.maxValues*g.valueSize - (g.maxValues+1)*childIDSize) / g.valueSize
	if g.maxBufferItems < 2 {
		return g, fmt.Errorf("node buffer capacity %d below minimum 2", g.maxBufferItems)
	}

	g.maxLeafItems = rawBlockSize / g.valueSize
	if g.maxLeafItems < 2 {
		return g, fmt.Errorf("leaf capacity %d below minimum 2", g.maxLeafItems)
	}

	blocksInPool := rawMemoryPoolSize / (2 * rawBlockSize)
	g.nodeCacheCapacity = blocksInPool - 1
	g.leafCacheCapacity = blocksInPool
	if g.nodeCacheCapacity < 2 {
		return g, fmt.Errorf("node cache capacity %d below minimum 2; raw memory pool size %d is too small for block size %d",
			g.nodeCacheCapacity, rawMemoryPoolSize, rawBlockSize)
	}
	if g.leafCacheCapacity < 2 {
		return g, fmt.Errorf("leaf cache capacity %d below minimum 2", g.leafCacheCapacity)
	}

	return g, nil
}

// nodeBlockBytes returns the number of block bytes the node layout occupies.
func (g *geometry) nodeBlockBytes() int {
	return g.maxBufferItems*g.valueSize + g.maxValues*g.valueSize + (g.maxValues+1)*childIDSize
}

// leafBlockBytes returns the number of block bytes the leaf layout occupies.
func (g *geometry) leafBlockBytes() int {
	return g.maxLeafItems * g.valueSize
}

// valuesHalfFullCount is the small-split threshold ceil((V_n+1)/2): a node
// with at least this many values is pre-split before its parent flushes.
func (g *geometry) valuesHalfFullCount() int {
	return (g.maxValues + 2) / 2
}
