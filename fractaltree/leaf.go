package fractaltree

import (
	"fmt"

	"github.com/henrifroese/external-memory-fractal-tree/storage_engine/blockstore"
)

// leafBlock is the in-memory image of a leaf's raw block: a single sorted
// buffer of stored values at full capacity.
type leafBlock[K, D any] struct {
	buffer []Value[K, D]
}

func newLeafBlock[K, D any](g *geometry) *leafBlock[K, D] {
	return &leafBlock[K, D]{
		buffer: make([]Value[K, D], g.maxLeafItems),
	}
}

// leaf is the in-memory view of one leaf. Like node, the object is
// long-lived while the block image is transient and must be re-attached
// after every potential eviction point.
type leaf[K, D any] struct {
	id  int
	bid blockstore.BID

	numBufferItems int

	block *leafBlock[K, D]
	geo   *geometry
	cmp   func(a, b K) int
}

func newLeafObject[K, D any](id int, blockID blockstore.BID, g *geometry, cmp func(a, b K) int) *leaf[K, D] {
	return &leaf[K, D]{id: id, bid: blockID, geo: g, cmp: cmp}
}

func (l *leaf[K, D]) attach(block *leafBlock[K, D]) {
	l.block = block
}

func (l *leaf[K, D]) detach() {
	l.block = nil
}

// bufferFind binary-searches the leaf for key.
func (l *leaf[K, D]) bufferFind(key K) (D, bool) {
	idx := lowerBound(l.block.buffer, l.numBufferItems, key, l.cmp)
	if idx < l.numBufferItems && l.cmp(l.block.buffer[idx].Key, key) == 0 {
		return l.block.buffer[idx].Datum, true
	}
	var zero D
	return zero, false
}

func (l *leaf[K, D]) allBufferItems() []Value[K, D] {
	return append([]Value[K, D](nil), l.block.buffer[:l.numBufferItems]...)
}

// itemsInRange copies the stored values with low <= key <= high, in
// ascending key order.
func (l *leaf[K, D]) itemsInRange(low, high K) []Value[K, D] {
	idx := lowerBound(l.block.buffer, l.numBufferItems, low, l.cmp)
	var out []Value[K, D]
	for ; idx < l.numBufferItems; idx++ {
		if l.cmp(l.block.buffer[idx].Key, high) > 0 {
			break
		}
		out = append(out, l.block.buffer[idx])
	}
	return out
}

func (l *leaf[K, D]) maxBufferSize() int {
	return l.geo.maxLeafItems
}

// setBuffer replaces the leaf's contents with items. Panics if items exceed
// the leaf capacity or are not strictly sorted.
func (l *leaf[K, D]) setBuffer(items []Value[K, D]) {
	if len(items) > l.geo.maxLeafItems {
		panic(fmt.Sprintf("leaf %d: buffer overflow: %d items, capacity %d", l.id, len(items), l.geo.maxLeafItems))
	}
	if !isSortedStrict(items, l.cmp) {
		panic(fmt.Sprintf("leaf %d: setBuffer input not strictly sorted", l.id))
	}
	copy(l.block.buffer, items)
	l.numBufferItems = len(items)
}

// addToBuffer merges items into the leaf. items must be strictly sorted by
// key; on ties with stored values the new entry wins. Panics if the merged
// result would exceed the leaf capacity.
func (l *leaf[K, D]) addToBuffer(items []Value[K, D]) {
	if !isSortedStrict(items, l.cmp) {
		panic(fmt.Sprintf("leaf %d: addToBuffer input not strictly sorted", l.id))
	}

	merged := mergeNewWins(items, l.block.buffer[:l.numBufferItems], l.cmp)
	if len(merged) > l.geo.maxLeafItems {
		panic(fmt.Sprintf("leaf %d: buffer overflow: %d items, capacity %d", l.id, len(merged), l.geo.maxLeafItems))
	}
	copy(l.block.buffer, merged)
	l.numBufferItems = len(merged)
}
