package fractaltree

import (
	"fmt"

	"github.com/henrifroese/external-memory-fractal-tree/storage_engine/blockstore"
)

/*
In-memory view of one inner node.

The node object (id, bid, counts) lives in the tree's id map for the tree's
whole lifetime. The block image is transient: valid only between the most
recent cache load for this node and the next cache operation that could
evict. Callers re-attach after every potential eviction point; treating the
image pointer as a stable field is a correctness bug.

Layout invariants: buffer and values are strictly increasing by key over
their logical lengths; childIDs holds numValues+1 identifiers when
numValues > 0. Array slots beyond the logical lengths are unspecified.
*/

// nodeBlock is the in-memory image of an inner node's raw block. Slices are
// allocated at full capacity; logical lengths live on the node object.
type nodeBlock[K, D any] struct {
	buffer   []Value[K, D] // pending messages, sorted by key
	values   []Value[K, D] // pivot/routing values, sorted by key
	childIDs []int         // numValues+1 child identifiers
}

func newNodeBlock[K, D any](g *geometry) *nodeBlock[K, D] {
	return &nodeBlock[K, D]{
		buffer:   make([]Value[K, D], g.maxBufferItems),
		values:   make([]Value[K, D], g.maxValues),
		childIDs: make([]int, g.maxValues+1),
	}
}

type node[K, D any] struct {
	id  int
	bid blockstore.BID

	numBufferItems int
	numValues      int

	block *nodeBlock[K, D] // transient, nil when not attached
	geo   *geometry
	cmp   func(a, b K) int
}

func newNodeObject[K, D any](id int, blockID blockstore.BID, g *geometry, cmp func(a, b K) int) *node[K, D] {
	return &node[K, D]{id: id, bid: blockID, geo: g, cmp: cmp}
}

// attach binds the node to its cached block image.
func (n *node[K, D]) attach(block *nodeBlock[K, D]) {
	n.block = block
}

// detach drops the (possibly stale) image pointer.
func (n *node[K, D]) detach() {
	n.block = nil
}

// ############################################# QUERIES #############################################

// bufferFind binary-searches the buffer for key.
func (n *node[K, D]) bufferFind(key K) (D, bool) {
	idx := lowerBound(n.block.buffer, n.numBufferItems, key, n.cmp)
	if idx < n.numBufferItems && n.cmp(n.block.buffer[idx].Key, key) == 0 {
		return n.block.buffer[idx].Datum, true
	}
	var zero D
	return zero, false
}

// valuesFind binary-searches the pivot values for key. On a hit it returns
// the pivot's datum. On a miss it returns the identifier of the child whose
// subtree must next be searched.
func (n *node[K, D]) valuesFind(key K) (datum D, childID int, found bool) {
	idx := lowerBound(n.block.values, n.numValues, key, n.cmp)
	if idx < n.numValues && n.cmp(n.block.values[idx].Key, key) == 0 {
		return n.block.values[idx].Datum, 0, true
	}
	var zero D
	return zero, n.block.childIDs[idx], false
}

// indexOfUpperBoundOfBuffer returns the index one past the last buffer item
// routed to child childIndex: the first buffer index holding a key >= the
// child's upper pivot, or the buffer length for the last child.
func (n *node[K, D]) indexOfUpperBoundOfBuffer(childIndex int) int {
	if childIndex >= n.numValues {
		return n.numBufferItems
	}
	return lowerBound(n.block.buffer, n.numBufferItems, n.block.values[childIndex].Key, n.cmp)
}

// bufferItems copies buffer slots [low, high).
func (n *node[K, D]) bufferItems(low, high int) []Value[K, D] {
	return append([]Value[K, D](nil), n.block.buffer[low:high]...)
}

func (n *node[K, D]) allBufferItems() []Value[K, D] {
	return n.bufferItems(0, n.numBufferItems)
}

// bufferItemsLessThan copies the buffer items with key < bound.
func (n *node[K, D]) bufferItemsLessThan(bound K) []Value[K, D] {
	idx := lowerBound(n.block.buffer, n.numBufferItems, bound, n.cmp)
	return n.bufferItems(0, idx)
}

// bufferItemsGreaterEqual copies the buffer items with key >= bound.
func (n *node[K, D]) bufferItemsGreaterEqual(bound K) []Value[K, D] {
	idx := lowerBound(n.block.buffer, n.numBufferItems, bound, n.cmp)
	return n.bufferItems(idx, n.numBufferItems)
}

func (n *node[K, D]) bufferItem(i int) Value[K, D] {
	return n.block.buffer[i]
}

// bufferItemsInRange copies the buffer items with low <= key <= high.
func (n *node[K, D]) bufferItemsInRange(low, high K) []Value[K, D] {
	idx := lowerBound(n.block.buffer, n.numBufferItems, low, n.cmp)
	end := idx
	for end < n.numBufferItems && n.cmp(n.block.buffer[end].Key, high) <= 0 {
		end++
	}
	return n.bufferItems(idx, end)
}

// valuesRange copies value slots [low, high).
func (n *node[K, D]) valuesRange(low, high int) []Value[K, D] {
	return append([]Value[K, D](nil), n.block.values[low:high]...)
}

func (n *node[K, D]) valueAt(i int) Value[K, D] {
	return n.block.values[i]
}

// childIDRange copies childID slots [low, high).
func (n *node[K, D]) childIDRange(low, high int) []int {
	return append([]int(nil), n.block.childIDs[low:high]...)
}

func (n *node[K, D]) childID(i int) int {
	return n.block.childIDs[i]
}

// numChildren returns the number of child slots. A pre-split of a child
// with two values leaves a node with zero values and a single child, so
// even numValues == 0 means one child; only the singular root (tree depth
// 1) has none, which the engine distinguishes by depth, never by count.
func (n *node[K, D]) numChildren() int {
	return n.numValues + 1
}

func (n *node[K, D]) maxBufferSize() int {
	return n.geo.maxBufferItems
}

func (n *node[K, D]) bufferFull() bool {
	return n.numBufferItems == n.geo.maxBufferItems
}

func (n *node[K, D]) valuesFull() bool {
	return n.numValues == n.geo.maxValues
}

// valuesAtLeastHalfFull reports whether the node violates the small-split
// precondition and must be split before its parent's buffer is flushed.
func (n *node[K, D]) valuesAtLeastHalfFull() bool {
	return n.numValues >= n.geo.valuesHalfFullCount()
}

// ############################################# MUTATIONS #############################################

// setBuffer replaces the buffer with items. Panics if items exceed the
// buffer capacity or are not strictly sorted.
func (n *node[K, D]) setBuffer(items []Value[K, D]) {
	if len(items) > n.geo.maxBufferItems {
		panic(fmt.Sprintf("node %d: buffer overflow: %d items, capacity %d", n.id, len(items), n.geo.maxBufferItems))
	}
	if !isSortedStrict(items, n.cmp) {
		panic(fmt.Sprintf("node %d: setBuffer input not strictly sorted", n.id))
	}
	copy(n.block.buffer, items)
	n.numBufferItems = len(items)
}

// addToBuffer merges items into the buffer. items must be strictly sorted by
// key. Keys that match a pivot value overwrite that pivot's datum and are
// dropped; the rest merge into the buffer with the new entry winning ties.
// Panics if the merged buffer would exceed capacity.
func (n *node[K, D]) addToBuffer(items []Value[K, D]) {
	if !isSortedStrict(items, n.cmp) {
		panic(fmt.Sprintf("node %d: addToBuffer input not strictly sorted", n.id))
	}

	remaining := n.updateDuplicateValues(items)

	merged := mergeNewWins(remaining, n.block.buffer[:n.numBufferItems], n.cmp)
	if len(merged) > n.geo.maxBufferItems {
		panic(fmt.Sprintf("node %d: buffer overflow: %d items, capacity %d", n.id, len(merged), n.geo.maxBufferItems))
	}
	copy(n.block.buffer, merged)
	n.numBufferItems = len(merged)
}

// updateDuplicateValues walks items and the pivot values in lockstep. For
// every key present in both, the pivot's datum is overwritten with the new
// datum and the item is dropped. The unmatched new items are returned.
func (n *node[K, D]) updateDuplicateValues(items []Value[K, D]) []Value[K, D] {
	remaining := make([]Value[K, D], 0, len(items))

	i, j := 0, 0
	for i < len(items) && j < n.numValues {
		switch c := n.cmp(items[i].Key, n.block.values[j].Key); {
		case c == 0:
			n.block.values[j].Datum = items[i].Datum
			i++
			j++
		case c < 0:
			remaining = append(remaining, items[i])
			i++
		default:
			j++
		}
	}
	remaining = append(remaining, items[i:]...)

	return remaining
}

func (n *node[K, D]) clearBuffer() {
	n.numBufferItems = 0
}

// setValuesAndChildIDs replaces the pivot values and child identifiers.
// Panics unless len(childIDs) == len(values)+1 and both fit their arrays.
func (n *node[K, D]) setValuesAndChildIDs(values []Value[K, D], childIDs []int) {
	if len(childIDs) != len(values)+1 {
		panic(fmt.Sprintf("node %d: %d child ids for %d values", n.id, len(childIDs), len(values)))
	}
	if len(values) > n.geo.maxValues {
		panic(fmt.Sprintf("node %d: values overflow: %d values, capacity %d", n.id, len(values), n.geo.maxValues))
	}
	copy(n.block.values, values)
	copy(n.block.childIDs, childIDs)
	n.numValues = len(values)
}

// addToValues inserts v at its sorted position, shifts the childID tail one
// slot right from that position, and writes leftID and rightID at the
// position and position+1. Panics if the values array is full or v's key is
// already present.
func (n *node[K, D]) addToValues(v Value[K, D], leftID, rightID int) {
	if n.numValues == n.geo.maxValues {
		panic(fmt.Sprintf("node %d: values overflow: capacity %d", n.id, n.geo.maxValues))
	}

	pos := lowerBound(n.block.values, n.numValues, v.Key, n.cmp)
	if pos < n.numValues && n.cmp(n.block.values[pos].Key, v.Key) == 0 {
		panic(fmt.Sprintf("node %d: addToValues key already present", n.id))
	}

	copy(n.block.values[pos+1:n.numValues+1], n.block.values[pos:n.numValues])
	n.block.values[pos] = v

	if n.numValues > 0 {
		copy(n.block.childIDs[pos+1:n.numValues+2], n.block.childIDs[pos:n.numValues+1])
	}
	n.block.childIDs[pos] = leftID
	n.block.childIDs[pos+1] = rightID

	n.numValues++
}

func (n *node[K, D]) clearValues() {
	n.numValues = 0
}

// clear resets both logical lengths.
func (n *node[K, D]) clear() {
	n.clearBuffer()
	n.clearValues()
}
