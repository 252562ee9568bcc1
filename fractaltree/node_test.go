package fractaltree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henrifroese/external-memory-fractal-tree/storage_engine/blockstore"
)

func testGeometry(t *testing.T) *geometry {
	t.Helper()
	g, err := deriveGeometry(testBlockSize, testPoolSize, 8, 8)
	require.NoError(t, err)
	return &g
}

func attachedNode(t *testing.T) *node[uint64, uint64] {
	t.Helper()
	g := testGeometry(t)
	n := newNodeObject[uint64, uint64](1, blockstore.MakeBID(0, 0), g, CompareUint64)
	n.attach(newNodeBlock[uint64, uint64](g))
	return n
}

func attachedLeaf(t *testing.T) *leaf[uint64, uint64] {
	t.Helper()
	g := testGeometry(t)
	l := newLeafObject[uint64, uint64](1, blockstore.MakeBID(0, 0), g, CompareUint64)
	l.attach(newLeafBlock[uint64, uint64](g))
	return l
}

func v(k, d uint64) Value[uint64, uint64] {
	return Value[uint64, uint64]{Key: k, Datum: d}
}

func bufferKeys(n *node[uint64, uint64]) []uint64 {
	keys := make([]uint64, 0, n.numBufferItems)
	for _, item := range n.allBufferItems() {
		keys = append(keys, item.Key)
	}
	return keys
}

func TestNodeAddToBufferMergesSorted(t *testing.T) {
	n := attachedNode(t)

	n.addToBuffer([]Value[uint64, uint64]{v(10, 1), v(30, 3)})
	n.addToBuffer([]Value[uint64, uint64]{v(5, 0), v(20, 2), v(40, 4)})

	assert.Equal(t, []uint64{5, 10, 20, 30, 40}, bufferKeys(n))
	assert.Equal(t, 5, n.numBufferItems)
}

func TestNodeAddToBufferNewWins(t *testing.T) {
	n := attachedNode(t)

	n.addToBuffer([]Value[uint64, uint64]{v(10, 1), v(20, 2)})
	n.addToBuffer([]Value[uint64, uint64]{v(10, 99)})

	d, ok := n.bufferFind(10)
	require.True(t, ok)
	assert.Equal(t, uint64(99), d)
	assert.Equal(t, 2, n.numBufferItems)
}

func TestNodeAddToBufferUpdatesDuplicatePivots(t *testing.T) {
	n := attachedNode(t)
	n.setValuesAndChildIDs([]Value[uint64, uint64]{v(10, 1), v(20, 2)}, []int{100, 101, 102})

	// 20 matches a pivot: its datum is overwritten in place and the item
	// never reaches the buffer. 5 and 25 are genuinely new.
	n.addToBuffer([]Value[uint64, uint64]{v(5, 50), v(20, 99), v(25, 250)})

	assert.Equal(t, []uint64{5, 25}, bufferKeys(n))
	d, _, found := n.valuesFind(20)
	require.True(t, found)
	assert.Equal(t, uint64(99), d)
}

func TestNodeUpdateDuplicateValuesKeepsNewItems(t *testing.T) {
	n := attachedNode(t)
	n.setValuesAndChildIDs([]Value[uint64, uint64]{v(10, 1), v(20, 2)}, []int{100, 101, 102})

	remaining := n.updateDuplicateValues([]Value[uint64, uint64]{v(5, 50), v(20, 99), v(25, 250)})

	// The unmatched new items survive, not the unmatched pivots.
	require.Len(t, remaining, 2)
	assert.Equal(t, uint64(5), remaining[0].Key)
	assert.Equal(t, uint64(25), remaining[1].Key)
}

func TestNodeValuesFindRouting(t *testing.T) {
	n := attachedNode(t)
	n.setValuesAndChildIDs(
		[]Value[uint64, uint64]{v(10, 1), v(20, 2), v(30, 3)},
		[]int{100, 101, 102, 103},
	)

	_, child, found := n.valuesFind(5)
	assert.False(t, found)
	assert.Equal(t, 100, child)

	_, child, found = n.valuesFind(15)
	assert.False(t, found)
	assert.Equal(t, 101, child)

	d, _, found := n.valuesFind(20)
	require.True(t, found)
	assert.Equal(t, uint64(2), d)

	_, child, found = n.valuesFind(35)
	assert.False(t, found)
	assert.Equal(t, 103, child)
}

func TestNodeIndexOfUpperBoundOfBuffer(t *testing.T) {
	n := attachedNode(t)
	n.setValuesAndChildIDs(
		[]Value[uint64, uint64]{v(10, 1), v(20, 2), v(30, 3)},
		[]int{100, 101, 102, 103},
	)
	n.addToBuffer([]Value[uint64, uint64]{v(1, 0), v(5, 0), v(12, 0), v(15, 0), v(25, 0)})

	assert.Equal(t, 2, n.indexOfUpperBoundOfBuffer(0)) // keys < 10
	assert.Equal(t, 4, n.indexOfUpperBoundOfBuffer(1)) // keys < 20
	assert.Equal(t, 5, n.indexOfUpperBoundOfBuffer(2)) // keys < 30
	assert.Equal(t, 5, n.indexOfUpperBoundOfBuffer(3)) // last child
}

func TestNodeAddToValuesShiftsChildIDs(t *testing.T) {
	n := attachedNode(t)

	n.addToValues(v(20, 2), 100, 101)
	assert.Equal(t, []int{100, 101}, n.childIDRange(0, 2))
	assert.Equal(t, 1, n.numValues)
	assert.Equal(t, 2, n.numChildren())

	// Insert below 20: child 100 splits into 102 and 103.
	n.addToValues(v(10, 1), 102, 103)
	assert.Equal(t, []uint64{10, 20}, []uint64{n.valueAt(0).Key, n.valueAt(1).Key})
	assert.Equal(t, []int{102, 103, 101}, n.childIDRange(0, 3))

	// Insert above 20: child 101 splits into 104 and 105.
	n.addToValues(v(30, 3), 104, 105)
	assert.Equal(t, []int{102, 103, 104, 105}, n.childIDRange(0, 4))
	assert.Equal(t, 3, n.numValues)
	assert.True(t, n.valuesFull())
}

func TestNodeBufferRangeQueries(t *testing.T) {
	n := attachedNode(t)
	n.addToBuffer([]Value[uint64, uint64]{v(1, 0), v(5, 0), v(10, 0), v(15, 0)})

	less := n.bufferItemsLessThan(10)
	require.Len(t, less, 2)
	assert.Equal(t, uint64(5), less[1].Key)

	ge := n.bufferItemsGreaterEqual(10)
	require.Len(t, ge, 2)
	assert.Equal(t, uint64(10), ge[0].Key)

	in := n.bufferItemsInRange(5, 10)
	require.Len(t, in, 2)
	assert.Equal(t, uint64(5), in[0].Key)
	assert.Equal(t, uint64(10), in[1].Key)
}

func TestNodeCapacityPanics(t *testing.T) {
	n := attachedNode(t)

	overflow := make([]Value[uint64, uint64], n.geo.maxBufferItems+1)
	for i := range overflow {
		overflow[i] = v(uint64(i), 0)
	}
	assert.Panics(t, func() { n.setBuffer(overflow) })
	assert.Panics(t, func() { n.addToBuffer(overflow) })

	assert.Panics(t, func() {
		n.addToBuffer([]Value[uint64, uint64]{v(2, 0), v(1, 0)}) // unsorted
	})

	n.addToValues(v(10, 1), 100, 101)
	n.addToValues(v(20, 2), 101, 102)
	n.addToValues(v(30, 3), 102, 103)
	assert.Panics(t, func() { n.addToValues(v(40, 4), 103, 104) }) // values full
}

func TestNodeClear(t *testing.T) {
	n := attachedNode(t)
	n.addToValues(v(10, 1), 100, 101)
	n.addToBuffer([]Value[uint64, uint64]{v(5, 0)})

	n.clear()
	assert.Equal(t, 0, n.numValues)
	assert.Equal(t, 0, n.numBufferItems)
}

func TestLeafAddToBufferAndFind(t *testing.T) {
	l := attachedLeaf(t)

	l.addToBuffer([]Value[uint64, uint64]{v(10, 1), v(30, 3)})
	l.addToBuffer([]Value[uint64, uint64]{v(20, 2), v(30, 99)})

	d, ok := l.bufferFind(30)
	require.True(t, ok)
	assert.Equal(t, uint64(99), d, "new entry wins on key ties")

	_, ok = l.bufferFind(25)
	assert.False(t, ok)
	assert.Equal(t, 3, l.numBufferItems)
}

func TestLeafItemsInRange(t *testing.T) {
	l := attachedLeaf(t)
	l.setBuffer([]Value[uint64, uint64]{v(10, 1), v(20, 2), v(30, 3), v(40, 4)})

	in := l.itemsInRange(20, 30)
	require.Len(t, in, 2)
	assert.Equal(t, uint64(20), in[0].Key)
	assert.Equal(t, uint64(30), in[1].Key)

	assert.Empty(t, l.itemsInRange(11, 19))
}

func TestLeafCapacityPanics(t *testing.T) {
	l := attachedLeaf(t)

	overflow := make([]Value[uint64, uint64], l.geo.maxLeafItems+1)
	for i := range overflow {
		overflow[i] = v(uint64(i), 0)
	}
	assert.Panics(t, func() { l.setBuffer(overflow) })
	assert.Panics(t, func() { l.addToBuffer(overflow) })
}
