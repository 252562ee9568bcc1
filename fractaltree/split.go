package fractaltree

import (
	"fmt"

	"go.uber.org/zap"
)

/*
Splits. All four share the same shape: pick a middle element, move the upper
half into a freshly allocated sibling, and promote the middle into the
parent with the two siblings as its children.

New siblings are written straight to the store (see Tree.newNode), so no
split evicts an attached image; callers still re-load after a split because
the splits mutate parent and child counts.
*/

// splitSingularRoot turns the childless root into a two-leaf tree: the left
// half of the buffer goes to a new left leaf, the right half to a new right
// leaf, and the middle buffer item becomes the root's first pivot.
func (t *Tree[K, D]) splitSingularRoot() error {
	r := t.root
	mid := (r.numBufferItems - 1) / 2
	pivot := r.bufferItem(mid)

	left, err := t.newLeaf(r.bufferItems(0, mid))
	if err != nil {
		return fmt.Errorf("split singular root: %w", err)
	}
	right, err := t.newLeaf(r.bufferItems(mid+1, r.numBufferItems))
	if err != nil {
		return fmt.Errorf("split singular root: %w", err)
	}

	r.clearBuffer()
	r.addToValues(pivot, left.id, right.id)
	t.depth++
	t.stats.SingularRootSplits++

	t.logger.Debug("split singular root",
		zap.Int("left_leaf", left.id), zap.Int("right_leaf", right.id))
	return nil
}

// splitRoot adds a level below the root: values, childIDs and buffer are
// partitioned around the middle pivot into two new nodes, and the root
// keeps only the promoted pivot.
func (t *Tree[K, D]) splitRoot() error {
	r := t.root
	m := (r.numValues - 1) / 2
	pivot := r.valueAt(m)

	left, err := t.newNode(r.valuesRange(0, m), r.childIDRange(0, m+1), r.bufferItemsLessThan(pivot.Key))
	if err != nil {
		return fmt.Errorf("split root: %w", err)
	}
	right, err := t.newNode(r.valuesRange(m+1, r.numValues), r.childIDRange(m+1, r.numValues+1), r.bufferItemsGreaterEqual(pivot.Key))
	if err != nil {
		return fmt.Errorf("split root: %w", err)
	}

	r.clear()
	r.addToValues(pivot, left.id, right.id)
	t.depth++
	t.stats.RootSplits++

	t.logger.Debug("split root",
		zap.Int("depth", t.depth), zap.Int("left_node", left.id), zap.Int("right_node", right.id))
	return nil
}

// split divides a half-full inner child around its middle pivot and
// promotes that pivot into parent. Both parent and child must be attached;
// both are mutated and marked dirty.
func (t *Tree[K, D]) split(parent, child *node[K, D]) error {
	m := (child.numValues - 1) / 2
	pivot := child.valueAt(m)

	right, err := t.newNode(
		child.valuesRange(m+1, child.numValues),
		child.childIDRange(m+1, child.numValues+1),
		child.bufferItemsGreaterEqual(pivot.Key),
	)
	if err != nil {
		return fmt.Errorf("split node %d: %w", child.id, err)
	}

	leftBuffer := child.bufferItemsLessThan(pivot.Key)
	child.setValuesAndChildIDs(child.valuesRange(0, m), child.childIDRange(0, m+1))
	child.setBuffer(leftBuffer)
	t.markNodeDirty(child)

	parent.addToValues(pivot, child.id, right.id)
	// A message for the promoted key still buffered in parent is newer than
	// the pivot: fold it into the pivot, as addToBuffer does.
	parent.setBuffer(parent.updateDuplicateValues(parent.allBufferItems()))
	t.markNodeDirty(parent)
	t.stats.NodeSplits++

	t.logger.Debug("split node",
		zap.Int("parent", parent.id), zap.Int("left", child.id), zap.Int("right", right.id))
	return nil
}

// splitAndFlush handles a bottom-level flush whose slice [low, high) of
// parent's buffer would overflow the target leaf: the slice and the leaf's
// contents are merged (the parent's items win ties), the merged list is
// split at its middle into the existing leaf and a new right leaf, and the
// middle value is promoted into parent.
func (t *Tree[K, D]) splitAndFlush(parent *node[K, D], left *leaf[K, D], low, high int) error {
	combined := mergeNewWins(parent.bufferItems(low, high), left.allBufferItems(), t.cmp)
	mid := (len(combined) - 1) / 2
	pivot := combined[mid]

	right, err := t.newLeaf(combined[mid+1:])
	if err != nil {
		return fmt.Errorf("split leaf %d: %w", left.id, err)
	}

	left.setBuffer(combined[:mid])
	t.markLeafDirty(left)

	parent.addToValues(pivot, left.id, right.id)
	t.markNodeDirty(parent)
	t.stats.LeafSplits++

	t.logger.Debug("split leaf",
		zap.Int("parent", parent.id), zap.Int("left", left.id), zap.Int("right", right.id))
	return nil
}
