package fractaltree

/*
Buffer flushes.

flushBuffer pushes a node's buffered messages into its inner children;
flushBottomBuffer is the variant whose children are leaves. Both walk the
children left to right, slicing the buffer with indexOfUpperBoundOfBuffer.

Every cache load can evict another block, so any attached image is invalid
after any operation that may load: both node and child are re-loaded at
each such point before their images are touched again. Buffer slices are
materialised as copies before a recursive flush and the remainder is
re-read afterwards, so no full slice is held across the recursion.
*/

// flushBuffer distributes node's buffer over its inner children. level is
// node's distance from the root (root = 1); the children are inner nodes,
// so level < depth-1. Children whose values are at least half full are
// split first, keeping the number of pivots this node can gain bounded at
// one per child.
func (t *Tree[K, D]) flushBuffer(node *node[K, D], level int) error {
	t.stats.BufferFlushes++
	numChildren := node.numChildren()
	high := 0
	for i := 0; i < numChildren; i++ {
		if err := t.loadNode(node); err != nil {
			return err
		}
		low := high
		high = node.indexOfUpperBoundOfBuffer(i)
		if high == low {
			continue
		}

		child := t.nodeByID(node.childID(i))
		if err := t.loadNode(child); err != nil {
			return err
		}
		if err := t.loadNode(node); err != nil {
			return err
		}

		if child.valuesAtLeastHalfFull() {
			if err := t.split(node, child); err != nil {
				return err
			}
			if err := t.loadNode(node); err != nil {
				return err
			}
			if err := t.loadNode(child); err != nil {
				return err
			}
			// The child now covers a narrower key range.
			high = node.indexOfUpperBoundOfBuffer(i)
		}

		space := child.maxBufferSize() - child.numBufferItems
		toPush := high - low
		if toPush <= space {
			child.addToBuffer(node.bufferItems(low, high))
			t.markNodeDirty(child)
		} else {
			// Push what fits, recursively flush the child to make room,
			// then push the rest.
			child.addToBuffer(node.bufferItems(low, low+space))
			t.markNodeDirty(child)

			var err error
			if level == t.depth-2 {
				err = t.flushBottomBuffer(child)
			} else {
				err = t.flushBuffer(child, level+1)
			}
			if err != nil {
				return err
			}

			if err := t.loadNode(child); err != nil {
				return err
			}
			if err := t.loadNode(node); err != nil {
				return err
			}
			child.addToBuffer(node.bufferItems(low+space, high))
			t.markNodeDirty(child)
		}

		// Splits during this iteration may have added children.
		numChildren = node.numChildren()
	}

	if err := t.loadNode(node); err != nil {
		return err
	}
	node.clearBuffer()
	t.markNodeDirty(node)
	return nil
}

// flushBottomBuffer distributes node's buffer over its leaves. A slice that
// would overflow its leaf triggers splitAndFlush, which consumes the whole
// slice while splitting the leaf.
func (t *Tree[K, D]) flushBottomBuffer(node *node[K, D]) error {
	t.stats.BottomFlushes++
	numChildren := node.numChildren()
	high := 0
	for i := 0; i < numChildren; i++ {
		if err := t.loadNode(node); err != nil {
			return err
		}
		low := high
		high = node.indexOfUpperBoundOfBuffer(i)
		if high == low {
			continue
		}

		leaf := t.leafByID(node.childID(i))
		if err := t.loadLeaf(leaf); err != nil {
			return err
		}
		if err := t.loadNode(node); err != nil {
			return err
		}

		toPush := high - low
		if toPush > leaf.maxBufferSize()-leaf.numBufferItems {
			if err := t.splitAndFlush(node, leaf, low, high); err != nil {
				return err
			}
		} else {
			leaf.addToBuffer(node.bufferItems(low, high))
			t.markLeafDirty(leaf)
		}

		numChildren = node.numChildren()
	}

	if err := t.loadNode(node); err != nil {
		return err
	}
	node.clearBuffer()
	t.markNodeDirty(node)
	return nil
}

// drainNodeBuffer empties a non-root node's buffer ahead of a range scan,
// with the same guard as the insert path: pre-split into the parent when
// the node's values are at least half full, then flush whatever remains.
//
// When the node needs a pre-split but the parent's values are already full,
// splitting would overflow the parent; the drain is skipped and drained is
// returned false, in which case the caller merges the node's buffered
// messages over its subtree results instead.
//
// parent and node must be attached; level is node's distance from the root.
func (t *Tree[K, D]) drainNodeBuffer(parent, node *node[K, D], level int) (drained bool, err error) {
	if node.numBufferItems == 0 {
		return true, nil
	}

	if node.valuesAtLeastHalfFull() {
		if parent.valuesFull() {
			return false, nil
		}
		if err := t.split(parent, node); err != nil {
			return false, err
		}
		if err := t.loadNode(node); err != nil {
			return false, err
		}
		if node.numBufferItems == 0 {
			return true, nil
		}
	}

	if level == t.depth-1 {
		return true, t.flushBottomBuffer(node)
	}
	return true, t.flushBuffer(node, level)
}

// drainRootBuffer empties the root's buffer ahead of a range scan. Only
// meaningful at depth >= 2; a singular root's buffer is already every
// value's final place.
func (t *Tree[K, D]) drainRootBuffer() error {
	if t.root.numBufferItems == 0 {
		return nil
	}
	if t.root.valuesAtLeastHalfFull() {
		return t.splitRoot()
	}
	if t.depth == 2 {
		return t.flushBottomBuffer(t.root)
	}
	return t.flushBuffer(t.root, 1)
}
