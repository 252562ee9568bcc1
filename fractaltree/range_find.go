package fractaltree

import (
	"fmt"
)

// RangeFind returns every stored pair with lower <= key <= upper, in
// ascending key order. Both bounds are inclusive; an empty or inverted
// range returns nil.
//
// A range scan must see values in their final places, so the buffers along
// the visited paths are drained downward first. That drain is the only side
// effect: it can flush and split nodes exactly as an insert would.
func (t *Tree[K, D]) RangeFind(lower, upper K) ([]Value[K, D], error) {
	if t.cmp(upper, lower) < 0 {
		return nil, nil
	}

	// A singular root's buffer is the final place of every value.
	if t.depth == 1 {
		return t.rootBufferRange(lower, upper), nil
	}

	if err := t.drainRootBuffer(); err != nil {
		return nil, fmt.Errorf("range find: %w", err)
	}

	var out []Value[K, D]
	if err := t.collectNode(t.root, 1, lower, upper, &out); err != nil {
		return nil, fmt.Errorf("range find: %w", err)
	}
	return out, nil
}

// rootBufferRange answers a range scan at depth 1 straight from the root's
// buffer.
func (t *Tree[K, D]) rootBufferRange(lower, upper K) []Value[K, D] {
	r := t.root
	idx := lowerBound(r.block.buffer, r.numBufferItems, lower, t.cmp)
	var out []Value[K, D]
	for ; idx < r.numBufferItems; idx++ {
		v := r.bufferItem(idx)
		if t.cmp(v.Key, upper) > 0 {
			break
		}
		out = append(out, v)
	}
	return out
}

// collectNode appends, in ascending key order, every in-range value below
// n: the subtrees of every child whose key range intersects [lower, upper],
// interleaved with n's own in-range pivots. n's buffer has already been
// drained, or, when its drain was skipped, the caller merges n's buffered
// messages over the result. Each visited inner child's buffer is drained
// before descending.
func (t *Tree[K, D]) collectNode(n *node[K, D], level int, lower, upper K, out *[]Value[K, D]) error {
	for i := 0; i < n.numChildren(); i++ {
		if err := t.loadNode(n); err != nil {
			return err
		}

		if t.childRangeIntersects(n, i, lower, upper) {
			if level == t.depth-1 {
				l := t.leafByID(n.childID(i))
				if err := t.loadLeaf(l); err != nil {
					return err
				}
				*out = append(*out, l.itemsInRange(lower, upper)...)
			} else {
				child := t.nodeByID(n.childID(i))
				if err := t.loadNode(child); err != nil {
					return err
				}
				if err := t.loadNode(n); err != nil {
					return err
				}
				drained, err := t.drainNodeBuffer(n, child, level+1)
				if err != nil {
					return err
				}
				if err := t.loadNode(child); err != nil {
					return err
				}
				var sub []Value[K, D]
				if err := t.collectNode(child, level+1, lower, upper, &sub); err != nil {
					return err
				}
				if !drained {
					// The child kept its buffer; its pending messages
					// shadow older values in the subtree below.
					if err := t.loadNode(child); err != nil {
						return err
					}
					sub = mergeNewWins(child.bufferItemsInRange(lower, upper), sub, t.cmp)
				}
				*out = append(*out, sub...)
			}
		}

		// The pivot sits between child i and child i+1.
		if err := t.loadNode(n); err != nil {
			return err
		}
		if i < n.numValues {
			v := n.valueAt(i)
			if t.cmp(v.Key, lower) >= 0 && t.cmp(v.Key, upper) <= 0 {
				*out = append(*out, v)
			}
		}
	}
	return nil
}

// childRangeIntersects reports whether child i's key range, bounded below
// by pivot i-1 (inclusive) and above by pivot i (exclusive), intersects
// [lower, upper]. n must be attached.
func (t *Tree[K, D]) childRangeIntersects(n *node[K, D], i int, lower, upper K) bool {
	if i < n.numValues && t.cmp(n.valueAt(i).Key, lower) <= 0 {
		return false // child's whole range is below lower
	}
	if i > 0 && t.cmp(n.valueAt(i-1).Key, upper) > 0 {
		return false // child's whole range is above upper
	}
	return true
}
