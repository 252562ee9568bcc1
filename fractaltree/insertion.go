package fractaltree

import (
	"fmt"
)

// Insert adds a (key, datum) pair to the tree. Inserting a key that is
// already present overwrites its datum.
//
// The pair lands in the root's buffer. When the buffer is full, the root is
// first made ready: a singular root is split into two leaves, a root whose
// values are at least half full is split to a new level (preserving the
// small-split invariant before any flushing), and otherwise the buffer is
// flushed toward the children.
func (t *Tree[K, D]) Insert(v Value[K, D]) error {
	if !t.root.bufferFull() {
		t.root.addToBuffer([]Value[K, D]{v})
		return nil
	}

	switch {
	case t.depth == 1:
		if err := t.splitSingularRoot(); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
	case t.root.valuesAtLeastHalfFull():
		if err := t.splitRoot(); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
	case t.depth == 2:
		if err := t.flushBottomBuffer(t.root); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
	default:
		if err := t.flushBuffer(t.root, 1); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
	}

	t.root.addToBuffer([]Value[K, D]{v})
	return nil
}
