package fractaltree

// Find returns the datum stored under key. found is false when the key is
// not present; the datum is then the zero value and must not be relied on.
//
// The descent probes each node's buffer first, then its pivot values, and
// only then descends, so a buffered insert is found without touching any
// leaf.
func (t *Tree[K, D]) Find(key K) (datum D, found bool, err error) {
	var zero D

	n := t.root
	level := 1
	for {
		if err := t.loadNode(n); err != nil {
			return zero, false, err
		}

		if d, ok := n.bufferFind(key); ok {
			return d, true, nil
		}

		// A singular root has nowhere to descend.
		if level == t.depth {
			return zero, false, nil
		}

		d, childID, ok := n.valuesFind(key)
		if ok {
			return d, true, nil
		}

		if level == t.depth-1 {
			l := t.leafByID(childID)
			if err := t.loadLeaf(l); err != nil {
				return zero, false, err
			}
			d, ok := l.bufferFind(key)
			return d, ok, nil
		}

		n = t.nodeByID(childID)
		level++
	}
}
