package fractaltree

// Value is one (key, datum) pair. Pairs are compared by key only.
type Value[K, D any] struct {
	Key   K
	Datum D
}

// mergeNewWins merges two key-sorted slices into one. On equal keys the
// entry from newItems wins and the current entry is discarded.
func mergeNewWins[K, D any](newItems, current []Value[K, D], cmp func(a, b K) int) []Value[K, D] {
	result := make([]Value[K, D], 0, len(newItems)+len(current))

	i, j := 0, 0
	for i < len(newItems) && j < len(current) {
		switch c := cmp(newItems[i].Key, current[j].Key); {
		case c < 0:
			result = append(result, newItems[i])
			i++
		case c > 0:
			result = append(result, current[j])
			j++
		default:
			// Equal keys: take the new entry, drop the current one.
			result = append(result, newItems[i])
			i++
			j++
		}
	}
	result = append(result, newItems[i:]...)
	result = append(result, current[j:]...)

	return result
}

// isSortedStrict reports whether items is strictly increasing by key.
func isSortedStrict[K, D any](items []Value[K, D], cmp func(a, b K) int) bool {
	for i := 1; i < len(items); i++ {
		if cmp(items[i-1].Key, items[i].Key) >= 0 {
			return false
		}
	}
	return true
}
