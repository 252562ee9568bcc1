package fractaltree

import (
	"encoding/binary"
)

// ValueCodec describes the fixed-size binary layout of keys and data on a
// raw block. Sizes are fixed per instantiation; the derived node and leaf
// capacities depend on them.
type ValueCodec[K, D any] interface {
	KeySize() int
	DataSize() int
	PutKey(p []byte, k K)
	Key(p []byte) K
	PutDatum(p []byte, d D)
	Datum(p []byte) D
}

// Uint64Codec lays out uint64 keys and uint64 data little-endian, 8 bytes
// each.
type Uint64Codec struct{}

func (Uint64Codec) KeySize() int  { return 8 }
func (Uint64Codec) DataSize() int { return 8 }

func (Uint64Codec) PutKey(p []byte, k uint64) {
	binary.LittleEndian.PutUint64(p, k)
}

func (Uint64Codec) Key(p []byte) uint64 {
	return binary.LittleEndian.Uint64(p)
}

func (Uint64Codec) PutDatum(p []byte, d uint64) {
	binary.LittleEndian.PutUint64(p, d)
}

func (Uint64Codec) Datum(p []byte) uint64 {
	return binary.LittleEndian.Uint64(p)
}

// CompareUint64 is the comparator matching Uint64Codec keys.
func CompareUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
