package fractaltree

import (
	"fmt"

	"github.com/henrifroese/external-memory-fractal-tree/storage_engine/blockstore"
)

/*
Typed block <-> raw image codecs, implementing the page cache's BlockIO.

On-block layout (little-endian, all capacity slots written):

	node block: buffer | values | childIDs
	leaf block: buffer

Each value is key bytes followed by datum bytes. Counts are not persisted;
they live on the long-lived node/leaf objects. Whatever WriteBlock emits,
ReadBlock reproduces bit-for-bit into an image of the same type.
*/

// nodeBlockIO encodes node blocks onto raw store blocks.
type nodeBlockIO[K, D any] struct {
	store   blockstore.Store
	geo     *geometry
	codec   ValueCodec[K, D]
	scratch []byte
}

func newNodeBlockIO[K, D any](store blockstore.Store, g *geometry, codec ValueCodec[K, D]) *nodeBlockIO[K, D] {
	return &nodeBlockIO[K, D]{
		store:   store,
		geo:     g,
		codec:   codec,
		scratch: make([]byte, g.rawBlockSize),
	}
}

func (io *nodeBlockIO[K, D]) ReadBlock(blockID blockstore.BID, block *nodeBlock[K, D]) error {
	if err := io.store.Read(blockID, io.scratch).Wait(); err != nil {
		return fmt.Errorf("node block %d: %w", int64(blockID), err)
	}

	off := 0
	off = decodeValues(io.scratch, off, block.buffer, io.codec)
	off = decodeValues(io.scratch, off, block.values, io.codec)
	decodeChildIDs(io.scratch, off, block.childIDs)
	return nil
}

func (io *nodeBlockIO[K, D]) WriteBlock(blockID blockstore.BID, block *nodeBlock[K, D]) error {
	off := 0
	off = encodeValues(io.scratch, off, block.buffer, io.codec)
	off = encodeValues(io.scratch, off, block.values, io.codec)
	off = encodeChildIDs(io.scratch, off, block.childIDs)
	zeroTail(io.scratch, off)

	if err := io.store.Write(blockID, io.scratch).Wait(); err != nil {
		return fmt.Errorf("node block %d: %w", int64(blockID), err)
	}
	return nil
}

// leafBlockIO encodes leaf blocks onto raw store blocks.
type leafBlockIO[K, D any] struct {
	store   blockstore.Store
	geo     *geometry
	codec   ValueCodec[K, D]
	scratch []byte
}

func newLeafBlockIO[K, D any](store blockstore.Store, g *geometry, codec ValueCodec[K, D]) *leafBlockIO[K, D] {
	return &leafBlockIO[K, D]{
		store:   store,
		geo:     g,
		codec:   codec,
		scratch: make([]byte, g.rawBlockSize),
	}
}

func (io *leafBlockIO[K, D]) ReadBlock(blockID blockstore.BID, block *leafBlock[K, D]) error {
	if err := io.store.Read(blockID, io.scratch).Wait(); err != nil {
		return fmt.Errorf("leaf block %d: %w", int64(blockID), err)
	}
	decodeValues(io.scratch, 0, block.buffer, io.codec)
	return nil
}

func (io *leafBlockIO[K, D]) WriteBlock(blockID blockstore.BID, block *leafBlock[K, D]) error {
	off := encodeValues(io.scratch, 0, block.buffer, io.codec)
	zeroTail(io.scratch, off)

	if err := io.store.Write(blockID, io.scratch).Wait(); err != nil {
		return fmt.Errorf("leaf block %d: %w", int64(blockID), err)
	}
	return nil
}

// ############################################# PRIMITIVES #############################################

func encodeValues[K, D any](p []byte, off int, values []Value[K, D], codec ValueCodec[K, D]) int {
	ks, ds := codec.KeySize(), codec.DataSize()
	for i := range values {
		codec.PutKey(p[off:off+ks], values[i].Key)
		off += ks
		if ds > 0 {
			codec.PutDatum(p[off:off+ds], values[i].Datum)
		}
		off += ds
	}
	return off
}

func decodeValues[K, D any](p []byte, off int, values []Value[K, D], codec ValueCodec[K, D]) int {
	ks, ds := codec.KeySize(), codec.DataSize()
	for i := range values {
		values[i].Key = codec.Key(p[off : off+ks])
		off += ks
		if ds > 0 {
			values[i].Datum = codec.Datum(p[off : off+ds])
		}
		off += ds
	}
	return off
}

func encodeChildIDs(p []byte, off int, ids []int) int {
	for _, id := range ids {
		p[off] = byte(id)
		p[off+1] = byte(id >> 8)
		p[off+2] = byte(id >> 16)
		p[off+3] = byte(id >> 24)
		off += childIDSize
	}
	return off
}

func decodeChildIDs(p []byte, off int, ids []int) int {
	for i := range ids {
		ids[i] = int(uint32(p[off]) | uint32(p[off+1])<<8 | uint32(p[off+2])<<16 | uint32(p[off+3])<<24)
		off += childIDSize
	}
	return off
}

func zeroTail(p []byte, off int) {
	for i := off; i < len(p); i++ {
		p[i] = 0
	}
}
