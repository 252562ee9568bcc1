package pagecache

import (
	"container/list"
	"fmt"
)

/*
This file is the main file of the page cache.

The cache works on exact LRU: Load of a cached identifier moves its entry to
the most-recently-used end; a miss takes an image from the unused pool
(evicting the least-recently-used entry first if the pool is empty), reads
the block through the BlockIO, and installs it at the most-recently-used end.

A dirty image is never dropped: eviction and kick write it back and clear the
dirty marker before the image returns to the unused pool.
*/

// New creates a cache holding capacity images. newBlock must return a fresh
// zeroed image; all capacity images are allocated up front into the unused
// pool so that reused images never leak bytes from a previous binding.
func New[B any, BID comparable](capacity int, newBlock func() *B, io BlockIO[B, BID], dirty *DirtySet[BID]) *Cache[B, BID] {
	c := &Cache[B, BID]{
		capacity: capacity,
		io:       io,
		dirty:    dirty,
		lru:      list.New(),
		entries:  make(map[BID]*list.Element, capacity),
		unused:   make([]*B, 0, capacity),
	}
	for i := 0; i < capacity; i++ {
		c.unused = append(c.unused, newBlock())
	}
	return c
}

// Load returns the in-memory image of bid, reading it from the store on a
// miss. Until the next Load, Kick or Evict on this cache, the returned
// pointer stays valid and a repeated Load of the same bid returns the same
// pointer. Load may evict the least-recently-used entry to free an image.
func (c *Cache[B, BID]) Load(bid BID) (*B, error) {
	if elem, ok := c.entries[bid]; ok {
		c.stats.Hits++
		c.lru.MoveToFront(elem)
		return elem.Value.(*entry[B, BID]).block, nil
	}
	c.stats.Misses++

	if len(c.unused) == 0 {
		if err := c.Evict(); err != nil {
			return nil, fmt.Errorf("failed to evict for load: %w", err)
		}
	}

	// Take an image off the unused pool and read into it. The entry is only
	// installed after a successful read, so a read failure leaves the cache
	// accounting untouched.
	block := c.unused[len(c.unused)-1]
	c.unused = c.unused[:len(c.unused)-1]

	if err := c.io.ReadBlock(bid, block); err != nil {
		c.unused = append(c.unused, block)
		return nil, fmt.Errorf("failed to read block into cache: %w", err)
	}

	elem := c.lru.PushFront(&entry[B, BID]{bid: bid, block: block})
	c.entries[bid] = elem
	return block, nil
}

// Evict removes the least-recently-used entry, writing its image back first
// if the identifier is dirty. A write failure leaves the entry cached and
// dirty.
func (c *Cache[B, BID]) Evict() error {
	elem := c.lru.Back()
	if elem == nil {
		return fmt.Errorf("cannot evict from an empty cache")
	}
	return c.remove(elem)
}

// Kick removes bid from the cache, writing its image back first if dirty.
// Kicking an identifier that is not cached is a no-op.
func (c *Cache[B, BID]) Kick(bid BID) error {
	elem, ok := c.entries[bid]
	if !ok {
		return nil
	}
	return c.remove(elem)
}

// remove writes back (if dirty) and uninstalls one cache entry, returning
// its image to the unused pool.
func (c *Cache[B, BID]) remove(elem *list.Element) error {
	ent := elem.Value.(*entry[B, BID])

	if c.dirty.Contains(ent.bid) {
		if err := c.io.WriteBlock(ent.bid, ent.block); err != nil {
			return fmt.Errorf("failed to write back dirty block: %w", err)
		}
		c.dirty.Remove(ent.bid)
		c.stats.WriteBacks++
	}

	delete(c.entries, ent.bid)
	c.lru.Remove(elem)
	c.unused = append(c.unused, ent.block)
	c.stats.Evictions++
	return nil
}

// Flush writes back every dirty cached image without evicting anything.
func (c *Cache[B, BID]) Flush() error {
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		ent := elem.Value.(*entry[B, BID])
		if !c.dirty.Contains(ent.bid) {
			continue
		}
		if err := c.io.WriteBlock(ent.bid, ent.block); err != nil {
			return fmt.Errorf("failed to flush dirty block: %w", err)
		}
		c.dirty.Remove(ent.bid)
	}
	return nil
}

// Close writes back every dirty image and releases the cache's bookkeeping.
func (c *Cache[B, BID]) Close() error {
	if err := c.Flush(); err != nil {
		return err
	}
	c.lru.Init()
	c.entries = make(map[BID]*list.Element)
	c.unused = c.unused[:0]
	c.capacity = 0
	return nil
}
