package blockstore

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBlockSize = 64

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()

	store, err := NewFileStore(dir, 1, testBlockSize, nil)
	require.NoError(t, err)
	defer store.Close()

	bid, err := store.NewBlock(SingleFile)
	require.NoError(t, err)

	// Freshly allocated blocks read back zeroed.
	image := make([]byte, testBlockSize)
	require.NoError(t, store.Read(bid, image).Wait())
	assert.Equal(t, make([]byte, testBlockSize), image)

	copy(image, []byte("hello, block store"))
	require.NoError(t, store.Write(bid, image).Wait())

	readBack := make([]byte, testBlockSize)
	require.NoError(t, store.Read(bid, readBack).Wait())
	assert.True(t, bytes.Equal(image, readBack))
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewFileStore(dir, 1, testBlockSize, nil)
	require.NoError(t, err)

	bid, err := store.NewBlock(SingleFile)
	require.NoError(t, err)

	image := make([]byte, testBlockSize)
	copy(image, []byte("persisted"))
	require.NoError(t, store.Write(bid, image).Wait())
	require.NoError(t, store.Close())

	reopened, err := NewFileStore(dir, 1, testBlockSize, nil)
	require.NoError(t, err)
	defer reopened.Close()

	readBack := make([]byte, testBlockSize)
	require.NoError(t, reopened.Read(bid, readBack).Wait())
	assert.True(t, bytes.Equal(image, readBack))
}

func TestFileStoreStripedAllocation(t *testing.T) {
	dir := t.TempDir()

	store, err := NewFileStore(dir, 2, testBlockSize, nil)
	require.NoError(t, err)
	defer store.Close()

	var fileIDs []uint32
	for i := 0; i < 4; i++ {
		bid, err := store.NewBlock(Striped)
		require.NoError(t, err)
		fileIDs = append(fileIDs, bid.FileID())
	}
	assert.Equal(t, []uint32{0, 1, 0, 1}, fileIDs)
	assert.Equal(t, int64(4), store.NumBlocks())
}

func TestFileStoreSingleFileAllocation(t *testing.T) {
	dir := t.TempDir()

	store, err := NewFileStore(dir, 2, testBlockSize, nil)
	require.NoError(t, err)
	defer store.Close()

	for i := 0; i < 3; i++ {
		bid, err := store.NewBlock(SingleFile)
		require.NoError(t, err)
		assert.Equal(t, uint32(0), bid.FileID())
		assert.Equal(t, int64(i), bid.Local())
	}
}

func TestFileStoreChecksumDetectsCorruption(t *testing.T) {
	dir := t.TempDir()

	store, err := NewFileStore(dir, 1, testBlockSize, nil)
	require.NoError(t, err)
	defer store.Close()

	bid, err := store.NewBlock(SingleFile)
	require.NoError(t, err)

	image := make([]byte, testBlockSize)
	copy(image, []byte("checksummed"))
	require.NoError(t, store.Write(bid, image).Wait())

	// Corrupt the block behind the store's back.
	path := filepath.Join(dir, "blocks-0.dat")
	file, err := os.OpenFile(path, os.O_RDWR, 0644)
	require.NoError(t, err)
	_, err = file.WriteAt([]byte{0xde, 0xad}, 0)
	require.NoError(t, err)
	require.NoError(t, file.Close())

	err = store.Read(bid, image).Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestFileStoreRejectsBadRequests(t *testing.T) {
	dir := t.TempDir()

	store, err := NewFileStore(dir, 1, testBlockSize, nil)
	require.NoError(t, err)
	defer store.Close()

	bid, err := store.NewBlock(SingleFile)
	require.NoError(t, err)

	// Wrong image size.
	require.Error(t, store.Read(bid, make([]byte, testBlockSize-1)).Wait())
	require.Error(t, store.Write(bid, make([]byte, testBlockSize+1)).Wait())

	// Never-allocated block.
	image := make([]byte, testBlockSize)
	require.Error(t, store.Read(MakeBID(0, 42), image).Wait())
	// Unknown backing file.
	require.Error(t, store.Read(MakeBID(7, 0), image).Wait())
}

func TestBIDEncoding(t *testing.T) {
	bid := MakeBID(3, 0x1234)
	assert.Equal(t, uint32(3), bid.FileID())
	assert.Equal(t, int64(0x1234), bid.Local())
}
