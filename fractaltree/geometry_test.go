package fractaltree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testBlockSize = 576  // sqrt(576/16)/2 = 3 pivot values per node
	testPoolSize  = 4608 // 4 blocks per cache half
)

func TestDeriveGeometry(t *testing.T) {
	g, err := deriveGeometry(testBlockSize, testPoolSize, 8, 8)
	require.NoError(t, err)

	assert.Equal(t, 16, g.valueSize)
	assert.Equal(t, 3, g.maxValues)
	assert.Equal(t, 32, g.maxBufferItems) // (576 - 3*16 - 4*4) / 16
	assert.Equal(t, 36, g.maxLeafItems)   // 576 / 16
	assert.Equal(t, 3, g.nodeCacheCapacity)
	assert.Equal(t, 4, g.leafCacheCapacity)
	assert.Equal(t, 2, g.valuesHalfFullCount())

	assert.LessOrEqual(t, g.nodeBlockBytes(), testBlockSize)
	assert.LessOrEqual(t, g.leafBlockBytes(), testBlockSize)
}

func TestDeriveGeometryBlockTooSmall(t *testing.T) {
	// 256/16 = 16, sqrt/2 = 2 < 3 pivot values.
	_, err := deriveGeometry(256, testPoolSize, 8, 8)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "value capacity")
}

func TestDeriveGeometryPoolTooSmall(t *testing.T) {
	// Pool of 4 blocks total: 2 per half, node cache capacity 1 < 2.
	_, err := deriveGeometry(testBlockSize, 4*testBlockSize, 8, 8)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache capacity")
}

func TestDeriveGeometryRejectsBadSizes(t *testing.T) {
	_, err := deriveGeometry(0, testPoolSize, 8, 8)
	require.Error(t, err)
	_, err = deriveGeometry(testBlockSize, 0, 8, 8)
	require.Error(t, err)
	_, err = deriveGeometry(testBlockSize, testPoolSize, 0, 8)
	require.Error(t, err)
	_, err = deriveGeometry(testBlockSize, testPoolSize, 8, -1)
	require.Error(t, err)
}
