package blockio_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/dmfabritius/ext2sim/blockio"
)

func newTestDevice(t *testing.T, totalBlocks blockio.BlockNum) *blockio.Device {
	backing := make([]byte, int(totalBlocks)*blockio.BlockSize)
	stream := bytesextra.NewReadWriteSeeker(backing)
	return blockio.NewDevice(stream, totalBlocks)
}

func TestDevice_PutGet_RoundTrip(t *testing.T) {
	dev := newTestDevice(t, 8)

	var want blockio.Block
	copy(want[:], "hello from block 3")

	require.NoError(t, dev.Put(3, &want))

	var got blockio.Block
	require.NoError(t, dev.Get(3, &got))
	assert.Equal(t, want, got)
}

func TestDevice_OutOfBounds(t *testing.T) {
	dev := newTestDevice(t, 4)
	var buf blockio.Block

	assert.Error(t, dev.Get(4, &buf))
	assert.Error(t, dev.Put(4, &buf))
}

func TestBitmapBits(t *testing.T) {
	var buf blockio.Block

	assert.False(t, blockio.TestBit(&buf, 17))
	blockio.SetBit(&buf, 17)
	assert.True(t, blockio.TestBit(&buf, 17))

	// Neighboring bits in the same byte must be unaffected.
	assert.False(t, blockio.TestBit(&buf, 16))
	assert.False(t, blockio.TestBit(&buf, 18))

	blockio.ClearBit(&buf, 17)
	assert.False(t, blockio.TestBit(&buf, 17))
}
