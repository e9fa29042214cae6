package ext2sim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmfabritius/ext2sim/ext2sim"
	"github.com/dmfabritius/ext2sim/testutil"
)

func TestMountDevice_ReadsFormattedSuperblock(t *testing.T) {
	stream, totalBlocks := testutil.NewFormattedImage(t, "tiny")
	device, err := ext2sim.MountDevice(stream, totalBlocks)
	require.NoError(t, err)

	assert.Equal(t, uint32(ext2sim.RootDirInodeNum), device.RootInode)
	assert.Equal(t, uint32(totalBlocks), device.Blocks)
	assert.Greater(t, device.FreeBlks, uint32(0))
	assert.Equal(t, device.FreeIns, device.Inodes-1)
}

func TestDevice_AllocateDeallocate_RoundTrip(t *testing.T) {
	stream, totalBlocks := testutil.NewFormattedImage(t, "tiny")
	device, err := ext2sim.MountDevice(stream, totalBlocks)
	require.NoError(t, err)

	before := device.FreeBlks
	n := device.Allocate(ext2sim.BitmapBlock)
	assert.Equal(t, before-1, device.FreeBlks)

	require.NoError(t, device.Deallocate(ext2sim.BitmapBlock, n))
	assert.Equal(t, before, device.FreeBlks)
}

func TestDevice_Deallocate_OutOfRange(t *testing.T) {
	stream, totalBlocks := testutil.NewFormattedImage(t, "tiny")
	device, err := ext2sim.MountDevice(stream, totalBlocks)
	require.NoError(t, err)

	assert.Error(t, device.Deallocate(ext2sim.BitmapBlock, device.Blocks+100))
}
