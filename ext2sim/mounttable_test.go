package ext2sim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmfabritius/ext2sim/testutil"
)

func TestMount_SecondDeviceCrossesBoundary(t *testing.T) {
	fs, proc := testutil.NewMountedFileSystem(t)

	_, err := fs.Mkdir("/mnt", fs.Root, proc.UID, proc.GID)
	require.NoError(t, err)

	secondStream, secondBlocks := testutil.NewFormattedImage(t, "tiny")
	secondRoot, err := fs.Mount(secondStream, secondBlocks, "second.img", "/mnt")
	require.NoError(t, err)

	entered, err := fs.Resolve("/mnt", fs.Root)
	require.NoError(t, err)
	assert.Same(t, secondRoot.Device, entered.Device, "resolving into a mount point must land on the mounted device's root")
	require.NoError(t, fs.Cache.Put(entered))

	path, err := fs.FullPath(secondRoot)
	require.NoError(t, err)
	assert.Equal(t, "/mnt", path)

	require.NoError(t, fs.Unmount("/mnt"))
}

func TestUnmount_RejectsBusyDevice(t *testing.T) {
	fs, proc := testutil.NewMountedFileSystem(t)

	_, err := fs.Mkdir("/mnt", fs.Root, proc.UID, proc.GID)
	require.NoError(t, err)

	secondStream, secondBlocks := testutil.NewFormattedImage(t, "tiny")
	_, err = fs.Mount(secondStream, secondBlocks, "second.img", "/mnt")
	require.NoError(t, err)

	held, err := fs.Resolve("/mnt", fs.Root)
	require.NoError(t, err)

	assert.Error(t, fs.Unmount("/mnt"), "must refuse to unmount while a reference into the device is still held")

	require.NoError(t, fs.Cache.Put(held))
	assert.NoError(t, fs.Unmount("/mnt"))
}

func TestDisplay_ListsMountedDevices(t *testing.T) {
	fs, _ := testutil.NewMountedFileSystem(t)
	out := fs.Display()
	assert.Contains(t, out, "tiny.img")
	assert.Contains(t, out, "/")
}
