package ext2sim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmfabritius/ext2sim/ext2sim"
	"github.com/dmfabritius/ext2sim/testutil"
)

func TestDirectory_ListFindAppendRemove(t *testing.T) {
	fs, proc := testutil.NewMountedFileSystem(t)
	_ = proc

	root := fs.Root
	entries, err := ext2sim.ListEntries(root.Device, &root.Inode)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	inodeNum, err := fs.Creat("/file.txt", fs.Root, proc.UID, proc.GID)
	require.NoError(t, err)

	found, ok, err := ext2sim.Find(root.Device, &root.Inode, "file.txt")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, inodeNum, found)

	name, ok, err := ext2sim.NameOf(root.Device, &root.Inode, inodeNum)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "file.txt", name)

	entries, err = ext2sim.ListEntries(root.Device, &root.Inode)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	removed, err := ext2sim.Remove(root.Device, &root.Inode, "file.txt")
	require.NoError(t, err)
	assert.True(t, removed)

	_, ok, err = ext2sim.Find(root.Device, &root.Inode, "file.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDirectory_IsEmpty(t *testing.T) {
	fs, proc := testutil.NewMountedFileSystem(t)

	_, err := fs.Mkdir("/sub", fs.Root, proc.UID, proc.GID)
	require.NoError(t, err)

	sub, err := fs.Resolve("/sub", fs.Root)
	require.NoError(t, err)
	defer fs.Cache.Put(sub)

	empty, err := ext2sim.IsEmpty(sub.Device, &sub.Inode)
	require.NoError(t, err)
	assert.True(t, empty)

	_, err = fs.Creat("/sub/nested.txt", fs.Root, proc.UID, proc.GID)
	require.NoError(t, err)

	empty, err = ext2sim.IsEmpty(sub.Device, &sub.Inode)
	require.NoError(t, err)
	assert.False(t, empty)
}
