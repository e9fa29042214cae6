package format_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/dmfabritius/ext2sim/blockio"
	"github.com/dmfabritius/ext2sim/ext2sim"
	"github.com/dmfabritius/ext2sim/format"
)

func TestFormatImage_TinyPreset_MountsCleanly(t *testing.T) {
	preset, err := format.GetPreset("tiny")
	require.NoError(t, err)

	buf := make([]byte, int(preset.TotalBlocks)*blockio.BlockSize)
	stream := bytesextra.NewReadWriteSeeker(buf)

	require.NoError(t, format.FormatImage(stream, preset))

	fs := ext2sim.NewFileSystem()
	root, err := fs.Mount(stream, blockio.BlockNum(preset.TotalBlocks), "tiny.img", "/")
	require.NoError(t, err)
	defer fs.Cache.Put(root)

	assert.True(t, root.IsDir())
	assert.Equal(t, uint32(ext2sim.RootDirInodeNum), root.InodeNum)

	entries, err := ext2sim.ListEntries(root.Device, &root.Inode)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ".", entries[0].Name)
	assert.Equal(t, "..", entries[1].Name)
	assert.Equal(t, root.InodeNum, entries[0].InodeNum)
	assert.Equal(t, root.InodeNum, entries[1].InodeNum)
}

func TestFormatImage_RejectsOversizedPreset(t *testing.T) {
	preset := format.Preset{Slug: "huge", TotalBlocks: 1 << 20, TotalInodes: 8}
	buf := make([]byte, 1024)
	stream := bytesextra.NewReadWriteSeeker(buf)
	assert.Error(t, format.FormatImage(stream, preset))
}

func TestGetPreset_UnknownSlug(t *testing.T) {
	_, err := format.GetPreset("does-not-exist")
	assert.Error(t, err)
}
