// Package testutil provides in-memory formatted image fixtures for tests
// across the module, mirroring the teacher's testing package's role
// (LoadDiskImage) without the compressed-fixture machinery, since every
// image here is built fresh by format.FormatImage rather than checked in.
package testutil

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/dmfabritius/ext2sim/blockio"
	"github.com/dmfabritius/ext2sim/ext2sim"
	"github.com/dmfabritius/ext2sim/format"
)

// NewFormattedImage formats a fresh in-memory image using the named preset
// ("tiny", "small", "default") and returns the backing stream plus its
// total block count.
func NewFormattedImage(t *testing.T, presetSlug string) (io.ReadWriteSeeker, blockio.BlockNum) {
	t.Helper()
	preset, err := format.GetPreset(presetSlug)
	require.NoError(t, err)

	buf := make([]byte, int(preset.TotalBlocks)*blockio.BlockSize)
	stream := bytesextra.NewReadWriteSeeker(buf)
	require.NoError(t, format.FormatImage(stream, preset))
	return stream, blockio.BlockNum(preset.TotalBlocks)
}

// NewMountedFileSystem formats a fresh "tiny" image, mounts it at "/", and
// returns the ready-to-use FileSystem along with the process that the
// shell layer would otherwise create, so tests can exercise namespace
// operations without duplicating the mount dance.
func NewMountedFileSystem(t *testing.T) (*ext2sim.FileSystem, *ext2sim.Process) {
	t.Helper()
	stream, totalBlocks := NewFormattedImage(t, "tiny")

	fs := ext2sim.NewFileSystem()
	_, err := fs.Mount(stream, totalBlocks, "tiny.img", "/")
	require.NoError(t, err)

	table := ext2sim.NewOpenFileTable()
	proc := ext2sim.NewProcess(fs, 1, ext2sim.SuperUser, ext2sim.SuperUser, table)
	return fs, proc
}
