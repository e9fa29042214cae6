package ext2sim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmfabritius/ext2sim/ext2sim"
	"github.com/dmfabritius/ext2sim/testutil"
)

func TestFsops_CreatMkdirRmdir(t *testing.T) {
	_, proc := testutil.NewMountedFileSystem(t)

	fileInode, err := proc.Creat("/a.txt")
	require.NoError(t, err)
	assert.NotZero(t, fileInode)

	_, err = proc.Creat("/a.txt")
	assert.Error(t, err, "creating an existing name must fail")

	dirInode, err := proc.Mkdir("/sub")
	require.NoError(t, err)
	assert.NotZero(t, dirInode)

	assert.Error(t, proc.Rmdir("/sub/."), "rmdir must reject '.'")
	assert.NoError(t, proc.Rmdir("/sub"))

	status, err := proc.Stat("/a.txt")
	require.NoError(t, err)
	assert.Contains(t, status, "ino:")
}

func TestFsops_LinkAndUnlink(t *testing.T) {
	fs, proc := testutil.NewMountedFileSystem(t)
	_ = fs

	_, err := proc.Creat("/a.txt")
	require.NoError(t, err)

	require.NoError(t, proc.Link("/a.txt", "/b.txt"))

	stat, err := proc.Stat("/b.txt")
	require.NoError(t, err)
	assert.Contains(t, stat, "links: 2")

	require.NoError(t, proc.Unlink("/a.txt"))
	stat, err = proc.Stat("/b.txt")
	require.NoError(t, err)
	assert.Contains(t, stat, "links: 1")

	_, err = proc.Stat("/a.txt")
	assert.Error(t, err)
}

func TestFsops_Symlink(t *testing.T) {
	fs, proc := testutil.NewMountedFileSystem(t)

	_, err := proc.Creat("/target.txt")
	require.NoError(t, err)
	require.NoError(t, proc.Symlink("/target.txt", "/link.txt"))

	link, err := fs.Resolve("/link.txt", fs.Root)
	require.NoError(t, err)
	defer fs.Cache.Put(link)

	assert.True(t, link.IsSymlink())
	assert.Equal(t, "/target.txt", link.Linkname())
}

func TestFsops_Chmod(t *testing.T) {
	fs, proc := testutil.NewMountedFileSystem(t)

	_, err := proc.Creat("/a.txt")
	require.NoError(t, err)
	require.NoError(t, proc.Chmod("0600", "/a.txt"))

	file, err := fs.Resolve("/a.txt", fs.Root)
	require.NoError(t, err)
	defer fs.Cache.Put(file)
	assert.Equal(t, uint16(ext2sim.ModeTypeReg|0600), file.Inode.Mode)

	assert.Error(t, proc.Chmod("01000", "/a.txt"), "mode above 0777 must be rejected")
}

func TestFsops_CpAndMv(t *testing.T) {
	fs, proc := testutil.NewMountedFileSystem(t)
	_ = fs

	_, err := proc.Creat("/src.txt")
	require.NoError(t, err)

	fd, err := proc.Open("/src.txt", ext2sim.ModeWrite)
	require.NoError(t, err)
	_, err = proc.Files.Write(fd, []byte("copy me"))
	require.NoError(t, err)
	require.NoError(t, proc.Files.Close(fd))

	require.NoError(t, proc.Cp("/src.txt", "/dst.txt"))
	got, err := proc.Cat("/dst.txt")
	require.NoError(t, err)
	assert.Equal(t, "copy me", string(got))

	require.NoError(t, proc.Mv("/dst.txt", "/moved.txt"))
	_, err = proc.Stat("/dst.txt")
	assert.Error(t, err)
	got, err = proc.Cat("/moved.txt")
	require.NoError(t, err)
	assert.Equal(t, "copy me", string(got))
}
