package ext2sim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmfabritius/ext2sim/ext2sim"
	"github.com/dmfabritius/ext2sim/testutil"
)

func TestProcessFiles_WriteReadRoundTrip(t *testing.T) {
	_, proc := testutil.NewMountedFileSystem(t)

	_, err := proc.Creat("/hello.txt")
	require.NoError(t, err)

	fd, err := proc.Open("/hello.txt", ext2sim.ModeWrite)
	require.NoError(t, err)

	payload := []byte("hello, ext2sim")
	n, err := proc.Files.Write(fd, payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	require.NoError(t, proc.Files.Close(fd))

	readFd, err := proc.Open("/hello.txt", ext2sim.ModeRead)
	require.NoError(t, err)
	buf := make([]byte, 64)
	n, err = proc.Files.Read(readFd, buf)
	require.NoError(t, err)
	assert.Equal(t, payload, buf[:n])
	require.NoError(t, proc.Files.Close(readFd))
}

func TestProcessFiles_ConcurrentWriteOpensAreIncompatible(t *testing.T) {
	_, proc := testutil.NewMountedFileSystem(t)

	_, err := proc.Creat("/hello.txt")
	require.NoError(t, err)

	fd, err := proc.Open("/hello.txt", ext2sim.ModeWrite)
	require.NoError(t, err)
	defer proc.Files.Close(fd)

	_, err = proc.Open("/hello.txt", ext2sim.ModeWrite)
	assert.Error(t, err)
}

func TestProcessFiles_DupAndLseek(t *testing.T) {
	_, proc := testutil.NewMountedFileSystem(t)

	_, err := proc.Creat("/hello.txt")
	require.NoError(t, err)
	fd, err := proc.Open("/hello.txt", ext2sim.ModeWrite)
	require.NoError(t, err)

	_, err = proc.Files.Write(fd, []byte("0123456789"))
	require.NoError(t, err)

	dupFd, err := proc.Files.Dup(fd)
	require.NoError(t, err)

	prev, err := proc.Files.Lseek(dupFd, 2)
	require.NoError(t, err)
	assert.Equal(t, 10, prev)

	require.NoError(t, proc.Files.Close(fd))
	require.NoError(t, proc.Files.Close(dupFd))
}
