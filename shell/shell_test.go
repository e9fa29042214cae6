package shell

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmfabritius/ext2sim/testutil"
)

func TestShell_Ls_DirectoryListsModeLinksSizeAndName(t *testing.T) {
	fs, proc := testutil.NewMountedFileSystem(t)
	_, err := proc.Creat("/hello.txt")
	require.NoError(t, err)

	var out bytes.Buffer
	s := New(fs, proc, strings.NewReader(""), &out)
	quit := s.execute("ls", "", "")
	assert.False(t, quit)

	var entryLine string
	for _, line := range strings.Split(out.String(), "\n") {
		if strings.Contains(line, "hello.txt") {
			entryLine = line
		}
	}
	require.NotEmpty(t, entryLine, "ls output: %q", out.String())

	fields := strings.Fields(entryLine)
	require.GreaterOrEqual(t, len(fields), 7, "expected mode, links, gid, uid, size, ctime fields, name: %q", entryLine)
	assert.True(t, strings.HasPrefix(fields[0], "-"), "regular file mode should start with -: %q", entryLine)
	assert.Equal(t, "hello.txt", fields[len(fields)-1])
}

func TestShell_Ls_SymlinkShowsArrowToTarget(t *testing.T) {
	fs, proc := testutil.NewMountedFileSystem(t)
	_, err := proc.Creat("/target.txt")
	require.NoError(t, err)
	require.NoError(t, proc.Symlink("/target.txt", "/link.txt"))

	var out bytes.Buffer
	s := New(fs, proc, strings.NewReader(""), &out)
	s.execute("ls", "", "")

	var entryLine string
	for _, line := range strings.Split(out.String(), "\n") {
		if strings.Contains(line, "link.txt") {
			entryLine = line
		}
	}
	require.NotEmpty(t, entryLine, "ls output: %q", out.String())
	assert.True(t, strings.HasPrefix(entryLine, "l"), "symlink mode should start with l: %q", entryLine)
	assert.True(t, strings.HasSuffix(entryLine, "-> /target.txt"), "expected symlink arrow suffix: %q", entryLine)
}

func TestShell_Ls_SingleFileFallsBackToFullLine(t *testing.T) {
	fs, proc := testutil.NewMountedFileSystem(t)
	_, err := proc.Creat("/solo.txt")
	require.NoError(t, err)

	var out bytes.Buffer
	s := New(fs, proc, strings.NewReader(""), &out)
	s.execute("ls", "/solo.txt", "")

	line := strings.TrimRight(out.String(), "\n")
	fields := strings.Fields(line)
	require.GreaterOrEqual(t, len(fields), 7)
	assert.Equal(t, "/solo.txt", fields[len(fields)-1])
}
