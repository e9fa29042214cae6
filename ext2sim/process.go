package ext2sim

import (
	"fmt"

	"github.com/dmfabritius/ext2sim/ext2err"
)

// Process is a running user's identity plus its current working directory
// and file descriptor table, mirroring Process (minus scheduling fields,
// which have no role in a single-threaded simulator).
type Process struct {
	PID uint16
	UID uint16
	GID uint16

	fs      *FileSystem
	cwd     *CachedInode
	cwdPath string
	Files   *ProcessFiles
}

// NewProcess creates a process rooted at fs's filesystem root, mirroring
// how the original initializes Process::cwd to fs.root at startup.
func NewProcess(fs *FileSystem, pid uint16, uid, gid uint16, table *OpenFileTable) *Process {
	fs.Root.refCount++
	return &Process{
		PID:     pid,
		UID:     uid,
		GID:     gid,
		fs:      fs,
		cwd:     fs.Root,
		cwdPath: "/",
		Files:   NewProcessFiles(table, fs.Cache),
	}
}

// Prompt renders the shell prompt text, mirroring Process::prompt.
func (p *Process) Prompt() string {
	return fmt.Sprintf("(%p %d):%s", p.cwd.Device, p.cwd.InodeNum, p.cwdPath)
}

// Cwd returns the process's current working directory path.
func (p *Process) Cwd() string { return p.cwdPath }

// CwdInode returns the cached inode backing the process's current working
// directory, for callers (e.g. the shell) that need to Resolve relative to
// it directly.
func (p *Process) CwdInode() *CachedInode { return p.cwd }

// Chdir changes the current working directory, mirroring Process::chdir.
// An empty pathname changes to the filesystem root.
func (p *Process) Chdir(pathname string) error {
	if pathname == "" {
		if p.cwd != p.fs.Root {
			p.fs.Cache.Put(p.cwd)
			p.fs.Root.refCount++
			p.cwd = p.fs.Root
			p.cwdPath = "/"
		}
		return nil
	}

	dir, err := p.fs.Resolve(pathname, p.cwd)
	if err != nil {
		return err
	}
	if !dir.IsDir() {
		p.fs.Cache.Put(dir)
		return ext2err.ErrNotADirectory.WithMessage(pathname + " is not a directory")
	}

	fullPath, err := p.fs.FullPath(dir)
	if err != nil {
		p.fs.Cache.Put(dir)
		return err
	}

	p.fs.Cache.Put(p.cwd)
	p.cwd = dir
	p.cwdPath = fullPath
	return nil
}

// Open resolves pathname and opens it via the process's descriptor table,
// mirroring Process::open.
func (p *Process) Open(pathname string, mode OpenMode) (int, error) {
	if pathname == "" {
		return -1, ext2err.ErrInvalidArgument.WithMessage("no name given")
	}
	inode, err := p.fs.Resolve(pathname, p.cwd)
	if err != nil {
		return -1, err
	}
	fd, err := p.Files.Open(inode, mode)
	if err != nil {
		p.fs.Cache.Put(inode)
		return -1, err
	}
	return fd, nil
}

// Creat creates an empty regular file at pathname, resolved relative to the
// process's current directory.
func (p *Process) Creat(pathname string) (uint32, error) {
	return p.fs.Creat(pathname, p.cwd, p.UID, p.GID)
}

// Mkdir creates a directory at pathname, resolved relative to the process's
// current directory.
func (p *Process) Mkdir(pathname string) (uint32, error) {
	return p.fs.Mkdir(pathname, p.cwd, p.UID, p.GID)
}

// Rmdir removes an empty directory at pathname, resolved relative to the
// process's current directory.
func (p *Process) Rmdir(pathname string) error {
	return p.fs.Rmdir(pathname, p.cwd)
}

// Link adds dstName as a new name for srcName, both resolved relative to
// the process's current directory.
func (p *Process) Link(srcName, dstName string) error {
	return p.fs.Link(srcName, dstName, p.cwd, false)
}

// Unlink removes the directory entry at pathname, resolved relative to the
// process's current directory.
func (p *Process) Unlink(pathname string) error {
	return p.fs.Unlink(pathname, p.cwd, false)
}

// Symlink creates dstName as a symbolic link to the absolute path srcName,
// with dstName resolved relative to the process's current directory.
func (p *Process) Symlink(srcName, dstName string) error {
	return p.fs.Symlink(srcName, dstName, p.cwd, p.UID, p.GID)
}

// Stat renders the basic status line for pathname, resolved relative to the
// process's current directory.
func (p *Process) Stat(pathname string) (string, error) {
	return p.fs.Stat(pathname, p.cwd)
}

// Chmod changes pathname's permission bits, resolved relative to the
// process's current directory.
func (p *Process) Chmod(mode, pathname string) error {
	return p.fs.Chmod(mode, pathname, p.cwd)
}

// Utime refreshes pathname's access and change times, resolved relative to
// the process's current directory.
func (p *Process) Utime(pathname string) error {
	return p.fs.Utime(pathname, p.cwd)
}

// Cp copies srcName's contents to dstName, both resolved relative to the
// process's current directory.
func (p *Process) Cp(srcName, dstName string) error {
	return p.fs.Cp(p, srcName, dstName)
}

// Mv renames/moves srcName to dstName, both resolved relative to the
// process's current directory.
func (p *Process) Mv(srcName, dstName string) error {
	return p.fs.Mv(p, srcName, dstName)
}

// Cat reads and returns the full contents of pathname, mirroring
// Process::cat (minus writing straight to stdout; the shell layer prints
// the returned bytes).
func (p *Process) Cat(pathname string) ([]byte, error) {
	fd, err := p.Open(pathname, ModeRead)
	if err != nil {
		return nil, err
	}
	defer p.Files.Close(fd)

	var out []byte
	buf := make([]byte, 1024)
	for {
		n, err := p.Files.Read(fd, buf)
		if err != nil {
			return out, err
		}
		if n == 0 {
			break
		}
		out = append(out, buf[:n]...)
	}
	return out, nil
}
