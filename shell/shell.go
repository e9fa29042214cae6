// Package shell implements the interactive command loop for the ext2
// simulator, mirroring FileSystem::start/execute/menu.
package shell

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dmfabritius/ext2sim/blockio"
	"github.com/dmfabritius/ext2sim/ext2err"
	"github.com/dmfabritius/ext2sim/ext2sim"
)

const menuText = `EXT2 File System Simulator

help   menu    cache  quit   exit
ls     cd      pwd    mkdir  creat  rmdir  rd
link   unlink  rm     symlink  stat   chmod  utime  touch
pfd    open    close  lseek  dup    dup2
read   cat     write  cp     mv
mount  umount
`

// Shell runs the read-eval-print loop over a single mounted filesystem and
// one running process, mirroring FileSystem's role in the original.
type Shell struct {
	FS   *ext2sim.FileSystem
	Proc *ext2sim.Process

	in  *bufio.Scanner
	out io.Writer
}

// New creates a shell reading commands from in and writing output to out,
// against an already-mounted filesystem and process.
func New(fs *ext2sim.FileSystem, proc *ext2sim.Process, in io.Reader, out io.Writer) *Shell {
	return &Shell{FS: fs, Proc: proc, in: bufio.NewScanner(in), out: out}
}

// Run reads commands until EOF or a quit/exit command, mirroring
// FileSystem::start's input loop.
func (s *Shell) Run() error {
	fmt.Fprintln(s.out, "Enter menu or help to see a summary of available commands")
	for {
		fmt.Fprintf(s.out, "\n%s$ ", s.Proc.Prompt())
		if !s.in.Scan() {
			return s.in.Err()
		}
		fields := strings.Fields(s.in.Text())
		if len(fields) == 0 {
			continue
		}
		for len(fields) < 3 {
			fields = append(fields, "")
		}
		if quit := s.execute(fields[0], fields[1], fields[2]); quit {
			return nil
		}
	}
}

// execute dispatches a single command, mirroring FileSystem::execute. It
// returns true when the shell should stop.
func (s *Shell) execute(command, param1, param2 string) bool {
	num1, _ := strconv.Atoi(param1)
	num2, _ := strconv.Atoi(param2)

	var err error
	switch command {
	case "quit", "exit":
		if flushErr := s.FS.Cache.Flush(); flushErr != nil {
			fmt.Fprintf(s.out, "* error flushing cache: %s\n", flushErr)
		}
		return true
	case "menu", "help":
		fmt.Fprint(s.out, menuText)
	case "cache", "minodes":
		fmt.Fprint(s.out, s.FS.Display())
	case "pwd":
		fmt.Fprintln(s.out, s.Proc.Cwd())
	case "cd":
		err = s.Proc.Chdir(param1)
	case "cd..":
		err = s.Proc.Chdir("..")
	case "ls", "dir":
		err = s.ls(param1)
	case "mkdir", "md":
		_, err = s.Proc.Mkdir(param1)
	case "creat":
		_, err = s.Proc.Creat(param1)
	case "rmdir", "rd":
		err = s.Proc.Rmdir(param1)
	case "link":
		err = s.Proc.Link(param1, param2)
	case "unlink", "rm":
		err = s.Proc.Unlink(param1)
	case "symlink":
		err = s.Proc.Symlink(param1, param2)
	case "stat":
		err = s.stat(param1)
	case "chmod":
		err = s.Proc.Chmod(param1, param2)
	case "utime", "touch":
		err = s.Proc.Utime(param1)
	case "pfd":
		fmt.Fprint(s.out, s.Proc.Files.Display())
	case "open":
		var fd int
		fd, err = s.Proc.Open(param1, ext2sim.OpenMode(num2))
		if err == nil {
			fmt.Fprintf(s.out, "fd %d\n", fd)
		}
	case "close":
		err = s.Proc.Files.Close(num1)
	case "lseek":
		var prev int
		prev, err = s.Proc.Files.Lseek(num1, num2)
		if err == nil {
			fmt.Fprintf(s.out, "previous offset: %d\n", prev)
		}
	case "dup":
		var newFd int
		newFd, err = s.Proc.Files.Dup(num1)
		if err == nil {
			fmt.Fprintf(s.out, "fd %d\n", newFd)
		}
	case "dup2":
		err = s.Proc.Files.Dup2(num1, num2)
	case "read":
		err = s.read(num1, num2)
	case "cat":
		err = s.cat(param1)
	case "write":
		err = s.write(num1)
	case "cp":
		err = s.Proc.Cp(param1, param2)
	case "mv":
		err = s.Proc.Mv(param1, param2)
	case "mount":
		err = s.mount(param1, param2)
	case "umount":
		err = s.FS.Unmount(param1)
	default:
		fmt.Fprintln(s.out, "* invalid command")
		return false
	}

	if err != nil {
		fmt.Fprintf(s.out, "* %s\n", err)
	}
	return false
}

// mount opens diskImage from the host filesystem and attaches it at
// mountPath, mirroring FileSystem::execute's handling of the "mount"
// command, which takes a disk image path rather than an already-open
// stream.
func (s *Shell) mount(diskImage, mountPath string) error {
	if diskImage == "" || mountPath == "" {
		return ext2err.ErrInvalidArgument.WithMessage("mount requires a disk image and a mount point")
	}
	f, err := os.OpenFile(diskImage, os.O_RDWR, 0)
	if err != nil {
		return ext2err.ErrNotFound.WithMessage(err.Error())
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return ext2err.ErrNotFound.WithMessage(err.Error())
	}
	totalBlocks := blockio.BlockNum(info.Size() / blockio.BlockSize)
	if _, err := s.FS.Mount(f, totalBlocks, diskImage, mountPath); err != nil {
		f.Close()
		return err
	}
	return nil
}

func (s *Shell) ls(pathname string) error {
	if pathname == "" {
		pathname = "."
	}
	dir, err := s.FS.Resolve(pathname, s.Proc.CwdInode())
	if err != nil {
		return err
	}
	defer s.FS.Cache.Put(dir)

	if !dir.IsDir() {
		fmt.Fprintln(s.out, dir.LsLine(pathname))
		return nil
	}

	entries, err := ext2sim.ListEntries(dir.Device, &dir.Inode)
	if err != nil {
		return err
	}
	for _, e := range entries {
		entryInode := s.FS.Cache.Get(dir.Device, e.InodeNum)
		fmt.Fprintln(s.out, entryInode.LsLine(e.Name))
		if err := s.FS.Cache.Put(entryInode); err != nil {
			return err
		}
	}
	return nil
}

func (s *Shell) stat(pathname string) error {
	text, err := s.Proc.Stat(pathname)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, text)
	return nil
}

func (s *Shell) cat(pathname string) error {
	data, err := s.Proc.Cat(pathname)
	if err != nil {
		return err
	}
	s.out.Write(data)
	fmt.Fprintln(s.out)
	return nil
}

func (s *Shell) read(fd, count int) error {
	if count < 0 {
		return ext2err.ErrInvalidArgument.WithMessage("byte count must be non-negative")
	}
	buf := make([]byte, count)
	n, err := s.Proc.Files.Read(fd, buf)
	if err != nil {
		return err
	}
	s.out.Write(buf[:n])
	fmt.Fprintln(s.out)
	return nil
}

func (s *Shell) write(fd int) error {
	fmt.Fprint(s.out, "text> ")
	if !s.in.Scan() {
		return s.in.Err()
	}
	_, err := s.Proc.Files.Write(fd, []byte(s.in.Text()))
	return err
}
