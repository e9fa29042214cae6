package ext2sim

import (
	"fmt"
	"time"

	"github.com/dmfabritius/ext2sim/blockio"
	"github.com/dmfabritius/ext2sim/ext2err"
)

// OpenMode selects the access mode a file was opened with.
type OpenMode int

const (
	ModeRead OpenMode = iota
	ModeWrite
	ModeReadWrite
	ModeAppend
)

func (m OpenMode) String() string {
	switch m {
	case ModeRead:
		return "READ"
	case ModeWrite:
		return "WRITE"
	case ModeReadWrite:
		return "READWRITE"
	case ModeAppend:
		return "APPEND"
	default:
		return "UNKNOWN"
	}
}

// OpenFile is an entry in the simulation-wide open-file table: an inode
// plus the current byte offset reading/writing will occur at, shared by
// every descriptor (across every process) pointing at it, mirroring
// OpenFile.
type OpenFile struct {
	refCount int
	Offset   int
	Inode    *CachedInode
	Mode     OpenMode
}

// OpenFileTable is the fixed-size, simulation-wide table of open files,
// mirroring OpenFileTable.
type OpenFileTable struct {
	files [OpenFileTableSize]OpenFile
}

// NewOpenFileTable creates an empty open-file table.
func NewOpenFileTable() *OpenFileTable {
	return &OpenFileTable{}
}

func (t *OpenFileTable) find(inode *CachedInode) *OpenFile {
	for i := range t.files {
		if t.files[i].refCount != 0 && t.files[i].Inode == inode {
			return &t.files[i]
		}
	}
	return nil
}

// Open returns a shared *OpenFile for inode, allocating a new table entry
// if none is open yet, mirroring OpenFileTable::open. Concurrent opens are
// only compatible when every one of them is read-only.
func (t *OpenFileTable) Open(inode *CachedInode, mode OpenMode) (*OpenFile, error) {
	if existing := t.find(inode); existing != nil {
		if existing.Mode != ModeRead || mode != ModeRead {
			return nil, ext2err.ErrBusy.WithMessage("file is already open in an incompatible mode")
		}
		existing.refCount++
		return existing, nil
	}

	for i := range t.files {
		f := &t.files[i]
		if f.refCount == 0 {
			f.refCount = 1
			f.Mode = mode
			f.Inode = inode
			if mode == ModeAppend {
				f.Offset = int(inode.Inode.Size)
			} else {
				f.Offset = 0
			}
			if mode == ModeWrite {
				if err := inode.Truncate(); err != nil {
					*f = OpenFile{}
					return nil, err
				}
			}
			return f, nil
		}
	}
	return nil, ext2err.ErrTooManyOpenFiles.WithMessage("the global open file table is full")
}

// Descriptor is a per-process handle into the global open-file table,
// mirroring the elements of Process::openFiles.
type Descriptor struct {
	file *OpenFile
}

// ProcessFiles is a fixed-size array of file descriptors belonging to one
// running process, mirroring Process::openFiles.
type ProcessFiles struct {
	descriptors [ProcessFileDescriptors]*OpenFile
	table       *OpenFileTable
	cache       *Cache
}

// NewProcessFiles creates an empty descriptor table backed by the given
// shared open-file table and inode cache.
func NewProcessFiles(table *OpenFileTable, cache *Cache) *ProcessFiles {
	return &ProcessFiles{table: table, cache: cache}
}

// Open finds a free descriptor slot, opens inode in the open-file table,
// and returns the descriptor number, mirroring Process::open (minus path
// resolution, which Process.Open in process.go does).
func (p *ProcessFiles) Open(inode *CachedInode, mode OpenMode) (int, error) {
	fd := p.freeSlot()
	if fd == -1 {
		return -1, ext2err.ErrTooManyOpenFiles.WithMessage("the process's open file table is full")
	}
	if !inode.IsReg() {
		return -1, ext2err.ErrIsADirectory.WithMessage("not a regular file")
	}

	f, err := p.table.Open(inode, mode)
	if err != nil {
		return -1, err
	}
	p.descriptors[fd] = f

	inode.MarkDirty()
	inode.Inode.AccessTime = unixTime(time.Now())
	if mode != ModeRead {
		inode.Inode.ModifyTime = unixTime(time.Now())
	}
	return fd, nil
}

// Display renders the process's open file descriptors, mirroring
// Process::displayOpenFileTable.
func (p *ProcessFiles) Display() string {
	var b []byte
	b = append(b, "Fd   Inode   Mode      Offset\n"...)
	for i, f := range p.descriptors {
		if f == nil {
			continue
		}
		line := fmt.Sprintf("%-4d %-7d %-9s %d\n", i, f.Inode.InodeNum, f.Mode, f.Offset)
		b = append(b, line...)
	}
	return string(b)
}

func (p *ProcessFiles) freeSlot() int {
	for i, d := range p.descriptors {
		if d == nil {
			return i
		}
	}
	return -1
}

func (p *ProcessFiles) valid(fd int) bool {
	return fd >= 0 && fd < ProcessFileDescriptors
}

// Close releases descriptor fd, mirroring Process::close.
func (p *ProcessFiles) Close(fd int) error {
	if !p.valid(fd) {
		return ext2err.ErrInvalidFileDescriptor.WithMessage("invalid file descriptor")
	}
	f := p.descriptors[fd]
	if f == nil {
		return ext2err.ErrInvalidFileDescriptor.WithMessage("file descriptor not in use")
	}

	f.refCount--
	if f.refCount == 0 {
		if err := p.cache.Put(f.Inode); err != nil {
			return err
		}
		f.Inode = nil
	}
	p.descriptors[fd] = nil
	return nil
}

// Lseek repositions fd's offset, returning its previous value, mirroring
// Process::lseek.
func (p *ProcessFiles) Lseek(fd, offset int) (int, error) {
	if !p.valid(fd) {
		return -1, ext2err.ErrInvalidFileDescriptor.WithMessage("invalid file descriptor")
	}
	f := p.descriptors[fd]
	if f == nil {
		return -1, ext2err.ErrInvalidFileDescriptor.WithMessage("file descriptor not in use")
	}

	orig := f.Offset
	if offset < 0 || offset > int(f.Inode.Inode.Size) {
		return orig, ext2err.ErrInvalidArgument.WithMessage("seek offset out of range")
	}
	f.Offset = offset
	return orig, nil
}

// Dup duplicates fd onto the next free descriptor slot, mirroring
// Process::dup.
func (p *ProcessFiles) Dup(fd int) (int, error) {
	newFd := p.freeSlot()
	if newFd == -1 {
		return -1, ext2err.ErrTooManyOpenFiles.WithMessage("the process's open file table is full")
	}
	if !p.valid(fd) || p.descriptors[fd] == nil {
		return -1, ext2err.ErrInvalidFileDescriptor.WithMessage("invalid or unused file descriptor")
	}
	p.descriptors[newFd] = p.descriptors[fd]
	p.descriptors[fd].refCount++
	return newFd, nil
}

// Dup2 duplicates fd onto newFd, closing newFd first if it was open,
// mirroring Process::dup2.
func (p *ProcessFiles) Dup2(fd, newFd int) error {
	if !p.valid(fd) || p.descriptors[fd] == nil {
		return ext2err.ErrInvalidFileDescriptor.WithMessage("invalid or unused source file descriptor")
	}
	if newFd == fd || !p.valid(newFd) {
		return ext2err.ErrInvalidFileDescriptor.WithMessage("invalid destination file descriptor")
	}
	if p.descriptors[newFd] != nil {
		if err := p.Close(newFd); err != nil {
			return err
		}
	}
	p.descriptors[newFd] = p.descriptors[fd]
	p.descriptors[fd].refCount++
	return nil
}

// Read copies up to len(buf) bytes from fd's current offset, returning the
// actual number of bytes read, mirroring Process::read.
func (p *ProcessFiles) Read(fd int, buf []byte) (int, error) {
	f, err := p.requireMode(fd, ModeRead, ModeReadWrite)
	if err != nil {
		return 0, err
	}

	inode := f.Inode
	remaining := int(inode.Inode.Size) - f.Offset
	if remaining < 0 {
		remaining = 0
	}
	want := len(buf)
	if want > remaining {
		want = remaining
	}

	read := 0
	for read < want {
		logical := f.Offset / blockio.BlockSize
		startByte := f.Offset % blockio.BlockSize
		physical, err := inode.LogicalToPhysical(logical)
		if err != nil {
			return read, err
		}
		var block blockio.Block
		if physical != 0 {
			if err := inode.Device.ReadBlock(blockio.BlockNum(physical), &block); err != nil {
				return read, err
			}
		}

		remainInBlock := blockio.BlockSize - startByte
		chunk := want - read
		if chunk > remainInBlock {
			chunk = remainInBlock
		}
		copy(buf[read:read+chunk], block[startByte:startByte+chunk])
		read += chunk
		f.Offset += chunk
	}

	inode.Inode.AccessTime = unixTime(time.Now())
	inode.MarkDirty()
	return read, nil
}

// Write copies buf into fd's file at its current offset, growing the file
// as needed, returning the number of bytes written, mirroring
// Process::write. Per the original, the file's recorded size always grows
// by the full write length even when the write overwrites existing bytes
// rather than extending the file (see DESIGN.md).
func (p *ProcessFiles) Write(fd int, buf []byte) (int, error) {
	f, err := p.requireMode(fd, ModeWrite, ModeReadWrite, ModeAppend)
	if err != nil {
		return 0, err
	}

	inode := f.Inode
	written := 0
	for written < len(buf) {
		logical := f.Offset / blockio.BlockSize
		startByte := f.Offset % blockio.BlockSize
		physical, err := inode.LogicalToPhysical(logical)
		if err != nil {
			return written, err
		}
		var block blockio.Block
		if physical != 0 {
			if err := inode.Device.ReadBlock(blockio.BlockNum(physical), &block); err != nil {
				return written, err
			}
		} else {
			physical, err = inode.AllocateBlock()
			if err != nil {
				return written, err
			}
		}

		remainInBlock := blockio.BlockSize - startByte
		chunk := len(buf) - written
		if chunk > remainInBlock {
			chunk = remainInBlock
		}
		copy(block[startByte:startByte+chunk], buf[written:written+chunk])
		if err := inode.Device.WriteBlock(blockio.BlockNum(physical), &block); err != nil {
			return written, err
		}
		written += chunk
		f.Offset += chunk
	}

	inode.Inode.Size += uint32(len(buf))
	now := unixTime(time.Now())
	inode.Inode.AccessTime = now
	inode.Inode.ChangeTime = now
	inode.Inode.ModifyTime = now
	inode.MarkDirty()
	return written, nil
}

func (p *ProcessFiles) requireMode(fd int, allowed ...OpenMode) (*OpenFile, error) {
	if !p.valid(fd) {
		return nil, ext2err.ErrInvalidFileDescriptor.WithMessage("invalid file descriptor")
	}
	f := p.descriptors[fd]
	if f == nil {
		return nil, ext2err.ErrInvalidFileDescriptor.WithMessage("file descriptor not in use")
	}
	for _, m := range allowed {
		if f.Mode == m {
			return f, nil
		}
	}
	return nil, ext2err.ErrNotPermitted.WithMessage("file is not open in a compatible mode")
}
