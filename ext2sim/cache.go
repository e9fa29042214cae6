package ext2sim

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/dmfabritius/ext2sim/blockio"
	"github.com/dmfabritius/ext2sim/ext2err"
)

// LsLine renders one directory-listing line for this inode under the given
// entry name, mirroring CachedINode::ls_file: mode, link count, gid, uid,
// size, change time, name, and (for a symlink) its " -> target" suffix.
func (c *CachedInode) LsLine(name string) string {
	t := time.Unix(int64(c.Inode.ChangeTime), 0)
	line := fmt.Sprintf("%s%5d%5d%5d%8d %s %s",
		c.ModeString(), c.Inode.LinksCount, c.Inode.GID, c.Inode.UID, c.Inode.Size,
		t.Format(time.ANSIC), name)
	if c.IsSymlink() {
		line += " -> " + c.Linkname()
	}
	return line
}

// CachedInode is an in-memory copy of an on-disk inode, shared by every
// caller currently referencing it, mirroring CachedINode. Callers must call
// Put exactly once for every Cache.Get that returned it.
type CachedInode struct {
	Inode    RawInode
	Device   *Device
	InodeNum uint32

	refCount int
	dirty    bool
	cache    *Cache

	// DeviceRoot, when non-nil, marks this cached inode as a mount point:
	// the root inode of the device mounted here.
	DeviceRoot *CachedInode
}

// IsDir reports whether this inode is a directory.
func (c *CachedInode) IsDir() bool { return c.Inode.Mode&ModeTypeMask == ModeTypeDir }

// IsReg reports whether this inode is a regular file.
func (c *CachedInode) IsReg() bool { return c.Inode.Mode&ModeTypeMask == ModeTypeReg }

// IsSymlink reports whether this inode is a symbolic link.
func (c *CachedInode) IsSymlink() bool { return c.Inode.Mode&ModeTypeMask == ModeTypeLnk }

// ModeString renders this inode's type and permission bits the way `ls -l`
// would, e.g. "drwxr-xr-x", mirroring CachedINode::mode().
func (c *CachedInode) ModeString() string {
	var typeChar byte = '-'
	switch {
	case c.IsDir():
		typeChar = 'd'
	case c.IsSymlink():
		typeChar = 'l'
	}

	const permissions = "xwrxwrxwr"
	buf := make([]byte, 0, 10)
	buf = append(buf, typeChar)
	for i := 8; i >= 0; i-- {
		if c.Inode.Mode&(1<<uint(i)) != 0 {
			buf = append(buf, permissions[i])
		} else {
			buf = append(buf, '-')
		}
	}
	return string(buf)
}

// Linkname returns the target path of a symlink, mirroring
// CachedINode::linkname. The original hijacks the i_block array to store
// the path bytes; this keeps that layout so format-compatible tools could
// still read it, encoding the path directly into the Block array's raw
// bytes rather than storing it out of band.
func (c *CachedInode) Linkname() string {
	if !c.IsSymlink() {
		return ""
	}
	buf := make([]byte, len(c.Inode.Block)*4)
	for i, w := range c.Inode.Block {
		buf[4*i] = byte(w)
		buf[4*i+1] = byte(w >> 8)
		buf[4*i+2] = byte(w >> 16)
		buf[4*i+3] = byte(w >> 24)
	}
	n := int(c.Inode.Size)
	if n > len(buf) {
		n = len(buf)
	}
	return string(buf[:n])
}

// setLinkname packs path into the Block array the way create_symlink_inode
// does, and records its length in Size.
func (c *CachedInode) setLinkname(path string) {
	buf := make([]byte, len(c.Inode.Block)*4)
	copy(buf, path)
	for i := range c.Inode.Block {
		c.Inode.Block[i] = uint32(buf[4*i]) | uint32(buf[4*i+1])<<8 | uint32(buf[4*i+2])<<16 | uint32(buf[4*i+3])<<24
	}
	c.Inode.Size = uint32(len(path))
}

// LogicalToPhysical converts a logical (file-relative) block number to a
// physical block number on this inode's device, mirroring
// CachedINode::logical2physical. It returns 0 (no block) rather than an
// error when a hole is encountered, matching the original's convention
// that block number 0 never denotes a valid allocated block.
func (c *CachedInode) LogicalToPhysical(logical int) (uint32, error) {
	if logical < DirectBlocks {
		return c.Inode.Block[logical], nil
	}

	if logical < DirectBlocks+BlockNumsPerBlock {
		indirect := c.Inode.Block[indirectBlockIndex]
		if indirect == 0 {
			return 0, nil
		}
		var buf blockio.Block
		if err := c.Device.ReadBlock(blockio.BlockNum(indirect), &buf); err != nil {
			return 0, err
		}
		return blockNumAt(&buf, logical-DirectBlocks), nil
	}

	dind := c.Inode.Block[doubleIndirectBlockIndex]
	if dind == 0 {
		return 0, nil
	}
	var dbuf blockio.Block
	if err := c.Device.ReadBlock(blockio.BlockNum(dind), &dbuf); err != nil {
		return 0, err
	}
	rel := logical - DirectBlocks - BlockNumsPerBlock
	i := rel / BlockNumsPerBlock
	j := rel % BlockNumsPerBlock

	indirect := blockNumAt(&dbuf, i)
	if indirect == 0 {
		return 0, nil
	}
	var ibuf blockio.Block
	if err := c.Device.ReadBlock(blockio.BlockNum(indirect), &ibuf); err != nil {
		return 0, err
	}
	return blockNumAt(&ibuf, j), nil
}

func blockNumAt(buf *blockio.Block, index int) uint32 {
	o := index * 4
	return uint32(buf[o]) | uint32(buf[o+1])<<8 | uint32(buf[o+2])<<16 | uint32(buf[o+3])<<24
}

func setBlockNumAt(buf *blockio.Block, index int, value uint32) {
	o := index * 4
	buf[o] = byte(value)
	buf[o+1] = byte(value >> 8)
	buf[o+2] = byte(value >> 16)
	buf[o+3] = byte(value >> 24)
}

// AllocateBlock finds (or grows) storage for the next logical block of this
// file and returns its physical block number, mirroring
// CachedINode::allocate_block / allocate_indirect.
func (c *CachedInode) AllocateBlock() (uint32, error) {
	c.Inode.ChangeTime = unixTime(time.Now())
	c.dirty = true

	for i := 0; i < DirectBlocks; i++ {
		if c.Inode.Block[i] == 0 {
			n := c.Device.Allocate(BitmapBlock)
			c.Inode.Block[i] = n
			return n, nil
		}
	}

	if n, err := c.allocateIndirect(indirectBlockIndex); err != nil {
		return 0, err
	} else if n != 0 {
		return n, nil
	}

	if c.Inode.Block[doubleIndirectBlockIndex] == 0 {
		c.Inode.Block[doubleIndirectBlockIndex] = c.Device.Allocate(BitmapBlock)
		var dbuf blockio.Block
		indirect := c.Device.Allocate(BitmapBlock)
		setBlockNumAt(&dbuf, 0, indirect)
		var ibuf blockio.Block
		first := c.Device.Allocate(BitmapBlock)
		setBlockNumAt(&ibuf, 0, first)
		if err := c.Device.WriteBlock(blockio.BlockNum(indirect), &ibuf); err != nil {
			return 0, err
		}
		if err := c.Device.WriteBlock(blockio.BlockNum(c.Inode.Block[doubleIndirectBlockIndex]), &dbuf); err != nil {
			return 0, err
		}
		return first, nil
	}

	var dbuf blockio.Block
	if err := c.Device.ReadBlock(blockio.BlockNum(c.Inode.Block[doubleIndirectBlockIndex]), &dbuf); err != nil {
		return 0, err
	}
	for i := 0; i < BlockNumsPerBlock; i++ {
		indirect := blockNumAt(&dbuf, i)
		if indirect == 0 {
			indirect = c.Device.Allocate(BitmapBlock)
			setBlockNumAt(&dbuf, i, indirect)
			if err := c.Device.WriteBlock(blockio.BlockNum(c.Inode.Block[doubleIndirectBlockIndex]), &dbuf); err != nil {
				return 0, err
			}
		}
		var ibuf blockio.Block
		if err := c.Device.ReadBlock(blockio.BlockNum(indirect), &ibuf); err != nil {
			return 0, err
		}
		for j := 0; j < BlockNumsPerBlock; j++ {
			if blockNumAt(&ibuf, j) == 0 {
				n := c.Device.Allocate(BitmapBlock)
				setBlockNumAt(&ibuf, j, n)
				if err := c.Device.WriteBlock(blockio.BlockNum(indirect), &ibuf); err != nil {
					return 0, err
				}
				return n, nil
			}
		}
	}

	return 0, ext2err.ErrFileTooLarge.WithMessage("file has exhausted double-indirect capacity")
}

func (c *CachedInode) allocateIndirect(blockIndex int) (uint32, error) {
	if c.Inode.Block[blockIndex] == 0 {
		indirectBlockNum := c.Device.Allocate(BitmapBlock)
		first := c.Device.Allocate(BitmapBlock)
		var buf blockio.Block
		setBlockNumAt(&buf, 0, first)
		if err := c.Device.WriteBlock(blockio.BlockNum(indirectBlockNum), &buf); err != nil {
			return 0, err
		}
		c.Inode.Block[blockIndex] = indirectBlockNum
		return first, nil
	}

	var buf blockio.Block
	if err := c.Device.ReadBlock(blockio.BlockNum(c.Inode.Block[blockIndex]), &buf); err != nil {
		return 0, err
	}
	for i := 0; i < BlockNumsPerBlock; i++ {
		if blockNumAt(&buf, i) == 0 {
			n := c.Device.Allocate(BitmapBlock)
			setBlockNumAt(&buf, i, n)
			if err := c.Device.WriteBlock(blockio.BlockNum(c.Inode.Block[blockIndex]), &buf); err != nil {
				return 0, err
			}
			return n, nil
		}
	}
	return 0, nil
}

// Truncate deallocates every data block this file owns and resets its
// size to 0, mirroring CachedINode::truncate.
func (c *CachedInode) Truncate() error {
	if c.IsSymlink() {
		return nil
	}

	for i := 0; i < DirectBlocks; i++ {
		if c.Inode.Block[i] == 0 {
			break
		}
		if err := c.Device.Deallocate(BitmapBlock, c.Inode.Block[i]); err != nil {
			return err
		}
	}
	if c.Inode.Block[indirectBlockIndex] != 0 {
		if err := c.truncateIndirect(c.Inode.Block[indirectBlockIndex]); err != nil {
			return err
		}
	}
	if c.Inode.Block[doubleIndirectBlockIndex] != 0 {
		var buf blockio.Block
		if err := c.Device.ReadBlock(blockio.BlockNum(c.Inode.Block[doubleIndirectBlockIndex]), &buf); err != nil {
			return err
		}
		for i := 0; i < BlockNumsPerBlock; i++ {
			n := blockNumAt(&buf, i)
			if n == 0 {
				break
			}
			if err := c.truncateIndirect(n); err != nil {
				return err
			}
		}
		if err := c.Device.Deallocate(BitmapBlock, c.Inode.Block[doubleIndirectBlockIndex]); err != nil {
			return err
		}
	}

	c.Inode.Block = [15]uint32{}
	now := unixTime(time.Now())
	c.Inode.AccessTime = now
	c.Inode.ChangeTime = now
	c.Inode.ModifyTime = now
	c.Inode.Size = 0
	c.dirty = true
	return nil
}

func (c *CachedInode) truncateIndirect(indirectBlockNum uint32) error {
	var buf blockio.Block
	if err := c.Device.ReadBlock(blockio.BlockNum(indirectBlockNum), &buf); err != nil {
		return err
	}
	for i := 0; i < BlockNumsPerBlock; i++ {
		n := blockNumAt(&buf, i)
		if n == 0 {
			break
		}
		if err := c.Device.Deallocate(BitmapBlock, n); err != nil {
			return err
		}
	}
	return c.Device.Deallocate(BitmapBlock, indirectBlockNum)
}

// MarkDirty flags this cached inode as modified since it was loaded.
func (c *CachedInode) MarkDirty() { c.dirty = true }

// Cache is the fixed-size table of cached inodes shared by every mounted
// device, mirroring INodeTable. InodeCacheSize entries are pre-allocated;
// exhausting the table is a fatal condition.
type Cache struct {
	entries [InodeCacheSize]CachedInode
}

// NewCache creates an empty inode cache.
func NewCache() *Cache {
	c := &Cache{}
	for i := range c.entries {
		c.entries[i].cache = c
	}
	return c
}

// Get returns a cached copy of inodeNum on device, reading it from disk on
// first reference and bumping the reference count on subsequent ones,
// mirroring INodeTable::get(device, inodeNum). Running out of free table
// slots is fatal (mirrors the original's exit(FAILURE)).
func (c *Cache) Get(device *Device, inodeNum uint32) *CachedInode {
	for i := range c.entries {
		e := &c.entries[i]
		if e.refCount > 0 && e.Device == device && e.InodeNum == inodeNum {
			e.refCount++
			return e
		}
	}

	for i := range c.entries {
		e := &c.entries[i]
		if e.refCount == 0 {
			e.refCount = 1
			e.Device = device
			e.InodeNum = inodeNum
			e.dirty = false
			e.DeviceRoot = nil

			blockNum, slot := device.InodeBlockFor(inodeNum)
			var buf blockio.Block
			if err := device.ReadBlock(blockNum, &buf); err != nil {
				panic(ext2err.NewFatal(err.(ext2err.DriverError)))
			}
			off := slot * inodeSize
			if err := readStruct(buf[off:off+inodeSize], &e.Inode); err != nil {
				panic(ext2err.NewFatal(err.(ext2err.DriverError)))
			}
			return e
		}
	}

	panic(ext2err.NewFatal(ext2err.ErrTooManyOpenFiles.WithMessage("no more free entries in the cached inode table")))
}

// Put decrements a cached inode's reference count, writing it back to disk
// once it's no longer referenced if it was modified, mirroring
// CachedINode::put.
func (c *Cache) Put(ci *CachedInode) error {
	ci.refCount--
	if ci.refCount > 0 || !ci.dirty {
		return nil
	}
	return c.writeBack(ci)
}

// writeBack serializes ci into its slot of the inode table and clears its
// dirty flag, leaving its reference count unchanged.
func (c *Cache) writeBack(ci *CachedInode) error {
	ci.dirty = false

	blockNum, slot := ci.Device.InodeBlockFor(ci.InodeNum)
	var buf blockio.Block
	if err := ci.Device.ReadBlock(blockNum, &buf); err != nil {
		return err
	}
	raw, err := writeStruct(&ci.Inode)
	if err != nil {
		return err
	}
	copy(buf[slot*inodeSize:], raw)
	return ci.Device.WriteBlock(blockNum, &buf)
}

// DeviceBusy reports whether any cached inode beyond the device's own root
// (held open implicitly just by being mounted) still references device,
// mirroring INodeTable::device_busy.
func (c *Cache) DeviceBusy(device *Device) bool {
	for i := range c.entries {
		e := &c.entries[i]
		if e.refCount != 0 && e.Device == device {
			if e.InodeNum != device.RootInode || e.refCount != 1 {
				return true
			}
		}
	}
	return false
}

// Flush writes back every dirty cached inode still referenced, collecting
// any write-back failures instead of stopping at the first one, mirroring
// INodeTable::flush but reporting errors instead of only clearing isDirty.
func (c *Cache) Flush() error {
	var result *multierror.Error
	for i := range c.entries {
		e := &c.entries[i]
		if e.refCount > 0 && e.dirty {
			if err := c.writeBack(e); err != nil {
				result = multierror.Append(result, fmt.Errorf("inode %d: %w", e.InodeNum, err))
			}
		}
	}
	return result.ErrorOrNil()
}

// CreateFileInode allocates a fresh inode for parent and initializes it as
// an empty regular file, mirroring CachedINode::create_file_inode plus
// INodeTable::create_file_inode.
func (c *Cache) CreateFileInode(device *Device, uid, gid uint16) uint32 {
	inodeNum := device.Allocate(BitmapInode)
	ci := c.Get(device, inodeNum)

	now := unixTime(time.Now())
	ci.Inode = RawInode{
		Mode:       DefaultRegMode,
		UID:        uid,
		GID:        gid,
		LinksCount: 1,
		AccessTime: now,
		ChangeTime: now,
		ModifyTime: now,
	}
	ci.dirty = true
	_ = c.Put(ci)
	return inodeNum
}

// CreateDirInode allocates a fresh inode and its first data block for
// parent and initializes it as a directory containing "." and "..",
// mirroring CachedINode::make_dir_inode plus INodeTable::make_dir_inode.
func (c *Cache) CreateDirInode(device *Device, parentInodeNum uint32, uid, gid uint16) (uint32, error) {
	inodeNum := device.Allocate(BitmapInode)
	blockNum := device.Allocate(BitmapBlock)

	ci := c.Get(device, inodeNum)
	now := unixTime(time.Now())
	ci.Inode = RawInode{
		Mode:       DefaultDirMode,
		UID:        uid,
		GID:        gid,
		Size:       blockio.BlockSize,
		LinksCount: 2,
		AccessTime: now,
		ChangeTime: now,
		ModifyTime: now,
		Blocks:     2,
	}
	ci.Inode.Block[0] = blockNum
	ci.dirty = true

	if err := InitDirBlock(device, blockNum, inodeNum, parentInodeNum); err != nil {
		_ = c.Put(ci)
		return 0, err
	}
	if err := c.Put(ci); err != nil {
		return 0, err
	}
	return inodeNum, nil
}
