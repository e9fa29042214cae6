package ext2sim

import (
	"fmt"

	"github.com/dmfabritius/ext2sim/blockio"
	"github.com/dmfabritius/ext2sim/ext2err"
)

// BitmapType selects which of a device's two allocation bitmaps an
// allocate/deallocate call operates on.
type BitmapType int

const (
	BitmapInode BitmapType = iota
	BitmapBlock
)

func (t BitmapType) String() string {
	if t == BitmapInode {
		return "inode"
	}
	return "block"
}

// Device is a mounted ext2 image: its block stream plus the superblock and
// group-descriptor fields the simulator tracks (block/inode counts, the two
// bitmap locations, and where the inode table begins). It does not know
// where in the simulated namespace it's mounted; FileSystem's mount table
// tracks that.
type Device struct {
	io       *blockio.Device
	Inodes   uint32
	Blocks   uint32
	FreeIns  uint32
	FreeBlks uint32

	blockBitmap blockio.BlockNum
	inodeBitmap blockio.BlockNum
	inodeStart  blockio.BlockNum

	// RootInode is the inode number of this device's own root directory,
	// always RootDirInodeNum once mounted.
	RootInode uint32
}

// MountDevice opens an already-formatted image and validates its
// superblock magic, mirroring MountedDevice::mount.
func MountDevice(stream blockIOStream, totalBlocks blockio.BlockNum) (*Device, error) {
	io := blockio.NewDevice(stream, totalBlocks)

	var buf blockio.Block
	if err := io.Get(SuperblockNum, &buf); err != nil {
		return nil, err
	}

	var sb RawSuperblock
	if err := readStruct(buf[:], &sb); err != nil {
		return nil, err
	}
	if sb.Magic != Ext2Magic {
		return nil, ext2err.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf("not an ext2 filesystem (magic = %#x)", sb.Magic))
	}

	if err := io.Get(GroupDescriptorNum, &buf); err != nil {
		return nil, err
	}
	var gd RawGroupDescriptor
	if err := readStruct(buf[:], &gd); err != nil {
		return nil, err
	}

	return &Device{
		io:          io,
		Inodes:      sb.InodesCount,
		Blocks:      sb.BlocksCount,
		FreeIns:     sb.FreeInodesCount,
		FreeBlks:    sb.FreeBlocksCount,
		blockBitmap: blockio.BlockNum(gd.BlockBitmap),
		inodeBitmap: blockio.BlockNum(gd.InodeBitmap),
		inodeStart:  blockio.BlockNum(gd.InodeTable),
		RootInode:   RootDirInodeNum,
	}, nil
}

// blockIOStream is the minimal stream interface MountDevice needs; it's a
// local alias so callers don't have to import blockio just to pass a stream.
type blockIOStream = interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Seek(offset int64, whence int) (int64, error)
}

// Allocate finds the first free bit of the given bitmap, marks it used, and
// returns the 1-based inode/block number, mirroring
// MountedDevice::allocate. Exhaustion is a fatal condition: the original
// terminates the program, so this panics with a FatalError rather than
// returning one, since no caller up the stack can meaningfully recover from
// running out of a resource mid-operation.
func (d *Device) Allocate(t BitmapType) uint32 {
	bitmapBlock, size := d.bitmapParams(t)

	var buf blockio.Block
	if err := d.io.Get(bitmapBlock, &buf); err != nil {
		panic(ext2err.NewFatal(err.(ext2err.DriverError)))
	}

	for i := uint32(0); i < size; i++ {
		if !blockio.TestBit(&buf, int(i)) {
			blockio.SetBit(&buf, int(i))
			if err := d.io.Put(bitmapBlock, &buf); err != nil {
				panic(ext2err.NewFatal(err.(ext2err.DriverError)))
			}
			d.updateFree(t, -1)
			return i + 1
		}
	}

	panic(ext2err.NewFatal(ext2err.ErrNoSpaceOnDevice.WithMessage(
		fmt.Sprintf("failed to allocate new %s", t))))
}

// Deallocate clears the bit for the given 1-based inode/block number. An
// out-of-range number is logged by the caller and ignored, matching
// MountedDevice::deallocate's early return with no error propagation; this
// returns the diagnostic instead so callers can decide whether to surface
// it, rather than writing straight to stderr from a library package.
func (d *Device) Deallocate(t BitmapType, num uint32) error {
	bitmapBlock, size := d.bitmapParams(t)
	if num == 0 || num > size {
		return ext2err.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("%s number %d out of range for device", t, num))
	}

	var buf blockio.Block
	if err := d.io.Get(bitmapBlock, &buf); err != nil {
		return err
	}
	blockio.ClearBit(&buf, int(num-1))
	if err := d.io.Put(bitmapBlock, &buf); err != nil {
		return err
	}
	d.updateFree(t, 1)
	return nil
}

func (d *Device) bitmapParams(t BitmapType) (blockio.BlockNum, uint32) {
	if t == BitmapInode {
		return d.inodeBitmap, d.Inodes
	}
	return d.blockBitmap, d.Blocks
}

// updateFree adjusts the in-memory and on-disk free counts by change,
// mirroring MountedDevice::update_free.
func (d *Device) updateFree(t BitmapType, change int32) {
	var buf blockio.Block
	if err := d.io.Get(SuperblockNum, &buf); err != nil {
		panic(ext2err.NewFatal(err.(ext2err.DriverError)))
	}
	var sb RawSuperblock
	if err := readStruct(buf[:], &sb); err != nil {
		panic(ext2err.NewFatal(err.(ext2err.DriverError)))
	}

	if t == BitmapInode {
		sb.FreeInodesCount = uint32(int32(sb.FreeInodesCount) + change)
		d.FreeIns = sb.FreeInodesCount
	} else {
		sb.FreeBlocksCount = uint32(int32(sb.FreeBlocksCount) + change)
		d.FreeBlks = sb.FreeBlocksCount
	}
	raw, err := writeStruct(&sb)
	if err != nil {
		panic(ext2err.NewFatal(err.(ext2err.DriverError)))
	}
	var out blockio.Block
	copy(out[:], raw)
	if err := d.io.Put(SuperblockNum, &out); err != nil {
		panic(ext2err.NewFatal(err.(ext2err.DriverError)))
	}

	if err := d.io.Get(GroupDescriptorNum, &buf); err != nil {
		panic(ext2err.NewFatal(err.(ext2err.DriverError)))
	}
	var gd RawGroupDescriptor
	if err := readStruct(buf[:], &gd); err != nil {
		panic(ext2err.NewFatal(err.(ext2err.DriverError)))
	}
	if t == BitmapInode {
		gd.FreeInodesCount = uint16(int32(gd.FreeInodesCount) + change)
	} else {
		gd.FreeBlocksCount = uint16(int32(gd.FreeBlocksCount) + change)
	}
	raw, err = writeStruct(&gd)
	if err != nil {
		panic(ext2err.NewFatal(err.(ext2err.DriverError)))
	}
	var out2 blockio.Block
	copy(out2[:], raw)
	if err := d.io.Put(GroupDescriptorNum, &out2); err != nil {
		panic(ext2err.NewFatal(err.(ext2err.DriverError)))
	}
}

// ReadBlock and WriteBlock expose the underlying block stream to the rest
// of the engine package (block map, directory, inode cache) without
// re-exporting the blockio.Device type itself.
func (d *Device) ReadBlock(n blockio.BlockNum, buf *blockio.Block) error {
	return d.io.Get(n, buf)
}

func (d *Device) WriteBlock(n blockio.BlockNum, buf *blockio.Block) error {
	return d.io.Put(n, buf)
}

func (d *Device) InodeBlockFor(inodeNum uint32) (blockio.BlockNum, int) {
	index := (inodeNum - 1) % InodesPerBlock
	block := d.inodeStart + blockio.BlockNum((inodeNum-1)/InodesPerBlock)
	return block, int(index)
}
