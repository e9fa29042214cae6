// Package ext2sim implements the core ext2 engine: the mounted-device
// allocator, the inode cache, the block map, directory packing, path
// resolution across mount points, the mount table, and the open-file table.
// These pieces are mutually referential (a cached inode needs its owning
// device, a mounted device needs its cached root inode) so they live in one
// package rather than being artificially split across import boundaries.
package ext2sim

import "github.com/dmfabritius/ext2sim/blockio"

// Table sizes scale the simulation the way the original program's table
// sizes do; they are not meant to model a real-world ext2 volume's scale.
const (
	// InodeCacheSize is the number of cached-inode slots shared across all
	// mounted devices.
	InodeCacheSize = 64
	// MountTableSize is the number of devices that can be mounted at once.
	MountTableSize = 4
	// OpenFileTableSize is the number of open-file descriptions shared
	// across all processes.
	OpenFileTableSize = 32
	// ProcessFileDescriptors is the number of descriptor slots per process.
	ProcessFileDescriptors = 16
)

// Fixed on-disk geometry. A block is always 1024 bytes; an inode is always
// 128 bytes, so 8 inodes fit in one block; a block number is 4 bytes, so 256
// of them fit in one indirect block.
const (
	InodesPerBlock        = blockio.BlockSize / inodeSize
	BlockNumsPerBlock     = blockio.BlockSize / 4
	SuperblockNum         = 1
	GroupDescriptorNum    = 2
	RootDirInodeNum       = 2
	ParentDirEntryOffset  = 12
	Ext2Magic             = 0xEF53
)

// inodeSize is the on-disk size of RawInode in bytes; verified by
// TestRawInodeSize.
const inodeSize = 128

// DirectBlocks is the number of direct block pointers in an inode.
const DirectBlocks = 12

// Indices into Inode.Block.
const (
	indirectBlockIndex       = DirectBlocks
	doubleIndirectBlockIndex = DirectBlocks + 1
)

// Mode bits, mirroring the standard S_IF* / rwx constants. Only the file
// types the simulator actually produces (regular file, directory, symlink)
// are named, along with the nine rwx permission bits, which are recorded
// but never checked; there is no setuid/setgid/sticky support.
const (
	ModeOtherExec  = 1 << iota
	ModeOtherWrite = 1 << iota
	ModeOtherRead  = 1 << iota
	ModeGroupExec  = 1 << iota
	ModeGroupWrite = 1 << iota
	ModeGroupRead  = 1 << iota
	ModeOwnerExec  = 1 << iota
	ModeOwnerWrite = 1 << iota
	ModeOwnerRead  = 1 << iota
)

const (
	ModeTypeMask = 0xF000
	ModeTypeReg  = 0x8000
	ModeTypeDir  = 0x4000
	ModeTypeLnk  = 0xA000
)

// Default permission bits applied when creating new filesystem objects,
// matching the original's DIR_FILE_MODE / REG_FILE_MODE / LNK_FILE_MODE.
const (
	DefaultDirMode  = ModeTypeDir | 0755
	DefaultRegMode  = ModeTypeReg | 0644
	DefaultLinkMode = ModeTypeLnk | 0777
)

// SuperUser is the only UID the simulator ever acts as; there is no
// permission enforcement beyond what mode bits are recorded for display.
const SuperUser = 0
