package ext2sim

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/dmfabritius/ext2sim/ext2err"
)

// RawSuperblock is the on-disk superblock, trimmed to the fields this
// simulator actually maintains. It always lives at block SuperblockNum.
type RawSuperblock struct {
	InodesCount     uint32
	BlocksCount     uint32
	FreeBlocksCount uint32
	FreeInodesCount uint32
	FirstDataBlock  uint32
	LogBlockSize    uint32
	BlocksPerGroup  uint32
	InodesPerGroup  uint32
	Magic           uint16
	_               [90]byte // reserved, zeroed; the struct is 124 bytes in all
}

// RawGroupDescriptor describes the single block group this simulator ever
// manages (no multi-group volumes). It lives at block GroupDescriptorNum.
type RawGroupDescriptor struct {
	BlockBitmap     uint32
	InodeBitmap     uint32
	InodeTable      uint32
	FreeBlocksCount uint16
	FreeInodesCount uint16
	UsedDirsCount   uint16
	_               [14]byte // reserved, zeroed
}

// RawInode is the on-disk inode, 128 bytes, with the standard 15-slot block
// array: 12 direct pointers, 1 single-indirect, 1 double-indirect, and 1
// unused triple-indirect slot (triple-indirect is out of scope).
type RawInode struct {
	Mode       uint16
	UID        uint16
	Size       uint32
	AccessTime uint32
	ModifyTime uint32
	ChangeTime uint32
	DeleteTime uint32
	GID        uint16
	LinksCount uint16
	Blocks     uint32 // 512-byte sectors charged to this inode, ext2-style
	Flags      uint32
	_          uint32 // osd1, unused
	Block      [15]uint32
	Generation uint32
	FileACL    uint32
	DirACL     uint32
	FragAddr   uint32
	_          [12]byte // osd2, unused
}

// RawDirEntry mirrors ext2_dir_entry_2's fixed header; NameLen bytes of name
// data immediately follow it in the packed directory block, padded so the
// whole entry's length is RecLen.
type RawDirEntry struct {
	Inode    uint32
	RecLen   uint16
	NameLen  uint8
	FileType uint8
}

// Directory entry file types, matching ext2_dir_entry_2's file_type field.
const (
	FileTypeUnknown = 0
	FileTypeReg     = 1
	FileTypeDir     = 2
	FileTypeSymlink = 7
)

const dirEntryHeaderSize = 8

func readStruct(buf []byte, v any) error {
	r := bytes.NewReader(buf)
	if err := binary.Read(r, binary.LittleEndian, v); err != nil {
		return ext2err.ErrFileSystemCorrupted.WrapError(err)
	}
	return nil
}

func writeStruct(v any) ([]byte, error) {
	var b bytes.Buffer
	if err := binary.Write(&b, binary.LittleEndian, v); err != nil {
		return nil, ext2err.ErrInvalidArgument.WrapError(err)
	}
	return b.Bytes(), nil
}

func unixTime(t time.Time) uint32 {
	return uint32(t.Unix())
}
