package format

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	bitmap "github.com/boljen/go-bitmap"

	"github.com/dmfabritius/ext2sim/blockio"
	"github.com/dmfabritius/ext2sim/ext2sim"
)

// maxBitmapBits is the number of bits a single 1024-byte block can hold;
// this simulator keeps the block and inode bitmaps to exactly one block
// each, so neither total block count nor total inode count may exceed it.
const maxBitmapBits = blockio.BlockSize * 8

// FormatImage lays out a brand-new ext2 image on w according to preset,
// writing the boot block, superblock, group descriptor, block and inode
// bitmaps, inode table, and the root directory's first data block
// (containing "." and ".." both pointing at the root inode).
func FormatImage(w io.WriteSeeker, preset Preset) error {
	if preset.TotalBlocks == 0 {
		return fmt.Errorf("preset %q: total_blocks must be non-zero", preset.Slug)
	}
	if preset.TotalInodes == 0 || preset.TotalInodes%ext2sim.InodesPerBlock != 0 {
		return fmt.Errorf(
			"preset %q: total_inodes (%d) must be a non-zero multiple of %d",
			preset.Slug, preset.TotalInodes, ext2sim.InodesPerBlock)
	}
	if preset.TotalBlocks > maxBitmapBits {
		return fmt.Errorf(
			"preset %q: total_blocks (%d) exceeds what a single-block bitmap can address (%d)",
			preset.Slug, preset.TotalBlocks, maxBitmapBits)
	}
	if preset.TotalInodes > maxBitmapBits {
		return fmt.Errorf(
			"preset %q: total_inodes (%d) exceeds what a single-block bitmap can address (%d)",
			preset.Slug, preset.TotalInodes, maxBitmapBits)
	}

	const (
		bootBlock       = 0
		blockBitmapNum  = 3
		inodeBitmapNum  = 4
		inodeTableStart = 5
	)
	inodeTableBlocks := preset.TotalInodes / ext2sim.InodesPerBlock
	firstDataBlock := inodeTableStart + inodeTableBlocks
	if preset.TotalBlocks < firstDataBlock+1 {
		return fmt.Errorf(
			"preset %q: total_blocks (%d) too small to hold %d inodes and a root directory block",
			preset.Slug, preset.TotalBlocks, preset.TotalInodes)
	}

	dev := blockio.NewDevice(w, blockio.BlockNum(preset.TotalBlocks))

	var zero blockio.Block
	if err := dev.Put(bootBlock, &zero); err != nil {
		return err
	}

	now := uint32(time.Now().Unix())

	sb := ext2sim.RawSuperblock{
		InodesCount:     preset.TotalInodes,
		BlocksCount:     preset.TotalBlocks,
		FreeBlocksCount: preset.TotalBlocks - firstDataBlock,
		FreeInodesCount: preset.TotalInodes - 1,
		FirstDataBlock:  firstDataBlock,
		LogBlockSize:    0,
		BlocksPerGroup:  preset.TotalBlocks,
		InodesPerGroup:  preset.TotalInodes,
		Magic:           ext2sim.Ext2Magic,
	}
	if err := putStruct(dev, ext2sim.SuperblockNum, &sb); err != nil {
		return err
	}

	gd := ext2sim.RawGroupDescriptor{
		BlockBitmap:     blockBitmapNum,
		InodeBitmap:     inodeBitmapNum,
		InodeTable:      inodeTableStart,
		FreeBlocksCount: uint16(sb.FreeBlocksCount),
		FreeInodesCount: uint16(sb.FreeInodesCount),
		UsedDirsCount:   1,
	}
	if err := putStruct(dev, ext2sim.GroupDescriptorNum, &gd); err != nil {
		return err
	}

	// Block bitmap: bit k stands for block k+1 (the boot block has no bit),
	// so bits 0 through firstDataBlock-1 mark blocks 1 through
	// firstDataBlock (superblock through the root directory's first data
	// block) as taken; everything past it is free.
	var blockBitmapBlock blockio.Block
	bm := bitmap.Bitmap(blockBitmapBlock[:])
	for i := uint32(0); i < firstDataBlock; i++ {
		bm.Set(int(i), true)
	}
	if err := dev.Put(blockio.BlockNum(blockBitmapNum), &blockBitmapBlock); err != nil {
		return err
	}

	// Inode bitmap: only the root directory's inode (bit RootDirInodeNum-1)
	// is taken.
	var inodeBitmapBlock blockio.Block
	im := bitmap.Bitmap(inodeBitmapBlock[:])
	im.Set(ext2sim.RootDirInodeNum-1, true)
	if err := dev.Put(blockio.BlockNum(inodeBitmapNum), &inodeBitmapBlock); err != nil {
		return err
	}

	// Inode table: the root directory's inode goes at its slot; every
	// other inode starts zeroed (unused).
	rootInode := ext2sim.RawInode{
		Mode:       ext2sim.DefaultDirMode,
		LinksCount: 2, // "." plus the entry a parent would hold, mirrored onto itself for root
		Size:       blockio.BlockSize,
		AccessTime: now,
		ModifyTime: now,
		ChangeTime: now,
		Block:      [15]uint32{firstDataBlock},
	}
	for block := uint32(0); block < inodeTableBlocks; block++ {
		var raw blockio.Block
		if block == (ext2sim.RootDirInodeNum-1)/ext2sim.InodesPerBlock {
			slot := (ext2sim.RootDirInodeNum - 1) % ext2sim.InodesPerBlock
			buf, err := writeStruct(&rootInode)
			if err != nil {
				return err
			}
			copy(raw[slot*inodeSize():], buf)
		}
		if err := dev.Put(blockio.BlockNum(inodeTableStart+block), &raw); err != nil {
			return err
		}
	}

	// Root directory's first (and, at format time, only) data block: "."
	// and ".." both point back at the root inode, matching the original's
	// treatment of the root's parent as itself.
	var dirBlock blockio.Block
	offset := 0
	offset += writeDirEntry(dirBlock[offset:], ext2sim.RootDirInodeNum, ".", ext2sim.FileTypeDir, uint16(idealDirRecLen(".")))
	writeDirEntry(dirBlock[offset:], ext2sim.RootDirInodeNum, "..", ext2sim.FileTypeDir, uint16(blockio.BlockSize-offset))
	if err := dev.Put(blockio.BlockNum(firstDataBlock), &dirBlock); err != nil {
		return err
	}

	return nil
}

func inodeSize() int { return 128 }

func putStruct(dev *blockio.Device, block blockio.BlockNum, v any) error {
	buf, err := writeStruct(v)
	if err != nil {
		return err
	}
	var out blockio.Block
	copy(out[:], buf)
	return dev.Put(block, &out)
}

func writeStruct(v any) ([]byte, error) {
	var b bytes.Buffer
	if err := binary.Write(&b, binary.LittleEndian, v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// idealDirRecLen returns the minimum 4-byte-aligned record length needed
// to hold name, matching ext2sim's directory packing rule.
func idealDirRecLen(name string) int {
	n := 8 + len(name)
	if n%4 != 0 {
		n += 4 - n%4
	}
	return n
}

func writeDirEntry(buf []byte, inode uint32, name string, fileType uint8, recLen uint16) int {
	binary.LittleEndian.PutUint32(buf[0:4], inode)
	binary.LittleEndian.PutUint16(buf[4:6], recLen)
	buf[6] = uint8(len(name))
	buf[7] = fileType
	copy(buf[8:8+len(name)], name)
	return int(recLen)
}
