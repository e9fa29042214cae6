package ext2sim

import (
	"github.com/dmfabritius/ext2sim/blockio"
	"github.com/dmfabritius/ext2sim/ext2err"
)

// DirEntry is one decoded entry read out of a directory's data blocks.
type DirEntry struct {
	InodeNum uint32
	Name     string
	FileType uint8

	blockIndex int // which of inode.Block[0:DirectBlocks] this came from
	offset     int // byte offset of the entry within that block
	recLen     uint16
}

func idealRecLen(name string) uint16 {
	return uint16(4 * ((dirEntryHeaderSize + len(name) + 3) / 4))
}

// ListEntries walks every entry in every direct data block of a directory
// inode, mirroring Directory's iteration. Directories in this
// implementation never grow an indirect block (see DESIGN.md); only the 12
// direct slots are ever consulted.
func ListEntries(dev *Device, inode *RawInode) ([]DirEntry, error) {
	var entries []DirEntry

	for bi := 0; bi < DirectBlocks; bi++ {
		blockNum := inode.Block[bi]
		if blockNum == 0 {
			break
		}

		var buf blockio.Block
		if err := dev.ReadBlock(blockio.BlockNum(blockNum), &buf); err != nil {
			return nil, err
		}

		offset := 0
		for offset < blockio.BlockSize {
			var hdr RawDirEntry
			if err := readStruct(buf[offset:offset+dirEntryHeaderSize], &hdr); err != nil {
				return nil, err
			}
			if hdr.RecLen == 0 {
				break
			}
			name := string(buf[offset+dirEntryHeaderSize : offset+dirEntryHeaderSize+int(hdr.NameLen)])
			entries = append(entries, DirEntry{
				InodeNum:   hdr.Inode,
				Name:       name,
				FileType:   hdr.FileType,
				blockIndex: bi,
				offset:     offset,
				recLen:     hdr.RecLen,
			})
			offset += int(hdr.RecLen)
		}
	}

	return entries, nil
}

// Find looks up name among a directory's entries, returning (inodeNum,
// true) on success, mirroring CachedINode::search(name).
func Find(dev *Device, inode *RawInode, name string) (uint32, bool, error) {
	entries, err := ListEntries(dev, inode)
	if err != nil {
		return 0, false, err
	}
	for _, e := range entries {
		if e.Name == name {
			return e.InodeNum, true, nil
		}
	}
	return 0, false, nil
}

// NameOf searches a directory for the entry pointing at targetInode and
// returns its name, mirroring CachedINode::search(inodeNum).
func NameOf(dev *Device, inode *RawInode, targetInode uint32) (string, bool, error) {
	entries, err := ListEntries(dev, inode)
	if err != nil {
		return "", false, err
	}
	for _, e := range entries {
		if e.InodeNum == targetInode {
			return e.Name, true, nil
		}
	}
	return "", false, nil
}

// InitDirBlock writes a fresh directory data block containing "." pointing
// at selfInode and ".." pointing at parentInode, mirroring Directory::init.
func InitDirBlock(dev *Device, blockNum uint32, selfInode, parentInode uint32) error {
	var buf blockio.Block

	writeEntry(&buf, 0, selfInode, ParentDirEntryOffset, ".", FileTypeDir)
	writeEntry(&buf, ParentDirEntryOffset, parentInode, blockio.BlockSize-ParentDirEntryOffset, "..", FileTypeDir)

	return dev.WriteBlock(blockio.BlockNum(blockNum), &buf)
}

func writeEntry(buf *blockio.Block, offset int, inodeNum uint32, recLen int, name string, fileType uint8) {
	hdr := RawDirEntry{
		Inode:    inodeNum,
		RecLen:   uint16(recLen),
		NameLen:  uint8(len(name)),
		FileType: fileType,
	}
	raw, _ := writeStruct(&hdr)
	copy(buf[offset:], raw)
	copy(buf[offset+dirEntryHeaderSize:], name)
}

// Append adds a new entry to a directory, reusing trailing space in the
// last entry of the last direct block if it fits, and otherwise allocating
// a new direct block, mirroring CachedINode::make_dir_entry. Only the last
// entry of the last block is checked for room; slack in earlier blocks is
// not reused. It returns ErrFileTooLarge once all DirectBlocks slots are in
// use and that last entry has no room, since this implementation never
// grows an indirect directory block (see DESIGN.md).
func Append(dev *Device, inode *RawInode, name string, inodeNum uint32, fileType uint8) error {
	wanted := idealRecLen(name)

	entries, err := ListEntries(dev, inode)
	if err != nil {
		return err
	}

	if len(entries) > 0 {
		last := entries[len(entries)-1]
		remaining := last.recLen - idealRecLen(last.Name)
		if wanted <= remaining {
			var buf blockio.Block
			if err := dev.ReadBlock(blockio.BlockNum(inode.Block[last.blockIndex]), &buf); err != nil {
				return err
			}
			// shrink the last entry to its ideal size, then append ours
			// filling the rest of the block.
			shrunk := idealRecLen(last.Name)
			rewriteRecLen(&buf, last.offset, shrunk)
			newOffset := last.offset + int(shrunk)
			writeEntry(&buf, newOffset, inodeNum, int(last.recLen-shrunk), name, fileType)
			return dev.WriteBlock(blockio.BlockNum(inode.Block[last.blockIndex]), &buf)
		}
	}

	// No room in existing blocks; allocate a new direct block.
	nextIndex := len(uniqueBlocks(inode))
	if nextIndex >= DirectBlocks {
		return ext2err.ErrFileTooLarge.WithMessage("directory has no room for another entry")
	}

	newBlockNum := dev.Allocate(BitmapBlock)
	if err := InitDirBlock(dev, newBlockNum, 0, 0); err != nil {
		return err
	}
	var buf blockio.Block
	writeEntry(&buf, 0, inodeNum, blockio.BlockSize, name, fileType)
	if err := dev.WriteBlock(blockio.BlockNum(newBlockNum), &buf); err != nil {
		return err
	}

	inode.Block[nextIndex] = newBlockNum
	inode.Size += blockio.BlockSize
	return nil
}

func uniqueBlocks(inode *RawInode) []uint32 {
	var blocks []uint32
	for i := 0; i < DirectBlocks; i++ {
		if inode.Block[i] == 0 {
			break
		}
		blocks = append(blocks, inode.Block[i])
	}
	return blocks
}

func rewriteRecLen(buf *blockio.Block, offset int, recLen uint16) {
	buf[offset+4] = byte(recLen)
	buf[offset+5] = byte(recLen >> 8)
}

// Remove deletes the entry named name from a directory, mirroring
// CachedINode::remove_dir_entry / Directory::removeEntry. It reports
// whether an entry was found.
func Remove(dev *Device, inode *RawInode, name string) (bool, error) {
	entries, err := ListEntries(dev, inode)
	if err != nil {
		return false, err
	}

	var blockEntries []DirEntry
	targetBlock := -1
	for _, e := range entries {
		if e.Name == name {
			targetBlock = e.blockIndex
			break
		}
	}
	if targetBlock == -1 {
		return false, nil
	}
	for _, e := range entries {
		if e.blockIndex == targetBlock {
			blockEntries = append(blockEntries, e)
		}
	}

	if len(blockEntries) == 1 {
		// sole entry in this block: free the block and compact the direct
		// slot array, per the documented no-indirect-blocks assumption.
		if err := dev.Deallocate(BitmapBlock, inode.Block[targetBlock]); err != nil {
			return false, err
		}
		inode.Size -= blockio.BlockSize
		for j := targetBlock; j < DirectBlocks-1; j++ {
			inode.Block[j] = inode.Block[j+1]
		}
		inode.Block[DirectBlocks-1] = 0
		return true, nil
	}

	var buf blockio.Block
	if err := dev.ReadBlock(blockio.BlockNum(inode.Block[targetBlock]), &buf); err != nil {
		return false, err
	}

	removeIdx := -1
	for i, e := range blockEntries {
		if e.Name == name {
			removeIdx = i
			break
		}
	}

	if removeIdx == len(blockEntries)-1 {
		// last entry: extend the previous entry's rec_len to absorb it.
		prev := blockEntries[removeIdx-1]
		rewriteRecLen(&buf, prev.offset, prev.recLen+blockEntries[removeIdx].recLen)
	} else {
		// middle entry: slide every following entry's bytes up to cover it.
		removed := blockEntries[removeIdx]
		shiftSrc := removed.offset + int(removed.recLen)
		copySize := blockio.BlockSize - shiftSrc
		copy(buf[removed.offset:], buf[shiftSrc:shiftSrc+copySize])

		last := blockEntries[len(blockEntries)-1]
		lastOffsetNow := last.offset - int(removed.recLen)
		rewriteRecLen(&buf, lastOffsetNow, last.recLen+removed.recLen)
	}

	return true, dev.WriteBlock(blockio.BlockNum(inode.Block[targetBlock]), &buf)
}

// IsEmpty reports whether a directory contains only "." and "..", mirroring
// CachedINode::is_dir_empty.
func IsEmpty(dev *Device, inode *RawInode) (bool, error) {
	if inode.LinksCount > 2 {
		return false, nil
	}

	var buf blockio.Block
	if err := dev.ReadBlock(blockio.BlockNum(inode.Block[0]), &buf); err != nil {
		return false, err
	}
	var hdr RawDirEntry
	if err := readStruct(buf[ParentDirEntryOffset:ParentDirEntryOffset+dirEntryHeaderSize], &hdr); err != nil {
		return false, err
	}
	return hdr.RecLen == blockio.BlockSize-ParentDirEntryOffset, nil
}
