package ext2sim

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

func TestRawInodeSize(t *testing.T) {
	assert.EqualValues(t, inodeSize, unsafe.Sizeof(RawInode{}))
}

func TestInodesPerBlockDivides(t *testing.T) {
	assert.EqualValues(t, 8, InodesPerBlock)
}

func TestBlockNumsPerBlock(t *testing.T) {
	assert.EqualValues(t, 256, BlockNumsPerBlock)
}
