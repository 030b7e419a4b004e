package common

import (
	"github.com/tchajed/goose/machine/disk"
)

const (
	// BlockSize is the number of payload bytes a block holds. A block is
	// stored as a 256x128 bitmap image, one pixel per bit.
	BlockSize   uint64 = disk.BlockSize
	ImageWidth  uint64 = 256
	ImageHeight uint64 = BlockSize * 8 / ImageWidth

	MaxBlocks     uint64 = 1024 // length of the block bitmap
	DefaultBlocks uint64 = 128

	NInode         uint64 = 128 // inode table slots
	InodeSize      uint64 = 320 // on-disk size
	InodesPerBlock uint64 = BlockSize / InodeSize
	InodeBlocks    uint64 = (NInode + InodesPerBlock - 1) / InodesPerBlock

	InodeTableStart Bnum = 1
	BitmapBlock     Bnum = InodeTableStart + InodeBlocks
	DataStart       Bnum = BitmapBlock + 1

	// offsets of the two bitmaps inside BitmapBlock
	BlockBitmapOff uint64 = 0
	InodeBitmapOff uint64 = BlockBitmapOff + MaxBlocks

	NDirect     uint64 = 12
	MaxFileSize uint64 = NDirect * BlockSize

	NameMax uint64 = 254 // excluding the terminating NUL

	Magic uint32 = 0x42574653 // "BWFS"
)

type Inum uint64
type Bnum = uint64

// NULLBNUM marks an unassigned direct block pointer.
const NULLBNUM int32 = -1
