package disk

import (
	"fmt"
	"os"

	"github.com/bwfs/bwfs/common"
)

// Block is a common.BlockSize-byte buffer
type Block = []byte

// Disk provides access to a logical block-based volume
type Disk interface {
	// Read reads a disk block by address
	//
	// Fails with common.ErrIO unless a < Size().
	Read(a uint64) (Block, error)

	// ReadTo reads the disk block at a and stores the result in b
	ReadTo(a uint64, b Block) error

	// Write updates a disk block by address
	//
	// v must be exactly common.BlockSize bytes.
	Write(a uint64, v Block) error

	// Size reports how big the disk is, in blocks
	Size() (uint64, error)

	// Barrier ensures data is persisted.
	//
	// When it returns, all outstanding writes are guaranteed to be durably on
	// disk
	Barrier() error

	// Close releases any resources used by the disk and makes it unusable.
	Close() error
}

// Layout names how a volume is stored on the host.
type Layout string

const (
	// LayoutDir is a directory holding one block_NNN.pbm file per block.
	LayoutDir Layout = "dir"
	// LayoutBlob is a single file of fixed-size pbm frames.
	LayoutBlob Layout = "blob"
)

func (l Layout) Validate() error {
	switch l {
	case LayoutDir, LayoutBlob:
		return nil
	}
	return fmt.Errorf("unknown volume layout `%s`", l)
}

// Create makes a new volume of numBlocks blocks at path.
func Create(path string, layout Layout, numBlocks uint64) (Disk, error) {
	switch layout {
	case LayoutDir:
		return NewDirDisk(path, numBlocks)
	case LayoutBlob:
		return NewFileDisk(path, numBlocks)
	}
	return nil, layout.Validate()
}

// OpenPath opens an existing volume, picking the layout from what path is.
func OpenPath(path string) (Disk, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("opening volume: %v: %w", err, common.ErrIO)
	}
	if fi.IsDir() {
		return OpenDirDisk(path)
	}
	return OpenFileDisk(path)
}

func checkAddr(op string, a uint64, size uint64) error {
	if a >= size {
		return fmt.Errorf("%s: block %d out of bounds (size %d): %w",
			op, a, size, common.ErrIO)
	}
	return nil
}

func checkBlock(op string, v Block) error {
	if uint64(len(v)) != common.BlockSize {
		return fmt.Errorf("%s: v is not block sized (%d bytes): %w",
			op, len(v), common.ErrIO)
	}
	return nil
}
