package alloc

import (
	"fmt"
	"sync"

	"github.com/bwfs/bwfs/addr"
	"github.com/bwfs/bwfs/buf"
	"github.com/bwfs/bwfs/common"
	"github.com/bwfs/bwfs/disk"
	"github.com/bwfs/bwfs/super"
	"github.com/bwfs/bwfs/util"
)

const (
	free byte = 0
	used byte = 1
)

// bitmap is a run of one-byte flags on disk. Entries [lo, hi) are
// allocatable; entries below lo are reserved.
type bitmap struct {
	name      string
	start     addr.Addr
	len       uint64 // bytes on disk
	lo        uint64
	hi        uint64
	exhausted common.Error
}

// Alloc manages the block and inode bitmaps. Nothing is cached: every call
// reads the bitmap from the device and writes back a single entry.
type Alloc struct {
	lock   *sync.Mutex // serializes bitmap read-modify-writes
	d      disk.Disk
	blocks bitmap
	inodes bitmap
}

func MkAlloc(fs *super.FsSuper) *Alloc {
	a := &Alloc{
		lock: new(sync.Mutex),
		d:    fs.Disk,
		blocks: bitmap{
			name:      "block",
			start:     fs.BlockBitmapAddr(),
			len:       common.MaxBlocks,
			lo:        uint64(fs.DataStart()),
			hi:        fs.NBlocks(),
			exhausted: common.ErrNoBlocks,
		},
		inodes: bitmap{
			name:      "inode",
			start:     fs.InodeBitmapAddr(),
			len:       common.NInode,
			lo:        0,
			hi:        common.NInode,
			exhausted: common.ErrNoInodes,
		},
	}
	return a
}

func (a *Alloc) read(bm *bitmap) ([]byte, error) {
	b, err := buf.ReadDirect(a.d, bm.start, bm.len)
	if err != nil {
		return nil, fmt.Errorf("reading %s bitmap: %w", bm.name, err)
	}
	return b.Data, nil
}

func (a *Alloc) find(bm *bitmap) (uint64, error) {
	flags, err := a.read(bm)
	if err != nil {
		return 0, err
	}
	for n := bm.lo; n < bm.hi; n++ {
		if flags[n] == free {
			util.DPrintf(10, "find %s: %d\n", bm.name, n)
			return n, nil
		}
	}
	return 0, bm.exhausted
}

func (a *Alloc) mark(bm *bitmap, n uint64, inUse bool) error {
	if n < bm.lo || n >= bm.hi {
		return fmt.Errorf("%s %d outside %d..%d: %w", bm.name, n, bm.lo,
			bm.hi, common.ErrInvalidIndex)
	}
	v := free
	if inUse {
		v = used
	}
	b := buf.MkBuf(bm.start.Plus(n), 1, []byte{v})
	if err := b.WriteDirect(a.d); err != nil {
		return fmt.Errorf("writing %s bitmap: %w", bm.name, err)
	}
	util.DPrintf(10, "mark %s %d = %d\n", bm.name, n, v)
	return nil
}

func (a *Alloc) alloc(bm *bitmap) (uint64, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	n, err := a.find(bm)
	if err != nil {
		return 0, err
	}
	if err := a.mark(bm, n, true); err != nil {
		return 0, err
	}
	return n, nil
}

// FindFreeInode returns the lowest free inode number without claiming it.
func (a *Alloc) FindFreeInode() (common.Inum, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	n, err := a.find(&a.inodes)
	return common.Inum(n), err
}

// FindFreeBlock returns the lowest free data block without claiming it.
func (a *Alloc) FindFreeBlock() (common.Bnum, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.find(&a.blocks)
}

func (a *Alloc) MarkInode(inum common.Inum, inUse bool) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.mark(&a.inodes, uint64(inum), inUse)
}

// MarkBlock fails with common.ErrInvalidIndex for reserved blocks and blocks
// past the end of the volume.
func (a *Alloc) MarkBlock(bn common.Bnum, inUse bool) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.mark(&a.blocks, bn, inUse)
}

// AllocInode finds and claims the lowest free inode.
func (a *Alloc) AllocInode() (common.Inum, error) {
	n, err := a.alloc(&a.inodes)
	return common.Inum(n), err
}

// AllocBlock finds and claims the lowest free data block.
func (a *Alloc) AllocBlock() (common.Bnum, error) {
	return a.alloc(&a.blocks)
}

// Init writes fresh bitmaps: reserved blocks used, everything else free.
func (a *Alloc) Init() error {
	a.lock.Lock()
	defer a.lock.Unlock()
	flags := make([]byte, a.blocks.len)
	for n := uint64(0); n < a.blocks.lo; n++ {
		flags[n] = used
	}
	if err := buf.MkBuf(a.blocks.start, a.blocks.len, flags).WriteDirect(a.d); err != nil {
		return fmt.Errorf("initializing block bitmap: %w", err)
	}
	zero := make([]byte, a.inodes.len)
	if err := buf.MkBuf(a.inodes.start, a.inodes.len, zero).WriteDirect(a.d); err != nil {
		return fmt.Errorf("initializing inode bitmap: %w", err)
	}
	return nil
}

// Bitmaps returns copies of the block bitmap (one flag per block of the
// volume, reserved ones included) and the inode bitmap.
func (a *Alloc) Bitmaps() ([]bool, []bool, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	bflags, err := a.read(&a.blocks)
	if err != nil {
		return nil, nil, err
	}
	iflags, err := a.read(&a.inodes)
	if err != nil {
		return nil, nil, err
	}
	blocks := make([]bool, a.blocks.hi)
	for n := range blocks {
		blocks[n] = bflags[n] != free
	}
	inodes := make([]bool, a.inodes.hi)
	for n := range inodes {
		inodes[n] = iflags[n] != free
	}
	return blocks, inodes, nil
}

func (a *Alloc) numFree(bm *bitmap) (uint64, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	flags, err := a.read(bm)
	if err != nil {
		return 0, err
	}
	var n uint64
	for i := bm.lo; i < bm.hi; i++ {
		if flags[i] == free {
			n++
		}
	}
	return n, nil
}

func (a *Alloc) NumFreeBlocks() (uint64, error) {
	return a.numFree(&a.blocks)
}

func (a *Alloc) NumFreeInodes() (uint64, error) {
	return a.numFree(&a.inodes)
}
