package super

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tchajed/marshal"

	"github.com/bwfs/bwfs/addr"
	"github.com/bwfs/bwfs/buf"
	"github.com/bwfs/bwfs/common"
	"github.com/bwfs/bwfs/disk"
	"github.com/bwfs/bwfs/util"
)

const (
	// RecordSize is the on-disk size of the superblock record, stored at the
	// end of block 0.
	RecordSize uint64 = 64
	recordOff  uint64 = common.BlockSize - RecordSize

	nfields uint64 = 9
	uuidOff uint64 = nfields * 4
)

// Superblock is the volume geometry. The first six fields are the base
// record; the remaining counts must match this build's geometry on open.
type Superblock struct {
	Magic           uint32
	TotalBlocks     uint32
	InodeTableStart uint32
	DataBlockStart  uint32
	BlockBitmapOff  uint32 // flat byte address
	InodeBitmapOff  uint32 // flat byte address
	BlockSize       uint32
	InodeCount      uint32
	InodeBlocks     uint32
	VolumeID        uuid.UUID
}

func MkSuperblock(totalBlocks uint64) *Superblock {
	return &Superblock{
		Magic:           common.Magic,
		TotalBlocks:     uint32(totalBlocks),
		InodeTableStart: uint32(common.InodeTableStart),
		DataBlockStart:  uint32(common.DataStart),
		BlockBitmapOff:  uint32(addr.MkAddr(common.BitmapBlock, common.BlockBitmapOff).Flatid()),
		InodeBitmapOff:  uint32(addr.MkAddr(common.BitmapBlock, common.InodeBitmapOff).Flatid()),
		BlockSize:       uint32(common.BlockSize),
		InodeCount:      uint32(common.NInode),
		InodeBlocks:     uint32(common.InodeBlocks),
		VolumeID:        uuid.New(),
	}
}

func (sb *Superblock) Encode() []byte {
	enc := marshal.NewEnc(RecordSize)
	enc.PutInt32(sb.Magic)
	enc.PutInt32(sb.TotalBlocks)
	enc.PutInt32(sb.InodeTableStart)
	enc.PutInt32(sb.DataBlockStart)
	enc.PutInt32(sb.BlockBitmapOff)
	enc.PutInt32(sb.InodeBitmapOff)
	enc.PutInt32(sb.BlockSize)
	enc.PutInt32(sb.InodeCount)
	enc.PutInt32(sb.InodeBlocks)
	rec := enc.Finish()
	copy(rec[uuidOff:uuidOff+16], sb.VolumeID[:])
	return rec
}

func Decode(rec []byte) *Superblock {
	dec := marshal.NewDec(rec)
	sb := &Superblock{
		Magic:           dec.GetInt32(),
		TotalBlocks:     dec.GetInt32(),
		InodeTableStart: dec.GetInt32(),
		DataBlockStart:  dec.GetInt32(),
		BlockBitmapOff:  dec.GetInt32(),
		InodeBitmapOff:  dec.GetInt32(),
		BlockSize:       dec.GetInt32(),
		InodeCount:      dec.GetInt32(),
		InodeBlocks:     dec.GetInt32(),
	}
	copy(sb.VolumeID[:], rec[uuidOff:uuidOff+16])
	return sb
}

func corrupt(format string, a ...interface{}) error {
	return fmt.Errorf("superblock: %s: %w", fmt.Sprintf(format, a...),
		common.ErrCorrupt)
}

// Validate checks the record against the geometry this build understands and
// against a device of nblocks blocks.
func (sb *Superblock) Validate(nblocks uint64) error {
	if sb.Magic != common.Magic {
		return corrupt("bad magic %#x", sb.Magic)
	}
	if uint64(sb.BlockSize) != common.BlockSize ||
		uint64(sb.InodeCount) != common.NInode ||
		uint64(sb.InodeBlocks) != common.InodeBlocks {
		return corrupt("geometry %d/%d/%d not supported",
			sb.BlockSize, sb.InodeCount, sb.InodeBlocks)
	}
	if uint64(sb.InodeTableStart) != common.InodeTableStart ||
		uint64(sb.DataBlockStart) != common.DataStart {
		return corrupt("inode table at %d, data at %d",
			sb.InodeTableStart, sb.DataBlockStart)
	}
	total := uint64(sb.TotalBlocks)
	if total <= common.DataStart || total > common.MaxBlocks {
		return corrupt("%d blocks", total)
	}
	if total > nblocks {
		return corrupt("%d blocks on a %d block device", total, nblocks)
	}
	if err := checkBitmap("block", sb.BlockBitmapOff, common.MaxBlocks); err != nil {
		return err
	}
	if err := checkBitmap("inode", sb.InodeBitmapOff, common.NInode); err != nil {
		return err
	}
	return nil
}

func checkBitmap(what string, flat uint32, n uint64) error {
	a := addr.FromFlatid(uint64(flat))
	if a.Blkno < common.InodeTableStart+common.InodeBlocks ||
		a.Blkno >= common.DataStart {
		return corrupt("%s bitmap in block %d", what, a.Blkno)
	}
	if a.Off+n > common.BlockSize {
		return corrupt("%s bitmap region too small", what)
	}
	return nil
}

// FsSuper is an open volume: the device together with its geometry.
type FsSuper struct {
	Disk disk.Disk
	Sb   *Superblock
}

// Load reads the superblock record without validating it.
func Load(d disk.Disk) (*Superblock, error) {
	b, err := buf.ReadDirect(d, addr.MkAddr(0, recordOff), RecordSize)
	if err != nil {
		return nil, fmt.Errorf("reading superblock: %w", err)
	}
	return Decode(b.Data), nil
}

func Open(d disk.Disk) (*FsSuper, error) {
	sb, err := Load(d)
	if err != nil {
		return nil, err
	}
	sz, err := d.Size()
	if err != nil {
		return nil, err
	}
	if err := sb.Validate(sz); err != nil {
		return nil, err
	}
	util.DPrintf(1, "open volume %v: %d blocks\n", sb.VolumeID, sb.TotalBlocks)
	return &FsSuper{Disk: d, Sb: sb}, nil
}

// Create writes every block blank and then the superblock. The inode table and
// bitmaps are left zeroed for their owners to initialize.
func Create(d disk.Disk, totalBlocks uint64) (*FsSuper, error) {
	if totalBlocks <= common.DataStart || totalBlocks > common.MaxBlocks {
		return nil, fmt.Errorf("volume of %d blocks, want %d..%d: %w",
			totalBlocks, common.DataStart+1, common.MaxBlocks,
			common.ErrInvalidIndex)
	}
	sz, err := d.Size()
	if err != nil {
		return nil, err
	}
	if totalBlocks > sz {
		return nil, fmt.Errorf("volume of %d blocks on a %d block device: %w",
			totalBlocks, sz, common.ErrInvalidIndex)
	}
	blank := make(disk.Block, common.BlockSize)
	for a := uint64(0); a < totalBlocks; a++ {
		if err := d.Write(a, blank); err != nil {
			return nil, fmt.Errorf("blanking block %d: %w", a, err)
		}
	}
	sb := MkSuperblock(totalBlocks)
	b := buf.MkBuf(addr.MkAddr(0, recordOff), RecordSize, sb.Encode())
	if err := b.WriteDirect(d); err != nil {
		return nil, fmt.Errorf("writing superblock: %w", err)
	}
	util.DPrintf(1, "created volume %v: %d blocks\n", sb.VolumeID, totalBlocks)
	return &FsSuper{Disk: d, Sb: sb}, nil
}

func (fs *FsSuper) NBlocks() uint64 {
	return uint64(fs.Sb.TotalBlocks)
}

func (fs *FsSuper) InodeStart() common.Bnum {
	return common.Bnum(fs.Sb.InodeTableStart)
}

func (fs *FsSuper) DataStart() common.Bnum {
	return common.Bnum(fs.Sb.DataBlockStart)
}

func (fs *FsSuper) BlockBitmapAddr() addr.Addr {
	return addr.FromFlatid(uint64(fs.Sb.BlockBitmapOff))
}

func (fs *FsSuper) InodeBitmapAddr() addr.Addr {
	return addr.FromFlatid(uint64(fs.Sb.InodeBitmapOff))
}

func (fs *FsSuper) Inum2Addr(inum common.Inum) addr.Addr {
	return addr.MkInodeAddr(fs.InodeStart(), inum)
}

// ValidBlock reports whether bn may hold file data.
func (fs *FsSuper) ValidBlock(bn common.Bnum) bool {
	return bn >= fs.DataStart() && bn < fs.NBlocks()
}
