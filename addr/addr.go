package addr

import (
	"github.com/bwfs/bwfs/common"
)

// Addr identifies the start of an on-disk object.
//
// Blkno is the block number containing the object, and Off is the location of
// the object within the block (expressed as a byte offset). The size of the
// object is determined by the context in which Addr is used.
type Addr struct {
	Blkno common.Bnum
	Off   uint64 // offset in bytes
}

// Flatid is the byte address of the object on the volume.
func (a Addr) Flatid() uint64 {
	return uint64(a.Blkno)*common.BlockSize + a.Off
}

// Plus returns the address n bytes further into the same block.
func (a Addr) Plus(n uint64) Addr {
	return MkAddr(a.Blkno, a.Off+n)
}

func MkAddr(blkno common.Bnum, off uint64) Addr {
	return Addr{Blkno: blkno, Off: off}
}

// FromFlatid inverts Flatid.
func FromFlatid(flat uint64) Addr {
	return MkAddr(common.Bnum(flat/common.BlockSize), flat%common.BlockSize)
}

// MkInodeAddr is the address of inode record inum in the table starting at
// block start.
func MkInodeAddr(start common.Bnum, inum common.Inum) Addr {
	i := uint64(inum)
	return MkAddr(start+common.Bnum(i/common.InodesPerBlock),
		(i%common.InodesPerBlock)*common.InodeSize)
}
