package inode

import (
	"fmt"

	"github.com/bwfs/bwfs/buf"
	"github.com/bwfs/bwfs/common"
	"github.com/bwfs/bwfs/disk"
	"github.com/bwfs/bwfs/lockmap"
	"github.com/bwfs/bwfs/super"
	"github.com/bwfs/bwfs/util"
)

// Store reads and writes inode records in the inode table.
type Store struct {
	fs    *super.FsSuper
	d     disk.Disk
	locks *lockmap.LockMap // by table block number
}

func MkStore(fs *super.FsSuper) *Store {
	return &Store{
		fs:    fs,
		d:     fs.Disk,
		locks: lockmap.MkLockMap(),
	}
}

func checkInum(inum common.Inum) error {
	if uint64(inum) >= common.NInode {
		return fmt.Errorf("inode %d: %w", inum, common.ErrInvalidIndex)
	}
	return nil
}

func (s *Store) Load(inum common.Inum) (*Inode, error) {
	if err := checkInum(inum); err != nil {
		return nil, err
	}
	b, err := buf.ReadDirect(s.d, s.fs.Inum2Addr(inum), common.InodeSize)
	if err != nil {
		return nil, fmt.Errorf("loading inode %d: %w", inum, err)
	}
	ip := Decode(b.Data, inum)
	util.DPrintf(15, "load %v\n", ip)
	return ip, nil
}

// Save writes ip into slot inum. The rest of the table block is preserved.
func (s *Store) Save(inum common.Inum, ip *Inode) error {
	if err := checkInum(inum); err != nil {
		return err
	}
	ip.Inum = inum
	a := s.fs.Inum2Addr(inum)
	b := buf.MkBuf(a, common.InodeSize, ip.Encode())
	s.locks.Acquire(a.Blkno)
	err := b.WriteDirect(s.d)
	s.locks.Release(a.Blkno)
	if err != nil {
		return fmt.Errorf("saving inode %d: %w", inum, err)
	}
	util.DPrintf(15, "save %v\n", ip)
	return nil
}

// LoadAll returns every slot, free ones included, in inode order.
func (s *Store) LoadAll() ([]*Inode, error) {
	inodes := make([]*Inode, 0, common.NInode)
	for blk := uint64(0); blk < common.InodeBlocks; blk++ {
		bn := s.fs.InodeStart() + blk
		data, err := s.d.Read(bn)
		if err != nil {
			return nil, fmt.Errorf("loading inode table block %d: %w", bn, err)
		}
		for i := uint64(0); i < common.InodesPerBlock; i++ {
			inum := common.Inum(blk*common.InodesPerBlock + i)
			if uint64(inum) >= common.NInode {
				break
			}
			off := i * common.InodeSize
			inodes = append(inodes, Decode(data[off:off+common.InodeSize], inum))
		}
	}
	return inodes, nil
}

// Init writes every slot free.
func (s *Store) Init() error {
	zero := make(disk.Block, common.BlockSize)
	for blk := uint64(0); blk < common.InodeBlocks; blk++ {
		bn := s.fs.InodeStart() + blk
		s.locks.Acquire(bn)
		err := s.d.Write(bn, zero)
		s.locks.Release(bn)
		if err != nil {
			return fmt.Errorf("initializing inode table block %d: %w", bn, err)
		}
	}
	return nil
}
