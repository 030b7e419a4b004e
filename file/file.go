// file maps an inode's byte range onto its direct blocks.
//
// Chunk i of a file covers bytes [i*BlockSize, (i+1)*BlockSize) and lives in
// the block named by Blocks[i]. Writes are read-modify-write at chunk
// granularity. Callers persist the inode after Write, Truncate and Release.
package file

import (
	"fmt"
	"time"

	"github.com/bwfs/bwfs/alloc"
	"github.com/bwfs/bwfs/common"
	"github.com/bwfs/bwfs/disk"
	"github.com/bwfs/bwfs/inode"
	"github.com/bwfs/bwfs/super"
	"github.com/bwfs/bwfs/util"
)

type Mgr struct {
	fs    *super.FsSuper
	d     disk.Disk
	alloc *alloc.Alloc
	Now   func() time.Time
}

func MkMgr(fs *super.FsSuper, a *alloc.Alloc) *Mgr {
	return &Mgr{
		fs:    fs,
		d:     fs.Disk,
		alloc: a,
		Now:   time.Now,
	}
}

func (m *Mgr) now() uint32 {
	return uint32(m.Now().Unix())
}

// block resolves chunk c; unassigned or out-of-range pointers are an I/O
// error since the data they should hold is gone.
func (m *Mgr) block(ip *inode.Inode, c uint64) (common.Bnum, error) {
	p := ip.Blocks[c]
	if p == common.NULLBNUM {
		return 0, fmt.Errorf("inode %d chunk %d: no block: %w", ip.Inum, c,
			common.ErrIO)
	}
	if p < 0 || !m.fs.ValidBlock(common.Bnum(p)) {
		return 0, fmt.Errorf("inode %d chunk %d: block %d out of range: %w",
			ip.Inum, c, p, common.ErrIO)
	}
	return common.Bnum(p), nil
}

// Read returns up to n bytes at off, fewer at end of file and none past it.
func (m *Mgr) Read(ip *inode.Inode, off uint64, n uint64) ([]byte, error) {
	if off >= ip.Size || n == 0 {
		return []byte{}, nil
	}
	n = util.Min(n, ip.Size-off)
	data := make([]byte, 0, n)
	end := off + n
	for pos := off; pos < end; {
		c := pos / common.BlockSize
		bn, err := m.block(ip, c)
		if err != nil {
			return nil, err
		}
		blk, err := m.d.Read(bn)
		if err != nil {
			return nil, fmt.Errorf("reading inode %d chunk %d: %w", ip.Inum, c, err)
		}
		lo := pos % common.BlockSize
		hi := util.Min(common.BlockSize, end-c*common.BlockSize)
		data = append(data, blk[lo:hi]...)
		pos = (c + 1) * common.BlockSize
	}
	util.DPrintf(5, "read inode %d [%d, %d)\n", ip.Inum, off, end)
	return data, nil
}

// chunk returns the current contents of chunk c as they should read back:
// bytes at or past oldSize are zero regardless of what the block holds.
func (m *Mgr) chunk(ip *inode.Inode, c uint64, oldSize uint64, whole bool) (disk.Block, error) {
	cstart := c * common.BlockSize
	if whole || cstart >= oldSize || ip.Blocks[c] == common.NULLBNUM {
		return make(disk.Block, common.BlockSize), nil
	}
	bn, err := m.block(ip, c)
	if err != nil {
		return nil, err
	}
	blk, err := m.d.Read(bn)
	if err != nil {
		return nil, fmt.Errorf("reading inode %d chunk %d: %w", ip.Inum, c, err)
	}
	if oldSize < cstart+common.BlockSize {
		for i := oldSize - cstart; i < common.BlockSize; i++ {
			blk[i] = 0
		}
	}
	return blk, nil
}

// Write stores data at off, allocating blocks as needed. A write that starts
// past the end of file zero-fills the gap. On error the inode reflects the
// chunks that did reach the disk, and the count of data bytes among them is
// returned.
func (m *Mgr) Write(ip *inode.Inode, off uint64, data []byte) (uint64, error) {
	n := uint64(len(data))
	if n == 0 {
		return 0, nil
	}
	if util.SumOverflows(off, n) || off+n > common.MaxFileSize {
		return 0, fmt.Errorf("inode %d: write of %d bytes at %d: %w",
			ip.Inum, n, off, common.ErrFileTooLarge)
	}
	end := off + n
	oldSize := ip.Size
	first := util.Min(off, oldSize) / common.BlockSize
	last := (end - 1) / common.BlockSize
	var written uint64
	for c := first; c <= last; c++ {
		cstart := c * common.BlockSize
		cend := cstart + common.BlockSize
		lo := util.Max(off, cstart)
		hi := util.Min(end, cend)
		whole := lo == cstart && hi == cend

		blk, err := m.chunk(ip, c, oldSize, whole)
		if err != nil {
			return written, err
		}
		claimed := false
		if ip.Blocks[c] == common.NULLBNUM {
			bn, err := m.alloc.AllocBlock()
			if err != nil {
				return written, fmt.Errorf("inode %d chunk %d: %w", ip.Inum, c, err)
			}
			ip.Blocks[c] = int32(bn)
			claimed = true
		}
		if lo < hi {
			copy(blk[lo-cstart:hi-cstart], data[lo-off:hi-off])
		}
		bn, err := m.block(ip, c)
		if err != nil {
			return written, err
		}
		if err := m.d.Write(bn, blk); err != nil {
			if claimed {
				m.unclaim(ip, c, bn)
			}
			return written, fmt.Errorf("writing inode %d chunk %d: %w",
				ip.Inum, c, err)
		}
		if lo < hi {
			written += hi - lo
			ip.Size = util.Max(ip.Size, hi)
		} else {
			ip.Size = util.Max(ip.Size, util.Min(cend, off))
		}
		ip.ModifiedAt = m.now()
	}
	util.DPrintf(5, "write inode %d [%d, %d) size %d\n", ip.Inum, off, end, ip.Size)
	return written, nil
}

// unclaim returns a block allocated for chunk c whose contents never reached
// the disk.
func (m *Mgr) unclaim(ip *inode.Inode, c uint64, bn common.Bnum) {
	ip.Blocks[c] = common.NULLBNUM
	if err := m.alloc.MarkBlock(bn, false); err != nil {
		util.DPrintf(0, "inode %d chunk %d: leaking block %d: %v\n",
			ip.Inum, c, bn, err)
	}
}

// Truncate sets the file size. Shrinking keeps the blocks; growing writes
// zeros so the new range reads back as zero.
func (m *Mgr) Truncate(ip *inode.Inode, size uint64) error {
	if size > common.MaxFileSize {
		return fmt.Errorf("inode %d: truncate to %d: %w", ip.Inum, size,
			common.ErrFileTooLarge)
	}
	if size <= ip.Size {
		ip.Size = size
		ip.ModifiedAt = m.now()
		return nil
	}
	_, err := m.Write(ip, ip.Size, make([]byte, size-ip.Size))
	return err
}

// Release frees every assigned block and empties the file.
func (m *Mgr) Release(ip *inode.Inode) error {
	for c, p := range ip.Blocks {
		if p == common.NULLBNUM {
			continue
		}
		if p < 0 || !m.fs.ValidBlock(common.Bnum(p)) {
			util.DPrintf(1, "release inode %d: skipping bad block %d\n", ip.Inum, p)
		} else if err := m.alloc.MarkBlock(common.Bnum(p), false); err != nil {
			return fmt.Errorf("releasing inode %d: %w", ip.Inum, err)
		}
		ip.Blocks[c] = common.NULLBNUM
	}
	ip.Size = 0
	return nil
}
