// fsck checks a volume without modifying it.
package fsck

import (
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/bwfs/bwfs/alloc"
	"github.com/bwfs/bwfs/common"
	"github.com/bwfs/bwfs/disk"
	"github.com/bwfs/bwfs/inode"
	"github.com/bwfs/bwfs/super"
	"github.com/bwfs/bwfs/util"
)

type Report struct {
	Magic           uint32
	TotalBlocks     uint64
	InodeTableStart uint64
	DataStart       uint64
	BlockBitmapOff  uint64
	InodeBitmapOff  uint64
	VolumeID        uuid.UUID

	UsedBlocks []uint64
	UsedInodes []uint64

	// inconsistencies found; empty on a clean volume
	Problems []string
}

func (r *Report) Clean() bool {
	return len(r.Problems) == 0
}

func (r *Report) problem(format string, a ...interface{}) {
	msg := fmt.Sprintf(format, a...)
	util.DPrintf(1, "fsck: %s\n", msg)
	r.Problems = append(r.Problems, msg)
}

// Check validates the superblock and reports the bitmaps. A superblock that
// fails validation yields common.ErrCorrupt together with a report of the
// raw superblock fields; the bitmaps are then not read.
func Check(d disk.Disk) (*Report, error) {
	sb, err := super.Load(d)
	if err != nil {
		return nil, err
	}
	r := &Report{
		Magic:           sb.Magic,
		TotalBlocks:     uint64(sb.TotalBlocks),
		InodeTableStart: uint64(sb.InodeTableStart),
		DataStart:       uint64(sb.DataBlockStart),
		BlockBitmapOff:  uint64(sb.BlockBitmapOff),
		InodeBitmapOff:  uint64(sb.InodeBitmapOff),
		VolumeID:        sb.VolumeID,
	}
	sz, err := d.Size()
	if err != nil {
		return r, err
	}
	if err := sb.Validate(sz); err != nil {
		return r, err
	}
	fs := &super.FsSuper{Disk: d, Sb: sb}

	blocks, inodes, err := alloc.MkAlloc(fs).Bitmaps()
	if err != nil {
		return r, err
	}
	for n, u := range blocks {
		if u {
			r.UsedBlocks = append(r.UsedBlocks, uint64(n))
		}
	}
	for n, u := range inodes {
		if u {
			r.UsedInodes = append(r.UsedInodes, uint64(n))
		}
	}

	table, err := inode.MkStore(fs).LoadAll()
	if err != nil {
		return r, err
	}
	r.crossCheck(fs, blocks, inodes, table)
	return r, nil
}

func (r *Report) crossCheck(fs *super.FsSuper, blocks []bool, inodes []bool, table []*inode.Inode) {
	for n := uint64(0); n < uint64(fs.DataStart()); n++ {
		if !blocks[n] {
			r.problem("reserved block %d marked free", n)
		}
	}

	owner := make(map[common.Bnum]common.Inum)
	names := make(map[string]common.Inum)
	for _, ip := range table {
		if ip.Used != inodes[ip.Inum] {
			r.problem("inode %d: bitmap says used=%v, record says used=%v",
				ip.Inum, inodes[ip.Inum], ip.Used)
		}
		if !ip.Used {
			continue
		}
		if !inode.ValidName(ip.Name) {
			r.problem("inode %d: invalid name %q", ip.Inum, ip.Name)
		}
		if other, ok := names[ip.Name]; ok {
			r.problem("inode %d: name %q already used by inode %d",
				ip.Inum, ip.Name, other)
		} else {
			names[ip.Name] = ip.Inum
		}
		if ip.Size > common.MaxFileSize {
			r.problem("inode %d: size %d exceeds %d", ip.Inum, ip.Size,
				common.MaxFileSize)
		}
		if ip.IsDir && (ip.Size != 0 || ip.NBlocks() != 0) {
			r.problem("inode %d: directory %q carries data", ip.Inum, ip.Name)
		}
		nchunks := util.RoundUp(ip.Size, common.BlockSize)
		for c, p := range ip.Blocks {
			if p == common.NULLBNUM {
				if uint64(c) < nchunks {
					r.problem("inode %d: chunk %d inside size %d has no block",
						ip.Inum, c, ip.Size)
				}
				continue
			}
			bn := common.Bnum(p)
			if p < 0 || !fs.ValidBlock(bn) {
				r.problem("inode %d: chunk %d points at block %d outside the data region",
					ip.Inum, c, p)
				continue
			}
			if !blocks[bn] {
				r.problem("inode %d: block %d in use but marked free", ip.Inum, bn)
			}
			if other, ok := owner[bn]; ok {
				r.problem("block %d referenced by inodes %d and %d", bn, other, ip.Inum)
			} else {
				owner[bn] = ip.Inum
			}
		}
	}

	for n := uint64(fs.DataStart()); n < fs.NBlocks(); n++ {
		if _, ok := owner[n]; blocks[n] && !ok {
			r.problem("block %d marked used but not referenced", n)
		}
	}
}

// Print writes the report in the checker's human-readable form.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "Superblock:\n")
	fmt.Fprintf(w, "  magic:              %#08x\n", r.Magic)
	fmt.Fprintf(w, "  volume id:          %v\n", r.VolumeID)
	fmt.Fprintf(w, "  total blocks:       %d\n", r.TotalBlocks)
	fmt.Fprintf(w, "  inode table start:  %d\n", r.InodeTableStart)
	fmt.Fprintf(w, "  data block start:   %d\n", r.DataStart)
	fmt.Fprintf(w, "  block bitmap at:    %d\n", r.BlockBitmapOff)
	fmt.Fprintf(w, "  inode bitmap at:    %d\n", r.InodeBitmapOff)
	fmt.Fprintf(w, "Used blocks (%d): %v\n", len(r.UsedBlocks), r.UsedBlocks)
	fmt.Fprintf(w, "Used inodes (%d): %v\n", len(r.UsedInodes), r.UsedInodes)
	if r.Clean() {
		fmt.Fprintf(w, "No problems found.\n")
		return
	}
	fmt.Fprintf(w, "Problems (%d):\n", len(r.Problems))
	for _, p := range r.Problems {
		fmt.Fprintf(w, "  %s\n", p)
	}
}
