// buf manages sub-block disk objects (inode records, bitmap entries, the
// superblock trailer) packed into disk blocks
package buf

import (
	"fmt"

	"github.com/bwfs/bwfs/addr"
	"github.com/bwfs/bwfs/common"
	"github.com/bwfs/bwfs/disk"
	"github.com/bwfs/bwfs/util"
)

// A Buf is a view of, or a pending write to, a disk object
type Buf struct {
	Addr addr.Addr
	Sz   uint64 // number of bytes
	Data []byte
}

func MkBuf(addr addr.Addr, sz uint64, data []byte) *Buf {
	b := &Buf{
		Addr: addr,
		Sz:   sz,
		Data: data,
	}
	return b
}

func checkBounds(addr addr.Addr, sz uint64) error {
	if addr.Off+sz > common.BlockSize {
		return fmt.Errorf("object at %v of %d bytes crosses block end: %w",
			addr, sz, common.ErrInvalidIndex)
	}
	return nil
}

// Load the bytes of a disk block into a new buf, as specified by addr
func MkBufLoad(addr addr.Addr, sz uint64, blk disk.Block) *Buf {
	data := blk[addr.Off : addr.Off+sz]
	return MkBuf(addr, sz, data)
}

// ReadDirect reads the object at addr straight from d.
func ReadDirect(d disk.Disk, addr addr.Addr, sz uint64) (*Buf, error) {
	if err := checkBounds(addr, sz); err != nil {
		return nil, err
	}
	blk, err := d.Read(uint64(addr.Blkno))
	if err != nil {
		return nil, err
	}
	return MkBufLoad(addr, sz, blk), nil
}

// Install the bytes from buf into blk
func (buf *Buf) Install(blk disk.Block) {
	util.DPrintf(15, "%v: install %d bytes\n", buf.Addr, buf.Sz)
	copy(blk[buf.Addr.Off:buf.Addr.Off+buf.Sz], buf.Data)
}

// WriteDirect installs buf into its block with a read-modify-write of the
// whole block; bytes outside the object are left untouched.
func (buf *Buf) WriteDirect(d disk.Disk) error {
	if err := checkBounds(buf.Addr, buf.Sz); err != nil {
		return err
	}
	if uint64(len(buf.Data)) != buf.Sz {
		return fmt.Errorf("buf at %v holds %d bytes, want %d: %w",
			buf.Addr, len(buf.Data), buf.Sz, common.ErrInvalidIndex)
	}
	if buf.Sz == common.BlockSize {
		return d.Write(uint64(buf.Addr.Blkno), buf.Data)
	}
	blk, err := d.Read(uint64(buf.Addr.Blkno))
	if err != nil {
		return err
	}
	buf.Install(blk)
	return d.Write(uint64(buf.Addr.Blkno), blk)
}
