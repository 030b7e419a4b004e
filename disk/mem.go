package disk

import (
	gdisk "github.com/tchajed/goose/machine/disk"

	"github.com/bwfs/bwfs/util"
)

var _ Disk = (*memDisk)(nil)

// memDisk keeps raw blocks in memory, without the pbm encoding.
type memDisk struct {
	d         gdisk.Disk
	numBlocks uint64
}

func NewMemDisk(numBlocks uint64) Disk {
	return &memDisk{d: gdisk.NewMemDisk(numBlocks), numBlocks: numBlocks}
}

func (d *memDisk) ReadTo(a uint64, buf Block) error {
	if err := checkBlock("read", buf); err != nil {
		return err
	}
	if err := checkAddr("read", a, d.numBlocks); err != nil {
		return err
	}
	copy(buf, d.d.Read(a))
	return nil
}

func (d *memDisk) Read(a uint64) (Block, error) {
	if err := checkAddr("read", a, d.numBlocks); err != nil {
		return nil, err
	}
	return util.CloneByteSlice(d.d.Read(a)), nil
}

func (d *memDisk) Write(a uint64, v Block) error {
	if err := checkBlock("write", v); err != nil {
		return err
	}
	if err := checkAddr("write", a, d.numBlocks); err != nil {
		return err
	}
	d.d.Write(a, util.CloneByteSlice(v))
	return nil
}

func (d *memDisk) Size() (uint64, error) {
	// this never changes so we assume it's safe to run lock-free
	return d.numBlocks, nil
}

func (d *memDisk) Barrier() error {
	d.d.Barrier()
	return nil
}

func (d *memDisk) Close() error {
	d.d.Close()
	return nil
}
