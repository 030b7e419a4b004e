package disk

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/bwfs/bwfs/common"
	"github.com/bwfs/bwfs/pbm"
	"github.com/bwfs/bwfs/util"
)

var _ Disk = (*dirDisk)(nil)

// dirDisk stores block n as the image file dir/block_NNN.pbm.
type dirDisk struct {
	dir       string
	numBlocks uint64

	mu    *sync.Mutex // protects dirty
	dirty map[uint64]struct{}
}

func mkDirDisk(dir string, numBlocks uint64) *dirDisk {
	return &dirDisk{
		dir:       dir,
		numBlocks: numBlocks,
		mu:        new(sync.Mutex),
		dirty:     make(map[uint64]struct{}),
	}
}

func BlockFileName(a uint64) string {
	return fmt.Sprintf("block_%03d.pbm", a)
}

// NewDirDisk creates dir (if needed) and writes numBlocks blank block files.
func NewDirDisk(dir string, numBlocks uint64) (Disk, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating volume directory: %v: %w", err,
			common.ErrIO)
	}
	d := mkDirDisk(dir, numBlocks)
	blank := make(Block, common.BlockSize)
	for a := uint64(0); a < numBlocks; a++ {
		if err := d.Write(a, blank); err != nil {
			return nil, err
		}
	}
	util.DPrintf(1, "NewDirDisk: %s with %d blocks\n", dir, numBlocks)
	return d, nil
}

// OpenDirDisk opens an existing volume directory. Its size is the number of
// consecutive block files starting at block_000.pbm.
func OpenDirDisk(dir string) (Disk, error) {
	d := mkDirDisk(dir, 0)
	for {
		_, err := os.Stat(d.path(d.numBlocks))
		if errors.Is(err, os.ErrNotExist) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("opening volume directory: %v: %w", err,
				common.ErrIO)
		}
		d.numBlocks++
	}
	util.DPrintf(1, "OpenDirDisk: %s has %d blocks\n", dir, d.numBlocks)
	return d, nil
}

func (d *dirDisk) path(a uint64) string {
	return filepath.Join(d.dir, BlockFileName(a))
}

func (d *dirDisk) ReadTo(a uint64, buf Block) error {
	if err := checkBlock("read", buf); err != nil {
		return err
	}
	blk, err := d.Read(a)
	if err != nil {
		return err
	}
	copy(buf, blk)
	return nil
}

func (d *dirDisk) Read(a uint64) (Block, error) {
	if err := checkAddr("read", a, d.numBlocks); err != nil {
		return nil, err
	}
	text, err := os.ReadFile(d.path(a))
	if err != nil {
		return nil, fmt.Errorf("reading block %d: %v: %w", a, err, common.ErrIO)
	}
	blk, err := pbm.Decode(text)
	if err != nil {
		return nil, fmt.Errorf("reading block %d: %w", a, err)
	}
	util.DPrintf(20, "read: %v\n", a)
	return blk, nil
}

func (d *dirDisk) Write(a uint64, v Block) error {
	if err := checkBlock("write", v); err != nil {
		return err
	}
	if err := checkAddr("write", a, d.numBlocks); err != nil {
		return err
	}
	text, err := pbm.Encode(v, a)
	if err != nil {
		return err
	}
	// readers see either the old or the new image, never a partial one
	tmp := d.path(a) + ".tmp"
	if err := os.WriteFile(tmp, text, 0644); err != nil {
		return fmt.Errorf("writing block %d: %v: %w", a, err, common.ErrIO)
	}
	if err := os.Rename(tmp, d.path(a)); err != nil {
		return fmt.Errorf("writing block %d: %v: %w", a, err, common.ErrIO)
	}
	d.mu.Lock()
	d.dirty[a] = struct{}{}
	d.mu.Unlock()
	util.DPrintf(20, "write: %v\n", a)
	return nil
}

func (d *dirDisk) Size() (uint64, error) {
	return d.numBlocks, nil
}

// Barrier fsyncs every block file written since the last barrier, then the
// directory itself.
func (d *dirDisk) Barrier() error {
	d.mu.Lock()
	addrs := make([]uint64, 0, len(d.dirty))
	for a := range d.dirty {
		addrs = append(addrs, a)
	}
	d.dirty = make(map[uint64]struct{})
	d.mu.Unlock()

	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	for _, a := range addrs {
		if err := fsyncPath(d.path(a), unix.O_RDONLY); err != nil {
			return fmt.Errorf("barrier: block %d: %w", a, err)
		}
	}
	if err := fsyncPath(d.dir, unix.O_RDONLY|unix.O_DIRECTORY); err != nil {
		return fmt.Errorf("barrier: %w", err)
	}
	util.DPrintf(10, "barrier: %d blocks\n", len(addrs))
	return nil
}

func fsyncPath(path string, flags int) error {
	fd, err := unix.Open(path, flags, 0)
	if err != nil {
		return fmt.Errorf("%v: %w", err, common.ErrIO)
	}
	defer unix.Close(fd)
	if err := unix.Fsync(fd); err != nil {
		return fmt.Errorf("%v: %w", err, common.ErrIO)
	}
	return nil
}

func (d *dirDisk) Close() error {
	return nil
}
