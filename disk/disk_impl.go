package disk

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/bwfs/bwfs/common"
	"github.com/bwfs/bwfs/pbm"
	"github.com/bwfs/bwfs/util"
)

var _ Disk = (*fileDisk)(nil)

// fileDisk keeps the whole volume in one file: block a is the pbm frame at
// byte a*pbm.FrameSize.
type fileDisk struct {
	mu        *sync.RWMutex // frames are read and written whole
	fd        int
	numBlocks uint64
}

func frameOff(a uint64) int64 {
	return int64(a * pbm.FrameSize)
}

// NewFileDisk creates (or truncates) path and writes numBlocks blank frames.
func NewFileDisk(path string, numBlocks uint64) (Disk, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_TRUNC, 0666)
	if err != nil {
		return nil, fmt.Errorf("creating volume file: %v: %w", err, common.ErrIO)
	}
	d := &fileDisk{new(sync.RWMutex), fd, numBlocks}
	blank := make(Block, common.BlockSize)
	for a := uint64(0); a < numBlocks; a++ {
		if err := d.Write(a, blank); err != nil {
			unix.Close(fd)
			return nil, err
		}
	}
	util.DPrintf(1, "NewFileDisk: %s with %d blocks\n", path, numBlocks)
	return d, nil
}

// OpenFileDisk opens an existing blob volume; its size is the number of whole
// frames in the file.
func OpenFileDisk(path string) (Disk, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening volume file: %v: %w", err, common.ErrIO)
	}
	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("opening volume file: %v: %w", err, common.ErrIO)
	}
	numBlocks := uint64(stat.Size) / pbm.FrameSize
	util.DPrintf(1, "OpenFileDisk: %s has %d blocks\n", path, numBlocks)
	return &fileDisk{new(sync.RWMutex), fd, numBlocks}, nil
}

func (d *fileDisk) ReadTo(a uint64, buf Block) error {
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

func (d *fileDisk) Read(a uint64) (Block, error) {
	if err := checkAddr("read", a, d.numBlocks); err != nil {
		return nil, err
	}
	frame := make([]byte, pbm.FrameSize)
	d.mu.RLock()
	n, err := unix.Pread(d.fd, frame, frameOff(a))
	d.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("reading block %d: %v: %w", a, err, common.ErrIO)
	}
	blk, err := pbm.Decode(frame[:n])
	if err != nil {
		return nil, fmt.Errorf("reading block %d: %w", a, err)
	}
	util.DPrintf(20, "read: %v\n", a)
	return blk, nil
}

func (d *fileDisk) Write(a uint64, v Block) error {
	if err := checkBlock("write", v); err != nil {
		return err
	}
	if err := checkAddr("write", a, d.numBlocks); err != nil {
		return err
	}
	frame, err := pbm.EncodeFrame(v, a)
	if err != nil {
		return err
	}
	d.mu.Lock()
	n, err := unix.Pwrite(d.fd, frame, frameOff(a))
	d.mu.Unlock()
	if err != nil {
		return fmt.Errorf("writing block %d: %v: %w", a, err, common.ErrIO)
	}
	if n != len(frame) {
		return fmt.Errorf("writing block %d: short write (%d bytes): %w",
			a, n, common.ErrIO)
	}
	util.DPrintf(20, "write: %v\n", a)
	return nil
}

func (d *fileDisk) Size() (uint64, error) {
	return d.numBlocks, nil
}

func (d *fileDisk) Barrier() error {
	// NOTE: on macOS, this flushes to the drive but doesn't actually issue a
	// disk barrier; see https://golang.org/src/internal/poll/fd_fsync_darwin.go
	// for more details. The correct replacement is to issue a fcntl syscall with
	// cmd F_FULLFSYNC.
	if err := unix.Fsync(d.fd); err != nil {
		return fmt.Errorf("file sync failed: %v: %w", err, common.ErrIO)
	}
	util.DPrintf(10, "barrier\n")
	return nil
}

func (d *fileDisk) Close() error {
	if err := unix.Close(d.fd); err != nil {
		return fmt.Errorf("closing volume file: %v: %w", err, common.ErrIO)
	}
	return nil
}
