package fs

import (
	"fmt"
	"time"

	"github.com/bwfs/bwfs/common"
	"github.com/bwfs/bwfs/inode"
)

// lockInode takes the namespace read lock and inum's lock, and loads the
// inode. The caller must call unlock.
func (fsys *FileSystem) lockInode(inum common.Inum) (*inode.Inode, error) {
	fsys.nsLock.RLock()
	fsys.locks.Acquire(uint64(inum))
	ip, err := fsys.inodes.Load(inum)
	if err == nil && !ip.Used {
		err = fmt.Errorf("inode %d: %w", inum, common.ErrNotFound)
	}
	if err != nil {
		fsys.unlock(inum)
		return nil, err
	}
	return ip, nil
}

func (fsys *FileSystem) unlock(inum common.Inum) {
	fsys.locks.Release(uint64(inum))
	fsys.nsLock.RUnlock()
}

// Stat returns a copy of the inode; free slots are common.ErrNotFound.
func (fsys *FileSystem) Stat(inum common.Inum) (*inode.Inode, error) {
	ip, err := fsys.lockInode(inum)
	if err != nil {
		return nil, err
	}
	fsys.unlock(inum)
	return ip, nil
}

func (fsys *FileSystem) ReadAt(inum common.Inum, off uint64, n uint64) ([]byte, error) {
	ip, err := fsys.lockInode(inum)
	if err != nil {
		return nil, err
	}
	defer fsys.unlock(inum)
	if ip.IsDir {
		return nil, fmt.Errorf("read %q: %w", ip.Name, common.ErrIsDir)
	}
	return fsys.files.Read(ip, off, n)
}

// WriteAt writes data at off and persists the inode. After a partial write
// the inode still records what reached the disk.
func (fsys *FileSystem) WriteAt(inum common.Inum, off uint64, data []byte) (uint64, error) {
	ip, err := fsys.lockInode(inum)
	if err != nil {
		return 0, err
	}
	defer fsys.unlock(inum)
	if ip.IsDir {
		return 0, fmt.Errorf("write %q: %w", ip.Name, common.ErrIsDir)
	}
	oldSize := ip.Size
	oldBlocks := ip.Blocks
	n, err := fsys.files.Write(ip, off, data)
	if n > 0 || ip.Size != oldSize || ip.Blocks != oldBlocks {
		if err2 := fsys.inodes.Save(inum, ip); err2 != nil {
			if err != nil {
				return n, fmt.Errorf("%w; saving inode %d: %w", err, inum, err2)
			}
			return n, err2
		}
	}
	return n, err
}

func (fsys *FileSystem) Truncate(inum common.Inum, size uint64) error {
	ip, err := fsys.lockInode(inum)
	if err != nil {
		return err
	}
	defer fsys.unlock(inum)
	if ip.IsDir {
		return fmt.Errorf("truncate %q: %w", ip.Name, common.ErrIsDir)
	}
	err = fsys.files.Truncate(ip, size)
	if err2 := fsys.inodes.Save(inum, ip); err2 != nil && err == nil {
		err = err2
	}
	return err
}

// Utime sets the modification time.
func (fsys *FileSystem) Utime(inum common.Inum, mtime time.Time) error {
	ip, err := fsys.lockInode(inum)
	if err != nil {
		return err
	}
	defer fsys.unlock(inum)
	ip.ModifiedAt = uint32(mtime.Unix())
	return fsys.inodes.Save(inum, ip)
}

type Statfs struct {
	BlockSize   uint64
	Blocks      uint64
	FreeBlocks  uint64
	Inodes      uint64
	FreeInodes  uint64
	NameMax     uint64
	DataStart   uint64
	MaxFileSize uint64
}

func (fsys *FileSystem) Statfs() (*Statfs, error) {
	fb, err := fsys.alloc.NumFreeBlocks()
	if err != nil {
		return nil, err
	}
	fi, err := fsys.alloc.NumFreeInodes()
	if err != nil {
		return nil, err
	}
	return &Statfs{
		BlockSize:   common.BlockSize,
		Blocks:      fsys.Super.NBlocks(),
		FreeBlocks:  fb,
		Inodes:      common.NInode,
		FreeInodes:  fi,
		NameMax:     common.NameMax,
		DataStart:   uint64(fsys.Super.DataStart()),
		MaxFileSize: common.MaxFileSize,
	}, nil
}

// Sync waits for written blocks to reach the device. Writes are not
// buffered, so this is only a barrier.
func (fsys *FileSystem) Sync() error {
	return fsys.Super.Disk.Barrier()
}

func (fsys *FileSystem) Close() error {
	if err := fsys.Sync(); err != nil {
		return err
	}
	return fsys.Super.Disk.Close()
}
