// fs is the namespace engine: a single flat set of named files and
// directories under one root, stored in the inode table.
package fs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwfs/bwfs/alloc"
	"github.com/bwfs/bwfs/common"
	"github.com/bwfs/bwfs/disk"
	"github.com/bwfs/bwfs/file"
	"github.com/bwfs/bwfs/inode"
	"github.com/bwfs/bwfs/lockmap"
	"github.com/bwfs/bwfs/super"
	"github.com/bwfs/bwfs/util"
)

// RootName is how callers name the root; it is never stored.
const RootName = "/"

type FileSystem struct {
	Super  *super.FsSuper
	alloc  *alloc.Alloc
	inodes *inode.Store
	files  *file.Mgr

	// writers: create, rename, remove. readers: everything else.
	nsLock *sync.RWMutex
	// per-inode locks for data operations
	locks *lockmap.LockMap
}

func mkFileSystem(fs *super.FsSuper) *FileSystem {
	a := alloc.MkAlloc(fs)
	return &FileSystem{
		Super:  fs,
		alloc:  a,
		inodes: inode.MkStore(fs),
		files:  file.MkMgr(fs, a),
		nsLock: new(sync.RWMutex),
		locks:  lockmap.MkLockMap(),
	}
}

// Mkfs initializes a volume of totalBlocks blocks on d: blank blocks and the
// superblock, then the inode table, then the bitmaps.
func Mkfs(d disk.Disk, totalBlocks uint64) (*FileSystem, error) {
	sup, err := super.Create(d, totalBlocks)
	if err != nil {
		return nil, err
	}
	fsys := mkFileSystem(sup)
	if err := fsys.inodes.Init(); err != nil {
		return nil, err
	}
	if err := fsys.alloc.Init(); err != nil {
		return nil, err
	}
	if err := d.Barrier(); err != nil {
		return nil, err
	}
	return fsys, nil
}

// Mount opens an existing volume. It fails with common.ErrCorrupt if the
// superblock does not describe a volume this code can use.
func Mount(d disk.Disk) (*FileSystem, error) {
	sup, err := super.Open(d)
	if err != nil {
		return nil, err
	}
	return mkFileSystem(sup), nil
}

// SetClock replaces the source of inode timestamps.
func (fsys *FileSystem) SetClock(now func() time.Time) {
	fsys.files.Now = now
}

func (fsys *FileSystem) now() uint32 {
	return uint32(fsys.files.Now().Unix())
}

// IsRoot reports whether name refers to the root directory.
func IsRoot(name string) bool {
	return name == "" || name == RootName
}

func checkName(name string) error {
	if !inode.ValidName(name) {
		return fmt.Errorf("name %q: %w", name, common.ErrInvalidName)
	}
	return nil
}

// lookup scans the table for a used inode named name. The caller holds
// nsLock.
func (fsys *FileSystem) lookup(name string) (*inode.Inode, error) {
	all, err := fsys.inodes.LoadAll()
	if err != nil {
		return nil, err
	}
	for _, ip := range all {
		if ip.Used && ip.Name == name {
			return ip, nil
		}
	}
	return nil, fmt.Errorf("%q: %w", name, common.ErrNotFound)
}

func (fsys *FileSystem) Lookup(name string) (*inode.Inode, error) {
	fsys.nsLock.RLock()
	defer fsys.nsLock.RUnlock()
	return fsys.lookup(name)
}

// Create allocates the lowest free inode for name. Names are unique: an
// existing entry of either kind makes Create fail with common.ErrExists.
func (fsys *FileSystem) Create(name string, isDir bool) (common.Inum, error) {
	if IsRoot(name) {
		return 0, fmt.Errorf("create root: %w", common.ErrInvalidName)
	}
	if err := checkName(name); err != nil {
		return 0, err
	}
	fsys.nsLock.Lock()
	defer fsys.nsLock.Unlock()

	if _, err := fsys.lookup(name); err == nil {
		return 0, fmt.Errorf("create %q: %w", name, common.ErrExists)
	} else if !isNotFound(err) {
		return 0, err
	}
	inum, err := fsys.alloc.AllocInode()
	if err != nil {
		return 0, fmt.Errorf("create %q: %w", name, err)
	}
	ip := inode.MkInode(inum, name, isDir, fsys.now())
	if err := fsys.inodes.Save(inum, ip); err != nil {
		if err2 := fsys.alloc.MarkInode(inum, false); err2 != nil {
			util.DPrintf(0, "create %q: leaking inode %d: %v\n", name, inum, err2)
		}
		return 0, err
	}
	util.DPrintf(1, "create %q dir %v -> %d\n", name, isDir, inum)
	return inum, nil
}

// Rename changes the name of old. Renaming onto the same name is a no-op;
// onto another entry's name fails with common.ErrExists. Renaming the root,
// or onto "/", fails with common.ErrBusy; an empty new name is
// common.ErrInvalidName.
func (fsys *FileSystem) Rename(old string, new string) error {
	if IsRoot(old) {
		return fmt.Errorf("rename %q to %q: %w", old, new, common.ErrBusy)
	}
	fsys.nsLock.Lock()
	defer fsys.nsLock.Unlock()

	ip, err := fsys.lookup(old)
	if err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	if old == new {
		return nil
	}
	if new == RootName {
		return fmt.Errorf("rename %q to %q: %w", old, new, common.ErrBusy)
	}
	if err := checkName(new); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	if other, err := fsys.lookup(new); err == nil {
		if other.Inum != ip.Inum {
			return fmt.Errorf("rename %q to %q: %w", old, new, common.ErrExists)
		}
	} else if !isNotFound(err) {
		return err
	}
	ip.Name = new
	if err := fsys.inodes.Save(ip.Inum, ip); err != nil {
		return err
	}
	util.DPrintf(1, "rename %q -> %q\n", old, new)
	return nil
}

// Remove deletes name: its blocks are freed first, then the record is
// cleared, then the inode bitmap entry. Directories hold no entries in the
// flat namespace, so only a directory record carrying data is refused with
// common.ErrNotEmpty.
func (fsys *FileSystem) Remove(name string) error {
	return fsys.remove(name, false, false)
}

// RemoveKind is Remove restricted to one kind of entry: a file named for a
// directory removal fails with common.ErrNotDir, and a directory named for a
// file removal with common.ErrIsDir.
func (fsys *FileSystem) RemoveKind(name string, isDir bool) error {
	return fsys.remove(name, true, isDir)
}

func (fsys *FileSystem) remove(name string, checkKind bool, isDir bool) error {
	if IsRoot(name) {
		return fmt.Errorf("remove root: %w", common.ErrBusy)
	}
	fsys.nsLock.Lock()
	defer fsys.nsLock.Unlock()

	ip, err := fsys.lookup(name)
	if err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	if checkKind && isDir && !ip.IsDir {
		return fmt.Errorf("rmdir %q: %w", name, common.ErrNotDir)
	}
	if checkKind && !isDir && ip.IsDir {
		return fmt.Errorf("unlink %q: %w", name, common.ErrIsDir)
	}
	if ip.IsDir && (ip.Size != 0 || ip.NBlocks() != 0) {
		return fmt.Errorf("remove %q: %w", name, common.ErrNotEmpty)
	}
	inum := ip.Inum
	if err := fsys.files.Release(ip); err != nil {
		// the record must not keep pointers to blocks already freed
		if err2 := fsys.inodes.Save(inum, ip); err2 != nil {
			return fmt.Errorf("%w; saving inode %d: %w", err, inum, err2)
		}
		return err
	}
	if err := fsys.inodes.Save(inum, inode.MkEmpty(inum)); err != nil {
		return err
	}
	if err := fsys.alloc.MarkInode(inum, false); err != nil {
		return err
	}
	util.DPrintf(1, "remove %q (%d)\n", name, inum)
	return nil
}

type Entry struct {
	Name  string
	IsDir bool
	Inum  common.Inum
}

// List returns the used entries in inode order. Records whose names are not
// valid (corrupt or unprintable) are skipped.
func (fsys *FileSystem) List() ([]Entry, error) {
	fsys.nsLock.RLock()
	defer fsys.nsLock.RUnlock()
	all, err := fsys.inodes.LoadAll()
	if err != nil {
		return nil, err
	}
	var ents []Entry
	for _, ip := range all {
		if !ip.Used {
			continue
		}
		if !inode.ValidName(ip.Name) {
			util.DPrintf(1, "list: skipping inode %d with bad name %q\n",
				ip.Inum, ip.Name)
			continue
		}
		ents = append(ents, Entry{Name: ip.Name, IsDir: ip.IsDir, Inum: ip.Inum})
	}
	return ents, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, common.ErrNotFound)
}
