// bwfuse serves a FileSystem to the kernel over FUSE.
//
// The root directory lists every entry of the flat namespace. Directories
// created under it are leaves: they are always empty and cannot hold entries.
package bwfuse

import (
	"context"
	"os"
	"syscall"
	"time"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"github.com/bwfs/bwfs/common"
	bwfs "github.com/bwfs/bwfs/fs"
	"github.com/bwfs/bwfs/inode"
	"github.com/bwfs/bwfs/util"
)

const (
	rootIno  uint64 = 1
	fileMode        = 0644
	dirMode         = os.ModeDir | 0755
)

type Options struct {
	FSName     string
	ReadOnly   bool
	AllowOther bool
}

// Mount mounts fsys at mountpoint and serves requests until it is unmounted.
func Mount(fsys *bwfs.FileSystem, mountpoint string, opts Options) error {
	mopts := []fuse.MountOption{
		fuse.FSName(opts.FSName),
		fuse.Subtype("bwfs"),
	}
	if opts.ReadOnly {
		mopts = append(mopts, fuse.ReadOnly())
	}
	if opts.AllowOther {
		mopts = append(mopts, fuse.AllowOther())
	}
	c, err := fuse.Mount(mountpoint, mopts...)
	if err != nil {
		return err
	}
	defer c.Close()
	util.DPrintf(0, "serving %s on %s\n", opts.FSName, mountpoint)
	return fusefs.Serve(c, New(fsys, opts.ReadOnly))
}

// Unmount asks the kernel to detach mountpoint, which ends Mount.
func Unmount(mountpoint string) error {
	return fuse.Unmount(mountpoint)
}

type FS struct {
	fsys     *bwfs.FileSystem
	readOnly bool
	uid, gid uint32
	mounted  time.Time
}

var _ fusefs.FS = (*FS)(nil)
var _ fusefs.FSStatfser = (*FS)(nil)

func New(fsys *bwfs.FileSystem, readOnly bool) *FS {
	return &FS{
		fsys:     fsys,
		readOnly: readOnly,
		uid:      uint32(os.Getuid()),
		gid:      uint32(os.Getgid()),
		mounted:  time.Now(),
	}
}

func (f *FS) Root() (fusefs.Node, error) {
	return &Dir{fs: f, root: true}, nil
}

func (f *FS) Statfs(ctx context.Context, req *fuse.StatfsRequest, resp *fuse.StatfsResponse) error {
	st, err := f.fsys.Statfs()
	if err != nil {
		return Errno(err)
	}
	resp.Blocks = st.Blocks
	resp.Bfree = st.FreeBlocks
	resp.Bavail = st.FreeBlocks
	resp.Files = st.Inodes
	resp.Ffree = st.FreeInodes
	resp.Bsize = uint32(st.BlockSize)
	resp.Frsize = uint32(st.BlockSize)
	resp.Namelen = uint32(st.NameMax)
	return nil
}

func (f *FS) checkWritable() error {
	if f.readOnly {
		return fuse.Errno(syscall.EROFS)
	}
	return nil
}

// ino is the inode number reported to the kernel; 1 is the root.
func ino(inum common.Inum) uint64 {
	return uint64(inum) + rootIno + 1
}

func (f *FS) fillAttr(ip *inode.Inode, a *fuse.Attr) {
	a.Inode = ino(ip.Inum)
	a.Size = ip.Size
	a.Blocks = ip.NBlocks() * common.BlockSize / 512
	a.BlockSize = uint32(common.BlockSize)
	a.Mtime = time.Unix(int64(ip.ModifiedAt), 0)
	a.Ctime = a.Mtime
	a.Atime = a.Mtime
	a.Crtime = time.Unix(int64(ip.CreatedAt), 0)
	a.Uid = f.uid
	a.Gid = f.gid
	if ip.IsDir {
		a.Mode = dirMode
		a.Nlink = 2
	} else {
		a.Mode = fileMode
		a.Nlink = 1
	}
}

func (f *FS) node(ip *inode.Inode) fusefs.Node {
	if ip.IsDir {
		return &Dir{fs: f, inum: ip.Inum}
	}
	return &File{fs: f, inum: ip.Inum}
}

func direntType(isDir bool) fuse.DirentType {
	if isDir {
		return fuse.DT_Dir
	}
	return fuse.DT_File
}
