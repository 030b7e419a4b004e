package bwfuse

import (
	"context"
	"syscall"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"github.com/bwfs/bwfs/common"
)

// Dir is the root, or a leaf directory entry when root is false.
type Dir struct {
	fs   *FS
	root bool
	inum common.Inum
}

var _ fusefs.Node = (*Dir)(nil)
var _ fusefs.NodeStringLookuper = (*Dir)(nil)
var _ fusefs.HandleReadDirAller = (*Dir)(nil)
var _ fusefs.NodeCreater = (*Dir)(nil)
var _ fusefs.NodeMkdirer = (*Dir)(nil)
var _ fusefs.NodeRemover = (*Dir)(nil)
var _ fusefs.NodeRenamer = (*Dir)(nil)
var _ fusefs.NodeOpener = (*Dir)(nil)
var _ fusefs.NodeAccesser = (*Dir)(nil)
var _ fusefs.NodeSetattrer = (*Dir)(nil)

func (d *Dir) Attr(ctx context.Context, a *fuse.Attr) error {
	if !d.root {
		ip, err := d.fs.fsys.Stat(d.inum)
		if err != nil {
			return Errno(err)
		}
		d.fs.fillAttr(ip, a)
		return nil
	}
	a.Inode = rootIno
	a.Mode = dirMode
	a.Nlink = 2
	a.Uid = d.fs.uid
	a.Gid = d.fs.gid
	a.BlockSize = uint32(common.BlockSize)
	a.Mtime = d.fs.mounted
	a.Ctime = d.fs.mounted
	a.Atime = d.fs.mounted
	return nil
}

func (d *Dir) Lookup(ctx context.Context, name string) (fusefs.Node, error) {
	if !d.root {
		return nil, fuse.Errno(syscall.ENOENT)
	}
	ip, err := d.fs.fsys.Lookup(name)
	if err != nil {
		return nil, Errno(err)
	}
	return d.fs.node(ip), nil
}

func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	if !d.root {
		return []fuse.Dirent{}, nil
	}
	ents, err := d.fs.fsys.List()
	if err != nil {
		return nil, Errno(err)
	}
	dirents := make([]fuse.Dirent, 0, len(ents))
	for _, e := range ents {
		dirents = append(dirents, fuse.Dirent{
			Inode: ino(e.Inum),
			Type:  direntType(e.IsDir),
			Name:  e.Name,
		})
	}
	return dirents, nil
}

// checkParent refuses entries inside leaf directories.
func (d *Dir) checkParent() error {
	if d.root {
		return d.fs.checkWritable()
	}
	return fuse.Errno(syscall.EPERM)
}

func (d *Dir) create(name string, isDir bool) (fusefs.Node, error) {
	if err := d.checkParent(); err != nil {
		return nil, err
	}
	inum, err := d.fs.fsys.Create(name, isDir)
	if err != nil {
		return nil, Errno(err)
	}
	if isDir {
		return &Dir{fs: d.fs, inum: inum}, nil
	}
	return &File{fs: d.fs, inum: inum}, nil
}

func (d *Dir) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fusefs.Node, fusefs.Handle, error) {
	n, err := d.create(req.Name, false)
	if err != nil {
		return nil, nil, err
	}
	return n, n, nil
}

func (d *Dir) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fusefs.Node, error) {
	return d.create(req.Name, true)
}

func (d *Dir) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	if err := d.checkParent(); err != nil {
		return err
	}
	return Errno(d.fs.fsys.RemoveKind(req.Name, req.Dir))
}

func (d *Dir) Rename(ctx context.Context, req *fuse.RenameRequest, newDir fusefs.Node) error {
	if err := d.checkParent(); err != nil {
		return err
	}
	if nd, ok := newDir.(*Dir); !ok || !nd.root {
		return fuse.Errno(syscall.EXDEV)
	}
	return Errno(d.fs.fsys.Rename(req.OldName, req.NewName))
}

func (d *Dir) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fusefs.Handle, error) {
	if !d.root {
		if _, err := d.fs.fsys.Stat(d.inum); err != nil {
			return nil, Errno(err)
		}
	}
	return d, nil
}

// Access allows everything; permissions are fixed.
func (d *Dir) Access(ctx context.Context, req *fuse.AccessRequest) error {
	if req.Mask&2 != 0 { // W_OK
		return d.fs.checkWritable()
	}
	return nil
}

func (d *Dir) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	if !d.root && req.Valid.Mtime() {
		if err := d.fs.fsys.Utime(d.inum, req.Mtime); err != nil {
			return Errno(err)
		}
	}
	return d.Attr(ctx, &resp.Attr)
}
