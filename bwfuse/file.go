package bwfuse

import (
	"context"
	"syscall"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"github.com/bwfs/bwfs/common"
)

// File is both the node and the open handle of a regular file. Offsets come
// with every read and write, so handles carry no position.
type File struct {
	fs   *FS
	inum common.Inum
}

var _ fusefs.Node = (*File)(nil)
var _ fusefs.NodeOpener = (*File)(nil)
var _ fusefs.HandleReader = (*File)(nil)
var _ fusefs.HandleWriter = (*File)(nil)
var _ fusefs.NodeSetattrer = (*File)(nil)
var _ fusefs.NodeFsyncer = (*File)(nil)
var _ fusefs.HandleFlusher = (*File)(nil)
var _ fusefs.NodeAccesser = (*File)(nil)

func (f *File) Attr(ctx context.Context, a *fuse.Attr) error {
	ip, err := f.fs.fsys.Stat(f.inum)
	if err != nil {
		return Errno(err)
	}
	f.fs.fillAttr(ip, a)
	return nil
}

func (f *File) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fusefs.Handle, error) {
	if !req.Flags.IsReadOnly() {
		if err := f.fs.checkWritable(); err != nil {
			return nil, err
		}
	}
	if req.Flags&fuse.OpenTruncate != 0 {
		if err := f.fs.fsys.Truncate(f.inum, 0); err != nil {
			return nil, Errno(err)
		}
	}
	return f, nil
}

func (f *File) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	if req.Offset < 0 || req.Size < 0 {
		return fuse.Errno(syscall.EINVAL)
	}
	data, err := f.fs.fsys.ReadAt(f.inum, uint64(req.Offset), uint64(req.Size))
	if err != nil {
		return Errno(err)
	}
	resp.Data = data
	return nil
}

func (f *File) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	if err := f.fs.checkWritable(); err != nil {
		return err
	}
	if req.Offset < 0 {
		return fuse.Errno(syscall.EINVAL)
	}
	n, err := f.fs.fsys.WriteAt(f.inum, uint64(req.Offset), req.Data)
	resp.Size = int(n)
	if err != nil && n == 0 {
		return Errno(err)
	}
	return nil
}

// Setattr handles truncate and utime; mode and ownership are fixed.
func (f *File) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	if req.Valid.Size() {
		if err := f.fs.checkWritable(); err != nil {
			return err
		}
		if err := f.fs.fsys.Truncate(f.inum, req.Size); err != nil {
			return Errno(err)
		}
	}
	if req.Valid.Mtime() {
		if err := f.fs.fsys.Utime(f.inum, req.Mtime); err != nil {
			return Errno(err)
		}
	}
	return f.Attr(ctx, &resp.Attr)
}

func (f *File) Fsync(ctx context.Context, req *fuse.FsyncRequest) error {
	return Errno(f.fs.fsys.Sync())
}

func (f *File) Flush(ctx context.Context, req *fuse.FlushRequest) error {
	return Errno(f.fs.fsys.Sync())
}

func (f *File) Access(ctx context.Context, req *fuse.AccessRequest) error {
	if _, err := f.fs.fsys.Stat(f.inum); err != nil {
		return Errno(err)
	}
	if req.Mask&2 != 0 {
		return f.fs.checkWritable()
	}
	return nil
}
