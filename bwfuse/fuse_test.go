package bwfuse

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"

	"bazil.org/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bwfs/bwfs/common"
	"github.com/bwfs/bwfs/disk"
	bwfs "github.com/bwfs/bwfs/fs"
)

func TestErrno(t *testing.T) {
	cases := []struct {
		err   error
		errno syscall.Errno
	}{
		{common.ErrNotFound, syscall.ENOENT},
		{fmt.Errorf("create: %w", common.ErrNoInodes), syscall.ENOSPC},
		{common.ErrNoBlocks, syscall.ENOSPC},
		{common.ErrCorrupt, syscall.EIO},
		{common.ErrFormat, syscall.EIO},
		{common.ErrIO, syscall.EIO},
		{common.ErrExists, syscall.EEXIST},
		{common.ErrNotEmpty, syscall.ENOTEMPTY},
		{common.ErrInvalidName, syscall.EINVAL},
		{common.ErrInvalidIndex, syscall.EINVAL},
		{common.ErrBusy, syscall.EBUSY},
		{common.ErrFileTooLarge, syscall.EFBIG},
		{common.ErrIsDir, syscall.EISDIR},
		{common.ErrNotDir, syscall.ENOTDIR},
		{errors.New("surprise"), syscall.EIO},
		{fuse.Errno(syscall.EROFS), syscall.EROFS},
	}
	for _, c := range cases {
		assert.Equal(t, fuse.Errno(c.errno), Errno(c.err), "%v", c.err)
	}
	assert.NoError(t, Errno(nil))
}

func mkFS(t *testing.T, readOnly bool) (*FS, *Dir) {
	fsys, err := bwfs.Mkfs(disk.NewMemDisk(64), 64)
	require.NoError(t, err)
	f := New(fsys, readOnly)
	root, err := f.Root()
	require.NoError(t, err)
	return f, root.(*Dir)
}

func TestRootAttr(t *testing.T) {
	_, root := mkFS(t, false)
	var a fuse.Attr
	require.NoError(t, root.Attr(context.Background(), &a))
	assert.Equal(t, rootIno, a.Inode)
	assert.True(t, a.Mode.IsDir())
}

func TestCreateWriteRead(t *testing.T) {
	ctx := context.Background()
	_, root := mkFS(t, false)

	n, h, err := root.Create(ctx, &fuse.CreateRequest{Name: "a.txt"}, &fuse.CreateResponse{})
	require.NoError(t, err)
	f := h.(*File)
	assert.Equal(t, n, h)

	wresp := &fuse.WriteResponse{}
	require.NoError(t, f.Write(ctx, &fuse.WriteRequest{Offset: 2, Data: []byte("hey")}, wresp))
	assert.Equal(t, 3, wresp.Size)

	rresp := &fuse.ReadResponse{}
	require.NoError(t, f.Read(ctx, &fuse.ReadRequest{Offset: 0, Size: 100}, rresp))
	assert.Equal(t, []byte("\x00\x00hey"), rresp.Data)

	var a fuse.Attr
	require.NoError(t, f.Attr(ctx, &a))
	assert.Equal(t, uint64(5), a.Size)
	assert.Equal(t, os.FileMode(fileMode), a.Mode)
	assert.Equal(t, uint64(2), a.Inode)

	node, err := root.Lookup(ctx, "a.txt")
	require.NoError(t, err)
	assert.IsType(t, &File{}, node)
	_, err = root.Lookup(ctx, "b.txt")
	assert.Equal(t, fuse.Errno(syscall.ENOENT), err)

	_, _, err = root.Create(ctx, &fuse.CreateRequest{Name: "a.txt"}, &fuse.CreateResponse{})
	assert.Equal(t, fuse.Errno(syscall.EEXIST), err)
}

func TestSetattrTruncate(t *testing.T) {
	ctx := context.Background()
	_, root := mkFS(t, false)
	_, h, err := root.Create(ctx, &fuse.CreateRequest{Name: "t"}, &fuse.CreateResponse{})
	require.NoError(t, err)
	f := h.(*File)
	require.NoError(t, f.Write(ctx, &fuse.WriteRequest{Data: []byte("abcdef")}, &fuse.WriteResponse{}))

	resp := &fuse.SetattrResponse{}
	req := &fuse.SetattrRequest{Valid: fuse.SetattrSize, Size: 2}
	require.NoError(t, f.Setattr(ctx, req, resp))
	assert.Equal(t, uint64(2), resp.Attr.Size)

	req = &fuse.SetattrRequest{Valid: fuse.SetattrSize, Size: common.MaxFileSize + 1}
	assert.Equal(t, fuse.Errno(syscall.EFBIG), f.Setattr(ctx, req, resp))
}

func TestMkdirRemoveRename(t *testing.T) {
	ctx := context.Background()
	_, root := mkFS(t, false)

	dn, err := root.Mkdir(ctx, &fuse.MkdirRequest{Name: "d"})
	require.NoError(t, err)
	sub := dn.(*Dir)
	_, _, err = sub.Create(ctx, &fuse.CreateRequest{Name: "inner"}, &fuse.CreateResponse{})
	assert.Equal(t, fuse.Errno(syscall.EPERM), err)
	ents, err := sub.ReadDirAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, ents)

	_, _, err = root.Create(ctx, &fuse.CreateRequest{Name: "f"}, &fuse.CreateResponse{})
	require.NoError(t, err)

	ents, err = root.ReadDirAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []fuse.Dirent{
		{Inode: 2, Type: fuse.DT_Dir, Name: "d"},
		{Inode: 3, Type: fuse.DT_File, Name: "f"},
	}, ents)

	err = root.Remove(ctx, &fuse.RemoveRequest{Name: "f", Dir: true})
	assert.Equal(t, fuse.Errno(syscall.ENOTDIR), err)
	err = root.Remove(ctx, &fuse.RemoveRequest{Name: "d", Dir: false})
	assert.Equal(t, fuse.Errno(syscall.EISDIR), err)

	err = root.Rename(ctx, &fuse.RenameRequest{OldName: "f", NewName: "d"}, root)
	assert.Equal(t, fuse.Errno(syscall.EEXIST), err)
	require.NoError(t, root.Rename(ctx, &fuse.RenameRequest{OldName: "f", NewName: "g"}, root))
	err = root.Rename(ctx, &fuse.RenameRequest{OldName: "g", NewName: "h"}, sub)
	assert.Equal(t, fuse.Errno(syscall.EXDEV), err)

	require.NoError(t, root.Remove(ctx, &fuse.RemoveRequest{Name: "d", Dir: true}))
	require.NoError(t, root.Remove(ctx, &fuse.RemoveRequest{Name: "g"}))
	ents, err = root.ReadDirAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, ents)
}

func TestStatfs(t *testing.T) {
	f, _ := mkFS(t, false)
	resp := &fuse.StatfsResponse{}
	require.NoError(t, f.Statfs(context.Background(), &fuse.StatfsRequest{}, resp))
	assert.Equal(t, uint64(64), resp.Blocks)
	assert.Equal(t, 64-uint64(common.DataStart), resp.Bfree)
	assert.Equal(t, common.NInode, resp.Files)
	assert.Equal(t, common.NInode, resp.Ffree)
	assert.Equal(t, uint32(common.BlockSize), resp.Bsize)
	assert.Equal(t, uint32(common.NameMax), resp.Namelen)
}

func TestReadOnly(t *testing.T) {
	ctx := context.Background()
	_, root := mkFS(t, true)
	_, _, err := root.Create(ctx, &fuse.CreateRequest{Name: "x"}, &fuse.CreateResponse{})
	assert.Equal(t, fuse.Errno(syscall.EROFS), err)
	assert.Equal(t, fuse.Errno(syscall.EROFS),
		root.Access(ctx, &fuse.AccessRequest{Mask: 2}))
	assert.NoError(t, root.Access(ctx, &fuse.AccessRequest{Mask: 4}))
}
