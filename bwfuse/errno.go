package bwfuse

import (
	"errors"
	"syscall"

	"bazil.org/fuse"

	"github.com/bwfs/bwfs/common"
	"github.com/bwfs/bwfs/util"
)

var errnos = []struct {
	kind  common.Error
	errno syscall.Errno
}{
	{common.ErrNotFound, syscall.ENOENT},
	{common.ErrNoInodes, syscall.ENOSPC},
	{common.ErrNoBlocks, syscall.ENOSPC},
	{common.ErrExists, syscall.EEXIST},
	{common.ErrNotEmpty, syscall.ENOTEMPTY},
	{common.ErrInvalidName, syscall.EINVAL},
	{common.ErrInvalidIndex, syscall.EINVAL},
	{common.ErrBusy, syscall.EBUSY},
	{common.ErrFileTooLarge, syscall.EFBIG},
	{common.ErrIsDir, syscall.EISDIR},
	{common.ErrNotDir, syscall.ENOTDIR},
	{common.ErrCorrupt, syscall.EIO},
	{common.ErrFormat, syscall.EIO},
	{common.ErrIO, syscall.EIO},
}

// Errno translates an engine error into the errno the kernel sees. Errors of
// unknown kind become EIO.
func Errno(err error) error {
	if err == nil {
		return nil
	}
	var e fuse.Errno
	if errors.As(err, &e) {
		return e
	}
	for _, m := range errnos {
		if errors.Is(err, m.kind) {
			util.DPrintf(5, "fuse: %v -> %v\n", err, m.errno)
			return fuse.Errno(m.errno)
		}
	}
	util.DPrintf(0, "fuse: unexpected error: %v\n", err)
	return fuse.Errno(syscall.EIO)
}
