package common

import "errors"

// Error is a constant error kind. Callers wrap kinds with context using
// fmt.Errorf("...: %w", err) and classify them with errors.Is.
type Error string

func (err Error) Error() string { return string(err) }

const (
	ErrIO           Error = "i/o error"
	ErrCorrupt      Error = "corrupt volume"
	ErrFormat       Error = "malformed block"
	ErrNoInodes     Error = "out of inodes"
	ErrNoBlocks     Error = "out of blocks"
	ErrNotFound     Error = "not found"
	ErrExists       Error = "already exists"
	ErrNotEmpty     Error = "directory not empty"
	ErrInvalidName  Error = "invalid name"
	ErrInvalidIndex Error = "invalid index"
	ErrFileTooLarge Error = "file too large"
	ErrBusy         Error = "resource busy"
	ErrIsDir        Error = "is a directory"
	ErrNotDir       Error = "not a directory"
)

// IsExhausted reports whether err means the volume ran out of inodes or
// blocks.
func IsExhausted(err error) bool {
	return errors.Is(err, ErrNoInodes) || errors.Is(err, ErrNoBlocks)
}
