package disk

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bwfs/bwfs/common"
	"github.com/bwfs/bwfs/pbm"
)

func mkBlock(b byte) Block {
	block := make(Block, common.BlockSize)
	for i := range block {
		block[i] = b + byte(i)
	}
	return block
}

func testReadWrite(t *testing.T, d Disk) {
	sz, err := d.Size()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), sz)

	blank, err := d.Read(2)
	require.NoError(t, err)
	assert.Equal(t, make(Block, common.BlockSize), blank, "new blocks are zero")

	require.NoError(t, d.Write(2, mkBlock(7)))
	require.NoError(t, d.Write(3, mkBlock(9)))
	b, err := d.Read(2)
	require.NoError(t, err)
	assert.Equal(t, mkBlock(7), b)

	buf := make(Block, common.BlockSize)
	require.NoError(t, d.ReadTo(3, buf))
	assert.Equal(t, mkBlock(9), buf)

	_, err = d.Read(4)
	assert.True(t, errors.Is(err, common.ErrIO), "out of bounds read")
	err = d.Write(4, mkBlock(1))
	assert.True(t, errors.Is(err, common.ErrIO), "out of bounds write")
	err = d.Write(0, make(Block, 10))
	assert.True(t, errors.Is(err, common.ErrIO), "short block")

	require.NoError(t, d.Barrier())
}

func TestMemDisk(t *testing.T) {
	d := NewMemDisk(4)
	testReadWrite(t, d)
	require.NoError(t, d.Close())
}

func TestDirDisk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "vol")
	d, err := NewDirDisk(dir, 4)
	require.NoError(t, err)
	testReadWrite(t, d)

	text, err := os.ReadFile(filepath.Join(dir, "block_002.pbm"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(text), "P1\n# bwfs block 0002\n256 128\n"))

	d2, err := OpenDirDisk(dir)
	require.NoError(t, err)
	sz, _ := d2.Size()
	assert.Equal(t, uint64(4), sz)
	b, err := d2.Read(3)
	require.NoError(t, err)
	assert.Equal(t, mkBlock(9), b, "reopened volume keeps data")
}

func TestDirDiskCorruptBlock(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDirDisk(dir, 2)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, BlockFileName(1)),
		[]byte("garbage"), 0644))
	_, err = d.Read(1)
	assert.True(t, errors.Is(err, common.ErrFormat))

	require.NoError(t, os.Remove(filepath.Join(dir, BlockFileName(1))))
	_, err = d.Read(1)
	assert.True(t, errors.Is(err, common.ErrIO))
}

func TestFileDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.img")
	d, err := NewFileDisk(path, 4)
	require.NoError(t, err)
	testReadWrite(t, d)
	require.NoError(t, d.Close())

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(4*pbm.FrameSize), fi.Size())

	d2, err := OpenFileDisk(path)
	require.NoError(t, err)
	defer d2.Close()
	b, err := d2.Read(2)
	require.NoError(t, err)
	assert.Equal(t, mkBlock(7), b)
}

func TestOpenPath(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "dir")
	blob := filepath.Join(base, "blob")

	d, err := Create(dir, LayoutDir, 2)
	require.NoError(t, err)
	require.NoError(t, d.Close())
	d, err = Create(blob, LayoutBlob, 3)
	require.NoError(t, err)
	require.NoError(t, d.Close())

	d, err = OpenPath(dir)
	require.NoError(t, err)
	sz, _ := d.Size()
	assert.Equal(t, uint64(2), sz)

	d, err = OpenPath(blob)
	require.NoError(t, err)
	sz, _ = d.Size()
	assert.Equal(t, uint64(3), sz)
	d.Close()

	_, err = OpenPath(filepath.Join(base, "missing"))
	assert.True(t, errors.Is(err, common.ErrIO))

	_, err = Create(filepath.Join(base, "x"), Layout("tape"), 1)
	assert.Error(t, err)
}
