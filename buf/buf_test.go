package buf

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bwfs/bwfs/addr"
	"github.com/bwfs/bwfs/common"
	"github.com/bwfs/bwfs/disk"
)

func TestInstall(t *testing.T) {
	blk := make(disk.Block, common.BlockSize)
	b := MkBuf(addr.MkAddr(0, 4), 2, []byte{0xAA, 0xBB})
	b.Install(blk)
	assert.Equal(t, []byte{0, 0, 0, 0, 0xAA, 0xBB, 0}, blk[:7])
}

func TestWriteDirectPreservesNeighbours(t *testing.T) {
	d := disk.NewMemDisk(2)
	full := make(disk.Block, common.BlockSize)
	for i := range full {
		full[i] = 0xFF
	}
	require.NoError(t, d.Write(1, full))

	b := MkBuf(addr.MkAddr(1, 100), 3, []byte{1, 2, 3})
	require.NoError(t, b.WriteDirect(d))

	blk, err := d.Read(1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 1, 2, 3, 0xFF}, blk[99:104])

	rb, err := ReadDirect(d, addr.MkAddr(1, 100), 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, rb.Data)
}

func TestWholeBlock(t *testing.T) {
	d := disk.NewMemDisk(1)
	data := make([]byte, common.BlockSize)
	data[0] = 7
	b := MkBuf(addr.MkAddr(0, 0), common.BlockSize, data)
	require.NoError(t, b.WriteDirect(d))
	blk, err := d.Read(0)
	require.NoError(t, err)
	assert.Equal(t, data, blk)
}

func TestCrossesBlockEnd(t *testing.T) {
	d := disk.NewMemDisk(1)
	b := MkBuf(addr.MkAddr(0, common.BlockSize-1), 2, []byte{1, 2})
	assert.True(t, errors.Is(b.WriteDirect(d), common.ErrInvalidIndex))
	_, err := ReadDirect(d, addr.MkAddr(0, common.BlockSize-1), 2)
	assert.True(t, errors.Is(err, common.ErrInvalidIndex))
}
