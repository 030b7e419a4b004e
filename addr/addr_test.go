package addr

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bwfs/bwfs/common"
)

func TestFlatid(t *testing.T) {
	assert := assert.New(t)
	a := MkAddr(12, 1024)
	assert.Equal(uint64(12*4096+1024), a.Flatid())
	assert.Equal(a, FromFlatid(a.Flatid()))
	assert.Equal(MkAddr(12, 1030), a.Plus(6))
}

func TestInodeAddr(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(MkAddr(1, 0), MkInodeAddr(1, 0))
	assert.Equal(MkAddr(1, 11*common.InodeSize), MkInodeAddr(1, 11))
	assert.Equal(MkAddr(2, 0), MkInodeAddr(1, 12))
	last := MkInodeAddr(common.InodeTableStart, common.Inum(common.NInode-1))
	assert.Less(uint64(last.Blkno), uint64(common.BitmapBlock),
		"the inode table must end before the bitmap block")
	assert.LessOrEqual(last.Off+common.InodeSize, common.BlockSize)
}
