package file

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/bwfs/bwfs/alloc"
	"github.com/bwfs/bwfs/common"
	"github.com/bwfs/bwfs/disk"
	"github.com/bwfs/bwfs/inode"
	"github.com/bwfs/bwfs/super"
)

const bs = common.BlockSize

type FileSuite struct {
	suite.Suite
	fs    *super.FsSuper
	alloc *alloc.Alloc
	m     *Mgr
	ip    *inode.Inode
}

func (suite *FileSuite) SetupTest() {
	d := disk.NewMemDisk(64)
	fs, err := super.Create(d, 64)
	suite.Require().NoError(err)
	suite.fs = fs
	suite.alloc = alloc.MkAlloc(fs)
	suite.Require().NoError(suite.alloc.Init())
	suite.m = MkMgr(fs, suite.alloc)
	suite.m.Now = func() time.Time { return time.Unix(1234, 0) }
	suite.ip = inode.MkInode(0, "f", false, 0)
}

func TestFile(t *testing.T) {
	suite.Run(t, new(FileSuite))
}

func (suite *FileSuite) write(off uint64, data []byte) {
	n, err := suite.m.Write(suite.ip, off, data)
	suite.Require().NoError(err)
	suite.Require().Equal(uint64(len(data)), n)
}

func (suite *FileSuite) read(off, n uint64) []byte {
	data, err := suite.m.Read(suite.ip, off, n)
	suite.Require().NoError(err)
	return data
}

func (suite *FileSuite) freeBlocks() uint64 {
	n, err := suite.alloc.NumFreeBlocks()
	suite.Require().NoError(err)
	return n
}

func (suite *FileSuite) TestSmallRoundTrip() {
	suite.write(0, []byte("hello, bwf"))
	suite.Equal(uint64(10), suite.ip.Size)
	suite.Equal([]byte("hello, bwf"), suite.read(0, 10))
	suite.Equal([]byte("lo"), suite.read(3, 2))
	suite.Equal(uint32(1234), suite.ip.ModifiedAt)
	suite.Equal(int32(common.DataStart), suite.ip.Blocks[0])
}

func (suite *FileSuite) TestRoundTripAcrossChunks() {
	data := make([]byte, 3*bs+100)
	rand.Read(data)
	for i := range data[:256] {
		data[i] = byte(i)
	}
	off := bs - 50
	suite.write(off, data)
	suite.Equal(off+uint64(len(data)), suite.ip.Size)
	suite.Equal(data, suite.read(off, uint64(len(data))))
	suite.Equal(uint64(5), suite.ip.NBlocks())
}

func (suite *FileSuite) TestReadClamps() {
	suite.write(0, []byte("abc"))
	suite.Equal([]byte("bc"), suite.read(1, 100))
	suite.Equal([]byte{}, suite.read(3, 10), "read at EOF is empty")
	suite.Equal([]byte{}, suite.read(1000, 10), "read past EOF is empty")
}

func (suite *FileSuite) TestWriteAtThreeChunks() {
	before := suite.freeBlocks()
	suite.write(3*bs, []byte("xyz"))
	suite.Equal(3*bs+3, suite.ip.Size)
	suite.Equal(uint64(4), suite.ip.NBlocks())
	suite.Equal(before-4, suite.freeBlocks())
	suite.Equal(make([]byte, 3*bs), suite.read(0, 3*bs), "gap reads as zero")
	suite.Equal([]byte("xyz"), suite.read(3*bs, 3))
}

func (suite *FileSuite) TestOverwritePartial() {
	suite.write(0, bytes.Repeat([]byte{'a'}, int(bs+10)))
	suite.write(bs-2, []byte("XYZW"))
	got := suite.read(0, bs+10)
	suite.Equal(byte('a'), got[bs-3])
	suite.Equal([]byte("XYZW"), got[bs-2:bs+2])
	suite.Equal(byte('a'), got[bs+2])
	suite.Equal(bs+10, suite.ip.Size, "overwrite keeps size")
}

func (suite *FileSuite) TestTooLarge() {
	_, err := suite.m.Write(suite.ip, common.MaxFileSize-1, []byte("ab"))
	suite.True(errors.Is(err, common.ErrFileTooLarge))
	_, err = suite.m.Write(suite.ip, ^uint64(0), []byte("a"))
	suite.True(errors.Is(err, common.ErrFileTooLarge))
	suite.Equal(uint64(0), suite.ip.Size)

	suite.write(common.MaxFileSize-1, []byte("z"))
	suite.Equal(common.MaxFileSize, suite.ip.Size)
	suite.Equal(common.NDirect, suite.ip.NBlocks())

	suite.True(errors.Is(suite.m.Truncate(suite.ip, common.MaxFileSize+1),
		common.ErrFileTooLarge))
}

func (suite *FileSuite) TestEmptyWrite() {
	n, err := suite.m.Write(suite.ip, 100, nil)
	suite.NoError(err)
	suite.Equal(uint64(0), n)
	suite.Equal(uint64(0), suite.ip.Size)
	suite.Equal(uint64(0), suite.ip.NBlocks())
}

func (suite *FileSuite) TestHoleIsIoError() {
	suite.write(0, make([]byte, 2*bs))
	suite.ip.Blocks[1] = common.NULLBNUM
	_, err := suite.m.Read(suite.ip, bs, 1)
	suite.True(errors.Is(err, common.ErrIO))

	suite.ip.Blocks[1] = 3 // inside the inode table
	_, err = suite.m.Read(suite.ip, bs, 1)
	suite.True(errors.Is(err, common.ErrIO))
	suite.ip.Blocks[1] = 64
	_, err = suite.m.Read(suite.ip, bs, 1)
	suite.True(errors.Is(err, common.ErrIO))
}

func (suite *FileSuite) TestShrinkThenGrowReadsZero() {
	suite.write(0, bytes.Repeat([]byte{'q'}, int(bs+100)))
	blocks := suite.ip.Blocks
	suite.Require().NoError(suite.m.Truncate(suite.ip, 10))
	suite.Equal(uint64(10), suite.ip.Size)
	suite.Equal(blocks, suite.ip.Blocks, "shrink keeps blocks")

	suite.write(bs+50, []byte("!"))
	got := suite.read(0, bs+51)
	suite.Equal(bytes.Repeat([]byte{'q'}, 10), got[:10])
	suite.Equal(make([]byte, bs+40), got[10:bs+50], "stale bytes are not revived")
	suite.Equal(byte('!'), got[bs+50])
	suite.Equal(blocks, suite.ip.Blocks, "retained blocks are reused")
}

func (suite *FileSuite) TestTruncateGrow() {
	suite.write(0, []byte("abc"))
	suite.Require().NoError(suite.m.Truncate(suite.ip, 2*bs))
	suite.Equal(2*bs, suite.ip.Size)
	got := suite.read(0, 2*bs)
	suite.Equal([]byte("abc"), got[:3])
	suite.Equal(make([]byte, 2*bs-3), got[3:])
}

func (suite *FileSuite) TestRelease() {
	before := suite.freeBlocks()
	suite.write(0, make([]byte, 3*bs))
	suite.Equal(before-3, suite.freeBlocks())
	suite.Require().NoError(suite.m.Release(suite.ip))
	suite.Equal(before, suite.freeBlocks())
	suite.Equal(uint64(0), suite.ip.Size)
	suite.Equal(uint64(0), suite.ip.NBlocks())
}

func (suite *FileSuite) TestOutOfBlocks() {
	// leave two free data blocks
	for {
		n := suite.freeBlocks()
		if n == 2 {
			break
		}
		_, err := suite.alloc.AllocBlock()
		suite.Require().NoError(err)
	}
	data := make([]byte, 3*bs)
	data[0] = 1
	n, err := suite.m.Write(suite.ip, 0, data)
	suite.True(errors.Is(err, common.ErrNoBlocks))
	suite.Equal(2*bs, n)
	suite.Equal(2*bs, suite.ip.Size, "size covers what was written")
	suite.Equal([]byte{1}, suite.read(0, 1))
}

// dataFailDisk fails every write to a data block.
type dataFailDisk struct {
	disk.Disk
}

func (d dataFailDisk) Write(a uint64, v disk.Block) error {
	if a >= common.DataStart {
		return fmt.Errorf("block %d: %w", a, common.ErrIO)
	}
	return d.Disk.Write(a, v)
}

func (suite *FileSuite) TestFailedWriteReturnsBlock() {
	suite.write(0, bytes.Repeat([]byte{1}, int(bs)))
	free := suite.freeBlocks()
	ptr := suite.ip.Blocks[0]

	suite.m.d = dataFailDisk{Disk: suite.m.d}
	n, err := suite.m.Write(suite.ip, bs, []byte{2})
	suite.True(errors.Is(err, common.ErrIO))
	suite.Equal(uint64(0), n)
	suite.Equal(ptr, suite.ip.Blocks[0], "existing block is kept")
	suite.Equal(common.NULLBNUM, suite.ip.Blocks[1])
	suite.Equal(bs, suite.ip.Size)
	suite.Equal(free, suite.freeBlocks())
}
