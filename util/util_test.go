package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinMax(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(uint64(2), Min(2, 3))
	assert.Equal(uint64(2), Min(3, 2))
	assert.Equal(uint64(7), Min(7, 7))
	assert.Equal(uint64(3), Max(2, 3))
	assert.Equal(uint64(3), Max(3, 2))
}

func TestRoundUp(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(uint64(0), RoundUp(0, 4096), "empty file has no chunks")
	assert.Equal(uint64(1), RoundUp(1, 4096))
	assert.Equal(uint64(1), RoundUp(4096, 4096), "exact division")
	assert.Equal(uint64(2), RoundUp(4097, 4096))
	assert.Equal(uint64(11), RoundUp(128, 12), "inode table blocks")
}

func TestSumOverflows(t *testing.T) {
	assert := assert.New(t)
	const top = ^uint64(0)
	assert.False(SumOverflows(4096*11, 4096))
	assert.False(SumOverflows(top-1, 1))
	assert.False(SumOverflows(0, top))
	assert.True(SumOverflows(top, 1), "offset near the top of the range")
	assert.True(SumOverflows(1<<63, 1<<63))
}

func TestCloneByteSlice(t *testing.T) {
	s := []byte{1, 2, 3}
	c := CloneByteSlice(s)
	c[0] = 9
	assert.Equal(t, byte(1), s[0], "clone should not alias")
	assert.Equal(t, []byte{}, CloneByteSlice([]byte{}))
}
