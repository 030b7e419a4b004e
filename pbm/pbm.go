// Package pbm stores one block of bytes as a plain (P1) portable bitmap.
//
// A frame is a three line header followed by one 0/1 token per bit:
//
//	P1
//	# bwfs block 0007
//	256 128
//	0 1 0 0 ...
//
// Bits are written most-significant first, eight tokens per payload byte,
// and the token stream is wrapped every LineTokens tokens.
package pbm

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/bwfs/bwfs/common"
)

const (
	Tag        = "P1"
	LineTokens = 32

	// HeaderMax bounds the header length produced by Encode.
	HeaderMax uint64 = 64

	// FrameSize is the fixed size of a frame padded for a blob volume.
	FrameSize = HeaderMax + common.BlockSize*8*2
)

func header(blkno uint64) string {
	return fmt.Sprintf("%s\n# bwfs block %04d\n%d %d\n",
		Tag, blkno, common.ImageWidth, common.ImageHeight)
}

// Encode renders data as the frame of block blkno. Data shorter than a block
// is zero padded; longer data is rejected.
func Encode(data []byte, blkno uint64) ([]byte, error) {
	if uint64(len(data)) > common.BlockSize {
		return nil, fmt.Errorf("encoding block %d: %d bytes exceeds capacity %d: %w",
			blkno, len(data), common.BlockSize, common.ErrFormat)
	}
	hdr := header(blkno)
	nbits := common.BlockSize * 8
	out := make([]byte, 0, uint64(len(hdr))+nbits*2)
	out = append(out, hdr...)
	for i := uint64(0); i < nbits; i++ {
		var bit byte
		if i/8 < uint64(len(data)) {
			bit = (data[i/8] >> (7 - i%8)) & 1
		}
		out = append(out, '0'+bit)
		if (i+1)%LineTokens == 0 {
			out = append(out, '\n')
		} else {
			out = append(out, ' ')
		}
	}
	return out, nil
}

// EncodeFrame is Encode padded with newlines to exactly FrameSize bytes.
func EncodeFrame(data []byte, blkno uint64) ([]byte, error) {
	out, err := Encode(data, blkno)
	if err != nil {
		return nil, err
	}
	if uint64(len(out)) > FrameSize {
		return nil, fmt.Errorf("encoding block %d: frame overflow: %w",
			blkno, common.ErrFormat)
	}
	pad := bytes.Repeat([]byte{'\n'}, int(FrameSize)-len(out))
	return append(out, pad...), nil
}

// Decode parses a frame back into a block. Characters other than 0 and 1
// after the header are ignored; a frame with too few tokens decodes with the
// missing bits set to zero.
func Decode(text []byte) ([]byte, error) {
	rest := text
	var lines [3][]byte
	for i := range lines {
		nl := bytes.IndexByte(rest, '\n')
		if nl < 0 {
			return nil, fmt.Errorf("decoding block: truncated header: %w",
				common.ErrFormat)
		}
		lines[i] = bytes.TrimRight(rest[:nl], "\r")
		rest = rest[nl+1:]
	}
	if string(bytes.TrimSpace(lines[0])) != Tag {
		return nil, fmt.Errorf("decoding block: format tag %q: %w",
			lines[0], common.ErrFormat)
	}
	if !bytes.HasPrefix(bytes.TrimSpace(lines[1]), []byte("#")) {
		return nil, fmt.Errorf("decoding block: missing comment line: %w",
			common.ErrFormat)
	}
	if err := checkDims(lines[2]); err != nil {
		return nil, err
	}

	blk := make([]byte, common.BlockSize)
	nbits := common.BlockSize * 8
	var n uint64
	for _, c := range rest {
		if n == nbits {
			break
		}
		if c != '0' && c != '1' {
			continue
		}
		if c == '1' {
			blk[n/8] |= 1 << (7 - n%8)
		}
		n++
	}
	return blk, nil
}

func checkDims(line []byte) error {
	fields := bytes.Fields(line)
	if len(fields) != 2 {
		return fmt.Errorf("decoding block: dimensions %q: %w", line,
			common.ErrFormat)
	}
	w, err := strconv.ParseUint(string(fields[0]), 10, 64)
	if err != nil {
		return fmt.Errorf("decoding block: width: %v: %w", err, common.ErrFormat)
	}
	h, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return fmt.Errorf("decoding block: height: %v: %w", err, common.ErrFormat)
	}
	if w*h != common.BlockSize*8 {
		return fmt.Errorf("decoding block: %dx%d image does not hold %d bits: %w",
			w, h, common.BlockSize*8, common.ErrFormat)
	}
	return nil
}
