package inode

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/tchajed/marshal"

	"github.com/bwfs/bwfs/common"
)

const (
	nameOff  uint64 = 2
	nameLen  uint64 = common.NameMax + 1 // NUL terminated
	fieldOff uint64 = nameOff + nameLen
	fieldLen uint64 = 4 + common.NDirect*4 + 4 + 4

	// RecordLen is the number of meaningful bytes in an InodeSize slot.
	RecordLen uint64 = fieldOff + fieldLen
)

type Inode struct {
	// slot in the inode table; not stored in the record
	Inum common.Inum

	Used       bool
	IsDir      bool
	Name       string
	Size       uint64
	Blocks     [common.NDirect]int32 // NULLBNUM if unassigned
	CreatedAt  uint32
	ModifiedAt uint32
}

// MkEmpty returns a free slot.
func MkEmpty(inum common.Inum) *Inode {
	ip := &Inode{Inum: inum}
	for i := range ip.Blocks {
		ip.Blocks[i] = common.NULLBNUM
	}
	return ip
}

func MkInode(inum common.Inum, name string, isDir bool, now uint32) *Inode {
	ip := MkEmpty(inum)
	ip.Used = true
	ip.IsDir = isDir
	ip.Name = name
	ip.CreatedAt = now
	ip.ModifiedAt = now
	return ip
}

func (ip *Inode) String() string {
	return fmt.Sprintf("# %d used %v dir %v %q sz %d blks %v", ip.Inum,
		ip.Used, ip.IsDir, ip.Name, ip.Size, ip.Blocks)
}

// NBlocks is the number of assigned direct pointers.
func (ip *Inode) NBlocks() uint64 {
	var n uint64
	for _, b := range ip.Blocks {
		if b != common.NULLBNUM {
			n++
		}
	}
	return n
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// Encode produces an InodeSize record. A free slot encodes as all zeros.
func (ip *Inode) Encode() []byte {
	rec := make([]byte, common.InodeSize)
	if !ip.Used {
		return rec
	}
	rec[0] = boolByte(ip.Used)
	rec[1] = boolByte(ip.IsDir)
	copy(rec[nameOff:nameOff+common.NameMax], ip.Name)

	enc := marshal.NewEnc(fieldLen)
	enc.PutInt32(uint32(ip.Size))
	for _, b := range ip.Blocks {
		enc.PutInt32(uint32(b))
	}
	enc.PutInt32(ip.CreatedAt)
	enc.PutInt32(ip.ModifiedAt)
	copy(rec[fieldOff:], enc.Finish())
	return rec
}

// Decode parses a record. The name stops at the first NUL; a name without
// one is cut at NameMax bytes and left for ValidName to reject.
func Decode(rec []byte, inum common.Inum) *Inode {
	if rec[0] == 0 {
		return MkEmpty(inum)
	}
	ip := &Inode{Inum: inum, Used: true, IsDir: rec[1] != 0}
	name := rec[nameOff : nameOff+nameLen]
	if n := bytes.IndexByte(name, 0); n >= 0 {
		name = name[:n]
	} else {
		name = name[:common.NameMax]
	}
	ip.Name = string(name)

	dec := marshal.NewDec(rec[fieldOff : fieldOff+fieldLen])
	ip.Size = uint64(dec.GetInt32())
	for i := range ip.Blocks {
		ip.Blocks[i] = int32(dec.GetInt32())
	}
	ip.CreatedAt = dec.GetInt32()
	ip.ModifiedAt = dec.GetInt32()
	return ip
}

// ValidName reports whether name can be stored in an inode: 1 to NameMax
// printable ASCII bytes, no slash, and not a dot entry.
func ValidName(name string) bool {
	if len(name) == 0 || uint64(len(name)) > common.NameMax {
		return false
	}
	if name == "." || name == ".." || strings.ContainsRune(name, '/') {
		return false
	}
	for i := 0; i < len(name); i++ {
		if name[i] < 0x20 || name[i] > 0x7e {
			return false
		}
	}
	return true
}
