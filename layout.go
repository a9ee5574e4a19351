// Package wfs implements the core of a user-space, block-oriented filesystem
// that stores its state across two or more backing disk images.
package wfs

import "encoding/binary"

// On-disk geometry. These are build-time constants, not configuration: a
// disk image written by one build of mkfs is only readable by the matching
// build of the daemon.
const (
	// BlockSize is the size in bytes of an inode, a data block, and an
	// indirect index block.
	BlockSize = 512

	// MaxDisks bounds the number of backing images a single set may have.
	MaxDisks = 10

	// MaxName is the maximum length (including the NUL terminator) of a
	// dentry name.
	MaxName = 28

	// DBlock is the number of direct block pointers an inode carries.
	DBlock = 6

	// IndBlock is the slot index of the single indirect pointer, one past
	// the last direct pointer.
	IndBlock = DBlock

	// offsetSize is the width of one block pointer: each entry of an
	// indirect block is an 8-byte absolute offset.
	offsetSize = 8

	// indirectCap is how many offsets fit in one indirect block.
	indirectCap = BlockSize / offsetSize

	// superblockCommonSize is the number of leading superblock bytes that
	// must be byte-identical across every disk of a set.
	superblockCommonSize = 48

	// superblockSize is the total on-disk size of a superblock.
	superblockSize = superblockCommonSize + 8 // + RaidMode(4) + DiskID(4)
)

// RaidMode selects how data and metadata are placed across disks.
type RaidMode uint32

const (
	Raid0  RaidMode = 0 // striped data, mirrored metadata
	Raid1  RaidMode = 1 // fully mirrored, reads from disk 0
	Raid1V RaidMode = 2 // fully mirrored, reads verified by majority vote
)

func (m RaidMode) String() string {
	switch m {
	case Raid0:
		return "0"
	case Raid1:
		return "1"
	case Raid1V:
		return "1v"
	default:
		return "invalid"
	}
}

// Valid reports whether m is one of the three recognized RAID modes.
func (m RaidMode) Valid() bool {
	switch m {
	case Raid0, Raid1, Raid1V:
		return true
	default:
		return false
	}
}

// ParseRaidMode parses the mkfs/daemon CLI spelling of a RAID mode ("0",
// "1", "1v").
func ParseRaidMode(s string) (RaidMode, bool) {
	switch s {
	case "0":
		return Raid0, true
	case "1":
		return Raid1, true
	case "1v":
		return Raid1V, true
	default:
		return 0, false
	}
}

// Superblock mirrors the on-disk superblock written at offset 0 of every
// backing image. The first superblockCommonSize bytes (every field up to
// and including Tim) must be byte-identical across all disks of a set.
// RaidMode lies past that prefix and is compared separately at startup;
// DiskID is the only field that differs between disks.
//
// Field order is part of the on-disk format: never reorder or insert a
// field in the middle, only append after DiskID.
type Superblock struct {
	NumInodes     uint32
	NumDataBlocks uint32
	IBitmapPtr    int64
	DBitmapPtr    int64
	IBlocksPtr    int64
	DBlocksPtr    int64
	Tim           int64

	RaidMode RaidMode
	DiskID   uint32
}

// putSuperblock writes sb into b in on-disk byte order. b must be at least
// superblockSize bytes.
func putSuperblock(b []byte, sb *Superblock) {
	order := binary.LittleEndian
	order.PutUint32(b[0:4], sb.NumInodes)
	order.PutUint32(b[4:8], sb.NumDataBlocks)
	order.PutUint64(b[8:16], uint64(sb.IBitmapPtr))
	order.PutUint64(b[16:24], uint64(sb.DBitmapPtr))
	order.PutUint64(b[24:32], uint64(sb.IBlocksPtr))
	order.PutUint64(b[32:40], uint64(sb.DBlocksPtr))
	order.PutUint64(b[40:48], uint64(sb.Tim))
	order.PutUint32(b[48:52], uint32(sb.RaidMode))
	order.PutUint32(b[52:56], sb.DiskID)
}

// readSuperblock parses a Superblock out of b, which must be at least
// superblockSize bytes (typically a slice into a mapped disk image).
func readSuperblock(b []byte) Superblock {
	order := binary.LittleEndian
	return Superblock{
		NumInodes:     order.Uint32(b[0:4]),
		NumDataBlocks: order.Uint32(b[4:8]),
		IBitmapPtr:    int64(order.Uint64(b[8:16])),
		DBitmapPtr:    int64(order.Uint64(b[16:24])),
		IBlocksPtr:    int64(order.Uint64(b[24:32])),
		DBlocksPtr:    int64(order.Uint64(b[32:40])),
		Tim:           int64(order.Uint64(b[40:48])),
		RaidMode:      RaidMode(order.Uint32(b[48:52])),
		DiskID:        order.Uint32(b[52:56]),
	}
}

// commonBytesEqual compares the leading superblockCommonSize bytes of two
// mapped images, the raw byte comparison daemon startup uses to decide
// whether two disks belong to the same set.
func commonBytesEqual(a, b []byte) bool {
	if len(a) < superblockCommonSize || len(b) < superblockCommonSize {
		return false
	}
	for i := 0; i < superblockCommonSize; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Byte offsets of each inode field within its BlockSize-sized on-disk
// slot. They match the literal offsets putInode and readInode use, and
// offBlocks sizes inodeOnDiskSize below.
const (
	offNum    = 0
	offMode   = offNum + 4
	offUid    = offMode + 4
	offGid    = offUid + 4
	offSize   = offGid + 4
	offNlinks = offSize + 8
	offAtim   = offNlinks + 4
	offMtim   = offAtim + 8
	offCtim   = offMtim + 8
	offBlocks = offCtim + 8
)

// inodeOnDiskSize is sizeof(struct wfs_inode): fixed fields plus the
// DBlock+1 block pointers. Each on-disk slot is zero-padded past this to
// one full BlockSize (see putInode).
const inodeOnDiskSize = offBlocks + (DBlock+1)*offsetSize

func init() {
	if inodeOnDiskSize > BlockSize {
		panic("wfs: inode fields do not fit in one block")
	}
}

// Inode is the in-memory view of one on-disk inode.
type Inode struct {
	Num    uint32
	Mode   uint32
	Uid    uint32
	Gid    uint32
	Size   uint64
	Nlinks uint32
	Atim   int64
	Mtim   int64
	Ctim   int64
	Blocks [DBlock + 1]int64
}

func putInode(b []byte, in *Inode) {
	order := binary.LittleEndian
	order.PutUint32(b[0:4], in.Num)
	order.PutUint32(b[4:8], in.Mode)
	order.PutUint32(b[8:12], in.Uid)
	order.PutUint32(b[12:16], in.Gid)
	order.PutUint64(b[16:24], in.Size)
	order.PutUint32(b[24:28], in.Nlinks)
	order.PutUint64(b[28:36], uint64(in.Atim))
	order.PutUint64(b[36:44], uint64(in.Mtim))
	order.PutUint64(b[44:52], uint64(in.Ctim))
	off := 52
	for i := 0; i < DBlock+1; i++ {
		order.PutUint64(b[off:off+8], uint64(in.Blocks[i]))
		off += 8
	}
	for i := off; i < BlockSize; i++ {
		b[i] = 0
	}
}

func readInode(b []byte) Inode {
	order := binary.LittleEndian
	in := Inode{
		Num:    order.Uint32(b[0:4]),
		Mode:   order.Uint32(b[4:8]),
		Uid:    order.Uint32(b[8:12]),
		Gid:    order.Uint32(b[12:16]),
		Size:   order.Uint64(b[16:24]),
		Nlinks: order.Uint32(b[24:28]),
		Atim:   int64(order.Uint64(b[28:36])),
		Mtim:   int64(order.Uint64(b[36:44])),
		Ctim:   int64(order.Uint64(b[44:52])),
	}
	off := 52
	for i := 0; i < DBlock+1; i++ {
		in.Blocks[i] = int64(order.Uint64(b[off : off+8]))
		off += 8
	}
	return in
}

// Dentry is a single directory entry: an inode number paired with a
// NUL-padded name. Num == 0 marks a free (tombstoned) slot.
type Dentry struct {
	Num  uint32
	Name [MaxName]byte
}

// dentrySize is sizeof(struct wfs_dentry).
const dentrySize = 4 + MaxName

func putDentry(b []byte, d *Dentry) {
	binary.LittleEndian.PutUint32(b[0:4], d.Num)
	copy(b[4:4+MaxName], d.Name[:])
}

func readDentry(b []byte) Dentry {
	var d Dentry
	d.Num = binary.LittleEndian.Uint32(b[0:4])
	copy(d.Name[:], b[4:4+MaxName])
	return d
}

// dentryName returns the NUL-terminated name as a Go string.
func (d *Dentry) dentryName() string {
	for i, c := range d.Name {
		if c == 0 {
			return string(d.Name[:i])
		}
	}
	return string(d.Name[:])
}

// setDentryName truncates name to MaxName-1 bytes and NUL-terminates it,
// matching add_dentry's strncpy+explicit terminator.
func setDentryName(d *Dentry, name string) {
	n := copy(d.Name[:MaxName-1], name)
	for i := n; i < MaxName; i++ {
		d.Name[i] = 0
	}
}
