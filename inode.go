package wfs

import (
	"log"
	"time"
)

// Inode engine: allocate, initialize, load, store, and free inodes
// across the disk set, plus the forEachDisk per-disk iterator.

func (fs *FS) clock() time.Time {
	if fs.now != nil {
		return fs.now()
	}
	return time.Now()
}

// inodeOffset returns the absolute byte offset of inode inum within a
// disk's image.
func inodeOffset(sb *Superblock, inum uint32) int64 {
	return sb.IBlocksPtr + int64(inum)*BlockSize
}

// getInode returns inode inum's view on disk d, or ok=false if its bitmap
// bit is clear.
func (ds *DiskSet) getInode(d int, inum uint32) (Inode, bool) {
	sb := ds.superblock(d)
	img := ds.img(d)
	ibitmap := img[sb.IBitmapPtr:]
	if !testBit(ibitmap, int(inum)) {
		return Inode{}, false
	}
	off := inodeOffset(&sb, inum)
	return readInode(img[off : off+BlockSize]), true
}

// putInodeOn writes in to disk d at its own inode number, without touching
// the bitmap (the slot must already be allocated).
func (ds *DiskSet) putInodeOn(d int, in *Inode) {
	sb := ds.superblock(d)
	img := ds.img(d)
	off := inodeOffset(&sb, in.Num)
	putInode(img[off:off+BlockSize], in)
}

// forEachDisk runs fn against every disk's view of the same inode number,
// skipping disks where it is not allocated, and writes back whatever fn
// leaves in the Inode. The operations in fs.go do not call it: they mirror
// inode metadata with storeInode (RAID 0) or their own per-disk
// getInode/putInodeOn loops (RAID 1/1v).
func (ds *DiskSet) forEachDisk(inum uint32, fn func(d int, in *Inode)) {
	for d := 0; d < ds.NumDisks; d++ {
		in, ok := ds.getInode(d, inum)
		if !ok {
			continue
		}
		fn(d, &in)
		ds.putInodeOn(d, &in)
	}
}

// allocateInode allocates a free inode bit on disk d and returns a zeroed
// Inode whose Num is the allocated bit index. It returns ErrNoSpace if the
// inode bitmap is full.
func (ds *DiskSet) allocateInode(d int) (Inode, error) {
	sb := ds.superblock(d)
	img := ds.img(d)
	ibitmap := img[sb.IBitmapPtr:]

	idx, ok := allocateBit(ibitmap, int(sb.NumInodes))
	if !ok {
		return Inode{}, ErrNoSpace
	}
	in := Inode{Num: uint32(idx)}
	ds.putInodeOn(d, &in)
	return in, nil
}

// initializeInode stamps a freshly allocated inode: mode, uid/gid,
// zeroed size/blocks, nlinks=1, all three timestamps set to now.
func (fs *FS) initializeInode(in *Inode, mode uint32, uid, gid uint32) {
	now := fs.clock().Unix()
	in.Mode = mode
	in.Uid = uid
	in.Gid = gid
	in.Size = 0
	in.Nlinks = 1
	in.Atim, in.Mtim, in.Ctim = now, now, now
	in.Blocks = [DBlock + 1]int64{}
}

// loadInode loads inode inum's metadata view from disk 0, which is
// authoritative for mode/uid/gid/size/nlinks/times regardless of RAID
// mode, since inode metadata is mirrored everywhere. Under RAID 0,
// storeInode writes every disk's copy, Blocks included, so disk 0's copy
// also carries the block pointers blockAddr is handed.
func (ds *DiskSet) loadInode(inum uint32) (Inode, bool) {
	return ds.getInode(0, inum)
}

// storeInode replays in onto every disk's inode region, keeping inode
// metadata mirrored regardless of RAID mode.
func (ds *DiskSet) storeInode(in *Inode) {
	for d := 0; d < ds.NumDisks; d++ {
		ds.putInodeOn(d, in)
	}
}

// freeInode clears inum's bit and zeroes its block on every disk.
func (ds *DiskSet) freeInode(inum uint32, debug DebugFlags) {
	for d := 0; d < ds.NumDisks; d++ {
		sb := ds.superblock(d)
		img := ds.img(d)
		off := inodeOffset(&sb, inum)
		for i := 0; i < BlockSize; i++ {
			img[off+int64(i)] = 0
		}
		clearBit(img[sb.IBitmapPtr:], int(inum))
		if debug.Has(DebugAlloc) {
			log.Printf("wfs: freed inode %d on disk %d", inum, d)
		}
	}
}

// freeDataBlockEverywhere frees a data-region offset on every disk in the
// set. Only correct in mirrored modes, where the per-disk allocators
// advance in lockstep and the same offset names the same file's block on
// every disk. Under RAID 0 each disk's bitmap advances independently, so
// one disk's offset can name an unrelated live block on another —
// RAID 0 callers must free on the single stripe-owning disk instead.
func (ds *DiskSet) freeDataBlockEverywhere(off int64) {
	for d := 0; d < ds.NumDisks; d++ {
		ds.freeDataBlockOn(d, off)
	}
}

func (ds *DiskSet) freeDataBlockOn(d int, off int64) {
	sb := ds.superblock(d)
	if off < sb.DBlocksPtr || off >= sb.DBlocksPtr+int64(sb.NumDataBlocks)*BlockSize {
		return
	}
	blk := int((off - sb.DBlocksPtr) / BlockSize)
	dbitmap := ds.img(d)[sb.DBitmapPtr:]
	if !testBit(dbitmap, blk) {
		return
	}
	img := ds.img(d)
	for i := int64(0); i < BlockSize; i++ {
		img[off+i] = 0
	}
	clearBit(dbitmap, blk)
}
