package wfs

import "encoding/binary"

// Block addressing and RAID placement: turns a (inode, logical byte
// offset) pair into a concrete disk index and byte offset into that
// disk's mapped image, allocating direct, indirect, and data blocks on
// demand.
//
// maxBlk is the single-indirect bound. Direct slots cover blk in
// [0, DBlock) (DBlock of them); blk from DBlock on is served from the
// indirect block at slot IndBlock, rebased by blk -= IndBlock, so the
// indirect block's slots 0..indirectCap-1 hold blk DBlock..maxBlk;
// anything past maxBlk is refused outright with ErrIO.
const maxBlk = DBlock + indirectCap - 1

// validDataOff reports whether off is a block-aligned pointer into sb's
// data region. Every non-zero block slot must satisfy this; a slot that
// does not is a corrupted image and surfaces as ErrIO rather than a wild
// dereference.
func validDataOff(sb *Superblock, off int64) bool {
	if off < sb.DBlocksPtr || off >= sb.DBlocksPtr+int64(sb.NumDataBlocks)*BlockSize {
		return false
	}
	return (off-sb.DBlocksPtr)%BlockSize == 0
}

func indirectSlot(img []byte, indOff int64, idx int) int64 {
	base := indOff + int64(idx)*offsetSize
	return int64(binary.LittleEndian.Uint64(img[base : base+offsetSize]))
}

func setIndirectSlot(img []byte, indOff int64, idx int, val int64) {
	base := indOff + int64(idx)*offsetSize
	binary.LittleEndian.PutUint64(img[base:base+offsetSize], uint64(val))
}

// blockAddr resolves the byte range holding the data block for logical
// offset off within inum's file, allocating it (and, if needed, the
// indirect block) when alloc is true. in is the caller's in-memory inode
// (typically loaded once via loadInode, mutated across several blockAddr
// calls, and replayed to every disk with storeInode when the operation
// completes — see fs.go). disk is the RAID-mode-appropriate context: the
// sole disk being iterated for RAID 1/1v, or 0 for RAID 0 where metadata
// is mirrored and only data placement is striped.
//
// It returns the disk the data block actually lives on (equal to disk
// except under RAID 0, where it is recomputed from blk) and the absolute
// byte offset of the block's first byte within that disk's image.
func (fs *FS) blockAddr(in *Inode, off int64, alloc bool, disk int) (dataDisk int, addr int64, err error) {
	blk := int(off / BlockSize)
	if blk > maxBlk {
		return 0, 0, ErrIO
	}

	ds := fs.disks
	dataDisk = disk
	if ds.RaidMode == Raid0 {
		dataDisk = blk % ds.NumDisks
	}

	if blk < DBlock {
		slot := in.Blocks[blk]
		if slot == 0 {
			if !alloc {
				return 0, 0, ErrIO
			}
			slot, err = ds.allocateDataBlock(dataDisk)
			if err != nil {
				return 0, 0, err
			}
			in.Blocks[blk] = slot
			if fs.debug.Has(DebugRaid) {
				fs.logf("allocated direct block %d for inode %d on disk %d at %d", blk, in.Num, dataDisk, slot)
			}
		}
		sb := ds.superblock(dataDisk)
		if !validDataOff(&sb, slot) {
			return 0, 0, ErrIO
		}
		return dataDisk, slot, nil
	}

	// The indirect block itself is metadata: it lives on disk 0 under
	// RAID 0 (every metadata access is disk-0-addressed there) and on
	// disk (the sole mirror member in play) otherwise.
	metaDisk := disk
	if ds.RaidMode == Raid0 {
		metaDisk = 0
	}

	indOff := in.Blocks[IndBlock]
	if indOff == 0 {
		if !alloc {
			return 0, 0, ErrIO
		}
		indOff, err = fs.allocateIndirectBlock(in.Num, metaDisk)
		if err != nil {
			return 0, 0, err
		}
		in.Blocks[IndBlock] = indOff
	}
	metaSb := ds.superblock(metaDisk)
	if !validDataOff(&metaSb, indOff) {
		return 0, 0, ErrIO
	}

	rebased := blk - IndBlock
	slot := indirectSlot(ds.img(metaDisk), indOff, rebased)
	if slot == 0 {
		if !alloc {
			return 0, 0, ErrIO
		}
		slot, err = ds.allocateDataBlock(dataDisk)
		if err != nil {
			return 0, 0, err
		}
		setIndirectSlot(ds.img(metaDisk), indOff, rebased, slot)
		if fs.debug.Has(DebugRaid) {
			fs.logf("allocated indirect-addressed block %d for inode %d on disk %d at %d", blk, in.Num, dataDisk, slot)
		}
	}
	dataSb := ds.superblock(dataDisk)
	if !validDataOff(&dataSb, slot) {
		return 0, 0, ErrIO
	}
	return dataDisk, slot, nil
}

// allocateIndirectBlock allocates the single indirect block for inum on
// metaDisk (disk 0 under RAID 0, since every metadata access there is
// disk-0-addressed; the sole mirror member otherwise).
func (fs *FS) allocateIndirectBlock(inum uint32, metaDisk int) (int64, error) {
	off, err := fs.disks.allocateDataBlock(metaDisk)
	if err != nil {
		return 0, err
	}
	if fs.debug.Has(DebugAlloc) {
		fs.logf("allocated indirect block for inode %d on disk %d at %d", inum, metaDisk, off)
	}
	return off, nil
}

// allocateDataBlock allocates a free data-bitmap bit on disk d and
// returns the absolute byte offset of the corresponding block, zeroed.
func (ds *DiskSet) allocateDataBlock(d int) (int64, error) {
	sb := ds.superblock(d)
	dbitmap := ds.img(d)[sb.DBitmapPtr:]
	idx, ok := allocateBit(dbitmap, int(sb.NumDataBlocks))
	if !ok {
		return 0, ErrNoSpace
	}
	off := sb.DBlocksPtr + int64(idx)*BlockSize
	img := ds.img(d)
	for i := int64(0); i < BlockSize; i++ {
		img[off+i] = 0
	}
	return off, nil
}
