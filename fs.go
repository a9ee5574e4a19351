package wfs

import (
	"log"
	"time"
)

func isDir(mode uint32) bool { return mode&S_IFMT == S_IFDIR }

// FS is the core filesystem engine: every host-interface operation
// (Getattr, Readdir, Mknod, Mkdir, Read, Write, Unlink, Rmdir) is a
// method on it. It holds no state of its own beyond the disk set and the
// options configured at construction — everything else lives in the
// mapped images.
type FS struct {
	disks *DiskSet

	enforceEmptyRmdir bool
	debug             DebugFlags
	now               func() time.Time
}

// NewFS builds an FS over an already-opened, already-verified DiskSet.
func NewFS(disks *DiskSet, opts ...Option) (*FS, error) {
	fs := &FS{disks: disks}
	for _, opt := range opts {
		if err := opt(fs); err != nil {
			return nil, err
		}
	}
	return fs, nil
}

func (fs *FS) logf(format string, args ...interface{}) {
	log.Printf("wfs: "+format, args...)
}

// Attr is the subset of inode metadata a getattr call reports.
type Attr struct {
	Mode   uint32
	Uid    uint32
	Gid    uint32
	Size   uint64
	Nlinks uint32
	Atim   int64
	Mtim   int64
	Ctim   int64
	Blocks uint64 // 512-byte units, st_blocks
}

func attrFromInode(in *Inode) Attr {
	return Attr{
		Mode:   in.Mode,
		Uid:    in.Uid,
		Gid:    in.Gid,
		Size:   in.Size,
		Nlinks: in.Nlinks,
		Atim:   in.Atim,
		Mtim:   in.Mtim,
		Ctim:   in.Ctim,
		Blocks: (in.Size + 511) / 512,
	}
}

// Getattr resolves path and returns its inode's attributes.
func (fs *FS) Getattr(path string) (Attr, error) {
	inum, err := fs.pathWalk(path)
	if err != nil {
		return Attr{}, err
	}
	in, ok := fs.disks.loadInode(inum)
	if !ok {
		return Attr{}, ErrIO
	}
	return attrFromInode(&in), nil
}

// Readdir resolves path, which must be a directory, and lists its
// entries. "." and ".." are synthesized, not stored as dentries.
func (fs *FS) Readdir(path string) ([]string, error) {
	inum, err := fs.pathWalk(path)
	if err != nil {
		return nil, err
	}
	in, ok := fs.disks.loadInode(inum)
	if !ok {
		return nil, ErrIO
	}
	if !isDir(in.Mode) {
		return nil, ErrNotDirectory
	}
	names := []string{".", ".."}
	for _, e := range fs.dentryList(&in, 0) {
		names = append(names, e.dentryName())
	}
	return names, nil
}

func (fs *FS) resolveParent(path string) (uint32, string, Inode, error) {
	dirPath, name := pathSplit(path)
	parentNum, err := fs.pathWalk(dirPath)
	if err != nil {
		return 0, "", Inode{}, err
	}
	parent, ok := fs.disks.loadInode(parentNum)
	if !ok {
		return 0, "", Inode{}, ErrIO
	}
	if !isDir(parent.Mode) {
		return 0, "", Inode{}, ErrNotDirectory
	}
	return parentNum, name, parent, nil
}

// Mknod creates a regular file (or any non-directory node) at path.
//
// Under RAID 0, the new inode is allocated under the same number on every
// disk and its fields are written to all of them, while the dentry is
// inserted once, through disk 0's view of the parent; striping of the new
// inode's own future data blocks happens lazily, the first time something
// writes to it. Under RAID 1/1v, the whole
// operation replays independently on every disk.
func (fs *FS) Mknod(path string, mode, uid, gid uint32) error {
	if fs.disks.RaidMode == Raid0 {
		return fs.createRaid0(path, mode, uid, gid)
	}
	return fs.createMirrored(path, mode, uid, gid)
}

// Mkdir creates an empty directory at path.
func (fs *FS) Mkdir(path string, mode, uid, gid uint32) error {
	return fs.Mknod(path, (mode&^uint32(S_IFMT))|S_IFDIR, uid, gid)
}

func (fs *FS) createRaid0(path string, mode, uid, gid uint32) error {
	_, name, parent, err := fs.resolveParent(path)
	if err != nil {
		return err
	}
	if _, _, found := fs.dentryFind(&parent, name, 0); found {
		return ErrExists
	}

	in, err := fs.disks.allocateInode(0)
	if err != nil {
		return err
	}
	// Mirror the same inode number's bitmap bit onto every other disk, so
	// the inode number resolves on whichever disk the block addresser is
	// working from. Inode bitmaps stay in lockstep across every create, so
	// the index allocateInode(0) just chose is guaranteed free on every
	// other disk too.
	for d := 1; d < fs.disks.NumDisks; d++ {
		sb := fs.disks.superblock(d)
		setBit(fs.disks.img(d)[sb.IBitmapPtr:], int(in.Num))
	}
	fs.initializeInode(&in, mode, uid, gid)
	fs.disks.storeInode(&in)

	if err := fs.dentryAdd(&parent, in.Num, name, 0); err != nil {
		return err
	}
	fs.disks.storeInode(&parent)
	return nil
}

func (fs *FS) createMirrored(path string, mode, uid, gid uint32) error {
	dirPath, name := pathSplit(path)
	ds := fs.disks

	parentNum, err := fs.pathWalk(dirPath)
	if err != nil {
		return err
	}

	for d := 0; d < ds.NumDisks; d++ {
		parent, ok := ds.getInode(d, parentNum)
		if !ok {
			return ErrIO
		}
		if !isDir(parent.Mode) {
			return ErrNotDirectory
		}
		if _, _, found := fs.dentryFind(&parent, name, d); found {
			return ErrExists
		}

		in, err := ds.allocateInode(d)
		if err != nil {
			return err
		}
		fs.initializeInode(&in, mode, uid, gid)
		ds.putInodeOn(d, &in)

		if err := fs.dentryAdd(&parent, in.Num, name, d); err != nil {
			return err
		}
		ds.putInodeOn(d, &parent)
	}
	return nil
}

// Read reads up to len(buf) bytes from path starting at off.
//
// RAID 0 reads the stripe-owning disk per block and RAID 1 reads disk
// 0's mirror; RAID 1v independently reads every disk and returns the
// majority-checksum result per block.
func (fs *FS) Read(path string, buf []byte, off int64) (int, error) {
	inum, err := fs.pathWalk(path)
	if err != nil {
		return 0, err
	}
	in, ok := fs.disks.loadInode(inum)
	if !ok {
		return 0, ErrIO
	}
	if isDir(in.Mode) {
		return 0, ErrNotDirectory
	}
	if off >= int64(in.Size) {
		return 0, nil
	}

	n := len(buf)
	if off+int64(n) > int64(in.Size) {
		n = int(int64(in.Size) - off)
	}

	ds := fs.disks
	read := 0
	for read < n {
		blockOff := ((off + int64(read)) / BlockSize) * BlockSize
		within := (off + int64(read)) % BlockSize
		chunk := int(BlockSize - within)
		if chunk > n-read {
			chunk = n - read
		}

		var src []byte
		if ds.RaidMode == Raid1V {
			// Run the same read plan against every disk's own inode copy
			// and let the majority decide. A disk whose metadata fails
			// the block-pointer checks simply casts no vote.
			copies := make([][]byte, ds.NumDisks)
			for d := 0; d < ds.NumDisks; d++ {
				inD, ok := ds.getInode(d, inum)
				if !ok {
					continue
				}
				dataDisk, addr, err := fs.blockAddr(&inD, blockOff, false, d)
				if err != nil {
					continue
				}
				copies[d] = ds.img(dataDisk)[addr+within : addr+within+int64(chunk)]
			}
			src = voteCopies(copies)
		} else {
			dataDisk, addr, err := fs.blockAddr(&in, blockOff, false, 0)
			if err == nil {
				src = ds.img(dataDisk)[addr+within : addr+within+int64(chunk)]
			}
		}

		if src == nil {
			// A hole: the block was never allocated. Return zeros.
			for i := 0; i < chunk; i++ {
				buf[read+i] = 0
			}
		} else {
			copy(buf[read:read+chunk], src)
		}
		read += chunk
	}
	return read, nil
}

// Write writes len(data) bytes to path starting at off, extending the
// file and allocating new blocks as needed.
//
// The outer per-disk loop only runs once under RAID 0 (data is striped
// by block, not replicated), so a single call writing n bytes returns n
// regardless of how many disks the set has.
func (fs *FS) Write(path string, data []byte, off int64) (int, error) {
	inum, err := fs.pathWalk(path)
	if err != nil {
		return 0, err
	}

	ds := fs.disks
	iterations := ds.NumDisks
	if ds.RaidMode == Raid0 {
		iterations = 1
	}

	written := 0
	for d := 0; d < iterations; d++ {
		in, ok := ds.getInode(d, inum)
		if !ok {
			return 0, ErrIO
		}
		if isDir(in.Mode) {
			return 0, ErrNotDirectory
		}

		written = 0
		for written < len(data) {
			blockOff := ((off + int64(written)) / BlockSize) * BlockSize
			within := (off + int64(written)) % BlockSize
			chunk := int(BlockSize - within)
			if chunk > len(data)-written {
				chunk = len(data) - written
			}

			dataDisk, addr, err := fs.blockAddr(&in, blockOff, true, d)
			if err != nil {
				return written, err
			}
			copy(ds.img(dataDisk)[addr+within:addr+within+int64(chunk)], data[written:written+chunk])
			written += chunk
		}

		if end := uint64(off) + uint64(written); end > in.Size {
			in.Size = end
		}
		now := fs.clock().Unix()
		in.Mtim = now
		in.Ctim = now

		if ds.RaidMode == Raid0 {
			ds.storeInode(&in)
		} else {
			ds.putInodeOn(d, &in)
		}
	}
	return written, nil
}

// Unlink removes the dentry named at path, frees the inode's own direct
// and indirect-addressed blocks, and clears its inode bitmap bit on
// every disk.
func (fs *FS) Unlink(path string) error {
	return fs.unlink(path, false)
}

// Rmdir removes a directory at path. By default it behaves exactly like
// Unlink, with no emptiness check; WithEnforceEmptyRmdir(true) tightens
// this to refuse non-empty directories.
func (fs *FS) Rmdir(path string) error {
	return fs.unlink(path, true)
}

func (fs *FS) unlink(path string, isRmdir bool) error {
	dirPath, name := pathSplit(path)
	ds := fs.disks

	parentNum, err := fs.pathWalk(dirPath)
	if err != nil {
		return err
	}
	parent, ok := ds.loadInode(parentNum)
	if !ok {
		return ErrIO
	}

	ent, _, found := fs.dentryFind(&parent, name, 0)
	if !found {
		return ErrNotFound
	}

	if isRmdir && fs.enforceEmptyRmdir {
		target, ok := ds.loadInode(ent.Num)
		if !ok {
			return ErrIO
		}
		if !isDir(target.Mode) {
			return ErrNotDirectory
		}
		if len(fs.dentryList(&target, 0)) > 0 {
			return ErrNotEmpty
		}
	}

	fs.freeInodeBlocks(ent.Num)
	ds.freeInode(ent.Num, fs.debug)

	// In mirrored modes each disk's parent directory holds its own dentry
	// array (its blocks were allocated per disk), so the tombstone is
	// replayed against every disk's view. RAID 0 stores the array once,
	// addressed through disk 0, and only the parent's inode metadata is
	// mirrored back out.
	now := fs.clock().Unix()
	if ds.RaidMode == Raid0 {
		fs.dentryRemove(&parent, name, 0)
		parent.Mtim, parent.Ctim = now, now
		ds.storeInode(&parent)
	} else {
		for d := 0; d < ds.NumDisks; d++ {
			pd, ok := ds.getInode(d, parentNum)
			if !ok {
				continue
			}
			fs.dentryRemove(&pd, name, d)
			pd.Mtim, pd.Ctim = now, now
			ds.putInodeOn(d, &pd)
		}
	}
	return nil
}

// freeInodeBlocks frees every direct and indirect-addressed data block
// belonging to inum, then the indirect block itself, on every disk that
// holds a copy. Placement follows blockAddr exactly: in mirrored modes
// every disk holds its own copy of every block at the same offset (the
// per-disk allocators advance in lockstep), while under RAID 0 a data
// block at logical index blk lives only on disk blk % NumDisks — freeing
// its offset on any other disk would hit whatever unrelated block that
// disk's own allocator handed out at the same index.
func (fs *FS) freeInodeBlocks(inum uint32) {
	ds := fs.disks
	in, ok := ds.loadInode(inum)
	if !ok {
		return
	}

	// Blocks[0..DBlock-1] are the direct slots; Blocks[IndBlock] only ever
	// holds the indirect block's own address, matching blockAddr.
	for i := 0; i < DBlock; i++ {
		if in.Blocks[i] == 0 {
			continue
		}
		if ds.RaidMode == Raid0 {
			ds.freeDataBlockOn(i%ds.NumDisks, in.Blocks[i])
		} else {
			ds.freeDataBlockEverywhere(in.Blocks[i])
		}
	}

	indOff := in.Blocks[IndBlock]
	if indOff == 0 {
		return
	}

	if ds.RaidMode == Raid0 {
		// The indirect index block itself is metadata and lives on disk 0,
		// but the blocks it points to are striped by their logical block
		// number: a slot at rebased index i was placed by blockAddr at
		// blk = IndBlock + i, so it is owned by disk blk % NumDisks.
		for i := 0; i < indirectCap; i++ {
			slot := indirectSlot(ds.img(0), indOff, i)
			if slot != 0 {
				ds.freeDataBlockOn((IndBlock+i)%ds.NumDisks, slot)
			}
		}
		ds.freeDataBlockOn(0, indOff)
		return
	}

	for d := 0; d < ds.NumDisks; d++ {
		for i := 0; i < indirectCap; i++ {
			slot := indirectSlot(ds.img(d), indOff, i)
			if slot != 0 {
				ds.freeDataBlockOn(d, slot)
			}
		}
		ds.freeDataBlockOn(d, indOff)
	}
}
