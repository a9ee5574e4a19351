package wfs

import "strings"

// Directory engine: a directory's data blocks hold a flat, append-mostly
// array of fixed-size Dentry slots addressed through the same blockAddr
// used for file data. A slot with Num == 0 is free; remove tombstones a
// slot in place rather than compacting the array.

const slotsPerBlock = BlockSize / dentrySize

// numSlots reports how many dentry slots have ever been claimed in dir,
// including tombstoned ones — the append frontier.
func numSlots(dir *Inode) int {
	return int(dir.Size / dentrySize)
}

func (fs *FS) dentryAt(dir *Inode, slot int, disk int, alloc bool) (int, int64, error) {
	off := int64(slot) * dentrySize
	blockOff := (off / BlockSize) * BlockSize
	within := off % BlockSize
	d, addr, err := fs.blockAddr(dir, blockOff, alloc, disk)
	if err != nil {
		return 0, 0, err
	}
	return d, addr + within, nil
}

// dentryFind scans dir's slots for name, returning the matching entry and
// its slot index.
func (fs *FS) dentryFind(dir *Inode, name string, disk int) (Dentry, int, bool) {
	n := numSlots(dir)
	for slot := 0; slot < n; slot++ {
		diskIdx, addr, err := fs.dentryAt(dir, slot, disk, false)
		if err != nil {
			continue
		}
		ent := readDentry(fs.disks.img(diskIdx)[addr : addr+dentrySize])
		if ent.Num == 0 {
			continue
		}
		if ent.dentryName() == name {
			return ent, slot, true
		}
	}
	return Dentry{}, 0, false
}

// dentryAdd inserts a (inum, name) entry into dir, reusing the first
// free slot if one exists, otherwise appending — which allocates a fresh
// block, since dir.Size is block-coarse and the append frontier is always
// a block boundary. On the allocating branch dir.Size grows by a full
// BlockSize, not one dentry; the slots this exposes beyond the new entry
// read as free and are claimed by later inserts. dir.Nlinks increments on
// every successful insertion.
//
// The free-slot rescan starts at slot 2, not 0. Slots 0 and 1 are not
// otherwise reserved — the very first entry of an empty directory still
// lands at slot 0 via the append path below, which starts from dir.Size
// (0 initially), not from this scan floor; once a slot below the floor is
// tombstoned it is never reused.
func (fs *FS) dentryAdd(dir *Inode, inum uint32, name string, disk int) error {
	var ent Dentry
	ent.Num = inum
	setDentryName(&ent, name)

	n := numSlots(dir)
	for slot := 2; slot < n; slot++ {
		diskIdx, addr, err := fs.dentryAt(dir, slot, disk, false)
		if err != nil {
			return ErrIO
		}
		img := fs.disks.img(diskIdx)
		if readDentry(img[addr : addr+dentrySize]).Num == 0 {
			putDentry(img[addr:addr+dentrySize], &ent)
			dir.Nlinks++
			if fs.debug.Has(DebugDentry) {
				fs.logf("reused dentry slot %d for %q (inode %d)", slot, name, inum)
			}
			return nil
		}
	}

	diskIdx, addr, err := fs.dentryAt(dir, n, disk, true)
	if err != nil {
		return err
	}
	img := fs.disks.img(diskIdx)
	putDentry(img[addr:addr+dentrySize], &ent)
	dir.Nlinks++
	dir.Size += BlockSize
	if fs.debug.Has(DebugDentry) {
		fs.logf("appended dentry slot %d for %q (inode %d)", n, name, inum)
	}
	return nil
}

// dentryRemove tombstones the entry named name in dir. It does not
// compact the array or shrink dir.Size.
func (fs *FS) dentryRemove(dir *Inode, name string, disk int) (uint32, bool) {
	ent, slot, ok := fs.dentryFind(dir, name, disk)
	if !ok {
		return 0, false
	}
	diskIdx, addr, err := fs.dentryAt(dir, slot, disk, false)
	if err != nil {
		return 0, false
	}
	img := fs.disks.img(diskIdx)
	var zero Dentry
	putDentry(img[addr:addr+dentrySize], &zero)
	if fs.debug.Has(DebugDentry) {
		fs.logf("removed dentry slot %d (%q, inode %d)", slot, name, ent.Num)
	}
	return ent.Num, true
}

// dentryList returns every live entry in dir, in slot order.
func (fs *FS) dentryList(dir *Inode, disk int) []Dentry {
	n := numSlots(dir)
	out := make([]Dentry, 0, n)
	for slot := 0; slot < n; slot++ {
		diskIdx, addr, err := fs.dentryAt(dir, slot, disk, false)
		if err != nil {
			continue
		}
		ent := readDentry(fs.disks.img(diskIdx)[addr : addr+dentrySize])
		if ent.Num != 0 {
			out = append(out, ent)
		}
	}
	return out
}

// pathWalk resolves path (an absolute, "/"-separated path) to an inode
// number, starting from the root inode (0). An empty or "/" path
// resolves to the root itself.
func (fs *FS) pathWalk(path string) (uint32, error) {
	cur := uint32(0)
	for _, name := range strings.Split(strings.Trim(path, "/"), "/") {
		if name == "" {
			continue
		}
		dir, ok := fs.disks.loadInode(cur)
		if !ok {
			return 0, ErrNotFound
		}
		ent, _, ok := fs.dentryFind(&dir, name, 0)
		if !ok {
			if fs.debug.Has(DebugPath) {
				fs.logf("path walk: %q not found under inode %d", name, cur)
			}
			return 0, ErrNotFound
		}
		cur = ent.Num
	}
	return cur, nil
}

// pathSplit separates path into its parent directory path and final
// component, the shape every create/remove operation needs.
func pathSplit(path string) (dir, name string) {
	trimmed := strings.Trim(path, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return "/", trimmed
	}
	return "/" + trimmed[:idx], trimmed[idx+1:]
}
