package wfs

import "testing"

func TestDentryAddFindRemove(t *testing.T) {
	ds := newFakeDiskSet(1, Raid1, 8, 8)
	fsys := &FS{disks: ds}
	var dir Inode

	if err := fsys.dentryAdd(&dir, 1, "alpha", 0); err != nil {
		t.Fatalf("dentryAdd: %v", err)
	}
	if err := fsys.dentryAdd(&dir, 2, "beta", 0); err != nil {
		t.Fatalf("dentryAdd: %v", err)
	}

	ent, _, ok := fsys.dentryFind(&dir, "alpha", 0)
	if !ok || ent.Num != 1 {
		t.Fatalf("dentryFind(alpha): ent=%+v ok=%v, want Num=1", ent, ok)
	}

	inum, ok := fsys.dentryRemove(&dir, "alpha", 0)
	if !ok || inum != 1 {
		t.Fatalf("dentryRemove(alpha): inum=%d ok=%v, want 1/true", inum, ok)
	}
	if _, _, ok := fsys.dentryFind(&dir, "alpha", 0); ok {
		t.Fatal("dentryFind found alpha after it was removed")
	}

	list := fsys.dentryList(&dir, 0)
	if len(list) != 1 || list[0].dentryName() != "beta" {
		t.Fatalf("dentryList after removal = %+v, want only beta", list)
	}
}

func TestDentryAddGrowsSizeBlockCoarse(t *testing.T) {
	ds := newFakeDiskSet(1, Raid1, 8, 8)
	fsys := &FS{disks: ds}
	var dir Inode

	// The first insert appends at offset 0, allocating a block and
	// growing size by a full BlockSize, not one dentry.
	if err := fsys.dentryAdd(&dir, 1, "one", 0); err != nil {
		t.Fatalf("dentryAdd: %v", err)
	}
	if dir.Size != BlockSize {
		t.Fatalf("dir.Size after first insert = %d, want %d", dir.Size, BlockSize)
	}

	// The next inserts claim the free slots the coarse growth exposed,
	// starting at the scan floor of slot 2 — size stays put.
	if err := fsys.dentryAdd(&dir, 2, "two", 0); err != nil {
		t.Fatalf("dentryAdd: %v", err)
	}
	if dir.Size != BlockSize {
		t.Fatalf("dir.Size after second insert = %d, want unchanged %d", dir.Size, BlockSize)
	}
	if _, slot, ok := fsys.dentryFind(&dir, "two", 0); !ok || slot != 2 {
		t.Fatalf("dentryFind(two) = slot %d ok=%v, want slot 2 (scan floor)", slot, ok)
	}
	if dir.Nlinks != 2 {
		t.Fatalf("dir.Nlinks = %d, want one increment per insertion", dir.Nlinks)
	}
}

func TestDentryAddReusesTombstone(t *testing.T) {
	ds := newFakeDiskSet(1, Raid1, 8, 8)
	fsys := &FS{disks: ds}
	var dir Inode

	fsys.dentryAdd(&dir, 1, "one", 0)   // slot 0
	fsys.dentryAdd(&dir, 2, "two", 0)   // slot 2
	fsys.dentryAdd(&dir, 3, "three", 0) // slot 3
	fsys.dentryRemove(&dir, "two", 0)

	sizeBefore := dir.Size
	if err := fsys.dentryAdd(&dir, 4, "four", 0); err != nil {
		t.Fatalf("dentryAdd: %v", err)
	}
	if dir.Size != sizeBefore {
		t.Fatalf("dentryAdd grew dir.Size to %d when a tombstoned slot (prior size %d) should have been reused", dir.Size, sizeBefore)
	}
	ent, slot, ok := fsys.dentryFind(&dir, "four", 0)
	if !ok || slot != 2 || ent.Num != 4 {
		t.Fatalf("dentryFind(four) = ent=%+v slot=%d ok=%v, want the reused slot 2", ent, slot, ok)
	}

	// Slot 0 sits below the rescan floor of slot 2: its tombstone is
	// never reclaimed, so the next insert lands on a later free slot
	// instead.
	fsys.dentryRemove(&dir, "one", 0)
	if err := fsys.dentryAdd(&dir, 5, "five", 0); err != nil {
		t.Fatalf("dentryAdd: %v", err)
	}
	if _, slot, ok := fsys.dentryFind(&dir, "five", 0); !ok || slot < 2 {
		t.Fatalf("dentryFind(five) = slot %d ok=%v; slot 0's tombstone must not be reused", slot, ok)
	}
	if ent, _, ok := fsys.dentryFind(&dir, "one", 0); ok {
		t.Fatalf("dentryFind(one) = %+v after removal, want not found", ent)
	}
}

func TestDentryAddGrowsAcrossBlockBoundary(t *testing.T) {
	ds := newFakeDiskSet(1, Raid1, 8, indirectCap+DBlock+8)
	fsys := &FS{disks: ds}
	var dir Inode

	// Slot 1 is dead (below the scan floor, never appended to once the
	// first block exists), so a full first block holds slotsPerBlock-1
	// live entries; the next insert appends into a second block.
	n := slotsPerBlock + 2
	names := make([]string, n)
	for i := 0; i < n; i++ {
		names[i] = string(rune('a'+i%26)) + string(rune('a'+i/26))
		if err := fsys.dentryAdd(&dir, uint32(i+1), names[i], 0); err != nil {
			t.Fatalf("dentryAdd #%d: %v", i, err)
		}
	}
	if dir.Size != 2*BlockSize {
		t.Fatalf("dir.Size = %d after %d inserts, want %d (two blocks)", dir.Size, n, 2*BlockSize)
	}
	for i, name := range names {
		ent, _, ok := fsys.dentryFind(&dir, name, 0)
		if !ok || ent.Num != uint32(i+1) {
			t.Fatalf("dentryFind(%q) = %+v ok=%v, want Num=%d", name, ent, ok, i+1)
		}
	}
}

func TestPathWalk(t *testing.T) {
	fsys := newFakeRootFS(1, Raid1)

	if err := fsys.Mkdir("/sub", S_IFDIR|0o755, 0, 0); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := fsys.Mknod("/sub/file", S_IFREG|0o644, 0, 0); err != nil {
		t.Fatalf("Mknod: %v", err)
	}

	inum, err := fsys.pathWalk("/sub/file")
	if err != nil {
		t.Fatalf("pathWalk(/sub/file): %v", err)
	}
	if inum == 0 {
		t.Fatal("pathWalk resolved /sub/file to the root inode")
	}

	if _, err := fsys.pathWalk("/sub/missing"); err != ErrNotFound {
		t.Fatalf("pathWalk(/sub/missing) = %v, want ErrNotFound", err)
	}
}

func TestPathSplit(t *testing.T) {
	cases := []struct{ path, dir, name string }{
		{"/a", "/", "a"},
		{"/a/b", "/a", "b"},
		{"/a/b/c", "/a/b", "c"},
	}
	for _, c := range cases {
		dir, name := pathSplit(c.path)
		if dir != c.dir || name != c.name {
			t.Errorf("pathSplit(%q) = (%q, %q), want (%q, %q)", c.path, dir, name, c.dir, c.name)
		}
	}
}
