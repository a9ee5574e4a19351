package wfs

// Shared fixtures for the package's internal tests: fake disks are plain
// byte slices rather than real mmap'd files, so the engine can be
// exercised without touching the filesystem.

// newFakeDiskSet builds a DiskSet of numDisks in-memory images, each
// carrying a valid superblock and zeroed bitmaps, ready for bitmap/addr/
// dentry/fs tests without touching the filesystem.
func newFakeDiskSet(numDisks int, raidMode RaidMode, numInodes, numDataBlocks uint32) *DiskSet {
	numInodes = roundUp32(numInodes)
	numDataBlocks = roundUp32(numDataBlocks)

	ibitmapPtr := int64(superblockSize)
	dbitmapPtr := ibitmapPtr + int64(numInodes)/8
	raw := dbitmapPtr + int64(numDataBlocks)/8
	iblocksPtr := ((raw + BlockSize - 1) / BlockSize) * BlockSize
	dblocksPtr := iblocksPtr + int64(numInodes)*BlockSize
	total := dblocksPtr + int64(numDataBlocks)*BlockSize

	disks := make([]*disk, numDisks)
	for i := 0; i < numDisks; i++ {
		img := make([]byte, total)
		sb := Superblock{
			NumInodes:     numInodes,
			NumDataBlocks: numDataBlocks,
			IBitmapPtr:    ibitmapPtr,
			DBitmapPtr:    dbitmapPtr,
			IBlocksPtr:    iblocksPtr,
			DBlocksPtr:    dblocksPtr,
			Tim:           1,
			RaidMode:      raidMode,
			DiskID:        uint32(i),
		}
		putSuperblock(img[:superblockSize], &sb)
		disks[i] = &disk{img: img}
	}
	return &DiskSet{disks: disks, NumDisks: numDisks, RaidMode: raidMode}
}

// newFakeRootFS builds a fake DiskSet and mirrors an initialized root
// directory inode (Num 0) onto every disk, the state OpenDiskSet + mkfs
// would leave behind.
func newFakeRootFS(numDisks int, raidMode RaidMode) *FS {
	ds := newFakeDiskSet(numDisks, raidMode, 64, 64)
	root, err := ds.allocateInode(0)
	if err != nil {
		panic(err)
	}
	for d := 1; d < numDisks; d++ {
		sb := ds.superblock(d)
		setBit(ds.img(d)[sb.IBitmapPtr:], int(root.Num))
	}
	root.Mode = S_IFDIR | 0o755
	root.Nlinks = 1
	ds.storeInode(&root)

	fsys, err := NewFS(ds)
	if err != nil {
		panic(err)
	}
	return fsys
}
