package wfs

import (
	"fmt"
	"time"
)

// Writer lays out a fresh wfs filesystem across a set of backing disk
// images: construct with NewWriter, configure with options, call
// Finalize. The layout is fully determined by the inode and data block
// counts, so Finalize computes it once and writes it directly into the
// already-sized backing files via mmap.
type Writer struct {
	diskPaths     []string
	raidMode      RaidMode
	numInodes     uint32
	numDataBlocks uint32
	now           func() time.Time
}

// WriterOption configures a Writer.
type WriterOption func(*Writer) error

// WithRaidMode sets the RAID mode recorded in every disk's superblock.
func WithRaidMode(mode RaidMode) WriterOption {
	return func(w *Writer) error {
		if !mode.Valid() {
			return fmt.Errorf("%w: invalid raid mode", ErrInvalidArgument)
		}
		w.raidMode = mode
		return nil
	}
}

// WithNumInodes sets the requested inode count, rounded up to a
// multiple of 32.
func WithNumInodes(n uint32) WriterOption {
	return func(w *Writer) error {
		if n == 0 {
			return fmt.Errorf("%w: num inodes must be positive", ErrInvalidArgument)
		}
		w.numInodes = n
		return nil
	}
}

// WithNumDataBlocks sets the requested data block count, rounded up to
// a multiple of 32.
func WithNumDataBlocks(n uint32) WriterOption {
	return func(w *Writer) error {
		if n == 0 {
			return fmt.Errorf("%w: num data blocks must be positive", ErrInvalidArgument)
		}
		w.numDataBlocks = n
		return nil
	}
}

// WithWriterClock overrides the time source used to stamp the
// superblock's Tim field and the root inode's timestamps, for
// deterministic tests.
func WithWriterClock(now func() time.Time) WriterOption {
	return func(w *Writer) error {
		w.now = now
		return nil
	}
}

// NewWriter creates a Writer targeting the given disk image paths, which
// must already exist and be large enough to hold the computed layout.
// RAID mode, inode count, and data block count must be set via options
// before Finalize is called.
func NewWriter(diskPaths []string, opts ...WriterOption) (*Writer, error) {
	if len(diskPaths) < 2 || len(diskPaths) > MaxDisks {
		return nil, fmt.Errorf("%w: need between 2 and %d disks, got %d", ErrInvalidArgument, MaxDisks, len(diskPaths))
	}
	w := &Writer{diskPaths: diskPaths}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func roundUp32(n uint32) uint32 {
	return (n + 31) / 32 * 32
}

// layout computes the on-disk geometry for the requested inode/data
// block counts: the inode bitmap immediately follows the superblock, the
// data bitmap follows that, and the inode region begins at the next
// BlockSize-aligned offset so each inode's BlockSize-sized slot never
// straddles a block boundary.
func (w *Writer) layout() (ibitmapPtr, dbitmapPtr, iblocksPtr, dblocksPtr, total int64, numInodes, numDataBlocks uint32) {
	numInodes = roundUp32(w.numInodes)
	numDataBlocks = roundUp32(w.numDataBlocks)

	ibitmapPtr = int64(superblockSize)
	dbitmapPtr = ibitmapPtr + int64(numInodes)/8
	raw := dbitmapPtr + int64(numDataBlocks)/8
	iblocksPtr = ((raw + BlockSize - 1) / BlockSize) * BlockSize
	dblocksPtr = iblocksPtr + int64(numInodes)*BlockSize
	total = dblocksPtr + int64(numDataBlocks)*BlockSize
	return
}

// Finalize writes the superblock, zeroed bitmaps, and root inode to
// every disk in order, stopping immediately — without touching later
// disks — on the first one that fails to open or is too small for the
// computed layout.
func (w *Writer) Finalize() error {
	if !w.raidMode.Valid() {
		return fmt.Errorf("%w: raid mode not set", ErrInvalidArgument)
	}
	ibitmapPtr, dbitmapPtr, iblocksPtr, dblocksPtr, total, numInodes, numDataBlocks := w.layout()

	tim := time.Now().Unix()
	if w.now != nil {
		tim = w.now().Unix()
	}

	var opened []*disk
	defer func() {
		for _, d := range opened {
			d.close()
		}
	}()

	for i, path := range w.diskPaths {
		d, err := openDisk(path)
		if err != nil {
			return fmt.Errorf("disk %d (%s): %w", i, path, err)
		}
		opened = append(opened, d)

		if int64(len(d.img)) < total {
			return fmt.Errorf("disk %d (%s): %w: need %d bytes, have %d", i, path, ErrInvalidArgument, total, len(d.img))
		}

		sb := Superblock{
			NumInodes:     numInodes,
			NumDataBlocks: numDataBlocks,
			IBitmapPtr:    ibitmapPtr,
			DBitmapPtr:    dbitmapPtr,
			IBlocksPtr:    iblocksPtr,
			DBlocksPtr:    dblocksPtr,
			Tim:           tim,
			RaidMode:      w.raidMode,
			DiskID:        uint32(i),
		}
		putSuperblock(d.img[:superblockSize], &sb)

		for j := ibitmapPtr; j < dblocksPtr; j++ {
			d.img[j] = 0
		}

		var root Inode
		root.Num = 0
		root.Mode = S_IFDIR | S_IRUSR | S_IWUSR | S_IXUSR
		root.Nlinks = 1
		root.Atim, root.Mtim, root.Ctim = tim, tim, tim
		putInode(d.img[iblocksPtr:iblocksPtr+BlockSize], &root)
		setBit(d.img[ibitmapPtr:], 0)

		if err := d.sync(); err != nil {
			return fmt.Errorf("disk %d (%s): %w", i, path, err)
		}
	}
	return nil
}
