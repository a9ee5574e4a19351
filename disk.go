package wfs

import (
	"fmt"
	"log"
	"os"

	"golang.org/x/sys/unix"
)

// disk is one backing image: an open file descriptor and its shared,
// writable memory mapping. All filesystem state is read and mutated
// through img.
type disk struct {
	f   *os.File
	img []byte
}

func openDisk(path string) (*disk, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock %s: %w (already mounted?)", path, err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	log.Printf("wfs: mapping %s (%d bytes)", path, st.Size())
	img, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}

	return &disk{f: f, img: img}, nil
}

// sync flushes the mapping back to the backing file. Mutations otherwise
// persist on whatever schedule the kernel writes dirty pages; teardown
// syncs explicitly.
func (d *disk) sync() error {
	if d.img == nil {
		return nil
	}
	return unix.Msync(d.img, unix.MS_SYNC)
}

func (d *disk) close() error {
	var err error
	if d.img != nil {
		if syncErr := d.sync(); syncErr != nil {
			err = syncErr
		}
		if unmapErr := unix.Munmap(d.img); unmapErr != nil && err == nil {
			err = unmapErr
		}
		d.img = nil
	}
	if d.f != nil {
		if closeErr := d.f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

// DiskSet is the opened, verified, canonically-ordered collection of
// backing images a daemon serves from. Once OpenDiskSet returns, disks,
// NumDisks, and RaidMode are read-only for the lifetime of the set.
type DiskSet struct {
	disks    []*disk
	NumDisks int
	RaidMode RaidMode
}

// OpenDiskSet opens, maps, and verifies paths as a single consistent
// set. It fails with ErrSetMismatch if the disks do not form a matching
// set, before any host callback is ever dispatched.
func OpenDiskSet(paths []string) (*DiskSet, error) {
	if len(paths) < 2 || len(paths) > MaxDisks {
		return nil, fmt.Errorf("%w: need between 2 and %d disks, got %d", ErrInvalidArgument, MaxDisks, len(paths))
	}

	disks := make([]*disk, len(paths))
	for i, p := range paths {
		d, err := openDisk(p)
		if err != nil {
			for _, opened := range disks[:i] {
				if opened != nil {
					opened.close()
				}
			}
			return nil, err
		}
		disks[i] = d
	}

	first := readSuperblock(disks[0].img)
	order := make([]int, len(disks))
	seen := make([]bool, len(disks))

	closeAll := func() {
		for _, d := range disks {
			d.close()
		}
	}

	if int(first.DiskID) >= len(disks) {
		closeAll()
		return nil, fmt.Errorf("%w: disk 0 has out-of-range disk_id %d", ErrSetMismatch, first.DiskID)
	}
	order[first.DiskID] = 0
	seen[first.DiskID] = true

	for i := 1; i < len(disks); i++ {
		other := readSuperblock(disks[i].img)
		if other.Tim != first.Tim || other.RaidMode != first.RaidMode || !commonBytesEqual(disks[0].img, disks[i].img) {
			log.Printf("wfs: superblock mismatch between disk 0 and disk %d", i)
			closeAll()
			return nil, fmt.Errorf("%w: disk %d does not belong to this set", ErrSetMismatch, i)
		}
		if int(other.DiskID) >= len(disks) {
			closeAll()
			return nil, fmt.Errorf("%w: disk %d has out-of-range disk_id %d", ErrSetMismatch, i, other.DiskID)
		}
		if seen[other.DiskID] {
			closeAll()
			return nil, fmt.Errorf("%w: duplicate disk_id %d", ErrSetMismatch, other.DiskID)
		}
		order[other.DiskID] = i
		seen[other.DiskID] = true
	}

	ordered := make([]*disk, len(disks))
	for canonical, presented := range order {
		ordered[canonical] = disks[presented]
	}

	return &DiskSet{
		disks:    ordered,
		NumDisks: len(ordered),
		RaidMode: first.RaidMode,
	}, nil
}

// Close syncs and unmaps every disk in the set.
func (ds *DiskSet) Close() error {
	var first error
	for _, d := range ds.disks {
		if err := d.close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (ds *DiskSet) superblock(i int) Superblock {
	return readSuperblock(ds.disks[i].img)
}

func (ds *DiskSet) img(i int) []byte {
	return ds.disks[i].img
}
