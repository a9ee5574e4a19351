package wfs_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wfsfs/wfs"
)

func createDiskFiles(t *testing.T, n int, size int64) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, n)
	for i := range paths {
		p := filepath.Join(dir, fmt.Sprintf("disk%d.img", i))
		f, err := os.Create(p)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.Truncate(size); err != nil {
			t.Fatal(err)
		}
		f.Close()
		paths[i] = p
	}
	return paths
}

func mkfsAndOpen(t *testing.T, raidMode wfs.RaidMode, numDisks int) (*wfs.DiskSet, []string) {
	t.Helper()
	paths := createDiskFiles(t, numDisks, 1<<20)
	w, err := wfs.NewWriter(paths,
		wfs.WithRaidMode(raidMode),
		wfs.WithNumInodes(64),
		wfs.WithNumDataBlocks(64),
	)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	disks, err := wfs.OpenDiskSet(paths)
	if err != nil {
		t.Fatalf("OpenDiskSet: %v", err)
	}
	t.Cleanup(func() { disks.Close() })
	return disks, paths
}

func TestMkfsThenMountRoundTrip(t *testing.T) {
	for _, mode := range []wfs.RaidMode{wfs.Raid0, wfs.Raid1, wfs.Raid1V} {
		t.Run(mode.String(), func(t *testing.T) {
			disks, _ := mkfsAndOpen(t, mode, 3)
			fsys, err := wfs.NewFS(disks)
			if err != nil {
				t.Fatalf("NewFS: %v", err)
			}

			if err := fsys.Mkdir("/docs", wfs.S_IFDIR|0o755, 0, 0); err != nil {
				t.Fatalf("Mkdir: %v", err)
			}
			if err := fsys.Mknod("/docs/readme", wfs.S_IFREG|0o644, 1000, 1000); err != nil {
				t.Fatalf("Mknod: %v", err)
			}
			data := []byte("the root directory always starts life as inode 0")
			if n, err := fsys.Write("/docs/readme", data, 0); err != nil || n != len(data) {
				t.Fatalf("Write: n=%d err=%v", n, err)
			}

			buf := make([]byte, len(data))
			if _, err := fsys.Read("/docs/readme", buf, 0); err != nil {
				t.Fatalf("Read: %v", err)
			}
			if string(buf) != string(data) {
				t.Fatalf("Read = %q, want %q", buf, data)
			}

			attr, err := fsys.Getattr("/docs/readme")
			if err != nil {
				t.Fatalf("Getattr: %v", err)
			}
			if attr.Uid != 1000 || attr.Size != uint64(len(data)) {
				t.Fatalf("Getattr = %+v, want uid=1000 size=%d", attr, len(data))
			}

			names, err := fsys.Readdir("/docs")
			if err != nil {
				t.Fatalf("Readdir: %v", err)
			}
			found := false
			for _, n := range names {
				if n == "readme" {
					found = true
				}
			}
			if !found {
				t.Fatalf("Readdir(/docs) = %v, missing readme", names)
			}
		})
	}
}

// A daemon must refuse to start against disks that do not form a
// consistent set.
func TestOpenDiskSetRejectsMismatchedSuperblocks(t *testing.T) {
	pathsA := createDiskFiles(t, 2, 1<<20)
	clockA := func() time.Time { return time.Unix(1000, 0) }
	wA, err := wfs.NewWriter(pathsA, wfs.WithRaidMode(wfs.Raid1), wfs.WithNumInodes(64),
		wfs.WithNumDataBlocks(64), wfs.WithWriterClock(clockA))
	if err != nil {
		t.Fatalf("NewWriter A: %v", err)
	}
	if err := wA.Finalize(); err != nil {
		t.Fatalf("Finalize A: %v", err)
	}

	pathsB := createDiskFiles(t, 2, 1<<20)
	clockB := func() time.Time { return time.Unix(2000, 0) }
	wB, err := wfs.NewWriter(pathsB, wfs.WithRaidMode(wfs.Raid1), wfs.WithNumInodes(64),
		wfs.WithNumDataBlocks(64), wfs.WithWriterClock(clockB))
	if err != nil {
		t.Fatalf("NewWriter B: %v", err)
	}
	if err := wB.Finalize(); err != nil {
		t.Fatalf("Finalize B: %v", err)
	}

	// pathsA[0] and pathsB[1] were formatted by independent mkfs
	// invocations with different Tim stamps; they must never be accepted
	// as a matching set.
	mixed := []string{pathsA[0], pathsB[1]}
	if _, err := wfs.OpenDiskSet(mixed); err == nil {
		t.Fatal("OpenDiskSet accepted two disks from unrelated filesystem sets")
	}
}

func TestRaid1VSurvivesOneCorruptedDisk(t *testing.T) {
	disks, paths := mkfsAndOpen(t, wfs.Raid1V, 3)
	fsys, err := wfs.NewFS(disks)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	if err := fsys.Mknod("/f", wfs.S_IFREG|0o644, 0, 0); err != nil {
		t.Fatalf("Mknod: %v", err)
	}
	data := []byte("majority rules")
	if _, err := fsys.Write("/f", data, 0); err != nil {
		t.Fatalf("Write: %v", err)
	}
	disks.Close()

	// Corrupt disk 1's copy directly on the backing file, outside the
	// running mapping, the way an out-of-band disk fault would. Everything
	// from byte 64 on (past the 56-byte superblock, whose RaidMode and
	// DiskID must still verify) is fair game: whatever the
	// write actually landed on, scribbling the whole rest of the image
	// guarantees it is included without assuming any internal layout
	// math.
	f, err := os.OpenFile(paths[1], os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("open for corruption: %v", err)
	}
	const headerSize = 64
	garbage := make([]byte, 1<<20-headerSize)
	for i := range garbage {
		garbage[i] = 0xff
	}
	if _, err := f.WriteAt(garbage, headerSize); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	f.Close()

	disks2, err := wfs.OpenDiskSet(paths)
	if err != nil {
		t.Fatalf("re-open after corruption: %v", err)
	}
	defer disks2.Close()
	fsys2, err := wfs.NewFS(disks2)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	buf := make([]byte, len(data))
	if _, err := fsys2.Read("/f", buf, 0); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf) != string(data) {
		t.Fatalf("Read after corrupting a non-majority disk = %q, want %q", buf, data)
	}
}
