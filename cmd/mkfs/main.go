// Command mkfs initializes one or more backing disk images with a fresh
// wfs filesystem: a superblock, zeroed inode/data bitmaps, and a root
// directory inode.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/wfsfs/wfs"
)

// diskList collects repeated -d flags in the order given on the command
// line, the shape mkfs needs since disk order determines disk_id.
type diskList []string

func (d *diskList) String() string { return fmt.Sprint([]string(*d)) }

func (d *diskList) Set(path string) error {
	*d = append(*d, path)
	return nil
}

func main() {
	var disks diskList
	raidFlag := flag.String("r", "0", "RAID mode: 0, 1, or 1v")
	numInodes := flag.Uint("i", 32, "number of inodes")
	numBlocks := flag.Uint("b", 32, "number of data blocks")
	flag.Var(&disks, "d", "backing disk image path (repeatable)")
	flag.Parse()

	raidMode, ok := wfs.ParseRaidMode(*raidFlag)
	if !ok {
		fmt.Fprintf(os.Stderr, "mkfs: invalid raid mode %q\n", *raidFlag)
		os.Exit(1)
	}
	if len(disks) < 2 {
		fmt.Fprintln(os.Stderr, "mkfs: at least two -d disks are required")
		os.Exit(1)
	}

	w, err := wfs.NewWriter([]string(disks),
		wfs.WithRaidMode(raidMode),
		wfs.WithNumInodes(uint32(*numInodes)),
		wfs.WithNumDataBlocks(uint32(*numBlocks)),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkfs: %s\n", err)
		os.Exit(1)
	}

	if err := w.Finalize(); err != nil {
		fmt.Fprintf(os.Stderr, "mkfs: %s\n", err)
		if errors.Is(err, wfs.ErrInvalidArgument) {
			os.Exit(1)
		}
		os.Exit(255) // the platform's rendering of exit(-1)
	}

	fmt.Println("Success")
}
