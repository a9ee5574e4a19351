// Command wfsd mounts a wfs disk set as a FUSE filesystem. Leading
// arguments that do not start with "-" are backing disk image paths, in
// any order (the set is reordered by each disk's disk_id); everything
// after that is mount options followed by the mount point.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/wfsfs/wfs"
)

func main() {
	args := os.Args[1:]

	var diskPaths []string
	i := 0
	for i < len(args) && len(args[i]) > 0 && args[i][0] != '-' {
		diskPaths = append(diskPaths, args[i])
		i++
	}

	fset := flag.NewFlagSet("wfsd", flag.ExitOnError)
	debugFuse := fset.Bool("debug", false, "enable verbose FUSE protocol logging")
	enforceEmptyRmdir := fset.Bool("enforce-empty-rmdir", false, "refuse to remove non-empty directories")
	debugFlags := fset.String("debug-wfs", "", "comma-separated internal debug flags: alloc,dentry,raid,path")
	if err := fset.Parse(args[i:]); err != nil {
		os.Exit(2)
	}

	if len(diskPaths) < 2 {
		fmt.Fprintln(os.Stderr, "wfsd: at least two disk image arguments are required")
		os.Exit(1)
	}
	if fset.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "wfsd: usage: wfsd disk1 disk2 [disk3 ...] [options] mountpoint")
		os.Exit(1)
	}
	mountpoint := fset.Arg(0)

	disks, err := wfs.OpenDiskSet(diskPaths)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wfsd: %s\n", err)
		os.Exit(1)
	}
	defer disks.Close()

	opts := []wfs.Option{wfs.WithEnforceEmptyRmdir(*enforceEmptyRmdir)}
	if flags := parseDebugFlags(*debugFlags); flags != 0 {
		opts = append(opts, wfs.WithDebug(flags))
	}

	fsys, err := wfs.NewFS(disks, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wfsd: %s\n", err)
		os.Exit(1)
	}

	server, err := wfs.Mount(fsys, mountpoint, *debugFuse)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wfsd: mount: %s\n", err)
		os.Exit(1)
	}

	log.Printf("wfsd: mounted %d disks (%s) at %s", disks.NumDisks, disks.RaidMode, mountpoint)
	server.Wait()
}

func parseDebugFlags(s string) wfs.DebugFlags {
	var flags wfs.DebugFlags
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			switch s[start:i] {
			case "alloc":
				flags |= wfs.DebugAlloc
			case "dentry":
				flags |= wfs.DebugDentry
			case "raid":
				flags |= wfs.DebugRaid
			case "path":
				flags |= wfs.DebugPath
			}
			start = i + 1
		}
	}
	return flags
}
