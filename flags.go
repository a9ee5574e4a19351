package wfs

import "strings"

// DebugFlags selects which internal subsystems emit verbose log.Printf
// diagnostics. Unlike RaidMode these are a pure logging knob, not part of
// the on-disk format.
type DebugFlags uint32

const (
	DebugAlloc  DebugFlags = 1 << iota // bitmap allocation/free
	DebugDentry                        // directory scan/insert/remove
	DebugRaid                          // RAID placement and read voting
	DebugPath                          // path walk
)

func (f DebugFlags) String() string {
	var opt []string

	if f&DebugAlloc != 0 {
		opt = append(opt, "ALLOC")
	}
	if f&DebugDentry != 0 {
		opt = append(opt, "DENTRY")
	}
	if f&DebugRaid != 0 {
		opt = append(opt, "RAID")
	}
	if f&DebugPath != 0 {
		opt = append(opt, "PATH")
	}

	return strings.Join(opt, "|")
}

// Has reports whether every bit of what is set in f.
func (f DebugFlags) Has(what DebugFlags) bool {
	return f&what == what
}
