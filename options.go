package wfs

import "time"

// Option configures an FS at construction time.
type Option func(fs *FS) error

// WithEnforceEmptyRmdir tightens Rmdir to refuse non-empty directories.
// The default leaves Rmdir with the same semantics as Unlink, no
// emptiness check.
func WithEnforceEmptyRmdir(enforce bool) Option {
	return func(fs *FS) error {
		fs.enforceEmptyRmdir = enforce
		return nil
	}
}

// WithDebug enables verbose logging for the given subsystems.
func WithDebug(flags DebugFlags) Option {
	return func(fs *FS) error {
		fs.debug = flags
		return nil
	}
}

// WithClock overrides the time source used for atim/mtim/ctim, for
// deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(fs *FS) error {
		fs.now = now
		return nil
	}
}
