package wfs

import (
	"context"
	"path"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// fuseadapter.go binds the core FS operations to go-fuse's high-level
// fs.InodeEmbedder host interface. One fuseNode exists per path component
// on demand; there is no persistent node cache beyond what go-fuse itself
// keeps, so every callback re-resolves its path against the live mapped
// images.
type fuseNode struct {
	fs.Inode
	fsys *FS
	path string
}

var (
	_ fs.NodeGetattrer = (*fuseNode)(nil)
	_ fs.NodeLookuper  = (*fuseNode)(nil)
	_ fs.NodeReaddirer = (*fuseNode)(nil)
	_ fs.NodeMkdirer   = (*fuseNode)(nil)
	_ fs.NodeMknoder   = (*fuseNode)(nil)
	_ fs.NodeUnlinker  = (*fuseNode)(nil)
	_ fs.NodeRmdirer   = (*fuseNode)(nil)
	_ fs.NodeOpener    = (*fuseNode)(nil)
	_ fs.NodeReader    = (*fuseNode)(nil)
	_ fs.NodeWriter    = (*fuseNode)(nil)
)

// Mount mounts the filesystem rooted at fsys on mountpoint. Requests are
// dispatched one at a time, since the core engine does no locking of its
// own. Call Wait on the returned server to block until it is unmounted.
func Mount(fsys *FS, mountpoint string, debug bool) (*fuse.Server, error) {
	root := &fuseNode{fsys: fsys, path: "/"}
	return fs.Mount(mountpoint, root, &fs.Options{
		MountOptions: fuse.MountOptions{Debug: debug, SingleThreaded: true},
	})
}

// callerIDs returns the uid/gid to stamp on a newly created inode. The
// high-level fs.InodeEmbedder callbacks hand Mkdir/Mknod only a
// context.Context, not the raw fuse.InHeader the low-level protocol
// carries the requesting uid/gid in, so creation always stamps root
// ownership here; a caller-aware host can still chown afterward.
func callerIDs(ctx context.Context) (uid, gid uint32) {
	return 0, 0
}

func errnoFor(err error) syscall.Errno {
	switch err {
	case nil:
		return 0
	case ErrNotFound:
		return syscall.ENOENT
	case ErrExists:
		return syscall.EEXIST
	case ErrNoSpace:
		return syscall.ENOSPC
	case ErrNotDirectory:
		return syscall.ENOTDIR
	case ErrNotEmpty:
		return syscall.ENOTEMPTY
	default:
		return syscall.EIO
	}
}

func attrToFuse(a Attr, out *fuse.Attr) {
	out.Mode = a.Mode
	out.Uid = a.Uid
	out.Gid = a.Gid
	out.Size = a.Size
	out.Nlink = a.Nlinks
	out.Atime = uint64(a.Atim)
	out.Mtime = uint64(a.Mtim)
	out.Ctime = uint64(a.Ctim)
	out.Blocks = a.Blocks
}

func (n *fuseNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attr, err := n.fsys.Getattr(n.path)
	if err != nil {
		return errnoFor(err)
	}
	attrToFuse(attr, &out.Attr)
	return 0
}

func (n *fuseNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := path.Join(n.path, name)
	attr, err := n.fsys.Getattr(childPath)
	if err != nil {
		return nil, errnoFor(err)
	}
	attrToFuse(attr, &out.Attr)
	child := &fuseNode{fsys: n.fsys, path: childPath}
	mode := uint32(syscall.S_IFREG)
	if isDir(attr.Mode) {
		mode = syscall.S_IFDIR
	}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: mode}), 0
}

func (n *fuseNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	names, err := n.fsys.Readdir(n.path)
	if err != nil {
		return nil, errnoFor(err)
	}
	entries := make([]fuse.DirEntry, 0, len(names))
	for _, name := range names {
		childPath := path.Join(n.path, name)
		attr, err := n.fsys.Getattr(childPath)
		if err != nil {
			continue
		}
		mode := uint32(syscall.S_IFREG)
		if isDir(attr.Mode) {
			mode = syscall.S_IFDIR
		}
		entries = append(entries, fuse.DirEntry{Name: name, Mode: mode})
	}
	return &listDirStream{entries: entries}, 0
}

// listDirStream is a minimal fs.DirStream over a pre-built slice. The
// high-level package only asks for one entry at a time, so there is no
// need to return more than a []fuse.DirEntry and a cursor.
type listDirStream struct {
	entries []fuse.DirEntry
	pos     int
}

func (s *listDirStream) HasNext() bool { return s.pos < len(s.entries) }

func (s *listDirStream) Next() (fuse.DirEntry, syscall.Errno) {
	e := s.entries[s.pos]
	s.pos++
	return e, 0
}

func (s *listDirStream) Close() {}

func (n *fuseNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := path.Join(n.path, name)
	uid, gid := callerIDs(ctx)
	if err := n.fsys.Mkdir(childPath, mode, uid, gid); err != nil {
		return nil, errnoFor(err)
	}
	attr, err := n.fsys.Getattr(childPath)
	if err != nil {
		return nil, errnoFor(err)
	}
	attrToFuse(attr, &out.Attr)
	child := &fuseNode{fsys: n.fsys, path: childPath}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: syscall.S_IFDIR}), 0
}

func (n *fuseNode) Mknod(ctx context.Context, name string, mode, rdev uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := path.Join(n.path, name)
	uid, gid := callerIDs(ctx)
	if err := n.fsys.Mknod(childPath, mode, uid, gid); err != nil {
		return nil, errnoFor(err)
	}
	attr, err := n.fsys.Getattr(childPath)
	if err != nil {
		return nil, errnoFor(err)
	}
	attrToFuse(attr, &out.Attr)
	child := &fuseNode{fsys: n.fsys, path: childPath}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: syscall.S_IFREG}), 0
}

func (n *fuseNode) Unlink(ctx context.Context, name string) syscall.Errno {
	return errnoFor(n.fsys.Unlink(path.Join(n.path, name)))
}

func (n *fuseNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	return errnoFor(n.fsys.Rmdir(path.Join(n.path, name)))
}

func (n *fuseNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	return nil, fuse.FOPEN_KEEP_CACHE, 0
}

func (n *fuseNode) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	nr, err := n.fsys.Read(n.path, dest, off)
	if err != nil {
		return nil, errnoFor(err)
	}
	return fuse.ReadResultData(dest[:nr]), 0
}

func (n *fuseNode) Write(ctx context.Context, f fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	nw, err := n.fsys.Write(n.path, data, off)
	if err != nil {
		return uint32(nw), errnoFor(err)
	}
	return uint32(nw), 0
}
