package wfs

import (
	"io"
	"io/fs"
	"path"
	"time"
)

// File is a convenience wrapper letting an FS path be used as an
// io/fs.File: a regular file supports Read/ReadAt/Seek, a directory
// supports ReadDir.
type File struct {
	fs   *FS
	path string
	attr Attr
	pos  int64
}

// FileDir is the directory-specific half of File, returned by OpenFile
// when the path names a directory.
type FileDir struct {
	fs   *FS
	path string
	attr Attr
}

type fileinfo struct {
	name string
	attr Attr
}

var _ fs.File = (*File)(nil)
var _ io.ReaderAt = (*File)(nil)
var _ io.Seeker = (*File)(nil)

var _ fs.ReadDirFile = (*FileDir)(nil)

var _ fs.FileInfo = (*fileinfo)(nil)
var _ fs.DirEntry = (*fileinfo)(nil)

// OpenFile returns an fs.File for name. If name is a directory, the
// returned value implements fs.ReadDirFile; otherwise it also
// implements io.Seeker and io.ReaderAt.
func (wfs *FS) OpenFile(name string) (fs.File, error) {
	attr, err := wfs.Getattr(name)
	if err != nil {
		return nil, err
	}
	if isDir(attr.Mode) {
		return &FileDir{fs: wfs, path: name, attr: attr}, nil
	}
	return &File{fs: wfs, path: name, attr: attr}, nil
}

func (f *File) Read(p []byte) (int, error) {
	n, err := f.fs.Read(f.path, p, f.pos)
	f.pos += int64(n)
	if err == nil && n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, err
}

func (f *File) ReadAt(p []byte, off int64) (int, error) {
	n, err := f.fs.Read(f.path, p, off)
	if err == nil && n < len(p) {
		return n, io.EOF
	}
	return n, err
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = f.pos
	case io.SeekEnd:
		base = int64(f.attr.Size)
	default:
		return 0, fs.ErrInvalid
	}
	f.pos = base + offset
	return f.pos, nil
}

func (f *File) Stat() (fs.FileInfo, error) {
	return &fileinfo{name: path.Base(f.path), attr: f.attr}, nil
}

func (f *File) Close() error { return nil }

func (d *FileDir) Read(p []byte) (int, error) { return 0, fs.ErrInvalid }

func (d *FileDir) Stat() (fs.FileInfo, error) {
	return &fileinfo{name: path.Base(d.path), attr: d.attr}, nil
}

func (d *FileDir) Close() error { return nil }

func (d *FileDir) ReadDir(n int) ([]fs.DirEntry, error) {
	names, err := d.fs.Readdir(d.path)
	if err != nil {
		return nil, err
	}
	var out []fs.DirEntry
	for _, name := range names {
		if name == "." || name == ".." {
			continue
		}
		childPath := path.Join(d.path, name)
		attr, err := d.fs.Getattr(childPath)
		if err != nil {
			continue
		}
		out = append(out, &fileinfo{name: name, attr: attr})
		if n > 0 && len(out) == n {
			break
		}
	}
	return out, nil
}

func (fi *fileinfo) Name() string       { return fi.name }
func (fi *fileinfo) Size() int64        { return int64(fi.attr.Size) }
func (fi *fileinfo) Mode() fs.FileMode  { return UnixToMode(fi.attr.Mode) }
func (fi *fileinfo) ModTime() time.Time { return time.Unix(fi.attr.Mtim, 0) }
func (fi *fileinfo) IsDir() bool        { return isDir(fi.attr.Mode) }
func (fi *fileinfo) Sys() any           { return fi.attr }

func (fi *fileinfo) Type() fs.FileMode          { return fi.Mode().Type() }
func (fi *fileinfo) Info() (fs.FileInfo, error) { return fi, nil }
