package sshfs

import (
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/jmgilman/go/fs/core"
	"github.com/jmgilman/go/fs/sshfs/internal/errs"
	"github.com/pkg/sftp"
)

// File wraps an open SFTP file handle to implement both core.File and
// fs.File. Every read, write, and seek blocks until the remote server
// acknowledges; no local buffering is applied beyond the packet size
// configured at connect time.
type File struct {
	file   *sftp.File
	name   string // Original name provided to Open/Create
	flag   int    // Open flags (O_RDONLY, O_WRONLY, etc.)
	closed bool
}

// Read reads up to len(p) bytes into p from the remote file.
func (f *File) Read(p []byte) (int, error) {
	if f.closed {
		return 0, errs.PathError("read", f.name, fs.ErrClosed)
	}
	if f.flag&os.O_WRONLY != 0 {
		return 0, errs.PathError("read", f.name, fs.ErrInvalid)
	}
	n, err := f.file.Read(p)
	if err == nil || errors.Is(err, io.EOF) {
		return n, err
	}
	return n, errs.PathError("read", f.name, errs.Translate(err))
}

// ReadAt reads len(p) bytes from the file starting at byte offset off.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if f.closed {
		return 0, errs.PathError("readat", f.name, fs.ErrClosed)
	}
	if f.flag&os.O_WRONLY != 0 {
		return 0, errs.PathError("readat", f.name, fs.ErrInvalid)
	}
	n, err := f.file.ReadAt(p, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, errs.PathError("readat", f.name, errs.Translate(err))
	}
	return n, err
}

// Write writes len(p) bytes from p to the remote file.
func (f *File) Write(p []byte) (int, error) {
	if f.closed {
		return 0, errs.PathError("write", f.name, fs.ErrClosed)
	}
	if f.flag&(os.O_WRONLY|os.O_RDWR) == 0 {
		return 0, errs.PathError("write", f.name, fs.ErrInvalid)
	}
	n, err := f.file.Write(p)
	if err != nil {
		return n, errs.PathError("write", f.name, errs.Translate(err))
	}
	return n, nil
}

// WriteAt writes len(p) bytes to the file starting at byte offset off.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	if f.closed {
		return 0, errs.PathError("writeat", f.name, fs.ErrClosed)
	}
	if f.flag&(os.O_WRONLY|os.O_RDWR) == 0 {
		return 0, errs.PathError("writeat", f.name, fs.ErrInvalid)
	}
	n, err := f.file.WriteAt(p, off)
	if err != nil {
		return n, errs.PathError("writeat", f.name, errs.Translate(err))
	}
	return n, nil
}

// Seek sets the offset for the next Read or Write operation.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, errs.PathError("seek", f.name, fs.ErrClosed)
	}
	pos, err := f.file.Seek(offset, whence)
	if err != nil {
		return pos, errs.PathError("seek", f.name, errs.Translate(err))
	}
	return pos, nil
}

// Truncate changes the size of the file. It does not change the I/O offset.
func (f *File) Truncate(size int64) error {
	if f.closed {
		return errs.PathError("truncate", f.name, fs.ErrClosed)
	}
	if err := f.file.Truncate(size); err != nil {
		return errs.PathError("truncate", f.name, errs.Translate(err))
	}
	return nil
}

// Sync asks the remote server to flush the file to stable storage.
// Servers without the fsync extension report core.ErrUnsupported.
func (f *File) Sync() error {
	if f.closed {
		return errs.PathError("sync", f.name, fs.ErrClosed)
	}
	if err := f.file.Sync(); err != nil {
		return errs.PathError("sync", f.name, errs.Translate(err))
	}
	return nil
}

// Stat returns the FileInfo structure describing the file.
func (f *File) Stat() (fs.FileInfo, error) {
	fi, err := f.file.Stat()
	if err != nil {
		return nil, errs.PathError("stat", f.name, errs.Translate(err))
	}
	return fi, nil
}

// Close closes the file, releasing the remote handle. Close is idempotent.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	if err := f.file.Close(); err != nil {
		return errs.PathError("close", f.name, errs.Translate(err))
	}
	return nil
}

// Name returns the name of the file as provided to Open or Create.
func (f *File) Name() string {
	return f.name
}

// Compile-time interface checks.
var (
	_ core.File      = (*File)(nil)
	_ fs.File        = (*File)(nil)
	_ io.Seeker      = (*File)(nil)
	_ io.ReaderAt    = (*File)(nil)
	_ io.WriterAt    = (*File)(nil)
	_ core.Truncater = (*File)(nil)
	_ core.Syncer    = (*File)(nil)
)
