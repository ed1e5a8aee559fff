// Package types provides shared type definitions for the sshfs filesystem.
package types // nolint:revive // Internal package with clear purpose

import "io/fs"

// DirEntry wraps fs.FileInfo to implement fs.DirEntry for directory listings.
type DirEntry struct {
	FileInfo fs.FileInfo
}

// Name returns the name of the entry.
func (e *DirEntry) Name() string { return e.FileInfo.Name() }

// IsDir reports whether the entry describes a directory.
func (e *DirEntry) IsDir() bool { return e.FileInfo.IsDir() }

// Type returns the type bits for the entry.
func (e *DirEntry) Type() fs.FileMode { return e.FileInfo.Mode().Type() }

// Info returns the FileInfo for the entry.
func (e *DirEntry) Info() (fs.FileInfo, error) { return e.FileInfo, nil }

// NewDirEntry creates a DirEntry from an existing fs.FileInfo.
func NewDirEntry(info fs.FileInfo) *DirEntry {
	return &DirEntry{FileInfo: info}
}

// Compile-time interface check.
var _ fs.DirEntry = (*DirEntry)(nil)
