package sshfs

import "errors"

var (
	// ErrCreateFailed is returned by New when the remote server could not be
	// connected to or authenticated against. It always wraps the underlying
	// transport error as its cause.
	ErrCreateFailed = errors.New("unable to create filesystem")

	// ErrFileExpected is returned when an operation that requires a regular
	// file is given a directory.
	ErrFileExpected = errors.New("path should be a file")

	// ErrDirectoryExpected is returned when an operation that requires a
	// directory is given a non-directory.
	ErrDirectoryExpected = errors.New("path should be a directory")

	// ErrDirectoryNotEmpty is returned when removing a directory that still
	// contains entries.
	ErrDirectoryNotEmpty = errors.New("directory is not empty")

	// ErrNoURL is returned by URL for purposes other than "download".
	ErrNoURL = errors.New("no URL available for purpose")
)
