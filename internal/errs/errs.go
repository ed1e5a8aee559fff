// Package errs provides error handling utilities for the sshfs filesystem.
package errs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/jmgilman/go/fs/core"
	"github.com/pkg/sftp"
)

// Translate converts raw sftp/ssh errors to stdlib fs errors.
//
// The sftp client already normalizes some status codes (no-such-file becomes
// os.ErrNotExist), so the stdlib sentinels are checked first; everything else
// is keyed on the SFTP status code. Unrecognized errors are wrapped with the
// original message preserved so callers never see a bare transport error.
func Translate(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, os.ErrNotExist):
		return fs.ErrNotExist
	case errors.Is(err, os.ErrExist):
		return fs.ErrExist
	case errors.Is(err, os.ErrPermission):
		return fs.ErrPermission
	}

	var status *sftp.StatusError
	if errors.As(err, &status) {
		switch status.FxCode() {
		case sftp.ErrSSHFxNoSuchFile:
			return fs.ErrNotExist
		case sftp.ErrSSHFxPermissionDenied:
			return fs.ErrPermission
		case sftp.ErrSSHFxOpUnsupported:
			return core.ErrUnsupported
		}
	}

	return fmt.Errorf("sftp: %w", err)
}

// PathError wraps an error in a fs.PathError for the given operation and path.
// If the error is nil, returns nil.
func PathError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &fs.PathError{Op: op, Path: path, Err: err}
}

// PathErrorf creates a fs.PathError with a formatted error message.
func PathErrorf(op, path, format string, args ...interface{}) error {
	return &fs.PathError{Op: op, Path: path, Err: fmt.Errorf(format, args...)}
}
