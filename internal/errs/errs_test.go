package errs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"testing"

	"github.com/jmgilman/go/fs/core"
	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SFTP status codes from the protocol specification.
const (
	codeNoSuchFile       = 2
	codePermissionDenied = 3
	codeFailure          = 4
	codeOpUnsupported    = 8
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil error", nil, nil},
		{"normalized not exist", os.ErrNotExist, fs.ErrNotExist},
		{"wrapped not exist", fmt.Errorf("stat: %w", os.ErrNotExist), fs.ErrNotExist},
		{"normalized exist", os.ErrExist, fs.ErrExist},
		{"normalized permission", os.ErrPermission, fs.ErrPermission},
		{"status no such file", &sftp.StatusError{Code: codeNoSuchFile}, fs.ErrNotExist},
		{"status permission denied", &sftp.StatusError{Code: codePermissionDenied}, fs.ErrPermission},
		{"status op unsupported", &sftp.StatusError{Code: codeOpUnsupported}, core.ErrUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Translate(tt.err)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestTranslateUnknownErrorKeepsMessage(t *testing.T) {
	raw := errors.New("connection lost mid-request")
	got := Translate(raw)

	require.Error(t, got)
	assert.ErrorIs(t, got, raw)
	assert.Contains(t, got.Error(), "connection lost mid-request")
}

func TestTranslateGenericStatusErrorKeepsMessage(t *testing.T) {
	status := &sftp.StatusError{Code: codeFailure}
	got := Translate(status)

	require.Error(t, got)
	assert.ErrorIs(t, got, status)
	assert.NotErrorIs(t, got, fs.ErrNotExist)
	assert.NotErrorIs(t, got, fs.ErrPermission)
}

func TestPathError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		assert.NoError(t, PathError("open", "foo.txt", nil))
	})

	t.Run("wraps in fs.PathError", func(t *testing.T) {
		err := PathError("open", "foo.txt", fs.ErrNotExist)
		require.Error(t, err)

		var pathErr *fs.PathError
		require.ErrorAs(t, err, &pathErr)
		assert.Equal(t, "open", pathErr.Op)
		assert.Equal(t, "foo.txt", pathErr.Path)
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})
}

func TestPathErrorf(t *testing.T) {
	err := PathErrorf("url", "foo.txt", "%w: %q", fs.ErrInvalid, "upload")
	require.Error(t, err)

	var pathErr *fs.PathError
	require.ErrorAs(t, err, &pathErr)
	assert.ErrorIs(t, err, fs.ErrInvalid)
	assert.Contains(t, err.Error(), "upload")
}
