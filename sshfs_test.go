package sshfs

import (
	"testing"

	"github.com/jmgilman/go/fs/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInvalidConfig(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestNewConnectionFailure(t *testing.T) {
	disabled := false
	_, err := New(Config{
		Host:        "127.0.0.1",
		Port:        1,
		Password:    "nope",
		LookForKeys: &disabled,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCreateFailed)
	// The cause travels with the failure.
	assert.NotEqual(t, ErrCreateFailed.Error(), err.Error())
}

func TestType(t *testing.T) {
	s := &SSHFS{}
	assert.Equal(t, core.FSTypeRemote, s.Type())
}

func TestChrootView(t *testing.T) {
	parent := &SSHFS{
		user: "alice",
		host: "shell.example.net",
		port: 22,
		root: "/srv",
		ri:   &remoteInfo{},
	}

	view := parent.chroot("projects")

	assert.Equal(t, "/srv/projects", view.root)
	assert.True(t, view.shared)
	assert.False(t, view.ownsConn)
	assert.Same(t, parent.ri, view.ri)

	// Closing a view never tears down the shared connection.
	assert.NoError(t, view.Close())
}
