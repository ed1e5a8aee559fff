package sshfs

import (
	"fmt"
	"net"
	"os"
	"os/user"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// Default connection parameters, matching common SSH client behavior.
const (
	defaultPort      = 22
	defaultTimeout   = 10 * time.Second
	defaultKeepAlive = 10 * time.Second
	defaultDirPerm   = 0o755
)

// Config holds SSH filesystem configuration.
type Config struct {
	// Host is the SSH host to connect to (e.g., "shell.example.net")
	Host string

	// User is the username to authenticate as
	// Default: the current local username
	User string

	// Password is used once to establish the connection and never retained
	Password string

	// PrivateKeys holds PEM-encoded private keys to authenticate with
	PrivateKeys [][]byte

	// PrivateKeyPaths holds paths of private key files to load and use.
	// Loaded at connect time, after PrivateKeys.
	PrivateKeyPaths []string

	// Port is the SSH port number (default: 22)
	Port int

	// Timeout bounds the connection attempt (default: 10s).
	// It applies only at connect time; individual operations block until
	// the server responds.
	Timeout time.Duration

	// KeepAlive is the interval between keep-alive messages.
	// Zero applies the 10s default; a negative value disables keep-alives.
	KeepAlive time.Duration

	// Compress requests transport compression. The underlying SSH transport
	// does not negotiate compression, so the flag is carried for URL
	// round-tripping but has no effect on the wire.
	Compress bool

	// LookForKeys controls whether the SSH agent is consulted for keys.
	// When nil, the agent is used only if no explicit private key is given.
	LookForKeys *bool

	// Root is the remote directory the filesystem is rooted at (default: "/")
	Root string

	// MaxPacket is the maximum SFTP packet size in bytes, forwarded to the
	// sftp client as a buffering hint. Zero uses the client default.
	MaxPacket int

	// MaxDeleteConcurrency limits concurrent file deletions during RemoveAll
	// Default: 10
	MaxDeleteConcurrency int

	// HostKeyCallback verifies the server's host key.
	// Default: accept any host key, mirroring an auto-add host key policy.
	HostKeyCallback ssh.HostKeyCallback

	// Client is an optional pre-connected SSH client.
	// If provided, Host/Password/PrivateKeys/Timeout are ignored for
	// connection setup; Host/User/Port are still used to build URLs.
	Client *ssh.Client
}

// validate checks if the configuration is valid.
// Either Client OR Host must be provided.
func (c *Config) validate() error {
	if c.Client != nil {
		return nil
	}

	if c.Host == "" {
		return fmt.Errorf("host is required when client is not provided")
	}

	if c.Port < 0 {
		return fmt.Errorf("port must be non-negative")
	}

	return nil
}

// username resolves the user to authenticate as, defaulting to the current
// local username.
func (c *Config) username() string {
	if c.User != "" {
		return c.User
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}

// lookForKeys reports whether the SSH agent should be consulted, applying
// the auto behavior when the field is unset: enabled only when no explicit
// private key was supplied.
func (c *Config) lookForKeys() bool {
	if c.LookForKeys != nil {
		return *c.LookForKeys
	}
	return len(c.PrivateKeys) == 0 && len(c.PrivateKeyPaths) == 0
}

// authMethods assembles the SSH authentication methods in order: explicit
// private keys, agent keys (when enabled), then password.
func (c *Config) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	var signers []ssh.Signer
	for _, pem := range c.PrivateKeys {
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		signers = append(signers, signer)
	}
	for _, path := range c.PrivateKeyPaths {
		pem, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read private key %s: %w", path, err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parse private key %s: %w", path, err)
		}
		signers = append(signers, signer)
	}
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}

	if c.lookForKeys() {
		// Agent lookup is best-effort: a missing or unreachable agent is
		// not an error, the remaining methods are still tried.
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			if conn, err := net.Dial("unix", sock); err == nil {
				methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
			}
		}
	}

	if c.Password != "" {
		methods = append(methods, ssh.Password(c.Password))
	}

	return methods, nil
}
