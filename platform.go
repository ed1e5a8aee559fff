package sshfs

import (
	"bytes"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/text/encoding/ianaindex"
)

// Platform is a best-effort classification of the remote OS family.
// It affects only metadata interpretation: which timestamp field means
// "creation time" and whether user/group name resolution is attempted.
type Platform int

// Remote platform families.
const (
	PlatformUnknown Platform = iota
	PlatformLinux
	PlatformDarwin
	PlatformBSD
	PlatformWindows
)

// String returns a string representation of the Platform.
func (p Platform) String() string {
	switch p {
	case PlatformLinux:
		return "linux"
	case PlatformDarwin:
		return "darwin"
	case PlatformBSD:
		return "bsd"
	case PlatformWindows:
		return "windows"
	default:
		return "unknown"
	}
}

// Unix reports whether the platform follows Unix identity conventions.
func (p Platform) Unix() bool {
	return p == PlatformLinux || p == PlatformDarwin || p == PlatformBSD
}

// remoteInfo caches per-connection detection results. It is shared across
// Chroot views so the diagnostic commands run at most once per connection.
type remoteInfo struct {
	platformOnce sync.Once
	platform     Platform

	localeOnce sync.Once
	locale     string
}

// Platform returns the remote server's platform family, detected once per
// connection. Detection failure resolves to PlatformUnknown, never an error.
func (s *SSHFS) Platform() Platform {
	s.ri.platformOnce.Do(func() {
		s.ri.platform = s.guessPlatform()
	})
	return s.ri.platform
}

// Locale returns the remote server's character map (lowercased), detected
// once per connection. Empty when the platform is not Unix-like or the
// probe failed; callers fall back to UTF-8.
func (s *SSHFS) Locale() string {
	s.ri.localeOnce.Do(func() {
		s.ri.locale = s.guessLocale()
	})
	return s.ri.locale
}

// guessPlatform probes the remote host. A responding sysinfo command marks
// a Windows host even when uname also answered (some Windows SSH stacks
// ship a uname shim).
func (s *SSHFS) guessPlatform() Platform {
	unameSys, unameOK := s.runCommand("uname -s")
	sysinfo, sysinfoOK := s.runCommand("sysinfo")

	if sysinfoOK && len(sysinfo) > 0 {
		return PlatformWindows
	}
	if unameOK {
		return parsePlatform(string(unameSys))
	}
	return PlatformUnknown
}

// parsePlatform maps a `uname -s` value to a platform family.
func parsePlatform(uname string) Platform {
	switch {
	case strings.HasSuffix(uname, "BSD") || uname == "DragonFly":
		return PlatformBSD
	case uname == "Darwin":
		return PlatformDarwin
	case uname == "Linux":
		return PlatformLinux
	default:
		return PlatformUnknown
	}
}

func (s *SSHFS) guessLocale() string {
	if !s.Platform().Unix() {
		return ""
	}
	out, ok := s.runCommand("locale charmap")
	if !ok {
		return ""
	}
	return strings.ToLower(string(out))
}

// runCommand executes a command on the remote host over a fresh session and
// returns its trimmed stdout. The result is absent on any failure: session
// setup error, non-zero exit, or output on stderr. Every caller treats the
// result as advisory.
func (s *SSHFS) runCommand(cmd string) ([]byte, bool) {
	sess, err := s.sshc.NewSession()
	if err != nil {
		return nil, false
	}
	defer func() { _ = sess.Close() }()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	if err := sess.Run(cmd); err != nil {
		return nil, false
	}
	if len(bytes.TrimSpace(stderr.Bytes())) > 0 {
		return nil, false
	}
	return bytes.TrimSpace(stdout.Bytes()), true
}

// lookupName resolves a numeric id against the remote identity database
// (`getent passwd <uid>` / `getent group <gid>`), decoding the entry with
// the detected locale. Best-effort: absent on any failure.
func (s *SSHFS) lookupName(db string, id uint32) (string, bool) {
	out, ok := s.runCommand("getent " + db + " " + strconv.FormatUint(uint64(id), 10))
	if !ok {
		return "", false
	}
	return parseGetentName(out, s.Locale())
}

// parseGetentName extracts the name field from a getent entry. Both passwd
// and group entries carry the name first, colon-separated.
func parseGetentName(entry []byte, locale string) (string, bool) {
	fields := bytes.SplitN(entry, []byte(":"), 2)
	if len(fields) == 0 || len(fields[0]) == 0 {
		return "", false
	}
	name, ok := decodeWithCharmap(fields[0], locale)
	if !ok {
		return "", false
	}
	return name, true
}

// decodeWithCharmap decodes raw bytes using the named IANA character map,
// falling back to UTF-8 when the map is unknown or empty.
func decodeWithCharmap(b []byte, charmapName string) (string, bool) {
	if charmapName != "" {
		enc, err := ianaindex.IANA.Encoding(charmapName)
		if err == nil && enc != nil {
			if out, err := enc.NewDecoder().Bytes(b); err == nil {
				return string(out), true
			}
			return "", false
		}
	}
	if !utf8.Valid(b) {
		return "", false
	}
	return string(b), true
}
