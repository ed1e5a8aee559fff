package sshfs

import (
	"errors"
	"io/fs"
	"path"
	"time"

	"github.com/jmgilman/go/fs/sshfs/internal/errs"
	"github.com/pkg/sftp"
)

// Metadata namespaces a caller can request from GetInfo. The basic namespace
// is always populated; the others cost nothing on the wire beyond the single
// stat call, except access-namespace name resolution which may run remote
// identity lookups.
const (
	NamespaceBasic   = "basic"
	NamespaceDetails = "details"
	NamespaceAccess  = "access"
	NamespaceStat    = "stat"
)

// ResourceType classifies a filesystem entry from its raw mode bits.
type ResourceType int

// Resource type codes, in the order used by the details namespace.
const (
	TypeUnknown ResourceType = iota
	TypeDirectory
	TypeFile
	TypeCharacter
	TypeBlockSpecial
	TypeFIFO
	TypeSocket
	TypeSymlink
)

// String returns a string representation of the ResourceType.
func (t ResourceType) String() string {
	switch t {
	case TypeDirectory:
		return "directory"
	case TypeFile:
		return "file"
	case TypeCharacter:
		return "character"
	case TypeBlockSpecial:
		return "block_special_file"
	case TypeFIFO:
		return "fifo"
	case TypeSocket:
		return "socket"
	case TypeSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// resourceType derives the ResourceType from file mode type bits.
// ModeCharDevice implies ModeDevice, so it is checked first.
func resourceType(mode fs.FileMode) ResourceType {
	switch {
	case mode&fs.ModeSymlink != 0:
		return TypeSymlink
	case mode.IsDir():
		return TypeDirectory
	case mode&fs.ModeSocket != 0:
		return TypeSocket
	case mode&fs.ModeNamedPipe != 0:
		return TypeFIFO
	case mode&fs.ModeCharDevice != 0:
		return TypeCharacter
	case mode&fs.ModeDevice != 0:
		return TypeBlockSpecial
	case mode.IsRegular():
		return TypeFile
	default:
		return TypeUnknown
	}
}

// Info is the normalized metadata record for a single remote entry.
// Only the requested namespaces are populated; Basic is always present.
type Info struct {
	Basic   BasicInfo
	Details *DetailsInfo
	Access  *AccessInfo
	Stat    map[string]interface{}
}

// BasicInfo carries the always-available metadata fields.
type BasicInfo struct {
	Name  string
	IsDir bool
}

// DetailsInfo carries the details namespace.
//
// Created and MetadataChanged are pointers because SFTP protocol version 3
// servers do not report creation or change times; they stay nil in that
// case. On Windows hosts without a birth time the change time is surfaced
// as Created, on every other platform as MetadataChanged.
type DetailsInfo struct {
	Accessed        time.Time
	Modified        time.Time
	Size            int64
	Type            ResourceType
	Created         *time.Time
	MetadataChanged *time.Time
}

// AccessInfo carries the access namespace. User and Group are resolved
// best-effort on Unix-like hosts and empty when resolution failed.
type AccessInfo struct {
	Permissions fs.FileMode
	UID         uint32
	GID         uint32
	User        string
	Group       string
}

// statAttrs is an immutable snapshot of a raw remote stat result.
// ctime and birthtime are optional because the protocol does not always
// convey them; the normalizer handles their absence.
type statAttrs struct {
	mode      fs.FileMode
	size      int64
	atime     time.Time
	mtime     time.Time
	ctime     *time.Time
	birthtime *time.Time
	uid       uint32
	gid       uint32
	raw       *sftp.FileStat
}

// newStatAttrs builds a snapshot from a stat result and its raw wire form.
func newStatAttrs(fi fs.FileInfo, st *sftp.FileStat) statAttrs {
	attrs := statAttrs{
		mode:  fi.Mode(),
		size:  fi.Size(),
		mtime: fi.ModTime(),
		raw:   st,
	}
	if st != nil {
		attrs.atime = time.Unix(int64(st.Atime), 0)
		attrs.uid = st.UID
		attrs.gid = st.GID
	}
	return attrs
}

// GetInfo returns normalized metadata for the named entry.
// A fresh lstat is issued on every call; nothing is cached between queries.
// The basic namespace is always populated, the others only when requested.
func (s *SSHFS) GetInfo(name string, namespaces ...string) (*Info, error) {
	target := s.join(name)

	fi, err := s.sftpc.Lstat(target)
	if err != nil {
		return nil, errs.PathError("getinfo", name, errs.Translate(err))
	}

	st, _ := fi.Sys().(*sftp.FileStat)
	return s.makeInfo(path.Base(target), newStatAttrs(fi, st), namespaces), nil
}

// makeInfo assembles an Info record from a stat snapshot.
func (s *SSHFS) makeInfo(name string, attrs statAttrs, namespaces []string) *Info {
	info := &Info{
		Basic: BasicInfo{
			Name:  name,
			IsDir: attrs.mode.IsDir(),
		},
	}
	for _, ns := range namespaces {
		switch ns {
		case NamespaceDetails:
			info.Details = s.makeDetails(attrs)
		case NamespaceAccess:
			info.Access = s.makeAccess(attrs)
		case NamespaceStat:
			info.Stat = makeRawStat(attrs)
		}
	}
	return info
}

// makeDetails builds the details namespace from a stat snapshot.
// The change time is keyed platform-dependently: Windows hosts without a
// birth time surface it as the creation time, all others as a metadata
// change time.
func (s *SSHFS) makeDetails(attrs statAttrs) *DetailsInfo {
	details := &DetailsInfo{
		Accessed: attrs.atime,
		Modified: attrs.mtime,
		Size:     attrs.size,
		Type:     resourceType(attrs.mode),
		Created:  attrs.birthtime,
	}
	if s.Platform() == PlatformWindows && attrs.birthtime == nil {
		details.Created = attrs.ctime
	} else {
		details.MetadataChanged = attrs.ctime
	}
	return details
}

// makeAccess builds the access namespace from a stat snapshot.
// On Unix-like platforms the numeric ids are resolved to names through the
// remote identity database; resolution failures leave the names empty and
// never fail the call.
func (s *SSHFS) makeAccess(attrs statAttrs) *AccessInfo {
	access := &AccessInfo{
		Permissions: attrs.mode.Perm(),
		UID:         attrs.uid,
		GID:         attrs.gid,
	}
	if s.Platform().Unix() {
		if name, ok := s.lookupName("passwd", attrs.uid); ok {
			access.User = name
		}
		if name, ok := s.lookupName("group", attrs.gid); ok {
			access.Group = name
		}
	}
	return access
}

// makeRawStat builds the untyped stat namespace: every raw attribute field
// passed through under its st_-prefixed name, for diagnostic use.
func makeRawStat(attrs statAttrs) map[string]interface{} {
	raw := map[string]interface{}{
		"st_mode":  attrs.mode,
		"st_size":  attrs.size,
		"st_atime": attrs.atime,
		"st_mtime": attrs.mtime,
	}
	if st := attrs.raw; st != nil {
		raw["st_uid"] = st.UID
		raw["st_gid"] = st.GID
		for _, ext := range st.Extended {
			raw["st_"+ext.ExtType] = ext.ExtData
		}
	}
	return raw
}

// Changes describes a SetInfo request. Nil fields are left untouched.
type Changes struct {
	// Accessed and Modified set the entry's timestamps. When only one is
	// given the other defaults to it.
	Accessed *time.Time
	Modified *time.Time

	// Touch sets both timestamps to the current time when neither Accessed
	// nor Modified is given.
	Touch bool

	// UID and GID change ownership. The SFTP chown call requires both, so
	// a missing one is read back from the server before applying.
	UID *int
	GID *int

	// Permissions changes the permission bits, applied last.
	Permissions *fs.FileMode
}

// SetInfo applies metadata changes to the named entry.
//
// The target must exist; a missing path fails with fs.ErrNotExist before any
// raw call is issued. Changes apply in a fixed order — timestamps, then
// ownership, then permissions — and are not atomic: a failure partway leaves
// the earlier changes applied and surfaces the failing call's error.
func (s *SSHFS) SetInfo(name string, changes Changes) error {
	target := s.join(name)

	if _, err := s.sftpc.Stat(target); err != nil {
		return errs.PathError("setinfo", name, errs.Translate(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if changes.Accessed != nil || changes.Modified != nil || changes.Touch {
		atime, mtime := resolveTimes(changes.Accessed, changes.Modified)
		if err := s.sftpc.Chtimes(target, atime, mtime); err != nil {
			return errs.PathError("setinfo", name, errs.Translate(err))
		}
	}

	if changes.UID != nil || changes.GID != nil {
		uid, gid, err := s.resolveOwner(target, changes.UID, changes.GID)
		if err != nil {
			return errs.PathError("setinfo", name, err)
		}
		if err := s.sftpc.Chown(target, uid, gid); err != nil {
			return errs.PathError("setinfo", name, errs.Translate(err))
		}
	}

	if changes.Permissions != nil {
		if err := s.sftpc.Chmod(target, *changes.Permissions); err != nil {
			return errs.PathError("setinfo", name, errs.Translate(err))
		}
	}

	return nil
}

// resolveTimes fills in missing timestamps: each defaults to the other, and
// both default to now when neither is given.
func resolveTimes(accessed, modified *time.Time) (atime, mtime time.Time) {
	switch {
	case accessed == nil && modified == nil:
		now := time.Now()
		return now, now
	case accessed == nil:
		return *modified, *modified
	case modified == nil:
		return *accessed, *accessed
	default:
		return *accessed, *modified
	}
}

// resolveOwner fills a missing uid or gid from the entry's current ownership.
func (s *SSHFS) resolveOwner(target string, uid, gid *int) (int, int, error) {
	if uid != nil && gid != nil {
		return *uid, *gid, nil
	}

	fi, err := s.sftpc.Lstat(target)
	if err != nil {
		return 0, 0, errs.Translate(err)
	}
	st, ok := fi.Sys().(*sftp.FileStat)
	if !ok {
		return 0, 0, errors.New("stat result carries no ownership attributes")
	}

	resolvedUID := int(st.UID)
	if uid != nil {
		resolvedUID = *uid
	}
	resolvedGID := int(st.GID)
	if gid != nil {
		resolvedGID = *gid
	}
	return resolvedUID, resolvedGID, nil
}
