package sshfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/jmgilman/go/fs/core"
	"github.com/jmgilman/go/fs/sshfs/internal/errs"
	"github.com/jmgilman/go/fs/sshfs/internal/pathutil"
	"github.com/jmgilman/go/fs/sshfs/internal/types"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"
)

// SSHFS implements core.FS for remote filesystems reached over SFTP.
// Note: The name follows the package naming convention (LocalFS, MemoryFS,
// MinioFS) used throughout the fs library to distinguish implementations.
//
//nolint:revive // SSHFS name is intentional to match naming pattern across fs implementations
type SSHFS struct {
	sshc  *ssh.Client
	sftpc *sftp.Client

	user string
	host string
	port int
	root string // Absolute remote directory all names are resolved against

	maxDeleteConcurrency int

	// mu serializes structural mutations (creates, deletes, write-opens,
	// metadata updates). Read-only queries are deliberately not guarded.
	mu sync.Mutex

	ri *remoteInfo // Lazily detected platform/locale, shared across Chroot views

	keepaliveStop chan struct{}
	closeOnce     sync.Once

	// ownsConn is false for Chroot views and filesystems built on a
	// caller-provided ssh client; such instances never tear down the
	// transport on Close.
	ownsConn bool
	shared   bool // Chroot views share the sftp channel and never close it
}

// New creates an SFTP-backed filesystem.
// Any connection or authentication failure is reported as ErrCreateFailed
// wrapping the underlying cause; the raw transport error is never surfaced
// directly. The password, if any, is used for the handshake and not retained.
func New(cfg Config) (*SSHFS, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	username := cfg.username()
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	sshc := cfg.Client
	ownsConn := false
	if sshc == nil {
		methods, err := cfg.authMethods()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCreateFailed, err)
		}

		hostKey := cfg.HostKeyCallback
		if hostKey == nil {
			hostKey = ssh.InsecureIgnoreHostKey() //nolint:gosec // Mirrors an auto-add host key policy; callers override via Config
		}

		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}

		addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))
		sshc, err = ssh.Dial("tcp", addr, &ssh.ClientConfig{
			User:            username,
			Auth:            methods,
			HostKeyCallback: hostKey,
			Timeout:         timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCreateFailed, err)
		}
		ownsConn = true
	}

	var opts []sftp.ClientOption
	if cfg.MaxPacket > 0 {
		opts = append(opts, sftp.MaxPacket(cfg.MaxPacket))
	}

	sftpc, err := sftp.NewClient(sshc, opts...)
	if err != nil {
		if ownsConn {
			_ = sshc.Close()
		}
		return nil, fmt.Errorf("%w: %w", ErrCreateFailed, err)
	}

	maxDelete := cfg.MaxDeleteConcurrency
	if maxDelete == 0 {
		maxDelete = 10
	}

	s := &SSHFS{
		sshc:                 sshc,
		sftpc:                sftpc,
		user:                 username,
		host:                 cfg.Host,
		port:                 port,
		root:                 pathutil.NormalizeRoot(cfg.Root),
		maxDeleteConcurrency: maxDelete,
		ri:                   &remoteInfo{},
		ownsConn:             ownsConn,
	}

	keepalive := cfg.KeepAlive
	if keepalive == 0 {
		keepalive = defaultKeepAlive
	}
	if keepalive > 0 {
		s.keepaliveStop = make(chan struct{})
		go s.keepalive(keepalive)
	}

	return s, nil
}

// keepalive periodically sends a keep-alive request until Close.
func (s *SSHFS) keepalive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.keepaliveStop:
			return
		case <-ticker.C:
			_, _, _ = s.sshc.SendRequest("keepalive@openssh.com", true, nil)
		}
	}
}

// Close shuts down the SFTP channel and, when the connection was established
// by New, the SSH transport as well. Close on a Chroot view is a no-op since
// the view shares its parent's connection.
func (s *SSHFS) Close() error {
	if s.shared {
		return nil
	}

	var sftpErr, sshErr error
	s.closeOnce.Do(func() {
		if s.keepaliveStop != nil {
			close(s.keepaliveStop)
		}
		sftpErr = s.sftpc.Close()
		if s.ownsConn {
			sshErr = s.sshc.Close()
		}
	})
	if sftpErr != nil {
		return sftpErr
	}
	return sshErr
}

// join resolves a name against the filesystem root.
func (s *SSHFS) join(name string) string {
	return pathutil.Join(s.root, name)
}

// ReadFS interface implementation

// Open opens the named file for reading.
// Returns a File that also implements io.Seeker and io.ReaderAt.
func (s *SSHFS) Open(name string) (fs.File, error) {
	return s.OpenFile(name, os.O_RDONLY, 0)
}

// Stat returns file metadata for the named file, following symlinks.
// One fresh remote stat call is issued per query; results are never cached.
func (s *SSHFS) Stat(name string) (fs.FileInfo, error) {
	fi, err := s.sftpc.Stat(s.join(name))
	if err != nil {
		return nil, errs.PathError("stat", name, errs.Translate(err))
	}
	return fi, nil
}

// ReadDir reads the directory named by name and returns a list of directory
// entries sorted by filename, as the fs.ReadDir contract requires.
// Listing a non-directory fails with ErrDirectoryExpected before the raw
// listing call is issued.
func (s *SSHFS) ReadDir(name string) ([]fs.DirEntry, error) {
	target := s.join(name)

	fi, err := s.sftpc.Stat(target)
	if err != nil {
		return nil, errs.PathError("readdir", name, errs.Translate(err))
	}
	if !fi.IsDir() {
		return nil, errs.PathError("readdir", name, ErrDirectoryExpected)
	}

	infos, err := s.sftpc.ReadDir(target)
	if err != nil {
		return nil, errs.PathError("readdir", name, errs.Translate(err))
	}

	entries := make([]fs.DirEntry, len(infos))
	for i, info := range infos {
		entries[i] = types.NewDirEntry(info)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	return entries, nil
}

// ReadFile reads the named file and returns its contents.
func (s *SSHFS) ReadFile(name string) ([]byte, error) {
	f, err := s.Open(name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errs.PathError("readfile", name, errs.Translate(err))
	}
	return data, nil
}

// Exists reports whether the named file or directory exists.
func (s *SSHFS) Exists(name string) (bool, error) {
	_, err := s.Stat(name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// WriteFS interface implementation

// Create creates or truncates the named file for writing.
func (s *SSHFS) Create(name string) (core.File, error) {
	return s.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o666)
}

// OpenFile opens a file with the specified flags.
//
// The generic interface's precondition contract is enforced locally before
// the raw open, since the server's own errors do not distinguish these cases:
//   - O_EXCL|O_CREATE on an existing path fails with fs.ErrExist
//   - opening for reading without O_CREATE on a missing path fails with
//     fs.ErrNotExist
//   - opening an existing directory fails with ErrFileExpected regardless
//     of the requested flags
//
// Permission bits are left to the server's umask; perm is accepted for
// interface compatibility only.
func (s *SSHFS) OpenFile(name string, flag int, _ fs.FileMode) (core.File, error) {
	target := s.join(name)

	writing := flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE) != 0
	if writing {
		s.mu.Lock()
		defer s.mu.Unlock()
	}

	fi, statErr := s.sftpc.Stat(target)
	if statErr != nil {
		statErr = errs.Translate(statErr)
		if !errors.Is(statErr, fs.ErrNotExist) {
			return nil, errs.PathError("open", name, statErr)
		}
	}
	exists := statErr == nil

	switch {
	case flag&os.O_EXCL != 0 && flag&os.O_CREATE != 0 && exists:
		return nil, errs.PathError("open", name, fs.ErrExist)
	case flag&os.O_CREATE == 0 && flag&(os.O_WRONLY|os.O_RDWR) == 0 && !exists:
		return nil, errs.PathError("open", name, fs.ErrNotExist)
	case exists && fi.IsDir():
		return nil, errs.PathError("open", name, ErrFileExpected)
	}

	f, err := s.sftpc.OpenFile(target, flag)
	if err != nil {
		return nil, errs.PathError("open", name, errs.Translate(err))
	}

	return &File{file: f, name: name, flag: flag}, nil
}

// WriteFile writes data to the named file, creating it if necessary.
func (s *SSHFS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	f, err := s.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(data); err != nil {
		return errs.PathError("writefile", name, errs.Translate(err))
	}
	if err := f.Close(); err != nil {
		return errs.PathError("writefile", name, errs.Translate(err))
	}
	return nil
}

// Mkdir creates a new directory with the specified name and permission bits
// (default 0755 when perm is zero). An existing path fails with fs.ErrExist.
func (s *SSHFS) Mkdir(name string, perm fs.FileMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mkdir(name, perm)
}

// mkdir is the lock-free implementation shared with MakeDir.
func (s *SSHFS) mkdir(name string, perm fs.FileMode) error {
	target := s.join(name)

	if _, err := s.sftpc.Stat(target); err == nil {
		return errs.PathError("mkdir", name, fs.ErrExist)
	}

	if err := s.sftpc.Mkdir(target); err != nil {
		return errs.PathError("mkdir", name, errs.Translate(err))
	}

	if perm == 0 {
		perm = defaultDirPerm
	}
	if err := s.sftpc.Chmod(target, perm); err != nil {
		return errs.PathError("mkdir", name, errs.Translate(err))
	}
	return nil
}

// MkdirAll creates a directory named path, along with any necessary parents.
func (s *SSHFS) MkdirAll(p string, perm fs.FileMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.join(p)
	if fi, err := s.sftpc.Stat(target); err == nil && fi.IsDir() {
		return nil
	}

	if err := s.sftpc.MkdirAll(target); err != nil {
		return errs.PathError("mkdirall", p, errs.Translate(err))
	}
	if perm == 0 {
		perm = defaultDirPerm
	}
	if err := s.sftpc.Chmod(target, perm); err != nil {
		return errs.PathError("mkdirall", p, errs.Translate(err))
	}
	return nil
}

// MakeDir creates the named directory and returns a filesystem scoped to it.
// When recreate is set, an existing directory is accepted and returned as-is;
// otherwise an existing path fails with fs.ErrExist, whether it is a
// directory or a file occupying the path.
func (s *SSHFS) MakeDir(name string, perm fs.FileMode, recreate bool) (*SSHFS, error) {
	fi, err := s.sftpc.Stat(s.join(name))
	switch {
	case err != nil:
		if terr := errs.Translate(err); !errors.Is(terr, fs.ErrNotExist) {
			return nil, errs.PathError("makedir", name, terr)
		}
		s.mu.Lock()
		err = s.mkdir(name, perm)
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}
	case !fi.IsDir() || !recreate:
		return nil, errs.PathError("makedir", name, fs.ErrExist)
	}

	return s.chroot(name), nil
}

// ManageFS interface implementation

// Remove removes the named file or empty directory, per the core contract.
func (s *SSHFS) Remove(name string) error {
	fi, err := s.sftpc.Stat(s.join(name))
	if err != nil {
		return errs.PathError("remove", name, errs.Translate(err))
	}
	if fi.IsDir() {
		return s.RemoveDir(name)
	}
	return s.RemoveFile(name)
}

// RemoveFile removes the named file.
// A directory fails with ErrFileExpected before the raw delete is issued,
// since removing a directory through the file primitive yields inconsistent
// server errors.
func (s *SSHFS) RemoveFile(name string) error {
	target := s.join(name)

	fi, err := s.sftpc.Stat(target)
	if err != nil {
		return errs.PathError("remove", name, errs.Translate(err))
	}
	if fi.IsDir() {
		return errs.PathError("remove", name, ErrFileExpected)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sftpc.Remove(target); err != nil {
		return errs.PathError("remove", name, errs.Translate(err))
	}
	return nil
}

// RemoveDir removes the named empty directory.
// The emptiness probe runs before the raw removal so a non-empty directory
// always fails with ErrDirectoryNotEmpty. Removing the filesystem root is
// rejected with fs.ErrInvalid.
func (s *SSHFS) RemoveDir(name string) error {
	target := s.join(name)
	if target == s.root {
		return errs.PathError("removedir", name, fs.ErrInvalid)
	}

	fi, err := s.sftpc.Stat(target)
	if err != nil {
		return errs.PathError("removedir", name, errs.Translate(err))
	}
	if !fi.IsDir() {
		return errs.PathError("removedir", name, ErrDirectoryExpected)
	}

	entries, err := s.sftpc.ReadDir(target)
	if err != nil {
		return errs.PathError("removedir", name, errs.Translate(err))
	}
	if len(entries) > 0 {
		return errs.PathError("removedir", name, ErrDirectoryNotEmpty)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sftpc.RemoveDirectory(target); err != nil {
		return errs.PathError("removedir", name, errs.Translate(err))
	}
	return nil
}

// RemoveAll removes path and any children it contains.
// File deletions within each directory run through a bounded worker pool;
// directories are removed bottom-up once emptied.
func (s *SSHFS) RemoveAll(p string) error {
	target := s.join(p)

	fi, err := s.sftpc.Stat(target)
	if err != nil {
		if terr := errs.Translate(err); errors.Is(terr, fs.ErrNotExist) {
			return nil
		}
		return errs.PathError("removeall", p, errs.Translate(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !fi.IsDir() {
		if err := s.sftpc.Remove(target); err != nil {
			return errs.PathError("removeall", p, errs.Translate(err))
		}
		return nil
	}

	if err := s.removeTree(target); err != nil {
		return errs.PathError("removeall", p, errs.Translate(err))
	}
	return nil
}

// removeTree deletes the directory tree rooted at target, which must exist.
func (s *SSHFS) removeTree(target string) error {
	infos, err := s.sftpc.ReadDir(target)
	if err != nil {
		return err
	}

	var dirs []string
	var eg errgroup.Group
	eg.SetLimit(s.maxDeleteConcurrency)
	for _, info := range infos {
		entry := path.Join(target, info.Name())
		if info.IsDir() {
			dirs = append(dirs, entry)
			continue
		}
		eg.Go(func() error {
			return s.sftpc.Remove(entry)
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	for _, dir := range dirs {
		if err := s.removeTree(dir); err != nil {
			return err
		}
	}

	return s.sftpc.RemoveDirectory(target)
}

// Rename renames (moves) oldpath to newpath.
// POSIX rename semantics (replace an existing target) are requested first;
// servers without the posix-rename extension fall back to the standard
// SFTP rename.
func (s *SSHFS) Rename(oldpath, newpath string) error {
	oldTarget := s.join(oldpath)
	newTarget := s.join(newpath)

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.sftpc.PosixRename(oldTarget, newTarget)
	if err != nil && errors.Is(errs.Translate(err), core.ErrUnsupported) {
		err = s.sftpc.Rename(oldTarget, newTarget)
	}
	if err != nil {
		return errs.PathError("rename", oldpath, errs.Translate(err))
	}
	return nil
}

// WalkFS interface implementation

// Walk walks the file tree rooted at root, calling walkFn for each file or
// directory in the tree, including root.
func (s *SSHFS) Walk(root string, walkFn fs.WalkDirFunc) error {
	root = pathutil.Normalize(root)
	fi, err := s.sftpc.Stat(s.join(root))
	if err != nil {
		err = walkFn(root, nil, errs.PathError("walk", root, errs.Translate(err)))
	} else {
		err = s.walk(root, types.NewDirEntry(fi), walkFn)
	}
	if errors.Is(err, fs.SkipDir) || errors.Is(err, fs.SkipAll) {
		return nil
	}
	return err
}

func (s *SSHFS) walk(p string, d fs.DirEntry, walkFn fs.WalkDirFunc) error {
	if err := walkFn(p, d, nil); err != nil || !d.IsDir() {
		if errors.Is(err, fs.SkipDir) && d.IsDir() {
			err = nil
		}
		return err
	}

	entries, err := s.ReadDir(p)
	if err != nil {
		err = walkFn(p, d, err)
		if err != nil {
			return err
		}
	}

	for _, entry := range entries {
		newPath := pathutil.Normalize(filepath.Join(p, entry.Name()))
		if err := s.walk(newPath, entry, walkFn); err != nil {
			if errors.Is(err, fs.SkipDir) {
				continue
			}
			return err
		}
	}
	return nil
}

// ChrootFS interface implementation

// Chroot returns a filesystem scoped to the given directory.
// The directory must exist; the view shares the parent's connection and
// lazily detected platform information.
func (s *SSHFS) Chroot(dir string) (core.FS, error) {
	fi, err := s.sftpc.Stat(s.join(dir))
	if err != nil {
		return nil, errs.PathError("chroot", dir, errs.Translate(err))
	}
	if !fi.IsDir() {
		return nil, errs.PathError("chroot", dir, ErrDirectoryExpected)
	}
	return s.chroot(dir), nil
}

// chroot builds a scoped view without existence checks.
func (s *SSHFS) chroot(dir string) *SSHFS {
	return &SSHFS{
		sshc:                 s.sshc,
		sftpc:                s.sftpc,
		user:                 s.user,
		host:                 s.host,
		port:                 s.port,
		root:                 s.join(dir),
		maxDeleteConcurrency: s.maxDeleteConcurrency,
		ri:                   s.ri,
		shared:               true,
	}
}

// Type returns FSTypeRemote for SFTP-backed filesystems.
func (s *SSHFS) Type() core.FSType {
	return core.FSTypeRemote
}

// MetadataFS interface implementation

// Lstat returns file info without following symbolic links.
func (s *SSHFS) Lstat(name string) (fs.FileInfo, error) {
	fi, err := s.sftpc.Lstat(s.join(name))
	if err != nil {
		return nil, errs.PathError("lstat", name, errs.Translate(err))
	}
	return fi, nil
}

// Chmod changes the mode of the named file.
func (s *SSHFS) Chmod(name string, mode fs.FileMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sftpc.Chmod(s.join(name), mode); err != nil {
		return errs.PathError("chmod", name, errs.Translate(err))
	}
	return nil
}

// Chtimes changes the access and modification times of the named file.
// A zero time value preserves the corresponding existing time.
func (s *SSHFS) Chtimes(name string, atime, mtime time.Time) error {
	target := s.join(name)

	if atime.IsZero() || mtime.IsZero() {
		fi, err := s.sftpc.Lstat(target)
		if err != nil {
			return errs.PathError("chtimes", name, errs.Translate(err))
		}
		if mtime.IsZero() {
			mtime = fi.ModTime()
		}
		if atime.IsZero() {
			atime = accessTime(fi, mtime)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sftpc.Chtimes(target, atime, mtime); err != nil {
		return errs.PathError("chtimes", name, errs.Translate(err))
	}
	return nil
}

// accessTime extracts the access time from a stat result, falling back to
// the given time when the server did not report one.
func accessTime(fi fs.FileInfo, fallback time.Time) time.Time {
	if st, ok := fi.Sys().(*sftp.FileStat); ok && st.Atime != 0 {
		return time.Unix(int64(st.Atime), 0)
	}
	return fallback
}

// Compile-time interface checks.
var (
	_ core.FS         = (*SSHFS)(nil)
	_ core.MetadataFS = (*SSHFS)(nil)
)
