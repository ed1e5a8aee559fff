// Package pathutil provides path normalization and manipulation utilities
// for remote SFTP paths.
package pathutil

import (
	"path"
	"strings"
)

// Normalize cleans a path and ensures forward slashes.
// The path is resolved against a virtual root, so ".." segments can never
// ascend past the start of the path.
// Returns "." for empty paths.
func Normalize(p string) string {
	if p == "" {
		return "."
	}

	// Convert backslashes to forward slashes (for Windows-style paths)
	p = strings.ReplaceAll(p, "\\", "/")

	// Clean relative to a virtual root; leading ".." segments collapse into
	// it instead of surviving into the result.
	p = path.Clean("/" + p)

	// Trim the virtual root again
	p = strings.TrimPrefix(p, "/")

	// Return "." if path is now empty
	if p == "" {
		return "."
	}

	return p
}

// NormalizeRoot normalizes the remote directory a filesystem is rooted at.
// The result is always absolute with no trailing slash; empty and "."
// inputs map to "/".
func NormalizeRoot(root string) string {
	root = Normalize(root)
	if root == "." {
		return "/"
	}
	return "/" + root
}

// Join joins a filesystem root with a name to produce the absolute remote
// path. The root must already be normalized via NormalizeRoot. Because names
// normalize against a virtual root, the result never escapes the given root.
func Join(root, name string) string {
	name = Normalize(name)

	if name == "." {
		return root
	}

	if root == "/" {
		return "/" + name
	}

	return root + "/" + name
}
