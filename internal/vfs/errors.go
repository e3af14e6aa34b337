// Package vfs implements the mount-table composition and path-resolution
// engine: a composite namespace assembled from pluggable backend
// filesystems mounted at arbitrary paths.
//
// This file contains the error taxonomy and error wrapping utilities.
package vfs

import (
	"errors"
	"fmt"
	iofs "io/fs"
)

var (
	// ErrNoSuchVolume indicates a path named a volume the filesystem
	// does not serve.
	ErrNoSuchVolume = errors.New("no such volume")

	// ErrNoBackend indicates no mount entry matches a path and the
	// filesystem has no backend of its own to fall back to.
	ErrNoBackend = errors.New("no mount or backend serves path")

	// ErrInvalidPathSpec indicates a malformed mount, clone or path
	// specification, including byte-exact path requests containing
	// code points above 0xFF.
	ErrInvalidPathSpec = errors.New("invalid path specification")

	// ErrAmbiguousConfig indicates a filesystem entry requesting both
	// a fresh backend and a clone at the same time.
	ErrAmbiguousConfig = errors.New("ambiguous filesystem configuration")

	// ErrCyclicSymlink indicates resolution exceeded its symlink
	// substitution bound.
	ErrCyclicSymlink = errors.New("cyclic symlink")

	// ErrProtected indicates an attempt to mutate the protected base
	// real-filesystem instance.
	ErrProtected = errors.New("filesystem is protected")

	// ErrNotDir indicates a directory operation on a non-directory.
	ErrNotDir = errors.New("not a directory")

	// ErrNotExist reports that a path has no entry. Aliased to the
	// standard library sentinel so backends can return os errors
	// directly and errors.Is still matches.
	ErrNotExist = iofs.ErrNotExist
)

// Error wraps engine and backend errors with the operation and the
// affected path.
type Error struct {
	Op   string // Operation that failed (e.g., "resolve", "mount")
	Path string // Affected path
	Err  error  // Underlying error
}

// Error implements the error interface, providing a formatted error message.
func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("operation %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("operation %s on %s failed: %v", e.Op, e.Path, e.Err)
}

// Unwrap implements error unwrapping for the errors.Is/As functions.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error with the given operation, path, and
// underlying error.
func NewError(op string, path string, err error) *Error {
	return &Error{Op: op, Path: path, Err: err}
}

// Common operation names for consistent logging and error reporting.
const (
	OpStat     = "stat"     // Querying metadata, following symlinks
	OpLstat    = "lstat"    // Querying metadata of the entry itself
	OpOpen     = "open"     // Opening a file
	OpOpenDir  = "opendir"  // Opening a directory for reading
	OpReadLink = "readlink" // Reading a symlink target
	OpResolve  = "resolve"  // Canonicalizing a path
	OpMount    = "mount"    // Mounting a filesystem
	OpUnmount  = "unmount"  // Removing a mount entry
	OpChdir    = "chdir"    // Changing the current directory
	OpClone    = "clone"    // Cloning a filesystem
	OpWalk     = "walk"     // Traversing a subtree
	OpConfig   = "config"   // Applying declarative configuration
)

// IsNotExist reports whether the error indicates a missing path, as
// opposed to a permission or I/O fault.
func IsNotExist(err error) bool {
	return errors.Is(err, ErrNotExist)
}
