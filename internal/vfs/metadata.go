package vfs

import (
	iofs "io/fs"
	"time"
)

// Kind classifies a directory entry independently of any backend's
// native mode representation.
type Kind uint8

const (
	// KindFile is a regular file.
	KindFile Kind = iota
	// KindDir is a directory.
	KindDir
	// KindSymlink is a symbolic link.
	KindSymlink
	// KindOther covers devices, sockets and anything else.
	KindOther
)

// String returns the kind's name.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	case KindSymlink:
		return "symlink"
	default:
		return "other"
	}
}

// Metadata is a backend-agnostic stat/lstat result.
type Metadata struct {
	Kind    Kind
	Size    int64
	Mode    iofs.FileMode
	ModTime time.Time
	Nlink   int
}

// IsDir reports whether the entry is a directory.
func (m *Metadata) IsDir() bool { return m.Kind == KindDir }

// IsSymlink reports whether the entry is a symbolic link.
func (m *Metadata) IsSymlink() bool { return m.Kind == KindSymlink }

// MetadataFromFileInfo converts a standard FileInfo into Metadata.
// Backends built on the os package or io/fs use this for their stat
// and lstat results.
func MetadataFromFileInfo(fi iofs.FileInfo) *Metadata {
	mode := fi.Mode()
	kind := KindOther
	switch {
	case mode.IsDir():
		kind = KindDir
	case mode&iofs.ModeSymlink != 0:
		kind = KindSymlink
	case mode.IsRegular():
		kind = KindFile
	}
	return &Metadata{
		Kind:    kind,
		Size:    fi.Size(),
		Mode:    mode,
		ModTime: fi.ModTime(),
		Nlink:   1,
	}
}
