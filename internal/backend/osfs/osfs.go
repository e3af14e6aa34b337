// Package osfs provides the real-OS backend: backend-relative names
// delegate to the os package underneath a configurable root directory.
// It backs the "os" class and the distinguished real filesystem.
package osfs

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"mosaicfs/internal/vfs"
)

func init() {
	vfs.RegisterBackend("os", func(args map[string]string) (vfs.Backend, error) {
		root := args["root"]
		if root == "" {
			root = "/"
		}
		return New(root), nil
	})
}

// FS serves a subtree of the host filesystem rooted at a directory.
type FS struct {
	root string
}

// New returns a backend rooted at the given host directory.
func New(root string) *FS {
	return &FS{root: filepath.Clean(root)}
}

// Root returns the host directory this backend is rooted at.
func (o *FS) Root() string { return o.root }

func (o *FS) hostPath(name string) string {
	if name == "." || name == "" {
		return o.root
	}
	return filepath.Join(o.root, filepath.FromSlash(name))
}

// Stat implements vfs.Backend.
func (o *FS) Stat(name string) (*vfs.Metadata, error) {
	fi, err := os.Stat(o.hostPath(name))
	if err != nil {
		return nil, err
	}
	return metadataFor(fi), nil
}

// Lstat implements vfs.Backend.
func (o *FS) Lstat(name string) (*vfs.Metadata, error) {
	fi, err := os.Lstat(o.hostPath(name))
	if err != nil {
		return nil, err
	}
	return metadataFor(fi), nil
}

// Open implements vfs.Backend.
func (o *FS) Open(name string, flag int) (vfs.FileHandle, error) {
	return os.OpenFile(o.hostPath(name), flag, 0)
}

// OpenDir implements vfs.Backend.
func (o *FS) OpenDir(name string) (vfs.DirHandle, error) {
	f, err := os.Open(o.hostPath(name))
	if err != nil {
		return nil, err
	}
	return &osDir{f: f}, nil
}

// ReadLink implements vfs.Backend. Host-absolute targets under the
// backend root are rebased to backend-relative form so the engine sees
// them in its own namespace.
func (o *FS) ReadLink(name string) (string, error) {
	target, err := os.Readlink(o.hostPath(name))
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(target) && o.root != "/" {
		if rel, err := filepath.Rel(o.root, target); err == nil && !strings.HasPrefix(rel, "..") {
			return "/" + filepath.ToSlash(rel), nil
		}
	}
	return filepath.ToSlash(target), nil
}

// Clone implements vfs.Backend. A "root" argument re-roots the clone;
// without one the same instance is shared.
func (o *FS) Clone(args map[string]string) (vfs.Backend, error) {
	if root := args["root"]; root != "" {
		return New(o.hostPath(strings.TrimPrefix(root, "/"))), nil
	}
	return o, nil
}

// TempDir implements vfs.Backend.
func (o *FS) TempDir() (string, error) {
	tmp := os.TempDir()
	if o.root == "/" {
		return strings.TrimPrefix(filepath.ToSlash(tmp), "/"), nil
	}
	rel, err := filepath.Rel(o.root, tmp)
	if err != nil || strings.HasPrefix(rel, "..") {
		// Host temp dir lies outside this root; fall back to the root
		// itself rather than escaping the namespace.
		return ".", nil
	}
	return filepath.ToSlash(rel), nil
}

func metadataFor(fi os.FileInfo) *vfs.Metadata {
	return vfs.MetadataFromFileInfo(fi)
}

type osDir struct {
	f *os.File
}

// ReadEntry returns one name per call in the order the OS produces
// them, io.EOF at the end.
func (d *osDir) ReadEntry() (string, error) {
	names, err := d.f.Readdirnames(1)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", io.EOF
	}
	return names[0], nil
}

func (d *osDir) Close() error { return d.f.Close() }
