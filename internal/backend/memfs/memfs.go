// Package memfs provides a fully in-memory backend: directories,
// regular files and symlinks held in a node tree. It backs the "mem"
// class in declarative configuration and is the reference backend for
// engine tests.
package memfs

import (
	"bytes"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"strings"
	"time"

	"mosaicfs/internal/vfs"
)

const maxLinkHops = 40

func init() {
	vfs.RegisterBackend("mem", func(args map[string]string) (vfs.Backend, error) {
		return New(), nil
	})
}

type node struct {
	kind     vfs.Kind
	mode     iofs.FileMode
	mtime    time.Time
	data     []byte
	target   string // symlink target
	children map[string]*node
	order    []string // listing order: insertion order
}

func newDirNode() *node {
	return &node{
		kind:     vfs.KindDir,
		mode:     iofs.ModeDir | 0o755,
		mtime:    time.Now(),
		children: map[string]*node{},
	}
}

// FS is an in-memory backend. The zero value is not usable; construct
// with New.
type FS struct {
	root *node
}

// New returns an empty in-memory backend.
func New() *FS {
	return &FS{root: newDirNode()}
}

// split breaks a backend-relative name into elements; "." and "" name
// the root.
func split(name string) []string {
	name = strings.Trim(name, "/")
	if name == "" || name == "." {
		return nil
	}
	return strings.Split(name, "/")
}

// lookup walks to the node for name. Intermediate symlinks are followed
// (relative targets only — an absolute target points outside this
// backend's namespace and reads as missing here; the engine's resolver
// handles those). followLast controls whether a final symlink is
// followed too.
func (m *FS) lookup(name string, followLast bool) (*node, error) {
	elems := split(name)
	cur := m.root
	for i := 0; i < len(elems); i++ {
		if cur.kind != vfs.KindDir {
			return nil, vfs.ErrNotDir
		}
		child, ok := cur.children[elems[i]]
		if !ok {
			return nil, vfs.ErrNotExist
		}
		if child.kind == vfs.KindSymlink && (followLast || i < len(elems)-1) {
			resolved, err := m.followLink(child, elems[:i+1], 0)
			if err != nil {
				return nil, err
			}
			child = resolved
		}
		cur = child
	}
	return cur, nil
}

// followLink resolves a symlink node to its target node within this
// backend.
func (m *FS) followLink(link *node, at []string, hops int) (*node, error) {
	if hops > maxLinkHops {
		return nil, vfs.ErrCyclicSymlink
	}
	if strings.HasPrefix(link.target, "/") {
		return nil, vfs.ErrNotExist
	}
	base := at[:len(at)-1]
	elems := append(append([]string(nil), base...), strings.Split(link.target, "/")...)

	// Normalize "." and ".." lexically against the walked prefix.
	norm := elems[:0]
	for _, e := range elems {
		switch e {
		case "", ".":
		case "..":
			if len(norm) > 0 {
				norm = norm[:len(norm)-1]
			}
		default:
			norm = append(norm, e)
		}
	}

	cur := m.root
	for i, e := range norm {
		if cur.kind != vfs.KindDir {
			return nil, vfs.ErrNotDir
		}
		child, ok := cur.children[e]
		if !ok {
			return nil, vfs.ErrNotExist
		}
		if child.kind == vfs.KindSymlink {
			resolved, err := m.followLink(child, norm[:i+1], hops+1)
			if err != nil {
				return nil, err
			}
			child = resolved
		}
		cur = child
	}
	return cur, nil
}

func (n *node) metadata() *vfs.Metadata {
	nlink := 1
	if n.kind == vfs.KindDir {
		nlink = 2 + len(n.order)
	}
	return &vfs.Metadata{
		Kind:    n.kind,
		Size:    int64(len(n.data)),
		Mode:    n.mode,
		ModTime: n.mtime,
		Nlink:   nlink,
	}
}

// Stat implements vfs.Backend.
func (m *FS) Stat(name string) (*vfs.Metadata, error) {
	n, err := m.lookup(name, true)
	if err != nil {
		return nil, err
	}
	return n.metadata(), nil
}

// Lstat implements vfs.Backend.
func (m *FS) Lstat(name string) (*vfs.Metadata, error) {
	n, err := m.lookup(name, false)
	if err != nil {
		return nil, err
	}
	return n.metadata(), nil
}

// Open implements vfs.Backend. The backend is read-only through the
// contract surface; mutation goes through the helper methods below.
func (m *FS) Open(name string, flag int) (vfs.FileHandle, error) {
	if flag&(os.O_WRONLY|os.O_RDWR) != 0 {
		return nil, fmt.Errorf("memfs: %s: read-only backend", name)
	}
	n, err := m.lookup(name, true)
	if err != nil {
		return nil, err
	}
	if n.kind == vfs.KindDir {
		return nil, fmt.Errorf("memfs: %s: is a directory", name)
	}
	return &memHandle{Reader: bytes.NewReader(n.data)}, nil
}

// OpenDir implements vfs.Backend.
func (m *FS) OpenDir(name string) (vfs.DirHandle, error) {
	n, err := m.lookup(name, true)
	if err != nil {
		return nil, err
	}
	if n.kind != vfs.KindDir {
		return nil, vfs.ErrNotDir
	}
	return &memDir{names: append([]string(nil), n.order...)}, nil
}

// ReadLink implements vfs.Backend.
func (m *FS) ReadLink(name string) (string, error) {
	n, err := m.lookup(name, false)
	if err != nil {
		return "", err
	}
	if n.kind != vfs.KindSymlink {
		return "", fmt.Errorf("memfs: %s: not a symlink", name)
	}
	return n.target, nil
}

// Clone implements vfs.Backend. The node tree is shared: clones see the
// same live state, matching the engine's shared-connection semantics.
func (m *FS) Clone(args map[string]string) (vfs.Backend, error) {
	return m, nil
}

// TempDir implements vfs.Backend, creating the scratch directory on
// first use.
func (m *FS) TempDir() (string, error) {
	if err := m.MkdirAll("tmp"); err != nil {
		return "", err
	}
	return "tmp", nil
}

// MkdirAll creates a directory and any missing parents.
func (m *FS) MkdirAll(name string) error {
	cur := m.root
	for _, e := range split(name) {
		child, ok := cur.children[e]
		if !ok {
			child = newDirNode()
			cur.children[e] = child
			cur.order = append(cur.order, e)
		}
		if child.kind != vfs.KindDir {
			return vfs.ErrNotDir
		}
		cur = child
	}
	return nil
}

// WriteFile creates or replaces a regular file, creating parents as
// needed.
func (m *FS) WriteFile(name string, data []byte) error {
	dir, base, err := m.parentFor(name)
	if err != nil {
		return err
	}
	n, ok := dir.children[base]
	if !ok {
		n = &node{kind: vfs.KindFile, mode: 0o644}
		dir.children[base] = n
		dir.order = append(dir.order, base)
	}
	if n.kind != vfs.KindFile {
		return fmt.Errorf("memfs: %s: exists and is not a file", name)
	}
	n.data = append([]byte(nil), data...)
	n.mtime = time.Now()
	return nil
}

// Symlink creates a symbolic link at name pointing to target.
func (m *FS) Symlink(target, name string) error {
	dir, base, err := m.parentFor(name)
	if err != nil {
		return err
	}
	if _, exists := dir.children[base]; exists {
		return fmt.Errorf("memfs: %s: already exists", name)
	}
	dir.children[base] = &node{
		kind:   vfs.KindSymlink,
		mode:   iofs.ModeSymlink | 0o777,
		mtime:  time.Now(),
		target: target,
	}
	dir.order = append(dir.order, base)
	return nil
}

// Remove deletes the named entry.
func (m *FS) Remove(name string) error {
	dir, base, err := m.parentFor(name)
	if err != nil {
		return err
	}
	if _, ok := dir.children[base]; !ok {
		return vfs.ErrNotExist
	}
	delete(dir.children, base)
	for i, e := range dir.order {
		if e == base {
			dir.order = append(dir.order[:i], dir.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *FS) parentFor(name string) (*node, string, error) {
	elems := split(name)
	if len(elems) == 0 {
		return nil, "", fmt.Errorf("memfs: empty name")
	}
	if err := m.MkdirAll(strings.Join(elems[:len(elems)-1], "/")); err != nil {
		return nil, "", err
	}
	dir, err := m.lookup(strings.Join(elems[:len(elems)-1], "/"), true)
	if err != nil {
		return nil, "", err
	}
	return dir, elems[len(elems)-1], nil
}

type memHandle struct {
	*bytes.Reader
}

func (h *memHandle) Close() error { return nil }

type memDir struct {
	names []string
	pos   int
}

func (d *memDir) ReadEntry() (string, error) {
	if d.pos >= len(d.names) {
		return "", io.EOF
	}
	name := d.names[d.pos]
	d.pos++
	return name, nil
}

func (d *memDir) Close() error { return nil }
