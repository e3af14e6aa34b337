// Package zipfs provides a read-only backend over a zip archive. The
// archive is opened lazily on the first operation, so mounting many
// archives is free until one is actually touched. Deflate members
// decompress through klauspost/compress.
package zipfs

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/flate"

	"mosaicfs/internal/logging"
	"mosaicfs/internal/vfs"
)

var logger = logging.GetLogger().WithPrefix("zipfs")

const maxLinkHops = 40

func init() {
	vfs.RegisterBackend("zip", func(args map[string]string) (vfs.Backend, error) {
		path := args["path"]
		if path == "" {
			return nil, fmt.Errorf("%w: zip backend requires a path argument", vfs.ErrInvalidPathSpec)
		}
		return New(path), nil
	})
}

type entry struct {
	file     *zip.File // nil for synthesized directories
	meta     *vfs.Metadata
	children []string
}

// FS is a read-only zip archive backend.
type FS struct {
	path string

	once   sync.Once
	err    error
	reader *zip.ReadCloser
	index  map[string]*entry
}

// New returns a backend for the archive at the given host path. The
// archive is not opened until the first operation.
func New(path string) *FS {
	return &FS{path: path}
}

// ensure opens the archive and builds the member index, synthesizing
// directory entries for parents the archive does not list explicitly.
func (z *FS) ensure() error {
	z.once.Do(func() {
		logger.Debug("Opening archive %s", z.path)
		r, err := zip.OpenReader(z.path)
		if err != nil {
			z.err = fmt.Errorf("zipfs: open %s: %w", z.path, err)
			return
		}
		r.RegisterDecompressor(zip.Deflate, func(in io.Reader) io.ReadCloser {
			return flate.NewReader(in)
		})
		z.reader = r

		z.index = map[string]*entry{
			".": {meta: &vfs.Metadata{Kind: vfs.KindDir, Mode: iofs.ModeDir | 0o555, ModTime: time.Now(), Nlink: 2}},
		}
		for _, f := range r.File {
			name := strings.Trim(f.Name, "/")
			if name == "" {
				continue
			}
			z.addParents(name)
			fi := f.FileInfo()
			e := &entry{file: f, meta: vfs.MetadataFromFileInfo(fi)}
			if fi.IsDir() {
				if prior, ok := z.index[name]; ok {
					e.children = prior.children
				}
			}
			z.index[name] = e
			z.link(name)
		}
		logger.Info("Indexed %d members from %s", len(z.index)-1, z.path)
	})
	return z.err
}

func (z *FS) addParents(name string) {
	for dir := parent(name); dir != "."; dir = parent(dir) {
		if _, ok := z.index[dir]; ok {
			continue
		}
		z.index[dir] = &entry{meta: &vfs.Metadata{Kind: vfs.KindDir, Mode: iofs.ModeDir | 0o555, ModTime: time.Now(), Nlink: 2}}
		z.link(dir)
	}
}

func (z *FS) link(name string) {
	p := z.index[parent(name)]
	base := name
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		base = name[i+1:]
	}
	for _, c := range p.children {
		if c == base {
			return
		}
	}
	p.children = append(p.children, base)
}

func parent(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[:i]
	}
	return "."
}

func clean(name string) string {
	name = strings.Trim(name, "/")
	if name == "" {
		return "."
	}
	return name
}

func (z *FS) entryFor(name string) (*entry, error) {
	if err := z.ensure(); err != nil {
		return nil, err
	}
	e, ok := z.index[clean(name)]
	if !ok {
		return nil, vfs.ErrNotExist
	}
	return e, nil
}

// Stat implements vfs.Backend. Symlink members resolve within the
// archive; an absolute target points outside the archive's namespace
// and reads as missing here, which the engine's resolver handles.
func (z *FS) Stat(name string) (*vfs.Metadata, error) {
	return z.stat(name, 0)
}

func (z *FS) stat(name string, hops int) (*vfs.Metadata, error) {
	if hops > maxLinkHops {
		return nil, vfs.ErrCyclicSymlink
	}
	e, err := z.entryFor(name)
	if err != nil {
		return nil, err
	}
	if e.meta.Kind == vfs.KindSymlink {
		target, err := z.ReadLink(name)
		if err != nil {
			return nil, err
		}
		if !strings.HasPrefix(target, "/") {
			return z.stat(path.Join(parent(clean(name)), target), hops+1)
		}
		return nil, vfs.ErrNotExist
	}
	return e.meta, nil
}

// Lstat implements vfs.Backend.
func (z *FS) Lstat(name string) (*vfs.Metadata, error) {
	e, err := z.entryFor(name)
	if err != nil {
		return nil, err
	}
	return e.meta, nil
}

// Open implements vfs.Backend. Compressed members are sequential, so
// the content is materialized to honor ReadAt.
func (z *FS) Open(name string, flag int) (vfs.FileHandle, error) {
	if flag&(os.O_WRONLY|os.O_RDWR) != 0 {
		return nil, fmt.Errorf("zipfs: %s: archive is read-only", name)
	}
	e, err := z.entryFor(name)
	if err != nil {
		return nil, err
	}
	if e.file == nil || e.meta.Kind == vfs.KindDir {
		return nil, fmt.Errorf("zipfs: %s: is a directory", name)
	}
	rc, err := e.file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("zipfs: read %s: %w", name, err)
	}
	return &zipHandle{Reader: bytes.NewReader(data)}, nil
}

// OpenDir implements vfs.Backend.
func (z *FS) OpenDir(name string) (vfs.DirHandle, error) {
	e, err := z.entryFor(name)
	if err != nil {
		return nil, err
	}
	if e.meta.Kind != vfs.KindDir {
		return nil, vfs.ErrNotDir
	}
	return &zipDir{names: append([]string(nil), e.children...)}, nil
}

// ReadLink implements vfs.Backend. A symlink member stores its target
// as the member content.
func (z *FS) ReadLink(name string) (string, error) {
	e, err := z.entryFor(name)
	if err != nil {
		return "", err
	}
	if e.meta.Kind != vfs.KindSymlink || e.file == nil {
		return "", fmt.Errorf("zipfs: %s: not a symlink", name)
	}
	rc, err := e.file.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	target, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(target), nil
}

// Clone implements vfs.Backend. The open archive and its index are
// shared; re-reading the archive per clone would be wasteful.
func (z *FS) Clone(args map[string]string) (vfs.Backend, error) {
	return z, nil
}

// TempDir implements vfs.Backend. An archive has no writable scratch
// space; the root is the only name guaranteed to exist, as with an
// osfs root the host temp dir falls outside of.
func (z *FS) TempDir() (string, error) {
	return ".", nil
}

type zipHandle struct {
	*bytes.Reader
}

func (h *zipHandle) Close() error { return nil }

type zipDir struct {
	names []string
	pos   int
}

func (d *zipDir) ReadEntry() (string, error) {
	if d.pos >= len(d.names) {
		return "", io.EOF
	}
	name := d.names[d.pos]
	d.pos++
	return name, nil
}

func (d *zipDir) Close() error { return nil }
