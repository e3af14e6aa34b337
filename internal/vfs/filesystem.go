package vfs

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"mosaicfs/internal/logging"
)

var fsLogger = logging.GetLogger().WithPrefix("vfs")

// mountMaxDepth bounds recursive mount-table delegation so a
// self-referential mount graph cannot loop forever during lookup.
const mountMaxDepth = 32

// FileSystem is a composite namespace: an ordered mount table plus
// per-volume current-directory state, optionally backed by a backend of
// its own that serves whatever no mount entry claims.
//
// A FileSystem instance is not safe for concurrent mutation; callers
// that share one across goroutines supply their own locking.
type FileSystem struct {
	name      string
	backend   Backend // nil for a pure composite
	table     *mountTable
	volumes   map[string]*Path // current directory per volume
	curVol    string
	protected bool
}

// New creates a leaf filesystem served directly by the given backend.
func New(backend Backend) *FileSystem {
	f := &FileSystem{
		backend: backend,
		table:   newMountTable(),
		volumes: map[string]*Path{},
	}
	f.volumes[""] = &Path{fs: f}
	return f
}

// NewLeaf creates a leaf filesystem whose backend of the given class is
// constructed lazily on first operation, so that configuring many
// unreachable backends neither fails nor blocks up front.
func NewLeaf(class string, args map[string]string) (*FileSystem, error) {
	be, err := NewLazyBackend(class, args)
	if err != nil {
		return nil, err
	}
	return New(be), nil
}

// NewComposite creates a filesystem with no backend of its own; every
// request must be claimed by a mount entry.
func NewComposite() *FileSystem {
	return New(nil)
}

// Name returns the filesystem's registered name, if any.
func (f *FileSystem) Name() string { return f.name }

// Clone returns a filesystem with an independently mutable copy of the
// mount table and current-directory map. The underlying backend is
// shared, not duplicated: re-establishing archive or network state per
// clone would be wasteful and wrong. Clones of a protected filesystem
// are mutable.
func (f *FileSystem) Clone() *FileSystem {
	out := &FileSystem{
		backend: f.backend,
		table:   f.table.clone(),
		volumes: make(map[string]*Path, len(f.volumes)),
		curVol:  f.curVol,
	}
	for vol, cwd := range f.volumes {
		out.volumes[vol] = &Path{fs: out, volume: cwd.volume, comps: cwd.comps}
	}
	fsLogger.Debug("Cloned filesystem %q (%d mounts)", f.name, len(f.table.entries))
	return out
}

// PathFor constructs an absolute Path from a string that may be
// relative and may carry an explicit volume prefix. Relative paths are
// anchored at the volume's current directory; "." segments collapse and
// ".." segments are eliminated against preceding literal components
// where possible. Component representation follows the Unicode/byte
// heuristic documented on Component.
func (f *FileSystem) PathFor(s string) (*Path, error) {
	return f.pathFor(s, newComponent)
}

// BytePath constructs a Path whose components are byte-exact: each code
// point at or below 0xFF becomes a single byte, and any code point
// above 0xFF is an ErrInvalidPathSpec instead of a guess.
func (f *FileSystem) BytePath(s string) (*Path, error) {
	if _, err := byteExact(s); err != nil {
		return nil, NewError("path", s, err)
	}
	return f.pathFor(s, func(part string) Component {
		b, _ := byteExact(part)
		return componentFromBytes(b)
	})
}

func (f *FileSystem) pathFor(s string, decode func(string) Component) (*Path, error) {
	volume, rest := splitVolume(s)
	if volume == "" {
		volume = f.curVol
	}
	var base []Component
	if !strings.HasPrefix(rest, "/") {
		cwd, ok := f.volumes[volume]
		if !ok {
			return nil, NewError("path", s, fmt.Errorf("%w: %q", ErrNoSuchVolume, volume))
		}
		base = cwd.comps
	}
	comps := appendNormalized(base, rest, decode)
	return &Path{fs: f, volume: volume, comps: comps}, nil
}

// locate translates an absolute location into the backend that serves
// it plus a backend-relative name, delegating recursively through mount
// tables since a mount's source may itself be a composite.
func (f *FileSystem) locate(volume string, comps []Component, depth int) (Backend, string, error) {
	if depth > mountMaxDepth {
		return nil, "", fmt.Errorf("%w: mount delegation exceeds %d levels", ErrNoBackend, mountMaxDepth)
	}
	if entry, rel, ok := f.table.lookup(volume, comps); ok {
		src := entry.srcPath
		full := make([]Component, 0, len(src.comps)+len(rel))
		full = append(full, src.comps...)
		full = append(full, rel...)
		return entry.source.locate(src.volume, full, depth+1)
	}
	if f.backend != nil {
		return f.backend, relName(comps), nil
	}
	if volume != "" && !f.table.hasVolume(volume) {
		return nil, "", fmt.Errorf("%w: %q", ErrNoSuchVolume, volume)
	}
	return nil, "", ErrNoBackend
}

// mountChildNames returns the names of mount points bound one level
// below the given directory, following mount delegation the same way
// locate does. A mount point needs no physical entry in the underlying
// backend; it is a visible child of its parent directory regardless.
func (f *FileSystem) mountChildNames(volume string, comps []Component, depth int) []string {
	if depth > mountMaxDepth {
		return nil
	}
	var names []string
	for _, e := range f.table.entries {
		if e.volume == volume && len(e.point) == len(comps)+1 && isPrefix(comps, e.point) {
			names = append(names, e.point[len(comps)].val)
		}
	}
	if entry, rel, ok := f.table.lookup(volume, comps); ok {
		src := entry.srcPath
		full := make([]Component, 0, len(src.comps)+len(rel))
		full = append(full, src.comps...)
		full = append(full, rel...)
		names = append(names, entry.source.mountChildNames(src.volume, full, depth+1)...)
	}
	return names
}

// Mount binds dstPath in this filesystem's namespace to src, rooted at
// srcPath within src's own namespace. Both paths must be absolute; the
// destination is resolved recursively first, since a mount point may
// itself live under another mount. Mounting over an existing mount
// point replaces the prior binding.
func (f *FileSystem) Mount(src *FileSystem, srcPath, dstPath string) error {
	if f.protected {
		return NewError(OpMount, dstPath, ErrProtected)
	}
	if src == nil {
		return NewError(OpMount, dstPath, fmt.Errorf("%w: nil source filesystem", ErrInvalidPathSpec))
	}
	sp, err := f.absoluteIn(src, srcPath)
	if err != nil {
		return NewError(OpMount, srcPath, err)
	}
	dp, err := f.absoluteIn(f, dstPath)
	if err != nil {
		return NewError(OpMount, dstPath, err)
	}
	rdp, err := dp.Resolve()
	if err != nil {
		// A destination nothing serves yet (first mount into an empty
		// composite) is mounted at its normalized location.
		if IsNotExist(err) || isStructural(err) {
			rdp = dp
		} else {
			return err
		}
	}
	fsLogger.Info("Mounting %q at %s (source root %s)", src.name, rdp.String(), sp.String())
	f.table.insert(rdp.volume, rdp.comps, src, sp)
	if _, ok := f.volumes[rdp.volume]; !ok {
		f.volumes[rdp.volume] = &Path{fs: f, volume: rdp.volume}
	}
	return nil
}

// Unmount removes the mount entry bound exactly at dstPath.
func (f *FileSystem) Unmount(dstPath string) error {
	if f.protected {
		return NewError(OpUnmount, dstPath, ErrProtected)
	}
	dp, err := f.absoluteIn(f, dstPath)
	if err != nil {
		return NewError(OpUnmount, dstPath, err)
	}
	if !f.table.remove(dp.volume, dp.comps) {
		return NewError(OpUnmount, dstPath, fmt.Errorf("%w: nothing mounted at %s", ErrNoBackend, dp.String()))
	}
	return nil
}

// absoluteIn normalizes s against target and requires it be absolute.
func (f *FileSystem) absoluteIn(target *FileSystem, s string) (*Path, error) {
	_, rest := splitVolume(s)
	if !strings.HasPrefix(rest, "/") {
		return nil, fmt.Errorf("%w: %q is not absolute", ErrInvalidPathSpec, s)
	}
	return target.PathFor(s)
}

// isStructural reports whether the error indicates no backend serves
// the location rather than a backend I/O fault.
func isStructural(err error) bool {
	return errors.Is(err, ErrNoBackend) || errors.Is(err, ErrNoSuchVolume)
}

// Chdir sets the current directory of the path's volume. The target
// must exist and be a directory when its backend is reachable.
func (f *FileSystem) Chdir(s string) error {
	if f.protected {
		return NewError(OpChdir, s, ErrProtected)
	}
	p, err := f.PathFor(s)
	if err != nil {
		return err
	}
	m, err := p.Stat()
	if err != nil {
		return NewError(OpChdir, p.String(), err)
	}
	if m.Kind != KindDir {
		return NewError(OpChdir, p.String(), ErrNotDir)
	}
	f.volumes[p.volume] = p
	f.curVol = p.volume
	return nil
}

// Getwd returns the current directory of the active volume.
func (f *FileSystem) Getwd() *Path {
	return f.volumes[f.curVol]
}

// Volume returns the active volume identifier.
func (f *FileSystem) Volume() string { return f.curVol }

// SetVolume switches the active volume, registering it with a root
// current directory if the filesystem has not seen it before.
func (f *FileSystem) SetVolume(volume string) error {
	if f.protected {
		return NewError(OpChdir, volume, ErrProtected)
	}
	if _, ok := f.volumes[volume]; !ok {
		f.volumes[volume] = &Path{fs: f, volume: volume}
	}
	f.curVol = volume
	return nil
}

// Stat is the interception-surface equivalent of the backend contract's
// stat: construct, resolve, query.
func (f *FileSystem) Stat(name string) (*Metadata, error) {
	p, err := f.PathFor(name)
	if err != nil {
		return nil, err
	}
	return p.Stat()
}

// Lstat queries the entry itself without following a final symlink.
func (f *FileSystem) Lstat(name string) (*Metadata, error) {
	p, err := f.PathFor(name)
	if err != nil {
		return nil, err
	}
	return p.Lstat()
}

// Open opens a file in the composite namespace.
func (f *FileSystem) Open(name string, flag int) (FileHandle, error) {
	p, err := f.PathFor(name)
	if err != nil {
		return nil, err
	}
	return p.Open(flag)
}

// OpenDir opens a directory in the composite namespace for listing.
func (f *FileSystem) OpenDir(name string) (DirHandle, error) {
	p, err := f.PathFor(name)
	if err != nil {
		return nil, err
	}
	return p.OpenDir()
}

// TempDir returns a scratch directory path served by whichever backend
// owns the active volume's root.
func (f *FileSystem) TempDir() (*Path, error) {
	be, _, err := f.locate(f.curVol, nil, 0)
	if err != nil {
		return nil, NewError("tempdir", "", err)
	}
	dir, err := be.TempDir()
	if err != nil {
		return nil, NewError("tempdir", "", err)
	}
	return f.PathFor("/" + strings.TrimPrefix(dir, "/"))
}

// Process-lifetime distinguished instances: real is the protected
// OS-backed leaf, root a mutable clone of it used as the default
// namespace. Real's backend connects lazily like any other.
var (
	distOnce sync.Once
	realFS   *FileSystem
	rootFS   *FileSystem
)

func initDistinguished() {
	distOnce.Do(func() {
		be, err := NewLazyBackend("os", nil)
		if err != nil {
			// The os backend registers from its package init; a build
			// that wires Real without it is broken outright.
			panic(fmt.Sprintf("vfs: os backend unavailable: %v", err))
		}
		realFS = New(be)
		realFS.name = "real"
		realFS.protected = true
		rootFS = realFS.Clone()
		rootFS.name = "root"
	})
}

// Real returns the unmodifiable, OS-backed base filesystem.
func Real() *FileSystem {
	initDistinguished()
	return realFS
}

// Root returns the mutable default namespace, a clone of Real.
func Root() *FileSystem {
	initDistinguished()
	return rootFS
}

// Registry maps names to FileSystem instances so declarative
// configuration can reference them for cloning and mounting. A fresh
// registry is pre-seeded with the distinguished real and root
// instances.
type Registry struct {
	byName map[string]*FileSystem
}

// NewRegistry returns a registry holding real and root.
func NewRegistry() *Registry {
	return &Registry{byName: map[string]*FileSystem{
		"real": Real(),
		"root": Root(),
	}}
}

// Get returns the named filesystem.
func (r *Registry) Get(name string) (*FileSystem, bool) {
	f, ok := r.byName[name]
	return f, ok
}

// Register binds a name to a filesystem. The "real" binding is
// unconditionally protected; other duplicate names are configuration
// errors.
func (r *Registry) Register(name string, f *FileSystem) error {
	if name == "real" {
		return NewError(OpConfig, name, ErrProtected)
	}
	if _, dup := r.byName[name]; dup {
		return NewError(OpConfig, name, fmt.Errorf("%w: filesystem %q already registered", ErrInvalidPathSpec, name))
	}
	f.name = name
	r.byName[name] = f
	return nil
}
