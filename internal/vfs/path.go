package vfs

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"mosaicfs/internal/logging"
)

var pathLogger = logging.GetLogger().WithPrefix("path")

// Component is a single element of a path. It reconciles two
// incompatible representations of the same name: raw byte sequences and
// Unicode text. The classification is decided once at construction and
// never revisited.
//
// Heuristic (best-effort, knowingly lossy):
//   - a valid UTF-8 name is treated as text;
//   - a name with bytes in 0x80-0xFF that does not decode is preserved
//     unchanged as opaque bytes;
//   - a pure-ASCII name is unambiguous either way.
//
// Callers needing certainty use the byte-exact construction path on
// FileSystem, which fails loudly instead of guessing.
type Component struct {
	val  string
	text bool
}

// newComponent classifies a name of unclear representation.
func newComponent(s string) Component {
	text := utf8.ValidString(s)
	if !text {
		pathLogger.Trace("component %q kept as opaque bytes", s)
	}
	return Component{val: s, text: text}
}

// componentFromBytes builds a component holding exact bytes. ASCII-only
// names are marked as text since both views agree exactly.
func componentFromBytes(b []byte) Component {
	ascii := true
	for _, c := range b {
		if c >= 0x80 {
			ascii = false
			break
		}
	}
	return Component{val: string(b), text: ascii}
}

// String returns the component's name. For opaque components this is
// the raw byte sequence carried through unchanged.
func (c Component) String() string { return c.val }

// Bytes returns the component's byte-exact view.
func (c Component) Bytes() []byte { return []byte(c.val) }

// IsText reports whether the component was classified as Unicode text.
func (c Component) IsText() bool { return c.text }

func (c Component) isDotDot() bool { return c.val == ".." }

// splitVolume splits an optional volume prefix ("vol:rest") off a path
// string. A colon only counts as a volume separator when it appears
// before the first slash.
func splitVolume(s string) (volume, rest string) {
	idx := strings.IndexByte(s, ':')
	if idx <= 0 || strings.Contains(s[:idx], "/") {
		return "", s
	}
	return s[:idx], s[idx+1:]
}

// appendNormalized appends the slash-separated parts of rest onto base,
// collapsing "." and eliminating ".." against preceding literal
// components. A leading ".." that cannot be eliminated without backend
// knowledge is kept in place.
func appendNormalized(base []Component, rest string, decode func(string) Component) []Component {
	out := append([]Component(nil), base...)
	for _, part := range strings.Split(rest, "/") {
		switch part {
		case "", ".":
			// nothing to add
		case "..":
			if n := len(out); n > 0 && !out[n-1].isDotDot() {
				out = out[:n-1]
			} else {
				out = append(out, Component{val: "..", text: true})
			}
		default:
			out = append(out, decode(part))
		}
	}
	return out
}

// Path is an immutable, absolute, volume-qualified component sequence
// bound to the FileSystem that produced it. It captures an absolute
// location at construction; later changes to the filesystem's current
// directory never re-anchor it. The path also carries the stat and
// lstat metadata caches.
type Path struct {
	fs     *FileSystem
	volume string
	comps  []Component

	statC   *Metadata
	lstatC  *Metadata
	lastErr error
}

// String returns the path in "volume:/a/b" form ("" volume omitted).
func (p *Path) String() string {
	var b strings.Builder
	if p.volume != "" {
		b.WriteString(p.volume)
		b.WriteByte(':')
	}
	if len(p.comps) == 0 {
		b.WriteByte('/')
		return b.String()
	}
	for _, c := range p.comps {
		b.WriteByte('/')
		b.WriteString(c.val)
	}
	return b.String()
}

// Volume returns the path's volume identifier.
func (p *Path) Volume() string { return p.volume }

// Components returns the path's component names.
func (p *Path) Components() []string {
	out := make([]string, len(p.comps))
	for i, c := range p.comps {
		out[i] = c.val
	}
	return out
}

// Base returns the final component's name, or "/" for the root.
func (p *Path) Base() string {
	if len(p.comps) == 0 {
		return "/"
	}
	return p.comps[len(p.comps)-1].val
}

// IsRoot reports whether the path is its volume's root.
func (p *Path) IsRoot() bool { return len(p.comps) == 0 }

// FileSystem returns the filesystem the path is bound to.
func (p *Path) FileSystem() *FileSystem { return p.fs }

// Parent returns the path's parent directory. The parent of the root
// is the root; caches are not inherited.
func (p *Path) Parent() *Path {
	if len(p.comps) == 0 {
		return p
	}
	return &Path{fs: p.fs, volume: p.volume, comps: p.comps[:len(p.comps)-1]}
}

// Join returns the path extended by the given relative name, normalized
// with the same rules as construction.
func (p *Path) Join(name string) *Path {
	comps := appendNormalized(p.comps, name, newComponent)
	return &Path{fs: p.fs, volume: p.volume, comps: comps}
}

// Equal reports whether two paths name the same location: same volume
// and byte-identical component sequences. The owning filesystems are
// not compared.
func (p *Path) Equal(o *Path) bool {
	if p.volume != o.volume || len(p.comps) != len(o.comps) {
		return false
	}
	for i := range p.comps {
		if p.comps[i].val != o.comps[i].val {
			return false
		}
	}
	return true
}

// Stat queries metadata for the path, following symlinks across mount
// boundaries, and refreshes the stat cache. Every call performs a fresh
// backend round-trip.
func (p *Path) Stat() (*Metadata, error) {
	rp, err := p.Resolve()
	if err != nil {
		return nil, err
	}
	be, rel, err := p.fs.locate(rp.volume, rp.comps, 0)
	if err != nil {
		return nil, NewError(OpStat, p.String(), err)
	}
	m, err := be.Lstat(rel)
	if err != nil {
		return nil, NewError(OpStat, p.String(), err)
	}
	p.statC = m
	return m, nil
}

// Lstat queries metadata for the entry itself, without following a
// final symlink, and refreshes the lstat cache. Unless the entry is a
// symlink the stat cache is refreshed too, since the results cannot
// differ; for a symlink the two caches diverge on purpose.
func (p *Path) Lstat() (*Metadata, error) {
	base := p
	if len(p.comps) > 0 {
		rparent, err := p.Parent().Resolve()
		if err != nil {
			return nil, err
		}
		base = &Path{fs: p.fs, volume: rparent.volume, comps: append(append([]Component(nil), rparent.comps...), p.comps[len(p.comps)-1])}
	}
	be, rel, err := p.fs.locate(base.volume, base.comps, 0)
	if err != nil {
		return nil, NewError(OpLstat, p.String(), err)
	}
	m, err := be.Lstat(rel)
	if err != nil {
		return nil, NewError(OpLstat, p.String(), err)
	}
	p.lstatC = m
	if m.Kind != KindSymlink {
		p.statC = m
	}
	return m, nil
}

// statCached returns the cached stat metadata, populating it with one
// backend round-trip if empty. A missing entry yields nil without
// recording an error; permission and I/O faults are recorded for Err.
func (p *Path) statCached() *Metadata {
	if p.statC == nil {
		if _, err := p.Stat(); err != nil {
			if !IsNotExist(err) {
				p.lastErr = err
			}
			return nil
		}
	}
	return p.statC
}

func (p *Path) lstatCached() *Metadata {
	if p.lstatC == nil {
		if _, err := p.Lstat(); err != nil {
			if !IsNotExist(err) {
				p.lastErr = err
			}
			return nil
		}
	}
	return p.lstatC
}

// Exists reports whether the path names an existing entry. A missing
// entry answers false, never an error; faults other than non-existence
// are recorded and available through Err.
func (p *Path) Exists() bool { return p.statCached() != nil }

// IsDir reports whether the path names a directory.
func (p *Path) IsDir() bool {
	m := p.statCached()
	return m != nil && m.Kind == KindDir
}

// IsFile reports whether the path names a regular file.
func (p *Path) IsFile() bool {
	m := p.statCached()
	return m != nil && m.Kind == KindFile
}

// IsSymlink reports whether the entry itself is a symbolic link.
func (p *Path) IsSymlink() bool {
	m := p.lstatCached()
	return m != nil && m.Kind == KindSymlink
}

// Size returns the entry's size, or 0 when it does not exist.
func (p *Path) Size() int64 {
	m := p.statCached()
	if m == nil {
		return 0
	}
	return m.Size
}

// Err returns the last fault recorded by a convenience predicate, or
// nil. Checked operations (Stat, Lstat, Open, ...) report their errors
// directly and do not use this channel.
func (p *Path) Err() error { return p.lastErr }

// Open opens the file the path resolves to.
func (p *Path) Open(flag int) (FileHandle, error) {
	rp, err := p.Resolve()
	if err != nil {
		return nil, err
	}
	be, rel, err := p.fs.locate(rp.volume, rp.comps, 0)
	if err != nil {
		return nil, NewError(OpOpen, p.String(), err)
	}
	fh, err := be.Open(rel, flag)
	if err != nil {
		return nil, NewError(OpOpen, p.String(), err)
	}
	return fh, nil
}

// OpenDir opens the directory the path resolves to for entry listing.
// The listing is the union of what the backend serves and the mount
// points bound one level below the directory: a mounted subtree is
// visible even when the backend underneath has no entry at the mount
// point's name.
func (p *Path) OpenDir() (DirHandle, error) {
	rp, err := p.Resolve()
	if err != nil {
		return nil, err
	}
	be, rel, err := p.fs.locate(rp.volume, rp.comps, 0)
	if err != nil {
		return nil, NewError(OpOpenDir, p.String(), err)
	}
	mounts := p.fs.mountChildNames(rp.volume, rp.comps, 0)
	dh, err := be.OpenDir(rel)
	if err != nil {
		// A directory the backend does not know about can still be a
		// mount-point parent; its mounted children are all it holds.
		if IsNotExist(err) && len(mounts) > 0 {
			return &mergedDir{extra: mounts, seen: map[string]bool{}}, nil
		}
		return nil, NewError(OpOpenDir, p.String(), err)
	}
	if len(mounts) == 0 {
		return dh, nil
	}
	return &mergedDir{h: dh, extra: mounts, seen: map[string]bool{}}, nil
}

// mergedDir yields the entries of an underlying directory handle
// followed by mount-point names the backend does not list. A name the
// backend already produced is not repeated.
type mergedDir struct {
	h     DirHandle
	extra []string
	seen  map[string]bool
	pos   int
}

func (d *mergedDir) ReadEntry() (string, error) {
	for d.h != nil {
		name, err := d.h.ReadEntry()
		if err == io.EOF {
			d.h.Close()
			d.h = nil
			break
		}
		if err != nil {
			return "", err
		}
		d.seen[name] = true
		return name, nil
	}
	for d.pos < len(d.extra) {
		name := d.extra[d.pos]
		d.pos++
		if !d.seen[name] {
			return name, nil
		}
	}
	return "", io.EOF
}

func (d *mergedDir) Close() error {
	if d.h != nil {
		return d.h.Close()
	}
	return nil
}

// ReadLink returns the symlink target stored at the entry itself,
// without interpretation.
func (p *Path) ReadLink() (string, error) {
	base := p
	if len(p.comps) > 0 {
		rparent, err := p.Parent().Resolve()
		if err != nil {
			return "", err
		}
		base = &Path{fs: p.fs, volume: rparent.volume, comps: append(append([]Component(nil), rparent.comps...), p.comps[len(p.comps)-1])}
	}
	be, rel, err := p.fs.locate(base.volume, base.comps, 0)
	if err != nil {
		return "", NewError(OpReadLink, p.String(), err)
	}
	target, err := be.ReadLink(rel)
	if err != nil {
		return "", NewError(OpReadLink, p.String(), err)
	}
	return target, nil
}

// relName joins components into the backend-relative name form; "."
// names the backend root.
func relName(comps []Component) string {
	if len(comps) == 0 {
		return "."
	}
	parts := make([]string, len(comps))
	for i, c := range comps {
		parts[i] = c.val
	}
	return strings.Join(parts, "/")
}

// byteExact converts a string to its byte-exact form, mapping each code
// point at or below 0xFF to a single byte. Code points above 0xFF have
// no byte representation and fail.
func byteExact(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFF {
			return nil, fmt.Errorf("%w: code point %U has no byte representation", ErrInvalidPathSpec, r)
		}
		out = append(out, byte(r))
	}
	return out, nil
}
