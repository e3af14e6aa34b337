package vfs

import (
	"mosaicfs/internal/logging"
)

var mountLogger = logging.GetLogger().WithPrefix("mount")

// mountEntry binds a subtree of the composite namespace to another
// filesystem: requests under point are served by source, rooted at
// srcPath. The mount point is always absolute and normalized within the
// owning filesystem's namespace.
type mountEntry struct {
	volume  string
	point   []Component
	source  *FileSystem
	srcPath *Path
	seq     int // insertion order, later wins ties
}

// mountTable is the ordered set of mount entries owned by one
// FileSystem. No two entries share an identical mount point; inserting
// a duplicate replaces the superseded entry.
type mountTable struct {
	entries []*mountEntry
	nextSeq int
}

func newMountTable() *mountTable {
	return &mountTable{}
}

// clone deep-copies the table. Entries are copied, the referenced
// filesystems and source paths are shared (paths are immutable and
// source filesystems are live references by design).
func (t *mountTable) clone() *mountTable {
	out := &mountTable{
		entries: make([]*mountEntry, len(t.entries)),
		nextSeq: t.nextSeq,
	}
	for i, e := range t.entries {
		cp := *e
		out.entries[i] = &cp
	}
	return out
}

// insert adds an entry, replacing any existing entry with an identical
// mount point.
func (t *mountTable) insert(volume string, point []Component, source *FileSystem, srcPath *Path) {
	for i, e := range t.entries {
		if e.volume == volume && samePoint(e.point, point) {
			mountLogger.Debug("Replacing mount entry at %s", relName(point))
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			break
		}
	}
	t.entries = append(t.entries, &mountEntry{
		volume:  volume,
		point:   point,
		source:  source,
		srcPath: srcPath,
		seq:     t.nextSeq,
	})
	t.nextSeq++
}

// remove deletes the entry with exactly the given mount point,
// reporting whether one existed.
func (t *mountTable) remove(volume string, point []Component) bool {
	for i, e := range t.entries {
		if e.volume == volume && samePoint(e.point, point) {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return true
		}
	}
	return false
}

// lookup finds the most specific entry whose mount point is a prefix of
// the given path: greatest component count wins, ties broken by most
// recent insertion. It returns the matched entry and the remaining
// backend-relative components.
func (t *mountTable) lookup(volume string, comps []Component) (*mountEntry, []Component, bool) {
	var best *mountEntry
	for _, e := range t.entries {
		if e.volume != volume || !isPrefix(e.point, comps) {
			continue
		}
		if best == nil || len(e.point) > len(best.point) ||
			(len(e.point) == len(best.point) && e.seq > best.seq) {
			best = e
		}
	}
	if best == nil {
		return nil, nil, false
	}
	return best, comps[len(best.point):], true
}

// hasVolume reports whether any entry serves the given volume.
func (t *mountTable) hasVolume(volume string) bool {
	for _, e := range t.entries {
		if e.volume == volume {
			return true
		}
	}
	return false
}

func samePoint(a, b []Component) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].val != b[i].val {
			return false
		}
	}
	return true
}

func isPrefix(prefix, comps []Component) bool {
	if len(prefix) > len(comps) {
		return false
	}
	for i := range prefix {
		if prefix[i].val != comps[i].val {
			return false
		}
	}
	return true
}
