package vfs

import (
	"io"
	"path"

	"mosaicfs/internal/logging"
)

var walkLogger = logging.GetLogger().WithPrefix("walk")

// PathSet specifies a traversal: a root, a maximum depth and an
// optional name pattern matched against the final component of each
// candidate. The specification is restartable — Walk may be called any
// number of times — while each Walker it produces is single-pass and
// forward-only.
type PathSet struct {
	root     *Path
	maxDepth int    // < 0 means unbounded
	pattern  string // path.Match syntax; empty matches everything
}

// NewPathSet creates a traversal specification rooted at root, with
// unbounded depth and no name filter.
func NewPathSet(root *Path) *PathSet {
	return &PathSet{root: root, maxDepth: -1}
}

// WithMaxDepth bounds the traversal: depth 1 yields only the root's
// direct children.
func (ps *PathSet) WithMaxDepth(depth int) *PathSet {
	ps.maxDepth = depth
	return ps
}

// WithPattern filters yielded entries by a path.Match pattern applied
// to the entry's base name. The pattern filters output only; it never
// prunes descent.
func (ps *PathSet) WithPattern(pattern string) *PathSet {
	ps.pattern = pattern
	return ps
}

// Walk returns a fresh iterator over the specification.
func (ps *PathSet) Walk() *Walker {
	w := &Walker{ps: ps}
	h, err := ps.root.OpenDir()
	if err != nil {
		w.err = err
		return w
	}
	w.stack = []*walkFrame{{dir: ps.root, h: h, depth: 0}}
	return w
}

type walkFrame struct {
	dir   *Path
	h     DirHandle
	depth int
}

// Walker is a lazy, depth-first, single-pass iterator over a PathSet.
// Directory handles open one at a time as the walk descends; a subtree
// straddling a mount boundary is walked transparently as one namespace
// because every step re-resolves against the mount table.
//
// Usage follows the scanner idiom:
//
//	for w.Next() {
//		p := w.Path()
//	}
//	if err := w.Err(); err != nil { ... }
type Walker struct {
	ps    *PathSet
	stack []*walkFrame
	cur   *Path
	err   error
}

// Next advances to the next matching entry, reporting whether one is
// available.
func (w *Walker) Next() bool {
	if w.err != nil {
		return false
	}
	for len(w.stack) > 0 {
		frame := w.stack[len(w.stack)-1]
		name, err := frame.h.ReadEntry()
		if err == io.EOF {
			frame.h.Close()
			w.stack = w.stack[:len(w.stack)-1]
			continue
		}
		if err != nil {
			frame.h.Close()
			w.err = NewError(OpWalk, frame.dir.String(), err)
			w.closeAll()
			return false
		}
		if name == "." || name == ".." {
			continue
		}

		child := frame.dir.Join(name)
		depth := frame.depth + 1

		// Lstat, not stat: symlinked directories are yielded but never
		// entered, keeping the walk finite on acyclic trees.
		isDir := false
		if m, err := child.Lstat(); err == nil {
			isDir = m.Kind == KindDir
		}
		if isDir && (w.ps.maxDepth < 0 || depth < w.ps.maxDepth) {
			if h, err := child.OpenDir(); err == nil {
				w.stack = append(w.stack, &walkFrame{dir: child, h: h, depth: depth})
			} else {
				walkLogger.Warn("Skipping unreadable directory %s: %v", child.String(), err)
			}
		}

		if w.ps.pattern != "" {
			if ok, _ := path.Match(w.ps.pattern, name); !ok {
				continue
			}
		}
		w.cur = child
		return true
	}
	return false
}

// Path returns the entry produced by the last successful Next.
func (w *Walker) Path() *Path { return w.cur }

// Err returns the error that terminated the walk, if any.
func (w *Walker) Err() error { return w.err }

func (w *Walker) closeAll() {
	for _, frame := range w.stack {
		frame.h.Close()
	}
	w.stack = nil
}
