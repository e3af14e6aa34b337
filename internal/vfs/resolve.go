package vfs

import (
	"fmt"
	"strings"
)

// maxSymlinkHops bounds symlink substitutions during resolution. The
// engine enforces this one bound to guarantee forward progress; there
// is no other cancellation primitive.
const maxSymlinkHops = 40

// Resolve canonicalizes the path: the returned Path is absolute,
// symlink-free and anchored to whichever backend ultimately owns the
// resolved location. Resolution proceeds one component at a time with a
// fresh mount-table lookup after every step, so a symlink target may
// cross from one backend into another mid-resolution.
//
// Components that do not exist are kept literally; resolving a path
// with no symlinks returns the normalized input, and Resolve is
// idempotent. A symlink chain longer than the substitution bound fails
// with ErrCyclicSymlink.
func (p *Path) Resolve() (*Path, error) {
	volume := p.volume
	resolved := make([]Component, 0, len(p.comps))
	work := append([]Component(nil), p.comps...)
	hops := 0

	for len(work) > 0 {
		c := work[0]
		work = work[1:]

		switch c.val {
		case ".":
			continue
		case "..":
			// The resolved prefix is symlink-free, so ".." is safe to
			// eliminate lexically here; beyond the root it vanishes.
			if len(resolved) > 0 {
				resolved = resolved[:len(resolved)-1]
			}
			continue
		}

		cand := append(resolved, c)
		be, rel, err := p.fs.locate(volume, cand, 0)
		if err != nil {
			return nil, NewError(OpResolve, p.String(), err)
		}
		m, err := be.Lstat(rel)
		if err != nil {
			if IsNotExist(err) {
				resolved = cand
				continue
			}
			return nil, NewError(OpResolve, p.String(), err)
		}
		if m.Kind != KindSymlink {
			resolved = cand
			continue
		}

		hops++
		if hops > maxSymlinkHops {
			return nil, NewError(OpResolve, p.String(), fmt.Errorf("%w: more than %d substitutions", ErrCyclicSymlink, maxSymlinkHops))
		}
		target, err := be.ReadLink(rel)
		if err != nil {
			return nil, NewError(OpResolve, p.String(), err)
		}
		tvol, rest := splitVolume(target)
		tcomps := splitTarget(rest)
		if tvol != "" || strings.HasPrefix(rest, "/") {
			// Absolute target: restart from its root (and volume, when
			// it names one) in the composite namespace.
			if tvol != "" {
				volume = tvol
			}
			resolved = resolved[:0]
		}
		work = append(tcomps, work...)
	}

	return &Path{fs: p.fs, volume: volume, comps: resolved}, nil
}

// splitTarget splits a symlink target into raw components, keeping "."
// and ".." for the resolution loop to interpret against the resolved
// prefix.
func splitTarget(s string) []Component {
	parts := strings.Split(s, "/")
	out := make([]Component, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		out = append(out, newComponent(part))
	}
	return out
}
