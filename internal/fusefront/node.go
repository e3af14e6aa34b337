package fusefront

import (
	"context"
	"io"
	"os"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"mosaicfs/internal/vfs"
)

// Dir is a directory node in the served namespace.
type Dir struct {
	srv  *Server
	path *vfs.Path
}

// Attr implements the Node interface, returning directory attributes.
func (d *Dir) Attr(_ context.Context, a *fuse.Attr) error {
	m, err := d.path.Stat()
	if err != nil {
		return toErrno(err)
	}
	fillAttr(a, m, d.srv)
	return nil
}

// Lookup implements the NodeStringLookuper interface, finding a child
// node.
func (d *Dir) Lookup(_ context.Context, name string) (fusefs.Node, error) {
	child := d.path.Join(name)
	m, err := child.Lstat()
	if err != nil {
		return nil, toErrno(err)
	}
	switch m.Kind {
	case vfs.KindDir:
		return &Dir{srv: d.srv, path: child}, nil
	case vfs.KindSymlink:
		return &Symlink{srv: d.srv, path: child}, nil
	default:
		return &File{srv: d.srv, path: child}, nil
	}
}

// ReadDirAll implements the HandleReadDirAller interface, listing
// directory contents across any mount boundaries under this directory.
func (d *Dir) ReadDirAll(_ context.Context) ([]fuse.Dirent, error) {
	dh, err := d.path.OpenDir()
	if err != nil {
		return nil, toErrno(err)
	}
	defer dh.Close()

	entries := []fuse.Dirent{
		{Name: ".", Type: fuse.DT_Dir},
		{Name: "..", Type: fuse.DT_Dir},
	}
	for {
		name, err := dh.ReadEntry()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, toErrno(err)
		}
		child := d.path.Join(name)
		dt := fuse.DT_File
		if m, err := child.Lstat(); err == nil {
			switch m.Kind {
			case vfs.KindDir:
				dt = fuse.DT_Dir
			case vfs.KindSymlink:
				dt = fuse.DT_Link
			}
		}
		entries = append(entries, fuse.Dirent{Name: name, Type: dt})
	}
	return entries, nil
}

// File is a regular-file node in the served namespace.
type File struct {
	srv  *Server
	path *vfs.Path
}

// Attr implements the Node interface, returning the file's attributes.
func (f *File) Attr(_ context.Context, a *fuse.Attr) error {
	m, err := f.path.Stat()
	if err != nil {
		return toErrno(err)
	}
	fillAttr(a, m, f.srv)
	return nil
}

// Open implements the NodeOpener interface, opening the backend file.
func (f *File) Open(_ context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fusefs.Handle, error) {
	flags := int(req.Flags)
	if flags&os.O_WRONLY != 0 || flags&os.O_RDWR != 0 {
		return nil, toErrno(os.ErrPermission)
	}
	fh, err := f.path.Open(os.O_RDONLY)
	if err != nil {
		return nil, toErrno(err)
	}
	resp.Flags |= fuse.OpenDirectIO
	return &Handle{fh: fh, path: f.path.String()}, nil
}

// Symlink is a symbolic-link node in the served namespace.
type Symlink struct {
	srv  *Server
	path *vfs.Path
}

// Attr implements the Node interface, reporting the link entry itself.
func (s *Symlink) Attr(_ context.Context, a *fuse.Attr) error {
	m, err := s.path.Lstat()
	if err != nil {
		return toErrno(err)
	}
	fillAttr(a, m, s.srv)
	return nil
}

// Readlink implements the NodeReadlinker interface, reporting the
// stored target unchanged.
func (s *Symlink) Readlink(_ context.Context, _ *fuse.ReadlinkRequest) (string, error) {
	target, err := s.path.ReadLink()
	if err != nil {
		return "", toErrno(err)
	}
	return target, nil
}

// Handle is an open read handle over a backend file.
type Handle struct {
	fh   vfs.FileHandle
	path string // for logging
}

// Read implements the HandleReader interface.
func (h *Handle) Read(_ context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	resp.Data = make([]byte, req.Size)
	n, err := h.fh.ReadAt(resp.Data, req.Offset)
	if err != nil && err != io.EOF {
		logger.Error("Failed to read from %s: %v", h.path, err)
		return toErrno(err)
	}
	resp.Data = resp.Data[:n]
	return nil
}

// Release implements the HandleReleaser interface.
func (h *Handle) Release(_ context.Context, _ *fuse.ReleaseRequest) error {
	return h.fh.Close()
}

func fillAttr(a *fuse.Attr, m *vfs.Metadata, srv *Server) {
	a.Mode = m.Mode
	a.Size = uint64(m.Size)
	a.Mtime = m.ModTime
	a.Atime = m.ModTime
	a.Ctime = m.ModTime
	a.Uid = srv.uid
	a.Gid = srv.gid
	a.Nlink = uint32(m.Nlink)
	a.BlockSize = 4096
	a.Blocks = uint64((m.Size + 511) / 512)
}
