// Package fusefront exposes a composite vfs.FileSystem read-only to
// the host kernel through FUSE.
package fusefront

import (
	"fmt"
	"os"
	"time"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"mosaicfs/internal/logging"
	"mosaicfs/internal/vfs"
)

var logger = logging.GetLogger().WithPrefix("fuse")

// Server bridges a composite filesystem to a FUSE mount point.
type Server struct {
	fsys *vfs.FileSystem
	conn *fuse.Conn
	uid  uint32
	gid  uint32
}

// NewServer creates a FUSE server for the given composite filesystem.
func NewServer(fsys *vfs.FileSystem) *Server {
	return &Server{
		fsys: fsys,
		uid:  uint32(os.Getuid()),
		gid:  uint32(os.Getgid()),
	}
}

// Root implements the fusefs.FS interface, returning the root node.
func (s *Server) Root() (fusefs.Node, error) {
	p, err := s.fsys.PathFor("/")
	if err != nil {
		return nil, toErrno(err)
	}
	return &Dir{srv: s, path: p}, nil
}

// Mount attaches the composite namespace at mountPoint and begins
// serving. It returns once the mount point is live.
func (s *Server) Mount(mountPoint string) error {
	logger.Info("Mounting composite namespace at %s", mountPoint)

	c, err := fuse.Mount(mountPoint,
		fuse.FSName("mosaicfs"),
		fuse.Subtype("mosaicfs"),
		fuse.ReadOnly(),
		fuse.DefaultPermissions(),
	)
	if err != nil {
		return fmt.Errorf("mount failed: %w", err)
	}
	s.conn = c

	go func() {
		if err := fusefs.Serve(c, s); err != nil {
			logger.Error("FUSE server error: %v", err)
		}
	}()

	if err := waitForMount(mountPoint); err != nil {
		c.Close()
		return fmt.Errorf("mount point failed to initialize: %w", err)
	}

	logger.Info("Filesystem mounted successfully")
	return nil
}

// Unmount cleanly detaches the filesystem.
func (s *Server) Unmount(mountPoint string) error {
	logger.Info("Unmounting filesystem from %s", mountPoint)
	if s.conn == nil {
		return nil
	}
	if err := fuse.Unmount(mountPoint); err != nil {
		logger.Error("Unmount failed: %v", err)
		return err
	}
	return s.conn.Close()
}

func waitForMount(mountPoint string) error {
	for i := 0; i < 30; i++ {
		info, err := os.Stat(mountPoint)
		if err == nil && info.IsDir() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("mount point not available after 3 seconds")
}
