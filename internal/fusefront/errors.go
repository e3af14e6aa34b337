package fusefront

import (
	"errors"
	"os"
	"syscall"

	"mosaicfs/internal/vfs"
)

// toErrno translates engine errors into the syscall errors FUSE
// expects.
func toErrno(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, vfs.ErrNotExist), errors.Is(err, os.ErrNotExist):
		return syscall.ENOENT
	case errors.Is(err, vfs.ErrNotDir):
		return syscall.ENOTDIR
	case errors.Is(err, vfs.ErrCyclicSymlink):
		return syscall.ELOOP
	case errors.Is(err, vfs.ErrNoSuchVolume), errors.Is(err, vfs.ErrNoBackend):
		return syscall.ENODEV
	case errors.Is(err, vfs.ErrInvalidPathSpec):
		return syscall.EINVAL
	case errors.Is(err, vfs.ErrProtected):
		return syscall.EROFS
	case errors.Is(err, os.ErrPermission):
		return syscall.EACCES
	default:
		logger.Debug("Unknown error type, returning EIO: %v", err)
		return syscall.EIO
	}
}
