package vfs

import (
	"fmt"
	"io"
	"sync"
)

// FileHandle is an open file belonging to some backend. Backends whose
// storage is not random-access materialize the content so ReadAt still
// works.
type FileHandle interface {
	io.Reader
	io.ReaderAt
	io.Closer
}

// DirHandle reads the entries of an open directory one at a time.
// ReadEntry returns io.EOF when the listing is exhausted. Entry order
// is whatever the backend's listing produces.
type DirHandle interface {
	ReadEntry() (string, error)
	Close() error
}

// Backend is the capability contract every pluggable filesystem
// implementation satisfies. All paths are slash-separated and relative
// to the backend's own root; "." names the root itself.
//
// Stat follows symlinks within the backend's namespace, Lstat reports
// the entry itself. ReadLink returns a symlink's stored target without
// interpretation; the engine's resolver decides what it means in the
// composite namespace.
type Backend interface {
	Stat(name string) (*Metadata, error)
	Lstat(name string) (*Metadata, error)
	Open(name string, flag int) (FileHandle, error)
	OpenDir(name string) (DirHandle, error)
	ReadLink(name string) (string, error)

	// Clone returns a handle for the same underlying store, adjusted
	// by the given arguments. Implementations share connection state
	// rather than re-establishing it.
	Clone(args map[string]string) (Backend, error)

	// TempDir returns a backend-relative directory suitable for
	// scratch files.
	TempDir() (string, error)
}

// BackendFactory constructs a backend from string arguments. Concrete
// backends register a factory under their class name so declarative
// configuration can name them.
type BackendFactory func(args map[string]string) (Backend, error)

var (
	factoryMu sync.RWMutex
	factories = map[string]BackendFactory{}
)

// RegisterBackend registers a factory under a class name. Backends call
// this from their package init; a duplicate class name panics, since it
// indicates two packages claiming the same identifier.
func RegisterBackend(class string, factory BackendFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if _, dup := factories[class]; dup {
		panic(fmt.Sprintf("vfs: backend class %q registered twice", class))
	}
	factories[class] = factory
}

// NewBackend constructs a backend of the given class.
func NewBackend(class string, args map[string]string) (Backend, error) {
	factoryMu.RLock()
	factory, ok := factories[class]
	factoryMu.RUnlock()
	if !ok {
		return nil, NewError(OpConfig, class, fmt.Errorf("%w: unknown backend class %q", ErrInvalidPathSpec, class))
	}
	return factory(args)
}

// lazyBackend defers construction of its target until the first
// operation, so that configuring unreachable backends neither fails nor
// blocks at mount time. The first operation's construction error is
// sticky and repeated for every subsequent call.
type lazyBackend struct {
	class string
	args  map[string]string

	once sync.Once
	be   Backend
	err  error
}

// NewLazyBackend returns a backend that instantiates class with args on
// first use. The class name is checked at construction so a typo fails
// at configuration time, not first I/O.
func NewLazyBackend(class string, args map[string]string) (Backend, error) {
	factoryMu.RLock()
	_, ok := factories[class]
	factoryMu.RUnlock()
	if !ok {
		return nil, NewError(OpConfig, class, fmt.Errorf("%w: unknown backend class %q", ErrInvalidPathSpec, class))
	}
	return &lazyBackend{class: class, args: args}, nil
}

func (l *lazyBackend) ensure() (Backend, error) {
	l.once.Do(func() {
		l.be, l.err = NewBackend(l.class, l.args)
	})
	return l.be, l.err
}

func (l *lazyBackend) Stat(name string) (*Metadata, error) {
	be, err := l.ensure()
	if err != nil {
		return nil, err
	}
	return be.Stat(name)
}

func (l *lazyBackend) Lstat(name string) (*Metadata, error) {
	be, err := l.ensure()
	if err != nil {
		return nil, err
	}
	return be.Lstat(name)
}

func (l *lazyBackend) Open(name string, flag int) (FileHandle, error) {
	be, err := l.ensure()
	if err != nil {
		return nil, err
	}
	return be.Open(name, flag)
}

func (l *lazyBackend) OpenDir(name string) (DirHandle, error) {
	be, err := l.ensure()
	if err != nil {
		return nil, err
	}
	return be.OpenDir(name)
}

func (l *lazyBackend) ReadLink(name string) (string, error) {
	be, err := l.ensure()
	if err != nil {
		return "", err
	}
	return be.ReadLink(name)
}

func (l *lazyBackend) Clone(args map[string]string) (Backend, error) {
	be, err := l.ensure()
	if err != nil {
		return nil, err
	}
	return be.Clone(args)
}

func (l *lazyBackend) TempDir() (string, error) {
	be, err := l.ensure()
	if err != nil {
		return "", err
	}
	return be.TempDir()
}
