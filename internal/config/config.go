// Package config loads the declarative mount-table configuration and
// applies it against a filesystem registry. A config file is a sequence
// of two primitives: register-or-reuse a named filesystem (a fresh
// backend or a clone of an existing instance) and mount it into the
// active root at a destination.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"mosaicfs/internal/logging"
	"mosaicfs/internal/vfs"
)

var logger = logging.GetLogger().WithPrefix("config")

// File is the top-level configuration document.
type File struct {
	Filesystems []FilesystemSpec `yaml:"filesystems"`
	Mounts      []MountSpec      `yaml:"mounts"`
}

// FilesystemSpec declares a named filesystem: either a new backend of a
// registered class, or a clone of an already-known instance. Exactly
// one of New and Clone must be set.
type FilesystemSpec struct {
	Name  string            `yaml:"name"`
	New   string            `yaml:"new"`
	Clone string            `yaml:"clone"`
	Args  map[string]string `yaml:"args"`
}

// MountSpec mounts a named filesystem (optionally only a subtree of it)
// at a target path in the root namespace.
type MountSpec struct {
	FS     string `yaml:"fs"`
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

// Load reads and parses a configuration file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return f, nil
}

// Parse parses a configuration document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, vfs.NewError(vfs.OpConfig, "", fmt.Errorf("%w: %v", vfs.ErrInvalidPathSpec, err))
	}
	return &f, nil
}

// Apply registers the declared filesystems and performs the declared
// mounts into root. Structural errors fail immediately and carry the
// offending entry for diagnostics; nothing is retried.
func Apply(f *File, reg *vfs.Registry, root *vfs.FileSystem) error {
	for _, spec := range f.Filesystems {
		if err := applyFilesystem(spec, reg); err != nil {
			return err
		}
	}
	for _, spec := range f.Mounts {
		src, ok := reg.Get(spec.FS)
		if !ok {
			return vfs.NewError(vfs.OpConfig, fragment(spec),
				fmt.Errorf("%w: unknown filesystem %q", vfs.ErrInvalidPathSpec, spec.FS))
		}
		source := spec.Source
		if source == "" {
			source = "/"
		}
		logger.Info("Mounting %s (%s) at %s", spec.FS, source, spec.Target)
		if err := root.Mount(src, source, spec.Target); err != nil {
			return vfs.NewError(vfs.OpConfig, fragment(spec), err)
		}
	}
	return nil
}

func applyFilesystem(spec FilesystemSpec, reg *vfs.Registry) error {
	if spec.Name == "" {
		return vfs.NewError(vfs.OpConfig, fsFragment(spec),
			fmt.Errorf("%w: filesystem entry without a name", vfs.ErrInvalidPathSpec))
	}
	if spec.New != "" && spec.Clone != "" {
		return vfs.NewError(vfs.OpConfig, fsFragment(spec), vfs.ErrAmbiguousConfig)
	}
	if _, exists := reg.Get(spec.Name); exists {
		// Register-or-reuse: a name that already exists is reused.
		logger.Debug("Reusing existing filesystem %q", spec.Name)
		return nil
	}

	switch {
	case spec.New != "":
		fsys, err := vfs.NewLeaf(spec.New, spec.Args)
		if err != nil {
			return vfs.NewError(vfs.OpConfig, fsFragment(spec), err)
		}
		return reg.Register(spec.Name, fsys)
	case spec.Clone != "":
		origin, ok := reg.Get(spec.Clone)
		if !ok {
			return vfs.NewError(vfs.OpConfig, fsFragment(spec),
				fmt.Errorf("%w: cannot clone unknown filesystem %q", vfs.ErrInvalidPathSpec, spec.Clone))
		}
		return reg.Register(spec.Name, origin.Clone())
	default:
		return vfs.NewError(vfs.OpConfig, fsFragment(spec),
			fmt.Errorf("%w: filesystem %q needs either new or clone", vfs.ErrInvalidPathSpec, spec.Name))
	}
}

// fragment renders a mount entry for error diagnostics.
func fragment(spec MountSpec) string {
	return fmt.Sprintf("mount{fs:%s source:%s target:%s}", spec.FS, spec.Source, spec.Target)
}

// fsFragment renders a filesystem entry for error diagnostics.
func fsFragment(spec FilesystemSpec) string {
	return fmt.Sprintf("filesystem{name:%s new:%s clone:%s}", spec.Name, spec.New, spec.Clone)
}
