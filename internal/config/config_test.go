package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "mosaicfs/internal/backend/memfs"
	_ "mosaicfs/internal/backend/osfs"
	"mosaicfs/internal/vfs"
)

func TestParse(t *testing.T) {
	doc := []byte(`
filesystems:
  - name: scratch
    new: mem
  - name: scratch2
    clone: scratch
mounts:
  - fs: scratch
    target: /mnt
  - fs: scratch2
    source: /sub
    target: /mnt2
`)
	f, err := Parse(doc)
	require.NoError(t, err)
	require.Len(t, f.Filesystems, 2)
	require.Len(t, f.Mounts, 2)

	assert.Equal(t, "scratch", f.Filesystems[0].Name)
	assert.Equal(t, "mem", f.Filesystems[0].New)
	assert.Equal(t, "scratch", f.Filesystems[1].Clone)
	assert.Equal(t, "/sub", f.Mounts[1].Source)
	assert.Equal(t, "/mnt2", f.Mounts[1].Target)
}

func TestParseRejectsMalformedYaml(t *testing.T) {
	_, err := Parse([]byte("filesystems: [unclosed"))
	assert.ErrorIs(t, err, vfs.ErrInvalidPathSpec)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mosaic.yaml")
	require.NoError(t, os.WriteFile(path, []byte("filesystems:\n  - name: m\n    new: mem\n"), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, f.Filesystems, 1)

	_, err = Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	f := &File{
		Filesystems: []FilesystemSpec{
			{Name: "scratch", New: "mem"},
		},
		Mounts: []MountSpec{
			{FS: "scratch", Target: "/mnt"},
		},
	}
	reg := vfs.NewRegistry()
	root := vfs.NewComposite()
	require.NoError(t, Apply(f, reg, root))

	fsys, ok := reg.Get("scratch")
	require.True(t, ok)
	assert.Equal(t, "scratch", fsys.Name())

	meta, err := root.Stat("/mnt")
	require.NoError(t, err)
	assert.Equal(t, vfs.KindDir, meta.Kind)
}

func TestApplyClone(t *testing.T) {
	f := &File{
		Filesystems: []FilesystemSpec{
			{Name: "base", New: "mem"},
			{Name: "derived", Clone: "base"},
		},
	}
	reg := vfs.NewRegistry()
	require.NoError(t, Apply(f, reg, vfs.NewComposite()))

	base, _ := reg.Get("base")
	derived, ok := reg.Get("derived")
	require.True(t, ok)
	assert.NotSame(t, base, derived)
}

func TestApplyReusesExistingName(t *testing.T) {
	f := &File{
		Filesystems: []FilesystemSpec{
			{Name: "dup", New: "mem"},
			{Name: "dup", New: "mem"},
		},
	}
	reg := vfs.NewRegistry()
	require.NoError(t, Apply(f, reg, vfs.NewComposite()))
}

func TestApplyErrors(t *testing.T) {
	tests := []struct {
		name string
		file *File
		want error
	}{
		{
			name: "new and clone together",
			file: &File{Filesystems: []FilesystemSpec{{Name: "x", New: "mem", Clone: "real"}}},
			want: vfs.ErrAmbiguousConfig,
		},
		{
			name: "missing name",
			file: &File{Filesystems: []FilesystemSpec{{New: "mem"}}},
			want: vfs.ErrInvalidPathSpec,
		},
		{
			name: "neither new nor clone",
			file: &File{Filesystems: []FilesystemSpec{{Name: "x"}}},
			want: vfs.ErrInvalidPathSpec,
		},
		{
			name: "unknown backend class",
			file: &File{Filesystems: []FilesystemSpec{{Name: "x", New: "nosuchclass"}}},
			want: vfs.ErrInvalidPathSpec,
		},
		{
			name: "clone of unknown filesystem",
			file: &File{Filesystems: []FilesystemSpec{{Name: "x", Clone: "ghost"}}},
			want: vfs.ErrInvalidPathSpec,
		},
		{
			name: "registering over real",
			file: &File{Filesystems: []FilesystemSpec{{Name: "real", New: "mem"}}},
			want: nil, // existing name is reused, never clobbered
		},
		{
			name: "mount references unknown filesystem",
			file: &File{Mounts: []MountSpec{{FS: "ghost", Target: "/g"}}},
			want: vfs.ErrInvalidPathSpec,
		},
		{
			name: "relative mount target",
			file: &File{
				Filesystems: []FilesystemSpec{{Name: "m", New: "mem"}},
				Mounts:      []MountSpec{{FS: "m", Target: "mnt"}},
			},
			want: vfs.ErrInvalidPathSpec,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Apply(tt.file, vfs.NewRegistry(), vfs.NewComposite())
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}
