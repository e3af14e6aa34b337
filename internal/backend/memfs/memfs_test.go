package memfs

import (
	"errors"
	"io"
	"os"
	"testing"

	"mosaicfs/internal/vfs"
)

func TestStatAndLstat(t *testing.T) {
	m := New()
	if err := m.WriteFile("dir/file", []byte("hello")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := m.Symlink("file", "dir/ln"); err != nil {
		t.Fatalf("Symlink failed: %v", err)
	}

	tests := []struct {
		name string
		stat func(string) (*vfs.Metadata, error)
		arg  string
		kind vfs.Kind
		size int64
	}{
		{"stat root", m.Stat, ".", vfs.KindDir, 0},
		{"stat dir", m.Stat, "dir", vfs.KindDir, 0},
		{"stat file", m.Stat, "dir/file", vfs.KindFile, 5},
		{"stat follows symlink", m.Stat, "dir/ln", vfs.KindFile, 5},
		{"lstat reports symlink", m.Lstat, "dir/ln", vfs.KindSymlink, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := tt.stat(tt.arg)
			if err != nil {
				t.Fatalf("Failed: %v", err)
			}
			if meta.Kind != tt.kind {
				t.Errorf("Expected kind %v, got %v", tt.kind, meta.Kind)
			}
			if meta.Size != tt.size {
				t.Errorf("Expected size %d, got %d", tt.size, meta.Size)
			}
		})
	}

	if _, err := m.Stat("dir/nope"); !errors.Is(err, vfs.ErrNotExist) {
		t.Errorf("Expected ErrNotExist, got %v", err)
	}
}

func TestOpenReadsContent(t *testing.T) {
	m := New()
	if err := m.WriteFile("f", []byte("payload")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	fh, err := m.Open("f", os.O_RDONLY)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer fh.Close()

	data, err := io.ReadAll(fh)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("Expected payload, got %q", data)
	}

	// ReadAt against the same handle.
	buf := make([]byte, 4)
	if _, err := fh.ReadAt(buf, 3); err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	if string(buf) != "load" {
		t.Errorf("Expected load, got %q", buf)
	}
}

func TestOpenRejectsWrites(t *testing.T) {
	m := New()
	if err := m.WriteFile("f", []byte("x")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := m.Open("f", os.O_WRONLY); err == nil {
		t.Error("Expected write open to fail")
	}
	if _, err := m.Open("f", os.O_RDWR); err == nil {
		t.Error("Expected read-write open to fail")
	}
}

func TestOpenDirListsInsertionOrder(t *testing.T) {
	m := New()
	for _, name := range []string{"b", "a", "c"} {
		if err := m.WriteFile(name, nil); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	dh, err := m.OpenDir(".")
	if err != nil {
		t.Fatalf("OpenDir failed: %v", err)
	}
	defer dh.Close()

	var got []string
	for {
		name, err := dh.ReadEntry()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ReadEntry failed: %v", err)
		}
		got = append(got, name)
	}
	want := []string{"b", "a", "c"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d entries, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Entry %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestIntermediateSymlinkTraversal(t *testing.T) {
	m := New()
	if err := m.WriteFile("real/inner", []byte("deep")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := m.Symlink("real", "alias"); err != nil {
		t.Fatalf("Symlink failed: %v", err)
	}

	meta, err := m.Stat("alias/inner")
	if err != nil {
		t.Fatalf("Stat through symlink failed: %v", err)
	}
	if meta.Kind != vfs.KindFile || meta.Size != 4 {
		t.Errorf("Unexpected metadata: %+v", meta)
	}
}

func TestAbsoluteSymlinkTargetReadsAsMissing(t *testing.T) {
	m := New()
	if err := m.Symlink("/elsewhere", "ln"); err != nil {
		t.Fatalf("Symlink failed: %v", err)
	}

	// The resolver owns cross-backend targets; within a single backend
	// an absolute target has no referent.
	if _, err := m.Stat("ln"); !errors.Is(err, vfs.ErrNotExist) {
		t.Errorf("Expected ErrNotExist, got %v", err)
	}
	if target, err := m.ReadLink("ln"); err != nil || target != "/elsewhere" {
		t.Errorf("ReadLink = (%q, %v)", target, err)
	}
}

func TestSymlinkCycle(t *testing.T) {
	m := New()
	if err := m.Symlink("b", "a"); err != nil {
		t.Fatalf("Symlink failed: %v", err)
	}
	if err := m.Symlink("a", "b"); err != nil {
		t.Fatalf("Symlink failed: %v", err)
	}
	if _, err := m.Stat("a"); !errors.Is(err, vfs.ErrCyclicSymlink) {
		t.Errorf("Expected ErrCyclicSymlink, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	m := New()
	if err := m.WriteFile("d/f", []byte("x")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := m.Remove("d/f"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := m.Stat("d/f"); !errors.Is(err, vfs.ErrNotExist) {
		t.Errorf("Expected ErrNotExist after remove, got %v", err)
	}
	if err := m.Remove("d/f"); !errors.Is(err, vfs.ErrNotExist) {
		t.Errorf("Expected ErrNotExist on double remove, got %v", err)
	}
}

func TestTempDir(t *testing.T) {
	m := New()
	dir, err := m.TempDir()
	if err != nil {
		t.Fatalf("TempDir failed: %v", err)
	}
	meta, err := m.Stat(dir)
	if err != nil {
		t.Fatalf("Stat of temp dir failed: %v", err)
	}
	if meta.Kind != vfs.KindDir {
		t.Errorf("Expected a directory, got %v", meta.Kind)
	}
}

func TestCloneSharesState(t *testing.T) {
	m := New()
	cl, err := m.Clone(nil)
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	if err := m.WriteFile("late", []byte("x")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := cl.Stat("late"); err != nil {
		t.Errorf("Clone does not share live state: %v", err)
	}
}
