package zipfs

import (
	"archive/zip"
	"errors"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"mosaicfs/internal/vfs"
)

func writeArchive(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	zw := zip.NewWriter(f)

	w, err := zw.Create("docs/hello.txt")
	if err != nil {
		t.Fatalf("Create member failed: %v", err)
	}
	if _, err := w.Write([]byte("hello from zip")); err != nil {
		t.Fatalf("Write member failed: %v", err)
	}

	w, err = zw.Create("docs/deep/nested.txt")
	if err != nil {
		t.Fatalf("Create member failed: %v", err)
	}
	if _, err := w.Write([]byte("nested")); err != nil {
		t.Fatalf("Write member failed: %v", err)
	}

	hdr := &zip.FileHeader{Name: "docs/alias"}
	hdr.SetMode(iofs.ModeSymlink | 0o777)
	w, err = zw.CreateHeader(hdr)
	if err != nil {
		t.Fatalf("CreateHeader failed: %v", err)
	}
	if _, err := w.Write([]byte("hello.txt")); err != nil {
		t.Fatalf("Write symlink target failed: %v", err)
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("Close writer failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close file failed: %v", err)
	}
	return path
}

func TestLazyOpen(t *testing.T) {
	// Construction never touches the archive; the first operation does.
	z := New(filepath.Join(t.TempDir(), "absent.zip"))
	if _, err := z.Stat("."); err == nil {
		t.Error("Expected the missing archive to surface on first use")
	}
}

func TestStatAndLstat(t *testing.T) {
	z := New(writeArchive(t))

	meta, err := z.Stat(".")
	if err != nil {
		t.Fatalf("Stat of root failed: %v", err)
	}
	if meta.Kind != vfs.KindDir {
		t.Errorf("Expected directory at root, got %v", meta.Kind)
	}

	meta, err = z.Stat("docs/hello.txt")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if meta.Kind != vfs.KindFile || meta.Size != 14 {
		t.Errorf("Unexpected metadata: %+v", meta)
	}

	// "docs/deep" is never listed in the archive; it is synthesized
	// from member names.
	meta, err = z.Stat("docs/deep")
	if err != nil {
		t.Fatalf("Stat of synthesized dir failed: %v", err)
	}
	if meta.Kind != vfs.KindDir {
		t.Errorf("Expected synthesized directory, got %v", meta.Kind)
	}

	meta, err = z.Lstat("docs/alias")
	if err != nil {
		t.Fatalf("Lstat failed: %v", err)
	}
	if meta.Kind != vfs.KindSymlink {
		t.Errorf("Expected symlink, got %v", meta.Kind)
	}

	// Stat follows the relative symlink within the archive.
	meta, err = z.Stat("docs/alias")
	if err != nil {
		t.Fatalf("Stat through symlink failed: %v", err)
	}
	if meta.Kind != vfs.KindFile || meta.Size != 14 {
		t.Errorf("Unexpected metadata through symlink: %+v", meta)
	}

	if _, err := z.Stat("docs/absent"); !errors.Is(err, vfs.ErrNotExist) {
		t.Errorf("Expected ErrNotExist, got %v", err)
	}
}

func TestOpenReadsMember(t *testing.T) {
	z := New(writeArchive(t))

	fh, err := z.Open("docs/hello.txt", os.O_RDONLY)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer fh.Close()

	data, err := io.ReadAll(fh)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != "hello from zip" {
		t.Errorf("Unexpected content: %q", data)
	}

	// Compressed members still honor ReadAt.
	buf := make([]byte, 4)
	if _, err := fh.ReadAt(buf, 6); err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	if string(buf) != "from" {
		t.Errorf("Expected from, got %q", buf)
	}

	if _, err := z.Open("docs/hello.txt", os.O_WRONLY); err == nil {
		t.Error("Expected write open to fail on an archive")
	}
	if _, err := z.Open("docs", os.O_RDONLY); err == nil {
		t.Error("Expected opening a directory to fail")
	}
}

func TestOpenDir(t *testing.T) {
	z := New(writeArchive(t))

	dh, err := z.OpenDir("docs")
	if err != nil {
		t.Fatalf("OpenDir failed: %v", err)
	}
	defer dh.Close()

	var names []string
	for {
		name, err := dh.ReadEntry()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ReadEntry failed: %v", err)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	want := []string{"alias", "deep", "hello.txt"}
	if len(names) != len(want) {
		t.Fatalf("Unexpected listing: %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Entry %d: expected %q, got %q", i, want[i], names[i])
		}
	}

	if _, err := z.OpenDir("docs/hello.txt"); !errors.Is(err, vfs.ErrNotDir) {
		t.Errorf("Expected ErrNotDir, got %v", err)
	}
}

func TestReadLink(t *testing.T) {
	z := New(writeArchive(t))

	target, err := z.ReadLink("docs/alias")
	if err != nil {
		t.Fatalf("ReadLink failed: %v", err)
	}
	if target != "hello.txt" {
		t.Errorf("Expected hello.txt, got %q", target)
	}

	if _, err := z.ReadLink("docs/hello.txt"); err == nil {
		t.Error("Expected ReadLink on a regular member to fail")
	}
}

func TestTempDirStaysInArchiveNamespace(t *testing.T) {
	z := New(writeArchive(t))

	dir, err := z.TempDir()
	if err != nil {
		t.Fatalf("TempDir failed: %v", err)
	}
	// The answer must be a backend-relative name the archive actually
	// serves, never a host path.
	meta, err := z.Stat(dir)
	if err != nil {
		t.Fatalf("TempDir %q is not reachable within the archive: %v", dir, err)
	}
	if meta.Kind != vfs.KindDir {
		t.Errorf("Expected a directory, got %v", meta.Kind)
	}
}

func TestBackendRegistration(t *testing.T) {
	be, err := vfs.NewBackend("zip", map[string]string{"path": writeArchive(t)})
	if err != nil {
		t.Fatalf("NewBackend failed: %v", err)
	}
	if _, err := be.Stat("docs/hello.txt"); err != nil {
		t.Errorf("Stat through registered backend failed: %v", err)
	}

	if _, err := vfs.NewBackend("zip", nil); !errors.Is(err, vfs.ErrInvalidPathSpec) {
		t.Errorf("Expected ErrInvalidPathSpec without a path argument, got %v", err)
	}
}
