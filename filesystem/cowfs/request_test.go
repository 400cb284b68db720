package cowfs_test

import (
	"io"
	"testing"

	"github.com/cowvolume/cowfs/backend/file"
	"github.com/cowvolume/cowfs/filesystem/cowfs"
)

func newFS(t *testing.T, size int64) *cowfs.FileSystem {
	t.Helper()
	path := createVolumePath(t, size)
	b, err := file.CreateFromPath(path, size)
	if err != nil {
		t.Fatalf("CreateFromPath failed: %v", err)
	}
	fs, err := cowfs.Format(b, size, nil)
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	return fs
}

func TestMkdirNestedAndReadDir(t *testing.T) {
	fs := newFS(t, 4*1024*1024)
	if err := fs.Mkdir("/a", 0o755); err != nil {
		t.Fatalf("Mkdir /a failed: %v", err)
	}
	if err := fs.Mkdir("/a/b", 0o755); err != nil {
		t.Fatalf("Mkdir /a/b failed: %v", err)
	}
	if err := fs.CreateFile("/a/b/f.txt", 0o644); err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	names, err := fs.ReadDir("/a/b")
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(names) != 1 || names[0] != "f.txt" {
		t.Fatalf("ReadDir(/a/b) = %v, want [f.txt]", names)
	}
	// ".." from /a/b must resolve back to /a.
	st, err := fs.Stat("/a/b/../b/f.txt")
	if err != nil {
		t.Fatalf("Stat with .. in path failed: %v", err)
	}
	if st.IsDir {
		t.Errorf("f.txt reported as a directory")
	}
}

func TestMkdirRejectsMissingParent(t *testing.T) {
	fs := newFS(t, 4*1024*1024)
	if err := fs.Mkdir("/no/such/parent", 0o755); err == nil {
		t.Fatalf("expected Mkdir to fail when the parent does not exist")
	}
}

func TestRemoveRejectsNonEmptyDirectory(t *testing.T) {
	fs := newFS(t, 4*1024*1024)
	if err := fs.Mkdir("/a", 0o755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	if err := fs.CreateFile("/a/f.txt", 0o644); err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	if err := fs.Remove("/a"); err == nil {
		t.Fatalf("expected Remove to reject a non-empty directory")
	}
	if err := fs.Remove("/a/f.txt"); err != nil {
		t.Fatalf("Remove of the file failed: %v", err)
	}
	if err := fs.Remove("/a"); err != nil {
		t.Fatalf("Remove of the now-empty directory failed: %v", err)
	}
}

func TestRemoveRejectsDotEntries(t *testing.T) {
	fs := newFS(t, 4*1024*1024)
	if err := fs.Mkdir("/a", 0o755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	if err := fs.Remove("/a/."); err == nil {
		t.Fatalf("expected Remove to reject \".\"")
	}
	if err := fs.Remove("/a/.."); err == nil {
		t.Fatalf("expected Remove to reject \"..\"")
	}
}

func TestOpenFileReadWriteAt(t *testing.T) {
	fs := newFS(t, 4*1024*1024)
	if err := fs.CreateFile("/f.txt", 0o644); err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	if err := fs.WriteFile("/f.txt", 0, []byte("0123456789")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	handle, err := fs.OpenFile("/f.txt")
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer handle.Close()

	buf := make([]byte, 4)
	n, err := handle.ReadAt(buf, 3)
	if err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	if n != 4 || string(buf) != "3456" {
		t.Errorf("ReadAt(off=3) = %q, want %q", buf[:n], "3456")
	}

	if _, err := handle.WriteAt([]byte("XY"), 0); err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}
	got, err := fs.ReadFile("/f.txt", 0, 10)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(got) != "XY23456789" {
		t.Errorf("post-WriteAt content = %q, want %q", got, "XY23456789")
	}

	st, err := handle.Stat()
	if err != nil {
		t.Fatalf("Stat via handle failed: %v", err)
	}
	if st.Size() != 10 || st.Name() != "f.txt" {
		t.Errorf("handle.Stat() = {size=%d name=%s}, want {size=10 name=f.txt}", st.Size(), st.Name())
	}
}

func TestOpenFileSequentialRead(t *testing.T) {
	fs := newFS(t, 4*1024*1024)
	if err := fs.CreateFile("/f.txt", 0o644); err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	if err := fs.WriteFile("/f.txt", 0, []byte("abc")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	handle, err := fs.OpenFile("/f.txt")
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer handle.Close()

	buf := make([]byte, 2)
	n, err := handle.Read(buf)
	if err != nil || n != 2 || string(buf) != "ab" {
		t.Fatalf("first Read = %q, %d, %v; want \"ab\", 2, nil", buf[:n], n, err)
	}
	n, err = handle.Read(buf)
	if n != 1 || string(buf[:1]) != "c" {
		t.Fatalf("second Read = %q, %d, %v; want \"c\", 1", buf[:n], n, err)
	}
	if err != nil && err != io.EOF {
		t.Fatalf("second Read returned unexpected error: %v", err)
	}
}

func TestOpenFileRejectsDirectory(t *testing.T) {
	fs := newFS(t, 4*1024*1024)
	if err := fs.Mkdir("/a", 0o755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	if _, err := fs.OpenFile("/a"); err == nil {
		t.Fatalf("expected OpenFile to reject a directory")
	}
}

func TestResolvePathNotFound(t *testing.T) {
	fs := newFS(t, 4*1024*1024)
	if _, err := fs.Stat("/missing"); err == nil {
		t.Fatalf("expected Stat to fail for a nonexistent path")
	}
}
