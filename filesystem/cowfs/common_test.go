package cowfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cowvolume/cowfs/backend/file"
)

// createTestFile creates a temporary, size-truncated image file and
// returns its path and an open handle, mirroring the teacher's own
// testCreateEmptyFile helper.
func createTestFile(t *testing.T, size int64) (string, *os.File) {
	t.Helper()
	dir := t.TempDir()
	outfile := filepath.Join(dir, "cowfs.img")
	f, err := os.Create(outfile)
	if err != nil {
		t.Fatalf("error creating empty image file: %v", err)
	}
	if err := f.Truncate(size); err != nil {
		t.Fatalf("error truncating image file: %v", err)
	}
	return outfile, f
}

// newTestStore returns a fresh BlockStore of the given block count,
// backed by a truncated temp file.
func newTestStore(t *testing.T, blockCount uint64) *BlockStore {
	t.Helper()
	_, f := createTestFile(t, int64(blockCount)*BlockSize)
	t.Cleanup(func() { f.Close() })
	return NewBlockStore(file.New(f, false), blockCount)
}

// newTestFS formats a fresh volume of the given size and returns its
// path alongside the live FileSystem, ready for mutation.
func newTestFS(t *testing.T, size int64) (string, *FileSystem) {
	t.Helper()
	path, f := createTestFile(t, size)
	t.Cleanup(func() { f.Close() })
	fs, err := Format(file.New(f, false), size, nil)
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	return path, fs
}
