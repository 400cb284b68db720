package cowfs_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/cowvolume/cowfs/backend/file"
	"github.com/cowvolume/cowfs/filesystem/cowfs"
)

func createVolumePath(t *testing.T, size int64) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "volume.img")
}

// TestScenarioHelloWorld covers the simplest end-to-end path: format,
// create a file, write it, read it back.
func TestScenarioHelloWorld(t *testing.T) {
	path := createVolumePath(t, 4*1024*1024)
	b, err := file.CreateFromPath(path, 4*1024*1024)
	if err != nil {
		t.Fatalf("CreateFromPath failed: %v", err)
	}
	fs, err := cowfs.Format(b, 4*1024*1024, nil)
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	if err := fs.CreateFile("/hello.txt", 0o644); err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	if err := fs.WriteFile("/hello.txt", 0, []byte("hello, world")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	got, err := fs.ReadFile("/hello.txt", 0, 12)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(got) != "hello, world" {
		t.Errorf("ReadFile = %q, want %q", got, "hello, world")
	}
	names, err := fs.ReadDir("/")
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(names) != 1 || names[0] != "hello.txt" {
		t.Errorf("ReadDir(/) = %v, want [hello.txt]", names)
	}
}

// TestScenarioLargeFile writes a file large enough to force indirect
// addressing and confirms the whole thing reads back intact.
func TestScenarioLargeFile(t *testing.T) {
	size := int64(32 * 1024 * 1024)
	path := createVolumePath(t, size)
	b, err := file.CreateFromPath(path, size)
	if err != nil {
		t.Fatalf("CreateFromPath failed: %v", err)
	}
	fs, err := cowfs.Format(b, size, nil)
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	if err := fs.CreateFile("/big.bin", 0o644); err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	data := make([]byte, 40*cowfs.BlockSize)
	for i := range data {
		data[i] = byte(i % 251)
	}
	if err := fs.WriteFile("/big.bin", 0, data); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	got, err := fs.ReadFile("/big.bin", 0, len(data))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("large file round trip mismatch")
	}
	st, err := fs.Stat("/big.bin")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if st.Size != uint64(len(data)) {
		t.Errorf("Stat size = %d, want %d", st.Size, len(data))
	}
}

// TestScenarioDeleteDoesNotReclaim confirms removed files vanish from the
// namespace while their data blocks stay allocated, per the engine's
// no-garbage-collection invariant.
func TestScenarioDeleteDoesNotReclaim(t *testing.T) {
	size := int64(4 * 1024 * 1024)
	path := createVolumePath(t, size)
	b, err := file.CreateFromPath(path, size)
	if err != nil {
		t.Fatalf("CreateFromPath failed: %v", err)
	}
	fs, err := cowfs.Format(b, size, nil)
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	if err := fs.CreateFile("/gone.txt", 0o644); err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	if err := fs.WriteFile("/gone.txt", 0, bytes.Repeat([]byte("x"), 4096)); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	before, err := fs.Usage()
	if err != nil {
		t.Fatalf("Usage failed: %v", err)
	}
	if err := fs.Remove("/gone.txt"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	after, err := fs.Usage()
	if err != nil {
		t.Fatalf("Usage failed: %v", err)
	}
	if after.FreeBlocks != before.FreeBlocks {
		t.Errorf("FreeBlocks changed after Remove: before %d, after %d (no reclaim expected)", before.FreeBlocks, after.FreeBlocks)
	}
	if _, err := fs.Stat("/gone.txt"); err == nil {
		t.Errorf("Stat succeeded for a removed file")
	}
}

// TestScenarioSnapshotMount confirms a checkpoint taken before a later
// mutation is unaffected by it, per spec.md's historical mount_snapshot.
func TestScenarioSnapshotMount(t *testing.T) {
	size := int64(4 * 1024 * 1024)
	path := createVolumePath(t, size)
	b, err := file.CreateFromPath(path, size)
	if err != nil {
		t.Fatalf("CreateFromPath failed: %v", err)
	}
	fs, err := cowfs.Format(b, size, nil)
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	if err := fs.CreateFile("/before.txt", 0o644); err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	if err := fs.WriteFile("/before.txt", 0, []byte("snapshot me")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	id, err := fs.CreateCheckpoint()
	if err != nil {
		t.Fatalf("CreateCheckpoint failed: %v", err)
	}

	if err := fs.CreateFile("/after.txt", 0o644); err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	if err := fs.WriteFile("/before.txt", 0, []byte("overwritten!")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	snap, err := fs.MountSnapshot(id)
	if err != nil {
		t.Fatalf("MountSnapshot failed: %v", err)
	}
	if !snap.IsReadOnly() {
		t.Errorf("snapshot mount is not read-only")
	}
	if _, err := snap.Stat("/after.txt"); err == nil {
		t.Errorf("snapshot sees a file created after the checkpoint")
	}
	got, err := snap.ReadFile("/before.txt", 0, 11)
	if err != nil {
		t.Fatalf("ReadFile on snapshot failed: %v", err)
	}
	if string(got) != "snapshot me" {
		t.Errorf("snapshot content = %q, want the pre-checkpoint version", got)
	}
	if err := snap.CreateFile("/denied.txt", 0o644); err == nil {
		t.Errorf("expected writes against a snapshot mount to fail")
	}

	// the live mount must still see the overwrite.
	got, err = fs.ReadFile("/before.txt", 0, 12)
	if err != nil {
		t.Fatalf("ReadFile on the live mount failed: %v", err)
	}
	if string(got) != "overwritten!" {
		t.Errorf("live content = %q, want the post-checkpoint overwrite", got)
	}
}

// TestScenarioCrashRecovery simulates a crash by closing the backing
// file without an explicit checkpoint and reopening it: Open's log
// replay must reconstruct every committed write.
func TestScenarioCrashRecovery(t *testing.T) {
	size := int64(4 * 1024 * 1024)
	path := createVolumePath(t, size)

	b, err := file.CreateFromPath(path, size)
	if err != nil {
		t.Fatalf("CreateFromPath failed: %v", err)
	}
	fs, err := cowfs.Format(b, size, nil)
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	if err := fs.Mkdir("/dir", 0o755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	if err := fs.CreateFile("/dir/f.txt", 0o644); err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	if err := fs.WriteFile("/dir/f.txt", 0, []byte("durable")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := file.OpenFromPath(path, false)
	if err != nil {
		t.Fatalf("OpenFromPath failed: %v", err)
	}
	recovered, err := cowfs.Open(reopened, size)
	if err != nil {
		t.Fatalf("Open (recovery) failed: %v", err)
	}
	got, err := recovered.ReadFile("/dir/f.txt", 0, 7)
	if err != nil {
		t.Fatalf("ReadFile after recovery failed: %v", err)
	}
	if string(got) != "durable" {
		t.Errorf("recovered content = %q, want %q", got, "durable")
	}

	report, err := recovered.Fsck()
	if err != nil {
		t.Fatalf("Fsck failed: %v", err)
	}
	if len(report.Problems) != 0 {
		t.Errorf("Fsck found problems after recovery: %v", report.Problems)
	}
}

// TestOpenRejectsNonVolume confirms Open refuses an image with no valid
// superblock rather than silently mounting garbage.
func TestOpenRejectsNonVolume(t *testing.T) {
	size := int64(4 * 1024 * 1024)
	path := createVolumePath(t, size)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("could not create %s: %v", path, err)
	}
	if err := f.Truncate(size); err != nil {
		t.Fatalf("could not truncate %s: %v", path, err)
	}
	f.Close()

	b, err := file.OpenFromPath(path, true)
	if err != nil {
		t.Fatalf("OpenFromPath failed: %v", err)
	}
	if _, err := cowfs.Open(b, size); err == nil {
		t.Fatalf("expected Open to reject a zeroed, non-cowfs image")
	}
}
