package cowfs

import (
	"bytes"
	"testing"

	"github.com/cowvolume/cowfs/backend/file"
	"github.com/cowvolume/cowfs/testhelper"
)

// newMemoryBlockStore backs a BlockStore with testhelper.FileImpl instead
// of a real temp file, exercising BlockStore against a stubbed
// backend.Storage the way the teacher's FileImpl was meant to be used.
func newMemoryBlockStore(t *testing.T, blockCount uint64) *BlockStore {
	t.Helper()
	raw := make([]byte, blockCount*BlockSize)
	impl := &testhelper.FileImpl{
		Reader: func(b []byte, offset int64) (int, error) {
			return copy(b, raw[offset:]), nil
		},
		Writer: func(b []byte, offset int64) (int, error) {
			return copy(raw[offset:], b), nil
		},
	}
	return NewBlockStore(file.New(impl, false), blockCount)
}

func TestBlockStoreOverStubbedBackend(t *testing.T) {
	store := newMemoryBlockStore(t, 4)

	want := bytes.Repeat([]byte{0xAB}, BlockSize)
	if err := store.WriteBlock(2, want); err != nil {
		t.Fatalf("WriteBlock failed: %v", err)
	}

	got := make([]byte, BlockSize)
	if err := store.ReadBlock(2, got); err != nil {
		t.Fatalf("ReadBlock failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("round trip mismatch over stubbed backend")
	}

	// an untouched block stays zero-filled.
	other := make([]byte, BlockSize)
	if err := store.ReadBlock(0, other); err != nil {
		t.Fatalf("ReadBlock failed: %v", err)
	}
	if !bytes.Equal(other, make([]byte, BlockSize)) {
		t.Errorf("untouched block is not zero-filled")
	}
}

func TestBlockStoreOverStubbedBackendRejectsOutOfRange(t *testing.T) {
	store := newMemoryBlockStore(t, 4)
	buf := make([]byte, BlockSize)
	if err := store.ReadBlock(4, buf); err == nil {
		t.Fatalf("expected ReadBlock to reject an out-of-range index")
	}
	if err := store.WriteBlock(4, buf); err == nil {
		t.Fatalf("expected WriteBlock to reject an out-of-range index")
	}
}
