package cowfs

import (
	"fmt"
	"sync"

	"github.com/cowvolume/cowfs/backend"
	"github.com/cowvolume/cowfs/filesystem"
)

// BlockStore provides bounds-checked, serialized 4 KiB block I/O over a
// backend.Storage confined to one partition. It corresponds to spec.md
// §4.1: the single point every other component routes disk access
// through. Its lock only serializes individual block reads and writes;
// the file system's mutation lock is FileSystem.mu (spec.md §5).
type BlockStore struct {
	mu      sync.Mutex
	backend backend.Storage
	// blockCount is the total number of BlockSize blocks addressable in
	// this partition.
	blockCount uint64
}

// NewBlockStore wraps b (already restricted to the partition's byte range
// via backend.Sub by the caller) as a BlockStore of blockCount blocks.
func NewBlockStore(b backend.Storage, blockCount uint64) *BlockStore {
	return &BlockStore{backend: b, blockCount: blockCount}
}

// BlockCount returns the number of blocks addressable in this store.
func (bs *BlockStore) BlockCount() uint64 {
	return bs.blockCount
}

// ReadBlock reads the block at the given index into buf, which must be
// exactly BlockSize bytes.
func (bs *BlockStore) ReadBlock(index uint32, buf []byte) error {
	if len(buf) != BlockSize {
		return filesystem.NewError("ReadBlock", filesystem.KindInvalid, fmt.Errorf("buffer must be %d bytes, got %d", BlockSize, len(buf)))
	}
	if uint64(index) >= bs.blockCount {
		return filesystem.NewError("ReadBlock", filesystem.KindOutOfRange, fmt.Errorf("block %d out of range (have %d blocks)", index, bs.blockCount))
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()

	n, err := bs.backend.ReadAt(buf, int64(index)*BlockSize)
	if err != nil {
		return filesystem.NewError("ReadBlock", filesystem.KindIO, err)
	}
	if n != BlockSize {
		return filesystem.NewError("ReadBlock", filesystem.KindIO, fmt.Errorf("short read: got %d of %d bytes", n, BlockSize))
	}
	return nil
}

// WriteBlock writes buf (exactly BlockSize bytes) to the block at index.
func (bs *BlockStore) WriteBlock(index uint32, buf []byte) error {
	if len(buf) != BlockSize {
		return filesystem.NewError("WriteBlock", filesystem.KindInvalid, fmt.Errorf("buffer must be %d bytes, got %d", BlockSize, len(buf)))
	}
	if uint64(index) >= bs.blockCount {
		return filesystem.NewError("WriteBlock", filesystem.KindOutOfRange, fmt.Errorf("block %d out of range (have %d blocks)", index, bs.blockCount))
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()

	w, err := bs.backend.Writable()
	if err != nil {
		return filesystem.NewError("WriteBlock", filesystem.KindIO, err)
	}
	n, err := w.WriteAt(buf, int64(index)*BlockSize)
	if err != nil {
		return filesystem.NewError("WriteBlock", filesystem.KindIO, err)
	}
	if n != BlockSize {
		return filesystem.NewError("WriteBlock", filesystem.KindIO, fmt.Errorf("short write: wrote %d of %d bytes", n, BlockSize))
	}
	return nil
}
