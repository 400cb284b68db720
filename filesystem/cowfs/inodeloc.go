package cowfs

import (
	"encoding/binary"
	"fmt"

	"github.com/cowvolume/cowfs/filesystem"
)

// InodeLocTable maps inode numbers to the inode-region slot currently
// holding their latest version, the indirection spec.md §4.3 requires so
// that a COW update can move an inode's location without touching every
// directory entry that names it.
//
// Two implementations exist: the live table persists through a
// BlockStore, and the snapshot table is a read-only in-memory copy built
// by a checkpoint replay for mount_snapshot. Both satisfy this interface
// so File/Directory code never has to know which one it's holding.
type InodeLocTable interface {
	Get(inodeNum uint32) (uint32, error)
	Set(inodeNum uint32, slot uint32) error
	Count() uint32
}

// liveInodeLocTable is the on-disk, mutable inode location table.
type liveInodeLocTable struct {
	store      *BlockStore
	startBlock uint32
	count      uint32
}

// NewInodeLocTable returns a live InodeLocTable over count entries backed
// by the blocks starting at startBlock.
func NewInodeLocTable(store *BlockStore, startBlock, count uint32) InodeLocTable {
	return &liveInodeLocTable{store: store, startBlock: startBlock, count: count}
}

func (t *liveInodeLocTable) entryLocation(inodeNum uint32) (blockIdx uint32, offset int) {
	return t.startBlock + inodeNum/inodeLocEntriesPerBlock, int(inodeNum%inodeLocEntriesPerBlock) * inodeLocEntrySize
}

// FormatNull writes NullSlot into every entry across numBlocks blocks.
func (t *liveInodeLocTable) FormatNull(numBlocks uint32) error {
	block := make([]byte, BlockSize)
	for i := 0; i < inodeLocEntriesPerBlock; i++ {
		binary.LittleEndian.PutUint32(block[i*inodeLocEntrySize:], NullSlot)
	}
	for b := uint32(0); b < numBlocks; b++ {
		if err := t.store.WriteBlock(t.startBlock+b, block); err != nil {
			return fmt.Errorf("could not initialize inode location table block %d: %w", b, err)
		}
	}
	return nil
}

func (t *liveInodeLocTable) Count() uint32 { return t.count }

func (t *liveInodeLocTable) Get(inodeNum uint32) (uint32, error) {
	if inodeNum >= t.count {
		return 0, filesystem.NewError("InodeLocTable.Get", filesystem.KindOutOfRange, fmt.Errorf("inode %d out of range (capacity %d)", inodeNum, t.count))
	}
	blockIdx, offset := t.entryLocation(inodeNum)
	buf := make([]byte, BlockSize)
	if err := t.store.ReadBlock(blockIdx, buf); err != nil {
		return 0, filesystem.NewError("InodeLocTable.Get", filesystem.KindIO, err)
	}
	return binary.LittleEndian.Uint32(buf[offset:]), nil
}

func (t *liveInodeLocTable) Set(inodeNum uint32, slot uint32) error {
	if inodeNum >= t.count {
		return filesystem.NewError("InodeLocTable.Set", filesystem.KindOutOfRange, fmt.Errorf("inode %d out of range (capacity %d)", inodeNum, t.count))
	}
	blockIdx, offset := t.entryLocation(inodeNum)
	buf := make([]byte, BlockSize)
	if err := t.store.ReadBlock(blockIdx, buf); err != nil {
		return filesystem.NewError("InodeLocTable.Set", filesystem.KindIO, err)
	}
	binary.LittleEndian.PutUint32(buf[offset:], slot)
	if err := t.store.WriteBlock(blockIdx, buf); err != nil {
		return filesystem.NewError("InodeLocTable.Set", filesystem.KindIO, err)
	}
	return nil
}

// snapshotInodeLocTable is a read-only in-memory table reconstructed by
// checkpoint replay for a historical mount. Set always fails with
// ErrReadOnly.
type snapshotInodeLocTable struct {
	slots []uint32
}

// newSnapshotInodeLocTable builds a snapshot table of the given size,
// all entries initially NullSlot.
func newSnapshotInodeLocTable(count uint32) *snapshotInodeLocTable {
	slots := make([]uint32, count)
	for i := range slots {
		slots[i] = NullSlot
	}
	return &snapshotInodeLocTable{slots: slots}
}

func (t *snapshotInodeLocTable) Count() uint32 { return uint32(len(t.slots)) }

func (t *snapshotInodeLocTable) Get(inodeNum uint32) (uint32, error) {
	if inodeNum >= uint32(len(t.slots)) {
		return 0, filesystem.NewError("InodeLocTable.Get", filesystem.KindOutOfRange, fmt.Errorf("inode %d out of range (capacity %d)", inodeNum, len(t.slots)))
	}
	return t.slots[inodeNum], nil
}

func (t *snapshotInodeLocTable) Set(inodeNum uint32, slot uint32) error {
	return filesystem.NewError("InodeLocTable.Set", filesystem.KindReadOnly, fmt.Errorf("snapshot mounts are read-only"))
}

// setDuringReplay installs a location directly, bypassing the read-only
// guard; only the checkpoint/log replay path may call this.
func (t *snapshotInodeLocTable) setDuringReplay(inodeNum, slot uint32) error {
	if inodeNum >= uint32(len(t.slots)) {
		return filesystem.NewError("InodeLocTable.replay", filesystem.KindCorruptLog, fmt.Errorf("log record references inode %d beyond capacity %d", inodeNum, len(t.slots)))
	}
	t.slots[inodeNum] = slot
	return nil
}
