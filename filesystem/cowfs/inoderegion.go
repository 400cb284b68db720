package cowfs

import (
	"fmt"

	"github.com/cowvolume/cowfs/filesystem"
)

// InodeRegion is the packed array of inode records described in spec.md
// §4.4. Slots are addressed densely; a slot's containing block is read,
// the one inode record within it replaced, and the whole block written
// back, the same read-modify-write idiom the teacher uses for its inode
// table blocks.
type InodeRegion struct {
	store      *BlockStore
	startBlock uint32
	slotCap    uint32
}

// NewInodeRegion returns an InodeRegion of slotCap slots backed by the
// blocks starting at startBlock.
func NewInodeRegion(store *BlockStore, startBlock, slotCap uint32) *InodeRegion {
	return &InodeRegion{store: store, startBlock: startBlock, slotCap: slotCap}
}

func (r *InodeRegion) slotLocation(slot uint32) (blockIdx uint32, offset int) {
	return r.startBlock + slot/inodesPerBlock, int(slot%inodesPerBlock) * inodeOnDiskSize
}

// FormatZero writes zeroed (free) inode records across every backing block.
func (r *InodeRegion) FormatZero(numBlocks uint32) error {
	zero := make([]byte, BlockSize)
	for i := uint32(0); i < numBlocks; i++ {
		if err := r.store.WriteBlock(r.startBlock+i, zero); err != nil {
			return fmt.Errorf("could not zero inode region block %d: %w", i, err)
		}
	}
	return nil
}

// ReadSlot reads the inode record occupying slot.
func (r *InodeRegion) ReadSlot(slot uint32) (*inode, error) {
	if slot >= r.slotCap {
		return nil, filesystem.NewError("InodeRegion.ReadSlot", filesystem.KindOutOfRange, fmt.Errorf("slot %d out of range (capacity %d)", slot, r.slotCap))
	}
	blockIdx, offset := r.slotLocation(slot)
	buf := make([]byte, BlockSize)
	if err := r.store.ReadBlock(blockIdx, buf); err != nil {
		return nil, filesystem.NewError("InodeRegion.ReadSlot", filesystem.KindIO, err)
	}
	ino, err := inodeFromBytes(buf[offset : offset+inodeOnDiskSize])
	if err != nil {
		return nil, filesystem.NewError("InodeRegion.ReadSlot", filesystem.KindInvalid, err)
	}
	return ino, nil
}

// WriteSlot writes ino into slot, preserving every other inode record
// sharing the same block.
func (r *InodeRegion) WriteSlot(slot uint32, ino *inode) error {
	if slot >= r.slotCap {
		return filesystem.NewError("InodeRegion.WriteSlot", filesystem.KindOutOfRange, fmt.Errorf("slot %d out of range (capacity %d)", slot, r.slotCap))
	}
	blockIdx, offset := r.slotLocation(slot)
	buf := make([]byte, BlockSize)
	if err := r.store.ReadBlock(blockIdx, buf); err != nil {
		return filesystem.NewError("InodeRegion.WriteSlot", filesystem.KindIO, err)
	}
	copy(buf[offset:offset+inodeOnDiskSize], ino.toBytes())
	if err := r.store.WriteBlock(blockIdx, buf); err != nil {
		return filesystem.NewError("InodeRegion.WriteSlot", filesystem.KindIO, err)
	}
	return nil
}
