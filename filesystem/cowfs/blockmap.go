package cowfs

import (
	"encoding/binary"
	"fmt"

	"github.com/cowvolume/cowfs/filesystem"
)

// newNullFilledBlock returns a block's worth of NullBlock-valued uint32
// pointers, the initial state of a freshly allocated indirect or
// double-indirect index block.
func newNullFilledBlock() []byte {
	buf := make([]byte, BlockSize)
	for i := 0; i < BlockSize; i += 4 {
		binary.LittleEndian.PutUint32(buf[i:], NullBlock)
	}
	return buf
}

// getBlockPtr resolves logical block number logical within ino to a
// physical block address, per spec.md §4.5's direct/indirect/
// double-indirect addressing scheme. Returns NullBlock if the logical
// block has never been written.
func getBlockPtr(fs *FileSystem, ino *inode, logical uint32) (uint32, error) {
	if logical < DirectPointers {
		return ino.direct[logical], nil
	}
	logical -= DirectPointers

	if logical < IndirectPointers*PointersPerIndirectBlock {
		idx := logical / PointersPerIndirectBlock
		slot := logical % PointersPerIndirectBlock
		blk := ino.indirect[idx]
		if blk == NullBlock {
			return NullBlock, nil
		}
		buf := make([]byte, BlockSize)
		if err := fs.store.ReadBlock(blk, buf); err != nil {
			return 0, filesystem.NewError("getBlockPtr", filesystem.KindIO, err)
		}
		return binary.LittleEndian.Uint32(buf[slot*4:]), nil
	}
	logical -= IndirectPointers * PointersPerIndirectBlock

	span := uint32(PointersPerIndirectBlock) * uint32(PointersPerIndirectBlock)
	idx := logical / span
	if int(idx) >= DoubleIndirectPointers {
		return 0, filesystem.NewError("getBlockPtr", filesystem.KindOutOfRange, fmt.Errorf("logical block beyond double-indirect range"))
	}
	rem := logical % span
	outerSlot := rem / PointersPerIndirectBlock
	innerSlot := rem % PointersPerIndirectBlock

	outerBlk := ino.doubleIndirect[idx]
	if outerBlk == NullBlock {
		return NullBlock, nil
	}
	obuf := make([]byte, BlockSize)
	if err := fs.store.ReadBlock(outerBlk, obuf); err != nil {
		return 0, filesystem.NewError("getBlockPtr", filesystem.KindIO, err)
	}
	innerBlk := binary.LittleEndian.Uint32(obuf[outerSlot*4:])
	if innerBlk == NullBlock {
		return NullBlock, nil
	}
	ibuf := make([]byte, BlockSize)
	if err := fs.store.ReadBlock(innerBlk, ibuf); err != nil {
		return 0, filesystem.NewError("getBlockPtr", filesystem.KindIO, err)
	}
	return binary.LittleEndian.Uint32(ibuf[innerSlot*4:]), nil
}

// setBlockPtr installs phys as the physical address of logical block
// logical within ino. Index blocks are themselves copy-on-write: every
// indirect or double-indirect block touched is spliced into a freshly
// allocated block and ino's pointer to it repointed, never overwritten
// in place, so an older inode version whose pointer still targets the
// old index block keeps seeing its original contents. The old block is
// left allocated, orphaned, consistent with the engine carrying no
// block garbage collector.
func setBlockPtr(fs *FileSystem, ino *inode, logical uint32, phys uint32) error {
	if logical < DirectPointers {
		ino.direct[logical] = phys
		return nil
	}
	logical -= DirectPointers

	if logical < IndirectPointers*PointersPerIndirectBlock {
		idx := logical / PointersPerIndirectBlock
		slot := logical % PointersPerIndirectBlock
		blk := ino.indirect[idx]
		var buf []byte
		if blk == NullBlock {
			buf = newNullFilledBlock()
		} else {
			buf = make([]byte, BlockSize)
			if err := fs.store.ReadBlock(blk, buf); err != nil {
				return filesystem.NewError("setBlockPtr", filesystem.KindIO, err)
			}
		}
		binary.LittleEndian.PutUint32(buf[slot*4:], phys)

		newBlk, err := fs.allocateDataBlock()
		if err != nil {
			return err
		}
		if err := fs.store.WriteBlock(newBlk, buf); err != nil {
			return filesystem.NewError("setBlockPtr", filesystem.KindIO, err)
		}
		ino.indirect[idx] = newBlk
		return nil
	}
	logical -= IndirectPointers * PointersPerIndirectBlock

	span := uint32(PointersPerIndirectBlock) * uint32(PointersPerIndirectBlock)
	idx := logical / span
	if int(idx) >= DoubleIndirectPointers {
		return filesystem.NewError("setBlockPtr", filesystem.KindOutOfRange, fmt.Errorf("logical block beyond double-indirect range"))
	}
	rem := logical % span
	outerSlot := rem / PointersPerIndirectBlock
	innerSlot := rem % PointersPerIndirectBlock

	outerBlk := ino.doubleIndirect[idx]
	var obuf []byte
	if outerBlk == NullBlock {
		obuf = newNullFilledBlock()
	} else {
		obuf = make([]byte, BlockSize)
		if err := fs.store.ReadBlock(outerBlk, obuf); err != nil {
			return filesystem.NewError("setBlockPtr", filesystem.KindIO, err)
		}
	}

	innerBlk := binary.LittleEndian.Uint32(obuf[outerSlot*4:])
	var ibuf []byte
	if innerBlk == NullBlock {
		ibuf = newNullFilledBlock()
	} else {
		ibuf = make([]byte, BlockSize)
		if err := fs.store.ReadBlock(innerBlk, ibuf); err != nil {
			return filesystem.NewError("setBlockPtr", filesystem.KindIO, err)
		}
	}
	binary.LittleEndian.PutUint32(ibuf[innerSlot*4:], phys)

	newInnerBlk, err := fs.allocateDataBlock()
	if err != nil {
		return err
	}
	if err := fs.store.WriteBlock(newInnerBlk, ibuf); err != nil {
		return filesystem.NewError("setBlockPtr", filesystem.KindIO, err)
	}
	binary.LittleEndian.PutUint32(obuf[outerSlot*4:], newInnerBlk)

	newOuterBlk, err := fs.allocateDataBlock()
	if err != nil {
		return err
	}
	if err := fs.store.WriteBlock(newOuterBlk, obuf); err != nil {
		return filesystem.NewError("setBlockPtr", filesystem.KindIO, err)
	}
	ino.doubleIndirect[idx] = newOuterBlk
	return nil
}

// readInodeData reads up to length bytes starting at offset from ino's
// data, per the current (possibly historical, if ino came from a
// snapshot) address map. Reads past the end of file are truncated
// rather than erroring.
func (fs *FileSystem) readInodeData(ino *inode, offset uint64, length int) ([]byte, error) {
	if offset > ino.size {
		return nil, filesystem.NewError("readInodeData", filesystem.KindOutOfRange, fmt.Errorf("offset %d exceeds size %d", offset, ino.size))
	}
	if offset+uint64(length) > ino.size {
		length = int(ino.size - offset)
	}

	out := make([]byte, 0, length)
	pos := offset
	remaining := length
	for remaining > 0 {
		logical := uint32(pos / BlockSize)
		blockOff := int(pos % BlockSize)
		n := BlockSize - blockOff
		if n > remaining {
			n = remaining
		}

		phys, err := getBlockPtr(fs, ino, logical)
		if err != nil {
			return nil, err
		}
		if phys == NullBlock {
			out = append(out, make([]byte, n)...)
		} else {
			buf := make([]byte, BlockSize)
			if err := fs.store.ReadBlock(phys, buf); err != nil {
				return nil, filesystem.NewError("readInodeData", filesystem.KindIO, err)
			}
			out = append(out, buf[blockOff:blockOff+n]...)
		}

		pos += uint64(n)
		remaining -= n
	}
	return out, nil
}

// writeInodeData performs the copy-on-write update described in spec.md
// §4.5: offset must not exceed the file's current size (no sparse
// writes), every touched block is spliced against its old content (if
// any) and landed on a freshly allocated block, and the resulting inode
// is committed as a brand new inode-region slot rather than overwritten
// in place. The previous slot and any orphaned data blocks are left
// untouched; reclaiming them is a Non-goal.
func (fs *FileSystem) writeInodeData(inodeNum uint32, ino *inode, offset uint64, data []byte) (*inode, error) {
	if fs.readOnly {
		return nil, filesystem.NewError("writeInodeData", filesystem.KindReadOnly, fmt.Errorf("filesystem is mounted read-only"))
	}
	if offset > ino.size {
		return nil, filesystem.NewError("writeInodeData", filesystem.KindInvalid, fmt.Errorf("offset %d exceeds size %d: sparse writes are not supported", offset, ino.size))
	}

	newIno := *ino
	pos := offset
	dataOff := 0
	remaining := len(data)

	for remaining > 0 {
		logical := uint32(pos / BlockSize)
		blockOff := int(pos % BlockSize)
		n := BlockSize - blockOff
		if n > remaining {
			n = remaining
		}

		existingPhys, err := getBlockPtr(fs, &newIno, logical)
		if err != nil {
			return nil, err
		}

		buf := make([]byte, BlockSize)
		if existingPhys != NullBlock && (blockOff != 0 || n != BlockSize) {
			if err := fs.store.ReadBlock(existingPhys, buf); err != nil {
				return nil, filesystem.NewError("writeInodeData", filesystem.KindIO, err)
			}
		}
		copy(buf[blockOff:blockOff+n], data[dataOff:dataOff+n])

		newPhys, err := fs.allocateDataBlock()
		if err != nil {
			return nil, err
		}
		if err := fs.store.WriteBlock(newPhys, buf); err != nil {
			return nil, filesystem.NewError("writeInodeData", filesystem.KindIO, err)
		}
		if err := setBlockPtr(fs, &newIno, logical, newPhys); err != nil {
			return nil, err
		}
		if existingPhys == NullBlock {
			newIno.blockCount++
		}

		pos += uint64(n)
		dataOff += n
		remaining -= n
	}

	if pos > newIno.size {
		newIno.size = pos
	}

	if err := fs.commitInode(inodeNum, &newIno, opInodeUpdate); err != nil {
		return nil, err
	}
	return &newIno, nil
}

// commitInode allocates a fresh inode-region slot for ino, writes it,
// appends the corresponding write-ahead log record, and repoints
// inodeNum at the new slot. This is the one path by which any inode
// content change becomes durable and visible.
func (fs *FileSystem) commitInode(inodeNum uint32, ino *inode, opType uint16) error {
	slot, err := fs.inodeBitmap.Allocate()
	if err != nil {
		return err
	}
	if err := fs.inodeRegion.WriteSlot(slot, ino); err != nil {
		return err
	}
	if _, err := fs.log.Append(opType, inodeLocPayload(inodeNum, slot)); err != nil {
		return err
	}
	if err := fs.inodeLocTable.Set(inodeNum, slot); err != nil {
		return err
	}
	return nil
}
