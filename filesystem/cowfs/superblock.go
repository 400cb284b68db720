package cowfs

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// checkpointDirEntry is one slot of the superblock's checkpoint directory,
// mapping a checkpoint id to the first block of its chain.
type checkpointDirEntry struct {
	id         uint32
	firstBlock uint32
}

// superblock is the block-0 structure from spec.md §3. Regions are laid
// out contiguously in the order {inode-bitmap, inode-loc-table,
// data-bitmap, inode-region, data-region, log-area}, as the invariant
// requires.
type superblock struct {
	magic   uint64
	version uint32
	uuid    uuid.UUID

	totalBlocks uint64
	inodeCount  uint32

	inodeBitmapStart   uint32
	inodeBitmapSize    uint32
	inodeLocTableStart uint32
	inodeLocTableSize  uint32
	dataBitmapStart    uint32
	dataBitmapSize     uint32
	inodeRegionStart   uint32
	inodeRegionSize    uint32
	dataRegionStart    uint32
	dataRegionSize     uint32
	logAreaStart       uint32
	logAreaSize        uint32

	// freeInodes/freeBlocks are informational only; per DESIGN.md's Open
	// Question decision they drift under COW and are never consulted by
	// an allocation path.
	freeInodes uint32
	freeBlocks uint64

	readOnly bool

	latestLogSeq uint64

	checkpointCount uint32
	checkpointIDs   [maxCheckpoints]checkpointDirEntry
}

// Params configures Format. Unset fields are computed the way the
// teacher's ext4.Params defaults compute block size/inode ratio/inode
// count when the caller leaves them zero.
type Params struct {
	UUID *uuid.UUID
	// InodeRatio is approximate bytes of partition per inode. Default 16384.
	InodeRatio int64
	// InodeCount, if nonzero, overrides the ratio-derived inode count.
	InodeCount uint32
	// LogAreaBlocks, if nonzero, overrides the default log area sizing
	// (roughly 1% of the partition, minimum 16 blocks).
	LogAreaBlocks uint32
}

func blocksFor(units, perBlock uint64) uint32 {
	if units == 0 {
		return 1
	}
	n := (units + perBlock - 1) / perBlock
	if n == 0 {
		n = 1
	}
	return uint32(n)
}

// computeLayout derives the region layout for a partition of totalBlocks
// blocks, per the parameters in p (which may be nil for all-default).
func computeLayout(totalBlocks uint64, p *Params) (*superblock, error) {
	if p == nil {
		p = &Params{}
	}
	inodeRatio := p.InodeRatio
	if inodeRatio <= 0 {
		inodeRatio = 16384
	}

	inodeCount := p.InodeCount
	if inodeCount == 0 {
		ic := (totalBlocks * BlockSize) / uint64(inodeRatio)
		if ic < 16 {
			ic = 16
		}
		inodeCount = uint32(ic)
	}

	inodeBitmapSize := blocksFor(uint64(inodeCount), 8*BlockSize)
	inodeLocTableSize := blocksFor(uint64(inodeCount)*inodeLocEntrySize, BlockSize)
	inodeRegionSize := blocksFor(uint64(inodeCount)*inodeOnDiskSize, BlockSize)

	logAreaSize := p.LogAreaBlocks
	if logAreaSize == 0 {
		logAreaSize = uint32(totalBlocks / 100)
		if logAreaSize < 16 {
			logAreaSize = 16
		}
	}

	used := uint64(1) + uint64(inodeBitmapSize) + uint64(inodeLocTableSize) + uint64(inodeRegionSize) + uint64(logAreaSize)
	if used >= totalBlocks {
		return nil, fmt.Errorf("partition of %d blocks is too small for %d inodes", totalBlocks, inodeCount)
	}
	remaining := totalBlocks - used
	dataBitmapSize := blocksFor(remaining, 8*BlockSize)
	if uint64(dataBitmapSize) >= remaining {
		return nil, fmt.Errorf("partition of %d blocks is too small for a data region", totalBlocks)
	}
	dataRegionSize := uint32(remaining - uint64(dataBitmapSize))

	fsUUID := p.UUID
	if fsUUID == nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return nil, fmt.Errorf("could not generate filesystem uuid: %w", err)
		}
		fsUUID = &id
	}

	sb := &superblock{
		magic:       superblockMagic,
		version:     superblockVersion,
		uuid:        *fsUUID,
		totalBlocks: totalBlocks,
		inodeCount:  inodeCount,
		freeInodes:  inodeCount,
		freeBlocks:  uint64(dataRegionSize),
	}

	cursor := uint32(1)
	sb.inodeBitmapStart, cursor = cursor, cursor+inodeBitmapSize
	sb.inodeBitmapSize = inodeBitmapSize
	sb.inodeLocTableStart, cursor = cursor, cursor+inodeLocTableSize
	sb.inodeLocTableSize = inodeLocTableSize
	sb.dataBitmapStart, cursor = cursor, cursor+dataBitmapSize
	sb.dataBitmapSize = dataBitmapSize
	sb.inodeRegionStart, cursor = cursor, cursor+inodeRegionSize
	sb.inodeRegionSize = inodeRegionSize
	sb.dataRegionStart, cursor = cursor, cursor+dataRegionSize
	sb.dataRegionSize = dataRegionSize
	sb.logAreaStart, cursor = cursor, cursor+logAreaSize
	sb.logAreaSize = logAreaSize

	if uint64(cursor) > totalBlocks {
		return nil, fmt.Errorf("computed layout overruns partition: needs %d blocks, have %d", cursor, totalBlocks)
	}

	return sb, nil
}

const (
	sbOffMagic           = 0x00
	sbOffVersion         = 0x08
	sbOffUUID            = 0x0c
	sbOffTotalBlocks     = 0x1c
	sbOffInodeCount      = 0x24
	sbOffInodeBmpStart   = 0x28
	sbOffInodeBmpSize    = 0x2c
	sbOffLocTableStart   = 0x30
	sbOffLocTableSize    = 0x34
	sbOffDataBmpStart    = 0x38
	sbOffDataBmpSize     = 0x3c
	sbOffInodeRgnStart   = 0x40
	sbOffInodeRgnSize    = 0x44
	sbOffDataRgnStart    = 0x48
	sbOffDataRgnSize     = 0x4c
	sbOffLogAreaStart    = 0x50
	sbOffLogAreaSize     = 0x54
	sbOffFreeInodes      = 0x58
	sbOffFreeBlocks      = 0x5c
	sbOffReadOnly        = 0x64
	sbOffLatestLogSeq    = 0x68
	sbOffCheckpointCount = 0x70
	sbOffCheckpointIDs   = 0x74
)

// toBytes serializes the superblock into one BlockSize buffer.
func (sb *superblock) toBytes() []byte {
	buf := make([]byte, BlockSize)
	le := binary.LittleEndian

	le.PutUint64(buf[sbOffMagic:], sb.magic)
	le.PutUint32(buf[sbOffVersion:], sb.version)
	copy(buf[sbOffUUID:sbOffUUID+16], sb.uuid[:])
	le.PutUint64(buf[sbOffTotalBlocks:], sb.totalBlocks)
	le.PutUint32(buf[sbOffInodeCount:], sb.inodeCount)
	le.PutUint32(buf[sbOffInodeBmpStart:], sb.inodeBitmapStart)
	le.PutUint32(buf[sbOffInodeBmpSize:], sb.inodeBitmapSize)
	le.PutUint32(buf[sbOffLocTableStart:], sb.inodeLocTableStart)
	le.PutUint32(buf[sbOffLocTableSize:], sb.inodeLocTableSize)
	le.PutUint32(buf[sbOffDataBmpStart:], sb.dataBitmapStart)
	le.PutUint32(buf[sbOffDataBmpSize:], sb.dataBitmapSize)
	le.PutUint32(buf[sbOffInodeRgnStart:], sb.inodeRegionStart)
	le.PutUint32(buf[sbOffInodeRgnSize:], sb.inodeRegionSize)
	le.PutUint32(buf[sbOffDataRgnStart:], sb.dataRegionStart)
	le.PutUint32(buf[sbOffDataRgnSize:], sb.dataRegionSize)
	le.PutUint32(buf[sbOffLogAreaStart:], sb.logAreaStart)
	le.PutUint32(buf[sbOffLogAreaSize:], sb.logAreaSize)
	le.PutUint32(buf[sbOffFreeInodes:], sb.freeInodes)
	le.PutUint64(buf[sbOffFreeBlocks:], sb.freeBlocks)
	if sb.readOnly {
		buf[sbOffReadOnly] = 1
	}
	le.PutUint64(buf[sbOffLatestLogSeq:], sb.latestLogSeq)
	le.PutUint32(buf[sbOffCheckpointCount:], sb.checkpointCount)

	off := sbOffCheckpointIDs
	for i := 0; i < maxCheckpoints; i++ {
		le.PutUint32(buf[off:], sb.checkpointIDs[i].id)
		le.PutUint32(buf[off+4:], sb.checkpointIDs[i].firstBlock)
		off += 8
	}

	return buf
}

// superblockFromBytes deserializes and validates the magic.
func superblockFromBytes(buf []byte) (*superblock, error) {
	if len(buf) != BlockSize {
		return nil, fmt.Errorf("superblock buffer must be %d bytes, got %d", BlockSize, len(buf))
	}
	le := binary.LittleEndian
	sb := &superblock{}
	sb.magic = le.Uint64(buf[sbOffMagic:])
	if sb.magic != superblockMagic {
		return nil, fmt.Errorf("bad superblock magic 0x%x", sb.magic)
	}
	sb.version = le.Uint32(buf[sbOffVersion:])
	copy(sb.uuid[:], buf[sbOffUUID:sbOffUUID+16])
	sb.totalBlocks = le.Uint64(buf[sbOffTotalBlocks:])
	sb.inodeCount = le.Uint32(buf[sbOffInodeCount:])
	sb.inodeBitmapStart = le.Uint32(buf[sbOffInodeBmpStart:])
	sb.inodeBitmapSize = le.Uint32(buf[sbOffInodeBmpSize:])
	sb.inodeLocTableStart = le.Uint32(buf[sbOffLocTableStart:])
	sb.inodeLocTableSize = le.Uint32(buf[sbOffLocTableSize:])
	sb.dataBitmapStart = le.Uint32(buf[sbOffDataBmpStart:])
	sb.dataBitmapSize = le.Uint32(buf[sbOffDataBmpSize:])
	sb.inodeRegionStart = le.Uint32(buf[sbOffInodeRgnStart:])
	sb.inodeRegionSize = le.Uint32(buf[sbOffInodeRgnSize:])
	sb.dataRegionStart = le.Uint32(buf[sbOffDataRgnStart:])
	sb.dataRegionSize = le.Uint32(buf[sbOffDataRgnSize:])
	sb.logAreaStart = le.Uint32(buf[sbOffLogAreaStart:])
	sb.logAreaSize = le.Uint32(buf[sbOffLogAreaSize:])
	sb.freeInodes = le.Uint32(buf[sbOffFreeInodes:])
	sb.freeBlocks = le.Uint64(buf[sbOffFreeBlocks:])
	sb.readOnly = buf[sbOffReadOnly] != 0
	sb.latestLogSeq = le.Uint64(buf[sbOffLatestLogSeq:])
	sb.checkpointCount = le.Uint32(buf[sbOffCheckpointCount:])

	off := sbOffCheckpointIDs
	for i := 0; i < maxCheckpoints; i++ {
		sb.checkpointIDs[i].id = le.Uint32(buf[off:])
		sb.checkpointIDs[i].firstBlock = le.Uint32(buf[off+4:])
		off += 8
	}

	return sb, nil
}

// addCheckpoint appends a new checkpoint directory entry. Returns a plain
// error if the directory is exhausted (CreateCheckpoint wraps it as
// filesystem.KindFull), per DESIGN.md's Open Question decision not to
// grow it into a linked structure.
func (sb *superblock) addCheckpoint(id, firstBlock uint32) error {
	if sb.checkpointCount >= maxCheckpoints {
		return fmt.Errorf("checkpoint directory full (capacity %d)", maxCheckpoints)
	}
	sb.checkpointIDs[sb.checkpointCount] = checkpointDirEntry{id: id, firstBlock: firstBlock}
	sb.checkpointCount++
	return nil
}

// findCheckpoint returns the first block of the checkpoint chain for id.
func (sb *superblock) findCheckpoint(id uint32) (uint32, bool) {
	for i := uint32(0); i < sb.checkpointCount; i++ {
		if sb.checkpointIDs[i].id == id {
			return sb.checkpointIDs[i].firstBlock, true
		}
	}
	return 0, false
}

// latestCheckpoint returns the most recently added checkpoint's id and
// first block, or ok=false if none exist yet.
func (sb *superblock) latestCheckpoint() (id, firstBlock uint32, ok bool) {
	if sb.checkpointCount == 0 {
		return 0, 0, false
	}
	e := sb.checkpointIDs[sb.checkpointCount-1]
	return e.id, e.firstBlock, true
}
