package cowfs

import (
	"encoding/binary"
	"fmt"

	"github.com/cowvolume/cowfs/filesystem"
)

// checkpointEntry is one (inode number, inode-region slot) pair captured
// into a checkpoint, per spec.md §4.7.
type checkpointEntry struct {
	inodeNum uint32
	slot     uint32
}

const (
	checkpointHeaderSize       = 40
	checkpointEntrySize        = 8
	checkpointEntriesPerBlock  = (BlockSize - checkpointHeaderSize) / checkpointEntrySize
)

// checkpointBlock is one block of a checkpoint's entry chain. A
// checkpoint with more entries than fit in one block spans several
// blocks linked by nextCheckpointBlock, terminated by NullBlock.
type checkpointBlock struct {
	checkpointID        uint32
	isHeader            bool
	sequence            uint64
	timestamp           int64
	nextCheckpointBlock uint32
	entries             []checkpointEntry
}

const (
	ckOffMagic     = 0x00
	ckOffID        = 0x08
	ckOffIsHeader  = 0x0c
	ckOffSequence  = 0x10
	ckOffTimestamp = 0x18
	ckOffEntryCnt  = 0x20
	ckOffNextBlock = 0x24
	ckOffEntries   = 0x28
)

func (c *checkpointBlock) toBytes() []byte {
	buf := make([]byte, BlockSize)
	le := binary.LittleEndian

	le.PutUint64(buf[ckOffMagic:], checkpointMagic)
	le.PutUint32(buf[ckOffID:], c.checkpointID)
	if c.isHeader {
		buf[ckOffIsHeader] = 1
	}
	le.PutUint64(buf[ckOffSequence:], c.sequence)
	le.PutUint64(buf[ckOffTimestamp:], uint64(c.timestamp))
	le.PutUint32(buf[ckOffEntryCnt:], uint32(len(c.entries)))
	le.PutUint32(buf[ckOffNextBlock:], c.nextCheckpointBlock)

	off := ckOffEntries
	for _, e := range c.entries {
		le.PutUint32(buf[off:], e.inodeNum)
		le.PutUint32(buf[off+4:], e.slot)
		off += checkpointEntrySize
	}

	return buf
}

func checkpointBlockFromBytes(buf []byte) (*checkpointBlock, error) {
	if len(buf) != BlockSize {
		return nil, fmt.Errorf("checkpoint block buffer must be %d bytes, got %d", BlockSize, len(buf))
	}
	le := binary.LittleEndian
	magic := le.Uint64(buf[ckOffMagic:])
	if magic != checkpointMagic {
		return nil, fmt.Errorf("bad checkpoint block magic 0x%x", magic)
	}
	c := &checkpointBlock{}
	c.checkpointID = le.Uint32(buf[ckOffID:])
	c.isHeader = buf[ckOffIsHeader] != 0
	c.sequence = le.Uint64(buf[ckOffSequence:])
	c.timestamp = int64(le.Uint64(buf[ckOffTimestamp:]))
	count := le.Uint32(buf[ckOffEntryCnt:])
	if count > checkpointEntriesPerBlock {
		return nil, fmt.Errorf("checkpoint block claims %d entries (max %d)", count, checkpointEntriesPerBlock)
	}
	c.nextCheckpointBlock = le.Uint32(buf[ckOffNextBlock:])

	off := ckOffEntries
	c.entries = make([]checkpointEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		c.entries = append(c.entries, checkpointEntry{
			inodeNum: le.Uint32(buf[off:]),
			slot:     le.Uint32(buf[off+4:]),
		})
		off += checkpointEntrySize
	}
	return c, nil
}

// buildCheckpointEntries walks every slot of a live inode location table
// and captures the ones currently bound to an inode.
func buildCheckpointEntries(table InodeLocTable) ([]checkpointEntry, error) {
	var entries []checkpointEntry
	for i := uint32(0); i < table.Count(); i++ {
		slot, err := table.Get(i)
		if err != nil {
			return nil, err
		}
		if slot != NullSlot {
			entries = append(entries, checkpointEntry{inodeNum: i, slot: slot})
		}
	}
	return entries, nil
}

// chainCheckpointBlocks splits entries into the blocks that will carry
// them, linked in the order they should be written. nextCheckpointBlock
// fields are left as NullBlock; the caller fills them in once real block
// addresses have been allocated.
func chainCheckpointBlocks(id uint32, seq uint64, timestamp int64, entries []checkpointEntry) []*checkpointBlock {
	if len(entries) == 0 {
		return []*checkpointBlock{{checkpointID: id, isHeader: true, sequence: seq, timestamp: timestamp, nextCheckpointBlock: NullBlock}}
	}
	var blocks []*checkpointBlock
	for start := 0; start < len(entries); start += checkpointEntriesPerBlock {
		end := start + checkpointEntriesPerBlock
		if end > len(entries) {
			end = len(entries)
		}
		blocks = append(blocks, &checkpointBlock{
			checkpointID:        id,
			isHeader:            start == 0,
			sequence:            seq,
			timestamp:           timestamp,
			nextCheckpointBlock: NullBlock,
			entries:             entries[start:end],
		})
	}
	return blocks
}

// readCheckpointChain reads every block of the checkpoint chain starting
// at firstBlock and returns the full entry list plus the checkpoint's
// sequence and timestamp (taken from the header block).
func readCheckpointChain(store *BlockStore, firstBlock uint32) ([]checkpointEntry, uint64, int64, error) {
	var entries []checkpointEntry
	var seq uint64
	var timestamp int64

	block := firstBlock
	first := true
	for block != NullBlock {
		buf := make([]byte, BlockSize)
		if err := store.ReadBlock(block, buf); err != nil {
			return nil, 0, 0, filesystem.NewError("readCheckpointChain", filesystem.KindIO, err)
		}
		cb, err := checkpointBlockFromBytes(buf)
		if err != nil {
			return nil, 0, 0, filesystem.NewError("readCheckpointChain", filesystem.KindCorruptLog, err)
		}
		if first {
			seq = cb.sequence
			timestamp = cb.timestamp
			first = false
		}
		entries = append(entries, cb.entries...)
		block = cb.nextCheckpointBlock
	}
	return entries, seq, timestamp, nil
}

// replayRecords applies log records in order to setSlot, the way spec.md
// §4.6 describes: INODE_ADD/INODE_UPDATE install the (inode, slot)
// binding, INODE_DELETE clears it, and CHECKPOINT records are markers
// that need no action during replay.
func replayRecords(records []logRecord, setSlot func(inodeNum, slot uint32) error) error {
	for _, rec := range records {
		switch rec.opType {
		case opInodeAdd, opInodeUpdate:
			inodeNum, slot := decodeInodeLocPayload(rec.payload)
			if err := setSlot(inodeNum, slot); err != nil {
				return err
			}
		case opInodeDelete:
			inodeNum := decodeInodeDeletePayload(rec.payload)
			if err := setSlot(inodeNum, NullSlot); err != nil {
				return err
			}
		case opCheckpoint:
			// marker only; the checkpoint chain itself carries no
			// further location data beyond what buildCheckpointEntries
			// already captured.
		default:
			return filesystem.NewError("replayRecords", filesystem.KindCorruptLog, fmt.Errorf("unknown log record op type %d", rec.opType))
		}
	}
	return nil
}
