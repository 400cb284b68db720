// Package cowfs implements a block-addressed, copy-on-write, log-structured
// filesystem core over a backend.Storage. See SPEC_FULL.md for the full
// component breakdown; this file holds the fixed on-disk geometry shared by
// every other file in the package.
package cowfs

const (
	// BlockSize is the fixed logical block size in bytes.
	BlockSize = 4096

	// NullBlock is the sentinel for "no block" in a pointer array.
	NullBlock uint32 = 0xFFFFFFFF
	// NullSlot is the sentinel for "inode number maps to nothing".
	NullSlot uint32 = 0xFFFFFFFF

	// DirectPointers is the number of direct block pointers in an inode.
	DirectPointers = 15
	// IndirectPointers is the number of singly-indirect pointers in an inode.
	IndirectPointers = 10
	// DoubleIndirectPointers is the number of doubly-indirect pointers in an inode.
	DoubleIndirectPointers = 2
	// PointersPerIndirectBlock is how many uint32 block indices fit in one
	// indirect or double-indirect block (4096 / 4).
	PointersPerIndirectBlock = BlockSize / 4

	// inodeOnDiskSize is the fixed packed size of one inode record.
	// 8 (size) + 4 (block_count) + 2*4 (uid/gid/permissions/num_files) +
	// 15*4 (direct) + 10*4 (indirect) + 2*4 (double_indirect) = 128
	inodeOnDiskSize = 8 + 4 + 4*2 + DirectPointers*4 + IndirectPointers*4 + DoubleIndirectPointers*4

	// inodesPerBlock is how many packed inode records fit in one block.
	inodesPerBlock = BlockSize / inodeOnDiskSize

	// inodeLocEntrySize is the width of one InodeLocTable slot entry.
	inodeLocEntrySize = 4
	// inodeLocEntriesPerBlock is how many slot entries fit in one block.
	inodeLocEntriesPerBlock = BlockSize / inodeLocEntrySize

	// dirNameSize is the fixed NUL-terminated name field width in a
	// directory entry.
	dirNameSize = 252
	// dirEntrySize is inode_number (4 bytes) + name (252 bytes) = 256 bytes.
	dirEntrySize = 4 + dirNameSize
	// dirEntriesPerBlock is how many directory entries fit in one block.
	dirEntriesPerBlock = BlockSize / dirEntrySize

	// maxNameLen is the maximum usable name length (reserving one byte for
	// the terminating NUL, per spec.md §6 "Names cap at 251 bytes").
	maxNameLen = dirNameSize - 1

	// rootInodeNumber is the reserved inode number for the root directory.
	rootInodeNumber uint32 = 0

	// logRecordMagic, logEntryMagic, and checkpointMagic are the three
	// distinct magic constants spec.md §6 requires.
	logRecordMagic  uint64 = 0x434F574C4F474652 // "COWLOGFR"
	logEntryMagic   uint64 = 0x434F574C4F474554 // "COWLOGET"
	checkpointMagic uint64 = 0x434F57434B505421 // "COWCKPT!"
	superblockMagic uint64 = 0x434F5746535F5631 // "COWFS_V1"

	superblockVersion uint32 = 1

	// maxCheckpoints is the number of (id, first_block) slots reserved in
	// the superblock's checkpoint directory. spec.md requires N >= 128;
	// this implementation keeps it fixed per DESIGN.md rather than growing
	// it into a linked directory.
	maxCheckpoints = 256

	// dirPermissionBit marks an inode as a directory within the
	// permissions field; the remaining bits are classic owner/group/other
	// rwx.
	dirPermissionBit uint16 = 0x1000

	permOwnerRead  uint16 = 0o400
	permOwnerWrite uint16 = 0o200
	permOwnerExec  uint16 = 0o100
	permGroupRead  uint16 = 0o040
	permGroupWrite uint16 = 0o020
	permGroupExec  uint16 = 0o010
	permOtherRead  uint16 = 0o004
	permOtherWrite uint16 = 0o002
	permOtherExec  uint16 = 0o001
)

// maxLogicalBlockViaIndirect is the count of logical blocks addressable
// through direct + singly-indirect pointers, i.e. the logical block number
// at which double-indirect addressing begins.
const maxLogicalBlockViaIndirect = DirectPointers + IndirectPointers*PointersPerIndirectBlock
