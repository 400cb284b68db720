package cowfs

import (
	"encoding/binary"
	"fmt"
)

// inode is the fixed-size, packed on-disk inode record from spec.md §4.4:
// 128 bytes holding size, block accounting, ownership/permission bits, and
// the direct/indirect/double-indirect block pointer arrays.
type inode struct {
	size        uint64
	blockCount  uint32
	uid         uint16
	gid         uint16
	permissions uint16
	numFiles    uint16

	direct         [DirectPointers]uint32
	indirect       [IndirectPointers]uint32
	doubleIndirect [DoubleIndirectPointers]uint32
}

func newInode(permissions uint16) *inode {
	ino := &inode{permissions: permissions}
	for i := range ino.direct {
		ino.direct[i] = NullBlock
	}
	for i := range ino.indirect {
		ino.indirect[i] = NullBlock
	}
	for i := range ino.doubleIndirect {
		ino.doubleIndirect[i] = NullBlock
	}
	return ino
}

func newDirInode(permissions uint16) *inode {
	return newInode(permissions | dirPermissionBit)
}

func (i *inode) isDir() bool {
	return i.permissions&dirPermissionBit != 0
}

// toBytes packs the inode into exactly inodeOnDiskSize bytes.
func (i *inode) toBytes() []byte {
	buf := make([]byte, inodeOnDiskSize)
	le := binary.LittleEndian

	off := 0
	le.PutUint64(buf[off:], i.size)
	off += 8
	le.PutUint32(buf[off:], i.blockCount)
	off += 4
	le.PutUint16(buf[off:], i.uid)
	off += 2
	le.PutUint16(buf[off:], i.gid)
	off += 2
	le.PutUint16(buf[off:], i.permissions)
	off += 2
	le.PutUint16(buf[off:], i.numFiles)
	off += 2

	for _, p := range i.direct {
		le.PutUint32(buf[off:], p)
		off += 4
	}
	for _, p := range i.indirect {
		le.PutUint32(buf[off:], p)
		off += 4
	}
	for _, p := range i.doubleIndirect {
		le.PutUint32(buf[off:], p)
		off += 4
	}

	return buf
}

// inodeFromBytes unpacks an inodeOnDiskSize-byte record.
func inodeFromBytes(buf []byte) (*inode, error) {
	if len(buf) != inodeOnDiskSize {
		return nil, fmt.Errorf("inode buffer must be %d bytes, got %d", inodeOnDiskSize, len(buf))
	}
	le := binary.LittleEndian
	i := &inode{}

	off := 0
	i.size = le.Uint64(buf[off:])
	off += 8
	i.blockCount = le.Uint32(buf[off:])
	off += 4
	i.uid = le.Uint16(buf[off:])
	off += 2
	i.gid = le.Uint16(buf[off:])
	off += 2
	i.permissions = le.Uint16(buf[off:])
	off += 2
	i.numFiles = le.Uint16(buf[off:])
	off += 2

	for k := range i.direct {
		i.direct[k] = le.Uint32(buf[off:])
		off += 4
	}
	for k := range i.indirect {
		i.indirect[k] = le.Uint32(buf[off:])
		off += 4
	}
	for k := range i.doubleIndirect {
		i.doubleIndirect[k] = le.Uint32(buf[off:])
		off += 4
	}

	return i, nil
}
