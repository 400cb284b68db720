package cowfs

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cowvolume/cowfs/filesystem"
)

// dirEntry is the packed, fixed-size directory entry from spec.md §4.5:
// a 4-byte inode number followed by a 252-byte NUL-terminated name.
type dirEntry struct {
	inodeNum uint32
	name     string
}

func (e dirEntry) toBytes() []byte {
	buf := make([]byte, dirEntrySize)
	binary.LittleEndian.PutUint32(buf[0:], e.inodeNum)
	copy(buf[4:4+len(e.name)], e.name)
	return buf
}

func dirEntryFromBytes(buf []byte) (dirEntry, error) {
	if len(buf) != dirEntrySize {
		return dirEntry{}, fmt.Errorf("directory entry buffer must be %d bytes, got %d", dirEntrySize, len(buf))
	}
	inodeNum := binary.LittleEndian.Uint32(buf[0:])
	nameField := buf[4 : 4+dirNameSize]
	end := bytes.IndexByte(nameField, 0)
	if end == -1 {
		end = len(nameField)
	}
	return dirEntry{inodeNum: inodeNum, name: string(nameField[:end])}, nil
}

// readDirEntry reads the entry at logical slot index within dirIno's data.
func (fs *FileSystem) readDirEntry(dirIno *inode, index int) (dirEntry, error) {
	buf, err := fs.readInodeData(dirIno, uint64(index)*dirEntrySize, dirEntrySize)
	if err != nil {
		return dirEntry{}, err
	}
	e, err := dirEntryFromBytes(buf)
	if err != nil {
		return dirEntry{}, filesystem.NewError("readDirEntry", filesystem.KindCorruptLog, err)
	}
	return e, nil
}

// listDirEntries returns every live entry of dirIno, in storage order
// (which is not sorted and shifts across removes, per spec.md §4.5).
func (fs *FileSystem) listDirEntries(dirIno *inode) ([]dirEntry, error) {
	entries := make([]dirEntry, 0, dirIno.numFiles)
	for i := 0; i < int(dirIno.numFiles); i++ {
		e, err := fs.readDirEntry(dirIno, i)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// lookupDirEntry performs a linear scan for name, per spec.md's choice
// of a flat, unordered directory representation.
func (fs *FileSystem) lookupDirEntry(dirIno *inode, name string) (uint32, bool, error) {
	for i := 0; i < int(dirIno.numFiles); i++ {
		e, err := fs.readDirEntry(dirIno, i)
		if err != nil {
			return 0, false, err
		}
		if e.name == name {
			return e.inodeNum, true, nil
		}
	}
	return 0, false, nil
}

// addDirEntry appends a (name, childInodeNum) entry to dirIno's data and
// commits the resulting inode version.
func (fs *FileSystem) addDirEntry(dirInodeNum uint32, dirIno *inode, name string, childInodeNum uint32) (*inode, error) {
	if len(name) == 0 || len(name) > maxNameLen {
		return nil, filesystem.NewError("addDirEntry", filesystem.KindInvalid, fmt.Errorf("name length %d out of bounds (max %d)", len(name), maxNameLen))
	}
	if _, exists, err := fs.lookupDirEntry(dirIno, name); err != nil {
		return nil, err
	} else if exists {
		return nil, filesystem.NewError("addDirEntry", filesystem.KindExists, fmt.Errorf("%q already exists", name))
	}

	tmp := *dirIno
	tmp.numFiles++
	offset := uint64(dirIno.numFiles) * dirEntrySize
	entry := dirEntry{inodeNum: childInodeNum, name: name}

	newIno, err := fs.writeInodeData(dirInodeNum, &tmp, offset, entry.toBytes())
	if err != nil {
		return nil, err
	}
	return newIno, nil
}

// truncateDirectory shrinks dirIno to newNumFiles entries without
// touching any data block: orphaned entries past the new boundary are
// simply no longer reachable, consistent with the engine never
// reclaiming COW garbage.
func (fs *FileSystem) truncateDirectory(dirInodeNum uint32, dirIno *inode, newNumFiles uint16) (*inode, error) {
	newIno := *dirIno
	newIno.numFiles = newNumFiles
	newIno.size = uint64(newNumFiles) * dirEntrySize
	if err := fs.commitInode(dirInodeNum, &newIno, opInodeUpdate); err != nil {
		return nil, err
	}
	return &newIno, nil
}

// removeDirEntry removes name from dirIno using swap-with-last: the last
// entry is copied into the removed slot (unless it already is the last
// slot) and the entry count shrinks by one.
func (fs *FileSystem) removeDirEntry(dirInodeNum uint32, dirIno *inode, name string) (*inode, error) {
	count := int(dirIno.numFiles)
	idx := -1
	var last dirEntry
	for i := 0; i < count; i++ {
		e, err := fs.readDirEntry(dirIno, i)
		if err != nil {
			return nil, err
		}
		if i == count-1 {
			last = e
		}
		if e.name == name {
			idx = i
		}
	}
	if idx == -1 {
		return nil, filesystem.NewError("removeDirEntry", filesystem.KindNotFound, fmt.Errorf("%q not found", name))
	}

	cur := dirIno
	if idx != count-1 {
		newIno, err := fs.writeInodeData(dirInodeNum, cur, uint64(idx)*dirEntrySize, last.toBytes())
		if err != nil {
			return nil, err
		}
		cur = newIno
	}
	return fs.truncateDirectory(dirInodeNum, cur, uint16(count-1))
}
