package cowfs

import (
	"fmt"
	"io"
	iofs "io/fs"
	"strings"
	"time"

	"github.com/cowvolume/cowfs/filesystem"
)

// This file is the thin dispatch surface spec.md §6 describes: path
// resolution plus one method per host-visible operation, each just
// wiring together the lower-level primitives the rest of the package
// provides. No operation here contains COW or log logic of its own.

// splitPath validates that path is absolute and returns its non-empty
// components, so "/a//b/" and "/a/b" resolve identically.
func splitPath(path string) ([]string, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("path %q must be absolute", path)
	}
	var out []string
	for _, p := range strings.Split(path, "/") {
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// resolvePath walks from the root directory, following "." and ".."
// entries (installed on every directory at creation time) the same way
// any other entry is followed.
func (fs *FileSystem) resolvePath(path string) (uint32, *inode, error) {
	parts, err := splitPath(path)
	if err != nil {
		return 0, nil, filesystem.NewError("resolvePath", filesystem.KindInvalid, err)
	}

	curNum := fs.RootInodeNumber()
	curIno, err := fs.ReadInode(curNum)
	if err != nil {
		return 0, nil, err
	}

	for _, part := range parts {
		if len(part) > maxNameLen {
			return 0, nil, filesystem.NewError("resolvePath", filesystem.KindInvalid, fmt.Errorf("name %q exceeds %d bytes", part, maxNameLen))
		}
		if !curIno.isDir() {
			return 0, nil, filesystem.NewError("resolvePath", filesystem.KindInvalid, fmt.Errorf("%q is not a directory", part))
		}
		childNum, ok, err := fs.lookupDirEntry(curIno, part)
		if err != nil {
			return 0, nil, err
		}
		if !ok {
			return 0, nil, filesystem.NewError("resolvePath", filesystem.KindNotFound, fmt.Errorf("%q not found", part))
		}
		childIno, err := fs.ReadInode(childNum)
		if err != nil {
			return 0, nil, err
		}
		curNum, curIno = childNum, childIno
	}
	return curNum, curIno, nil
}

// resolveParent resolves path's containing directory and returns its
// final path component unresolved, for operations that need to add or
// remove the entry themselves.
func (fs *FileSystem) resolveParent(path string) (uint32, *inode, string, error) {
	parts, err := splitPath(path)
	if err != nil {
		return 0, nil, "", filesystem.NewError("resolveParent", filesystem.KindInvalid, err)
	}
	if len(parts) == 0 {
		return 0, nil, "", filesystem.NewError("resolveParent", filesystem.KindInvalid, fmt.Errorf("path %q names no entry", path))
	}
	leaf := parts[len(parts)-1]
	parentPath := "/" + strings.Join(parts[:len(parts)-1], "/")

	parentNum, parentIno, err := fs.resolvePath(parentPath)
	if err != nil {
		return 0, nil, "", err
	}
	if !parentIno.isDir() {
		return 0, nil, "", filesystem.NewError("resolveParent", filesystem.KindInvalid, fmt.Errorf("%q is not a directory", parentPath))
	}
	return parentNum, parentIno, leaf, nil
}

// initDotEntries installs the "." and ".." entries every directory
// except none (even root, which points both at itself) carries, so path
// resolution can walk upward without a side table of parent pointers.
func (fs *FileSystem) initDotEntries(dirInodeNum uint32, dirIno *inode, parentInodeNum uint32) (*inode, error) {
	ino, err := fs.addDirEntry(dirInodeNum, dirIno, ".", dirInodeNum)
	if err != nil {
		return nil, err
	}
	ino, err = fs.addDirEntry(dirInodeNum, ino, "..", parentInodeNum)
	if err != nil {
		return nil, err
	}
	return ino, nil
}

// CreateFile creates a new, empty file at path. The parent directory
// must already exist.
func (fs *FileSystem) CreateFile(path string, permissions uint16) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.readOnly {
		return filesystem.NewError("CreateFile", filesystem.KindReadOnly, fmt.Errorf("filesystem is mounted read-only"))
	}
	parentNum, parentIno, name, err := fs.resolveParent(path)
	if err != nil {
		return err
	}
	childNum, _, err := fs.CreateInode(permissions)
	if err != nil {
		return err
	}
	if _, err := fs.addDirEntry(parentNum, parentIno, name, childNum); err != nil {
		return err
	}
	return nil
}

// Mkdir creates a new, empty directory at path.
func (fs *FileSystem) Mkdir(path string, permissions uint16) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.readOnly {
		return filesystem.NewError("Mkdir", filesystem.KindReadOnly, fmt.Errorf("filesystem is mounted read-only"))
	}
	parentNum, parentIno, name, err := fs.resolveParent(path)
	if err != nil {
		return err
	}
	childNum, childIno, err := fs.CreateDirInode(permissions)
	if err != nil {
		return err
	}
	if _, err := fs.initDotEntries(childNum, childIno, parentNum); err != nil {
		return err
	}
	if _, err := fs.addDirEntry(parentNum, parentIno, name, childNum); err != nil {
		return err
	}
	return nil
}

// Remove deletes the file or empty directory at path.
func (fs *FileSystem) Remove(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.readOnly {
		return filesystem.NewError("Remove", filesystem.KindReadOnly, fmt.Errorf("filesystem is mounted read-only"))
	}
	parentNum, parentIno, name, err := fs.resolveParent(path)
	if err != nil {
		return err
	}
	if name == "." || name == ".." {
		return filesystem.NewError("Remove", filesystem.KindInvalid, fmt.Errorf("cannot remove %q", name))
	}
	childNum, ok, err := fs.lookupDirEntry(parentIno, name)
	if err != nil {
		return err
	}
	if !ok {
		return filesystem.NewError("Remove", filesystem.KindNotFound, fmt.Errorf("%q not found", path))
	}
	childIno, err := fs.ReadInode(childNum)
	if err != nil {
		return err
	}
	if childIno.isDir() && childIno.numFiles > 2 {
		return filesystem.NewError("Remove", filesystem.KindInvalid, fmt.Errorf("directory %q is not empty", path))
	}
	if _, err := fs.removeDirEntry(parentNum, parentIno, name); err != nil {
		return err
	}
	return fs.DeleteInode(childNum)
}

// ReadDir lists the names in the directory at path, excluding "." and
// "..".
func (fs *FileSystem) ReadDir(path string) ([]string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, ino, err := fs.resolvePath(path)
	if err != nil {
		return nil, err
	}
	if !ino.isDir() {
		return nil, filesystem.NewError("ReadDir", filesystem.KindInvalid, fmt.Errorf("%q is not a directory", path))
	}
	entries, err := fs.listDirEntries(ino)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.name == "." || e.name == ".." {
			continue
		}
		names = append(names, e.name)
	}
	return names, nil
}

// WriteFile performs a copy-on-write update of the file at path.
func (fs *FileSystem) WriteFile(path string, offset uint64, data []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.readOnly {
		return filesystem.NewError("WriteFile", filesystem.KindReadOnly, fmt.Errorf("filesystem is mounted read-only"))
	}
	num, ino, err := fs.resolvePath(path)
	if err != nil {
		return err
	}
	if ino.isDir() {
		return filesystem.NewError("WriteFile", filesystem.KindInvalid, fmt.Errorf("%q is a directory", path))
	}
	_, err = fs.writeInodeData(num, ino, offset, data)
	return err
}

// ReadFile reads up to length bytes from the file at path, starting at offset.
func (fs *FileSystem) ReadFile(path string, offset uint64, length int) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, ino, err := fs.resolvePath(path)
	if err != nil {
		return nil, err
	}
	if ino.isDir() {
		return nil, filesystem.NewError("ReadFile", filesystem.KindInvalid, fmt.Errorf("%q is a directory", path))
	}
	return fs.readInodeData(ino, offset, length)
}

// Stat reports the metadata of the entry at path.
type Stat struct {
	InodeNumber uint32
	Size        uint64
	IsDir       bool
	Permissions uint16
	NumEntries  uint16
}

func (fs *FileSystem) Stat(path string) (Stat, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	num, ino, err := fs.resolvePath(path)
	if err != nil {
		return Stat{}, err
	}
	return Stat{
		InodeNumber: num,
		Size:        ino.size,
		IsDir:       ino.isDir(),
		Permissions: ino.permissions &^ dirPermissionBit,
		NumEntries:  ino.numFiles,
	}, nil
}

// OpenFile returns a filesystem.File handle for path, satisfying
// spec.md §3/§6's request surface for byte-range I/O against an open
// handle rather than one-shot path calls.
func (fs *FileSystem) OpenFile(path string) (filesystem.File, error) {
	fs.mu.Lock()
	num, ino, err := fs.resolvePath(path)
	fs.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if ino.isDir() {
		return nil, filesystem.NewError("OpenFile", filesystem.KindInvalid, fmt.Errorf("%q is a directory", path))
	}
	return &cowFile{fs: fs, inodeNum: num, path: path}, nil
}

// cowFile is a handle bound to one inode number; every operation
// re-reads the current inode version so a handle kept open across
// writes always observes the latest committed content.
type cowFile struct {
	fs       *FileSystem
	inodeNum uint32
	path     string
	pos      int64
}

func (f *cowFile) Read(p []byte) (int, error) {
	f.fs.mu.Lock()
	ino, err := f.fs.ReadInode(f.inodeNum)
	f.fs.mu.Unlock()
	if err != nil {
		return 0, err
	}
	if uint64(f.pos) >= ino.size {
		return 0, io.EOF
	}
	data, err := f.fs.readInodeData(ino, uint64(f.pos), len(p))
	if err != nil {
		return 0, err
	}
	n := copy(p, data)
	f.pos += int64(n)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *cowFile) ReadAt(p []byte, off int64) (int, error) {
	f.fs.mu.Lock()
	ino, err := f.fs.ReadInode(f.inodeNum)
	f.fs.mu.Unlock()
	if err != nil {
		return 0, err
	}
	if uint64(off) >= ino.size {
		return 0, io.EOF
	}
	data, err := f.fs.readInodeData(ino, uint64(off), len(p))
	if err != nil {
		return 0, err
	}
	n := copy(p, data)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *cowFile) WriteAt(p []byte, off int64) (int, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	if f.fs.readOnly {
		return 0, filesystem.NewError("WriteAt", filesystem.KindReadOnly, fmt.Errorf("snapshot mounts are read-only"))
	}
	ino, err := f.fs.ReadInode(f.inodeNum)
	if err != nil {
		return 0, err
	}
	if _, err := f.fs.writeInodeData(f.inodeNum, ino, uint64(off), p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (f *cowFile) Stat() (iofs.FileInfo, error) {
	f.fs.mu.Lock()
	ino, err := f.fs.ReadInode(f.inodeNum)
	f.fs.mu.Unlock()
	if err != nil {
		return nil, err
	}
	mode := iofs.FileMode(ino.permissions &^ dirPermissionBit)
	if ino.isDir() {
		mode |= iofs.ModeDir
	}
	name := f.path
	if idx := strings.LastIndexByte(name, '/'); idx >= 0 {
		name = name[idx+1:]
	}
	return &cowFileInfo{name: name, size: int64(ino.size), isDir: ino.isDir(), mode: mode}, nil
}

func (f *cowFile) Close() error { return nil }

type cowFileInfo struct {
	name  string
	size  int64
	isDir bool
	mode  iofs.FileMode
}

func (i *cowFileInfo) Name() string        { return i.name }
func (i *cowFileInfo) Size() int64         { return i.size }
func (i *cowFileInfo) Mode() iofs.FileMode { return i.mode }
func (i *cowFileInfo) ModTime() time.Time  { return time.Time{} }
func (i *cowFileInfo) IsDir() bool         { return i.isDir }
func (i *cowFileInfo) Sys() any            { return nil }
