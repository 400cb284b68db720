package cowfs

import "testing"

func TestDirEntryRoundTrip(t *testing.T) {
	e := dirEntry{inodeNum: 17, name: "hello.txt"}
	got, err := dirEntryFromBytes(e.toBytes())
	if err != nil {
		t.Fatalf("dirEntryFromBytes failed: %v", err)
	}
	if got != e {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, e)
	}
}

func TestDirEntryNameAtMaxLength(t *testing.T) {
	name := make([]byte, maxNameLen)
	for i := range name {
		name[i] = 'a'
	}
	e := dirEntry{inodeNum: 1, name: string(name)}
	got, err := dirEntryFromBytes(e.toBytes())
	if err != nil {
		t.Fatalf("dirEntryFromBytes failed: %v", err)
	}
	if got.name != e.name {
		t.Errorf("name truncated: got %d bytes, want %d", len(got.name), len(e.name))
	}
}

func TestAddLookupRemoveDirEntry(t *testing.T) {
	_, fs := newTestFS(t, 4*1024*1024)
	root := fs.RootInodeNumber()
	rootIno, err := fs.ReadInode(root)
	if err != nil {
		t.Fatalf("ReadInode failed: %v", err)
	}

	childNum, _, err := fs.CreateInode(0o644)
	if err != nil {
		t.Fatalf("CreateInode failed: %v", err)
	}
	rootIno, err = fs.addDirEntry(root, rootIno, "a.txt", childNum)
	if err != nil {
		t.Fatalf("addDirEntry failed: %v", err)
	}

	got, ok, err := fs.lookupDirEntry(rootIno, "a.txt")
	if err != nil {
		t.Fatalf("lookupDirEntry failed: %v", err)
	}
	if !ok || got != childNum {
		t.Fatalf("lookupDirEntry = %d, %v, want %d, true", got, ok, childNum)
	}

	if _, err := fs.addDirEntry(root, rootIno, "a.txt", childNum); err == nil {
		t.Fatalf("expected addDirEntry to reject a duplicate name")
	}

	// add a second entry so removal exercises the swap-with-last path.
	secondNum, _, err := fs.CreateInode(0o644)
	if err != nil {
		t.Fatalf("CreateInode failed: %v", err)
	}
	rootIno, err = fs.addDirEntry(root, rootIno, "b.txt", secondNum)
	if err != nil {
		t.Fatalf("addDirEntry failed: %v", err)
	}

	rootIno, err = fs.removeDirEntry(root, rootIno, "a.txt")
	if err != nil {
		t.Fatalf("removeDirEntry failed: %v", err)
	}
	if _, ok, err := fs.lookupDirEntry(rootIno, "a.txt"); err != nil || ok {
		t.Errorf("a.txt still present after removal: ok=%v, err=%v", ok, err)
	}
	got, ok, err = fs.lookupDirEntry(rootIno, "b.txt")
	if err != nil || !ok || got != secondNum {
		t.Errorf("b.txt lost after swap-remove: got %d, %v, %v", got, ok, err)
	}

	if _, err := fs.removeDirEntry(root, rootIno, "missing"); err == nil {
		t.Fatalf("expected removeDirEntry to fail for a name that does not exist")
	}
}

func TestInitDotEntries(t *testing.T) {
	_, fs := newTestFS(t, 4*1024*1024)
	names, err := fs.ReadDir("/")
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("freshly formatted root should list no entries, got %v", names)
	}

	// "." and ".." resolve even though ReadDir hides them.
	num, ino, err := fs.resolvePath("/.")
	if err != nil {
		t.Fatalf("resolvePath(\"/.\") failed: %v", err)
	}
	if num != fs.RootInodeNumber() || !ino.isDir() {
		t.Errorf("\"/.\" did not resolve back to root")
	}
	num, _, err = fs.resolvePath("/..")
	if err != nil {
		t.Fatalf("resolvePath(\"/..\") failed: %v", err)
	}
	if num != fs.RootInodeNumber() {
		t.Errorf("root's \"..\" should resolve to itself, got inode %d", num)
	}
}
