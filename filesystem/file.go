package filesystem

import (
	"io"
	"io/fs"
)

// File is a handle to a single open file on the live or snapshot
// filesystem. Writes against a snapshot-backed handle always fail with
// ErrReadOnly.
type File interface {
	fs.File
	io.ReaderAt
	io.WriterAt
}
