// Package filesystem provides the public error kinds and file handle
// interface shared by the filesystem core. The interesting implementation
// lives in the filesystem/cowfs subpackage.
package filesystem

import (
	"errors"
	"fmt"
)

// Kind is one of the error kinds from the persistence engine's error
// handling design. Callers should compare against these with errors.Is,
// not by matching error strings.
type Kind int

const (
	// KindIO wraps a failure from the underlying backend.Storage.
	KindIO Kind = iota
	// KindOutOfRange indicates a block or inode index outside the device.
	KindOutOfRange
	// KindNotFound indicates a directory lookup, path resolution, or
	// checkpoint id that did not resolve.
	KindNotFound
	// KindExists indicates a create or add-entry call that would overwrite
	// an existing name.
	KindExists
	// KindFull indicates a bitmap (inode or data) is exhausted, or the
	// checkpoint directory is full.
	KindFull
	// KindInvalid indicates a bad offset, corrupt structure, or bad magic.
	KindInvalid
	// KindReadOnly indicates a mutation was attempted against a snapshot
	// mount.
	KindReadOnly
	// KindCorruptLog indicates a log record with a bad magic or unknown
	// op type was encountered during recovery.
	KindCorruptLog
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io error"
	case KindOutOfRange:
		return "out of range"
	case KindNotFound:
		return "not found"
	case KindExists:
		return "exists"
	case KindFull:
		return "full"
	case KindInvalid:
		return "invalid"
	case KindReadOnly:
		return "read only"
	case KindCorruptLog:
		return "corrupt log"
	default:
		return "unknown error"
	}
}

// Error is the public error type returned at the FileSystem boundary.
// Most internal functions build these directly with NewError where they
// detect the failure; a few setup paths (layout computation, formatting a
// region) return plain wrapped errors instead.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, ErrNotFound) style checks against the bare Kind
// sentinels declared below (ErrNotFound, ErrExists, ...): only Kind is
// compared.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// NewError builds a public Error of the given kind, wrapping cause.
func NewError(op string, kind Kind, cause error) error {
	return &Error{Op: op, Kind: kind, Err: cause}
}

// Sentinel errors for the common case of errors.Is(err, filesystem.ErrX)
// without needing to unpack an *Error.
var (
	ErrIO         = &Error{Kind: KindIO}
	ErrOutOfRange = &Error{Kind: KindOutOfRange}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrExists     = &Error{Kind: KindExists}
	ErrFull       = &Error{Kind: KindFull}
	ErrInvalid    = &Error{Kind: KindInvalid}
	ErrReadOnly   = &Error{Kind: KindReadOnly}
	ErrCorruptLog = &Error{Kind: KindCorruptLog}
)
