//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris
// +build aix darwin dragonfly freebsd linux netbsd openbsd solaris

package file

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

const blkgetsize64 = 0x80081272

// DeviceSize returns the size in bytes of the backing store at pathName.
// For a regular file this is just its length; for a block device (the
// common case when pointing the engine at a raw partition rather than an
// image file) regular stat calls report 0, so the size is probed with the
// BLKGETSIZE64 ioctl instead, mirroring the teacher's own ioctl-based
// partition-table re-read.
func DeviceSize(pathName string) (int64, error) {
	info, err := os.Stat(pathName)
	if err != nil {
		return 0, fmt.Errorf("could not stat %s: %w", pathName, err)
	}
	if info.Mode()&os.ModeDevice == 0 {
		return info.Size(), nil
	}

	f, err := os.Open(pathName)
	if err != nil {
		return 0, fmt.Errorf("could not open device %s: %w", pathName, err)
	}
	defer f.Close()

	var size uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), blkgetsize64, uintptr(unsafe.Pointer(&size)))
	if errno != 0 {
		return 0, fmt.Errorf("could not determine size of block device %s: %w", pathName, errno)
	}
	return int64(size), nil
}
