package main

import (
	"fmt"

	"github.com/cowvolume/cowfs/backend/file"
	"github.com/cowvolume/cowfs/filesystem/cowfs"
)

// openVolume mounts the volume at pathName, replaying its log, per
// cowfs.Open. readOnly controls the backing file's open mode; snapshot,
// if nonzero, remounts the volume at that checkpoint instead of live.
func openVolume(pathName string, readOnly bool, snapshot uint32) (*cowfs.FileSystem, error) {
	size, err := file.DeviceSize(pathName)
	if err != nil {
		return nil, fmt.Errorf("could not determine volume size: %w", err)
	}

	b, err := file.OpenFromPath(pathName, readOnly)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", pathName, err)
	}

	fs, err := cowfs.Open(b, size)
	if err != nil {
		return nil, fmt.Errorf("could not mount %s: %w", pathName, err)
	}

	if snapshot != 0 {
		fs, err = fs.MountSnapshot(snapshot)
		if err != nil {
			return nil, fmt.Errorf("could not mount checkpoint %d: %w", snapshot, err)
		}
	}
	return fs, nil
}
