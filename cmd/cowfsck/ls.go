package main

import (
	"fmt"
	"path"
	"sort"

	"github.com/spf13/cobra"

	"github.com/cowvolume/cowfs/filesystem/cowfs"
)

var (
	flagLSRecursive bool
	flagLSSnapshot  uint32
)

var lsCmd = &cobra.Command{
	Use:   "ls IMAGE [PATH]",
	Short: "List a directory's contents",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dirPath := "/"
		if len(args) == 2 {
			dirPath = args[1]
		}
		fs, err := openVolume(args[0], true, flagLSSnapshot)
		if err != nil {
			return err
		}
		return lsPath(fs, dirPath)
	},
}

func init() {
	lsCmd.Flags().BoolVarP(&flagLSRecursive, "recursive", "r", false, "descend into subdirectories")
	lsCmd.Flags().Uint32Var(&flagLSSnapshot, "checkpoint", 0, "list a historical checkpoint instead of the live volume")
}

func lsPath(fs *cowfs.FileSystem, dirPath string) error {
	names, err := fs.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("could not read %s: %w", dirPath, err)
	}
	sort.Strings(names)

	var subdirs []string
	for _, name := range names {
		childPath := path.Join(dirPath, name)
		st, err := fs.Stat(childPath)
		if err != nil {
			return fmt.Errorf("could not stat %s: %w", childPath, err)
		}
		kind := "-"
		if st.IsDir {
			kind = "d"
			subdirs = append(subdirs, childPath)
		}
		fmt.Printf("%s %6d %s\n", kind, st.Size, childPath)
	}

	if flagLSRecursive {
		for _, sub := range subdirs {
			if err := lsPath(fs, sub); err != nil {
				return err
			}
		}
	}
	return nil
}
