package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cowvolume/cowfs/backend/file"
	"github.com/cowvolume/cowfs/filesystem/cowfs"
)

var (
	flagFormatSize       string
	flagFormatInodeRatio int64
	flagFormatInodeCount uint32
)

var formatCmd = &cobra.Command{
	Use:   "format IMAGE",
	Short: "Create a new, empty cowfs volume image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		size, err := parseSize(flagFormatSize)
		if err != nil {
			return err
		}
		b, err := file.CreateFromPath(args[0], size)
		if err != nil {
			return fmt.Errorf("could not create %s: %w", args[0], err)
		}
		fs, err := cowfs.Format(b, size, &cowfs.Params{
			InodeRatio: flagFormatInodeRatio,
			InodeCount: flagFormatInodeCount,
		})
		if err != nil {
			return fmt.Errorf("format failed: %w", err)
		}
		usage, err := fs.Usage()
		if err != nil {
			return err
		}
		log.WithFields(logrus.Fields{
			"path":         args[0],
			"size_bytes":   size,
			"total_inodes": usage.TotalInodes,
			"total_blocks": usage.TotalBlocks,
		}).Info("formatted volume")
		return nil
	},
}

func init() {
	formatCmd.Flags().StringVar(&flagFormatSize, "size", "64M", "image size, e.g. 64M, 2G")
	formatCmd.Flags().Int64Var(&flagFormatInodeRatio, "inode-ratio", 0, "approximate bytes per inode (default 16384)")
	formatCmd.Flags().Uint32Var(&flagFormatInodeCount, "inode-count", 0, "override the computed inode count")
}

// parseSize accepts a plain byte count or a K/M/G-suffixed shorthand, the
// same shorthand the teacher's own image-size flags accept.
func parseSize(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("size must not be empty")
	}
	mult := int64(1)
	suffix := s[len(s)-1]
	switch suffix {
	case 'k', 'K':
		mult = 1 << 10
		s = s[:len(s)-1]
	case 'm', 'M':
		mult = 1 << 20
		s = s[:len(s)-1]
	case 'g', 'G':
		mult = 1 << 30
		s = s[:len(s)-1]
	}
	var n int64
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("size must be positive, got %q", s)
	}
	return n * mult, nil
}
