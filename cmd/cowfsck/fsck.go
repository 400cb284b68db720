package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var fsckCmd = &cobra.Command{
	Use:   "fsck IMAGE",
	Short: "Mount a volume, replay its log, and report structural problems",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, err := openVolume(args[0], true, 0)
		if err != nil {
			return err
		}
		report, err := fs.Fsck()
		if err != nil {
			return fmt.Errorf("fsck failed: %w", err)
		}
		fmt.Printf("inodes visited: %d\n", report.InodesVisited)
		if len(report.Problems) == 0 {
			fmt.Println("no problems found")
			return nil
		}
		for _, p := range report.Problems {
			fmt.Printf("problem: %s\n", p)
		}
		return fmt.Errorf("%d problem(s) found", len(report.Problems))
	},
}
