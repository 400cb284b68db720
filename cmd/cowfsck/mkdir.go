package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var mkdirCmd = &cobra.Command{
	Use:   "mkdir IMAGE PATH",
	Short: "Create a directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, err := openVolume(args[0], false, 0)
		if err != nil {
			return err
		}
		if err := fs.Mkdir(args[1], 0o755); err != nil {
			return fmt.Errorf("mkdir %s failed: %w", args[1], err)
		}
		return nil
	},
}
