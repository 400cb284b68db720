package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flagCatSnapshot uint32

var catCmd = &cobra.Command{
	Use:   "cat IMAGE PATH",
	Short: "Print a file's contents to stdout",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, err := openVolume(args[0], true, flagCatSnapshot)
		if err != nil {
			return err
		}
		st, err := fs.Stat(args[1])
		if err != nil {
			return fmt.Errorf("could not stat %s: %w", args[1], err)
		}
		data, err := fs.ReadFile(args[1], 0, int(st.Size))
		if err != nil {
			return fmt.Errorf("could not read %s: %w", args[1], err)
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

var putCmd = &cobra.Command{
	Use:   "put IMAGE SRC DEST",
	Short: "Copy a local file into the volume, creating it at DEST",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("could not read %s: %w", args[1], err)
		}
		fs, err := openVolume(args[0], false, 0)
		if err != nil {
			return err
		}
		if err := fs.CreateFile(args[2], 0o644); err != nil {
			return fmt.Errorf("could not create %s: %w", args[2], err)
		}
		if err := fs.WriteFile(args[2], 0, data); err != nil {
			return fmt.Errorf("could not write %s: %w", args[2], err)
		}
		return nil
	},
}

func init() {
	catCmd.Flags().Uint32Var(&flagCatSnapshot, "checkpoint", 0, "read from a historical checkpoint instead of the live volume")
}
