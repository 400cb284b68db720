package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var flagCheckpointList bool

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint IMAGE",
	Short: "Force a checkpoint, or list existing ones with --list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagCheckpointList {
			fs, err := openVolume(args[0], true, 0)
			if err != nil {
				return err
			}
			ids, err := fs.Checkpoints()
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		}

		fs, err := openVolume(args[0], false, 0)
		if err != nil {
			return err
		}
		id, err := fs.CreateCheckpoint()
		if err != nil {
			return fmt.Errorf("checkpoint failed: %w", err)
		}
		fmt.Printf("created checkpoint %d\n", id)
		return nil
	},
}

func init() {
	checkpointCmd.Flags().BoolVar(&flagCheckpointList, "list", false, "list existing checkpoints instead of creating a new one")
}
