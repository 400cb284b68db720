// Command cowfsck formats, inspects, and edits cowfs volumes: a single
// testable command tree in place of the teacher's one-off func main demos
// under examples/.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	flagVerbose bool
	log         = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "cowfsck",
	Short: "Format, inspect, and edit cowfs volumes",
}

func commandInit() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if flagVerbose {
			log.SetLevel(logrus.DebugLevel)
		}
		return nil
	}

	rootCmd.AddCommand(formatCmd)
	rootCmd.AddCommand(fsckCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(catCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(mkdirCmd)
	rootCmd.AddCommand(checkpointCmd)
}

func main() {
	commandInit()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
