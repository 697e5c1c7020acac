// Package cmd is the embedder's command-line harness. It loads a
// module from disk, wires up the well-known host imports, and invokes
// an export by name.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "microwasm",
	Short:         "A minimal i32-only WebAssembly interpreter",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(dumpCmd)
}
