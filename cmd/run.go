package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vertexdlt/microwasm/host"
	"github.com/vertexdlt/microwasm/vm"
)

var runCmd = &cobra.Command{
	Use:   "run <module.wasm> <export> [args...]",
	Short: "Load a module, bind the well-known host imports, and invoke an export",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, cliArgs []string) error {
	path, export, argStrs := cliArgs[0], cliArgs[1], cliArgs[2:]

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read module: %w", err)
	}

	v, err := vm.New(raw)
	if err != nil {
		return fmt.Errorf("decode module: %w", err)
	}
	host.NewEnvironment(os.Stdout).Register(v)

	args := make([]int32, len(argStrs))
	for i, s := range argStrs {
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return fmt.Errorf("argument %d (%q) is not an i32: %w", i, s, err)
		}
		args[i] = int32(n)
	}

	result, err := v.InvokeExport(export, args...)
	if err != nil {
		color.Red("trap: %v", err)
		return err
	}
	color.Green("%s(%v) = %d", export, argStrs, result)
	return nil
}
