package cmd

import (
	"fmt"
	"os"

	"github.com/go-interpreter/wagon/disasm"
	"github.com/go-interpreter/wagon/wasm"
	"github.com/spf13/cobra"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <module.wasm>",
	Short: "Disassemble a module, or hex-dump it if wagon can't parse it",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

func runDump(cmd *cobra.Command, args []string) error {
	path := args[0]
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open module: %w", err)
	}
	defer f.Close()

	m, err := wasm.ReadModule(f, nil)
	if err != nil {
		// wagon enforces the full Wasm spec (tables, globals, multi
		// result, ...); this interpreter's own writers may emit
		// modules wagon rejects for reasons that don't matter to this
		// engine. Fall back to a raw hex dump rather than failing.
		return hexDump(path)
	}
	printDisassembly(path, m)
	return nil
}

func printDisassembly(path string, m *wasm.Module) {
	fmt.Printf("%s: module version %#x\n", path, m.Version)
	if m.Function == nil {
		return
	}
	for i := range m.Function.Types {
		fn := m.GetFunction(i)
		fmt.Printf("\nfunc[%d]: %v\n", i, fn.Sig)
		dis, err := disasm.Disassemble(*fn, m)
		if err != nil {
			fmt.Printf("  <disassembly unavailable: %v>\n", err)
			continue
		}
		for _, instr := range dis.Code {
			fmt.Printf("  %-12s %v\n", instr.Op.Name, instr.Immediates)
		}
	}
}

// hexDump prints 16 bytes per line with an offset prefix and a blank
// column after the eighth byte.
func hexDump(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read module: %w", err)
	}
	fmt.Printf("--- Wasm Code Dump (size: %d bytes) ---\n", len(raw))
	for i := 0; i < len(raw); i += 16 {
		fmt.Printf("%08x: ", i)
		for j := 0; j < 16; j++ {
			if i+j < len(raw) {
				fmt.Printf("%02x ", raw[i+j])
			} else {
				fmt.Print("   ")
			}
			if j == 7 {
				fmt.Print(" ")
			}
		}
		fmt.Println()
	}
	return nil
}
