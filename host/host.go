// Package host implements the well-known host imports an embedder
// typically wires up: a diagnostic print, a toy adder used in examples
// throughout this repository's tests, and a minimal WASI
// fd_write shim sufficient for a module to print to stdout.
//
// A function that needs VM state (fd_write) closes over the *vm.VM it
// serves, captured once at Register time. The callback's args slice is a view of
// the operand stack, never a handle to the VM itself — a host
// function must not try to derive other VM state from it.
package host

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vertexdlt/microwasm/vm"
)

// Environment is a small, mutable registry of host functions an
// embedder can bind onto a VM's unresolved imports. Stdout receives
// print_i32 output and fd=1 writes; it has no default, and print_i32
// and fd_write write to it without a nil check. NewEnvironment sets it.
type Environment struct {
	Stdout io.Writer
}

// NewEnvironment returns an Environment that writes fd=1 output to w.
func NewEnvironment(w io.Writer) *Environment {
	return &Environment{Stdout: w}
}

// Register binds every well-known import this package knows about
// onto v, under the "env" and "wasi_snapshot_preview1" module names.
// Imports the module doesn't declare are simply never matched by
// vm.VM.Bind, which is a no-op in that case.
func (e *Environment) Register(v *vm.VM) {
	v.Bind("env", "print_i32", e.printI32())
	v.Bind("env", "add", addI32())
	v.Bind("wasi_snapshot_preview1", "fd_write", e.fdWrite(v))
}

// printI32 implements env.print_i32 : (i32) -> (). It needs no VM
// access, just the one argument.
func (e *Environment) printI32() vm.HostFunction {
	return func(args []int32) int32 {
		fmt.Fprintf(e.Stdout, "print_i32: %d\n", args[0])
		return 0
	}
}

// addI32 implements env.add : (i32, i32) -> i32, the example import
// exercised throughout this repository's tests.
func addI32() vm.HostFunction {
	return func(args []int32) int32 {
		return args[0] + args[1]
	}
}

// fdWrite implements wasi_snapshot_preview1.fd_write. It closes over v
// to reach linear memory directly via vm.VM.GetMemory.
func (e *Environment) fdWrite(v *vm.VM) vm.HostFunction {
	return func(args []int32) int32 {
		if len(args) != 4 {
			return -1 // EINVAL
		}
		fd := args[0]
		iovsPtr := uint32(args[1])
		iovsLen := uint32(args[2])
		nwrittenPtr := uint32(args[3])

		if fd != 1 {
			return -1 // EBADF: only stdout is supported
		}

		mem := v.GetMemory()
		var written uint32
		for i := uint32(0); i < iovsLen; i++ {
			recOff := iovsPtr + i*8
			if uint64(recOff)+8 > uint64(len(mem)) {
				return -1 // EFAULT
			}
			base := binary.LittleEndian.Uint32(mem[recOff:])
			length := binary.LittleEndian.Uint32(mem[recOff+4:])
			if uint64(base)+uint64(length) > uint64(len(mem)) {
				return -1 // EFAULT
			}
			n, err := e.Stdout.Write(mem[base : base+length])
			if err != nil {
				return -1 // EIO
			}
			written += uint32(n)
		}

		if uint64(nwrittenPtr)+4 > uint64(len(mem)) {
			return -1 // EFAULT
		}
		binary.LittleEndian.PutUint32(mem[nwrittenPtr:], written)
		return 0 // success
	}
}
