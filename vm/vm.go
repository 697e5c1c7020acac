// Package vm implements the stack-machine execution engine: three
// fixed-size stacks (operand, block, call) plus a flat locals array,
// driven by a byte-at-a-time interpreter over a decoded module.
package vm

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"

	"github.com/vertexdlt/microwasm/leb128"
	"github.com/vertexdlt/microwasm/opcode"
	"github.com/vertexdlt/microwasm/util"
	"github.com/vertexdlt/microwasm/wasm"
)

// Fixed capacities for every VM resource. None grow; exceeding one is
// always a trap, never a reallocation.
const (
	StackSize      = 256
	BlockStackSize = 64
	CallStackSize  = 64
	LocalCount     = 16
)

// VM is a single-threaded interpreter over one decoded module. All
// three stacks, the locals array, and linear memory are fixed-size and
// owned by the VM; nothing here is safe for concurrent use.
type VM struct {
	module *wasm.Module
	code   []byte // the raw module bytes function bodies are read from
	memory []byte

	stack [StackSize]int32
	sp    int

	blocks  [BlockStackSize]Block
	blockSP int

	frames  [CallStackSize]Frame
	frameSP int

	locals [LocalCount]int32

	hostFuncs []HostFunction // parallel to module.Imports

	gasPolicy GasPolicy
	gasUsed   uint64

	pc uint32
}

// New decodes raw as a Wasm binary module and returns a VM ready for
// host binding. The VM owns a freshly allocated 64 KiB linear memory;
// raw is borrowed (never mutated) for the VM's lifetime.
func New(raw []byte) (*VM, error) {
	memory := make([]byte, wasm.MemoryCapacity)
	m, err := wasm.Decode(raw, memory)
	if err != nil {
		return nil, err
	}
	return &VM{
		module:    m,
		code:      raw,
		memory:    memory,
		hostFuncs: make([]HostFunction, len(m.Imports)),
		gasPolicy: FreeGasPolicy{},
	}, nil
}

// SetGasPolicy installs a metering policy; the default is unmetered.
func (vm *VM) SetGasPolicy(p GasPolicy) { vm.gasPolicy = p }

// GetFunctionIndex resolves an export name to a function index. It
// reports false for memory exports or names that don't exist.
func (vm *VM) GetFunctionIndex(name string) (int, bool) {
	exp, ok := vm.module.Exports[name]
	if !ok || exp.Kind != wasm.ExportFunction {
		return 0, false
	}
	return int(exp.Index), true
}

// Invoke primes the operand stack with args, runs function fidx to
// completion, and returns whatever is left on top of the operand
// stack (0 if it's empty — a void-result function). A trap anywhere
// during execution surfaces as a non-nil error; the VM's memory and
// decoded tables remain valid for the next Invoke, only the stacks are
// reset.
func (vm *VM) Invoke(fidx int, args ...int32) (result int32, err error) {
	defer func() {
		if r := recover(); r != nil {
			if ee, ok := r.(*ExecError); ok {
				err = ee
				return
			}
			panic(r)
		}
	}()

	if vm.module.IsImportFunc(fidx) {
		return 0, &ExecError{Op: "invoke", Err: ErrNotAFunction}
	}
	fd := vm.module.GetFunction(fidx)
	if fd == nil {
		return 0, &ExecError{Op: "invoke", Err: ErrUnknownExport}
	}
	if len(args) != len(vm.module.Types[fd.TypeIndex].Params) {
		return 0, &ExecError{Op: "invoke", Err: ErrWrongNumberOfArgs}
	}

	vm.sp, vm.blockSP, vm.frameSP, vm.gasUsed = 0, 0, 0, 0
	for _, a := range args {
		vm.push(a)
	}
	vm.enterFunction(fidx)
	vm.run()

	if vm.sp == 0 {
		return 0, nil
	}
	return vm.stack[vm.sp-1], nil
}

// InvokeExport is Invoke by export name, the embedder's usual entry
// point.
func (vm *VM) InvokeExport(name string, args ...int32) (int32, error) {
	idx, ok := vm.GetFunctionIndex(name)
	if !ok {
		return 0, &ExecError{Op: "invoke", Err: ErrUnknownExport}
	}
	return vm.Invoke(idx, args...)
}

// run interprets instructions starting at vm.pc until the outermost
// activation returns (or something traps, unwound by Invoke's
// recover).
func (vm *VM) run() {
	for {
		if vm.pc >= uint32(len(vm.code)) {
			trap("fetch", ErrPCOutOfRange)
		}
		op := opcode.Opcode(vm.code[vm.pc])
		vm.pc++
		vm.chargeGas(op)

		switch op {
		case opcode.Unreachable:
			trap("unreachable", ErrUnreachable)
		case opcode.Nop:
			// no-op

		case opcode.Block, opcode.Loop, opcode.If:
			vm.pc++ // blocktype byte, unused
			endPC, elsePC, err := scanBlock(vm.code, vm.pc)
			if err != nil {
				trap("block", err)
			}
			kind := blockPlain
			switch op {
			case opcode.Loop:
				kind = blockLoop
			case opcode.If:
				kind = blockIf
			}
			b := Block{kind: kind, startPC: vm.pc, endPC: endPC, elsePC: elsePC}
			if op == opcode.If {
				cond := vm.pop()
				if cond == 0 {
					if elsePC != 0 {
						vm.pushBlock(b)
						vm.pc = elsePC
					} else {
						// No else arm: the whole if is skipped, so
						// its frame is never pushed.
						vm.pc = endPC
					}
				} else {
					vm.pushBlock(b)
				}
			} else {
				vm.pushBlock(b)
			}

		case opcode.Else:
			// Only reached by falling off the end of a then-arm. The
			// jump lands past the matching end, so the if frame is
			// popped here rather than by an End dispatch.
			vm.pc = vm.currentBlock().endPC
			vm.blockSP--

		case opcode.End:
			if vm.blockSP > vm.frameBaseBlockSP() {
				vm.blockSP--
			} else if vm.returnFromFunction() {
				return
			}

		case opcode.Br:
			depth := vm.readULEB32()
			vm.branch(int(depth))
		case opcode.BrIf:
			depth := vm.readULEB32()
			if vm.pop() != 0 {
				vm.branch(int(depth))
			}

		case opcode.Return:
			vm.blockSP = vm.frameBaseBlockSP()
			if vm.returnFromFunction() {
				return
			}

		case opcode.Call:
			idx := vm.readULEB32()
			vm.call(int(idx))

		case opcode.Drop:
			vm.pop()

		case opcode.LocalGet:
			idx := vm.readULEB32()
			vm.push(vm.locals[idx])
		case opcode.LocalSet:
			idx := vm.readULEB32()
			vm.locals[idx] = vm.pop()
		case opcode.LocalTee:
			idx := vm.readULEB32()
			v := vm.pop()
			vm.locals[idx] = v
			vm.push(v)

		case opcode.I32Load:
			vm.readULEB32() // alignment hint, ignored
			offset := vm.readULEB32()
			addr := uint32(vm.pop()) + offset
			vm.push(vm.loadI32(addr))
		case opcode.I32Store:
			vm.readULEB32()
			offset := vm.readULEB32()
			val := vm.pop()
			addr := uint32(vm.pop()) + offset
			vm.storeI32(addr, val)

		case opcode.I32Const:
			vm.push(vm.readSLEB32())

		case opcode.I32Eqz:
			vm.push(b2i(vm.pop() == 0))
		case opcode.I32LtS:
			b, a := vm.pop(), vm.pop()
			vm.push(b2i(a < b))
		case opcode.I32LtU:
			b, a := vm.pop(), vm.pop()
			vm.push(b2i(uint32(a) < uint32(b)))
		case opcode.I32GtS:
			b, a := vm.pop(), vm.pop()
			vm.push(b2i(a > b))
		case opcode.I32GtU:
			b, a := vm.pop(), vm.pop()
			vm.push(b2i(uint32(a) > uint32(b)))
		case opcode.I32LeS:
			b, a := vm.pop(), vm.pop()
			vm.push(b2i(a <= b))
		case opcode.I32LeU:
			b, a := vm.pop(), vm.pop()
			vm.push(b2i(uint32(a) <= uint32(b)))
		case opcode.I32GeS:
			b, a := vm.pop(), vm.pop()
			vm.push(b2i(a >= b))
		case opcode.I32GeU:
			b, a := vm.pop(), vm.pop()
			vm.push(b2i(uint32(a) >= uint32(b)))

		case opcode.I32Clz:
			vm.push(int32(bits.LeadingZeros32(uint32(vm.pop()))))
		case opcode.I32Ctz:
			vm.push(int32(bits.TrailingZeros32(uint32(vm.pop()))))

		case opcode.I32Add:
			b, a := vm.pop(), vm.pop()
			vm.push(a + b)
		case opcode.I32Sub:
			b, a := vm.pop(), vm.pop()
			vm.push(a - b)
		case opcode.I32Mul:
			b, a := vm.pop(), vm.pop()
			vm.push(a * b)
		case opcode.I32DivS:
			b, a := vm.pop(), vm.pop()
			if b == 0 {
				trap("i32.div_s", ErrDivideByZero)
			}
			if a == math.MinInt32 && b == -1 {
				trap("i32.div_s", ErrIntegerOverflow)
			}
			vm.push(a / b)
		case opcode.I32DivU:
			b, a := vm.pop(), vm.pop()
			if b == 0 {
				trap("i32.div_u", ErrDivideByZero)
			}
			vm.push(int32(uint32(a) / uint32(b)))
		case opcode.I32RemS:
			b, a := vm.pop(), vm.pop()
			if b == 0 {
				trap("i32.rem_s", ErrDivideByZero)
			}
			if a == math.MinInt32 && b == -1 {
				vm.push(0)
			} else {
				vm.push(a % b)
			}
		case opcode.I32RemU:
			b, a := vm.pop(), vm.pop()
			if b == 0 {
				trap("i32.rem_u", ErrDivideByZero)
			}
			vm.push(int32(uint32(a) % uint32(b)))

		default:
			trap("exec", fmt.Errorf("%w: 0x%02x", ErrUnknownOpcode, byte(op)))
		}
	}
}

// enterFunction jumps the PC to fidx's recorded code offset, pops its
// parameters into locals (rightmost parameter off first, landing at
// the highest index), zeroes the rest of the locals array, then
// decodes the local-groups header, leaving the PC at the first
// instruction.
func (vm *VM) enterFunction(fidx int) {
	fd := vm.module.GetFunction(fidx)
	if fd == nil {
		trap("call", fmt.Errorf("function index %d out of range", fidx))
	}
	ft := vm.module.Types[fd.TypeIndex]
	paramCount := len(ft.Params)
	if paramCount > LocalCount {
		trap("prologue", ErrTooManyLocals)
	}
	if vm.sp < paramCount {
		trap("call", ErrStackUnderflow)
	}
	for i := paramCount - 1; i >= 0; i-- {
		vm.locals[i] = vm.pop()
	}
	for i := paramCount; i < LocalCount; i++ {
		vm.locals[i] = 0
	}

	vm.pc = fd.CodeOffset
	groupCount := vm.readULEB32()
	next := paramCount
	for g := uint32(0); g < groupCount; g++ {
		n := vm.readULEB32()
		vm.readU8() // value type, always i32 in this interpreter
		for k := uint32(0); k < n; k++ {
			if next >= LocalCount {
				trap("prologue", ErrTooManyLocals)
			}
			vm.locals[next] = 0
			next++
		}
	}
}

// call dispatches idx by position: indices below ImportFuncCount call
// out to a bound host function; higher indices push a call frame and
// enter the internal function.
func (vm *VM) call(idx int) {
	if vm.module.IsImportFunc(idx) {
		vm.callImport(idx)
		return
	}
	if vm.frameSP >= CallStackSize {
		trap("call", ErrCallOverflow)
	}
	vm.frames[vm.frameSP] = Frame{returnPC: vm.pc, savedLocals: vm.locals, baseBlockSP: vm.blockSP}
	vm.frameSP++
	vm.enterFunction(idx)
}

// callImport hands the host function a slice view directly into the
// operand stack, per the calling convention in the design notes, then
// pops the arguments and pushes the result if the import's type
// declares one.
func (vm *VM) callImport(idx int) {
	fn := vm.hostFuncs[idx]
	if fn == nil {
		trap("call", ErrUnboundImport)
	}
	imp := vm.module.Imports[idx]
	ft := vm.module.Types[imp.TypeIndex]
	n := len(ft.Params)
	if vm.sp < n {
		trap("call", ErrStackUnderflow)
	}
	args := vm.stack[vm.sp-n : vm.sp]
	result := fn(args)
	vm.sp -= n
	if len(ft.Results) > 0 {
		vm.push(result)
	}
}

// returnFromFunction pops a call frame and resumes the caller. It
// reports true when there is no caller left — the top-level
// invocation is complete and run should stop.
func (vm *VM) returnFromFunction() bool {
	if vm.frameSP == 0 {
		return true
	}
	vm.frameSP--
	f := vm.frames[vm.frameSP]
	vm.locals = f.savedLocals
	vm.pc = f.returnPC
	vm.blockSP = f.baseBlockSP
	return false
}

// frameBaseBlockSP is the block-stack depth at which the current
// activation began: 0 at the top level, or the calling frame's
// recorded depth otherwise. End and return use it to tell "pop an
// inner block" apart from "this activation is finished".
func (vm *VM) frameBaseBlockSP() int {
	if vm.frameSP == 0 {
		return 0
	}
	return vm.frames[vm.frameSP-1].baseBlockSP
}

// branch implements br/br_if's target resolution: a loop target jumps
// to its head and keeps its frame; any other target jumps past its
// end and discards everything from the target up.
func (vm *VM) branch(depth int) {
	base := vm.frameBaseBlockSP()
	target := vm.blockSP - 1 - depth
	if target < base {
		trap("br", ErrBadBranchTarget)
	}
	b := vm.blocks[target]
	if b.kind == blockLoop {
		vm.pc = b.startPC
		vm.blockSP = target + 1
	} else {
		vm.pc = b.endPC
		vm.blockSP = target
	}
}

func (vm *VM) currentBlock() *Block {
	if vm.blockSP == 0 {
		trap("else", ErrBadBranchTarget)
	}
	return &vm.blocks[vm.blockSP-1]
}

func (vm *VM) pushBlock(b Block) {
	if vm.blockSP >= BlockStackSize {
		trap("block", ErrBlockOverflow)
	}
	vm.blocks[vm.blockSP] = b
	vm.blockSP++
}

func (vm *VM) push(v int32) {
	if vm.sp >= StackSize {
		trap("push", ErrStackOverflow)
	}
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() int32 {
	if vm.sp <= 0 {
		trap("pop", ErrStackUnderflow)
	}
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) loadI32(addr uint32) int32 {
	if uint64(addr)+4 > uint64(len(vm.memory)) {
		trap("i32.load", ErrMemoryOutOfRange)
	}
	return int32(binary.LittleEndian.Uint32(vm.memory[addr:]))
}

func (vm *VM) storeI32(addr uint32, v int32) {
	if uint64(addr)+4 > uint64(len(vm.memory)) {
		trap("i32.store", ErrMemoryOutOfRange)
	}
	binary.LittleEndian.PutUint32(vm.memory[addr:], uint32(v))
}

func (vm *VM) chargeGas(op opcode.Opcode) {
	limit := vm.gasPolicy.Limit()
	vm.gasUsed += vm.gasPolicy.Cost(op)
	if limit > 0 && vm.gasUsed > limit {
		trap("gas", ErrOutOfGas)
	}
}

// readU8, readULEB32 and readSLEB32 fetch from vm.code at vm.pc,
// advancing it by reference — the same cursor discipline as
// util.ByteReader, just addressed through the VM's own PC register
// instead of a standalone reader.
func (vm *VM) readU8() byte {
	if vm.pc >= uint32(len(vm.code)) {
		trap("fetch", ErrPCOutOfRange)
	}
	b := vm.code[vm.pc]
	vm.pc++
	return b
}

func (vm *VM) readULEB32() uint32 {
	br := util.NewByteReader(vm.code)
	br.Seek(vm.pc)
	v, err := leb128.ReadUint32(br)
	if err != nil {
		trap("decode", err)
	}
	vm.pc = br.Pos()
	return v
}

func (vm *VM) readSLEB32() int32 {
	br := util.NewByteReader(vm.code)
	br.Seek(vm.pc)
	v, err := leb128.ReadInt32(br)
	if err != nil {
		trap("decode", err)
	}
	vm.pc = br.Pos()
	return v
}

func b2i(v bool) int32 {
	if v {
		return 1
	}
	return 0
}
