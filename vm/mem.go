package vm

// MemSize returns the capacity, in bytes, of the VM's single linear
// memory. It is always wasm.MemoryCapacity; this interpreter does not
// support memory.grow.
func (vm *VM) MemSize() int { return len(vm.memory) }

// MemRead copies len(dst) bytes out of linear memory starting at addr.
// It reports ErrMemoryOutOfRange rather than trapping, so embedders
// can inspect memory between invocations without recovering a panic.
func (vm *VM) MemRead(addr uint32, dst []byte) error {
	if uint64(addr)+uint64(len(dst)) > uint64(len(vm.memory)) {
		return ErrMemoryOutOfRange
	}
	copy(dst, vm.memory[addr:])
	return nil
}

// MemWrite copies src into linear memory starting at addr.
func (vm *VM) MemWrite(addr uint32, src []byte) error {
	if uint64(addr)+uint64(len(src)) > uint64(len(vm.memory)) {
		return ErrMemoryOutOfRange
	}
	copy(vm.memory[addr:], src)
	return nil
}

// GetMemory returns the VM's backing linear memory directly. Host
// functions that need random access (e.g. a WASI fd_write shim) should
// be registered closing over the *VM and call this rather than any
// pointer derived from a HostFunction's args.
func (vm *VM) GetMemory() []byte { return vm.memory }
