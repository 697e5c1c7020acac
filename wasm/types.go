// Package wasm decodes the binary module sections this interpreter
// understands and projects them into the VM-internal tables described
// by the data model: function types, the combined import+internal
// function index space, exports, and memory sizing. It does not
// pre-decode function bodies — those are interpreted lazily by vm.
package wasm

// Magic is the 4-byte "\0asm" header every module begins with.
var Magic = [4]byte{0x00, 'a', 's', 'm'}

// Version is the only binary format version this decoder accepts.
const Version uint32 = 1

// ValueType is a Wasm value type byte. Only ValueTypeI32 is meaningful
// to execution; other bytes are stored as read (for correct cursor
// bookkeeping) but never produced on the operand stack.
type ValueType byte

// ValueTypeI32 is the only value type this interpreter executes.
const ValueTypeI32 ValueType = 0x7F

// Section ids, in the order the Wasm binary format prescribes them.
const (
	SecType     byte = 1
	SecImport   byte = 2
	SecFunction byte = 3
	SecTable    byte = 4
	SecMemory   byte = 5
	SecGlobal   byte = 6
	SecExport   byte = 7
	SecStart    byte = 8
	SecElement  byte = 9
	SecCode     byte = 10
	SecData     byte = 11
)

// Import external kinds, per the binary import-desc encoding.
const (
	ExternalFunction byte = 0x00
	ExternalTable    byte = 0x01
	ExternalMemory   byte = 0x02
	ExternalGlobal   byte = 0x03
)

// Export kinds this decoder accepts; an export of any other kind
// (table, global) fails the decode with an error.
const (
	ExportFunction byte = 0x00
	ExportMemory   byte = 0x02
)

// FuncType is a function signature: ordered parameter types followed
// by ordered result types. This interpreter supports at most one
// result, matching the lack of multi-value support.
type FuncType struct {
	Params  []ValueType
	Results []ValueType
}

// Import is one function import. The slice of these is parallel to
// the head of the combined function index space: Imports[i] is
// function index i. The decoder leaves every import unbound; vm.Bind
// attaches host callbacks by (ModuleName, FieldName) before
// execution. Table, memory, and global imports are decoded (so the
// cursor stays in sync) but not retained.
type Import struct {
	ModuleName string
	FieldName  string
	TypeIndex  uint32
}

// Export is a single entry of the Export section.
type Export struct {
	Name  string
	Kind  byte
	Index uint32
}

// FuncDesc describes one entry of the combined function index space:
// indices below Module.ImportFuncCount are imports (CodeOffset is
// meaningless for them); indices at or above it are internal
// functions, and CodeOffset points at the LEB128 local-group count
// that opens their body in the module's byte buffer.
type FuncDesc struct {
	TypeIndex  uint32
	CodeOffset uint32
}

// Module holds every VM-internal table produced by decoding a Wasm
// binary. The VM borrows these tables for its lifetime; Module never
// mutates them after Decode returns.
type Module struct {
	Types   []FuncType
	Imports []Import

	// Functions is the combined import+internal function index space:
	// Functions[0:ImportFuncCount] mirrors Imports (one FuncDesc per
	// function import, in declaration order), and
	// Functions[ImportFuncCount:] are the module's own functions.
	Functions       []FuncDesc
	ImportFuncCount int

	Exports map[string]Export

	// MemoryInitialPages and MemoryMaxPages are informational; the VM
	// always allocates a single fixed 64 KiB linear memory regardless
	// of what the Memory section declares.
	MemoryInitialPages uint32
	MemoryMaxPages     uint32
	MemoryMaxPresent   bool
}

// GetFunction returns the descriptor for function index i, or nil if
// i is out of range.
func (m *Module) GetFunction(i int) *FuncDesc {
	if i < 0 || i >= len(m.Functions) {
		return nil
	}
	return &m.Functions[i]
}

// IsImportFunc reports whether function index i refers to an import.
func (m *Module) IsImportFunc(i int) bool {
	return i >= 0 && i < m.ImportFuncCount
}
