package wasm

import "testing"

// addModule is the hand-encoded binary for:
//
//	(module
//	  (func (export "add") (param i32 i32) (result i32)
//	    local.get 0
//	    local.get 1
//	    i32.add))
var addModule = []byte{
	0x00, 0x61, 0x73, 0x6d, // magic
	0x01, 0x00, 0x00, 0x00, // version

	0x01, 0x07, // type section, size 7
	0x01,             // 1 type
	0x60,             // func form
	0x02, 0x7f, 0x7f, // 2 params, i32 i32
	0x01, 0x7f, // 1 result, i32

	0x03, 0x02, // function section, size 2
	0x01, 0x00, // 1 function, type index 0

	0x07, 0x07, // export section, size 7
	0x01,                         // 1 export
	0x03, 0x61, 0x64, 0x64, // "add"
	0x00, // kind: function
	0x00, // func index 0

	0x0a, 0x09, // code section, size 9
	0x01,       // 1 function body
	0x07,       // body size 7
	0x00,       // 0 local groups
	0x20, 0x00, // local.get 0
	0x20, 0x01, // local.get 1
	0x6a,       // i32.add
	0x0b,       // end
}

func TestDecodeAddModule(t *testing.T) {
	mem := make([]byte, MemoryCapacity)
	m, err := Decode(addModule, mem)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if len(m.Types) != 1 {
		t.Fatalf("expected 1 type, got %d", len(m.Types))
	}
	if len(m.Types[0].Params) != 2 || len(m.Types[0].Results) != 1 {
		t.Fatalf("unexpected type shape: %+v", m.Types[0])
	}
	if len(m.Functions) != 1 || m.ImportFuncCount != 0 {
		t.Fatalf("expected 1 internal function, got %d functions (%d imports)", len(m.Functions), m.ImportFuncCount)
	}
	exp, ok := m.Exports["add"]
	if !ok {
		t.Fatal("expected export \"add\"")
	}
	if exp.Kind != ExportFunction || exp.Index != 0 {
		t.Fatalf("unexpected export: %+v", exp)
	}
}

func TestDecodeBadMagic(t *testing.T) {
	bad := append([]byte{}, addModule...)
	bad[0] = 0xff
	if _, err := Decode(bad, make([]byte, MemoryCapacity)); err == nil {
		t.Fatal("expected error on bad magic")
	}
}

func TestDecodeUnknownSectionSkipped(t *testing.T) {
	// Insert a bogus custom section (id 0) with 3 bytes of junk right
	// after the header; decode must skip it by length and continue.
	withCustom := append([]byte{}, addModule[:8]...)
	withCustom = append(withCustom, 0x00, 0x03, 0xde, 0xad, 0xbe)
	withCustom = append(withCustom, addModule[8:]...)

	m, err := Decode(withCustom, make([]byte, MemoryCapacity))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if len(m.Functions) != 1 {
		t.Fatalf("expected decode to continue past custom section, got %d functions", len(m.Functions))
	}
}

// dataModule stores the byte 120 at address 0 via a Data segment, and
// declares a single memory.
//
//	(module (memory 1) (data (i32.const 0) "\78"))
var dataModule = []byte{
	0x00, 0x61, 0x73, 0x6d,
	0x01, 0x00, 0x00, 0x00,

	0x05, 0x03, // memory section, size 3
	0x01,       // 1 memory
	0x00, 0x01, // flags=0 (no max), min=1 page

	0x0b, 0x07, // data section, size 7
	0x01,             // 1 segment
	0x00,             // memory index 0
	0x41, 0x00, 0x0b, // i32.const 0, end
	0x01, 0x78, // size 1, byte 0x78
}

// TestDecodeNonFunctionImportsSkipped: a memory import ahead of a
// function import must not occupy a slot in the function-import index
// space, and the function import must still land at function index 0.
func TestDecodeNonFunctionImportsSkipped(t *testing.T) {
	raw := []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,

		0x01, 0x04, 0x01, 0x60, 0x00, 0x00, // type: () -> ()

		0x02, 0x16, 0x02, // import section, 2 imports
		0x03, 'e', 'n', 'v', 0x03, 'm', 'e', 'm', // env.mem
		0x02, 0x00, 0x01, // kind memory, flags=0, min=1
		0x03, 'e', 'n', 'v', 0x03, 'l', 'o', 'g', // env.log
		0x00, 0x00, // kind func, type 0
	}
	m, err := Decode(raw, make([]byte, MemoryCapacity))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if m.ImportFuncCount != 1 || len(m.Imports) != 1 {
		t.Fatalf("expected exactly 1 function import, got count=%d imports=%d", m.ImportFuncCount, len(m.Imports))
	}
	if m.Imports[0].FieldName != "log" {
		t.Errorf("function import at index 0 is %q, want %q", m.Imports[0].FieldName, "log")
	}
	if m.MemoryInitialPages != 1 {
		t.Errorf("imported memory pages = %d, want 1", m.MemoryInitialPages)
	}
}

// TestDecodeInlineMemoryExport covers the non-standard Memory-section
// flag bit 7: an inline name ahead of the page counts, equivalent to
// an Export-section memory entry.
func TestDecodeInlineMemoryExport(t *testing.T) {
	raw := []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,

		0x05, 0x0a, // memory section, size 10
		0x01,                               // 1 memory
		0x80,                               // flags: inline export name
		0x06, 'm', 'e', 'm', 'o', 'r', 'y', // "memory"
		0x01, // min=1 page
	}
	m, err := Decode(raw, make([]byte, MemoryCapacity))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	exp, ok := m.Exports["memory"]
	if !ok {
		t.Fatal("expected inline memory export")
	}
	if exp.Kind != ExportMemory || exp.Index != 0 {
		t.Fatalf("unexpected export: %+v", exp)
	}
	if m.MemoryInitialPages != 1 {
		t.Errorf("initial pages = %d, want 1", m.MemoryInitialPages)
	}
}

func TestDecodeDataSegment(t *testing.T) {
	mem := make([]byte, MemoryCapacity)
	m, err := Decode(dataModule, mem)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if m.MemoryInitialPages != 1 {
		t.Fatalf("expected 1 initial page, got %d", m.MemoryInitialPages)
	}
	if mem[0] != 0x78 {
		t.Fatalf("expected memory[0] = 0x78, got 0x%02x", mem[0])
	}
	for i := 1; i < 4; i++ {
		if mem[i] != 0 {
			t.Fatalf("expected memory[%d] = 0, got 0x%02x", i, mem[i])
		}
	}
}
