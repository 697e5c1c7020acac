package wasm

import (
	"encoding/binary"
	"errors"
	"unicode/utf8"

	"github.com/vertexdlt/microwasm/arena"
	"github.com/vertexdlt/microwasm/leb128"
	"github.com/vertexdlt/microwasm/util"
)

// MemoryCapacity is the fixed size, in bytes, of the single linear
// memory every VM allocates. It is one Wasm page.
const MemoryCapacity = 64 * 1024

// WasmPageSize is the size, in bytes, of one Wasm memory page.
const WasmPageSize = 65536

const funcTypeForm byte = 0x60

var (
	errBadMagic       = errors.New("wasm: invalid magic number")
	errBadVersion     = errors.New("wasm: unsupported version")
	errBadFuncForm    = errors.New("wasm: invalid functype form byte")
	errBadUTF8        = errors.New("wasm: invalid utf-8 name")
	errBadExportKind  = errors.New("wasm: invalid export kind")
	errBadImportKind  = errors.New("wasm: invalid import kind")
	errBadMemIdx      = errors.New("wasm: data segment targets a nonexistent memory")
	errDataOutOfRange = errors.New("wasm: data segment exceeds linear memory capacity")
	errBadInitExpr    = errors.New("wasm: unsupported data offset expression")
)

// Decode parses a binary Wasm module from raw and returns the
// VM-internal tables it describes. Data segments are copied directly
// into memory (which must be MemoryCapacity bytes) as they are
// decoded; segment metadata itself is not retained. Unknown sections
// are skipped by length so they can never desync the walk.
func Decode(raw []byte, memory []byte) (*Module, error) {
	br := util.NewByteReader(raw)

	magic, err := br.ReadN(4)
	if err != nil || [4]byte{magic[0], magic[1], magic[2], magic[3]} != Magic {
		return nil, errBadMagic
	}
	versionBytes, err := br.ReadN(4)
	if err != nil {
		return nil, errBadVersion
	}
	if binary.LittleEndian.Uint32(versionBytes) != Version {
		return nil, errBadVersion
	}

	m := &Module{Exports: make(map[string]Export)}
	names := arena.New(arena.MinCapacity)

	var typeIdxOfFunc []uint32 // Function section: internal func -> type index

	for !br.Done() {
		id, err := br.ReadByte()
		if err != nil {
			return nil, err
		}
		size, err := leb128.ReadUint32(br)
		if err != nil {
			return nil, err
		}
		next := br.Pos() + size

		switch id {
		case SecType:
			if err := decodeTypeSection(br, m); err != nil {
				return nil, err
			}
		case SecImport:
			if err := decodeImportSection(br, m, names); err != nil {
				return nil, err
			}
		case SecFunction:
			typeIdxOfFunc, err = decodeFunctionSection(br)
			if err != nil {
				return nil, err
			}
		case SecMemory:
			if err := decodeMemorySection(br, m, names); err != nil {
				return nil, err
			}
		case SecExport:
			if err := decodeExportSection(br, m, names); err != nil {
				return nil, err
			}
		case SecCode:
			if err := decodeCodeSection(br, m, typeIdxOfFunc); err != nil {
				return nil, err
			}
		case SecData:
			if err := decodeDataSection(br, memory); err != nil {
				return nil, err
			}
		default:
			// Unknown or not-yet-implemented section: skipped by length.
		}

		br.Seek(next)
	}

	return m, nil
}

func decodeTypeSection(br *util.ByteReader, m *Module) error {
	count, err := leb128.ReadUint32(br)
	if err != nil {
		return err
	}
	m.Types = make([]FuncType, 0, count)
	for i := uint32(0); i < count; i++ {
		form, err := br.ReadByte()
		if err != nil {
			return err
		}
		if form != funcTypeForm {
			return errBadFuncForm
		}
		params, err := readValueTypes(br)
		if err != nil {
			return err
		}
		results, err := readValueTypes(br)
		if err != nil {
			return err
		}
		m.Types = append(m.Types, FuncType{Params: params, Results: results})
	}
	return nil
}

func readValueTypes(br *util.ByteReader) ([]ValueType, error) {
	count, err := leb128.ReadUint32(br)
	if err != nil {
		return nil, err
	}
	types := make([]ValueType, count)
	for i := range types {
		b, err := br.ReadByte()
		if err != nil {
			return nil, err
		}
		types[i] = ValueType(b)
	}
	return types, nil
}

func decodeImportSection(br *util.ByteReader, m *Module, names *arena.Arena) error {
	count, err := leb128.ReadUint32(br)
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		modName, err := readName(br, names)
		if err != nil {
			return err
		}
		fieldName, err := readName(br, names)
		if err != nil {
			return err
		}
		kind, err := br.ReadByte()
		if err != nil {
			return err
		}

		switch kind {
		case ExternalFunction:
			typeIdx, err := leb128.ReadUint32(br)
			if err != nil {
				return err
			}
			m.Imports = append(m.Imports, Import{ModuleName: modName, FieldName: fieldName, TypeIndex: typeIdx})
			m.Functions = append(m.Functions, FuncDesc{TypeIndex: typeIdx})
			m.ImportFuncCount++
		case ExternalTable:
			if err := skipTableType(br); err != nil {
				return err
			}
		case ExternalMemory:
			// Informational only, like the Memory section itself: the
			// VM's single linear memory is fixed-size regardless.
			min, max, hasMax, err := readLimits(br)
			if err != nil {
				return err
			}
			m.MemoryInitialPages = min
			m.MemoryMaxPages = max
			m.MemoryMaxPresent = hasMax
		case ExternalGlobal:
			if err := skipGlobalType(br); err != nil {
				return err
			}
		default:
			return errBadImportKind
		}
	}
	return nil
}

func skipTableType(br *util.ByteReader) error {
	if _, err := br.ReadByte(); err != nil { // elemtype
		return err
	}
	_, _, _, err := readLimits(br)
	return err
}

func skipGlobalType(br *util.ByteReader) error {
	if _, err := br.ReadByte(); err != nil { // valtype
		return err
	}
	_, err := br.ReadByte() // mutability
	return err
}

func readLimits(br *util.ByteReader) (min, max uint32, hasMax bool, err error) {
	flag, err := br.ReadByte()
	if err != nil {
		return 0, 0, false, err
	}
	min, err = leb128.ReadUint32(br)
	if err != nil {
		return 0, 0, false, err
	}
	if flag&0x01 != 0 {
		max, err = leb128.ReadUint32(br)
		if err != nil {
			return 0, 0, false, err
		}
		hasMax = true
	}
	return min, max, hasMax, nil
}

func decodeFunctionSection(br *util.ByteReader) ([]uint32, error) {
	count, err := leb128.ReadUint32(br)
	if err != nil {
		return nil, err
	}
	typeIdx := make([]uint32, count)
	for i := range typeIdx {
		typeIdx[i], err = leb128.ReadUint32(br)
		if err != nil {
			return nil, err
		}
	}
	return typeIdx, nil
}

// decodeMemorySection honours only the first memory entry. Flag bit 7
// is a non-standard extension kept for compatibility: an inline
// export name precedes the page counts, equivalent to a memory entry
// in the Export section.
func decodeMemorySection(br *util.ByteReader, m *Module, names *arena.Arena) error {
	count, err := leb128.ReadUint32(br)
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		flag, err := br.ReadByte()
		if err != nil {
			return err
		}
		if flag&0x80 != 0 {
			name, err := readName(br, names)
			if err != nil {
				return err
			}
			m.Exports[name] = Export{Name: name, Kind: ExportMemory, Index: i}
		}
		min, err := leb128.ReadUint32(br)
		if err != nil {
			return err
		}
		var max uint32
		hasMax := flag&0x01 != 0
		if hasMax {
			max, err = leb128.ReadUint32(br)
			if err != nil {
				return err
			}
		}
		if i == 0 {
			m.MemoryInitialPages = min
			m.MemoryMaxPages = max
			m.MemoryMaxPresent = hasMax
		}
	}
	return nil
}

func decodeExportSection(br *util.ByteReader, m *Module, names *arena.Arena) error {
	count, err := leb128.ReadUint32(br)
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		name, err := readName(br, names)
		if err != nil {
			return err
		}
		kind, err := br.ReadByte()
		if err != nil {
			return err
		}
		if kind != ExportFunction && kind != ExportMemory {
			return errBadExportKind
		}
		idx, err := leb128.ReadUint32(br)
		if err != nil {
			return err
		}
		m.Exports[name] = Export{Name: name, Kind: kind, Index: idx}
	}
	return nil
}

// decodeCodeSection appends one FuncDesc per code entry, recording
// the offset of the byte that opens the body (the local-groups
// count). Bodies are not pre-decoded; the engine interprets them
// lazily starting at this offset.
func decodeCodeSection(br *util.ByteReader, m *Module, typeIdxOfFunc []uint32) error {
	count, err := leb128.ReadUint32(br)
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		bodySize, err := leb128.ReadUint32(br)
		if err != nil {
			return err
		}
		bodyStart := br.Pos()

		var typeIdx uint32
		if int(i) < len(typeIdxOfFunc) {
			typeIdx = typeIdxOfFunc[i]
		}
		m.Functions = append(m.Functions, FuncDesc{TypeIndex: typeIdx, CodeOffset: bodyStart})

		br.Seek(bodyStart + bodySize)
	}
	return nil
}

// decodeDataSection copies each segment's payload straight into
// memory; segment metadata is discarded once applied.
func decodeDataSection(br *util.ByteReader, memory []byte) error {
	count, err := leb128.ReadUint32(br)
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		memIdx, err := leb128.ReadUint32(br)
		if err != nil {
			return err
		}
		if memIdx != 0 {
			return errBadMemIdx
		}
		offset, err := readI32InitExpr(br)
		if err != nil {
			return err
		}
		size, err := leb128.ReadUint32(br)
		if err != nil {
			return err
		}
		payload, err := br.ReadN(size)
		if err != nil {
			return err
		}
		if offset < 0 || uint64(offset)+uint64(size) > uint64(len(memory)) {
			return errDataOutOfRange
		}
		copy(memory[offset:], payload)
	}
	return nil
}

// readI32InitExpr reads a constant expression of the form
// `i32.const <n> end`, the only initializer this interpreter supports
// (globals are not implemented).
func readI32InitExpr(br *util.ByteReader) (int32, error) {
	op, err := br.ReadByte()
	if err != nil {
		return 0, err
	}
	if op != 0x41 {
		return 0, errBadInitExpr
	}
	val, err := leb128.ReadInt32(br)
	if err != nil {
		return 0, err
	}
	end, err := br.ReadByte()
	if err != nil {
		return 0, err
	}
	if end != 0x0B {
		return 0, errBadInitExpr
	}
	return val, nil
}

// readName reads a length-prefixed UTF-8 name and stabilizes it in
// the string arena. If the arena has overflowed, the name is still
// returned (string(raw) is its own copy, independent of the module
// byte buffer, so this remains safe) — only the arena's own
// bookkeeping is skipped, matching "the caller drops that name" for
// the arena specifically rather than aborting the whole decode.
func readName(br *util.ByteReader, names *arena.Arena) (string, error) {
	size, err := leb128.ReadUint32(br)
	if err != nil {
		return "", err
	}
	raw, err := br.ReadN(size)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", errBadUTF8
	}
	if stable, err := names.Add(string(raw)); err == nil {
		return stable, nil
	}
	return string(raw), nil
}
