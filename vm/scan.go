package vm

import (
	"github.com/vertexdlt/microwasm/leb128"
	"github.com/vertexdlt/microwasm/opcode"
	"github.com/vertexdlt/microwasm/util"
)

// scanBlock resolves the matching end (and, for an if, the else) for a
// block/loop/if whose body starts at pos, by a depth-tracking forward
// scan that decodes every opcode's immediate operand so nested
// structures are counted correctly rather than assumed fixed-width.
// It is a pure function of code and pos — no VM state — so the first
// entry into a structure and any later re-entry (e.g. a loop taken
// again) resolve identically.
func scanBlock(code []byte, pos uint32) (endPC, elsePC uint32, err error) {
	depth := 1
	for depth > 0 {
		if pos >= uint32(len(code)) {
			return 0, 0, ErrPCOutOfRange
		}
		op := opcode.Opcode(code[pos])
		pos++
		switch op {
		case opcode.Block, opcode.Loop, opcode.If:
			depth++
			pos++ // blocktype byte
		case opcode.Else:
			if depth == 1 {
				elsePC = pos
			}
		case opcode.End:
			depth--
		case opcode.Br, opcode.BrIf, opcode.Call, opcode.LocalGet, opcode.LocalSet, opcode.LocalTee:
			pos, err = skipULEB(code, pos)
			if err != nil {
				return 0, 0, err
			}
		case opcode.I32Const:
			pos, err = skipSLEB(code, pos)
			if err != nil {
				return 0, 0, err
			}
		case opcode.I32Load, opcode.I32Store:
			pos, err = skipULEB(code, pos)
			if err != nil {
				return 0, 0, err
			}
			pos, err = skipULEB(code, pos)
			if err != nil {
				return 0, 0, err
			}
		default:
			// every other supported opcode has no immediate operand
		}
	}
	return pos, elsePC, nil
}

func skipULEB(code []byte, pos uint32) (uint32, error) {
	br := util.NewByteReader(code)
	br.Seek(pos)
	if _, err := leb128.ReadUint32(br); err != nil {
		return 0, err
	}
	return br.Pos(), nil
}

func skipSLEB(code []byte, pos uint32) (uint32, error) {
	br := util.NewByteReader(code)
	br.Seek(pos)
	if _, err := leb128.ReadInt32(br); err != nil {
		return 0, err
	}
	return br.Pos(), nil
}
