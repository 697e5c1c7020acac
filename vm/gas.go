package vm

import "github.com/vertexdlt/microwasm/opcode"

// GasPolicy charges a per-opcode cost and decides when a VM should
// trap with ErrOutOfGas. It is an optional ambient enrichment: a VM
// constructed without one runs unmetered.
type GasPolicy interface {
	// Cost returns the gas charge for executing op.
	Cost(op opcode.Opcode) uint64
	// Limit returns the total gas budget for one invocation; 0 means
	// unlimited.
	Limit() uint64
}

// FreeGasPolicy charges nothing and never traps. It is the default
// when no GasPolicy is supplied.
type FreeGasPolicy struct{}

func (FreeGasPolicy) Cost(opcode.Opcode) uint64 { return 0 }
func (FreeGasPolicy) Limit() uint64             { return 0 }

// SimpleGasPolicy charges a flat per-instruction cost regardless of
// opcode, up to a fixed limit.
type SimpleGasPolicy struct {
	PerOp uint64
	Max   uint64
}

func (p SimpleGasPolicy) Cost(opcode.Opcode) uint64 { return p.PerOp }
func (p SimpleGasPolicy) Limit() uint64             { return p.Max }
