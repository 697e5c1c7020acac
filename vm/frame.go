package vm

// Frame is a call-stack activation record. It snapshots the caller's
// locals by value (not by reference into shared mutable state) so that
// the flat locals array can be safely overwritten by the callee and
// restored verbatim on return.
type Frame struct {
	returnPC    uint32
	savedLocals [LocalCount]int32
	baseBlockSP int // block-stack depth at call time, for return unwinding
}
