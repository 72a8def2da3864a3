package ir

// Pseudo-opcodes introduced by lowering, as opposed to the arithmetic and
// comparison opcodes carried through from the semantics table.
const (
	OpCopy    = "copy"    // pure single-operand move
	OpLoad    = "load"    // read of a memory slot
	OpStore   = "store"   // write of a memory slot; side-effecting
	OpCBranch = "cbranch" // conditional branch on operand 0
	OpCall    = "call"    // call site; side-effecting
	OpRet     = "ret"     // function return; side-effecting
	OpClobber = "clobber" // conservative post-call definition of a register
	OpRetVal  = "retval"  // recovered return value of the preceding call
)

// IsTerminator reports whether the opcode ends a block.
func IsTerminator(opcode string) bool {
	return opcode == OpCBranch || opcode == OpRet
}
