package diag

import (
	"fmt"

	"relift/internal/ir"
)

// Diagnostic is a non-fatal anomaly attached to the session output,
// carrying the offending node/block identifiers.
type Diagnostic struct {
	Code    Code
	Message string
	Node    ir.NodeID
	Block   ir.BlockID
	Addr    uint64
}

// New builds a diagnostic with no node/block attribution.
func New(code Code, format string, args ...interface{}) Diagnostic {
	return Diagnostic{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Node:    ir.InvalidNode,
		Block:   ir.InvalidBlock,
	}
}

// At attributes the diagnostic to a node and block.
func (d Diagnostic) At(node ir.NodeID, block ir.BlockID) Diagnostic {
	d.Node = node
	d.Block = block
	return d
}

// WithAddr attributes the diagnostic to an instruction address.
func (d Diagnostic) WithAddr(addr uint64) Diagnostic {
	d.Addr = addr
	return d
}

func (d Diagnostic) String() string {
	s := fmt.Sprintf("%s: %s", d.Code, d.Message)
	if d.Node != ir.InvalidNode {
		s += fmt.Sprintf(" (node n%d)", d.Node)
	}
	if d.Block != ir.InvalidBlock {
		s += fmt.Sprintf(" (block b%d)", d.Block)
	}
	if d.Addr != 0 {
		s += fmt.Sprintf(" @ 0x%x", d.Addr)
	}
	return s
}

// MalformedInputError aborts the session before SSA construction: the
// ingest data cannot be mapped onto a sound CFG.
type MalformedInputError struct {
	Addr   uint64
	Reason string
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed input at 0x%x: %s", e.Addr, e.Reason)
}

// CyclicDependencyError is a pass-registration error: the declared
// dependencies admit no schedule. Configuration-time, always fatal.
type CyclicDependencyError struct {
	Passes []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic pass dependency involving %v", e.Passes)
}

// InvariantViolationError is raised by the verifier in validation mode.
// It indicates a defect in a pass, never an expected runtime condition.
type InvariantViolationError struct {
	Invariant string
	Node      ir.NodeID
	Block     ir.BlockID
	Reason    string
}

func (e *InvariantViolationError) Error() string {
	s := fmt.Sprintf("invariant violation (%s): %s", e.Invariant, e.Reason)
	if e.Node != ir.InvalidNode {
		s += fmt.Sprintf(" (node n%d)", e.Node)
	}
	if e.Block != ir.InvalidBlock {
		s += fmt.Sprintf(" (block b%d)", e.Block)
	}
	return s
}
