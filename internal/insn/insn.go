package insn

import (
	"fmt"
	"slices"
)

// Package insn defines the ingest contract: the per-address stream of
// primitive operations and the control-transfer table that the CFG builder
// consumes. The stream is immutable input owned by the caller; everything
// downstream copies what it needs into the IR arena.

// LocKind categorizes a storage location.
type LocKind uint8

const (
	LocRegister LocKind = iota + 1
	LocMemory
	LocTemp
)

// Loc is the abstract identity of a register or disambiguated memory slot.
// Two writes alias iff their Locs compare equal.
type Loc struct {
	Kind LocKind
	Name string
}

// Reg returns the location of a named register.
func Reg(name string) Loc { return Loc{Kind: LocRegister, Name: name} }

// Mem returns the location of a disambiguated memory slot.
func Mem(name string) Loc { return Loc{Kind: LocMemory, Name: name} }

// Tmp returns the location of a lifter-introduced temporary.
func Tmp(name string) Loc { return Loc{Kind: LocTemp, Name: name} }

// IsZero reports whether the location is unset.
func (l Loc) IsZero() bool { return l.Kind == 0 }

func (l Loc) String() string {
	if l.Kind == LocMemory {
		return "[" + l.Name + "]"
	}
	return l.Name
}

// OperandKind categorizes an operation source operand.
type OperandKind uint8

const (
	OperandLoc OperandKind = iota + 1
	OperandImm
)

// Operand is a source operand of a primitive operation: either a read of a
// storage location or an immediate value.
type Operand struct {
	Kind  OperandKind
	Loc   Loc
	Imm   uint64
	Width uint8
}

// LocOperand returns an operand reading the given location.
func LocOperand(l Loc, width uint8) Operand {
	return Operand{Kind: OperandLoc, Loc: l, Width: width}
}

// Imm returns an immediate operand.
func Imm(v uint64, width uint8) Operand {
	return Operand{Kind: OperandImm, Imm: v, Width: width}
}

func (o Operand) String() string {
	if o.Kind == OperandImm {
		return fmt.Sprintf("0x%x", o.Imm)
	}
	return o.Loc.String()
}

// OpKind is the primitive operation kind.
type OpKind uint8

const (
	Assign OpKind = iota + 1
	Load
	Store
	Compare
	Branch
)

// Operation is one primitive operation expanded from an instruction.
// Dest is the storage location the operation writes, if any; Store writes
// its (disambiguated) memory slot, Branch writes nothing.
type Operation struct {
	Kind   OpKind
	Opcode string
	Dest   Loc
	Args   []Operand
	Width  uint8
}

// TransferKind is the kind of a control transfer.
type TransferKind uint8

const (
	Fallthrough TransferKind = iota + 1
	Jump
	BranchTrue
	BranchFalse
	Call
	Return
	Indirect
)

func (k TransferKind) String() string {
	switch k {
	case Fallthrough:
		return "fallthrough"
	case Jump:
		return "jump"
	case BranchTrue:
		return "branch-true"
	case BranchFalse:
		return "branch-false"
	case Call:
		return "call"
	case Return:
		return "return"
	case Indirect:
		return "indirect"
	}
	return "unknown"
}

// Transfer is one row of the control-transfer table. Resolved is false when
// the target address is unknown (indirect jumps, unresolved call targets).
type Transfer struct {
	Source   uint64
	Kind     TransferKind
	Target   uint64
	Resolved bool
}

// Stream is the per-address ordered list of primitive operations.
// Addresses keep insertion order; callers append in ascending address order.
type Stream struct {
	addrs []uint64
	ops   map[uint64][]Operation
}

// NewStream returns an empty operation stream.
func NewStream() *Stream {
	return &Stream{ops: make(map[uint64][]Operation)}
}

// Append adds an operation at the given address.
func (s *Stream) Append(addr uint64, op Operation) {
	if _, ok := s.ops[addr]; !ok {
		s.addrs = append(s.addrs, addr)
	}
	s.ops[addr] = append(s.ops[addr], op)
}

// Touch registers an address with no operations yet, so transfer-only
// instructions (plain jumps, calls) still occupy a slot in the stream.
func (s *Stream) Touch(addr uint64) {
	if _, ok := s.ops[addr]; !ok {
		s.addrs = append(s.addrs, addr)
		s.ops[addr] = nil
	}
}

// Addrs returns the addresses in stream order.
func (s *Stream) Addrs() []uint64 { return s.addrs }

// Sort restores ascending address order. Frontends that register
// transfer-only addresses after the fact call this before handing the
// stream over.
func (s *Stream) Sort() {
	slices.Sort(s.addrs)
}

// At returns the operations at an address, in order.
func (s *Stream) At(addr uint64) []Operation { return s.ops[addr] }

// Contains reports whether the stream has a slot for addr.
func (s *Stream) Contains(addr uint64) bool {
	_, ok := s.ops[addr]
	return ok
}

// Len returns the number of distinct addresses in the stream.
func (s *Stream) Len() int { return len(s.addrs) }
