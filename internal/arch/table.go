package arch

import (
	"fmt"
	"math/bits"
)

// FoldFunc evaluates an opcode over constant operands at a given width.
// ok=false means the result is undefined at that width (overflow, division
// by zero, oversized shift) and must surface as an unknown constant, never
// a fabricated value.
type FoldFunc func(width uint8, args []uint64) (value uint64, ok bool)

// OpSpec is the semantics-table row for one opcode.
type OpSpec struct {
	Name        string
	Arity       int
	Commutative bool
	SideEffect  bool
	Fold        FoldFunc
}

// Table is the immutable opcode semantics table. It is loaded once per
// process and shared by reference across sessions.
type Table struct {
	ops map[string]OpSpec
}

// Lookup returns the spec for an opcode.
func (t *Table) Lookup(name string) (OpSpec, bool) {
	spec, ok := t.ops[name]
	return spec, ok
}

// Opcodes returns the opcode names in the table, in no particular order.
func (t *Table) Opcodes() []string {
	names := make([]string, 0, len(t.ops))
	for name := range t.ops {
		names = append(names, name)
	}
	return names
}

func mask(width uint8) uint64 {
	if width == 0 || width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << width) - 1
}

// Mask truncates v to width bits.
func Mask(v uint64, width uint8) uint64 { return v & mask(width) }

func boolVal(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func foldAdd(w uint8, a []uint64) (uint64, bool) {
	m := mask(w)
	z := a[0] + a[1]
	if w == 0 || w >= 64 {
		return z, z >= a[0]
	}
	return z & m, z <= m
}

func foldSub(w uint8, a []uint64) (uint64, bool) {
	return (a[0] - a[1]) & mask(w), a[0] >= a[1]
}

func foldMul(w uint8, a []uint64) (uint64, bool) {
	hi, lo := bits.Mul64(a[0], a[1])
	return lo & mask(w), hi == 0 && lo <= mask(w)
}

func foldUDiv(w uint8, a []uint64) (uint64, bool) {
	if a[1] == 0 {
		return 0, false
	}
	return (a[0] / a[1]) & mask(w), true
}

func foldUMod(w uint8, a []uint64) (uint64, bool) {
	if a[1] == 0 {
		return 0, false
	}
	return (a[0] % a[1]) & mask(w), true
}

func foldAnd(w uint8, a []uint64) (uint64, bool) { return (a[0] & a[1]) & mask(w), true }
func foldOr(w uint8, a []uint64) (uint64, bool)  { return (a[0] | a[1]) & mask(w), true }
func foldXor(w uint8, a []uint64) (uint64, bool) { return (a[0] ^ a[1]) & mask(w), true }

func foldShl(w uint8, a []uint64) (uint64, bool) {
	width := uint64(w)
	if w == 0 {
		width = 64
	}
	if a[1] >= width {
		return 0, false
	}
	z := (a[0] << a[1]) & mask(w)
	return z, z>>a[1] == a[0]
}

func foldShr(w uint8, a []uint64) (uint64, bool) {
	width := uint64(w)
	if w == 0 {
		width = 64
	}
	if a[1] >= width {
		return 0, false
	}
	return a[0] >> a[1], true
}

func foldEq(w uint8, a []uint64) (uint64, bool)  { return boolVal(a[0] == a[1]), true }
func foldNe(w uint8, a []uint64) (uint64, bool)  { return boolVal(a[0] != a[1]), true }
func foldULt(w uint8, a []uint64) (uint64, bool) { return boolVal(a[0] < a[1]), true }
func foldULe(w uint8, a []uint64) (uint64, bool) { return boolVal(a[0] <= a[1]), true }
func foldUGt(w uint8, a []uint64) (uint64, bool) { return boolVal(a[0] > a[1]), true }
func foldUGe(w uint8, a []uint64) (uint64, bool) { return boolVal(a[0] >= a[1]), true }
func foldNot(w uint8, a []uint64) (uint64, bool) { return boolVal(a[0] == 0), true }

func foldNeg(w uint8, a []uint64) (uint64, bool) {
	return (-a[0]) & mask(w), true
}

// foldBuiltins maps the fold names usable from configuration files to
// their implementations.
var foldBuiltins = map[string]FoldFunc{
	"add":  foldAdd,
	"sub":  foldSub,
	"mul":  foldMul,
	"udiv": foldUDiv,
	"umod": foldUMod,
	"and":  foldAnd,
	"or":   foldOr,
	"xor":  foldXor,
	"shl":  foldShl,
	"shr":  foldShr,
	"eq":   foldEq,
	"ne":   foldNe,
	"ult":  foldULt,
	"ule":  foldULe,
	"ugt":  foldUGt,
	"uge":  foldUGe,
	"not":  foldNot,
	"neg":  foldNeg,
}

// FoldNames returns the usable fold-function names.
func FoldNames() []string {
	names := make([]string, 0, len(foldBuiltins))
	for name := range foldBuiltins {
		names = append(names, name)
	}
	return names
}

// DefaultTable returns the built-in semantics table: the lifter's operator
// set plus the pseudo-opcodes introduced by lowering.
func DefaultTable() *Table {
	t := &Table{ops: make(map[string]OpSpec)}
	add := func(name string, arity int, commutative bool, fold FoldFunc) {
		t.ops[name] = OpSpec{Name: name, Arity: arity, Commutative: commutative, Fold: fold}
	}
	add("+", 2, true, foldAdd)
	add("-", 2, false, foldSub)
	add("*", 2, true, foldMul)
	add("/", 2, false, foldUDiv)
	add("%", 2, false, foldUMod)
	add("&", 2, true, foldAnd)
	add("|", 2, true, foldOr)
	add("^", 2, true, foldXor)
	add("<<", 2, false, foldShl)
	add(">>", 2, false, foldShr)
	add("==", 2, true, foldEq)
	add("!=", 2, true, foldNe)
	add("<", 2, false, foldULt)
	add("<=", 2, false, foldULe)
	add(">", 2, false, foldUGt)
	add(">=", 2, false, foldUGe)
	add("!", 1, false, foldNot)
	add("neg", 1, false, foldNeg)

	// Lowering pseudo-opcodes. No fold semantics.
	add("copy", 1, false, nil)
	add("load", 1, false, nil)
	add("clobber", 0, false, nil)
	add("retval", 1, false, nil)
	side := func(name string, arity int) {
		t.ops[name] = OpSpec{Name: name, Arity: arity, SideEffect: true}
	}
	side("store", 1)
	side("cbranch", 1)
	side("call", 0)
	side("ret", 0)
	return t
}

// Register adds or replaces an opcode spec. Intended for table
// construction; tables are immutable once a session holds them.
func (t *Table) Register(spec OpSpec) {
	t.ops[spec.Name] = spec
}

func foldByName(name string) (FoldFunc, error) {
	if name == "" {
		return nil, nil
	}
	fold, ok := foldBuiltins[name]
	if !ok {
		return nil, fmt.Errorf("unknown fold function %q", name)
	}
	return fold, nil
}
