package passes

import (
	"math/bits"

	"relift/internal/arch"
	"relift/internal/ir"
)

// Simplify rewrites expressions by algebraic identity: identity and
// absorbing elements, self-cancellation, and strength reduction of
// multiplication and division by powers of two. Rules are applied per node
// until none matches; the whole-graph fixed point is the manager's job.
//
// Identities hold for the unsigned two's-complement semantics of the
// default table, so a rewrite never consults the fold functions.
type Simplify struct{}

func (*Simplify) Name() string { return "simplify" }
func (*Simplify) Description() string {
	return "applies algebraic identities and strength reduction"
}

func (*Simplify) Apply(g *ir.Graph, env *Env) (Result, error) {
	changed := false
	g.ForEachLive(func(id ir.NodeID, n *ir.Node) {
		for simplifyNode(g, id) {
			changed = true
		}
	})
	return Result{Changed: changed}, nil
}

func simplifyNode(g *ir.Graph, id ir.NodeID) bool {
	n := g.Node(id)
	if n.Kind != ir.KindOperation || len(n.Operands) != 2 {
		return false
	}
	x, y := n.Operands[0], n.Operands[1]
	if x == ir.InvalidNode || y == ir.InvalidNode {
		return false
	}
	xv, xc := constOf(g, x)
	yv, yc := constOf(g, y)

	forward := func(src ir.NodeID) bool {
		n.Opcode = ir.OpCopy
		n.Operands = []ir.NodeID{src}
		n.Refs = nil
		return true
	}
	toConst := func(v uint64) bool {
		becomeConstant(n, arch.Mask(v, n.Width), false)
		return true
	}

	switch n.Opcode {
	case "+":
		if yc && yv == 0 {
			return forward(x)
		}
		if xc && xv == 0 {
			return forward(y)
		}
	case "-":
		if yc && yv == 0 {
			return forward(x)
		}
		if x == y {
			return toConst(0)
		}
	case "*":
		if yc && yv == 1 {
			return forward(x)
		}
		if xc && xv == 1 {
			return forward(y)
		}
		if (yc && yv == 0) || (xc && xv == 0) {
			return toConst(0)
		}
		if yc && isPow2(yv) {
			return toShift(g, id, "<<", x, yv)
		}
		if xc && isPow2(xv) {
			return toShift(g, id, "<<", y, xv)
		}
	case "/":
		if yc && yv == 1 {
			return forward(x)
		}
		if yc && isPow2(yv) {
			return toShift(g, id, ">>", x, yv)
		}
	case "%":
		if yc && yv == 1 {
			return toConst(0)
		}
	case "&":
		if x == y {
			return forward(x)
		}
		if (yc && yv == 0) || (xc && xv == 0) {
			return toConst(0)
		}
		if yc && yv == arch.Mask(^uint64(0), n.Width) {
			return forward(x)
		}
		if xc && xv == arch.Mask(^uint64(0), n.Width) {
			return forward(y)
		}
	case "|":
		if x == y {
			return forward(x)
		}
		if yc && yv == 0 {
			return forward(x)
		}
		if xc && xv == 0 {
			return forward(y)
		}
	case "^":
		if x == y {
			return toConst(0)
		}
		if yc && yv == 0 {
			return forward(x)
		}
		if xc && xv == 0 {
			return forward(y)
		}
	case "<<", ">>":
		if yc && yv == 0 {
			return forward(x)
		}
		if xc && xv == 0 {
			return toConst(0)
		}
	case "==", "<=", ">=":
		if x == y {
			return toConst(1)
		}
	case "!=", "<", ">":
		if x == y {
			return toConst(0)
		}
	}
	return false
}

func constOf(g *ir.Graph, id ir.NodeID) (uint64, bool) {
	n := g.Node(id)
	if n.Kind != ir.KindConstant || n.Unknown {
		return 0, false
	}
	return n.Value, true
}

func isPow2(v uint64) bool { return v != 0 && v&(v-1) == 0 }

// toShift reduces a multiply or divide by 2^k to a shift by k. The shift
// amount constant is allocated first: growing the arena invalidates node
// pointers, so the node is re-fetched after.
func toShift(g *ir.Graph, id ir.NodeID, opcode string, x ir.NodeID, pow2 uint64) bool {
	k := g.Constant(uint64(bits.TrailingZeros64(pow2)), g.Node(id).Width)
	n := g.Node(id)
	n.Opcode = opcode
	n.Operands = []ir.NodeID{x, k}
	n.Refs = nil
	return true
}
