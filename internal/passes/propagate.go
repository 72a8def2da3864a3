package passes

import (
	"relift/internal/ir"
)

// Propagate performs constant folding, copy propagation and trivial-phi
// elimination in one sweep. It is convergent: folding one node can make
// another foldable, so the manager re-runs it until a sweep reports no
// change.
//
// Folding rewrites the node in place to a constant, preserving its id so
// uses stay valid. A fold whose result is undefined at the node's width
// (overflow, division by zero, oversized shift) yields an unshared unknown
// constant rather than a fabricated value.
type Propagate struct{}

func (*Propagate) Name() string { return "propagate" }
func (*Propagate) Description() string {
	return "folds constant expressions, forwards copies, removes trivial phis"
}

func (*Propagate) Apply(g *ir.Graph, env *Env) (Result, error) {
	changed := false

	g.ForEachLive(func(id ir.NodeID, n *ir.Node) {
		if n.Kind != ir.KindOperation {
			return
		}
		if foldNode(g, n, env) {
			changed = true
			return
		}
		if n.Opcode == ir.OpCopy && len(n.Operands) == 1 && n.Operands[0] != ir.InvalidNode {
			if len(g.ReplaceUses(id, n.Operands[0])) > 0 {
				changed = true
			}
		}
	})

	if removeTrivialPhis(g) {
		changed = true
	}
	return Result{Changed: changed}, nil
}

// foldNode rewrites an operation with all-constant operands to a constant
// in place. Returns whether it folded.
func foldNode(g *ir.Graph, n *ir.Node, env *Env) bool {
	spec, ok := env.Table.Lookup(n.Opcode)
	if !ok || spec.SideEffect || spec.Fold == nil {
		return false
	}
	if spec.Arity > 0 && len(n.Operands) != spec.Arity {
		return false
	}

	args := make([]uint64, len(n.Operands))
	unknown := false
	for i, op := range n.Operands {
		if op == ir.InvalidNode {
			return false
		}
		c := g.Node(op)
		if c.Kind != ir.KindConstant {
			return false
		}
		if c.Unknown {
			unknown = true
			continue
		}
		args[i] = c.Value
	}

	if unknown {
		becomeConstant(n, 0, true)
		return true
	}
	v, ok := spec.Fold(n.Width, args)
	becomeConstant(n, v, !ok)
	return true
}

// becomeConstant rewrites an operation node to a constant without moving
// it: the node keeps its id, block position and defined location, so uses
// and later de-SSA copies stay coherent.
func becomeConstant(n *ir.Node, value uint64, unknown bool) {
	n.Kind = ir.KindConstant
	n.Opcode = ""
	n.Operands = nil
	n.Refs = nil
	n.Value = value
	n.Unknown = unknown
}

// removeTrivialPhis eliminates phis whose operands all resolve to the same
// node (or to the phi itself). Replacement can make a user phi trivial in
// turn, so those are re-queued; the result is confluent regardless of
// discovery order.
func removeTrivialPhis(g *ir.Graph) bool {
	var worklist []ir.NodeID
	g.ForEachLive(func(id ir.NodeID, n *ir.Node) {
		if n.Kind == ir.KindPhi {
			worklist = append(worklist, id)
		}
	})

	changed := false
	for len(worklist) > 0 {
		id := worklist[0]
		worklist = worklist[1:]
		n := g.Node(id)
		if n.Kind != ir.KindPhi {
			continue
		}

		same := ir.InvalidNode
		trivial := true
		for _, op := range n.Operands {
			if op == id || op == same {
				continue
			}
			if same != ir.InvalidNode {
				trivial = false
				break
			}
			same = op
		}
		if !trivial {
			continue
		}
		if same == ir.InvalidNode {
			// Every operand is the phi itself: no value ever flows in.
			same = g.Undefined(n.Def, n.Width)
		}

		users := g.ReplaceUses(id, same)
		g.Tombstone(id)
		changed = true
		for _, u := range users {
			if g.Node(u).Kind == ir.KindPhi {
				worklist = append(worklist, u)
			}
		}
	}
	return changed
}
