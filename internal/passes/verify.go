package passes

import (
	"fmt"

	"relift/internal/cfg"
	"relift/internal/diag"
	"relift/internal/ir"
)

// Verify checks the graph's structural invariants and fails with
// InvariantViolationError on the first breach. It is a pure analysis, meant
// to catch pass defects in validation mode; a violation is never an
// expected runtime condition.
//
// Checked invariants:
//   - every live node in a block appears in exactly one block list, and its
//     Block field names that block
//   - no live node references a tombstoned node
//   - each phi's operand count equals its block's predecessor count
//   - on reachable blocks, every resolved operand's definition dominates
//     the use (for phi operands, the matching predecessor block)
//   - on reachable blocks, every operand slot is resolved
func Verify(g *ir.Graph, dom *cfg.DomTree) error {
	seen := make(map[ir.NodeID]ir.BlockID)
	pos := make(map[ir.NodeID]int)
	for _, b := range g.Blocks() {
		for i, id := range b.Nodes {
			if prev, ok := seen[id]; ok {
				return violation("single-assignment", id, b.ID,
					fmt.Sprintf("node listed in b%d and b%d", prev, b.ID))
			}
			seen[id] = b.ID
			pos[id] = i
			n := g.Node(id)
			if !n.Live() {
				return violation("tombstone", id, b.ID, "tombstoned node still listed in a block")
			}
			if n.Block != b.ID {
				return violation("single-assignment", id, b.ID,
					fmt.Sprintf("node claims b%d but is listed in b%d", n.Block, b.ID))
			}
		}
	}

	var err error
	g.ForEachLive(func(id ir.NodeID, n *ir.Node) {
		if err != nil {
			return
		}
		if n.Block != ir.InvalidBlock {
			if owner, ok := seen[id]; !ok || owner != n.Block {
				err = violation("single-assignment", id, n.Block,
					"node claims a block that does not list it")
				return
			}
		}
		for _, op := range n.Operands {
			if op == ir.InvalidNode {
				continue
			}
			if !g.Node(op).Live() {
				err = violation("tombstone", id, n.Block,
					fmt.Sprintf("operand n%d is tombstoned", op))
				return
			}
		}
	})
	if err != nil {
		return err
	}

	for _, b := range g.Blocks() {
		if !dom.Reachable(b.ID) {
			continue
		}
		for _, id := range b.Nodes {
			n := g.Node(id)
			if n.Kind == ir.KindPhi && len(n.Operands) != len(b.Preds) {
				return violation("phi-arity", id, b.ID,
					fmt.Sprintf("%d operands for %d predecessors", len(n.Operands), len(b.Preds)))
			}
			for i, op := range n.Operands {
				if op == ir.InvalidNode {
					return violation("resolved-operand", id, b.ID,
						fmt.Sprintf("operand %d is unresolved", i))
				}
				def := g.Node(op)
				if def.Block == ir.InvalidBlock {
					// Constants and undefined sentinels dominate every use.
					continue
				}
				if n.Kind == ir.KindPhi {
					pb := b.Preds[i].Block
					if !dom.Reachable(pb) {
						continue
					}
					if !dom.Dominates(def.Block, pb) {
						return violation("dominance", id, b.ID,
							fmt.Sprintf("phi operand n%d (b%d) does not dominate predecessor b%d",
								op, def.Block, pb))
					}
					continue
				}
				if def.Block == b.ID {
					if pos[op] >= pos[id] {
						return violation("dominance", id, b.ID,
							fmt.Sprintf("operand n%d does not precede its use", op))
					}
					continue
				}
				if !dom.Dominates(def.Block, b.ID) {
					return violation("dominance", id, b.ID,
						fmt.Sprintf("operand n%d (b%d) does not dominate use (b%d)",
							op, def.Block, b.ID))
				}
			}
		}
	}
	return nil
}

func violation(invariant string, node ir.NodeID, block ir.BlockID, reason string) error {
	return &diag.InvariantViolationError{
		Invariant: invariant,
		Node:      node,
		Block:     block,
		Reason:    reason,
	}
}

// Verifier exposes Verify as a schedulable pass. It only runs in validation
// mode; production sessions schedule it as a no-op.
type Verifier struct{}

func (*Verifier) Name() string        { return "verify" }
func (*Verifier) Description() string { return "checks structural and dominance invariants" }

func (*Verifier) Apply(g *ir.Graph, env *Env) (Result, error) {
	if !env.Validate {
		return Result{}, nil
	}
	return Result{}, Verify(g, env.Dominators(g))
}
