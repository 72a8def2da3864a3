package passes

import (
	"relift/internal/ir"
)

// DeadCode tombstones nodes with no remaining uses and no side effect,
// cascading through operands whose use counts drop to zero. Stores, calls,
// returns and branches are externally visible roots and never removed, so a
// post-call clobber that feeds nothing disappears while the call stays.
type DeadCode struct{}

func (*DeadCode) Name() string { return "dce" }
func (*DeadCode) Description() string {
	return "removes unused operations, phis and constants without side effects"
}

func (*DeadCode) Apply(g *ir.Graph, env *Env) (Result, error) {
	counts := g.UseCounts()

	removable := func(n *ir.Node) bool {
		switch n.Kind {
		case ir.KindConstant, ir.KindUndefined, ir.KindPhi:
			return true
		case ir.KindOperation:
			if spec, ok := env.Table.Lookup(n.Opcode); ok {
				return !spec.SideEffect
			}
			// Unknown opcode: keep it, its effects are unknown too.
			return false
		}
		return false
	}

	var worklist []ir.NodeID
	g.ForEachLive(func(id ir.NodeID, n *ir.Node) {
		if counts[id] == 0 && removable(n) {
			worklist = append(worklist, id)
		}
	})

	removed := 0
	for len(worklist) > 0 {
		id := worklist[0]
		worklist = worklist[1:]
		n := g.Node(id)
		if !n.Live() || counts[id] > 0 {
			continue
		}
		operands := append([]ir.NodeID(nil), n.Operands...)
		g.Tombstone(id)
		removed++
		for _, op := range operands {
			if op == ir.InvalidNode {
				continue
			}
			counts[op]--
			if counts[op] == 0 && removable(g.Node(op)) {
				worklist = append(worklist, op)
			}
		}
	}

	if removed > 0 {
		log.Debugf("dce: tombstoned %d nodes", removed)
	}
	return Result{Changed: removed > 0}, nil
}
