package passes

import (
	"relift/internal/cfg"
	"relift/internal/diag"
	"relift/internal/insn"
	"relift/internal/ir"
)

// CallRecovery upgrades call sites from the conservative clobber model. For
// a call with a resolved target, the reaching definitions of the calling
// convention's argument registers become ordered operands of the call node,
// stopping at the first register with no reaching definition so the
// argument list is always a convention prefix. The clobber of the return
// register is retagged as the call's return value.
//
// Calls with unresolved targets keep full clobber semantics and report a
// LowConfidenceCall diagnostic.
type CallRecovery struct{}

func (*CallRecovery) Name() string { return "calls" }
func (*CallRecovery) Description() string {
	return "recovers arguments and return values at resolved call sites"
}

func (*CallRecovery) Apply(g *ir.Graph, env *Env) (Result, error) {
	dom := env.Dominators(g)
	changed := false
	var diags []diag.Diagnostic

	for _, b := range g.Blocks() {
		if !dom.Reachable(b.ID) {
			continue
		}
		for at, id := range b.Nodes {
			n := g.Node(id)
			if n.Opcode != ir.OpCall || n.Call == nil || n.Call.Recovered {
				continue
			}
			if !n.Call.Resolved {
				diags = append(diags, diag.New(diag.LowConfidenceCall,
					"call target unresolved, keeping clobber semantics").
					At(id, b.ID).WithAddr(n.Addr))
				continue
			}

			for _, slot := range env.Conv.ArgLocs() {
				def := reachingDef(g, dom, b, at, slot)
				if def == ir.InvalidNode {
					break
				}
				n.Operands = append(n.Operands, def)
			}

			retagReturn(g, b, at, env.Conv.RetLoc(), id)
			n.Call.Recovered = true
			changed = true
			log.Debugf("call at 0x%x: recovered %d arguments", n.Addr, len(n.Operands))
		}
	}
	return Result{Changed: changed, Diags: diags}, nil
}

// reachingDef finds the SSA definition of loc visible just before position
// at in block b: the closest preceding definition in b, or the latest one
// in the nearest dominator that has any.
func reachingDef(g *ir.Graph, dom *cfg.DomTree, b *ir.Block, at int, loc insn.Loc) ir.NodeID {
	for i := at - 1; i >= 0; i-- {
		if g.Node(b.Nodes[i]).Def == loc {
			return b.Nodes[i]
		}
	}
	block := b.ID
	for {
		idom, ok := dom.Idom[block]
		if !ok {
			return ir.InvalidNode
		}
		db := g.Block(idom)
		for i := len(db.Nodes) - 1; i >= 0; i-- {
			if g.Node(db.Nodes[i]).Def == loc {
				return db.Nodes[i]
			}
		}
		block = idom
	}
}

// retagReturn turns the return-register clobber that follows the call into
// the call's recovered return value. Absent clobber means the return value
// was already eliminated as dead.
func retagReturn(g *ir.Graph, b *ir.Block, callAt int, ret insn.Loc, call ir.NodeID) {
	for i := callAt + 1; i < len(b.Nodes); i++ {
		n := g.Node(b.Nodes[i])
		if n.Opcode == ir.OpClobber && n.Def == ret {
			n.Opcode = ir.OpRetVal
			n.Operands = []ir.NodeID{call}
			n.Refs = nil
			return
		}
		if n.Opcode == ir.OpCall {
			return
		}
	}
}
