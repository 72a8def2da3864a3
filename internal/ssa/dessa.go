package ssa

import (
	"fmt"

	"relift/internal/cfg"
	"relift/internal/insn"
	"relift/internal/ir"
)

// Eliminate lowers the graph out of SSA form. Critical edges are split
// first so every phi copy has an edge-private block to land in, then each
// phi is materialized as explicit copies at the end of its predecessors and
// the phi itself becomes a plain read of its storage location.
//
// The per-predecessor copies form a parallel copy group: all sources are
// values of the predecessor's exit state, so emission order only matters
// when one copy's destination location feeds another copy of the same
// group. That happens exactly when the source is a sibling phi of the same
// block, and a swap cycle among siblings is broken with a fresh temporary.
//
// The graph is no longer in SSA form afterwards and must not be fed back
// into SSA-invariant passes.
func Eliminate(g *ir.Graph) bool {
	changed := cfg.SplitCriticalEdges(g)
	tempCount := 0

	blocks := append([]*ir.Block(nil), g.Blocks()...)
	for _, b := range blocks {
		phis := g.PhisOf(b)
		if len(phis) == 0 {
			continue
		}
		for slot, pe := range b.Preds {
			pred := g.Block(pe.Block)

			type copyOp struct {
				dest insn.Loc
				src  ir.NodeID
			}
			var pending []copyOp
			for _, p := range phis {
				n := g.Node(p)
				src := n.Operands[slot]
				if src == p {
					// The location already holds the right value on a
					// self-edge.
					continue
				}
				pending = append(pending, copyOp{dest: n.Def, src: src})
			}

			// A copy is blocked while its destination location is still
			// read by another pending copy, i.e. while a sibling phi of
			// this block with that location is a pending source.
			destPhi := func(dest insn.Loc) ir.NodeID {
				for _, p := range phis {
					if g.Node(p).Def == dest {
						return p
					}
				}
				return ir.InvalidNode
			}

			for len(pending) > 0 {
				ready := -1
			scan:
				for i, c := range pending {
					phi := destPhi(c.dest)
					for j, o := range pending {
						if j != i && o.src == phi {
							continue scan
						}
					}
					ready = i
					break
				}

				if ready >= 0 {
					c := pending[ready]
					emitCopy(g, pred, c.dest, c.src)
					pending = append(pending[:ready], pending[ready+1:]...)
					changed = true
					continue
				}

				// Swap cycle: park one source in a temporary and retarget
				// its readers.
				c := pending[0]
				tmp := insn.Tmp(fmt.Sprintf("swap%d", tempCount))
				tempCount++
				blocked := destPhi(c.dest)
				saved := emitCopy(g, pred, tmp, blocked)
				for i := range pending {
					if pending[i].src == blocked {
						pending[i].src = saved
					}
				}
				changed = true
			}
		}

		// The phi itself becomes a read of its location; predecessor copies
		// now define it on every incoming edge. Uses keep their node id.
		for _, p := range phis {
			n := g.Node(p)
			loc := n.Def
			n.Kind = ir.KindOperation
			n.Opcode = ir.OpCopy
			n.Operands = []ir.NodeID{ir.InvalidNode}
			n.Refs = []insn.Loc{loc}
			n.Def = insn.Loc{}
			changed = true
		}
	}
	return changed
}

// emitCopy appends dest <- src at the end of the block, before the
// terminator if one is present, and returns the new node's id.
func emitCopy(g *ir.Graph, b *ir.Block, dest insn.Loc, src ir.NodeID) ir.NodeID {
	width := g.Node(src).Width
	id, n := g.NewNode(ir.KindOperation, b.ID)
	n.Opcode = ir.OpCopy
	n.Operands = []ir.NodeID{src}
	n.Def = dest
	n.Width = width
	n.Addr = b.Start

	at := len(b.Nodes)
	if at > 0 {
		last := g.Node(b.Nodes[at-1])
		if last.Kind == ir.KindOperation && ir.IsTerminator(last.Opcode) {
			at--
		}
	}
	g.InsertNode(b, at, id)
	return id
}
