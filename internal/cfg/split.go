package cfg

import (
	"relift/internal/ir"
)

type critEdge struct {
	from ir.BlockID
	to   ir.BlockID
}

// SplitCriticalEdges inserts an empty block on every edge that runs from a
// block with more than one successor to a block with more than one
// predecessor. De-SSA wants a critical-edge-free CFG so phi copies have an
// edge-private block to land in. Predecessor slot indices are preserved so
// phi operand order stays aligned.
func SplitCriticalEdges(g *ir.Graph) bool {
	var edges []critEdge
	for _, b := range g.Blocks() {
		if len(b.Preds) < 2 {
			continue
		}
		for _, p := range b.Preds {
			if len(g.Block(p.Block).Succs) > 1 {
				edges = append(edges, critEdge{from: p.Block, to: b.ID})
			}
		}
	}

	for _, e := range edges {
		mid := g.NewBlock(g.Block(e.from).Start)
		// The edge always exists at this point; duplicate edges between
		// the same pair resolve one per redirect call.
		_ = g.RedirectEdge(e.from, e.to, mid.ID)
	}
	return len(edges) > 0
}
