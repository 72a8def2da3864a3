package cfg

import (
	"relift/internal/ir"
)

// DomTree holds immediate dominators and dominance frontiers for the
// blocks reachable from the entry. Unreachable blocks are retained in the
// graph for diagnostics but excluded from dominance-based analyses.
//
// The tree records the graph version it was computed against so cached
// copies can detect structural staleness.
type DomTree struct {
	Idom     map[ir.BlockID]ir.BlockID
	Children map[ir.BlockID][]ir.BlockID
	Frontier map[ir.BlockID][]ir.BlockID
	Order    []ir.BlockID // reverse postorder over reachable blocks

	rpoNum  map[ir.BlockID]int
	version uint64
}

// Dominators computes immediate dominators with the iterative
// reverse-postorder dataflow of Cooper, Harvey and Kennedy, then derives
// dominance frontiers from the tree in a linear pass.
func Dominators(g *ir.Graph) *DomTree {
	t := &DomTree{
		Idom:     make(map[ir.BlockID]ir.BlockID),
		Children: make(map[ir.BlockID][]ir.BlockID),
		Frontier: make(map[ir.BlockID][]ir.BlockID),
		rpoNum:   make(map[ir.BlockID]int),
		version:  g.Version(),
	}
	if g.Entry == ir.InvalidBlock {
		return t
	}

	t.Order = ReversePostOrder(g)
	for i, b := range t.Order {
		t.rpoNum[b] = i
	}

	intersect := func(b1, b2 ir.BlockID) ir.BlockID {
		for b1 != b2 {
			for t.rpoNum[b1] > t.rpoNum[b2] {
				b1 = t.Idom[b1]
			}
			for t.rpoNum[b2] > t.rpoNum[b1] {
				b2 = t.Idom[b2]
			}
		}
		return b1
	}

	// Entry dominates itself as a sentinel during iteration.
	t.Idom[g.Entry] = g.Entry

	changed := true
	for changed {
		changed = false
		for _, b := range t.Order[1:] {
			newIdom := ir.InvalidBlock
			for _, p := range g.Block(b).Preds {
				if _, ok := t.Idom[p.Block]; !ok {
					continue
				}
				if newIdom == ir.InvalidBlock {
					newIdom = p.Block
				} else {
					newIdom = intersect(p.Block, newIdom)
				}
			}
			if newIdom == ir.InvalidBlock {
				continue
			}
			if t.Idom[b] != newIdom {
				t.Idom[b] = newIdom
				changed = true
			}
		}
	}

	delete(t.Idom, g.Entry)

	for _, b := range t.Order {
		if idom, ok := t.Idom[b]; ok {
			t.Children[idom] = append(t.Children[idom], b)
		}
	}

	// Dominance frontiers: walk each join's predecessors up to the join's
	// immediate dominator.
	for _, b := range t.Order {
		preds := g.Block(b).Preds
		if len(preds) < 2 {
			continue
		}
		idom, ok := t.Idom[b]
		if !ok {
			// A join at the entry (loop back-edge to the start) walks all
			// the way up.
			idom = b
		}
		for _, p := range preds {
			if !t.Reachable(p.Block) {
				continue
			}
			runner := p.Block
			for runner != idom {
				t.Frontier[runner] = appendUniqueBlock(t.Frontier[runner], b)
				next, ok := t.Idom[runner]
				if !ok {
					break
				}
				runner = next
			}
		}
	}

	return t
}

// ReversePostOrder returns the reachable blocks of g in reverse postorder,
// starting from the entry.
func ReversePostOrder(g *ir.Graph) []ir.BlockID {
	visited := make(map[ir.BlockID]bool)
	var order []ir.BlockID

	var dfs func(b ir.BlockID)
	dfs = func(b ir.BlockID) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range g.Block(b).Succs {
			dfs(s.Block)
		}
		order = append(order, b)
	}
	dfs(g.Entry)

	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// Reachable reports whether the block is reachable from the entry.
func (t *DomTree) Reachable(b ir.BlockID) bool {
	_, ok := t.rpoNum[b]
	return ok
}

// Dominates reports whether a dominates b. Every block dominates itself.
func (t *DomTree) Dominates(a, b ir.BlockID) bool {
	if !t.Reachable(a) || !t.Reachable(b) {
		return false
	}
	for b != a {
		idom, ok := t.Idom[b]
		if !ok {
			return false
		}
		b = idom
	}
	return true
}

// Fresh reports whether the tree still matches the graph's structure.
func (t *DomTree) Fresh(g *ir.Graph) bool {
	return t.version == g.Version()
}

func appendUniqueBlock(list []ir.BlockID, b ir.BlockID) []ir.BlockID {
	for _, x := range list {
		if x == b {
			return list
		}
	}
	return append(list, b)
}
