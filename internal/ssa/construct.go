package ssa

import (
	"relift/internal/cfg"
	"relift/internal/diag"
	"relift/internal/insn"
	"relift/internal/ir"
)

// Construct renames the lowered graph into SSA form (semi-pruned): for
// each location read across a block boundary, phis are inserted at the
// iterated dominance frontier of its defining blocks, then a depth-first
// walk of the dominator tree resolves every location read to the
// definition on top of a per-location stack and fills successor phi slots
// at block exit.
//
// A read with no reaching definition resolves to an Undefined sentinel and
// an UnresolvedStorage diagnostic instead of aborting. Unreachable blocks
// are skipped: dominance is not defined there, so their reads stay
// unresolved and they are excluded from later analyses.
func Construct(g *ir.Graph, dom *cfg.DomTree) []diag.Diagnostic {
	st := &state{graph: g, dom: dom}
	st.collectDefs()
	st.insertPhis()
	st.stacks = make(map[insn.Loc][]ir.NodeID)
	st.visit(g.Entry)
	st.fillUnreachableSlots()
	return st.diags
}

type state struct {
	graph *ir.Graph
	dom   *cfg.DomTree

	locs      []insn.Loc // first-seen order, for deterministic phi placement
	defBlocks map[insn.Loc][]ir.BlockID
	globals   map[insn.Loc]bool
	widths    map[insn.Loc]uint8
	phiAt     map[ir.BlockID]map[insn.Loc]ir.NodeID
	stacks    map[insn.Loc][]ir.NodeID
	diags     []diag.Diagnostic
}

// collectDefs gathers each location's defining blocks and the globals: the
// locations upward-exposed in some block, i.e. read before any definition
// there. Only globals can carry a value across a join, so only they get
// phis (semi-pruned form); block-local temporaries never spawn dead phis.
func (s *state) collectDefs() {
	s.defBlocks = make(map[insn.Loc][]ir.BlockID)
	s.globals = make(map[insn.Loc]bool)
	s.widths = make(map[insn.Loc]uint8)
	for _, b := range s.graph.Blocks() {
		if !s.dom.Reachable(b.ID) {
			continue
		}
		defined := make(map[insn.Loc]bool)
		for _, id := range b.Nodes {
			n := s.graph.Node(id)
			for i := range n.Operands {
				if loc, ok := n.ReadsLoc(i); ok && !defined[loc] {
					s.globals[loc] = true
				}
			}
			if n.Def.IsZero() {
				continue
			}
			defined[n.Def] = true
			if _, ok := s.widths[n.Def]; !ok {
				s.locs = append(s.locs, n.Def)
				s.widths[n.Def] = n.Width
			}
			blocks := s.defBlocks[n.Def]
			if len(blocks) == 0 || blocks[len(blocks)-1] != b.ID {
				s.defBlocks[n.Def] = append(blocks, b.ID)
			}
		}
	}
}

// insertPhis places one phi per location at each block of the iterated
// dominance frontier of that location's defining blocks. Insertion is
// skipped when the block already carries a phi for the location, bounding
// phi proliferation. The worklist is LIFO; placement is order-independent
// because the iterated frontier is a fixed point of the def set.
func (s *state) insertPhis() {
	s.phiAt = make(map[ir.BlockID]map[insn.Loc]ir.NodeID)
	for _, loc := range s.locs {
		if !s.globals[loc] {
			continue
		}
		worklist := append([]ir.BlockID(nil), s.defBlocks[loc]...)
		inWorklist := make(map[ir.BlockID]bool, len(worklist))
		for _, b := range worklist {
			inWorklist[b] = true
		}
		placed := make(map[ir.BlockID]bool)

		for len(worklist) > 0 {
			b := worklist[len(worklist)-1]
			worklist = worklist[:len(worklist)-1]
			for _, f := range s.dom.Frontier[b] {
				if placed[f] {
					continue
				}
				placed[f] = true
				s.placePhi(f, loc)
				if !inWorklist[f] {
					inWorklist[f] = true
					worklist = append(worklist, f)
				}
			}
		}
	}
}

func (s *state) placePhi(block ir.BlockID, loc insn.Loc) {
	if s.phiAt[block] == nil {
		s.phiAt[block] = make(map[insn.Loc]ir.NodeID)
	}
	if _, ok := s.phiAt[block][loc]; ok {
		return
	}
	b := s.graph.Block(block)
	id, n := s.graph.NewNode(ir.KindPhi, block)
	n.Def = loc
	n.Width = s.widths[loc]
	n.Operands = make([]ir.NodeID, len(b.Preds))
	for i := range n.Operands {
		n.Operands[i] = ir.InvalidNode
	}
	n.Addr = b.Start
	s.graph.PrependNode(b, id)
	s.phiAt[block][loc] = id
}

func (s *state) top(loc insn.Loc) (ir.NodeID, bool) {
	stack := s.stacks[loc]
	if len(stack) == 0 {
		return ir.InvalidNode, false
	}
	return stack[len(stack)-1], true
}

func (s *state) visit(block ir.BlockID) {
	b := s.graph.Block(block)
	pushed := make(map[insn.Loc]int)

	for _, id := range b.Nodes {
		n := s.graph.Node(id)
		if n.Kind != ir.KindPhi {
			// Resolve location reads against the definition stacks.
			for i := range n.Operands {
				loc, ok := n.ReadsLoc(i)
				if !ok {
					continue
				}
				def, ok := s.top(loc)
				if !ok {
					def = s.graph.Undefined(loc, s.widths[loc])
					n = s.graph.Node(id)
					s.diags = append(s.diags, diag.New(diag.UnresolvedStorage,
						"read of %s has no reaching definition", loc).
						At(id, block).WithAddr(n.Addr))
				}
				n.Operands[i] = def
			}
		}
		// Every write pushes a fresh definition.
		if !n.Def.IsZero() {
			s.stacks[n.Def] = append(s.stacks[n.Def], id)
			pushed[n.Def]++
		}
	}

	// Fill the successor phi slots that correspond to this predecessor.
	// Locations are walked in first-seen order so sentinel allocation is
	// deterministic.
	for _, e := range b.Succs {
		succ := s.graph.Block(e.Block)
		phiLocs := s.phiAt[e.Block]
		if len(phiLocs) == 0 {
			continue
		}
		for _, slot := range succ.PredIndices(block) {
			for _, loc := range s.locs {
				phi, ok := phiLocs[loc]
				if !ok {
					continue
				}
				def, ok := s.top(loc)
				if !ok {
					def = s.graph.Undefined(loc, s.widths[loc])
					s.diags = append(s.diags, diag.New(diag.UnresolvedStorage,
						"phi input for %s has no reaching definition", loc).
						At(phi, e.Block).WithAddr(succ.Start))
				}
				s.graph.Node(phi).Operands[slot] = def
			}
		}
	}

	for _, child := range s.dom.Children[block] {
		s.visit(child)
	}

	for loc, count := range pushed {
		s.stacks[loc] = s.stacks[loc][:len(s.stacks[loc])-count]
	}
}

// fillUnreachableSlots closes phi slots whose predecessor edge comes from
// an unreachable block: the renaming walk never visits those, so the slot
// value is undefined by construction. No diagnostic; the unreachable block
// itself is already visible in the output.
func (s *state) fillUnreachableSlots() {
	for _, b := range s.graph.Blocks() {
		phis := s.phiAt[b.ID]
		if len(phis) == 0 {
			continue
		}
		for _, loc := range s.locs {
			phi, ok := phis[loc]
			if !ok {
				continue
			}
			n := s.graph.Node(phi)
			for i, op := range n.Operands {
				if op == ir.InvalidNode {
					und := s.graph.Undefined(loc, s.widths[loc])
					s.graph.Node(phi).Operands[i] = und
				}
			}
		}
	}
}
