package cfg

import (
	"relift/internal/arch"
	"relift/internal/diag"
	"relift/internal/insn"
	"relift/internal/ir"
)

// Build partitions the operation stream into basic blocks at transfer
// boundaries, lowers each primitive operation into an IR node, and links
// typed edges per the control-transfer table.
//
// Indirect and unresolved jump targets are linked to a synthetic
// unknown-successor sink so dominance remains sound under conservative
// assumptions. Calls do not edge into the callee: the call lowers to a
// side-effecting call node plus clobber definitions for the caller-saved
// registers observed in the stream, and control continues to the return
// site over an EdgeCall edge.
//
// Fails with MalformedInput when a transfer source or a resolved
// jump/branch target cannot be mapped onto the stream. The first stream
// address becomes the single entry block; unreachable blocks are retained.
func Build(stream *insn.Stream, transfers []insn.Transfer, conv *arch.Convention) (*ir.Graph, error) {
	addrs := stream.Addrs()
	if len(addrs) == 0 {
		return nil, &diag.MalformedInputError{Reason: "empty operation stream"}
	}

	next := make(map[uint64]uint64, len(addrs))
	for i := 0; i+1 < len(addrs); i++ {
		next[addrs[i]] = addrs[i+1]
	}

	// Block leaders: the entry address, every resolved jump/branch target,
	// and every address following a transfer source.
	leaders := map[uint64]bool{addrs[0]: true}
	for _, t := range transfers {
		if !stream.Contains(t.Source) {
			return nil, &diag.MalformedInputError{
				Addr:   t.Source,
				Reason: "transfer source outside the operation stream",
			}
		}
		if n, ok := next[t.Source]; ok {
			leaders[n] = true
		}
		if !t.Resolved || t.Kind == insn.Call || t.Kind == insn.Return {
			continue
		}
		if !stream.Contains(t.Target) {
			return nil, &diag.MalformedInputError{
				Addr:   t.Target,
				Reason: "transfer target resolves to no block",
			}
		}
		leaders[t.Target] = true
	}

	g := ir.NewGraph()
	b := builder{
		graph:    g,
		stream:   stream,
		conv:     conv,
		blockAt:  make(map[uint64]ir.BlockID),
		lastAddr: make(map[ir.BlockID]uint64),
		sink:     ir.InvalidBlock,
	}
	b.collectClobbers()

	// One block per contiguous run between leaders.
	var cur *ir.Block
	for _, addr := range addrs {
		if cur == nil || leaders[addr] {
			cur = g.NewBlock(addr)
		}
		b.blockAt[addr] = cur.ID
		b.lastAddr[cur.ID] = addr
		for _, op := range stream.At(addr) {
			b.lower(cur, addr, op)
		}
		for _, t := range transfers {
			if t.Source != addr {
				continue
			}
			switch t.Kind {
			case insn.Call:
				b.lowerCall(cur, addr, t)
			case insn.Return:
				b.lowerReturn(cur, addr)
			}
		}
		if b.endsBlock(addr, transfers) {
			cur = nil
		}
	}
	g.Entry = b.blockAt[addrs[0]]

	// Explicit edges in transfer-table order.
	for _, t := range transfers {
		b.link(t, next)
	}

	// A block split only because the following address is a leader falls
	// through implicitly.
	for _, blk := range g.Blocks() {
		if blk.Synthetic || len(blk.Succs) > 0 {
			continue
		}
		last := b.lastAddr[blk.ID]
		if hasTransferAt(transfers, last) {
			continue
		}
		if n, ok := next[last]; ok {
			g.AddEdge(blk.ID, b.blockAt[n], ir.EdgeFallthrough)
		}
	}

	// A branch back to the first address gives the entry block
	// predecessors. A synthetic preheader keeps the entry pred-free, so
	// phi placement and frontier derivation stay uniform.
	if len(g.Block(g.Entry).Preds) > 0 {
		pre := g.NewBlock(g.Block(g.Entry).Start)
		pre.Synthetic = true
		g.AddEdge(pre.ID, g.Entry, ir.EdgeFallthrough)
		g.Entry = pre.ID
	}

	return g, nil
}

type builder struct {
	graph    *ir.Graph
	stream   *insn.Stream
	conv     *arch.Convention
	blockAt  map[uint64]ir.BlockID
	lastAddr map[ir.BlockID]uint64
	sink     ir.BlockID
	clobbers []insn.Loc
}

// collectClobbers gathers the caller-saved registers the stream mentions.
// These become clobber definitions at every call site under the
// conservative call model.
func (b *builder) collectClobbers() {
	seen := map[string]bool{}
	note := func(l insn.Loc) {
		if l.Kind != insn.LocRegister || seen[l.Name] || b.conv.IsCalleeSaved(l.Name) {
			return
		}
		seen[l.Name] = true
		b.clobbers = append(b.clobbers, l)
	}
	for _, addr := range b.stream.Addrs() {
		for _, op := range b.stream.At(addr) {
			note(op.Dest)
			for _, a := range op.Args {
				if a.Kind == insn.OperandLoc {
					note(a.Loc)
				}
			}
		}
	}
	// The return slot is always clobbered, mentioned or not.
	ret := b.conv.RetLoc()
	if !seen[ret.Name] {
		b.clobbers = append(b.clobbers, ret)
	}
}

func (b *builder) lower(blk *ir.Block, addr uint64, op insn.Operation) {
	// Allocate constants first: growing the arena invalidates node pointers.
	operands := make([]ir.NodeID, 0, len(op.Args))
	refs := make([]insn.Loc, 0, len(op.Args))
	for _, a := range op.Args {
		if a.Kind == insn.OperandImm {
			operands = append(operands, b.graph.Constant(a.Imm, a.Width))
			refs = append(refs, insn.Loc{})
		} else {
			operands = append(operands, ir.InvalidNode)
			refs = append(refs, a.Loc)
		}
	}
	id, n := b.graph.NewNode(ir.KindOperation, blk.ID)
	n.Opcode = op.Opcode
	n.Def = op.Dest
	n.Width = op.Width
	n.Addr = addr
	n.Operands = operands
	n.Refs = refs
	b.graph.AppendNode(blk, id)
}

func (b *builder) lowerCall(blk *ir.Block, addr uint64, t insn.Transfer) {
	id, n := b.graph.NewNode(ir.KindOperation, blk.ID)
	n.Opcode = ir.OpCall
	n.Addr = addr
	n.Width = 64
	n.Call = &ir.CallInfo{Target: t.Target, Resolved: t.Resolved}
	b.graph.AppendNode(blk, id)

	for _, loc := range b.clobbers {
		cid, cn := b.graph.NewNode(ir.KindOperation, blk.ID)
		cn.Opcode = ir.OpClobber
		cn.Def = loc
		cn.Width = 64
		cn.Addr = addr
		b.graph.AppendNode(blk, cid)
	}
}

func (b *builder) lowerReturn(blk *ir.Block, addr uint64) {
	id, n := b.graph.NewNode(ir.KindOperation, blk.ID)
	n.Opcode = ir.OpRet
	n.Addr = addr
	b.graph.AppendNode(blk, id)
}

// endsBlock reports whether any transfer is sourced at addr, which closes
// the current block.
func (b *builder) endsBlock(addr uint64, transfers []insn.Transfer) bool {
	return hasTransferAt(transfers, addr)
}

func hasTransferAt(transfers []insn.Transfer, addr uint64) bool {
	for _, t := range transfers {
		if t.Source == addr {
			return true
		}
	}
	return false
}

// sinkBlock lazily creates the synthetic unknown-successor sink.
func (b *builder) sinkBlock() ir.BlockID {
	if b.sink == ir.InvalidBlock {
		blk := b.graph.NewBlock(^uint64(0))
		blk.Synthetic = true
		b.sink = blk.ID
	}
	return b.sink
}

func (b *builder) link(t insn.Transfer, next map[uint64]uint64) {
	src := b.blockAt[t.Source]
	switch t.Kind {
	case insn.Fallthrough, insn.Jump, insn.BranchTrue, insn.BranchFalse:
		if !t.Resolved {
			b.graph.AddEdge(src, b.sinkBlock(), ir.EdgeUnknown)
			return
		}
		b.graph.AddEdge(src, b.blockAt[t.Target], edgeKind(t.Kind))
	case insn.Indirect:
		b.graph.AddEdge(src, b.sinkBlock(), ir.EdgeUnknown)
	case insn.Call:
		if n, ok := next[t.Source]; ok {
			b.graph.AddEdge(src, b.blockAt[n], ir.EdgeCall)
		}
	case insn.Return:
		// Exits carry no successor edge.
	}
}

func edgeKind(k insn.TransferKind) ir.EdgeKind {
	switch k {
	case insn.Fallthrough:
		return ir.EdgeFallthrough
	case insn.Jump:
		return ir.EdgeJump
	case insn.BranchTrue:
		return ir.EdgeTrue
	case insn.BranchFalse:
		return ir.EdgeFalse
	case insn.Call:
		return ir.EdgeCall
	case insn.Return:
		return ir.EdgeReturn
	}
	return ir.EdgeUnknown
}
