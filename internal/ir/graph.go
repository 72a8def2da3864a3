package ir

import (
	"fmt"

	"relift/internal/insn"
)

// The IR is a flat arena of typed nodes addressed by stable integer ids.
// Edges are id lists rather than pointers, so phi cycles across loop
// back-edges are representable and removal is tombstoning, never physical
// deallocation. Ids are never reused within one construction generation.

// NodeID identifies a node in the arena.
type NodeID int32

// BlockID identifies a basic block.
type BlockID int32

const (
	// InvalidNode marks an operand slot that has not been resolved to a
	// definition yet (pre-SSA location reads) or that reads a location by
	// name (post-de-SSA phi reads).
	InvalidNode NodeID = -1
	// InvalidBlock marks nodes that belong to no block: constants and
	// undefined sentinels, which are position-free and dominate every use.
	InvalidBlock BlockID = -1
)

// NodeKind is the node variant.
type NodeKind uint8

const (
	KindConstant NodeKind = iota + 1
	KindOperation
	KindPhi
	KindUndefined
	KindRemoved
)

func (k NodeKind) String() string {
	switch k {
	case KindConstant:
		return "const"
	case KindOperation:
		return "op"
	case KindPhi:
		return "phi"
	case KindUndefined:
		return "undef"
	case KindRemoved:
		return "removed"
	}
	return "invalid"
}

// CallInfo carries call-specific state on call operation nodes.
type CallInfo struct {
	Target    uint64
	Resolved  bool
	Recovered bool
}

// Node is the graph's only mutable unit.
//
// For Operation nodes, Operands holds the ordered operand ids; a slot equal
// to InvalidNode reads the location stored at the same index of Refs
// instead. SSA construction resolves every such slot; de-SSA finalization
// reintroduces exactly one per eliminated phi.
//
// For Phi nodes, Operands is ordered to match the owning block's
// predecessor list.
type Node struct {
	Kind     NodeKind
	Opcode   string
	Operands []NodeID
	Refs     []insn.Loc

	// Constant payload. Unknown marks a constant whose value could not be
	// derived soundly (overflow, opcode-declared undefined result).
	Value   uint64
	Unknown bool

	Width uint8
	Def   insn.Loc // storage location this node defines, if any
	Block BlockID
	Addr  uint64
	Call  *CallInfo
}

// Live reports whether the node has not been tombstoned.
func (n *Node) Live() bool { return n.Kind != KindRemoved }

// ReadsLoc reports whether operand slot i is an unresolved location read,
// and returns the location.
func (n *Node) ReadsLoc(i int) (insn.Loc, bool) {
	if n.Operands[i] != InvalidNode || i >= len(n.Refs) {
		return insn.Loc{}, false
	}
	return n.Refs[i], true
}

// EdgeKind tags a CFG edge.
type EdgeKind uint8

const (
	EdgeFallthrough EdgeKind = iota + 1
	EdgeJump
	EdgeTrue
	EdgeFalse
	EdgeCall
	EdgeReturn
	EdgeUnknown
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeFallthrough:
		return "fall"
	case EdgeJump:
		return "jump"
	case EdgeTrue:
		return "true"
	case EdgeFalse:
		return "false"
	case EdgeCall:
		return "call"
	case EdgeReturn:
		return "ret"
	case EdgeUnknown:
		return "unk"
	}
	return "invalid"
}

// Edge is one directed CFG edge endpoint.
type Edge struct {
	Block BlockID
	Kind  EdgeKind
}

// Block is a basic block: an ordered list of owned node ids plus typed
// predecessor and successor edges. Phi operand order matches Preds order.
type Block struct {
	ID        BlockID
	Start     uint64
	Nodes     []NodeID
	Preds     []Edge
	Succs     []Edge
	Synthetic bool // the unknown-successor sink
}

// Graph is the arena of blocks and nodes for one decompilation session.
type Graph struct {
	Entry BlockID

	blocks  []*Block
	nodes   []Node
	consts  map[constKey]NodeID
	version uint64
}

type constKey struct {
	value uint64
	width uint8
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{Entry: InvalidBlock, consts: make(map[constKey]NodeID)}
}

// Version returns the structural mutation counter. It increments on any
// change to CFG shape, so dominance caches can detect staleness.
func (g *Graph) Version() uint64 { return g.version }

// MarkStructural bumps the structural mutation counter.
func (g *Graph) MarkStructural() { g.version++ }

// NewBlock creates a block starting at the given address.
func (g *Graph) NewBlock(start uint64) *Block {
	b := &Block{ID: BlockID(len(g.blocks)), Start: start}
	g.blocks = append(g.blocks, b)
	g.version++
	return b
}

// Block returns the block with the given id.
func (g *Graph) Block(id BlockID) *Block { return g.blocks[id] }

// Blocks returns all blocks in id order.
func (g *Graph) Blocks() []*Block { return g.blocks }

// NumNodes returns the arena size, including tombstones.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) *Node { return &g.nodes[id] }

// NewNode allocates a node of the given kind in the arena. The node is not
// attached to any block list; use Block.Nodes for placement.
func (g *Graph) NewNode(kind NodeKind, block BlockID) (NodeID, *Node) {
	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, Node{Kind: kind, Block: block})
	return id, &g.nodes[id]
}

// Constant returns the shared constant node for (value, width), allocating
// it on first use. Constants belong to no block and dominate every use.
func (g *Graph) Constant(value uint64, width uint8) NodeID {
	key := constKey{value, width}
	// A previously shared constant may have been tombstoned since.
	if id, ok := g.consts[key]; ok && g.nodes[id].Live() {
		return id
	}
	id, n := g.NewNode(KindConstant, InvalidBlock)
	n.Value = value
	n.Width = width
	g.consts[key] = id
	return id
}

// UnknownConstant allocates a constant flagged unknown. Unknown constants
// are never shared: two unknowns are not the same value.
func (g *Graph) UnknownConstant(width uint8) NodeID {
	id, n := g.NewNode(KindConstant, InvalidBlock)
	n.Unknown = true
	n.Width = width
	return id
}

// Undefined allocates an undefined-value sentinel for a read of loc that
// has no reaching definition.
func (g *Graph) Undefined(loc insn.Loc, width uint8) NodeID {
	id, n := g.NewNode(KindUndefined, InvalidBlock)
	n.Def = loc
	n.Width = width
	return id
}

// AppendNode appends a node id to a block's ordered node list.
func (g *Graph) AppendNode(b *Block, id NodeID) {
	g.nodes[id].Block = b.ID
	b.Nodes = append(b.Nodes, id)
}

// PrependNode inserts a node id at the front of a block's node list.
// Phis are placed this way so they precede every ordinary node.
func (g *Graph) PrependNode(b *Block, id NodeID) {
	g.nodes[id].Block = b.ID
	b.Nodes = append([]NodeID{id}, b.Nodes...)
}

// InsertNode inserts a node id at position i of a block's node list.
func (g *Graph) InsertNode(b *Block, i int, id NodeID) {
	g.nodes[id].Block = b.ID
	b.Nodes = append(b.Nodes, InvalidNode)
	copy(b.Nodes[i+1:], b.Nodes[i:])
	b.Nodes[i] = id
}

// AddEdge links from→to with the given kind, appending to both endpoint
// edge lists. Counts as a structural mutation.
func (g *Graph) AddEdge(from, to BlockID, kind EdgeKind) {
	g.blocks[from].Succs = append(g.blocks[from].Succs, Edge{Block: to, Kind: kind})
	g.blocks[to].Preds = append(g.blocks[to].Preds, Edge{Block: from, Kind: kind})
	g.version++
}

// RedirectEdge reroutes the from→to edge through mid, preserving the
// predecessor slot index of the destination so phi operand order stays
// aligned. Counts as a structural mutation.
func (g *Graph) RedirectEdge(from, to, mid BlockID) error {
	fromB, toB, midB := g.blocks[from], g.blocks[to], g.blocks[mid]
	si := -1
	for i, e := range fromB.Succs {
		if e.Block == to {
			si = i
			break
		}
	}
	pi := -1
	for i, e := range toB.Preds {
		if e.Block == from {
			pi = i
			break
		}
	}
	if si < 0 || pi < 0 {
		return fmt.Errorf("no edge b%d -> b%d", from, to)
	}
	kind := fromB.Succs[si].Kind
	fromB.Succs[si] = Edge{Block: mid, Kind: kind}
	midB.Preds = append(midB.Preds, Edge{Block: from, Kind: kind})
	midB.Succs = append(midB.Succs, Edge{Block: to, Kind: EdgeJump})
	toB.Preds[pi] = Edge{Block: mid, Kind: EdgeJump}
	g.version++
	return nil
}

// Tombstone marks a node removed, detaches it from its block's node list,
// and clears its operand edges. The id stays allocated.
func (g *Graph) Tombstone(id NodeID) {
	n := &g.nodes[id]
	if n.Kind == KindRemoved {
		return
	}
	if n.Block != InvalidBlock {
		b := g.blocks[n.Block]
		for i, nid := range b.Nodes {
			if nid == id {
				b.Nodes = append(b.Nodes[:i], b.Nodes[i+1:]...)
				break
			}
		}
	}
	n.Kind = KindRemoved
	n.Operands = nil
	n.Refs = nil
	n.Call = nil
}

// ReplaceUses rewrites every live operand reference to old so it points at
// new instead, and returns the ids of the users that were rewritten.
func (g *Graph) ReplaceUses(old, new NodeID) []NodeID {
	var users []NodeID
	for id := range g.nodes {
		n := &g.nodes[id]
		if n.Kind == KindRemoved {
			continue
		}
		hit := false
		for i, op := range n.Operands {
			if op == old {
				n.Operands[i] = new
				hit = true
			}
		}
		if hit {
			users = append(users, NodeID(id))
		}
	}
	return users
}

// UseCounts returns, per node id, the number of live operand references to
// it. Recomputed on demand; the arena is small enough per session that a
// full scan beats maintaining an index across in-place mutation.
func (g *Graph) UseCounts() []int {
	counts := make([]int, len(g.nodes))
	for id := range g.nodes {
		n := &g.nodes[id]
		if n.Kind == KindRemoved {
			continue
		}
		for _, op := range n.Operands {
			if op >= 0 {
				counts[op]++
			}
		}
	}
	return counts
}

// ForEachLive calls fn for every live node in id order.
func (g *Graph) ForEachLive(fn func(id NodeID, n *Node)) {
	for id := range g.nodes {
		if g.nodes[id].Kind != KindRemoved {
			fn(NodeID(id), &g.nodes[id])
		}
	}
}

// PhisOf returns the phi node ids of a block, in node-list order.
func (g *Graph) PhisOf(b *Block) []NodeID {
	var phis []NodeID
	for _, id := range b.Nodes {
		if g.nodes[id].Kind == KindPhi {
			phis = append(phis, id)
		}
	}
	return phis
}

// PredIndices returns the indices in b.Preds whose source block is from.
// A predecessor may appear more than once when both arms of a branch
// target the same block.
func (b *Block) PredIndices(from BlockID) []int {
	var idx []int
	for i, e := range b.Preds {
		if e.Block == from {
			idx = append(idx, i)
		}
	}
	return idx
}
