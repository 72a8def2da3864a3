package cfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relift/internal/arch"
	"relift/internal/diag"
	"relift/internal/insn"
	"relift/internal/ir"
)

func assign(dest string, imm uint64) insn.Operation {
	return insn.Operation{
		Kind:   insn.Assign,
		Opcode: "copy",
		Dest:   insn.Reg(dest),
		Args:   []insn.Operand{insn.Imm(imm, 64)},
		Width:  64,
	}
}

func binary(opcode, dest, lhs, rhs string) insn.Operation {
	return insn.Operation{
		Kind:   insn.Assign,
		Opcode: opcode,
		Dest:   insn.Reg(dest),
		Args: []insn.Operand{
			insn.LocOperand(insn.Reg(lhs), 64),
			insn.LocOperand(insn.Reg(rhs), 64),
		},
		Width: 64,
	}
}

func branch(cond string) insn.Operation {
	return insn.Operation{
		Kind:   insn.Branch,
		Opcode: "cbranch",
		Args:   []insn.Operand{insn.LocOperand(insn.Reg(cond), 64)},
		Width:  64,
	}
}

func TestBuild_EmptyStream(t *testing.T) {
	_, err := Build(insn.NewStream(), nil, arch.SysV())
	var malformed *diag.MalformedInputError
	require.ErrorAs(t, err, &malformed)
}

func TestBuild_Diamond(t *testing.T) {
	s := insn.NewStream()
	s.Append(0x1000, assign("rax", 1))
	s.Append(0x1004, branch("rax"))
	s.Append(0x1008, assign("rbx", 2))
	s.Append(0x100c, assign("rbx", 3))
	s.Append(0x1010, binary("+", "rcx", "rbx", "rax"))

	transfers := []insn.Transfer{
		{Source: 0x1004, Kind: insn.BranchTrue, Target: 0x1008, Resolved: true},
		{Source: 0x1004, Kind: insn.BranchFalse, Target: 0x100c, Resolved: true},
		{Source: 0x1008, Kind: insn.Jump, Target: 0x1010, Resolved: true},
		{Source: 0x100c, Kind: insn.Return},
	}

	g, err := Build(s, transfers, arch.SysV())
	require.NoError(t, err)

	require.Len(t, g.Blocks(), 4)
	entry := g.Block(g.Entry)
	assert.Equal(t, uint64(0x1000), entry.Start)
	require.Len(t, entry.Succs, 2)
	assert.Equal(t, ir.EdgeTrue, entry.Succs[0].Kind)
	assert.Equal(t, ir.EdgeFalse, entry.Succs[1].Kind)

	join := g.Block(3)
	assert.Equal(t, uint64(0x1010), join.Start)
	require.Len(t, join.Preds, 1, "the return arm must not reach the join")
	assert.Equal(t, ir.EdgeJump, join.Preds[0].Kind)
}

func TestBuild_ImplicitFallthrough(t *testing.T) {
	// 0x1004 becomes a leader as a branch target, splitting the first two
	// addresses apart with no transfer at 0x1000.
	s := insn.NewStream()
	s.Append(0x1000, assign("rax", 1))
	s.Append(0x1004, assign("rbx", 2))
	s.Append(0x1008, branch("rax"))

	transfers := []insn.Transfer{
		{Source: 0x1008, Kind: insn.BranchTrue, Target: 0x1004, Resolved: true},
		{Source: 0x1008, Kind: insn.BranchFalse, Target: 0x1000, Resolved: true},
	}

	g, err := Build(s, transfers, arch.SysV())
	require.NoError(t, err)

	first := g.Block(0)
	require.Len(t, first.Succs, 1)
	assert.Equal(t, ir.EdgeFallthrough, first.Succs[0].Kind)

	// The false arm targets the first address, so a synthetic preheader
	// keeps the entry free of predecessors.
	entry := g.Block(g.Entry)
	assert.True(t, entry.Synthetic)
	assert.Empty(t, entry.Preds)
	require.Len(t, entry.Succs, 1)
	assert.Equal(t, ir.BlockID(0), entry.Succs[0].Block)
}

func TestBuild_UnresolvedTargetsLinkToSink(t *testing.T) {
	s := insn.NewStream()
	s.Append(0x1000, assign("rax", 1))
	s.Append(0x1004, assign("rbx", 2))

	transfers := []insn.Transfer{
		{Source: 0x1000, Kind: insn.Jump}, // unresolved
		{Source: 0x1004, Kind: insn.Indirect},
	}

	g, err := Build(s, transfers, arch.SysV())
	require.NoError(t, err)

	var sink *ir.Block
	for _, b := range g.Blocks() {
		if b.Synthetic {
			require.Nil(t, sink, "only one sink per graph")
			sink = b
		}
	}
	require.NotNil(t, sink)
	assert.Len(t, sink.Preds, 2, "both unresolved transfers share the sink")
	for _, e := range sink.Preds {
		assert.Equal(t, ir.EdgeUnknown, e.Kind)
	}
}

func TestBuild_UnmappableTransferSource(t *testing.T) {
	s := insn.NewStream()
	s.Append(0x1000, assign("rax", 1))

	_, err := Build(s, []insn.Transfer{
		{Source: 0x2000, Kind: insn.Jump, Target: 0x1000, Resolved: true},
	}, arch.SysV())

	var malformed *diag.MalformedInputError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, uint64(0x2000), malformed.Addr)
}

func TestBuild_UnmappableBranchTarget(t *testing.T) {
	s := insn.NewStream()
	s.Append(0x1000, branch("rax"))

	_, err := Build(s, []insn.Transfer{
		{Source: 0x1000, Kind: insn.BranchTrue, Target: 0x9999, Resolved: true},
	}, arch.SysV())

	var malformed *diag.MalformedInputError
	require.ErrorAs(t, err, &malformed)
}

func TestBuild_CallLowersClobbers(t *testing.T) {
	s := insn.NewStream()
	s.Append(0x1000, assign("rdi", 1))
	s.Touch(0x1004)
	s.Append(0x1008, binary("+", "rbx", "rax", "rdi"))

	transfers := []insn.Transfer{
		{Source: 0x1004, Kind: insn.Call, Target: 0x2000, Resolved: true},
		{Source: 0x1008, Kind: insn.Return},
	}

	g, err := Build(s, transfers, arch.SysV())
	require.NoError(t, err)

	// rdi and rax are caller-saved and observed; rbx is callee-saved and
	// must not be clobbered. Call targets are never required in the stream.
	var call *ir.Node
	clobbered := map[string]bool{}
	g.ForEachLive(func(id ir.NodeID, n *ir.Node) {
		switch n.Opcode {
		case ir.OpCall:
			call = n
		case ir.OpClobber:
			clobbered[n.Def.Name] = true
		}
	})
	require.NotNil(t, call)
	assert.True(t, call.Call.Resolved)
	assert.True(t, clobbered["rdi"])
	assert.True(t, clobbered["rax"])
	assert.False(t, clobbered["rbx"])

	// Control continues to the return site over a call edge.
	callBlock := g.Block(call.Block)
	require.Len(t, callBlock.Succs, 1)
	assert.Equal(t, ir.EdgeCall, callBlock.Succs[0].Kind)
}
