package passes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relift/internal/insn"
	"relift/internal/ir"
)

// undefOperand gives rules a non-constant operand to work against.
func undefOperand(g *ir.Graph) ir.NodeID {
	return g.Undefined(insn.Reg("rdi"), 64)
}

func applySimplify(t *testing.T, g *ir.Graph) {
	t.Helper()
	var pass Simplify
	res, err := pass.Apply(g, testEnv())
	require.NoError(t, err)
	assert.True(t, res.Changed)
}

func TestSimplify_IdentityElements(t *testing.T) {
	g := emptyGraph()
	b := g.Block(g.Entry)
	x := undefOperand(g)
	zero := g.Constant(0, 64)
	one := g.Constant(1, 64)

	addZero := opNode(g, b, "+", insn.Reg("rax"), x, zero)
	zeroAdd := opNode(g, b, "+", insn.Reg("rbx"), zero, x)
	mulOne := opNode(g, b, "*", insn.Reg("rcx"), x, one)
	orZero := opNode(g, b, "|", insn.Reg("rdx"), x, zero)

	applySimplify(t, g)

	for _, id := range []ir.NodeID{addZero, zeroAdd, mulOne, orZero} {
		n := g.Node(id)
		assert.Equalf(t, ir.OpCopy, n.Opcode, "n%d", id)
		assert.Equalf(t, x, n.Operands[0], "n%d", id)
	}
}

func TestSimplify_Absorption(t *testing.T) {
	g := emptyGraph()
	b := g.Block(g.Entry)
	x := undefOperand(g)
	zero := g.Constant(0, 64)

	mulZero := opNode(g, b, "*", insn.Reg("rax"), x, zero)
	andZero := opNode(g, b, "&", insn.Reg("rbx"), zero, x)

	applySimplify(t, g)

	for _, id := range []ir.NodeID{mulZero, andZero} {
		n := g.Node(id)
		assert.Equal(t, ir.KindConstant, n.Kind)
		assert.Equal(t, uint64(0), n.Value)
	}
}

func TestSimplify_SelfCancellation(t *testing.T) {
	g := emptyGraph()
	b := g.Block(g.Entry)
	x := undefOperand(g)

	sub := opNode(g, b, "-", insn.Reg("rax"), x, x)
	xor := opNode(g, b, "^", insn.Reg("rbx"), x, x)
	eq := opNode(g, b, "==", insn.Reg("rcx"), x, x)
	lt := opNode(g, b, "<", insn.Reg("rdx"), x, x)
	and := opNode(g, b, "&", insn.Reg("rsi"), x, x)

	applySimplify(t, g)

	assert.Equal(t, uint64(0), g.Node(sub).Value)
	assert.Equal(t, uint64(0), g.Node(xor).Value)
	assert.Equal(t, uint64(1), g.Node(eq).Value)
	assert.Equal(t, uint64(0), g.Node(lt).Value)
	assert.Equal(t, ir.OpCopy, g.Node(and).Opcode)
}

func TestSimplify_StrengthReduction(t *testing.T) {
	g := emptyGraph()
	b := g.Block(g.Entry)
	x := undefOperand(g)
	eight := g.Constant(8, 64)

	mul := opNode(g, b, "*", insn.Reg("rax"), x, eight)
	div := opNode(g, b, "/", insn.Reg("rbx"), x, eight)

	applySimplify(t, g)

	mn := g.Node(mul)
	require.Equal(t, "<<", mn.Opcode)
	assert.Equal(t, x, mn.Operands[0])
	assert.Equal(t, uint64(3), g.Node(mn.Operands[1]).Value)

	dn := g.Node(div)
	require.Equal(t, ">>", dn.Opcode)
	assert.Equal(t, uint64(3), g.Node(dn.Operands[1]).Value)
}

func TestSimplify_NonPowerOfTwoUntouched(t *testing.T) {
	g := emptyGraph()
	b := g.Block(g.Entry)
	x := undefOperand(g)
	six := g.Constant(6, 64)

	mul := opNode(g, b, "*", insn.Reg("rax"), x, six)

	var pass Simplify
	res, err := pass.Apply(g, testEnv())
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, "*", g.Node(mul).Opcode)
}

func TestSimplify_FullMaskIsIdentity(t *testing.T) {
	g := emptyGraph()
	b := g.Block(g.Entry)
	x := undefOperand(g)
	mask32 := g.Constant(0xffffffff, 32)

	and := opNode(g, b, "&", insn.Reg("rax"), x, mask32)
	g.Node(and).Width = 32

	applySimplify(t, g)
	assert.Equal(t, ir.OpCopy, g.Node(and).Opcode)
}
