package listing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relift/internal/arch"
	"relift/internal/insn"
)

func parse(t *testing.T, src string) (*insn.Stream, []insn.Transfer) {
	t.Helper()
	stream, transfers, err := Parse("test", src, arch.Registers())
	require.NoError(t, err)
	return stream, transfers
}

func TestParse_Statements(t *testing.T) {
	stream, _ := parse(t, `
// setup
0x1000: rax = 5
0x1004: rbx = rax + rcx
0x1008: t0 = rax == rbx
0x1008: branch t0
0x100c: [gvar_x] = rax
0x1010: rax = [gvar_x]
0x1014: t1 = ! t0
`)

	require.Equal(t, 6, stream.Len())

	ops := stream.At(0x1000)
	require.Len(t, ops, 1)
	assert.Equal(t, insn.Assign, ops[0].Kind)
	assert.Equal(t, "copy", ops[0].Opcode)
	assert.Equal(t, insn.Reg("rax"), ops[0].Dest)
	require.Len(t, ops[0].Args, 1)
	assert.Equal(t, insn.OperandImm, ops[0].Args[0].Kind)
	assert.Equal(t, uint64(5), ops[0].Args[0].Imm)
	assert.Equal(t, uint8(64), ops[0].Width)

	add := stream.At(0x1004)[0]
	assert.Equal(t, "+", add.Opcode)
	assert.Equal(t, insn.Reg("rcx"), add.Args[1].Loc)

	// Two operations share 0x1008, in order: the compare then the branch.
	at1008 := stream.At(0x1008)
	require.Len(t, at1008, 2)
	assert.Equal(t, insn.Compare, at1008[0].Kind)
	assert.Equal(t, "==", at1008[0].Opcode)
	assert.Equal(t, insn.Tmp("t0"), at1008[0].Dest, "unknown names are temporaries")
	assert.Equal(t, insn.Branch, at1008[1].Kind)

	store := stream.At(0x100c)[0]
	assert.Equal(t, insn.Store, store.Kind)
	assert.Equal(t, insn.Mem("gvar_x"), store.Dest)

	load := stream.At(0x1010)[0]
	assert.Equal(t, insn.Load, load.Kind)
	assert.Equal(t, insn.Mem("gvar_x"), load.Args[0].Loc)

	not := stream.At(0x1014)[0]
	assert.Equal(t, "!", not.Opcode)
}

func TestParse_Transfers(t *testing.T) {
	_, transfers := parse(t, `
0x1000: rax = 1
0x1004: branch rax

0x1004 -> 0x1000 true
0x1004 -> 0x1008 false
0x1008 -> ? indirect
0x1000 -> 0x2000 call
`)

	require.Len(t, transfers, 4)

	assert.Equal(t, insn.Transfer{Source: 0x1004, Kind: insn.BranchTrue, Target: 0x1000, Resolved: true}, transfers[0])
	assert.Equal(t, insn.Transfer{Source: 0x1004, Kind: insn.BranchFalse, Target: 0x1008, Resolved: true}, transfers[1])
	assert.Equal(t, insn.Transfer{Source: 0x1008, Kind: insn.Indirect}, transfers[2])
	assert.Equal(t, insn.Transfer{Source: 0x1000, Kind: insn.Call, Target: 0x2000, Resolved: true}, transfers[3])
}

func TestParse_TransferOnlyAddressKeepsOrder(t *testing.T) {
	// The jump at 0x1004 exists only in the transfer table, yet the
	// stream must stay in ascending address order.
	stream, _ := parse(t, `
0x1000: rax = 1
0x1008: rbx = 2

0x1004 -> 0x1000 jump
`)

	assert.Equal(t, []uint64{0x1000, 0x1004, 0x1008}, stream.Addrs())
	assert.True(t, stream.Contains(0x1004))
	assert.Empty(t, stream.At(0x1004))
}

func TestParse_HexImmediates(t *testing.T) {
	stream, _ := parse(t, `0x1000: rax = rbx + 0xff`)
	op := stream.At(0x1000)[0]
	assert.Equal(t, uint64(0xff), op.Args[1].Imm)
}

func TestParse_RegisterWidthsFromTable(t *testing.T) {
	stream, _, err := Parse("test", `0x1000: eax = 1`, map[string]uint8{"eax": 32})
	require.NoError(t, err)
	op := stream.At(0x1000)[0]
	assert.Equal(t, uint8(32), op.Width)
	assert.Equal(t, insn.Reg("eax"), op.Dest)
}

func TestParse_Errors(t *testing.T) {
	_, _, err := Parse("test", `0x1000: rax = `, arch.Registers())
	require.Error(t, err)

	_, _, err = Parse("test", `0x1000 -> 0x2000 sideways`, arch.Registers())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sideways")
}
