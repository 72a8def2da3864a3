package diag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"relift/internal/ir"
)

func TestReporter_Format(t *testing.T) {
	r := &Reporter{}
	d := New(UnresolvedStorage, "read of %s has no reaching definition", "rax").
		At(ir.NodeID(4), ir.BlockID(1)).WithAddr(0x1008)

	out := r.Format(d)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 3)
	assert.Equal(t, "warning[UnresolvedStorage]: read of rax has no reaching definition", lines[0])
	assert.Equal(t, "  --> node n4, block b1, address 0x1008", lines[1])
	assert.Equal(t, "  note: storage read has no reaching definition", lines[2])
}

func TestReporter_FormatWithoutAttribution(t *testing.T) {
	r := &Reporter{}
	out := r.Format(New(NonConvergence, "passes still changing"))

	assert.Contains(t, out, "warning[NonConvergence]")
	assert.NotContains(t, out, "-->")
}

func TestReporter_FormatAll(t *testing.T) {
	r := &Reporter{}
	out := r.FormatAll([]Diagnostic{
		New(LowConfidenceCall, "first"),
		New(LowConfidenceCall, "second"),
	})
	assert.Equal(t, 2, strings.Count(out, "warning[LowConfidenceCall]"))
}

func TestDiagnostic_String(t *testing.T) {
	d := New(LowConfidenceCall, "call target unresolved").
		At(ir.NodeID(2), ir.BlockID(0)).WithAddr(0x1004)
	s := d.String()
	assert.Contains(t, s, "LowConfidenceCall")
	assert.Contains(t, s, "n2")
	assert.Contains(t, s, "b0")
	assert.Contains(t, s, "0x1004")
}
