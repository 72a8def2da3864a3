package passes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relift/internal/arch"
	"relift/internal/diag"
	"relift/internal/ir"
)

type fakePass struct {
	name    string
	apply   func(g *ir.Graph, env *Env) (Result, error)
	applied *[]string
}

func (p *fakePass) Name() string        { return p.name }
func (p *fakePass) Description() string { return "test pass" }

func (p *fakePass) Apply(g *ir.Graph, env *Env) (Result, error) {
	*p.applied = append(*p.applied, p.name)
	if p.apply != nil {
		return p.apply(g, env)
	}
	return Result{}, nil
}

func testEnv() *Env {
	return NewEnv(arch.DefaultTable(), arch.SysV(), 4, false)
}

func emptyGraph() *ir.Graph {
	g := ir.NewGraph()
	g.Entry = g.NewBlock(0).ID
	return g
}

func TestManager_ScheduleRespectsDependencies(t *testing.T) {
	var applied []string
	m := NewManager()
	m.Register(&fakePass{name: "c", applied: &applied}, "b")
	m.Register(&fakePass{name: "a", applied: &applied})
	m.Register(&fakePass{name: "b", applied: &applied}, "a")

	_, err := m.Run(emptyGraph(), testEnv())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, applied)
}

func TestManager_CyclicDependencies(t *testing.T) {
	var applied []string
	m := NewManager()
	m.Register(&fakePass{name: "a", applied: &applied}, "b")
	m.Register(&fakePass{name: "b", applied: &applied}, "a")

	err := m.Schedule()
	var cyclic *diag.CyclicDependencyError
	require.ErrorAs(t, err, &cyclic)
	assert.ElementsMatch(t, []string{"a", "b"}, cyclic.Passes)
}

func TestManager_UnknownDependency(t *testing.T) {
	var applied []string
	m := NewManager()
	m.Register(&fakePass{name: "a", applied: &applied}, "ghost")
	require.Error(t, m.Schedule())
}

func TestManager_ConvergentGroupLoopsUntilStable(t *testing.T) {
	var applied []string
	remaining := 2
	m := NewManager()
	m.RegisterConvergent(&fakePass{
		name:    "shrink",
		applied: &applied,
		apply: func(*ir.Graph, *Env) (Result, error) {
			if remaining > 0 {
				remaining--
				return Result{Changed: true}, nil
			}
			return Result{}, nil
		},
	})

	diags, err := m.Run(emptyGraph(), testEnv())
	require.NoError(t, err)
	assert.Empty(t, diags)
	// Two changing sweeps plus the stable one.
	assert.Len(t, applied, 3)
}

func TestManager_NonConvergenceHitsCeiling(t *testing.T) {
	var applied []string
	m := NewManager()
	m.RegisterConvergent(&fakePass{
		name:    "restless",
		applied: &applied,
		apply: func(*ir.Graph, *Env) (Result, error) {
			return Result{Changed: true}, nil
		},
	})

	env := testEnv()
	diags, err := m.Run(emptyGraph(), env)
	require.NoError(t, err, "hitting the ceiling keeps the current result")
	require.Len(t, diags, 1)
	assert.Equal(t, diag.NonConvergence, diags[0].Code)
	assert.Len(t, applied, env.MaxIterations)
}

func TestManager_ConvergentGroupIsContiguous(t *testing.T) {
	var applied []string
	sweeps := 2
	m := NewManager()
	m.Register(&fakePass{name: "pre", applied: &applied})
	m.RegisterConvergent(&fakePass{
		name:    "x",
		applied: &applied,
		apply: func(*ir.Graph, *Env) (Result, error) {
			if sweeps > 0 {
				sweeps--
				return Result{Changed: true}, nil
			}
			return Result{}, nil
		},
	}, "pre")
	m.RegisterConvergent(&fakePass{name: "y", applied: &applied}, "x")
	m.Register(&fakePass{name: "post", applied: &applied}, "y")

	_, err := m.Run(emptyGraph(), testEnv())
	require.NoError(t, err)
	assert.Equal(t, []string{"pre", "x", "y", "x", "y", "x", "y", "post"}, applied)
}

func TestManager_ValidateModeCatchesBrokenPass(t *testing.T) {
	var applied []string
	m := NewManager()
	m.Register(&fakePass{
		name:    "saboteur",
		applied: &applied,
		apply: func(g *ir.Graph, env *Env) (Result, error) {
			// A node claiming a block that does not list it.
			g.NewNode(ir.KindOperation, g.Entry)
			return Result{Changed: true}, nil
		},
	})

	env := NewEnv(arch.DefaultTable(), arch.SysV(), 4, true)
	_, err := m.Run(emptyGraph(), env)
	var violation *diag.InvariantViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "single-assignment", violation.Invariant)
}
