package passes

import (
	"fmt"

	"github.com/tliron/commonlog"

	"relift/internal/arch"
	"relift/internal/cfg"
	"relift/internal/diag"
	"relift/internal/ir"
)

var log = commonlog.GetLogger("relift.passes")

// Pass is one transformation or analysis over the graph. Passes mutate the
// graph in place and report what they did; they never hold state across
// invocations.
type Pass interface {
	Name() string
	Description() string
	Apply(g *ir.Graph, env *Env) (Result, error)
}

// Result reports the outcome of one pass invocation. Structural means the
// block or edge structure changed, which invalidates cached dominance.
type Result struct {
	Changed    bool
	Structural bool
	Diags      []diag.Diagnostic
}

// Env carries the immutable configuration and shared analysis caches a pass
// may consult. The dominator tree is computed lazily and reused until the
// graph's structure version moves past it.
type Env struct {
	Table         *arch.Table
	Conv          *arch.Convention
	MaxIterations int
	Validate      bool

	dom *cfg.DomTree
}

// NewEnv builds a pass environment around a semantics table and calling
// convention.
func NewEnv(table *arch.Table, conv *arch.Convention, maxIterations int, validate bool) *Env {
	return &Env{Table: table, Conv: conv, MaxIterations: maxIterations, Validate: validate}
}

// Dominators returns a dominator tree for g, recomputing only when the
// cached tree is stale.
func (e *Env) Dominators(g *ir.Graph) *cfg.DomTree {
	if e.dom == nil || !e.dom.Fresh(g) {
		e.dom = cfg.Dominators(g)
	}
	return e.dom
}

// DefaultManager wires the standard pipeline: verification first, the
// convergent propagate/simplify stretch, then call recovery and a final
// dead-code sweep over whatever the rewrites orphaned.
func DefaultManager() *Manager {
	m := NewManager()
	m.Register(&Verifier{})
	m.RegisterConvergent(&Propagate{}, "verify")
	m.RegisterConvergent(&Simplify{}, "propagate")
	m.Register(&CallRecovery{}, "simplify")
	m.Register(&DeadCode{}, "calls")
	return m
}

type registration struct {
	pass       Pass
	deps       []string
	convergent bool
}

// Manager owns a closed set of registered passes, orders them by their
// declared dependencies, and runs convergent stretches to a fixed point
// under an iteration ceiling.
type Manager struct {
	regs     map[string]*registration
	order    []string // registration order, used as the topological tie-break
	schedule []string
}

// NewManager returns an empty pass manager.
func NewManager() *Manager {
	return &Manager{regs: make(map[string]*registration)}
}

// Register adds a run-once pass that must execute after the named
// dependencies. Re-registering a name replaces the previous entry.
func (m *Manager) Register(p Pass, deps ...string) {
	if _, ok := m.regs[p.Name()]; !ok {
		m.order = append(m.order, p.Name())
	}
	m.regs[p.Name()] = &registration{pass: p, deps: deps}
	m.schedule = nil
}

// RegisterConvergent adds a pass that participates in fixed-point
// iteration: contiguous convergent passes in the schedule are re-run as a
// group until none of them reports a change.
func (m *Manager) RegisterConvergent(p Pass, deps ...string) {
	m.Register(p, deps...)
	m.regs[p.Name()].convergent = true
}

// Schedule resolves the dependency order. A dependency cycle is a
// configuration error and fails with CyclicDependencyError.
func (m *Manager) Schedule() error {
	indegree := make(map[string]int, len(m.regs))
	dependents := make(map[string][]string)
	for _, name := range m.order {
		for _, dep := range m.regs[name].deps {
			if _, ok := m.regs[dep]; !ok {
				return fmt.Errorf("pass %q depends on unregistered pass %q", name, dep)
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for _, name := range m.order {
		if indegree[name] == 0 {
			ready = append(ready, name)
		}
	}

	schedule := make([]string, 0, len(m.regs))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		schedule = append(schedule, name)
		for _, next := range dependents[name] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if len(schedule) != len(m.regs) {
		var stuck []string
		for _, name := range m.order {
			if indegree[name] > 0 {
				stuck = append(stuck, name)
			}
		}
		return &diag.CyclicDependencyError{Passes: stuck}
	}
	m.schedule = schedule
	return nil
}

// Run executes the scheduled passes over g. Convergent stretches loop until
// stable or until env.MaxIterations sweeps, at which point the graph is
// left in its current consistent state and a NonConvergence diagnostic is
// reported. In validation mode the verifier runs after every pass that
// mutated the graph.
func (m *Manager) Run(g *ir.Graph, env *Env) ([]diag.Diagnostic, error) {
	if m.schedule == nil {
		if err := m.Schedule(); err != nil {
			return nil, err
		}
	}

	var diags []diag.Diagnostic
	runOne := func(name string) (Result, error) {
		reg := m.regs[name]
		res, err := reg.pass.Apply(g, env)
		if err != nil {
			return res, err
		}
		log.Debugf("pass %s: changed=%v structural=%v diags=%d",
			name, res.Changed, res.Structural, len(res.Diags))
		diags = append(diags, res.Diags...)
		if res.Changed && env.Validate {
			if err := Verify(g, env.Dominators(g)); err != nil {
				return res, err
			}
		}
		return res, nil
	}

	i := 0
	for i < len(m.schedule) {
		if !m.regs[m.schedule[i]].convergent {
			if _, err := runOne(m.schedule[i]); err != nil {
				return diags, err
			}
			i++
			continue
		}

		j := i
		for j < len(m.schedule) && m.regs[m.schedule[j]].convergent {
			j++
		}
		group := m.schedule[i:j]

		for sweep := 1; ; sweep++ {
			changed := false
			for _, name := range group {
				res, err := runOne(name)
				if err != nil {
					return diags, err
				}
				changed = changed || res.Changed
			}
			if !changed {
				break
			}
			if sweep >= env.MaxIterations {
				diags = append(diags, diag.New(diag.NonConvergence,
					"passes %v still changing after %d sweeps", group, sweep))
				break
			}
		}
		i = j
	}
	return diags, nil
}
