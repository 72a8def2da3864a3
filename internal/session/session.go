package session

import (
	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"relift/internal/arch"
	"relift/internal/cfg"
	"relift/internal/diag"
	"relift/internal/insn"
	"relift/internal/ir"
	"relift/internal/listing"
	"relift/internal/passes"
	"relift/internal/ssa"
)

// Config holds the immutable inputs shared by sessions: the opcode
// semantics table, the calling convention, and pass-loop limits. A single
// Config may serve many concurrent sessions; each session owns its graph
// exclusively.
type Config struct {
	Table         *arch.Table
	Conv          *arch.Convention
	MaxIterations int
	Validate      bool
}

// DefaultConfig returns the built-in x86-64 configuration.
func DefaultConfig() Config {
	return Config{
		Table:         arch.DefaultTable(),
		Conv:          arch.SysV(),
		MaxIterations: 16,
	}
}

// Result is the output of one decompilation: the optimized, de-SSA graph
// plus every non-fatal diagnostic gathered along the way.
type Result struct {
	Graph *ir.Graph
	Diags []diag.Diagnostic
}

// Session drives one function's recovery end to end: CFG assembly, SSA
// construction, the optimization pipeline, and de-SSA finalization.
type Session struct {
	ID     uuid.UUID
	config Config
	log    commonlog.Logger
}

// New creates a session over the given configuration.
func New(config Config) *Session {
	if config.Table == nil {
		config.Table = arch.DefaultTable()
	}
	if config.Conv == nil {
		config.Conv = arch.SysV()
	}
	if config.MaxIterations <= 0 {
		config.MaxIterations = 16
	}
	return &Session{
		ID:     uuid.New(),
		config: config,
		log:    commonlog.GetLogger("relift.session"),
	}
}

// Decompile recovers an optimized graph from a lifted instruction stream
// and its observed control transfers. Fatal errors (malformed input, pass
// misconfiguration, invariant violations in validation mode) abort;
// everything else degrades into diagnostics on the result.
func (s *Session) Decompile(stream *insn.Stream, transfers []insn.Transfer) (*Result, error) {
	s.log.Infof("session %s: %d instructions, %d transfers",
		s.ID, stream.Len(), len(transfers))

	g, err := cfg.Build(stream, transfers, s.config.Conv)
	if err != nil {
		return nil, err
	}
	dom := cfg.Dominators(g)

	diags := ssa.Construct(g, dom)

	env := passes.NewEnv(s.config.Table, s.config.Conv, s.config.MaxIterations, s.config.Validate)
	manager := passes.DefaultManager()
	passDiags, err := manager.Run(g, env)
	diags = append(diags, passDiags...)
	if err != nil {
		return &Result{Graph: g, Diags: diags}, err
	}

	ssa.Eliminate(g)

	s.log.Infof("session %s: done, %d blocks, %d diagnostics",
		s.ID, len(g.Blocks()), len(diags))
	return &Result{Graph: g, Diags: diags}, nil
}

// DecompileListing parses a textual lifted listing and decompiles it. The
// register widths come from the configured convention's architecture.
func (s *Session) DecompileListing(name, src string) (*Result, error) {
	stream, transfers, err := listing.Parse(name, src, arch.Registers())
	if err != nil {
		return nil, err
	}
	return s.Decompile(stream, transfers)
}
