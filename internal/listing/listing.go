package listing

// Package listing parses the textual semantics-listing format: one line
// per primitive operation, addressed and ordered, followed by the control
// transfers. It is the front door for fixtures and tests, standing in for
// the external instruction-semantics expander:
//
//	0x1000: rax = 5
//	0x1004: rbx = rax + rcx
//	0x1008: t0 = rax == rbx
//	0x1008: branch t0
//	0x100c: [gvar_x] = rax
//	0x1010: rax = [gvar_x]
//
//	0x1008 -> 0x1010 true
//	0x1008 -> 0x100c false
//	0x1010 -> ? indirect

import (
	"fmt"
	"strconv"

	"github.com/alecthomas/participle/v2"

	"relift/internal/insn"
)

type fileAST struct {
	Lines []*lineAST `parser:"@@*"`
}

type lineAST struct {
	Xfer *xferAST `parser:"( @@"`
	Stmt *stmtAST `parser:"| @@ )"`
}

type stmtAST struct {
	Addr   string     `parser:"@Addr ':'"`
	Store  *storeAST  `parser:"( @@"`
	Branch *branchAST `parser:"| @@"`
	Def    *defAST    `parser:"| @@ )"`
}

type storeAST struct {
	Slot string  `parser:"'[' @Ident ']' '='"`
	Src  *argAST `parser:"@@"`
}

type branchAST struct {
	Cond *argAST `parser:"'branch' @@"`
}

type defAST struct {
	Dst  string  `parser:"@Ident '='"`
	Load *string `parser:"( '[' @Ident ']'"`
	Not  *argAST `parser:"| '!' @@"`
	Bin  *binAST `parser:"| @@ )"`
}

type binAST struct {
	Lhs *argAST `parser:"@@"`
	Op  *string `parser:"( @Op"`
	Rhs *argAST `parser:"  @@ )?"`
}

type argAST struct {
	Imm *string `parser:"  @Int"`
	Hex *string `parser:"| @Addr"`
	Loc *string `parser:"| @Ident"`
}

type xferAST struct {
	Src    string  `parser:"@Addr Arrow"`
	Target *string `parser:"( @Addr"`
	Unk    bool    `parser:"| @'?' )"`
	Kind   string  `parser:"@Ident"`
}

var listingParser = participle.MustBuild[fileAST](
	participle.Lexer(listingLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.UseLookahead(3),
)

var compareOps = map[string]bool{
	"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
}

var transferKinds = map[string]insn.TransferKind{
	"fallthrough": insn.Fallthrough,
	"jump":        insn.Jump,
	"true":        insn.BranchTrue,
	"false":       insn.BranchFalse,
	"call":        insn.Call,
	"return":      insn.Return,
	"indirect":    insn.Indirect,
}

// Parse converts listing source into the ingest contract: the operation
// stream and the control-transfer table. regs maps register names to their
// widths; identifiers outside the map are lifter temporaries. Unbracketed
// identifiers are registers or temporaries; bracketed ones are
// disambiguated memory slots.
func Parse(name, src string, regs map[string]uint8) (*insn.Stream, []insn.Transfer, error) {
	file, err := listingParser.ParseString(name, src)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing listing: %w", err)
	}

	conv := &converter{regs: regs, stream: insn.NewStream()}
	for _, line := range file.Lines {
		switch {
		case line.Stmt != nil:
			if err := conv.statement(line.Stmt); err != nil {
				return nil, nil, err
			}
		case line.Xfer != nil:
			if err := conv.transfer(line.Xfer); err != nil {
				return nil, nil, err
			}
		}
	}
	// Transfer lines sit below the statements, so a transfer-only address
	// (a plain jump between two statements) registers out of order.
	conv.stream.Sort()
	return conv.stream, conv.transfers, nil
}

type converter struct {
	regs      map[string]uint8
	stream    *insn.Stream
	transfers []insn.Transfer
}

func (c *converter) loc(name string) (insn.Loc, uint8) {
	if w, ok := c.regs[name]; ok {
		return insn.Reg(name), w
	}
	return insn.Tmp(name), 64
}

func (c *converter) arg(a *argAST) (insn.Operand, error) {
	switch {
	case a.Imm != nil:
		v, err := strconv.ParseUint(*a.Imm, 10, 64)
		if err != nil {
			return insn.Operand{}, fmt.Errorf("immediate %q: %w", *a.Imm, err)
		}
		return insn.Imm(v, 64), nil
	case a.Hex != nil:
		v, err := strconv.ParseUint((*a.Hex)[2:], 16, 64)
		if err != nil {
			return insn.Operand{}, fmt.Errorf("immediate %q: %w", *a.Hex, err)
		}
		return insn.Imm(v, 64), nil
	default:
		loc, w := c.loc(*a.Loc)
		return insn.LocOperand(loc, w), nil
	}
}

func parseAddr(s string) (uint64, error) {
	return strconv.ParseUint(s[2:], 16, 64)
}

func (c *converter) statement(s *stmtAST) error {
	addr, err := parseAddr(s.Addr)
	if err != nil {
		return fmt.Errorf("address %q: %w", s.Addr, err)
	}

	switch {
	case s.Store != nil:
		src, err := c.arg(s.Store.Src)
		if err != nil {
			return err
		}
		c.stream.Append(addr, insn.Operation{
			Kind:   insn.Store,
			Opcode: "store",
			Dest:   insn.Mem(s.Store.Slot),
			Args:   []insn.Operand{src},
			Width:  src.Width,
		})

	case s.Branch != nil:
		cond, err := c.arg(s.Branch.Cond)
		if err != nil {
			return err
		}
		c.stream.Append(addr, insn.Operation{
			Kind:   insn.Branch,
			Opcode: "cbranch",
			Args:   []insn.Operand{cond},
			Width:  cond.Width,
		})

	case s.Def != nil:
		return c.definition(addr, s.Def)
	}
	return nil
}

func (c *converter) definition(addr uint64, d *defAST) error {
	dst, width := c.loc(d.Dst)

	switch {
	case d.Load != nil:
		c.stream.Append(addr, insn.Operation{
			Kind:   insn.Load,
			Opcode: "load",
			Dest:   dst,
			Args:   []insn.Operand{insn.LocOperand(insn.Mem(*d.Load), width)},
			Width:  width,
		})

	case d.Not != nil:
		x, err := c.arg(d.Not)
		if err != nil {
			return err
		}
		c.stream.Append(addr, insn.Operation{
			Kind:   insn.Assign,
			Opcode: "!",
			Dest:   dst,
			Args:   []insn.Operand{x},
			Width:  width,
		})

	case d.Bin != nil:
		lhs, err := c.arg(d.Bin.Lhs)
		if err != nil {
			return err
		}
		if d.Bin.Op == nil {
			c.stream.Append(addr, insn.Operation{
				Kind:   insn.Assign,
				Opcode: "copy",
				Dest:   dst,
				Args:   []insn.Operand{lhs},
				Width:  width,
			})
			return nil
		}
		rhs, err := c.arg(d.Bin.Rhs)
		if err != nil {
			return err
		}
		kind := insn.Assign
		if compareOps[*d.Bin.Op] {
			kind = insn.Compare
		}
		c.stream.Append(addr, insn.Operation{
			Kind:   kind,
			Opcode: *d.Bin.Op,
			Dest:   dst,
			Args:   []insn.Operand{lhs, rhs},
			Width:  width,
		})
	}
	return nil
}

func (c *converter) transfer(x *xferAST) error {
	src, err := parseAddr(x.Src)
	if err != nil {
		return fmt.Errorf("transfer source %q: %w", x.Src, err)
	}
	kind, ok := transferKinds[x.Kind]
	if !ok {
		return fmt.Errorf("unknown transfer kind %q", x.Kind)
	}
	t := insn.Transfer{Source: src, Kind: kind}
	if x.Target != nil {
		t.Target, err = parseAddr(*x.Target)
		if err != nil {
			return fmt.Errorf("transfer target %q: %w", *x.Target, err)
		}
		t.Resolved = true
	}
	// Transfer-only instructions (plain jumps, calls) still occupy a slot
	// in the stream.
	c.stream.Touch(src)
	c.transfers = append(c.transfers, t)
	return nil
}
