package arch

import "relift/internal/insn"

// Convention is an externally supplied calling-convention description:
// ordered argument slots, the return slot, and the callee-saved set.
// Immutable; shared by reference across sessions.
type Convention struct {
	Name        string
	Args        []string
	Ret         string
	CalleeSaved []string

	calleeSaved map[string]bool
}

// ArgLocs returns the ordered argument slots as storage locations.
func (c *Convention) ArgLocs() []insn.Loc {
	locs := make([]insn.Loc, len(c.Args))
	for i, r := range c.Args {
		locs[i] = insn.Reg(r)
	}
	return locs
}

// RetLoc returns the return slot as a storage location.
func (c *Convention) RetLoc() insn.Loc { return insn.Reg(c.Ret) }

// IsCalleeSaved reports whether the register survives a call.
func (c *Convention) IsCalleeSaved(reg string) bool {
	if c.calleeSaved == nil {
		c.calleeSaved = make(map[string]bool, len(c.CalleeSaved))
		for _, r := range c.CalleeSaved {
			c.calleeSaved[r] = true
		}
	}
	return c.calleeSaved[reg]
}

// SysV returns the built-in x86-64 System V calling convention.
func SysV() *Convention {
	return &Convention{
		Name:        "sysv",
		Args:        []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"},
		Ret:         "rax",
		CalleeSaved: []string{"rbx", "rsp", "rbp", "r12", "r13", "r14", "r15"},
	}
}

// Registers returns the default register-width table: the lifter's x86-64
// register set, all 64 bits wide.
func Registers() map[string]uint8 {
	regs := map[string]uint8{}
	for _, r := range []string{
		"rax", "rbx", "rcx", "rdx", "rsp", "rbp", "rsi", "rdi", "rip",
		"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
	} {
		regs[r] = 64
	}
	return regs
}
