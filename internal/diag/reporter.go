package diag

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"relift/internal/ir"
)

// Reporter formats diagnostics for terminal output.
type Reporter struct {
	// Colorize enables ANSI colors; off by default so formatted output is
	// stable in logs and tests.
	Colorize bool
}

// NewReporter creates a reporter with colors enabled.
func NewReporter() *Reporter {
	return &Reporter{Colorize: true}
}

// Format renders one diagnostic.
func (r *Reporter) Format(d Diagnostic) string {
	var result strings.Builder

	label := fmt.Sprintf("warning[%s]", d.Code)
	if r.Colorize {
		label = color.New(color.FgYellow, color.Bold).Sprint(label)
	}
	result.WriteString(fmt.Sprintf("%s: %s\n", label, d.Message))

	var where []string
	if d.Node != ir.InvalidNode {
		where = append(where, fmt.Sprintf("node n%d", d.Node))
	}
	if d.Block != ir.InvalidBlock {
		where = append(where, fmt.Sprintf("block b%d", d.Block))
	}
	if d.Addr != 0 {
		where = append(where, fmt.Sprintf("address 0x%x", d.Addr))
	}
	if len(where) > 0 {
		arrow := "-->"
		if r.Colorize {
			arrow = color.New(color.Faint).Sprint(arrow)
		}
		result.WriteString(fmt.Sprintf("  %s %s\n", arrow, strings.Join(where, ", ")))
	}

	note := Describe(d.Code)
	if note != "" {
		prefix := "note:"
		if r.Colorize {
			prefix = color.New(color.FgBlue).Sprint(prefix)
		}
		result.WriteString(fmt.Sprintf("  %s %s\n", prefix, note))
	}

	return result.String()
}

// FormatAll renders a diagnostic list, one entry per diagnostic.
func (r *Reporter) FormatAll(diags []Diagnostic) string {
	var result strings.Builder
	for _, d := range diags {
		result.WriteString(r.Format(d))
	}
	return result.String()
}
