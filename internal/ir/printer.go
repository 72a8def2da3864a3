package ir

import (
	"fmt"
	"strings"
)

// Printer provides pretty-printing for the IR graph. Output is
// deterministic: blocks in id order, nodes in block order, position-free
// nodes (constants, undefined sentinels) in a prelude section.
type Printer struct {
	indent int
	output strings.Builder
}

// NewPrinter creates a new IR printer.
func NewPrinter() *Printer {
	return &Printer{indent: 0}
}

// Print returns the string representation of a graph.
func Print(g *Graph) string {
	p := NewPrinter()
	p.printGraph(g)
	return p.output.String()
}

func (p *Printer) writeIndent() {
	for i := 0; i < p.indent; i++ {
		p.output.WriteString("  ")
	}
}

func (p *Printer) writeLine(format string, args ...interface{}) {
	p.writeIndent()
	p.output.WriteString(fmt.Sprintf(format, args...))
	p.output.WriteString("\n")
}

func (p *Printer) printGraph(g *Graph) {
	p.writeLine("graph: %d blocks, entry b%d", len(g.Blocks()), g.Entry)

	// Position-free nodes first, in id order.
	var free []NodeID
	g.ForEachLive(func(id NodeID, n *Node) {
		if n.Block == InvalidBlock {
			free = append(free, id)
		}
	})
	if len(free) > 0 {
		p.writeLine("values:")
		p.indent++
		for _, id := range free {
			p.writeLine("%s", p.formatNode(g, id))
		}
		p.indent--
	}

	for _, b := range g.Blocks() {
		p.writeLine("")
		p.printBlock(g, b)
	}
}

func (p *Printer) printBlock(g *Graph, b *Block) {
	head := fmt.Sprintf("b%d @ 0x%x:", b.ID, b.Start)
	if b.Synthetic {
		head += " (synthetic)"
	}
	if b.ID == g.Entry {
		head += " (entry)"
	}
	p.writeLine("%s", head)
	p.indent++
	p.writeLine("preds: %s", formatEdges(b.Preds))
	p.writeLine("succs: %s", formatEdges(b.Succs))
	for _, id := range b.Nodes {
		p.writeLine("%s", p.formatNode(g, id))
	}
	p.indent--
}

func formatEdges(edges []Edge) string {
	if len(edges) == 0 {
		return "-"
	}
	parts := make([]string, len(edges))
	for i, e := range edges {
		parts[i] = fmt.Sprintf("b%d[%s]", e.Block, e.Kind)
	}
	return strings.Join(parts, " ")
}

func (p *Printer) formatNode(g *Graph, id NodeID) string {
	n := g.Node(id)
	var body string
	switch n.Kind {
	case KindConstant:
		if n.Unknown {
			body = fmt.Sprintf("const ?:%d", n.Width)
		} else {
			body = fmt.Sprintf("const 0x%x:%d", n.Value, n.Width)
		}
	case KindUndefined:
		body = "undef"
	case KindPhi:
		parts := make([]string, len(n.Operands))
		b := g.Block(n.Block)
		for i, op := range n.Operands {
			src := "?"
			if i < len(b.Preds) {
				src = fmt.Sprintf("b%d", b.Preds[i].Block)
			}
			parts[i] = fmt.Sprintf("[%s] %s", src, formatOperand(n, i, op))
		}
		body = "phi " + strings.Join(parts, ", ")
	case KindOperation:
		body = n.Opcode
		if len(n.Operands) > 0 {
			parts := make([]string, len(n.Operands))
			for i, op := range n.Operands {
				parts[i] = formatOperand(n, i, op)
			}
			body += " " + strings.Join(parts, ", ")
		}
	case KindRemoved:
		body = "removed"
	}
	line := fmt.Sprintf("n%d = %s", id, body)
	if !n.Def.IsZero() && n.Kind != KindUndefined {
		line += " -> " + n.Def.String()
	}
	return line
}

func formatOperand(n *Node, i int, op NodeID) string {
	if op == InvalidNode {
		if loc, ok := n.ReadsLoc(i); ok {
			return "%" + loc.String()
		}
		return "%?"
	}
	return fmt.Sprintf("n%d", op)
}
