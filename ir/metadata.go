package ir

import (
	"fmt"
	"strings"
)

// MDNode is an opaque metadata node. The core never interprets metadata; it
// only attaches, copies and prints it.
type MDNode struct {
	Distinct bool
	Fields   []string
}

// String implements fmt.Stringer.
func (n *MDNode) String() string {
	var w strings.Builder
	if n.Distinct {
		w.WriteString("distinct ")
	}
	w.WriteString("!{")
	for i, f := range n.Fields {
		if i > 0 {
			w.WriteString(", ")
		}
		w.WriteString(f)
	}
	w.WriteString("}")
	return w.String()
}

// NamedMetadata is a module-level named metadata list (e.g. !llvm.dbg.cu).
type NamedMetadata struct {
	Name     string
	Operands []*MDNode
}

// AddOperand appends a node to the named metadata list.
func (n *NamedMetadata) AddOperand(node *MDNode) {
	n.Operands = append(n.Operands, node)
}

// DebugLoc is a source location attached to an instruction.
type DebugLoc struct {
	Line  uint32
	Col   uint32
	Scope string
}

// String implements fmt.Stringer.
func (l *DebugLoc) String() string {
	if l.Scope != "" {
		return fmt.Sprintf("%s:%d:%d", l.Scope, l.Line, l.Col)
	}
	return fmt.Sprintf("%d:%d", l.Line, l.Col)
}
