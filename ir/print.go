package ir

import (
	"fmt"
	"strings"
)

// String renders the module as LLVM-flavored text. The output is meant for
// diagnostics and tests; it is stable for a given module but not meant to be
// parsed back.
func (m *Module) String() string {
	var w strings.Builder
	if m.Name != "" {
		fmt.Fprintf(&w, "; ModuleID = '%s'\n", m.Name)
	}
	for _, g := range m.Globals {
		w.WriteString(formatGlobal(g))
		w.WriteByte('\n')
	}
	if len(m.Globals) > 0 {
		w.WriteByte('\n')
	}
	for _, f := range m.Funcs {
		w.WriteString(f.Format())
		w.WriteByte('\n')
	}
	for _, n := range m.NamedMD {
		fmt.Fprintf(&w, "!%s = !{", n.Name)
		for i, node := range n.Operands {
			if i > 0 {
				w.WriteString(", ")
			}
			w.WriteString(node.String())
		}
		w.WriteString("}\n")
	}
	return w.String()
}

func formatGlobal(g *GlobalVariable) string {
	var w strings.Builder
	fmt.Fprintf(&w, "@%s = %s ", g.Name, g.Linkage)
	if g.TLMode != NotThreadLocal {
		w.WriteString("thread_local ")
	}
	if g.Const {
		w.WriteString("constant ")
	} else {
		w.WriteString("global ")
	}
	w.WriteString(g.ValueType.String())
	if g.Initializer != nil {
		w.WriteByte(' ')
		w.WriteString(formatConstBody(g.Initializer))
	}
	for _, a := range g.Attrs {
		w.WriteString(", ")
		w.WriteString(a)
	}
	return w.String()
}

// Format renders the function as text, numbering unnamed values the way
// llvm does (parameters first, then instruction results).
func (f *Function) Format() string {
	var w strings.Builder
	if f.IsDeclaration() {
		w.WriteString("declare ")
		w.WriteString(formatSigHeader(f))
		w.WriteByte('\n')
		return w.String()
	}

	names := numberValues(f)
	nameOf := func(v Value) string { return operandRef(v, names) }

	w.WriteString("define ")
	if f.Linkage != ExternalLinkage {
		w.WriteString(f.Linkage.String())
		w.WriteByte(' ')
	}
	w.WriteString(f.Sig.Ret.String())
	fmt.Fprintf(&w, " @%s(", f.Name)
	for i, p := range f.Params {
		if i > 0 {
			w.WriteString(", ")
		}
		fmt.Fprintf(&w, "%s %s", p.Typ, nameOf(p))
	}
	if f.Sig.Variadic {
		if len(f.Params) > 0 {
			w.WriteString(", ")
		}
		w.WriteString("...")
	}
	w.WriteString(") {\n")
	for bi, bb := range f.Blocks {
		if bi > 0 {
			w.WriteByte('\n')
		}
		fmt.Fprintf(&w, "bb%d:\n", bi)
		for _, inst := range bb.Instrs {
			w.WriteString("  ")
			formatInstr(&w, inst, nameOf)
			w.WriteByte('\n')
		}
	}
	w.WriteString("}\n")
	return w.String()
}

func formatSigHeader(f *Function) string {
	var w strings.Builder
	w.WriteString(f.Sig.Ret.String())
	fmt.Fprintf(&w, " @%s(", f.Name)
	for i, p := range f.Sig.Params {
		if i > 0 {
			w.WriteString(", ")
		}
		w.WriteString(p.String())
	}
	if f.Sig.Variadic {
		if len(f.Sig.Params) > 0 {
			w.WriteString(", ")
		}
		w.WriteString("...")
	}
	w.WriteString(")")
	return w.String()
}

// FunctionFormatter renders single instructions of one function with a
// shared value numbering, for dumps that interleave instructions with other
// output.
type FunctionFormatter struct {
	names map[Value]string
}

// NewFunctionFormatter returns a formatter for the instructions of f.
func NewFunctionFormatter(f *Function) *FunctionFormatter {
	return &FunctionFormatter{names: numberValues(f)}
}

// Instruction renders inst as it would appear in the function listing.
func (ff *FunctionFormatter) Instruction(inst *Instruction) string {
	var w strings.Builder
	formatInstr(&w, inst, func(v Value) string { return operandRef(v, ff.names) })
	return w.String()
}

// numberValues assigns printed names to the parameters and value-producing
// instructions of f.
func numberValues(f *Function) map[Value]string {
	names := make(map[Value]string)
	n := 0
	for _, p := range f.Params {
		if p.Name != "" {
			names[p] = "%" + p.Name
		} else {
			names[p] = fmt.Sprintf("%%%d", n)
			n++
		}
	}
	for _, bb := range f.Blocks {
		for _, inst := range bb.Instrs {
			if inst.Type().Equal(Void) {
				continue
			}
			names[inst] = fmt.Sprintf("%%%d", n)
			n++
		}
	}
	return names
}

// operandRef renders a bare (untyped) reference to v.
func operandRef(v Value, names map[Value]string) string {
	if s, ok := names[v]; ok {
		return s
	}
	return formatOperand(v)
}

// formatOperand renders a bare reference to v without a numbering context.
func formatOperand(v Value) string {
	switch vv := v.(type) {
	case *GlobalVariable:
		return "@" + vv.Name
	case *Function:
		return "@" + vv.Name
	case *Param:
		return vv.String()
	case *Instruction:
		return "%?"
	case *InlineAsm:
		return vv.String()
	case *IntConst:
		return fmt.Sprintf("%d", vv.V)
	case *FloatConst:
		return fmt.Sprintf("%g", vv.V)
	case *ZeroConst:
		return formatConstBody(vv)
	case *UndefConst:
		return "undef"
	case Constant:
		return formatConstBody(vv)
	default:
		return fmt.Sprintf("<%v>", v)
	}
}

// formatConstBody renders a constant without its leading type.
func formatConstBody(c Constant) string {
	switch cc := c.(type) {
	case *IntConst:
		return fmt.Sprintf("%d", cc.V)
	case *FloatConst:
		return fmt.Sprintf("%g", cc.V)
	case *ZeroConst:
		switch cc.Typ.(type) {
		case *PointerType:
			return "null"
		case *IntType:
			return "0"
		case *FloatType:
			return "0.0"
		default:
			return "zeroinitializer"
		}
	case *UndefConst:
		return "undef"
	case *GlobalVariable:
		return "@" + cc.Name
	case *Function:
		return "@" + cc.Name
	case *StructConst:
		parts := make([]string, len(cc.Fields))
		for i, f := range cc.Fields {
			parts[i] = f.Type().String() + " " + formatConstBody(f)
		}
		return "{ " + strings.Join(parts, ", ") + " }"
	case *ArrayConst:
		if cc.CharArray {
			var w strings.Builder
			w.WriteString(`c"`)
			for _, e := range cc.Elems {
				b := byte(e.(*IntConst).V)
				if b >= 0x20 && b < 0x7f && b != '"' && b != '\\' {
					w.WriteByte(b)
				} else {
					fmt.Fprintf(&w, "\\%02X", b)
				}
			}
			w.WriteByte('"')
			return w.String()
		}
		parts := make([]string, len(cc.Elems))
		for i, e := range cc.Elems {
			parts[i] = e.Type().String() + " " + formatConstBody(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *ConstExprInst:
		parts := make([]string, 0, len(cc.Ops)+1)
		if cc.Op == OpGetElementPtr {
			parts = append(parts, cc.SrcElem.String())
		}
		for _, op := range cc.Ops {
			parts = append(parts, op.Type().String()+" "+formatConstBody(op))
		}
		return fmt.Sprintf("%s (%s)", cc.Op, strings.Join(parts, ", "))
	default:
		return fmt.Sprintf("<%v>", c)
	}
}

// typedOperand renders "type ref" for an operand.
func typedOperand(v Value, nameOf func(Value) string) string {
	return v.Type().String() + " " + nameOf(v)
}

// formatInstr renders one instruction using nameOf to resolve value
// references.
func formatInstr(w *strings.Builder, i *Instruction, nameOf func(Value) string) {
	if !i.Type().Equal(Void) {
		w.WriteString(nameOf(i))
		w.WriteString(" = ")
	}
	switch i.op {
	case OpAlloca:
		fmt.Fprintf(w, "alloca %s", i.allocType)
	case OpLoad:
		fmt.Fprintf(w, "load %s, %s", i.typ, typedOperand(i.ops[0], nameOf))
	case OpStore:
		fmt.Fprintf(w, "store %s, %s", typedOperand(i.ops[0], nameOf), typedOperand(i.ops[1], nameOf))
	case OpGetElementPtr:
		fmt.Fprintf(w, "getelementptr %s", i.srcElem)
		for _, op := range i.ops {
			fmt.Fprintf(w, ", %s", typedOperand(op, nameOf))
		}
	case OpICmp:
		fmt.Fprintf(w, "icmp %s %s, %s", i.pred, typedOperand(i.ops[0], nameOf), nameOf(i.ops[1]))
	case OpTrunc, OpZExt, OpSExt, OpPtrToInt, OpIntToPtr, OpBitCast:
		fmt.Fprintf(w, "%s %s to %s", i.op, typedOperand(i.ops[0], nameOf), i.typ)
	case OpSelect:
		fmt.Fprintf(w, "select %s, %s, %s", typedOperand(i.ops[0], nameOf),
			typedOperand(i.ops[1], nameOf), typedOperand(i.ops[2], nameOf))
	case OpPhi:
		fmt.Fprintf(w, "phi %s ", i.typ)
		for n := range i.ops {
			if n > 0 {
				w.WriteString(", ")
			}
			fmt.Fprintf(w, "[ %s, %%%s ]", nameOf(i.ops[n]), i.blocks[n])
		}
	case OpCall:
		w.WriteString("call ")
		if i.sig.Variadic {
			w.WriteString(i.sig.String())
		} else {
			w.WriteString(i.sig.Ret.String())
		}
		w.WriteByte(' ')
		w.WriteString(nameOf(i.Callee()))
		w.WriteByte('(')
		for n, arg := range i.Args() {
			if n > 0 {
				w.WriteString(", ")
			}
			w.WriteString(typedOperand(arg, nameOf))
		}
		w.WriteByte(')')
	case OpRet:
		if len(i.ops) == 0 {
			w.WriteString("ret void")
		} else {
			fmt.Fprintf(w, "ret %s", typedOperand(i.ops[0], nameOf))
		}
	case OpBr:
		fmt.Fprintf(w, "br label %%%s", i.blocks[0])
	case OpCondBr:
		fmt.Fprintf(w, "br %s, label %%%s, label %%%s",
			typedOperand(i.ops[0], nameOf), i.blocks[0], i.blocks[1])
	case OpSwitch:
		fmt.Fprintf(w, "switch %s, label %%%s [", typedOperand(i.ops[0], nameOf), i.blocks[0])
		for n := 1; n < len(i.ops); n++ {
			fmt.Fprintf(w, " %s, label %%%s", typedOperand(i.ops[n], nameOf), i.blocks[n])
		}
		w.WriteString(" ]")
	case OpIndirectBr:
		fmt.Fprintf(w, "indirectbr %s, [", typedOperand(i.ops[0], nameOf))
		for n, bb := range i.blocks {
			if n > 0 {
				w.WriteString(",")
			}
			fmt.Fprintf(w, " label %%%s", bb)
		}
		w.WriteString(" ]")
	case OpUnreachable:
		w.WriteString("unreachable")
	case OpExtractValue:
		fmt.Fprintf(w, "extractvalue %s", typedOperand(i.ops[0], nameOf))
		for _, ix := range i.indices {
			fmt.Fprintf(w, ", %d", ix)
		}
	case OpInsertValue:
		fmt.Fprintf(w, "insertvalue %s, %s", typedOperand(i.ops[0], nameOf),
			typedOperand(i.ops[1], nameOf))
		for _, ix := range i.indices {
			fmt.Fprintf(w, ", %d", ix)
		}
	default:
		// Binary ops share one format.
		fmt.Fprintf(w, "%s %s, %s", i.op, typedOperand(i.ops[0], nameOf), nameOf(i.ops[1]))
	}
	for _, md := range i.mds {
		fmt.Fprintf(w, ", !%s %s", md.Kind, md.Node)
	}
	if i.dbg != nil {
		fmt.Fprintf(w, ", !dbg !{%s}", i.dbg)
	}
}
