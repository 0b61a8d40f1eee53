package ir

import "fmt"

// Clone returns a deep copy of the module. Instructions, blocks, functions
// and globals are freshly allocated and cross-references are rewritten to
// point into the copy; metadata nodes are shared, as they are never mutated.
//
// Workers compiling traces in parallel each take a clone of the AOT module
// so that no two compilations read types and values that another is free to
// rewrite.
func (m *Module) Clone() *Module {
	c := &cloner{
		vmap: make(map[Value]Value),
		bmap: make(map[*BasicBlock]*BasicBlock),
	}
	out := NewModule(m.Name)

	// Shells first, so that initializers and call operands can refer to
	// globals and functions in any order.
	for _, g := range m.Globals {
		ng := &GlobalVariable{
			Name:      g.Name,
			ValueType: g.ValueType,
			Const:     g.Const,
			Linkage:   g.Linkage,
			TLMode:    g.TLMode,
			AddrSpace: g.AddrSpace,
			Attrs:     append([]string(nil), g.Attrs...),
		}
		out.AddGlobal(ng)
		c.vmap[g] = ng
	}
	for _, f := range m.Funcs {
		nf := NewFunction(f.Name, f.Sig, f.Linkage)
		nf.CallConv = f.CallConv
		nf.CompileUnit = f.CompileUnit
		out.AddFunction(nf)
		c.vmap[f] = nf
		for i, p := range f.Params {
			nf.Params[i].Name = p.Name
			c.vmap[p] = nf.Params[i]
		}
	}

	for fi, f := range m.Funcs {
		c.cloneBody(f, out.Funcs[fi])
	}
	for gi, g := range m.Globals {
		if g.Initializer != nil {
			out.Globals[gi].Initializer = c.mapConstant(g.Initializer)
		}
	}
	for _, n := range m.NamedMD {
		out.NamedMD = append(out.NamedMD, &NamedMetadata{
			Name:     n.Name,
			Operands: append([]*MDNode(nil), n.Operands...),
		})
	}
	return out
}

type cloner struct {
	vmap map[Value]Value
	bmap map[*BasicBlock]*BasicBlock
}

func (c *cloner) cloneBody(f, nf *Function) {
	// Two passes: clone every instruction first so that operand rewriting
	// can resolve references to instructions in later blocks (phis).
	for _, bb := range f.Blocks {
		nbb := nf.NewBlock()
		c.bmap[bb] = nbb
	}
	for _, bb := range f.Blocks {
		nbb := c.bmap[bb]
		for _, inst := range bb.Instrs {
			ni := inst.Clone()
			nbb.Append(ni)
			c.vmap[inst] = ni
		}
	}
	for _, bb := range f.Blocks {
		for ii := range bb.Instrs {
			ni := c.bmap[bb].Instrs[ii]
			for oi, op := range ni.Operands() {
				ni.SetOperand(oi, c.mapValue(op))
			}
			for bi, blk := range ni.blocks {
				nb, ok := c.bmap[blk]
				if !ok {
					panic("BUG: branch target outside the cloned function")
				}
				ni.blocks[bi] = nb
			}
		}
	}
}

func (c *cloner) mapValue(v Value) Value {
	if nv, ok := c.vmap[v]; ok {
		return nv
	}
	if cst, ok := v.(Constant); ok {
		return c.mapConstant(cst)
	}
	if asm, ok := v.(*InlineAsm); ok {
		return asm
	}
	panic(fmt.Sprintf("BUG: unmapped value while cloning module: %v", v))
}

func (c *cloner) mapConstant(cst Constant) Constant {
	if nv, ok := c.vmap[cst]; ok {
		return nv.(Constant)
	}
	switch cc := cst.(type) {
	case *ConstExprInst:
		ops := make([]Constant, len(cc.Ops))
		for i, op := range cc.Ops {
			ops[i] = c.mapConstant(op)
		}
		return ConstExpr(cc.Op, cc.Typ, cc.SrcElem, ops...)
	case *StructConst:
		fields := make([]Constant, len(cc.Fields))
		for i, fld := range cc.Fields {
			fields[i] = c.mapConstant(fld)
		}
		return &StructConst{Typ: cc.Typ, Fields: fields}
	case *ArrayConst:
		elems := make([]Constant, len(cc.Elems))
		for i, e := range cc.Elems {
			elems[i] = c.mapConstant(e)
		}
		return &ArrayConst{Typ: cc.Typ, Elems: elems, CharArray: cc.CharArray}
	default:
		// Scalar constants are immutable and shared between modules.
		return cst
	}
}
