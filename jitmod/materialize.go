package jitmod

import (
	"fmt"

	"github.com/vext01/yk-pv/ir"
)

// mapOperand returns the JIT-module counterpart of the AOT value v,
// materializing it on demand. The rules are checked in order:
//
//  1. already mapped: return the stored value.
//  2. stack allocation from outside the trace: forbidden. The
//     live-variables aggregate is the sole channel for outside-trace state.
//  3. constant expression: rebuild with mapped operands.
//  4. global variable: clone into the JIT module, without its initializer;
//     constants are queued for initializer copy during finalization.
//  5. function: declare in the JIT module.
//  6. other constants and inline asm: identity-map.
//  7. the stripped start-marker result: a typed null.
//  8. anything else is a hard error.
func (b *builder) mapOperand(v ir.Value) (ir.Value, error) {
	if nv, ok := b.vmap[v]; ok {
		return nv, nil
	}

	switch vv := v.(type) {
	case *ir.Instruction:
		if vv.Opcode() == ir.OpAlloca {
			return nil, fmt.Errorf("stack allocation referenced from outside the trace: %s", vv)
		}
		if vv == b.startInstr {
			nv := ir.ConstZero(vv.Type())
			b.vmap[v] = nv
			return nv, nil
		}

	case *ir.ConstExprInst:
		ops := make([]ir.Constant, len(vv.Ops))
		for i, op := range vv.Ops {
			mop, err := b.mapOperand(op)
			if err != nil {
				return nil, err
			}
			c, ok := mop.(ir.Constant)
			if !ok {
				panic("BUG: constant expression operand mapped to a non-constant")
			}
			ops[i] = c
		}
		nv := ir.ConstExpr(vv.Op, vv.Typ, vv.SrcElem, ops...)
		b.vmap[v] = nv
		return nv, nil

	case *ir.GlobalVariable:
		ng := &ir.GlobalVariable{
			Name:      vv.Name,
			ValueType: vv.ValueType,
			Const:     vv.Const,
			Linkage:   vv.Linkage,
			TLMode:    vv.TLMode,
			AddrSpace: vv.AddrSpace,
		}
		b.jit.AddGlobal(ng)
		b.vmap[v] = ng
		if vv.Const {
			ng.CopyAttributesFrom(vv)
			b.clonedGlobals = append(b.clonedGlobals, vv)
		}
		return ng, nil

	case *ir.Function:
		decl := b.jit.NewFunc(vv.Name, vv.Sig, ir.ExternalLinkage)
		b.vmap[v] = decl
		return decl, nil

	case *ir.InlineAsm:
		b.vmap[v] = vv
		return vv, nil

	default:
		if c, ok := v.(ir.Constant); ok {
			b.vmap[v] = c
			return c, nil
		}
	}
	return nil, fmt.Errorf("don't know how to handle operand: %s", formatValue(v))
}

// mapInitializer deep-maps a global initializer, rewriting references to
// globals, functions and constant expressions to their JIT counterparts.
func (b *builder) mapInitializer(c ir.Constant) (ir.Constant, error) {
	switch cc := c.(type) {
	case *ir.GlobalVariable, *ir.Function, *ir.ConstExprInst:
		v, err := b.mapOperand(cc)
		if err != nil {
			return nil, err
		}
		return v.(ir.Constant), nil
	case *ir.StructConst:
		fields := make([]ir.Constant, len(cc.Fields))
		for i, f := range cc.Fields {
			nf, err := b.mapInitializer(f)
			if err != nil {
				return nil, err
			}
			fields[i] = nf
		}
		return &ir.StructConst{Typ: cc.Typ, Fields: fields}, nil
	case *ir.ArrayConst:
		elems := make([]ir.Constant, len(cc.Elems))
		for i, e := range cc.Elems {
			ne, err := b.mapInitializer(e)
			if err != nil {
				return nil, err
			}
			elems[i] = ne
		}
		return &ir.ArrayConst{Typ: cc.Typ, Elems: elems, CharArray: cc.CharArray}, nil
	default:
		return c, nil
	}
}

func formatValue(v ir.Value) string {
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", v)
}
