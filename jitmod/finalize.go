package jitmod

import "github.com/vext01/yk-pv/ir"

// finalize completes the compiled trace once the stop marker has been seen:
// values queued as dead are deleted transitively, the terminating return is
// emitted, copied constant globals receive their initializers, and the
// module gets a compilation-unit metadata node.
func (b *builder) finalize() error {
	b.sweepDead()

	var rv ir.Value
	if cp, ok := b.vmap[b.cpCall]; ok && !b.cpCall.Type().Equal(ir.Void) {
		rv = cp
	}
	b.block.Append(ir.NewRet(rv))

	// Fix initialisers for copied global variables. The list can grow
	// while we walk it: an initializer may itself pull in more globals.
	for i := 0; i < len(b.clonedGlobals); i++ {
		g := b.clonedGlobals[i]
		if g.IsDeclaration() {
			continue
		}
		init, err := b.mapInitializer(g.Initializer)
		if err != nil {
			return err
		}
		b.vmap[g].(*ir.GlobalVariable).Initializer = init
	}

	// Ensure the module has the compile units of the code it was cloned
	// from.
	if cus := b.aot.CompileUnits(); len(cus) > 0 {
		nmd := b.jit.GetOrInsertNamedMetadata(ir.DebugCUMetadataName)
		present := make(map[*ir.MDNode]struct{}, len(nmd.Operands))
		for _, op := range nmd.Operands {
			present[op] = struct{}{}
		}
		for _, cu := range cus {
			if _, ok := present[cu]; ok {
				continue
			}
			present[cu] = struct{}{}
			nmd.AddOperand(cu)
		}
	}
	return nil
}

// sweepDead erases the queued values; whenever an operand of an erased value
// loses its last user it is erased too. Works for both instructions and
// global variables; a deleted global is also dropped from the
// initializer-copy list.
func (b *builder) sweepDead() {
	work := append([]ir.Value(nil), b.deadOnFinalize...)
	for len(work) > 0 {
		v := work[len(work)-1]
		work = work[:len(work)-1]

		var ops []ir.Value
		switch vv := v.(type) {
		case *ir.Instruction:
			if vv.Parent() == nil {
				continue // already erased
			}
			ops = append(ops, vv.Operands()...)
			b.block.Remove(vv)
			delete(b.revMap, vv)
		case *ir.GlobalVariable:
			if b.jit.Global(vv.Name) != vv {
				continue
			}
			b.jit.RemoveGlobal(vv)
			b.dropFromInitializerCopy(vv)
		default:
			continue
		}

		for _, op := range ops {
			if b.erasable(op) && b.useCount(op) == 0 {
				work = append(work, op)
			}
		}
	}
	b.deadOnFinalize = nil
}

// erasable reports whether v is a JIT-module entity the sweep may delete.
func (b *builder) erasable(v ir.Value) bool {
	switch vv := v.(type) {
	case *ir.Instruction:
		return vv.Parent() == b.block
	case *ir.GlobalVariable:
		return b.jit.Global(vv.Name) == vv
	default:
		return false
	}
}

// useCount counts the remaining uses of v inside the compiled trace.
func (b *builder) useCount(v ir.Value) int {
	n := 0
	for _, inst := range b.block.Instrs {
		for _, op := range inst.Operands() {
			if op == v {
				n++
			}
		}
	}
	return n
}

// dropFromInitializerCopy removes the AOT global mapped to jg from the
// initializer-copy list.
func (b *builder) dropFromInitializerCopy(jg *ir.GlobalVariable) {
	for i, g := range b.clonedGlobals {
		if b.vmap[g] == jg {
			b.clonedGlobals = append(b.clonedGlobals[:i], b.clonedGlobals[i+1:]...)
			return
		}
	}
}
