package jitmod

import "github.com/vext01/yk-pv/ir"

// Cleanup removes instructions from the compiled trace whose results are
// unused and whose execution has no observable effect. The backend applies
// its own optimizations; this pass only keeps the handed-off module free of
// the dead tails the assembler leaves behind (e.g. the extractvalue of an
// inbound live variable that the traced body overwrites).
func Cleanup(ct *CompiledTrace) {
	f := ct.Func()
	for _, bb := range f.Blocks {
		for changed := true; changed; {
			changed = false
			for i := len(bb.Instrs) - 1; i >= 0; i-- {
				inst := bb.Instrs[i]
				if hasSideEffects(inst) {
					continue
				}
				if useCountIn(bb, inst) > 0 {
					continue
				}
				bb.Remove(inst)
				delete(ct.revMap, inst)
				changed = true
			}
		}
	}
}

func hasSideEffects(inst *ir.Instruction) bool {
	switch inst.Opcode() {
	case ir.OpStore, ir.OpCall:
		return true
	default:
		return inst.Opcode().IsTerminator()
	}
}

func useCountIn(bb *ir.BasicBlock, v ir.Value) int {
	n := 0
	for _, inst := range bb.Instrs {
		for _, op := range inst.Operands() {
			if op == v {
				n++
			}
		}
	}
	return n
}
