package jitmod

import (
	"fmt"

	"github.com/vext01/yk-pv/ir"
	"github.com/vext01/yk-pv/trace"
)

// resumeToken remembers where to continue in a block that is re-entered
// after a return, an external call, or the closing control point.
type resumeToken struct {
	set bool
	bb  *ir.BasicBlock
	idx int
}

// action tells the block walker what to do after a call or return was
// handled.
type action byte

const (
	// actNext moves on to the next instruction in the block.
	actNext action = iota
	// actBreak abandons the rest of the block; the next trace entry
	// decides where execution continues.
	actBreak
	// actFinish finalizes the module; the stop marker was reached.
	actFinish
)

type builder struct {
	aot    *ir.Module
	tr     *trace.Trace
	faddrs *trace.FuncAddrs

	jit     *ir.Module
	jitFunc *ir.Function
	block   *ir.BasicBlock
	name    string

	// vmap maps AOT values to their JIT-module counterparts.
	vmap map[ir.Value]ir.Value
	// revMap maps cloned instructions back to their AOT sources.
	revMap map[*ir.Instruction]*ir.Instruction
	// gmaps binds outlined callee names to machine-code addresses.
	gmaps map[string]uint64

	frames frameStack

	// cpCall is the AOT call to the control point; its result is mapped
	// to the compiled trace's sole parameter.
	cpCall *ir.Instruction
	// startInstr is the marker call that opened the traced region. Some
	// instructions still name its (stripped) result; the materializer
	// maps it to a typed null.
	startInstr *ir.Instruction
	// insertAlign maps each index of the live-variables aggregate to the
	// AOT value inserted there just before the control point.
	insertAlign map[uint32]ir.Value

	ctrlPointSeen    bool
	expectUnmappable bool
	resume           resumeToken
	recursionDepth   int

	// clonedGlobals holds AOT globals whose initializers are copied over
	// during finalization.
	clonedGlobals []*ir.GlobalVariable
	// deadOnFinalize holds JIT values queued for transitive deletion.
	deadOnFinalize []ir.Value
}

func (b *builder) initialize(traceIdx uint64) error {
	cpFunc := b.aot.Function(ControlPointName)
	if cpFunc == nil {
		return fmt.Errorf("can't find control point %s in AOT module", ControlPointName)
	}
	cpCall, err := soleCallTo(b.aot, cpFunc)
	if err != nil {
		return err
	}
	b.cpCall = cpCall
	agg := cpCall.Arg(controlPointArgIdx)
	b.insertAlign = scanInsertChain(agg)

	b.jit = ir.NewModule("")
	b.name = fmt.Sprintf("%s%d", TraceFuncPrefix, traceIdx)
	sig := ir.Signature(cpCall.Type(), agg.Type())
	b.jitFunc = b.jit.NewFunc(b.name, sig, ir.InternalLinkage)
	b.jitFunc.CallConv = ir.CallConvC
	b.block = b.jitFunc.NewBlock()

	// Values live across the control point travel through the aggregate,
	// which becomes the compiled trace's parameter; so does the control
	// point's own result.
	param := b.jitFunc.Param(0)
	b.vmap[cpCall] = param
	b.vmap[agg] = param

	b.frames.enter(nil, 0)
	return nil
}

// soleCallTo finds the one call site of f in m.
func soleCallTo(m *ir.Module, f *ir.Function) (*ir.Instruction, error) {
	var found *ir.Instruction
	for _, fn := range m.Funcs {
		for _, bb := range fn.Blocks {
			for _, inst := range bb.Instrs {
				if inst.Opcode() != ir.OpCall || inst.StaticCallee() != f {
					continue
				}
				if found != nil {
					return nil, fmt.Errorf("%s has more than one call site", f.Name)
				}
				found = inst
			}
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%s is never called in the AOT module", f.Name)
	}
	return found, nil
}

// scanInsertChain records, for each aggregate index, the value inserted
// there by the insertvalue chain feeding the control point. The walk stops
// at the first producer that is not an insertvalue, so fields routed in
// through a phi are not aligned.
func scanInsertChain(agg ir.Value) map[uint32]ir.Value {
	align := make(map[uint32]ir.Value)
	v := agg
	for {
		in, ok := v.(*ir.Instruction)
		if !ok || in.Opcode() != ir.OpInsertValue {
			return align
		}
		idx := in.Indices()[0]
		if _, dup := align[idx]; !dup {
			align[idx] = in.Operand(1)
		}
		v = in.Operand(0)
	}
}

func (b *builder) run() (*CompiledTrace, error) {
	for i := 0; i < b.tr.Length(); i++ {
		ent, _ := b.tr.At(i)
		if ent.Hole() {
			if !b.expectUnmappable {
				return nil, fmt.Errorf("unexpected unmappable block at trace position %d", i)
			}
			b.expectUnmappable = false
			continue
		}

		fname, bbIdx := ent.Location()
		f := b.aot.Function(fname)
		if f == nil {
			return nil, fmt.Errorf("can't find function %s", fname)
		}
		bb := f.Block(bbIdx)
		if bb == nil {
			return nil, fmt.Errorf("block index %d out of range in %s", bbIdx, fname)
		}

		start := 0
		if b.resume.set {
			if b.resume.bb == bb {
				// Re-entering the block we left: continue just past
				// the instruction we left off at.
				start = b.resume.idx + 1
			} else {
				// Execution moved on (e.g. the block holding the
				// stop marker, straight after the closing control
				// point); walk the new block from the top.
				b.frames.shiftBlock(bb)
			}
			b.resume = resumeToken{}
		} else {
			b.frames.shiftBlock(bb)
		}

		done, err := b.walkBlock(i, bb, start)
		if err != nil {
			return nil, err
		}
		if done {
			if err := b.finalize(); err != nil {
				return nil, err
			}
			return &CompiledTrace{
				Module:         b.jit,
				Name:           b.name,
				GlobalMappings: b.gmaps,
				revMap:         b.revMap,
			}, nil
		}
	}
	return nil, fmt.Errorf("trace ended without reaching %s", StopTracingName)
}

// walkBlock processes the instructions of bb from index start onward. It
// reports done once the stop-tracing marker has been reached.
func (b *builder) walkBlock(traceIdx int, bb *ir.BasicBlock, start int) (done bool, err error) {
	for ii := start; ii < len(bb.Instrs); ii++ {
		inst := bb.Instrs[ii]

		if inst.IsDebugIntrinsic() {
			continue
		}

		if inst.Opcode() == ir.OpCall {
			act, err := b.handleCall(traceIdx, inst, ii)
			if err != nil {
				return false, err
			}
			switch act {
			case actNext:
				continue
			case actBreak:
				return false, nil
			case actFinish:
				return true, nil
			}
		}

		// Everything before the control point is irrelevant: the traced
		// region starts below it.
		if !b.ctrlPointSeen {
			continue
		}

		switch inst.Opcode() {
		case ir.OpIndirectBr:
			// The successor is dictated by the trace; the address
			// operand dies with the branch.
			addr, err := b.mapOperand(inst.Operand(0))
			if err != nil {
				return false, err
			}
			b.queueDead(addr)
			continue

		case ir.OpBr, ir.OpCondBr, ir.OpSwitch:
			// Control flow is dictated by the trace. This is where
			// guards would go.
			continue

		case ir.OpRet:
			return false, b.handleReturn(inst)
		}

		if b.recursionDepth > 0 {
			// Outlining: the callee's body is not copied.
			continue
		}

		if inst.Opcode() == ir.OpPhi {
			if err := b.handlePhi(inst); err != nil {
				return false, err
			}
			continue
		}

		cloned, err := b.copyInstruction(inst)
		if err != nil {
			return false, err
		}
		if inst.Opcode() == ir.OpExtractValue && inst.Operand(0) == b.cpCall {
			// The trace assembles the region below the control point
			// before the region above it, so a value extracted from
			// the live-variables aggregate stands for the value that
			// was inserted at the same index before the control
			// point. Re-map that source to the freshly extracted
			// value.
			if src, ok := b.insertAlign[inst.Indices()[0]]; ok {
				b.vmap[src] = cloned
			}
		}
	}
	return false, nil
}

func (b *builder) handleCall(traceIdx int, ci *ir.Instruction, instIdx int) (action, error) {
	callee := ci.StaticCallee()

	switch {
	case callee == nil && !ci.IsInlineAsmCall():
		return b.handleIndirectCall(traceIdx, ci, instIdx)

	case callee != nil && (callee.Name == ControlPointName || callee.Name == StartTracingName):
		if !b.ctrlPointSeen {
			b.ctrlPointSeen = true
			b.startInstr = ci
			return actNext, nil
		}
		// Second sighting: the traced region is closing. The call's
		// result is the aggregate that was just (re)built in the trace.
		if len(ci.Args()) <= controlPointArgIdx {
			return 0, fmt.Errorf("%s carries no live-variables aggregate", callee.Name)
		}
		agg, err := b.mapOperand(ci.Arg(controlPointArgIdx))
		if err != nil {
			return 0, err
		}
		b.vmap[ci] = agg
		b.setResume(ci, instIdx)
		return actBreak, nil

	case callee != nil && callee.Name == StopTracingName:
		return actFinish, nil

	case ci.IsInlineAsmCall():
		if !b.ctrlPointSeen || b.recursionDepth > 0 {
			return actNext, nil
		}
		if _, err := b.copyInstruction(ci); err != nil {
			return 0, err
		}
		return actNext, nil

	case callee.IsDeclaration():
		// The callee's definition is external to the AOT module.
		if !b.ctrlPointSeen {
			return actNext, nil
		}
		if _, err := b.mapOperand(callee); err != nil {
			return 0, err
		}
		if b.recursionDepth == 0 {
			if _, err := b.copyInstruction(ci); err != nil {
				return 0, err
			}
		}
		// The trace followed the call into code we have no IR for.
		b.expectUnmappable = true
		b.setResume(ci, instIdx)
		return actBreak, nil

	default:
		return b.handleMappedCall(ci, callee, instIdx)
	}
}

// handleIndirectCall deals with calls whose target is not statically known.
func (b *builder) handleIndirectCall(traceIdx int, ci *ir.Instruction, instIdx int) (action, error) {
	if !b.ctrlPointSeen {
		return actNext, nil
	}
	// The next trace entry tells us where the call went: if it is a
	// mappable block, its function is the effective callee.
	if next, ok := b.tr.At(traceIdx + 1); ok && !next.Hole() {
		fname, _ := next.Location()
		g := b.aot.Function(fname)
		if g == nil {
			return 0, fmt.Errorf("can't find function %s", fname)
		}
		if !g.IsDeclaration() {
			return b.handleMappedCall(ci, g, instIdx)
		}
	}
	// No IR for the target: leave the call as a call.
	if b.recursionDepth == 0 {
		if _, err := b.copyInstruction(ci); err != nil {
			return 0, err
		}
	}
	b.expectUnmappable = true
	b.setResume(ci, instIdx)
	return actBreak, nil
}

// handleMappedCall deals with a call whose callee has IR in the AOT module;
// callee is the statically known target, or the trace-determined target of
// an indirect call.
func (b *builder) handleMappedCall(ci *ir.Instruction, callee *ir.Function, instIdx int) (action, error) {
	if !b.ctrlPointSeen {
		return actNext, nil
	}

	if b.recursionDepth > 0 {
		// Already outlining: count the nested call so the frame
		// boundary is recognized on the matching return.
		b.recursionDepth++
		b.frames.enter(ci, instIdx)
		return actBreak, nil
	}

	if b.frames.contains(callee) {
		// Recursion. Inlining would unroll it unboundedly, so turn the
		// call back into a call of the AOT machine code.
		if _, mapped := b.vmap[callee]; !mapped {
			if _, err := b.mapOperand(callee); err != nil {
				return 0, err
			}
			addr, ok := b.faddrs.Lookup(callee.Name)
			if !ok {
				return 0, fmt.Errorf("can't find address for symbol %s", callee.Name)
			}
			b.gmaps[callee.Name] = addr
		}
		if _, err := b.copyInstruction(ci); err != nil {
			return 0, err
		}
		b.frames.enter(ci, instIdx)
		b.recursionDepth = 1
		return actBreak, nil
	}

	// Inline: bind the callee's formals to the materialized actuals; the
	// next trace entry walks into the callee's body.
	b.frames.enter(ci, instIdx)
	for n, formal := range callee.Params {
		actual, err := b.mapOperand(ci.Arg(n))
		if err != nil {
			return 0, err
		}
		b.vmap[formal] = actual
	}
	return actBreak, nil
}

func (b *builder) handleReturn(ret *ir.Instruction) error {
	call, resumeIdx := b.frames.leave()
	if call == nil {
		return fmt.Errorf("traced a return with no suspended call")
	}
	b.resume = resumeToken{set: true, bb: call.Parent(), idx: resumeIdx}

	if b.recursionDepth > 0 {
		b.recursionDepth--
		return nil
	}

	if ret.NumOperands() == 1 {
		// Subsequent uses of the call's result in the caller pick up
		// the returned value.
		rv, err := b.mapOperand(ret.Operand(0))
		if err != nil {
			return err
		}
		b.vmap[call] = rv
	}
	return nil
}

func (b *builder) handlePhi(phi *ir.Instruction) error {
	pred := b.frames.lastBlock()
	if pred == nil {
		return fmt.Errorf("phi encountered with no known predecessor block")
	}
	incoming, ok := phi.IncomingForBlock(pred)
	if !ok {
		return fmt.Errorf("phi has no incoming value for block %s", pred)
	}
	v, err := b.mapOperand(incoming)
	if err != nil {
		return err
	}
	// No instruction is emitted; the phi simply resolves to the value
	// flowing in from the dynamically taken predecessor.
	b.vmap[phi] = v
	return nil
}

func (b *builder) setResume(inst *ir.Instruction, instIdx int) {
	b.resume = resumeToken{set: true, bb: inst.Parent(), idx: instIdx}
}

// queueDead queues a JIT value for transitive deletion during finalization.
func (b *builder) queueDead(v ir.Value) {
	switch v.(type) {
	case *ir.Instruction, *ir.GlobalVariable:
		b.deadOnFinalize = append(b.deadOnFinalize, v)
	}
}

// copyInstruction clones inst into the compiled trace: every operand is
// materialized in the JIT module first, then the clone's operands are
// rewritten to the mapped values. Metadata travels with the clone.
func (b *builder) copyInstruction(inst *ir.Instruction) (*ir.Instruction, error) {
	for _, op := range inst.Operands() {
		if _, err := b.mapOperand(op); err != nil {
			return nil, err
		}
	}
	n := inst.Clone()
	for i, op := range n.Operands() {
		n.SetOperand(i, b.vmap[op])
	}
	b.vmap[inst] = n
	b.revMap[n] = inst
	b.block.Append(n)
	return n, nil
}
