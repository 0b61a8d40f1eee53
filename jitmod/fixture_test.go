package jitmod

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vext01/yk-pv/ir"
	"github.com/vext01/yk-pv/trace"
)

// loopFixture builds the canonical AOT shape the tracer sees: an interpreter
// loop whose header carries the control point and whose live state (one i32,
// "res") travels through a single-field aggregate.
//
// Block layout of main: bb0 entry, bb1 loop header (phi, insertvalue chain,
// control point, extractvalue), then any body blocks a test adds, then the
// stop block appended by finish.
type loopFixture struct {
	mod    *ir.Module
	varsTy *ir.StructType
	cpSig  *ir.FuncType
	cpFunc *ir.Function
	main   *ir.Function
	entry  *ir.BasicBlock
	header *ir.BasicBlock
	// resPhi carries res across loop iterations.
	resPhi *ir.Instruction
	// agg is the insertvalue feeding the control point.
	agg    *ir.Instruction
	cpCall *ir.Instruction
	// resVal is res extracted below the control point; body blocks read
	// this, not the phi.
	resVal *ir.Instruction
}

func newLoopFixture() *loopFixture {
	m := ir.NewModule("aot")
	varsTy := ir.Struct(ir.I32)
	f := &loopFixture{mod: m, varsTy: varsTy}
	f.cpSig = ir.Signature(varsTy, ir.Pointer(ir.I8), varsTy)
	f.cpFunc = m.NewFunc(ControlPointName, f.cpSig, ir.ExternalLinkage)
	m.NewFunc(StopTracingName, ir.Signature(ir.Void), ir.ExternalLinkage)

	f.main = m.NewFunc("main", ir.Signature(ir.I32), ir.ExternalLinkage)
	f.entry = f.main.NewBlock()  // bb0
	f.header = f.main.NewBlock() // bb1
	f.entry.Append(ir.NewBr(f.header))

	f.resPhi = f.header.Append(ir.NewPhi(ir.I32).AddIncoming(ir.ConstInt(ir.I32, 0), f.entry))
	f.agg = f.header.Append(ir.NewInsertValue(ir.ConstZero(varsTy), f.resPhi, 0))
	f.cpCall = f.header.Append(ir.NewCall(f.cpSig, f.cpFunc,
		ir.ConstZero(ir.Pointer(ir.I8)), f.agg))
	f.resVal = f.header.Append(ir.NewExtractValue(f.cpCall, 0))
	return f
}

// finish closes the loop: the header branches into the body, the body's tail
// branches back, the phi picks up the body's new res, and a stop block ends
// the function. Returns the stop block.
func (f *loopFixture) finish(bodyHead, bodyTail *ir.BasicBlock, resNext ir.Value) *ir.BasicBlock {
	f.resPhi.AddIncoming(resNext, bodyTail)
	f.header.Append(ir.NewBr(bodyHead))
	bodyTail.Append(ir.NewBr(f.header))

	stop := f.main.NewBlock()
	stopFn := f.mod.Function(StopTracingName)
	stop.Append(ir.NewCall(stopFn.Sig, stopFn))
	stop.Append(ir.NewRet(ir.ConstInt(ir.I32, 0)))
	return stop
}

// mainAt returns a mapped trace entry for main's i-th block.
func mainAt(i int) trace.Entry { return trace.Mapped("main", i) }

func mustTrace(t *testing.T, entries ...trace.Entry) *trace.Trace {
	t.Helper()
	tr, err := trace.New(entries)
	require.NoError(t, err)
	return tr
}

func mustFuncAddrs(t *testing.T, names []string, addrs []uint64) *trace.FuncAddrs {
	t.Helper()
	fa, err := trace.NewFuncAddrs(names, addrs)
	require.NoError(t, err)
	return fa
}

func mustBuild(t *testing.T, f *loopFixture, tr *trace.Trace, fa *trace.FuncAddrs) *CompiledTrace {
	t.Helper()
	ct, err := Build(f.mod, tr, fa)
	require.NoError(t, err)
	return ct
}

// opcodes returns the opcode sequence of the compiled trace's body.
func opcodes(ct *CompiledTrace) []ir.Opcode {
	var ops []ir.Opcode
	for _, bb := range ct.Func().Blocks {
		for _, inst := range bb.Instrs {
			ops = append(ops, inst.Opcode())
		}
	}
	return ops
}

// callsTo counts calls to the named function in the compiled trace.
func callsTo(ct *CompiledTrace, name string) int {
	n := 0
	for _, bb := range ct.Func().Blocks {
		for _, inst := range bb.Instrs {
			if inst.Opcode() != ir.OpCall {
				continue
			}
			if cf := inst.StaticCallee(); cf != nil && cf.Name == name {
				n++
			}
		}
	}
	return n
}
