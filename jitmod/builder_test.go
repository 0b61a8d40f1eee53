package jitmod

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vext01/yk-pv/internal/interp"
	"github.com/vext01/yk-pv/ir"
	"github.com/vext01/yk-pv/trace"
)

// execTrace runs the compiled trace with the given initial value of the live
// variable and returns its final value.
func execTrace(t *testing.T, ct *CompiledTrace, res int64, setup func(*interp.Env)) int64 {
	t.Helper()
	env := interp.NewEnv(ct.Module)
	if setup != nil {
		setup(env)
	}
	in := interp.Val{Agg: []interp.Val{interp.IntVal(res)}}
	out, err := env.Call(ct.Func(), []interp.Val{in})
	require.NoError(t, err)
	require.Len(t, out.Agg, 1)
	return out.Agg[0].I
}

func TestConstantReturn(t *testing.T) {
	f := newLoopFixture()
	// int f() { return 30; }
	fFn := f.mod.NewFunc("f", ir.Signature(ir.I32), ir.ExternalLinkage)
	fFn.NewBlock().Append(ir.NewRet(ir.ConstInt(ir.I32, 30)))

	body := f.main.NewBlock() // bb2
	call := body.Append(ir.NewCall(fFn.Sig, fFn))
	f.finish(body, body, call)

	aotBefore := f.mod.String()
	tr := mustTrace(t, mainAt(1), mainAt(2), trace.Mapped("f", 0), mainAt(2), mainAt(1), mainAt(3))
	ct := mustBuild(t, f, tr, mustFuncAddrs(t, nil, nil))

	// The callee was inlined: no call survives.
	require.Equal(t, 0, callsTo(ct, "f"))
	require.Equal(t, int64(30), execTrace(t, ct, 0, nil))

	// The AOT module is never mutated.
	require.Equal(t, aotBefore, f.mod.String())
}

func TestCompiledTraceShape(t *testing.T) {
	f := newLoopFixture()
	body := f.main.NewBlock()
	next := body.Append(ir.NewAdd(f.resVal, ir.ConstInt(ir.I32, 1)))
	f.finish(body, body, next)

	tr := mustTrace(t, mainAt(1), mainAt(2), mainAt(1), mainAt(3))
	ct := mustBuild(t, f, tr, mustFuncAddrs(t, nil, nil))

	// Exactly one defined function, named with the trace prefix, internal
	// linkage, C calling convention, a single entry block.
	var defined []*ir.Function
	for _, fn := range ct.Module.Funcs {
		if !fn.IsDeclaration() {
			defined = append(defined, fn)
		}
	}
	require.Len(t, defined, 1)
	jitFn := defined[0]
	require.True(t, strings.HasPrefix(jitFn.Name, TraceFuncPrefix))
	require.Equal(t, ir.InternalLinkage, jitFn.Linkage)
	require.Equal(t, ir.CallConvC, jitFn.CallConv)
	require.Len(t, jitFn.Blocks, 1)

	// No control flow survives in the compiled trace.
	for _, op := range opcodes(ct) {
		require.NotContains(t, []ir.Opcode{ir.OpBr, ir.OpCondBr, ir.OpSwitch, ir.OpIndirectBr}, op)
	}

	// The final return yields the rebuilt live-variables aggregate.
	instrs := jitFn.Blocks[0].Instrs
	last := instrs[len(instrs)-1]
	require.Equal(t, ir.OpRet, last.Opcode())
	retVal, ok := last.Operand(0).(*ir.Instruction)
	require.True(t, ok)
	require.Equal(t, ir.OpInsertValue, retVal.Opcode())
}

func TestUniqueTraceNames(t *testing.T) {
	names := map[string]struct{}{}
	for i := 0; i < 3; i++ {
		f := newLoopFixture()
		body := f.main.NewBlock()
		next := body.Append(ir.NewAdd(f.resVal, ir.ConstInt(ir.I32, 1)))
		f.finish(body, body, next)
		tr := mustTrace(t, mainAt(1), mainAt(2), mainAt(1), mainAt(3))
		ct := mustBuild(t, f, tr, mustFuncAddrs(t, nil, nil))
		require.True(t, strings.HasPrefix(ct.Name, TraceFuncPrefix))
		names[ct.Name] = struct{}{}
	}
	require.Len(t, names, 3)
}

func TestTwoArgAdd(t *testing.T) {
	f := newLoopFixture()
	// int add(int a, int b) { return a + b; }
	addFn := f.mod.NewFunc("add", ir.Signature(ir.I32, ir.I32, ir.I32), ir.ExternalLinkage)
	addBB := addFn.NewBlock()
	sum := addBB.Append(ir.NewAdd(addFn.Param(0), addFn.Param(1)))
	addBB.Append(ir.NewRet(sum))

	body := f.main.NewBlock()
	call := body.Append(ir.NewCall(addFn.Sig, addFn,
		ir.ConstInt(ir.I32, 2), ir.ConstInt(ir.I32, 3)))
	f.finish(body, body, call)

	tr := mustTrace(t, mainAt(1), mainAt(2), trace.Mapped("add", 0), mainAt(2), mainAt(1), mainAt(3))
	ct := mustBuild(t, f, tr, mustFuncAddrs(t, nil, nil))

	require.Equal(t, 0, callsTo(ct, "add"))
	require.Equal(t, int64(5), execTrace(t, ct, 0, nil))
}

// buildCascading adds int foo(int num) with three sequential if-returns:
// blocks 0: num==0? 1: ret 1, 2: num==1? 3: ret 2, 4: num==2? 5: ret 4,
// 6: ret num.
func buildCascading(m *ir.Module) *ir.Function {
	foo := m.NewFunc("foo", ir.Signature(ir.I32, ir.I32), ir.ExternalLinkage)
	num := foo.Param(0)
	rets := []int64{1, 2, 4}
	checks := make([]*ir.BasicBlock, 0, 3)
	for i := 0; i < 3; i++ {
		checks = append(checks, foo.NewBlock())
		ret := foo.NewBlock()
		ret.Append(ir.NewRet(ir.ConstInt(ir.I32, rets[i])))
	}
	last := foo.NewBlock()
	last.Append(ir.NewRet(num))
	for i, chk := range checks {
		cmp := chk.Append(ir.NewICmp(ir.IntEQ, num, ir.ConstInt(ir.I32, int64(i))))
		next := last
		if i < 2 {
			next = checks[i+1]
		}
		chk.Append(ir.NewCondBr(cmp, foo.Blocks[2*i+1], next))
	}
	return foo
}

func TestCascadingConditionals(t *testing.T) {
	f := newLoopFixture()
	foo := buildCascading(f.mod)

	body := f.main.NewBlock()
	call := body.Append(ir.NewCall(foo.Sig, foo, ir.ConstInt(ir.I32, 2)))
	f.finish(body, body, call)

	// foo(2) falls through the first two checks and returns from block 5.
	tr := mustTrace(t,
		mainAt(1), mainAt(2),
		trace.Mapped("foo", 0), trace.Mapped("foo", 2), trace.Mapped("foo", 4), trace.Mapped("foo", 5),
		mainAt(2), mainAt(1), mainAt(3))
	ct := mustBuild(t, f, tr, mustFuncAddrs(t, nil, nil))

	require.Equal(t, int64(4), execTrace(t, ct, 0, nil))
	for _, op := range opcodes(ct) {
		require.NotEqual(t, ir.OpCondBr, op)
	}
}

// buildFib adds int fib(int num) shaped like the fib test program:
// blocks 0: num==0? 1: ret 0, 2: num==1? 3: ret 1, 4: num==2? 5: ret 1,
// 6: a = fib(num-2); b = fib(num-1); ret a+b.
func buildFib(m *ir.Module) *ir.Function {
	fib := m.NewFunc("fib", ir.Signature(ir.I32, ir.I32), ir.ExternalLinkage)
	num := fib.Param(0)
	type check struct {
		against, ret int64
	}
	checks := []check{{0, 0}, {1, 1}, {2, 1}}
	var chkBlocks []*ir.BasicBlock
	for range checks {
		chkBlocks = append(chkBlocks, fib.NewBlock())
		fib.NewBlock() // the paired return block
	}
	rec := fib.NewBlock() // block 6
	for i, c := range checks {
		chk := chkBlocks[i]
		retBB := fib.Blocks[2*i+1]
		retBB.Append(ir.NewRet(ir.ConstInt(ir.I32, c.ret)))
		cmp := chk.Append(ir.NewICmp(ir.IntEQ, num, ir.ConstInt(ir.I32, c.against)))
		next := rec
		if i < 2 {
			next = chkBlocks[i+1]
		}
		chk.Append(ir.NewCondBr(cmp, retBB, next))
	}
	n2 := rec.Append(ir.NewSub(num, ir.ConstInt(ir.I32, 2)))
	a := rec.Append(ir.NewCall(fib.Sig, fib, n2))
	n1 := rec.Append(ir.NewSub(num, ir.ConstInt(ir.I32, 1)))
	b := rec.Append(ir.NewCall(fib.Sig, fib, n1))
	c := rec.Append(ir.NewAdd(a, b))
	rec.Append(ir.NewRet(c))
	return fib
}

// fibTraceBlocks simulates the blocks recorded while fib(n) executes.
func fibTraceBlocks(n int64) []trace.Entry {
	at := func(i int) trace.Entry { return trace.Mapped("fib", i) }
	switch n {
	case 0:
		return []trace.Entry{at(0), at(1)}
	case 1:
		return []trace.Entry{at(0), at(2), at(3)}
	case 2:
		return []trace.Entry{at(0), at(2), at(4), at(5)}
	}
	entries := []trace.Entry{at(0), at(2), at(4), at(6)}
	entries = append(entries, fibTraceBlocks(n-2)...)
	entries = append(entries, at(6))
	entries = append(entries, fibTraceBlocks(n-1)...)
	entries = append(entries, at(6))
	return entries
}

func TestRecursiveFib(t *testing.T) {
	f := newLoopFixture()
	fib := buildFib(f.mod)

	body := f.main.NewBlock()
	call := body.Append(ir.NewCall(fib.Sig, fib, ir.ConstInt(ir.I32, 8)))
	f.finish(body, body, call)

	entries := []trace.Entry{mainAt(1), mainAt(2)}
	entries = append(entries, fibTraceBlocks(8)...)
	entries = append(entries, mainAt(2), mainAt(1), mainAt(3))
	tr := mustTrace(t, entries...)

	const fibAddr = 0xdeadbeef
	ct := mustBuild(t, f, tr, mustFuncAddrs(t, []string{"fib"}, []uint64{fibAddr}))

	// The two recursive call sites are outlined into calls; the recursion
	// itself is not unrolled, so the outer invocation's instructions
	// appear exactly once.
	require.Equal(t, 2, callsTo(ct, "fib"))
	nSub := 0
	for _, op := range opcodes(ct) {
		if op == ir.OpSub {
			nSub++
		}
	}
	require.Equal(t, 2, nSub)

	// The declaration resolves to the AOT machine code at link time.
	require.Equal(t, map[string]uint64{"fib": fibAddr}, ct.GlobalMappings)
	decl := ct.Module.Function("fib")
	require.NotNil(t, decl)
	require.True(t, decl.IsDeclaration())

	var goFib func(int64) int64
	goFib = func(n int64) int64 {
		if n == 0 {
			return 0
		}
		if n <= 2 {
			return 1
		}
		return goFib(n-1) + goFib(n-2)
	}
	got := execTrace(t, ct, 0, func(env *interp.Env) {
		env.RegisterExternal("fib", func(args []interp.Val) interp.Val {
			return interp.IntVal(goFib(args[0].I))
		})
	})
	require.Equal(t, int64(21), got)
}

func TestRecursionWithoutAddressBinding(t *testing.T) {
	f := newLoopFixture()
	fib := buildFib(f.mod)
	body := f.main.NewBlock()
	call := body.Append(ir.NewCall(fib.Sig, fib, ir.ConstInt(ir.I32, 8)))
	f.finish(body, body, call)

	entries := []trace.Entry{mainAt(1), mainAt(2)}
	entries = append(entries, fibTraceBlocks(8)...)
	entries = append(entries, mainAt(2), mainAt(1), mainAt(3))
	tr := mustTrace(t, entries...)

	_, err := Build(f.mod, tr, mustFuncAddrs(t, nil, nil))
	require.ErrorContains(t, err, "can't find address for symbol fib")
}

func TestMutableGlobal(t *testing.T) {
	f := newLoopFixture()
	g := f.mod.AddGlobal(&ir.GlobalVariable{
		Name:        "global_int",
		ValueType:   ir.I32,
		Linkage:     ir.ExternalLinkage,
		Initializer: ir.ConstInt(ir.I32, 12),
	})

	// int foo(int num) { global_int = num; return global_int; }
	foo := f.mod.NewFunc("foo", ir.Signature(ir.I32, ir.I32), ir.ExternalLinkage)
	fooBB := foo.NewBlock()
	fooBB.Append(ir.NewStore(foo.Param(0), g))
	ld := fooBB.Append(ir.NewLoad(ir.I32, g))
	fooBB.Append(ir.NewRet(ld))

	body := f.main.NewBlock()
	call := body.Append(ir.NewCall(foo.Sig, foo, ir.ConstInt(ir.I32, 2)))
	f.finish(body, body, call)

	tr := mustTrace(t, mainAt(1), mainAt(2), trace.Mapped("foo", 0), mainAt(2), mainAt(1), mainAt(3))
	ct := mustBuild(t, f, tr, mustFuncAddrs(t, nil, nil))

	// The global is cloned exactly once, without its initializer: mutable
	// globals resolve to the program's own storage at link time.
	jg := ct.Module.Global("global_int")
	require.NotNil(t, jg)
	require.Nil(t, jg.Initializer)
	n := 0
	for _, cand := range ct.Module.Globals {
		if cand.Name == "global_int" {
			n++
		}
	}
	require.Equal(t, 1, n)

	var env *interp.Env
	got := execTrace(t, ct, 0, func(e *interp.Env) { env = e })
	require.Equal(t, int64(2), got)
	require.Equal(t, int64(2), env.GlobalSlot("global_int").V.I)
}

func TestConstGlobalCopiedOnce(t *testing.T) {
	f := newLoopFixture()
	g := f.mod.AddGlobal(&ir.GlobalVariable{
		Name:        "five",
		ValueType:   ir.I32,
		Const:       true,
		Linkage:     ir.InternalLinkage,
		Initializer: ir.ConstInt(ir.I32, 5),
	})

	body := f.main.NewBlock()
	l1 := body.Append(ir.NewLoad(ir.I32, g))
	l2 := body.Append(ir.NewLoad(ir.I32, g))
	sum := body.Append(ir.NewAdd(l1, l2))
	f.finish(body, body, sum)

	tr := mustTrace(t, mainAt(1), mainAt(2), mainAt(1), mainAt(3))
	ct := mustBuild(t, f, tr, mustFuncAddrs(t, nil, nil))

	var copies []*ir.GlobalVariable
	for _, cand := range ct.Module.Globals {
		if cand.Name == "five" {
			copies = append(copies, cand)
		}
	}
	require.Len(t, copies, 1)
	require.True(t, copies[0].Const)
	init, ok := copies[0].Initializer.(*ir.IntConst)
	require.True(t, ok)
	require.Equal(t, int64(5), init.V)

	require.Equal(t, int64(10), execTrace(t, ct, 0, nil))
}

// cstr reads a nul-terminated byte string through an interpreter reference.
func cstr(r *interp.Ref) string {
	chars := r.Slot.V.Agg
	start := 0
	if len(r.Path) > 0 {
		start = r.Path[0]
	}
	var w strings.Builder
	for i := start; i < len(chars) && chars[i].I != 0; i++ {
		w.WriteByte(byte(chars[i].I))
	}
	return w.String()
}

// hostPrintf is a printf stand-in handling %d, capturing output into w.
func hostPrintf(w *strings.Builder) interp.External {
	return func(args []interp.Val) interp.Val {
		format := cstr(args[0].Ptr)
		argi := 1
		for i := 0; i < len(format); i++ {
			if format[i] == '%' && i+1 < len(format) && format[i+1] == 'd' {
				w.WriteString(strconv.FormatInt(args[argi].I, 10))
				argi++
				i++
				continue
			}
			w.WriteByte(format[i])
		}
		return interp.IntVal(int64(len(format)))
	}
}

func TestExternalCallVarargs(t *testing.T) {
	f := newLoopFixture()
	str := ir.ConstCString("abc%d%d%d\n")
	strG := f.mod.AddGlobal(&ir.GlobalVariable{
		Name:        ".str",
		ValueType:   str.Typ,
		Const:       true,
		Linkage:     ir.PrivateLinkage,
		Initializer: str,
	})
	printfSig := ir.VariadicSignature(ir.I32, ir.Pointer(ir.I8))
	printf := f.mod.NewFunc("printf", printfSig, ir.ExternalLinkage)

	body := f.main.NewBlock()
	x1 := body.Append(ir.NewAdd(f.resVal, ir.ConstInt(ir.I32, 1)))
	x2 := body.Append(ir.NewAdd(f.resVal, ir.ConstInt(ir.I32, 2)))
	fmtPtr := ir.ConstGEP(str.Typ, strG, ir.ConstInt(ir.I64, 0), ir.ConstInt(ir.I64, 0))
	body.Append(ir.NewCall(printfSig, printf, fmtPtr, f.resVal, x1, x2))
	f.finish(body, body, f.resVal)

	// The call leaves IR-covered code: a hole follows, then execution
	// resumes in the same block.
	tr := mustTrace(t, mainAt(1), mainAt(2), trace.Unmappable(), mainAt(2), mainAt(1), mainAt(3))
	ct := mustBuild(t, f, tr, mustFuncAddrs(t, nil, nil))

	decl := ct.Module.Function("printf")
	require.NotNil(t, decl)
	require.True(t, decl.IsDeclaration())
	require.Equal(t, 1, callsTo(ct, "printf"))

	var out strings.Builder
	got := execTrace(t, ct, 10, func(env *interp.Env) {
		env.RegisterExternal("printf", hostPrintf(&out))
	})
	require.Equal(t, int64(10), got)
	require.Equal(t, "abc101112\n", out.String())
}

func TestPhiResolvesToDynamicPredecessor(t *testing.T) {
	f := newLoopFixture()
	bb2 := f.main.NewBlock()
	bb3 := f.main.NewBlock()
	bb4 := f.main.NewBlock()

	v1 := bb2.Append(ir.NewAdd(f.resVal, ir.ConstInt(ir.I32, 1)))
	bb2.Append(ir.NewBr(bb3))
	v2 := bb3.Append(ir.NewAdd(f.resVal, ir.ConstInt(ir.I32, 2)))
	bb3.Append(ir.NewBr(bb4))
	phi := bb4.Append(ir.NewPhi(ir.I32).AddIncoming(v1, bb2).AddIncoming(v2, bb3))
	f.finish(bb2, bb4, phi)

	// The trace enters bb4 through bb3, so the phi resolves to v2 and no
	// phi instruction is emitted.
	tr := mustTrace(t, mainAt(1), mainAt(2), mainAt(3), mainAt(4), mainAt(1), mainAt(5))
	ct := mustBuild(t, f, tr, mustFuncAddrs(t, nil, nil))

	for _, op := range opcodes(ct) {
		require.NotEqual(t, ir.OpPhi, op)
	}
	require.Equal(t, int64(2), execTrace(t, ct, 0, nil))
}

func TestIndirectBranchOperandIsDeleted(t *testing.T) {
	f := newLoopFixture()
	tbl := f.mod.AddGlobal(&ir.GlobalVariable{
		Name:      "jump_table",
		ValueType: ir.Pointer(ir.I8),
		Linkage:   ir.InternalLinkage,
	})

	bb2 := f.main.NewBlock()
	bb3 := f.main.NewBlock()
	addr := bb2.Append(ir.NewLoad(ir.Pointer(ir.I8), tbl))
	bb2.Append(ir.NewIndirectBr(addr, bb3))
	next := bb3.Append(ir.NewAdd(f.resVal, ir.ConstInt(ir.I32, 1)))
	f.finish(bb2, bb3, next)

	tr := mustTrace(t, mainAt(1), mainAt(2), mainAt(3), mainAt(1), mainAt(4))
	ct := mustBuild(t, f, tr, mustFuncAddrs(t, nil, nil))

	// The branch is dropped and its address operand dies transitively:
	// the load goes, and with it the cloned global.
	for _, op := range opcodes(ct) {
		require.NotEqual(t, ir.OpIndirectBr, op)
		require.NotEqual(t, ir.OpLoad, op)
	}
	require.Nil(t, ct.Module.Global("jump_table"))
	require.Equal(t, int64(1), execTrace(t, ct, 0, nil))
}

func TestInlineAsmIsCopiedVerbatim(t *testing.T) {
	f := newLoopFixture()
	asmSig := ir.Signature(ir.I32, ir.I32)
	asm := &ir.InlineAsm{Sig: asmSig, Asm: "mov $1, $0", Constraints: "=r,r", SideEffects: true}

	body := f.main.NewBlock()
	body.Append(ir.NewCall(asmSig, asm, f.resVal))
	next := body.Append(ir.NewAdd(f.resVal, ir.ConstInt(ir.I32, 1)))
	f.finish(body, body, next)

	tr := mustTrace(t, mainAt(1), mainAt(2), mainAt(1), mainAt(3))
	ct := mustBuild(t, f, tr, mustFuncAddrs(t, nil, nil))

	found := false
	for _, bb := range ct.Func().Blocks {
		for _, inst := range bb.Instrs {
			if inst.Opcode() == ir.OpCall && inst.IsInlineAsmCall() {
				require.Same(t, asm, inst.Callee())
				found = true
			}
		}
	}
	require.True(t, found)
}

func TestIndirectCallWithKnownIR(t *testing.T) {
	f := newLoopFixture()
	seven := f.mod.NewFunc("seven", ir.Signature(ir.I32), ir.ExternalLinkage)
	seven.NewBlock().Append(ir.NewRet(ir.ConstInt(ir.I32, 7)))
	nine := f.mod.NewFunc("nine", ir.Signature(ir.I32), ir.ExternalLinkage)
	nine.NewBlock().Append(ir.NewRet(ir.ConstInt(ir.I32, 9)))

	body := f.main.NewBlock()
	fp := body.Append(ir.NewSelect(ir.True, seven, nine))
	call := body.Append(ir.NewCall(seven.Sig, fp))
	f.finish(body, body, call)

	// The next mappable entry names the effective callee, which is then
	// inlined like a direct call.
	tr := mustTrace(t, mainAt(1), mainAt(2), trace.Mapped("seven", 0), mainAt(2), mainAt(1), mainAt(3))
	ct := mustBuild(t, f, tr, mustFuncAddrs(t, nil, nil))

	require.Equal(t, 0, callsTo(ct, "seven"))
	require.Equal(t, int64(7), execTrace(t, ct, 0, nil))
}

func TestStopMarkerTerminatesEmission(t *testing.T) {
	f := newLoopFixture()
	g := f.mod.AddGlobal(&ir.GlobalVariable{
		Name: "after_stop", ValueType: ir.I32, Linkage: ir.ExternalLinkage,
	})
	body := f.main.NewBlock()
	next := body.Append(ir.NewAdd(f.resVal, ir.ConstInt(ir.I32, 1)))
	stop := f.finish(body, body, next)

	// Sneak a store in after the stop marker: it must not be emitted.
	ret := stop.Instrs[len(stop.Instrs)-1]
	stop.Remove(ret)
	stop.Append(ir.NewStore(ir.ConstInt(ir.I32, 99), g))
	stop.Append(ret.Clone())

	tr := mustTrace(t, mainAt(1), mainAt(2), mainAt(1), mainAt(3))
	ct := mustBuild(t, f, tr, mustFuncAddrs(t, nil, nil))

	for _, op := range opcodes(ct) {
		require.NotEqual(t, ir.OpStore, op)
	}
	require.Nil(t, ct.Module.Global("after_stop"))
}

func TestMalformedTraces(t *testing.T) {
	newFixture := func() *loopFixture {
		f := newLoopFixture()
		body := f.main.NewBlock()
		next := body.Append(ir.NewAdd(f.resVal, ir.ConstInt(ir.I32, 1)))
		f.finish(body, body, next)
		return f
	}

	t.Run("unexpected hole", func(t *testing.T) {
		f := newFixture()
		tr := mustTrace(t, mainAt(1), trace.Unmappable(), mainAt(2))
		_, err := Build(f.mod, tr, mustFuncAddrs(t, nil, nil))
		require.ErrorContains(t, err, "unexpected unmappable block")
	})

	t.Run("unknown function", func(t *testing.T) {
		f := newFixture()
		tr := mustTrace(t, mainAt(1), trace.Mapped("nonesuch", 0))
		_, err := Build(f.mod, tr, mustFuncAddrs(t, nil, nil))
		require.ErrorContains(t, err, "can't find function nonesuch")
	})

	t.Run("block index out of range", func(t *testing.T) {
		f := newFixture()
		tr := mustTrace(t, mainAt(1), mainAt(99))
		_, err := Build(f.mod, tr, mustFuncAddrs(t, nil, nil))
		require.ErrorContains(t, err, "block index 99 out of range")
	})

	t.Run("no stop marker", func(t *testing.T) {
		f := newFixture()
		tr := mustTrace(t, mainAt(1), mainAt(2), mainAt(1))
		_, err := Build(f.mod, tr, mustFuncAddrs(t, nil, nil))
		require.ErrorContains(t, err, StopTracingName)
	})

	t.Run("no control point", func(t *testing.T) {
		m := ir.NewModule("aot")
		m.NewFunc("main", ir.Signature(ir.I32), ir.ExternalLinkage).NewBlock()
		tr := mustTrace(t, mainAt(0))
		_, err := Build(m, tr, mustFuncAddrs(t, nil, nil))
		require.ErrorContains(t, err, ControlPointName)
	})
}

func TestOutsideTraceAllocaIsRejected(t *testing.T) {
	f := newLoopFixture()
	// An alloca in the (untraced) entry block, referenced by the loop
	// body: the live-variables aggregate is the only legal channel for
	// outside-trace state.
	alloca := ir.NewAlloca(ir.I32)
	br := f.entry.Instrs[0]
	f.entry.Remove(br)
	f.entry.Append(alloca)
	f.entry.Append(br)

	body := f.main.NewBlock()
	next := body.Append(ir.NewLoad(ir.I32, alloca))
	f.finish(body, body, next)

	tr := mustTrace(t, mainAt(1), mainAt(2), mainAt(1), mainAt(3))
	_, err := Build(f.mod, tr, mustFuncAddrs(t, nil, nil))
	require.ErrorContains(t, err, "stack allocation referenced from outside the trace")
}
