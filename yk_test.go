package yk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vext01/yk-pv/ir"
	"github.com/vext01/yk-pv/jitmod"
)

// testAOTModule builds a minimal interpreter-loop module: main's bb1 is the
// loop header with the control point over a one-field live-vars aggregate,
// bb2 bumps the live variable, bb3 stops tracing.
func testAOTModule() *ir.Module {
	m := ir.NewModule("aot")
	varsTy := ir.Struct(ir.I32)
	cpSig := ir.Signature(varsTy, ir.Pointer(ir.I8), varsTy)
	cp := m.NewFunc(jitmod.ControlPointName, cpSig, ir.ExternalLinkage)
	stop := m.NewFunc(jitmod.StopTracingName, ir.Signature(ir.Void), ir.ExternalLinkage)

	main := m.NewFunc("main", ir.Signature(ir.I32), ir.ExternalLinkage)
	entry := main.NewBlock()
	header := main.NewBlock()
	body := main.NewBlock()
	stopBB := main.NewBlock()

	entry.Append(ir.NewBr(header))
	phi := header.Append(ir.NewPhi(ir.I32).AddIncoming(ir.ConstInt(ir.I32, 0), entry))
	agg := header.Append(ir.NewInsertValue(ir.ConstZero(varsTy), phi, 0))
	cpCall := header.Append(ir.NewCall(cpSig, cp, ir.ConstZero(ir.Pointer(ir.I8)), agg))
	res := header.Append(ir.NewExtractValue(cpCall, 0))
	header.Append(ir.NewBr(body))

	next := body.Append(ir.NewAdd(res, ir.ConstInt(ir.I32, 1)))
	body.Append(ir.NewBr(header))
	phi.AddIncoming(next, body)

	stopBB.Append(ir.NewCall(stop.Sig, stop))
	stopBB.Append(ir.NewRet(ir.ConstInt(ir.I32, 0)))
	return m
}

var testTraceBlocks = []int{1, 2, 1, 3}

func testTraceNames() []string {
	return []string{"main", "main", "main", "main"}
}

func TestCompileTrace(t *testing.T) {
	aot := testAOTModule()
	before := aot.String()

	ct := CompileTrace(aot, testTraceNames(), testTraceBlocks, nil, nil)
	require.NotNil(t, ct)
	require.True(t, strings.HasPrefix(ct.Name, jitmod.TraceFuncPrefix))
	require.Len(t, ct.Func().Blocks, 1)
	require.Empty(t, ct.GlobalMappings)

	// The AOT module came through untouched.
	require.Equal(t, before, aot.String())
}

func TestCompileTraceFatal(t *testing.T) {
	restore := fatal
	defer func() { fatal = restore }()
	var got error
	fatal = func(err error) {
		got = err
		panic("fatal")
	}

	aot := testAOTModule()
	require.PanicsWithValue(t, "fatal", func() {
		// A hole with no preceding external call is malformed.
		CompileTrace(aot, []string{"main", ""}, []int{1, 0}, nil, nil)
	})
	require.ErrorContains(t, got, "unexpected unmappable block")
}

func TestCompileTraceBadEnv(t *testing.T) {
	t.Setenv(PrintIREnvVar, "aot,bogus")
	restore := fatal
	defer func() { fatal = restore }()
	var got error
	fatal = func(err error) {
		got = err
		panic("fatal")
	}

	require.Panics(t, func() {
		CompileTrace(testAOTModule(), testTraceNames(), testTraceBlocks, nil, nil)
	})
	require.ErrorContains(t, got, "invalid parameter for YKD_PRINT_IR: 'bogus'")
}

func TestAOTModuleRegistry(t *testing.T) {
	// The registry is process-wide state; reset it for the test.
	globalAOTMu.Lock()
	globalAOTMod = nil
	globalAOTMu.Unlock()

	aot := testAOTModule()
	RegisterAOTModule(aot)
	require.Panics(t, func() { RegisterAOTModule(aot) })

	m1 := AcquireAOTModule()
	m2 := AcquireAOTModule()
	require.NotSame(t, aot, m1)
	require.NotSame(t, m1, m2)
	require.Equal(t, aot.String(), m1.String())

	ReleaseAOTModule(m1)
	ReleaseAOTModule(m2)
}
