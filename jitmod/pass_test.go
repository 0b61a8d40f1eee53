package jitmod

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vext01/yk-pv/ir"
	"github.com/vext01/yk-pv/trace"
)

func TestCleanupDropsDeadTails(t *testing.T) {
	f := newLoopFixture()
	fFn := f.mod.NewFunc("f", ir.Signature(ir.I32), ir.ExternalLinkage)
	fFn.NewBlock().Append(ir.NewRet(ir.ConstInt(ir.I32, 30)))

	body := f.main.NewBlock()
	call := body.Append(ir.NewCall(fFn.Sig, fFn))
	f.finish(body, body, call)

	tr := mustTrace(t, mainAt(1), mainAt(2), trace.Mapped("f", 0), mainAt(2), mainAt(1), mainAt(3))
	ct := mustBuild(t, f, tr, mustFuncAddrs(t, nil, nil))

	// The extract of the inbound live variable is dead here: the body
	// overwrites res unconditionally.
	require.Contains(t, opcodes(ct), ir.OpExtractValue)

	Cleanup(ct)

	ops := opcodes(ct)
	require.NotContains(t, ops, ir.OpExtractValue)
	// The value chain feeding the return survives.
	require.Contains(t, ops, ir.OpInsertValue)
	require.Equal(t, ir.OpRet, ops[len(ops)-1])
}

func TestCleanupKeepsSideEffects(t *testing.T) {
	f := newLoopFixture()
	g := f.mod.AddGlobal(&ir.GlobalVariable{
		Name: "sink", ValueType: ir.I32, Linkage: ir.ExternalLinkage,
	})
	body := f.main.NewBlock()
	body.Append(ir.NewStore(ir.ConstInt(ir.I32, 7), g))
	next := body.Append(ir.NewAdd(f.resVal, ir.ConstInt(ir.I32, 1)))
	f.finish(body, body, next)

	tr := mustTrace(t, mainAt(1), mainAt(2), mainAt(1), mainAt(3))
	ct := mustBuild(t, f, tr, mustFuncAddrs(t, nil, nil))
	Cleanup(ct)

	require.Contains(t, opcodes(ct), ir.OpStore)
}
