// Package yk compiles execution traces of an AOT-compiled program into
// standalone IR functions. The surrounding system records which basic blocks
// a hot interpreter loop executed and hands the record to CompileTrace,
// which stitches a single function out of the AOT module's IR; a machine-code
// backend then lowers the returned module.
package yk

import (
	"fmt"
	"os"

	"github.com/vext01/yk-pv/ir"
	"github.com/vext01/yk-pv/jitmod"
	"github.com/vext01/yk-pv/trace"
)

// CompiledTrace re-exports the jitmod result type for callers that only
// import the top-level package.
type CompiledTrace = jitmod.CompiledTrace

// fatal reports an unrecoverable compilation error and terminates the
// process. Failures of the core are never recoverable in-process: the
// calling layer is expected to have deep-copied its inputs, so nothing is
// poisoned, but the current compilation cannot proceed.
var fatal = func(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

// CompileTrace compiles a trace to an IR module.
//
// The trace is passed in as two parallel arrays of length len(funcNames):
// each (funcNames[i], bbs[i]) pair identifies the basic block at position i.
// funcNames[i] == "" marks an unmappable hole, legal only straight after a
// call into code for which no IR is available. faddrNames/faddrVals bind
// symbol names to the virtual addresses of their AOT machine code, consulted
// for outlined callees.
//
// The returned module contains exactly one defined function, named
// __yk_compiled_trace_<n>. The AOT module is never mutated. Any error is
// fatal to the process.
func CompileTrace(aotMod *ir.Module, funcNames []string, bbs []int, faddrNames []string, faddrVals []uint64) *CompiledTrace {
	dip, err := NewDebugIRPrinter()
	if err != nil {
		fatal(err)
	}

	tr, err := trace.NewFromArrays(funcNames, bbs)
	if err != nil {
		fatal(err)
	}
	faddrs, err := trace.NewFuncAddrs(faddrNames, faddrVals)
	if err != nil {
		fatal(err)
	}

	dip.PrintModule(StageAOT, aotMod)

	ct, err := jitmod.Build(aotMod, tr, faddrs)
	if err != nil {
		fatal(err)
	}

	dip.PrintModule(StageJITPreOpt, ct.Module)
	dip.PrintSBS(ct)

	// Shed the dead tails the assembler leaves behind before handing the
	// module over.
	jitmod.Cleanup(ct)

	dip.PrintModule(StageJITPostOpt, ct.Module)
	return ct
}
