// Package jitmod constructs a new IR module from a trace: given a read-only
// AOT module and an ordered record of the basic blocks an interpreter loop
// executed, it stitches together a single standalone function that replays
// the traced path, inlining across calls, outlining recursion, and resolving
// values whose definitions lie outside the traced region.
package jitmod

import (
	"errors"
	"math"
	"sync/atomic"

	"github.com/vext01/yk-pv/ir"
	"github.com/vext01/yk-pv/trace"
)

const (
	// TraceFuncPrefix prefixes the name of every compiled-trace function.
	TraceFuncPrefix = "__yk_compiled_trace_"

	// StartTracingName is the symbol marking the start of the traced
	// region in the AOT module.
	StartTracingName = "__yktrace_start_tracing"

	// StopTracingName is the symbol marking the end of the traced region.
	StopTracingName = "__yktrace_stop_tracing"

	// ControlPointName is the interpreter's control point. Its call site
	// carries the live-variables aggregate.
	ControlPointName = "yk_new_control_point"
)

// controlPointArgIdx is the control-point argument index holding the
// live-variables aggregate.
const controlPointArgIdx = 1

// An atomic counter used to issue compiled traces with unique names.
var nextTraceIdx uint64

// CompiledTrace is the result of one trace compilation. Ownership of Module
// transfers to the caller.
type CompiledTrace struct {
	// Module holds exactly one defined function (the compiled trace) plus
	// the globals and declarations it references.
	Module *ir.Module

	// Name is the name of the compiled-trace function.
	Name string

	// GlobalMappings binds the names of outlined callees to the virtual
	// addresses of their AOT-compiled machine code. The backend installs
	// these so the generated code can call them directly.
	GlobalMappings map[string]uint64

	revMap map[*ir.Instruction]*ir.Instruction
}

// Func returns the compiled-trace function.
func (ct *CompiledTrace) Func() *ir.Function {
	f := ct.Module.Function(ct.Name)
	if f == nil {
		panic("BUG: compiled trace function missing from its module")
	}
	return f
}

// AOTSource returns the AOT instruction a compiled instruction was cloned
// from, or nil if it was synthesized (e.g. the terminating return).
func (ct *CompiledTrace) AOTSource(inst *ir.Instruction) *ir.Instruction {
	return ct.revMap[inst]
}

// Build compiles the trace into a fresh module containing one function named
// __yk_compiled_trace_<n>. The AOT module is never mutated.
func Build(aot *ir.Module, tr *trace.Trace, faddrs *trace.FuncAddrs) (*CompiledTrace, error) {
	idx := atomic.AddUint64(&nextTraceIdx, 1) - 1
	if idx == math.MaxUint64 {
		return nil, errors.New("trace index counter overflowed")
	}

	b := &builder{
		aot:    aot,
		tr:     tr,
		faddrs: faddrs,
		vmap:   make(map[ir.Value]ir.Value),
		revMap: make(map[*ir.Instruction]*ir.Instruction),
		gmaps:  make(map[string]uint64),
	}
	if err := b.initialize(idx); err != nil {
		return nil, err
	}
	return b.run()
}
