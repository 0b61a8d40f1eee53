package yk

import (
	"sync"

	"github.com/vext01/yk-pv/ir"
)

// The AOT module embedded in the running binary is registered once per
// process. It cannot be shared across concurrent compilations (values and
// types are not safe for concurrent rewriting), so each worker takes a deep
// copy, pooled so a worker that finishes hands its copy to the next.
var (
	globalAOTMu  sync.Mutex
	globalAOTMod *ir.Module
	aotPool      sync.Pool
)

// RegisterAOTModule installs the process-wide AOT module. It must be called
// exactly once, before the first compilation.
func RegisterAOTModule(m *ir.Module) {
	globalAOTMu.Lock()
	defer globalAOTMu.Unlock()
	if globalAOTMod != nil {
		panic("BUG: AOT module registered twice")
	}
	globalAOTMod = m
}

// AcquireAOTModule returns a module copy private to the calling worker.
// Copies are pooled; pair with ReleaseAOTModule.
func AcquireAOTModule() *ir.Module {
	if m, ok := aotPool.Get().(*ir.Module); ok {
		return m
	}
	globalAOTMu.Lock()
	src := globalAOTMod
	globalAOTMu.Unlock()
	if src == nil {
		panic("BUG: no AOT module registered")
	}
	return src.Clone()
}

// ReleaseAOTModule returns a worker's module copy to the pool.
func ReleaseAOTModule(m *ir.Module) {
	aotPool.Put(m)
}
