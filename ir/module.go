package ir

// DebugCUMetadataName is the named metadata list holding a module's
// compile units.
const DebugCUMetadataName = "llvm.dbg.cu"

// Module is a collection of functions, global variables and named metadata.
type Module struct {
	Name    string
	Funcs   []*Function
	Globals []*GlobalVariable
	NamedMD []*NamedMetadata
}

// NewModule returns an empty module.
func NewModule(name string) *Module { return &Module{Name: name} }

// Function returns the function with the given name, or nil.
func (m *Module) Function(name string) *Function {
	for _, f := range m.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Global returns the global variable with the given name, or nil.
func (m *Module) Global(name string) *GlobalVariable {
	for _, g := range m.Globals {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// AddFunction appends f to the module.
func (m *Module) AddFunction(f *Function) *Function {
	m.Funcs = append(m.Funcs, f)
	return f
}

// NewFunc creates a function and appends it to the module.
func (m *Module) NewFunc(name string, sig *FuncType, linkage Linkage) *Function {
	return m.AddFunction(NewFunction(name, sig, linkage))
}

// AddGlobal appends g to the module.
func (m *Module) AddGlobal(g *GlobalVariable) *GlobalVariable {
	m.Globals = append(m.Globals, g)
	return g
}

// NamedMetadata returns the named metadata list with the given name, or nil.
func (m *Module) NamedMetadata(name string) *NamedMetadata {
	for _, n := range m.NamedMD {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// GetOrInsertNamedMetadata returns the named metadata list with the given
// name, creating it if absent.
func (m *Module) GetOrInsertNamedMetadata(name string) *NamedMetadata {
	if n := m.NamedMetadata(name); n != nil {
		return n
	}
	n := &NamedMetadata{Name: name}
	m.NamedMD = append(m.NamedMD, n)
	return n
}

// CompileUnits scans the module's functions and returns the distinct
// compile-unit nodes they reference, in first-seen order.
func (m *Module) CompileUnits() []*MDNode {
	var units []*MDNode
	seen := map[*MDNode]struct{}{}
	for _, f := range m.Funcs {
		cu := f.CompileUnit
		if cu == nil {
			continue
		}
		if _, ok := seen[cu]; ok {
			continue
		}
		seen[cu] = struct{}{}
		units = append(units, cu)
	}
	return units
}

// RemoveGlobal unlinks g from the module.
func (m *Module) RemoveGlobal(g *GlobalVariable) {
	for i, cand := range m.Globals {
		if cand == g {
			m.Globals = append(m.Globals[:i], m.Globals[i+1:]...)
			return
		}
	}
	panic("BUG: removing global not in module: " + g.Name)
}
