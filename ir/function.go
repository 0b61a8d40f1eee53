package ir

import "fmt"

// CallConv is the calling convention of a function or call site.
type CallConv byte

const (
	CallConvC CallConv = iota
	CallConvFast
	CallConvCold
)

// Function is a module-level function. A function with no basic blocks is a
// declaration. The value of a Function used as an operand is its address, so
// its Type is a pointer to its signature.
type Function struct {
	Name     string
	Sig      *FuncType
	Linkage  Linkage
	CallConv CallConv
	Params   []*Param
	Blocks   []*BasicBlock
	// CompileUnit is the debug-info compile unit this function was
	// produced from, or nil if the module carries no debug info.
	CompileUnit *MDNode
}

// NewFunction returns a function with parameters allocated from sig. The
// function is not attached to any module.
func NewFunction(name string, sig *FuncType, linkage Linkage) *Function {
	f := &Function{Name: name, Sig: sig, Linkage: linkage}
	for i, pt := range sig.Params {
		f.Params = append(f.Params, &Param{Typ: pt, Index: i, fn: f})
	}
	return f
}

// Type implements Value.Type.
func (f *Function) Type() Type { return Pointer(f.Sig) }

func (f *Function) constant() {}

// IsDeclaration reports whether f has no body.
func (f *Function) IsDeclaration() bool { return len(f.Blocks) == 0 }

// Param returns the i-th formal parameter.
func (f *Function) Param(i int) *Param { return f.Params[i] }

// Block returns the i-th basic block, or nil if the index is out of range.
func (f *Function) Block(i int) *BasicBlock {
	if i < 0 || i >= len(f.Blocks) {
		return nil
	}
	return f.Blocks[i]
}

// NewBlock appends a fresh basic block to f and returns it.
func (f *Function) NewBlock() *BasicBlock {
	bb := &BasicBlock{fn: f}
	f.Blocks = append(f.Blocks, bb)
	return bb
}

// String implements fmt.Stringer for debugging.
func (f *Function) String() string { return "@" + f.Name }

// BasicBlock is a straight-line sequence of instructions within a Function,
// identified by its index in the parent's block list.
type BasicBlock struct {
	Instrs []*Instruction
	fn     *Function
}

// Parent returns the function this block belongs to.
func (bb *BasicBlock) Parent() *Function { return bb.fn }

// Index returns the position of bb within its parent function.
func (bb *BasicBlock) Index() int {
	for i, b := range bb.fn.Blocks {
		if b == bb {
			return i
		}
	}
	panic("BUG: block not found in its parent function")
}

// Append inserts inst at the tail of bb.
func (bb *BasicBlock) Append(inst *Instruction) *Instruction {
	if inst.blk != nil {
		panic("BUG: instruction already inserted into a block")
	}
	inst.blk = bb
	bb.Instrs = append(bb.Instrs, inst)
	return inst
}

// Remove unlinks inst from bb.
func (bb *BasicBlock) Remove(inst *Instruction) {
	for i, in := range bb.Instrs {
		if in == inst {
			bb.Instrs = append(bb.Instrs[:i], bb.Instrs[i+1:]...)
			inst.blk = nil
			return
		}
	}
	panic(fmt.Sprintf("BUG: removing instruction not in block: %v", inst.Opcode()))
}

// String implements fmt.Stringer for debugging.
func (bb *BasicBlock) String() string { return fmt.Sprintf("bb%d", bb.Index()) }
