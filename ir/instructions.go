package ir

import (
	"fmt"
	"strings"
)

// Opcode identifies an instruction kind.
type Opcode byte

const (
	OpInvalid Opcode = iota

	OpAlloca
	OpLoad
	OpStore
	OpGetElementPtr

	OpAdd
	OpSub
	OpMul
	OpSDiv
	OpUDiv
	OpSRem
	OpURem
	OpAnd
	OpOr
	OpXor
	OpShl
	OpLShr
	OpAShr

	OpFAdd
	OpFSub
	OpFMul
	OpFDiv

	OpICmp

	OpTrunc
	OpZExt
	OpSExt
	OpPtrToInt
	OpIntToPtr
	OpBitCast

	OpSelect
	OpPhi
	OpCall

	OpRet
	OpBr
	OpCondBr
	OpSwitch
	OpIndirectBr
	OpUnreachable

	OpExtractValue
	OpInsertValue
)

var opcodeNames = [...]string{
	OpInvalid:       "invalid",
	OpAlloca:        "alloca",
	OpLoad:          "load",
	OpStore:         "store",
	OpGetElementPtr: "getelementptr",
	OpAdd:           "add",
	OpSub:           "sub",
	OpMul:           "mul",
	OpSDiv:          "sdiv",
	OpUDiv:          "udiv",
	OpSRem:          "srem",
	OpURem:          "urem",
	OpAnd:           "and",
	OpOr:            "or",
	OpXor:           "xor",
	OpShl:           "shl",
	OpLShr:          "lshr",
	OpAShr:          "ashr",
	OpFAdd:          "fadd",
	OpFSub:          "fsub",
	OpFMul:          "fmul",
	OpFDiv:          "fdiv",
	OpICmp:          "icmp",
	OpTrunc:         "trunc",
	OpZExt:          "zext",
	OpSExt:          "sext",
	OpPtrToInt:      "ptrtoint",
	OpIntToPtr:      "inttoptr",
	OpBitCast:       "bitcast",
	OpSelect:        "select",
	OpPhi:           "phi",
	OpCall:          "call",
	OpRet:           "ret",
	OpBr:            "br",
	OpCondBr:        "br",
	OpSwitch:        "switch",
	OpIndirectBr:    "indirectbr",
	OpUnreachable:   "unreachable",
	OpExtractValue:  "extractvalue",
	OpInsertValue:   "insertvalue",
}

// String implements fmt.Stringer.
func (op Opcode) String() string { return opcodeNames[op] }

// IsTerminator reports whether the opcode terminates a basic block.
func (op Opcode) IsTerminator() bool {
	switch op {
	case OpRet, OpBr, OpCondBr, OpSwitch, OpIndirectBr, OpUnreachable:
		return true
	default:
		return false
	}
}

// IntPredicate is the comparison predicate of an icmp instruction.
type IntPredicate byte

const (
	IntEQ IntPredicate = iota
	IntNE
	IntSLT
	IntSLE
	IntSGT
	IntSGE
	IntULT
	IntULE
	IntUGT
	IntUGE
)

// String implements fmt.Stringer.
func (p IntPredicate) String() string {
	switch p {
	case IntEQ:
		return "eq"
	case IntNE:
		return "ne"
	case IntSLT:
		return "slt"
	case IntSLE:
		return "sle"
	case IntSGT:
		return "sgt"
	case IntSGE:
		return "sge"
	case IntULT:
		return "ult"
	case IntULE:
		return "ule"
	case IntUGT:
		return "ugt"
	case IntUGE:
		return "uge"
	default:
		panic(int(p))
	}
}

// MetadataAttachment is a (kind, node) metadata pair on an instruction.
type MetadataAttachment struct {
	Kind string
	Node *MDNode
}

// Instruction is a single IR instruction. Since Go doesn't have union types,
// we use this flattened type for all instructions, and the meaning of each
// field depends on Opcode:
//
//   - ops holds the value operands. For OpCall the callee is the last
//     operand, after the arguments. For OpPhi, ops are the incoming values,
//     parallel to blocks.
//   - blocks holds block references: branch targets for OpBr/OpCondBr
//     (then, else), [default, case dests...] for OpSwitch, possible
//     destinations for OpIndirectBr, and incoming predecessors for OpPhi.
//   - indices holds the constant aggregate indices of OpExtractValue and
//     OpInsertValue.
type Instruction struct {
	op      Opcode
	typ     Type
	ops     []Value
	blocks  []*BasicBlock
	indices []uint32
	pred    IntPredicate
	// allocType is the allocated element type of OpAlloca.
	allocType Type
	// srcElem is the source element type of OpGetElementPtr.
	srcElem Type
	// sig is the callee signature of OpCall.
	sig *FuncType

	mds []MetadataAttachment
	dbg *DebugLoc
	blk *BasicBlock
}

// Opcode returns the opcode of this instruction.
func (i *Instruction) Opcode() Opcode { return i.op }

// Type implements Value.Type. Instructions that produce no value have type
// void.
func (i *Instruction) Type() Type { return i.typ }

// Parent returns the block this instruction is inserted in, or nil.
func (i *Instruction) Parent() *BasicBlock { return i.blk }

// NumOperands returns the number of value operands.
func (i *Instruction) NumOperands() int { return len(i.ops) }

// Operand returns the idx-th value operand.
func (i *Instruction) Operand(idx int) Value { return i.ops[idx] }

// Operands returns the value operands. The returned slice is the
// instruction's own storage; callers must not grow it.
func (i *Instruction) Operands() []Value { return i.ops }

// SetOperand replaces the idx-th value operand.
func (i *Instruction) SetOperand(idx int, v Value) { i.ops[idx] = v }

// Blocks returns the block references of this instruction.
func (i *Instruction) Blocks() []*BasicBlock { return i.blocks }

// Indices returns the aggregate indices of an extractvalue/insertvalue.
func (i *Instruction) Indices() []uint32 { return i.indices }

// Predicate returns the comparison predicate of an icmp.
func (i *Instruction) Predicate() IntPredicate { return i.pred }

// AllocatedType returns the element type allocated by an alloca.
func (i *Instruction) AllocatedType() Type { return i.allocType }

// SourceElemType returns the source element type of a getelementptr.
func (i *Instruction) SourceElemType() Type { return i.srcElem }

// Callee returns the call target operand of an OpCall.
func (i *Instruction) Callee() Value {
	if i.op != OpCall {
		panic("BUG: Callee on non-call instruction")
	}
	return i.ops[len(i.ops)-1]
}

// StaticCallee returns the statically known called function, or nil for
// indirect and inline-asm calls.
func (i *Instruction) StaticCallee() *Function {
	f, _ := i.Callee().(*Function)
	return f
}

// IsInlineAsmCall reports whether this call targets an inline-asm fragment.
func (i *Instruction) IsInlineAsmCall() bool {
	if i.op != OpCall {
		return false
	}
	_, ok := i.Callee().(*InlineAsm)
	return ok
}

// IsDebugIntrinsic reports whether this is a call to a debug pseudo-function
// (e.g. @llvm.dbg.value).
func (i *Instruction) IsDebugIntrinsic() bool {
	if i.op != OpCall {
		return false
	}
	f := i.StaticCallee()
	return f != nil && strings.HasPrefix(f.Name, "llvm.dbg.")
}

// Sig returns the callee signature of an OpCall.
func (i *Instruction) Sig() *FuncType { return i.sig }

// Args returns the argument operands of an OpCall (the operands minus the
// trailing callee).
func (i *Instruction) Args() []Value {
	if i.op != OpCall {
		panic("BUG: Args on non-call instruction")
	}
	return i.ops[:len(i.ops)-1]
}

// Arg returns the idx-th call argument.
func (i *Instruction) Arg(idx int) Value { return i.Args()[idx] }

// IncomingForBlock returns the phi incoming value for the given predecessor.
func (i *Instruction) IncomingForBlock(bb *BasicBlock) (Value, bool) {
	if i.op != OpPhi {
		panic("BUG: IncomingForBlock on non-phi instruction")
	}
	for n, pred := range i.blocks {
		if pred == bb {
			return i.ops[n], true
		}
	}
	return nil, false
}

// Metadata returns the metadata attachments of this instruction.
func (i *Instruction) Metadata() []MetadataAttachment { return i.mds }

// SetMetadata attaches a metadata node under the given kind.
func (i *Instruction) SetMetadata(kind string, node *MDNode) {
	for n := range i.mds {
		if i.mds[n].Kind == kind {
			i.mds[n].Node = node
			return
		}
	}
	i.mds = append(i.mds, MetadataAttachment{Kind: kind, Node: node})
}

// DebugLoc returns the source location of this instruction, or nil.
func (i *Instruction) DebugLoc() *DebugLoc { return i.dbg }

// SetDebugLoc sets the source location of this instruction.
func (i *Instruction) SetDebugLoc(loc *DebugLoc) { i.dbg = loc }

// Clone returns a copy of this instruction with its own operand, block,
// index and metadata storage. The clone is not inserted into any block. The
// cloned operands still reference the original's values; the caller is
// expected to rewrite them with SetOperand.
func (i *Instruction) Clone() *Instruction {
	n := &Instruction{}
	*n = *i
	n.ops = append([]Value(nil), i.ops...)
	n.blocks = append([]*BasicBlock(nil), i.blocks...)
	n.indices = append([]uint32(nil), i.indices...)
	n.mds = append([]MetadataAttachment(nil), i.mds...)
	n.blk = nil
	return n
}

// String implements fmt.Stringer for debugging and error messages.
func (i *Instruction) String() string {
	var w strings.Builder
	formatInstr(&w, i, func(v Value) string { return formatOperand(v) })
	return w.String()
}

// NewAlloca returns an alloca of one element of elem.
func NewAlloca(elem Type) *Instruction {
	return &Instruction{op: OpAlloca, typ: Pointer(elem), allocType: elem}
}

// NewLoad returns a load of elem through ptr.
func NewLoad(elem Type, ptr Value) *Instruction {
	return &Instruction{op: OpLoad, typ: elem, ops: []Value{ptr}}
}

// NewStore returns a store of v through ptr.
func NewStore(v, ptr Value) *Instruction {
	return &Instruction{op: OpStore, typ: Void, ops: []Value{v, ptr}}
}

// NewGEP returns a getelementptr over base with the given indices. Indices
// past the first must be integer constants when stepping through struct
// fields.
func NewGEP(srcElem Type, base Value, indices ...Value) *Instruction {
	elem := srcElem
	for _, ix := range indices[1:] {
		switch tt := elem.(type) {
		case *StructType:
			ic, ok := ix.(*IntConst)
			if !ok {
				panic("BUG: non-constant index into struct type")
			}
			elem = aggregateElem(tt, uint32(ic.V))
		case *ArrayType:
			elem = tt.Elem
		default:
			panic(fmt.Sprintf("BUG: indexing into non-aggregate type %s", elem))
		}
	}
	return &Instruction{
		op:      OpGetElementPtr,
		typ:     Pointer(elem),
		srcElem: srcElem,
		ops:     append([]Value{base}, indices...),
	}
}

// NewBinOp returns a two-operand arithmetic or bitwise instruction.
func NewBinOp(op Opcode, x, y Value) *Instruction {
	switch op {
	case OpAdd, OpSub, OpMul, OpSDiv, OpUDiv, OpSRem, OpURem,
		OpAnd, OpOr, OpXor, OpShl, OpLShr, OpAShr, OpFAdd, OpFSub, OpFMul, OpFDiv:
	default:
		panic(fmt.Sprintf("BUG: %s is not a binary opcode", op))
	}
	return &Instruction{op: op, typ: x.Type(), ops: []Value{x, y}}
}

// NewAdd returns an integer add.
func NewAdd(x, y Value) *Instruction { return NewBinOp(OpAdd, x, y) }

// NewSub returns an integer sub.
func NewSub(x, y Value) *Instruction { return NewBinOp(OpSub, x, y) }

// NewMul returns an integer mul.
func NewMul(x, y Value) *Instruction { return NewBinOp(OpMul, x, y) }

// NewICmp returns an integer comparison producing an i1.
func NewICmp(pred IntPredicate, x, y Value) *Instruction {
	return &Instruction{op: OpICmp, typ: I1, pred: pred, ops: []Value{x, y}}
}

// NewCast returns a cast of v to the given type.
func NewCast(op Opcode, v Value, to Type) *Instruction {
	switch op {
	case OpTrunc, OpZExt, OpSExt, OpPtrToInt, OpIntToPtr, OpBitCast:
	default:
		panic(fmt.Sprintf("BUG: %s is not a cast opcode", op))
	}
	return &Instruction{op: op, typ: to, ops: []Value{v}}
}

// NewSelect returns a select between t and f on cond.
func NewSelect(cond, t, f Value) *Instruction {
	return &Instruction{op: OpSelect, typ: t.Type(), ops: []Value{cond, t, f}}
}

// NewPhi returns a phi of the given type. Incomings are added with
// AddIncoming.
func NewPhi(typ Type) *Instruction {
	return &Instruction{op: OpPhi, typ: typ}
}

// AddIncoming appends an incoming (value, predecessor) pair to a phi.
func (i *Instruction) AddIncoming(v Value, pred *BasicBlock) *Instruction {
	if i.op != OpPhi {
		panic("BUG: AddIncoming on non-phi instruction")
	}
	i.ops = append(i.ops, v)
	i.blocks = append(i.blocks, pred)
	return i
}

// NewCall returns a call to callee with the given signature and arguments.
// The callee may be a *Function, an *InlineAsm or an arbitrary function
// pointer value.
func NewCall(sig *FuncType, callee Value, args ...Value) *Instruction {
	return &Instruction{
		op:  OpCall,
		typ: sig.Ret,
		sig: sig,
		ops: append(append([]Value(nil), args...), callee),
	}
}

// NewRet returns a return of v; v is nil for a void return.
func NewRet(v Value) *Instruction {
	in := &Instruction{op: OpRet, typ: Void}
	if v != nil {
		in.ops = []Value{v}
	}
	return in
}

// NewBr returns an unconditional branch to dst.
func NewBr(dst *BasicBlock) *Instruction {
	return &Instruction{op: OpBr, typ: Void, blocks: []*BasicBlock{dst}}
}

// NewCondBr returns a conditional branch on cond.
func NewCondBr(cond Value, then, els *BasicBlock) *Instruction {
	return &Instruction{op: OpCondBr, typ: Void, ops: []Value{cond}, blocks: []*BasicBlock{then, els}}
}

// NewSwitch returns a switch on v. Case pairs are added with AddCase; the
// first block is the default destination.
func NewSwitch(v Value, def *BasicBlock) *Instruction {
	return &Instruction{op: OpSwitch, typ: Void, ops: []Value{v}, blocks: []*BasicBlock{def}}
}

// AddCase appends a (value, destination) case to a switch.
func (i *Instruction) AddCase(v Constant, dst *BasicBlock) *Instruction {
	if i.op != OpSwitch {
		panic("BUG: AddCase on non-switch instruction")
	}
	i.ops = append(i.ops, v)
	i.blocks = append(i.blocks, dst)
	return i
}

// NewIndirectBr returns an indirect branch through addr with the given
// possible destinations.
func NewIndirectBr(addr Value, dests ...*BasicBlock) *Instruction {
	return &Instruction{op: OpIndirectBr, typ: Void, ops: []Value{addr}, blocks: dests}
}

// NewUnreachable returns an unreachable terminator.
func NewUnreachable() *Instruction {
	return &Instruction{op: OpUnreachable, typ: Void}
}

// NewExtractValue returns an extractvalue from agg at the given indices.
func NewExtractValue(agg Value, indices ...uint32) *Instruction {
	typ := agg.Type()
	for _, ix := range indices {
		typ = aggregateElem(typ, ix)
	}
	return &Instruction{op: OpExtractValue, typ: typ, ops: []Value{agg}, indices: indices}
}

// NewInsertValue returns an insertvalue of v into agg at the given indices.
func NewInsertValue(agg, v Value, indices ...uint32) *Instruction {
	return &Instruction{op: OpInsertValue, typ: agg.Type(), ops: []Value{agg, v}, indices: indices}
}
