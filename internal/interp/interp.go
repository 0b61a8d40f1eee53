// Package interp is a small evaluator for ir modules. It exists so tests can
// execute a compiled trace and compare its observable effects against the
// AOT program, without involving a machine-code backend. It supports the
// instruction set the trace compiler emits; anything else is an error, not a
// panic, so tests fail with a message.
package interp

import (
	"fmt"

	"github.com/vext01/yk-pv/ir"
)

// Val is a runtime value: an integer, a float, an aggregate, a pointer or a
// function reference, depending on the static type it was produced under.
type Val struct {
	I   int64
	F   float64
	Agg []Val
	Ptr *Ref
	Fn  *ir.Function
}

// IntVal returns an integer value.
func IntVal(v int64) Val { return Val{I: v} }

// Slot is one memory cell (an alloca, or the storage of a global).
type Slot struct {
	V Val
}

// Ref is a pointer value: a memory cell plus an access path into the
// aggregate it holds.
type Ref struct {
	Slot *Slot
	Path []int
}

// Load reads the value the reference points at.
func (r *Ref) Load() Val {
	v := r.Slot.V
	for _, p := range r.Path {
		v = v.Agg[p]
	}
	return v
}

// Store writes the value the reference points at.
func (r *Ref) Store(nv Val) {
	tgt := &r.Slot.V
	for _, p := range r.Path {
		tgt = &tgt.Agg[p]
	}
	*tgt = nv
}

// elem returns a reference one aggregate step deeper.
func (r *Ref) elem(i int) *Ref {
	return &Ref{Slot: r.Slot, Path: append(append([]int(nil), r.Path...), i)}
}

// External is a host binding for a function the module only declares.
type External func(args []Val) Val

// Env holds the mutable execution state of one module: global storage and
// host bindings for external callees.
type Env struct {
	Mod       *ir.Module
	globals   map[*ir.GlobalVariable]*Slot
	externals map[string]External
}

// NewEnv allocates storage for every global in m, initialized from the
// initializers where present and zeroed otherwise.
func NewEnv(m *ir.Module) *Env {
	e := &Env{
		Mod:       m,
		globals:   make(map[*ir.GlobalVariable]*Slot),
		externals: make(map[string]External),
	}
	for _, g := range m.Globals {
		slot := &Slot{V: zeroVal(g.ValueType)}
		e.globals[g] = slot
	}
	for _, g := range m.Globals {
		if g.Initializer != nil {
			v, err := e.constVal(g.Initializer)
			if err == nil {
				e.globals[g].V = v
			}
		}
	}
	return e
}

// RegisterExternal binds a host function to the declared callee name.
func (e *Env) RegisterExternal(name string, fn External) {
	e.externals[name] = fn
}

// GlobalSlot returns the storage of the named global.
func (e *Env) GlobalSlot(name string) *Slot {
	g := e.Mod.Global(name)
	if g == nil {
		return nil
	}
	return e.globals[g]
}

const maxCallDepth = 512

// Call executes f with the given arguments.
func (e *Env) Call(f *ir.Function, args []Val) (Val, error) {
	return e.call(f, args, 0)
}

func (e *Env) call(f *ir.Function, args []Val, depth int) (Val, error) {
	if depth > maxCallDepth {
		return Val{}, fmt.Errorf("call depth exceeded in %s", f.Name)
	}
	if f.IsDeclaration() {
		ext, ok := e.externals[f.Name]
		if !ok {
			return Val{}, fmt.Errorf("no binding for external function %s", f.Name)
		}
		return ext(args), nil
	}
	if len(args) < len(f.Params) {
		return Val{}, fmt.Errorf("%s called with %d args, want %d", f.Name, len(args), len(f.Params))
	}

	fr := &execFrame{env: e, vals: make(map[ir.Value]Val), depth: depth}
	for i, p := range f.Params {
		fr.vals[p] = args[i]
	}

	bb := f.Blocks[0]
	var prev *ir.BasicBlock
	for {
		next, ret, done, err := fr.execBlock(bb, prev)
		if err != nil {
			return Val{}, fmt.Errorf("%s: %w", f.Name, err)
		}
		if done {
			return ret, nil
		}
		prev, bb = bb, next
	}
}

type execFrame struct {
	env   *Env
	vals  map[ir.Value]Val
	depth int
}

// execBlock runs one basic block. It returns the successor block, or the
// function result when a return was executed.
func (fr *execFrame) execBlock(bb, prev *ir.BasicBlock) (next *ir.BasicBlock, ret Val, done bool, err error) {
	for _, inst := range bb.Instrs {
		switch inst.Opcode() {
		case ir.OpPhi:
			v, ok := inst.IncomingForBlock(prev)
			if !ok {
				return nil, Val{}, false, fmt.Errorf("phi has no incoming value for %s", prev)
			}
			ev, err := fr.eval(v)
			if err != nil {
				return nil, Val{}, false, err
			}
			fr.vals[inst] = ev

		case ir.OpRet:
			if inst.NumOperands() == 0 {
				return nil, Val{}, true, nil
			}
			v, err := fr.eval(inst.Operand(0))
			return nil, v, true, err

		case ir.OpBr:
			return inst.Blocks()[0], Val{}, false, nil

		case ir.OpCondBr:
			c, err := fr.eval(inst.Operand(0))
			if err != nil {
				return nil, Val{}, false, err
			}
			if c.I != 0 {
				return inst.Blocks()[0], Val{}, false, nil
			}
			return inst.Blocks()[1], Val{}, false, nil

		case ir.OpSwitch:
			c, err := fr.eval(inst.Operand(0))
			if err != nil {
				return nil, Val{}, false, err
			}
			next := inst.Blocks()[0]
			for n := 1; n < inst.NumOperands(); n++ {
				cv, err := fr.eval(inst.Operand(n))
				if err != nil {
					return nil, Val{}, false, err
				}
				if cv.I == c.I {
					next = inst.Blocks()[n]
					break
				}
			}
			return next, Val{}, false, nil

		case ir.OpUnreachable:
			return nil, Val{}, false, fmt.Errorf("executed unreachable")

		case ir.OpIndirectBr:
			return nil, Val{}, false, fmt.Errorf("indirectbr is not executable here")

		default:
			if err := fr.execValueInstr(inst); err != nil {
				return nil, Val{}, false, err
			}
		}
	}
	return nil, Val{}, false, fmt.Errorf("block %s fell through without a terminator", bb)
}

func (fr *execFrame) execValueInstr(inst *ir.Instruction) error {
	switch inst.Opcode() {
	case ir.OpAlloca:
		fr.vals[inst] = Val{Ptr: &Ref{Slot: &Slot{V: zeroVal(inst.AllocatedType())}}}

	case ir.OpLoad:
		p, err := fr.eval(inst.Operand(0))
		if err != nil {
			return err
		}
		if p.Ptr == nil {
			return fmt.Errorf("load through nil pointer")
		}
		fr.vals[inst] = p.Ptr.Load()

	case ir.OpStore:
		v, err := fr.eval(inst.Operand(0))
		if err != nil {
			return err
		}
		p, err := fr.eval(inst.Operand(1))
		if err != nil {
			return err
		}
		if p.Ptr == nil {
			return fmt.Errorf("store through nil pointer")
		}
		p.Ptr.Store(v)

	case ir.OpGetElementPtr:
		base, err := fr.eval(inst.Operand(0))
		if err != nil {
			return err
		}
		if base.Ptr == nil {
			return fmt.Errorf("getelementptr through nil pointer")
		}
		first, err := fr.eval(inst.Operand(1))
		if err != nil {
			return err
		}
		if first.I != 0 {
			return fmt.Errorf("unsupported non-zero leading getelementptr index %d", first.I)
		}
		ref := base.Ptr
		for n := 2; n < inst.NumOperands(); n++ {
			ix, err := fr.eval(inst.Operand(n))
			if err != nil {
				return err
			}
			ref = ref.elem(int(ix.I))
		}
		fr.vals[inst] = Val{Ptr: ref}

	case ir.OpICmp:
		a, err := fr.eval(inst.Operand(0))
		if err != nil {
			return err
		}
		b, err := fr.eval(inst.Operand(1))
		if err != nil {
			return err
		}
		fr.vals[inst] = IntVal(boolToInt(icmp(inst.Predicate(), a.I, b.I)))

	case ir.OpSelect:
		c, err := fr.eval(inst.Operand(0))
		if err != nil {
			return err
		}
		t, err := fr.eval(inst.Operand(1))
		if err != nil {
			return err
		}
		f, err := fr.eval(inst.Operand(2))
		if err != nil {
			return err
		}
		if c.I != 0 {
			fr.vals[inst] = t
		} else {
			fr.vals[inst] = f
		}

	case ir.OpTrunc, ir.OpZExt, ir.OpSExt, ir.OpBitCast, ir.OpPtrToInt, ir.OpIntToPtr:
		v, err := fr.eval(inst.Operand(0))
		if err != nil {
			return err
		}
		fr.vals[inst] = cast(inst.Opcode(), v, inst.Type())

	case ir.OpExtractValue:
		agg, err := fr.eval(inst.Operand(0))
		if err != nil {
			return err
		}
		v := agg
		for _, ix := range inst.Indices() {
			v = v.Agg[ix]
		}
		fr.vals[inst] = v

	case ir.OpInsertValue:
		agg, err := fr.eval(inst.Operand(0))
		if err != nil {
			return err
		}
		v, err := fr.eval(inst.Operand(1))
		if err != nil {
			return err
		}
		fr.vals[inst] = insertAgg(agg, v, inst.Indices())

	case ir.OpCall:
		return fr.execCall(inst)

	default:
		return fr.execBinOp(inst)
	}
	return nil
}

func (fr *execFrame) execCall(inst *ir.Instruction) error {
	if inst.IsDebugIntrinsic() {
		return nil
	}
	if inst.IsInlineAsmCall() {
		return fmt.Errorf("inline asm is not executable here")
	}

	callee := inst.StaticCallee()
	if callee == nil {
		cv, err := fr.eval(inst.Callee())
		if err != nil {
			return err
		}
		if cv.Fn == nil {
			return fmt.Errorf("indirect call through a non-function value")
		}
		callee = cv.Fn
	}

	args := make([]Val, 0, len(inst.Args()))
	for _, a := range inst.Args() {
		av, err := fr.eval(a)
		if err != nil {
			return err
		}
		args = append(args, av)
	}
	ret, err := fr.env.call(callee, args, fr.depth+1)
	if err != nil {
		return err
	}
	fr.vals[inst] = ret
	return nil
}

func (fr *execFrame) execBinOp(inst *ir.Instruction) error {
	a, err := fr.eval(inst.Operand(0))
	if err != nil {
		return err
	}
	b, err := fr.eval(inst.Operand(1))
	if err != nil {
		return err
	}
	switch inst.Opcode() {
	case ir.OpAdd:
		fr.vals[inst] = IntVal(a.I + b.I)
	case ir.OpSub:
		fr.vals[inst] = IntVal(a.I - b.I)
	case ir.OpMul:
		fr.vals[inst] = IntVal(a.I * b.I)
	case ir.OpSDiv:
		fr.vals[inst] = IntVal(a.I / b.I)
	case ir.OpUDiv:
		fr.vals[inst] = IntVal(int64(uint64(a.I) / uint64(b.I)))
	case ir.OpSRem:
		fr.vals[inst] = IntVal(a.I % b.I)
	case ir.OpURem:
		fr.vals[inst] = IntVal(int64(uint64(a.I) % uint64(b.I)))
	case ir.OpAnd:
		fr.vals[inst] = IntVal(a.I & b.I)
	case ir.OpOr:
		fr.vals[inst] = IntVal(a.I | b.I)
	case ir.OpXor:
		fr.vals[inst] = IntVal(a.I ^ b.I)
	case ir.OpShl:
		fr.vals[inst] = IntVal(a.I << uint64(b.I))
	case ir.OpLShr:
		fr.vals[inst] = IntVal(int64(uint64(a.I) >> uint64(b.I)))
	case ir.OpAShr:
		fr.vals[inst] = IntVal(a.I >> uint64(b.I))
	case ir.OpFAdd:
		fr.vals[inst] = Val{F: a.F + b.F}
	case ir.OpFSub:
		fr.vals[inst] = Val{F: a.F - b.F}
	case ir.OpFMul:
		fr.vals[inst] = Val{F: a.F * b.F}
	case ir.OpFDiv:
		fr.vals[inst] = Val{F: a.F / b.F}
	default:
		return fmt.Errorf("unsupported instruction: %s", inst)
	}
	return nil
}

func (fr *execFrame) eval(v ir.Value) (Val, error) {
	switch vv := v.(type) {
	case *ir.Instruction, *ir.Param:
		val, ok := fr.vals[v]
		if !ok {
			return Val{}, fmt.Errorf("use of a value with no definition: %s", formatV(v))
		}
		return val, nil
	case ir.Constant:
		return fr.env.constVal(vv)
	default:
		return Val{}, fmt.Errorf("unsupported operand kind: %s", formatV(v))
	}
}

func (e *Env) constVal(c ir.Constant) (Val, error) {
	switch cc := c.(type) {
	case *ir.IntConst:
		return IntVal(cc.V), nil
	case *ir.FloatConst:
		return Val{F: cc.V}, nil
	case *ir.ZeroConst:
		return zeroVal(cc.Typ), nil
	case *ir.UndefConst:
		return zeroVal(cc.Typ), nil
	case *ir.StructConst:
		agg := make([]Val, len(cc.Fields))
		for i, f := range cc.Fields {
			v, err := e.constVal(f)
			if err != nil {
				return Val{}, err
			}
			agg[i] = v
		}
		return Val{Agg: agg}, nil
	case *ir.ArrayConst:
		agg := make([]Val, len(cc.Elems))
		for i, el := range cc.Elems {
			v, err := e.constVal(el)
			if err != nil {
				return Val{}, err
			}
			agg[i] = v
		}
		return Val{Agg: agg}, nil
	case *ir.GlobalVariable:
		slot, ok := e.globals[cc]
		if !ok {
			return Val{}, fmt.Errorf("global %s belongs to a different module", cc.Name)
		}
		return Val{Ptr: &Ref{Slot: slot}}, nil
	case *ir.Function:
		return Val{Fn: cc}, nil
	case *ir.ConstExprInst:
		return e.constExprVal(cc)
	default:
		return Val{}, fmt.Errorf("unsupported constant kind %T", c)
	}
}

func (e *Env) constExprVal(cc *ir.ConstExprInst) (Val, error) {
	switch cc.Op {
	case ir.OpBitCast:
		return e.constVal(cc.Ops[0])
	case ir.OpGetElementPtr:
		base, err := e.constVal(cc.Ops[0])
		if err != nil {
			return Val{}, err
		}
		if base.Ptr == nil {
			return Val{}, fmt.Errorf("constant getelementptr over a non-pointer")
		}
		ref := base.Ptr
		for n := 2; n < len(cc.Ops); n++ {
			ix, ok := cc.Ops[n].(*ir.IntConst)
			if !ok {
				return Val{}, fmt.Errorf("non-integer constant getelementptr index")
			}
			ref = ref.elem(int(ix.V))
		}
		return Val{Ptr: ref}, nil
	default:
		return Val{}, fmt.Errorf("unsupported constant expression %s", cc.Op)
	}
}

func zeroVal(t ir.Type) Val {
	switch tt := t.(type) {
	case *ir.StructType:
		agg := make([]Val, len(tt.Fields))
		for i, f := range tt.Fields {
			agg[i] = zeroVal(f)
		}
		return Val{Agg: agg}
	case *ir.ArrayType:
		agg := make([]Val, tt.Len)
		for i := range agg {
			agg[i] = zeroVal(tt.Elem)
		}
		return Val{Agg: agg}
	default:
		return Val{}
	}
}

// insertAgg returns a copy of agg with the element at the index path
// replaced by v.
func insertAgg(agg, v Val, path []uint32) Val {
	if len(path) == 0 {
		return v
	}
	out := Val{Agg: append([]Val(nil), agg.Agg...)}
	out.Agg[path[0]] = insertAgg(out.Agg[path[0]], v, path[1:])
	return out
}

func icmp(pred ir.IntPredicate, a, b int64) bool {
	switch pred {
	case ir.IntEQ:
		return a == b
	case ir.IntNE:
		return a != b
	case ir.IntSLT:
		return a < b
	case ir.IntSLE:
		return a <= b
	case ir.IntSGT:
		return a > b
	case ir.IntSGE:
		return a >= b
	case ir.IntULT:
		return uint64(a) < uint64(b)
	case ir.IntULE:
		return uint64(a) <= uint64(b)
	case ir.IntUGT:
		return uint64(a) > uint64(b)
	case ir.IntUGE:
		return uint64(a) >= uint64(b)
	default:
		panic(int(pred))
	}
}

func cast(op ir.Opcode, v Val, to ir.Type) Val {
	switch op {
	case ir.OpTrunc:
		if it, ok := to.(*ir.IntType); ok && it.Bits < 64 {
			mask := int64(1)<<it.Bits - 1
			return IntVal(v.I & mask)
		}
		return v
	case ir.OpZExt:
		return v
	case ir.OpSExt:
		return v
	default:
		return v
	}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func formatV(v ir.Value) string {
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", v)
}
