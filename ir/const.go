package ir

import "fmt"

// IntConst is an integer constant.
type IntConst struct {
	Typ *IntType
	V   int64
}

// ConstInt returns an integer constant of the given type.
func ConstInt(typ *IntType, v int64) *IntConst { return &IntConst{Typ: typ, V: v} }

// True and False are the canonical i1 constants.
var (
	True  = ConstInt(I1, 1)
	False = ConstInt(I1, 0)
)

func (c *IntConst) Type() Type { return c.Typ }
func (c *IntConst) constant()  {}

// FloatConst is a floating point constant.
type FloatConst struct {
	Typ *FloatType
	V   float64
}

// ConstFloat returns a floating point constant of the given type.
func ConstFloat(typ *FloatType, v float64) *FloatConst { return &FloatConst{Typ: typ, V: v} }

func (c *FloatConst) Type() Type { return c.Typ }
func (c *FloatConst) constant()  {}

// ZeroConst is the zero value of any type: null for pointers, 0 for
// integers, zeroinitializer for aggregates.
type ZeroConst struct {
	Typ Type
}

// ConstZero returns the zero value of typ.
func ConstZero(typ Type) *ZeroConst { return &ZeroConst{Typ: typ} }

func (c *ZeroConst) Type() Type { return c.Typ }
func (c *ZeroConst) constant()  {}

// UndefConst is an undefined value of a given type.
type UndefConst struct {
	Typ Type
}

// ConstUndef returns an undef value of typ.
func ConstUndef(typ Type) *UndefConst { return &UndefConst{Typ: typ} }

func (c *UndefConst) Type() Type { return c.Typ }
func (c *UndefConst) constant()  {}

// StructConst is a constant struct aggregate.
type StructConst struct {
	Typ    *StructType
	Fields []Constant
}

// ConstStruct returns a constant struct with the given fields.
func ConstStruct(typ *StructType, fields ...Constant) *StructConst {
	if len(fields) != len(typ.Fields) {
		panic(fmt.Sprintf("BUG: %d fields for struct type %s", len(fields), typ))
	}
	return &StructConst{Typ: typ, Fields: fields}
}

func (c *StructConst) Type() Type { return c.Typ }
func (c *StructConst) constant()  {}

// ArrayConst is a constant array aggregate. CharArray marks arrays built from
// C string literals, which print as c"..." strings.
type ArrayConst struct {
	Typ       *ArrayType
	Elems     []Constant
	CharArray bool
}

// ConstArray returns a constant array with the given elements.
func ConstArray(typ *ArrayType, elems ...Constant) *ArrayConst {
	return &ArrayConst{Typ: typ, Elems: elems}
}

// ConstCString returns the [n x i8] constant holding s plus a nul terminator.
func ConstCString(s string) *ArrayConst {
	elems := make([]Constant, 0, len(s)+1)
	for i := 0; i < len(s); i++ {
		elems = append(elems, ConstInt(I8, int64(s[i])))
	}
	elems = append(elems, ConstInt(I8, 0))
	typ := &ArrayType{Elem: I8, Len: uint64(len(elems))}
	return &ArrayConst{Typ: typ, Elems: elems, CharArray: true}
}

func (c *ArrayConst) Type() Type { return c.Typ }
func (c *ArrayConst) constant()  {}

// ConstExprInst is a constant expression: an operation over constants whose
// result is itself a constant (e.g. a getelementptr into a global). The
// opcode set is the subset of Opcode meaningful over constants.
type ConstExprInst struct {
	Op Opcode
	// Typ is the result type of the expression.
	Typ Type
	Ops []Constant
	// SrcElem is the source element type for OpGetElementPtr expressions.
	SrcElem Type
}

// ConstExpr builds a constant expression. The result type is taken verbatim;
// callers that rebuild an expression with mapped operands pass the original's
// type, which is unchanged by mapping.
func ConstExpr(op Opcode, typ Type, srcElem Type, ops ...Constant) *ConstExprInst {
	return &ConstExprInst{Op: op, Typ: typ, SrcElem: srcElem, Ops: ops}
}

// ConstGEP builds a constant getelementptr expression over base with constant
// indices, computing the result type by navigating srcElem.
func ConstGEP(srcElem Type, base Constant, indices ...Constant) *ConstExprInst {
	elem := srcElem
	for _, ix := range indices[1:] {
		ic, ok := ix.(*IntConst)
		if !ok {
			panic("BUG: non-integer index in constant getelementptr")
		}
		elem = aggregateElem(elem, uint32(ic.V))
	}
	return &ConstExprInst{Op: OpGetElementPtr, Typ: Pointer(elem), SrcElem: srcElem, Ops: append([]Constant{base}, indices...)}
}

func (c *ConstExprInst) Type() Type { return c.Typ }
func (c *ConstExprInst) constant() {}
