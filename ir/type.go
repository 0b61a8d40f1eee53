package ir

import (
	"fmt"
	"strings"
)

// Type describes the type of a Value. Types are structural: two types are
// interchangeable iff Equal reports true. Named struct types compare by name.
type Type interface {
	fmt.Stringer

	// Equal reports whether t and other are the same type.
	Equal(other Type) bool
}

// VoidType is the type of instructions that produce no value.
type VoidType struct{}

// Void is the canonical void type.
var Void = &VoidType{}

// String implements fmt.Stringer.
func (t *VoidType) String() string { return "void" }

// Equal implements Type.Equal.
func (t *VoidType) Equal(other Type) bool {
	_, ok := other.(*VoidType)
	return ok
}

// IntType is an integer type of an arbitrary bit width.
type IntType struct {
	Bits uint32
}

// Pre-allocated integer types for the common widths.
var (
	I1  = &IntType{Bits: 1}
	I8  = &IntType{Bits: 8}
	I16 = &IntType{Bits: 16}
	I32 = &IntType{Bits: 32}
	I64 = &IntType{Bits: 64}
)

// String implements fmt.Stringer.
func (t *IntType) String() string { return fmt.Sprintf("i%d", t.Bits) }

// Equal implements Type.Equal.
func (t *IntType) Equal(other Type) bool {
	o, ok := other.(*IntType)
	return ok && o.Bits == t.Bits
}

// FloatType is an IEEE 754 floating point type of 32 or 64 bits.
type FloatType struct {
	Bits uint32
}

var (
	Float  = &FloatType{Bits: 32}
	Double = &FloatType{Bits: 64}
)

// String implements fmt.Stringer.
func (t *FloatType) String() string {
	if t.Bits == 32 {
		return "float"
	}
	return "double"
}

// Equal implements Type.Equal.
func (t *FloatType) Equal(other Type) bool {
	o, ok := other.(*FloatType)
	return ok && o.Bits == t.Bits
}

// PointerType is a typed pointer, optionally in a non-default address space.
type PointerType struct {
	Elem      Type
	AddrSpace uint32
}

// Pointer returns the pointer type to elem in the default address space.
func Pointer(elem Type) *PointerType { return &PointerType{Elem: elem} }

// String implements fmt.Stringer.
func (t *PointerType) String() string {
	if t.AddrSpace != 0 {
		return fmt.Sprintf("%s addrspace(%d)*", t.Elem, t.AddrSpace)
	}
	return t.Elem.String() + "*"
}

// Equal implements Type.Equal.
func (t *PointerType) Equal(other Type) bool {
	o, ok := other.(*PointerType)
	return ok && o.AddrSpace == t.AddrSpace && o.Elem.Equal(t.Elem)
}

// ArrayType is a fixed-length homogeneous aggregate.
type ArrayType struct {
	Elem Type
	Len  uint64
}

// String implements fmt.Stringer.
func (t *ArrayType) String() string {
	return fmt.Sprintf("[%d x %s]", t.Len, t.Elem)
}

// Equal implements Type.Equal.
func (t *ArrayType) Equal(other Type) bool {
	o, ok := other.(*ArrayType)
	return ok && o.Len == t.Len && o.Elem.Equal(t.Elem)
}

// StructType is a heterogeneous aggregate. A struct with a non-empty Name is
// an identified type and compares by name; a literal struct compares by its
// field list.
type StructType struct {
	Name   string
	Fields []Type
}

// Struct returns a literal struct type with the given field types.
func Struct(fields ...Type) *StructType { return &StructType{Fields: fields} }

// String implements fmt.Stringer.
func (t *StructType) String() string {
	if t.Name != "" {
		return "%" + t.Name
	}
	return t.Body()
}

// Body renders the struct body regardless of whether the type is named.
func (t *StructType) Body() string {
	fields := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		fields[i] = f.String()
	}
	return "{ " + strings.Join(fields, ", ") + " }"
}

// Equal implements Type.Equal.
func (t *StructType) Equal(other Type) bool {
	o, ok := other.(*StructType)
	if !ok {
		return false
	}
	if t.Name != "" || o.Name != "" {
		return t.Name == o.Name
	}
	if len(t.Fields) != len(o.Fields) {
		return false
	}
	for i, f := range t.Fields {
		if !f.Equal(o.Fields[i]) {
			return false
		}
	}
	return true
}

// FuncType is a function signature.
type FuncType struct {
	Ret      Type
	Params   []Type
	Variadic bool
}

// Signature returns a non-variadic function type.
func Signature(ret Type, params ...Type) *FuncType {
	return &FuncType{Ret: ret, Params: params}
}

// VariadicSignature returns a variadic function type.
func VariadicSignature(ret Type, params ...Type) *FuncType {
	return &FuncType{Ret: ret, Params: params, Variadic: true}
}

// String implements fmt.Stringer.
func (t *FuncType) String() string {
	params := make([]string, 0, len(t.Params)+1)
	for _, p := range t.Params {
		params = append(params, p.String())
	}
	if t.Variadic {
		params = append(params, "...")
	}
	return fmt.Sprintf("%s (%s)", t.Ret, strings.Join(params, ", "))
}

// Equal implements Type.Equal.
func (t *FuncType) Equal(other Type) bool {
	o, ok := other.(*FuncType)
	if !ok || o.Variadic != t.Variadic || len(o.Params) != len(t.Params) || !o.Ret.Equal(t.Ret) {
		return false
	}
	for i, p := range t.Params {
		if !p.Equal(o.Params[i]) {
			return false
		}
	}
	return true
}

// aggregateElem resolves the type of the element reached by stepping into an
// aggregate type with the given index.
func aggregateElem(t Type, index uint32) Type {
	switch tt := t.(type) {
	case *StructType:
		if int(index) >= len(tt.Fields) {
			panic(fmt.Sprintf("BUG: struct index %d out of range in %s", index, tt))
		}
		return tt.Fields[index]
	case *ArrayType:
		return tt.Elem
	default:
		panic(fmt.Sprintf("BUG: indexing into non-aggregate type %s", t))
	}
}
