package types

import "fmt"

// TypeID uniquely identifies a concrete type inside the interner.
type TypeID uint32

// NoTypeID marks the absence of a type.
const NoTypeID TypeID = 0

// Kind enumerates all supported kinds of types.
type Kind uint8

const (
	KindInvalid Kind = iota
	// KindVoid is the "no result" type of procedures.
	KindVoid
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindArray
	KindClass
	KindFn
	// KindTypeParam stands for an unsubstituted generic parameter. It only
	// appears while checking a generic body; instantiation replaces it with
	// a concrete argument before anything downstream runs.
	KindTypeParam
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindVoid:
		return "void"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindClass:
		return "class"
	case KindFn:
		return "fn"
	case KindTypeParam:
		return "typeparam"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Width captures the precision of integers and floats in bits.
type Width uint8

const (
	Width8  Width = 8
	Width16 Width = 16
	Width32 Width = 32
	Width64 Width = 64
)

// ArrayDynamicLength marks arrays whose length is a run-time property.
const ArrayDynamicLength = ^uint32(0)

// Type is a compact structural descriptor. Payload indexes a side table for
// class, fn and type-param kinds.
type Type struct {
	Kind    Kind
	Elem    TypeID
	Count   uint32 // for arrays (ArrayDynamicLength means resizable)
	Width   Width  // for numeric primitives
	Payload uint32
}

// IsNumeric reports whether the type is an integer or float.
func (t Type) IsNumeric() bool {
	return t.Kind == KindInt || t.Kind == KindUint || t.Kind == KindFloat
}

// IsInteger reports whether the type is a signed or unsigned integer.
func (t Type) IsInteger() bool {
	return t.Kind == KindInt || t.Kind == KindUint
}

// IsReference reports whether values of the type are pointers into the
// managed heap.
func (t Type) IsReference() bool {
	return t.Kind == KindString || t.Kind == KindArray || t.Kind == KindClass
}

// MakeInt describes a signed integer of the given width.
func MakeInt(width Width) Type {
	return Type{Kind: KindInt, Width: width}
}

// MakeUint describes an unsigned integer of the given width.
func MakeUint(width Width) Type {
	return Type{Kind: KindUint, Width: width}
}

// MakeFloat describes a floating-point type of the given width.
func MakeFloat(width Width) Type {
	return Type{Kind: KindFloat, Width: width}
}

// MakeArray describes an array of elem. Use ArrayDynamicLength for the
// resizable form.
func MakeArray(elem TypeID, count uint32) Type {
	return Type{Kind: KindArray, Elem: elem, Count: count}
}
