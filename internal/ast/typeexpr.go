package ast

import (
	"wasc/internal/source"
)

type TypeExprKind uint8

const (
	// TypeExprNamed references a primitive, a class, or a generic parameter
	// by name.
	TypeExprNamed TypeExprKind = iota
	// TypeExprArray is T[] or T[N].
	TypeExprArray
)

// DynamicLen marks the resizable array form in TypeExprArrayData.
const DynamicLen = ^uint32(0)

type TypeExpr struct {
	Kind    TypeExprKind
	Span    source.Span
	Payload PayloadID
}

type TypeExprNamedData struct {
	Name source.StringID
}

type TypeExprArrayData struct {
	Elem TypeExprID
	Len  uint32 // DynamicLen for T[]
}

// TypeExprs manages allocation of type expressions.
type TypeExprs struct {
	Arena  *Arena[TypeExpr]
	Named  *Arena[TypeExprNamedData]
	Arrays *Arena[TypeExprArrayData]
}

func NewTypeExprs(capHint uint) *TypeExprs {
	if capHint == 0 {
		capHint = 1 << 6
	}
	return &TypeExprs{
		Arena:  NewArena[TypeExpr](capHint),
		Named:  NewArena[TypeExprNamedData](capHint),
		Arrays: NewArena[TypeExprArrayData](capHint),
	}
}

func (t *TypeExprs) new(kind TypeExprKind, span source.Span, payload PayloadID) TypeExprID {
	return TypeExprID(t.Arena.Allocate(TypeExpr{
		Kind:    kind,
		Span:    span,
		Payload: payload,
	}))
}

func (t *TypeExprs) Get(id TypeExprID) *TypeExpr {
	return t.Arena.Get(uint32(id))
}

func (t *TypeExprs) NewNamed(span source.Span, name source.StringID) TypeExprID {
	payload := t.Named.Allocate(TypeExprNamedData{Name: name})
	return t.new(TypeExprNamed, span, PayloadID(payload))
}

func (t *TypeExprs) NamedData(id TypeExprID) (*TypeExprNamedData, bool) {
	te := t.Get(id)
	if te == nil || te.Kind != TypeExprNamed {
		return nil, false
	}
	return t.Named.Get(uint32(te.Payload)), true
}

func (t *TypeExprs) NewArray(span source.Span, elem TypeExprID, length uint32) TypeExprID {
	payload := t.Arrays.Allocate(TypeExprArrayData{Elem: elem, Len: length})
	return t.new(TypeExprArray, span, PayloadID(payload))
}

func (t *TypeExprs) ArrayData(id TypeExprID) (*TypeExprArrayData, bool) {
	te := t.Get(id)
	if te == nil || te.Kind != TypeExprArray {
		return nil, false
	}
	return t.Arrays.Get(uint32(te.Payload)), true
}
