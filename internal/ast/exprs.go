package ast

import (
	"wasc/internal/source"
)

// Exprs manages allocation of expression nodes and their per-kind payloads.
type Exprs struct {
	Arena     *Arena[Expr]
	Idents    *Arena[ExprIdentData]
	Literals  *Arena[ExprLitData]
	Binaries  *Arena[ExprBinaryData]
	Unaries   *Arena[ExprUnaryData]
	Calls     *Arena[ExprCallData]
	Indices   *Arena[ExprIndexData]
	Members   *Arena[ExprMemberData]
	News      *Arena[ExprNewData]
	ArrayLits *Arena[ExprArrayLitData]
	Casts     *Arena[ExprCastData]
	Ternaries *Arena[ExprTernaryData]
	Groups    *Arena[ExprGroupData]
}

func NewExprs(capHint uint) *Exprs {
	if capHint == 0 {
		capHint = 1 << 8
	}
	return &Exprs{
		Arena:     NewArena[Expr](capHint),
		Idents:    NewArena[ExprIdentData](capHint),
		Literals:  NewArena[ExprLitData](capHint),
		Binaries:  NewArena[ExprBinaryData](capHint),
		Unaries:   NewArena[ExprUnaryData](capHint),
		Calls:     NewArena[ExprCallData](capHint),
		Indices:   NewArena[ExprIndexData](capHint),
		Members:   NewArena[ExprMemberData](capHint),
		News:      NewArena[ExprNewData](capHint),
		ArrayLits: NewArena[ExprArrayLitData](capHint),
		Casts:     NewArena[ExprCastData](capHint),
		Ternaries: NewArena[ExprTernaryData](capHint),
		Groups:    NewArena[ExprGroupData](capHint),
	}
}

func (e *Exprs) new(kind ExprKind, span source.Span, payload PayloadID) ExprID {
	return ExprID(e.Arena.Allocate(Expr{
		Kind:    kind,
		Span:    span,
		Payload: payload,
	}))
}

// Get returns the expression header with the given ID.
func (e *Exprs) Get(id ExprID) *Expr {
	return e.Arena.Get(uint32(id))
}

// Len counts allocated expressions.
func (e *Exprs) Len() uint32 {
	return e.Arena.Len()
}

func (e *Exprs) NewIdent(span source.Span, name source.StringID) ExprID {
	payload := e.Idents.Allocate(ExprIdentData{Name: name})
	return e.new(ExprIdent, span, PayloadID(payload))
}

func (e *Exprs) Ident(id ExprID) (*ExprIdentData, bool) {
	expr := e.Get(id)
	if expr == nil || expr.Kind != ExprIdent {
		return nil, false
	}
	return e.Idents.Get(uint32(expr.Payload)), true
}

func (e *Exprs) NewIntLit(span source.Span, value uint64) ExprID {
	payload := e.Literals.Allocate(ExprLitData{Kind: LitInt, Int: value})
	return e.new(ExprLit, span, PayloadID(payload))
}

func (e *Exprs) NewFloatLit(span source.Span, value float64) ExprID {
	payload := e.Literals.Allocate(ExprLitData{Kind: LitFloat, Float: value})
	return e.new(ExprLit, span, PayloadID(payload))
}

func (e *Exprs) NewBoolLit(span source.Span, value bool) ExprID {
	payload := e.Literals.Allocate(ExprLitData{Kind: LitBool, Bool: value})
	return e.new(ExprLit, span, PayloadID(payload))
}

func (e *Exprs) NewStringLit(span source.Span, value source.StringID) ExprID {
	payload := e.Literals.Allocate(ExprLitData{Kind: LitString, Str: value})
	return e.new(ExprLit, span, PayloadID(payload))
}

func (e *Exprs) Literal(id ExprID) (*ExprLitData, bool) {
	expr := e.Get(id)
	if expr == nil || expr.Kind != ExprLit {
		return nil, false
	}
	return e.Literals.Get(uint32(expr.Payload)), true
}

func (e *Exprs) NewBinary(span source.Span, op BinOp, left, right ExprID) ExprID {
	payload := e.Binaries.Allocate(ExprBinaryData{Op: op, Left: left, Right: right})
	return e.new(ExprBinary, span, PayloadID(payload))
}

func (e *Exprs) Binary(id ExprID) (*ExprBinaryData, bool) {
	expr := e.Get(id)
	if expr == nil || expr.Kind != ExprBinary {
		return nil, false
	}
	return e.Binaries.Get(uint32(expr.Payload)), true
}

func (e *Exprs) NewUnary(span source.Span, op UnOp, operand ExprID) ExprID {
	payload := e.Unaries.Allocate(ExprUnaryData{Op: op, Operand: operand})
	return e.new(ExprUnary, span, PayloadID(payload))
}

func (e *Exprs) Unary(id ExprID) (*ExprUnaryData, bool) {
	expr := e.Get(id)
	if expr == nil || expr.Kind != ExprUnary {
		return nil, false
	}
	return e.Unaries.Get(uint32(expr.Payload)), true
}

func (e *Exprs) NewCall(span source.Span, callee source.StringID, typeArgs []TypeExprID, args []ExprID) ExprID {
	payload := e.Calls.Allocate(ExprCallData{
		Callee:   callee,
		Recv:     NoExprID,
		TypeArgs: append([]TypeExprID(nil), typeArgs...),
		Args:     append([]ExprID(nil), args...),
	})
	return e.new(ExprCall, span, PayloadID(payload))
}

// NewMethodCall allocates a method-form call recv.callee(args).
func (e *Exprs) NewMethodCall(span source.Span, recv ExprID, callee source.StringID, args []ExprID) ExprID {
	payload := e.Calls.Allocate(ExprCallData{
		Callee: callee,
		Recv:   recv,
		Args:   append([]ExprID(nil), args...),
	})
	return e.new(ExprCall, span, PayloadID(payload))
}

func (e *Exprs) Call(id ExprID) (*ExprCallData, bool) {
	expr := e.Get(id)
	if expr == nil || expr.Kind != ExprCall {
		return nil, false
	}
	return e.Calls.Get(uint32(expr.Payload)), true
}

func (e *Exprs) NewIndex(span source.Span, target, index ExprID) ExprID {
	payload := e.Indices.Allocate(ExprIndexData{Target: target, Index: index})
	return e.new(ExprIndex, span, PayloadID(payload))
}

func (e *Exprs) Index(id ExprID) (*ExprIndexData, bool) {
	expr := e.Get(id)
	if expr == nil || expr.Kind != ExprIndex {
		return nil, false
	}
	return e.Indices.Get(uint32(expr.Payload)), true
}

func (e *Exprs) NewMember(span source.Span, target ExprID, field source.StringID) ExprID {
	payload := e.Members.Allocate(ExprMemberData{Target: target, Field: field})
	return e.new(ExprMember, span, PayloadID(payload))
}

func (e *Exprs) Member(id ExprID) (*ExprMemberData, bool) {
	expr := e.Get(id)
	if expr == nil || expr.Kind != ExprMember {
		return nil, false
	}
	return e.Members.Get(uint32(expr.Payload)), true
}

func (e *Exprs) NewNew(span source.Span, class TypeExprID, args []ExprID) ExprID {
	payload := e.News.Allocate(ExprNewData{
		Class: class,
		Args:  append([]ExprID(nil), args...),
	})
	return e.new(ExprNew, span, PayloadID(payload))
}

func (e *Exprs) New(id ExprID) (*ExprNewData, bool) {
	expr := e.Get(id)
	if expr == nil || expr.Kind != ExprNew {
		return nil, false
	}
	return e.News.Get(uint32(expr.Payload)), true
}

func (e *Exprs) NewArrayLit(span source.Span, elem TypeExprID, elems []ExprID) ExprID {
	payload := e.ArrayLits.Allocate(ExprArrayLitData{
		Elem:  elem,
		Elems: append([]ExprID(nil), elems...),
	})
	return e.new(ExprArrayLit, span, PayloadID(payload))
}

func (e *Exprs) ArrayLit(id ExprID) (*ExprArrayLitData, bool) {
	expr := e.Get(id)
	if expr == nil || expr.Kind != ExprArrayLit {
		return nil, false
	}
	return e.ArrayLits.Get(uint32(expr.Payload)), true
}

func (e *Exprs) NewCast(span source.Span, value ExprID, target TypeExprID) ExprID {
	payload := e.Casts.Allocate(ExprCastData{Value: value, Target: target})
	return e.new(ExprCast, span, PayloadID(payload))
}

func (e *Exprs) Cast(id ExprID) (*ExprCastData, bool) {
	expr := e.Get(id)
	if expr == nil || expr.Kind != ExprCast {
		return nil, false
	}
	return e.Casts.Get(uint32(expr.Payload)), true
}

func (e *Exprs) NewTernary(span source.Span, cond, then, els ExprID) ExprID {
	payload := e.Ternaries.Allocate(ExprTernaryData{Cond: cond, Then: then, Else: els})
	return e.new(ExprTernary, span, PayloadID(payload))
}

func (e *Exprs) Ternary(id ExprID) (*ExprTernaryData, bool) {
	expr := e.Get(id)
	if expr == nil || expr.Kind != ExprTernary {
		return nil, false
	}
	return e.Ternaries.Get(uint32(expr.Payload)), true
}

func (e *Exprs) NewGroup(span source.Span, inner ExprID) ExprID {
	payload := e.Groups.Allocate(ExprGroupData{Inner: inner})
	return e.new(ExprGroup, span, PayloadID(payload))
}

func (e *Exprs) Group(id ExprID) (*ExprGroupData, bool) {
	expr := e.Get(id)
	if expr == nil || expr.Kind != ExprGroup {
		return nil, false
	}
	return e.Groups.Get(uint32(expr.Payload)), true
}
