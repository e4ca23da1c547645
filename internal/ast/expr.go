package ast

import (
	"wasc/internal/source"
)

type ExprKind uint8

const (
	ExprIdent ExprKind = iota
	ExprLit
	ExprBinary
	ExprUnary
	ExprCall
	ExprIndex
	ExprMember
	ExprNew
	ExprArrayLit
	ExprCast
	ExprTernary
	ExprGroup
)

// Expr is the fixed-size node header; Payload indexes the per-kind arena.
type Expr struct {
	Kind    ExprKind
	Span    source.Span
	Payload PayloadID
}

type ExprLitKind uint8

const (
	LitInt ExprLitKind = iota
	LitFloat
	LitBool
	LitString
)

type BinOp uint8

const (
	BinAdd BinOp = iota
	BinSub
	BinMul
	BinDiv
	BinRem
	BinBitAnd
	BinBitOr
	BinBitXor
	BinShl
	BinShr
	BinEq
	BinNe
	BinLt
	BinLe
	BinGt
	BinGe
	BinAnd // short-circuit
	BinOr  // short-circuit
)

func (op BinOp) String() string {
	switch op {
	case BinAdd:
		return "+"
	case BinSub:
		return "-"
	case BinMul:
		return "*"
	case BinDiv:
		return "/"
	case BinRem:
		return "%"
	case BinBitAnd:
		return "&"
	case BinBitOr:
		return "|"
	case BinBitXor:
		return "^"
	case BinShl:
		return "<<"
	case BinShr:
		return ">>"
	case BinEq:
		return "=="
	case BinNe:
		return "!="
	case BinLt:
		return "<"
	case BinLe:
		return "<="
	case BinGt:
		return ">"
	case BinGe:
		return ">="
	case BinAnd:
		return "&&"
	case BinOr:
		return "||"
	}
	return "?"
}

// IsComparison reports whether the operator yields bool from two operands
// of one shared type.
func (op BinOp) IsComparison() bool {
	return op >= BinEq && op <= BinGe
}

// IsShortCircuit reports whether the operator must not evaluate its right
// operand eagerly.
func (op BinOp) IsShortCircuit() bool {
	return op == BinAnd || op == BinOr
}

type UnOp uint8

const (
	UnNeg UnOp = iota
	UnNot
	UnBitNot
)

func (op UnOp) String() string {
	switch op {
	case UnNeg:
		return "-"
	case UnNot:
		return "!"
	case UnBitNot:
		return "~"
	}
	return "?"
}

type ExprIdentData struct {
	Name source.StringID
}

// ExprLitData carries one literal. Kind selects the live field; Int holds
// the magnitude (a leading minus is a separate unary node).
type ExprLitData struct {
	Kind  ExprLitKind
	Int   uint64
	Float float64
	Bool  bool
	Str   source.StringID
}

type ExprBinaryData struct {
	Op    BinOp
	Left  ExprID
	Right ExprID
}

type ExprUnaryData struct {
	Op      UnOp
	Operand ExprID
}

// ExprCallData is a direct call to a named function or intrinsic. Recv is
// set for method-form calls such as arr.push(v).
type ExprCallData struct {
	Callee   source.StringID
	Recv     ExprID
	TypeArgs []TypeExprID
	Args     []ExprID
}

type ExprIndexData struct {
	Target ExprID
	Index  ExprID
}

type ExprMemberData struct {
	Target ExprID
	Field  source.StringID
}

// ExprNewData constructs a class instance. Args initialize the declared
// fields positionally, inherited fields first, in layout order.
type ExprNewData struct {
	Class TypeExprID
	Args  []ExprID
}

// ExprArrayLitData builds an array from element expressions. Elem pins the
// element type when the front end spells it; otherwise it is inferred.
type ExprArrayLitData struct {
	Elem  TypeExprID
	Elems []ExprID
}

type ExprCastData struct {
	Value  ExprID
	Target TypeExprID
}

type ExprTernaryData struct {
	Cond ExprID
	Then ExprID
	Else ExprID
}

type ExprGroupData struct {
	Inner ExprID
}
