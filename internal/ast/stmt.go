package ast

import (
	"wasc/internal/source"
)

type StmtKind uint8

const (
	StmtBlock StmtKind = iota
	StmtLet
	StmtAssign
	StmtExpr
	StmtIf
	StmtWhile
	StmtFor
	StmtBreak
	StmtContinue
	StmtReturn
)

type Stmt struct {
	Kind    StmtKind
	Span    source.Span
	Payload PayloadID
}

type StmtBlockData struct {
	Stmts []StmtID
}

// StmtLetData declares a binding. Type and Init are each optional, but at
// least one must be present; reference types additionally require Init.
type StmtLetData struct {
	Name source.StringID
	Type TypeExprID
	Init ExprID
}

// StmtAssignData writes Value into Target, which must be an identifier,
// field access, or index expression.
type StmtAssignData struct {
	Target ExprID
	Value  ExprID
}

type StmtExprData struct {
	Expr ExprID
}

type StmtIfData struct {
	Cond ExprID
	Then StmtID
	Else StmtID // NoStmtID when absent
}

type StmtWhileData struct {
	Cond ExprID
	Body StmtID
}

// StmtForData is the C-style loop; every header slot is optional.
type StmtForData struct {
	Init StmtID
	Cond ExprID
	Post StmtID
	Body StmtID
}

type StmtReturnData struct {
	Value ExprID // NoExprID for bare return
}

// Stmts manages allocation of statement nodes and their payloads.
type Stmts struct {
	Arena   *Arena[Stmt]
	Blocks  *Arena[StmtBlockData]
	Lets    *Arena[StmtLetData]
	Assigns *Arena[StmtAssignData]
	Exprs   *Arena[StmtExprData]
	Ifs     *Arena[StmtIfData]
	Whiles  *Arena[StmtWhileData]
	Fors    *Arena[StmtForData]
	Returns *Arena[StmtReturnData]
}

func NewStmts(capHint uint) *Stmts {
	if capHint == 0 {
		capHint = 1 << 8
	}
	return &Stmts{
		Arena:   NewArena[Stmt](capHint),
		Blocks:  NewArena[StmtBlockData](capHint),
		Lets:    NewArena[StmtLetData](capHint),
		Assigns: NewArena[StmtAssignData](capHint),
		Exprs:   NewArena[StmtExprData](capHint),
		Ifs:     NewArena[StmtIfData](capHint),
		Whiles:  NewArena[StmtWhileData](capHint),
		Fors:    NewArena[StmtForData](capHint),
		Returns: NewArena[StmtReturnData](capHint),
	}
}

func (s *Stmts) new(kind StmtKind, span source.Span, payload PayloadID) StmtID {
	return StmtID(s.Arena.Allocate(Stmt{
		Kind:    kind,
		Span:    span,
		Payload: payload,
	}))
}

func (s *Stmts) Get(id StmtID) *Stmt {
	return s.Arena.Get(uint32(id))
}

func (s *Stmts) Len() uint32 {
	return s.Arena.Len()
}

func (s *Stmts) NewBlock(span source.Span, stmts []StmtID) StmtID {
	payload := s.Blocks.Allocate(StmtBlockData{Stmts: append([]StmtID(nil), stmts...)})
	return s.new(StmtBlock, span, PayloadID(payload))
}

func (s *Stmts) Block(id StmtID) (*StmtBlockData, bool) {
	stmt := s.Get(id)
	if stmt == nil || stmt.Kind != StmtBlock {
		return nil, false
	}
	return s.Blocks.Get(uint32(stmt.Payload)), true
}

func (s *Stmts) NewLet(span source.Span, name source.StringID, typ TypeExprID, init ExprID) StmtID {
	payload := s.Lets.Allocate(StmtLetData{Name: name, Type: typ, Init: init})
	return s.new(StmtLet, span, PayloadID(payload))
}

func (s *Stmts) Let(id StmtID) (*StmtLetData, bool) {
	stmt := s.Get(id)
	if stmt == nil || stmt.Kind != StmtLet {
		return nil, false
	}
	return s.Lets.Get(uint32(stmt.Payload)), true
}

func (s *Stmts) NewAssign(span source.Span, target, value ExprID) StmtID {
	payload := s.Assigns.Allocate(StmtAssignData{Target: target, Value: value})
	return s.new(StmtAssign, span, PayloadID(payload))
}

func (s *Stmts) Assign(id StmtID) (*StmtAssignData, bool) {
	stmt := s.Get(id)
	if stmt == nil || stmt.Kind != StmtAssign {
		return nil, false
	}
	return s.Assigns.Get(uint32(stmt.Payload)), true
}

func (s *Stmts) NewExpr(span source.Span, expr ExprID) StmtID {
	payload := s.Exprs.Allocate(StmtExprData{Expr: expr})
	return s.new(StmtExpr, span, PayloadID(payload))
}

func (s *Stmts) Expr(id StmtID) (*StmtExprData, bool) {
	stmt := s.Get(id)
	if stmt == nil || stmt.Kind != StmtExpr {
		return nil, false
	}
	return s.Exprs.Get(uint32(stmt.Payload)), true
}

func (s *Stmts) NewIf(span source.Span, cond ExprID, then, els StmtID) StmtID {
	payload := s.Ifs.Allocate(StmtIfData{Cond: cond, Then: then, Else: els})
	return s.new(StmtIf, span, PayloadID(payload))
}

func (s *Stmts) If(id StmtID) (*StmtIfData, bool) {
	stmt := s.Get(id)
	if stmt == nil || stmt.Kind != StmtIf {
		return nil, false
	}
	return s.Ifs.Get(uint32(stmt.Payload)), true
}

func (s *Stmts) NewWhile(span source.Span, cond ExprID, body StmtID) StmtID {
	payload := s.Whiles.Allocate(StmtWhileData{Cond: cond, Body: body})
	return s.new(StmtWhile, span, PayloadID(payload))
}

func (s *Stmts) While(id StmtID) (*StmtWhileData, bool) {
	stmt := s.Get(id)
	if stmt == nil || stmt.Kind != StmtWhile {
		return nil, false
	}
	return s.Whiles.Get(uint32(stmt.Payload)), true
}

func (s *Stmts) NewFor(span source.Span, init StmtID, cond ExprID, post, body StmtID) StmtID {
	payload := s.Fors.Allocate(StmtForData{Init: init, Cond: cond, Post: post, Body: body})
	return s.new(StmtFor, span, PayloadID(payload))
}

func (s *Stmts) For(id StmtID) (*StmtForData, bool) {
	stmt := s.Get(id)
	if stmt == nil || stmt.Kind != StmtFor {
		return nil, false
	}
	return s.Fors.Get(uint32(stmt.Payload)), true
}

func (s *Stmts) NewBreak(span source.Span) StmtID {
	return s.new(StmtBreak, span, NoPayloadID)
}

func (s *Stmts) NewContinue(span source.Span) StmtID {
	return s.new(StmtContinue, span, NoPayloadID)
}

func (s *Stmts) NewReturn(span source.Span, value ExprID) StmtID {
	payload := s.Returns.Allocate(StmtReturnData{Value: value})
	return s.new(StmtReturn, span, PayloadID(payload))
}

func (s *Stmts) Return(id StmtID) (*StmtReturnData, bool) {
	stmt := s.Get(id)
	if stmt == nil || stmt.Kind != StmtReturn {
		return nil, false
	}
	return s.Returns.Get(uint32(stmt.Payload)), true
}
