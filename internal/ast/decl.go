package ast

import (
	"wasc/internal/source"
)

type Param struct {
	Name source.StringID
	Type TypeExprID
	Span source.Span
}

// FuncData is one function declaration. A function is either imported
// (no body) or defined (body present); the resolver rejects anything else.
type FuncData struct {
	Name       source.StringID
	TypeParams []source.StringID
	Params     []Param
	Result     TypeExprID // NoTypeExprID for void
	Body       StmtID     // NoStmtID for imported functions
	Span       source.Span

	Exported   bool
	ExportName source.StringID // defaults to Name when absent

	Imported     bool
	ImportModule source.StringID
	ImportName   source.StringID
}

type FieldDef struct {
	Name source.StringID
	Type TypeExprID
	Span source.Span
}

// ClassData is one class declaration. Base names the single superclass by
// identifier; roots leave it absent.
type ClassData struct {
	Name   source.StringID
	Base   source.StringID
	Fields []FieldDef
	Span   source.Span
}

// GlobalData is one module-level variable. Exported globals surface their
// storage address under ExportName.
type GlobalData struct {
	Name       source.StringID
	Type       TypeExprID
	Init       ExprID
	Mutable    bool
	Exported   bool
	ExportName source.StringID
	Span       source.Span
}

// Decls owns the three top-level declaration arenas. Arena order is
// declaration order and every consumer iterates it as-is, which keeps the
// whole pipeline deterministic.
type Decls struct {
	Funcs   *Arena[FuncData]
	Classes *Arena[ClassData]
	Globals *Arena[GlobalData]
}

func NewDecls(capHint uint) *Decls {
	if capHint == 0 {
		capHint = 1 << 6
	}
	return &Decls{
		Funcs:   NewArena[FuncData](capHint),
		Classes: NewArena[ClassData](capHint),
		Globals: NewArena[GlobalData](capHint),
	}
}

func (d *Decls) AddFunc(fn FuncData) FuncID {
	return FuncID(d.Funcs.Allocate(fn))
}

func (d *Decls) Func(id FuncID) *FuncData {
	return d.Funcs.Get(uint32(id))
}

func (d *Decls) AddClass(c ClassData) ClassID {
	return ClassID(d.Classes.Allocate(c))
}

func (d *Decls) Class(id ClassID) *ClassData {
	return d.Classes.Get(uint32(id))
}

func (d *Decls) AddGlobal(g GlobalData) GlobalID {
	return GlobalID(d.Globals.Allocate(g))
}

func (d *Decls) Global(id GlobalID) *GlobalData {
	return d.Globals.Get(uint32(id))
}
