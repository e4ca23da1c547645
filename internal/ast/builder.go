package ast

import (
	"wasc/internal/source"
)

type Hints struct{ Decls, Stmts, Exprs, Types uint }

// Builder assembles a Program node by node. Front ends and tests construct
// trees through it; DecodeProgram rebuilds one from the wire form.
type Builder struct {
	Files *source.Table
	Names *source.Interner
	Exprs *Exprs
	Stmts *Stmts
	Types *TypeExprs
	Decls *Decls
}

func NewBuilder(hints Hints) *Builder {
	if hints.Decls == 0 {
		hints.Decls = 1 << 6
	}
	if hints.Stmts == 0 {
		hints.Stmts = 1 << 8
	}
	if hints.Exprs == 0 {
		hints.Exprs = 1 << 8
	}
	if hints.Types == 0 {
		hints.Types = 1 << 6
	}
	return &Builder{
		Files: source.NewTable(),
		Names: source.NewInterner(),
		Exprs: NewExprs(hints.Exprs),
		Stmts: NewStmts(hints.Stmts),
		Types: NewTypeExprs(hints.Types),
		Decls: NewDecls(hints.Decls),
	}
}

// Intern is a shorthand for interning an identifier.
func (b *Builder) Intern(name string) source.StringID {
	return b.Names.Intern(name)
}

// Program freezes the builder's arenas into the final tree. The builder
// must not be used afterwards.
func (b *Builder) Program() *Program {
	return &Program{
		Files: b.Files,
		Names: b.Names,
		Exprs: b.Exprs,
		Stmts: b.Stmts,
		Types: b.Types,
		Decls: b.Decls,
	}
}
