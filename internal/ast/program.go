package ast

import (
	"wasc/internal/source"
)

// Program is the complete input tree for one compilation. It is immutable
// once handed to the pipeline; phases attach their results in side tables
// keyed by node IDs instead of mutating nodes.
type Program struct {
	Files *source.Table
	Names *source.Interner
	Exprs *Exprs
	Stmts *Stmts
	Types *TypeExprs
	Decls *Decls
}

// FuncIDs returns all function IDs in declaration order.
func (p *Program) FuncIDs() []FuncID {
	n := p.Decls.Funcs.Len()
	ids := make([]FuncID, 0, n)
	for i := uint32(1); i <= n; i++ {
		ids = append(ids, FuncID(i))
	}
	return ids
}

// ClassIDs returns all class IDs in declaration order.
func (p *Program) ClassIDs() []ClassID {
	n := p.Decls.Classes.Len()
	ids := make([]ClassID, 0, n)
	for i := uint32(1); i <= n; i++ {
		ids = append(ids, ClassID(i))
	}
	return ids
}

// GlobalIDs returns all global IDs in declaration order.
func (p *Program) GlobalIDs() []GlobalID {
	n := p.Decls.Globals.Len()
	ids := make([]GlobalID, 0, n)
	for i := uint32(1); i <= n; i++ {
		ids = append(ids, GlobalID(i))
	}
	return ids
}

// Name resolves an interned identifier for messages.
func (p *Program) Name(id source.StringID) string {
	s, ok := p.Names.Lookup(id)
	if !ok {
		return "<unknown>"
	}
	return s
}
