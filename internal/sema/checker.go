package sema

import (
	"fmt"
	"math"

	"wasc/internal/ast"
	"wasc/internal/diag"
	"wasc/internal/source"
	"wasc/internal/types"
)

// bodyChecker types one body: a plain function, one generic
// specialization, or the global-initializer pseudo body (sig == nil).
// It only reads the shared Result tables and only writes its own FuncBody,
// so body checkers run in parallel without coordination beyond the
// instantiation cache.
type bodyChecker struct {
	prog     *ast.Program
	tn       *types.Interner
	reporter diag.Reporter
	res      *Result
	body     *FuncBody
	sig      *FuncSig

	// bind substitutes type-parameter names while checking one
	// specialization; empty otherwise.
	bind map[source.StringID]types.TypeID

	names     wellKnown
	scopes    []scopeFrame
	loopDepth int
}

// wellKnown carries names the checker compares identifiers against,
// interned once before body checking fans out.
type wellKnown struct {
	length source.StringID
	push   source.StringID
}

func internWellKnown(names *source.Interner) wellKnown {
	return wellKnown{
		length: names.Intern("length"),
		push:   names.Intern("push"),
	}
}

type scopeFrame struct {
	names map[source.StringID]LocalID
}

func (bc *bodyChecker) errorf(code diag.Code, span source.Span, format string, args ...any) {
	diag.ReportError(bc.reporter, code, span, fmt.Sprintf(format, args...)).Emit()
}

func (bc *bodyChecker) warnf(code diag.Code, span source.Span, format string, args ...any) {
	diag.ReportWarning(bc.reporter, code, span, fmt.Sprintf(format, args...)).Emit()
}

func (bc *bodyChecker) label(t types.TypeID) string {
	return bc.tn.Format(t, bc.prog.Names)
}

func (bc *bodyChecker) name(id source.StringID) string {
	return bc.prog.Name(id)
}

func (bc *bodyChecker) exprSpan(id ast.ExprID) source.Span {
	if e := bc.prog.Exprs.Get(id); e != nil {
		return e.Span
	}
	return source.Span{}
}

func (bc *bodyChecker) pushScope() {
	bc.scopes = append(bc.scopes, scopeFrame{names: make(map[source.StringID]LocalID)})
}

func (bc *bodyChecker) popScope() {
	bc.scopes = bc.scopes[:len(bc.scopes)-1]
}

// declareLocal adds a slot to the innermost scope. Shadowing an outer
// scope is fine; a duplicate within the same scope is not.
func (bc *bodyChecker) declareLocal(name source.StringID, t types.TypeID, span source.Span) LocalID {
	frame := &bc.scopes[len(bc.scopes)-1]
	if _, exists := frame.names[name]; exists {
		bc.errorf(diag.DuplicateSymbol, span, "'%s' is already declared in this scope", bc.name(name))
	}
	id := LocalID(len(bc.body.Locals))
	bc.body.Locals = append(bc.body.Locals, LocalInfo{Name: name, Type: t})
	frame.names[name] = id
	return id
}

func (bc *bodyChecker) lookupLocal(name source.StringID) (LocalID, bool) {
	for i := len(bc.scopes) - 1; i >= 0; i-- {
		if id, ok := bc.scopes[i].names[name]; ok {
			return id, true
		}
	}
	return 0, false
}

// resolveType turns a type expression into an interned type. bind maps
// type-parameter names (declaration placeholders or specialization
// arguments, depending on the caller).
func resolveType(prog *ast.Program, res *Result, reporter diag.Reporter, bind map[source.StringID]types.TypeID, te ast.TypeExprID) types.TypeID {
	node := prog.Types.Get(te)
	if node == nil {
		return res.Types.Builtins().Invalid
	}
	switch node.Kind {
	case ast.TypeExprNamed:
		data, _ := prog.Types.NamedData(te)
		if data == nil {
			return res.Types.Builtins().Invalid
		}
		if t, ok := bind[data.Name]; ok {
			return t
		}
		if t, ok := res.primByName[data.Name]; ok {
			return t
		}
		if t, ok := res.classByName[data.Name]; ok {
			return t
		}
		diag.ReportError(reporter, diag.UnresolvedSymbol, node.Span,
			fmt.Sprintf("unknown type '%s'", prog.Name(data.Name))).Emit()
		return res.Types.Builtins().Invalid

	case ast.TypeExprArray:
		data, _ := prog.Types.ArrayData(te)
		if data == nil {
			return res.Types.Builtins().Invalid
		}
		elem := resolveType(prog, res, reporter, bind, data.Elem)
		if elem == res.Types.Builtins().Invalid {
			return elem
		}
		if res.Types.Kind(elem) == types.KindVoid {
			diag.ReportError(reporter, diag.TypeMismatch, node.Span, "array element type cannot be void").Emit()
			return res.Types.Builtins().Invalid
		}
		if data.Len == ast.DynamicLen {
			return res.Types.ArrayOf(elem)
		}
		return res.Types.FixedArrayOf(elem, data.Len)
	}
	return res.Types.Builtins().Invalid
}

func (bc *bodyChecker) resolveType(te ast.TypeExprID) types.TypeID {
	return resolveType(bc.prog, bc.res, bc.reporter, bc.bind, te)
}

// assignable reports whether src may flow into a dst slot without an
// explicit cast: exact type, or a subclass reference widening to a base.
func (bc *bodyChecker) assignable(dst, src types.TypeID) bool {
	if dst == src {
		return true
	}
	if bc.tn.Kind(dst) == types.KindClass && bc.tn.Kind(src) == types.KindClass {
		return bc.tn.IsSubclassOf(src, dst)
	}
	return false
}

// litTree reports whether the expression is a bare literal, possibly
// wrapped in groups or a numeric negation. Literal trees adopt their type
// from the other side of a binary operator, so operand typing order
// depends on this.
func (bc *bodyChecker) litTree(id ast.ExprID) bool {
	node := bc.prog.Exprs.Get(id)
	if node == nil {
		return false
	}
	switch node.Kind {
	case ast.ExprLit:
		return true
	case ast.ExprGroup:
		data, _ := bc.prog.Exprs.Group(id)
		return data != nil && bc.litTree(data.Inner)
	case ast.ExprUnary:
		data, _ := bc.prog.Exprs.Unary(id)
		return data != nil && data.Op == ast.UnNeg && bc.litTree(data.Operand)
	}
	return false
}

// litData peels groups down to a literal, or nil.
func (bc *bodyChecker) litData(id ast.ExprID) (*ast.ExprLitData, ast.ExprID) {
	node := bc.prog.Exprs.Get(id)
	if node == nil {
		return nil, ast.NoExprID
	}
	switch node.Kind {
	case ast.ExprLit:
		data, _ := bc.prog.Exprs.Literal(id)
		return data, id
	case ast.ExprGroup:
		if data, _ := bc.prog.Exprs.Group(id); data != nil {
			return bc.litData(data.Inner)
		}
	}
	return nil, ast.NoExprID
}

// constInt folds an integer constant expression: literals, grouping, and
// negation. Anything else is not a compile-time constant here.
func (bc *bodyChecker) constInt(id ast.ExprID) (int64, bool) {
	node := bc.prog.Exprs.Get(id)
	if node == nil {
		return 0, false
	}
	switch node.Kind {
	case ast.ExprLit:
		data, _ := bc.prog.Exprs.Literal(id)
		if data == nil || data.Kind != ast.LitInt || data.Int > math.MaxInt64 {
			return 0, false
		}
		return int64(data.Int), true
	case ast.ExprGroup:
		if data, _ := bc.prog.Exprs.Group(id); data != nil {
			return bc.constInt(data.Inner)
		}
	case ast.ExprUnary:
		if data, _ := bc.prog.Exprs.Unary(id); data != nil && data.Op == ast.UnNeg {
			v, ok := bc.constInt(data.Operand)
			if !ok {
				return 0, false
			}
			return -v, true
		}
	}
	return 0, false
}

// fitsInt checks that a literal magnitude (with an optional pending
// negation) is representable in an integer type.
func fitsInt(mag uint64, neg bool, tt types.Type) bool {
	w := uint(tt.Width)
	switch tt.Kind {
	case types.KindInt:
		if neg {
			return mag <= 1<<(w-1)
		}
		return mag <= 1<<(w-1)-1
	case types.KindUint:
		if neg {
			return mag == 0
		}
		if w == 64 {
			return true
		}
		return mag <= 1<<w-1
	}
	return false
}

// record stores and returns the type of an expression. Every expression
// the checker visits ends up in ExprTypes exactly once.
func (bc *bodyChecker) record(id ast.ExprID, t types.TypeID) types.TypeID {
	bc.body.ExprTypes[id] = t
	return t
}

func (bc *bodyChecker) invalid(id ast.ExprID) types.TypeID {
	return bc.record(id, bc.tn.Builtins().Invalid)
}

// poisoned suppresses cascading diagnostics: once a subexpression failed,
// its parents stay quiet.
func (bc *bodyChecker) poisoned(ts ...types.TypeID) bool {
	invalid := bc.tn.Builtins().Invalid
	for _, t := range ts {
		if t == invalid || t == types.NoTypeID {
			return true
		}
	}
	return false
}
