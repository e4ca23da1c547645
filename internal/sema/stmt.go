package sema

import (
	"wasc/internal/ast"
	"wasc/internal/diag"
	"wasc/internal/source"
	"wasc/internal/types"
)

func (bc *bodyChecker) stmtSpan(id ast.StmtID) source.Span {
	if s := bc.prog.Stmts.Get(id); s != nil {
		return s.Span
	}
	return source.Span{}
}

func (bc *bodyChecker) checkStmt(id ast.StmtID) {
	stmt := bc.prog.Stmts.Get(id)
	if stmt == nil {
		return
	}
	switch stmt.Kind {
	case ast.StmtBlock:
		bc.checkBlock(id)
	case ast.StmtLet:
		bc.checkLet(id)
	case ast.StmtAssign:
		bc.checkAssign(id)
	case ast.StmtExpr:
		if data, _ := bc.prog.Stmts.Expr(id); data != nil {
			bc.typeExpr(data.Expr, types.NoTypeID)
		}
	case ast.StmtIf:
		bc.checkIf(id)
	case ast.StmtWhile:
		bc.checkWhile(id)
	case ast.StmtFor:
		bc.checkFor(id)
	case ast.StmtBreak:
		if bc.loopDepth == 0 {
			bc.errorf(diag.TypeMismatch, stmt.Span, "break outside a loop")
		}
	case ast.StmtContinue:
		if bc.loopDepth == 0 {
			bc.errorf(diag.TypeMismatch, stmt.Span, "continue outside a loop")
		}
	case ast.StmtReturn:
		bc.checkReturn(id)
	}
}

func (bc *bodyChecker) checkBlock(id ast.StmtID) {
	data, _ := bc.prog.Stmts.Block(id)
	if data == nil {
		return
	}
	bc.pushScope()
	defer bc.popScope()
	bc.checkStmts(data.Stmts)
}

// checkStmts checks a statement list in order inside the current scope.
// Statements after a proven-diverging one get a single warning for the
// whole stretch, and checking continues so their own errors still surface.
func (bc *bodyChecker) checkStmts(stmts []ast.StmtID) {
	diverged, warned := false, false
	for _, child := range stmts {
		if diverged && !warned {
			bc.warnf(diag.UnreachableCode, bc.stmtSpan(child), "unreachable code")
			warned = true
		}
		bc.checkStmt(child)
		if !diverged && bc.diverges(child) {
			diverged = true
		}
	}
}

func (bc *bodyChecker) checkLet(id ast.StmtID) {
	data, _ := bc.prog.Stmts.Let(id)
	if data == nil {
		return
	}
	span := bc.stmtSpan(id)

	declared := types.NoTypeID
	if data.Type.IsValid() {
		declared = bc.resolveType(data.Type)
	}
	initT := types.NoTypeID
	if data.Init.IsValid() {
		initT = bc.operand(data.Init, declared)
	}

	t := declared
	switch {
	case !data.Type.IsValid() && !data.Init.IsValid():
		bc.errorf(diag.TypeMismatch, span, "let '%s' needs a type or an initializer", bc.name(data.Name))
		t = bc.tn.Builtins().Invalid
	case !data.Type.IsValid():
		t = initT
	case data.Init.IsValid() && !bc.poisoned(declared, initT) && !bc.assignable(declared, initT):
		bc.errorf(diag.TypeMismatch, span, "cannot initialize %s with %s", bc.label(declared), bc.label(initT))
	}

	if !bc.poisoned(t) {
		if bc.tn.Kind(t) == types.KindVoid {
			bc.errorf(diag.TypeMismatch, span, "cannot declare a void binding")
			t = bc.tn.Builtins().Invalid
		} else if bc.tn.IsReference(t) && !data.Init.IsValid() {
			// No null in the language, so a reference slot can never sit
			// uninitialized.
			bc.errorf(diag.TypeMismatch, span,
				"reference binding '%s' needs an initializer", bc.name(data.Name))
		}
	}

	// Declare even on error so later uses bind here instead of cascading.
	local := bc.declareLocal(data.Name, t, span)
	bc.body.LetLocals[id] = local
}

func (bc *bodyChecker) checkAssign(id ast.StmtID) {
	data, _ := bc.prog.Stmts.Assign(id)
	if data == nil {
		return
	}
	span := bc.stmtSpan(id)
	target := bc.prog.Exprs.Get(data.Target)
	if target == nil {
		return
	}
	switch target.Kind {
	case ast.ExprIdent, ast.ExprMember, ast.ExprIndex:
	default:
		bc.errorf(diag.TypeMismatch, span, "cannot assign to this expression")
		bc.typeExpr(data.Target, types.NoTypeID)
		bc.typeExpr(data.Value, types.NoTypeID)
		return
	}

	tt := bc.typeExpr(data.Target, types.NoTypeID)
	vt := bc.operand(data.Value, tt)
	if bc.poisoned(tt) {
		return
	}

	switch target.Kind {
	case ast.ExprIdent:
		if ref, ok := bc.body.Idents[data.Target]; ok && ref.Kind == RefGlobal {
			sym := bc.res.Global(ast.GlobalID(ref.Index))
			if sym != nil && !sym.Mutable {
				bc.errorf(diag.TypeMismatch, span,
					"cannot assign to immutable global '%s'", bc.name(sym.Name))
			}
		}
	case ast.ExprMember:
		md, _ := bc.prog.Exprs.Member(data.Target)
		if md != nil && md.Field == bc.names.length {
			switch bc.tn.Kind(bc.body.ExprTypes[md.Target]) {
			case types.KindArray, types.KindString:
				bc.errorf(diag.TypeMismatch, span, "length is read-only")
			}
		}
	}

	if !bc.poisoned(vt) && !bc.assignable(tt, vt) {
		bc.errorf(diag.TypeMismatch, span, "cannot assign %s to %s", bc.label(vt), bc.label(tt))
	}
}

func (bc *bodyChecker) checkIf(id ast.StmtID) {
	data, _ := bc.prog.Stmts.If(id)
	if data == nil {
		return
	}
	cond := bc.operand(data.Cond, bc.tn.Builtins().Bool)
	if !bc.poisoned(cond) && bc.tn.Kind(cond) != types.KindBool {
		bc.errorf(diag.TypeMismatch, bc.exprSpan(data.Cond),
			"if condition needs bool, got %s", bc.label(cond))
	}
	bc.checkStmt(data.Then)
	if data.Else.IsValid() {
		bc.checkStmt(data.Else)
	}
}

func (bc *bodyChecker) checkWhile(id ast.StmtID) {
	data, _ := bc.prog.Stmts.While(id)
	if data == nil {
		return
	}
	cond := bc.operand(data.Cond, bc.tn.Builtins().Bool)
	if !bc.poisoned(cond) && bc.tn.Kind(cond) != types.KindBool {
		bc.errorf(diag.TypeMismatch, bc.exprSpan(data.Cond),
			"while condition needs bool, got %s", bc.label(cond))
	}
	bc.loopDepth++
	bc.checkStmt(data.Body)
	bc.loopDepth--
}

func (bc *bodyChecker) checkFor(id ast.StmtID) {
	data, _ := bc.prog.Stmts.For(id)
	if data == nil {
		return
	}
	// The header introduces its own scope so the induction variable dies
	// with the loop.
	bc.pushScope()
	defer bc.popScope()
	if data.Init.IsValid() {
		bc.checkStmt(data.Init)
	}
	if data.Cond.IsValid() {
		cond := bc.operand(data.Cond, bc.tn.Builtins().Bool)
		if !bc.poisoned(cond) && bc.tn.Kind(cond) != types.KindBool {
			bc.errorf(diag.TypeMismatch, bc.exprSpan(data.Cond),
				"for condition needs bool, got %s", bc.label(cond))
		}
	}
	bc.loopDepth++
	bc.checkStmt(data.Body)
	bc.loopDepth--
	if data.Post.IsValid() {
		bc.checkStmt(data.Post)
	}
}

func (bc *bodyChecker) checkReturn(id ast.StmtID) {
	data, _ := bc.prog.Stmts.Return(id)
	if data == nil || bc.sig == nil {
		return
	}
	span := bc.stmtSpan(id)
	void := bc.tn.Kind(bc.sig.Result) == types.KindVoid
	if !data.Value.IsValid() {
		if !void {
			bc.errorf(diag.TypeMismatch, span,
				"function '%s' must return %s", bc.name(bc.sig.Name), bc.label(bc.sig.Result))
		}
		return
	}
	if void {
		bc.typeExpr(data.Value, types.NoTypeID)
		bc.errorf(diag.TypeMismatch, span,
			"function '%s' returns no value", bc.name(bc.sig.Name))
		return
	}
	vt := bc.operand(data.Value, bc.sig.Result)
	if !bc.poisoned(vt) && !bc.assignable(bc.sig.Result, vt) {
		bc.errorf(diag.TypeMismatch, span,
			"cannot return %s from a function returning %s", bc.label(vt), bc.label(bc.sig.Result))
	}
}
