package lower

import (
	"wasc/internal/ast"
	"wasc/internal/rt"
	"wasc/internal/wasm"
)

func (l *funcLowerer) lowerStmt(id ast.StmtID) {
	if l.failed {
		return
	}
	switch st := l.u.prog.Stmts.Get(id); st.Kind {
	case ast.StmtBlock:
		data, _ := l.u.prog.Stmts.Block(id)
		l.pushScope()
		l.lowerStmts(data.Stmts)
		l.popScope()
	case ast.StmtLet:
		l.lowerLet(id)
	case ast.StmtAssign:
		l.lowerAssign(id)
	case ast.StmtExpr:
		l.lowerExprStmt(id)
	case ast.StmtIf:
		l.lowerIf(id)
	case ast.StmtWhile:
		l.lowerWhile(id)
	case ast.StmtFor:
		l.lowerFor(id)
	case ast.StmtBreak:
		frame := l.topLoop()
		l.br(frame.breakLevel)
		l.dead = true
	case ast.StmtContinue:
		frame := l.topLoop()
		l.br(frame.continueLevel)
		l.dead = true
	case ast.StmtReturn:
		l.lowerReturn(id)
	default:
		l.fail(st.Span, "cannot lower this statement")
	}
}

func (l *funcLowerer) topLoop() loopFrame {
	if len(l.loops) == 0 {
		panic("lower: break or continue outside a loop")
	}
	return l.loops[len(l.loops)-1]
}

// lowerStmts emits a statement list. Statements behind an unconditional
// return, break or continue are skipped; the checker already warned about
// them, so no code and no second diagnostic come out of here.
func (l *funcLowerer) lowerStmts(stmts []ast.StmtID) {
	for _, sid := range stmts {
		if l.failed || l.dead {
			return
		}
		l.lowerStmt(sid)
	}
}

func (l *funcLowerer) lowerLet(id ast.StmtID) {
	data, _ := l.u.prog.Stmts.Let(id)
	lid, ok := l.body.LetLocals[id]
	if !ok {
		panic("lower: let without a checked local")
	}
	t := l.body.Locals[lid].Type
	vt, ok := valTypeOf(l.u.res.Types, t)
	if !ok {
		l.fail(l.stmtSpan(id), "cannot materialize a value of this type")
		return
	}
	slot := l.slots.get(vt)
	l.named[lid] = slot
	l.bindSlot(slot)
	if data.Init.IsValid() {
		l.lowerExpr(data.Init)
		if l.u.res.Types.IsReference(t) && l.u.binder.Uses(rt.OpRetain) {
			l.hook(rt.OpRetain)
		}
	} else {
		l.zeroValue(vt)
	}
	l.set(slot)
}

func (l *funcLowerer) zeroValue(vt wasm.ValType) {
	switch vt {
	case wasm.I64:
		l.emit(wasm.I64Const(0))
	case wasm.F32:
		l.emit(wasm.F32Const(0))
	case wasm.F64:
		l.emit(wasm.F64Const(0))
	default:
		l.i32(0)
	}
}

func (l *funcLowerer) lowerExprStmt(id ast.StmtID) {
	data, _ := l.u.prog.Stmts.Expr(id)
	l.lowerExpr(data.Expr)
	if _, valued := valTypeOf(l.u.res.Types, l.exprType(data.Expr)); valued {
		l.op(wasm.OpDrop)
	}
}

func (l *funcLowerer) lowerIf(id ast.StmtID) {
	data, _ := l.u.prog.Stmts.If(id)
	l.lowerExpr(data.Cond)
	l.ifStart(wasm.BlockEmpty)
	l.lowerStmt(data.Then)
	l.dead = false
	if data.Else.IsValid() {
		l.elseStart()
		l.lowerStmt(data.Else)
		l.dead = false
	}
	l.end()
}

// lowerWhile uses the standard shape: an outer block for break, an inner
// loop whose header re-tests the condition, an explicit back edge.
func (l *funcLowerer) lowerWhile(id ast.StmtID) {
	data, _ := l.u.prog.Stmts.While(id)
	l.block(wasm.BlockEmpty)
	breakLevel := l.depth
	l.loop(wasm.BlockEmpty)
	headLevel := l.depth
	l.lowerExpr(data.Cond)
	l.op(wasm.OpI32Eqz)
	l.brIf(breakLevel)
	l.loops = append(l.loops, loopFrame{breakLevel: breakLevel, continueLevel: headLevel})
	l.lowerStmt(data.Body)
	l.loops = l.loops[:len(l.loops)-1]
	l.dead = false
	l.br(headLevel)
	l.end()
	l.end()
}

// lowerFor adds an inner block around the body so continue falls through
// to the post statement before taking the back edge. The init binding
// lives in a scope owned by the loop.
func (l *funcLowerer) lowerFor(id ast.StmtID) {
	data, _ := l.u.prog.Stmts.For(id)
	l.pushScope()
	if data.Init.IsValid() {
		l.lowerStmt(data.Init)
	}
	l.block(wasm.BlockEmpty)
	breakLevel := l.depth
	l.loop(wasm.BlockEmpty)
	headLevel := l.depth
	if data.Cond.IsValid() {
		l.lowerExpr(data.Cond)
		l.op(wasm.OpI32Eqz)
		l.brIf(breakLevel)
	}
	l.block(wasm.BlockEmpty)
	continueLevel := l.depth
	l.loops = append(l.loops, loopFrame{breakLevel: breakLevel, continueLevel: continueLevel})
	l.lowerStmt(data.Body)
	l.loops = l.loops[:len(l.loops)-1]
	l.dead = false
	l.end()
	if data.Post.IsValid() {
		l.lowerStmt(data.Post)
	}
	l.br(headLevel)
	l.end()
	l.end()
	l.popScope()
}

func (l *funcLowerer) lowerReturn(id ast.StmtID) {
	data, _ := l.u.prog.Stmts.Return(id)
	if data.Value.IsValid() {
		l.lowerExpr(data.Value)
	}
	l.op(wasm.OpReturn)
	l.dead = true
}
