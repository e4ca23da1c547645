package sema

import (
	"wasc/internal/ast"
)

// returnStatus classifies whether control can fall off the end of a
// statement. The analysis is conservative: only shapes it can prove
// closed count, everything else stays open.
type returnStatus uint8

const (
	returnOpen returnStatus = iota
	returnClosed
)

func (bc *bodyChecker) returnStatus(id ast.StmtID) returnStatus {
	stmt := bc.prog.Stmts.Get(id)
	if stmt == nil {
		return returnOpen
	}
	switch stmt.Kind {
	case ast.StmtReturn:
		return returnClosed

	case ast.StmtBlock:
		data, _ := bc.prog.Stmts.Block(id)
		if data == nil {
			return returnOpen
		}
		for _, child := range data.Stmts {
			if bc.returnStatus(child) == returnClosed {
				return returnClosed
			}
		}
		return returnOpen

	case ast.StmtIf:
		data, _ := bc.prog.Stmts.If(id)
		if data == nil || !data.Else.IsValid() {
			return returnOpen
		}
		if bc.returnStatus(data.Then) == returnClosed && bc.returnStatus(data.Else) == returnClosed {
			return returnClosed
		}
		return returnOpen

	case ast.StmtWhile:
		data, _ := bc.prog.Stmts.While(id)
		if data == nil {
			return returnOpen
		}
		// An infinite loop never falls through, unless a break escapes it.
		if bc.isBoolLiteralTrue(data.Cond) && !bc.containsLoopBreak(data.Body) {
			return returnClosed
		}
		return returnOpen

	case ast.StmtFor:
		data, _ := bc.prog.Stmts.For(id)
		if data == nil {
			return returnOpen
		}
		infinite := !data.Cond.IsValid() || bc.isBoolLiteralTrue(data.Cond)
		if infinite && !bc.containsLoopBreak(data.Body) {
			return returnClosed
		}
		return returnOpen
	}
	return returnOpen
}

// diverges reports whether control provably never reaches the statement
// after this one inside the same block.
func (bc *bodyChecker) diverges(id ast.StmtID) bool {
	stmt := bc.prog.Stmts.Get(id)
	if stmt == nil {
		return false
	}
	switch stmt.Kind {
	case ast.StmtReturn, ast.StmtBreak, ast.StmtContinue:
		return true

	case ast.StmtBlock:
		data, _ := bc.prog.Stmts.Block(id)
		if data == nil {
			return false
		}
		for _, child := range data.Stmts {
			if bc.diverges(child) {
				return true
			}
		}
		return false

	case ast.StmtIf:
		data, _ := bc.prog.Stmts.If(id)
		if data == nil || !data.Else.IsValid() {
			return false
		}
		return bc.diverges(data.Then) && bc.diverges(data.Else)

	case ast.StmtWhile:
		data, _ := bc.prog.Stmts.While(id)
		if data == nil {
			return false
		}
		return bc.isBoolLiteralTrue(data.Cond) && !bc.containsLoopBreak(data.Body)

	case ast.StmtFor:
		data, _ := bc.prog.Stmts.For(id)
		if data == nil {
			return false
		}
		infinite := !data.Cond.IsValid() || bc.isBoolLiteralTrue(data.Cond)
		return infinite && !bc.containsLoopBreak(data.Body)
	}
	return false
}

// containsLoopBreak scans for a break bound to the enclosing loop. Breaks
// inside nested loops bind those loops and do not count.
func (bc *bodyChecker) containsLoopBreak(id ast.StmtID) bool {
	stmt := bc.prog.Stmts.Get(id)
	if stmt == nil {
		return false
	}
	switch stmt.Kind {
	case ast.StmtBreak:
		return true
	case ast.StmtBlock:
		data, _ := bc.prog.Stmts.Block(id)
		if data == nil {
			return false
		}
		for _, child := range data.Stmts {
			if bc.containsLoopBreak(child) {
				return true
			}
		}
		return false
	case ast.StmtIf:
		data, _ := bc.prog.Stmts.If(id)
		if data == nil {
			return false
		}
		if bc.containsLoopBreak(data.Then) {
			return true
		}
		return data.Else.IsValid() && bc.containsLoopBreak(data.Else)
	}
	return false
}

// isBoolLiteralTrue peels grouping and checks for the literal true.
func (bc *bodyChecker) isBoolLiteralTrue(id ast.ExprID) bool {
	data, _ := bc.litData(id)
	return data != nil && data.Kind == ast.LitBool && data.Bool
}
