package sema

import (
	"wasc/internal/ast"
	"wasc/internal/diag"
	"wasc/internal/types"
)

// typeExpr types one expression and records the result. want is a
// contextual hint, NoTypeID when the context has no expectation; hints
// steer literal adoption and inference but enforcement stays with the
// caller. Errors record Invalid, and operations over Invalid operands stay
// silent so one mistake reports once.
func (bc *bodyChecker) typeExpr(id ast.ExprID, want types.TypeID) types.TypeID {
	node := bc.prog.Exprs.Get(id)
	if node == nil {
		return bc.tn.Builtins().Invalid
	}
	switch node.Kind {
	case ast.ExprLit:
		return bc.typeLit(id, want)
	case ast.ExprIdent:
		return bc.typeIdent(id)
	case ast.ExprGroup:
		data, _ := bc.prog.Exprs.Group(id)
		if data == nil {
			return bc.invalid(id)
		}
		return bc.record(id, bc.typeExpr(data.Inner, want))
	case ast.ExprUnary:
		return bc.typeUnary(id, want)
	case ast.ExprBinary:
		return bc.typeBinary(id, want)
	case ast.ExprTernary:
		return bc.typeTernary(id, want)
	case ast.ExprMember:
		return bc.typeMember(id)
	case ast.ExprIndex:
		return bc.typeIndex(id)
	case ast.ExprNew:
		return bc.typeNew(id)
	case ast.ExprArrayLit:
		return bc.typeArrayLit(id, want)
	case ast.ExprCast:
		return bc.typeCast(id)
	case ast.ExprCall:
		return bc.typeCall(id, want)
	}
	return bc.invalid(id)
}

// operand types an expression that must produce a value: void results are
// rejected here so every operator sees usable inputs.
func (bc *bodyChecker) operand(id ast.ExprID, want types.TypeID) types.TypeID {
	t := bc.typeExpr(id, want)
	if bc.tn.Kind(t) == types.KindVoid {
		bc.errorf(diag.TypeMismatch, bc.exprSpan(id), "void result used as a value")
		bc.body.ExprTypes[id] = bc.tn.Builtins().Invalid
		return bc.tn.Builtins().Invalid
	}
	return t
}

func (bc *bodyChecker) typeLit(id ast.ExprID, want types.TypeID) types.TypeID {
	data, _ := bc.prog.Exprs.Literal(id)
	if data == nil {
		return bc.invalid(id)
	}
	b := bc.tn.Builtins()
	switch data.Kind {
	case ast.LitInt:
		return bc.record(id, bc.adoptIntLit(id, data.Int, false, want))
	case ast.LitFloat:
		if bc.tn.Kind(want) == types.KindFloat {
			return bc.record(id, want)
		}
		return bc.record(id, b.F64)
	case ast.LitBool:
		return bc.record(id, b.Bool)
	case ast.LitString:
		return bc.record(id, b.String)
	}
	return bc.invalid(id)
}

// adoptIntLit picks the type of an integer literal: the hint when the
// value fits it, otherwise the i32 default. The default is a hard limit;
// a literal too wide for i32 must gain context rather than silently widen.
func (bc *bodyChecker) adoptIntLit(at ast.ExprID, mag uint64, neg bool, want types.TypeID) types.TypeID {
	b := bc.tn.Builtins()
	if want != types.NoTypeID {
		if tt, ok := bc.tn.Lookup(want); ok {
			if tt.IsInteger() && fitsInt(mag, neg, tt) {
				return want
			}
			if tt.Kind == types.KindFloat {
				return want
			}
		}
	}
	if !fitsInt(mag, neg, bc.tn.MustLookup(b.I32)) {
		sign := ""
		if neg {
			sign = "-"
		}
		bc.errorf(diag.TypeMismatch, bc.exprSpan(at), "integer literal %s%d overflows i32", sign, mag)
		return b.Invalid
	}
	return b.I32
}

func (bc *bodyChecker) typeIdent(id ast.ExprID) types.TypeID {
	data, _ := bc.prog.Exprs.Ident(id)
	if data == nil {
		return bc.invalid(id)
	}
	if local, ok := bc.lookupLocal(data.Name); ok {
		bc.body.Idents[id] = Ref{Kind: RefLocal, Index: uint32(local)}
		return bc.record(id, bc.body.Locals[local].Type)
	}
	if gid, ok := bc.res.GlobalByName(data.Name); ok {
		sym := bc.res.Global(gid)
		if sym.Type == types.NoTypeID {
			bc.errorf(diag.UnresolvedSymbol, bc.exprSpan(id),
				"global '%s' used before its declaration", bc.name(data.Name))
			return bc.invalid(id)
		}
		bc.body.Idents[id] = Ref{Kind: RefGlobal, Index: uint32(gid)}
		return bc.record(id, sym.Type)
	}
	if _, ok := bc.res.FuncByName(data.Name); ok {
		bc.errorf(diag.TypeMismatch, bc.exprSpan(id),
			"function '%s' is not a value; call it", bc.name(data.Name))
		return bc.invalid(id)
	}
	bc.errorf(diag.UnresolvedSymbol, bc.exprSpan(id), "undefined name '%s'", bc.name(data.Name))
	return bc.invalid(id)
}

func (bc *bodyChecker) typeUnary(id ast.ExprID, want types.TypeID) types.TypeID {
	data, _ := bc.prog.Exprs.Unary(id)
	if data == nil {
		return bc.invalid(id)
	}
	switch data.Op {
	case ast.UnNeg:
		// A negated integer literal is typed as one signed value so that
		// -128 fits i8 even though +128 does not.
		if lit, litID := bc.litData(data.Operand); lit != nil && lit.Kind == ast.LitInt {
			t := bc.adoptIntLit(id, lit.Int, true, want)
			if tt, ok := bc.tn.Lookup(t); ok && tt.Kind == types.KindUint {
				bc.errorf(diag.TypeMismatch, bc.exprSpan(id),
					"unary '-' cannot produce the unsigned type %s", bc.label(t))
				t = bc.tn.Builtins().Invalid
			}
			bc.recordThrough(data.Operand, litID, t)
			return bc.record(id, t)
		}
		t := bc.operand(data.Operand, want)
		if bc.poisoned(t) {
			return bc.invalid(id)
		}
		tt := bc.tn.MustLookup(t)
		if tt.Kind == types.KindUint {
			bc.errorf(diag.TypeMismatch, bc.exprSpan(id),
				"unary '-' needs a signed operand, got %s", bc.label(t))
			return bc.invalid(id)
		}
		if !tt.IsNumeric() {
			bc.errorf(diag.TypeMismatch, bc.exprSpan(id),
				"unary '-' needs a numeric operand, got %s", bc.label(t))
			return bc.invalid(id)
		}
		return bc.record(id, t)

	case ast.UnNot:
		t := bc.operand(data.Operand, bc.tn.Builtins().Bool)
		if bc.poisoned(t) {
			return bc.invalid(id)
		}
		if bc.tn.Kind(t) != types.KindBool {
			bc.errorf(diag.TypeMismatch, bc.exprSpan(id), "unary '!' needs bool, got %s", bc.label(t))
			return bc.invalid(id)
		}
		return bc.record(id, t)

	case ast.UnBitNot:
		hint := types.NoTypeID
		if tt, ok := bc.tn.Lookup(want); ok && tt.IsInteger() {
			hint = want
		}
		t := bc.operand(data.Operand, hint)
		if bc.poisoned(t) {
			return bc.invalid(id)
		}
		if tt := bc.tn.MustLookup(t); !tt.IsInteger() {
			bc.errorf(diag.TypeMismatch, bc.exprSpan(id),
				"unary '~' needs an integer operand, got %s", bc.label(t))
			return bc.invalid(id)
		}
		return bc.record(id, t)
	}
	return bc.invalid(id)
}

// recordThrough writes t for every node from top down to the literal leaf:
// the unary's group wrappers and the literal itself.
func (bc *bodyChecker) recordThrough(top, leaf ast.ExprID, t types.TypeID) {
	for id := top; id.IsValid(); {
		bc.body.ExprTypes[id] = t
		if id == leaf {
			return
		}
		data, _ := bc.prog.Exprs.Group(id)
		if data == nil {
			return
		}
		id = data.Inner
	}
}

func (bc *bodyChecker) typeBinary(id ast.ExprID, want types.TypeID) types.TypeID {
	data, _ := bc.prog.Exprs.Binary(id)
	if data == nil {
		return bc.invalid(id)
	}
	b := bc.tn.Builtins()

	if data.Op.IsShortCircuit() {
		tl := bc.operand(data.Left, b.Bool)
		tr := bc.operand(data.Right, b.Bool)
		if bc.poisoned(tl, tr) {
			return bc.invalid(id)
		}
		if bc.tn.Kind(tl) != types.KindBool || bc.tn.Kind(tr) != types.KindBool {
			bc.errorf(diag.TypeMismatch, bc.exprSpan(id),
				"operator '%s' needs bool operands, got %s and %s",
				data.Op, bc.label(tl), bc.label(tr))
			return bc.invalid(id)
		}
		return bc.record(id, b.Bool)
	}

	// A literal tree adopts its type from the concrete side, so that side
	// types first. With two concrete sides the hint threads left to right.
	var tl, tr types.TypeID
	if bc.litTree(data.Left) && !bc.litTree(data.Right) {
		tr = bc.operand(data.Right, want)
		tl = bc.operand(data.Left, tr)
	} else {
		tl = bc.operand(data.Left, want)
		tr = bc.operand(data.Right, tl)
	}
	if bc.poisoned(tl, tr) {
		return bc.invalid(id)
	}
	lt := bc.tn.MustLookup(tl)
	rt := bc.tn.MustLookup(tr)

	switch data.Op {
	case ast.BinAdd:
		if lt.Kind == types.KindString && rt.Kind == types.KindString {
			return bc.record(id, b.String)
		}
		fallthrough
	case ast.BinSub, ast.BinMul, ast.BinDiv:
		if tl == tr && lt.IsNumeric() {
			return bc.record(id, tl)
		}
		bc.errorf(diag.TypeMismatch, bc.exprSpan(id),
			"operator '%s' needs two operands of one numeric type, got %s and %s",
			data.Op, bc.label(tl), bc.label(tr))
		return bc.invalid(id)

	case ast.BinRem, ast.BinBitAnd, ast.BinBitOr, ast.BinBitXor, ast.BinShl, ast.BinShr:
		if tl == tr && lt.IsInteger() {
			return bc.record(id, tl)
		}
		bc.errorf(diag.TypeMismatch, bc.exprSpan(id),
			"operator '%s' needs two operands of one integer type, got %s and %s",
			data.Op, bc.label(tl), bc.label(tr))
		return bc.invalid(id)

	case ast.BinEq, ast.BinNe:
		if bc.equatable(tl, tr) {
			return bc.record(id, b.Bool)
		}
		bc.errorf(diag.TypeMismatch, bc.exprSpan(id),
			"operator '%s' cannot compare %s and %s", data.Op, bc.label(tl), bc.label(tr))
		return bc.invalid(id)

	case ast.BinLt, ast.BinLe, ast.BinGt, ast.BinGe:
		if tl == tr && lt.IsNumeric() {
			return bc.record(id, b.Bool)
		}
		bc.errorf(diag.TypeMismatch, bc.exprSpan(id),
			"operator '%s' needs two operands of one numeric type, got %s and %s",
			data.Op, bc.label(tl), bc.label(tr))
		return bc.invalid(id)
	}
	return bc.invalid(id)
}

// equatable reports whether == and != apply: one shared numeric, bool, or
// reference type, or two classes related by inheritance. References compare
// by identity.
func (bc *bodyChecker) equatable(tl, tr types.TypeID) bool {
	lt := bc.tn.MustLookup(tl)
	rt := bc.tn.MustLookup(tr)
	if tl == tr {
		return lt.IsNumeric() || lt.Kind == types.KindBool || lt.IsReference()
	}
	if lt.Kind == types.KindClass && rt.Kind == types.KindClass {
		return bc.tn.IsSubclassOf(tl, tr) || bc.tn.IsSubclassOf(tr, tl)
	}
	return false
}

func (bc *bodyChecker) typeTernary(id ast.ExprID, want types.TypeID) types.TypeID {
	data, _ := bc.prog.Exprs.Ternary(id)
	if data == nil {
		return bc.invalid(id)
	}
	b := bc.tn.Builtins()
	cond := bc.operand(data.Cond, b.Bool)
	if !bc.poisoned(cond) && bc.tn.Kind(cond) != types.KindBool {
		bc.errorf(diag.TypeMismatch, bc.exprSpan(data.Cond),
			"ternary condition needs bool, got %s", bc.label(cond))
	}

	var tt, te types.TypeID
	if bc.litTree(data.Then) && !bc.litTree(data.Else) {
		te = bc.operand(data.Else, want)
		tt = bc.operand(data.Then, te)
	} else {
		tt = bc.operand(data.Then, want)
		te = bc.operand(data.Else, tt)
	}
	if bc.poisoned(tt, te) {
		return bc.invalid(id)
	}
	if tt == te {
		return bc.record(id, tt)
	}
	// Class branches unify at the nearer base.
	if bc.tn.Kind(tt) == types.KindClass && bc.tn.Kind(te) == types.KindClass {
		if bc.tn.IsSubclassOf(tt, te) {
			return bc.record(id, te)
		}
		if bc.tn.IsSubclassOf(te, tt) {
			return bc.record(id, tt)
		}
	}
	bc.errorf(diag.TypeMismatch, bc.exprSpan(id),
		"ternary branches disagree: %s vs %s", bc.label(tt), bc.label(te))
	return bc.invalid(id)
}

func (bc *bodyChecker) typeMember(id ast.ExprID) types.TypeID {
	data, _ := bc.prog.Exprs.Member(id)
	if data == nil {
		return bc.invalid(id)
	}
	t := bc.operand(data.Target, types.NoTypeID)
	if bc.poisoned(t) {
		return bc.invalid(id)
	}
	tt := bc.tn.MustLookup(t)
	if data.Field == bc.names.length {
		switch tt.Kind {
		case types.KindArray, types.KindString:
			return bc.record(id, bc.tn.Builtins().I32)
		}
	}
	if tt.Kind == types.KindClass {
		field, _, ok := bc.tn.FindField(t, data.Field)
		if !ok {
			bc.errorf(diag.UnresolvedSymbol, bc.exprSpan(id),
				"%s has no field '%s'", bc.label(t), bc.name(data.Field))
			return bc.invalid(id)
		}
		return bc.record(id, field.Type)
	}
	bc.errorf(diag.TypeMismatch, bc.exprSpan(id),
		"%s has no member '%s'", bc.label(t), bc.name(data.Field))
	return bc.invalid(id)
}

func (bc *bodyChecker) typeIndex(id ast.ExprID) types.TypeID {
	data, _ := bc.prog.Exprs.Index(id)
	if data == nil {
		return bc.invalid(id)
	}
	b := bc.tn.Builtins()
	t := bc.operand(data.Target, types.NoTypeID)
	ti := bc.operand(data.Index, b.I32)
	if bc.poisoned(t, ti) {
		return bc.invalid(id)
	}
	tt := bc.tn.MustLookup(t)
	if tt.Kind != types.KindArray {
		bc.errorf(diag.TypeMismatch, bc.exprSpan(id), "cannot index %s", bc.label(t))
		return bc.invalid(id)
	}
	if ti != b.I32 && ti != b.U32 {
		bc.errorf(diag.TypeMismatch, bc.exprSpan(data.Index),
			"array index needs i32 or u32, got %s", bc.label(ti))
		return bc.invalid(id)
	}
	return bc.record(id, tt.Elem)
}

func (bc *bodyChecker) typeNew(id ast.ExprID) types.TypeID {
	data, _ := bc.prog.Exprs.New(id)
	if data == nil {
		return bc.invalid(id)
	}
	classT := bc.resolveType(data.Class)
	if bc.poisoned(classT) {
		for _, arg := range data.Args {
			bc.typeExpr(arg, types.NoTypeID)
		}
		return bc.invalid(id)
	}
	if bc.tn.Kind(classT) != types.KindClass {
		bc.errorf(diag.TypeMismatch, bc.exprSpan(id), "new needs a class, got %s", bc.label(classT))
		for _, arg := range data.Args {
			bc.typeExpr(arg, types.NoTypeID)
		}
		return bc.invalid(id)
	}

	// Initializers cover the whole object, inherited fields first.
	var fields []types.ClassField
	for _, link := range bc.tn.Chain(classT) {
		info, _ := bc.tn.ClassInfo(link)
		fields = append(fields, info.Fields...)
	}
	if len(data.Args) != len(fields) {
		bc.errorf(diag.TypeMismatch, bc.exprSpan(id),
			"%s has %d fields including inherited ones, got %d initializers",
			bc.label(classT), len(fields), len(data.Args))
		for _, arg := range data.Args {
			bc.typeExpr(arg, types.NoTypeID)
		}
		return bc.record(id, classT)
	}
	for i, arg := range data.Args {
		at := bc.operand(arg, fields[i].Type)
		if bc.poisoned(at) {
			continue
		}
		if !bc.assignable(fields[i].Type, at) {
			bc.errorf(diag.TypeMismatch, bc.exprSpan(arg),
				"field '%s' of %s wants %s, got %s",
				bc.name(fields[i].Name), bc.label(classT), bc.label(fields[i].Type), bc.label(at))
		}
	}
	return bc.record(id, classT)
}

func (bc *bodyChecker) typeArrayLit(id ast.ExprID, want types.TypeID) types.TypeID {
	data, _ := bc.prog.Exprs.ArrayLit(id)
	if data == nil {
		return bc.invalid(id)
	}
	elemT := types.NoTypeID
	if data.Elem.IsValid() {
		elemT = bc.resolveType(data.Elem)
		if bc.poisoned(elemT) {
			for _, el := range data.Elems {
				bc.typeExpr(el, types.NoTypeID)
			}
			return bc.invalid(id)
		}
	} else if wt, ok := bc.tn.Lookup(want); ok && wt.Kind == types.KindArray {
		elemT = wt.Elem
	}

	if elemT == types.NoTypeID {
		if len(data.Elems) == 0 {
			bc.errorf(diag.TypeMismatch, bc.exprSpan(id),
				"cannot infer the element type of an empty array literal")
			return bc.invalid(id)
		}
		first := bc.operand(data.Elems[0], types.NoTypeID)
		if bc.poisoned(first) {
			for _, el := range data.Elems[1:] {
				bc.typeExpr(el, types.NoTypeID)
			}
			return bc.invalid(id)
		}
		elemT = first
		for _, el := range data.Elems[1:] {
			bc.checkArrayElem(el, elemT)
		}
	} else {
		for _, el := range data.Elems {
			bc.checkArrayElem(el, elemT)
		}
	}

	// The literal is resizable unless the context asks for a fixed array of
	// exactly this shape.
	if wt, ok := bc.tn.Lookup(want); ok && wt.Kind == types.KindArray &&
		wt.Count != types.ArrayDynamicLength &&
		wt.Elem == elemT && int(wt.Count) == len(data.Elems) {
		return bc.record(id, want)
	}
	return bc.record(id, bc.tn.ArrayOf(elemT))
}

func (bc *bodyChecker) checkArrayElem(el ast.ExprID, elemT types.TypeID) {
	at := bc.operand(el, elemT)
	if bc.poisoned(at) {
		return
	}
	if !bc.assignable(elemT, at) {
		bc.errorf(diag.TypeMismatch, bc.exprSpan(el),
			"array element wants %s, got %s", bc.label(elemT), bc.label(at))
	}
}

func (bc *bodyChecker) typeCast(id ast.ExprID) types.TypeID {
	data, _ := bc.prog.Exprs.Cast(id)
	if data == nil {
		return bc.invalid(id)
	}
	target := bc.resolveType(data.Target)
	if bc.poisoned(target) {
		bc.typeExpr(data.Value, types.NoTypeID)
		return bc.invalid(id)
	}
	// The target hints the value so wide literals can be spelled directly;
	// a literal that does not fit falls back to its default type and the
	// cast converts at run time.
	vt := bc.operand(data.Value, target)
	if bc.poisoned(vt) {
		return bc.invalid(id)
	}
	if vt == target || bc.castAllowed(vt, target) {
		return bc.record(id, target)
	}
	bc.errorf(diag.TypeMismatch, bc.exprSpan(id),
		"cannot cast %s to %s", bc.label(vt), bc.label(target))
	return bc.invalid(id)
}

// castAllowed whitelists explicit conversions: any numeric pair, a
// reference to and from the 32-bit address integers, and class casts along
// an inheritance chain. Downcasts are not checked at run time.
func (bc *bodyChecker) castAllowed(from, to types.TypeID) bool {
	b := bc.tn.Builtins()
	ft := bc.tn.MustLookup(from)
	tt := bc.tn.MustLookup(to)
	if ft.IsNumeric() && tt.IsNumeric() {
		return true
	}
	if ft.IsReference() && (to == b.I32 || to == b.U32) {
		return true
	}
	if tt.IsReference() && (from == b.I32 || from == b.U32) {
		return true
	}
	if ft.Kind == types.KindClass && tt.Kind == types.KindClass {
		return bc.tn.IsSubclassOf(from, to) || bc.tn.IsSubclassOf(to, from)
	}
	return false
}
