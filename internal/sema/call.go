package sema

import (
	"math"

	"wasc/internal/ast"
	"wasc/internal/diag"
	"wasc/internal/intrin"
	"wasc/internal/types"
)

func (bc *bodyChecker) typeCall(id ast.ExprID, want types.TypeID) types.TypeID {
	data, _ := bc.prog.Exprs.Call(id)
	if data == nil {
		return bc.invalid(id)
	}
	if data.Recv.IsValid() {
		return bc.typeMethodCall(id, data)
	}
	if fid, ok := bc.res.FuncByName(data.Callee); ok {
		return bc.typeFuncCall(id, data, fid)
	}
	if op, ok := intrin.Lookup(bc.name(data.Callee)); ok {
		return bc.typeIntrinCall(id, data, op, want)
	}
	bc.errorf(diag.UnresolvedSymbol, bc.exprSpan(id),
		"undefined function '%s'", bc.name(data.Callee))
	bc.discardArgs(data.Args)
	return bc.invalid(id)
}

// discardArgs types arguments under a failed call so the expression table
// stays total.
func (bc *bodyChecker) discardArgs(args []ast.ExprID) {
	for _, arg := range args {
		bc.typeExpr(arg, types.NoTypeID)
	}
}

// typeMethodCall handles the receiver form. The only method in the
// language is push on resizable arrays; it appends and returns the new
// length.
func (bc *bodyChecker) typeMethodCall(id ast.ExprID, data *ast.ExprCallData) types.TypeID {
	recv := bc.operand(data.Recv, types.NoTypeID)
	if bc.poisoned(recv) {
		bc.discardArgs(data.Args)
		return bc.invalid(id)
	}
	if data.Callee != bc.names.push {
		bc.errorf(diag.UnresolvedSymbol, bc.exprSpan(id),
			"%s has no method '%s'", bc.label(recv), bc.name(data.Callee))
		bc.discardArgs(data.Args)
		return bc.invalid(id)
	}
	rt := bc.tn.MustLookup(recv)
	if rt.Kind != types.KindArray || rt.Count != types.ArrayDynamicLength {
		bc.errorf(diag.TypeMismatch, bc.exprSpan(id),
			"push needs a resizable array, got %s", bc.label(recv))
		bc.discardArgs(data.Args)
		return bc.invalid(id)
	}
	if len(data.Args) != 1 {
		bc.errorf(diag.TypeMismatch, bc.exprSpan(id),
			"push takes one argument, got %d", len(data.Args))
		bc.discardArgs(data.Args)
		return bc.invalid(id)
	}
	at := bc.operand(data.Args[0], rt.Elem)
	if !bc.poisoned(at) && !bc.assignable(rt.Elem, at) {
		bc.errorf(diag.TypeMismatch, bc.exprSpan(data.Args[0]),
			"push on %s wants %s, got %s", bc.label(recv), bc.label(rt.Elem), bc.label(at))
	}
	bc.body.Calls[id] = CallTarget{Kind: CallArrayPush}
	return bc.record(id, bc.tn.Builtins().I32)
}

func (bc *bodyChecker) typeFuncCall(id ast.ExprID, data *ast.ExprCallData, fid ast.FuncID) types.TypeID {
	sig := bc.res.Sig(fid)
	if sig == nil {
		bc.discardArgs(data.Args)
		return bc.invalid(id)
	}
	if !sig.IsGeneric() {
		if len(data.TypeArgs) > 0 {
			bc.errorf(diag.TypeMismatch, bc.exprSpan(id),
				"function '%s' is not generic", bc.name(sig.Name))
			bc.discardArgs(data.Args)
			return bc.invalid(id)
		}
		if len(data.Args) != len(sig.Params) {
			bc.errorf(diag.TypeMismatch, bc.exprSpan(id),
				"function '%s' takes %d arguments, got %d",
				bc.name(sig.Name), len(sig.Params), len(data.Args))
			bc.discardArgs(data.Args)
			return bc.invalid(id)
		}
		for i, arg := range data.Args {
			at := bc.operand(arg, sig.Params[i])
			if bc.poisoned(at) {
				continue
			}
			if !bc.assignable(sig.Params[i], at) {
				bc.errorf(diag.TypeMismatch, bc.exprSpan(arg),
					"argument %d of '%s' wants %s, got %s",
					i+1, bc.name(sig.Name), bc.label(sig.Params[i]), bc.label(at))
			}
		}
		bc.body.Calls[id] = CallTarget{Kind: CallFunc, Func: fid}
		return bc.record(id, sig.Result)
	}
	return bc.typeGenericCall(id, data, fid, sig)
}

// typeGenericCall resolves type arguments, explicitly or by deduction from
// the argument types, and interns the specialization.
func (bc *bodyChecker) typeGenericCall(id ast.ExprID, data *ast.ExprCallData, fid ast.FuncID, sig *FuncSig) types.TypeID {
	if len(data.Args) != len(sig.Params) {
		bc.errorf(diag.TypeMismatch, bc.exprSpan(id),
			"function '%s' takes %d arguments, got %d",
			bc.name(sig.Name), len(sig.Params), len(data.Args))
		bc.discardArgs(data.Args)
		return bc.invalid(id)
	}

	bindings := make(map[types.TypeID]types.TypeID, len(sig.TypeParams))
	argTypes := make([]types.TypeID, len(data.Args))

	if len(data.TypeArgs) > 0 {
		if len(data.TypeArgs) != len(sig.TypeParams) {
			bc.errorf(diag.TypeMismatch, bc.exprSpan(id),
				"function '%s' takes %d type arguments, got %d",
				bc.name(sig.Name), len(sig.TypeParams), len(data.TypeArgs))
			bc.discardArgs(data.Args)
			return bc.invalid(id)
		}
		for k, te := range data.TypeArgs {
			at := bc.resolveType(te)
			if bc.poisoned(at) {
				bc.discardArgs(data.Args)
				return bc.invalid(id)
			}
			bindings[sig.TypeParams[k]] = at
		}
		for i, arg := range data.Args {
			argTypes[i] = bc.operand(arg, bc.tn.Substitute(sig.Params[i], bindings))
		}
	} else {
		// Deduction runs in two passes: concrete arguments pin parameters
		// first, then literal trees adopt whatever the first pass decided.
		for i, arg := range data.Args {
			if bc.litTree(arg) {
				continue
			}
			argTypes[i] = bc.operand(arg, bc.tn.Substitute(sig.Params[i], bindings))
			if !bc.poisoned(argTypes[i]) {
				bc.unify(sig.Params[i], argTypes[i], bindings)
			}
		}
		for i, arg := range data.Args {
			if !bc.litTree(arg) {
				continue
			}
			argTypes[i] = bc.operand(arg, bc.tn.Substitute(sig.Params[i], bindings))
			if !bc.poisoned(argTypes[i]) {
				bc.unify(sig.Params[i], argTypes[i], bindings)
			}
		}
		for _, tp := range sig.TypeParams {
			if _, ok := bindings[tp]; !ok {
				info, _ := bc.tn.TypeParamInfo(tp)
				bc.errorf(diag.UnresolvedGeneric, bc.exprSpan(id),
					"cannot infer type argument %s of '%s'; spell the type arguments",
					bc.name(info.Name), bc.name(sig.Name))
				return bc.invalid(id)
			}
		}
	}

	ok := true
	for i := range data.Args {
		if bc.poisoned(argTypes[i]) {
			ok = false
			continue
		}
		paramT := bc.tn.Substitute(sig.Params[i], bindings)
		if !bc.assignable(paramT, argTypes[i]) {
			bc.errorf(diag.TypeMismatch, bc.exprSpan(data.Args[i]),
				"argument %d of '%s' wants %s, got %s",
				i+1, bc.name(sig.Name), bc.label(paramT), bc.label(argTypes[i]))
			ok = false
		}
	}
	if !ok {
		return bc.invalid(id)
	}

	typeArgs := make([]types.TypeID, len(sig.TypeParams))
	for k, tp := range sig.TypeParams {
		typeArgs[k] = bindings[tp]
	}
	instID, _ := bc.res.Insts.Intern(fid, typeArgs)
	bc.body.Calls[id] = CallTarget{Kind: CallSpec, Func: fid, Inst: instID}
	return bc.record(id, bc.tn.Substitute(sig.Result, bindings))
}

// unify deduces bindings by matching a parameter type against an argument
// type. It binds only unbound placeholders and stays silent on mismatch;
// the final assignability pass produces the diagnostics.
func (bc *bodyChecker) unify(param, arg types.TypeID, bindings map[types.TypeID]types.TypeID) bool {
	pt, ok := bc.tn.Lookup(param)
	if !ok {
		return false
	}
	switch pt.Kind {
	case types.KindTypeParam:
		if bound, ok := bindings[param]; ok {
			return bound == arg
		}
		bindings[param] = arg
		return true
	case types.KindArray:
		at, ok := bc.tn.Lookup(arg)
		if !ok || at.Kind != types.KindArray || at.Count != pt.Count {
			return false
		}
		return bc.unify(pt.Elem, at.Elem, bindings)
	}
	return param == arg
}

// typeIntrinCall types a call to a memory or numeric built-in. Shape
// validation lives in the intrin package; this side resolves type
// arguments, threads per-operand hints, and folds constant offsets into
// the instruction immediate.
func (bc *bodyChecker) typeIntrinCall(id ast.ExprID, data *ast.ExprCallData, op intrin.Op, want types.TypeID) types.TypeID {
	typeArgs := make([]types.TypeID, len(data.TypeArgs))
	for k, te := range data.TypeArgs {
		typeArgs[k] = bc.resolveType(te)
		if bc.poisoned(typeArgs[k]) {
			bc.discardArgs(data.Args)
			return bc.invalid(id)
		}
	}

	argTypes := make([]types.TypeID, len(data.Args))
	for i, arg := range data.Args {
		argTypes[i] = bc.operand(arg, bc.intrinArgHint(op, i, typeArgs, argTypes, want))
	}
	for _, at := range argTypes {
		if bc.poisoned(at) {
			return bc.invalid(id)
		}
	}

	result, call, err := intrin.Resolve(bc.tn, op, typeArgs, argTypes)
	if err != nil {
		bc.errorf(diag.InvalidIntrinsicUse, bc.exprSpan(id), "%s", err.Error())
		return bc.invalid(id)
	}

	// A compile-time constant offset rides in the instruction immediate;
	// anything else is added to the address at run time.
	if off, ok := intrinOffsetArg(op, len(data.Args)); ok {
		if v, isConst := bc.constInt(data.Args[off]); isConst && v >= 0 && v <= math.MaxUint32 {
			call.Offset = uint32(v)
		} else {
			call.AddOffset = true
		}
	}

	bc.body.Calls[id] = CallTarget{Kind: CallIntrin, Intrin: call}
	return bc.record(id, result)
}

// intrinOffsetArg returns the index of the optional offset operand when
// the call supplies one.
func intrinOffsetArg(op intrin.Op, argc int) (int, bool) {
	switch op {
	case intrin.OpLoad:
		if argc == 2 {
			return 1, true
		}
	case intrin.OpStore:
		if argc == 3 {
			return 2, true
		}
	}
	return 0, false
}

// intrinArgHint picks the contextual hint for one intrinsic operand. Hints
// only steer literals; the shapes are enforced by intrin.Resolve afterward.
func (bc *bodyChecker) intrinArgHint(op intrin.Op, i int, typeArgs, argTypes []types.TypeID, want types.TypeID) types.TypeID {
	b := bc.tn.Builtins()
	elem := types.NoTypeID
	if len(typeArgs) > 0 {
		elem = typeArgs[0]
	}
	switch op {
	case intrin.OpLoad:
		return b.U32
	case intrin.OpStore:
		if i == 1 {
			return elem
		}
		return b.U32
	case intrin.OpReinterpret:
		return bc.reinterpretHint(elem)
	case intrin.OpClz, intrin.OpCtz, intrin.OpPopcnt:
		if tt, ok := bc.tn.Lookup(want); ok && tt.IsInteger() {
			return want
		}
	case intrin.OpRotl, intrin.OpRotr:
		if i == 1 {
			return argTypes[0]
		}
		if tt, ok := bc.tn.Lookup(want); ok && tt.IsInteger() {
			return want
		}
	case intrin.OpAbs, intrin.OpCeil, intrin.OpFloor, intrin.OpTrunc, intrin.OpNearest, intrin.OpSqrt:
		if bc.tn.Kind(want) == types.KindFloat {
			return want
		}
	case intrin.OpMin, intrin.OpMax, intrin.OpCopysign:
		if i == 1 {
			return argTypes[0]
		}
		if bc.tn.Kind(want) == types.KindFloat {
			return want
		}
	case intrin.OpSelect:
		// Operand order matches the instruction: (a, b, cond).
		switch i {
		case 0:
			if elem != types.NoTypeID {
				return elem
			}
			return want
		case 1:
			if elem != types.NoTypeID {
				return elem
			}
			return argTypes[0]
		case 2:
			return b.Bool
		}
	case intrin.OpMemoryGrow:
		return b.I32
	}
	return types.NoTypeID
}

// reinterpretHint suggests the source type for reinterpret<T>: the
// same-width counterpart on the other side of the int/float divide.
func (bc *bodyChecker) reinterpretHint(elem types.TypeID) types.TypeID {
	b := bc.tn.Builtins()
	tt, ok := bc.tn.Lookup(elem)
	if !ok {
		return types.NoTypeID
	}
	switch {
	case tt.IsInteger() && tt.Width == types.Width32:
		return b.F32
	case tt.IsInteger() && tt.Width == types.Width64:
		return b.F64
	case tt.Kind == types.KindFloat && tt.Width == types.Width32:
		return b.I32
	case tt.Kind == types.KindFloat && tt.Width == types.Width64:
		return b.I64
	}
	return types.NoTypeID
}
