package lower

import (
	"math/bits"

	"wasc/internal/ast"
	"wasc/internal/types"
	"wasc/internal/wasm"
)

// valTypeOf maps a language type onto the wasm value type that carries it.
// Void (and only void) has none. References travel as i32 addresses.
func valTypeOf(tn *types.Interner, t types.TypeID) (wasm.ValType, bool) {
	tt := tn.MustLookup(t)
	switch tt.Kind {
	case types.KindBool:
		return wasm.I32, true
	case types.KindInt, types.KindUint:
		if tt.Width == types.Width64 {
			return wasm.I64, true
		}
		return wasm.I32, true
	case types.KindFloat:
		if tt.Width == types.Width64 {
			return wasm.F64, true
		}
		return wasm.F32, true
	case types.KindString, types.KindArray, types.KindClass:
		return wasm.I32, true
	}
	return 0, false
}

// alignExpFor caps the access alignment exponent at both the natural
// alignment of the access width and the field alignment the layout engine
// guarantees.
func alignExpFor(size, align uint32) uint32 {
	exp := uint32(bits.TrailingZeros32(align))
	var natural uint32
	switch size {
	case 1:
		natural = 0
	case 2:
		natural = 1
	case 4:
		natural = 2
	default:
		natural = 3
	}
	if exp > natural {
		exp = natural
	}
	return exp
}

// loadInstr picks the memory read for a stored value of type tt. Narrow
// integers extend by their own signedness so registers always hold the
// normalized form.
func loadInstr(tt types.Type, align, off uint32) wasm.Instr {
	op := wasm.OpI32Load
	size := uint32(4)
	switch tt.Kind {
	case types.KindBool:
		op, size = wasm.OpI32Load8U, 1
	case types.KindInt:
		switch tt.Width {
		case types.Width8:
			op, size = wasm.OpI32Load8S, 1
		case types.Width16:
			op, size = wasm.OpI32Load16S, 2
		case types.Width32:
			op = wasm.OpI32Load
		default:
			op, size = wasm.OpI64Load, 8
		}
	case types.KindUint:
		switch tt.Width {
		case types.Width8:
			op, size = wasm.OpI32Load8U, 1
		case types.Width16:
			op, size = wasm.OpI32Load16U, 2
		case types.Width32:
			op = wasm.OpI32Load
		default:
			op, size = wasm.OpI64Load, 8
		}
	case types.KindFloat:
		if tt.Width == types.Width64 {
			op, size = wasm.OpF64Load, 8
		} else {
			op = wasm.OpF32Load
		}
	case types.KindString, types.KindArray, types.KindClass:
		op = wasm.OpI32Load
	default:
		panic("lower: load of a type with no memory form")
	}
	return wasm.Mem(op, alignExpFor(size, align), off)
}

func storeInstr(tt types.Type, align, off uint32) wasm.Instr {
	op := wasm.OpI32Store
	size := uint32(4)
	switch tt.Kind {
	case types.KindBool:
		op, size = wasm.OpI32Store8, 1
	case types.KindInt, types.KindUint:
		switch tt.Width {
		case types.Width8:
			op, size = wasm.OpI32Store8, 1
		case types.Width16:
			op, size = wasm.OpI32Store16, 2
		case types.Width32:
			op = wasm.OpI32Store
		default:
			op, size = wasm.OpI64Store, 8
		}
	case types.KindFloat:
		if tt.Width == types.Width64 {
			op, size = wasm.OpF64Store, 8
		} else {
			op = wasm.OpF32Store
		}
	case types.KindString, types.KindArray, types.KindClass:
		op = wasm.OpI32Store
	default:
		panic("lower: store of a type with no memory form")
	}
	return wasm.Mem(op, alignExpFor(size, align), off)
}

func (l *funcLowerer) lowerBinary(id ast.ExprID) {
	data, _ := l.u.prog.Exprs.Binary(id)
	if data.Op.IsShortCircuit() {
		l.lowerShortCircuit(data)
		return
	}
	lt := l.u.res.Types.MustLookup(l.exprType(data.Left))
	l.lowerExpr(data.Left)
	l.lowerExpr(data.Right)
	switch lt.Kind {
	case types.KindString:
		switch data.Op {
		case ast.BinAdd:
			if !l.u.hasConcat {
				panic("lower: concat helper was not scheduled")
			}
			l.call(l.u.concatIndex)
		case ast.BinEq:
			l.op(wasm.OpI32Eq)
		case ast.BinNe:
			l.op(wasm.OpI32Ne)
		default:
			l.fail(l.exprSpan(id), "operator %s is not defined on string", data.Op)
		}
	case types.KindArray, types.KindClass:
		switch data.Op {
		case ast.BinEq:
			l.op(wasm.OpI32Eq)
		case ast.BinNe:
			l.op(wasm.OpI32Ne)
		default:
			l.fail(l.exprSpan(id), "operator %s is not defined on references", data.Op)
		}
	default:
		op, ok := numericBinOp(data.Op, lt)
		if !ok {
			l.fail(l.exprSpan(id), "cannot lower operator %s", data.Op)
			return
		}
		l.op(op)
		if renormAfter(data.Op) {
			l.renorm(lt)
		}
	}
}

// renormAfter reports whether the operator can push a narrow integer
// result out of its width. Shifting right, remainder, and the bitwise
// trio all stay in range when their operands are normalized.
func renormAfter(op ast.BinOp) bool {
	switch op {
	case ast.BinAdd, ast.BinSub, ast.BinMul, ast.BinShl, ast.BinDiv:
		return true
	}
	return false
}

// renorm wraps the i32 on the stack back into the width of tt, keeping
// the sign-extended register form for signed types and the zero-extended
// form for unsigned ones.
func (l *funcLowerer) renorm(tt types.Type) {
	if tt.Kind != types.KindInt && tt.Kind != types.KindUint {
		return
	}
	if tt.Width >= types.Width32 {
		return
	}
	if tt.Kind == types.KindUint {
		l.i32(int32(1)<<tt.Width - 1)
		l.op(wasm.OpI32And)
		return
	}
	shift := int32(32 - tt.Width)
	l.i32(shift)
	l.op(wasm.OpI32Shl)
	l.i32(shift)
	l.op(wasm.OpI32ShrS)
}

func pick(signed bool, s, u wasm.Opcode) wasm.Opcode {
	if signed {
		return s
	}
	return u
}

func numericBinOp(op ast.BinOp, tt types.Type) (wasm.Opcode, bool) {
	switch tt.Kind {
	case types.KindFloat:
		return floatBinOp(op, tt.Width == types.Width64)
	case types.KindBool:
		return boolBinOp(op)
	case types.KindInt:
		return intBinOp(op, tt.Width == types.Width64, true)
	case types.KindUint:
		return intBinOp(op, tt.Width == types.Width64, false)
	}
	return 0, false
}

func boolBinOp(op ast.BinOp) (wasm.Opcode, bool) {
	switch op {
	case ast.BinEq:
		return wasm.OpI32Eq, true
	case ast.BinNe:
		return wasm.OpI32Ne, true
	case ast.BinBitAnd:
		return wasm.OpI32And, true
	case ast.BinBitOr:
		return wasm.OpI32Or, true
	case ast.BinBitXor:
		return wasm.OpI32Xor, true
	}
	return 0, false
}

func floatBinOp(op ast.BinOp, wide bool) (wasm.Opcode, bool) {
	if wide {
		switch op {
		case ast.BinAdd:
			return wasm.OpF64Add, true
		case ast.BinSub:
			return wasm.OpF64Sub, true
		case ast.BinMul:
			return wasm.OpF64Mul, true
		case ast.BinDiv:
			return wasm.OpF64Div, true
		case ast.BinEq:
			return wasm.OpF64Eq, true
		case ast.BinNe:
			return wasm.OpF64Ne, true
		case ast.BinLt:
			return wasm.OpF64Lt, true
		case ast.BinLe:
			return wasm.OpF64Le, true
		case ast.BinGt:
			return wasm.OpF64Gt, true
		case ast.BinGe:
			return wasm.OpF64Ge, true
		}
		return 0, false
	}
	switch op {
	case ast.BinAdd:
		return wasm.OpF32Add, true
	case ast.BinSub:
		return wasm.OpF32Sub, true
	case ast.BinMul:
		return wasm.OpF32Mul, true
	case ast.BinDiv:
		return wasm.OpF32Div, true
	case ast.BinEq:
		return wasm.OpF32Eq, true
	case ast.BinNe:
		return wasm.OpF32Ne, true
	case ast.BinLt:
		return wasm.OpF32Lt, true
	case ast.BinLe:
		return wasm.OpF32Le, true
	case ast.BinGt:
		return wasm.OpF32Gt, true
	case ast.BinGe:
		return wasm.OpF32Ge, true
	}
	return 0, false
}

func intBinOp(op ast.BinOp, wide, signed bool) (wasm.Opcode, bool) {
	if wide {
		switch op {
		case ast.BinAdd:
			return wasm.OpI64Add, true
		case ast.BinSub:
			return wasm.OpI64Sub, true
		case ast.BinMul:
			return wasm.OpI64Mul, true
		case ast.BinDiv:
			return pick(signed, wasm.OpI64DivS, wasm.OpI64DivU), true
		case ast.BinRem:
			return pick(signed, wasm.OpI64RemS, wasm.OpI64RemU), true
		case ast.BinBitAnd:
			return wasm.OpI64And, true
		case ast.BinBitOr:
			return wasm.OpI64Or, true
		case ast.BinBitXor:
			return wasm.OpI64Xor, true
		case ast.BinShl:
			return wasm.OpI64Shl, true
		case ast.BinShr:
			return pick(signed, wasm.OpI64ShrS, wasm.OpI64ShrU), true
		case ast.BinEq:
			return wasm.OpI64Eq, true
		case ast.BinNe:
			return wasm.OpI64Ne, true
		case ast.BinLt:
			return pick(signed, wasm.OpI64LtS, wasm.OpI64LtU), true
		case ast.BinLe:
			return pick(signed, wasm.OpI64LeS, wasm.OpI64LeU), true
		case ast.BinGt:
			return pick(signed, wasm.OpI64GtS, wasm.OpI64GtU), true
		case ast.BinGe:
			return pick(signed, wasm.OpI64GeS, wasm.OpI64GeU), true
		}
		return 0, false
	}
	switch op {
	case ast.BinAdd:
		return wasm.OpI32Add, true
	case ast.BinSub:
		return wasm.OpI32Sub, true
	case ast.BinMul:
		return wasm.OpI32Mul, true
	case ast.BinDiv:
		return pick(signed, wasm.OpI32DivS, wasm.OpI32DivU), true
	case ast.BinRem:
		return pick(signed, wasm.OpI32RemS, wasm.OpI32RemU), true
	case ast.BinBitAnd:
		return wasm.OpI32And, true
	case ast.BinBitOr:
		return wasm.OpI32Or, true
	case ast.BinBitXor:
		return wasm.OpI32Xor, true
	case ast.BinShl:
		return wasm.OpI32Shl, true
	case ast.BinShr:
		return pick(signed, wasm.OpI32ShrS, wasm.OpI32ShrU), true
	case ast.BinEq:
		return wasm.OpI32Eq, true
	case ast.BinNe:
		return wasm.OpI32Ne, true
	case ast.BinLt:
		return pick(signed, wasm.OpI32LtS, wasm.OpI32LtU), true
	case ast.BinLe:
		return pick(signed, wasm.OpI32LeS, wasm.OpI32LeU), true
	case ast.BinGt:
		return pick(signed, wasm.OpI32GtS, wasm.OpI32GtU), true
	case ast.BinGe:
		return pick(signed, wasm.OpI32GeS, wasm.OpI32GeU), true
	}
	return 0, false
}

func (l *funcLowerer) lowerUnary(id ast.ExprID) {
	data, _ := l.u.prog.Exprs.Unary(id)
	tt := l.u.res.Types.MustLookup(l.exprType(id))
	switch data.Op {
	case ast.UnNot:
		l.lowerExpr(data.Operand)
		l.op(wasm.OpI32Eqz)
	case ast.UnNeg:
		if tt.Kind == types.KindFloat {
			l.lowerExpr(data.Operand)
			if tt.Width == types.Width64 {
				l.op(wasm.OpF64Neg)
			} else {
				l.op(wasm.OpF32Neg)
			}
			return
		}
		if tt.Width == types.Width64 {
			l.emit(wasm.I64Const(0))
			l.lowerExpr(data.Operand)
			l.op(wasm.OpI64Sub)
			return
		}
		l.i32(0)
		l.lowerExpr(data.Operand)
		l.op(wasm.OpI32Sub)
		l.renorm(tt)
	case ast.UnBitNot:
		l.lowerExpr(data.Operand)
		if tt.Width == types.Width64 {
			l.emit(wasm.I64Const(-1))
			l.op(wasm.OpI64Xor)
			return
		}
		l.i32(-1)
		l.op(wasm.OpI32Xor)
		l.renorm(tt)
	default:
		l.fail(l.exprSpan(id), "cannot lower this unary operator")
	}
}

func (l *funcLowerer) lowerCast(id ast.ExprID) {
	data, _ := l.u.prog.Exprs.Cast(id)
	src := l.exprType(data.Value)
	dst := l.exprType(id)
	l.lowerExpr(data.Value)
	l.emitConvert(src, dst, id)
}

func (l *funcLowerer) emitConvert(src, dst types.TypeID, at ast.ExprID) {
	if src == dst {
		return
	}
	tn := l.u.res.Types
	st := tn.MustLookup(src)
	dt := tn.MustLookup(dst)

	switch {
	case st.Kind == types.KindFloat && dt.Kind == types.KindFloat:
		if dt.Width == types.Width64 {
			l.op(wasm.OpF64PromoteF32)
		} else {
			l.op(wasm.OpF32DemoteF64)
		}

	case dt.Kind == types.KindFloat && (st.IsInteger() || st.Kind == types.KindBool):
		signed := st.Kind == types.KindInt
		wideSrc := st.IsInteger() && st.Width == types.Width64
		switch {
		case dt.Width == types.Width64 && wideSrc:
			l.op(pick(signed, wasm.OpF64ConvertI64S, wasm.OpF64ConvertI64U))
		case dt.Width == types.Width64:
			l.op(pick(signed, wasm.OpF64ConvertI32S, wasm.OpF64ConvertI32U))
		case wideSrc:
			l.op(pick(signed, wasm.OpF32ConvertI64S, wasm.OpF32ConvertI64U))
		default:
			l.op(pick(signed, wasm.OpF32ConvertI32S, wasm.OpF32ConvertI32U))
		}

	case st.Kind == types.KindFloat && dt.IsInteger():
		signed := dt.Kind == types.KindInt
		wideSrc := st.Width == types.Width64
		if dt.Width == types.Width64 {
			if wideSrc {
				l.op(pick(signed, wasm.OpI64TruncF64S, wasm.OpI64TruncF64U))
			} else {
				l.op(pick(signed, wasm.OpI64TruncF32S, wasm.OpI64TruncF32U))
			}
		} else {
			if wideSrc {
				l.op(pick(signed, wasm.OpI32TruncF64S, wasm.OpI32TruncF64U))
			} else {
				l.op(pick(signed, wasm.OpI32TruncF32S, wasm.OpI32TruncF32U))
			}
			l.renorm(dt)
		}

	case (st.IsInteger() || st.Kind == types.KindBool) && dt.IsInteger():
		srcWide := st.IsInteger() && st.Width == types.Width64
		dstWide := dt.Width == types.Width64
		switch {
		case srcWide && !dstWide:
			l.op(wasm.OpI32WrapI64)
			l.renorm(dt)
		case !srcWide && dstWide:
			// Extension follows the signedness of the source, which is
			// already normalized in its register.
			l.op(pick(st.Kind == types.KindInt, wasm.OpI64ExtendI32S, wasm.OpI64ExtendI32U))
		default:
			l.renorm(dt)
		}

	case st.IsInteger() && dt.Kind == types.KindBool:
		if st.Width == types.Width64 {
			l.op(wasm.OpI64Eqz)
			l.op(wasm.OpI32Eqz)
		} else {
			l.i32(0)
			l.op(wasm.OpI32Ne)
		}

	case referenceShaped(st) && referenceShaped(dt):
		// Address-preserving view change; nothing moves.

	default:
		l.fail(l.exprSpan(at), "cannot lower cast from %s to %s",
			tn.Format(src, l.u.prog.Names), tn.Format(dst, l.u.prog.Names))
	}
}

// referenceShaped covers the casts that reuse the i32 address unchanged:
// reference to reference (up and down the class chain) and the raw
// address escapes between references and 32-bit integers.
func referenceShaped(tt types.Type) bool {
	if tt.IsReference() {
		return true
	}
	return tt.IsInteger() && tt.Width == types.Width32
}
