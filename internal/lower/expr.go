package lower

import (
	"fmt"

	"fortio.org/safecast"

	"wasc/internal/ast"
	"wasc/internal/layout"
	"wasc/internal/rt"
	"wasc/internal/sema"
	"wasc/internal/types"
	"wasc/internal/wasm"
)

func (l *funcLowerer) lowerExpr(id ast.ExprID) {
	if l.failed {
		return
	}
	switch ex := l.u.prog.Exprs.Get(id); ex.Kind {
	case ast.ExprLit:
		l.lowerLit(id)
	case ast.ExprIdent:
		l.lowerIdent(id)
	case ast.ExprGroup:
		data, _ := l.u.prog.Exprs.Group(id)
		l.lowerExpr(data.Inner)
	case ast.ExprUnary:
		l.lowerUnary(id)
	case ast.ExprBinary:
		l.lowerBinary(id)
	case ast.ExprTernary:
		l.lowerTernary(id)
	case ast.ExprCall:
		l.lowerCall(id)
	case ast.ExprMember:
		l.lowerMember(id)
	case ast.ExprIndex:
		l.lowerIndex(id)
	case ast.ExprNew:
		l.lowerNew(id)
	case ast.ExprArrayLit:
		l.lowerArrayLit(id)
	case ast.ExprCast:
		l.lowerCast(id)
	default:
		l.fail(ex.Span, "cannot lower this expression")
	}
}

func (l *funcLowerer) lowerLit(id ast.ExprID) {
	data, _ := l.u.prog.Exprs.Literal(id)
	tt := l.u.res.Types.MustLookup(l.exprType(id))
	switch data.Kind {
	case ast.LitBool:
		if data.Bool {
			l.i32(1)
		} else {
			l.i32(0)
		}
	case ast.LitInt:
		switch {
		case tt.Kind == types.KindFloat && tt.Width == types.Width64:
			l.emit(wasm.F64Const(float64(data.Int)))
		case tt.Kind == types.KindFloat:
			l.emit(wasm.F32Const(float32(data.Int)))
		case tt.Width == types.Width64:
			l.emit(wasm.I64Const(int64(data.Int)))
		default:
			l.i32(int32(uint32(data.Int)))
		}
	case ast.LitFloat:
		if tt.Width == types.Width64 {
			l.emit(wasm.F64Const(data.Float))
		} else {
			l.emit(wasm.F32Const(float32(data.Float)))
		}
	case ast.LitString:
		addr, ok := l.u.plan.StringAddr(data.Str)
		if !ok {
			panic("lower: string literal missing from the static plan")
		}
		l.u32(addr)
	}
}

func (l *funcLowerer) lowerIdent(id ast.ExprID) {
	ref, ok := l.body.Idents[id]
	if !ok {
		panic("lower: unresolved identifier")
	}
	switch ref.Kind {
	case sema.RefLocal:
		slot, ok := l.named[sema.LocalID(ref.Index)]
		if !ok {
			panic("lower: local has no slot")
		}
		l.get(slot)
	case sema.RefGlobal:
		cell, ok := l.u.plan.GlobalCell(ast.GlobalID(ref.Index))
		if !ok {
			panic("lower: global without a storage cell")
		}
		l.u32(cell)
		l.loadValue(l.exprType(id), 0)
	}
}

func (l *funcLowerer) lowerMember(id ast.ExprID) {
	data, _ := l.u.prog.Exprs.Member(id)
	ot := l.exprType(data.Target)
	tt := l.u.res.Types.MustLookup(ot)
	switch tt.Kind {
	case types.KindString:
		// Code-unit count: half the payload byte size.
		l.lowerExpr(data.Target)
		l.emit(wasm.Mem(wasm.OpI32Load, 2, layout.HeaderSizeOff))
		l.i32(1)
		l.op(wasm.OpI32ShrU)
	case types.KindArray:
		if tt.Count == types.ArrayDynamicLength {
			l.lowerExpr(data.Target)
			l.emit(wasm.Mem(wasm.OpI32Load, 2, layout.ArrayLengthOff))
			return
		}
		// The length is a constant, but the receiver may still have
		// effects.
		if l.u.prog.Exprs.Get(data.Target).Kind != ast.ExprIdent {
			l.lowerExpr(data.Target)
			l.op(wasm.OpDrop)
		}
		l.u32(tt.Count)
	case types.KindClass:
		desc, ok := l.u.eng.Class(ot)
		if !ok {
			panic("lower: member of a type without a class descriptor")
		}
		slot, ok := desc.Field(data.Field)
		if !ok {
			panic("lower: field vanished from the class layout")
		}
		l.lowerExpr(data.Target)
		l.loadValue(slot.Type, slot.Offset)
	default:
		l.fail(l.exprSpan(id), "cannot lower this member access")
	}
}

// place is a checked element location: the object holding the elements
// (the backing buffer for resizable arrays, the array itself for fixed
// ones) and the in-range index, both parked in scratch slots.
type place struct {
	obj    uint32
	idx    uint32
	stride uint32
	elem   types.TypeID
}

// elemPlace evaluates target and index and traps when the index is out of
// range. A negative index wraps to a huge unsigned value, so one unsigned
// compare covers both directions.
func (l *funcLowerer) elemPlace(data *ast.ExprIndexData) place {
	tt := l.u.res.Types.MustLookup(l.exprType(data.Target))
	p := place{stride: l.u.eng.Stride(tt.Elem), elem: tt.Elem}

	l.lowerExpr(data.Target)
	p.obj = l.temp(wasm.I32)
	l.set(p.obj)
	l.lowerExpr(data.Index)
	p.idx = l.temp(wasm.I32)
	l.tee(p.idx)
	if tt.Count == types.ArrayDynamicLength {
		l.get(p.obj)
		l.emit(wasm.Mem(wasm.OpI32Load, 2, layout.ArrayLengthOff))
	} else {
		l.u32(tt.Count)
	}
	l.op(wasm.OpI32GeU)
	l.trapIf()
	if tt.Count == types.ArrayDynamicLength {
		l.get(p.obj)
		l.emit(wasm.Mem(wasm.OpI32Load, 2, layout.ArrayDataOff))
		l.set(p.obj)
	}
	return p
}

func (l *funcLowerer) releasePlace(p place) {
	l.freeTemp(p.obj)
	l.freeTemp(p.idx)
}

// pushElemAddr leaves obj+idx*stride on the stack; the element itself sits
// at static offset ObjectDataOff from there.
func (l *funcLowerer) pushElemAddr(p place) {
	l.get(p.obj)
	l.get(p.idx)
	l.mulStride(p.stride)
	l.op(wasm.OpI32Add)
}

// pushElemOff leaves the element's byte offset from the object start on
// the stack.
func (l *funcLowerer) pushElemOff(p place) {
	l.get(p.idx)
	l.mulStride(p.stride)
	l.u32(layout.ObjectDataOff)
	l.op(wasm.OpI32Add)
}

func (l *funcLowerer) mulStride(stride uint32) {
	if stride > 1 {
		l.u32(stride)
		l.op(wasm.OpI32Mul)
	}
}

func (l *funcLowerer) lowerIndex(id ast.ExprID) {
	data, _ := l.u.prog.Exprs.Index(id)
	p := l.elemPlace(data)
	l.pushElemAddr(p)
	l.loadValue(p.elem, layout.ObjectDataOff)
	l.releasePlace(p)
}

func (l *funcLowerer) lowerNew(id ast.ExprID) {
	data, _ := l.u.prog.Exprs.New(id)
	ct := l.exprType(id)
	desc, ok := l.u.eng.Class(ct)
	if !ok {
		panic("lower: new of a type without a class descriptor")
	}
	if len(data.Args) != len(desc.Fields) {
		panic("lower: constructor arguments diverged from the class layout")
	}
	obj := l.temp(wasm.I32)
	l.u32(desc.PayloadSize())
	l.u32(desc.ClassID)
	l.hook(rt.OpAllocate)
	l.set(obj)
	for i, slot := range desc.Fields {
		l.storeFieldAt(obj, slot.Offset, slot.Type, data.Args[i], false)
	}
	l.get(obj)
	l.freeTemp(obj)
}

func (l *funcLowerer) lowerArrayLit(id ast.ExprID) {
	data, _ := l.u.prog.Exprs.ArrayLit(id)
	tt := l.u.res.Types.MustLookup(l.exprType(id))
	stride := l.u.eng.Stride(tt.Elem)
	n, err := safecast.Conv[uint32](len(data.Elems))
	if err != nil {
		panic(fmt.Errorf("lower: array literal length overflow: %w", err))
	}
	bytes, err := l.u.eng.ElementBytes(tt.Elem, n)
	if err != nil {
		l.fail(l.exprSpan(id), "array literal exceeds the address space")
		return
	}

	if tt.Count != types.ArrayDynamicLength {
		obj := l.temp(wasm.I32)
		l.u32(bytes)
		l.u32(layout.ClassIDFixed)
		l.hook(rt.OpAllocate)
		l.set(obj)
		for i, e := range data.Elems {
			l.storeFieldAt(obj, layout.ObjectDataOff+uint32(i)*stride, tt.Elem, e, false)
		}
		l.get(obj)
		l.freeTemp(obj)
		return
	}

	buf := l.temp(wasm.I32)
	l.u32(bytes)
	l.u32(layout.ClassIDBuffer)
	l.hook(rt.OpAllocate)
	l.set(buf)
	for i, e := range data.Elems {
		l.storeFieldAt(buf, layout.ObjectDataOff+uint32(i)*stride, tt.Elem, e, false)
	}
	arr := l.temp(wasm.I32)
	l.u32(layout.ArraySize - layout.HeaderSize)
	l.u32(layout.ClassIDArray)
	l.hook(rt.OpAllocate)
	l.set(arr)
	l.get(arr)
	l.u32(n)
	l.emit(wasm.Mem(wasm.OpI32Store, 2, layout.ArrayLengthOff))
	l.get(arr)
	l.u32(n)
	l.emit(wasm.Mem(wasm.OpI32Store, 2, layout.ArrayCapOff))
	switch {
	case l.u.binder.Uses(rt.OpWriteBarrier):
		l.get(arr)
		l.u32(layout.ArrayDataOff)
		l.get(buf)
		l.hook(rt.OpWriteBarrier)
		l.get(arr)
		l.get(buf)
		l.emit(wasm.Mem(wasm.OpI32Store, 2, layout.ArrayDataOff))
	case l.u.binder.Uses(rt.OpRetain):
		l.get(arr)
		l.get(buf)
		l.hook(rt.OpRetain)
		l.emit(wasm.Mem(wasm.OpI32Store, 2, layout.ArrayDataOff))
	default:
		l.get(arr)
		l.get(buf)
		l.emit(wasm.Mem(wasm.OpI32Store, 2, layout.ArrayDataOff))
	}
	l.get(arr)
	l.freeTemp(arr)
	l.freeTemp(buf)
}

func (l *funcLowerer) lowerTernary(id ast.ExprID) {
	data, _ := l.u.prog.Exprs.Ternary(id)
	vt, ok := valTypeOf(l.u.res.Types, l.exprType(id))
	if !ok {
		l.fail(l.exprSpan(id), "ternary has no value type")
		return
	}
	l.lowerExpr(data.Cond)
	l.ifStart(wasm.BlockOf(vt))
	l.lowerExpr(data.Then)
	l.elseStart()
	l.lowerExpr(data.Else)
	l.end()
}

// lowerShortCircuit keeps the lazy evaluation order with an if that
// produces the result directly; there is no boolean re-test of the left
// operand.
func (l *funcLowerer) lowerShortCircuit(data *ast.ExprBinaryData) {
	l.lowerExpr(data.Left)
	l.ifStart(wasm.BlockOf(wasm.I32))
	if data.Op == ast.BinAnd {
		l.lowerExpr(data.Right)
		l.elseStart()
		l.i32(0)
	} else {
		l.i32(1)
		l.elseStart()
		l.lowerExpr(data.Right)
	}
	l.end()
}
