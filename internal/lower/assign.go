package lower

import (
	"wasc/internal/ast"
	"wasc/internal/layout"
	"wasc/internal/rt"
	"wasc/internal/sema"
	"wasc/internal/types"
	"wasc/internal/wasm"
)

func (l *funcLowerer) lowerAssign(id ast.StmtID) {
	data, _ := l.u.prog.Stmts.Assign(id)
	switch l.u.prog.Exprs.Get(data.Target).Kind {
	case ast.ExprIdent:
		l.assignIdent(data.Target, data.Value)
	case ast.ExprMember:
		l.assignMember(data.Target, data.Value)
	case ast.ExprIndex:
		l.assignIndex(data.Target, data.Value)
	default:
		l.fail(l.stmtSpan(id), "cannot assign through this expression")
	}
}

// assignIdent stores into a local slot or a global's memory cell. Locals
// and globals are roots, so the collector sees them without a barrier;
// under reference counting the new value is retained before the old one
// is released, which keeps self-assignment safe.
func (l *funcLowerer) assignIdent(target, value ast.ExprID) {
	ref, ok := l.body.Idents[target]
	if !ok {
		panic("lower: unresolved identifier")
	}
	t := l.exprType(target)
	managed := l.u.res.Types.IsReference(t) && l.u.binder.Uses(rt.OpRetain)
	switch ref.Kind {
	case sema.RefLocal:
		slot, ok := l.named[sema.LocalID(ref.Index)]
		if !ok {
			panic("lower: local has no slot")
		}
		l.lowerExpr(value)
		if managed {
			l.hook(rt.OpRetain)
			l.get(slot)
			l.hook(rt.OpRelease)
		}
		l.set(slot)
	case sema.RefGlobal:
		cell, ok := l.u.plan.GlobalCell(ast.GlobalID(ref.Index))
		if !ok {
			panic("lower: global without a storage cell")
		}
		l.u32(cell)
		l.lowerExpr(value)
		if managed {
			l.hook(rt.OpRetain)
			l.u32(cell)
			l.emit(wasm.Mem(wasm.OpI32Load, 2, 0))
			l.hook(rt.OpRelease)
		}
		l.storeValue(t, 0)
	}
}

func (l *funcLowerer) assignMember(target, value ast.ExprID) {
	data, _ := l.u.prog.Exprs.Member(target)
	ot := l.exprType(data.Target)
	desc, ok := l.u.eng.Class(ot)
	if !ok {
		l.fail(l.exprSpan(target), "cannot assign to this member")
		return
	}
	slot, ok := desc.Field(data.Field)
	if !ok {
		panic("lower: field vanished from the class layout")
	}
	obj := l.temp(wasm.I32)
	l.lowerExpr(data.Target)
	l.set(obj)
	l.storeFieldAt(obj, slot.Offset, slot.Type, value, true)
	l.freeTemp(obj)
}

// storeFieldAt writes value into the slot at byte offset off of the object
// parked in the obj scratch local. With loadOld the previous reference is
// released; object construction skips that since the slot holds garbage.
func (l *funcLowerer) storeFieldAt(obj, off uint32, t types.TypeID, value ast.ExprID, loadOld bool) {
	ref := l.u.res.Types.IsReference(t)
	switch {
	case ref && l.u.binder.Uses(rt.OpWriteBarrier):
		val := l.temp(wasm.I32)
		l.lowerExpr(value)
		l.set(val)
		l.get(obj)
		l.u32(off)
		l.get(val)
		l.hook(rt.OpWriteBarrier)
		l.get(obj)
		l.get(val)
		l.storeValue(t, off)
		l.freeTemp(val)
	case ref && l.u.binder.Uses(rt.OpRetain):
		l.get(obj)
		l.lowerExpr(value)
		l.hook(rt.OpRetain)
		if loadOld {
			l.get(obj)
			l.loadValue(t, off)
			l.hook(rt.OpRelease)
		}
		l.storeValue(t, off)
	default:
		l.get(obj)
		l.lowerExpr(value)
		l.storeValue(t, off)
	}
}

func (l *funcLowerer) assignIndex(target, value ast.ExprID) {
	data, _ := l.u.prog.Exprs.Index(target)
	p := l.elemPlace(data)
	ref := l.u.res.Types.IsReference(p.elem)
	switch {
	case ref && l.u.binder.Uses(rt.OpWriteBarrier):
		val := l.temp(wasm.I32)
		l.lowerExpr(value)
		l.set(val)
		l.get(p.obj)
		l.pushElemOff(p)
		l.get(val)
		l.hook(rt.OpWriteBarrier)
		l.pushElemAddr(p)
		l.get(val)
		l.storeValue(p.elem, layout.ObjectDataOff)
		l.freeTemp(val)
	case ref && l.u.binder.Uses(rt.OpRetain):
		addr := l.temp(wasm.I32)
		l.pushElemAddr(p)
		l.set(addr)
		l.get(addr)
		l.lowerExpr(value)
		l.hook(rt.OpRetain)
		l.get(addr)
		l.loadValue(p.elem, layout.ObjectDataOff)
		l.hook(rt.OpRelease)
		l.storeValue(p.elem, layout.ObjectDataOff)
		l.freeTemp(addr)
	default:
		l.pushElemAddr(p)
		l.lowerExpr(value)
		l.storeValue(p.elem, layout.ObjectDataOff)
	}
	l.releasePlace(p)
}
