package lower

import (
	"math/bits"

	"wasc/internal/ast"
	"wasc/internal/diag"
	"wasc/internal/layout"
	"wasc/internal/rt"
	"wasc/internal/wasm"
)

// noSlot marks an absent base-offset slot in byteCopy.
const noSlot = ^uint32(0)

// synthConcat builds the shared string concatenation helper: allocate a
// string sized for both payloads, then copy the operands byte by byte.
// Payload sizes are byte counts, so the copy never splits a code unit.
func (u *Unit) synthConcat() wasm.Func {
	l := u.newLowerer(diag.NopReporter{}, nil, 2)
	const a, b = 0, 1
	lenA := l.temp(wasm.I32)
	lenB := l.temp(wasm.I32)
	out := l.temp(wasm.I32)
	i := l.temp(wasm.I32)

	l.get(a)
	l.emit(wasm.Mem(wasm.OpI32Load, 2, layout.HeaderSizeOff))
	l.set(lenA)
	l.get(b)
	l.emit(wasm.Mem(wasm.OpI32Load, 2, layout.HeaderSizeOff))
	l.set(lenB)

	l.get(lenA)
	l.get(lenB)
	l.op(wasm.OpI32Add)
	l.u32(layout.ClassIDString)
	l.hook(rt.OpAllocate)
	l.set(out)

	l.byteCopy(out, noSlot, a, lenA, i)
	l.byteCopy(out, lenA, b, lenB, i)

	l.get(out)
	return wasm.Func{Name: "__concat", Locals: l.slots.scratch, Body: l.out}
}

// byteCopy copies n bytes from the payload of the object in slot src to
// the payload of the object in slot dst, shifted by the byte count in
// slot base when base is a real slot. The counter slot i is clobbered.
func (l *funcLowerer) byteCopy(dst, base, src, n, i uint32) {
	l.i32(0)
	l.set(i)
	l.block(wasm.BlockEmpty)
	exit := l.depth
	l.loop(wasm.BlockEmpty)
	head := l.depth
	l.get(i)
	l.get(n)
	l.op(wasm.OpI32GeU)
	l.brIf(exit)
	l.get(dst)
	if base != noSlot {
		l.get(base)
		l.op(wasm.OpI32Add)
	}
	l.get(i)
	l.op(wasm.OpI32Add)
	l.get(src)
	l.get(i)
	l.op(wasm.OpI32Add)
	l.emit(wasm.Mem(wasm.OpI32Load8U, 0, layout.ObjectDataOff))
	l.emit(wasm.Mem(wasm.OpI32Store8, 0, layout.ObjectDataOff))
	l.get(i)
	l.i32(1)
	l.op(wasm.OpI32Add)
	l.set(i)
	l.br(head)
	l.end()
	l.end()
}

// synthPush builds one push helper for a storage shape. It grows the
// backing buffer on demand by doubling, stores the element, bumps the
// length, and returns it.
func (u *Unit) synthPush(k pushKey) wasm.Func {
	l := u.newLowerer(diag.NopReporter{}, nil, 2)
	const arr, val = 0, 1
	length := l.temp(wasm.I32)
	capa := l.temp(wasm.I32)
	buf := l.temp(wasm.I32)

	l.get(arr)
	l.emit(wasm.Mem(wasm.OpI32Load, 2, layout.ArrayLengthOff))
	l.set(length)
	l.get(arr)
	l.emit(wasm.Mem(wasm.OpI32Load, 2, layout.ArrayCapOff))
	l.set(capa)
	l.get(arr)
	l.emit(wasm.Mem(wasm.OpI32Load, 2, layout.ArrayDataOff))
	l.set(buf)

	l.get(length)
	l.get(capa)
	l.op(wasm.OpI32Eq)
	l.ifStart(wasm.BlockEmpty)
	{
		newCap := l.temp(wasm.I32)
		newBuf := l.temp(wasm.I32)
		nbytes := l.temp(wasm.I32)
		i := l.temp(wasm.I32)

		l.get(capa)
		l.i32(1)
		l.op(wasm.OpI32Shl)
		l.set(newCap)
		l.get(newCap)
		l.op(wasm.OpI32Eqz)
		l.ifStart(wasm.BlockEmpty)
		l.i32(4)
		l.set(newCap)
		l.end()

		l.get(newCap)
		l.mulStride(k.stride)
		l.u32(layout.ClassIDBuffer)
		l.hook(rt.OpAllocate)
		l.set(newBuf)

		l.get(length)
		l.mulStride(k.stride)
		l.set(nbytes)
		l.byteCopy(newBuf, noSlot, buf, nbytes, i)

		switch {
		case l.u.binder.Uses(rt.OpWriteBarrier):
			l.get(arr)
			l.u32(layout.ArrayDataOff)
			l.get(newBuf)
			l.hook(rt.OpWriteBarrier)
			l.get(arr)
			l.get(newBuf)
			l.emit(wasm.Mem(wasm.OpI32Store, 2, layout.ArrayDataOff))
		case l.u.binder.Uses(rt.OpRetain):
			l.get(arr)
			l.get(newBuf)
			l.hook(rt.OpRetain)
			l.get(buf)
			l.hook(rt.OpRelease)
			l.emit(wasm.Mem(wasm.OpI32Store, 2, layout.ArrayDataOff))
		default:
			l.get(arr)
			l.get(newBuf)
			l.emit(wasm.Mem(wasm.OpI32Store, 2, layout.ArrayDataOff))
		}

		l.get(arr)
		l.get(newCap)
		l.emit(wasm.Mem(wasm.OpI32Store, 2, layout.ArrayCapOff))
		l.get(newBuf)
		l.set(buf)

		l.freeTemp(newCap)
		l.freeTemp(newBuf)
		l.freeTemp(nbytes)
		l.freeTemp(i)
	}
	l.end()

	switch {
	case k.ref && l.u.binder.Uses(rt.OpWriteBarrier):
		l.get(buf)
		l.get(length)
		l.mulStride(k.stride)
		l.u32(layout.ObjectDataOff)
		l.op(wasm.OpI32Add)
		l.get(val)
		l.hook(rt.OpWriteBarrier)
		l.get(buf)
		l.get(length)
		l.mulStride(k.stride)
		l.op(wasm.OpI32Add)
		l.get(val)
		l.storePush(k)
	case k.ref && l.u.binder.Uses(rt.OpRetain):
		l.get(buf)
		l.get(length)
		l.mulStride(k.stride)
		l.op(wasm.OpI32Add)
		l.get(val)
		l.hook(rt.OpRetain)
		l.storePush(k)
	default:
		l.get(buf)
		l.get(length)
		l.mulStride(k.stride)
		l.op(wasm.OpI32Add)
		l.get(val)
		l.storePush(k)
	}

	l.get(arr)
	l.get(length)
	l.i32(1)
	l.op(wasm.OpI32Add)
	l.emit(wasm.Mem(wasm.OpI32Store, 2, layout.ArrayLengthOff))
	l.get(length)
	l.i32(1)
	l.op(wasm.OpI32Add)

	return wasm.Func{Name: "__push_" + k.suffix(), Locals: l.slots.scratch, Body: l.out}
}

func (l *funcLowerer) storePush(k pushKey) {
	l.emit(wasm.Mem(pushStoreOp(k), uint32(bits.TrailingZeros32(k.stride)), layout.ObjectDataOff))
}

func pushStoreOp(k pushKey) wasm.Opcode {
	switch k.stride {
	case 1:
		return wasm.OpI32Store8
	case 2:
		return wasm.OpI32Store16
	case 4:
		if k.val == wasm.F32 {
			return wasm.OpF32Store
		}
		return wasm.OpI32Store
	default:
		if k.val == wasm.F64 {
			return wasm.OpF64Store
		}
		return wasm.OpI64Store
	}
}

// synthStart builds the module start function that runs the global
// initializers the layout plan could not seed into the data segment,
// in declaration order.
func (u *Unit) synthStart(r diag.Reporter) (wasm.Func, bool) {
	l := u.newLowerer(r, u.res.Init, 0)
	for i := range u.res.Globals {
		gid := ast.GlobalID(i + 1)
		decl := u.prog.Decls.Global(gid)
		if decl == nil || !decl.Init.IsValid() || u.plan.StaticInit(gid) {
			continue
		}
		cell, ok := u.plan.GlobalCell(gid)
		if !ok {
			panic("lower: global without a storage cell")
		}
		t := u.res.Global(gid).Type
		l.u32(cell)
		l.lowerExpr(decl.Init)
		if u.res.Types.IsReference(t) && u.binder.Uses(rt.OpRetain) {
			l.hook(rt.OpRetain)
		}
		l.storeValue(t, 0)
	}
	if l.failed {
		return wasm.Func{}, false
	}
	return wasm.Func{Name: "__start", Locals: l.slots.scratch, Body: l.out}, true
}
