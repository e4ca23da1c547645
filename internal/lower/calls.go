package lower

import (
	"math"

	"wasc/internal/ast"
	"wasc/internal/intrin"
	"wasc/internal/rt"
	"wasc/internal/sema"
	"wasc/internal/wasm"
)

func (l *funcLowerer) lowerCall(id ast.ExprID) {
	data, _ := l.u.prog.Exprs.Call(id)
	ct, ok := l.body.Calls[id]
	if !ok {
		panic("lower: call site was not resolved")
	}
	switch ct.Kind {
	case sema.CallFunc, sema.CallSpec:
		for _, a := range data.Args {
			l.lowerExpr(a)
		}
		l.call(l.targetIndex(ct))
	case sema.CallIntrin:
		l.lowerIntrin(data, ct.Intrin)
	case sema.CallArrayPush:
		recv := l.u.res.Types.MustLookup(l.exprType(data.Recv))
		l.lowerExpr(data.Recv)
		l.lowerExpr(data.Args[0])
		idx, ok := l.u.pushIndex[l.u.pushKeyFor(recv.Elem)]
		if !ok {
			panic("lower: push helper was not scheduled")
		}
		l.call(idx)
	}
}

func (l *funcLowerer) targetIndex(ct sema.CallTarget) uint32 {
	if l.u.res.Sig(ct.Func).Imported {
		idx, ok := l.u.callIndex[ct.Func]
		if !ok {
			panic("lower: imported function has no index")
		}
		return idx
	}
	idx, ok := l.u.index[sema.BodyKey{Func: ct.Func, Inst: ct.Inst}]
	if !ok {
		panic("lower: call target has no function index")
	}
	return idx
}

// lowerIntrin expands a checked intrinsic call in place. A constant
// offset argument is already folded into c.Offset; a dynamic one is added
// to the address operand here.
func (l *funcLowerer) lowerIntrin(data *ast.ExprCallData, c intrin.Call) {
	switch c.Op {
	case intrin.OpLoad:
		l.lowerExpr(data.Args[0])
		if c.AddOffset {
			l.lowerExpr(data.Args[1])
			l.op(wasm.OpI32Add)
		}
		l.emit(intrin.Expand(c))
	case intrin.OpStore:
		if c.RefValue && l.u.binder.Uses(rt.OpWriteBarrier) && !l.staticStore(data, c) {
			l.lowerStoreBarrier(data, c)
			return
		}
		l.lowerExpr(data.Args[0])
		if c.AddOffset {
			l.lowerExpr(data.Args[2])
			l.op(wasm.OpI32Add)
		}
		l.lowerExpr(data.Args[1])
		l.emit(intrin.Expand(c))
	default:
		for _, a := range data.Args {
			l.lowerExpr(a)
		}
		l.emit(intrin.Expand(c))
	}
}

// staticStore reports whether a store lands entirely inside the frozen
// static segment. Static cells are collector roots, so such stores skip
// the barrier.
func (l *funcLowerer) staticStore(data *ast.ExprCallData, c intrin.Call) bool {
	if c.AddOffset {
		return false
	}
	addr, ok := l.constAddr(data.Args[0])
	if !ok {
		return false
	}
	end := uint64(addr) + uint64(c.Offset) + uint64(c.Width)/8
	return end <= uint64(l.u.plan.HeapBase())
}

// constAddr unwraps grouping and reads an integer-literal address.
func (l *funcLowerer) constAddr(id ast.ExprID) (uint32, bool) {
	for {
		ex := l.u.prog.Exprs.Get(id)
		if ex.Kind != ast.ExprGroup {
			break
		}
		data, _ := l.u.prog.Exprs.Group(id)
		id = data.Inner
	}
	ex := l.u.prog.Exprs.Get(id)
	if ex.Kind != ast.ExprLit {
		return 0, false
	}
	data, _ := l.u.prog.Exprs.Literal(id)
	if data.Kind != ast.LitInt || data.Int > math.MaxUint32 {
		return 0, false
	}
	return uint32(data.Int), true
}

// lowerStoreBarrier notifies the collector before a raw reference store.
// The address is the barrier's object argument; the collector treats
// pointers outside the heap as uninteresting.
func (l *funcLowerer) lowerStoreBarrier(data *ast.ExprCallData, c intrin.Call) {
	addr := l.temp(wasm.I32)
	val := l.temp(wasm.I32)
	l.lowerExpr(data.Args[0])
	if c.AddOffset {
		l.lowerExpr(data.Args[2])
		l.op(wasm.OpI32Add)
	}
	l.set(addr)
	l.lowerExpr(data.Args[1])
	l.set(val)
	l.get(addr)
	l.u32(c.Offset)
	l.get(val)
	l.hook(rt.OpWriteBarrier)
	l.get(addr)
	l.get(val)
	l.emit(intrin.Expand(c))
	l.freeTemp(addr)
	l.freeTemp(val)
}
