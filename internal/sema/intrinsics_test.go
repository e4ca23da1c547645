package sema

import (
	"testing"

	"wasc/internal/ast"
	"wasc/internal/diag"
	"wasc/internal/intrin"
	"wasc/internal/types"
)

func TestIntrinsicLoad(t *testing.T) {
	t.Run("typed by the type argument", func(t *testing.T) {
		p := newProg(t)
		ld := p.call("load", []ast.TypeExprID{p.named("f64")}, p.ident("addr"))
		fid := p.fn("f", []ast.Param{p.param("addr", p.named("u32"))}, p.named("f64"),
			p.ret(ld),
		)
		res, bag := p.check()
		wantClean(t, bag)
		body := res.Body(fid, NoInstID)
		if got := body.ExprTypes[ld]; got != res.Types.Builtins().F64 {
			t.Errorf("load<f64> typed %v", got)
		}
		tgt := body.Calls[ld]
		if tgt.Kind != CallIntrin || tgt.Intrin.Op != intrin.OpLoad {
			t.Fatalf("resolved as %+v", tgt)
		}
		if tgt.Intrin.Elem != types.KindFloat || tgt.Intrin.Width != types.Width64 {
			t.Errorf("bound to %v/%v", tgt.Intrin.Elem, tgt.Intrin.Width)
		}
	})

	t.Run("constant offset folds into the immediate", func(t *testing.T) {
		p := newProg(t)
		ld := p.call("load", []ast.TypeExprID{p.named("i32")}, p.ident("addr"), p.intLit(8))
		fid := p.fn("f", []ast.Param{p.param("addr", p.named("u32"))}, p.named("i32"),
			p.ret(ld),
		)
		res, bag := p.check()
		wantClean(t, bag)
		call := res.Body(fid, NoInstID).Calls[ld].Intrin
		if call.Offset != 8 || call.AddOffset {
			t.Errorf("offset=%d add=%v, want folded 8", call.Offset, call.AddOffset)
		}
	})

	t.Run("variable offset adds at run time", func(t *testing.T) {
		p := newProg(t)
		ld := p.call("load", []ast.TypeExprID{p.named("i32")}, p.ident("addr"), p.ident("off"))
		fid := p.fn("f",
			[]ast.Param{p.param("addr", p.named("u32")), p.param("off", p.named("u32"))},
			p.named("i32"),
			p.ret(ld),
		)
		res, bag := p.check()
		wantClean(t, bag)
		call := res.Body(fid, NoInstID).Calls[ld].Intrin
		if call.Offset != 0 || !call.AddOffset {
			t.Errorf("offset=%d add=%v, want run-time add", call.Offset, call.AddOffset)
		}
	})

	t.Run("non-numeric access rejected", func(t *testing.T) {
		p := newProg(t)
		p.fn("f", []ast.Param{p.param("addr", p.named("u32"))}, ast.NoTypeExprID,
			p.exprStmt(p.call("load", []ast.TypeExprID{p.named("bool")}, p.ident("addr"))),
		)
		_, bag := p.check()
		wantCode(t, bag, diag.InvalidIntrinsicUse)
	})

	t.Run("address must be 32-bit", func(t *testing.T) {
		p := newProg(t)
		p.fn("f", []ast.Param{p.param("addr", p.named("i64"))}, ast.NoTypeExprID,
			p.exprStmt(p.call("load", []ast.TypeExprID{p.named("i32")}, p.ident("addr"))),
		)
		_, bag := p.check()
		wantCode(t, bag, diag.InvalidIntrinsicUse)
	})
}

func TestIntrinsicStore(t *testing.T) {
	t.Run("value adopts the accessed type", func(t *testing.T) {
		p := newProg(t)
		lit := p.intLit(300)
		st := p.call("store", []ast.TypeExprID{p.named("i64")}, p.ident("addr"), lit)
		fid := p.fn("f", []ast.Param{p.param("addr", p.named("u32"))}, ast.NoTypeExprID,
			p.exprStmt(st),
		)
		res, bag := p.check()
		wantClean(t, bag)
		body := res.Body(fid, NoInstID)
		if got := body.ExprTypes[lit]; got != res.Types.Builtins().I64 {
			t.Errorf("store value typed %v, want i64", got)
		}
		if got := body.ExprTypes[st]; res.Types.Kind(got) != types.KindVoid {
			t.Errorf("store result %v, want void", got)
		}
	})

	t.Run("reference value marks the barrier", func(t *testing.T) {
		p := newProg(t)
		p.class("node", "")
		mk := p.b.Exprs.NewNew(p.sp(), p.named("node"), nil)
		st := p.call("store", []ast.TypeExprID{p.named("u32")}, p.ident("addr"), mk)
		fid := p.fn("f", []ast.Param{p.param("addr", p.named("u32"))}, ast.NoTypeExprID,
			p.exprStmt(st),
		)
		res, bag := p.check()
		wantClean(t, bag)
		if call := res.Body(fid, NoInstID).Calls[st].Intrin; !call.RefValue {
			t.Error("reference store not flagged")
		}
	})

	t.Run("offset folding picks the third argument", func(t *testing.T) {
		p := newProg(t)
		st := p.call("store", []ast.TypeExprID{p.named("i32")},
			p.ident("addr"), p.intLit(1), p.intLit(12))
		fid := p.fn("f", []ast.Param{p.param("addr", p.named("u32"))}, ast.NoTypeExprID,
			p.exprStmt(st),
		)
		res, bag := p.check()
		wantClean(t, bag)
		call := res.Body(fid, NoInstID).Calls[st].Intrin
		if call.Offset != 12 || call.AddOffset {
			t.Errorf("offset=%d add=%v, want folded 12", call.Offset, call.AddOffset)
		}
	})

	t.Run("using the void result rejected", func(t *testing.T) {
		p := newProg(t)
		st := p.call("store", []ast.TypeExprID{p.named("i32")}, p.ident("addr"), p.intLit(1))
		p.fn("f", []ast.Param{p.param("addr", p.named("u32"))}, ast.NoTypeExprID,
			p.let("x", ast.NoTypeExprID, st),
		)
		_, bag := p.check()
		wantCode(t, bag, diag.TypeMismatch)
	})
}

func TestIntrinsicScalars(t *testing.T) {
	t.Run("clz keeps the operand type", func(t *testing.T) {
		p := newProg(t)
		c := p.call("clz", nil, p.ident("x"))
		fid := p.fn("f", []ast.Param{p.param("x", p.named("u64"))}, p.named("u64"), p.ret(c))
		res, bag := p.check()
		wantClean(t, bag)
		if got := res.Body(fid, NoInstID).ExprTypes[c]; got != res.Types.Builtins().U64 {
			t.Errorf("clz typed %v", got)
		}
	})

	t.Run("clz rejects narrow integers", func(t *testing.T) {
		p := newProg(t)
		p.fn("f", []ast.Param{p.param("x", p.named("u8"))}, ast.NoTypeExprID,
			p.exprStmt(p.call("clz", nil, p.ident("x"))),
		)
		_, bag := p.check()
		wantCode(t, bag, diag.InvalidIntrinsicUse)
	})

	t.Run("sqrt needs a float", func(t *testing.T) {
		p := newProg(t)
		c := p.call("sqrt", nil, p.ident("x"))
		fid := p.fn("f", []ast.Param{p.param("x", p.named("f32"))}, p.named("f32"), p.ret(c))
		res, bag := p.check()
		wantClean(t, bag)
		if got := res.Body(fid, NoInstID).ExprTypes[c]; got != res.Types.Builtins().F32 {
			t.Errorf("sqrt typed %v", got)
		}

		p2 := newProg(t)
		p2.fn("f", []ast.Param{p2.param("x", p2.named("i32"))}, ast.NoTypeExprID,
			p2.exprStmt(p2.call("sqrt", nil, p2.ident("x"))),
		)
		_, bag2 := p2.check()
		wantCode(t, bag2, diag.InvalidIntrinsicUse)
	})

	t.Run("rotl count follows the value", func(t *testing.T) {
		p := newProg(t)
		c := p.call("rotl", nil, p.ident("x"), p.intLit(3))
		fid := p.fn("f", []ast.Param{p.param("x", p.named("u64"))}, p.named("u64"), p.ret(c))
		res, bag := p.check()
		wantClean(t, bag)
		body := res.Body(fid, NoInstID)
		if got := body.ExprTypes[c]; got != res.Types.Builtins().U64 {
			t.Errorf("rotl typed %v", got)
		}
	})

	t.Run("min arguments must agree", func(t *testing.T) {
		p := newProg(t)
		p.fn("f",
			[]ast.Param{p.param("a", p.named("f32")), p.param("b", p.named("f64"))},
			ast.NoTypeExprID,
			p.exprStmt(p.call("min", nil, p.ident("a"), p.ident("b"))),
		)
		_, bag := p.check()
		wantCode(t, bag, diag.InvalidIntrinsicUse)
	})
}

func TestIntrinsicSelect(t *testing.T) {
	t.Run("condition is the last operand", func(t *testing.T) {
		p := newProg(t)
		sel := p.call("select", nil, p.ident("a"), p.ident("b"), p.ident("c"))
		fid := p.fn("f",
			[]ast.Param{
				p.param("a", p.named("f64")),
				p.param("b", p.named("f64")),
				p.param("c", p.named("bool")),
			},
			p.named("f64"),
			p.ret(sel),
		)
		res, bag := p.check()
		wantClean(t, bag)
		body := res.Body(fid, NoInstID)
		if got := body.ExprTypes[sel]; got != res.Types.Builtins().F64 {
			t.Errorf("select typed %v", got)
		}
		if tgt := body.Calls[sel]; tgt.Intrin.Op != intrin.OpSelect {
			t.Errorf("resolved as %+v", tgt)
		}
	})

	t.Run("class branches widen to the named type", func(t *testing.T) {
		p := newProg(t)
		p.class("shape", "")
		p.class("circle", "shape")
		sel := p.call("select", []ast.TypeExprID{p.named("shape")},
			p.ident("c"), p.ident("s"), p.boolLit(true))
		fid := p.fn("f",
			[]ast.Param{p.param("c", p.named("circle")), p.param("s", p.named("shape"))},
			p.named("shape"),
			p.ret(sel),
		)
		res, bag := p.check()
		wantClean(t, bag)
		shape, _ := res.ClassByName(p.b.Intern("shape"))
		if got := res.Body(fid, NoInstID).ExprTypes[sel]; got != shape {
			t.Errorf("select typed %v, want shape", got)
		}
	})

	t.Run("swapped condition rejected", func(t *testing.T) {
		p := newProg(t)
		p.fn("f",
			[]ast.Param{p.param("c", p.named("bool")), p.param("x", p.named("i32"))},
			ast.NoTypeExprID,
			p.exprStmt(p.call("select", nil, p.ident("c"), p.ident("x"), p.ident("x"))),
		)
		_, bag := p.check()
		wantCode(t, bag, diag.InvalidIntrinsicUse)
	})
}

func TestIntrinsicMemory(t *testing.T) {
	p := newProg(t)
	size := p.call("memory.size", nil)
	grow := p.call("memory.grow", nil, p.intLit(2))
	fid := p.fn("f", nil, p.named("i32"),
		p.exprStmt(grow),
		p.ret(size),
	)
	res, bag := p.check()
	wantClean(t, bag)
	body := res.Body(fid, NoInstID)
	b := res.Types.Builtins()
	if body.ExprTypes[size] != b.I32 || body.ExprTypes[grow] != b.I32 {
		t.Error("memory intrinsics not typed i32")
	}
	if tgt := body.Calls[size]; tgt.Intrin.Op != intrin.OpMemorySize {
		t.Errorf("memory.size resolved as %+v", tgt)
	}
}

func TestIntrinsicReinterpret(t *testing.T) {
	t.Run("bits across the float boundary", func(t *testing.T) {
		p := newProg(t)
		ri := p.call("reinterpret", []ast.TypeExprID{p.named("f32")}, p.ident("x"))
		fid := p.fn("f", []ast.Param{p.param("x", p.named("i32"))}, p.named("f32"), p.ret(ri))
		res, bag := p.check()
		wantClean(t, bag)
		if got := res.Body(fid, NoInstID).ExprTypes[ri]; got != res.Types.Builtins().F32 {
			t.Errorf("reinterpret typed %v", got)
		}
	})

	t.Run("same-kind reinterpret rejected", func(t *testing.T) {
		p := newProg(t)
		p.fn("f", []ast.Param{p.param("x", p.named("i32"))}, ast.NoTypeExprID,
			p.exprStmt(p.call("reinterpret", []ast.TypeExprID{p.named("u32")}, p.ident("x"))),
		)
		_, bag := p.check()
		wantCode(t, bag, diag.InvalidIntrinsicUse)
	})
}

func TestIntrinsicShadowedByDeclaration(t *testing.T) {
	p := newProg(t)
	own := p.fn("load", []ast.Param{p.param("x", p.named("i32"))}, p.named("i32"),
		p.ret(p.ident("x")),
	)
	c := p.call("load", nil, p.intLit(1))
	fid := p.fn("f", nil, p.named("i32"), p.ret(c))
	res, bag := p.check()
	wantClean(t, bag)
	tgt := res.Body(fid, NoInstID).Calls[c]
	if tgt.Kind != CallFunc || tgt.Func != own {
		t.Errorf("declared function must shadow the intrinsic, got %+v", tgt)
	}
}
