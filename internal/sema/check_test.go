package sema

import (
	"context"
	"strings"
	"testing"

	"wasc/internal/ast"
	"wasc/internal/diag"
	"wasc/internal/source"
	"wasc/internal/types"
)

// testProg builds little programs node by node. Spans are synthesized from
// a counter so every node gets a distinct position.
type testProg struct {
	t   *testing.T
	b   *ast.Builder
	pos uint32
}

func newProg(t *testing.T) *testProg {
	t.Helper()
	return &testProg{t: t, b: ast.NewBuilder(ast.Hints{})}
}

func (p *testProg) sp() source.Span {
	p.pos += 2
	return source.Span{File: 1, Start: p.pos, End: p.pos + 1}
}

func (p *testProg) named(name string) ast.TypeExprID {
	return p.b.Types.NewNamed(p.sp(), p.b.Intern(name))
}

func (p *testProg) arrayOf(elem ast.TypeExprID) ast.TypeExprID {
	return p.b.Types.NewArray(p.sp(), elem, ast.DynamicLen)
}

func (p *testProg) fixedOf(elem ast.TypeExprID, n uint32) ast.TypeExprID {
	return p.b.Types.NewArray(p.sp(), elem, n)
}

func (p *testProg) intLit(v uint64) ast.ExprID     { return p.b.Exprs.NewIntLit(p.sp(), v) }
func (p *testProg) floatLit(v float64) ast.ExprID  { return p.b.Exprs.NewFloatLit(p.sp(), v) }
func (p *testProg) boolLit(v bool) ast.ExprID      { return p.b.Exprs.NewBoolLit(p.sp(), v) }
func (p *testProg) strLit(s string) ast.ExprID     { return p.b.Exprs.NewStringLit(p.sp(), p.b.Intern(s)) }
func (p *testProg) ident(name string) ast.ExprID   { return p.b.Exprs.NewIdent(p.sp(), p.b.Intern(name)) }
func (p *testProg) neg(operand ast.ExprID) ast.ExprID {
	return p.b.Exprs.NewUnary(p.sp(), ast.UnNeg, operand)
}

func (p *testProg) bin(op ast.BinOp, l, r ast.ExprID) ast.ExprID {
	return p.b.Exprs.NewBinary(p.sp(), op, l, r)
}

func (p *testProg) call(name string, typeArgs []ast.TypeExprID, args ...ast.ExprID) ast.ExprID {
	return p.b.Exprs.NewCall(p.sp(), p.b.Intern(name), typeArgs, args)
}

func (p *testProg) param(name string, typ ast.TypeExprID) ast.Param {
	return ast.Param{Name: p.b.Intern(name), Type: typ, Span: p.sp()}
}

func (p *testProg) let(name string, typ ast.TypeExprID, init ast.ExprID) ast.StmtID {
	return p.b.Stmts.NewLet(p.sp(), p.b.Intern(name), typ, init)
}

func (p *testProg) ret(value ast.ExprID) ast.StmtID {
	return p.b.Stmts.NewReturn(p.sp(), value)
}

func (p *testProg) exprStmt(e ast.ExprID) ast.StmtID {
	return p.b.Stmts.NewExpr(p.sp(), e)
}

func (p *testProg) block(stmts ...ast.StmtID) ast.StmtID {
	return p.b.Stmts.NewBlock(p.sp(), stmts)
}

func (p *testProg) fn(name string, params []ast.Param, result ast.TypeExprID, body ...ast.StmtID) ast.FuncID {
	return p.b.Decls.AddFunc(ast.FuncData{
		Name:   p.b.Intern(name),
		Params: params,
		Result: result,
		Body:   p.block(body...),
		Span:   p.sp(),
	})
}

func (p *testProg) genericFn(name string, tps []string, params []ast.Param, result ast.TypeExprID, body ...ast.StmtID) ast.FuncID {
	tpIDs := make([]source.StringID, len(tps))
	for i, tp := range tps {
		tpIDs[i] = p.b.Intern(tp)
	}
	return p.b.Decls.AddFunc(ast.FuncData{
		Name:       p.b.Intern(name),
		TypeParams: tpIDs,
		Params:     params,
		Result:     result,
		Body:       p.block(body...),
		Span:       p.sp(),
	})
}

func (p *testProg) class(name, base string, fields ...ast.FieldDef) ast.ClassID {
	baseID := source.NoStringID
	if base != "" {
		baseID = p.b.Intern(base)
	}
	return p.b.Decls.AddClass(ast.ClassData{
		Name:   p.b.Intern(name),
		Base:   baseID,
		Fields: fields,
		Span:   p.sp(),
	})
}

func (p *testProg) field(name string, typ ast.TypeExprID) ast.FieldDef {
	return ast.FieldDef{Name: p.b.Intern(name), Type: typ, Span: p.sp()}
}

func (p *testProg) global(name string, typ ast.TypeExprID, init ast.ExprID, mutable bool) ast.GlobalID {
	return p.b.Decls.AddGlobal(ast.GlobalData{
		Name:    p.b.Intern(name),
		Type:    typ,
		Init:    init,
		Mutable: mutable,
		Span:    p.sp(),
	})
}

func (p *testProg) check() (*Result, *diag.Bag) {
	p.t.Helper()
	bag := diag.NewBag(64)
	res, err := Check(context.Background(), p.b.Program(), Options{
		Reporter: diag.BagReporter{Bag: bag},
		Jobs:     1,
	})
	if err != nil {
		p.t.Fatalf("Check returned %v", err)
	}
	return res, bag
}

func wantClean(t *testing.T, bag *diag.Bag) {
	t.Helper()
	if bag.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", bag.Items())
	}
}

func wantCode(t *testing.T, bag *diag.Bag, code diag.Code) {
	t.Helper()
	for _, d := range bag.Items() {
		if d.Code == code {
			return
		}
	}
	t.Fatalf("want diagnostic %v, got %v", code, bag.Items())
}

func wantMessage(t *testing.T, bag *diag.Bag, sub string) {
	t.Helper()
	for _, d := range bag.Items() {
		if strings.Contains(d.Message, sub) {
			return
		}
	}
	t.Fatalf("no diagnostic mentions %q in %v", sub, bag.Items())
}

func TestCheckAddFunction(t *testing.T) {
	p := newProg(t)
	sum := p.bin(ast.BinAdd, p.ident("a"), p.ident("b"))
	fid := p.fn("add",
		[]ast.Param{p.param("a", p.named("i32")), p.param("b", p.named("i32"))},
		p.named("i32"),
		p.ret(sum),
	)

	res, bag := p.check()
	wantClean(t, bag)

	sig := res.Sig(fid)
	b := res.Types.Builtins()
	if sig.Result != b.I32 || len(sig.Params) != 2 {
		t.Fatalf("signature mismatch: %+v", sig)
	}
	body := res.Body(fid, NoInstID)
	if body == nil {
		t.Fatal("no checked body")
	}
	if got := body.ExprTypes[sum]; got != b.I32 {
		t.Errorf("a+b typed %v, want i32", got)
	}
	if len(body.Locals) != 2 {
		t.Errorf("locals = %d, want the two parameters", len(body.Locals))
	}
}

func TestCheckResolvesIdentifiers(t *testing.T) {
	p := newProg(t)
	g := p.global("answer", p.named("i32"), p.intLit(42), true)
	use := p.ident("answer")
	local := p.ident("x")
	fid := p.fn("f", nil, p.named("i32"),
		p.let("x", ast.NoTypeExprID, use),
		p.ret(local),
	)

	res, bag := p.check()
	wantClean(t, bag)
	body := res.Body(fid, NoInstID)
	if ref := body.Idents[use]; ref.Kind != RefGlobal || ref.Index != uint32(g) {
		t.Errorf("global ref = %+v", ref)
	}
	if ref := body.Idents[local]; ref.Kind != RefLocal {
		t.Errorf("local ref = %+v", ref)
	}
}

func TestCheckDuplicateSymbols(t *testing.T) {
	cases := []struct {
		name  string
		build func(p *testProg)
	}{
		{"two functions", func(p *testProg) {
			p.fn("f", nil, ast.NoTypeExprID)
			p.fn("f", nil, ast.NoTypeExprID)
		}},
		{"class then function", func(p *testProg) {
			p.class("thing", "")
			p.fn("thing", nil, ast.NoTypeExprID)
		}},
		{"function then global", func(p *testProg) {
			p.fn("g", nil, ast.NoTypeExprID)
			p.global("g", p.named("i32"), p.intLit(0), true)
		}},
		{"field twice", func(p *testProg) {
			p.class("c", "", p.field("x", p.named("i32")), p.field("x", p.named("i32")))
		}},
		{"let twice in one scope", func(p *testProg) {
			p.fn("f", nil, ast.NoTypeExprID,
				p.let("x", p.named("i32"), p.intLit(1)),
				p.let("x", p.named("i32"), p.intLit(2)),
			)
		}},
		{"let shadows parameter", func(p *testProg) {
			p.fn("f", []ast.Param{p.param("x", p.named("i32"))}, ast.NoTypeExprID,
				p.let("x", p.named("i32"), p.intLit(1)),
			)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newProg(t)
			tc.build(p)
			_, bag := p.check()
			wantCode(t, bag, diag.DuplicateSymbol)
		})
	}
}

func TestCheckGlobalInitOrder(t *testing.T) {
	t.Run("forward reference rejected", func(t *testing.T) {
		p := newProg(t)
		p.global("a", ast.NoTypeExprID, p.bin(ast.BinAdd, p.ident("b"), p.intLit(1)), true)
		p.global("b", p.named("i32"), p.intLit(1), true)
		_, bag := p.check()
		wantCode(t, bag, diag.UnresolvedSymbol)
		wantMessage(t, bag, "before its declaration")
	})

	t.Run("backward reference and calls work", func(t *testing.T) {
		p := newProg(t)
		p.fn("double", []ast.Param{p.param("x", p.named("i32"))}, p.named("i32"),
			p.ret(p.bin(ast.BinMul, p.ident("x"), p.intLit(2))),
		)
		p.global("b", p.named("i32"), p.intLit(21), true)
		g := p.global("a", ast.NoTypeExprID, p.call("double", nil, p.ident("b")), true)
		res, bag := p.check()
		wantClean(t, bag)
		if got := res.Global(g).Type; got != res.Types.Builtins().I32 {
			t.Errorf("inferred %v, want i32", got)
		}
		if res.Init == nil || len(res.Init.Calls) != 1 {
			t.Errorf("initializer call not recorded")
		}
	})

	t.Run("immutable needs initializer", func(t *testing.T) {
		p := newProg(t)
		p.global("k", p.named("i32"), ast.NoExprID, false)
		_, bag := p.check()
		wantCode(t, bag, diag.TypeMismatch)
	})
}

func TestCheckAssignments(t *testing.T) {
	t.Run("immutable global", func(t *testing.T) {
		p := newProg(t)
		p.global("k", p.named("i32"), p.intLit(1), false)
		p.fn("f", nil, ast.NoTypeExprID,
			p.b.Stmts.NewAssign(p.sp(), p.ident("k"), p.intLit(2)),
		)
		_, bag := p.check()
		wantCode(t, bag, diag.TypeMismatch)
		wantMessage(t, bag, "immutable")
	})

	t.Run("array element", func(t *testing.T) {
		p := newProg(t)
		p.fn("f", []ast.Param{p.param("a", p.arrayOf(p.named("i32")))}, ast.NoTypeExprID,
			p.b.Stmts.NewAssign(p.sp(),
				p.b.Exprs.NewIndex(p.sp(), p.ident("a"), p.intLit(0)),
				p.intLit(7)),
		)
		_, bag := p.check()
		wantClean(t, bag)
	})

	t.Run("length is read-only", func(t *testing.T) {
		p := newProg(t)
		p.fn("f", []ast.Param{p.param("a", p.arrayOf(p.named("i32")))}, ast.NoTypeExprID,
			p.b.Stmts.NewAssign(p.sp(),
				p.b.Exprs.NewMember(p.sp(), p.ident("a"), p.b.Intern("length")),
				p.intLit(0)),
		)
		_, bag := p.check()
		wantMessage(t, bag, "read-only")
	})

	t.Run("value must match", func(t *testing.T) {
		p := newProg(t)
		p.fn("f", []ast.Param{p.param("x", p.named("i32"))}, ast.NoTypeExprID,
			p.b.Stmts.NewAssign(p.sp(), p.ident("x"), p.boolLit(true)),
		)
		_, bag := p.check()
		wantCode(t, bag, diag.TypeMismatch)
	})
}

func TestCheckControlFlow(t *testing.T) {
	t.Run("break outside loop", func(t *testing.T) {
		p := newProg(t)
		p.fn("f", nil, ast.NoTypeExprID, p.b.Stmts.NewBreak(p.sp()))
		_, bag := p.check()
		wantCode(t, bag, diag.TypeMismatch)
	})

	t.Run("loop with break and continue", func(t *testing.T) {
		p := newProg(t)
		p.fn("f", nil, ast.NoTypeExprID,
			p.b.Stmts.NewWhile(p.sp(), p.boolLit(true), p.block(
				p.b.Stmts.NewIf(p.sp(), p.boolLit(false), p.block(p.b.Stmts.NewBreak(p.sp())), ast.NoStmtID),
				p.b.Stmts.NewContinue(p.sp()),
			)),
		)
		_, bag := p.check()
		wantClean(t, bag)
	})

	t.Run("condition must be bool", func(t *testing.T) {
		p := newProg(t)
		p.fn("f", nil, ast.NoTypeExprID,
			p.b.Stmts.NewIf(p.sp(), p.intLit(1), p.block(), ast.NoStmtID),
		)
		_, bag := p.check()
		wantCode(t, bag, diag.TypeMismatch)
	})

	t.Run("for header scope", func(t *testing.T) {
		p := newProg(t)
		cond := p.bin(ast.BinLt, p.ident("i"), p.intLit(10))
		post := p.b.Stmts.NewAssign(p.sp(), p.ident("i"), p.bin(ast.BinAdd, p.ident("i"), p.intLit(1)))
		p.fn("f", nil, ast.NoTypeExprID,
			p.b.Stmts.NewFor(p.sp(), p.let("i", ast.NoTypeExprID, p.intLit(0)), cond, post, p.block()),
		)
		_, bag := p.check()
		wantClean(t, bag)
	})
}

func TestCheckMissingReturn(t *testing.T) {
	t.Run("open path reported", func(t *testing.T) {
		p := newProg(t)
		p.fn("f", []ast.Param{p.param("c", p.named("bool"))}, p.named("i32"),
			p.b.Stmts.NewIf(p.sp(), p.ident("c"), p.block(p.ret(p.intLit(1))), ast.NoStmtID),
		)
		_, bag := p.check()
		wantCode(t, bag, diag.TypeMismatch)
		wantMessage(t, bag, "missing return")
	})

	t.Run("both branches close", func(t *testing.T) {
		p := newProg(t)
		p.fn("f", []ast.Param{p.param("c", p.named("bool"))}, p.named("i32"),
			p.b.Stmts.NewIf(p.sp(), p.ident("c"),
				p.block(p.ret(p.intLit(1))),
				p.block(p.ret(p.intLit(2)))),
		)
		_, bag := p.check()
		wantClean(t, bag)
	})

	t.Run("infinite loop closes", func(t *testing.T) {
		p := newProg(t)
		p.fn("f", nil, p.named("i32"),
			p.b.Stmts.NewWhile(p.sp(), p.boolLit(true), p.block()),
		)
		_, bag := p.check()
		wantClean(t, bag)
	})

	t.Run("loop with break stays open", func(t *testing.T) {
		p := newProg(t)
		p.fn("f", nil, p.named("i32"),
			p.b.Stmts.NewWhile(p.sp(), p.boolLit(true), p.block(p.b.Stmts.NewBreak(p.sp()))),
		)
		_, bag := p.check()
		wantCode(t, bag, diag.TypeMismatch)
	})
}

func TestCheckUnreachableWarning(t *testing.T) {
	p := newProg(t)
	p.fn("f", nil, p.named("i32"),
		p.ret(p.intLit(1)),
		p.let("x", p.named("i32"), p.intLit(2)),
		p.let("y", p.named("i32"), p.intLit(3)),
	)
	_, bag := p.check()
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %v", bag.Items())
	}
	warnings := 0
	for _, d := range bag.Items() {
		if d.Code == diag.UnreachableCode {
			warnings++
		}
	}
	if warnings != 1 {
		t.Fatalf("want exactly one unreachable warning, got %d", warnings)
	}
}

func TestCheckVoidUse(t *testing.T) {
	p := newProg(t)
	p.fn("proc", nil, ast.NoTypeExprID)
	p.fn("f", nil, p.named("i32"),
		p.ret(p.bin(ast.BinAdd, p.call("proc", nil), p.intLit(1))),
	)
	_, bag := p.check()
	wantCode(t, bag, diag.TypeMismatch)
	wantMessage(t, bag, "void")
}

func TestCheckReturnMismatches(t *testing.T) {
	t.Run("value from void function", func(t *testing.T) {
		p := newProg(t)
		p.fn("f", nil, ast.NoTypeExprID, p.ret(p.intLit(1)))
		_, bag := p.check()
		wantCode(t, bag, diag.TypeMismatch)
	})
	t.Run("bare return from valued function", func(t *testing.T) {
		p := newProg(t)
		p.fn("f", nil, p.named("i32"), p.ret(ast.NoExprID))
		_, bag := p.check()
		wantCode(t, bag, diag.TypeMismatch)
	})
}

func TestCheckImportExportRules(t *testing.T) {
	t.Run("imported function callable", func(t *testing.T) {
		p := newProg(t)
		p.b.Decls.AddFunc(ast.FuncData{
			Name:         p.b.Intern("host_log"),
			Params:       []ast.Param{p.param("v", p.named("i32"))},
			Span:         p.sp(),
			Imported:     true,
			ImportModule: p.b.Intern("env"),
			ImportName:   p.b.Intern("log"),
		})
		p.fn("f", nil, ast.NoTypeExprID, p.exprStmt(p.call("host_log", nil, p.intLit(1))))
		res, bag := p.check()
		wantClean(t, bag)
		if body := res.Body(1, NoInstID); body != nil {
			t.Error("imported function must not get a checked body")
		}
	})

	t.Run("imported with body rejected", func(t *testing.T) {
		p := newProg(t)
		p.b.Decls.AddFunc(ast.FuncData{
			Name:     p.b.Intern("bad"),
			Body:     p.block(),
			Span:     p.sp(),
			Imported: true,
		})
		_, bag := p.check()
		wantCode(t, bag, diag.TypeMismatch)
	})

	t.Run("defined without body rejected", func(t *testing.T) {
		p := newProg(t)
		p.b.Decls.AddFunc(ast.FuncData{Name: p.b.Intern("bad"), Span: p.sp()})
		_, bag := p.check()
		wantCode(t, bag, diag.TypeMismatch)
	})

	t.Run("generic export rejected", func(t *testing.T) {
		p := newProg(t)
		id := p.b.Intern("g")
		p.b.Decls.AddFunc(ast.FuncData{
			Name:       id,
			TypeParams: []source.StringID{p.b.Intern("T")},
			Body:       p.block(),
			Span:       p.sp(),
			Exported:   true,
		})
		_, bag := p.check()
		wantCode(t, bag, diag.UnsupportedConstruct)
	})
}

func TestCheckArrayPush(t *testing.T) {
	t.Run("resizable", func(t *testing.T) {
		p := newProg(t)
		push := p.b.Exprs.NewMethodCall(p.sp(), p.ident("a"), p.b.Intern("push"), []ast.ExprID{p.intLit(5)})
		fid := p.fn("f", []ast.Param{p.param("a", p.arrayOf(p.named("i32")))}, p.named("i32"),
			p.ret(push),
		)
		res, bag := p.check()
		wantClean(t, bag)
		body := res.Body(fid, NoInstID)
		if tgt := body.Calls[push]; tgt.Kind != CallArrayPush {
			t.Errorf("push resolved as %v", tgt.Kind)
		}
		if got := body.ExprTypes[push]; got != res.Types.Builtins().I32 {
			t.Errorf("push typed %v, want i32", got)
		}
	})

	t.Run("fixed array rejected", func(t *testing.T) {
		p := newProg(t)
		push := p.b.Exprs.NewMethodCall(p.sp(), p.ident("a"), p.b.Intern("push"), []ast.ExprID{p.intLit(5)})
		p.fn("f", []ast.Param{p.param("a", p.fixedOf(p.named("i32"), 4))}, ast.NoTypeExprID,
			p.exprStmt(push),
		)
		_, bag := p.check()
		wantCode(t, bag, diag.TypeMismatch)
	})

	t.Run("unknown method", func(t *testing.T) {
		p := newProg(t)
		pop := p.b.Exprs.NewMethodCall(p.sp(), p.ident("a"), p.b.Intern("pop"), nil)
		p.fn("f", []ast.Param{p.param("a", p.arrayOf(p.named("i32")))}, ast.NoTypeExprID,
			p.exprStmt(pop),
		)
		_, bag := p.check()
		wantCode(t, bag, diag.UnresolvedSymbol)
	})
}

func TestCheckClassHierarchy(t *testing.T) {
	t.Run("subclass widening", func(t *testing.T) {
		p := newProg(t)
		p.class("shape", "", p.field("tag", p.named("i32")))
		p.class("circle", "shape", p.field("r", p.named("i32")))
		mk := p.b.Exprs.NewNew(p.sp(), p.named("circle"), []ast.ExprID{p.intLit(1), p.intLit(2)})
		p.fn("take", []ast.Param{p.param("s", p.named("shape"))}, ast.NoTypeExprID)
		p.fn("f", nil, ast.NoTypeExprID,
			p.let("s", p.named("shape"), mk),
			p.exprStmt(p.call("take", nil, p.ident("s"))),
		)
		_, bag := p.check()
		wantClean(t, bag)
	})

	t.Run("narrowing rejected", func(t *testing.T) {
		p := newProg(t)
		p.class("shape", "")
		p.class("circle", "shape")
		mk := p.b.Exprs.NewNew(p.sp(), p.named("shape"), nil)
		p.fn("f", nil, ast.NoTypeExprID,
			p.let("c", p.named("circle"), mk),
		)
		_, bag := p.check()
		wantCode(t, bag, diag.TypeMismatch)
	})

	t.Run("unknown base", func(t *testing.T) {
		p := newProg(t)
		p.class("circle", "shape")
		_, bag := p.check()
		wantCode(t, bag, diag.UnresolvedSymbol)
	})

	t.Run("inheritance cycle", func(t *testing.T) {
		p := newProg(t)
		p.class("a", "b")
		p.class("b", "a")
		_, bag := p.check()
		wantCode(t, bag, diag.TypeMismatch)
		wantMessage(t, bag, "cycle")
	})

	t.Run("field shadowing rejected", func(t *testing.T) {
		p := newProg(t)
		p.class("base", "", p.field("x", p.named("i32")))
		p.class("sub", "base", p.field("x", p.named("i32")))
		_, bag := p.check()
		wantCode(t, bag, diag.DuplicateSymbol)
	})

	t.Run("new covers inherited fields", func(t *testing.T) {
		p := newProg(t)
		p.class("shape", "", p.field("tag", p.named("i32")))
		p.class("circle", "shape", p.field("r", p.named("i32")))
		short := p.b.Exprs.NewNew(p.sp(), p.named("circle"), []ast.ExprID{p.intLit(1)})
		p.fn("f", nil, ast.NoTypeExprID, p.exprStmt(short))
		_, bag := p.check()
		wantCode(t, bag, diag.TypeMismatch)
		wantMessage(t, bag, "including inherited")
	})
}

func TestCheckReferenceLocalNeedsInit(t *testing.T) {
	p := newProg(t)
	p.class("node", "")
	p.fn("f", nil, ast.NoTypeExprID,
		p.let("n", p.named("node"), ast.NoExprID),
	)
	_, bag := p.check()
	wantCode(t, bag, diag.TypeMismatch)
	wantMessage(t, bag, "initializer")
}

func TestCheckParallelBodies(t *testing.T) {
	p := newProg(t)
	for i := range 8 {
		p.fn(string(rune('a'+i)), []ast.Param{p.param("x", p.named("i32"))}, p.named("i32"),
			p.ret(p.bin(ast.BinMul, p.ident("x"), p.ident("x"))),
		)
	}
	bag := diag.NewBag(64)
	res, err := Check(context.Background(), p.b.Program(), Options{
		Reporter: diag.BagReporter{Bag: bag},
		Jobs:     4,
	})
	if err != nil {
		t.Fatalf("Check returned %v", err)
	}
	wantClean(t, bag)
	if len(res.Bodies) != 8 {
		t.Fatalf("checked %d bodies, want 8", len(res.Bodies))
	}
}

func TestCheckCancellation(t *testing.T) {
	p := newProg(t)
	p.fn("f", nil, ast.NoTypeExprID)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Check(ctx, p.b.Program(), Options{}); err == nil {
		t.Fatal("want context error after cancellation")
	}
}

func TestCheckTypeResolution(t *testing.T) {
	t.Run("unknown type", func(t *testing.T) {
		p := newProg(t)
		p.fn("f", []ast.Param{p.param("x", p.named("wat"))}, ast.NoTypeExprID)
		_, bag := p.check()
		wantCode(t, bag, diag.UnresolvedSymbol)
	})
	t.Run("array shapes", func(t *testing.T) {
		p := newProg(t)
		fid := p.fn("f",
			[]ast.Param{
				p.param("a", p.arrayOf(p.named("i64"))),
				p.param("b", p.fixedOf(p.named("u8"), 16)),
			},
			ast.NoTypeExprID)
		res, bag := p.check()
		wantClean(t, bag)
		sig := res.Sig(fid)
		at := res.Types.MustLookup(sig.Params[0])
		bt := res.Types.MustLookup(sig.Params[1])
		if at.Kind != types.KindArray || at.Count != types.ArrayDynamicLength {
			t.Errorf("param a = %+v", at)
		}
		if bt.Kind != types.KindArray || bt.Count != 16 {
			t.Errorf("param b = %+v", bt)
		}
	})
}
