package link

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"wasc/internal/ast"
	"wasc/internal/diag"
	"wasc/internal/layout"
	"wasc/internal/lower"
	"wasc/internal/rt"
	"wasc/internal/sema"
	"wasc/internal/source"
	"wasc/internal/testkit"
	"wasc/internal/wasm"
)

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

func (p *testProg) intLit(v uint64) ast.ExprID   { return p.b.Exprs.NewIntLit(p.sp(), v) }
func (p *testProg) strLit(s string) ast.ExprID   { return p.b.Exprs.NewStringLit(p.sp(), p.b.Intern(s)) }
func (p *testProg) ident(name string) ast.ExprID { return p.b.Exprs.NewIdent(p.sp(), p.b.Intern(name)) }

func (p *testProg) bin(op ast.BinOp, l, r ast.ExprID) ast.ExprID {
	return p.b.Exprs.NewBinary(p.sp(), op, l, r)
}

func (p *testProg) param(name string, typ ast.TypeExprID) ast.Param {
	return ast.Param{Name: p.b.Intern(name), Type: typ, Span: p.sp()}
}

func (p *testProg) ret(value ast.ExprID) ast.StmtID {
	return p.b.Stmts.NewReturn(p.sp(), value)
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

func (p *testProg) expFn(name, exportAs string, params []ast.Param, result ast.TypeExprID, body ...ast.StmtID) ast.FuncID {
	exp := source.NoStringID
	if exportAs != "" {
		exp = p.b.Intern(exportAs)
	}
	return p.b.Decls.AddFunc(ast.FuncData{
		Name:       p.b.Intern(name),
		Params:     params,
		Result:     result,
		Body:       p.block(body...),
		Span:       p.sp(),
		Exported:   true,
		ExportName: exp,
	})
}

func (p *testProg) importFn(module, name string, params []ast.Param, result ast.TypeExprID) ast.FuncID {
	return p.importFnAs(module, "", name, params, result)
}

func (p *testProg) importFnAs(module, importName, name string, params []ast.Param, result ast.TypeExprID) ast.FuncID {
	imp := source.NoStringID
	if importName != "" {
		imp = p.b.Intern(importName)
	}
	return p.b.Decls.AddFunc(ast.FuncData{
		Name:         p.b.Intern(name),
		Params:       params,
		Result:       result,
		Body:         ast.NoStmtID,
		Span:         p.sp(),
		Imported:     true,
		ImportModule: p.b.Intern(module),
		ImportName:   imp,
	})
}

func (p *testProg) global(name string, typ ast.TypeExprID, init ast.ExprID, exported bool) ast.GlobalID {
	return p.b.Decls.AddGlobal(ast.GlobalData{
		Name:     p.b.Intern(name),
		Type:     typ,
		Init:     init,
		Mutable:  true,
		Exported: exported,
		Span:     p.sp(),
	})
}

// compiled carries one program through checking, layout and lowering so
// assembly tests can poke at every stage product.
type compiled struct {
	prog  *ast.Program
	plan  *layout.Plan
	unit  *lower.Unit
	funcs []wasm.Func
}

func (p *testProg) compile(strategy rt.Strategy) compiled {
	p.t.Helper()
	bag := diag.NewBag(64)
	prog := p.b.Program()
	res, err := sema.Check(context.Background(), prog, sema.Options{
		Reporter: diag.BagReporter{Bag: bag},
		Jobs:     1,
	})
	if err != nil {
		p.t.Fatalf("Check returned %v", err)
	}
	if bag.HasErrors() {
		p.t.Fatalf("unexpected diagnostics: %v", bag.Items())
	}
	eng, err := layout.NewEngine(layout.Wasm32(), res.Types, res.Classes)
	if err != nil {
		p.t.Fatalf("NewEngine: %v", err)
	}
	plan, err := layout.BuildPlan(prog, res, eng)
	if err != nil {
		p.t.Fatalf("BuildPlan: %v", err)
	}
	plan.Freeze()
	u := lower.NewUnit(prog, res, eng, plan, rt.NewBinder(strategy))
	funcs := make([]wasm.Func, u.NumFuncs())
	for i := range funcs {
		fnBag := diag.NewBag(8)
		fn, ok := u.Func(i, diag.BagReporter{Bag: fnBag})
		if !ok {
			p.t.Fatalf("lowering task %d failed: %v", i, fnBag.Items())
		}
		funcs[i] = fn
	}
	return compiled{prog: prog, plan: plan, unit: u, funcs: funcs}
}

func (c compiled) build(t *testing.T, opts Options) (*wasm.Module, *diag.Bag, bool) {
	t.Helper()
	bag := diag.NewBag(32)
	m, ok := Build(c.prog, c.unit, c.plan, c.funcs, opts, diag.BagReporter{Bag: bag})
	if ok {
		if err := testkit.CheckModuleInvariants(m); err != nil {
			t.Fatalf("module invariants: %v", err)
		}
	}
	return m, bag, ok
}

func hasCode(bag *diag.Bag, code diag.Code) bool {
	for _, d := range bag.Items() {
		if d.Code == code {
			return true
		}
	}
	return false
}

func TestBuildModule(t *testing.T) {
	p := newProg(t)
	p.importFn("env", "log", []ast.Param{p.param("x", p.named("i32"))}, ast.NoTypeExprID)
	add := p.expFn("add", "",
		[]ast.Param{p.param("a", p.named("i32")), p.param("b", p.named("i32"))},
		p.named("i32"),
		p.ret(p.bin(ast.BinAdd, p.ident("a"), p.ident("b"))),
	)
	p.fn("helper", nil, p.named("i32"), p.ret(p.intLit(1)))
	counter := p.global("counter", p.named("i32"), p.intLit(7), true)
	p.global("s", p.named("string"), p.strLit("hi"), false)

	c := p.compile(rt.StrategyNone)
	m, bag, ok := c.build(t, Options{})
	if !ok {
		t.Fatalf("Build failed: %v", bag.Items())
	}

	if len(m.Imports) != 2 {
		t.Fatalf("imports = %d, want allocate and env.log", len(m.Imports))
	}
	if m.Imports[0].Module != rt.Module || m.Imports[0].Name != "allocate" {
		t.Errorf("import 0 = %s.%s", m.Imports[0].Module, m.Imports[0].Name)
	}
	if m.Imports[1].Module != "env" || m.Imports[1].Name != "log" {
		t.Errorf("import 1 = %s.%s", m.Imports[1].Module, m.Imports[1].Name)
	}

	// add shares allocate's (i32,i32)->i32 signature; interning folds them.
	if len(m.Types) != 3 {
		t.Errorf("types = %d, want 3 distinct signatures", len(m.Types))
	}
	if len(m.Funcs) != 2 {
		t.Fatalf("funcs = %d", len(m.Funcs))
	}
	if m.Funcs[0].Type != m.Imports[0].Type {
		t.Errorf("add type %d, allocate type %d, want shared", m.Funcs[0].Type, m.Imports[0].Type)
	}

	addIdx, _ := c.unit.FuncIndex(add, sema.NoInstID)
	cell, _ := c.plan.GlobalCell(counter)
	wantExports := []wasm.Export{
		{Name: "add", Kind: wasm.ExportFunc, Index: addIdx},
		{Name: "counter", Kind: wasm.ExportGlobal, Index: 1},
		{Name: MemoryExport, Kind: wasm.ExportMemory, Index: 0},
		{Name: HeapBaseExport, Kind: wasm.ExportGlobal, Index: 0},
	}
	if len(m.Exports) != len(wantExports) {
		t.Fatalf("exports = %+v", m.Exports)
	}
	for i, want := range wantExports {
		if m.Exports[i] != want {
			t.Errorf("export %d = %+v, want %+v", i, m.Exports[i], want)
		}
	}

	if len(m.Globals) != 2 {
		t.Fatalf("globals = %+v", m.Globals)
	}
	if m.Globals[0].Mutable || m.Globals[0].Init != wasm.I32Const(int32(c.plan.HeapBase())) {
		t.Errorf("heap base global = %+v", m.Globals[0])
	}
	if m.Globals[1].Init != wasm.I32Const(int32(cell)) {
		t.Errorf("counter global = %+v, want address %d", m.Globals[1], cell)
	}

	if m.Mem.MinPages != c.plan.MinPages() || m.Mem.MinPages == 0 {
		t.Errorf("memory pages = %d, plan wants %d", m.Mem.MinPages, c.plan.MinPages())
	}
	if m.Mem.HasMax {
		t.Error("no max was configured")
	}
	if len(m.Data) == 0 {
		t.Error("static image produced no data segments")
	}
	if m.HasStart {
		t.Error("all initializers are static; no start function expected")
	}

	if err := wasm.ValidateModule(m); err != nil {
		t.Fatalf("assembled module does not validate: %v", err)
	}
}

func TestBuildStartSection(t *testing.T) {
	p := newProg(t)
	p.global("a", p.named("i32"), p.intLit(42), false)
	p.global("r", p.named("i32"), p.ident("a"), false)
	p.expFn("main", "", nil, ast.NoTypeExprID)

	c := p.compile(rt.StrategyNone)
	m, bag, ok := c.build(t, Options{})
	if !ok {
		t.Fatalf("Build failed: %v", bag.Items())
	}
	want, has := c.unit.Start()
	if !has {
		t.Fatal("unit has no start function")
	}
	if !m.HasStart || m.Start != want {
		t.Fatalf("start = %d (%v), want %d", m.Start, m.HasStart, want)
	}
	if err := wasm.ValidateModule(m); err != nil {
		t.Fatalf("module does not validate: %v", err)
	}
}

func TestDuplicateExport(t *testing.T) {
	p := newProg(t)
	p.expFn("first", "run", nil, p.named("i32"), p.ret(p.intLit(1)))
	p.expFn("second", "run", nil, p.named("i32"), p.ret(p.intLit(2)))

	c := p.compile(rt.StrategyNone)
	m, bag, ok := c.build(t, Options{})
	if ok || m != nil {
		t.Fatal("duplicate export must not produce a module")
	}
	if !hasCode(bag, diag.DuplicateExport) {
		t.Fatalf("want DuplicateExport, got %v", bag.Items())
	}
}

func TestExportNameCollidesWithReserved(t *testing.T) {
	for _, name := range []string{MemoryExport, HeapBaseExport} {
		p := newProg(t)
		p.expFn("f", name, nil, p.named("i32"), p.ret(p.intLit(1)))
		c := p.compile(rt.StrategyNone)
		m, bag, ok := c.build(t, Options{})
		if ok || m != nil {
			t.Fatalf("export %q must collide with the reserved name", name)
		}
		if !hasCode(bag, diag.DuplicateExport) {
			t.Fatalf("want DuplicateExport for %q, got %v", name, bag.Items())
		}
	}
}

func TestReservedRuntimeImport(t *testing.T) {
	p := newProg(t)
	p.importFn("rt", "helper", []ast.Param{p.param("x", p.named("i32"))}, p.named("i32"))
	p.fn("main", nil, ast.NoTypeExprID)

	c := p.compile(rt.StrategyRC)
	m, bag, ok := c.build(t, Options{})
	if ok || m != nil {
		t.Fatal("rt namespace import must fail")
	}
	if !hasCode(bag, diag.UnresolvedImport) {
		t.Fatalf("want UnresolvedImport, got %v", bag.Items())
	}
}

func TestImportSignatureAgreement(t *testing.T) {
	p := newProg(t)
	p.importFnAs("env", "log", "logInt", []ast.Param{p.param("x", p.named("i32"))}, ast.NoTypeExprID)
	p.importFnAs("env", "log", "logFloat", []ast.Param{p.param("x", p.named("f64"))}, ast.NoTypeExprID)
	p.fn("main", nil, ast.NoTypeExprID)

	c := p.compile(rt.StrategyNone)
	m, bag, ok := c.build(t, Options{})
	if ok || m != nil {
		t.Fatal("conflicting signatures for one import must fail")
	}
	if !hasCode(bag, diag.UnresolvedImport) {
		t.Fatalf("want UnresolvedImport, got %v", bag.Items())
	}

	// The same pair twice with one signature is just a repeated entry.
	p = newProg(t)
	p.importFnAs("env", "log", "logA", []ast.Param{p.param("x", p.named("i32"))}, ast.NoTypeExprID)
	p.importFnAs("env", "log", "logB", []ast.Param{p.param("x", p.named("i32"))}, ast.NoTypeExprID)
	p.fn("main", nil, ast.NoTypeExprID)

	c = p.compile(rt.StrategyNone)
	m, bag, ok = c.build(t, Options{})
	if !ok {
		t.Fatalf("agreeing import entries should link: %v", bag.Items())
	}
	if len(m.Imports) != 3 {
		t.Fatalf("imports = %+v", m.Imports)
	}
}

func TestMemoryOptions(t *testing.T) {
	p := newProg(t)
	p.expFn("main", "", nil, ast.NoTypeExprID)
	c := p.compile(rt.StrategyNone)

	m, bag, ok := c.build(t, Options{MinPages: 16, MaxPages: 32})
	if !ok {
		t.Fatalf("Build failed: %v", bag.Items())
	}
	if m.Mem.MinPages != 16 || !m.Mem.HasMax || m.Mem.MaxPages != 32 {
		t.Fatalf("memory = %+v", m.Mem)
	}

	_, bag, ok = c.build(t, Options{MinPages: 8, MaxPages: 2})
	if ok {
		t.Fatal("cap below the floor must fail")
	}
	if !hasCode(bag, diag.LayoutOverflow) {
		t.Fatalf("want LayoutOverflow, got %v", bag.Items())
	}
}

func TestEmitArtifacts(t *testing.T) {
	p := newProg(t)
	p.expFn("add",
		"",
		[]ast.Param{p.param("a", p.named("i32")), p.param("b", p.named("i32"))},
		p.named("i32"),
		p.ret(p.bin(ast.BinAdd, p.ident("a"), p.ident("b"))),
	)
	p.fn("helper", nil, p.named("i32"), p.ret(p.intLit(1)))

	c := p.compile(rt.StrategyNone)
	m, bag, ok := c.build(t, Options{})
	if !ok {
		t.Fatalf("Build failed: %v", bag.Items())
	}

	a, err := Emit(m, true, true)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	magic := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	if len(a.Module) < 8 || !bytes.Equal(a.Module[:8], magic) {
		t.Fatal("encoded module lacks the format header")
	}
	if !strings.Contains(a.WAT, "add") {
		t.Error("disassembly never mentions the exported function")
	}
	if len(a.NameMap) != len(m.Funcs) {
		t.Fatalf("name map = %+v", a.NameMap)
	}
	for i := range a.NameMap {
		if a.NameMap[i].Name != m.Funcs[i].Name {
			t.Errorf("name map entry %d = %q, func is %q", i, a.NameMap[i].Name, m.Funcs[i].Name)
		}
		if i > 0 && a.NameMap[i].Offset <= a.NameMap[i-1].Offset {
			t.Errorf("name map offsets not increasing: %+v", a.NameMap)
		}
	}

	text := FormatNameMap(a.NameMap)
	if !strings.Contains(text, "add") || !strings.Contains(text, "0x") {
		t.Errorf("formatted map = %q", text)
	}

	// Nothing requested, nothing produced.
	bare, err := Emit(m, false, false)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if bare.WAT != "" || bare.NameMap != nil {
		t.Error("side artifacts produced without being requested")
	}
	if !bytes.Equal(bare.Module, a.Module) {
		t.Error("side artifacts changed the module bytes")
	}
}

func TestByteDeterminism(t *testing.T) {
	emit := func() []byte {
		p := newProg(t)
		p.importFn("env", "log", []ast.Param{p.param("x", p.named("i32"))}, ast.NoTypeExprID)
		p.expFn("join", "", nil, p.named("string"),
			p.ret(p.bin(ast.BinAdd, p.strLit("a"), p.strLit("b"))))
		p.global("base", p.named("i32"), p.intLit(7), true)
		p.global("twice", p.named("i32"), p.bin(ast.BinAdd, p.ident("base"), p.ident("base")), false)

		c := p.compile(rt.StrategyRC)
		m, bag, ok := c.build(t, Options{})
		if !ok {
			t.Fatalf("Build failed: %v", bag.Items())
		}
		a, err := Emit(m, false, false)
		if err != nil {
			t.Fatalf("Emit: %v", err)
		}
		return a.Module
	}
	if !bytes.Equal(emit(), emit()) {
		t.Fatal("identical programs produced different bytes")
	}
}
