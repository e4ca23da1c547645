package pipeline

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"

	"wasc/internal/ast"
	"wasc/internal/diag"
	"wasc/internal/layout"
	"wasc/internal/link"
	"wasc/internal/observ"
	"wasc/internal/rt"
	"wasc/internal/source"
	"wasc/internal/testkit"
	"wasc/internal/trace"
	"wasc/internal/vm"
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

func (p *testProg) arrOf(elem ast.TypeExprID) ast.TypeExprID {
	return p.b.Types.NewArray(p.sp(), elem, ast.DynamicLen)
}

func (p *testProg) intLit(v uint64) ast.ExprID  { return p.b.Exprs.NewIntLit(p.sp(), v) }
func (p *testProg) boolLit(v bool) ast.ExprID   { return p.b.Exprs.NewBoolLit(p.sp(), v) }
func (p *testProg) strLit(s string) ast.ExprID  { return p.b.Exprs.NewStringLit(p.sp(), p.b.Intern(s)) }
func (p *testProg) ident(name string) ast.ExprID {
	return p.b.Exprs.NewIdent(p.sp(), p.b.Intern(name))
}

func (p *testProg) bin(op ast.BinOp, l, r ast.ExprID) ast.ExprID {
	return p.b.Exprs.NewBinary(p.sp(), op, l, r)
}

func (p *testProg) call(name string, args ...ast.ExprID) ast.ExprID {
	return p.b.Exprs.NewCall(p.sp(), p.b.Intern(name), nil, args)
}

func (p *testProg) callT(name string, typeArgs []ast.TypeExprID, args ...ast.ExprID) ast.ExprID {
	return p.b.Exprs.NewCall(p.sp(), p.b.Intern(name), typeArgs, args)
}

func (p *testProg) method(recv ast.ExprID, name string, args ...ast.ExprID) ast.ExprID {
	return p.b.Exprs.NewMethodCall(p.sp(), recv, p.b.Intern(name), args)
}

func (p *testProg) member(target ast.ExprID, field string) ast.ExprID {
	return p.b.Exprs.NewMember(p.sp(), target, p.b.Intern(field))
}

func (p *testProg) index(target, idx ast.ExprID) ast.ExprID {
	return p.b.Exprs.NewIndex(p.sp(), target, idx)
}

func (p *testProg) newObj(class string, args ...ast.ExprID) ast.ExprID {
	return p.b.Exprs.NewNew(p.sp(), p.named(class), args)
}

func (p *testProg) arrLit(elems ...ast.ExprID) ast.ExprID {
	return p.b.Exprs.NewArrayLit(p.sp(), ast.NoTypeExprID, elems)
}

func (p *testProg) param(name string, typ ast.TypeExprID) ast.Param {
	return ast.Param{Name: p.b.Intern(name), Type: typ, Span: p.sp()}
}

func (p *testProg) let(name string, init ast.ExprID) ast.StmtID {
	return p.b.Stmts.NewLet(p.sp(), p.b.Intern(name), ast.NoTypeExprID, init)
}

func (p *testProg) letT(name string, typ ast.TypeExprID, init ast.ExprID) ast.StmtID {
	return p.b.Stmts.NewLet(p.sp(), p.b.Intern(name), typ, init)
}

func (p *testProg) set(target, value ast.ExprID) ast.StmtID {
	return p.b.Stmts.NewAssign(p.sp(), target, value)
}

func (p *testProg) expr(e ast.ExprID) ast.StmtID { return p.b.Stmts.NewExpr(p.sp(), e) }

func (p *testProg) iff(cond ast.ExprID, then ast.StmtID) ast.StmtID {
	return p.b.Stmts.NewIf(p.sp(), cond, then, ast.NoStmtID)
}

func (p *testProg) while(cond ast.ExprID, body ast.StmtID) ast.StmtID {
	return p.b.Stmts.NewWhile(p.sp(), cond, body)
}

func (p *testProg) brk() ast.StmtID  { return p.b.Stmts.NewBreak(p.sp()) }
func (p *testProg) cont() ast.StmtID { return p.b.Stmts.NewContinue(p.sp()) }

func (p *testProg) ret(value ast.ExprID) ast.StmtID {
	return p.b.Stmts.NewReturn(p.sp(), value)
}

func (p *testProg) block(stmts ...ast.StmtID) ast.StmtID {
	return p.b.Stmts.NewBlock(p.sp(), stmts)
}

func (p *testProg) expFn(name string, params []ast.Param, result ast.TypeExprID, body ...ast.StmtID) ast.FuncID {
	return p.b.Decls.AddFunc(ast.FuncData{
		Name:     p.b.Intern(name),
		Params:   params,
		Result:   result,
		Body:     p.block(body...),
		Span:     p.sp(),
		Exported: true,
	})
}

func (p *testProg) expFnAs(name, exportAs string, params []ast.Param, result ast.TypeExprID, body ...ast.StmtID) ast.FuncID {
	return p.b.Decls.AddFunc(ast.FuncData{
		Name:       p.b.Intern(name),
		Params:     params,
		Result:     result,
		Body:       p.block(body...),
		Span:       p.sp(),
		Exported:   true,
		ExportName: p.b.Intern(exportAs),
	})
}

func (p *testProg) class(name string, fields ...ast.FieldDef) ast.ClassID {
	return p.b.Decls.AddClass(ast.ClassData{
		Name:   p.b.Intern(name),
		Fields: fields,
		Span:   p.sp(),
	})
}

func (p *testProg) field(name string, typ ast.TypeExprID) ast.FieldDef {
	return ast.FieldDef{Name: p.b.Intern(name), Type: typ, Span: p.sp()}
}

func (p *testProg) global(name string, typ ast.TypeExprID, init ast.ExprID) ast.GlobalID {
	return p.b.Decls.AddGlobal(ast.GlobalData{
		Name:    p.b.Intern(name),
		Type:    typ,
		Init:    init,
		Mutable: true,
		Span:    p.sp(),
	})
}

func runOK(t *testing.T, p *testProg, opts Options) *Result {
	t.Helper()
	res, err := Run(context.Background(), p.b.Program(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Bag.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", res.Bag.Items())
	}
	if res.Module == nil {
		t.Fatal("no module despite clean diagnostics")
	}
	if err := testkit.CheckModuleInvariants(res.Module); err != nil {
		t.Fatalf("module invariants: %v", err)
	}
	return res
}

func instantiate(t *testing.T, m *wasm.Module) (*vm.Instance, *vm.Runtime) {
	t.Helper()
	r := vm.NewRuntime()
	in, err := vm.NewInstance(m, r.Host())
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	return in, r
}

func call1(t *testing.T, in *vm.Instance, name string, args ...uint64) int32 {
	t.Helper()
	out, err := in.Call(name, args...)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	if len(out) != 1 {
		t.Fatalf("%s returned %d values, want 1", name, len(out))
	}
	return vm.AsI32(out[0])
}

func hasCode(bag *diag.Bag, code diag.Code) bool {
	for _, d := range bag.Items() {
		if d.Code == code {
			return true
		}
	}
	return false
}

func TestAddEndToEnd(t *testing.T) {
	p := newProg(t)
	i32 := func() ast.TypeExprID { return p.named("i32") }
	p.expFn("add",
		[]ast.Param{p.param("a", i32()), p.param("b", i32())},
		i32(),
		p.ret(p.bin(ast.BinAdd, p.ident("a"), p.ident("b"))),
	)

	res := runOK(t, p, Options{Strategy: rt.StrategyNone})
	in, _ := instantiate(t, res.Module)

	if got := call1(t, in, "add", vm.I32(2), vm.I32(3)); got != 5 {
		t.Errorf("add(2, 3) = %d, want 5", got)
	}
	// i32 arithmetic wraps.
	if got := call1(t, in, "add", vm.I32(math.MaxInt32), vm.I32(1)); got != math.MinInt32 {
		t.Errorf("add(max, 1) = %d, want wraparound", got)
	}
}

// TestStoreLoadWidths compiles a store-then-load pair per numeric type and
// checks the bit pattern that comes back: sub-word stores truncate, signed
// loads sign-extend, unsigned loads zero-extend, full widths are exact.
func TestStoreLoadWidths(t *testing.T) {
	p := newProg(t)
	for _, ty := range []string{"i8", "i16", "i32", "i64", "u8", "u16", "u32", "u64", "f32", "f64"} {
		p.expFn("rt_"+ty,
			[]ast.Param{p.param("a", p.named("u32")), p.param("v", p.named(ty))},
			p.named(ty),
			p.expr(p.callT("store", []ast.TypeExprID{p.named(ty)}, p.ident("a"), p.ident("v"))),
			p.ret(p.callT("load", []ast.TypeExprID{p.named(ty)}, p.ident("a"))),
		)
	}
	res := runOK(t, p, Options{Strategy: rt.StrategyNone})
	in, _ := instantiate(t, res.Module)

	raw := func(name string, args ...uint64) uint64 {
		t.Helper()
		out, err := in.Call(name, args...)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(out) != 1 {
			t.Fatalf("%s returned %d values", name, len(out))
		}
		return out[0]
	}

	const addr = 4096
	if got := call1(t, in, "rt_i8", vm.I32(addr), vm.I32(0x180)); got != -128 {
		t.Errorf("i8 round trip = %d, want -128", got)
	}
	if got := call1(t, in, "rt_u8", vm.I32(addr), vm.I32(-1)); got != 255 {
		t.Errorf("u8 round trip = %d, want 255", got)
	}
	if got := call1(t, in, "rt_i16", vm.I32(addr), vm.I32(0x8000)); got != math.MinInt16 {
		t.Errorf("i16 round trip = %d, want %d", got, math.MinInt16)
	}
	if got := call1(t, in, "rt_u16", vm.I32(addr), vm.I32(0x18000)); got != 0x8000 {
		t.Errorf("u16 round trip = %d, want 32768", got)
	}
	if got := call1(t, in, "rt_i32", vm.I32(addr), vm.I32(-559038737)); got != -559038737 {
		t.Errorf("i32 round trip = %d", got)
	}
	deadbeef := uint32(0xDEADBEEF)
	if got := vm.AsU32(raw("rt_u32", vm.I32(addr), vm.I32(int32(deadbeef)))); got != 0xDEADBEEF {
		t.Errorf("u32 round trip = %#x", got)
	}
	if got := vm.AsI64(raw("rt_i64", vm.I32(addr), vm.I64(math.MinInt64+1))); got != math.MinInt64+1 {
		t.Errorf("i64 round trip = %d", got)
	}
	if got := raw("rt_u64", vm.I32(addr), 0xFFFFFFFF00000001); got != 0xFFFFFFFF00000001 {
		t.Errorf("u64 round trip = %#x", got)
	}
	if got := vm.AsF32(raw("rt_f32", vm.I32(addr), vm.F32(1.5))); got != 1.5 {
		t.Errorf("f32 round trip = %g", got)
	}
	if got := vm.AsF64(raw("rt_f64", vm.I32(addr), vm.F64(math.Pi))); got != math.Pi {
		t.Errorf("f64 round trip = %g", got)
	}
}

// oddSum sums the odd numbers up to n with an unconditional loop that
// exits through break and skips evens through continue.
func buildOddSum(p *testProg) {
	i32 := p.named("i32")
	p.expFn("oddSum",
		[]ast.Param{p.param("n", i32)},
		p.named("i32"),
		p.let("sum", p.intLit(0)),
		p.let("i", p.intLit(0)),
		p.while(p.boolLit(true), p.block(
			p.set(p.ident("i"), p.bin(ast.BinAdd, p.ident("i"), p.intLit(1))),
			p.iff(p.bin(ast.BinGt, p.ident("i"), p.ident("n")), p.block(p.brk())),
			p.iff(p.bin(ast.BinEq, p.bin(ast.BinRem, p.ident("i"), p.intLit(2)), p.intLit(0)),
				p.block(p.cont())),
			p.set(p.ident("sum"), p.bin(ast.BinAdd, p.ident("sum"), p.ident("i"))),
		)),
		p.ret(p.ident("sum")),
	)
}

func TestWhileBreakContinue(t *testing.T) {
	p := newProg(t)
	buildOddSum(p)
	res := runOK(t, p, Options{Strategy: rt.StrategyNone})
	in, _ := instantiate(t, res.Module)

	tests := []struct {
		n, want int32
	}{
		{0, 0},
		{1, 1},
		{6, 9},
		{7, 16},
	}
	for _, tt := range tests {
		if got := call1(t, in, "oddSum", vm.I32(tt.n)); got != tt.want {
			t.Errorf("oddSum(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

// pair puts a short-lived local in each of two sibling blocks; the slot
// is shared, the outer accumulator must not be.
func buildPair(p *testProg) {
	i32 := p.named("i32")
	p.expFn("pair",
		[]ast.Param{p.param("n", i32)},
		p.named("i32"),
		p.let("total", p.intLit(0)),
		p.block(
			p.let("x", p.bin(ast.BinAdd, p.ident("n"), p.intLit(1))),
			p.set(p.ident("total"), p.bin(ast.BinAdd, p.ident("total"), p.ident("x"))),
		),
		p.block(
			p.let("y", p.bin(ast.BinAdd, p.ident("n"), p.intLit(2))),
			p.set(p.ident("total"), p.bin(ast.BinAdd, p.ident("total"), p.ident("y"))),
		),
		p.ret(p.ident("total")),
	)
}

// roll re-initializes a loop-body local every iteration.
func buildRoll(p *testProg) {
	i32 := p.named("i32")
	p.expFn("roll",
		[]ast.Param{p.param("n", i32)},
		p.named("i32"),
		p.let("acc", p.intLit(0)),
		p.let("i", p.intLit(0)),
		p.while(p.bin(ast.BinLt, p.ident("i"), p.ident("n")), p.block(
			p.let("doubled", p.bin(ast.BinMul, p.ident("i"), p.intLit(2))),
			p.set(p.ident("acc"), p.bin(ast.BinAdd, p.ident("acc"), p.ident("doubled"))),
			p.set(p.ident("i"), p.bin(ast.BinAdd, p.ident("i"), p.intLit(1))),
		)),
		p.ret(p.ident("acc")),
	)
}

func TestLocalSlotReuse(t *testing.T) {
	p := newProg(t)
	buildPair(p)
	buildRoll(p)
	res := runOK(t, p, Options{Strategy: rt.StrategyNone})
	in, _ := instantiate(t, res.Module)

	if got := call1(t, in, "pair", vm.I32(10)); got != 23 {
		t.Errorf("pair(10) = %d, want 23", got)
	}
	if got := call1(t, in, "roll", vm.I32(4)); got != 12 {
		t.Errorf("roll(4) = %d, want 12", got)
	}
	if got := call1(t, in, "roll", vm.I32(0)); got != 0 {
		t.Errorf("roll(0) = %d, want 0", got)
	}
}

func TestStringOps(t *testing.T) {
	p := newProg(t)
	p.expFn("greet", nil, p.named("i32"),
		p.let("s", p.strLit("hi")),
		p.ret(p.member(p.ident("s"), "length")),
	)
	p.expFn("join", nil, p.named("i32"),
		p.ret(p.member(p.bin(ast.BinAdd, p.strLit("wa"), p.strLit("sc")), "length")),
	)

	res := runOK(t, p, Options{Strategy: rt.StrategyRC})
	in, r := instantiate(t, res.Module)

	if got := call1(t, in, "greet"); got != 2 {
		t.Errorf("greet() = %d, want 2", got)
	}
	if got := call1(t, in, "join"); got != 4 {
		t.Errorf("join() = %d, want 4", got)
	}
	// The literals are static data; only the concatenation allocates.
	if r.Allocations() == 0 {
		t.Error("join allocated nothing")
	}
}

func TestArrayPushGrow(t *testing.T) {
	p := newProg(t)
	i32 := p.named("i32")
	p.expFn("grow", nil, p.named("i32"),
		p.letT("a", p.arrOf(i32), p.arrLit(p.intLit(1), p.intLit(2), p.intLit(3))),
		p.let("n", p.method(p.ident("a"), "push", p.intLit(4))),
		p.ret(p.bin(ast.BinAdd,
			p.bin(ast.BinAdd, p.ident("n"), p.index(p.ident("a"), p.intLit(3))),
			p.member(p.ident("a"), "length"),
		)),
	)

	res := runOK(t, p, Options{Strategy: rt.StrategyNone})
	in, _ := instantiate(t, res.Module)

	// push returns the new length 4, a[3] is 4, a.length is 4.
	if got := call1(t, in, "grow"); got != 12 {
		t.Errorf("grow() = %d, want 12", got)
	}
}

func TestGlobalInitWithRefcounts(t *testing.T) {
	p := newProg(t)
	i32 := p.named("i32")
	p.class("Box", p.field("value", i32))
	p.global("cell", p.named("Box"), p.newObj("Box", p.intLit(1)))
	p.expFn("read", nil, p.named("i32"),
		p.ret(p.member(p.ident("cell"), "value")),
	)
	p.expFn("swap",
		[]ast.Param{p.param("v", p.named("i32"))},
		p.named("i32"),
		p.set(p.ident("cell"), p.newObj("Box", p.ident("v"))),
		p.ret(p.member(p.ident("cell"), "value")),
	)

	res := runOK(t, p, Options{Strategy: rt.StrategyRC})
	in, r := instantiate(t, res.Module)

	// Instantiation ran the start function: one Box exists, stored in the
	// global cell.
	if got := r.Allocations(); got != 1 {
		t.Fatalf("allocations after start = %d, want 1", got)
	}
	if got := call1(t, in, "read"); got != 1 {
		t.Errorf("read() = %d, want 1", got)
	}

	if got := call1(t, in, "swap", vm.I32(42)); got != 42 {
		t.Errorf("swap(42) = %d, want 42", got)
	}
	if got := call1(t, in, "read"); got != 42 {
		t.Errorf("read() after swap = %d, want 42", got)
	}
	if got := r.Allocations(); got != 2 {
		t.Fatalf("allocations after swap = %d, want 2", got)
	}

	// The old box lost its cell reference, the new one holds it. The boxes
	// sit at consecutive 8-aligned addresses past the heap base.
	box1 := (res.Plan.HeapBase() + 7) &^ uint32(7)
	box2 := (box1 + layout.HeaderSize + 4 + 7) &^ uint32(7)
	if got := r.Count(box1); got != 1 {
		t.Errorf("old box count = %d, want 1", got)
	}
	if got := r.Count(box2); got != 2 {
		t.Errorf("new box count = %d, want 2", got)
	}
}

func TestDuplicateExportProducesNoModule(t *testing.T) {
	p := newProg(t)
	p.expFnAs("a", "run", nil, p.named("i32"), p.ret(p.intLit(1)))
	p.expFnAs("b", "run", nil, p.named("i32"), p.ret(p.intLit(2)))

	res, err := Run(context.Background(), p.b.Program(), Options{Strategy: rt.StrategyNone})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Module != nil {
		t.Error("module produced despite duplicate export")
	}
	if !hasCode(res.Bag, diag.DuplicateExport) {
		t.Errorf("diagnostics = %v, want duplicate export", res.Bag.Items())
	}
}

func TestCheckErrorStopsPipeline(t *testing.T) {
	p := newProg(t)
	p.expFn("f", nil, p.named("i32"), p.ret(p.call("missing")))

	res, err := Run(context.Background(), p.b.Program(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Bag.HasErrors() {
		t.Fatal("no diagnostics for a call to an unknown function")
	}
	if res.Module != nil {
		t.Error("module produced despite check errors")
	}
	if res.Plan != nil {
		t.Error("planning ran despite check errors")
	}
	if res.Checked == nil {
		t.Error("checked result missing")
	}
}

func TestCheckOnlyStopsAfterPlan(t *testing.T) {
	p := newProg(t)
	richProgram(p)

	res, err := Run(context.Background(), p.b.Program(), Options{CheckOnly: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Bag.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", res.Bag.Items())
	}
	if res.Checked == nil || res.Plan == nil {
		t.Fatal("check and plan results missing")
	}
	if !res.Plan.Frozen() {
		t.Error("plan left unfrozen")
	}
	if res.Unit != nil || res.Module != nil {
		t.Error("lowering ran despite CheckOnly")
	}
}

func richProgram(p *testProg) {
	i32 := p.named("i32")
	p.class("Box", p.field("value", i32))
	p.global("cell", p.named("Box"), p.newObj("Box", p.intLit(1)))
	p.expFn("add",
		[]ast.Param{p.param("a", p.named("i32")), p.param("b", p.named("i32"))},
		p.named("i32"),
		p.ret(p.bin(ast.BinAdd, p.ident("a"), p.ident("b"))),
	)
	buildOddSum(p)
	buildPair(p)
	buildRoll(p)
	p.expFn("join", nil, p.named("i32"),
		p.ret(p.member(p.bin(ast.BinAdd, p.strLit("wa"), p.strLit("sc")), "length")),
	)
	p.expFn("grow", nil, p.named("i32"),
		p.letT("a", p.arrOf(p.named("i32")), p.arrLit(p.intLit(1), p.intLit(2))),
		p.ret(p.method(p.ident("a"), "push", p.intLit(3))),
	)
	p.expFn("swap",
		[]ast.Param{p.param("v", p.named("i32"))},
		p.named("i32"),
		p.set(p.ident("cell"), p.newObj("Box", p.ident("v"))),
		p.ret(p.member(p.ident("cell"), "value")),
	)
}

func TestDeterministicAcrossJobs(t *testing.T) {
	emit := func(jobs int) []byte {
		p := newProg(t)
		richProgram(p)
		res := runOK(t, p, Options{Strategy: rt.StrategyRC, Jobs: jobs})
		a, err := link.Emit(res.Module, false, false)
		if err != nil {
			t.Fatalf("Emit: %v", err)
		}
		return a.Module
	}

	serial := emit(1)
	parallel := emit(8)
	if !bytes.Equal(serial, parallel) {
		t.Error("module bytes differ between one worker and eight")
	}

	if again := emit(8); !bytes.Equal(parallel, again) {
		t.Error("module bytes differ between identical runs")
	}
}

func TestTraceAndTimings(t *testing.T) {
	rec := trace.NewCapture(0, trace.LevelPhase)
	ctx := trace.WithTracer(context.Background(), rec)
	timer := observ.NewTimer()

	p := newProg(t)
	buildOddSum(p)
	res, err := Run(ctx, p.b.Program(), Options{Strategy: rt.StrategyNone, Timer: timer})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Module == nil {
		t.Fatalf("no module: %v", res.Bag.Items())
	}

	stages := []string{"check", "plan", "lower", "link"}
	var begins []string
	for _, ev := range rec.Events() {
		if ev.Scope == trace.ScopeFunc {
			t.Errorf("function event %q leaked through the phase level", ev.Name)
		}
		if ev.Kind != trace.KindBegin {
			continue
		}
		for _, s := range stages {
			if ev.Name == s {
				begins = append(begins, ev.Name)
			}
		}
	}
	if len(begins) != len(stages) {
		t.Fatalf("stage begins = %v, want %v", begins, stages)
	}
	for i, s := range stages {
		if begins[i] != s {
			t.Fatalf("stage order = %v, want %v", begins, stages)
		}
	}

	rep := timer.Report()
	if len(rep.Phases) != len(stages) {
		t.Fatalf("timer phases = %d, want %d", len(rep.Phases), len(stages))
	}
	for i, s := range stages {
		if rep.Phases[i].Name != s {
			t.Errorf("timer phase %d = %s, want %s", i, rep.Phases[i].Name, s)
		}
	}
}

func TestDetailTraceSeesFunctions(t *testing.T) {
	rec := trace.NewCapture(0, trace.LevelDetail)
	ctx := trace.WithTracer(context.Background(), rec)

	p := newProg(t)
	buildOddSum(p)
	if _, err := Run(ctx, p.b.Program(), Options{Strategy: rt.StrategyNone, Jobs: 1}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	found := false
	for _, ev := range rec.Events() {
		if ev.Scope == trace.ScopeFunc && ev.Name == "oddSum" {
			found = true
			break
		}
	}
	if !found {
		t.Error("no function-scoped event for oddSum at detail level")
	}
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newProg(t)
	buildOddSum(p)
	_, err := Run(ctx, p.b.Program(), Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run with canceled context: %v", err)
	}
}

func TestLayoutErrorBecomesDiagnostic(t *testing.T) {
	bag := diag.NewBag(4)
	reportLayout(bag, &layout.LayoutError{Kind: layout.LayoutErrAddressSpace, Size: 1 << 33})
	if !hasCode(bag, diag.LayoutOverflow) {
		t.Fatalf("diagnostics = %v, want layout overflow", bag.Items())
	}
	d := bag.Items()[0]
	if d.Severity != diag.SevError {
		t.Errorf("severity = %v, want error", d.Severity)
	}
	if d.Primary != (source.Span{}) {
		t.Errorf("span = %v, want none", d.Primary)
	}
}
