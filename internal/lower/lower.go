// Package lower turns checked function bodies into WebAssembly code.
//
// Lowering works against a frozen static plan: by the time a Unit exists,
// every string literal, global cell and class descriptor has a final
// address. The Unit numbers the whole function index space up front, so
// individual functions can be lowered in any order and from several
// goroutines at once; the instruction stream each one produces depends only
// on the checked body and the plan.
package lower

import (
	"fmt"
	"strings"

	"wasc/internal/ast"
	"wasc/internal/diag"
	"wasc/internal/layout"
	"wasc/internal/rt"
	"wasc/internal/sema"
	"wasc/internal/source"
	"wasc/internal/types"
	"wasc/internal/wasm"
)

// Import names one function the module pulls in from the host, in function
// index order: runtime hooks first, then user-declared imports.
type Import struct {
	Module string
	Name   string
	Type   wasm.FuncType
}

type taskKind uint8

const (
	taskBody taskKind = iota
	taskConcat
	taskPush
	taskStart
)

// task is one defined function to produce: a checked body or a synthesized
// helper.
type task struct {
	kind taskKind
	key  sema.BodyKey
	push pushKey
}

// Unit is the immutable lowering context for one program. It owns the
// function index space: imported functions come first (hooks, then user
// imports), then plain defined functions in declaration order, then
// specializations in instantiation-cache order, then synthesized helpers,
// then the start function.
type Unit struct {
	prog   *ast.Program
	res    *sema.Result
	eng    *layout.Engine
	plan   *layout.Plan
	binder *rt.Binder

	imports   []Import
	callIndex map[ast.FuncID]uint32

	tasks []task
	index map[sema.BodyKey]uint32

	hasConcat   bool
	concatIndex uint32

	pushers   []pushKey
	pushIndex map[pushKey]uint32

	hasStart   bool
	startIndex uint32
}

// NewUnit numbers the function index space and schedules the synthetic
// helpers the program needs. prog and res must come from a clean check and
// plan must be frozen.
func NewUnit(prog *ast.Program, res *sema.Result, eng *layout.Engine, plan *layout.Plan, binder *rt.Binder) *Unit {
	u := &Unit{
		prog:      prog,
		res:       res,
		eng:       eng,
		plan:      plan,
		binder:    binder,
		callIndex: make(map[ast.FuncID]uint32),
		index:     make(map[sema.BodyKey]uint32),
		pushIndex: make(map[pushKey]uint32),
	}
	u.scan()
	return u
}

// NumFuncs counts the defined functions the unit produces, synthesized
// helpers included.
func (u *Unit) NumFuncs() int { return len(u.tasks) }

// NumImports counts imported functions; defined function indices start
// here.
func (u *Unit) NumImports() uint32 { return uint32(len(u.imports)) }

// Imports lists the import section entries in function index order.
func (u *Unit) Imports() []Import {
	out := make([]Import, len(u.imports))
	copy(out, u.imports)
	return out
}

// FuncIndex resolves a declared function (or one specialization) to its
// absolute function index.
func (u *Unit) FuncIndex(fn ast.FuncID, inst sema.InstID) (uint32, bool) {
	if sig := u.res.Sig(fn); sig != nil && sig.Imported {
		idx, ok := u.callIndex[fn]
		return idx, ok
	}
	idx, ok := u.index[sema.BodyKey{Func: fn, Inst: inst}]
	return idx, ok
}

// Start returns the absolute index of the synthesized start function, when
// the program has globals that need running code to initialize.
func (u *Unit) Start() (uint32, bool) { return u.startIndex, u.hasStart }

// Signature returns the i-th defined function's type. It never depends on
// lowering having run.
func (u *Unit) Signature(i int) wasm.FuncType {
	switch t := u.tasks[i]; t.kind {
	case taskConcat:
		return wasm.FuncType{Params: []wasm.ValType{wasm.I32, wasm.I32}, Results: []wasm.ValType{wasm.I32}}
	case taskPush:
		return wasm.FuncType{Params: []wasm.ValType{wasm.I32, t.push.val}, Results: []wasm.ValType{wasm.I32}}
	case taskStart:
		return wasm.FuncType{}
	default:
		params, result := u.signature(t.key)
		return u.funcTypeOf(params, result)
	}
}

// Name returns the i-th defined function's name-section label without
// lowering it.
func (u *Unit) Name(i int) string {
	switch t := u.tasks[i]; t.kind {
	case taskConcat:
		return "__concat"
	case taskPush:
		return "__push_" + t.push.suffix()
	case taskStart:
		return "__start"
	default:
		return u.funcName(t.key)
	}
}

// Func lowers the i-th defined function. ok is false when the function had
// to be abandoned; the diagnostics went to r and the returned Func must not
// be used.
func (u *Unit) Func(i int, r diag.Reporter) (fn wasm.Func, ok bool) {
	switch t := u.tasks[i]; t.kind {
	case taskConcat:
		return u.synthConcat(), true
	case taskPush:
		return u.synthPush(t.push), true
	case taskStart:
		return u.synthStart(r)
	default:
		return u.lowerBody(t.key, r)
	}
}

// signature resolves the parameter and result types of a body, substituting
// instance arguments for specializations.
func (u *Unit) signature(key sema.BodyKey) ([]types.TypeID, types.TypeID) {
	sig := u.res.Sig(key.Func)
	if sig == nil {
		panic(fmt.Sprintf("lower: no signature for func %d", key.Func))
	}
	if key.Inst == sema.NoInstID {
		return sig.Params, sig.Result
	}
	inst := u.res.Insts.Get(key.Inst)
	by := make(map[types.TypeID]types.TypeID, len(sig.TypeParams))
	for i, tp := range sig.TypeParams {
		by[tp] = inst.Args[i]
	}
	params := make([]types.TypeID, len(sig.Params))
	for i, p := range sig.Params {
		params[i] = u.res.Types.Substitute(p, by)
	}
	return params, u.res.Types.Substitute(sig.Result, by)
}

func (u *Unit) funcTypeOf(params []types.TypeID, result types.TypeID) wasm.FuncType {
	var ft wasm.FuncType
	for _, p := range params {
		vt, ok := valTypeOf(u.res.Types, p)
		if !ok {
			panic("lower: parameter has no value type")
		}
		ft.Params = append(ft.Params, vt)
	}
	if vt, ok := valTypeOf(u.res.Types, result); ok {
		ft.Results = []wasm.ValType{vt}
	}
	return ft
}

// funcName is the name-section label: the declared name, plus the instance
// arguments for a specialization.
func (u *Unit) funcName(key sema.BodyKey) string {
	decl := u.prog.Decls.Func(key.Func)
	name := u.prog.Name(decl.Name)
	if key.Inst == sema.NoInstID {
		return name
	}
	inst := u.res.Insts.Get(key.Inst)
	args := make([]string, len(inst.Args))
	for i, arg := range inst.Args {
		args[i] = u.res.Types.Format(arg, u.prog.Names)
	}
	return name + "<" + strings.Join(args, ",") + ">"
}

func (u *Unit) lowerBody(key sema.BodyKey, r diag.Reporter) (wasm.Func, bool) {
	body := u.res.Body(key.Func, key.Inst)
	if body == nil {
		panic(fmt.Sprintf("lower: no checked body for func %d inst %d", key.Func, key.Inst))
	}
	decl := u.prog.Decls.Func(key.Func)
	params, result := u.signature(key)

	l := u.newLowerer(r, body, len(params))
	l.lowerStmt(decl.Body)
	if l.failed {
		return wasm.Func{}, false
	}
	// A body whose every path returns still ends in an End at the wasm
	// level; pad non-void functions so validation sees a closed stack.
	if _, valued := valTypeOf(u.res.Types, result); valued && !l.endsWithReturn() {
		l.op(wasm.OpUnreachable)
	}
	return wasm.Func{Name: u.funcName(key), Locals: l.slots.scratch, Body: l.out}, true
}

// loopFrame records the label levels a loop exposes to break and continue.
type loopFrame struct {
	breakLevel    int
	continueLevel int
}

// funcLowerer emits one function. It tracks the structured-control nesting
// depth so branch targets can be spelled as absolute label levels, and a
// dead flag so statements behind an unconditional jump are skipped.
type funcLowerer struct {
	u    *Unit
	r    diag.Reporter
	body *sema.FuncBody

	out    []wasm.Instr
	slots  *slotAlloc
	named  map[sema.LocalID]uint32
	scopes [][]uint32

	depth  int
	loops  []loopFrame
	dead   bool
	failed bool
}

func (u *Unit) newLowerer(r diag.Reporter, body *sema.FuncBody, params int) *funcLowerer {
	l := &funcLowerer{
		u:     u,
		r:     r,
		body:  body,
		slots: newSlotAlloc(params),
		named: make(map[sema.LocalID]uint32),
	}
	for i := range params {
		l.named[sema.LocalID(i)] = uint32(i)
	}
	return l
}

func (l *funcLowerer) emit(in wasm.Instr) { l.out = append(l.out, in) }

func (l *funcLowerer) op(op wasm.Opcode) { l.emit(wasm.Instr{Op: op}) }

func (l *funcLowerer) i32(v int32) { l.emit(wasm.I32Const(v)) }

func (l *funcLowerer) u32(v uint32) { l.emit(wasm.I32Const(int32(v))) }

func (l *funcLowerer) get(slot uint32) { l.emit(wasm.LocalGet(slot)) }

func (l *funcLowerer) set(slot uint32) { l.emit(wasm.LocalSet(slot)) }

func (l *funcLowerer) tee(slot uint32) { l.emit(wasm.LocalTee(slot)) }

func (l *funcLowerer) call(fn uint32) { l.emit(wasm.Call(fn)) }

// hook calls a runtime import. Callers guard optional hooks with
// binder.Uses; reaching an unbound one is a lowering bug.
func (l *funcLowerer) hook(op rt.Op) {
	idx, ok := l.u.binder.Index(op)
	if !ok {
		panic(fmt.Sprintf("lower: %s hook is not imported", op.Name()))
	}
	l.call(idx)
}

func (l *funcLowerer) block(bt wasm.BlockType) {
	l.emit(wasm.Block(bt))
	l.depth++
}

func (l *funcLowerer) loop(bt wasm.BlockType) {
	l.emit(wasm.Loop(bt))
	l.depth++
}

func (l *funcLowerer) ifStart(bt wasm.BlockType) {
	l.emit(wasm.If(bt))
	l.depth++
}

func (l *funcLowerer) elseStart() { l.emit(wasm.Else()) }

func (l *funcLowerer) end() {
	l.emit(wasm.End())
	l.depth--
}

// br branches to the construct whose label sits at the given absolute
// level, as recorded right after entering it.
func (l *funcLowerer) br(level int) { l.emit(wasm.Br(uint32(l.depth - level))) }

func (l *funcLowerer) brIf(level int) { l.emit(wasm.BrIf(uint32(l.depth - level))) }

// trapIf consumes the i32 on the stack and traps when it is nonzero.
func (l *funcLowerer) trapIf() {
	l.ifStart(wasm.BlockEmpty)
	l.op(wasm.OpUnreachable)
	l.end()
}

func (l *funcLowerer) endsWithReturn() bool {
	return len(l.out) > 0 && l.out[len(l.out)-1].Op == wasm.OpReturn
}

// fail abandons the function with an UnsupportedConstruct error. Only the
// first failure is reported.
func (l *funcLowerer) fail(span source.Span, format string, args ...any) {
	if l.failed {
		return
	}
	l.failed = true
	l.r.Report(diag.UnsupportedConstruct, diag.SevError, span, fmt.Sprintf(format, args...), nil)
}

// loadValue reads a value of type t from the address on the stack, at the
// given static offset.
func (l *funcLowerer) loadValue(t types.TypeID, off uint32) {
	tt := l.u.res.Types.MustLookup(t)
	l.emit(loadInstr(tt, l.u.eng.Value(t).Align, off))
}

// storeValue writes the value on the stack to the address below it.
func (l *funcLowerer) storeValue(t types.TypeID, off uint32) {
	tt := l.u.res.Types.MustLookup(t)
	l.emit(storeInstr(tt, l.u.eng.Value(t).Align, off))
}

func (l *funcLowerer) exprSpan(id ast.ExprID) source.Span {
	return l.u.prog.Exprs.Get(id).Span
}

func (l *funcLowerer) stmtSpan(id ast.StmtID) source.Span {
	return l.u.prog.Stmts.Get(id).Span
}

func (l *funcLowerer) exprType(id ast.ExprID) types.TypeID {
	t, ok := l.body.ExprTypes[id]
	if !ok {
		panic("lower: expression was not typed")
	}
	return t
}
