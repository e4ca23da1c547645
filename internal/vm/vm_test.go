package vm

import (
	"errors"
	"math"
	"strings"
	"testing"

	"wasc/internal/wasm"
)

// buildModule assembles a one-memory module from the given functions,
// exporting each under its own name.
func buildModule(funcs ...namedFunc) *wasm.Module {
	m := &wasm.Module{Mem: wasm.Memory{MinPages: 1}}
	for _, nf := range funcs {
		idx := uint32(len(m.Imports) + len(m.Funcs))
		m.Funcs = append(m.Funcs, wasm.Func{
			Name:   nf.name,
			Type:   m.InternType(nf.ft),
			Locals: nf.locals,
			Body:   nf.body,
		})
		m.Exports = append(m.Exports, wasm.Export{Name: nf.name, Kind: wasm.ExportFunc, Index: idx})
	}
	return m
}

type namedFunc struct {
	name   string
	ft     wasm.FuncType
	locals []wasm.ValType
	body   []wasm.Instr
}

func instantiate(t *testing.T, m *wasm.Module, host Host) *Instance {
	t.Helper()
	in, err := NewInstance(m, host)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	return in
}

func call1(t *testing.T, in *Instance, name string, args ...uint64) uint64 {
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

var (
	sigI32I32toI32 = wasm.FuncType{Params: []wasm.ValType{wasm.I32, wasm.I32}, Results: []wasm.ValType{wasm.I32}}
	sigI32toI32    = wasm.FuncType{Params: []wasm.ValType{wasm.I32}, Results: []wasm.ValType{wasm.I32}}
	sigToI32       = wasm.FuncType{Results: []wasm.ValType{wasm.I32}}
)

func TestCallArithmetic(t *testing.T) {
	m := buildModule(namedFunc{
		name: "add",
		ft:   sigI32I32toI32,
		body: []wasm.Instr{wasm.LocalGet(0), wasm.LocalGet(1), {Op: wasm.OpI32Add}},
	})
	in := instantiate(t, m, nil)

	if got := AsI32(call1(t, in, "add", I32(2), I32(3))); got != 5 {
		t.Errorf("add(2, 3) = %d", got)
	}
	if got := AsI32(call1(t, in, "add", I32(math.MaxInt32), I32(1))); got != math.MinInt32 {
		t.Errorf("add(max, 1) = %d, want wraparound", got)
	}
}

func TestLoopSum(t *testing.T) {
	// sum 1..n: i and sum live in locals 1 and 2.
	m := buildModule(namedFunc{
		name:   "sum",
		ft:     sigI32toI32,
		locals: []wasm.ValType{wasm.I32, wasm.I32},
		body: []wasm.Instr{
			wasm.I32Const(1),
			wasm.LocalSet(1),
			wasm.Block(wasm.BlockEmpty),
			wasm.Loop(wasm.BlockEmpty),
			wasm.LocalGet(1),
			wasm.LocalGet(0),
			{Op: wasm.OpI32GtS},
			wasm.BrIf(1),
			wasm.LocalGet(2),
			wasm.LocalGet(1),
			{Op: wasm.OpI32Add},
			wasm.LocalSet(2),
			wasm.LocalGet(1),
			wasm.I32Const(1),
			{Op: wasm.OpI32Add},
			wasm.LocalSet(1),
			wasm.Br(0),
			wasm.End(),
			wasm.End(),
			wasm.LocalGet(2),
		},
	})
	in := instantiate(t, m, nil)

	for _, tc := range []struct{ n, want int32 }{{0, 0}, {1, 1}, {5, 15}, {100, 5050}} {
		if got := AsI32(call1(t, in, "sum", I32(tc.n))); got != tc.want {
			t.Errorf("sum(%d) = %d, want %d", tc.n, got, tc.want)
		}
	}
}

func TestIfElse(t *testing.T) {
	m := buildModule(
		namedFunc{
			name: "sign",
			ft:   sigI32toI32,
			body: []wasm.Instr{
				wasm.LocalGet(0),
				wasm.If(wasm.BlockOf(wasm.I32)),
				wasm.I32Const(1),
				wasm.Else(),
				wasm.I32Const(-1),
				wasm.End(),
			},
		},
		namedFunc{
			name: "bumpPositive",
			ft:   sigI32toI32,
			body: []wasm.Instr{
				wasm.LocalGet(0),
				wasm.I32Const(0),
				{Op: wasm.OpI32GtS},
				wasm.If(wasm.BlockEmpty),
				wasm.LocalGet(0),
				wasm.I32Const(10),
				{Op: wasm.OpI32Add},
				wasm.LocalSet(0),
				wasm.End(),
				wasm.LocalGet(0),
			},
		},
		namedFunc{
			name: "carry",
			ft:   sigToI32,
			body: []wasm.Instr{
				wasm.Block(wasm.BlockOf(wasm.I32)),
				wasm.I32Const(42),
				wasm.Br(0),
				wasm.End(),
			},
		},
	)
	in := instantiate(t, m, nil)

	if got := AsI32(call1(t, in, "sign", I32(7))); got != 1 {
		t.Errorf("sign(7) = %d", got)
	}
	if got := AsI32(call1(t, in, "sign", I32(0))); got != -1 {
		t.Errorf("sign(0) = %d", got)
	}
	if got := AsI32(call1(t, in, "bumpPositive", I32(5))); got != 15 {
		t.Errorf("bumpPositive(5) = %d", got)
	}
	if got := AsI32(call1(t, in, "bumpPositive", I32(-5))); got != -5 {
		t.Errorf("bumpPositive(-5) = %d", got)
	}
	if got := AsI32(call1(t, in, "carry")); got != 42 {
		t.Errorf("carry() = %d", got)
	}
}

func TestTraps(t *testing.T) {
	tests := []struct {
		name string
		ft   wasm.FuncType
		body []wasm.Instr
		want TrapCode
	}{
		{
			name: "unreachable",
			ft:   wasm.FuncType{},
			body: []wasm.Instr{{Op: wasm.OpUnreachable}},
			want: TrapUnreachable,
		},
		{
			name: "div_zero",
			ft:   sigToI32,
			body: []wasm.Instr{wasm.I32Const(1), wasm.I32Const(0), {Op: wasm.OpI32DivS}},
			want: TrapDivideByZero,
		},
		{
			name: "div_overflow",
			ft:   sigToI32,
			body: []wasm.Instr{wasm.I32Const(math.MinInt32), wasm.I32Const(-1), {Op: wasm.OpI32DivS}},
			want: TrapIntegerOverflow,
		},
		{
			name: "load_oob",
			ft:   sigToI32,
			body: []wasm.Instr{wasm.I32Const(70000), wasm.Mem(wasm.OpI32Load, 2, 0)},
			want: TrapMemoryBounds,
		},
		{
			name: "store_oob_offset",
			ft:   wasm.FuncType{},
			body: []wasm.Instr{wasm.I32Const(65534), wasm.I32Const(1), wasm.Mem(wasm.OpI32Store, 2, 8)},
			want: TrapMemoryBounds,
		},
		{
			name: "trunc_nan",
			ft:   sigToI32,
			body: []wasm.Instr{wasm.F64Const(math.NaN()), {Op: wasm.OpI32TruncF64S}},
			want: TrapInvalidConversion,
		},
		{
			name: "trunc_overflow",
			ft:   sigToI32,
			body: []wasm.Instr{wasm.F64Const(3e9), {Op: wasm.OpI32TruncF64S}},
			want: TrapIntegerOverflow,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := instantiate(t, buildModule(namedFunc{name: "f", ft: tc.ft, body: tc.body}), nil)
			_, err := in.Call("f")
			if !IsTrap(err, tc.want) {
				t.Fatalf("err = %v, want trap %s", err, tc.want)
			}
		})
	}
}

func TestCallDepthTrap(t *testing.T) {
	m := buildModule(namedFunc{
		name: "rec",
		ft:   wasm.FuncType{},
		body: []wasm.Instr{wasm.Call(0)},
	})
	in := instantiate(t, m, nil)
	_, err := in.Call("rec")
	if !IsTrap(err, TrapCallDepth) {
		t.Fatalf("err = %v, want call depth trap", err)
	}
}

func TestRemainderEdge(t *testing.T) {
	m := buildModule(namedFunc{
		name: "rem",
		ft:   sigI32I32toI32,
		body: []wasm.Instr{wasm.LocalGet(0), wasm.LocalGet(1), {Op: wasm.OpI32RemS}},
	})
	in := instantiate(t, m, nil)
	if got := AsI32(call1(t, in, "rem", I32(math.MinInt32), I32(-1))); got != 0 {
		t.Errorf("min rem -1 = %d, want 0", got)
	}
	if got := AsI32(call1(t, in, "rem", I32(-7), I32(3))); got != -1 {
		t.Errorf("-7 rem 3 = %d", got)
	}
}

func TestMemoryAccess(t *testing.T) {
	m := buildModule(
		namedFunc{
			name: "peek",
			ft:   sigI32toI32,
			body: []wasm.Instr{wasm.LocalGet(0), wasm.Mem(wasm.OpI32Load, 2, 0)},
		},
		namedFunc{
			name: "peek8s",
			ft:   sigI32toI32,
			body: []wasm.Instr{wasm.LocalGet(0), wasm.Mem(wasm.OpI32Load8S, 0, 0)},
		},
		namedFunc{
			name: "peek16u",
			ft:   sigI32toI32,
			body: []wasm.Instr{wasm.LocalGet(0), wasm.Mem(wasm.OpI32Load16U, 1, 0)},
		},
		namedFunc{
			name: "poke64",
			ft:   wasm.FuncType{Params: []wasm.ValType{wasm.I32, wasm.I64}},
			body: []wasm.Instr{wasm.LocalGet(0), wasm.LocalGet(1), wasm.Mem(wasm.OpI64Store, 3, 0)},
		},
		namedFunc{
			name: "peek64_32s",
			ft:   wasm.FuncType{Params: []wasm.ValType{wasm.I32}, Results: []wasm.ValType{wasm.I64}},
			body: []wasm.Instr{wasm.LocalGet(0), wasm.Mem(wasm.OpI64Load32S, 2, 0)},
		},
	)
	m.Data = append(m.Data, wasm.DataSegment{Offset: 16, Bytes: []byte{0x01, 0x02, 0x03, 0xFF}})
	in := instantiate(t, m, nil)

	if got := AsU32(call1(t, in, "peek", I32(16))); got != 0xFF030201 {
		t.Errorf("peek(16) = %#x", got)
	}
	if got := AsI32(call1(t, in, "peek8s", I32(19))); got != -1 {
		t.Errorf("peek8s(19) = %d, want sign extension", got)
	}
	if got := AsI32(call1(t, in, "peek16u", I32(18))); got != 0xFF03 {
		t.Errorf("peek16u(18) = %#x", got)
	}

	if _, err := in.Call("poke64", I32(64), I64(-2)); err != nil {
		t.Fatalf("poke64: %v", err)
	}
	if got := AsI64(call1(t, in, "peek64_32s", I32(64))); got != -2 {
		t.Errorf("peek64_32s(64) = %d", got)
	}
	if got := AsU32(call1(t, in, "peek", I32(68))); got != 0xFFFFFFFF {
		t.Errorf("high half = %#x", got)
	}
}

func TestMemoryGrow(t *testing.T) {
	m := buildModule(
		namedFunc{
			name: "grow",
			ft:   sigI32toI32,
			body: []wasm.Instr{wasm.LocalGet(0), {Op: wasm.OpMemoryGrow}},
		},
		namedFunc{
			name: "size",
			ft:   sigToI32,
			body: []wasm.Instr{{Op: wasm.OpMemorySize}},
		},
	)
	m.Mem = wasm.Memory{MinPages: 1, MaxPages: 3, HasMax: true}
	in := instantiate(t, m, nil)

	if got := AsI32(call1(t, in, "size")); got != 1 {
		t.Fatalf("size = %d", got)
	}
	if got := AsI32(call1(t, in, "grow", I32(1))); got != 1 {
		t.Errorf("grow(1) = %d, want previous page count", got)
	}
	if got := AsI32(call1(t, in, "size")); got != 2 {
		t.Errorf("size after grow = %d", got)
	}
	if got := AsI32(call1(t, in, "grow", I32(5))); got != -1 {
		t.Errorf("grow(5) = %d, want -1 past the max", got)
	}
	if got := AsI32(call1(t, in, "grow", I32(1))); got != 2 {
		t.Errorf("grow(1) = %d", got)
	}
	if in.MemorySize() != 3*wasm.PageSize {
		t.Errorf("MemorySize = %d", in.MemorySize())
	}
}

func TestGlobalsAndStart(t *testing.T) {
	m := buildModule(
		namedFunc{
			name: "bump",
			ft:   wasm.FuncType{Results: []wasm.ValType{wasm.I64}},
			body: []wasm.Instr{
				wasm.GlobalGet(1),
				wasm.I64Const(1),
				{Op: wasm.OpI64Add},
				wasm.GlobalSet(1),
				wasm.GlobalGet(1),
			},
		},
		namedFunc{
			name: "init",
			ft:   wasm.FuncType{},
			body: []wasm.Instr{wasm.I32Const(7), wasm.GlobalSet(0)},
		},
	)
	m.Globals = []wasm.Global{
		{Name: "flag", Type: wasm.I32, Mutable: true, Init: wasm.I32Const(0)},
		{Name: "counter", Type: wasm.I64, Mutable: true, Init: wasm.I64Const(10)},
	}
	m.Exports = append(m.Exports, wasm.Export{Name: "flag", Kind: wasm.ExportGlobal, Index: 0})
	m.HasStart = true
	m.Start = 1
	in := instantiate(t, m, nil)

	if bits, ok := in.GlobalValue("flag"); !ok || AsI32(bits) != 7 {
		t.Fatalf("flag = %d, %v; start function did not run", AsI32(bits), ok)
	}
	if got := AsI64(call1(t, in, "bump")); got != 11 {
		t.Errorf("bump = %d", got)
	}
	if got := AsI64(call1(t, in, "bump")); got != 12 {
		t.Errorf("second bump = %d", got)
	}
}

func TestHostFunctions(t *testing.T) {
	m := &wasm.Module{Mem: wasm.Memory{MinPages: 1}}
	mulType := m.InternType(sigI32I32toI32)
	boomType := m.InternType(wasm.FuncType{})
	m.Imports = []wasm.Import{
		{Module: "env", Name: "mul", Type: mulType},
		{Module: "env", Name: "boom", Type: boomType},
	}
	m.Funcs = []wasm.Func{
		{
			Name: "callMul",
			Type: mulType,
			Body: []wasm.Instr{wasm.LocalGet(0), wasm.LocalGet(1), wasm.Call(0)},
		},
		{
			Name: "callBoom",
			Type: boomType,
			Body: []wasm.Instr{wasm.Call(1)},
		},
	}
	m.Exports = []wasm.Export{
		{Name: "callMul", Kind: wasm.ExportFunc, Index: 2},
		{Name: "callBoom", Kind: wasm.ExportFunc, Index: 3},
	}

	var seen []int32
	host := Host{
		"env.mul": func(_ *Instance, args []uint64) ([]uint64, error) {
			seen = append(seen, AsI32(args[0]), AsI32(args[1]))
			return []uint64{I32(AsI32(args[0]) * AsI32(args[1]))}, nil
		},
		"env.boom": func(_ *Instance, _ []uint64) ([]uint64, error) {
			return nil, errors.New("kaput")
		},
	}
	in := instantiate(t, m, host)

	if got := AsI32(call1(t, in, "callMul", I32(6), I32(7))); got != 42 {
		t.Errorf("callMul = %d", got)
	}
	if len(seen) != 2 || seen[0] != 6 || seen[1] != 7 {
		t.Errorf("host saw %v", seen)
	}

	_, err := in.Call("callBoom")
	if !IsTrap(err, TrapHostFault) {
		t.Fatalf("err = %v, want host fault", err)
	}
	if !strings.Contains(err.Error(), "kaput") {
		t.Errorf("fault message lost: %v", err)
	}
}

func TestMissingImport(t *testing.T) {
	m := &wasm.Module{Mem: wasm.Memory{MinPages: 1}}
	m.Imports = []wasm.Import{{Module: "env", Name: "gone", Type: m.InternType(wasm.FuncType{})}}
	if _, err := NewInstance(m, nil); err == nil || !strings.Contains(err.Error(), "env.gone") {
		t.Fatalf("err = %v", err)
	}
}

func TestFloatOps(t *testing.T) {
	m := buildModule(
		namedFunc{
			name: "hyp",
			ft:   wasm.FuncType{Params: []wasm.ValType{wasm.F64, wasm.F64}, Results: []wasm.ValType{wasm.F64}},
			body: []wasm.Instr{
				wasm.LocalGet(0),
				wasm.LocalGet(0),
				{Op: wasm.OpF64Mul},
				wasm.LocalGet(1),
				wasm.LocalGet(1),
				{Op: wasm.OpF64Mul},
				{Op: wasm.OpF64Add},
				{Op: wasm.OpF64Sqrt},
			},
		},
		namedFunc{
			name: "toInt",
			ft:   wasm.FuncType{Params: []wasm.ValType{wasm.F64}, Results: []wasm.ValType{wasm.I32}},
			body: []wasm.Instr{wasm.LocalGet(0), {Op: wasm.OpI32TruncF64S}},
		},
	)
	in := instantiate(t, m, nil)

	if got := AsF64(call1(t, in, "hyp", F64(3), F64(4))); got != 5 {
		t.Errorf("hyp(3, 4) = %g", got)
	}
	if got := AsI32(call1(t, in, "toInt", F64(-2.9))); got != -2 {
		t.Errorf("toInt(-2.9) = %d, want truncation toward zero", got)
	}
}
