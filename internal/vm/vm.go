// Package vm executes assembled modules directly over their instruction
// records, without a binary round trip. It exists so compiled code can
// actually run in tests: an Instance owns the linear memory and globals,
// a Host supplies the imported functions, and Runtime is a minimal
// conforming host for the runtime hooks.
package vm

import (
	"encoding/binary"
	"errors"
	"fmt"

	"wasc/internal/wasm"
)

// HostFunc implements one imported function. Arguments arrive in
// declaration order as raw slot bits and results are returned the same
// way. A returned error aborts execution as a TrapHostFault unless it
// already is a Trap.
type HostFunc func(in *Instance, args []uint64) ([]uint64, error)

// Host resolves imports by "module.name".
type Host map[string]HostFunc

const maxCallDepth = 512

// maxGrowPages bounds memory growth when the module declares no maximum.
const maxGrowPages = 1 << 16

// Instance is one instantiated module: memory populated from the data
// segments, globals initialized, start function already run.
type Instance struct {
	m       *wasm.Module
	host    []HostFunc
	mem     []byte
	globals []uint64
	meta    []funcMeta
	exports map[string]wasm.Export
	depth   int
}

// NewInstance validates and instantiates m against host. Import
// resolution, data placement and the start function all happen here; a
// trap during start is returned as the instantiation error.
func NewInstance(m *wasm.Module, host Host) (*Instance, error) {
	if err := wasm.ValidateModule(m); err != nil {
		return nil, fmt.Errorf("vm: %w", err)
	}
	in := &Instance{m: m, exports: make(map[string]wasm.Export, len(m.Exports))}
	for _, imp := range m.Imports {
		key := imp.Module + "." + imp.Name
		fn, ok := host[key]
		if !ok {
			return nil, fmt.Errorf("vm: no host function for import %s", key)
		}
		in.host = append(in.host, fn)
	}
	in.mem = make([]byte, uint64(m.Mem.MinPages)*wasm.PageSize)
	for _, seg := range m.Data {
		copy(in.mem[seg.Offset:], seg.Bytes)
	}
	for _, g := range m.Globals {
		bits, err := constValue(g.Init)
		if err != nil {
			return nil, fmt.Errorf("vm: global %s: %w", g.Name, err)
		}
		in.globals = append(in.globals, bits)
	}
	in.meta = make([]funcMeta, len(m.Funcs))
	for i := range m.Funcs {
		meta, err := scanBody(m.Funcs[i].Body)
		if err != nil {
			return nil, fmt.Errorf("vm: function %s: %w", m.Funcs[i].Name, err)
		}
		in.meta[i] = meta
	}
	for _, exp := range m.Exports {
		in.exports[exp.Name] = exp
	}
	if m.HasStart {
		if _, err := in.invoke(m.Start, nil); err != nil {
			return nil, err
		}
	}
	return in, nil
}

func constValue(init wasm.Instr) (uint64, error) {
	switch init.Op {
	case wasm.OpI32Const:
		return I32(int32(init.Val)), nil
	case wasm.OpI64Const:
		return I64(init.Val), nil
	case wasm.OpF32Const:
		return F32(float32(init.Fval)), nil
	case wasm.OpF64Const:
		return F64(init.Fval), nil
	}
	return 0, fmt.Errorf("initializer %s is not a constant", init.Op)
}

// Call invokes an exported function by name.
func (in *Instance) Call(name string, args ...uint64) ([]uint64, error) {
	exp, ok := in.exports[name]
	if !ok || exp.Kind != wasm.ExportFunc {
		return nil, fmt.Errorf("vm: no exported function %q", name)
	}
	ft, _ := in.m.FuncTypeAt(exp.Index)
	if len(args) != len(ft.Params) {
		return nil, fmt.Errorf("vm: %s takes %d arguments, got %d", name, len(ft.Params), len(args))
	}
	return in.invoke(exp.Index, args)
}

// invoke runs any function index with ready arguments.
func (in *Instance) invoke(fidx uint32, args []uint64) ([]uint64, error) {
	if in.depth >= maxCallDepth {
		return nil, &Trap{Code: TrapCallDepth, Func: in.m.FuncName(fidx)}
	}
	in.depth++
	defer func() { in.depth-- }()

	if n := uint32(len(in.host)); fidx < n {
		out, err := in.host[fidx](in, args)
		if err != nil {
			var t *Trap
			if errors.As(err, &t) {
				return nil, t
			}
			return nil, &Trap{Code: TrapHostFault, Func: in.m.FuncName(fidx), Msg: err.Error()}
		}
		return out, nil
	}

	di := fidx - uint32(len(in.host))
	fn := &in.m.Funcs[di]
	ft, ok := in.m.FuncTypeAt(fidx)
	if !ok {
		return nil, fmt.Errorf("vm: function index %d out of range", fidx)
	}
	locals := make([]uint64, len(ft.Params)+len(fn.Locals))
	copy(locals, args)
	f := &frame{in: in, fn: fn, meta: &in.meta[di], locals: locals}
	return f.run(len(ft.Results))
}

// GlobalValue reads an exported wasm global.
func (in *Instance) GlobalValue(name string) (uint64, bool) {
	exp, ok := in.exports[name]
	if !ok || exp.Kind != wasm.ExportGlobal {
		return 0, false
	}
	return in.globals[exp.Index], true
}

// MemorySize returns the current memory size in bytes.
func (in *Instance) MemorySize() uint32 { return uint32(len(in.mem)) }

// ReadBytes copies n bytes of linear memory starting at addr.
func (in *Instance) ReadBytes(addr, n uint32) ([]byte, error) {
	if uint64(addr)+uint64(n) > uint64(len(in.mem)) {
		return nil, fmt.Errorf("vm: read [%d, %d) outside memory", addr, uint64(addr)+uint64(n))
	}
	out := make([]byte, n)
	copy(out, in.mem[addr:])
	return out, nil
}

// ReadU32 loads a little-endian u32, for peeking at object headers and
// global cells in tests.
func (in *Instance) ReadU32(addr uint32) (uint32, error) {
	b, err := in.ReadBytes(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// grow adds delta pages, returning the previous page count or -1 when
// the limit would be exceeded.
func (in *Instance) grow(delta uint32) int32 {
	prev := uint32(len(in.mem)) / wasm.PageSize
	limit := uint32(maxGrowPages)
	if in.m.Mem.HasMax {
		limit = in.m.Mem.MaxPages
	}
	if uint64(prev)+uint64(delta) > uint64(limit) {
		return -1
	}
	in.mem = append(in.mem, make([]byte, uint64(delta)*wasm.PageSize)...)
	return int32(prev)
}
