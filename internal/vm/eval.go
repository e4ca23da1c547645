package vm

import (
	"encoding/binary"
	"fmt"

	"wasc/internal/wasm"
)

// funcMeta caches the structural scan of one body: for every opener the
// matching end, and for if the matching else when present.
type funcMeta struct {
	end []int
	alt []int
}

func scanBody(body []wasm.Instr) (funcMeta, error) {
	meta := funcMeta{end: make([]int, len(body)), alt: make([]int, len(body))}
	for pc := range body {
		meta.end[pc] = -1
		meta.alt[pc] = -1
	}
	var open []int
	for pc, ins := range body {
		switch ins.Op {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
			open = append(open, pc)
		case wasm.OpElse:
			if len(open) == 0 || body[open[len(open)-1]].Op != wasm.OpIf {
				return funcMeta{}, fmt.Errorf("else without if at %d", pc)
			}
			meta.alt[open[len(open)-1]] = pc
		case wasm.OpEnd:
			if len(open) == 0 {
				return funcMeta{}, fmt.Errorf("end without opener at %d", pc)
			}
			meta.end[open[len(open)-1]] = pc
			open = open[:len(open)-1]
		}
	}
	if len(open) != 0 {
		return funcMeta{}, fmt.Errorf("unclosed block at %d", open[len(open)-1])
	}
	return meta, nil
}

// ctrl is one live structured frame: target is where a branch to this
// label resumes, height the value stack depth at entry, arity the
// number of values such a branch carries.
type ctrl struct {
	loop   bool
	target int
	height int
	arity  int
}

// frame is the live state of one function activation.
type frame struct {
	in     *Instance
	fn     *wasm.Func
	meta   *funcMeta
	locals []uint64
	stack  []uint64
	ctrls  []ctrl
}

func (f *frame) push(v uint64) { f.stack = append(f.stack, v) }

func (f *frame) pop() uint64 {
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

// pop2 pops the right then the left operand of a binary instruction.
func (f *frame) pop2() (uint64, uint64) {
	r := f.pop()
	l := f.pop()
	return l, r
}

func (f *frame) pushBool(b bool) {
	if b {
		f.push(1)
	} else {
		f.push(0)
	}
}

func (f *frame) trap(code TrapCode, msg string) *Trap {
	return &Trap{Code: code, Func: f.fn.Name, Msg: msg}
}

func (f *frame) results(arity int) []uint64 {
	out := make([]uint64, arity)
	copy(out, f.stack[len(f.stack)-arity:])
	return out
}

// branch lands on the label depth frames up and returns the new pc. A
// loop label re-enters the body and stays live; a block label exits
// past its end carrying the label arity.
func (f *frame) branch(depth int) int {
	idx := len(f.ctrls) - 1 - depth
	c := f.ctrls[idx]
	if c.loop {
		f.ctrls = f.ctrls[:idx+1]
		f.stack = f.stack[:c.height]
		return c.target
	}
	if c.arity == 1 {
		v := f.stack[len(f.stack)-1]
		f.stack = append(f.stack[:c.height], v)
	} else {
		f.stack = f.stack[:c.height]
	}
	f.ctrls = f.ctrls[:idx]
	return c.target
}

func blockArity(ins wasm.Instr) int {
	return len(wasm.BlockType(ins.A).Results())
}

func (f *frame) run(arity int) ([]uint64, error) {
	body := f.fn.Body
	pc := 0
	for pc < len(body) {
		ins := body[pc]
		switch ins.Op {
		case wasm.OpUnreachable:
			return nil, f.trap(TrapUnreachable, "")
		case wasm.OpNop:

		case wasm.OpBlock:
			f.ctrls = append(f.ctrls, ctrl{target: f.meta.end[pc] + 1, height: len(f.stack), arity: blockArity(ins)})
		case wasm.OpLoop:
			f.ctrls = append(f.ctrls, ctrl{loop: true, target: pc + 1, height: len(f.stack)})
		case wasm.OpIf:
			cond := uint32(f.pop())
			alt, end := f.meta.alt[pc], f.meta.end[pc]
			switch {
			case cond != 0:
				f.ctrls = append(f.ctrls, ctrl{target: end + 1, height: len(f.stack), arity: blockArity(ins)})
			case alt >= 0:
				f.ctrls = append(f.ctrls, ctrl{target: end + 1, height: len(f.stack), arity: blockArity(ins)})
				pc = alt
			default:
				pc = end
			}
		case wasm.OpElse:
			// The true arm ran to here; skip the false arm.
			pc = f.ctrls[len(f.ctrls)-1].target
			f.ctrls = f.ctrls[:len(f.ctrls)-1]
			continue
		case wasm.OpEnd:
			f.ctrls = f.ctrls[:len(f.ctrls)-1]

		case wasm.OpBr:
			d := int(ins.A)
			if d >= len(f.ctrls) {
				return f.results(arity), nil
			}
			pc = f.branch(d)
			continue
		case wasm.OpBrIf:
			if uint32(f.pop()) != 0 {
				d := int(ins.A)
				if d >= len(f.ctrls) {
					return f.results(arity), nil
				}
				pc = f.branch(d)
				continue
			}
		case wasm.OpReturn:
			return f.results(arity), nil
		case wasm.OpCall:
			ft, ok := f.in.m.FuncTypeAt(ins.A)
			if !ok {
				return nil, f.trap(TrapUnsupported, fmt.Sprintf("call to unknown function %d", ins.A))
			}
			args := make([]uint64, len(ft.Params))
			for i := len(args) - 1; i >= 0; i-- {
				args[i] = f.pop()
			}
			out, err := f.in.invoke(ins.A, args)
			if err != nil {
				return nil, err
			}
			f.stack = append(f.stack, out...)

		case wasm.OpDrop:
			f.pop()
		case wasm.OpSelect:
			cond := uint32(f.pop())
			v2 := f.pop()
			v1 := f.pop()
			if cond != 0 {
				f.push(v1)
			} else {
				f.push(v2)
			}

		case wasm.OpLocalGet:
			f.push(f.locals[ins.A])
		case wasm.OpLocalSet:
			f.locals[ins.A] = f.pop()
		case wasm.OpLocalTee:
			f.locals[ins.A] = f.stack[len(f.stack)-1]
		case wasm.OpGlobalGet:
			f.push(f.in.globals[ins.A])
		case wasm.OpGlobalSet:
			f.in.globals[ins.A] = f.pop()

		case wasm.OpI32Const:
			f.push(I32(int32(ins.Val)))
		case wasm.OpI64Const:
			f.push(uint64(ins.Val))
		case wasm.OpF32Const:
			f.push(F32(float32(ins.Fval)))
		case wasm.OpF64Const:
			f.push(F64(ins.Fval))

		case wasm.OpMemorySize:
			f.push(I32(int32(uint32(len(f.in.mem)) / wasm.PageSize)))
		case wasm.OpMemoryGrow:
			delta := uint32(f.pop())
			f.push(I32(f.in.grow(delta)))

		default:
			if ins.Op.IsLoad() || ins.Op.IsStore() {
				if err := f.memory(ins); err != nil {
					return nil, err
				}
				break
			}
			handled, err := f.numeric(ins.Op)
			if err != nil {
				return nil, err
			}
			if !handled {
				return nil, f.trap(TrapUnsupported, ins.Op.String())
			}
		}
		pc++
	}
	return f.results(arity), nil
}

// memory executes one load or store.
func (f *frame) memory(ins wasm.Instr) error {
	switch ins.Op {
	case wasm.OpI32Load, wasm.OpF32Load:
		raw, err := f.load(ins, 4)
		if err != nil {
			return err
		}
		f.push(raw)
	case wasm.OpI64Load, wasm.OpF64Load:
		raw, err := f.load(ins, 8)
		if err != nil {
			return err
		}
		f.push(raw)
	case wasm.OpI32Load8U:
		raw, err := f.load(ins, 1)
		if err != nil {
			return err
		}
		f.push(raw)
	case wasm.OpI32Load8S:
		raw, err := f.load(ins, 1)
		if err != nil {
			return err
		}
		f.push(I32(int32(int8(raw))))
	case wasm.OpI32Load16U:
		raw, err := f.load(ins, 2)
		if err != nil {
			return err
		}
		f.push(raw)
	case wasm.OpI32Load16S:
		raw, err := f.load(ins, 2)
		if err != nil {
			return err
		}
		f.push(I32(int32(int16(raw))))
	case wasm.OpI64Load8U:
		raw, err := f.load(ins, 1)
		if err != nil {
			return err
		}
		f.push(raw)
	case wasm.OpI64Load8S:
		raw, err := f.load(ins, 1)
		if err != nil {
			return err
		}
		f.push(I64(int64(int8(raw))))
	case wasm.OpI64Load16U:
		raw, err := f.load(ins, 2)
		if err != nil {
			return err
		}
		f.push(raw)
	case wasm.OpI64Load16S:
		raw, err := f.load(ins, 2)
		if err != nil {
			return err
		}
		f.push(I64(int64(int16(raw))))
	case wasm.OpI64Load32U:
		raw, err := f.load(ins, 4)
		if err != nil {
			return err
		}
		f.push(raw)
	case wasm.OpI64Load32S:
		raw, err := f.load(ins, 4)
		if err != nil {
			return err
		}
		f.push(I64(int64(int32(raw))))

	case wasm.OpI32Store, wasm.OpF32Store:
		return f.store(ins, 4)
	case wasm.OpI64Store, wasm.OpF64Store:
		return f.store(ins, 8)
	case wasm.OpI32Store8, wasm.OpI64Store8:
		return f.store(ins, 1)
	case wasm.OpI32Store16, wasm.OpI64Store16:
		return f.store(ins, 2)
	case wasm.OpI64Store32:
		return f.store(ins, 4)
	default:
		return f.trap(TrapUnsupported, ins.Op.String())
	}
	return nil
}

func (f *frame) load(ins wasm.Instr, size uint32) (uint64, error) {
	base := uint32(f.pop())
	addr := uint64(base) + uint64(ins.B)
	if addr+uint64(size) > uint64(len(f.in.mem)) {
		return 0, f.trap(TrapMemoryBounds, fmt.Sprintf("%d-byte load at %d", size, addr))
	}
	mem := f.in.mem[addr:]
	switch size {
	case 1:
		return uint64(mem[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(mem)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(mem)), nil
	}
	return binary.LittleEndian.Uint64(mem), nil
}

func (f *frame) store(ins wasm.Instr, size uint32) error {
	v := f.pop()
	base := uint32(f.pop())
	addr := uint64(base) + uint64(ins.B)
	if addr+uint64(size) > uint64(len(f.in.mem)) {
		return f.trap(TrapMemoryBounds, fmt.Sprintf("%d-byte store at %d", size, addr))
	}
	mem := f.in.mem[addr:]
	switch size {
	case 1:
		mem[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(mem, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(mem, uint32(v))
	default:
		binary.LittleEndian.PutUint64(mem, v)
	}
	return nil
}
