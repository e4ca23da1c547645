package intrin

import (
	"fmt"

	"wasc/internal/types"
	"wasc/internal/wasm"
)

// Expand returns the raw instruction a resolved call compiles to. Memory
// access carries natural alignment and the immediate offset from the Call;
// the caller emits the address operand (plus the add for a non-constant
// offset) beforehand. Panics on a Call the resolver could not have
// produced.
func Expand(c Call) wasm.Instr {
	switch c.Op {
	case OpLoad:
		return wasm.Mem(loadOp(c), alignExp(c.Width), c.Offset)
	case OpStore:
		return wasm.Mem(storeOp(c), alignExp(c.Width), c.Offset)
	case OpReinterpret:
		if c.Elem == types.KindFloat {
			return wasm.Instr{Op: pick(c.Width, wasm.OpF32ReinterpretI32, wasm.OpF64ReinterpretI64)}
		}
		return wasm.Instr{Op: pick(c.Width, wasm.OpI32ReinterpretF32, wasm.OpI64ReinterpretF64)}
	case OpClz:
		return wasm.Instr{Op: pick(c.Width, wasm.OpI32Clz, wasm.OpI64Clz)}
	case OpCtz:
		return wasm.Instr{Op: pick(c.Width, wasm.OpI32Ctz, wasm.OpI64Ctz)}
	case OpPopcnt:
		return wasm.Instr{Op: pick(c.Width, wasm.OpI32Popcnt, wasm.OpI64Popcnt)}
	case OpRotl:
		return wasm.Instr{Op: pick(c.Width, wasm.OpI32Rotl, wasm.OpI64Rotl)}
	case OpRotr:
		return wasm.Instr{Op: pick(c.Width, wasm.OpI32Rotr, wasm.OpI64Rotr)}
	case OpAbs:
		return wasm.Instr{Op: pick(c.Width, wasm.OpF32Abs, wasm.OpF64Abs)}
	case OpCeil:
		return wasm.Instr{Op: pick(c.Width, wasm.OpF32Ceil, wasm.OpF64Ceil)}
	case OpFloor:
		return wasm.Instr{Op: pick(c.Width, wasm.OpF32Floor, wasm.OpF64Floor)}
	case OpTrunc:
		return wasm.Instr{Op: pick(c.Width, wasm.OpF32Trunc, wasm.OpF64Trunc)}
	case OpNearest:
		return wasm.Instr{Op: pick(c.Width, wasm.OpF32Nearest, wasm.OpF64Nearest)}
	case OpSqrt:
		return wasm.Instr{Op: pick(c.Width, wasm.OpF32Sqrt, wasm.OpF64Sqrt)}
	case OpMin:
		return wasm.Instr{Op: pick(c.Width, wasm.OpF32Min, wasm.OpF64Min)}
	case OpMax:
		return wasm.Instr{Op: pick(c.Width, wasm.OpF32Max, wasm.OpF64Max)}
	case OpCopysign:
		return wasm.Instr{Op: pick(c.Width, wasm.OpF32Copysign, wasm.OpF64Copysign)}
	case OpSelect:
		return wasm.Instr{Op: wasm.OpSelect}
	case OpMemorySize:
		return wasm.Instr{Op: wasm.OpMemorySize}
	case OpMemoryGrow:
		return wasm.Instr{Op: wasm.OpMemoryGrow}
	}
	panic(fmt.Sprintf("intrin: no instruction for %s", c.Op))
}

func loadOp(c Call) wasm.Opcode {
	switch c.Width {
	case types.Width8:
		if c.Elem == types.KindUint {
			return wasm.OpI32Load8U
		}
		return wasm.OpI32Load8S
	case types.Width16:
		if c.Elem == types.KindUint {
			return wasm.OpI32Load16U
		}
		return wasm.OpI32Load16S
	case types.Width32:
		if c.Elem == types.KindFloat {
			return wasm.OpF32Load
		}
		return wasm.OpI32Load
	case types.Width64:
		if c.Elem == types.KindFloat {
			return wasm.OpF64Load
		}
		return wasm.OpI64Load
	}
	panic(fmt.Sprintf("intrin: no load for %s/%d", c.Elem, c.Width))
}

func storeOp(c Call) wasm.Opcode {
	switch c.Width {
	case types.Width8:
		return wasm.OpI32Store8
	case types.Width16:
		return wasm.OpI32Store16
	case types.Width32:
		if c.Elem == types.KindFloat {
			return wasm.OpF32Store
		}
		return wasm.OpI32Store
	case types.Width64:
		if c.Elem == types.KindFloat {
			return wasm.OpF64Store
		}
		return wasm.OpI64Store
	}
	panic(fmt.Sprintf("intrin: no store for %s/%d", c.Elem, c.Width))
}

// alignExp is the natural alignment of a width as a power-of-two exponent.
func alignExp(w types.Width) uint32 {
	switch w {
	case types.Width8:
		return 0
	case types.Width16:
		return 1
	case types.Width32:
		return 2
	case types.Width64:
		return 3
	}
	panic(fmt.Sprintf("intrin: bad width %d", w))
}

func pick(w types.Width, op32, op64 wasm.Opcode) wasm.Opcode {
	if w == types.Width64 {
		return op64
	}
	return op32
}
