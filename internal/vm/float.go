package vm

import (
	"math"

	"wasc/internal/wasm"
)

func (f *frame) floatOp(op wasm.Opcode) bool {
	switch op {
	case wasm.OpF32Eq:
		l, r := f.pop2()
		f.pushBool(AsF32(l) == AsF32(r))
	case wasm.OpF32Ne:
		l, r := f.pop2()
		f.pushBool(AsF32(l) != AsF32(r))
	case wasm.OpF32Lt:
		l, r := f.pop2()
		f.pushBool(AsF32(l) < AsF32(r))
	case wasm.OpF32Gt:
		l, r := f.pop2()
		f.pushBool(AsF32(l) > AsF32(r))
	case wasm.OpF32Le:
		l, r := f.pop2()
		f.pushBool(AsF32(l) <= AsF32(r))
	case wasm.OpF32Ge:
		l, r := f.pop2()
		f.pushBool(AsF32(l) >= AsF32(r))

	case wasm.OpF64Eq:
		l, r := f.pop2()
		f.pushBool(AsF64(l) == AsF64(r))
	case wasm.OpF64Ne:
		l, r := f.pop2()
		f.pushBool(AsF64(l) != AsF64(r))
	case wasm.OpF64Lt:
		l, r := f.pop2()
		f.pushBool(AsF64(l) < AsF64(r))
	case wasm.OpF64Gt:
		l, r := f.pop2()
		f.pushBool(AsF64(l) > AsF64(r))
	case wasm.OpF64Le:
		l, r := f.pop2()
		f.pushBool(AsF64(l) <= AsF64(r))
	case wasm.OpF64Ge:
		l, r := f.pop2()
		f.pushBool(AsF64(l) >= AsF64(r))

	case wasm.OpF32Abs:
		f.push(F32(float32(math.Abs(float64(AsF32(f.pop()))))))
	case wasm.OpF32Neg:
		f.push(F32(-AsF32(f.pop())))
	case wasm.OpF32Ceil:
		f.push(F32(float32(math.Ceil(float64(AsF32(f.pop()))))))
	case wasm.OpF32Floor:
		f.push(F32(float32(math.Floor(float64(AsF32(f.pop()))))))
	case wasm.OpF32Trunc:
		f.push(F32(float32(math.Trunc(float64(AsF32(f.pop()))))))
	case wasm.OpF32Nearest:
		f.push(F32(float32(math.RoundToEven(float64(AsF32(f.pop()))))))
	case wasm.OpF32Sqrt:
		f.push(F32(float32(math.Sqrt(float64(AsF32(f.pop()))))))
	case wasm.OpF32Add:
		l, r := f.pop2()
		f.push(F32(AsF32(l) + AsF32(r)))
	case wasm.OpF32Sub:
		l, r := f.pop2()
		f.push(F32(AsF32(l) - AsF32(r)))
	case wasm.OpF32Mul:
		l, r := f.pop2()
		f.push(F32(AsF32(l) * AsF32(r)))
	case wasm.OpF32Div:
		l, r := f.pop2()
		f.push(F32(AsF32(l) / AsF32(r)))
	case wasm.OpF32Min:
		l, r := f.pop2()
		f.push(F32(fmin32(AsF32(l), AsF32(r))))
	case wasm.OpF32Max:
		l, r := f.pop2()
		f.push(F32(fmax32(AsF32(l), AsF32(r))))
	case wasm.OpF32Copysign:
		l, r := f.pop2()
		f.push(F32(float32(math.Copysign(float64(AsF32(l)), float64(AsF32(r))))))

	case wasm.OpF64Abs:
		f.push(F64(math.Abs(AsF64(f.pop()))))
	case wasm.OpF64Neg:
		f.push(F64(-AsF64(f.pop())))
	case wasm.OpF64Ceil:
		f.push(F64(math.Ceil(AsF64(f.pop()))))
	case wasm.OpF64Floor:
		f.push(F64(math.Floor(AsF64(f.pop()))))
	case wasm.OpF64Trunc:
		f.push(F64(math.Trunc(AsF64(f.pop()))))
	case wasm.OpF64Nearest:
		f.push(F64(math.RoundToEven(AsF64(f.pop()))))
	case wasm.OpF64Sqrt:
		f.push(F64(math.Sqrt(AsF64(f.pop()))))
	case wasm.OpF64Add:
		l, r := f.pop2()
		f.push(F64(AsF64(l) + AsF64(r)))
	case wasm.OpF64Sub:
		l, r := f.pop2()
		f.push(F64(AsF64(l) - AsF64(r)))
	case wasm.OpF64Mul:
		l, r := f.pop2()
		f.push(F64(AsF64(l) * AsF64(r)))
	case wasm.OpF64Div:
		l, r := f.pop2()
		f.push(F64(AsF64(l) / AsF64(r)))
	case wasm.OpF64Min:
		l, r := f.pop2()
		f.push(F64(math.Min(AsF64(l), AsF64(r))))
	case wasm.OpF64Max:
		l, r := f.pop2()
		f.push(F64(math.Max(AsF64(l), AsF64(r))))
	case wasm.OpF64Copysign:
		l, r := f.pop2()
		f.push(F64(math.Copysign(AsF64(l), AsF64(r))))

	default:
		return false
	}
	return true
}

// fmin32 and fmax32 follow the format's min/max semantics at f32 width:
// NaN wins, and equal-magnitude zeros resolve by sign.
func fmin32(a, b float32) float32 {
	switch {
	case a != a || b != b:
		return float32(math.NaN())
	case a == b && math.Signbit(float64(a)) != math.Signbit(float64(b)):
		return float32(math.Copysign(0, -1))
	case a < b:
		return a
	}
	return b
}

func fmax32(a, b float32) float32 {
	switch {
	case a != a || b != b:
		return float32(math.NaN())
	case a == b && math.Signbit(float64(a)) != math.Signbit(float64(b)):
		return 0
	case a > b:
		return a
	}
	return b
}
