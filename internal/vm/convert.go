package vm

import (
	"math"

	"wasc/internal/wasm"
)

func (f *frame) convertOp(op wasm.Opcode) (bool, error) {
	switch op {
	case wasm.OpI32WrapI64:
		f.push(I32(int32(AsI64(f.pop()))))
	case wasm.OpI64ExtendI32S:
		f.push(I64(int64(AsI32(f.pop()))))
	case wasm.OpI64ExtendI32U:
		f.push(uint64(uint32(f.pop())))

	case wasm.OpI32TruncF32S:
		bits, err := f.truncS32(float64(AsF32(f.pop())))
		if err != nil {
			return true, err
		}
		f.push(bits)
	case wasm.OpI32TruncF64S:
		bits, err := f.truncS32(AsF64(f.pop()))
		if err != nil {
			return true, err
		}
		f.push(bits)
	case wasm.OpI32TruncF32U:
		bits, err := f.truncU32(float64(AsF32(f.pop())))
		if err != nil {
			return true, err
		}
		f.push(bits)
	case wasm.OpI32TruncF64U:
		bits, err := f.truncU32(AsF64(f.pop()))
		if err != nil {
			return true, err
		}
		f.push(bits)
	case wasm.OpI64TruncF32S:
		bits, err := f.truncS64(float64(AsF32(f.pop())))
		if err != nil {
			return true, err
		}
		f.push(bits)
	case wasm.OpI64TruncF64S:
		bits, err := f.truncS64(AsF64(f.pop()))
		if err != nil {
			return true, err
		}
		f.push(bits)
	case wasm.OpI64TruncF32U:
		bits, err := f.truncU64(float64(AsF32(f.pop())))
		if err != nil {
			return true, err
		}
		f.push(bits)
	case wasm.OpI64TruncF64U:
		bits, err := f.truncU64(AsF64(f.pop()))
		if err != nil {
			return true, err
		}
		f.push(bits)

	case wasm.OpF32ConvertI32S:
		f.push(F32(float32(AsI32(f.pop()))))
	case wasm.OpF32ConvertI32U:
		f.push(F32(float32(uint32(f.pop()))))
	case wasm.OpF32ConvertI64S:
		f.push(F32(float32(AsI64(f.pop()))))
	case wasm.OpF32ConvertI64U:
		f.push(F32(float32(f.pop())))
	case wasm.OpF64ConvertI32S:
		f.push(F64(float64(AsI32(f.pop()))))
	case wasm.OpF64ConvertI32U:
		f.push(F64(float64(uint32(f.pop()))))
	case wasm.OpF64ConvertI64S:
		f.push(F64(float64(AsI64(f.pop()))))
	case wasm.OpF64ConvertI64U:
		f.push(F64(float64(f.pop())))

	case wasm.OpF32DemoteF64:
		f.push(F32(float32(AsF64(f.pop()))))
	case wasm.OpF64PromoteF32:
		f.push(F64(float64(AsF32(f.pop()))))

	case wasm.OpI32ReinterpretF32, wasm.OpF32ReinterpretI32:
		f.push(uint64(uint32(f.pop())))
	case wasm.OpI64ReinterpretF64, wasm.OpF64ReinterpretI64:
		f.push(f.pop())

	default:
		return false, nil
	}
	return true, nil
}

func (f *frame) truncS32(v float64) (uint64, error) {
	if v != v {
		return 0, f.trap(TrapInvalidConversion, "NaN to i32")
	}
	t := math.Trunc(v)
	if t < math.MinInt32 || t > math.MaxInt32 {
		return 0, f.trap(TrapIntegerOverflow, "i32 out of range")
	}
	return I32(int32(t)), nil
}

func (f *frame) truncU32(v float64) (uint64, error) {
	if v != v {
		return 0, f.trap(TrapInvalidConversion, "NaN to u32")
	}
	t := math.Trunc(v)
	if t < 0 || t > math.MaxUint32 {
		return 0, f.trap(TrapIntegerOverflow, "u32 out of range")
	}
	return uint64(uint32(t)), nil
}

// The 64-bit bounds are exact powers of two, so the comparisons stay
// sharp even though MaxInt64 itself is not representable.
func (f *frame) truncS64(v float64) (uint64, error) {
	if v != v {
		return 0, f.trap(TrapInvalidConversion, "NaN to i64")
	}
	t := math.Trunc(v)
	if t >= float64(1<<63) || t < -float64(1<<63) {
		return 0, f.trap(TrapIntegerOverflow, "i64 out of range")
	}
	return I64(int64(t)), nil
}

func (f *frame) truncU64(v float64) (uint64, error) {
	if v != v {
		return 0, f.trap(TrapInvalidConversion, "NaN to u64")
	}
	t := math.Trunc(v)
	if t < 0 || t >= float64(1<<64) {
		return 0, f.trap(TrapIntegerOverflow, "u64 out of range")
	}
	return uint64(t), nil
}
