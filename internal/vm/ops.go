package vm

import (
	"math"
	"math/bits"

	"wasc/internal/wasm"
)

// numeric executes one value instruction, reporting false for opcodes
// outside the numeric groups.
func (f *frame) numeric(op wasm.Opcode) (bool, error) {
	if handled, err := f.intOp(op); handled || err != nil {
		return handled, err
	}
	if handled := f.floatOp(op); handled {
		return true, nil
	}
	return f.convertOp(op)
}

func (f *frame) intOp(op wasm.Opcode) (bool, error) {
	switch op {
	case wasm.OpI32Eqz:
		f.pushBool(uint32(f.pop()) == 0)
	case wasm.OpI32Eq:
		l, r := f.pop2()
		f.pushBool(uint32(l) == uint32(r))
	case wasm.OpI32Ne:
		l, r := f.pop2()
		f.pushBool(uint32(l) != uint32(r))
	case wasm.OpI32LtS:
		l, r := f.pop2()
		f.pushBool(AsI32(l) < AsI32(r))
	case wasm.OpI32LtU:
		l, r := f.pop2()
		f.pushBool(uint32(l) < uint32(r))
	case wasm.OpI32GtS:
		l, r := f.pop2()
		f.pushBool(AsI32(l) > AsI32(r))
	case wasm.OpI32GtU:
		l, r := f.pop2()
		f.pushBool(uint32(l) > uint32(r))
	case wasm.OpI32LeS:
		l, r := f.pop2()
		f.pushBool(AsI32(l) <= AsI32(r))
	case wasm.OpI32LeU:
		l, r := f.pop2()
		f.pushBool(uint32(l) <= uint32(r))
	case wasm.OpI32GeS:
		l, r := f.pop2()
		f.pushBool(AsI32(l) >= AsI32(r))
	case wasm.OpI32GeU:
		l, r := f.pop2()
		f.pushBool(uint32(l) >= uint32(r))

	case wasm.OpI64Eqz:
		f.pushBool(f.pop() == 0)
	case wasm.OpI64Eq:
		l, r := f.pop2()
		f.pushBool(l == r)
	case wasm.OpI64Ne:
		l, r := f.pop2()
		f.pushBool(l != r)
	case wasm.OpI64LtS:
		l, r := f.pop2()
		f.pushBool(AsI64(l) < AsI64(r))
	case wasm.OpI64LtU:
		l, r := f.pop2()
		f.pushBool(l < r)
	case wasm.OpI64GtS:
		l, r := f.pop2()
		f.pushBool(AsI64(l) > AsI64(r))
	case wasm.OpI64GtU:
		l, r := f.pop2()
		f.pushBool(l > r)
	case wasm.OpI64LeS:
		l, r := f.pop2()
		f.pushBool(AsI64(l) <= AsI64(r))
	case wasm.OpI64LeU:
		l, r := f.pop2()
		f.pushBool(l <= r)
	case wasm.OpI64GeS:
		l, r := f.pop2()
		f.pushBool(AsI64(l) >= AsI64(r))
	case wasm.OpI64GeU:
		l, r := f.pop2()
		f.pushBool(l >= r)

	case wasm.OpI32Clz:
		f.push(I32(int32(bits.LeadingZeros32(uint32(f.pop())))))
	case wasm.OpI32Ctz:
		f.push(I32(int32(bits.TrailingZeros32(uint32(f.pop())))))
	case wasm.OpI32Popcnt:
		f.push(I32(int32(bits.OnesCount32(uint32(f.pop())))))
	case wasm.OpI32Add:
		l, r := f.pop2()
		f.push(uint64(uint32(l) + uint32(r)))
	case wasm.OpI32Sub:
		l, r := f.pop2()
		f.push(uint64(uint32(l) - uint32(r)))
	case wasm.OpI32Mul:
		l, r := f.pop2()
		f.push(uint64(uint32(l) * uint32(r)))
	case wasm.OpI32DivS:
		l, r := f.pop2()
		a, b := AsI32(l), AsI32(r)
		if b == 0 {
			return true, f.trap(TrapDivideByZero, "")
		}
		if a == math.MinInt32 && b == -1 {
			return true, f.trap(TrapIntegerOverflow, "i32.div_s")
		}
		f.push(I32(a / b))
	case wasm.OpI32DivU:
		l, r := f.pop2()
		if uint32(r) == 0 {
			return true, f.trap(TrapDivideByZero, "")
		}
		f.push(uint64(uint32(l) / uint32(r)))
	case wasm.OpI32RemS:
		l, r := f.pop2()
		a, b := AsI32(l), AsI32(r)
		if b == 0 {
			return true, f.trap(TrapDivideByZero, "")
		}
		if a == math.MinInt32 && b == -1 {
			f.push(0)
			break
		}
		f.push(I32(a % b))
	case wasm.OpI32RemU:
		l, r := f.pop2()
		if uint32(r) == 0 {
			return true, f.trap(TrapDivideByZero, "")
		}
		f.push(uint64(uint32(l) % uint32(r)))
	case wasm.OpI32And:
		l, r := f.pop2()
		f.push(uint64(uint32(l) & uint32(r)))
	case wasm.OpI32Or:
		l, r := f.pop2()
		f.push(uint64(uint32(l) | uint32(r)))
	case wasm.OpI32Xor:
		l, r := f.pop2()
		f.push(uint64(uint32(l) ^ uint32(r)))
	case wasm.OpI32Shl:
		l, r := f.pop2()
		f.push(uint64(uint32(l) << (r & 31)))
	case wasm.OpI32ShrS:
		l, r := f.pop2()
		f.push(I32(AsI32(l) >> (r & 31)))
	case wasm.OpI32ShrU:
		l, r := f.pop2()
		f.push(uint64(uint32(l) >> (r & 31)))
	case wasm.OpI32Rotl:
		l, r := f.pop2()
		f.push(uint64(bits.RotateLeft32(uint32(l), int(r&31))))
	case wasm.OpI32Rotr:
		l, r := f.pop2()
		f.push(uint64(bits.RotateLeft32(uint32(l), -int(r&31))))

	case wasm.OpI64Clz:
		f.push(uint64(bits.LeadingZeros64(f.pop())))
	case wasm.OpI64Ctz:
		f.push(uint64(bits.TrailingZeros64(f.pop())))
	case wasm.OpI64Popcnt:
		f.push(uint64(bits.OnesCount64(f.pop())))
	case wasm.OpI64Add:
		l, r := f.pop2()
		f.push(l + r)
	case wasm.OpI64Sub:
		l, r := f.pop2()
		f.push(l - r)
	case wasm.OpI64Mul:
		l, r := f.pop2()
		f.push(l * r)
	case wasm.OpI64DivS:
		l, r := f.pop2()
		a, b := AsI64(l), AsI64(r)
		if b == 0 {
			return true, f.trap(TrapDivideByZero, "")
		}
		if a == math.MinInt64 && b == -1 {
			return true, f.trap(TrapIntegerOverflow, "i64.div_s")
		}
		f.push(I64(a / b))
	case wasm.OpI64DivU:
		l, r := f.pop2()
		if r == 0 {
			return true, f.trap(TrapDivideByZero, "")
		}
		f.push(l / r)
	case wasm.OpI64RemS:
		l, r := f.pop2()
		a, b := AsI64(l), AsI64(r)
		if b == 0 {
			return true, f.trap(TrapDivideByZero, "")
		}
		if a == math.MinInt64 && b == -1 {
			f.push(0)
			break
		}
		f.push(I64(a % b))
	case wasm.OpI64RemU:
		l, r := f.pop2()
		if r == 0 {
			return true, f.trap(TrapDivideByZero, "")
		}
		f.push(l % r)
	case wasm.OpI64And:
		l, r := f.pop2()
		f.push(l & r)
	case wasm.OpI64Or:
		l, r := f.pop2()
		f.push(l | r)
	case wasm.OpI64Xor:
		l, r := f.pop2()
		f.push(l ^ r)
	case wasm.OpI64Shl:
		l, r := f.pop2()
		f.push(l << (r & 63))
	case wasm.OpI64ShrS:
		l, r := f.pop2()
		f.push(I64(AsI64(l) >> (r & 63)))
	case wasm.OpI64ShrU:
		l, r := f.pop2()
		f.push(l >> (r & 63))
	case wasm.OpI64Rotl:
		l, r := f.pop2()
		f.push(bits.RotateLeft64(l, int(r&63)))
	case wasm.OpI64Rotr:
		l, r := f.pop2()
		f.push(bits.RotateLeft64(l, -int(r&63)))

	default:
		return false, nil
	}
	return true, nil
}
