package wasm

import (
	"fmt"
	"strconv"
)

// Instr is one instruction with its immediates. Which fields are live
// depends on the opcode:
//
//	i32.const, i64.const    Val (sign-extended)
//	f32.const, f64.const    Fval (f32 payloads are exact in a float64)
//	br, br_if               A = relative label depth
//	local.*, global.*       A = index
//	call                    A = function index
//	block, loop, if         A = BlockType byte
//	loads and stores        A = alignment exponent, B = static offset
//	memory.size/grow        no immediates (the reserved byte is encoder detail)
//
// Everything else carries no immediates.
type Instr struct {
	Op   Opcode
	Val  int64
	Fval float64
	A    uint32
	B    uint32
}

func I32Const(v int32) Instr { return Instr{Op: OpI32Const, Val: int64(v)} }

func I64Const(v int64) Instr { return Instr{Op: OpI64Const, Val: v} }

func F32Const(v float32) Instr { return Instr{Op: OpF32Const, Fval: float64(v)} }

func F64Const(v float64) Instr { return Instr{Op: OpF64Const, Fval: v} }

func LocalGet(idx uint32) Instr { return Instr{Op: OpLocalGet, A: idx} }

func LocalSet(idx uint32) Instr { return Instr{Op: OpLocalSet, A: idx} }

func LocalTee(idx uint32) Instr { return Instr{Op: OpLocalTee, A: idx} }

func GlobalGet(idx uint32) Instr { return Instr{Op: OpGlobalGet, A: idx} }

func GlobalSet(idx uint32) Instr { return Instr{Op: OpGlobalSet, A: idx} }

func Br(depth uint32) Instr { return Instr{Op: OpBr, A: depth} }

func BrIf(depth uint32) Instr { return Instr{Op: OpBrIf, A: depth} }

func Call(fn uint32) Instr { return Instr{Op: OpCall, A: fn} }

func Block(bt BlockType) Instr { return Instr{Op: OpBlock, A: uint32(bt)} }

func Loop(bt BlockType) Instr { return Instr{Op: OpLoop, A: uint32(bt)} }

func If(bt BlockType) Instr { return Instr{Op: OpIf, A: uint32(bt)} }

func Else() Instr { return Instr{Op: OpElse} }

func End() Instr { return Instr{Op: OpEnd} }

// Mem builds a load or store with the given alignment exponent and static
// byte offset.
func Mem(op Opcode, align, offset uint32) Instr {
	return Instr{Op: op, A: align, B: offset}
}

func (in Instr) String() string {
	switch in.Op {
	case OpI32Const, OpI64Const:
		return fmt.Sprintf("%s %d", in.Op, in.Val)
	case OpF32Const, OpF64Const:
		return fmt.Sprintf("%s %s", in.Op, strconv.FormatFloat(in.Fval, 'g', -1, 64))
	case OpBr, OpBrIf, OpLocalGet, OpLocalSet, OpLocalTee, OpGlobalGet, OpGlobalSet, OpCall:
		return fmt.Sprintf("%s %d", in.Op, in.A)
	case OpBlock, OpLoop, OpIf:
		bt := BlockType(in.A)
		if bt == BlockEmpty {
			return in.Op.String()
		}
		return fmt.Sprintf("%s %s", in.Op, bt)
	}
	if in.Op.IsLoad() || in.Op.IsStore() {
		if in.B == 0 {
			return fmt.Sprintf("%s align=%d", in.Op, in.A)
		}
		return fmt.Sprintf("%s offset=%d align=%d", in.Op, in.B, in.A)
	}
	return in.Op.String()
}
