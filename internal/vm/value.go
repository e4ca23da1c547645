package vm

import "math"

// Values travel through the evaluator as raw 64-bit slot patterns; the
// instruction decides the view. These helpers convert between Go values
// and slot bits at the API edge.

func I32(v int32) uint64 { return uint64(uint32(v)) }

func I64(v int64) uint64 { return uint64(v) }

func F32(v float32) uint64 { return uint64(math.Float32bits(v)) }

func F64(v float64) uint64 { return math.Float64bits(v) }

func AsI32(bits uint64) int32 { return int32(uint32(bits)) }

func AsU32(bits uint64) uint32 { return uint32(bits) }

func AsI64(bits uint64) int64 { return int64(bits) }

func AsF32(bits uint64) float32 { return math.Float32frombits(uint32(bits)) }

func AsF64(bits uint64) float64 { return math.Float64frombits(bits) }
