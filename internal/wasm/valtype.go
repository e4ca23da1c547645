package wasm

import "strings"

// ValType is a value type byte as it appears in the binary format.
type ValType uint8

const (
	I32 ValType = 0x7F
	I64 ValType = 0x7E
	F32 ValType = 0x7D
	F64 ValType = 0x7C
)

func (t ValType) String() string {
	switch t {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	}
	return "valtype(?)"
}

// IsValid reports whether t is one of the four numeric value types.
func (t ValType) IsValid() bool {
	return t == I32 || t == I64 || t == F32 || t == F64
}

// BlockType is the single-byte block result annotation: one value type or
// BlockEmpty for no result.
type BlockType uint8

const BlockEmpty BlockType = 0x40

// BlockOf annotates a block producing one value of the given type.
func BlockOf(t ValType) BlockType {
	return BlockType(t)
}

func (bt BlockType) String() string {
	if bt == BlockEmpty {
		return ""
	}
	return "(result " + ValType(bt).String() + ")"
}

// Results lists the value types a block of this type leaves on the stack.
func (bt BlockType) Results() []ValType {
	if bt == BlockEmpty {
		return nil
	}
	return []ValType{ValType(bt)}
}

// FuncType is a function signature: parameter list and result list. The
// format allows several results; this compiler only ever emits zero or one.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports structural equality.
func (ft FuncType) Equal(other FuncType) bool {
	if len(ft.Params) != len(other.Params) || len(ft.Results) != len(other.Results) {
		return false
	}
	for i := range ft.Params {
		if ft.Params[i] != other.Params[i] {
			return false
		}
	}
	for i := range ft.Results {
		if ft.Results[i] != other.Results[i] {
			return false
		}
	}
	return true
}

// Key is a canonical text form usable as a dedup map key.
func (ft FuncType) Key() string {
	var sb strings.Builder
	for _, p := range ft.Params {
		sb.WriteString(p.String())
		sb.WriteByte(',')
	}
	sb.WriteString("->")
	for _, r := range ft.Results {
		sb.WriteByte(',')
		sb.WriteString(r.String())
	}
	return sb.String()
}

func (ft FuncType) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, p := range ft.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.String())
	}
	sb.WriteString(") -> (")
	for i, r := range ft.Results {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(r.String())
	}
	sb.WriteByte(')')
	return sb.String()
}
