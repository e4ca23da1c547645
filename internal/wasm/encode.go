package wasm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"fortio.org/safecast"
)

var moduleHeader = []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

// Section ids from the format.
const (
	secType   = 1
	secImport = 2
	secFunc   = 3
	secMemory = 5
	secGlobal = 6
	secExport = 7
	secStart  = 8
	secCode   = 10
	secData   = 11
)

// CodeLayout reports where each defined function's body starts in the
// encoded module, in definition order. Offsets point at the body's locals
// declaration, right after its size field.
type CodeLayout struct {
	BodyOffsets []uint32
}

// EncodeModule serializes m. Output is a pure function of the module
// contents; identical modules encode to identical bytes.
func EncodeModule(w io.Writer, m *Module) (CodeLayout, error) {
	var buf bytes.Buffer
	buf.Write(moduleHeader)

	if len(m.Types) > 0 {
		encodeTypeSection(&buf, m)
	}
	if len(m.Imports) > 0 {
		encodeImportSection(&buf, m)
	}
	if len(m.Funcs) > 0 {
		encodeFuncSection(&buf, m)
	}
	encodeMemorySection(&buf, m)
	if len(m.Globals) > 0 {
		if err := encodeGlobalSection(&buf, m); err != nil {
			return CodeLayout{}, err
		}
	}
	if len(m.Exports) > 0 {
		encodeExportSection(&buf, m)
	}
	if m.HasStart {
		var body bytes.Buffer
		writeUleb(&body, m.Start)
		writeSection(&buf, secStart, &body)
	}
	var layout CodeLayout
	if len(m.Funcs) > 0 {
		lo, err := encodeCodeSection(&buf, m)
		if err != nil {
			return CodeLayout{}, err
		}
		layout = lo
	}
	if len(m.Data) > 0 {
		encodeDataSection(&buf, m)
	}

	_, err := w.Write(buf.Bytes())
	return layout, err
}

func writeSection(buf *bytes.Buffer, id byte, body *bytes.Buffer) {
	buf.WriteByte(id)
	writeCount(buf, body.Len())
	buf.Write(body.Bytes())
}

func writeCount(buf *bytes.Buffer, n int) {
	v, err := safecast.Conv[uint32](n)
	if err != nil {
		panic(fmt.Errorf("section size overflow: %w", err))
	}
	writeUleb(buf, v)
}

func writeName(buf *bytes.Buffer, s string) {
	writeCount(buf, len(s))
	buf.WriteString(s)
}

func encodeTypeSection(buf *bytes.Buffer, m *Module) {
	var body bytes.Buffer
	writeCount(&body, len(m.Types))
	for _, ft := range m.Types {
		body.WriteByte(0x60)
		writeCount(&body, len(ft.Params))
		for _, p := range ft.Params {
			body.WriteByte(byte(p))
		}
		writeCount(&body, len(ft.Results))
		for _, r := range ft.Results {
			body.WriteByte(byte(r))
		}
	}
	writeSection(buf, secType, &body)
}

func encodeImportSection(buf *bytes.Buffer, m *Module) {
	var body bytes.Buffer
	writeCount(&body, len(m.Imports))
	for _, imp := range m.Imports {
		writeName(&body, imp.Module)
		writeName(&body, imp.Name)
		body.WriteByte(0x00) // function import
		writeUleb(&body, imp.Type)
	}
	writeSection(buf, secImport, &body)
}

func encodeFuncSection(buf *bytes.Buffer, m *Module) {
	var body bytes.Buffer
	writeCount(&body, len(m.Funcs))
	for _, fn := range m.Funcs {
		writeUleb(&body, fn.Type)
	}
	writeSection(buf, secFunc, &body)
}

func encodeMemorySection(buf *bytes.Buffer, m *Module) {
	var body bytes.Buffer
	writeUleb(&body, 1)
	if m.Mem.HasMax {
		body.WriteByte(0x01)
		writeUleb(&body, m.Mem.MinPages)
		writeUleb(&body, m.Mem.MaxPages)
	} else {
		body.WriteByte(0x00)
		writeUleb(&body, m.Mem.MinPages)
	}
	writeSection(buf, secMemory, &body)
}

func encodeGlobalSection(buf *bytes.Buffer, m *Module) error {
	var body bytes.Buffer
	writeCount(&body, len(m.Globals))
	for i, g := range m.Globals {
		body.WriteByte(byte(g.Type))
		if g.Mutable {
			body.WriteByte(0x01)
		} else {
			body.WriteByte(0x00)
		}
		if !isConstInstr(g.Init.Op) {
			return fmt.Errorf("global %d: initializer %s is not a constant", i, g.Init.Op)
		}
		if err := encodeInstr(&body, g.Init); err != nil {
			return err
		}
		body.WriteByte(byte(OpEnd))
	}
	writeSection(buf, secGlobal, &body)
	return nil
}

func isConstInstr(op Opcode) bool {
	return op == OpI32Const || op == OpI64Const || op == OpF32Const || op == OpF64Const
}

func encodeExportSection(buf *bytes.Buffer, m *Module) {
	var body bytes.Buffer
	writeCount(&body, len(m.Exports))
	for _, exp := range m.Exports {
		writeName(&body, exp.Name)
		body.WriteByte(byte(exp.Kind))
		writeUleb(&body, exp.Index)
	}
	writeSection(buf, secExport, &body)
}

func encodeCodeSection(buf *bytes.Buffer, m *Module) (CodeLayout, error) {
	var body bytes.Buffer
	writeCount(&body, len(m.Funcs))

	// Body offsets are relative to the section body start; the section
	// header length is only known afterwards, so fix them up at the end.
	relOffsets := make([]uint32, 0, len(m.Funcs))
	for i := range m.Funcs {
		fn := &m.Funcs[i]
		var code bytes.Buffer
		encodeLocals(&code, fn.Locals)
		for _, in := range fn.Body {
			if err := encodeInstr(&code, in); err != nil {
				return CodeLayout{}, fmt.Errorf("func %s: %w", m.FuncName(m.NumImports()+uint32(i)), err)
			}
		}
		code.WriteByte(byte(OpEnd))

		writeCount(&body, code.Len())
		rel, err := safecast.Conv[uint32](body.Len())
		if err != nil {
			return CodeLayout{}, fmt.Errorf("code offset overflow: %w", err)
		}
		relOffsets = append(relOffsets, rel)
		body.Write(code.Bytes())
	}

	buf.WriteByte(secCode)
	writeCount(buf, body.Len())
	base, err := safecast.Conv[uint32](buf.Len())
	if err != nil {
		return CodeLayout{}, fmt.Errorf("code offset overflow: %w", err)
	}
	buf.Write(body.Bytes())

	layout := CodeLayout{BodyOffsets: make([]uint32, len(relOffsets))}
	for i, rel := range relOffsets {
		layout.BodyOffsets[i] = base + rel
	}
	return layout, nil
}

func encodeLocals(buf *bytes.Buffer, locals []ValType) {
	type localRun struct {
		count uint32
		typ   ValType
	}
	var runs []localRun
	for _, t := range locals {
		if n := len(runs); n > 0 && runs[n-1].typ == t {
			runs[n-1].count++
			continue
		}
		runs = append(runs, localRun{count: 1, typ: t})
	}
	writeCount(buf, len(runs))
	for _, r := range runs {
		writeUleb(buf, r.count)
		buf.WriteByte(byte(r.typ))
	}
}

func encodeDataSection(buf *bytes.Buffer, m *Module) {
	var body bytes.Buffer
	writeCount(&body, len(m.Data))
	for _, seg := range m.Data {
		writeUleb(&body, 0) // memory index
		body.WriteByte(byte(OpI32Const))
		writeSleb(&body, int64(int32(seg.Offset)))
		body.WriteByte(byte(OpEnd))
		writeCount(&body, len(seg.Bytes))
		body.Write(seg.Bytes)
	}
	writeSection(buf, secData, &body)
}

func encodeInstr(buf *bytes.Buffer, in Instr) error {
	buf.WriteByte(byte(in.Op))
	switch in.Op {
	case OpBlock, OpLoop, OpIf:
		buf.WriteByte(byte(in.A))
		return nil
	case OpBr, OpBrIf, OpCall, OpLocalGet, OpLocalSet, OpLocalTee, OpGlobalGet, OpGlobalSet:
		writeUleb(buf, in.A)
		return nil
	case OpI32Const, OpI64Const:
		writeSleb(buf, in.Val)
		return nil
	case OpF32Const:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(float32(in.Fval)))
		buf.Write(b[:])
		return nil
	case OpF64Const:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(in.Fval))
		buf.Write(b[:])
		return nil
	case OpMemorySize, OpMemoryGrow:
		buf.WriteByte(0x00) // reserved memory index
		return nil
	}
	if in.Op.IsLoad() || in.Op.IsStore() {
		writeUleb(buf, in.A)
		writeUleb(buf, in.B)
		return nil
	}
	if _, ok := opNames[in.Op]; !ok {
		return fmt.Errorf("unknown opcode 0x%02X", uint8(in.Op))
	}
	return nil
}
