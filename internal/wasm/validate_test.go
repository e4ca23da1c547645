package wasm

import (
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

func modWithBody(results []ValType, locals []ValType, body []Instr) *Module {
	m := &Module{Mem: Memory{MinPages: 1}}
	typeIdx := m.InternType(FuncType{Results: results})
	m.Funcs = append(m.Funcs, Func{Name: "f", Type: typeIdx, Locals: locals, Body: body})
	return m
}

func TestValidateAddModule(t *testing.T) {
	t.Parallel()
	be.Err(t, ValidateModule(addModule()), nil)
}

func TestValidateLoopDiscipline(t *testing.T) {
	t.Parallel()
	// The shape every lowered loop takes: an exit block wrapping the loop,
	// conditional exit via br_if out of the block, back edge via br to the
	// loop header.
	m := modWithBody(nil, []ValType{I32}, []Instr{
		Block(BlockEmpty),
		Loop(BlockEmpty),
		LocalGet(0),
		{Op: OpI32Eqz},
		BrIf(1), // leave the wrapping block
		LocalGet(0),
		I32Const(1),
		{Op: OpI32Sub},
		LocalSet(0),
		Br(0), // back to the loop header
		End(),
		End(),
	})
	be.Err(t, ValidateModule(m), nil)
}

func TestValidateIfElseResult(t *testing.T) {
	t.Parallel()
	m := modWithBody([]ValType{I32}, nil, []Instr{
		I32Const(1),
		If(BlockOf(I32)),
		I32Const(10),
		Else(),
		I32Const(20),
		End(),
	})
	be.Err(t, ValidateModule(m), nil)
}

func TestValidateRejectsUnderflow(t *testing.T) {
	t.Parallel()
	m := modWithBody([]ValType{I32}, nil, []Instr{{Op: OpI32Add}})
	err := ValidateModule(m)
	be.Equal(t, err != nil, true)
	be.True(t, strings.Contains(err.Error(), "underflow"))
}

func TestValidateRejectsTypeMismatch(t *testing.T) {
	t.Parallel()
	m := modWithBody([]ValType{F64}, nil, []Instr{
		I32Const(1),
		F64Const(2),
		{Op: OpF64Add},
	})
	be.Equal(t, ValidateModule(m) != nil, true)
}

func TestValidateRejectsDeepBranch(t *testing.T) {
	t.Parallel()
	m := modWithBody(nil, nil, []Instr{Br(3)})
	be.Equal(t, ValidateModule(m) != nil, true)
}

func TestValidateRejectsIfResultWithoutElse(t *testing.T) {
	t.Parallel()
	m := modWithBody([]ValType{I32}, nil, []Instr{
		I32Const(1),
		If(BlockOf(I32)),
		I32Const(10),
		End(),
	})
	be.Equal(t, ValidateModule(m) != nil, true)
}

func TestValidateUnreachablePolymorphism(t *testing.T) {
	t.Parallel()
	// Code after return is dead; the validator must accept any stack use
	// there, as the format's typing does.
	m := modWithBody([]ValType{I32}, nil, []Instr{
		I32Const(1),
		{Op: OpReturn},
		{Op: OpI32Add},
		{Op: OpDrop},
	})
	be.Err(t, ValidateModule(m), nil)
}

func TestValidateRejectsImmutableGlobalWrite(t *testing.T) {
	t.Parallel()
	m := modWithBody(nil, nil, []Instr{
		I32Const(5),
		GlobalSet(0),
	})
	m.Globals = append(m.Globals, Global{Type: I32, Init: I32Const(0)})
	err := ValidateModule(m)
	be.Equal(t, err != nil, true)
	be.True(t, strings.Contains(err.Error(), "immutable"))
}

func TestValidateRejectsOveralignedAccess(t *testing.T) {
	t.Parallel()
	m := modWithBody(nil, nil, []Instr{
		I32Const(0),
		Mem(OpI32Load, 3, 0),
		{Op: OpDrop},
	})
	be.Equal(t, ValidateModule(m) != nil, true)
}

func TestValidateRejectsDuplicateExport(t *testing.T) {
	t.Parallel()
	m := addModule()
	m.Exports = append(m.Exports, Export{Name: "add", Kind: ExportMemory, Index: 0})
	err := ValidateModule(m)
	be.Equal(t, err != nil, true)
	be.True(t, strings.Contains(err.Error(), "duplicate export"))
}

func TestValidateRejectsOversizedData(t *testing.T) {
	t.Parallel()
	m := &Module{Mem: Memory{MinPages: 1}}
	m.Data = append(m.Data, DataSegment{Offset: PageSize - 1, Bytes: []byte{1, 2}})
	be.Equal(t, ValidateModule(m) != nil, true)
}

func TestValidateCallSignature(t *testing.T) {
	t.Parallel()
	m := &Module{Mem: Memory{MinPages: 1}}
	calleeType := m.InternType(FuncType{Params: []ValType{I32}, Results: []ValType{I64}})
	callerType := m.InternType(FuncType{Results: []ValType{I64}})
	m.Funcs = append(m.Funcs,
		Func{Name: "callee", Type: calleeType, Body: []Instr{LocalGet(0), {Op: OpI64ExtendI32U}}},
		Func{Name: "caller", Type: callerType, Body: []Instr{I32Const(7), Call(0)}},
	)
	be.Err(t, ValidateModule(m), nil)

	// Calling with a missing argument must fail.
	m.Funcs[1].Body = []Instr{Call(0)}
	be.Equal(t, ValidateModule(m) != nil, true)
}
