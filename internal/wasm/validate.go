package wasm

import (
	"fmt"
)

// unknownType is the polymorphic stack slot produced after unreachable
// code. It unifies with every value type.
const unknownType ValType = 0

// ValidateModule checks structural invariants and typechecks every
// function body. A module that fails here would be rejected by any
// conforming loader, so code generation treats a failure as a bug.
func ValidateModule(m *Module) error {
	for _, imp := range m.Imports {
		if int(imp.Type) >= len(m.Types) {
			return fmt.Errorf("import %s.%s: type index %d out of range", imp.Module, imp.Name, imp.Type)
		}
	}
	for i := range m.Funcs {
		fn := &m.Funcs[i]
		if int(fn.Type) >= len(m.Types) {
			return fmt.Errorf("func %s: type index %d out of range", fn.Name, fn.Type)
		}
		if err := ValidateFunc(m, fn); err != nil {
			return err
		}
	}
	for i, g := range m.Globals {
		if !isConstInstr(g.Init.Op) {
			return fmt.Errorf("global %d: non-constant initializer %s", i, g.Init.Op)
		}
		if got := constType(g.Init.Op); got != g.Type {
			return fmt.Errorf("global %d: initializer type %s, declared %s", i, got, g.Type)
		}
	}
	seen := make(map[string]struct{}, len(m.Exports))
	for _, exp := range m.Exports {
		if _, dup := seen[exp.Name]; dup {
			return fmt.Errorf("duplicate export %q", exp.Name)
		}
		seen[exp.Name] = struct{}{}
		switch exp.Kind {
		case ExportFunc:
			if exp.Index >= m.NumFuncs() {
				return fmt.Errorf("export %q: function index %d out of range", exp.Name, exp.Index)
			}
		case ExportGlobal:
			if int(exp.Index) >= len(m.Globals) {
				return fmt.Errorf("export %q: global index %d out of range", exp.Name, exp.Index)
			}
		case ExportMemory:
			if exp.Index != 0 {
				return fmt.Errorf("export %q: memory index %d out of range", exp.Name, exp.Index)
			}
		default:
			return fmt.Errorf("export %q: unknown kind %d", exp.Name, exp.Kind)
		}
	}
	if m.HasStart {
		ft, ok := m.FuncTypeAt(m.Start)
		if !ok {
			return fmt.Errorf("start: function index %d out of range", m.Start)
		}
		if len(ft.Params) != 0 || len(ft.Results) != 0 {
			return fmt.Errorf("start: function %d must have empty signature, has %s", m.Start, ft)
		}
	}
	memBytes := uint64(m.Mem.MinPages) * PageSize
	for i, seg := range m.Data {
		end := uint64(seg.Offset) + uint64(len(seg.Bytes))
		if end > memBytes {
			return fmt.Errorf("data segment %d: [%d, %d) exceeds initial memory of %d bytes", i, seg.Offset, end, memBytes)
		}
	}
	return nil
}

func constType(op Opcode) ValType {
	switch op {
	case OpI32Const:
		return I32
	case OpI64Const:
		return I64
	case OpF32Const:
		return F32
	case OpF64Const:
		return F64
	}
	return unknownType
}

// ValidateFunc typechecks a single body against the module context.
func ValidateFunc(m *Module, fn *Func) error {
	if int(fn.Type) >= len(m.Types) {
		return fmt.Errorf("func %s: type index %d out of range", fn.Name, fn.Type)
	}
	ft := m.Types[fn.Type]

	v := &bodyValidator{m: m, fn: fn}
	v.locals = append(v.locals, ft.Params...)
	v.locals = append(v.locals, fn.Locals...)
	v.pushCtrl(OpBlock, nil, ft.Results)

	for idx, in := range fn.Body {
		if err := v.step(in); err != nil {
			return fmt.Errorf("func %s: instr %d (%s): %w", fn.Name, idx, in, err)
		}
	}

	// Implicit end of the body. popCtrl checks the results against the
	// signature and rejects both leftovers and underflow.
	if _, err := v.popCtrl(); err != nil {
		return fmt.Errorf("func %s: at end of body: %w", fn.Name, err)
	}
	if len(v.ctrls) != 0 {
		return fmt.Errorf("func %s: %d unclosed blocks at end of body", fn.Name, len(v.ctrls))
	}
	return nil
}

type ctrlFrame struct {
	op          Opcode
	start       []ValType
	end         []ValType
	height      int
	unreachable bool
}

// labelTypes is what a branch to this frame must provide: loop labels
// target the header (start types), everything else the exit (end types).
func (f *ctrlFrame) labelTypes() []ValType {
	if f.op == OpLoop {
		return f.start
	}
	return f.end
}

type bodyValidator struct {
	m      *Module
	fn     *Func
	locals []ValType
	vals   []ValType
	ctrls  []ctrlFrame
}

func (v *bodyValidator) pushVal(t ValType) {
	v.vals = append(v.vals, t)
}

func (v *bodyValidator) popVal() (ValType, error) {
	frame := &v.ctrls[len(v.ctrls)-1]
	if len(v.vals) == frame.height {
		if frame.unreachable {
			return unknownType, nil
		}
		return unknownType, fmt.Errorf("value stack underflow")
	}
	t := v.vals[len(v.vals)-1]
	v.vals = v.vals[:len(v.vals)-1]
	return t, nil
}

func (v *bodyValidator) popExpect(want ValType) (ValType, error) {
	got, err := v.popVal()
	if err != nil {
		return got, err
	}
	if got != want && got != unknownType && want != unknownType {
		return got, fmt.Errorf("expected %s on stack, found %s", want, got)
	}
	return got, nil
}

func (v *bodyValidator) popExpectAll(want []ValType) error {
	for i := len(want) - 1; i >= 0; i-- {
		if _, err := v.popExpect(want[i]); err != nil {
			return err
		}
	}
	return nil
}

func (v *bodyValidator) pushCtrl(op Opcode, start, end []ValType) {
	v.ctrls = append(v.ctrls, ctrlFrame{op: op, start: start, end: end, height: len(v.vals)})
	for _, t := range start {
		v.pushVal(t)
	}
}

func (v *bodyValidator) popCtrl() (ctrlFrame, error) {
	if len(v.ctrls) == 0 {
		return ctrlFrame{}, fmt.Errorf("control stack underflow")
	}
	frame := v.ctrls[len(v.ctrls)-1]
	if err := v.popExpectAll(frame.end); err != nil {
		return frame, err
	}
	if len(v.vals) != frame.height {
		return frame, fmt.Errorf("block leaves %d extra values", len(v.vals)-frame.height)
	}
	v.ctrls = v.ctrls[:len(v.ctrls)-1]
	return frame, nil
}

func (v *bodyValidator) markUnreachable() {
	frame := &v.ctrls[len(v.ctrls)-1]
	v.vals = v.vals[:frame.height]
	frame.unreachable = true
}

func (v *bodyValidator) frameAt(depth uint32) (*ctrlFrame, error) {
	if int(depth) >= len(v.ctrls) {
		return nil, fmt.Errorf("branch depth %d exceeds nesting %d", depth, len(v.ctrls))
	}
	return &v.ctrls[len(v.ctrls)-1-int(depth)], nil
}

func blockResults(a uint32) ([]ValType, error) {
	bt := BlockType(a)
	if bt == BlockEmpty {
		return nil, nil
	}
	if !ValType(bt).IsValid() {
		return nil, fmt.Errorf("invalid block type 0x%02X", a)
	}
	return bt.Results(), nil
}

func (v *bodyValidator) step(in Instr) error {
	switch in.Op {
	case OpNop:
		return nil

	case OpUnreachable:
		v.markUnreachable()
		return nil

	case OpBlock, OpLoop:
		results, err := blockResults(in.A)
		if err != nil {
			return err
		}
		v.pushCtrl(in.Op, nil, results)
		return nil

	case OpIf:
		if _, err := v.popExpect(I32); err != nil {
			return err
		}
		results, err := blockResults(in.A)
		if err != nil {
			return err
		}
		v.pushCtrl(in.Op, nil, results)
		return nil

	case OpElse:
		frame, err := v.popCtrl()
		if err != nil {
			return err
		}
		if frame.op != OpIf {
			return fmt.Errorf("else outside if")
		}
		v.pushCtrl(OpElse, frame.start, frame.end)
		return nil

	case OpEnd:
		frame, err := v.popCtrl()
		if err != nil {
			return err
		}
		if frame.op == OpIf && len(frame.end) != len(frame.start) {
			return fmt.Errorf("if with a result needs an else branch")
		}
		for _, t := range frame.end {
			v.pushVal(t)
		}
		return nil

	case OpBr:
		frame, err := v.frameAt(in.A)
		if err != nil {
			return err
		}
		if err := v.popExpectAll(frame.labelTypes()); err != nil {
			return err
		}
		v.markUnreachable()
		return nil

	case OpBrIf:
		if _, err := v.popExpect(I32); err != nil {
			return err
		}
		frame, err := v.frameAt(in.A)
		if err != nil {
			return err
		}
		label := frame.labelTypes()
		if err := v.popExpectAll(label); err != nil {
			return err
		}
		for _, t := range label {
			v.pushVal(t)
		}
		return nil

	case OpReturn:
		results := v.ctrls[0].end
		if err := v.popExpectAll(results); err != nil {
			return err
		}
		v.markUnreachable()
		return nil

	case OpCall:
		ft, ok := v.m.FuncTypeAt(in.A)
		if !ok {
			return fmt.Errorf("call target %d out of range", in.A)
		}
		if err := v.popExpectAll(ft.Params); err != nil {
			return err
		}
		for _, t := range ft.Results {
			v.pushVal(t)
		}
		return nil

	case OpDrop:
		_, err := v.popVal()
		return err

	case OpSelect:
		if _, err := v.popExpect(I32); err != nil {
			return err
		}
		t1, err := v.popVal()
		if err != nil {
			return err
		}
		t2, err := v.popVal()
		if err != nil {
			return err
		}
		if t1 != t2 && t1 != unknownType && t2 != unknownType {
			return fmt.Errorf("select operands disagree: %s vs %s", t1, t2)
		}
		if t1 == unknownType {
			t1 = t2
		}
		v.pushVal(t1)
		return nil

	case OpLocalGet, OpLocalSet, OpLocalTee:
		if int(in.A) >= len(v.locals) {
			return fmt.Errorf("local index %d out of range", in.A)
		}
		t := v.locals[in.A]
		switch in.Op {
		case OpLocalGet:
			v.pushVal(t)
		case OpLocalSet:
			if _, err := v.popExpect(t); err != nil {
				return err
			}
		case OpLocalTee:
			if _, err := v.popExpect(t); err != nil {
				return err
			}
			v.pushVal(t)
		}
		return nil

	case OpGlobalGet:
		if int(in.A) >= len(v.m.Globals) {
			return fmt.Errorf("global index %d out of range", in.A)
		}
		v.pushVal(v.m.Globals[in.A].Type)
		return nil

	case OpGlobalSet:
		if int(in.A) >= len(v.m.Globals) {
			return fmt.Errorf("global index %d out of range", in.A)
		}
		g := v.m.Globals[in.A]
		if !g.Mutable {
			return fmt.Errorf("global %d is immutable", in.A)
		}
		_, err := v.popExpect(g.Type)
		return err

	case OpMemorySize:
		v.pushVal(I32)
		return nil

	case OpMemoryGrow:
		if _, err := v.popExpect(I32); err != nil {
			return err
		}
		v.pushVal(I32)
		return nil
	}

	if in.Op.IsLoad() || in.Op.IsStore() {
		return v.stepMem(in)
	}

	ins, outs, ok := opSignature(in.Op)
	if !ok {
		return fmt.Errorf("no typing rule for %s", in.Op)
	}
	if err := v.popExpectAll(ins); err != nil {
		return err
	}
	for _, t := range outs {
		v.pushVal(t)
	}
	return nil
}

func (v *bodyValidator) stepMem(in Instr) error {
	natural, valType, ok := memAccess(in.Op)
	if !ok {
		return fmt.Errorf("no memory rule for %s", in.Op)
	}
	if in.A > natural {
		return fmt.Errorf("alignment 2^%d exceeds natural alignment 2^%d", in.A, natural)
	}
	if in.Op.IsStore() {
		if _, err := v.popExpect(valType); err != nil {
			return err
		}
		_, err := v.popExpect(I32)
		return err
	}
	if _, err := v.popExpect(I32); err != nil {
		return err
	}
	v.pushVal(valType)
	return nil
}

// memAccess returns the natural alignment exponent and the value type of
// a load or store.
func memAccess(op Opcode) (align uint32, t ValType, ok bool) {
	switch op {
	case OpI32Load, OpI32Store:
		return 2, I32, true
	case OpI64Load, OpI64Store:
		return 3, I64, true
	case OpF32Load, OpF32Store:
		return 2, F32, true
	case OpF64Load, OpF64Store:
		return 3, F64, true
	case OpI32Load8S, OpI32Load8U, OpI32Store8:
		return 0, I32, true
	case OpI32Load16S, OpI32Load16U, OpI32Store16:
		return 1, I32, true
	case OpI64Load8S, OpI64Load8U, OpI64Store8:
		return 0, I64, true
	case OpI64Load16S, OpI64Load16U, OpI64Store16:
		return 1, I64, true
	case OpI64Load32S, OpI64Load32U, OpI64Store32:
		return 2, I64, true
	}
	return 0, unknownType, false
}

// opSignature covers the plain numeric instructions: fixed operand and
// result types with no immediates beyond the opcode.
func opSignature(op Opcode) (ins, outs []ValType, ok bool) {
	switch {
	case op == OpI32Const:
		return nil, []ValType{I32}, true
	case op == OpI64Const:
		return nil, []ValType{I64}, true
	case op == OpF32Const:
		return nil, []ValType{F32}, true
	case op == OpF64Const:
		return nil, []ValType{F64}, true

	case op == OpI32Eqz:
		return []ValType{I32}, []ValType{I32}, true
	case op >= OpI32Eq && op <= OpI32GeU:
		return []ValType{I32, I32}, []ValType{I32}, true
	case op == OpI64Eqz:
		return []ValType{I64}, []ValType{I32}, true
	case op >= OpI64Eq && op <= OpI64GeU:
		return []ValType{I64, I64}, []ValType{I32}, true
	case op >= OpF32Eq && op <= OpF32Ge:
		return []ValType{F32, F32}, []ValType{I32}, true
	case op >= OpF64Eq && op <= OpF64Ge:
		return []ValType{F64, F64}, []ValType{I32}, true

	case op >= OpI32Clz && op <= OpI32Popcnt:
		return []ValType{I32}, []ValType{I32}, true
	case op >= OpI32Add && op <= OpI32Rotr:
		return []ValType{I32, I32}, []ValType{I32}, true
	case op >= OpI64Clz && op <= OpI64Popcnt:
		return []ValType{I64}, []ValType{I64}, true
	case op >= OpI64Add && op <= OpI64Rotr:
		return []ValType{I64, I64}, []ValType{I64}, true

	case op >= OpF32Abs && op <= OpF32Sqrt:
		return []ValType{F32}, []ValType{F32}, true
	case op >= OpF32Add && op <= OpF32Copysign:
		return []ValType{F32, F32}, []ValType{F32}, true
	case op >= OpF64Abs && op <= OpF64Sqrt:
		return []ValType{F64}, []ValType{F64}, true
	case op >= OpF64Add && op <= OpF64Copysign:
		return []ValType{F64, F64}, []ValType{F64}, true
	}

	switch op {
	case OpI32WrapI64:
		return []ValType{I64}, []ValType{I32}, true
	case OpI32TruncF32S, OpI32TruncF32U, OpI32ReinterpretF32:
		return []ValType{F32}, []ValType{I32}, true
	case OpI32TruncF64S, OpI32TruncF64U:
		return []ValType{F64}, []ValType{I32}, true
	case OpI64ExtendI32S, OpI64ExtendI32U:
		return []ValType{I32}, []ValType{I64}, true
	case OpI64TruncF32S, OpI64TruncF32U:
		return []ValType{F32}, []ValType{I64}, true
	case OpI64TruncF64S, OpI64TruncF64U, OpI64ReinterpretF64:
		return []ValType{F64}, []ValType{I64}, true
	case OpF32ConvertI32S, OpF32ConvertI32U, OpF32ReinterpretI32:
		return []ValType{I32}, []ValType{F32}, true
	case OpF32ConvertI64S, OpF32ConvertI64U:
		return []ValType{I64}, []ValType{F32}, true
	case OpF32DemoteF64:
		return []ValType{F64}, []ValType{F32}, true
	case OpF64ConvertI32S, OpF64ConvertI32U:
		return []ValType{I32}, []ValType{F64}, true
	case OpF64ConvertI64S, OpF64ConvertI64U, OpF64ReinterpretI64:
		return []ValType{I64}, []ValType{F64}, true
	case OpF64PromoteF32:
		return []ValType{F32}, []ValType{F64}, true
	}
	return nil, nil, false
}
