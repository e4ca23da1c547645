package layout

import (
	"encoding/binary"
	"math"

	"wasc/internal/ast"
	"wasc/internal/sema"
	"wasc/internal/types"
)

// BuildPlan places every static data item of a checked program: one
// deduplicated object per distinct string literal, one storage cell per
// global, and complete seeded objects for globals whose initializers are
// compile-time constants. Seeded globals skip the runtime start path.
func BuildPlan(prog *ast.Program, res *sema.Result, eng *Engine) (*Plan, error) {
	p := NewPlan(eng.Target)

	// Literal arena order is source order, which keeps addresses stable
	// across runs.
	for _, lit := range prog.Exprs.Literals.Slice() {
		if lit.Kind != ast.LitString {
			continue
		}
		text, ok := prog.Names.Lookup(lit.Str)
		if !ok {
			continue
		}
		if _, err := p.AddString(lit.Str, text); err != nil {
			return nil, err
		}
	}

	for _, gid := range prog.GlobalIDs() {
		sym := res.Global(gid)
		if _, err := p.AddGlobal(gid, eng.Value(sym.Type)); err != nil {
			return nil, err
		}
	}

	for _, gid := range prog.GlobalIDs() {
		decl := prog.Decls.Global(gid)
		if !decl.Init.IsValid() {
			continue
		}
		img, ok, err := constImage(prog, res, eng, p, decl.Init)
		if err != nil {
			return nil, err
		}
		if ok {
			p.SeedGlobal(gid, img)
		}
	}
	return p, nil
}

// constImage renders a compile-time constant initializer as the byte image
// of its value slot: scalar bytes for numerics and bool, a placed object
// address for strings and constant array literals. ok is false when the
// expression needs runtime evaluation.
func constImage(prog *ast.Program, res *sema.Result, eng *Engine, p *Plan, id ast.ExprID) ([]byte, bool, error) {
	tt, ok := res.Types.Lookup(res.Init.ExprTypes[id])
	if !ok {
		return nil, false, nil
	}
	switch tt.Kind {
	case types.KindBool, types.KindInt, types.KindUint, types.KindFloat:
		v, ok := constScalar(prog, id)
		if !ok {
			return nil, false, nil
		}
		return scalarImage(tt, v), true, nil

	case types.KindString:
		lit, ok := prog.Exprs.Literal(unwrapGroups(prog, id))
		if !ok || lit.Kind != ast.LitString {
			return nil, false, nil
		}
		addr, ok := p.StringAddr(lit.Str)
		if !ok {
			return nil, false, nil
		}
		return addrImage(addr), true, nil

	case types.KindArray:
		addr, ok, err := constArray(prog, res, eng, p, id, tt)
		if !ok || err != nil {
			return nil, false, err
		}
		return addrImage(addr), true, nil

	default:
		return nil, false, nil
	}
}

// constArray places a fully constant array literal as a static object and
// returns its address. Resizable arrays get a separate buffer object with
// capacity equal to the literal length.
func constArray(prog *ast.Program, res *sema.Result, eng *Engine, p *Plan, id ast.ExprID, tt types.Type) (uint32, bool, error) {
	lit, ok := prog.Exprs.ArrayLit(unwrapGroups(prog, id))
	if !ok {
		return 0, false, nil
	}
	stride := eng.Stride(tt.Elem)
	elems := make([]byte, 0, uint64(stride)*uint64(len(lit.Elems)))
	for _, el := range lit.Elems {
		img, ok, err := constImage(prog, res, eng, p, el)
		if err != nil {
			return 0, false, err
		}
		if !ok || len(img) != int(stride) {
			return 0, false, nil
		}
		elems = append(elems, img...)
	}
	align := eng.Value(tt.Elem).Align

	if tt.Count != types.ArrayDynamicLength {
		addr, err := p.AddObject(ClassIDFixed, elems, align)
		return addr, err == nil, err
	}

	bufAddr, err := p.AddObject(ClassIDBuffer, elems, align)
	if err != nil {
		return 0, false, err
	}
	count := uint32(len(lit.Elems))
	hdr := make([]byte, ArraySize-HeaderSize)
	le32(hdr[ArrayLengthOff-HeaderSize:], count)
	le32(hdr[ArrayCapOff-HeaderSize:], count)
	le32(hdr[ArrayDataOff-HeaderSize:], bufAddr)
	addr, err := p.AddObject(ClassIDArray, hdr, eng.Target.PtrAlign)
	return addr, err == nil, err
}

// constVal carries one scalar constant in both integer and float form;
// the checked type picks which rendering applies.
type constVal struct {
	bits    uint64
	f       float64
	isFloat bool
}

func constScalar(prog *ast.Program, id ast.ExprID) (constVal, bool) {
	expr := prog.Exprs.Get(id)
	if expr == nil {
		return constVal{}, false
	}
	switch expr.Kind {
	case ast.ExprLit:
		lit, _ := prog.Exprs.Literal(id)
		switch lit.Kind {
		case ast.LitInt:
			return constVal{bits: lit.Int, f: float64(lit.Int)}, true
		case ast.LitFloat:
			return constVal{f: lit.Float, isFloat: true}, true
		case ast.LitBool:
			v := constVal{}
			if lit.Bool {
				v.bits = 1
			}
			return v, true
		}
		return constVal{}, false

	case ast.ExprUnary:
		un, _ := prog.Exprs.Unary(id)
		if un.Op != ast.UnNeg {
			return constVal{}, false
		}
		v, ok := constScalar(prog, un.Operand)
		if !ok {
			return constVal{}, false
		}
		v.bits = uint64(-int64(v.bits))
		v.f = -v.f
		return v, true

	case ast.ExprGroup:
		grp, _ := prog.Exprs.Group(id)
		return constScalar(prog, grp.Inner)
	}
	return constVal{}, false
}

func scalarImage(tt types.Type, v constVal) []byte {
	switch tt.Kind {
	case types.KindBool:
		b := make([]byte, 1)
		if v.bits != 0 {
			b[0] = 1
		}
		return b
	case types.KindInt, types.KindUint:
		size := int(tt.Width) / 8
		b := make([]byte, size)
		for i := range size {
			b[i] = byte(v.bits >> (8 * i))
		}
		return b
	case types.KindFloat:
		if tt.Width == types.Width32 {
			b := make([]byte, 4)
			le32(b, math.Float32bits(float32(v.f)))
			return b
		}
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, math.Float64bits(v.f))
		return b
	}
	return nil
}

func addrImage(addr uint32) []byte {
	b := make([]byte, 4)
	le32(b, addr)
	return b
}

func unwrapGroups(prog *ast.Program, id ast.ExprID) ast.ExprID {
	for {
		expr := prog.Exprs.Get(id)
		if expr == nil || expr.Kind != ast.ExprGroup {
			return id
		}
		grp, _ := prog.Exprs.Group(id)
		id = grp.Inner
	}
}
