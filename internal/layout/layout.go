package layout

import (
	"wasc/internal/types"
)

// maxAddress is the first byte past the 32-bit address space. Cursors run
// in uint64 so crossing it is detectable instead of wrapping.
const maxAddress = uint64(1) << 32

// Layout is the in-memory shape of one value slot.
type Layout struct {
	Size  uint32
	Align uint32
}

// Engine computes value shapes and class descriptors for one target. All
// descriptors are computed up front, so a built Engine is immutable and
// safe to read from concurrent lowering workers.
type Engine struct {
	Target Target
	Types  *types.Interner

	descs map[types.TypeID]*ClassDesc
	order []types.TypeID
}

// NewEngine builds the descriptor table for every declared class. classes
// is indexed in declaration order, which fixes each class id; entries may
// be NoTypeID where a declaration failed to register.
func NewEngine(target Target, tn *types.Interner, classes []types.TypeID) (*Engine, error) {
	e := &Engine{
		Target: target,
		Types:  tn,
		descs:  make(map[types.TypeID]*ClassDesc, len(classes)),
	}
	for i, ct := range classes {
		if ct == types.NoTypeID {
			continue
		}
		if _, dup := e.descs[ct]; dup {
			continue
		}
		e.descs[ct] = &ClassDesc{Type: ct, ClassID: FirstUserClassID + uint32(i)}
		e.order = append(e.order, ct)
	}
	for _, ct := range e.order {
		if err := e.fillDesc(ct); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Value returns the slot shape of a value of type t: its own size for
// scalars, pointer size for references, zero for types that never occupy
// storage. Alignment is natural, capped by the target's MaxAlign.
func (e *Engine) Value(t types.TypeID) Layout {
	tt, ok := e.Types.Lookup(t)
	if !ok {
		return Layout{Size: 0, Align: 1}
	}
	switch tt.Kind {
	case types.KindBool:
		return Layout{Size: 1, Align: 1}
	case types.KindInt, types.KindUint, types.KindFloat:
		size := uint32(tt.Width) / 8
		align := size
		if align > e.Target.MaxAlign {
			align = e.Target.MaxAlign
		}
		return Layout{Size: size, Align: align}
	case types.KindString, types.KindArray, types.KindClass:
		return Layout{Size: e.Target.PtrSize, Align: e.Target.PtrAlign}
	default:
		return Layout{Size: 0, Align: 1}
	}
}

// Stride returns the distance between consecutive array elements of type t.
func (e *Engine) Stride(t types.TypeID) uint32 {
	l := e.Value(t)
	if l.Align <= 1 {
		return l.Size
	}
	return roundUp32(l.Size, l.Align)
}

// ElementBytes returns count elements' worth of payload, rejecting totals
// that cannot sit in the 32-bit space together with an object header.
func (e *Engine) ElementBytes(elem types.TypeID, count uint32) (uint32, error) {
	total := uint64(e.Stride(elem)) * uint64(count)
	if HeaderSize+total >= maxAddress {
		return 0, &LayoutError{Kind: LayoutErrAddressSpace, Type: elem, Size: HeaderSize + total}
	}
	return uint32(total), nil
}

// Class returns the descriptor for a class type.
func (e *Engine) Class(t types.TypeID) (*ClassDesc, bool) {
	d, ok := e.descs[t]
	return d, ok
}

// ClassID returns the runtime class id for a class type, ClassIDInvalid
// when t is not a declared class.
func (e *Engine) ClassID(t types.TypeID) uint32 {
	if d, ok := e.descs[t]; ok {
		return d.ClassID
	}
	return ClassIDInvalid
}

// Descs lists all class descriptors in declaration order.
func (e *Engine) Descs() []*ClassDesc {
	out := make([]*ClassDesc, len(e.order))
	for i, ct := range e.order {
		out[i] = e.descs[ct]
	}
	return out
}

func roundUp32(n, align uint32) uint32 {
	if align <= 1 {
		return n
	}
	r := n % align
	if r == 0 {
		return n
	}
	return n + (align - r)
}

func roundUp64(n, align uint64) uint64 {
	if align <= 1 {
		return n
	}
	r := n % align
	if r == 0 {
		return n
	}
	return n + (align - r)
}
