package layout

import (
	"slices"

	"wasc/internal/source"
	"wasc/internal/types"
)

// FieldSlot is one placed field of a class instance. Offset is absolute
// from the object pointer, so the first field of a root class sits at
// ObjectDataOff.
type FieldSlot struct {
	Name   source.StringID
	Type   types.TypeID
	Offset uint32
	Size   uint32
}

// ClassDesc is the frozen instance layout of one class. Fields lists
// inherited slots first, at the exact offsets of the base descriptor;
// derived layouts never move or shrink what they inherit.
type ClassDesc struct {
	Type    types.TypeID
	ClassID uint32
	Base    types.TypeID // NoTypeID for roots
	Fields  []FieldSlot
	Size    uint32 // full instance size, header included
	Align   uint32

	done bool
}

// Field resolves a field slot by name, inherited ones included.
func (d *ClassDesc) Field(name source.StringID) (FieldSlot, bool) {
	for _, s := range d.Fields {
		if s.Name == name {
			return s, true
		}
	}
	return FieldSlot{}, false
}

// PayloadSize is the allocation size the runtime is asked for: the
// instance minus the header the allocator writes itself.
func (d *ClassDesc) PayloadSize() uint32 {
	return d.Size - HeaderSize
}

// fillDesc places every class on the inheritance chain of ct, base first,
// so each derived descriptor copies its base's slots verbatim.
func (e *Engine) fillDesc(ct types.TypeID) error {
	chain := e.Types.Chain(ct)
	if chain == nil {
		return &LayoutError{Kind: LayoutErrCycle, Type: ct}
	}
	for _, id := range chain {
		d, ok := e.descs[id]
		if !ok {
			// The resolver registers every base before bodies run; a chain
			// entry without a descriptor is a pipeline bug.
			panic("layout: class chain names an unregistered class")
		}
		if d.done {
			continue
		}
		info, ok := e.Types.ClassInfo(id)
		if !ok {
			panic("layout: descriptor for a non-class type")
		}
		var base *ClassDesc
		if info.Base != types.NoTypeID {
			base = e.descs[info.Base]
		}
		if err := e.placeClass(d, info, base); err != nil {
			return err
		}
	}
	return nil
}

// placeClass appends info's declared fields after the inherited prefix.
// New fields take the next offset that is a multiple of their alignment;
// the instance size rounds up to the strictest alignment seen.
func (e *Engine) placeClass(d *ClassDesc, info types.ClassInfo, base *ClassDesc) error {
	cursor := uint64(HeaderSize)
	align := e.Target.PtrAlign
	var slots []FieldSlot

	if base != nil {
		slots = slices.Clone(base.Fields)
		if n := len(slots); n > 0 {
			cursor = uint64(slots[n-1].Offset) + uint64(slots[n-1].Size)
		}
		if base.Align > align {
			align = base.Align
		}
	}

	for _, f := range info.Fields {
		l := e.Value(f.Type)
		if l.Size == 0 {
			// Unplaceable field type; the resolver already rejected it.
			continue
		}
		a := l.Align
		if a == 0 {
			a = 1
		}
		cursor = roundUp64(cursor, uint64(a))
		if cursor+uint64(l.Size) >= maxAddress {
			return &LayoutError{Kind: LayoutErrAddressSpace, Type: d.Type, Size: cursor + uint64(l.Size)}
		}
		slots = append(slots, FieldSlot{Name: f.Name, Type: f.Type, Offset: uint32(cursor), Size: l.Size})
		cursor += uint64(l.Size)
		if a > align {
			align = a
		}
	}

	size := roundUp64(cursor, uint64(align))
	if size >= maxAddress {
		return &LayoutError{Kind: LayoutErrAddressSpace, Type: d.Type, Size: size}
	}

	d.Base = info.Base
	d.Fields = slots
	d.Size = uint32(size)
	d.Align = align
	d.done = true
	return nil
}
