package layout

import (
	"encoding/binary"
	"fmt"
	"slices"
	"sort"

	"fortio.org/safecast"
	"golang.org/x/text/encoding/unicode"

	"wasc/internal/ast"
	"wasc/internal/source"
)

// Segment is one initialized run of static memory, ready to become a data
// section entry.
type Segment struct {
	Offset uint32
	Bytes  []byte
}

type chunk struct {
	off   uint32
	bytes []byte
}

// Plan owns the static region of linear memory: string literal objects,
// global cells and seeded initializer objects, each at a disjoint offset.
// A plan is built single-threaded, frozen by the pipeline, and read-only
// for everyone downstream; appending after Freeze panics.
type Plan struct {
	target  Target
	cursor  uint64
	frozen  bool
	strings map[source.StringID]uint32
	cells   map[ast.GlobalID]uint32
	seeded  map[ast.GlobalID]bool
	chunks  []chunk
}

// NewPlan starts an empty plan whose first placement lands at the
// target's DataBase.
func NewPlan(target Target) *Plan {
	return &Plan{
		target:  target,
		cursor:  uint64(target.DataBase),
		strings: make(map[source.StringID]uint32),
		cells:   make(map[ast.GlobalID]uint32),
		seeded:  make(map[ast.GlobalID]bool),
	}
}

// Target returns the target the plan places for.
func (p *Plan) Target() Target { return p.target }

// place hands out the next offset. The ceiling keeps HeapAlign slack under
// the 32-bit limit so the rounded heap base always fits an address.
func (p *Plan) place(size uint64, align uint32) (uint32, error) {
	if p.frozen {
		panic("layout: append to a frozen plan")
	}
	off := roundUp64(p.cursor, uint64(align))
	end := off + size
	if end > maxAddress-HeapAlign {
		return 0, &LayoutError{Kind: LayoutErrAddressSpace, Size: end}
	}
	p.cursor = end
	return uint32(off), nil
}

// AddObject places one complete object image: header, then payload. align
// constrains the object start; HeaderSize is a multiple of every supported
// alignment, so the payload lands aligned as well.
func (p *Plan) AddObject(classID uint32, payload []byte, align uint32) (uint32, error) {
	size, err := safecast.Conv[uint32](len(payload))
	if err != nil {
		return 0, &LayoutError{Kind: LayoutErrAddressSpace, Size: uint64(len(payload))}
	}
	if align < p.target.PtrAlign {
		align = p.target.PtrAlign
	}
	off, err := p.place(HeaderSize+uint64(size), align)
	if err != nil {
		return 0, err
	}
	img := make([]byte, HeaderSize+len(payload))
	le32(img[HeaderClassIDOff:], classID)
	le32(img[HeaderSizeOff:], size)
	copy(img[HeaderSize:], payload)
	p.chunks = append(p.chunks, chunk{off: off, bytes: img})
	return off, nil
}

// AddString places the object for one string literal, reusing the slot of
// any earlier literal with the same interned id. Payload is UTF-16LE.
func (p *Plan) AddString(id source.StringID, text string) (uint32, error) {
	if off, ok := p.strings[id]; ok {
		return off, nil
	}
	payload, err := utf16Bytes(text)
	if err != nil {
		return 0, fmt.Errorf("encode string literal: %w", err)
	}
	off, err := p.AddObject(ClassIDString, payload, p.target.PtrAlign)
	if err != nil {
		return 0, err
	}
	p.strings[id] = off
	return off, nil
}

// AddGlobal reserves the storage cell for one module-level variable. The
// cell starts zeroed; SeedGlobal overlays a compile-time image.
func (p *Plan) AddGlobal(id ast.GlobalID, l Layout) (uint32, error) {
	if off, ok := p.cells[id]; ok {
		return off, nil
	}
	align := l.Align
	if align == 0 {
		align = 1
	}
	off, err := p.place(uint64(l.Size), align)
	if err != nil {
		return 0, err
	}
	p.cells[id] = off
	return off, nil
}

// SeedGlobal records the compile-time initial image for a global's cell.
// The start function skips seeded globals entirely.
func (p *Plan) SeedGlobal(id ast.GlobalID, image []byte) {
	if p.frozen {
		panic("layout: append to a frozen plan")
	}
	off, ok := p.cells[id]
	if !ok || len(image) == 0 {
		return
	}
	p.seeded[id] = true
	p.chunks = append(p.chunks, chunk{off: off, bytes: image})
}

// Freeze ends placement. The pipeline freezes the plan before any lowering
// worker starts; lowering reads addresses, never adds them.
func (p *Plan) Freeze() { p.frozen = true }

// Frozen reports whether placement has ended.
func (p *Plan) Frozen() bool { return p.frozen }

// HeapBase is where the runtime allocator takes over: the high-water mark
// rounded up to the heap grain.
func (p *Plan) HeapBase() uint32 {
	return uint32(roundUp64(p.cursor, HeapAlign))
}

// MinPages is the smallest linear memory that covers the static region.
func (p *Plan) MinPages() uint32 {
	pages := (uint64(p.HeapBase()) + PageSize - 1) / PageSize
	if pages == 0 {
		pages = 1
	}
	return uint32(pages)
}

// Segments lists the initialized runs of the static region ordered by
// address, adjacent images merged. Bare cells and padding produce no
// segment; linear memory starts zeroed.
func (p *Plan) Segments() []Segment {
	chunks := slices.Clone(p.chunks)
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].off < chunks[j].off })
	var segs []Segment
	for _, c := range chunks {
		if len(c.bytes) == 0 {
			continue
		}
		if n := len(segs); n > 0 && segs[n-1].Offset+uint32(len(segs[n-1].Bytes)) == c.off {
			segs[n-1].Bytes = append(segs[n-1].Bytes, c.bytes...)
			continue
		}
		segs = append(segs, Segment{Offset: c.off, Bytes: slices.Clone(c.bytes)})
	}
	return segs
}

// StringAddr returns the placed address of a string literal's object.
func (p *Plan) StringAddr(id source.StringID) (uint32, bool) {
	off, ok := p.strings[id]
	return off, ok
}

// GlobalCell returns the storage offset of a global's cell.
func (p *Plan) GlobalCell(id ast.GlobalID) (uint32, bool) {
	off, ok := p.cells[id]
	return off, ok
}

// StaticInit reports whether a global's initial value is already part of
// the data image.
func (p *Plan) StaticInit(id ast.GlobalID) bool {
	return p.seeded[id]
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

func utf16Bytes(s string) ([]byte, error) {
	return utf16le.NewEncoder().Bytes([]byte(s))
}

func le32(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
}
