package lower

import (
	"fmt"

	"fortio.org/safecast"

	"wasc/internal/wasm"
)

// slotAlloc hands out wasm local slots. Parameters occupy the fixed
// prefix; scratch slots follow and go back on a per-valtype free list when
// their binding or temporary dies, so disjoint lexical scopes share
// storage without ever aliasing a live binding.
type slotAlloc struct {
	params  int
	scratch []wasm.ValType
	free    map[wasm.ValType][]uint32
}

func newSlotAlloc(params int) *slotAlloc {
	return &slotAlloc{params: params, free: make(map[wasm.ValType][]uint32)}
}

func (s *slotAlloc) get(vt wasm.ValType) uint32 {
	if list := s.free[vt]; len(list) > 0 {
		idx := list[len(list)-1]
		s.free[vt] = list[:len(list)-1]
		return idx
	}
	idx, err := safecast.Conv[uint32](s.params + len(s.scratch))
	if err != nil {
		panic(fmt.Errorf("lower: local slot overflow: %w", err))
	}
	s.scratch = append(s.scratch, vt)
	return idx
}

func (s *slotAlloc) put(idx uint32) {
	if int(idx) < s.params {
		panic(fmt.Sprintf("lower: release of parameter slot %d", idx))
	}
	vt := s.scratch[int(idx)-s.params]
	s.free[vt] = append(s.free[vt], idx)
}

// temp grabs a scratch slot; freeTemp returns it once the emitted sequence
// no longer reads it.
func (l *funcLowerer) temp(vt wasm.ValType) uint32 { return l.slots.get(vt) }

func (l *funcLowerer) freeTemp(slot uint32) { l.slots.put(slot) }

// pushScope opens a reuse region for let bindings; popScope recycles every
// slot bound since the matching push.
func (l *funcLowerer) pushScope() { l.scopes = append(l.scopes, nil) }

func (l *funcLowerer) popScope() {
	top := l.scopes[len(l.scopes)-1]
	for _, slot := range top {
		l.slots.put(slot)
	}
	l.scopes = l.scopes[:len(l.scopes)-1]
}

func (l *funcLowerer) bindSlot(slot uint32) {
	l.scopes[len(l.scopes)-1] = append(l.scopes[len(l.scopes)-1], slot)
}
