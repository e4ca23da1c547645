package vm

import (
	"encoding/binary"
	"fmt"
	"slices"

	"wasc/internal/layout"
	"wasc/internal/link"
	"wasc/internal/rt"
	"wasc/internal/wasm"
)

// Runtime is a minimal conforming implementation of the runtime hooks:
// a bump allocator over the instance heap plus the refcount and barrier
// bookkeeping tests inspect. Nothing is ever reclaimed; release only
// moves the count, and moving it below zero is a host fault. Addresses
// below the heap base are static data and stay non-owned.
type Runtime struct {
	base     uint32
	next     uint32
	counts   map[uint32]int32
	barriers []Barrier
}

// Barrier records one write_barrier invocation.
type Barrier struct {
	Target uint32
	Offset uint32
	Value  uint32
}

func NewRuntime() *Runtime {
	return &Runtime{counts: make(map[uint32]int32)}
}

// Host exposes the hooks under the runtime import namespace. Strategies
// that import fewer hooks simply leave entries unused.
func (r *Runtime) Host() Host {
	return Host{
		rt.Module + "." + rt.OpAllocate.Name():     r.allocate,
		rt.Module + "." + rt.OpRetain.Name():       r.retain,
		rt.Module + "." + rt.OpRelease.Name():      r.release,
		rt.Module + "." + rt.OpWriteBarrier.Name(): r.writeBarrier,
	}
}

// bind reads the heap base the first time a hook runs. A module without
// the export gets its heap appended after the initial pages.
func (r *Runtime) bind(in *Instance) {
	if r.next != 0 {
		return
	}
	if bits, ok := in.GlobalValue(link.HeapBaseExport); ok {
		r.base = uint32(bits)
	} else {
		r.base = uint32(len(in.mem))
	}
	r.next = r.base
}

func (r *Runtime) allocate(in *Instance, args []uint64) ([]uint64, error) {
	size, classID := uint32(args[0]), uint32(args[1])
	r.bind(in)
	ptr := align8(r.next)
	end := uint64(ptr) + layout.HeaderSize + uint64(size)
	for uint64(len(in.mem)) < end {
		short := end - uint64(len(in.mem))
		pages := uint32((short + wasm.PageSize - 1) / wasm.PageSize)
		if in.grow(pages) < 0 {
			return nil, fmt.Errorf("heap exhausted allocating %d bytes", size)
		}
	}
	binary.LittleEndian.PutUint32(in.mem[ptr:], classID)
	binary.LittleEndian.PutUint32(in.mem[ptr+layout.HeaderSizeOff:], size)
	r.counts[ptr] = 1
	r.next = uint32(end)
	return []uint64{uint64(ptr)}, nil
}

func (r *Runtime) retain(in *Instance, args []uint64) ([]uint64, error) {
	ptr := uint32(args[0])
	r.bind(in)
	if ptr >= r.base {
		if _, ok := r.counts[ptr]; !ok {
			return nil, fmt.Errorf("retain of unallocated address %#x", ptr)
		}
		r.counts[ptr]++
	}
	return []uint64{uint64(ptr)}, nil
}

func (r *Runtime) release(in *Instance, args []uint64) ([]uint64, error) {
	ptr := uint32(args[0])
	r.bind(in)
	if ptr == 0 || ptr < r.base {
		return nil, nil
	}
	c, ok := r.counts[ptr]
	if !ok {
		return nil, fmt.Errorf("release of unallocated address %#x", ptr)
	}
	if c == 0 {
		return nil, fmt.Errorf("release of dead object %#x", ptr)
	}
	r.counts[ptr] = c - 1
	return nil, nil
}

func (r *Runtime) writeBarrier(in *Instance, args []uint64) ([]uint64, error) {
	r.bind(in)
	r.barriers = append(r.barriers, Barrier{
		Target: uint32(args[0]),
		Offset: uint32(args[1]),
		Value:  uint32(args[2]),
	})
	return nil, nil
}

// Count returns the refcount tracked for an object address.
func (r *Runtime) Count(addr uint32) int32 { return r.counts[addr] }

// Allocations counts every object ever allocated.
func (r *Runtime) Allocations() int { return len(r.counts) }

// Live counts objects whose refcount is still positive.
func (r *Runtime) Live() int {
	n := 0
	for _, c := range r.counts {
		if c > 0 {
			n++
		}
	}
	return n
}

// Barriers returns the recorded write_barrier calls in order.
func (r *Runtime) Barriers() []Barrier { return slices.Clone(r.barriers) }

func align8(n uint32) uint32 { return (n + 7) &^ 7 }
