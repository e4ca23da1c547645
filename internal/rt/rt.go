// Package rt binds compiled code to its memory-management runtime. The
// four operations are imported functions; a Strategy picks which of them
// a module actually imports, and the binder pins their function indices
// so lowering can emit calls before assembly. Hosts must accept pointers
// into static data (below the heap base) and treat them as non-owned.
package rt

import (
	"fmt"
	"slices"

	"wasc/internal/wasm"
)

// Module is the import namespace every runtime hook lives under.
const Module = "rt"

// Strategy selects the memory-management contract compiled into a module.
type Strategy string

const (
	// StrategyRC pairs reference assignments with retain/release.
	StrategyRC Strategy = "rc"
	// StrategyTrace emits write barriers for a tracing collector.
	StrategyTrace Strategy = "trace"
	// StrategyNone allocates and never reclaims.
	StrategyNone Strategy = "none"
)

// DefaultStrategy is used when neither manifest nor flag picks one.
const DefaultStrategy = StrategyRC

// ParseStrategy validates a manifest or flag value.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyRC, StrategyTrace, StrategyNone:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unsupported gc strategy: %s (supported: rc, trace, none)", s)
}

// Op names one runtime operation.
type Op uint8

const (
	OpAllocate Op = iota
	OpRetain
	OpRelease
	OpWriteBarrier

	opCount
)

// Name is the import name on the wire.
func (o Op) Name() string {
	switch o {
	case OpAllocate:
		return "allocate"
	case OpRetain:
		return "retain"
	case OpRelease:
		return "release"
	case OpWriteBarrier:
		return "write_barrier"
	}
	return "op(?)"
}

// Type is the operation's import signature. allocate takes the payload
// byte size and class id and returns the object pointer; retain returns
// its argument so a value can be retained in flight.
func (o Op) Type() wasm.FuncType {
	i32 := []wasm.ValType{wasm.I32}
	switch o {
	case OpAllocate:
		return wasm.FuncType{Params: []wasm.ValType{wasm.I32, wasm.I32}, Results: i32}
	case OpRetain:
		return wasm.FuncType{Params: i32, Results: i32}
	case OpRelease:
		return wasm.FuncType{Params: i32}
	case OpWriteBarrier:
		return wasm.FuncType{Params: []wasm.ValType{wasm.I32, wasm.I32, wasm.I32}}
	}
	return wasm.FuncType{}
}

// Binder fixes which hooks a module imports and at which function
// indices. Selected hooks occupy the low function index space in
// selection order; defined functions follow.
type Binder struct {
	strategy Strategy
	ops      []Op
	index    [opCount]uint32
	present  [opCount]bool
}

// NewBinder selects the hooks the strategy needs. Every strategy
// allocates; rc adds retain/release, trace adds the write barrier.
// Unused hooks are not imported and cost nothing.
func NewBinder(s Strategy) *Binder {
	b := &Binder{strategy: s}
	use := func(op Op) {
		b.index[op] = uint32(len(b.ops))
		b.present[op] = true
		b.ops = append(b.ops, op)
	}
	use(OpAllocate)
	switch s {
	case StrategyRC:
		use(OpRetain)
		use(OpRelease)
	case StrategyTrace:
		use(OpWriteBarrier)
	}
	return b
}

// Strategy returns the strategy the binder was built for.
func (b *Binder) Strategy() Strategy { return b.strategy }

// Ops lists the selected hooks in import order.
func (b *Binder) Ops() []Op { return slices.Clone(b.ops) }

// NumImports is the number of function indices the hooks occupy.
func (b *Binder) NumImports() uint32 {
	return uint32(len(b.ops))
}

// Uses reports whether the strategy imports the hook at all.
func (b *Binder) Uses(op Op) bool {
	return op < opCount && b.present[op]
}

// Index returns the function index of a selected hook.
func (b *Binder) Index(op Op) (uint32, bool) {
	if !b.Uses(op) {
		return 0, false
	}
	return b.index[op], true
}
