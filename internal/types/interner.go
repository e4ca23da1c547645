package types

import (
	"fmt"
	"sync"

	"fortio.org/safecast"
)

// Builtins stores TypeIDs for the primitive types every program gets.
type Builtins struct {
	Invalid TypeID
	Void    TypeID
	Bool    TypeID
	I8      TypeID
	I16     TypeID
	I32     TypeID
	I64     TypeID
	U8      TypeID
	U16     TypeID
	U32     TypeID
	U64     TypeID
	F32     TypeID
	F64     TypeID
	String  TypeID
}

// Interner provides stable TypeIDs by hashing structural descriptors.
// Identical descriptors always map to the same TypeID, so type equality
// downstream is an integer compare.
//
// Safe for concurrent use: function bodies are checked in parallel and
// instantiation interns types from several workers at once.
type Interner struct {
	mu       sync.RWMutex
	types    []Type
	index    map[typeKey]TypeID
	builtins Builtins
	classes  []ClassInfo
	fns      []FnInfo
	fnsByKey map[string]TypeID
	params   []TypeParamInfo
}

type typeKey struct {
	Kind    Kind
	Elem    TypeID
	Count   uint32
	Width   Width
	Payload uint32
}

// NewInterner constructs an interner seeded with the built-in primitives.
func NewInterner() *Interner {
	in := &Interner{
		index:    make(map[typeKey]TypeID, 64),
		classes:  []ClassInfo{{}}, // reserve 0 as invalid sentinel
		fnsByKey: make(map[string]TypeID),
		params:   []TypeParamInfo{{}},
	}
	in.builtins.Invalid = in.internRaw(Type{Kind: KindInvalid})
	in.builtins.Void = in.Intern(Type{Kind: KindVoid})
	in.builtins.Bool = in.Intern(Type{Kind: KindBool})
	in.builtins.I8 = in.Intern(MakeInt(Width8))
	in.builtins.I16 = in.Intern(MakeInt(Width16))
	in.builtins.I32 = in.Intern(MakeInt(Width32))
	in.builtins.I64 = in.Intern(MakeInt(Width64))
	in.builtins.U8 = in.Intern(MakeUint(Width8))
	in.builtins.U16 = in.Intern(MakeUint(Width16))
	in.builtins.U32 = in.Intern(MakeUint(Width32))
	in.builtins.U64 = in.Intern(MakeUint(Width64))
	in.builtins.F32 = in.Intern(MakeFloat(Width32))
	in.builtins.F64 = in.Intern(MakeFloat(Width64))
	in.builtins.String = in.Intern(Type{Kind: KindString})
	return in
}

// Builtins returns TypeIDs for the primitive types.
func (in *Interner) Builtins() Builtins {
	return in.builtins
}

// Intern ensures the provided descriptor has a stable TypeID.
func (in *Interner) Intern(t Type) TypeID {
	if t.Kind == KindInvalid {
		return NoTypeID
	}
	key := typeKey(t)

	in.mu.RLock()
	id, ok := in.index[key]
	in.mu.RUnlock()
	if ok {
		return id
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.index[key]; ok {
		return id
	}
	return in.internLocked(t)
}

// internRaw adds the descriptor without consulting the dedup map first.
// Nominal registration uses it so each registered slot gets its own TypeID.
func (in *Interner) internRaw(t Type) TypeID {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.internLocked(t)
}

func (in *Interner) internLocked(t Type) TypeID {
	lenTypes, err := safecast.Conv[uint32](len(in.types))
	if err != nil {
		panic(fmt.Errorf("len(types) overflow: %w", err))
	}
	id := TypeID(lenTypes)
	in.types = append(in.types, t)
	in.index[typeKey(t)] = id
	return id
}

// Lookup returns the descriptor for a TypeID.
func (in *Interner) Lookup(id TypeID) (Type, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if id == NoTypeID || int(id) >= len(in.types) {
		return Type{}, false
	}
	return in.types[id], true
}

// MustLookup panics when id is invalid.
func (in *Interner) MustLookup(id TypeID) Type {
	tt, ok := in.Lookup(id)
	if !ok {
		panic("types: invalid TypeID")
	}
	return tt
}

// Len counts interned types, the invalid sentinel included.
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.types)
}

// Kind is a shorthand for MustLookup(id).Kind, with KindInvalid for NoTypeID.
func (in *Interner) Kind(id TypeID) Kind {
	tt, ok := in.Lookup(id)
	if !ok {
		return KindInvalid
	}
	return tt.Kind
}

// IsReference reports whether id is a managed heap reference type.
func (in *Interner) IsReference(id TypeID) bool {
	tt, ok := in.Lookup(id)
	return ok && tt.IsReference()
}

// ArrayOf interns the resizable array type with the given element.
func (in *Interner) ArrayOf(elem TypeID) TypeID {
	return in.Intern(MakeArray(elem, ArrayDynamicLength))
}

// FixedArrayOf interns the fixed-length array type with the given element.
func (in *Interner) FixedArrayOf(elem TypeID, count uint32) TypeID {
	return in.Intern(MakeArray(elem, count))
}
