package types

import (
	"fmt"
	"slices"

	"fortio.org/safecast"

	"wasc/internal/source"
)

// ClassField describes a single declared field of a class, not counting
// inherited ones.
type ClassField struct {
	Name source.StringID
	Type TypeID
	Decl source.Span
}

// ClassInfo stores metadata for a nominal class type. Base is NoTypeID for
// roots; otherwise it names the single superclass.
type ClassInfo struct {
	Name   source.StringID
	Decl   source.Span
	Base   TypeID
	Fields []ClassField
}

// RegisterClass allocates a nominal class slot and returns its TypeID.
// Every registration mints a fresh type: two classes never compare equal
// even with identical fields.
func (in *Interner) RegisterClass(name source.StringID, decl source.Span) TypeID {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.classes = append(in.classes, ClassInfo{Name: name, Decl: decl})
	slot, err := safecast.Conv[uint32](len(in.classes) - 1)
	if err != nil {
		panic(fmt.Errorf("class info overflow: %w", err))
	}
	return in.internLocked(Type{Kind: KindClass, Payload: slot})
}

// SetClassBase records the superclass. Must be called before layout runs.
func (in *Interner) SetClassBase(typeID, base TypeID) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if info := in.classInfoLocked(typeID); info != nil {
		info.Base = base
	}
}

// SetClassFields stores the resolved declared fields for the class.
func (in *Interner) SetClassFields(typeID TypeID, fields []ClassField) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if info := in.classInfoLocked(typeID); info != nil {
		info.Fields = slices.Clone(fields)
	}
}

// ClassInfo returns a copy of the metadata for the provided class TypeID.
func (in *Interner) ClassInfo(typeID TypeID) (ClassInfo, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	info := in.classInfoLocked(typeID)
	if info == nil {
		return ClassInfo{}, false
	}
	out := *info
	out.Fields = slices.Clone(info.Fields)
	return out, true
}

// ClassCount reports how many classes have been registered.
func (in *Interner) ClassCount() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.classes) - 1
}

// Chain returns the inheritance chain for a class, base first, the class
// itself last. Returns nil when typeID is not a class or the chain has a
// cycle (the resolver rejects cycles before anyone walks chains).
func (in *Interner) Chain(typeID TypeID) []TypeID {
	var chain []TypeID
	seen := make(map[TypeID]bool)
	for id := typeID; id != NoTypeID; {
		if seen[id] {
			return nil
		}
		seen[id] = true
		info, ok := in.ClassInfo(id)
		if !ok {
			return nil
		}
		chain = append(chain, id)
		id = info.Base
	}
	slices.Reverse(chain)
	return chain
}

// IsSubclassOf reports whether sub equals sup or inherits from it.
func (in *Interner) IsSubclassOf(sub, sup TypeID) bool {
	seen := make(map[TypeID]bool)
	for id := sub; id != NoTypeID; {
		if id == sup {
			return true
		}
		if seen[id] {
			return false
		}
		seen[id] = true
		info, ok := in.ClassInfo(id)
		if !ok {
			return false
		}
		id = info.Base
	}
	return false
}

// FindField resolves a field by name through the inheritance chain, own
// fields shadowing nothing (redeclaring an inherited name is rejected at
// resolve time). The returned TypeID is the class that declares the field.
func (in *Interner) FindField(typeID TypeID, name source.StringID) (ClassField, TypeID, bool) {
	for id := typeID; id != NoTypeID; {
		info, ok := in.ClassInfo(id)
		if !ok {
			return ClassField{}, NoTypeID, false
		}
		for _, f := range info.Fields {
			if f.Name == name {
				return f, id, true
			}
		}
		id = info.Base
	}
	return ClassField{}, NoTypeID, false
}

func (in *Interner) classInfoLocked(typeID TypeID) *ClassInfo {
	if typeID == NoTypeID || int(typeID) >= len(in.types) {
		return nil
	}
	tt := in.types[typeID]
	if tt.Kind != KindClass {
		return nil
	}
	if tt.Payload == 0 || int(tt.Payload) >= len(in.classes) {
		return nil
	}
	return &in.classes[tt.Payload]
}
