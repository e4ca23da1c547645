package types

import (
	"fmt"

	"fortio.org/safecast"

	"wasc/internal/source"
)

// TypeParamInfo names one generic parameter of a declaration. Owner is an
// opaque tag the resolver supplies so parameters of distinct declarations
// never unify.
type TypeParamInfo struct {
	Name  source.StringID
	Owner uint32
	Index uint32
}

// RegisterTypeParam allocates a placeholder type for one generic parameter.
// Placeholders are never deduplicated across owners.
func (in *Interner) RegisterTypeParam(name source.StringID, owner, index uint32) TypeID {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.params = append(in.params, TypeParamInfo{Name: name, Owner: owner, Index: index})
	slot, err := safecast.Conv[uint32](len(in.params) - 1)
	if err != nil {
		panic(fmt.Errorf("type param overflow: %w", err))
	}
	return in.internLocked(Type{Kind: KindTypeParam, Payload: slot})
}

// TypeParamInfo retrieves metadata for a placeholder type.
func (in *Interner) TypeParamInfo(id TypeID) (TypeParamInfo, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if id == NoTypeID || int(id) >= len(in.types) {
		return TypeParamInfo{}, false
	}
	tt := in.types[id]
	if tt.Kind != KindTypeParam || tt.Payload == 0 || int(tt.Payload) >= len(in.params) {
		return TypeParamInfo{}, false
	}
	return in.params[tt.Payload], true
}

// ContainsTypeParam reports whether id mentions any unsubstituted generic
// parameter. Layout and lowering assert it is false for everything they see.
func (in *Interner) ContainsTypeParam(id TypeID) bool {
	tt, ok := in.Lookup(id)
	if !ok {
		return false
	}
	switch tt.Kind {
	case KindTypeParam:
		return true
	case KindArray:
		return in.ContainsTypeParam(tt.Elem)
	case KindFn:
		info, ok := in.FnInfo(id)
		if !ok {
			return false
		}
		for _, p := range info.Params {
			if in.ContainsTypeParam(p) {
				return true
			}
		}
		return in.ContainsTypeParam(info.Result)
	default:
		return false
	}
}

// Substitute rewrites id, replacing each type-param placeholder with the
// binding the map supplies. Types without placeholders come back unchanged.
func (in *Interner) Substitute(id TypeID, bindings map[TypeID]TypeID) TypeID {
	if len(bindings) == 0 || !in.ContainsTypeParam(id) {
		return id
	}
	tt := in.MustLookup(id)
	switch tt.Kind {
	case KindTypeParam:
		if sub, ok := bindings[id]; ok {
			return sub
		}
		return id
	case KindArray:
		return in.Intern(MakeArray(in.Substitute(tt.Elem, bindings), tt.Count))
	case KindFn:
		info, _ := in.FnInfo(id)
		params := make([]TypeID, len(info.Params))
		for i, p := range info.Params {
			params[i] = in.Substitute(p, bindings)
		}
		return in.RegisterFn(params, in.Substitute(info.Result, bindings))
	default:
		return id
	}
}
