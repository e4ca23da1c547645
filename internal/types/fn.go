package types

import (
	"fmt"
	"slices"
	"strings"

	"fortio.org/safecast"
)

// FnInfo stores metadata for function types.
type FnInfo struct {
	Params []TypeID
	Result TypeID // builtins.Void for procedures
}

// RegisterFn creates or finds the function type with the given shape.
// Structurally identical signatures share one TypeID.
func (in *Interner) RegisterFn(params []TypeID, result TypeID) TypeID {
	key := fnKey(params, result)

	in.mu.RLock()
	id, ok := in.fnsByKey[key]
	in.mu.RUnlock()
	if ok {
		return id
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.fnsByKey[key]; ok {
		return id
	}
	in.fns = append(in.fns, FnInfo{
		Params: slices.Clone(params),
		Result: result,
	})
	slot, err := safecast.Conv[uint32](len(in.fns) - 1)
	if err != nil {
		panic(fmt.Errorf("fn info overflow: %w", err))
	}
	id = in.internLocked(Type{Kind: KindFn, Payload: slot})
	in.fnsByKey[key] = id
	return id
}

// FnInfo retrieves a copy of the function type metadata by TypeID.
func (in *Interner) FnInfo(id TypeID) (FnInfo, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if id == NoTypeID || int(id) >= len(in.types) {
		return FnInfo{}, false
	}
	tt := in.types[id]
	if tt.Kind != KindFn || int(tt.Payload) >= len(in.fns) {
		return FnInfo{}, false
	}
	info := in.fns[tt.Payload]
	info.Params = slices.Clone(info.Params)
	return info, true
}

func fnKey(params []TypeID, result TypeID) string {
	var sb strings.Builder
	for i, p := range params {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%d", p)
	}
	fmt.Fprintf(&sb, "->%d", result)
	return sb.String()
}
