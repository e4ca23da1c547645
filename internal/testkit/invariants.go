package testkit

import (
	"fmt"

	"fortio.org/safecast"

	"wasc/internal/wasm"
)

// CheckModuleInvariants runs a minimal set of structural invariants on a
// linked module:
// 1) every import and defined function names a type inside the type section
// 2) export names are unique and every export index is inside its space
// 3) the start function, when present, is defined and has an empty signature
// 4) data segments are sorted, non-overlapping, and within initial memory
//
// Instruction-level checks live in wasm.ValidateModule; this covers the
// section plumbing that validation takes as given.
func CheckModuleInvariants(m *wasm.Module) error {
	if m == nil {
		return fmt.Errorf("nil module")
	}
	nTypes, err := safecast.Conv[uint32](len(m.Types))
	if err != nil {
		return fmt.Errorf("type count overflow: %w", err)
	}
	nImports, err := safecast.Conv[uint32](len(m.Imports))
	if err != nil {
		return fmt.Errorf("import count overflow: %w", err)
	}
	nFuncs, err := safecast.Conv[uint32](len(m.Funcs))
	if err != nil {
		return fmt.Errorf("func count overflow: %w", err)
	}

	// 1) type indices in range
	for i, imp := range m.Imports {
		if imp.Type >= nTypes {
			return fmt.Errorf("import %d (%s.%s): type index %d out of range %d", i, imp.Module, imp.Name, imp.Type, nTypes)
		}
	}
	for i, fn := range m.Funcs {
		if fn.Type >= nTypes {
			return fmt.Errorf("func %d (%s): type index %d out of range %d", i, fn.Name, fn.Type, nTypes)
		}
	}

	// 2) export names unique, indices inside their spaces
	seen := make(map[string]struct{}, len(m.Exports))
	for _, ex := range m.Exports {
		if _, dup := seen[ex.Name]; dup {
			return fmt.Errorf("duplicate export name %q", ex.Name)
		}
		seen[ex.Name] = struct{}{}
		switch ex.Kind {
		case wasm.ExportFunc:
			if ex.Index >= nImports+nFuncs {
				return fmt.Errorf("export %q: func index %d out of range %d", ex.Name, ex.Index, nImports+nFuncs)
			}
		case wasm.ExportMemory:
			if ex.Index != 0 {
				return fmt.Errorf("export %q: memory index %d, only memory 0 exists", ex.Name, ex.Index)
			}
		case wasm.ExportGlobal:
			nGlobals, err := safecast.Conv[uint32](len(m.Globals))
			if err != nil {
				return fmt.Errorf("global count overflow: %w", err)
			}
			if ex.Index >= nGlobals {
				return fmt.Errorf("export %q: global index %d out of range %d", ex.Name, ex.Index, nGlobals)
			}
		default:
			return fmt.Errorf("export %q: unknown kind %d", ex.Name, ex.Kind)
		}
	}

	// 3) start is a defined function with an empty signature
	if m.HasStart {
		if m.Start < nImports || m.Start >= nImports+nFuncs {
			return fmt.Errorf("start index %d outside defined functions [%d, %d)", m.Start, nImports, nImports+nFuncs)
		}
		ft := m.Types[m.Funcs[m.Start-nImports].Type]
		if len(ft.Params) != 0 || len(ft.Results) != 0 {
			return fmt.Errorf("start function has signature %v -> %v, want empty", ft.Params, ft.Results)
		}
	}

	// 4) data segments sorted, disjoint, inside initial memory
	memBytes := uint64(m.Mem.MinPages) * wasm.PageSize
	var prevEnd uint64
	for i, seg := range m.Data {
		segLen, err := safecast.Conv[uint32](len(seg.Bytes))
		if err != nil {
			return fmt.Errorf("data segment %d length overflow: %w", i, err)
		}
		start := uint64(seg.Offset)
		end := start + uint64(segLen)
		if start < prevEnd {
			return fmt.Errorf("data segment %d at %d overlaps previous end %d", i, start, prevEnd)
		}
		if end > memBytes {
			return fmt.Errorf("data segment %d ends at %d beyond initial memory %d", i, end, memBytes)
		}
		prevEnd = end
	}
	return nil
}
