package link

import (
	"bytes"
	"fmt"
	"strings"

	"wasc/internal/wasm"
)

// NameEntry maps one defined function's body offset in the encoded module
// to its name, in definition order.
type NameEntry struct {
	Offset uint32
	Name   string
}

// Artifact bundles the encoded module with its optional side outputs.
type Artifact struct {
	Module  []byte
	WAT     string
	NameMap []NameEntry
}

// Emit encodes m and produces the requested side artifacts. Identical
// modules emit identical bytes.
func Emit(m *wasm.Module, wat, nameMap bool) (Artifact, error) {
	var buf bytes.Buffer
	lo, err := wasm.EncodeModule(&buf, m)
	if err != nil {
		return Artifact{}, err
	}
	a := Artifact{Module: buf.Bytes()}
	if wat {
		a.WAT = wasm.Disassemble(m)
	}
	if nameMap {
		a.NameMap = make([]NameEntry, len(m.Funcs))
		for i := range m.Funcs {
			a.NameMap[i] = NameEntry{Offset: lo.BodyOffsets[i], Name: m.Funcs[i].Name}
		}
	}
	return a, nil
}

// FormatNameMap renders entries as "offset name" lines for the map side
// file.
func FormatNameMap(entries []NameEntry) string {
	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "0x%08x %s\n", e.Offset, e.Name)
	}
	return sb.String()
}
