package wasm

import (
	"fmt"

	"fortio.org/safecast"
)

// PageSize is the linear memory page granularity.
const PageSize = 64 * 1024

// Import is one imported function. Imports occupy the low end of the
// function index space, in declaration order.
type Import struct {
	Module string
	Name   string
	Type   uint32 // type index
}

// Func is one defined function. Locals lists the slots after the
// parameters; Body holds structured instructions without the trailing
// end terminator (the encoder appends it). Name feeds disassembly and
// the name-map side artifact only.
type Func struct {
	Name   string
	Type   uint32 // type index
	Locals []ValType
	Body   []Instr
}

// Memory declares the module's single linear memory in pages.
type Memory struct {
	MinPages uint32
	MaxPages uint32
	HasMax   bool
}

// Global is one module global with a constant initializer.
type Global struct {
	Name    string
	Type    ValType
	Mutable bool
	Init    Instr // must be a const instruction
}

// ExportKind is the export kind byte from the format.
type ExportKind uint8

const (
	ExportFunc   ExportKind = 0x00
	ExportMemory ExportKind = 0x02
	ExportGlobal ExportKind = 0x03
)

func (k ExportKind) String() string {
	switch k {
	case ExportFunc:
		return "func"
	case ExportMemory:
		return "memory"
	case ExportGlobal:
		return "global"
	}
	return "export(?)"
}

// Export makes one index visible to the host under Name.
type Export struct {
	Name  string
	Kind  ExportKind
	Index uint32
}

// DataSegment is one active data segment copied into memory at Offset on
// instantiation.
type DataSegment struct {
	Offset uint32
	Bytes  []byte
}

// Module is the complete pre-encoding form of one binary module. The
// function index space is Imports followed by Funcs.
type Module struct {
	Types   []FuncType
	Imports []Import
	Funcs   []Func
	Mem     Memory
	Globals []Global
	Exports []Export
	Data    []DataSegment

	// Start is the index of the instantiation-time initializer function.
	HasStart bool
	Start    uint32

	typeIndex map[string]uint32
}

// InternType returns the index of ft in the type section, adding it on
// first use. Structurally identical signatures share one index.
func (m *Module) InternType(ft FuncType) uint32 {
	if m.typeIndex == nil {
		m.typeIndex = make(map[string]uint32)
	}
	key := ft.Key()
	if idx, ok := m.typeIndex[key]; ok {
		return idx
	}
	idx, err := safecast.Conv[uint32](len(m.Types))
	if err != nil {
		panic(fmt.Errorf("type index overflow: %w", err))
	}
	m.Types = append(m.Types, ft)
	m.typeIndex[key] = idx
	return idx
}

// NumImports counts imported functions.
func (m *Module) NumImports() uint32 {
	n, err := safecast.Conv[uint32](len(m.Imports))
	if err != nil {
		panic(fmt.Errorf("import count overflow: %w", err))
	}
	return n
}

// NumFuncs counts the whole function index space, imports included.
func (m *Module) NumFuncs() uint32 {
	n, err := safecast.Conv[uint32](len(m.Imports) + len(m.Funcs))
	if err != nil {
		panic(fmt.Errorf("function count overflow: %w", err))
	}
	return n
}

// FuncTypeAt resolves the signature of any function index, imported or
// defined.
func (m *Module) FuncTypeAt(idx uint32) (FuncType, bool) {
	imports := m.NumImports()
	var typeIdx uint32
	switch {
	case idx < imports:
		typeIdx = m.Imports[idx].Type
	case idx < m.NumFuncs():
		typeIdx = m.Funcs[idx-imports].Type
	default:
		return FuncType{}, false
	}
	if int(typeIdx) >= len(m.Types) {
		return FuncType{}, false
	}
	return m.Types[typeIdx], true
}

// FuncName returns the debug name of a function index, or a synthetic
// placeholder for imports and unnamed functions.
func (m *Module) FuncName(idx uint32) string {
	imports := m.NumImports()
	if idx < imports {
		imp := m.Imports[idx]
		return imp.Module + "." + imp.Name
	}
	if idx < m.NumFuncs() {
		if name := m.Funcs[idx-imports].Name; name != "" {
			return name
		}
	}
	return fmt.Sprintf("func[%d]", idx)
}
