package diag

import (
	"fmt"
)

// Code is a stable numeric diagnostic identifier. Ranges are reserved per
// phase so new codes never renumber existing ones.
type Code uint16

const (
	UnknownCode Code = 0

	// Input tree decoding (1000-1999)
	InputInfo     Code = 1000
	BadProgramWire Code = 1001
	BadFileRef     Code = 1002
	BadNodeRef     Code = 1003

	// Resolution (2000-2999)
	ResolveInfo       Code = 2000
	TypeMismatch      Code = 2001
	UnresolvedSymbol  Code = 2002
	DuplicateSymbol   Code = 2003
	UnresolvedGeneric Code = 2004
	InvalidIntrinsicUse Code = 2005

	// Memory layout (3000-3999)
	LayoutInfo     Code = 3000
	LayoutOverflow Code = 3001

	// Lowering (4000-4999)
	LowerInfo            Code = 4000
	UnsupportedConstruct Code = 4001
	UnreachableCode      Code = 4002

	// Module assembly (5000-5999)
	LinkInfo         Code = 5000
	DuplicateExport  Code = 5001
	UnresolvedImport Code = 5002

	// I/O (6000-6999)
	IOReadError  Code = 6001
	IOWriteError Code = 6002

	// Project manifest (7000-7999)
	ProjInfo        Code = 7000
	ProjBadManifest Code = 7001

	// Observability (8000-8999)
	ObsInfo    Code = 8000
	ObsTimings Code = 8001
)

var codeDescription = map[Code]string{
	UnknownCode:          "Unknown error",
	InputInfo:            "Input information",
	BadProgramWire:       "Malformed program pack",
	BadFileRef:           "Span references unknown file",
	BadNodeRef:           "Node references unknown node",
	ResolveInfo:          "Resolution information",
	TypeMismatch:         "Type mismatch",
	UnresolvedSymbol:     "Unresolved symbol",
	DuplicateSymbol:      "Duplicate symbol",
	UnresolvedGeneric:    "Cannot infer generic type arguments",
	InvalidIntrinsicUse:  "Invalid intrinsic use",
	LayoutInfo:           "Layout information",
	LayoutOverflow:       "Memory layout overflow",
	LowerInfo:            "Lowering information",
	UnsupportedConstruct: "Construct not supported by the target",
	UnreachableCode:      "Unreachable code",
	LinkInfo:             "Assembly information",
	DuplicateExport:      "Duplicate export name",
	UnresolvedImport:     "Unresolved runtime import",
	IOReadError:          "I/O read error",
	IOWriteError:         "I/O write error",
	ProjInfo:             "Project information",
	ProjBadManifest:      "Malformed project manifest",
	ObsInfo:              "Observability information",
	ObsTimings:           "Pipeline timings",
}

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("INP%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("RES%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("LAY%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("LOW%04d", ic)
	case ic >= 5000 && ic < 6000:
		return fmt.Sprintf("LNK%04d", ic)
	case ic >= 6000 && ic < 7000:
		return fmt.Sprintf("IO%04d", ic)
	case ic >= 7000 && ic < 8000:
		return fmt.Sprintf("PRJ%04d", ic)
	case ic >= 8000 && ic < 9000:
		return fmt.Sprintf("OBS%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
