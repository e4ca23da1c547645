package layout

import (
	"fmt"

	"wasc/internal/types"
)

// LayoutErrorKind enumerates layout failures.
type LayoutErrorKind uint8

const (
	// LayoutErrAddressSpace means static data or an instance grew past the
	// 32-bit addressable space.
	LayoutErrAddressSpace LayoutErrorKind = iota + 1
	// LayoutErrCycle means a class inheritance chain loops. The resolver
	// rejects cycles first, so seeing one here is a pipeline-order bug.
	LayoutErrCycle
)

// LayoutError is the typed error of this package. The pipeline surfaces it
// as a module-level diagnostic; it never carries a source span because
// overflow is a whole-program condition.
type LayoutError struct {
	Kind LayoutErrorKind
	Type types.TypeID // offending type, NoTypeID for plan-level failures
	Size uint64       // attempted size for LayoutErrAddressSpace
}

func (e *LayoutError) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case LayoutErrAddressSpace:
		if e.Type != types.NoTypeID {
			return fmt.Sprintf("type#%d needs %d bytes, beyond the 32-bit address space", e.Type, e.Size)
		}
		return fmt.Sprintf("static data grows to %d bytes, beyond the 32-bit address space", e.Size)
	case LayoutErrCycle:
		return fmt.Sprintf("class inheritance cycle through type#%d", e.Type)
	default:
		return fmt.Sprintf("layout error kind=%d type#%d", e.Kind, e.Type)
	}
}
