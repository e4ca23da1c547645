package vm

import (
	"errors"
	"fmt"
)

// TrapCode classifies why execution aborted.
type TrapCode uint8

const (
	TrapUnreachable TrapCode = iota + 1
	TrapMemoryBounds
	TrapDivideByZero
	TrapIntegerOverflow
	TrapInvalidConversion
	TrapCallDepth
	TrapHostFault
	TrapUnsupported
)

func (c TrapCode) String() string {
	switch c {
	case TrapUnreachable:
		return "unreachable executed"
	case TrapMemoryBounds:
		return "memory access out of bounds"
	case TrapDivideByZero:
		return "integer division by zero"
	case TrapIntegerOverflow:
		return "integer overflow"
	case TrapInvalidConversion:
		return "invalid conversion to integer"
	case TrapCallDepth:
		return "call stack exhausted"
	case TrapHostFault:
		return "host function fault"
	case TrapUnsupported:
		return "unsupported instruction"
	}
	return "trap(?)"
}

// Trap is the error an instance returns when compiled code aborts. Code
// identifies the condition, Func names the function that hit it.
type Trap struct {
	Code TrapCode
	Func string
	Msg  string
}

func (t *Trap) Error() string {
	if t.Msg == "" {
		return fmt.Sprintf("trap in %s: %s", t.Func, t.Code)
	}
	return fmt.Sprintf("trap in %s: %s: %s", t.Func, t.Code, t.Msg)
}

// IsTrap reports whether err is a trap with the given code.
func IsTrap(err error, code TrapCode) bool {
	var t *Trap
	return errors.As(err, &t) && t.Code == code
}
