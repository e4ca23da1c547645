package intrin

// Op identifies one recognized built-in operation.
type Op uint8

const (
	OpInvalid Op = iota
	OpLoad
	OpStore
	OpReinterpret
	OpClz
	OpCtz
	OpPopcnt
	OpRotl
	OpRotr
	OpAbs
	OpCeil
	OpFloor
	OpTrunc
	OpNearest
	OpSqrt
	OpMin
	OpMax
	OpCopysign
	OpSelect
	OpMemorySize
	OpMemoryGrow
)

var opNames = [...]string{
	OpInvalid:     "invalid",
	OpLoad:        "load",
	OpStore:       "store",
	OpReinterpret: "reinterpret",
	OpClz:         "clz",
	OpCtz:         "ctz",
	OpPopcnt:      "popcnt",
	OpRotl:        "rotl",
	OpRotr:        "rotr",
	OpAbs:         "abs",
	OpCeil:        "ceil",
	OpFloor:       "floor",
	OpTrunc:       "trunc",
	OpNearest:     "nearest",
	OpSqrt:        "sqrt",
	OpMin:         "min",
	OpMax:         "max",
	OpCopysign:    "copysign",
	OpSelect:      "select",
	OpMemorySize:  "memory.size",
	OpMemoryGrow:  "memory.grow",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "invalid"
}

var byName = func() map[string]Op {
	m := make(map[string]Op, len(opNames))
	for op, name := range opNames {
		if Op(op) == OpInvalid {
			continue
		}
		m[name] = Op(op)
	}
	return m
}()

// Lookup reports whether name denotes an intrinsic. Callers must check user
// declarations first: a function or global with the same name shadows the
// intrinsic.
func Lookup(name string) (Op, bool) {
	op, ok := byName[name]
	return op, ok
}
