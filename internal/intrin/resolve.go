package intrin

import (
	"fmt"

	"wasc/internal/types"
)

// Call is the resolved form of an intrinsic call site. It carries everything
// the lowerer needs to emit the raw instruction; the original call node is
// erased during lowering.
type Call struct {
	Op    Op
	Elem  types.Kind  // numeric kind the instruction is bound to
	Width types.Width // numeric width in bits

	// Offset is the static immediate for memory access. The resolver leaves
	// it zero; the caller fills it after constant analysis of the offset
	// argument. AddOffset marks a non-constant offset that must be folded
	// into the address with an add before the access.
	Offset    uint32
	AddOffset bool

	// RefValue marks a store whose value operand is a managed reference.
	// Such stores get the write-barrier hook unless the target address is
	// statically inside immutable static data.
	RefValue bool

	Result types.TypeID
}

// errShape builds the detail part of an InvalidIntrinsicUse diagnostic.
func errShape(op Op, format string, args ...any) error {
	return fmt.Errorf("%s: %s", op, fmt.Sprintf(format, args...))
}

// Resolve validates an intrinsic call against its declared shape and binds
// it to a concrete type. typeArgs are the explicit type arguments at the
// call site, args the checked types of the value arguments in order
// (including a trailing offset argument for memory access, when present).
// The returned error carries only the detail text; the caller wraps it with
// the call span and diagnostic code.
func Resolve(in *types.Interner, op Op, typeArgs, args []types.TypeID) (types.TypeID, Call, error) {
	b := in.Builtins()
	c := Call{Op: op}

	switch op {
	case OpLoad:
		t, err := memType(in, op, typeArgs)
		if err != nil {
			return types.NoTypeID, c, err
		}
		if len(args) != 1 && len(args) != 2 {
			return types.NoTypeID, c, errShape(op, "expects (address) or (address, offset), got %d arguments", len(args))
		}
		if err := wantAddr(in, op, args[0]); err != nil {
			return types.NoTypeID, c, err
		}
		if len(args) == 2 {
			if err := wantOffset(in, op, args[1]); err != nil {
				return types.NoTypeID, c, err
			}
		}
		tt := in.MustLookup(t)
		c.Elem, c.Width = tt.Kind, tt.Width
		c.Result = t
		return t, c, nil

	case OpStore:
		t, err := memType(in, op, typeArgs)
		if err != nil {
			return types.NoTypeID, c, err
		}
		if len(args) != 2 && len(args) != 3 {
			return types.NoTypeID, c, errShape(op, "expects (address, value) or (address, value, offset), got %d arguments", len(args))
		}
		if err := wantAddr(in, op, args[0]); err != nil {
			return types.NoTypeID, c, err
		}
		tt := in.MustLookup(t)
		switch {
		case args[1] == t:
		case tt.IsInteger() && tt.Width == types.Width32 && in.IsReference(args[1]):
			// A reference stored through its address width. The barrier
			// decision belongs to the lowerer.
			c.RefValue = true
		default:
			return types.NoTypeID, c, errShape(op, "value is %s, cannot store as %s", in.Format(args[1], nil), in.Format(t, nil))
		}
		if len(args) == 3 {
			if err := wantOffset(in, op, args[2]); err != nil {
				return types.NoTypeID, c, err
			}
		}
		c.Elem, c.Width = tt.Kind, tt.Width
		c.Result = b.Void
		return b.Void, c, nil

	case OpReinterpret:
		if len(typeArgs) != 1 {
			return types.NoTypeID, c, errShape(op, "expects exactly one type argument")
		}
		if len(args) != 1 {
			return types.NoTypeID, c, errShape(op, "expects exactly one argument, got %d", len(args))
		}
		dst := in.MustLookup(typeArgs[0])
		src := in.MustLookup(args[0])
		if !dst.IsNumeric() || (dst.Width != types.Width32 && dst.Width != types.Width64) {
			return types.NoTypeID, c, errShape(op, "target must be a 32- or 64-bit numeric type, got %s", in.Format(typeArgs[0], nil))
		}
		if !src.IsNumeric() || src.Width != dst.Width {
			return types.NoTypeID, c, errShape(op, "argument is %s, want a %d-bit numeric value", in.Format(args[0], nil), dst.Width)
		}
		if (dst.Kind == types.KindFloat) == (src.Kind == types.KindFloat) {
			return types.NoTypeID, c, errShape(op, "must change between integer and float bits; use a cast for %s to %s", in.Format(args[0], nil), in.Format(typeArgs[0], nil))
		}
		c.Elem, c.Width = dst.Kind, dst.Width
		c.Result = typeArgs[0]
		return typeArgs[0], c, nil

	case OpClz, OpCtz, OpPopcnt:
		if err := wantNoTypeArgs(op, typeArgs); err != nil {
			return types.NoTypeID, c, err
		}
		if len(args) != 1 {
			return types.NoTypeID, c, errShape(op, "expects exactly one argument, got %d", len(args))
		}
		if err := wantWideInt(in, op, args[0]); err != nil {
			return types.NoTypeID, c, err
		}
		tt := in.MustLookup(args[0])
		c.Elem, c.Width = tt.Kind, tt.Width
		c.Result = args[0]
		return args[0], c, nil

	case OpRotl, OpRotr:
		if err := wantNoTypeArgs(op, typeArgs); err != nil {
			return types.NoTypeID, c, err
		}
		if len(args) != 2 {
			return types.NoTypeID, c, errShape(op, "expects (value, count), got %d arguments", len(args))
		}
		if err := wantWideInt(in, op, args[0]); err != nil {
			return types.NoTypeID, c, err
		}
		if args[1] != args[0] {
			return types.NoTypeID, c, errShape(op, "count is %s, want %s", in.Format(args[1], nil), in.Format(args[0], nil))
		}
		tt := in.MustLookup(args[0])
		c.Elem, c.Width = tt.Kind, tt.Width
		c.Result = args[0]
		return args[0], c, nil

	case OpAbs, OpCeil, OpFloor, OpTrunc, OpNearest, OpSqrt:
		if err := wantNoTypeArgs(op, typeArgs); err != nil {
			return types.NoTypeID, c, err
		}
		if len(args) != 1 {
			return types.NoTypeID, c, errShape(op, "expects exactly one argument, got %d", len(args))
		}
		if err := wantFloat(in, op, args[0]); err != nil {
			return types.NoTypeID, c, err
		}
		tt := in.MustLookup(args[0])
		c.Elem, c.Width = tt.Kind, tt.Width
		c.Result = args[0]
		return args[0], c, nil

	case OpMin, OpMax, OpCopysign:
		if err := wantNoTypeArgs(op, typeArgs); err != nil {
			return types.NoTypeID, c, err
		}
		if len(args) != 2 {
			return types.NoTypeID, c, errShape(op, "expects exactly two arguments, got %d", len(args))
		}
		if err := wantFloat(in, op, args[0]); err != nil {
			return types.NoTypeID, c, err
		}
		if args[1] != args[0] {
			return types.NoTypeID, c, errShape(op, "arguments disagree: %s and %s", in.Format(args[0], nil), in.Format(args[1], nil))
		}
		tt := in.MustLookup(args[0])
		c.Elem, c.Width = tt.Kind, tt.Width
		c.Result = args[0]
		return args[0], c, nil

	case OpSelect:
		if len(typeArgs) > 1 {
			return types.NoTypeID, c, errShape(op, "expects at most one type argument")
		}
		if len(args) != 3 {
			return types.NoTypeID, c, errShape(op, "expects (a, b, cond), got %d arguments", len(args))
		}
		t := args[0]
		if len(typeArgs) == 1 {
			t = typeArgs[0]
		}
		tt := in.MustLookup(t)
		switch tt.Kind {
		case types.KindBool, types.KindInt, types.KindUint, types.KindFloat,
			types.KindString, types.KindArray, types.KindClass:
		default:
			return types.NoTypeID, c, errShape(op, "cannot select values of type %s", in.Format(t, nil))
		}
		for _, arg := range args[:2] {
			if arg == t {
				continue
			}
			if tt.Kind == types.KindClass && in.IsSubclassOf(arg, t) {
				continue
			}
			return types.NoTypeID, c, errShape(op, "branch is %s, want %s", in.Format(arg, nil), in.Format(t, nil))
		}
		if args[2] != b.Bool {
			return types.NoTypeID, c, errShape(op, "condition is %s, want bool", in.Format(args[2], nil))
		}
		c.Elem, c.Width = tt.Kind, tt.Width
		c.Result = t
		return t, c, nil

	case OpMemorySize:
		if err := wantNoTypeArgs(op, typeArgs); err != nil {
			return types.NoTypeID, c, err
		}
		if len(args) != 0 {
			return types.NoTypeID, c, errShape(op, "takes no arguments, got %d", len(args))
		}
		c.Result = b.I32
		return b.I32, c, nil

	case OpMemoryGrow:
		if err := wantNoTypeArgs(op, typeArgs); err != nil {
			return types.NoTypeID, c, err
		}
		if len(args) != 1 {
			return types.NoTypeID, c, errShape(op, "expects exactly one argument, got %d", len(args))
		}
		if err := wantAddr(in, op, args[0]); err != nil {
			return types.NoTypeID, c, err
		}
		c.Result = b.I32
		return b.I32, c, nil
	}

	return types.NoTypeID, c, errShape(op, "unknown intrinsic")
}

// memType checks the single type argument of load/store: one of the ten
// numeric primitives. References round-trip through their address width.
func memType(in *types.Interner, op Op, typeArgs []types.TypeID) (types.TypeID, error) {
	if len(typeArgs) != 1 {
		return types.NoTypeID, errShape(op, "expects exactly one type argument naming the accessed type")
	}
	tt := in.MustLookup(typeArgs[0])
	if !tt.IsNumeric() {
		return types.NoTypeID, errShape(op, "cannot access memory as %s; only numeric primitives have a storage width", in.Format(typeArgs[0], nil))
	}
	return typeArgs[0], nil
}

func wantAddr(in *types.Interner, op Op, t types.TypeID) error {
	tt := in.MustLookup(t)
	if !tt.IsInteger() || tt.Width != types.Width32 {
		return errShape(op, "address is %s, want i32 or u32", in.Format(t, nil))
	}
	return nil
}

func wantOffset(in *types.Interner, op Op, t types.TypeID) error {
	tt := in.MustLookup(t)
	if !tt.IsInteger() || tt.Width != types.Width32 {
		return errShape(op, "offset is %s, want i32 or u32", in.Format(t, nil))
	}
	return nil
}

// wantWideInt admits the integer widths backed by a full machine word. Bit
// counting on narrower values is ambiguous about the padding bits.
func wantWideInt(in *types.Interner, op Op, t types.TypeID) error {
	tt := in.MustLookup(t)
	if !tt.IsInteger() || (tt.Width != types.Width32 && tt.Width != types.Width64) {
		return errShape(op, "argument is %s, want a 32- or 64-bit integer", in.Format(t, nil))
	}
	return nil
}

func wantFloat(in *types.Interner, op Op, t types.TypeID) error {
	if in.Kind(t) != types.KindFloat {
		return errShape(op, "argument is %s, want f32 or f64", in.Format(t, nil))
	}
	return nil
}

func wantNoTypeArgs(op Op, typeArgs []types.TypeID) error {
	if len(typeArgs) != 0 {
		return errShape(op, "takes no type arguments")
	}
	return nil
}
