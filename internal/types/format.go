package types

import (
	"fmt"
	"strings"

	"wasc/internal/source"
)

// Format renders a type for diagnostics. names resolves interned
// identifiers; pass nil to fall back to numeric placeholders.
func (in *Interner) Format(id TypeID, names *source.Interner) string {
	tt, ok := in.Lookup(id)
	if !ok {
		return "<invalid>"
	}
	switch tt.Kind {
	case KindVoid:
		return "void"
	case KindBool:
		return "bool"
	case KindInt:
		return fmt.Sprintf("i%d", tt.Width)
	case KindUint:
		return fmt.Sprintf("u%d", tt.Width)
	case KindFloat:
		return fmt.Sprintf("f%d", tt.Width)
	case KindString:
		return "string"
	case KindArray:
		elem := in.Format(tt.Elem, names)
		if tt.Count == ArrayDynamicLength {
			return elem + "[]"
		}
		return fmt.Sprintf("%s[%d]", elem, tt.Count)
	case KindClass:
		info, ok := in.ClassInfo(id)
		if !ok {
			return "<class>"
		}
		return lookupName(names, info.Name, "<class>")
	case KindFn:
		info, ok := in.FnInfo(id)
		if !ok {
			return "<fn>"
		}
		var sb strings.Builder
		sb.WriteByte('(')
		for i, p := range info.Params {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(in.Format(p, names))
		}
		sb.WriteString(") -> ")
		sb.WriteString(in.Format(info.Result, names))
		return sb.String()
	case KindTypeParam:
		info, ok := in.TypeParamInfo(id)
		if !ok {
			return "<typeparam>"
		}
		return lookupName(names, info.Name, "<typeparam>")
	default:
		return "<invalid>"
	}
}

func lookupName(names *source.Interner, id source.StringID, fallback string) string {
	if names == nil {
		return fallback
	}
	s, ok := names.Lookup(id)
	if !ok || s == "" {
		return fallback
	}
	return s
}
