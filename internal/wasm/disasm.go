package wasm

import (
	"fmt"
	"strings"
)

// Disassemble renders the module as indented text in the style of the
// format's text representation. The output is a debugging artifact, not
// guaranteed to round-trip through a text-format parser.
func Disassemble(m *Module) string {
	var sb strings.Builder
	sb.WriteString("(module\n")

	for i, imp := range m.Imports {
		sig := ""
		if int(imp.Type) < len(m.Types) {
			sig = sigText(m.Types[imp.Type])
		}
		fmt.Fprintf(&sb, "  (import %q %q (func $%s%s)) ;; func %d\n", imp.Module, imp.Name, imp.Name, sig, i)
	}

	if m.Mem.HasMax {
		fmt.Fprintf(&sb, "  (memory %d %d)\n", m.Mem.MinPages, m.Mem.MaxPages)
	} else {
		fmt.Fprintf(&sb, "  (memory %d)\n", m.Mem.MinPages)
	}

	for i, g := range m.Globals {
		name := g.Name
		if name == "" {
			name = fmt.Sprintf("global%d", i)
		}
		if g.Mutable {
			fmt.Fprintf(&sb, "  (global $%s (mut %s) (%s))\n", name, g.Type, g.Init)
		} else {
			fmt.Fprintf(&sb, "  (global $%s %s (%s))\n", name, g.Type, g.Init)
		}
	}

	for _, exp := range m.Exports {
		fmt.Fprintf(&sb, "  (export %q (%s %d))\n", exp.Name, exp.Kind, exp.Index)
	}

	imports := m.NumImports()
	for i := range m.Funcs {
		fn := &m.Funcs[i]
		disasmFunc(&sb, m, fn, imports+uint32(i))
	}

	for _, seg := range m.Data {
		fmt.Fprintf(&sb, "  (data (i32.const %d) %q)\n", seg.Offset, string(seg.Bytes))
	}

	if m.HasStart {
		fmt.Fprintf(&sb, "  (start %d)\n", m.Start)
	}

	sb.WriteString(")\n")
	return sb.String()
}

func sigText(ft FuncType) string {
	var sb strings.Builder
	if len(ft.Params) > 0 {
		sb.WriteString(" (param")
		for _, p := range ft.Params {
			sb.WriteByte(' ')
			sb.WriteString(p.String())
		}
		sb.WriteByte(')')
	}
	if len(ft.Results) > 0 {
		sb.WriteString(" (result")
		for _, r := range ft.Results {
			sb.WriteByte(' ')
			sb.WriteString(r.String())
		}
		sb.WriteByte(')')
	}
	return sb.String()
}

func disasmFunc(sb *strings.Builder, m *Module, fn *Func, idx uint32) {
	name := fn.Name
	if name == "" {
		name = fmt.Sprintf("func%d", idx)
	}
	sig := ""
	if int(fn.Type) < len(m.Types) {
		sig = sigText(m.Types[fn.Type])
	}
	fmt.Fprintf(sb, "  (func $%s%s ;; func %d\n", name, sig, idx)
	if len(fn.Locals) > 0 {
		sb.WriteString("    (local")
		for _, l := range fn.Locals {
			sb.WriteByte(' ')
			sb.WriteString(l.String())
		}
		sb.WriteString(")\n")
	}

	depth := 0
	for _, in := range fn.Body {
		switch in.Op {
		case OpEnd:
			if depth > 0 {
				depth--
			}
		case OpElse:
			if depth > 0 {
				depth--
			}
		}
		sb.WriteString("    ")
		sb.WriteString(strings.Repeat("  ", depth))
		line := in.String()
		if in.Op == OpCall {
			line = fmt.Sprintf("call %d ;; %s", in.A, m.FuncName(in.A))
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
		switch in.Op {
		case OpBlock, OpLoop, OpIf, OpElse:
			depth++
		}
	}
	sb.WriteString("  )\n")
}
