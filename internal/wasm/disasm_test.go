package wasm

import (
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

func TestDisassembleAddModule(t *testing.T) {
	t.Parallel()
	text := Disassemble(addModule())
	be.True(t, strings.Contains(text, "(func $add (param i32 i32) (result i32)"))
	be.True(t, strings.Contains(text, "i32.add"))
	be.True(t, strings.Contains(text, `(export "add" (func 0))`))
	be.True(t, strings.Contains(text, "(memory 1)"))
}

func TestDisassembleAnnotatesCalls(t *testing.T) {
	t.Parallel()
	m := &Module{Mem: Memory{MinPages: 1}}
	voidType := m.InternType(FuncType{})
	m.Imports = append(m.Imports, Import{Module: "rt", Name: "trap_oob", Type: voidType})
	m.Funcs = append(m.Funcs, Func{Name: "boom", Type: voidType, Body: []Instr{Call(0)}})
	text := Disassemble(m)
	be.True(t, strings.Contains(text, `(import "rt" "trap_oob"`))
	be.True(t, strings.Contains(text, "call 0 ;; rt.trap_oob"))
}

func TestDisassembleIndentsControl(t *testing.T) {
	t.Parallel()
	m := modWithBody(nil, nil, []Instr{
		Block(BlockEmpty),
		{Op: OpNop},
		End(),
	})
	text := Disassemble(m)
	lines := strings.Split(text, "\n")
	nopAt, blockAt := -1, -1
	for i, ln := range lines {
		if strings.HasSuffix(ln, "block") {
			blockAt = i
		}
		if strings.HasSuffix(ln, "nop") {
			nopAt = i
		}
	}
	be.True(t, blockAt >= 0 && nopAt > blockAt)
	blockIndent := len(lines[blockAt]) - len(strings.TrimLeft(lines[blockAt], " "))
	nopIndent := len(lines[nopAt]) - len(strings.TrimLeft(lines[nopAt], " "))
	be.True(t, nopIndent > blockIndent)
}
