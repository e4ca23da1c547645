package fuzztests

import (
	"bytes"
	"testing"

	"wasc/internal/ast"
	"wasc/internal/source"
)

const maxFuzzInput = 64 << 10

// packOf encodes one program built by fn.
func packOf(tb testing.TB, fn func(b *ast.Builder)) []byte {
	tb.Helper()
	b := ast.NewBuilder(ast.Hints{})
	fn(b)
	var buf bytes.Buffer
	if err := ast.EncodeProgram(&buf, b.Program()); err != nil {
		tb.Fatalf("encode seed: %v", err)
	}
	return buf.Bytes()
}

// addPackSeeds loads the corpus: valid packs of increasing shape, the
// same packs truncated and bit-flipped, and raw garbage.
func addPackSeeds(f *testing.F) {
	seeds := [][]byte{
		packOf(f, func(*ast.Builder) {}),
		packOf(f, seedArith),
		packOf(f, seedClassGlobal),
	}
	for _, s := range seeds {
		f.Add(s)
		if len(s) > 8 {
			f.Add(s[:len(s)/2])
			flipped := append([]byte(nil), s...)
			flipped[len(flipped)/3] ^= 0x40
			f.Add(flipped)
		}
	}
	f.Add([]byte{})
	f.Add([]byte("not a pack"))
}

// seedArith is one exported function over parameters and arithmetic.
func seedArith(b *ast.Builder) {
	fid := b.Files.AddVirtual("seed.ast", []byte("export fn add(a: i32, b: i32): i32"))
	sp := func(at uint32) source.Span { return source.Span{File: fid, Start: at, End: at + 1} }
	i32 := b.Types.NewNamed(sp(1), b.Intern("i32"))
	sum := b.Exprs.NewBinary(sp(4), ast.BinAdd,
		b.Exprs.NewIdent(sp(5), b.Intern("a")),
		b.Exprs.NewIdent(sp(6), b.Intern("b")))
	body := b.Stmts.NewBlock(sp(7), []ast.StmtID{b.Stmts.NewReturn(sp(8), sum)})
	b.Decls.AddFunc(ast.FuncData{
		Name: b.Intern("add"),
		Params: []ast.Param{
			{Name: b.Intern("a"), Type: i32, Span: sp(2)},
			{Name: b.Intern("b"), Type: i32, Span: sp(3)},
		},
		Result:   i32,
		Body:     body,
		Span:     sp(9),
		Exported: true,
	})
}

// seedClassGlobal adds a class, a string global and an array literal so
// every arena in the wire form is populated.
func seedClassGlobal(b *ast.Builder) {
	fid := b.Files.AddVirtual("seed.ast", []byte("class Box { v: i32 }"))
	sp := func(at uint32) source.Span { return source.Span{File: fid, Start: at, End: at + 1} }
	i32 := b.Types.NewNamed(sp(1), b.Intern("i32"))
	str := b.Types.NewNamed(sp(2), b.Intern("string"))
	b.Decls.AddClass(ast.ClassData{
		Name:   b.Intern("Box"),
		Fields: []ast.FieldDef{{Name: b.Intern("v"), Type: i32, Span: sp(3)}},
		Span:   sp(4),
	})
	b.Decls.AddGlobal(ast.GlobalData{
		Name:    b.Intern("greeting"),
		Type:    str,
		Init:    b.Exprs.NewStringLit(sp(5), b.Intern("hi")),
		Mutable: false,
		Span:    sp(6),
	})
	arr := b.Exprs.NewArrayLit(sp(7), ast.NoTypeExprID, []ast.ExprID{
		b.Exprs.NewIntLit(sp(8), 1),
		b.Exprs.NewIntLit(sp(9), 2),
	})
	body := b.Stmts.NewBlock(sp(10), []ast.StmtID{
		b.Stmts.NewLet(sp(11), b.Intern("xs"), b.Types.NewArray(sp(12), i32, ast.DynamicLen), arr),
		b.Stmts.NewReturn(sp(13), ast.NoExprID),
	})
	b.Decls.AddFunc(ast.FuncData{
		Name: b.Intern("make"),
		Body: body,
		Span: sp(14),
	})
}
