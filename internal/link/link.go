// Package link assembles lowered functions and the frozen memory plan
// into one module record ready for encoding. It owns the last validation
// gate: export names must be unique and runtime imports must be
// consistent, or no artifact is produced.
package link

import (
	"fmt"

	"fortio.org/safecast"

	"wasc/internal/ast"
	"wasc/internal/diag"
	"wasc/internal/layout"
	"wasc/internal/lower"
	"wasc/internal/rt"
	"wasc/internal/sema"
	"wasc/internal/source"
	"wasc/internal/wasm"
)

// MemoryExport is the export name of the module's linear memory.
const MemoryExport = "memory"

// HeapBaseExport is the immutable global telling the host allocator where
// planned static data ends.
const HeapBaseExport = "__heap_base"

// Options adjust assembly beyond what the frozen plan dictates.
type Options struct {
	// MinPages raises the initial memory size above the plan minimum.
	MinPages uint32
	// MaxPages caps linear memory; zero leaves growth unbounded.
	MaxPages uint32
}

// Build assembles the module record: imports ahead of defined functions,
// structurally interned signatures, memory sizing, the data image, the
// start function and the export table. funcs must hold every defined
// function in lowering output order with Type unset. ok is false after a
// fatal module-level error; the diagnostics went to r and no partial
// module comes back.
func Build(prog *ast.Program, u *lower.Unit, plan *layout.Plan, funcs []wasm.Func, opts Options, r diag.Reporter) (*wasm.Module, bool) {
	if !plan.Frozen() {
		panic("link: memory plan is not frozen")
	}
	if len(funcs) != u.NumFuncs() {
		panic(fmt.Sprintf("link: %d lowered functions for %d tasks", len(funcs), u.NumFuncs()))
	}

	m := &wasm.Module{}
	ok := checkImports(prog, u, r)

	for _, imp := range u.Imports() {
		m.Imports = append(m.Imports, wasm.Import{
			Module: imp.Module,
			Name:   imp.Name,
			Type:   m.InternType(imp.Type),
		})
	}
	for i, fn := range funcs {
		fn.Type = m.InternType(u.Signature(i))
		m.Funcs = append(m.Funcs, fn)
	}

	m.Mem = memoryFor(plan, opts, r, &ok)
	for _, seg := range plan.Segments() {
		m.Data = append(m.Data, wasm.DataSegment{Offset: seg.Offset, Bytes: seg.Bytes})
	}
	if start, has := u.Start(); has {
		m.HasStart, m.Start = true, start
	}

	ok = buildExports(prog, u, plan, m, r) && ok
	if !ok {
		return nil, false
	}
	return m, true
}

// memoryFor sizes the single linear memory. The plan minimum already
// covers the static image and one page of headroom; the manifest can only
// raise the floor or add a ceiling.
func memoryFor(plan *layout.Plan, opts Options, r diag.Reporter, ok *bool) wasm.Memory {
	mem := wasm.Memory{MinPages: plan.MinPages()}
	if opts.MinPages > mem.MinPages {
		mem.MinPages = opts.MinPages
	}
	if opts.MaxPages > 0 {
		mem.MaxPages, mem.HasMax = opts.MaxPages, true
		if opts.MaxPages < mem.MinPages {
			r.Report(diag.LayoutOverflow, diag.SevError, source.Span{},
				fmt.Sprintf("static data needs %d memory pages but the configuration caps memory at %d",
					mem.MinPages, opts.MaxPages), nil)
			*ok = false
		}
	}
	return mem
}

// checkImports validates the declared imports: the runtime hook namespace
// stays reserved, and one (module, name) pair always means one signature,
// since the host provides a single function per name.
func checkImports(prog *ast.Program, u *lower.Unit, r diag.Reporter) bool {
	imports := u.Imports()
	ok := true
	type seen struct {
		key  string
		span source.Span
	}
	byName := make(map[string]seen)
	for _, fid := range prog.FuncIDs() {
		decl := prog.Decls.Func(fid)
		if !decl.Imported {
			continue
		}
		module := prog.Name(decl.ImportModule)
		if module == rt.Module {
			r.Report(diag.UnresolvedImport, diag.SevError, decl.Span,
				fmt.Sprintf("import module %q is reserved for the runtime hooks", rt.Module), nil)
			ok = false
			continue
		}
		idx, found := u.FuncIndex(fid, sema.NoInstID)
		if !found {
			panic("link: imported function has no import index")
		}
		imp := imports[idx]
		full := imp.Module + "." + imp.Name
		if prev, dup := byName[full]; dup {
			if prev.key != imp.Type.Key() {
				r.Report(diag.UnresolvedImport, diag.SevError, decl.Span,
					fmt.Sprintf("import %s declared again with a different signature", full),
					[]diag.Note{{Span: prev.span, Msg: "first declared here"}})
				ok = false
			}
			continue
		}
		byName[full] = seen{key: imp.Type.Key(), span: decl.Span}
	}
	return ok
}

// exportTable tracks claimed export names so each duplicate is reported
// once, pointing back at the first claim.
type exportTable struct {
	r     diag.Reporter
	spans map[string]source.Span
	ok    bool
}

func newExportTable(r diag.Reporter) *exportTable {
	return &exportTable{r: r, spans: make(map[string]source.Span), ok: true}
}

func (t *exportTable) reserve(name string) { t.spans[name] = source.Span{} }

func (t *exportTable) claim(name string, span source.Span) bool {
	if prev, dup := t.spans[name]; dup {
		note := []diag.Note{{Span: prev, Msg: "first exported here"}}
		if prev == (source.Span{}) {
			note = nil
		}
		t.r.Report(diag.DuplicateExport, diag.SevError, span,
			fmt.Sprintf("export name %q is already taken", name), note)
		t.ok = false
		return false
	}
	t.spans[name] = span
	return true
}

// buildExports fills the export section and the global section. Globals
// surface as immutable i32 address values: index 0 is the heap base, then
// one per exported program global holding its storage cell address.
func buildExports(prog *ast.Program, u *lower.Unit, plan *layout.Plan, m *wasm.Module, r diag.Reporter) bool {
	t := newExportTable(r)
	t.reserve(MemoryExport)
	t.reserve(HeapBaseExport)

	m.Globals = append(m.Globals, wasm.Global{
		Name: HeapBaseExport,
		Type: wasm.I32,
		Init: wasm.I32Const(int32(plan.HeapBase())),
	})

	for _, fid := range prog.FuncIDs() {
		decl := prog.Decls.Func(fid)
		if !decl.Exported {
			continue
		}
		name := exportName(prog, decl.ExportName, decl.Name)
		if !t.claim(name, decl.Span) {
			continue
		}
		idx, found := u.FuncIndex(fid, sema.NoInstID)
		if !found {
			panic("link: exported function has no index")
		}
		m.Exports = append(m.Exports, wasm.Export{Name: name, Kind: wasm.ExportFunc, Index: idx})
	}

	for _, gid := range prog.GlobalIDs() {
		decl := prog.Decls.Global(gid)
		if !decl.Exported {
			continue
		}
		name := exportName(prog, decl.ExportName, decl.Name)
		if !t.claim(name, decl.Span) {
			continue
		}
		cell, found := plan.GlobalCell(gid)
		if !found {
			panic("link: exported global has no storage cell")
		}
		gi, err := safecast.Conv[uint32](len(m.Globals))
		if err != nil {
			panic(fmt.Errorf("link: global index overflow: %w", err))
		}
		m.Globals = append(m.Globals, wasm.Global{
			Name: name,
			Type: wasm.I32,
			Init: wasm.I32Const(int32(cell)),
		})
		m.Exports = append(m.Exports, wasm.Export{Name: name, Kind: wasm.ExportGlobal, Index: gi})
	}

	m.Exports = append(m.Exports,
		wasm.Export{Name: MemoryExport, Kind: wasm.ExportMemory, Index: 0},
		wasm.Export{Name: HeapBaseExport, Kind: wasm.ExportGlobal, Index: 0},
	)
	return t.ok
}

func exportName(prog *ast.Program, explicit, fallback source.StringID) string {
	if explicit == source.NoStringID {
		return prog.Name(fallback)
	}
	return prog.Name(explicit)
}
