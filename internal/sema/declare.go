package sema

import (
	"fmt"

	"wasc/internal/ast"
	"wasc/internal/diag"
	"wasc/internal/source"
	"wasc/internal/types"
)

// The declaration passes run in a fixed order so that any type expression
// can mention any class, function bodies can call anything, and global
// initializers see exactly the globals declared above them. Classes,
// functions and globals share one namespace; the first declaration of a
// name wins and later ones report DuplicateSymbol.

func declErr(reporter diag.Reporter, code diag.Code, span source.Span, format string, args ...any) {
	diag.ReportError(reporter, code, span, fmt.Sprintf(format, args...)).Emit()
}

func declareClasses(prog *ast.Program, res *Result, reporter diag.Reporter) {
	tn := res.Types
	ids := prog.ClassIDs()
	res.Classes = make([]types.TypeID, len(ids))

	// Register every class first so fields and bases can reference classes
	// declared later in the file.
	for i, cid := range ids {
		decl := prog.Decls.Class(cid)
		t := tn.RegisterClass(decl.Name, decl.Span)
		res.Classes[i] = t
		if _, taken := res.classByName[decl.Name]; taken {
			declErr(reporter, diag.DuplicateSymbol, decl.Span,
				"'%s' is already declared", prog.Name(decl.Name))
			continue
		}
		res.classByName[decl.Name] = t
	}

	for i, cid := range ids {
		decl := prog.Decls.Class(cid)
		if decl.Base == source.NoStringID {
			continue
		}
		base, ok := res.classByName[decl.Base]
		if !ok {
			declErr(reporter, diag.UnresolvedSymbol, decl.Span,
				"unknown base class '%s'", prog.Name(decl.Base))
			continue
		}
		tn.SetClassBase(res.Classes[i], base)
	}

	// A cycle makes every chain walk spin, so cut the first offending base
	// link. The remaining members get valid chains back and stay usable.
	for i, cid := range ids {
		if tn.Chain(res.Classes[i]) == nil {
			decl := prog.Decls.Class(cid)
			declErr(reporter, diag.TypeMismatch, decl.Span,
				"inheritance cycle through class '%s'", prog.Name(decl.Name))
			tn.SetClassBase(res.Classes[i], types.NoTypeID)
		}
	}

	for i, cid := range ids {
		decl := prog.Decls.Class(cid)
		classT := res.Classes[i]
		info, _ := tn.ClassInfo(classT)

		fields := make([]types.ClassField, 0, len(decl.Fields))
		seen := make(map[source.StringID]bool, len(decl.Fields))
		for _, f := range decl.Fields {
			if seen[f.Name] {
				declErr(reporter, diag.DuplicateSymbol, f.Span,
					"field '%s' is already declared in class '%s'",
					prog.Name(f.Name), prog.Name(decl.Name))
				continue
			}
			seen[f.Name] = true
			if info.Base != types.NoTypeID {
				if _, _, inherited := tn.FindField(info.Base, f.Name); inherited {
					declErr(reporter, diag.DuplicateSymbol, f.Span,
						"field '%s' of class '%s' shadows an inherited field",
						prog.Name(f.Name), prog.Name(decl.Name))
					continue
				}
			}
			ft := resolveType(prog, res, reporter, nil, f.Type)
			if ft == tn.Builtins().Invalid {
				continue
			}
			if tn.Kind(ft) == types.KindVoid {
				declErr(reporter, diag.TypeMismatch, f.Span, "field '%s' cannot be void", prog.Name(f.Name))
				continue
			}
			fields = append(fields, types.ClassField{Name: f.Name, Type: ft, Decl: f.Span})
		}
		tn.SetClassFields(classT, fields)
	}
}

func declareFuncs(prog *ast.Program, res *Result, reporter diag.Reporter) {
	tn := res.Types
	ids := prog.FuncIDs()
	res.Funcs = make([]FuncSig, len(ids))

	for i, fid := range ids {
		decl := prog.Decls.Func(fid)
		sig := &res.Funcs[i]
		sig.Name = decl.Name
		sig.Imported = decl.Imported
		sig.Exported = decl.Exported

		if _, taken := res.classByName[decl.Name]; taken {
			declErr(reporter, diag.DuplicateSymbol, decl.Span,
				"'%s' is already declared", prog.Name(decl.Name))
		} else if _, taken := res.funcByName[decl.Name]; taken {
			declErr(reporter, diag.DuplicateSymbol, decl.Span,
				"'%s' is already declared", prog.Name(decl.Name))
		} else {
			res.funcByName[decl.Name] = fid
		}

		bind := make(map[source.StringID]types.TypeID, len(decl.TypeParams))
		sig.TypeParams = make([]types.TypeID, 0, len(decl.TypeParams))
		for k, tpName := range decl.TypeParams {
			if tp, dup := bind[tpName]; dup {
				declErr(reporter, diag.DuplicateSymbol, decl.Span,
					"type parameter '%s' is already declared", prog.Name(tpName))
				// Keep positions aligned with the declaration list.
				sig.TypeParams = append(sig.TypeParams, tp)
				continue
			}
			tp := tn.RegisterTypeParam(tpName, uint32(fid), uint32(k))
			bind[tpName] = tp
			sig.TypeParams = append(sig.TypeParams, tp)
		}

		if sig.IsGeneric() && decl.Imported {
			declErr(reporter, diag.UnsupportedConstruct, decl.Span,
				"generic function '%s' cannot be imported", prog.Name(decl.Name))
		}
		if sig.IsGeneric() && decl.Exported {
			declErr(reporter, diag.UnsupportedConstruct, decl.Span,
				"generic function '%s' cannot be exported; export a wrapper instead", prog.Name(decl.Name))
		}
		if decl.Imported && decl.Body.IsValid() {
			declErr(reporter, diag.TypeMismatch, decl.Span,
				"imported function '%s' cannot have a body", prog.Name(decl.Name))
		}
		if !decl.Imported && !decl.Body.IsValid() {
			declErr(reporter, diag.TypeMismatch, decl.Span,
				"function '%s' needs a body", prog.Name(decl.Name))
		}

		sig.Params = make([]types.TypeID, len(decl.Params))
		seen := make(map[source.StringID]bool, len(decl.Params))
		for p, param := range decl.Params {
			if seen[param.Name] {
				declErr(reporter, diag.DuplicateSymbol, param.Span,
					"parameter '%s' is already declared", prog.Name(param.Name))
			}
			seen[param.Name] = true
			pt := resolveType(prog, res, reporter, bind, param.Type)
			if tn.Kind(pt) == types.KindVoid {
				declErr(reporter, diag.TypeMismatch, param.Span,
					"parameter '%s' cannot be void", prog.Name(param.Name))
				pt = tn.Builtins().Invalid
			}
			sig.Params[p] = pt
		}

		sig.Result = tn.Builtins().Void
		if decl.Result.IsValid() {
			sig.Result = resolveType(prog, res, reporter, bind, decl.Result)
		}
		sig.Type = tn.RegisterFn(sig.Params, sig.Result)
	}
}

// declareGlobalSlots registers every global name up front, typeless. The
// sequential initializer pass fills the types in; an identifier that hits
// a still-typeless slot is a use before declaration.
func declareGlobalSlots(prog *ast.Program, res *Result, reporter diag.Reporter) {
	ids := prog.GlobalIDs()
	res.Globals = make([]GlobalSym, len(ids))
	for i, gid := range ids {
		decl := prog.Decls.Global(gid)
		res.Globals[i] = GlobalSym{Name: decl.Name, Mutable: decl.Mutable}
		if _, taken := res.classByName[decl.Name]; taken {
			declErr(reporter, diag.DuplicateSymbol, decl.Span,
				"'%s' is already declared", prog.Name(decl.Name))
			continue
		}
		if _, taken := res.funcByName[decl.Name]; taken {
			declErr(reporter, diag.DuplicateSymbol, decl.Span,
				"'%s' is already declared", prog.Name(decl.Name))
			continue
		}
		if _, taken := res.globalByName[decl.Name]; taken {
			declErr(reporter, diag.DuplicateSymbol, decl.Span,
				"'%s' is already declared", prog.Name(decl.Name))
			continue
		}
		res.globalByName[decl.Name] = gid
	}
}

// checkGlobalInits types initializers top to bottom and assigns each
// global its type. All expression tables land in the Init pseudo body.
func checkGlobalInits(prog *ast.Program, res *Result, reporter diag.Reporter, names wellKnown) {
	tn := res.Types
	res.Init = newFuncBody(ast.NoFuncID, NoInstID)
	gc := &bodyChecker{
		prog:     prog,
		tn:       tn,
		reporter: reporter,
		res:      res,
		body:     res.Init,
		names:    names,
	}

	for _, gid := range prog.GlobalIDs() {
		decl := prog.Decls.Global(gid)
		sym := res.Global(gid)

		declared := types.NoTypeID
		if decl.Type.IsValid() {
			declared = gc.resolveType(decl.Type)
		}
		initT := types.NoTypeID
		if decl.Init.IsValid() {
			initT = gc.operand(decl.Init, declared)
		}

		t := declared
		switch {
		case !decl.Type.IsValid() && !decl.Init.IsValid():
			declErr(reporter, diag.TypeMismatch, decl.Span,
				"global '%s' needs a type or an initializer", prog.Name(decl.Name))
			t = tn.Builtins().Invalid
		case !decl.Type.IsValid():
			t = initT
		case decl.Init.IsValid() && !gc.poisoned(declared, initT) && !gc.assignable(declared, initT):
			declErr(reporter, diag.TypeMismatch, decl.Span,
				"cannot initialize %s with %s", gc.label(declared), gc.label(initT))
		}

		if !gc.poisoned(t) {
			if tn.Kind(t) == types.KindVoid {
				declErr(reporter, diag.TypeMismatch, decl.Span, "global '%s' cannot be void", prog.Name(decl.Name))
				t = tn.Builtins().Invalid
			} else if tn.IsReference(t) && !decl.Init.IsValid() {
				declErr(reporter, diag.TypeMismatch, decl.Span,
					"global '%s' of reference type needs an initializer", prog.Name(decl.Name))
			} else if !decl.Mutable && !decl.Init.IsValid() {
				declErr(reporter, diag.TypeMismatch, decl.Span,
					"immutable global '%s' needs an initializer", prog.Name(decl.Name))
			}
		}

		// Invalid rather than NoTypeID: the slot is processed now, and
		// later references should stay quiet instead of reporting a bogus
		// use before declaration.
		if t == types.NoTypeID {
			t = tn.Builtins().Invalid
		}
		sym.Type = t
	}
}
