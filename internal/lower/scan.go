package lower

import (
	"sort"

	"wasc/internal/ast"
	"wasc/internal/rt"
	"wasc/internal/sema"
	"wasc/internal/source"
	"wasc/internal/types"
	"wasc/internal/wasm"
)

// pushKey identifies one push helper by element storage shape. Distinct
// element types whose elements store identically share a helper; reference
// elements are kept apart because their store runs the ownership hooks.
type pushKey struct {
	stride uint32
	val    wasm.ValType
	ref    bool
}

func (k pushKey) suffix() string {
	switch k.stride {
	case 1:
		return "i8"
	case 2:
		return "i16"
	case 4:
		switch {
		case k.val == wasm.F32:
			return "f32"
		case k.ref:
			return "ref"
		default:
			return "i32"
		}
	default:
		if k.val == wasm.F64 {
			return "f64"
		}
		return "i64"
	}
}

// scan lays out the function index space. Helpers and the start function
// are numbered after every user function, so user indices never move when
// helper needs change.
func (u *Unit) scan() {
	for _, op := range u.binder.Ops() {
		u.imports = append(u.imports, Import{Module: rt.Module, Name: op.Name(), Type: op.Type()})
	}
	next := u.binder.NumImports()
	for i := range u.res.Funcs {
		fid := ast.FuncID(i + 1)
		sig := &u.res.Funcs[i]
		if sig.Imported {
			decl := u.prog.Decls.Func(fid)
			name := decl.ImportName
			if name == source.NoStringID {
				name = decl.Name
			}
			u.callIndex[fid] = next
			u.imports = append(u.imports, Import{
				Module: u.prog.Name(decl.ImportModule),
				Name:   u.prog.Name(name),
				Type:   u.funcTypeOf(sig.Params, sig.Result),
			})
			next++
			continue
		}
		if sig.IsGeneric() {
			continue
		}
		key := sema.BodyKey{Func: fid, Inst: sema.NoInstID}
		u.index[key] = next
		u.tasks = append(u.tasks, task{kind: taskBody, key: key})
		next++
	}
	for _, inst := range u.res.Insts.Ordered() {
		key := sema.BodyKey{Func: inst.Func, Inst: inst.ID}
		u.index[key] = next
		u.tasks = append(u.tasks, task{kind: taskBody, key: key})
		next++
	}

	u.scanHelpers()
	if u.hasConcat {
		u.concatIndex = next
		u.tasks = append(u.tasks, task{kind: taskConcat})
		next++
	}
	for _, k := range u.pushers {
		u.pushIndex[k] = next
		u.tasks = append(u.tasks, task{kind: taskPush, push: k})
		next++
	}
	if u.needsStart() {
		u.hasStart = true
		u.startIndex = next
		u.tasks = append(u.tasks, task{kind: taskStart})
	}
}

// scanHelpers walks every body that will be lowered, global initializers
// included, and records which synthesized helpers the code will call.
func (u *Unit) scanHelpers() {
	bodies := make([]*sema.FuncBody, 0, len(u.tasks)+1)
	for _, t := range u.tasks {
		bodies = append(bodies, u.res.Body(t.key.Func, t.key.Inst))
	}
	if u.res.Init != nil {
		bodies = append(bodies, u.res.Init)
	}
	seen := make(map[pushKey]bool)
	for _, body := range bodies {
		if body == nil {
			continue
		}
		for id, t := range body.ExprTypes {
			if u.res.Types.Kind(t) != types.KindString {
				continue
			}
			if bin, _ := u.prog.Exprs.Binary(id); bin != nil && bin.Op == ast.BinAdd {
				u.hasConcat = true
			}
		}
		for id, ct := range body.Calls {
			if ct.Kind != sema.CallArrayPush {
				continue
			}
			call, _ := u.prog.Exprs.Call(id)
			recv := u.res.Types.MustLookup(body.ExprTypes[call.Recv])
			k := u.pushKeyFor(recv.Elem)
			if !seen[k] {
				seen[k] = true
				u.pushers = append(u.pushers, k)
			}
		}
	}
	sort.Slice(u.pushers, func(i, j int) bool {
		a, b := u.pushers[i], u.pushers[j]
		if a.stride != b.stride {
			return a.stride < b.stride
		}
		if a.val != b.val {
			return a.val < b.val
		}
		return !a.ref && b.ref
	})
}

func (u *Unit) pushKeyFor(elem types.TypeID) pushKey {
	vt, ok := valTypeOf(u.res.Types, elem)
	if !ok {
		panic("lower: push element has no value type")
	}
	return pushKey{stride: u.eng.Stride(elem), val: vt, ref: u.res.Types.IsReference(elem)}
}

// needsStart reports whether any global initializer could not be seeded as
// static data and therefore runs at instantiation.
func (u *Unit) needsStart() bool {
	for i := range u.res.Globals {
		gid := ast.GlobalID(i + 1)
		decl := u.prog.Decls.Global(gid)
		if decl == nil || !decl.Init.IsValid() || u.plan.StaticInit(gid) {
			continue
		}
		return true
	}
	return false
}
