package sema

import (
	"wasc/internal/ast"
	"wasc/internal/intrin"
	"wasc/internal/source"
	"wasc/internal/types"
)

// LocalID indexes FuncBody.Locals. Parameters occupy the first slots in
// declaration order; let bindings follow in the order they are checked.
type LocalID uint32

// FuncSig is one function declaration's resolved signature.
type FuncSig struct {
	Name       source.StringID
	TypeParams []types.TypeID // placeholder types, one per declared parameter
	Params     []types.TypeID
	Result     types.TypeID // Void for procedures
	Type       types.TypeID // interned fn type

	Imported bool
	Exported bool
}

// IsGeneric reports whether calls must specialize the function first.
func (s *FuncSig) IsGeneric() bool { return len(s.TypeParams) > 0 }

// GlobalSym is one module-level variable. Type stays NoTypeID until the
// declaration pass reaches the global, which is how use-before-declaration
// inside earlier initializers is detected.
type GlobalSym struct {
	Name    source.StringID
	Type    types.TypeID
	Mutable bool
}

// RefKind says what an identifier expression resolved to.
type RefKind uint8

const (
	RefLocal RefKind = iota
	RefGlobal
)

// Ref binds an identifier to its storage. Index is a LocalID for RefLocal
// and an ast.GlobalID for RefGlobal.
type Ref struct {
	Kind  RefKind
	Index uint32
}

// CallKind discriminates CallTarget.
type CallKind uint8

const (
	// CallFunc is a direct call to a non-generic function.
	CallFunc CallKind = iota
	// CallSpec is a call to one specialization of a generic function.
	CallSpec
	// CallIntrin is a recognized built-in; it lowers to raw instructions.
	CallIntrin
	// CallArrayPush is the arr.push(v) method form.
	CallArrayPush
)

// CallTarget is the resolution of one call expression.
type CallTarget struct {
	Kind   CallKind
	Func   ast.FuncID // CallFunc, CallSpec
	Inst   InstID     // CallSpec
	Intrin intrin.Call
}

// LocalInfo describes one local slot of a checked body.
type LocalInfo struct {
	Name source.StringID
	Type types.TypeID
}

// BodyKey addresses one checked body: a plain function, or one
// specialization of a generic one.
type BodyKey struct {
	Func ast.FuncID
	Inst InstID // NoInstID for non-generic functions
}

// FuncBody carries everything later phases need to know about one body.
// The tree itself is never annotated; these tables are keyed by node ID.
type FuncBody struct {
	Func ast.FuncID
	Inst InstID

	// ExprTypes has the resolved type of every expression in the body.
	ExprTypes map[ast.ExprID]types.TypeID
	// Idents binds identifier expressions to locals or globals.
	Idents map[ast.ExprID]Ref
	// LetLocals maps let statements to the slot they introduce.
	LetLocals map[ast.StmtID]LocalID
	// Locals lists all slots: parameters first, then let bindings.
	Locals []LocalInfo
	// Calls resolves every call expression.
	Calls map[ast.ExprID]CallTarget
}

func newFuncBody(fn ast.FuncID, inst InstID) *FuncBody {
	return &FuncBody{
		Func:      fn,
		Inst:      inst,
		ExprTypes: make(map[ast.ExprID]types.TypeID),
		Idents:    make(map[ast.ExprID]Ref),
		LetLocals: make(map[ast.StmtID]LocalID),
		Calls:     make(map[ast.ExprID]CallTarget),
	}
}

// Result is the full output of Check.
type Result struct {
	Types *types.Interner

	// Funcs is indexed by ast.FuncID-1, Classes by ast.ClassID-1, Globals
	// by ast.GlobalID-1.
	Funcs   []FuncSig
	Classes []types.TypeID
	Globals []GlobalSym

	// Bodies holds one entry per checked plain body and per specialization.
	Bodies map[BodyKey]*FuncBody
	// Init carries the side tables for global initializer expressions,
	// which live outside any function. Its Locals stay empty.
	Init *FuncBody
	// Insts is the instantiation cache for generic functions.
	Insts *InstSet

	funcByName   map[source.StringID]ast.FuncID
	globalByName map[source.StringID]ast.GlobalID
	classByName  map[source.StringID]types.TypeID
	primByName   map[source.StringID]types.TypeID
}

func newResult(tn *types.Interner, names *source.Interner) *Result {
	b := tn.Builtins()
	prims := map[string]types.TypeID{
		"i8": b.I8, "i16": b.I16, "i32": b.I32, "i64": b.I64,
		"u8": b.U8, "u16": b.U16, "u32": b.U32, "u64": b.U64,
		"f32": b.F32, "f64": b.F64,
		"bool": b.Bool, "string": b.String,
	}
	r := &Result{
		Types:        tn,
		Bodies:       make(map[BodyKey]*FuncBody),
		Insts:        NewInstSet(),
		funcByName:   make(map[source.StringID]ast.FuncID),
		globalByName: make(map[source.StringID]ast.GlobalID),
		classByName:  make(map[source.StringID]types.TypeID),
		primByName:   make(map[source.StringID]types.TypeID, len(prims)),
	}
	for name, t := range prims {
		r.primByName[names.Intern(name)] = t
	}
	return r
}

// Sig returns the signature for a function ID.
func (r *Result) Sig(id ast.FuncID) *FuncSig {
	if !id.IsValid() || int(id) > len(r.Funcs) {
		return nil
	}
	return &r.Funcs[id-1]
}

// Global returns the symbol for a global ID.
func (r *Result) Global(id ast.GlobalID) *GlobalSym {
	if !id.IsValid() || int(id) > len(r.Globals) {
		return nil
	}
	return &r.Globals[id-1]
}

// ClassType returns the registered type for a class ID.
func (r *Result) ClassType(id ast.ClassID) types.TypeID {
	if !id.IsValid() || int(id) > len(r.Classes) {
		return types.NoTypeID
	}
	return r.Classes[id-1]
}

// Body returns the checked body for a key, nil when absent.
func (r *Result) Body(fn ast.FuncID, inst InstID) *FuncBody {
	return r.Bodies[BodyKey{Func: fn, Inst: inst}]
}

// FuncByName resolves a function by name.
func (r *Result) FuncByName(name source.StringID) (ast.FuncID, bool) {
	id, ok := r.funcByName[name]
	return id, ok
}

// GlobalByName resolves a global by name.
func (r *Result) GlobalByName(name source.StringID) (ast.GlobalID, bool) {
	id, ok := r.globalByName[name]
	return id, ok
}

// ClassByName resolves a class by name.
func (r *Result) ClassByName(name source.StringID) (types.TypeID, bool) {
	id, ok := r.classByName[name]
	return id, ok
}
