package ast

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"wasc/internal/source"
)

// Wire schema version. Bump whenever the serialized shape changes; decoding
// rejects mismatches instead of guessing.
const wireSchemaVersion uint16 = 1

type wireFile struct {
	Path    string
	Hash    [32]byte
	Size    uint32
	Virtual bool
}

// wireProgram is the flat msgpack form of a Program. Arena slices are
// stored as-is; node IDs stay valid because arenas are append-only and
// 1-based on both sides.
type wireProgram struct {
	Schema uint16

	Names []string
	Files []wireFile

	Exprs      []Expr
	ExprIdents []ExprIdentData
	ExprLits   []ExprLitData
	ExprBins   []ExprBinaryData
	ExprUns    []ExprUnaryData
	ExprCalls  []ExprCallData
	ExprIdxs   []ExprIndexData
	ExprMems   []ExprMemberData
	ExprNews   []ExprNewData
	ExprArrs   []ExprArrayLitData
	ExprCasts  []ExprCastData
	ExprTerns  []ExprTernaryData
	ExprGroups []ExprGroupData

	Stmts       []Stmt
	StmtBlocks  []StmtBlockData
	StmtLets    []StmtLetData
	StmtAssigns []StmtAssignData
	StmtExprs   []StmtExprData
	StmtIfs     []StmtIfData
	StmtWhiles  []StmtWhileData
	StmtFors    []StmtForData
	StmtReturns []StmtReturnData

	TypeExprs      []TypeExpr
	TypeExprNamed  []TypeExprNamedData
	TypeExprArrays []TypeExprArrayData

	Funcs   []FuncData
	Classes []ClassData
	Globals []GlobalData
}

// EncodeProgram writes the program pack wire form of p.
func EncodeProgram(w io.Writer, p *Program) error {
	wire := &wireProgram{
		Schema: wireSchemaVersion,
		Names:  p.Names.Snapshot(),

		Exprs:      p.Exprs.Arena.Slice(),
		ExprIdents: p.Exprs.Idents.Slice(),
		ExprLits:   p.Exprs.Literals.Slice(),
		ExprBins:   p.Exprs.Binaries.Slice(),
		ExprUns:    p.Exprs.Unaries.Slice(),
		ExprCalls:  p.Exprs.Calls.Slice(),
		ExprIdxs:   p.Exprs.Indices.Slice(),
		ExprMems:   p.Exprs.Members.Slice(),
		ExprNews:   p.Exprs.News.Slice(),
		ExprArrs:   p.Exprs.ArrayLits.Slice(),
		ExprCasts:  p.Exprs.Casts.Slice(),
		ExprTerns:  p.Exprs.Ternaries.Slice(),
		ExprGroups: p.Exprs.Groups.Slice(),

		Stmts:       p.Stmts.Arena.Slice(),
		StmtBlocks:  p.Stmts.Blocks.Slice(),
		StmtLets:    p.Stmts.Lets.Slice(),
		StmtAssigns: p.Stmts.Assigns.Slice(),
		StmtExprs:   p.Stmts.Exprs.Slice(),
		StmtIfs:     p.Stmts.Ifs.Slice(),
		StmtWhiles:  p.Stmts.Whiles.Slice(),
		StmtFors:    p.Stmts.Fors.Slice(),
		StmtReturns: p.Stmts.Returns.Slice(),

		TypeExprs:      p.Types.Arena.Slice(),
		TypeExprNamed:  p.Types.Named.Slice(),
		TypeExprArrays: p.Types.Arrays.Slice(),

		Funcs:   p.Decls.Funcs.Slice(),
		Classes: p.Decls.Classes.Slice(),
		Globals: p.Decls.Globals.Slice(),
	}
	for i := 0; i < p.Files.Len(); i++ {
		f := p.Files.Get(source.FileID(i))
		wire.Files = append(wire.Files, wireFile{
			Path:    f.Path,
			Hash:    f.Hash,
			Size:    f.Size,
			Virtual: f.Virtual,
		})
	}
	return msgpack.NewEncoder(w).Encode(wire)
}

// DecodeProgram reads a program pack and rebuilds the tree. The result is
// structurally validated: every payload reference must land inside its
// arena, so later phases can index without bounds anxiety.
func DecodeProgram(r io.Reader) (*Program, error) {
	var wire wireProgram
	if err := msgpack.NewDecoder(r).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode program pack: %w", err)
	}
	if wire.Schema != wireSchemaVersion {
		return nil, fmt.Errorf("program pack schema %d, want %d", wire.Schema, wireSchemaVersion)
	}

	names := source.NewInterner()
	for i, s := range wire.Names {
		if i == 0 {
			continue // NoStringID slot
		}
		names.Intern(s)
	}
	if names.Len() != len(wire.Names) && len(wire.Names) > 0 {
		return nil, fmt.Errorf("program pack name table has duplicates")
	}

	files := source.NewTable()
	for _, f := range wire.Files {
		files.AddFile(source.File{
			Path:    f.Path,
			Hash:    f.Hash,
			Size:    f.Size,
			Virtual: f.Virtual,
		})
	}

	p := &Program{
		Files: files,
		Names: names,
		Exprs: &Exprs{
			Arena:     arenaOf(wire.Exprs),
			Idents:    arenaOf(wire.ExprIdents),
			Literals:  arenaOf(wire.ExprLits),
			Binaries:  arenaOf(wire.ExprBins),
			Unaries:   arenaOf(wire.ExprUns),
			Calls:     arenaOf(wire.ExprCalls),
			Indices:   arenaOf(wire.ExprIdxs),
			Members:   arenaOf(wire.ExprMems),
			News:      arenaOf(wire.ExprNews),
			ArrayLits: arenaOf(wire.ExprArrs),
			Casts:     arenaOf(wire.ExprCasts),
			Ternaries: arenaOf(wire.ExprTerns),
			Groups:    arenaOf(wire.ExprGroups),
		},
		Stmts: &Stmts{
			Arena:   arenaOf(wire.Stmts),
			Blocks:  arenaOf(wire.StmtBlocks),
			Lets:    arenaOf(wire.StmtLets),
			Assigns: arenaOf(wire.StmtAssigns),
			Exprs:   arenaOf(wire.StmtExprs),
			Ifs:     arenaOf(wire.StmtIfs),
			Whiles:  arenaOf(wire.StmtWhiles),
			Fors:    arenaOf(wire.StmtFors),
			Returns: arenaOf(wire.StmtReturns),
		},
		Types: &TypeExprs{
			Arena:  arenaOf(wire.TypeExprs),
			Named:  arenaOf(wire.TypeExprNamed),
			Arrays: arenaOf(wire.TypeExprArrays),
		},
		Decls: &Decls{
			Funcs:   arenaOf(wire.Funcs),
			Classes: arenaOf(wire.Classes),
			Globals: arenaOf(wire.Globals),
		},
	}
	if err := validateProgram(p); err != nil {
		return nil, err
	}
	return p, nil
}

func arenaOf[T any](data []T) *Arena[T] {
	a := NewArena[T](uint(len(data)))
	a.data = append(a.data, data...)
	return a
}

// validateProgram checks every header's payload reference. Child node IDs
// are checked shallowly (bounds only); semantic validation is the
// resolver's job.
func validateProgram(p *Program) error {
	exprCount := p.Exprs.Arena.Len()
	stmtCount := p.Stmts.Arena.Len()
	typeCount := p.Types.Arena.Len()

	checkExpr := func(id ExprID, where string) error {
		if uint32(id) > exprCount {
			return fmt.Errorf("%s references expr %d of %d", where, id, exprCount)
		}
		return nil
	}
	checkStmt := func(id StmtID, where string) error {
		if uint32(id) > stmtCount {
			return fmt.Errorf("%s references stmt %d of %d", where, id, stmtCount)
		}
		return nil
	}
	checkType := func(id TypeExprID, where string) error {
		if uint32(id) > typeCount {
			return fmt.Errorf("%s references type expr %d of %d", where, id, typeCount)
		}
		return nil
	}

	payloadLens := map[ExprKind]uint32{
		ExprIdent:    p.Exprs.Idents.Len(),
		ExprLit:      p.Exprs.Literals.Len(),
		ExprBinary:   p.Exprs.Binaries.Len(),
		ExprUnary:    p.Exprs.Unaries.Len(),
		ExprCall:     p.Exprs.Calls.Len(),
		ExprIndex:    p.Exprs.Indices.Len(),
		ExprMember:   p.Exprs.Members.Len(),
		ExprNew:      p.Exprs.News.Len(),
		ExprArrayLit: p.Exprs.ArrayLits.Len(),
		ExprCast:     p.Exprs.Casts.Len(),
		ExprTernary:  p.Exprs.Ternaries.Len(),
		ExprGroup:    p.Exprs.Groups.Len(),
	}
	for i := uint32(1); i <= exprCount; i++ {
		expr := p.Exprs.Get(ExprID(i))
		limit, ok := payloadLens[expr.Kind]
		if !ok {
			return fmt.Errorf("expr %d has unknown kind %d", i, expr.Kind)
		}
		if expr.Payload == NoPayloadID || uint32(expr.Payload) > limit {
			return fmt.Errorf("expr %d (%d) payload %d out of range %d", i, expr.Kind, expr.Payload, limit)
		}
	}

	stmtPayloadLens := map[StmtKind]uint32{
		StmtBlock:  p.Stmts.Blocks.Len(),
		StmtLet:    p.Stmts.Lets.Len(),
		StmtAssign: p.Stmts.Assigns.Len(),
		StmtExpr:   p.Stmts.Exprs.Len(),
		StmtIf:     p.Stmts.Ifs.Len(),
		StmtWhile:  p.Stmts.Whiles.Len(),
		StmtFor:    p.Stmts.Fors.Len(),
		StmtReturn: p.Stmts.Returns.Len(),
	}
	for i := uint32(1); i <= stmtCount; i++ {
		stmt := p.Stmts.Get(StmtID(i))
		if stmt.Kind == StmtBreak || stmt.Kind == StmtContinue {
			continue
		}
		limit, ok := stmtPayloadLens[stmt.Kind]
		if !ok {
			return fmt.Errorf("stmt %d has unknown kind %d", i, stmt.Kind)
		}
		if stmt.Payload == NoPayloadID || uint32(stmt.Payload) > limit {
			return fmt.Errorf("stmt %d (%d) payload %d out of range %d", i, stmt.Kind, stmt.Payload, limit)
		}
	}

	for i := uint32(1); i <= typeCount; i++ {
		te := p.Types.Get(TypeExprID(i))
		var limit uint32
		switch te.Kind {
		case TypeExprNamed:
			limit = p.Types.Named.Len()
		case TypeExprArray:
			limit = p.Types.Arrays.Len()
		default:
			return fmt.Errorf("type expr %d has unknown kind %d", i, te.Kind)
		}
		if te.Payload == NoPayloadID || uint32(te.Payload) > limit {
			return fmt.Errorf("type expr %d payload out of range", i)
		}
	}

	for _, id := range p.FuncIDs() {
		fn := p.Decls.Func(id)
		where := fmt.Sprintf("func %d", id)
		if err := checkStmt(fn.Body, where); err != nil {
			return err
		}
		if err := checkType(fn.Result, where); err != nil {
			return err
		}
		for _, param := range fn.Params {
			if err := checkType(param.Type, where); err != nil {
				return err
			}
		}
	}
	for _, id := range p.ClassIDs() {
		c := p.Decls.Class(id)
		for _, f := range c.Fields {
			if err := checkType(f.Type, fmt.Sprintf("class %d", id)); err != nil {
				return err
			}
		}
	}
	for _, id := range p.GlobalIDs() {
		g := p.Decls.Global(id)
		where := fmt.Sprintf("global %d", id)
		if err := checkType(g.Type, where); err != nil {
			return err
		}
		if err := checkExpr(g.Init, where); err != nil {
			return err
		}
	}
	return nil
}
