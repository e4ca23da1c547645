package sema

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"wasc/internal/ast"
	"wasc/internal/diag"
	"wasc/internal/source"
	"wasc/internal/trace"
	"wasc/internal/types"
)

// maxInstantiationWaves bounds generic expansion. Each wave checks the
// specializations discovered by the previous one; a program that keeps
// minting new ones past the cap is recursively self-instantiating.
const maxInstantiationWaves = 64

// Options configures Check.
type Options struct {
	// Reporter receives all diagnostics. Defaults to discarding them.
	Reporter diag.Reporter
	// Types lets callers share one interner across phases. A fresh one is
	// created when nil.
	Types *types.Interner
	// Tracer records phase spans. Defaults to the nop tracer.
	Tracer trace.Tracer
	// Jobs caps body-checking parallelism; GOMAXPROCS when <= 0.
	Jobs int
	// MaxDiagnostics bounds the diagnostics one body may emit.
	MaxDiagnostics int
}

// Check resolves and type-checks the whole program. Declarations are
// processed sequentially, function bodies in parallel, and generic
// specializations in waves until no new ones appear. The error return is
// reserved for cancellation; language problems go through the reporter.
func Check(ctx context.Context, prog *ast.Program, opts Options) (*Result, error) {
	if opts.Reporter == nil {
		opts.Reporter = diag.NopReporter{}
	}
	if opts.Types == nil {
		opts.Types = types.NewInterner()
	}
	if opts.Tracer == nil {
		opts.Tracer = trace.Nop
	}
	if opts.Jobs <= 0 {
		opts.Jobs = runtime.GOMAXPROCS(0)
	}
	if opts.MaxDiagnostics <= 0 {
		opts.MaxDiagnostics = 256
	}

	res := newResult(opts.Types, prog.Names)
	names := internWellKnown(prog.Names)

	done := trace.Begin(opts.Tracer, trace.ScopePhase, "sema.declare")
	declareClasses(prog, res, opts.Reporter)
	declareFuncs(prog, res, opts.Reporter)
	declareGlobalSlots(prog, res, opts.Reporter)
	done(fmt.Sprintf("classes=%d funcs=%d globals=%d",
		len(res.Classes), len(res.Funcs), len(res.Globals)))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done = trace.Begin(opts.Tracer, trace.ScopePhase, "sema.globals")
	checkGlobalInits(prog, res, opts.Reporter, names)
	done("")

	// Plain bodies first. They populate the instantiation cache as a side
	// effect, seeding the generic waves below.
	var plain []ast.FuncID
	for _, fid := range prog.FuncIDs() {
		decl := prog.Decls.Func(fid)
		sig := res.Sig(fid)
		if sig.IsGeneric() || sig.Imported || !decl.Body.IsValid() {
			continue
		}
		plain = append(plain, fid)
	}

	done = trace.Begin(opts.Tracer, trace.ScopePhase, "sema.bodies")
	if err := checkBodiesParallel(ctx, prog, res, opts, names, plainWork(plain)); err != nil {
		return nil, err
	}
	done(fmt.Sprintf("bodies=%d", len(plain)))

	done = trace.Begin(opts.Tracer, trace.ScopePhase, "sema.instantiate")
	waves := 0
	for {
		pending := pendingInstances(res)
		if len(pending) == 0 {
			break
		}
		if waves >= maxInstantiationWaves {
			decl := prog.Decls.Func(pending[0].Func)
			declErr(opts.Reporter, diag.UnresolvedGeneric, decl.Span,
				"generic instantiation of '%s' did not converge after %d waves",
				prog.Name(decl.Name), maxInstantiationWaves)
			break
		}
		waves++
		if err := checkBodiesParallel(ctx, prog, res, opts, names, instWork(pending)); err != nil {
			return nil, err
		}
	}
	done(fmt.Sprintf("instances=%d waves=%d", res.Insts.Len(), waves))

	return res, nil
}

// bodyWork names one body to check in a parallel wave.
type bodyWork struct {
	Func ast.FuncID
	Inst InstID
	Args []types.TypeID // nil for plain bodies
}

func plainWork(ids []ast.FuncID) []bodyWork {
	work := make([]bodyWork, len(ids))
	for i, fid := range ids {
		work[i] = bodyWork{Func: fid, Inst: NoInstID}
	}
	return work
}

func instWork(insts []Instance) []bodyWork {
	work := make([]bodyWork, len(insts))
	for i, inst := range insts {
		work[i] = bodyWork{Func: inst.Func, Inst: inst.ID, Args: inst.Args}
	}
	return work
}

// pendingInstances lists interned specializations that have no checked
// body yet, in deterministic order.
func pendingInstances(res *Result) []Instance {
	var pending []Instance
	for _, inst := range res.Insts.Ordered() {
		if _, done := res.Bodies[BodyKey{Func: inst.Func, Inst: inst.ID}]; done {
			continue
		}
		pending = append(pending, inst)
	}
	return pending
}

// checkBodiesParallel fans one wave out over a worker pool. Each worker
// reports into its own bag; bags replay into the caller's reporter in work
// order so output stays deterministic regardless of scheduling.
func checkBodiesParallel(ctx context.Context, prog *ast.Program, res *Result, opts Options, names wellKnown, work []bodyWork) error {
	if len(work) == 0 {
		return nil
	}

	bodies := make([]*FuncBody, len(work))
	bags := make([]*diag.Bag, len(work))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(opts.Jobs, len(work)))

	for i, w := range work {
		g.Go(func(i int, w bodyWork) func() error {
			return func() error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				bag := diag.NewBag(opts.MaxDiagnostics)
				bags[i] = bag
				bodies[i] = checkOneBody(prog, res, diag.BagReporter{Bag: bag}, names, w)
				return nil
			}
		}(i, w))
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, w := range work {
		replayBag(opts.Reporter, bags[i])
		res.Bodies[BodyKey{Func: w.Func, Inst: w.Inst}] = bodies[i]
	}
	return nil
}

func replayBag(r diag.Reporter, bag *diag.Bag) {
	if bag == nil {
		return
	}
	for _, d := range bag.Items() {
		r.Report(d.Code, d.Severity, d.Primary, d.Message, d.Notes)
	}
}

// checkOneBody checks a single function body or specialization. For a
// specialization the signature is substituted up front and type-parameter
// names bind to the instance arguments, so the body sees concrete types
// everywhere.
func checkOneBody(prog *ast.Program, res *Result, reporter diag.Reporter, names wellKnown, w bodyWork) *FuncBody {
	decl := prog.Decls.Func(w.Func)
	declared := res.Sig(w.Func)

	sig := declared
	var bind map[source.StringID]types.TypeID
	if w.Inst != NoInstID {
		byParam := make(map[types.TypeID]types.TypeID, len(w.Args))
		bind = make(map[source.StringID]types.TypeID, len(w.Args))
		for k, tp := range declared.TypeParams {
			byParam[tp] = w.Args[k]
			bind[decl.TypeParams[k]] = w.Args[k]
		}
		inst := FuncSig{
			Name:     declared.Name,
			Params:   make([]types.TypeID, len(declared.Params)),
			Result:   res.Types.Substitute(declared.Result, byParam),
			Imported: declared.Imported,
			Exported: declared.Exported,
		}
		for p, pt := range declared.Params {
			inst.Params[p] = res.Types.Substitute(pt, byParam)
		}
		sig = &inst
	}

	body := newFuncBody(w.Func, w.Inst)
	bc := &bodyChecker{
		prog:     prog,
		tn:       res.Types,
		reporter: reporter,
		res:      res,
		body:     body,
		sig:      sig,
		bind:     bind,
		names:    names,
	}

	// Parameters share the top-level scope with the body's own bindings,
	// so a top-level let cannot shadow a parameter.
	bc.pushScope()
	frame := &bc.scopes[0]
	for p, param := range decl.Params {
		if _, dup := frame.names[param.Name]; dup {
			continue
		}
		id := LocalID(len(body.Locals))
		body.Locals = append(body.Locals, LocalInfo{Name: param.Name, Type: sig.Params[p]})
		frame.names[param.Name] = id
	}

	if data, _ := prog.Stmts.Block(decl.Body); data != nil {
		bc.checkStmts(data.Stmts)
	} else {
		bc.checkStmt(decl.Body)
	}
	bc.popScope()

	if res.Types.Kind(sig.Result) != types.KindVoid && bc.returnStatus(decl.Body) == returnOpen {
		bc.errorf(diag.TypeMismatch, decl.Span,
			"missing return in function '%s'", prog.Name(decl.Name))
	}
	return body
}
