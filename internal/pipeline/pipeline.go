// Package pipeline drives one compilation from a checked-out AST to a
// linked module record: semantic checking, memory planning, function
// lowering and final assembly. Language problems land in the result's
// diagnostic bag; the error return is reserved for cancellation and
// infrastructure failures.
//
// Lowering fans out across a worker pool. Each worker writes into its own
// slot of an indexed slice and collects diagnostics into a private bag, so
// the merged output is identical for any worker count.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"wasc/internal/ast"
	"wasc/internal/diag"
	"wasc/internal/layout"
	"wasc/internal/link"
	"wasc/internal/lower"
	"wasc/internal/observ"
	"wasc/internal/rt"
	"wasc/internal/sema"
	"wasc/internal/source"
	"wasc/internal/trace"
	"wasc/internal/wasm"
)

// Options configures one Run.
type Options struct {
	// Strategy picks the reclamation discipline lowered code cooperates
	// with. Empty means rt.DefaultStrategy.
	Strategy rt.Strategy

	// Target describes the address model. The zero value means the
	// wasm32 target.
	Target layout.Target

	// MinPages raises the initial memory size above the plan minimum.
	// MaxPages caps linear memory; zero leaves growth unbounded.
	MinPages uint32
	MaxPages uint32

	// Jobs bounds checking and lowering concurrency. Zero or negative
	// means GOMAXPROCS.
	Jobs int

	// CheckOnly stops after the frozen plan: no lowering, no module.
	CheckOnly bool

	// MaxDiagnostics caps the bag; zero means a default.
	MaxDiagnostics int

	// Timer, when set, accumulates per-stage wall time.
	Timer *observ.Timer
}

const defaultMaxDiagnostics = 256

// Result carries everything the stages produced. Module is nil unless
// every stage passed without an error diagnostic; the other fields are
// filled as far as the run got.
type Result struct {
	Module  *wasm.Module
	Bag     *diag.Bag
	Checked *sema.Result
	Plan    *layout.Plan
	Unit    *lower.Unit
}

// Run compiles prog. The returned Result is never nil and its Bag holds
// the diagnostics of every stage that ran, worst first after sorting by
// the caller. A non-nil error means the run was cut short by ctx or an
// internal failure, not by problems in the program.
func Run(ctx context.Context, prog *ast.Program, opts Options) (*Result, error) {
	if prog == nil {
		return &Result{Bag: diag.NewBag(1)}, errors.New("pipeline: nil program")
	}
	if opts.MaxDiagnostics <= 0 {
		opts.MaxDiagnostics = defaultMaxDiagnostics
	}
	if opts.Jobs <= 0 {
		opts.Jobs = runtime.GOMAXPROCS(0)
	}
	if opts.Strategy == "" {
		opts.Strategy = rt.DefaultStrategy
	}
	if opts.Target.PtrSize == 0 {
		opts.Target = layout.Wasm32()
	}

	tr := trace.FromContext(ctx)
	res := &Result{Bag: diag.NewBag(opts.MaxDiagnostics)}

	checked, err := runCheck(ctx, tr, prog, opts, res)
	if err != nil {
		return res, fmt.Errorf("check failed: %w", err)
	}
	res.Checked = checked
	if res.Bag.HasErrors() {
		return res, nil
	}

	eng, plan, ok := runPlan(tr, prog, checked, opts, res)
	if !ok {
		return res, nil
	}
	res.Plan = plan
	if opts.CheckOnly {
		return res, nil
	}

	unit, funcs, err := runLower(ctx, tr, prog, checked, eng, plan, opts, res)
	if err != nil {
		return res, fmt.Errorf("lower failed: %w", err)
	}
	res.Unit = unit
	if res.Bag.HasErrors() {
		return res, nil
	}

	m, ok := runLink(tr, prog, unit, plan, funcs, opts, res)
	if !ok {
		return res, nil
	}
	// A module that fails its own validator is a compiler bug, not a
	// program problem.
	if err := wasm.ValidateModule(m); err != nil {
		return res, fmt.Errorf("emitted module failed validation: %w", err)
	}
	res.Module = m
	return res, nil
}

// runCheck resolves declarations and types every body. Diagnostics go
// straight into the shared bag; sema serializes its own workers' output.
func runCheck(ctx context.Context, tr trace.Tracer, prog *ast.Program, opts Options, res *Result) (*sema.Result, error) {
	stop := stopwatch(opts.Timer, "check")
	defer stop("")
	done := trace.Begin(tr, trace.ScopePhase, "check")
	checked, err := sema.Check(ctx, prog, sema.Options{
		Reporter:       diag.BagReporter{Bag: res.Bag},
		Tracer:         tr,
		Jobs:           opts.Jobs,
		MaxDiagnostics: opts.MaxDiagnostics,
	})
	if err != nil {
		done("")
		return nil, err
	}
	done(fmt.Sprintf("classes=%d funcs=%d globals=%d",
		len(checked.Classes), len(checked.Funcs), len(checked.Globals)))
	return checked, nil
}

// runPlan sizes every class, places the static data image and freezes the
// plan so lowering workers can read it without coordination.
func runPlan(tr trace.Tracer, prog *ast.Program, checked *sema.Result, opts Options, res *Result) (*layout.Engine, *layout.Plan, bool) {
	stop := stopwatch(opts.Timer, "plan")
	defer stop("")
	done := trace.Begin(tr, trace.ScopePhase, "plan")

	eng, err := layout.NewEngine(opts.Target, checked.Types, checked.Classes)
	if err != nil {
		done("")
		reportLayout(res.Bag, err)
		return nil, nil, false
	}
	plan, err := layout.BuildPlan(prog, checked, eng)
	if err != nil {
		done("")
		reportLayout(res.Bag, err)
		return nil, nil, false
	}
	plan.Freeze()
	done(fmt.Sprintf("heap_base=%d pages=%d", plan.HeapBase(), plan.MinPages()))
	return eng, plan, true
}

// runLower lowers every defined function. Results land in an indexed
// slice; worker bags are replayed in task order after the group finishes
// so diagnostic order never depends on scheduling.
func runLower(ctx context.Context, tr trace.Tracer, prog *ast.Program, checked *sema.Result, eng *layout.Engine, plan *layout.Plan, opts Options, res *Result) (*lower.Unit, []wasm.Func, error) {
	stop := stopwatch(opts.Timer, "lower")
	defer stop("")
	done := trace.Begin(tr, trace.ScopePhase, "lower")

	unit := lower.NewUnit(prog, checked, eng, plan, rt.NewBinder(opts.Strategy))
	n := unit.NumFuncs()
	funcs := make([]wasm.Func, n)
	bags := make([]*diag.Bag, n)

	if n > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(min(opts.Jobs, n))
		for i := range funcs {
			g.Go(func(i int) func() error {
				return func() error {
					select {
					case <-gctx.Done():
						return gctx.Err()
					default:
					}
					bag := diag.NewBag(opts.MaxDiagnostics)
					bags[i] = bag
					fdone := trace.Begin(tr, trace.ScopeFunc, unit.Name(i))
					fn, ok := unit.Func(i, diag.BagReporter{Bag: bag})
					fdone("")
					if ok {
						funcs[i] = fn
					}
					return nil
				}
			}(i))
		}
		if err := g.Wait(); err != nil {
			done("")
			return unit, nil, err
		}
	}
	for _, bag := range bags {
		res.Bag.Merge(bag)
	}
	done(fmt.Sprintf("funcs=%d", n))
	return unit, funcs, nil
}

// runLink assembles the module record from the lowered pieces.
func runLink(tr trace.Tracer, prog *ast.Program, unit *lower.Unit, plan *layout.Plan, funcs []wasm.Func, opts Options, res *Result) (*wasm.Module, bool) {
	stop := stopwatch(opts.Timer, "link")
	defer stop("")
	done := trace.Begin(tr, trace.ScopePhase, "link")

	m, ok := link.Build(prog, unit, plan, funcs, link.Options{
		MinPages: opts.MinPages,
		MaxPages: opts.MaxPages,
	}, diag.BagReporter{Bag: res.Bag})
	if !ok {
		done("")
		return nil, false
	}
	done(fmt.Sprintf("imports=%d funcs=%d", len(m.Imports), len(m.Funcs)))
	return m, true
}

// reportLayout converts the layout package's typed error into a
// module-level diagnostic. Overflow is a whole-program condition, so the
// diagnostic carries no span.
func reportLayout(bag *diag.Bag, err error) {
	var le *layout.LayoutError
	if errors.As(err, &le) {
		diag.ReportError(diag.BagReporter{Bag: bag}, diag.LayoutOverflow, source.Span{}, le.Error()).Emit()
		return
	}
	diag.ReportError(diag.BagReporter{Bag: bag}, diag.LayoutOverflow, source.Span{}, err.Error()).Emit()
}

func stopwatch(t *observ.Timer, name string) func(string) {
	if t == nil {
		return func(string) {}
	}
	return t.Phase(name)
}
