// Package driver is the top-level compile entry point: it keys the
// artifact cache off the program content, runs the pipeline on a miss and
// encodes the final artifacts.
package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"wasc/internal/ast"
	"wasc/internal/diag"
	"wasc/internal/layout"
	"wasc/internal/link"
	"wasc/internal/observ"
	"wasc/internal/pipeline"
	"wasc/internal/project"
	"wasc/internal/rt"
	"wasc/internal/trace"
)

// Request describes one compilation.
type Request struct {
	Prog *ast.Program

	// Strategy picks the reclamation discipline; empty means the
	// default.
	Strategy rt.Strategy

	// Target overrides the layout target; the zero value means Wasm32.
	Target layout.Target

	// MinPages raises the initial memory size above the plan minimum.
	// MaxPages caps linear memory; zero leaves growth unbounded.
	MinPages uint32
	MaxPages uint32

	// Jobs bounds worker concurrency; zero means GOMAXPROCS. Jobs never
	// changes the output, so it stays out of the cache key.
	Jobs int

	// MaxDiagnostics caps the bag; zero means a default.
	MaxDiagnostics int

	// EmitWAT and EmitNameMap request the side artifacts.
	EmitWAT     bool
	EmitNameMap bool

	// Cache, when set, is consulted before compiling and updated after a
	// clean build.
	Cache *Cache

	// Timer, when set, accumulates per-stage wall time.
	Timer *observ.Timer
}

// Artifacts is what a clean compilation hands back.
type Artifacts struct {
	Module  []byte
	WAT     string
	NameMap []link.NameEntry
}

// Result pairs the artifacts with the diagnostics of the run. Module is
// empty when any stage reported an error.
type Result struct {
	Artifacts Artifacts
	Bag       *diag.Bag
	CacheHit  bool
}

const defaultMaxDiagnostics = 256

// Compile runs one compilation end to end. Language problems land in the
// result's bag; the error return is reserved for cancellation and
// infrastructure failures. A broken cache never fails the build: read and
// write problems degrade to compiling from scratch.
func Compile(ctx context.Context, req Request) (*Result, error) {
	if req.Prog == nil {
		return nil, errors.New("driver: nil program")
	}
	if req.Strategy == "" {
		req.Strategy = rt.DefaultStrategy
	}
	if req.Target.PtrSize == 0 {
		req.Target = layout.Wasm32()
	}
	if req.MaxDiagnostics <= 0 {
		req.MaxDiagnostics = defaultMaxDiagnostics
	}
	tr := trace.FromContext(ctx)

	var key project.Digest
	if req.Cache != nil {
		k, err := fingerprint(req)
		if err != nil {
			return nil, fmt.Errorf("fingerprint failed: %w", err)
		}
		key = k

		start := time.Now()
		if payload, ok, err := req.Cache.Get(key); err == nil && ok {
			trace.Point(tr, trace.ScopePhase, "cache", "hit")
			if req.Timer != nil {
				req.Timer.Add("cache", time.Since(start), "hit")
			}
			return &Result{
				Artifacts: Artifacts{
					Module:  payload.Module,
					WAT:     payload.WAT,
					NameMap: payload.NameMap,
				},
				Bag:      diag.NewBag(req.MaxDiagnostics),
				CacheHit: true,
			}, nil
		}
		trace.Point(tr, trace.ScopePhase, "cache", "miss")
	}

	res, err := pipeline.Run(ctx, req.Prog, pipeline.Options{
		Strategy:       req.Strategy,
		Target:         req.Target,
		MinPages:       req.MinPages,
		MaxPages:       req.MaxPages,
		Jobs:           req.Jobs,
		MaxDiagnostics: req.MaxDiagnostics,
		Timer:          req.Timer,
	})
	if res != nil {
		res.Bag.Sort()
		res.Bag.Dedup()
	}
	if err != nil {
		if res == nil {
			return nil, err
		}
		return &Result{Bag: res.Bag}, err
	}
	if res.Module == nil {
		return &Result{Bag: res.Bag}, nil
	}

	stop := stopwatch(req.Timer, "emit")
	done := trace.Begin(tr, trace.ScopePhase, "emit")
	art, err := link.Emit(res.Module, req.EmitWAT, req.EmitNameMap)
	if err != nil {
		done("")
		stop("")
		return &Result{Bag: res.Bag}, fmt.Errorf("emit failed: %w", err)
	}
	done(fmt.Sprintf("bytes=%d", len(art.Module)))
	stop("")

	if req.Cache != nil {
		_ = req.Cache.Put(key, &cachePayload{
			Schema:  cacheSchemaVersion,
			Module:  art.Module,
			WAT:     art.WAT,
			NameMap: art.NameMap,
		})
	}
	return &Result{
		Artifacts: Artifacts{Module: art.Module, WAT: art.WAT, NameMap: art.NameMap},
		Bag:       res.Bag,
	}, nil
}

// fingerprint derives the cache key: the content hash of the encoded
// program combined with a hash of every option that shapes the output.
func fingerprint(req Request) (project.Digest, error) {
	var buf bytes.Buffer
	if err := ast.EncodeProgram(&buf, req.Prog); err != nil {
		return project.Digest{}, err
	}
	content := project.HashBytes(buf.Bytes())
	opts := project.HashBytes(fmt.Appendf(nil, "schema=%d gc=%s target=%v min=%d max=%d wat=%t map=%t",
		cacheSchemaVersion, req.Strategy, req.Target, req.MinPages, req.MaxPages, req.EmitWAT, req.EmitNameMap))
	return project.Combine(content, opts), nil
}

func stopwatch(t *observ.Timer, name string) func(string) {
	if t == nil {
		return func(string) {}
	}
	return t.Phase(name)
}
