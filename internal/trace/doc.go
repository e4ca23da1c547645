// Package trace is the compiler's tracing subsystem. A Tracer receives
// events at stage boundaries (check, plan, lower, link, emit) and, at
// the detail level, for individual functions inside a stage. The
// pipeline reads its tracer from the context; Nop makes every call
// free when tracing is off.
//
// Two implementations ship: Stream writes text lines to a writer as
// events arrive, Capture keeps the most recent events in memory for
// inspection after the fact.
//
//	ctx = trace.WithTracer(ctx, tracer)
//	t := trace.FromContext(ctx)
//
//	done := trace.Begin(t, trace.ScopePhase, "check")
//	defer done("")
package trace
