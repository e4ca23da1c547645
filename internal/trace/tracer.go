package trace

import "time"

// Tracer receives compilation events. Implementations must be safe for
// concurrent Emit: function-scoped events arrive from parallel lowering
// workers.
type Tracer interface {
	Emit(ev *Event)

	// Flush ensures buffered events are written.
	Flush() error

	// Close flushes and releases resources.
	Close() error

	Level() Level

	// Enabled reports whether any events are observed at all.
	Enabled() bool
}

// Begin emits a begin event and returns the matching end closure. The
// closure stamps the elapsed time, so the pair brackets the span even
// when other goroutines interleave events between them.
func Begin(t Tracer, scope Scope, name string) func(detail string) {
	if t == nil || !t.Enabled() || !t.Level().ShouldEmit(scope) {
		return func(string) {}
	}
	start := time.Now()
	t.Emit(&Event{Time: start, Kind: KindBegin, Scope: scope, Name: name})
	return func(detail string) {
		t.Emit(&Event{
			Time:    time.Now(),
			Kind:    KindEnd,
			Scope:   scope,
			Name:    name,
			Detail:  detail,
			Elapsed: time.Since(start),
		})
	}
}

// Point emits an instant event.
func Point(t Tracer, scope Scope, name, detail string) {
	if t == nil || !t.Enabled() || !t.Level().ShouldEmit(scope) {
		return
	}
	t.Emit(&Event{Time: time.Now(), Kind: KindPoint, Scope: scope, Name: name, Detail: detail})
}
