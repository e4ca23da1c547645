package trace

import "sync"

// Capture keeps the most recent events in memory. Tests use it to
// assert which stages ran; a bounded buffer keeps detail-level tracing
// of large programs from growing without limit.
type Capture struct {
	mu     sync.Mutex
	level  Level
	events []Event
	head   int
	full   bool
}

const defaultCaptureSize = 4096

// NewCapture keeps the last capacity events; capacity <= 0 uses the
// default.
func NewCapture(capacity int, level Level) *Capture {
	if capacity <= 0 {
		capacity = defaultCaptureSize
	}
	return &Capture{level: level, events: make([]Event, capacity)}
}

func (t *Capture) Emit(ev *Event) {
	if !t.level.ShouldEmit(ev.Scope) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events[t.head] = *ev
	t.head++
	if t.head == len(t.events) {
		t.head = 0
		t.full = true
	}
}

// Events returns the captured events, oldest first.
func (t *Capture) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.full {
		out := make([]Event, t.head)
		copy(out, t.events[:t.head])
		return out
	}
	out := make([]Event, 0, len(t.events))
	out = append(out, t.events[t.head:]...)
	out = append(out, t.events[:t.head]...)
	return out
}

func (t *Capture) Flush() error  { return nil }
func (t *Capture) Close() error  { return nil }
func (t *Capture) Level() Level  { return t.level }
func (t *Capture) Enabled() bool { return t.level > LevelOff }
