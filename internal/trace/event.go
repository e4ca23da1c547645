package trace

import "time"

// Kind distinguishes paired begin/end events from instants.
type Kind uint8

const (
	KindBegin Kind = iota + 1
	KindEnd
	KindPoint
)

func (k Kind) String() string {
	switch k {
	case KindBegin:
		return "begin"
	case KindEnd:
		return "end"
	case KindPoint:
		return "point"
	default:
		return "unknown"
	}
}

// Scope is the granularity of an event.
type Scope uint8

const (
	// ScopePhase covers pipeline stages: check, plan, lower, link, emit.
	ScopePhase Scope = iota + 1
	// ScopeFunc covers one function's work inside a stage.
	ScopeFunc
)

func (s Scope) String() string {
	switch s {
	case ScopePhase:
		return "phase"
	case ScopeFunc:
		return "func"
	default:
		return "unknown"
	}
}

// Event is one trace record. End events carry the span's Elapsed;
// everything else leaves it zero.
type Event struct {
	Time    time.Time
	Kind    Kind
	Scope   Scope
	Name    string
	Detail  string
	Elapsed time.Duration
}
