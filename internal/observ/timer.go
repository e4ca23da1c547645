// Package observ aggregates per-stage durations for one compilation,
// backing the --timings report. It complements tracing: trace streams
// events as they happen, a Timer keeps the totals.
package observ

import (
	"fmt"
	"time"
)

// Phase is one completed stage with an optional note ("14 functions",
// "cache hit").
type Phase struct {
	Name string
	Dur  time.Duration
	Note string
}

// Timer collects phases in the order they finish. Stages run
// sequentially, so it is not guarded.
type Timer struct {
	phases []Phase
}

func NewTimer() *Timer { return &Timer{phases: make([]Phase, 0, 8)} }

// Phase starts a stage clock; calling the returned stop records the
// elapsed time under name.
func (t *Timer) Phase(name string) func(note string) {
	start := time.Now()
	return func(note string) {
		t.phases = append(t.phases, Phase{Name: name, Dur: time.Since(start), Note: note})
	}
}

// Add records an externally measured duration, for work that did not
// run under this timer (a cache hit replaying stored artifacts).
func (t *Timer) Add(name string, d time.Duration, note string) {
	t.phases = append(t.phases, Phase{Name: name, Dur: d, Note: note})
}

// Summary renders the human-readable timing table.
func (t *Timer) Summary() string {
	report := t.Report()
	out := "timings:\n"
	for _, p := range report.Phases {
		out += fmt.Sprintf("  %-12s %8.2f ms", p.Name, p.DurationMS)
		if p.Note != "" {
			out += "  " + p.Note
		}
		out += "\n"
	}
	out += fmt.Sprintf("  %-12s %8.2f ms\n", "total", report.TotalMS)
	return out
}

// PhaseReport is the serializable form of one phase.
type PhaseReport struct {
	Name       string  `json:"name"`
	DurationMS float64 `json:"duration_ms"`
	Note       string  `json:"note,omitempty"`
}

// Report is the serializable aggregate.
type Report struct {
	TotalMS float64       `json:"total_ms"`
	Phases  []PhaseReport `json:"phases"`
}

func (t *Timer) Report() Report {
	if len(t.phases) == 0 {
		return Report{}
	}
	report := Report{Phases: make([]PhaseReport, len(t.phases))}
	var total time.Duration
	for i, phase := range t.phases {
		total += phase.Dur
		report.Phases[i] = PhaseReport{
			Name:       phase.Name,
			DurationMS: millis(phase.Dur),
			Note:       phase.Note,
		}
	}
	report.TotalMS = millis(total)
	return report
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
