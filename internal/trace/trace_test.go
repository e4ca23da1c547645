package trace

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"off", LevelOff, false},
		{"phase", LevelPhase, false},
		{"PHASE", LevelPhase, false},
		{"detail", LevelDetail, false},
		{"verbose", LevelOff, true},
		{"", LevelOff, true},
	}
	for _, tc := range tests {
		got, err := ParseLevel(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseLevel(%q) err = %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestShouldEmit(t *testing.T) {
	tests := []struct {
		level Level
		scope Scope
		want  bool
	}{
		{LevelOff, ScopePhase, false},
		{LevelOff, ScopeFunc, false},
		{LevelPhase, ScopePhase, true},
		{LevelPhase, ScopeFunc, false},
		{LevelDetail, ScopePhase, true},
		{LevelDetail, ScopeFunc, true},
	}
	for _, tc := range tests {
		if got := tc.level.ShouldEmit(tc.scope); got != tc.want {
			t.Errorf("%v.ShouldEmit(%v) = %v", tc.level, tc.scope, got)
		}
	}
}

func TestBeginEnd(t *testing.T) {
	tr := NewCapture(0, LevelDetail)
	done := Begin(tr, ScopePhase, "check")
	done("3 functions")

	evs := tr.Events()
	if len(evs) != 2 {
		t.Fatalf("got %d events", len(evs))
	}
	if evs[0].Kind != KindBegin || evs[0].Name != "check" {
		t.Errorf("begin event = %+v", evs[0])
	}
	if evs[1].Kind != KindEnd || evs[1].Detail != "3 functions" {
		t.Errorf("end event = %+v", evs[1])
	}
	if evs[1].Elapsed < 0 {
		t.Errorf("elapsed = %v", evs[1].Elapsed)
	}
}

func TestScopeGating(t *testing.T) {
	tr := NewCapture(0, LevelPhase)
	Begin(tr, ScopeFunc, "lower add")("")
	Point(tr, ScopeFunc, "specialize", "")
	if n := len(tr.Events()); n != 0 {
		t.Errorf("function-scoped events leaked through phase level: %d", n)
	}
	Point(tr, ScopePhase, "link", "")
	if n := len(tr.Events()); n != 1 {
		t.Errorf("phase event count = %d", n)
	}
}

func TestCaptureKeepsMostRecent(t *testing.T) {
	tr := NewCapture(4, LevelPhase)
	for i := 1; i <= 6; i++ {
		Point(tr, ScopePhase, strconv.Itoa(i), "")
	}
	evs := tr.Events()
	if len(evs) != 4 {
		t.Fatalf("got %d events", len(evs))
	}
	for i, want := range []string{"3", "4", "5", "6"} {
		if evs[i].Name != want {
			t.Errorf("events[%d] = %q, want %q", i, evs[i].Name, want)
		}
	}
}

func TestStreamLines(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStream(&buf, LevelDetail)
	done := Begin(tr, ScopePhase, "lower")
	done("14 functions")

	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("output:\n%s", out)
	}
	if !strings.Contains(lines[0], "> lower") {
		t.Errorf("begin line %q", lines[0])
	}
	if !strings.Contains(lines[1], "< lower") || !strings.Contains(lines[1], "14 functions") {
		t.Errorf("end line %q", lines[1])
	}
}

func TestContextPropagation(t *testing.T) {
	if FromContext(context.Background()) != Nop {
		t.Error("missing tracer should resolve to Nop")
	}
	tr := NewCapture(0, LevelPhase)
	ctx := WithTracer(context.Background(), tr)
	if FromContext(ctx) != Tracer(tr) {
		t.Error("attached tracer lost")
	}
	if FromContext(WithTracer(context.Background(), nil)) != Nop {
		t.Error("nil tracer should resolve to Nop")
	}
}
