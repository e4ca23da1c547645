package trace

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Stream writes one text line per event as it arrives. Timestamps are
// relative to the tracer's creation. Write errors are swallowed: a
// broken trace sink must not fail the compilation.
type Stream struct {
	mu    sync.Mutex
	w     io.Writer
	level Level
	start time.Time
}

func NewStream(w io.Writer, level Level) *Stream {
	return &Stream{w: w, level: level, start: time.Now()}
}

func (t *Stream) Emit(ev *Event) {
	if !t.level.ShouldEmit(ev.Scope) {
		return
	}
	line := t.format(ev)
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = io.WriteString(t.w, line)
}

func (t *Stream) format(ev *Event) string {
	at := float64(ev.Time.Sub(t.start)) / float64(time.Millisecond)
	var mark string
	switch ev.Kind {
	case KindBegin:
		mark = ">"
	case KindEnd:
		mark = "<"
	default:
		mark = "."
	}
	line := fmt.Sprintf("%9.3fms %s %s", at, mark, ev.Name)
	if ev.Kind == KindEnd {
		line += fmt.Sprintf(" %.3fms", float64(ev.Elapsed)/float64(time.Millisecond))
	}
	if ev.Detail != "" {
		line += " " + ev.Detail
	}
	return line + "\n"
}

func (t *Stream) Flush() error {
	if f, ok := t.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

func (t *Stream) Close() error {
	if err := t.Flush(); err != nil {
		return err
	}
	if c, ok := t.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (t *Stream) Level() Level  { return t.level }
func (t *Stream) Enabled() bool { return t.level > LevelOff }
