package source

import (
	"fmt"
)

// Span addresses a half-open byte range [Start, End) inside a source file.
// The front end records spans when it serializes the input tree; the
// compiler itself never reads source text and only carries spans through
// to diagnostics and the name map.
type Span struct {
	File  FileID
	Start uint32
	End   uint32
}

func (s Span) Empty() bool {
	return s.Start == s.End
}

func (s Span) Len() uint32 {
	return s.End - s.Start
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d-%d", s.File, s.Start, s.End)
}

// Cover widens s until it also encloses other. Spans from different files
// do not mix; the receiver wins.
func (s Span) Cover(other Span) Span {
	if s.File != other.File {
		return s
	}
	if other.Start < s.Start {
		s.Start = other.Start
	}
	if other.End > s.End {
		s.End = other.End
	}
	return s
}
