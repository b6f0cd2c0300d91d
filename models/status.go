package models

import (
	"fmt"
	"strings"

	"github.com/mgutz/ansi"
)

var chSame = ansi.ColorCode("default:default")
var chNew = ansi.ColorCode("default+bu:default")

// StatusDiff renders the registers changed by each executed instruction,
// for register tracing.
type StatusDiff struct {
	Color bool

	names []string
	old   []uint32
	valid bool
}

func NewStatusDiff(names []string) *StatusDiff {
	return &StatusDiff{names: names, old: make([]uint32, len(names))}
}

// Diff returns one line per register changed since the last call, or "" when
// nothing changed. The first call reports only nonzero registers.
func (s *StatusDiff) Diff(regs []uint32) string {
	var out []string
	for i, v := range regs {
		if i >= len(s.old) {
			break
		}
		if v == s.old[i] && (s.valid || v == 0) {
			continue
		}
		var line string
		if s.Color {
			line = fmt.Sprintf("%4s %s0x%08x%s => %s0x%08x%s",
				s.names[i], chSame, s.old[i], ansi.Reset, chNew, v, ansi.Reset)
		} else {
			line = fmt.Sprintf("%4s 0x%08x => 0x%08x", s.names[i], s.old[i], v)
		}
		out = append(out, line)
		s.old[i] = v
	}
	s.valid = true
	return strings.Join(out, "\n")
}
