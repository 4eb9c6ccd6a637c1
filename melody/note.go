// Package melody encodes glockenspiel melodies into the device command
// format and parses that format back.
package melody

import "strings"

// Note is one bell of the glockenspiel. Each bell owns a single bit so that a
// chord is the bitwise OR of its notes.
type Note uint8

const (
	Rest Note = 0
	C    Note = 1 << (iota - 1)
	D
	E
	F
	G
	A
	B
	C2
)

// Palette lists the struck notes from lowest to highest bell.
var Palette = []Note{C, D, E, F, G, A, B, C2}

var noteNames = map[string]Note{
	"R":  Rest,
	"C":  C,
	"D":  D,
	"E":  E,
	"F":  F,
	"G":  G,
	"A":  A,
	"B":  B,
	"C2": C2,
}

// ParseNote looks up a palette name. Matching is exact and case-sensitive.
func ParseNote(name string) (Note, bool) {
	n, ok := noteNames[name]
	return n, ok
}

func (n Note) String() string {
	switch n {
	case Rest:
		return "R"
	case C:
		return "C"
	case D:
		return "D"
	case E:
		return "E"
	case F:
		return "F"
	case G:
		return "G"
	case A:
		return "A"
	case B:
		return "B"
	case C2:
		return "C2"
	}
	return "?"
}

// Step is the wire weight of one melody element: a single note or a chord.
type Step uint8

// Chord combines notes into one step.
func Chord(notes ...Note) Step {
	var s Step
	for _, n := range notes {
		s |= Step(n)
	}
	return s
}

// Notes decodes the struck bells of a step, lowest first. A rest has none.
func (s Step) Notes() []Note {
	var out []Note
	for _, n := range Palette {
		if s&Step(n) != 0 {
			out = append(out, n)
		}
	}
	return out
}

// String renders the step as melody text, e.g. "C+E" or "R".
func (s Step) String() string {
	notes := s.Notes()
	if len(notes) == 0 {
		return Rest.String()
	}
	names := make([]string, len(notes))
	for i, n := range notes {
		names[i] = n.String()
	}
	return strings.Join(names, "+")
}

// Melody is an ordered list of steps.
type Melody []Step

// String renders canonical melody text that Parse accepts.
func (m Melody) String() string {
	parts := make([]string, len(m))
	for i, s := range m {
		parts[i] = s.String()
	}
	return strings.Join(parts, ",")
}
