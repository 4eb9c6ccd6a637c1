package melody

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	stepSep  = ","
	chordSep = "+"
	sentinel = "|"
)

var (
	ErrEmpty            = errors.New("melody is empty")
	ErrInvalidTempo     = errors.New("tempo must be a positive integer")
	ErrMalformedCommand = errors.New("malformed command")
)

// UnknownNoteError is returned by a strict Encoder for a token outside the
// palette.
type UnknownNoteError struct {
	Token string
}

func (e *UnknownNoteError) Error() string {
	return fmt.Sprintf("unknown note %q", e.Token)
}

// Encoder turns melody text into steps.
//
// The zero value is lenient: unknown chord members add nothing to their
// step, and an unknown lone token is dropped. With Strict set, any unknown
// token is an error.
type Encoder struct {
	Strict bool
}

// Parse splits text on "," into steps and each step on "+" into notes.
func (e Encoder) Parse(text string) (Melody, error) {
	if text == "" {
		return nil, ErrEmpty
	}
	var m Melody
	for _, tok := range strings.Split(text, stepSep) {
		if !strings.Contains(tok, chordSep) {
			n, ok := ParseNote(tok)
			if !ok {
				if e.Strict {
					return nil, &UnknownNoteError{Token: tok}
				}
				continue
			}
			m = append(m, Step(n))
			continue
		}
		// members are ORed, so a repeated note strikes its bell once
		var s Step
		for _, sub := range strings.Split(tok, chordSep) {
			n, ok := ParseNote(sub)
			if !ok {
				if e.Strict {
					return nil, &UnknownNoteError{Token: sub}
				}
				continue
			}
			s |= Step(n)
		}
		m = append(m, s)
	}
	if len(m) == 0 {
		return nil, ErrEmpty
	}
	return m, nil
}

// Encode parses text and attaches tempo.
func (e Encoder) Encode(text string, tempo int) (Command, error) {
	if tempo <= 0 {
		return Command{}, ErrInvalidTempo
	}
	m, err := e.Parse(text)
	if err != nil {
		return Command{}, err
	}
	return Command{Tempo: tempo, Steps: m}, nil
}

// Encode uses the lenient Encoder.
func Encode(text string, tempo int) (Command, error) {
	return Encoder{}.Encode(text, tempo)
}

// Command is one playback request for the device.
type Command struct {
	Tempo int
	Steps Melody
}

// StopCommand silences the device while keeping tempo.
func StopCommand(tempo int) Command {
	return Command{Tempo: tempo, Steps: Melody{Step(Rest)}}
}

// String renders the wire form: tempo,step,...,step|
func (c Command) String() string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(c.Tempo))
	for _, s := range c.Steps {
		b.WriteString(stepSep)
		b.WriteString(strconv.Itoa(int(s)))
	}
	b.WriteString(sentinel)
	return b.String()
}

func (c Command) Bytes() []byte {
	return []byte(c.String())
}

// ParseCommand reads a wire command the way the firmware does.
func ParseCommand(wire string) (Command, error) {
	body, ok := strings.CutSuffix(wire, sentinel)
	if !ok {
		return Command{}, fmt.Errorf("%w: missing %q terminator", ErrMalformedCommand, sentinel)
	}
	fields := strings.Split(body, stepSep)
	if len(fields) < 2 {
		return Command{}, fmt.Errorf("%w: no steps", ErrMalformedCommand)
	}
	tempo, err := strconv.Atoi(fields[0])
	if err != nil || tempo <= 0 {
		return Command{}, fmt.Errorf("%w: bad tempo %q", ErrMalformedCommand, fields[0])
	}
	steps := make(Melody, 0, len(fields)-1)
	for _, f := range fields[1:] {
		v, err := strconv.ParseUint(f, 10, 8)
		if err != nil {
			return Command{}, fmt.Errorf("%w: bad step %q", ErrMalformedCommand, f)
		}
		steps = append(steps, Step(v))
	}
	return Command{Tempo: tempo, Steps: steps}, nil
}
