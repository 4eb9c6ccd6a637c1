package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/mil-ad/glockctl/melody"
)

// The palette spans C4 (60) to C5 (72).
const (
	lowKey  = 60
	highKey = 72
)

type noteOnset struct {
	AtMicros int64
	Key      uint8
}

// readOnsets collects note-on events of all tracks with absolute times.
func readOnsets(r io.Reader) (onsets []noteOnset, e error) {
	// smf panics on some malformed files
	defer func() {
		if rec := recover(); rec != nil {
			e = fmt.Errorf("parse midi: %v", rec)
		}
	}()

	s, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("parse midi: %w", err)
	}
	for _, track := range s.Tracks {
		var absTicks int64
		for _, ev := range track {
			absTicks += int64(ev.Delta)
			var ch, key, vel uint8
			if midi.Message(ev.Message).GetNoteStart(&ch, &key, &vel) {
				onsets = append(onsets, noteOnset{AtMicros: s.TimeAt(absTicks), Key: key})
			}
		}
	}
	return onsets, nil
}

// keyNote folds key into the palette octave. Accidentals have no bell.
func keyNote(key uint8) (melody.Note, bool) {
	k := int(key)
	for k < lowKey {
		k += 12
	}
	for k > highKey {
		k -= 12
	}
	switch k - lowKey {
	case 0:
		return melody.C, true
	case 2:
		return melody.D, true
	case 4:
		return melody.E, true
	case 5:
		return melody.F, true
	case 7:
		return melody.G, true
	case 9:
		return melody.A, true
	case 11:
		return melody.B, true
	case 12:
		return melody.C2, true
	}
	return melody.Rest, false
}

// quantize places onsets on a one-beat grid at tempo. Onsets sharing a slot
// form a chord; empty slots become rests.
func quantize(onsets []noteOnset, tempo int) (melody.Melody, error) {
	if tempo <= 0 {
		return nil, melody.ErrInvalidTempo
	}
	if len(onsets) == 0 {
		return nil, melody.ErrEmpty
	}
	sort.SliceStable(onsets, func(i, j int) bool { return onsets[i].AtMicros < onsets[j].AtMicros })

	beat := 60e6 / float64(tempo)
	var origin int64
	started := false
	steps := make(map[int]melody.Step)
	last := -1
	skipped := 0
	for _, o := range onsets {
		n, ok := keyNote(o.Key)
		if !ok {
			skipped++
			continue
		}
		// the grid starts at the first note that has a bell
		if !started {
			origin, started = o.AtMicros, true
		}
		slot := int(math.Round(float64(o.AtMicros-origin) / beat))
		steps[slot] |= melody.Step(n)
		if slot > last {
			last = slot
		}
	}
	if skipped > 0 {
		logger.Warn("import: dropped notes without a bell", "count", skipped)
	}
	if last < 0 {
		return nil, melody.ErrEmpty
	}
	m := make(melody.Melody, last+1)
	for slot, s := range steps {
		m[slot] = s
	}
	return m, nil
}

func importMIDI(r io.Reader, tempo int) (melody.Melody, error) {
	onsets, err := readOnsets(r)
	if err != nil {
		return nil, err
	}
	m, err := quantize(onsets, tempo)
	if errors.Is(err, melody.ErrEmpty) {
		return nil, fmt.Errorf("no playable notes: %w", err)
	}
	return m, err
}
