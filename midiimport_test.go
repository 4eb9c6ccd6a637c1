package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mil-ad/glockctl/melody"
)

func TestKeyNote(t *testing.T) {
	cases := map[uint8]melody.Note{
		60: melody.C,
		62: melody.D,
		64: melody.E,
		65: melody.F,
		67: melody.G,
		69: melody.A,
		71: melody.B,
		72: melody.C2,
		48: melody.C,  // folded up
		79: melody.G,  // folded down
		84: melody.C2, // C6 lands on the top bell
	}
	for key, want := range cases {
		got, ok := keyNote(key)
		assert.True(t, ok, "key %d", key)
		assert.Equal(t, want, got, "key %d", key)
	}

	_, ok := keyNote(61)
	assert.False(t, ok)
}

func TestQuantize(t *testing.T) {
	// 120 bpm: one beat is 500ms
	onsets := []noteOnset{
		{AtMicros: 1_000_000, Key: 67},
		{AtMicros: 1_000_000, Key: 71},
		{AtMicros: 1_510_000, Key: 64},
		{AtMicros: 2_990_000, Key: 60},
		{AtMicros: 3_000_000, Key: 61}, // no bell
	}
	m, err := quantize(onsets, 120)
	require.NoError(t, err)
	assert.Equal(t, "G+B,E,R,R,C", m.String())

	cmd, err := melody.Encode(m.String(), 120)
	require.NoError(t, err)
	assert.Equal(t, "120,80,4,0,0,1|", cmd.String())
}

func TestQuantizeIgnoresLeadingAccidentals(t *testing.T) {
	// 120 bpm: the F# a second before the first bell adds no rests
	onsets := []noteOnset{
		{AtMicros: 0, Key: 66},
		{AtMicros: 1_000_000, Key: 60},
		{AtMicros: 1_500_000, Key: 62},
	}
	m, err := quantize(onsets, 120)
	require.NoError(t, err)
	assert.Equal(t, "C,D", m.String())
}

func TestQuantizeNothingPlayable(t *testing.T) {
	_, err := quantize(nil, 120)
	assert.ErrorIs(t, err, melody.ErrEmpty)

	_, err = quantize([]noteOnset{{Key: 61}}, 120)
	assert.ErrorIs(t, err, melody.ErrEmpty)

	_, err = quantize([]noteOnset{{Key: 60}}, 0)
	assert.ErrorIs(t, err, melody.ErrInvalidTempo)
}

func TestImportRejectsGarbage(t *testing.T) {
	_, err := importMIDI(strings.NewReader("not a midi file"), 120)
	assert.Error(t, err)
}
