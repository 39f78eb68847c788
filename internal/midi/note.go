// Package midi converts transcribed note events into Standard MIDI File bytes
// and reads them back.
package midi

import "math"

// DefaultVelocity is used for notes whose velocity is absent (zero).
const DefaultVelocity = 64

// Note is a single transcribed note event.
type Note struct {
	// Pitch is the MIDI note number (0-127).
	Pitch int `json:"pitch"`
	// StartTime is the onset in seconds.
	StartTime float64 `json:"start_time"`
	// EndTime is the release in seconds. Must be greater than StartTime.
	EndTime float64 `json:"end_time"`
	// Velocity is the MIDI velocity (1-127). Zero means absent.
	Velocity int `json:"velocity,omitempty"`
}

// Length returns EndTime - StartTime.
func (n Note) Length() float64 {
	return n.EndTime - n.StartTime
}

// EffectiveVelocity returns the velocity to encode, substituting
// DefaultVelocity when absent.
func (n Note) EffectiveVelocity() int {
	if n.Velocity <= 0 {
		return DefaultVelocity
	}
	if n.Velocity > 127 {
		return 127
	}
	return n.Velocity
}

// NormalizeVelocity maps an integer velocity in [0,127] to the fractional
// [0,1] domain. Zero is treated as absent and maps to DefaultVelocity/127.
func NormalizeVelocity(v int) float64 {
	return float64(Note{Velocity: v}.EffectiveVelocity()) / 127
}

// NoteCount returns the number of notes.
func NoteCount(notes []Note) int {
	return len(notes)
}

// Duration returns the latest EndTime over all notes, or 0 if there are none.
func Duration(notes []Note) float64 {
	var d float64
	for _, n := range notes {
		d = math.Max(d, n.EndTime)
	}
	return d
}

// FilterByDuration returns the notes whose length is at most maxDuration.
// The comparison is inclusive. The input slice is not modified.
func FilterByDuration(notes []Note, maxDuration float64) []Note {
	kept := make([]Note, 0, len(notes))
	for _, n := range notes {
		if n.Length() <= maxDuration {
			kept = append(kept, n)
		}
	}
	return kept
}
