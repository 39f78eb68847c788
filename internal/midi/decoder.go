package midi

import (
	"bytes"
	"fmt"
	"sort"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// Decode reads a Standard MIDI File and returns its notes sorted by onset.
// Only the first tempo event is honored; files with tempo changes decode with
// skewed timings.
func Decode(data []byte) (notes []Note, err error) {
	// smf can panic on malformed input
	defer func() {
		if r := recover(); r != nil {
			notes = nil
			err = fmt.Errorf("%w: %v", ErrDecode, r)
		}
	}()

	file, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	tpq := float64(TicksPerQuarter)
	if mt, ok := file.TimeFormat.(smf.MetricTicks); ok && mt > 0 {
		tpq = float64(mt)
	}

	bpm := 0.0
	type open struct {
		tick     uint64
		velocity uint8
	}

	for _, track := range file.Tracks {
		pending := make(map[uint8][]open)
		var tick uint64
		for _, ev := range track {
			tick += uint64(ev.Delta)
			raw := []byte(ev.Message)

			if bpm == 0 {
				if tempo, ok := parseTempo(raw); ok {
					bpm = tempo
				}
			}

			msg := gomidi.Message(raw)
			var ch, key, vel uint8
			switch {
			case msg.GetNoteOn(&ch, &key, &vel) && vel > 0:
				pending[key] = append(pending[key], open{tick: tick, velocity: vel})
			case msg.GetNoteOff(&ch, &key, &vel), msg.GetNoteOn(&ch, &key, &vel):
				queue := pending[key]
				if len(queue) == 0 {
					continue
				}
				start := queue[0]
				pending[key] = queue[1:]
				notes = append(notes, Note{
					Pitch:     int(key),
					StartTime: float64(start.tick),
					EndTime:   float64(tick),
					Velocity:  int(start.velocity),
				})
			}
		}
	}

	if bpm == 0 {
		bpm = DefaultBPM
	}
	secondsPerTick := 60 / (bpm * tpq)
	for i := range notes {
		notes[i].StartTime *= secondsPerTick
		notes[i].EndTime *= secondsPerTick
	}

	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].StartTime < notes[j].StartTime
	})
	return notes, nil
}

// parseTempo extracts beats per minute from a raw set-tempo meta event.
func parseTempo(raw []byte) (float64, bool) {
	if len(raw) < 6 || raw[0] != 0xFF || raw[1] != 0x51 || raw[2] != 0x03 {
		return 0, false
	}
	usPerQuarter := uint32(raw[3])<<16 | uint32(raw[4])<<8 | uint32(raw[5])
	if usPerQuarter == 0 {
		return 0, false
	}
	return 60_000_000 / float64(usPerQuarter), true
}
