package midi

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	// TicksPerQuarter is the SMF resolution used for every encoded file.
	TicksPerQuarter = 480
	// DefaultBPM is the single tempo written at tick 0.
	DefaultBPM = 120.0

	ticksPerSecond = TicksPerQuarter * DefaultBPM / 60
	channel        = 0
)

// Static errors for encoding.
var (
	// ErrEncode is returned when notes cannot be written as MIDI.
	ErrEncode = errors.New("midi: encode failed")
	// ErrInvalidNote is returned for notes with an out-of-range pitch or a
	// non-positive length.
	ErrInvalidNote = errors.New("midi: invalid note")
	// ErrDecode is returned when a byte stream is not a readable SMF.
	ErrDecode = errors.New("midi: decode failed")
)

// Stats describes an encoded file.
type Stats struct {
	// NoteCount is the number of notes written.
	NoteCount int
	// Dropped is the number of notes removed by the duration filter.
	Dropped int
	// Duration is the end of the last written note in seconds.
	Duration float64
}

type timedMessage struct {
	tick   uint32
	noteOn bool
	msg    gomidi.Message
}

// Encode writes notes as a single-track Standard MIDI File. When maxDuration
// is non-nil, notes longer than *maxDuration are dropped first. Overlapping
// notes of the same pitch are written as-is.
func Encode(notes []Note, maxDuration *float64) ([]byte, Stats, error) {
	kept := notes
	if maxDuration != nil {
		kept = FilterByDuration(notes, *maxDuration)
	}

	for i, n := range kept {
		if n.Pitch < 0 || n.Pitch > 127 || !(n.EndTime > n.StartTime) {
			return nil, Stats{}, fmt.Errorf("%w: %w: index %d pitch=%d start=%.3f end=%.3f",
				ErrEncode, ErrInvalidNote, i, n.Pitch, n.StartTime, n.EndTime)
		}
	}

	events := make([]timedMessage, 0, len(kept)*2)
	for _, n := range kept {
		key := uint8(n.Pitch)
		onTick := secondsToTicks(n.StartTime)
		// Every note sounds for at least one tick.
		offTick := max(secondsToTicks(n.EndTime), onTick+1)
		events = append(events,
			timedMessage{tick: onTick, noteOn: true, msg: gomidi.NoteOn(channel, key, uint8(n.EffectiveVelocity()))},
			timedMessage{tick: offTick, msg: gomidi.NoteOff(channel, key)},
		)
	}

	// Releases sort ahead of onsets on the same tick so repeated notes re-trigger.
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].tick != events[j].tick {
			return events[i].tick < events[j].tick
		}
		return !events[i].noteOn && events[j].noteOn
	})

	var track smf.Track
	track.Add(0, smf.MetaTempo(DefaultBPM))
	track.Add(0, smf.MetaMeter(4, 4))

	var last uint32
	for _, ev := range events {
		track.Add(ev.tick-last, ev.msg)
		last = ev.tick
	}
	track.Close(0)

	file := smf.New()
	file.TimeFormat = smf.MetricTicks(TicksPerQuarter)
	if err := file.Add(track); err != nil {
		return nil, Stats{}, fmt.Errorf("%w: add track: %w", ErrEncode, err)
	}

	var buf bytes.Buffer
	if _, err := file.WriteTo(&buf); err != nil {
		return nil, Stats{}, fmt.Errorf("%w: write: %w", ErrEncode, err)
	}

	return buf.Bytes(), Stats{
		NoteCount: NoteCount(kept),
		Dropped:   len(notes) - len(kept),
		Duration:  Duration(kept),
	}, nil
}

func secondsToTicks(sec float64) uint32 {
	if sec <= 0 {
		return 0
	}
	return uint32(math.Round(sec * ticksPerSecond))
}
