package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/maauso/audio2midi/internal/audio"
	"github.com/maauso/audio2midi/internal/midi"
	"github.com/maauso/audio2midi/internal/source"
	"github.com/maauso/audio2midi/internal/transcribe"
)

const testRate = 22050

// fakeAcquirer returns a fixed payload, or an error for URLs in failures.
type fakeAcquirer struct {
	failures map[string]error
	calls    atomic.Int32
}

func (f *fakeAcquirer) Acquire(_ context.Context, src source.AudioSource) (source.AudioSource, error) {
	f.calls.Add(1)
	if err := f.failures[src.URL]; err != nil {
		return source.AudioSource{}, err
	}
	src.RawBytes = []byte("downloaded")
	src.SuggestedName = "remote.mp3"
	return src, nil
}

// fakeNormalizer fails on payloads listed in failures and runs hook before
// returning, if set.
type fakeNormalizer struct {
	failures map[string]error
	hook     func(raw []byte)
	trims    []*audio.TrimRange
	mu       sync.Mutex
}

func (f *fakeNormalizer) Normalize(_ context.Context, raw []byte, targetRate int, trim *audio.TrimRange) (*audio.PCMBuffer, error) {
	f.mu.Lock()
	f.trims = append(f.trims, trim)
	f.mu.Unlock()

	if f.hook != nil {
		f.hook(raw)
	}
	if err := f.failures[string(raw)]; err != nil {
		return nil, err
	}
	return audio.NewPCMBuffer(targetRate, 1, targetRate), nil
}

// fakeTranscriber returns one note per call and counts loads.
type fakeTranscriber struct {
	loadErr error
	notes   []midi.Note
	loads   atomic.Int32
}

func (f *fakeTranscriber) EnsureReady(context.Context) error {
	f.loads.Add(1)
	return f.loadErr
}

func (f *fakeTranscriber) Transcribe(context.Context, []float32) ([]midi.Note, error) {
	if f.notes != nil {
		return f.notes, nil
	}
	return []midi.Note{{Pitch: 60, StartTime: 0, EndTime: 0.5, Velocity: 100}}, nil
}

func (f *fakeTranscriber) SampleRate() int { return testRate }

func uploads(names ...string) []source.AudioSource {
	out := make([]source.AudioSource, len(names))
	for i, n := range names {
		out[i] = source.FromBytes(n, []byte(n))
	}
	return out
}

func decodeFailure(name string) error {
	return fmt.Errorf("%w: %s is not audio", audio.ErrDecode, name)
}

func modelFailure() error {
	return fmt.Errorf("%w: weights missing", transcribe.ErrModelInit)
}

// drain collects every event until the channel is closed.
func drain(events <-chan Event) <-chan []Event {
	out := make(chan []Event, 1)
	go func() {
		var got []Event
		for e := range events {
			got = append(got, e)
		}
		out <- got
	}()
	return out
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, 0, len(events))
	for _, e := range events {
		if e.Kind != EventItemStage {
			out = append(out, e.Kind)
		}
	}
	return out
}
