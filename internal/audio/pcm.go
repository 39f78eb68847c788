// Package audio turns encoded audio containers into mono PCM at the rate the
// transcription model expects: decode, trim, fold to mono, resample.
package audio

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidTrimRange is returned when a trim range selects no samples.
var ErrInvalidTrimRange = errors.New("audio: invalid trim range")

// PCMBuffer holds de-interleaved float samples. Every channel has the same
// length. Buffers are treated as immutable; transforms return new buffers.
type PCMBuffer struct {
	// SampleRate is the number of frames per second.
	SampleRate int
	// Channels holds one sample slice per channel.
	Channels [][]float32
}

// NewPCMBuffer allocates a zeroed buffer.
func NewPCMBuffer(sampleRate, channels, frames int) *PCMBuffer {
	data := make([][]float32, channels)
	for i := range data {
		data[i] = make([]float32, frames)
	}
	return &PCMBuffer{SampleRate: sampleRate, Channels: data}
}

// ChannelCount returns the number of channels.
func (b *PCMBuffer) ChannelCount() int {
	return len(b.Channels)
}

// FrameCount returns the number of frames per channel.
func (b *PCMBuffer) FrameCount() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the length in seconds.
func (b *PCMBuffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.FrameCount()) / float64(b.SampleRate)
}

// Samples returns the first channel. Callers fold to mono first.
func (b *PCMBuffer) Samples() []float32 {
	if len(b.Channels) == 0 {
		return nil
	}
	return b.Channels[0]
}

// TrimRange selects a time window in seconds. An End of zero or less means
// "to the end of the buffer"; a negative Start is treated as zero.
type TrimRange struct {
	Start float64
	End   float64
}

// IsZero reports whether the range selects the whole buffer.
func (r TrimRange) IsZero() bool {
	return r.Start <= 0 && r.End <= 0
}

// Trim copies the half-open sample interval selected by start and end into a
// new buffer. Indices are computed in the buffer's own sample-rate space.
func Trim(b *PCMBuffer, start, end float64) (*PCMBuffer, error) {
	frames := b.FrameCount()

	if start < 0 {
		start = 0
	}
	startSample := int(math.Floor(start * float64(b.SampleRate)))
	endSample := frames
	if end > 0 {
		endSample = min(int(math.Floor(end*float64(b.SampleRate))), frames)
	}

	if startSample >= endSample {
		return nil, fmt.Errorf("%w: start=%.3fs end=%.3fs selects samples [%d,%d) of %d",
			ErrInvalidTrimRange, start, end, startSample, endSample, frames)
	}

	out := &PCMBuffer{SampleRate: b.SampleRate, Channels: make([][]float32, len(b.Channels))}
	for i, ch := range b.Channels {
		seg := make([]float32, endSample-startSample)
		copy(seg, ch[startSample:endSample])
		out.Channels[i] = seg
	}
	return out, nil
}

// ToMono averages all channels frame by frame. A mono buffer is returned as-is.
func ToMono(b *PCMBuffer) *PCMBuffer {
	if b.ChannelCount() <= 1 {
		return b
	}

	frames := b.FrameCount()
	mono := make([]float32, frames)
	scale := 1 / float32(b.ChannelCount())
	for i := 0; i < frames; i++ {
		var sum float32
		for _, ch := range b.Channels {
			sum += ch[i]
		}
		mono[i] = sum * scale
	}
	return &PCMBuffer{SampleRate: b.SampleRate, Channels: [][]float32{mono}}
}
