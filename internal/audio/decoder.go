package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// Static errors for decoding.
var (
	// ErrDecode is returned when no decoding strategy can read a container.
	ErrDecode = errors.New("audio: decode failed")
	// ErrUnsupportedContainer is returned by a decoder that does not handle
	// the detected container.
	ErrUnsupportedContainer = errors.New("audio: unsupported container")
	// ErrEmptyAudio is returned when a container decodes to zero frames.
	ErrEmptyAudio = errors.New("audio: no samples decoded")
)

// Decoder decodes an encoded container into PCM at its native rate and
// channel layout.
type Decoder interface {
	Decode(ctx context.Context, raw []byte) (*PCMBuffer, error)
}

// NativeDecoder decodes WAV and MP3 in-process. Other containers return
// ErrUnsupportedContainer so a transcoding fallback can take over.
type NativeDecoder struct{}

// NewNativeDecoder creates a NativeDecoder.
func NewNativeDecoder() *NativeDecoder {
	return &NativeDecoder{}
}

// Decode implements Decoder.
func (d *NativeDecoder) Decode(_ context.Context, raw []byte) (*PCMBuffer, error) {
	mtype := mimetype.Detect(raw)
	switch {
	case mtype.Is("audio/wav"):
		return decodeWAV(raw)
	case mtype.Is("audio/mpeg"):
		return decodeMP3(raw)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedContainer, mtype.String())
	}
}

func decodeWAV(raw []byte) (*PCMBuffer, error) {
	dec := wav.NewDecoder(bytes.NewReader(raw))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid wav header", ErrUnsupportedContainer)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read wav pcm: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels < 1 || buf.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: wav without format", ErrUnsupportedContainer)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(dec.BitDepth)
	}
	if bitDepth < 8 || bitDepth > 32 {
		return nil, fmt.Errorf("%w: %d-bit wav", ErrUnsupportedContainer, bitDepth)
	}

	channels := buf.Format.NumChannels
	frames := len(buf.Data) / channels
	if frames == 0 {
		return nil, ErrEmptyAudio
	}

	out := NewPCMBuffer(buf.Format.SampleRate, channels, frames)
	scale := 1 / float32(int64(1)<<(bitDepth-1))
	// 8-bit wav is unsigned
	offset := 0
	if bitDepth == 8 {
		offset = 128
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			out.Channels[c][i] = float32(buf.Data[i*channels+c]-offset) * scale
		}
	}
	return out, nil
}

// go-mp3 always produces 16-bit little-endian stereo.
const mp3BytesPerFrame = 4

func decodeMP3(raw []byte) (*PCMBuffer, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("open mp3: %w", err)
	}

	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("read mp3 pcm: %w", err)
	}

	frames := len(pcm) / mp3BytesPerFrame
	if frames == 0 {
		return nil, ErrEmptyAudio
	}

	out := NewPCMBuffer(dec.SampleRate(), 2, frames)
	for i := 0; i < frames; i++ {
		base := i * mp3BytesPerFrame
		out.Channels[0][i] = s16ToFloat(pcm[base:])
		out.Channels[1][i] = s16ToFloat(pcm[base+2:])
	}
	return out, nil
}

func s16ToFloat(b []byte) float32 {
	return float32(int16(binary.LittleEndian.Uint16(b))) / 32768
}

// Verify interface implementation at compile time.
var _ Decoder = (*NativeDecoder)(nil)
