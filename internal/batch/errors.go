package batch

import (
	"errors"

	"github.com/maauso/audio2midi/internal/audio"
	"github.com/maauso/audio2midi/internal/midi"
	"github.com/maauso/audio2midi/internal/source"
	"github.com/maauso/audio2midi/internal/transcribe"
)

// ErrorKind classifies a failure for reporting.
type ErrorKind string

// Error kinds.
const (
	KindDecode               ErrorKind = "decode"
	KindInvalidTrimRange     ErrorKind = "invalid_trim_range"
	KindModelInit            ErrorKind = "model_init"
	KindTranscription        ErrorKind = "transcription"
	KindNetwork              ErrorKind = "network"
	KindInvalidConfiguration ErrorKind = "invalid_configuration"
	KindEncode               ErrorKind = "encode"
	KindUnknown              ErrorKind = "unknown"
)

// Classify maps an error from any pipeline stage to its kind.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidConfiguration):
		return KindInvalidConfiguration
	case errors.Is(err, transcribe.ErrModelInit):
		return KindModelInit
	case errors.Is(err, audio.ErrInvalidTrimRange):
		return KindInvalidTrimRange
	case errors.Is(err, audio.ErrDecode):
		return KindDecode
	case errors.Is(err, transcribe.ErrTranscription):
		return KindTranscription
	case errors.Is(err, source.ErrNetwork), errors.Is(err, source.ErrInvalidURL):
		return KindNetwork
	case errors.Is(err, midi.ErrEncode):
		return KindEncode
	default:
		return KindUnknown
	}
}

// Fatal reports whether a kind aborts the whole batch.
func (k ErrorKind) Fatal() bool {
	return k == KindModelInit || k == KindInvalidConfiguration
}

// ItemError records one failed source.
type ItemError struct {
	Index      int       `json:"index"`
	SourceName string    `json:"source_name"`
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
}
