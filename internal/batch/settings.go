package batch

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/maauso/audio2midi/internal/audio"
)

// ErrInvalidConfiguration is returned when a batch cannot start because of
// its inputs or settings.
var ErrInvalidConfiguration = errors.New("batch: invalid configuration")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Settings are the user options for one batch.
type Settings struct {
	// StartTime trims the beginning of every source, in seconds.
	StartTime float64 `json:"start_time" validate:"gte=0"`
	// EndTime trims the end of every source, in seconds. Zero means "to end".
	EndTime float64 `json:"end_time" validate:"gte=0"`
	// MaxNoteDuration drops longer notes when EnableDurationFilter is set.
	MaxNoteDuration      *float64 `json:"max_note_duration,omitempty" validate:"omitempty,gt=0"`
	EnableDurationFilter bool     `json:"enable_duration_filter"`

	ArchiveOutput bool   `json:"archive_output"`
	ArchiveName   string `json:"archive_name" validate:"max=255"`

	KeepOriginalAudio        bool `json:"keep_original_audio"`
	IncludeOriginalInArchive bool `json:"include_original_in_archive"`

	CustomTitle string `json:"custom_title" validate:"max=255"`
}

// Validate checks field bounds and option combinations.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	if s.IncludeOriginalInArchive && !s.KeepOriginalAudio {
		return fmt.Errorf("%w: including original audio requires keeping it", ErrInvalidConfiguration)
	}
	return nil
}

// MaxDuration returns the duration filter threshold, or nil when filtering
// is off.
func (s Settings) MaxDuration() *float64 {
	if !s.EnableDurationFilter || s.MaxNoteDuration == nil {
		return nil
	}
	d := *s.MaxNoteDuration
	return &d
}

// Trim returns the trim window, or nil when the whole signal is kept.
func (s Settings) Trim() *audio.TrimRange {
	r := audio.TrimRange{Start: s.StartTime, End: s.EndTime}
	if r.IsZero() {
		return nil
	}
	return &r
}
