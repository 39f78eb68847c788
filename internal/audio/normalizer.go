package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Normalizer runs the full decode → trim → mono → resample chain.
type Normalizer struct {
	primary  Decoder
	fallback Decoder
	logger   *slog.Logger
}

// NewNormalizer creates a Normalizer that tries primary first and falls back
// to fallback when primary cannot decode. fallback may be nil.
func NewNormalizer(primary, fallback Decoder, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{primary: primary, fallback: fallback, logger: logger}
}

// Normalize decodes raw and returns a mono buffer at targetRate. A nil or
// zero trim keeps the whole signal. Trimming happens in the decoded rate's
// sample space, before resampling.
func (n *Normalizer) Normalize(ctx context.Context, raw []byte, targetRate int, trim *TrimRange) (*PCMBuffer, error) {
	buf, err := n.decode(ctx, raw)
	if err != nil {
		return nil, err
	}

	n.logger.Debug("audio decoded",
		slog.Int("sample_rate", buf.SampleRate),
		slog.Int("channels", buf.ChannelCount()),
		slog.Float64("duration_sec", buf.Duration()),
	)

	if trim != nil && !trim.IsZero() {
		buf, err = Trim(buf, trim.Start, trim.End)
		if err != nil {
			return nil, err
		}
	}

	buf = ToMono(buf)
	buf = Resample(buf, targetRate)
	return buf, nil
}

func (n *Normalizer) decode(ctx context.Context, raw []byte) (*PCMBuffer, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}

	buf, primaryErr := n.primary.Decode(ctx, raw)
	if primaryErr == nil {
		return buf, nil
	}
	if n.fallback == nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, primaryErr)
	}

	n.logger.Info("native decode failed, transcoding",
		slog.String("reason", primaryErr.Error()),
	)

	buf, fallbackErr := n.fallback.Decode(ctx, raw)
	if fallbackErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, errors.Join(primaryErr, fallbackErr))
	}
	return buf, nil
}
