// Package transcribe wraps a note transcription model with lazy one-time
// initialization and serialized inference.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maauso/audio2midi/internal/midi"
)

// Static errors for transcription.
var (
	// ErrModelInit is returned when the model cannot be loaded. No item can
	// be transcribed until a later EnsureReady succeeds.
	ErrModelInit = errors.New("transcribe: model initialization failed")
	// ErrTranscription is returned when inference fails for one input.
	ErrTranscription = errors.New("transcribe: inference failed")
)

// Model is the opaque transcription model.
type Model interface {
	// Load performs the heavyweight initialization.
	Load(ctx context.Context) error
	// Predict returns the notes found in mono samples at sampleRate.
	Predict(ctx context.Context, samples []float32, sampleRate int) ([]midi.Note, error)
	// Close releases resources held by a loaded model.
	Close() error
}

// Adapter owns one Model. It is safe for concurrent use; inference calls are
// serialized because the model is not guaranteed to be reentrant.
type Adapter struct {
	model      Model
	sampleRate int
	logger     *slog.Logger

	mu    sync.Mutex
	ready bool
}

// NewAdapter creates an Adapter for a model that expects sampleRate input.
func NewAdapter(model Model, sampleRate int, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{model: model, sampleRate: sampleRate, logger: logger}
}

// SampleRate returns the rate Transcribe expects its samples in.
func (a *Adapter) SampleRate() int {
	return a.sampleRate
}

// EnsureReady loads the model on first use. Later calls return immediately
// until Dispose is called. A failed load is retried on the next call.
func (a *Adapter) EnsureReady(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ensureReadyLocked(ctx)
}

func (a *Adapter) ensureReadyLocked(ctx context.Context) error {
	if a.ready {
		return nil
	}

	start := time.Now()
	if err := a.model.Load(ctx); err != nil {
		a.logger.Error("model load failed", slog.String("error", err.Error()))
		return fmt.Errorf("%w: %w", ErrModelInit, err)
	}

	a.ready = true
	a.logger.Info("model ready", slog.Duration("elapsed", time.Since(start)))
	return nil
}

// Transcribe runs inference on mono samples at SampleRate. The model is
// loaded first if needed.
func (a *Adapter) Transcribe(ctx context.Context, samples []float32) ([]midi.Note, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.ensureReadyLocked(ctx); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, nil
	}

	notes, err := a.model.Predict(ctx, samples, a.sampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTranscription, err)
	}
	return notes, nil
}

// Dispose releases the model. The next EnsureReady loads it again.
func (a *Adapter) Dispose() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.ready {
		return nil
	}
	a.ready = false
	if err := a.model.Close(); err != nil {
		return fmt.Errorf("transcribe: dispose model: %w", err)
	}
	a.logger.Info("model disposed")
	return nil
}
