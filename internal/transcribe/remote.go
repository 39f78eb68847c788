package transcribe

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/maauso/audio2midi/internal/inference"
	"github.com/maauso/audio2midi/internal/midi"
)

// ErrJobFailed is returned when the remote job ends in a non-success state.
var ErrJobFailed = errors.New("transcribe: remote job did not complete")

// RemoteModel implements Model over a serverless inference endpoint.
type RemoteModel struct {
	client       inference.Client
	thresholds   inference.Thresholds
	pollInterval time.Duration
	logger       *slog.Logger
}

// RemoteOption configures a RemoteModel.
type RemoteOption func(*RemoteModel)

// WithPollInterval sets how often job status is polled.
func WithPollInterval(d time.Duration) RemoteOption {
	return func(m *RemoteModel) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithThresholds overrides the detector thresholds sent with each job.
func WithThresholds(t inference.Thresholds) RemoteOption {
	return func(m *RemoteModel) {
		m.thresholds = t
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RemoteOption {
	return func(m *RemoteModel) {
		m.logger = l
	}
}

// NewRemoteModel creates a RemoteModel.
func NewRemoteModel(client inference.Client, opts ...RemoteOption) *RemoteModel {
	m := &RemoteModel{
		client:       client,
		thresholds:   inference.DefaultThresholds(),
		pollInterval: 2 * time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load checks that the endpoint is reachable and the credentials are valid.
func (m *RemoteModel) Load(ctx context.Context) error {
	health, err := m.client.Health(ctx)
	if err != nil {
		return err
	}
	m.logger.Info("inference endpoint healthy",
		slog.Int("idle_workers", health.IdleWorkers),
		slog.Int("running_workers", health.RunningWorkers),
		slog.Int("queued_jobs", health.QueuedJobs),
	)
	return nil
}

// Predict submits samples as one job and polls until it finishes.
func (m *RemoteModel) Predict(ctx context.Context, samples []float32, sampleRate int) ([]midi.Note, error) {
	jobID, err := m.client.Submit(ctx, inference.SubmitRequest{
		AudioBase64: EncodeSamples(samples),
		SampleRate:  sampleRate,
		Thresholds:  m.thresholds,
	})
	if err != nil {
		return nil, err
	}

	m.logger.Debug("transcription submitted",
		slog.String("remote_job_id", jobID),
		slog.Int("samples", len(samples)),
	)

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		result, err := m.client.Poll(ctx, jobID)
		if err != nil {
			return nil, err
		}

		if result.Status.IsTerminal() {
			if result.Status != inference.StatusCompleted {
				return nil, fmt.Errorf("%w: %s %s", ErrJobFailed, result.Status, result.Error)
			}
			return toNotes(result.Notes), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close is a no-op; the remote endpoint owns the model weights.
func (m *RemoteModel) Close() error {
	return nil
}

// EncodeSamples renders samples as base64 float32 little-endian.
func EncodeSamples(samples []float32) string {
	raw := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(s))
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func toNotes(in []inference.Note) []midi.Note {
	notes := make([]midi.Note, len(in))
	for i, n := range in {
		notes[i] = midi.Note{
			Pitch:     n.Pitch,
			StartTime: n.Start,
			EndTime:   n.End,
			Velocity:  n.Velocity,
		}
	}
	return notes
}

// Verify interface implementation at compile time.
var _ Model = (*RemoteModel)(nil)
