package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maauso/audio2midi/internal/audio"
	"github.com/maauso/audio2midi/internal/midi"
	"github.com/maauso/audio2midi/internal/source"
	"github.com/maauso/audio2midi/internal/transcribe"
)

// Acquirer fetches the bytes of a remote source.
type Acquirer interface {
	Acquire(ctx context.Context, src source.AudioSource) (source.AudioSource, error)
}

// Normalizer decodes raw audio to mono PCM at a target rate.
type Normalizer interface {
	Normalize(ctx context.Context, raw []byte, targetRate int, trim *audio.TrimRange) (*audio.PCMBuffer, error)
}

// Transcriber turns mono samples into notes.
type Transcriber interface {
	EnsureReady(ctx context.Context) error
	Transcribe(ctx context.Context, samples []float32) ([]midi.Note, error)
	SampleRate() int
}

// Orchestrator drives the sources of a Job through acquire, normalize,
// transcribe and encode, one item at a time.
type Orchestrator struct {
	acquirer    Acquirer
	normalizer  Normalizer
	transcriber Transcriber
	logger      *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(acquirer Acquirer, normalizer Normalizer, transcriber Transcriber, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		acquirer:    acquirer,
		normalizer:  normalizer,
		transcriber: transcriber,
		logger:      logger,
	}
}

// Run processes job from idle to a terminal state. Events are sent to events
// in order and the channel is closed when Run returns; events may be nil.
//
// Cancellation is cooperative: job.RequestCancel or cancelling ctx stops the
// batch before the next item, never during one. Per-item failures are
// recorded in job.Errors and the batch continues. Run returns an error only
// when the batch ends in StateFailed.
func (o *Orchestrator) Run(ctx context.Context, job *Job, events chan<- Event) error {
	if events != nil {
		defer close(events)
	}

	if err := job.Start(); err != nil {
		return fmt.Errorf("start batch %s: %w", job.ID, err)
	}

	total := job.Total()
	settings := job.Settings
	r := &run{o: o, job: job, events: events, total: total}

	r.emit(Event{Kind: EventBatchStarted})

	// Stages never observe cancellation so an item in flight always finishes.
	stageCtx := context.WithoutCancel(ctx)

	if err := preflight(stageCtx, total, settings, o.transcriber); err != nil {
		return r.fail(err)
	}

	for i := 0; i < total; i++ {
		if job.CancelRequested() || ctx.Err() != nil {
			job.RequestCancel()
			return r.finish(StateCancelled, i)
		}

		src := job.sourceAt(i)
		job.setCursor(i)
		name := src.DisplayName()
		r.emit(Event{Kind: EventItemStarted, Index: i, Source: name, Progress: progress(i, total, StageDownload)})

		result, err := r.processItem(stageCtx, i, src, settings)
		if err != nil {
			kind := Classify(err)
			if kind.Fatal() {
				return r.fail(fmt.Errorf("%s: %w", name, err))
			}
			job.addError(ItemError{Index: i, SourceName: name, Kind: kind, Message: err.Error()})
			r.emit(Event{Kind: EventItemFailed, Index: i, Source: name, Message: err.Error(), Progress: progress(i+1, total, StageDownload)})
			continue
		}

		job.addResult(result)
		r.emit(Event{
			Kind:     EventItemDone,
			Index:    i,
			Source:   result.SourceName,
			Message:  fmt.Sprintf("%s (%d notes)", result.OutputName, result.NoteCount),
			Progress: progress(i+1, total, StageDownload),
		})
	}

	return r.finish(StateCompleted, total)
}

func preflight(ctx context.Context, total int, settings Settings, t Transcriber) error {
	if total == 0 {
		return fmt.Errorf("%w: no sources", ErrInvalidConfiguration)
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	if err := t.EnsureReady(ctx); err != nil {
		if !errors.Is(err, transcribe.ErrModelInit) {
			err = fmt.Errorf("%w: %w", transcribe.ErrModelInit, err)
		}
		return err
	}
	return nil
}

// run carries the per-invocation state of Orchestrator.Run.
type run struct {
	o      *Orchestrator
	job    *Job
	events chan<- Event
	total  int
}

func (r *run) emit(e Event) {
	e.BatchID = r.job.ID
	e.Total = r.total

	level := slog.LevelInfo
	switch e.Kind {
	case EventItemStage:
		level = slog.LevelDebug
	case EventItemFailed, EventBatchFailed:
		level = slog.LevelWarn
	}
	r.o.logger.Log(context.Background(), level, string(e.Kind), slog.Any("event", e))

	if r.events != nil {
		r.events <- e
	}
}

func (r *run) stage(index int, name string, s Stage) {
	r.emit(Event{Kind: EventItemStage, Index: index, Source: name, Stage: s, Progress: progress(index, r.total, s)})
}

func (r *run) processItem(ctx context.Context, index int, src source.AudioSource, settings Settings) (Result, error) {
	if !src.Acquired() {
		r.stage(index, src.DisplayName(), StageDownload)
		acquired, err := r.o.acquirer.Acquire(ctx, src)
		if err != nil {
			return Result{}, err
		}
		src = acquired
	}
	name := src.DisplayName()

	r.stage(index, name, StageDecode)
	pcm, err := r.o.normalizer.Normalize(ctx, src.RawBytes, r.o.transcriber.SampleRate(), settings.Trim())
	r.job.releaseSource(index)
	if err != nil {
		return Result{}, err
	}

	r.stage(index, name, StageTranscribe)
	notes, err := r.o.transcriber.Transcribe(ctx, pcm.Samples())
	if err != nil {
		return Result{}, err
	}

	r.stage(index, name, StageEncode)
	data, stats, err := midi.Encode(notes, settings.MaxDuration())
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Index:      index,
		SourceName: name,
		OutputName: OutputName(settings.CustomTitle, index, r.total, name),
		MIDIBytes:  data,
		NoteCount:  stats.NoteCount,
		Dropped:    stats.Dropped,
		Duration:   stats.Duration,
	}
	if settings.KeepOriginalAudio {
		result.SourceBytes = src.RawBytes
	}
	return result, nil
}

func (r *run) fail(err error) error {
	kind := Classify(err)
	if !kind.Fatal() {
		kind = KindInvalidConfiguration
	}
	if terr := r.job.fail(kind, err.Error()); terr != nil {
		return terr
	}
	r.emit(Event{Kind: EventBatchFailed, Message: err.Error()})
	return err
}

func (r *run) finish(state State, cursor int) error {
	r.job.setCursor(cursor)
	if err := r.job.TransitionTo(state); err != nil {
		return err
	}

	snap := r.job.Clone()
	kind := EventBatchCompleted
	msg := fmt.Sprintf("%d converted, %d failed", len(snap.Results), len(snap.Errors))
	if state == StateCancelled {
		kind = EventBatchCancelled
	} else if len(snap.Results) == 0 {
		msg = "no files converted"
	}
	r.emit(Event{Kind: kind, Index: cursor, Message: msg, Progress: progress(cursor, r.total, StageDownload)})
	return nil
}
