package batch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/maauso/audio2midi/internal/midi"
	"github.com/maauso/audio2midi/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runJob(t *testing.T, orch *Orchestrator, job *Job) ([]Event, error) {
	t.Helper()
	events := make(chan Event, 8)
	collected := drain(events)
	err := orch.Run(context.Background(), job, events)
	return <-collected, err
}

func TestOrchestrator_AllSuccess(t *testing.T) {
	orch := NewOrchestrator(&fakeAcquirer{}, &fakeNormalizer{}, &fakeTranscriber{}, nil)
	job := NewJob(uploads("a.wav", "b.mp3", "c.flac"), Settings{})

	events, err := runJob(t, orch, job)
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, job.GetState())
	assert.Len(t, job.Results, 3)
	assert.Empty(t, job.Errors)
	assert.Equal(t, 3, job.Cursor)
	for i, r := range job.Results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, 1, r.NoteCount)
		assert.Nil(t, r.SourceBytes)
		notes, err := midi.Decode(r.MIDIBytes)
		require.NoError(t, err)
		assert.Len(t, notes, 1)
	}
	assert.Equal(t, []string{"a.mid", "b.mid", "c.mid"},
		[]string{job.Results[0].OutputName, job.Results[1].OutputName, job.Results[2].OutputName})

	last := events[len(events)-1]
	assert.Equal(t, EventBatchCompleted, last.Kind)
	assert.InDelta(t, 1.0, last.Progress, 1e-9)
}

func TestOrchestrator_EventOrder(t *testing.T) {
	orch := NewOrchestrator(&fakeAcquirer{}, &fakeNormalizer{}, &fakeTranscriber{}, nil)
	job := NewJobWithID("batch-order", uploads("a.wav", "b.wav"), Settings{})

	events, err := runJob(t, orch, job)
	require.NoError(t, err)

	assert.Equal(t, []EventKind{
		EventBatchStarted,
		EventItemStarted, EventItemDone,
		EventItemStarted, EventItemDone,
		EventBatchCompleted,
	}, kinds(events))

	var stages []Stage
	prev := 0.0
	for _, e := range events {
		assert.Equal(t, "batch-order", e.BatchID)
		assert.Equal(t, 2, e.Total)
		assert.GreaterOrEqual(t, e.Progress, prev, "progress must not go backwards at %s", e.Kind)
		prev = e.Progress
		if e.Kind == EventItemStage && e.Index == 0 {
			stages = append(stages, e.Stage)
		}
	}
	// Uploads skip the download stage
	assert.Equal(t, []Stage{StageDecode, StageTranscribe, StageEncode}, stages)
}

func TestOrchestrator_CancelAfterItem(t *testing.T) {
	const k = 1
	job := NewJob(uploads("a.wav", "b.wav", "c.wav", "d.wav"), Settings{})
	norm := &fakeNormalizer{hook: func(raw []byte) {
		if string(raw) == "b.wav" {
			job.RequestCancel()
		}
	}}
	orch := NewOrchestrator(&fakeAcquirer{}, norm, &fakeTranscriber{}, nil)

	events, err := runJob(t, orch, job)
	require.NoError(t, err)

	assert.Equal(t, StateCancelled, job.GetState())
	assert.Len(t, job.Results, k+1, "the item in flight completes")
	assert.Equal(t, k+1, job.Cursor)
	assert.Equal(t, EventBatchCancelled, events[len(events)-1].Kind)
}

func TestOrchestrator_ContextCancelCountsAsRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	norm := &fakeNormalizer{hook: func([]byte) { cancel() }}
	orch := NewOrchestrator(&fakeAcquirer{}, norm, &fakeTranscriber{}, nil)
	job := NewJob(uploads("a.wav", "b.wav"), Settings{})

	err := orch.Run(ctx, job, nil)
	require.NoError(t, err)

	assert.Equal(t, StateCancelled, job.GetState())
	assert.Len(t, job.Results, 1)
	assert.True(t, job.CancelRequested())
}

func TestOrchestrator_ItemFailureContinues(t *testing.T) {
	norm := &fakeNormalizer{failures: map[string]error{"two.wav": decodeFailure("two.wav")}}
	orch := NewOrchestrator(&fakeAcquirer{}, norm, &fakeTranscriber{}, nil)
	job := NewJob(uploads("one.wav", "two.wav", "three.wav"), Settings{})

	events, err := runJob(t, orch, job)
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, job.GetState())
	require.Len(t, job.Results, 2)
	require.Len(t, job.Errors, 1)
	assert.Equal(t, 1, job.Errors[0].Index)
	assert.Equal(t, "two.wav", job.Errors[0].SourceName)
	assert.Equal(t, KindDecode, job.Errors[0].Kind)
	assert.Equal(t, []int{0, 2}, []int{job.Results[0].Index, job.Results[1].Index})
	assert.Contains(t, kinds(events), EventItemFailed)
}

func TestOrchestrator_AllItemsFail(t *testing.T) {
	norm := &fakeNormalizer{failures: map[string]error{
		"a.wav": decodeFailure("a.wav"),
		"b.wav": decodeFailure("b.wav"),
	}}
	orch := NewOrchestrator(&fakeAcquirer{}, norm, &fakeTranscriber{}, nil)
	job := NewJob(uploads("a.wav", "b.wav"), Settings{})

	events, err := runJob(t, orch, job)
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, job.GetState())
	assert.Empty(t, job.Results)
	assert.Len(t, job.Errors, 2)
	assert.Equal(t, "no files converted", events[len(events)-1].Message)
}

func TestOrchestrator_ZeroSources(t *testing.T) {
	tr := &fakeTranscriber{}
	orch := NewOrchestrator(&fakeAcquirer{}, &fakeNormalizer{}, tr, nil)
	job := NewJob(nil, Settings{})

	events, err := runJob(t, orch, job)
	require.ErrorIs(t, err, ErrInvalidConfiguration)

	assert.Equal(t, StateFailed, job.GetState())
	assert.Equal(t, KindInvalidConfiguration, job.FailureKind)
	assert.NotEmpty(t, job.Failure)
	assert.Zero(t, tr.loads.Load(), "model is not loaded for an empty batch")
	assert.Equal(t, []EventKind{EventBatchStarted, EventBatchFailed}, kinds(events))
}

func TestOrchestrator_InvalidSettings(t *testing.T) {
	orch := NewOrchestrator(&fakeAcquirer{}, &fakeNormalizer{}, &fakeTranscriber{}, nil)
	job := NewJob(uploads("a.wav"), Settings{IncludeOriginalInArchive: true})

	_, err := runJob(t, orch, job)
	require.ErrorIs(t, err, ErrInvalidConfiguration)
	assert.Equal(t, StateFailed, job.GetState())
}

func TestOrchestrator_ModelInitFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "sentinel", err: modelFailure()},
		{name: "plain error is wrapped", err: errors.New("endpoint unreachable")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			norm := &fakeNormalizer{}
			orch := NewOrchestrator(&fakeAcquirer{}, norm, &fakeTranscriber{loadErr: tt.err}, nil)
			job := NewJob(uploads("a.wav"), Settings{})

			_, err := runJob(t, orch, job)
			require.Error(t, err)

			assert.Equal(t, StateFailed, job.GetState())
			assert.Equal(t, KindModelInit, job.FailureKind)
			assert.Empty(t, norm.trims, "no item is processed")
		})
	}
}

func TestOrchestrator_ModelInitDuringItemIsFatal(t *testing.T) {
	norm := &fakeNormalizer{failures: map[string]error{"a.wav": modelFailure()}}
	orch := NewOrchestrator(&fakeAcquirer{}, norm, &fakeTranscriber{}, nil)
	job := NewJob(uploads("a.wav", "b.wav"), Settings{})

	_, err := runJob(t, orch, job)
	require.Error(t, err)

	assert.Equal(t, StateFailed, job.GetState())
	assert.Contains(t, job.Failure, "a.wav")
	assert.Empty(t, job.Results)
}

func TestOrchestrator_RemoteAcquisition(t *testing.T) {
	good, err := source.FromURL("https://youtu.be/good")
	require.NoError(t, err)
	bad, err := source.FromURL("https://youtu.be/bad")
	require.NoError(t, err)

	acq := &fakeAcquirer{failures: map[string]error{
		"https://youtu.be/bad": fmt.Errorf("%w: status 502", source.ErrNetwork),
	}}
	orch := NewOrchestrator(acq, &fakeNormalizer{}, &fakeTranscriber{}, nil)
	job := NewJob([]source.AudioSource{bad, good}, Settings{})

	_, err = runJob(t, orch, job)
	require.NoError(t, err)

	assert.Equal(t, int32(2), acq.calls.Load())
	require.Len(t, job.Errors, 1)
	assert.Equal(t, KindNetwork, job.Errors[0].Kind)
	assert.Equal(t, "https://youtu.be/bad", job.Errors[0].SourceName)
	require.Len(t, job.Results, 1)
	assert.Equal(t, "remote.mid", job.Results[0].OutputName)
	assert.False(t, job.Sources[1].Acquired(), "downloaded bytes are not kept on the job")
}

func TestOrchestrator_SettingsFlowThrough(t *testing.T) {
	maxDur := 0.5
	norm := &fakeNormalizer{}
	tr := &fakeTranscriber{notes: []midi.Note{
		{Pitch: 60, StartTime: 0, EndTime: 0.5},
		{Pitch: 62, StartTime: 0, EndTime: 0.6},
	}}
	orch := NewOrchestrator(&fakeAcquirer{}, norm, tr, nil)
	job := NewJob(uploads("a.wav", "b.wav"), Settings{
		StartTime:            1,
		EndTime:              3,
		MaxNoteDuration:      &maxDur,
		EnableDurationFilter: true,
		KeepOriginalAudio:    true,
		CustomTitle:          "Take",
	})

	_, err := runJob(t, orch, job)
	require.NoError(t, err)

	require.Len(t, norm.trims, 2)
	require.NotNil(t, norm.trims[0])
	assert.Equal(t, 1.0, norm.trims[0].Start)
	assert.Equal(t, 3.0, norm.trims[0].End)

	require.Len(t, job.Results, 2)
	assert.Equal(t, "Take_1.mid", job.Results[0].OutputName)
	assert.Equal(t, "Take_2.mid", job.Results[1].OutputName)
	assert.Equal(t, 1, job.Results[0].NoteCount)
	assert.Equal(t, 1, job.Results[0].Dropped)
	assert.Equal(t, []byte("a.wav"), job.Results[0].SourceBytes)
}

func TestOrchestrator_RerunAfterReset(t *testing.T) {
	tr := &fakeTranscriber{}
	orch := NewOrchestrator(&fakeAcquirer{}, &fakeNormalizer{}, tr, nil)
	job := NewJob(uploads("a.wav"), Settings{})

	require.NoError(t, orch.Run(context.Background(), job, nil))
	err := orch.Run(context.Background(), job, nil)
	require.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, job.Reset())
	require.NoError(t, orch.Run(context.Background(), job, nil))
	assert.Len(t, job.Results, 1, "results are cleared on start")
	assert.Equal(t, int32(2), tr.loads.Load())
}

func TestOrchestrator_ReleasesSourceBytesAfterDecode(t *testing.T) {
	norm := &fakeNormalizer{failures: map[string]error{"b.wav": decodeFailure("b.wav")}}
	orch := NewOrchestrator(&fakeAcquirer{}, norm, &fakeTranscriber{}, nil)
	job := NewJob(uploads("a.wav", "b.wav"), Settings{KeepOriginalAudio: true})

	_, err := runJob(t, orch, job)
	require.NoError(t, err)

	for _, src := range job.Sources {
		assert.Nil(t, src.RawBytes, "%s", src.SuggestedName)
	}
	require.Len(t, job.Results, 1)
	assert.Equal(t, []byte("a.wav"), job.Results[0].SourceBytes, "retained originals live on the result")
}

func TestOrchestrator_EmptyUploadIsDecodeFailure(t *testing.T) {
	acq := &fakeAcquirer{}
	norm := &fakeNormalizer{failures: map[string]error{"": decodeFailure("empty.wav")}}
	orch := NewOrchestrator(acq, norm, &fakeTranscriber{}, nil)
	job := NewJob([]source.AudioSource{source.FromBytes("empty.wav", nil)}, Settings{})

	_, err := runJob(t, orch, job)
	require.NoError(t, err)

	assert.Equal(t, int32(0), acq.calls.Load(), "local uploads never reach the downloader")
	require.Len(t, job.Errors, 1)
	assert.Equal(t, KindDecode, job.Errors[0].Kind)
	assert.Empty(t, job.Results)
}
