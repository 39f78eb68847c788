package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maauso/audio2midi/internal/audio"
	"github.com/maauso/audio2midi/internal/batch"
	"github.com/maauso/audio2midi/internal/midi"
	"github.com/maauso/audio2midi/internal/source"
	"github.com/maauso/audio2midi/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type offlineAcquirer struct{}

func (offlineAcquirer) Acquire(_ context.Context, src source.AudioSource) (source.AudioSource, error) {
	return src, fmt.Errorf("%w: offline", source.ErrNetwork)
}

type passNormalizer struct{}

func (passNormalizer) Normalize(_ context.Context, raw []byte, rate int, _ *audio.TrimRange) (*audio.PCMBuffer, error) {
	if bytes.HasPrefix(raw, []byte("bad")) {
		return nil, fmt.Errorf("%w: not audio", audio.ErrDecode)
	}
	return audio.NewPCMBuffer(rate, 1, 10), nil
}

type fixedTranscriber struct{}

func (fixedTranscriber) EnsureReady(context.Context) error { return nil }

func (fixedTranscriber) Transcribe(context.Context, []float32) ([]midi.Note, error) {
	return []midi.Note{
		{Pitch: 60, StartTime: 0, EndTime: 0.5, Velocity: 80},
		{Pitch: 67, StartTime: 0.5, EndTime: 3},
	}, nil
}

func (fixedTranscriber) SampleRate() int { return 22050 }

// testFactory builds a service that publishes into its outDir.
func testFactory(t *testing.T) ServiceFactory {
	t.Helper()
	return func(outDir string, listener func(batch.Event)) (*batch.Service, func(), error) {
		store, err := storage.NewLocalStorage(t.TempDir(), outDir)
		if err != nil {
			return nil, nil, err
		}
		orch := batch.NewOrchestrator(offlineAcquirer{}, passNormalizer{}, fixedTranscriber{}, nil)
		svc := batch.NewService(batch.NewMemoryRepository(), orch, store, nil,
			batch.WithEventListener(listener),
			batch.WithFlatPublish(),
		)
		return svc, nil, nil
	}
}

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func execute(t *testing.T, factory ServiceFactory, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(factory)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConvert_WritesMIDI(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	a := writeInput(t, in, "first take.wav", "a")
	b := writeInput(t, in, "second.mp3", "b")

	stdout, err := execute(t, testFactory(t), "convert", "--out", out, a, b)
	require.NoError(t, err, stdout)

	assert.Contains(t, stdout, "1/2 first take.wav")
	assert.Contains(t, stdout, "completed: 2 converted, 0 failed")
	for _, name := range []string{"first_take.mid", "second.mid"} {
		data, err := os.ReadFile(filepath.Join(out, name))
		require.NoError(t, err, name)
		notes, err := midi.Decode(data)
		require.NoError(t, err)
		assert.Len(t, notes, 2)
	}
}

func TestConvert_ArchiveWithDurationFilter(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	a := writeInput(t, in, "a.wav", "a")
	b := writeInput(t, in, "b.wav", "b")

	stdout, err := execute(t, testFactory(t), "convert",
		"-o", out, "--archive", "--archive-name", "session", "--max-note-duration", "1", "-t", "Jam", a, b)
	require.NoError(t, err, stdout)

	assert.Contains(t, stdout, "Jam_1.mid (1 notes)")
	_, err = os.Stat(filepath.Join(out, "session.zip"))
	assert.NoError(t, err)
}

func TestConvert_SkipsNonAudioAndReportsFailures(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	good := writeInput(t, in, "good.wav", "good")
	bad := writeInput(t, in, "bad.wav", "bad")
	text := writeInput(t, in, "notes.txt", "plain text")

	stdout, err := execute(t, testFactory(t), "convert", "-o", out, good, text, bad)
	require.NoError(t, err, stdout)

	assert.Contains(t, stdout, "skipped 1 non-audio file(s)")
	assert.Contains(t, stdout, "error: bad.wav (decode)")
	assert.Contains(t, stdout, "completed: 1 converted, 1 failed")
}

func TestConvert_NothingConverted(t *testing.T) {
	in := t.TempDir()
	bad := writeInput(t, in, "bad.wav", "bad")

	stdout, err := execute(t, testFactory(t), "convert", "-o", t.TempDir(), bad, "https://youtu.be/xyz")
	assert.ErrorIs(t, err, ErrNothingConverted)
	assert.Contains(t, stdout, "completed: no files converted")
	assert.Contains(t, stdout, "(network)")
}

func TestConvert_InvalidSettings(t *testing.T) {
	in := t.TempDir()
	a := writeInput(t, in, "a.wav", "a")

	_, err := execute(t, testFactory(t), "convert", "--include-original", a)
	assert.ErrorIs(t, err, batch.ErrInvalidConfiguration)
}

func TestConvert_Arguments(t *testing.T) {
	_, err := execute(t, testFactory(t), "convert")
	assert.Error(t, err, "at least one input is required")

	_, err = execute(t, testFactory(t), "convert", filepath.Join(t.TempDir(), "missing.wav"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	in := t.TempDir()
	text := writeInput(t, in, "notes.txt", "plain text")
	_, err = execute(t, testFactory(t), "convert", text)
	assert.ErrorIs(t, err, source.ErrNoAudioFiles)
}

func TestInspect(t *testing.T) {
	data, _, err := midi.Encode([]midi.Note{
		{Pitch: 60, StartTime: 0, EndTime: 0.5, Velocity: 100},
		{Pitch: 64, StartTime: 0.5, EndTime: 1},
		{Pitch: 67, StartTime: 1, EndTime: 1.5},
	}, nil)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "song.mid")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	stdout, err := execute(t, nil, "inspect", "-n", "2", path)
	require.NoError(t, err)

	assert.Contains(t, stdout, "notes: 3")
	assert.Contains(t, stdout, "duration: 1.500s")
	assert.Contains(t, stdout, "pitch= 60 velocity=100")
	assert.Contains(t, stdout, "... 1 more")
	assert.Equal(t, 5, strings.Count(stdout, "\n"))
}

func TestInspect_NotMIDI(t *testing.T) {
	path := writeInput(t, t.TempDir(), "x.mid", "not midi")

	_, err := execute(t, nil, "inspect", path)
	assert.ErrorIs(t, err, midi.ErrDecode)
}
