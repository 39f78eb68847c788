package audio

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkFFmpeg skips test if ffmpeg is not available.
func checkFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH, skipping test")
	}
}

// dirTemp stages files in a directory and records cleanups.
type dirTemp struct {
	dir     string
	saved   []string
	cleaned []string
}

func (m *dirTemp) SaveTemp(_ context.Context, name string, data io.Reader) (string, error) {
	raw, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	path := filepath.Join(m.dir, name+".bin")
	if err := os.WriteFile(path, raw, 0600); err != nil {
		return "", err
	}
	m.saved = append(m.saved, path)
	return path, nil
}

func (m *dirTemp) CleanupTemp(_ context.Context, paths []string) error {
	m.cleaned = append(m.cleaned, paths...)
	for _, p := range paths {
		_ = os.Remove(p)
	}
	return nil
}

// fakeFFmpeg writes a shell script standing in for ffmpeg.
func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0700))
	return path
}

func TestFFmpegTranscoder_Decode(t *testing.T) {
	// Little-endian 0x4000 and 0xC000
	bin := fakeFFmpeg(t, `printf '\000\100\000\300'`)
	temp := &dirTemp{dir: t.TempDir()}

	buf, err := NewFFmpegTranscoder(bin, temp).Decode(context.Background(), []byte("opaque container"))
	require.NoError(t, err)

	assert.Equal(t, IntermediateRate, buf.SampleRate)
	assert.Equal(t, 1, buf.ChannelCount())
	assert.InDeltaSlice(t, []float64{0.5, -0.5}, toFloat64(buf.Samples()), 1e-6)
	assert.Equal(t, temp.saved, temp.cleaned, "staged input is cleaned up")
}

func TestFFmpegTranscoder_Failure(t *testing.T) {
	bin := fakeFFmpeg(t, `echo "Invalid data found when processing input" >&2; exit 1`)
	temp := &dirTemp{dir: t.TempDir()}

	_, err := NewFFmpegTranscoder(bin, temp).Decode(context.Background(), []byte("junk"))
	require.Error(t, err)

	var perr *ProcessError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 1, perr.ExitCode)
	assert.Contains(t, perr.Stderr, "Invalid data")
	assert.Len(t, temp.cleaned, 1)
}

func TestFFmpegTranscoder_EmptyOutput(t *testing.T) {
	bin := fakeFFmpeg(t, `exit 0`)
	temp := &dirTemp{dir: t.TempDir()}

	_, err := NewFFmpegTranscoder(bin, temp).Decode(context.Background(), []byte("junk"))
	assert.ErrorIs(t, err, ErrEmptyAudio)
}

func TestFFmpegTranscoder_MissingBinary(t *testing.T) {
	temp := &dirTemp{dir: t.TempDir()}
	_, err := NewFFmpegTranscoder(filepath.Join(t.TempDir(), "nope"), temp).Decode(context.Background(), []byte("x"))
	assert.Error(t, err)
}

func TestNewFFmpegTranscoder_DefaultPath(t *testing.T) {
	tr := NewFFmpegTranscoder("", &dirTemp{})
	assert.Equal(t, "ffmpeg", tr.ffmpegPath)
}

func TestProcessError_Message(t *testing.T) {
	err := &ProcessError{Tool: "ffmpeg", ExitCode: 2, Stderr: "boom", Err: errors.New("exit status 2")}
	assert.Equal(t, "ffmpeg failed (exit 2): exit status 2: boom", err.Error())

	bare := &ProcessError{Tool: "ffmpeg", ExitCode: 2, Err: errors.New("exit status 2")}
	assert.Equal(t, "ffmpeg failed (exit 2): exit status 2", bare.Error())
}

func TestFFmpegTranscoder_RealFLAC(t *testing.T) {
	checkFFmpeg(t)

	dir := t.TempDir()
	input := filepath.Join(dir, "tone.flac")
	cmd := exec.Command("ffmpeg", "-y",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=1",
		"-ar", "48000", "-ac", "2",
		input,
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))

	raw, err := os.ReadFile(input)
	require.NoError(t, err)

	// The native decoder does not read FLAC, so the normalizer has to fall back.
	_, err = NewNativeDecoder().Decode(context.Background(), raw)
	require.ErrorIs(t, err, ErrUnsupportedContainer)

	n := NewNormalizer(NewNativeDecoder(), NewFFmpegTranscoder("", &dirTemp{dir: dir}), nil)
	buf, err := n.Normalize(context.Background(), raw, 22050, nil)
	require.NoError(t, err)

	assert.Equal(t, 22050, buf.SampleRate)
	assert.Equal(t, 1, buf.ChannelCount())
	assert.InDelta(t, 1.0, buf.Duration(), 0.05)
}
