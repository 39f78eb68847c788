package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
)

// IntermediateRate is the fixed rate the transcoder converts to.
const IntermediateRate = 44100

// TempStorage stages raw bytes on disk for external tools.
type TempStorage interface {
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)
	CleanupTemp(ctx context.Context, paths []string) error
}

// FFmpegTranscoder decodes any container ffmpeg understands by converting it
// to mono 16-bit PCM at IntermediateRate.
type FFmpegTranscoder struct {
	ffmpegPath string
	temp       TempStorage
}

// NewFFmpegTranscoder creates a new FFmpegTranscoder.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
func NewFFmpegTranscoder(ffmpegPath string, temp TempStorage) *FFmpegTranscoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegTranscoder{ffmpegPath: ffmpegPath, temp: temp}
}

// Decode implements Decoder.
func (t *FFmpegTranscoder) Decode(ctx context.Context, raw []byte) (*PCMBuffer, error) {
	input, err := t.temp.SaveTemp(ctx, "transcode", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("stage input: %w", err)
	}
	defer func() { _ = t.temp.CleanupTemp(context.WithoutCancel(ctx), []string{input}) }()

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", input,
		"-vn", // Drop any video stream
		"-ac", "1",
		"-ar", strconv.Itoa(IntermediateRate),
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"pipe:1",
	}

	pcm, err := t.runFFmpeg(ctx, args)
	if err != nil {
		return nil, err
	}

	// A trailing odd byte is dropped
	frames := len(pcm) / 2
	if frames == 0 {
		return nil, ErrEmptyAudio
	}

	out := NewPCMBuffer(IntermediateRate, 1, frames)
	for i := 0; i < frames; i++ {
		out.Channels[0][i] = s16ToFloat(pcm[i*2:])
	}
	return out, nil
}

// runFFmpeg executes ffmpeg and returns stdout, or a ProcessError carrying
// stderr if the command fails.
func (t *FFmpegTranscoder) runFFmpeg(ctx context.Context, args []string) ([]byte, error) {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return nil, &ProcessError{
			Tool:     t.ffmpegPath,
			ExitCode: exitCode,
			Stderr:   stderr.String(),
			Err:      err,
		}
	}

	return stdout.Bytes(), nil
}

// ProcessError represents a failed external tool run, including stderr.
type ProcessError struct {
	Tool     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s failed (exit %d): %v: %s", e.Tool, e.ExitCode, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s failed (exit %d): %v", e.Tool, e.ExitCode, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// Verify interface implementation at compile time.
var _ Decoder = (*FFmpegTranscoder)(nil)
