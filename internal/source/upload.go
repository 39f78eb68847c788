package source

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// audioExtensions are accepted when the declared media type is missing or
// not audio/*.
var audioExtensions = map[string]bool{
	"mp3":  true,
	"wav":  true,
	"flac": true,
	"m4a":  true,
	"ogg":  true,
	"webm": true,
	"aac":  true,
	"opus": true,
}

// Upload is a file-like object handed over by a surface (multipart part or
// CLI argument).
type Upload struct {
	Name string
	// ContentType is the declared media type. Empty means unknown, in which
	// case the bytes are sniffed.
	ContentType string
	Data        []byte
}

// FilterUploads keeps uploads that look like audio and converts them to
// sources, preserving order. Non-audio entries are dropped and counted.
// ErrNoAudioFiles is returned when nothing survives.
func FilterUploads(uploads []Upload, logger *slog.Logger) ([]AudioSource, int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sources := make([]AudioSource, 0, len(uploads))
	dropped := 0
	for _, u := range uploads {
		if !isAudio(u) {
			dropped++
			continue
		}
		sources = append(sources, FromBytes(u.Name, u.Data))
	}

	if dropped > 0 {
		logger.Warn("skipped non-audio files",
			slog.Int("dropped", dropped),
			slog.Int("kept", len(sources)),
		)
	}

	if len(sources) == 0 {
		return nil, dropped, ErrNoAudioFiles
	}
	return sources, dropped, nil
}

func isAudio(u Upload) bool {
	contentType := u.ContentType
	if contentType == "" && len(u.Data) > 0 {
		contentType = mimetype.Detect(u.Data).String()
	}
	if strings.HasPrefix(strings.ToLower(contentType), "audio/") {
		return true
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(u.Name)), ".")
	return audioExtensions[ext]
}
