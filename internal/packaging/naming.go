package packaging

import (
	"regexp"
	"strings"
)

const (
	// MaxNameLength bounds sanitized names, excluding the suffix.
	MaxNameLength = 200
	// DefaultArchiveName is used when no archive name is supplied.
	DefaultArchiveName = "midi_files.zip"

	fallbackName = "output"
)

var (
	unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_\- ]`)
	separators  = regexp.MustCompile(`[-\s]+`)
)

// Sanitize strips everything outside [A-Za-z0-9_- ], collapses runs of
// hyphens and whitespace to a single underscore and truncates the result.
func Sanitize(name string) string {
	name = unsafeChars.ReplaceAllString(name, "")
	name = separators.ReplaceAllString(name, "_")
	if len(name) > MaxNameLength {
		name = name[:MaxNameLength]
	}
	return name
}

// MIDIName sanitizes name and appends ".mid".
// "My Song! (Live).mp3" becomes "My_Song_Livemp3.mid".
func MIDIName(name string) string {
	return withSuffix(Sanitize(name), ".mid")
}

// ArchiveName sanitizes a user supplied archive name and appends ".zip".
// An empty name yields DefaultArchiveName.
func ArchiveName(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return DefaultArchiveName
	}
	trimmed = strings.TrimSuffix(trimmed, ".zip")
	return withSuffix(Sanitize(trimmed), ".zip")
}

func withSuffix(name, suffix string) string {
	if name == "" {
		name = fallbackName
	}
	if !strings.HasSuffix(name, suffix) {
		name += suffix
	}
	return name
}

// originalName maps "song.mid" to "song.mp3".
func originalName(midiName string) string {
	return strings.TrimSuffix(midiName, ".mid") + ".mp3"
}
