package batch

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/maauso/audio2midi/internal/packaging"
)

// OutputName picks the MIDI filename for item index (0-based) of total.
// A custom title names a single output verbatim and numbers multiple
// outputs from 1; otherwise the source name without its extension is used.
func OutputName(title string, index, total int, sourceName string) string {
	title = strings.TrimSpace(title)
	switch {
	case title != "" && total == 1:
		return packaging.MIDIName(title)
	case title != "":
		return numberedName(title, index+1)
	default:
		return packaging.MIDIName(baseName(sourceName))
	}
}

// numberedName sanitizes title and truncates it so "_{n}" always survives
// within packaging.MaxNameLength.
func numberedName(title string, n int) string {
	suffix := "_" + strconv.Itoa(n)
	base := packaging.Sanitize(title)
	if base == "" {
		base = "output"
	}
	if limit := packaging.MaxNameLength - len(suffix); len(base) > limit {
		base = base[:limit]
	}
	return packaging.MIDIName(base + suffix)
}

func baseName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" {
		return ""
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}
