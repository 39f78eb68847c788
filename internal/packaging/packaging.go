// Package packaging turns conversion results into deliverable artifacts: a
// single MIDI file, individual files, or one zip archive.
package packaging

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
)

// ErrNothingConverted is returned when there are no results to deliver.
var ErrNothingConverted = errors.New("packaging: no files converted")

// Content types for published artifacts.
const (
	ContentTypeMIDI = "audio/midi"
	ContentTypeZip  = "application/zip"
)

// Mode describes how results are delivered.
type Mode string

// Delivery modes.
const (
	ModeSingle     Mode = "single"
	ModeIndividual Mode = "individual"
	ModeArchive    Mode = "archive"
)

// Entry is one converted item.
type Entry struct {
	Name string // Sanitized, ".mid" suffixed
	MIDI []byte
	// Source is the original container, present only when it was retained.
	Source []byte
}

// Options controls packaging.
type Options struct {
	Archive         bool
	ArchiveName     string
	IncludeOriginal bool
}

// Artifact is one deliverable file.
type Artifact struct {
	Name        string
	ContentType string
	Data        []byte
	// Size is len(Data) at build time. It survives releasing Data.
	Size int
}

// Delivery is the packaged output of a batch.
type Delivery struct {
	Mode      Mode
	Artifacts []Artifact
}

// Build packages entries. A single entry is always delivered as-is; several
// entries become one archive when requested, otherwise individual files.
// Duplicate names get a numeric suffix so no entry shadows another.
func Build(entries []Entry, opts Options) (*Delivery, error) {
	switch {
	case len(entries) == 0:
		return nil, ErrNothingConverted
	case len(entries) == 1:
		return &Delivery{
			Mode:      ModeSingle,
			Artifacts: []Artifact{{Name: entries[0].Name, ContentType: ContentTypeMIDI, Data: entries[0].MIDI, Size: len(entries[0].MIDI)}},
		}, nil
	case opts.Archive:
		data, err := buildArchive(entries, opts.IncludeOriginal)
		if err != nil {
			return nil, err
		}
		return &Delivery{
			Mode:      ModeArchive,
			Artifacts: []Artifact{{Name: ArchiveName(opts.ArchiveName), ContentType: ContentTypeZip, Data: data, Size: len(data)}},
		}, nil
	default:
		names := uniqueNames(entries)
		artifacts := make([]Artifact, len(entries))
		for i, e := range entries {
			artifacts[i] = Artifact{Name: names[i], ContentType: ContentTypeMIDI, Data: e.MIDI, Size: len(e.MIDI)}
		}
		return &Delivery{Mode: ModeIndividual, Artifacts: artifacts}, nil
	}
}

func buildArchive(entries []Entry, includeOriginal bool) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	names := uniqueNames(entries)
	for i, e := range entries {
		if err := writeZipEntry(zw, names[i], e.MIDI); err != nil {
			return nil, err
		}
		if includeOriginal && len(e.Source) > 0 {
			if err := writeZipEntry(zw, originalName(names[i]), e.Source); err != nil {
				return nil, err
			}
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("packaging: finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("packaging: add %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("packaging: write %s: %w", name, err)
	}
	return nil
}

// uniqueNames returns entry names with "_2", "_3", ... inserted before the
// extension of repeated names.
func uniqueNames(entries []Entry) []string {
	used := make(map[string]bool, len(entries))
	names := make([]string, len(entries))
	for i, e := range entries {
		name := e.Name
		ext := path.Ext(name)
		base := strings.TrimSuffix(name, ext)
		for n := 2; used[name]; n++ {
			name = base + "_" + strconv.Itoa(n) + ext
		}
		used[name] = true
		names[i] = name
	}
	return names
}

// Publisher stores artifacts. storage.Storage satisfies it.
type Publisher interface {
	Publish(ctx context.Context, key string, data io.Reader, contentType string) (location string, err error)
}

// Publish stores every artifact of d under prefix and returns their
// locations in artifact order.
func Publish(ctx context.Context, pub Publisher, prefix string, d *Delivery) ([]string, error) {
	locations := make([]string, 0, len(d.Artifacts))
	for _, a := range d.Artifacts {
		key := a.Name
		if prefix != "" {
			key = prefix + "/" + a.Name
		}
		loc, err := pub.Publish(ctx, key, bytes.NewReader(a.Data), a.ContentType)
		if err != nil {
			return locations, fmt.Errorf("packaging: publish %s: %w", a.Name, err)
		}
		locations = append(locations, loc)
	}
	return locations, nil
}
