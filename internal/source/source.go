// Package source normalizes remote URLs and local uploads into AudioSource
// values the conversion pipeline can consume.
package source

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Static errors for source acquisition.
var (
	// ErrInvalidURL is returned when a URL is not a recognized YouTube link.
	ErrInvalidURL = errors.New("source: invalid YouTube URL")
	// ErrNetwork is returned when a remote source cannot be fetched.
	ErrNetwork = errors.New("source: network error")
	// ErrNoAudioFiles is returned when filtering leaves no audio uploads.
	ErrNoAudioFiles = errors.New("source: no audio files provided")
)

// Origin describes where an AudioSource came from.
type Origin string

// Source origins.
const (
	OriginRemoteURL   Origin = "remote_url"
	OriginLocalUpload Origin = "local_upload"
)

// AudioSource is one input to a batch. Values are never mutated in place;
// acquisition returns a new AudioSource.
type AudioSource struct {
	Origin        Origin
	URL           string
	RawBytes      []byte
	SuggestedName string
}

// Acquired reports whether the source needs no download. Local uploads are
// always acquired, even when empty.
func (s AudioSource) Acquired() bool {
	return s.Origin != OriginRemoteURL || len(s.RawBytes) > 0
}

// DisplayName returns a human readable label for progress and errors.
func (s AudioSource) DisplayName() string {
	if s.SuggestedName != "" {
		return s.SuggestedName
	}
	return s.URL
}

var youTubePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https?://(www\.|m\.|music\.)?youtube\.com/watch\?(.*&)?v=[\w-]+`),
	regexp.MustCompile(`^https?://youtu\.be/[\w-]+`),
}

// IsYouTubeURL checks if the given string is a youtube.com/watch?v= or
// youtu.be/ link.
func IsYouTubeURL(url string) bool {
	for _, p := range youTubePatterns {
		if p.MatchString(url) {
			return true
		}
	}
	return false
}

// FromURL creates an unacquired remote source. The URL is validated here so
// malformed input never reaches the network.
func FromURL(url string) (AudioSource, error) {
	url = strings.TrimSpace(url)
	if !IsYouTubeURL(url) {
		return AudioSource{}, fmt.Errorf("%w: %q", ErrInvalidURL, url)
	}
	return AudioSource{Origin: OriginRemoteURL, URL: url}, nil
}

// FromBytes creates an already acquired local source.
func FromBytes(name string, data []byte) AudioSource {
	return AudioSource{Origin: OriginLocalUpload, RawBytes: data, SuggestedName: name}
}
