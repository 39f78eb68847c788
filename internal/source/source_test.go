package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsYouTubeURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", true},
		{"https://youtube.com/watch?v=dQw4w9WgXcQ&t=42", true},
		{"http://youtube.com/watch?feature=share&v=abc-_12", true},
		{"https://m.youtube.com/watch?v=abc", true},
		{"https://music.youtube.com/watch?v=abc", true},
		{"https://youtu.be/dQw4w9WgXcQ", true},
		{"https://youtube.com/", false},
		{"https://youtube.com/watch?list=PL123", false},
		{"https://vimeo.com/12345", false},
		{"youtube.com/watch?v=abc", false},
		{"https://evil.example/?u=https://youtu.be/abc", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, IsYouTubeURL(tt.url))
		})
	}
}

func TestFromURL(t *testing.T) {
	src, err := FromURL("  https://youtu.be/abc  ")
	require.NoError(t, err)
	assert.Equal(t, OriginRemoteURL, src.Origin)
	assert.Equal(t, "https://youtu.be/abc", src.URL)
	assert.False(t, src.Acquired())
	assert.Equal(t, "https://youtu.be/abc", src.DisplayName())

	_, err = FromURL("https://example.com/song.mp3")
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestFromBytes(t *testing.T) {
	src := FromBytes("song.wav", []byte("RIFF"))
	assert.Equal(t, OriginLocalUpload, src.Origin)
	assert.True(t, src.Acquired())
	assert.Equal(t, "song.wav", src.DisplayName())

	empty := FromBytes("empty.wav", nil)
	assert.True(t, empty.Acquired(), "an empty upload never goes to the downloader")
}

func TestFilterUploads(t *testing.T) {
	wavHeader := []byte("RIFF\x24\x00\x00\x00WAVEfmt ")

	uploads := []Upload{
		{Name: "a.mp3", ContentType: "audio/mpeg", Data: []byte{1}},
		{Name: "notes.txt", ContentType: "text/plain", Data: []byte("hello")},
		{Name: "b.flac", ContentType: "application/octet-stream", Data: []byte{2}},
		{Name: "noext", ContentType: "", Data: wavHeader},
		{Name: "cover.png", ContentType: "image/png", Data: []byte{3}},
		{Name: "c.OPUS", ContentType: "", Data: []byte("plain text")},
	}

	sources, dropped, err := FilterUploads(uploads, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, dropped)
	require.Len(t, sources, 4)
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.SuggestedName
		assert.Equal(t, OriginLocalUpload, s.Origin)
	}
	assert.Equal(t, []string{"a.mp3", "b.flac", "noext", "c.OPUS"}, names)
}

func TestFilterUploads_NothingLeft(t *testing.T) {
	_, dropped, err := FilterUploads([]Upload{{Name: "x.pdf", ContentType: "application/pdf"}}, nil)
	assert.ErrorIs(t, err, ErrNoAudioFiles)
	assert.Equal(t, 1, dropped)

	_, _, err = FilterUploads(nil, nil)
	assert.ErrorIs(t, err, ErrNoAudioFiles)
}
