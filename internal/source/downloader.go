package source

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// DefaultDownloadName is used when the download service sends no filename.
const DefaultDownloadName = "download.mp3"

// Downloader fetches remote sources through the download service:
// GET {baseURL}/download?url=<url>. Requests are not retried.
type Downloader struct {
	baseURL    string
	httpClient *http.Client
}

// DownloaderOption configures a Downloader.
type DownloaderOption func(*Downloader)

// WithDownloadHTTPClient sets a custom HTTP client.
func WithDownloadHTTPClient(c *http.Client) DownloaderOption {
	return func(d *Downloader) {
		d.httpClient = c
	}
}

// NewDownloader creates a Downloader for the service at baseURL.
func NewDownloader(baseURL string, opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		baseURL: strings.TrimRight(baseURL, "/"),
		// No client timeout: a long video can take minutes to fetch.
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Acquire returns src with RawBytes and SuggestedName filled in. Local
// uploads and already downloaded sources are returned unchanged.
func (d *Downloader) Acquire(ctx context.Context, src AudioSource) (AudioSource, error) {
	if src.Acquired() {
		return src, nil
	}
	if !IsYouTubeURL(src.URL) {
		return AudioSource{}, fmt.Errorf("%w: %q", ErrInvalidURL, src.URL)
	}

	data, name, err := d.Download(ctx, src.URL)
	if err != nil {
		return AudioSource{}, err
	}

	return AudioSource{
		Origin:        src.Origin,
		URL:           src.URL,
		RawBytes:      data,
		SuggestedName: name,
	}, nil
}

// Download fetches the audio for videoURL and returns its bytes and the
// filename from Content-Disposition.
func (d *Downloader) Download(ctx context.Context, videoURL string) ([]byte, string, error) {
	if d.baseURL == "" {
		return nil, "", fmt.Errorf("%w: download service URL not configured", ErrNetwork)
	}

	endpoint := d.baseURL + "/download?url=" + url.QueryEscape(videoURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: create request: %w", ErrNetwork, err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", fmt.Errorf("%w: download service returned %d: %s",
			ErrNetwork, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read response: %w", ErrNetwork, err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: download service returned no data", ErrNetwork)
	}

	return data, filenameFromDisposition(resp.Header.Get("Content-Disposition")), nil
}

// filenameFromDisposition extracts a safe base filename, falling back to
// DefaultDownloadName.
func filenameFromDisposition(header string) string {
	if header == "" {
		return DefaultDownloadName
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return DefaultDownloadName
	}
	name := path.Base(strings.ReplaceAll(params["filename"], `\`, "/"))
	if name == "" || name == "." || name == "/" {
		return DefaultDownloadName
	}
	return name
}
