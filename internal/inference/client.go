package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Static errors for inference client operations.
var (
	// ErrBaseURLRequired is returned when the API base URL is not provided.
	ErrBaseURLRequired = errors.New("inference: base URL is required")
	// ErrEndpointIDRequired is returned when the endpoint ID is not provided.
	ErrEndpointIDRequired = errors.New("inference: endpoint ID is required")
	// ErrAPIKeyNotSet is returned when no API key is configured.
	ErrAPIKeyNotSet = errors.New("inference: INFERENCE_API_KEY environment variable is not set")
	// ErrJobIDRequired is returned when the job ID is not provided.
	ErrJobIDRequired = errors.New("inference: job ID is required")
	// ErrNoJobIDReturned is returned when the submit response contains no job ID.
	ErrNoJobIDReturned = errors.New("inference: submit failed: no job ID returned")
	// ErrSubmitFailed is returned when the submit operation fails.
	ErrSubmitFailed = errors.New("inference: submit failed")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("inference: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("inference: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("inference: request failed")
)

// Client defines the interface for interacting with the inference endpoint.
type Client interface {
	// Submit queues a transcription job and returns its ID.
	Submit(ctx context.Context, req SubmitRequest) (jobID string, err error)

	// Poll checks the status of a job and returns the result.
	Poll(ctx context.Context, jobID string) (PollResult, error)

	// Health reports whether the endpoint is reachable and its capacity.
	Health(ctx context.Context) (Health, error)
}

// HTTPClient is the HTTP implementation of Client. Every call goes to
// {baseURL}/{endpointID}/...
type HTTPClient struct {
	endpointURL string
	apiKey      string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) ClientOption {
	return func(hc *HTTPClient) {
		hc.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithMaxRetries sets how many times a transient failure is retried.
func WithMaxRetries(n int) ClientOption {
	return func(hc *HTTPClient) {
		hc.maxRetries = n
	}
}

// WithBaseBackoff sets the wait before the first retry. It doubles on each
// later retry.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseBackoff = d
	}
}

// NewClient creates a client for one endpoint under baseURL.
// The API key can be set via WithAPIKey; otherwise INFERENCE_API_KEY is used.
func NewClient(baseURL, endpointID string, opts ...ClientOption) (*HTTPClient, error) {
	if endpointID == "" {
		return nil, ErrEndpointIDRequired
	}

	c := &HTTPClient{
		// Submit bodies carry a whole song of float32 samples.
		httpClient:  &http.Client{Timeout: 2 * time.Minute},
		maxRetries:  3,
		baseBackoff: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey == "" {
		c.apiKey = os.Getenv("INFERENCE_API_KEY")
	}
	if c.apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}

	c.endpointURL = strings.TrimRight(baseURL, "/") + "/" + url.PathEscape(endpointID)
	return c, nil
}

// Submit queues a transcription job and returns its ID.
func (c *HTTPClient) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	in := runRequest{
		Input: runInput{
			AudioBase64: req.AudioBase64,
			Encoding:    "float32le",
			SampleRate:  req.SampleRate,
			Thresholds:  req.Thresholds,
		},
	}

	var resp runResponse
	if err := c.call(ctx, http.MethodPost, "/run", in, &resp); err != nil {
		return "", err
	}

	switch {
	case resp.ID != "":
		return resp.ID, nil
	case resp.Error != "":
		return "", fmt.Errorf("%w: %s", ErrSubmitFailed, resp.Error)
	default:
		return "", ErrNoJobIDReturned
	}
}

// Poll checks the status of a job and returns the result.
func (c *HTTPClient) Poll(ctx context.Context, jobID string) (PollResult, error) {
	if jobID == "" {
		return PollResult{}, ErrJobIDRequired
	}

	var resp statusResponse
	if err := c.call(ctx, http.MethodGet, "/status/"+url.PathEscape(jobID), nil, &resp); err != nil {
		return PollResult{}, err
	}

	result := PollResult{Status: Status(resp.Status)}
	switch result.Status {
	case StatusCompleted:
		result.Notes = resp.Output.Notes
	case StatusFailed:
		result.Error = resp.Error
	}
	return result, nil
}

// Health reports endpoint capacity. A failed request means the endpoint is
// unreachable or the credentials are rejected.
func (c *HTTPClient) Health(ctx context.Context) (Health, error) {
	var resp healthResponse
	if err := c.call(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return Health{}, err
	}

	return Health{
		IdleWorkers:    resp.Workers.Idle,
		RunningWorkers: resp.Workers.Running,
		QueuedJobs:     resp.Jobs.InQueue,
	}, nil
}

// call sends in as JSON to path and decodes the reply into out. Transport
// failures, 5xx and 429 replies are retried with a doubling backoff.
func (c *HTTPClient) call(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("inference: marshal request: %w", err)
		}
	}

	wait := c.baseBackoff
	for attempt := 0; ; attempt++ {
		err := c.send(ctx, method, c.endpointURL+path, body, out)
		var transient *transientError
		if err == nil || !errors.As(err, &transient) {
			return err
		}
		if attempt >= c.maxRetries {
			return fmt.Errorf("inference: giving up after %d attempts: %w", attempt+1, transient.err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("inference: context cancelled: %w", ctx.Err())
		case <-timer.C:
		}
		wait *= 2
	}
}

// send performs one request. Failures worth retrying come back as
// *transientError.
func (c *HTTPClient) send(ctx context.Context, method, target string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("inference: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("inference: request cancelled: %w", err)
		}
		return &transientError{fmt.Errorf("inference: %s %s: %w", method, target, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return &transientError{fmt.Errorf("inference: read response: %w", err)}
	}

	if err := statusError(resp.StatusCode, payload); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("inference: unmarshal response: %w", err)
	}
	return nil
}

// statusError maps a non-2xx reply to an error.
func statusError(code int, payload []byte) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return &transientError{fmt.Errorf("%w: %s", ErrRateLimited, payload)}
	case code >= 500:
		return &transientError{fmt.Errorf("%w %d: %s", ErrServerError, code, payload)}
	default:
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, code, payload)
	}
}

// transientError marks a failure that may succeed on retry.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() error { return e.err }

// Verify interface implementation at compile time.
var _ Client = (*HTTPClient)(nil)
