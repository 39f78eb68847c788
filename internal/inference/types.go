// Package inference provides an HTTP client for a serverless note
// transcription endpoint that follows the run / status / health job API.
package inference

// Status represents the status of an inference job.
type Status string

// Job statuses as reported by the endpoint.
const (
	StatusInQueue    Status = "IN_QUEUE"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
	StatusTimedOut   Status = "TIMED_OUT"
)

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	default:
		return false
	}
}

// Thresholds tune the note detector. Zero values let the endpoint choose.
type Thresholds struct {
	Onset        float64 `json:"onset_threshold,omitempty"`
	Frame        float64 `json:"frame_threshold,omitempty"`
	MinNoteLenMS float64 `json:"min_note_length_ms,omitempty"`
}

// DefaultThresholds returns the detector settings used for piano-like input.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Onset:        0.5,
		Frame:        0.3,
		MinNoteLenMS: 58,
	}
}

// SubmitRequest is one transcription job.
type SubmitRequest struct {
	// AudioBase64 holds mono float32 little-endian samples.
	AudioBase64 string
	SampleRate  int
	Thresholds  Thresholds
}

// Note is a detected note as returned by the endpoint.
type Note struct {
	Pitch    int     `json:"pitch"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Velocity int     `json:"velocity,omitempty"`
}

// runRequest represents the request body for the /run endpoint.
type runRequest struct {
	Input runInput `json:"input"`
}

type runInput struct {
	AudioBase64 string `json:"audio_base64"`
	Encoding    string `json:"encoding"`
	SampleRate  int    `json:"sample_rate"`
	Thresholds
}

// runResponse represents the response from the /run endpoint.
type runResponse struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// statusResponse represents the response from the /status endpoint.
type statusResponse struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Output statusOutput `json:"output,omitempty"`
	Error  string       `json:"error,omitempty"`
}

type statusOutput struct {
	Notes []Note `json:"notes,omitempty"`
}

// healthResponse represents the response from the /health endpoint.
type healthResponse struct {
	Workers struct {
		Idle    int `json:"idle"`
		Running int `json:"running"`
	} `json:"workers"`
	Jobs struct {
		InQueue    int `json:"inQueue"`
		InProgress int `json:"inProgress"`
	} `json:"jobs"`
}

// PollResult contains the result of polling a job's status.
type PollResult struct {
	Status Status
	Notes  []Note // Only set when Status is StatusCompleted
	Error  string // Only set when Status is StatusFailed
}

// Health summarizes endpoint capacity.
type Health struct {
	IdleWorkers    int
	RunningWorkers int
	QueuedJobs     int
}
