// Package batch runs audio sources through the conversion pipeline and
// tracks the state of each conversion run.
package batch

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maauso/audio2midi/internal/batch/id"
	"github.com/maauso/audio2midi/internal/packaging"
	"github.com/maauso/audio2midi/internal/source"
)

// State is the externally visible state of a batch.
type State string

const (
	// StateIdle indicates the batch has not started.
	StateIdle State = "IDLE"
	// StateRunning indicates items are being processed.
	StateRunning State = "RUNNING"
	// StateCompleted indicates every item was attempted. Individual items
	// may still have failed.
	StateCompleted State = "COMPLETED"
	// StateCancelled indicates a cancel request stopped the batch between
	// items.
	StateCancelled State = "CANCELLED"
	// StateFailed indicates the batch could not run at all.
	StateFailed State = "FAILED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("batch: invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[State][]State{
	StateIdle:      {StateRunning},
	StateRunning:   {StateCompleted, StateCancelled, StateFailed},
	StateCompleted: {StateIdle},
	StateCancelled: {StateIdle},
	StateFailed:    {StateIdle},
}

// canTransition checks if a transition from one state to another is valid.
func canTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true for states a running batch ends in.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Result is one successfully converted source.
type Result struct {
	Index      int
	SourceName string
	OutputName string
	MIDIBytes  []byte
	// SourceBytes is the original container, kept only when requested.
	SourceBytes []byte
	NoteCount   int
	Dropped     int
	Duration    float64
}

// Job is the state of one conversion run. The orchestrator is its only
// writer; everyone else reads through Clone.
type Job struct {
	mu sync.RWMutex

	// cancelRequested may be set from any goroutine.
	cancelRequested atomic.Bool

	ID       string
	Sources  []source.AudioSource
	Settings Settings
	State    State
	// Cursor is the index of the item in flight, or len(Sources) when done.
	Cursor  int
	Results []Result
	Errors  []ItemError
	// Failure describes why a batch ended in StateFailed.
	Failure     string
	FailureKind ErrorKind

	// Delivery and Locations are set once results are packaged.
	Delivery      *packaging.Delivery
	Locations     []string
	DeliveryError string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// NewJob creates an idle job with a generated ID.
func NewJob(sources []source.AudioSource, settings Settings) *Job {
	return NewJobWithID(id.Generate(), sources, settings)
}

// NewJobWithID creates an idle job with the specified ID.
// Useful for testing or when the ID needs to be externally generated.
func NewJobWithID(jobID string, sources []source.AudioSource, settings Settings) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Sources:   sources,
		Settings:  settings,
		State:     StateIdle,
		Results:   make([]Result, 0, len(sources)),
		Errors:    make([]ItemError, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(state State) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(state)
}

func (j *Job) transitionLocked(state State) error {
	if !canTransition(j.State, state) {
		return ErrInvalidTransition
	}

	j.State = state
	j.UpdatedAt = time.Now()

	switch state {
	case StateRunning:
		j.StartedAt = j.UpdatedAt
	case StateCompleted, StateCancelled, StateFailed:
		j.CompletedAt = j.UpdatedAt
	}
	return nil
}

// Start moves an idle job to running and clears the outcome of any previous
// run.
func (j *Job) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.transitionLocked(StateRunning); err != nil {
		return err
	}
	j.Cursor = 0
	j.Results = make([]Result, 0, len(j.Sources))
	j.Errors = make([]ItemError, 0)
	j.Failure = ""
	j.FailureKind = ""
	j.Delivery = nil
	j.Locations = nil
	j.DeliveryError = ""
	return nil
}

// Reset returns a finished job to idle so it can be started again.
func (j *Job) Reset() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.transitionLocked(StateIdle); err != nil {
		return err
	}
	j.cancelRequested.Store(false)
	return nil
}

// RequestCancel asks the orchestrator to stop before the next item.
// It is safe to call from any goroutine.
func (j *Job) RequestCancel() {
	j.cancelRequested.Store(true)
}

// CancelRequested reports whether RequestCancel was called.
func (j *Job) CancelRequested() bool {
	return j.cancelRequested.Load()
}

// GetState returns the current state (thread-safe).
func (j *Job) GetState() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.State
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	return j.GetState().IsTerminal()
}

// Total returns the number of sources.
func (j *Job) Total() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.Sources)
}

func (j *Job) sourceAt(i int) source.AudioSource {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Sources[i]
}

// releaseSource drops the container bytes of source i once it has been
// decoded. A result keeps its own reference when originals are retained.
func (j *Job) releaseSource(i int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Sources[i].RawBytes = nil
}

// releasePayloads drops result bytes once they have been published. Single
// and archive artifacts stay for download; individual files are served from
// their published locations.
func (j *Job) releasePayloads() {
	j.mu.Lock()
	defer j.mu.Unlock()

	for i := range j.Results {
		j.Results[i].MIDIBytes = nil
		j.Results[i].SourceBytes = nil
	}
	if j.Delivery != nil && j.Delivery.Mode == packaging.ModeIndividual {
		d := &packaging.Delivery{Mode: j.Delivery.Mode, Artifacts: make([]packaging.Artifact, len(j.Delivery.Artifacts))}
		for i, a := range j.Delivery.Artifacts {
			a.Data = nil
			d.Artifacts[i] = a
		}
		j.Delivery = d
	}
}

func (j *Job) setCursor(i int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Cursor = i
	j.UpdatedAt = time.Now()
}

func (j *Job) addResult(r Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Results = append(j.Results, r)
	j.UpdatedAt = time.Now()
}

func (j *Job) addError(e ItemError) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Errors = append(j.Errors, e)
	j.UpdatedAt = time.Now()
}

func (j *Job) fail(kind ErrorKind, msg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Failure = msg
	j.FailureKind = kind
	return j.transitionLocked(StateFailed)
}

// SetDelivery records the packaged output and where it was published.
func (j *Job) SetDelivery(d *packaging.Delivery, locations []string, deliveryErr error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Delivery = d
	j.Locations = locations
	j.DeliveryError = ""
	if deliveryErr != nil {
		j.DeliveryError = deliveryErr.Error()
	}
	j.UpdatedAt = time.Now()
}

// Clone creates a copy of the job for safe reads. Byte buffers are shared;
// they are never written after a Result is recorded.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	c := &Job{
		ID:            j.ID,
		Sources:       append([]source.AudioSource(nil), j.Sources...),
		Settings:      j.Settings,
		State:         j.State,
		Cursor:        j.Cursor,
		Results:       append([]Result(nil), j.Results...),
		Errors:        append([]ItemError(nil), j.Errors...),
		Failure:       j.Failure,
		FailureKind:   j.FailureKind,
		Delivery:      j.Delivery,
		Locations:     append([]string(nil), j.Locations...),
		DeliveryError: j.DeliveryError,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
		StartedAt:     j.StartedAt,
		CompletedAt:   j.CompletedAt,
	}
	c.cancelRequested.Store(j.cancelRequested.Load())
	return c
}
