package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bep/debounce"
	"github.com/maauso/audio2midi/internal/packaging"
	"github.com/maauso/audio2midi/internal/source"
)

// Static errors for the service.
var (
	// ErrNotFinished is returned when output is requested before a batch ends.
	ErrNotFinished = errors.New("batch: not finished")
	// ErrNotSingleArtifact is returned when a delivery has several artifacts.
	ErrNotSingleArtifact = errors.New("batch: delivery has no single artifact")
	// ErrAlreadyRunning is returned when a running batch is started again.
	ErrAlreadyRunning = errors.New("batch: already running")
)

// DefaultSaveInterval is how long progress snapshots are debounced.
const DefaultSaveInterval = 250 * time.Millisecond

// Service creates batches, runs them through an Orchestrator, packages the
// results and keeps repository snapshots current.
type Service struct {
	repo      Repository
	orch      *Orchestrator
	publisher packaging.Publisher
	logger    *slog.Logger

	saveInterval time.Duration
	listener     func(Event)
	flatPublish  bool

	mu     sync.Mutex
	active map[string]*Job
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithEventListener registers fn to receive every progress event in order.
func WithEventListener(fn func(Event)) ServiceOption {
	return func(s *Service) {
		s.listener = fn
	}
}

// WithSaveInterval sets the debounce interval for progress snapshots.
func WithSaveInterval(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.saveInterval = d
		}
	}
}

// WithFlatPublish publishes artifacts at the root of the store instead of
// under the batch ID.
func WithFlatPublish() ServiceOption {
	return func(s *Service) {
		s.flatPublish = true
	}
}

// NewService creates a new Service.
func NewService(repo Repository, orch *Orchestrator, publisher packaging.Publisher, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:         repo,
		orch:         orch,
		publisher:    publisher,
		logger:       logger,
		saveInterval: DefaultSaveInterval,
		active:       make(map[string]*Job),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates settings and stores a new idle batch.
func (s *Service) Create(ctx context.Context, sources []source.AudioSource, settings Settings) (*Job, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	job := NewJob(sources, settings)
	s.logger.Info("creating batch",
		slog.String("batch_id", job.ID),
		slog.Int("sources", len(sources)),
		slog.Bool("archive", settings.ArchiveOutput),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save batch",
			slog.String("batch_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return job.Clone(), nil
}

// Get retrieves a batch snapshot by ID.
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns every batch snapshot.
func (s *Service) List(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// Start runs the batch in the background. The run is detached from ctx;
// use Cancel to stop it.
func (s *Service) Start(ctx context.Context, id string) error {
	job, err := s.claim(ctx, id)
	if err != nil {
		return err
	}
	go func() {
		if _, err := s.run(context.WithoutCancel(ctx), job); err != nil {
			s.logger.Warn("batch failed",
				slog.String("batch_id", id),
				slog.String("error", err.Error()),
			)
		}
	}()
	return nil
}

// Process runs the batch to a terminal state and packages its results.
// Cancelling ctx stops the batch before the next item. The returned error
// is non-nil only when the batch could not run.
func (s *Service) Process(ctx context.Context, id string) (*Job, error) {
	job, err := s.claim(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, job)
}

// Cancel asks a running batch to stop before its next item.
func (s *Service) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	job, ok := s.active[id]
	s.mu.Unlock()
	if ok {
		job.RequestCancel()
		s.logger.Info("batch cancel requested", slog.String("batch_id", id))
		return nil
	}

	snap, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if snap.IsTerminal() {
		return ErrInvalidTransition
	}
	return nil
}

// Artifact returns the one downloadable artifact of a finished batch.
func (s *Service) Artifact(ctx context.Context, id string) (*packaging.Artifact, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.IsTerminal() {
		return nil, ErrNotFinished
	}
	if job.Delivery == nil {
		return nil, packaging.ErrNothingConverted
	}
	if job.Delivery.Mode == packaging.ModeIndividual {
		return nil, ErrNotSingleArtifact
	}
	a := job.Delivery.Artifacts[0]
	return &a, nil
}

// claim loads a batch and marks it active. A finished batch is reset so it
// can run again.
func (s *Service) claim(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.active[id]; ok {
		return nil, ErrAlreadyRunning
	}
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		if err := job.Reset(); err != nil {
			return nil, err
		}
	}
	s.active[id] = job
	return job, nil
}

func (s *Service) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}

func (s *Service) run(ctx context.Context, job *Job) (*Job, error) {
	defer s.release(job.ID)

	saveCtx := context.WithoutCancel(ctx)
	save := debounce.New(s.saveInterval)
	// Set once the run is over so late debounced saves cannot resurrect a
	// swept batch.
	var finished atomic.Bool
	events := make(chan Event, 16)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for e := range events {
			if s.listener != nil {
				s.listener(e)
			}
			save(func() {
				if !finished.Load() {
					s.save(saveCtx, job)
				}
			})
		}
	}()

	runErr := s.orch.Run(ctx, job, events)
	<-done
	finished.Store(true)

	if state := job.GetState(); state == StateCompleted || state == StateCancelled {
		s.deliver(saveCtx, job)
	}

	s.save(saveCtx, job)
	return job.Clone(), runErr
}

// deliver packages the results of job and publishes them.
func (s *Service) deliver(ctx context.Context, job *Job) {
	snap := job.Clone()
	entries := make([]packaging.Entry, len(snap.Results))
	for i, r := range snap.Results {
		entries[i] = packaging.Entry{Name: r.OutputName, MIDI: r.MIDIBytes, Source: r.SourceBytes}
	}

	delivery, err := packaging.Build(entries, packaging.Options{
		Archive:         snap.Settings.ArchiveOutput,
		ArchiveName:     snap.Settings.ArchiveName,
		IncludeOriginal: snap.Settings.IncludeOriginalInArchive,
	})
	if err != nil {
		job.SetDelivery(nil, nil, err)
		return
	}

	prefix := job.ID
	if s.flatPublish {
		prefix = ""
	}
	locations, err := packaging.Publish(ctx, s.publisher, prefix, delivery)
	if err != nil {
		s.logger.Error("failed to publish batch output",
			slog.String("batch_id", job.ID),
			slog.String("error", err.Error()),
		)
		err = fmt.Errorf("publish: %w", err)
		job.SetDelivery(delivery, locations, err)
		return
	}

	s.logger.Info("batch output published",
		slog.String("batch_id", job.ID),
		slog.String("mode", string(delivery.Mode)),
		slog.Int("artifacts", len(locations)),
	)
	job.SetDelivery(delivery, locations, nil)
	job.releasePayloads()
}

// Sweep deletes batches that are not running and were last updated at or
// before now minus maxAge. It returns how many were deleted.
func (s *Service) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.repo.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	deleted := 0
	for _, job := range jobs {
		if _, ok := s.active[job.ID]; ok || job.UpdatedAt.After(cutoff) {
			continue
		}
		if err := s.repo.Delete(ctx, job.ID); err != nil && !errors.Is(err, ErrBatchNotFound) {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, maxAge, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx, maxAge)
			if err != nil {
				s.logger.Error("failed to sweep batches", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				s.logger.Info("swept expired batches", slog.Int("deleted", n))
			}
		}
	}
}

func (s *Service) save(ctx context.Context, job *Job) {
	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save batch snapshot",
			slog.String("batch_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}
