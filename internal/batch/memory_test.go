package batch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryRepository_SaveAndFind(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := NewJob(uploads("a.wav"), Settings{})

	if err := repo.Save(ctx, job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	saved, err := repo.FindByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.ID != job.ID {
		t.Errorf("expected ID %s, got %s", job.ID, saved.ID)
	}
	if saved == job {
		t.Error("expected a copy, got the original pointer")
	}
}

func TestMemoryRepository_SnapshotIsolation(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := NewJob(uploads("a.wav"), Settings{})
	_ = repo.Save(ctx, job)

	// Mutations after Save are not visible until the next Save
	_ = job.Start()
	saved, _ := repo.FindByID(ctx, job.ID)
	if saved.State != StateIdle {
		t.Errorf("expected stored state %s, got %s", StateIdle, saved.State)
	}

	_ = repo.Save(ctx, job)
	saved, _ = repo.FindByID(ctx, job.ID)
	if saved.State != StateRunning {
		t.Errorf("expected stored state %s, got %s", StateRunning, saved.State)
	}

	// Mutating a found copy does not change the store
	saved.State = StateFailed
	again, _ := repo.FindByID(ctx, job.ID)
	if again.State != StateRunning {
		t.Errorf("expected stored state %s, got %s", StateRunning, again.State)
	}
}

func TestMemoryRepository_FindByID_NotFound(t *testing.T) {
	repo := NewMemoryRepository()

	_, err := repo.FindByID(context.Background(), "missing")
	if !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("expected ErrBatchNotFound, got %v", err)
	}
}

func TestMemoryRepository_List(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	jobs, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("expected 0 jobs, got %d", len(jobs))
	}

	first := NewJobWithID("batch-1", nil, Settings{})
	second := NewJobWithID("batch-2", nil, Settings{})
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	_ = repo.Save(ctx, second)
	_ = repo.Save(ctx, first)

	jobs, _ = repo.List(ctx)
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != "batch-1" || jobs[1].ID != "batch-2" {
		t.Errorf("expected oldest first, got %s, %s", jobs[0].ID, jobs[1].ID)
	}
}

func TestMemoryRepository_Delete(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := NewJob(nil, Settings{})
	_ = repo.Save(ctx, job)

	if err := repo.Delete(ctx, job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := repo.FindByID(ctx, job.ID); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("expected ErrBatchNotFound after delete, got %v", err)
	}
	if err := repo.Delete(ctx, job.ID); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("expected ErrBatchNotFound, got %v", err)
	}
}
