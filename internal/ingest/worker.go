package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/salesdash/internal/storage"
)

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id, resultJSON string) error
	FailJob(id string, errMsg string) error
}

// JobEnqueuer adds jobs to the queue.
type JobEnqueuer interface {
	EnqueueJob(job storage.Job) error
}

// FileLoader loads a sales file into the store.
type FileLoader interface {
	LoadFile(ctx context.Context, path string) (LoadStats, error)
}

type loadPayload struct {
	Path string `json:"path"`
}

// EnqueueLoad queues a load of path and returns the job ID.
func EnqueueLoad(q JobEnqueuer, path string) (string, error) {
	payload, err := json.Marshal(loadPayload{Path: path})
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	if err := q.EnqueueJob(storage.Job{ID: id, Type: storage.JobTypeLoadCSV, PayloadJSON: string(payload)}); err != nil {
		return "", fmt.Errorf("enqueueing load job: %w", err)
	}
	return id, nil
}

// Worker processes load_csv jobs from the job queue. It is the only writer
// to the sales table while the server runs.
type Worker struct {
	store   JobStore
	loader  FileLoader
	poll    time.Duration
	logger  *slog.Logger
	marshal func(v any) ([]byte, error)
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, loader FileLoader, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:   store,
		loader:  loader,
		poll:    pollInterval,
		logger:  slog.Default(),
		marshal: json.Marshal,
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single load job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{storage.JobTypeLoadCSV})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	stats, err := w.processJob(ctx, job)
	if err != nil {
		w.fail(job, err)
		return true, nil
	}

	result, err := w.marshal(stats)
	if err != nil {
		w.fail(job, fmt.Errorf("encoding result: %w", err))
		return true, nil
	}
	if err := w.store.CompleteJob(job.ID, string(result)); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) fail(job *storage.Job, err error) {
	w.logger.Warn("job failed", "job_id", job.ID, "attempt", job.Attempts+1, "error", err)
	if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
		w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
	}
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) (LoadStats, error) {
	var payload loadPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return LoadStats{}, fmt.Errorf("parsing payload: %w", err)
	}
	if payload.Path == "" {
		return LoadStats{}, fmt.Errorf("payload has no path")
	}
	return w.loader.LoadFile(ctx, payload.Path)
}

// SalesCounter reports how many rows are loaded.
type SalesCounter interface {
	CountSales(ctx context.Context) (int64, error)
}

// LoadIfEmpty loads path when the store holds no sales yet. It reports
// whether a load happened.
func LoadIfEmpty(ctx context.Context, store SalesCounter, loader FileLoader, path string) (LoadStats, bool, error) {
	n, err := store.CountSales(ctx)
	if err != nil {
		return LoadStats{}, false, fmt.Errorf("counting sales: %w", err)
	}
	if n > 0 || path == "" {
		return LoadStats{}, false, nil
	}
	stats, err := loader.LoadFile(ctx, path)
	if err != nil {
		return LoadStats{}, false, err
	}
	return stats, true, nil
}
