package worker

import (
	"context"
	"time"

	"uow-service/internal/application"
	"uow-service/internal/infrastructure/config"

	"go.uber.org/zap"
)

var _ application.Worker = (*DbWorker)(nil)

// Processor commits one claimed job and stores its outcome.
type Processor interface {
	ProcessJob(ctx context.Context, job application.QueuedJob) error
}

// DbWorker polls the commit_jobs queue and hands claimed batches to the
// processor one at a time.
type DbWorker struct {
	Jobs      application.CommitJobRepo
	Processor Processor

	PollEvery  time.Duration
	BatchLimit int
	Log        *zap.Logger
}

func (w *DbWorker) Start(ctx context.Context) {
	log := w.Log
	if log == nil {
		log = zap.NewNop()
	}
	if w.PollEvery <= 0 {
		w.PollEvery = config.DefaultWorkerPoll
	}
	if w.BatchLimit <= 0 {
		w.BatchLimit = config.DefaultWorkerBatch
	}

	t := time.NewTicker(w.PollEvery)
	defer t.Stop()

	log.Info("db_worker_started", zap.Duration("poll_every", w.PollEvery), zap.Int("batch_limit", w.BatchLimit))
	for {
		select {
		case <-ctx.Done():
			log.Info("db_worker_stopped")
			return
		case <-t.C:
			w.Tick(ctx)
		}
	}
}

// Tick claims up to BatchLimit queued jobs and processes them. It returns the
// number of jobs claimed.
func (w *DbWorker) Tick(ctx context.Context) int {
	log := w.Log
	if log == nil {
		log = zap.NewNop()
	}
	limit := w.BatchLimit
	if limit <= 0 {
		limit = config.DefaultWorkerBatch
	}
	jobs, err := w.Jobs.ClaimQueued(ctx, limit)
	if err != nil {
		log.Warn("claim_failed", zap.Error(err))
		return 0
	}
	for _, j := range jobs {
		if err := w.Processor.ProcessJob(ctx, j); err != nil {
			log.Warn("job_complete_failed", zap.String("id", j.ID), zap.Error(err))
			continue
		}
		log.Debug("job_processed", zap.String("id", j.ID), zap.Int("ops", len(j.Batch.Ops)))
	}
	return len(jobs)
}
