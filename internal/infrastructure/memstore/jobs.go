package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"uow-service/internal/application"
	"uow-service/internal/domain"

	"github.com/google/uuid"
)

var _ application.CommitJobRepo = (*JobRepo)(nil)

type jobEntry struct {
	job       domain.CommitJob
	batch     application.Batch
	requested time.Time
}

// JobRepo keeps commit jobs in memory.
type JobRepo struct {
	mu   sync.RWMutex
	jobs map[string]*jobEntry
}

func NewJobRepo() *JobRepo { return &JobRepo{jobs: map[string]*jobEntry{}} }

func (r *JobRepo) CreateQueued(_ context.Context, b application.Batch) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.NewString()
	now := time.Now().UTC()
	r.jobs[id] = &jobEntry{
		job:       domain.CommitJob{ID: id, Status: domain.CommitJobStatusQueued, UpdatedAt: now},
		batch:     b,
		requested: now,
	}
	return id, nil
}

func (r *JobRepo) GetByID(_ context.Context, id string) (domain.CommitJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.jobs[id]
	if !ok {
		return domain.CommitJob{}, application.ErrNotFound
	}
	return e.job, nil
}

func (r *JobRepo) ClaimQueued(_ context.Context, limit int) ([]application.QueuedJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var queued []*jobEntry
	for _, e := range r.jobs {
		if e.job.Status == domain.CommitJobStatusQueued {
			queued = append(queued, e)
		}
	}
	sort.Slice(queued, func(i, j int) bool { return queued[i].requested.Before(queued[j].requested) })
	if limit > 0 && len(queued) > limit {
		queued = queued[:limit]
	}
	out := make([]application.QueuedJob, 0, len(queued))
	for _, e := range queued {
		e.job.Status = domain.CommitJobStatusProcessing
		e.job.UpdatedAt = time.Now().UTC()
		out = append(out, application.QueuedJob{ID: e.job.ID, Batch: e.batch})
	}
	return out, nil
}

func (r *JobRepo) Complete(_ context.Context, id string, st domain.CommitJobStatus, res *domain.CommitResult, errMsg *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[id]
	if !ok {
		return application.ErrNotFound
	}
	e.job.Status, e.job.Result, e.job.Error = st, res, errMsg
	e.job.UpdatedAt = time.Now().UTC()
	return nil
}
