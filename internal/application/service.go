package application

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"uow-service/internal/domain"
)

// BatchService commits client batches through a fresh unit of work each.
type BatchService struct {
	catalog     *domain.Catalog
	backend     Backend
	tx          TxRunner
	jobs        CommitJobRepo
	idem        IdempotencyStore
	defaultMode domain.CommitMode
	log         *zap.Logger
	idgen       IDGen
}

type Option func(*BatchService)

func WithTxRunner(tx TxRunner) Option { return func(s *BatchService) { s.tx = tx } }
func WithJobs(r CommitJobRepo) Option { return func(s *BatchService) { s.jobs = r } }
func WithIdempotency(st IdempotencyStore) Option { return func(s *BatchService) { s.idem = st } }
func WithDefaultMode(m domain.CommitMode) Option { return func(s *BatchService) { s.defaultMode = m } }
func WithServiceLogger(l *zap.Logger) Option { return func(s *BatchService) { s.log = l } }
func WithIDGen(g IDGen) Option { return func(s *BatchService) { s.idgen = g } }

func NewBatchService(catalog *domain.Catalog, backend Backend, opts ...Option) *BatchService {
	s := &BatchService{
		catalog: catalog,
		backend: backend,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = NoopTx{}
	}
	if s.idem == nil {
		s.idem = NoopIdempotency{}
	}
	if !s.defaultMode.Valid() {
		s.defaultMode = domain.CommitModeAtomic
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.idgen == nil {
		s.idgen = defaultIDGen{}
	}
	return s
}

// Commit stages b into a new unit of work and commits it in b's mode.
// Atomic failures are returned as errors; partial failures are reported in
// the result.
func (s *BatchService) Commit(ctx context.Context, b Batch, idem *string) (domain.CommitResult, error) {
	if _, err := s.mode(b); err != nil {
		return domain.CommitResult{}, err
	}
	if err := s.reserve(ctx, idem); err != nil {
		return domain.CommitResult{}, err
	}
	return s.commit(ctx, b)
}

func (s *BatchService) commit(ctx context.Context, b Batch) (domain.CommitResult, error) {
	mode, err := s.mode(b)
	if err != nil {
		return domain.CommitResult{}, err
	}
	var out domain.CommitResult
	err = s.tx.Do(ctx, func(ctx context.Context) error {
		u, err := NewUnitOfWork(s.catalog, s.backend, s.catalog.Order(),
			WithLogger(s.log),
			WithRefGen(s.idgen),
		)
		if err != nil {
			return err
		}
		sb, err := stageBatch(u, s.catalog, b)
		if err != nil {
			return err
		}
		var ledger FailureLedger
		switch mode {
		case domain.CommitModePartial:
			ledger, err = u.CommitAllowPartialSuccess(ctx)
		default:
			err = u.Commit(ctx)
		}
		if err != nil {
			var pe *PersistenceError
			if errors.As(err, &pe) {
				if key, ok := sb.keyOf(u, pe.Ref); ok {
					return fmt.Errorf("record %q: %w", key, err)
				}
			}
			return err
		}
		out = sb.result(u, mode, ledger)
		return nil
	})
	if err != nil {
		return domain.CommitResult{}, err
	}
	return out, nil
}

// Enqueue validates b's mode and queues it for the worker.
func (s *BatchService) Enqueue(ctx context.Context, b Batch, idem *string) (string, error) {
	if s.jobs == nil {
		return "", fmt.Errorf("async commits are not configured")
	}
	if _, err := s.mode(b); err != nil {
		return "", err
	}
	if err := s.reserve(ctx, idem); err != nil {
		return "", err
	}
	return s.jobs.CreateQueued(ctx, b)
}

func (s *BatchService) GetJob(ctx context.Context, id string) (domain.CommitJob, error) {
	if s.jobs == nil {
		return domain.CommitJob{}, ErrNotFound
	}
	return s.jobs.GetByID(ctx, id)
}

// ProcessJob commits a claimed job and records its outcome.
func (s *BatchService) ProcessJob(ctx context.Context, job QueuedJob) error {
	log := s.log.With(zap.String("job_id", job.ID))
	res, err := s.commit(ctx, job.Batch)
	if err != nil {
		msg := err.Error()
		log.Warn("commit_job.failed", zap.Error(err))
		return s.jobs.Complete(ctx, job.ID, domain.CommitJobStatusFailed, nil, &msg)
	}
	log.Info("commit_job.done", zap.Int("failures", len(res.Failures)))
	return s.jobs.Complete(ctx, job.ID, domain.CommitJobStatusDone, &res, nil)
}

func (s *BatchService) mode(b Batch) (domain.CommitMode, error) {
	if b.Mode == "" {
		return s.defaultMode, nil
	}
	if !b.Mode.Valid() {
		return "", fmt.Errorf("%w: unknown mode %q", ErrBadRequest, b.Mode)
	}
	return b.Mode, nil
}

func (s *BatchService) reserve(ctx context.Context, idem *string) error {
	if idem == nil || *idem == "" {
		return nil
	}
	ok, err := s.idem.TryReserve(ctx, "batch:"+*idem)
	if err != nil {
		return fmt.Errorf("reserve idempotency key: %w", err)
	}
	if !ok {
		return ErrConflict
	}
	return nil
}
