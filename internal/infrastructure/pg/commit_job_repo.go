package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"uow-service/internal/application"
	"uow-service/internal/domain"
	"uow-service/internal/infrastructure/logx"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var _ application.CommitJobRepo = (*CommitJobRepo)(nil)

type CommitJobRepo struct{ db *DB }

func NewCommitJobRepo(db *DB) *CommitJobRepo { return &CommitJobRepo{db: db} }

func (r *CommitJobRepo) CreateQueued(ctx context.Context, b application.Batch) (string, error) {
	id := uuid.NewString()
	payload, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("encode batch: %w", err)
	}
	const ins = `
        INSERT INTO commit_jobs(id, status, batch)
        VALUES ($1, 'queued', $2)`
	log := logx.L().With(
		zap.String("repo", "commit_job"),
		zap.String("operation", "CreateQueued"),
		zap.String("id", id),
		zap.Int("ops", len(b.Ops)),
	)
	log.Info("sql.exec_start")
	tag, err := r.db.Pool.Exec(ctx, ins, id, payload)
	if err != nil {
		log.Error("sql.exec_failed", zap.Error(err))
		return "", err
	}
	log.Info("sql.exec_success", zap.Int64("rows_affected", tag.RowsAffected()))
	return id, nil
}

func (r *CommitJobRepo) GetByID(ctx context.Context, id string) (domain.CommitJob, error) {
	const q = `
        SELECT id::text, status, result, error, COALESCE(completed_at, requested_at)
        FROM commit_jobs WHERE id=$1`
	log := logx.L().With(
		zap.String("repo", "commit_job"),
		zap.String("operation", "GetByID"),
		zap.String("id", id),
	)
	if _, err := uuid.Parse(id); err != nil {
		log.Info("sql.query_bad_id")
		return domain.CommitJob{}, application.ErrNotFound
	}
	log.Info("sql.query_start")
	var out domain.CommitJob
	var status string
	var result []byte
	err := r.db.Pool.QueryRow(ctx, q, id).Scan(&out.ID, &status, &result, &out.Error, &out.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		log.Info("sql.query_no_rows")
		return domain.CommitJob{}, application.ErrNotFound
	}
	if err != nil {
		log.Error("sql.query_failed", zap.Error(err))
		return domain.CommitJob{}, err
	}
	out.Status = domain.CommitJobStatus(status)
	if len(result) > 0 {
		var res domain.CommitResult
		if err := json.Unmarshal(result, &res); err != nil {
			return domain.CommitJob{}, fmt.Errorf("decode result: %w", err)
		}
		out.Result = &res
	}
	log.Info("sql.query_success", zap.String("status", status))
	return out, nil
}

func (r *CommitJobRepo) ClaimQueued(ctx context.Context, limit int) ([]application.QueuedJob, error) {
	const q = `
      WITH cte AS (
        SELECT id
        FROM commit_jobs
        WHERE status = 'queued'
        ORDER BY requested_at
        LIMIT $1
        FOR UPDATE SKIP LOCKED
      )
      UPDATE commit_jobs j
      SET status = 'processing'
      FROM cte
      WHERE j.id = cte.id
      RETURNING j.id::text, j.batch;
    `
	rows, err := r.db.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []application.QueuedJob
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		var b application.Batch
		if err := json.Unmarshal(payload, &b); err != nil {
			return nil, fmt.Errorf("decode batch %s: %w", id, err)
		}
		out = append(out, application.QueuedJob{ID: id, Batch: b})
	}
	return out, rows.Err()
}

func (r *CommitJobRepo) Complete(ctx context.Context, id string, st domain.CommitJobStatus, res *domain.CommitResult, errMsg *string) error {
	var result []byte
	if res != nil {
		var err error
		if result, err = json.Marshal(res); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
	}
	const up = `
        UPDATE commit_jobs
        SET status=$2,
            result=$3,
            error=$4,
            completed_at = CASE WHEN $2 IN ('done','failed') THEN NOW() ELSE completed_at END
        WHERE id=$1`
	log := logx.L().With(
		zap.String("repo", "commit_job"),
		zap.String("operation", "Complete"),
		zap.String("id", id),
		zap.String("status", string(st)),
	)
	if errMsg != nil {
		log = log.With(zap.String("error", *errMsg))
	}
	log.Info("sql.exec_start")
	tag, err := r.db.Pool.Exec(ctx, up, id, string(st), result, errMsg)
	if err != nil {
		log.Error("sql.exec_failed", zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		log.Warn("sql.exec_no_rows")
		return application.ErrNotFound
	}
	log.Info("sql.exec_success", zap.Int64("rows_affected", tag.RowsAffected()))
	return nil
}
