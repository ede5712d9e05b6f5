package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"uow-service/internal/application"
	"uow-service/internal/domain"
	"uow-service/internal/infrastructure/config"
	"uow-service/internal/infrastructure/logx"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const idempotencyHeader = "X-Idempotency-Key"

type Server struct {
	svc     *application.BatchService
	ping    func(ctx context.Context) error
	maxBody int64
}

type ServerOption func(*Server)

// WithPing sets the readiness probe used by /readyz.
func WithPing(ping func(ctx context.Context) error) ServerOption {
	return func(s *Server) { s.ping = ping }
}

func WithMaxBatchBytes(n int64) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

func NewServer(svc *application.BatchService, opts ...ServerOption) *Server {
	s := &Server{svc: svc, maxBody: config.DefaultMaxBatchBytes}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type jobAccepted struct {
	JobID string `json:"job_id"`
}

type jobDetails struct {
	JobID     string               `json:"job_id"`
	Status    string               `json:"status"`
	Result    *domain.CommitResult `json:"result,omitempty"`
	Error     *string              `json:"error,omitempty"`
	UpdatedAt time.Time            `json:"updated_at"`
}

type errorBody struct {
	Error string `json:"error"`
}

// CommitBatch commits the posted batch synchronously.
func (s *Server) CommitBatch(w http.ResponseWriter, r *http.Request) {
	b, ok := s.decodeBatch(w, r)
	if !ok {
		return
	}
	res, err := s.svc.Commit(r.Context(), b, idempotencyKey(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// EnqueueBatch queues the posted batch for the worker.
func (s *Server) EnqueueBatch(w http.ResponseWriter, r *http.Request) {
	b, ok := s.decodeBatch(w, r)
	if !ok {
		return
	}
	id, err := s.svc.Enqueue(r.Context(), b, idempotencyKey(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobAccepted{JobID: id})
}

func (s *Server) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobDetails{
		JobID:     job.ID,
		Status:    string(job.Status),
		Result:    job.Result,
		Error:     job.Error,
		UpdatedAt: job.UpdatedAt,
	})
}

func (s *Server) decodeBatch(w http.ResponseWriter, r *http.Request) (application.Batch, bool) {
	var b application.Batch
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "batch too large")
			return b, false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return b, false
	}
	if len(b.Ops) == 0 {
		writeError(w, http.StatusBadRequest, "ops are required")
		return b, false
	}
	return b, true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logx.WithFields(r.Context()).Error("request_failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, status, http.StatusText(status))
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, application.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, application.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, application.ErrConflict):
		return http.StatusConflict
	case application.IsPersistenceError(err),
		errors.Is(err, application.ErrUnresolvedParent),
		errors.Is(err, domain.ErrUnknownField),
		errors.Is(err, domain.ErrInvalidValue):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func idempotencyKey(r *http.Request) *string {
	k := r.Header.Get(idempotencyHeader)
	if k == "" {
		return nil
	}
	return &k
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
