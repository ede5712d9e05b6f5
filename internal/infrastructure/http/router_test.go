package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"uow-service/internal/application"
	"uow-service/internal/domain"
	"uow-service/internal/infrastructure/memstore"
	redisstore "uow-service/internal/infrastructure/redis"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	h     http.Handler
	store *memstore.Store
	jobs  *memstore.JobRepo
	svc   *application.BatchService
}

func setup(t *testing.T, opts ...ServerOption) fixture {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cat := domain.DefaultCatalog()
	store := memstore.New(cat)
	jobs := memstore.NewJobRepo()
	svc := application.NewBatchService(cat, store,
		application.WithTxRunner(&memstore.TxRunner{Store: store}),
		application.WithJobs(jobs),
		application.WithIdempotency(redisstore.New(client, time.Hour)),
	)
	return fixture{h: NewRouter(NewServer(svc, opts...)), store: store, jobs: jobs, svc: svc}
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func accountTree(mode string, opportunityName string) map[string]any {
	return map[string]any{
		"mode": mode,
		"ops": []map[string]any{
			{"action": "insert", "type": "account", "key": "acc", "fields": map[string]any{"name": "Acme"}},
			{"action": "insert", "type": "contact", "key": "con", "fields": map[string]any{"last_name": "Hopper"},
				"links": []map[string]any{{"field": "account_id", "parent": "acc"}}},
			{"action": "insert", "type": "opportunity", "key": "opp", "fields": map[string]any{"name": opportunityName, "amount": 1200.5},
				"links": []map[string]any{
					{"field": "account_id", "parent": "acc"},
					{"field": "contact_id", "parent": "con"},
				}},
		},
	}
}

func TestHealthz(t *testing.T) {
	f := setup(t)
	rec := do(t, f.h, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	require.NotEmpty(t, rec.Header().Get("X-Trace-Id"))
}

func TestReadyz(t *testing.T) {
	f := setup(t, WithPing(func(context.Context) error { return errors.New("down") }))
	rec := do(t, f.h, http.MethodGet, "/readyz", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	f = setup(t)
	rec = do(t, f.h, http.MethodGet, "/readyz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCommitBatch_Atomic(t *testing.T) {
	f := setup(t)
	rec := do(t, f.h, http.MethodPost, "/batches", accountTree("atomic", "Renewal"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res domain.CommitResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, domain.CommitModeAtomic, res.Mode)
	require.Len(t, res.Records, 3)
	require.Empty(t, res.Failures)

	opp, ok := f.store.Get(domain.TypeOpportunity, res.Records["opp"].ID)
	require.True(t, ok)
	require.Equal(t, int64(res.Records["acc"].ID), opp["account_id"])
	require.Equal(t, int64(res.Records["con"].ID), opp["contact_id"])
}

func TestCommitBatch_AtomicFailureIs422(t *testing.T) {
	f := setup(t)
	rec := do(t, f.h, http.MethodPost, "/batches", accountTree("atomic", ""), nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), `record \"opp\"`)
	require.Equal(t, 0, f.store.Count(domain.TypeAccount))
	require.Equal(t, 0, f.store.Count(domain.TypeContact))
}

func TestCommitBatch_PartialReportsFailures(t *testing.T) {
	f := setup(t)
	rec := do(t, f.h, http.MethodPost, "/batches", accountTree("partial", ""), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res domain.CommitResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Records, 2)
	require.Contains(t, res.Failures["opp"], "Opportunity insert failed")
	require.Equal(t, 1, f.store.Count(domain.TypeAccount))
	require.Equal(t, 0, f.store.Count(domain.TypeOpportunity))
}

func TestCommitBatch_BadRequests(t *testing.T) {
	f := setup(t)

	rec := do(t, f.h, http.MethodPost, "/batches", "{not json", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, f.h, http.MethodPost, "/batches", map[string]any{"ops": []any{}}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, f.h, http.MethodPost, "/batches", map[string]any{
		"ops": []map[string]any{{"action": "insert", "type": "lead"}},
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, f.h, http.MethodPost, "/batches", map[string]any{
		"mode": "eventually",
		"ops":  []map[string]any{{"action": "insert", "type": "account", "fields": map[string]any{"name": "x"}}},
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCommitBatch_TooLarge(t *testing.T) {
	f := setup(t, WithMaxBatchBytes(32))
	rec := do(t, f.h, http.MethodPost, "/batches", accountTree("atomic", "Big"), nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestCommitBatch_IdempotencyConflict(t *testing.T) {
	f := setup(t)
	hdr := map[string]string{idempotencyHeader: "k1"}
	rec := do(t, f.h, http.MethodPost, "/batches", accountTree("atomic", "One"), hdr)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, f.h, http.MethodPost, "/batches", accountTree("atomic", "One"), hdr)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, 1, f.store.Count(domain.TypeAccount))
}

func TestJobs_EnqueueAndGet(t *testing.T) {
	f := setup(t)
	rec := do(t, f.h, http.MethodPost, "/batches/jobs", accountTree("partial", "Upsell"), nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted jobAccepted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.JobID)

	rec = do(t, f.h, http.MethodGet, "/batches/jobs/"+accepted.JobID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `"status":"queued"`))

	claimed, err := f.jobs.ClaimQueued(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, f.svc.ProcessJob(context.Background(), claimed[0]))

	rec = do(t, f.h, http.MethodGet, "/batches/jobs/"+accepted.JobID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var details jobDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &details))
	require.Equal(t, "done", details.Status)
	require.NotNil(t, details.Result)
	require.Len(t, details.Result.Records, 3)
}

func TestJobs_NotFound(t *testing.T) {
	f := setup(t)
	rec := do(t, f.h, http.MethodGet, "/batches/jobs/nope", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
