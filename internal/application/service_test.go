package application_test

import (
	"context"
	"errors"
	"testing"

	"uow-service/internal/application"
	"uow-service/internal/domain"
	"uow-service/internal/infrastructure/memstore"

	"github.com/stretchr/testify/require"
)

type fixedIdem struct {
	seen map[string]bool
	err  error
}

func (f *fixedIdem) TryReserve(_ context.Context, key string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func newService(t *testing.T, opts ...application.Option) (*application.BatchService, *memstore.Store) {
	t.Helper()
	cat := domain.DefaultCatalog()
	store := memstore.New(cat)
	opts = append([]application.Option{application.WithTxRunner(&memstore.TxRunner{Store: store})}, opts...)
	return application.NewBatchService(cat, store, opts...), store
}

func strPtr(s string) *string { return &s }

func linked(oppName string) application.Batch {
	return application.Batch{Ops: []application.Op{
		{Action: application.OpInsert, Type: domain.TypeAccount, Key: "acc", Fields: map[string]any{"name": "Initech"}},
		{Action: application.OpInsert, Type: domain.TypeContact, Key: "con", Fields: map[string]any{"last_name": "Lumbergh"},
			Links: []application.OpLink{{Field: domain.FieldAccountID, Parent: "acc"}}},
		{Action: application.OpInsert, Type: domain.TypeOpportunity, Key: "opp", Fields: map[string]any{"name": oppName, "amount": 10.0},
			Links: []application.OpLink{
				{Field: domain.FieldAccountID, Parent: "acc"},
				{Field: domain.FieldContactID, Parent: "con"},
			}},
	}}
}

func TestBatchService_CommitAtomic(t *testing.T) {
	t.Parallel()
	svc, store := newService(t)

	res, err := svc.Commit(context.Background(), linked("TPS"), nil)
	require.NoError(t, err)
	require.Equal(t, domain.CommitModeAtomic, res.Mode)
	require.Len(t, res.Records, 3)
	require.Equal(t, "insert", res.Records["opp"].Action)

	row, ok := store.Get(domain.TypeContact, res.Records["con"].ID)
	require.True(t, ok)
	require.Equal(t, int64(res.Records["acc"].ID), row["account_id"])
}

func TestBatchService_AtomicFailureLeavesStoreUntouched(t *testing.T) {
	t.Parallel()
	svc, store := newService(t)

	_, err := svc.Commit(context.Background(), linked(""), nil)
	require.Error(t, err)
	require.True(t, application.IsPersistenceError(err))
	require.Contains(t, err.Error(), `record "opp"`)
	require.Zero(t, store.Count(domain.TypeAccount))
	require.Zero(t, store.Count(domain.TypeContact))
}

func TestBatchService_PartialMode(t *testing.T) {
	t.Parallel()
	svc, store := newService(t, application.WithDefaultMode(domain.CommitModePartial))

	res, err := svc.Commit(context.Background(), linked(""), nil)
	require.NoError(t, err)
	require.Equal(t, domain.CommitModePartial, res.Mode)
	require.Len(t, res.Records, 2)
	require.Contains(t, res.Failures["opp"], "Opportunity insert failed")
	require.Equal(t, 1, store.Count(domain.TypeContact))
}

func TestBatchService_UpdateAndDelete(t *testing.T) {
	t.Parallel()
	svc, store := newService(t)
	acc := &domain.Account{Name: "Old"}
	require.NoError(t, store.Seed(acc))
	gone := &domain.Account{Name: "Gone"}
	require.NoError(t, store.Seed(gone))

	res, err := svc.Commit(context.Background(), application.Batch{Ops: []application.Op{
		{Action: application.OpUpdate, Type: domain.TypeAccount, ID: acc.ID, Fields: map[string]any{"name": "New", "industry": "Software"}},
		{Action: application.OpDelete, Type: domain.TypeAccount, ID: gone.ID},
	}}, nil)
	require.NoError(t, err)
	require.Equal(t, acc.ID, res.Records["#0"].ID)
	require.Equal(t, "delete", res.Records["#1"].Action)

	row, ok := store.Get(domain.TypeAccount, acc.ID)
	require.True(t, ok)
	require.Equal(t, "New", row["name"])
	_, ok = store.Get(domain.TypeAccount, gone.ID)
	require.False(t, ok)
}

func TestBatchService_SameRowUpdateAndDelete(t *testing.T) {
	t.Parallel()
	svc, store := newService(t)
	acc := &domain.Account{Name: "Initech"}
	require.NoError(t, store.Seed(acc))

	_, err := svc.Commit(context.Background(), application.Batch{Ops: []application.Op{
		{Action: application.OpUpdate, Type: domain.TypeAccount, Key: "u", ID: acc.ID, Fields: map[string]any{"name": "Initrode"}},
		{Action: application.OpDelete, Type: domain.TypeAccount, Key: "d", ID: acc.ID},
	}}, nil)
	require.ErrorIs(t, err, application.ErrBadRequest)
	require.ErrorIs(t, err, application.ErrIllegalRegistration)

	row, ok := store.Get(domain.TypeAccount, acc.ID)
	require.True(t, ok)
	require.Equal(t, "Initech", row["name"])
}

func TestBatchService_RepeatedUpdatesMerge(t *testing.T) {
	t.Parallel()
	svc, store := newService(t)
	acc := &domain.Account{Name: "Initech"}
	require.NoError(t, store.Seed(acc))

	res, err := svc.Commit(context.Background(), application.Batch{Ops: []application.Op{
		{Action: application.OpUpdate, Type: domain.TypeAccount, Key: "a", ID: acc.ID, Fields: map[string]any{"name": "Initrode"}},
		{Action: application.OpUpdate, Type: domain.TypeAccount, Key: "b", ID: acc.ID, Fields: map[string]any{"industry": "Software"}},
	}}, nil)
	require.NoError(t, err)
	require.Equal(t, acc.ID, res.Records["a"].ID)
	require.Equal(t, acc.ID, res.Records["b"].ID)

	row, ok := store.Get(domain.TypeAccount, acc.ID)
	require.True(t, ok)
	require.Equal(t, "Initrode", row["name"])
	require.Equal(t, "Software", row["industry"])
}

func TestBatchService_BadRequests(t *testing.T) {
	t.Parallel()
	svc, _ := newService(t)
	ctx := context.Background()

	cases := map[string]application.Batch{
		"unknown mode": {Mode: "eventual", Ops: []application.Op{{Action: application.OpInsert, Type: domain.TypeAccount}}},
		"unknown type": {Ops: []application.Op{{Action: application.OpInsert, Type: "lead"}}},
		"duplicate key": {Ops: []application.Op{
			{Action: application.OpInsert, Type: domain.TypeAccount, Key: "a", Fields: map[string]any{"name": "x"}},
			{Action: application.OpInsert, Type: domain.TypeAccount, Key: "a", Fields: map[string]any{"name": "y"}},
		}},
		"unknown parent": {Ops: []application.Op{
			{Action: application.OpInsert, Type: domain.TypeContact, Links: []application.OpLink{{Field: domain.FieldAccountID, Parent: "nope"}}},
		}},
		"link on delete": {Ops: []application.Op{
			{Action: application.OpInsert, Type: domain.TypeAccount, Key: "a", Fields: map[string]any{"name": "x"}},
			{Action: application.OpDelete, Type: domain.TypeContact, ID: 3, Links: []application.OpLink{{Field: domain.FieldAccountID, Parent: "a"}}},
		}},
		"update without id": {Ops: []application.Op{{Action: application.OpUpdate, Type: domain.TypeAccount}}},
		"unknown action":    {Ops: []application.Op{{Action: "upsert", Type: domain.TypeAccount}}},
		"bad field type":    {Ops: []application.Op{{Action: application.OpInsert, Type: domain.TypeAccount, Fields: map[string]any{"name": 42.0}}}},
	}
	for name, b := range cases {
		_, err := svc.Commit(ctx, b, nil)
		require.ErrorIs(t, err, application.ErrBadRequest, name)
	}
}

func TestBatchService_Idempotency(t *testing.T) {
	t.Parallel()
	idem := &fixedIdem{seen: map[string]bool{}}
	svc, store := newService(t, application.WithIdempotency(idem))
	ctx := context.Background()

	_, err := svc.Commit(ctx, linked("A"), strPtr("k1"))
	require.NoError(t, err)
	_, err = svc.Commit(ctx, linked("A"), strPtr("k1"))
	require.ErrorIs(t, err, application.ErrConflict)
	require.Equal(t, 1, store.Count(domain.TypeAccount))
	require.True(t, idem.seen["batch:k1"])

	other := []application.Op{{Action: application.OpInsert, Type: domain.TypeAccount, Fields: map[string]any{"name": "Initrode"}}}
	_, err = svc.Commit(ctx, application.Batch{Mode: "bogus", Ops: other}, strPtr("k3"))
	require.ErrorIs(t, err, application.ErrBadRequest)
	require.False(t, idem.seen["batch:k3"])
	_, err = svc.Commit(ctx, application.Batch{Ops: other}, strPtr("k3"))
	require.NoError(t, err)
	require.Equal(t, 2, store.Count(domain.TypeAccount))

	idem.err = errors.New("redis down")
	_, err = svc.Commit(ctx, linked("B"), strPtr("k2"))
	require.ErrorIs(t, err, idem.err)
}

func TestBatchService_Jobs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, _ := newService(t)
	_, err := svc.Enqueue(ctx, linked("A"), nil)
	require.Error(t, err, "async commits need a job repo")
	_, err = svc.GetJob(ctx, "x")
	require.ErrorIs(t, err, application.ErrNotFound)

	jobs := memstore.NewJobRepo()
	svc, store := newService(t, application.WithJobs(jobs))
	_, err = svc.Enqueue(ctx, application.Batch{Mode: "bogus"}, nil)
	require.ErrorIs(t, err, application.ErrBadRequest)

	id, err := svc.Enqueue(ctx, linked("A"), nil)
	require.NoError(t, err)
	claimed, err := jobs.ClaimQueued(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, svc.ProcessJob(ctx, claimed[0]))

	job, err := svc.GetJob(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.CommitJobStatusDone, job.Status)
	require.Equal(t, 1, store.Count(domain.TypeOpportunity))
}
