package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"uow-service/internal/application"
	"uow-service/internal/config"
	"uow-service/internal/domain"
	"uow-service/internal/infrastructure/logx"
	"uow-service/internal/infrastructure/memstore"
	"uow-service/internal/infrastructure/pg"
	httpserver "uow-service/internal/infrastructure/http"
	redisstore "uow-service/internal/infrastructure/redis"
	"uow-service/internal/infrastructure/worker"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrMissingDBURL = errors.New("DATABASE_URL is required for STORAGE=pg")

const (
	StoragePG     = "pg"
	StorageMemory = "memory"
)

// Storage is the persistence side of the service: where units of work
// commit, how they are wrapped in a transaction and where async jobs queue.
type Storage struct {
	Kind    string
	Backend application.Backend
	Tx      application.TxRunner
	Jobs    application.CommitJobRepo
	Ping    func(ctx context.Context) error
}

func ProvideLogger() *zap.Logger { return logx.L() }

func ProvideConfig() config.Config { return config.Load() }

func ProvideCatalog() *domain.Catalog { return domain.DefaultCatalog() }

func ProvideDB(ctx context.Context, log *zap.Logger, cfg config.Config) (*pg.DB, func(), error) {
	if cfg.DatabaseURL == "" {
		return nil, func() {}, ErrMissingDBURL
	}
	db, err := pg.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, func() {}, err
	}
	if err := pg.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, func() {}, err
	}
	cleanup := func() {
		log.Info("closing pg")
		db.Close()
	}
	return db, cleanup, nil
}

// ProvideStorage selects the backend from STORAGE.
func ProvideStorage(ctx context.Context, log *zap.Logger, cfg config.Config, catalog *domain.Catalog) (Storage, func(), error) {
	switch cfg.Storage {
	case StoragePG:
		db, cleanup, err := ProvideDB(ctx, log, cfg)
		if err != nil {
			return Storage{}, cleanup, err
		}
		return Storage{
			Kind:    StoragePG,
			Backend: pg.NewBackend(catalog),
			Tx:      &pg.TxRunner{Pool: db.Pool},
			Jobs:    pg.NewCommitJobRepo(db),
			Ping:    db.Ping,
		}, cleanup, nil
	case StorageMemory:
		store := memstore.New(catalog)
		log.Warn("using in-memory storage; data is lost on exit")
		return Storage{
			Kind:    StorageMemory,
			Backend: store,
			Tx:      &memstore.TxRunner{Store: store},
			Jobs:    memstore.NewJobRepo(),
		}, func() {}, nil
	default:
		return Storage{}, func() {}, fmt.Errorf("unsupported STORAGE=%q", cfg.Storage)
	}
}

func ProvideRedisClient(cfg config.Config) (*redis.Client, func(), error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return client, func() { _ = client.Close() }, nil
}

// ProvideIdempotency returns the redis store when IDEMPOTENCY_BACKEND=redis
// and a no-op otherwise.
func ProvideIdempotency(cfg config.Config) (application.IdempotencyStore, func(), error) {
	if cfg.IdempotencyBackend != "redis" {
		return application.NoopIdempotency{}, func() {}, nil
	}
	client, cleanup, err := ProvideRedisClient(cfg)
	if err != nil {
		return nil, cleanup, err
	}
	return redisstore.New(client, cfg.RedisTTL), cleanup, nil
}

func ProvideBatchService(cfg config.Config, catalog *domain.Catalog, st Storage, idem application.IdempotencyStore, log *zap.Logger) *application.BatchService {
	return application.NewBatchService(catalog, st.Backend,
		application.WithTxRunner(st.Tx),
		application.WithJobs(st.Jobs),
		application.WithIdempotency(idem),
		application.WithDefaultMode(domain.CommitMode(cfg.DefaultCommitMode)),
		application.WithServiceLogger(log),
	)
}

func ProvideWorker(st Storage, svc *application.BatchService, log *zap.Logger, cfg config.Config) application.Worker {
	return &worker.DbWorker{
		Jobs:       st.Jobs,
		Processor:  svc,
		PollEvery:  cfg.WorkerPoll,
		BatchLimit: cfg.WorkerBatchSize,
		Log:        log,
	}
}

func ProvideServer(cfg config.Config, st Storage, svc *application.BatchService) *httpserver.Server {
	return httpserver.NewServer(svc,
		httpserver.WithPing(st.Ping),
		httpserver.WithMaxBatchBytes(cfg.MaxBatchBytes),
	)
}

// API is everything cmd/api runs. Worker is only set for in-memory storage,
// where queued jobs live in the API process.
type API struct {
	Server *httpserver.Server
	Worker application.Worker
}

func ProvideAPI(st Storage, srv *httpserver.Server, w application.Worker) API {
	app := API{Server: srv}
	if st.Kind == StorageMemory {
		app.Worker = w
	}
	return app
}
