//go:build wireinject

package bootstrap

import (
	"context"

	"uow-service/internal/application"

	"github.com/google/wire"
)

var appSet = wire.NewSet(
	ProvideLogger,
	ProvideConfig,
	ProvideCatalog,
	ProvideStorage,
	ProvideIdempotency,
	ProvideBatchService,
	ProvideWorker,
)

// API injector: server plus the in-process worker for memory storage
func InitAPI(ctx context.Context) (API, func(), error) {
	wire.Build(
		appSet,
		ProvideServer,
		ProvideAPI,
	)
	return API{}, nil, nil
}

// Worker injector: builds application.Worker + Cleanup
func InitWorker(ctx context.Context) (application.Worker, func(), error) {
	wire.Build(appSet)
	return nil, nil, nil
}
