//go:build wireinject
// +build wireinject

package di

import (
	"TasaPull/internal/usecase"
	"TasaPull/pkg/config"
	"TasaPull/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedisClient,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Repositories
		ProvideStores,
		ProvideObservationStore,
		ProvideConfigStore,
		ProvideEventPublisher,
		ProvideLease,

		// Use cases
		usecase.NewRateLocks,
		ProvideRateGuard,
		ProvideRetryPolicy,
		ProvideBulkUpsert,
		ProvideGapTracker,
		ProvideBackfill,
		ProvideErrorLedger,
		ProvideCycleRunner,
		ProvidePushIngestor,

		// Transports
		ProvideKafkaConsumer,
		ProvideSourceFactory,
		ProvideScheduler,
		ProvideHealthChecks,
		ProvideOpsHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
