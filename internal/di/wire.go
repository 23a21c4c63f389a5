//go:build wireinject
// +build wireinject

package di

import (
	"ForecastMix/pkg/config"
	"ForecastMix/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideRedisCache,
		ProvideCacheService,
		ProvideBytesCache,

		// Repositories (with business logic)
		ProvideHistoryStore,
		ProvideStateStore,
		ProvidePublisher,
		ProvideFeedStream,

		// Use cases
		ProvideMixtureService,
		ProvideForecastProcessor,
		ProvideForecastCollector,
		ProvideKafkaForecastsHandler,
		ProvideOracleUseCase,
		ProvideBackfillUseCase,
		ProvideOracleQueue,

		// HTTP surface and application server
		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
