//go:build wireinject
// +build wireinject

package di

import (
	"github.com/duke524-dev/synth-subnet/pkg/config"
	"github.com/duke524-dev/synth-subnet/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideCacheService,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideEventPublisher,

		// Storage
		ProvideTuningLedger,
		ProvideSnapshotStore,
		ProvidePredictionLog,
		ProvideCloseStore,
		ProvideHistoricalSource,
		ProvideResultSink,

		// Price feeds
		ProvideSpotClient,
		ProvideTickStream,

		// Engines
		ProvideGovernanceEngine,
		ProvideParameterSource,
		ProvideVolatilityStore,
		ProvideBootstrap,
		ProvideGate,

		// Use cases
		ProvideForecaster,
		ProvideTickProcessor,
		ProvideTickCollector,
		ProvideKafkaTicksHandler,
		ProvideScorer,
		ProvideTuningScheduler,
		ProvideStatePersister,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
