package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/duke524-dev/synth-subnet/internal/domain/repository"
	domsvc "github.com/duke524-dev/synth-subnet/internal/domain/service"
	"github.com/duke524-dev/synth-subnet/internal/handler/api"
	mid "github.com/duke524-dev/synth-subnet/internal/middleware"
	internalrepo "github.com/duke524-dev/synth-subnet/internal/repository"
	icache "github.com/duke524-dev/synth-subnet/internal/service/cache"
	"github.com/duke524-dev/synth-subnet/internal/service/pricefeed"
	"github.com/duke524-dev/synth-subnet/internal/services/governance"
	"github.com/duke524-dev/synth-subnet/internal/services/markethours"
	"github.com/duke524-dev/synth-subnet/internal/services/volatility"
	"github.com/duke524-dev/synth-subnet/internal/usecase"
	pkgcache "github.com/duke524-dev/synth-subnet/pkg/cache"
	pkgch "github.com/duke524-dev/synth-subnet/pkg/clickhouse"
	"github.com/duke524-dev/synth-subnet/pkg/config"
	pkgkafka "github.com/duke524-dev/synth-subnet/pkg/kafka"
	applogger "github.com/duke524-dev/synth-subnet/pkg/logger"
	"github.com/duke524-dev/synth-subnet/pkg/metrics"
	"github.com/duke524-dev/synth-subnet/pkg/server"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and initializes the
// schema. Returns nil when ClickHouse is disabled; dependents degrade.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database}
	stmts = append(stmts, internalrepo.ClosesSchema(cfg.ClickHouse.Database)...)
	stmts = append(stmts, internalrepo.ResultsSchema(cfg.ClickHouse.Database)...)
	if err := client.InitSchema(ctx, stmts); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideCacheService builds the spot-price cache: layered Redis when
// configured, process-local memory otherwise.
func ProvideCacheService(cfg *config.Config) (pkgcache.Service, error) {
	if !cfg.Redis.Enabled {
		return pkgcache.NewMemoryCache(), nil
	}
	host, portStr, err := net.SplitHostPort(cfg.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("redis addr: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("redis port: %w", err)
	}
	redisCache, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix("synth"),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return pkgcache.NewLayeredCache(redisCache), nil
}

// ProvideKafkaProducer creates a Kafka producer, nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventPublisher wraps the producer for lifecycle events.
func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.EventPublisher {
	if producer == nil || cfg.Kafka.EventsTopic == "" {
		return nil
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.EventsTopic)
}

// ProvideKafkaConsumer creates a Kafka consumer for the ticks topic, nil
// when Kafka ingestion is not configured.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.TicksTopic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideTuningLedger opens the append-only governance ledger.
func ProvideTuningLedger(cfg *config.Config) repository.TuningLedger {
	return internalrepo.NewFileTuningLedger(cfg.Storage.LedgerPath)
}

// ProvideGovernanceEngine replays the ledger into the live parameter engine.
func ProvideGovernanceEngine(ledger repository.TuningLedger, log *applogger.Logger) (*governance.Engine, error) {
	return governance.NewEngine(ledger, log)
}

// ProvideParameterSource exposes the engine as the parameter source.
func ProvideParameterSource(engine *governance.Engine) domsvc.ParameterSource {
	return engine
}

// ProvideVolatilityStore creates the per-asset EWMA state store.
func ProvideVolatilityStore(params domsvc.ParameterSource) *volatility.Store {
	return volatility.NewStore(params)
}

// ProvideSnapshotStore opens the volatility state snapshot file.
func ProvideSnapshotStore(cfg *config.Config) repository.SnapshotStore {
	return internalrepo.NewFileSnapshotStore(cfg.Storage.SnapshotPath)
}

// ProvidePredictionLog opens the sampled prediction retention directory.
func ProvidePredictionLog(cfg *config.Config) repository.PredictionLog {
	return internalrepo.NewFilePredictionLog(cfg.Storage.PredictionsDir)
}

// ProvideSpotClient creates the spot price client with last-known-good cache.
func ProvideSpotClient(cfg *config.Config, cacheSvc pkgcache.Service, log *applogger.Logger) repository.SpotSource {
	return pricefeed.NewSpotClient(cfg.Pricefeed.SpotURL, 10*time.Second, cacheSvc, log)
}

// ProvideTickStream creates the websocket price stream.
func ProvideTickStream(cfg *config.Config, log *applogger.Logger) repository.TickStream {
	return pricefeed.NewStream(
		cfg.Pricefeed.APIKey,
		cfg.Pricefeed.WebSocketURL,
		cfg.Pricefeed.Assets,
		cfg.Pricefeed.ReconnectDelay,
		cfg.Pricefeed.PingInterval,
		log,
	)
}

// ProvideCloseStore creates the ClickHouse minute close store, nil without
// ClickHouse.
func ProvideCloseStore(chClient *pkgch.Client, cfg *config.Config) *internalrepo.ClickHouseCloseStore {
	if chClient == nil {
		return nil
	}
	return internalrepo.NewClickHouseCloseStore(chClient.DB(), cfg.ClickHouse.Database+".minute_closes")
}

// ProvideHistoricalSource exposes minute closes for bootstrap and scoring.
func ProvideHistoricalSource(closes *internalrepo.ClickHouseCloseStore) repository.HistoricalSource {
	if closes == nil {
		return nil
	}
	return closes
}

// ProvideResultSink creates the CRPS result sink, nil without ClickHouse.
func ProvideResultSink(chClient *pkgch.Client, cfg *config.Config) repository.ResultSink {
	if chClient == nil {
		return nil
	}
	return internalrepo.NewClickHouseResultSink(chClient.DB(), cfg.ClickHouse.Database+".crps_results")
}

// ProvideBootstrap wires the cold-start path.
func ProvideBootstrap(store *volatility.Store, spot repository.SpotSource, hist repository.HistoricalSource, log *applogger.Logger) *volatility.Bootstrap {
	return volatility.NewBootstrap(store, spot, hist, volatility.DefaultBootstrapConfig(), log)
}

// ProvideGate creates the market-hours gate over governed parameters.
func ProvideGate(params domsvc.ParameterSource) *markethours.Gate {
	return markethours.NewGate(params)
}

// ProvideForecaster assembles the ensemble generation pipeline.
func ProvideForecaster(
	boot *volatility.Bootstrap,
	params domsvc.ParameterSource,
	gate *markethours.Gate,
	spot repository.SpotSource,
	predLog repository.PredictionLog,
	events repository.EventPublisher,
	m repository.Metrics,
	log *applogger.Logger,
) *usecase.Forecaster {
	return usecase.NewForecaster(boot, params, gate, spot, predLog, events, m, log, nil)
}

// ProvideTickProcessor creates the tick-to-EWMA processor.
func ProvideTickProcessor(store *volatility.Store, boot *volatility.Bootstrap, closes *internalrepo.ClickHouseCloseStore, m repository.Metrics, log *applogger.Logger) *usecase.TickProcessor {
	return usecase.NewTickProcessor(store, boot, closes, m, log)
}

// ProvideTickCollector drives the stream through a validating, throttling
// pipeline into the processor.
func ProvideTickCollector(
	stream repository.TickStream,
	proc *usecase.TickProcessor,
	m repository.Metrics,
	log *applogger.Logger,
	cfg *config.Config,
) *usecase.TickCollector {
	pipe := mid.NewTickPipeline(proc, m,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
	return usecase.NewTickCollector(stream, proc, pipe, m, log, cfg.Scoring.FlushInterval)
}

// ProvideKafkaTicksHandler registers the handler for the ticks topic.
func ProvideKafkaTicksHandler(proc *usecase.TickProcessor, cfg *config.Config) pkgkafka.MessageHandler {
	if cfg.Kafka.TicksTopic == "" {
		return nil
	}
	return usecase.NewKafkaTicksHandler(cfg.Kafka.TicksTopic, proc)
}

// ProvideScorer creates the offline CRPS scoring loop, nil when no result
// sink is available.
func ProvideScorer(
	predLog repository.PredictionLog,
	hist repository.HistoricalSource,
	sink repository.ResultSink,
	events repository.EventPublisher,
	m repository.Metrics,
	log *applogger.Logger,
) *usecase.Scorer {
	if sink == nil || hist == nil {
		return nil
	}
	return usecase.NewScorer(predLog, hist, sink, events, m, log)
}

// ProvideTuningScheduler creates the diagnostics and suggestion loop.
func ProvideTuningScheduler(sink repository.ResultSink, events repository.EventPublisher, log *applogger.Logger) *usecase.TuningScheduler {
	return usecase.NewTuningScheduler(sink, events, log, governance.DefaultSuggestionThresholds())
}

// ProvideStatePersister creates the snapshot save/restore loop.
func ProvideStatePersister(store *volatility.Store, snapshot repository.SnapshotStore, log *applogger.Logger) *usecase.StatePersister {
	return usecase.NewStatePersister(store, snapshot, log)
}

// ProvideApp creates the application server and mounts the HTTP handlers.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	collector *usecase.TickCollector,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	chClient *pkgch.Client,
	events repository.EventPublisher,
	persister *usecase.StatePersister,
	scorer *usecase.Scorer,
	scheduler *usecase.TuningScheduler,
	forecaster *usecase.Forecaster,
	store *volatility.Store,
	engine *governance.Engine,
) *server.App {
	app := server.New(cfg, log, collector, consumer, kh, chClient, events, persister, scorer, scheduler)

	fh := api.NewForecastEchoHandler(log, forecaster, store, scheduler)
	if cfg.Redis.Enabled {
		fh.SetCache(icache.NewRedisCache(icache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}))
	} else {
		fh.SetCache(icache.NewTTLCache())
	}
	app.AddHTTPHandler(fh)
	app.AddHTTPHandler(api.NewGovernanceEchoHandler(log, engine, scheduler))
	return app
}
