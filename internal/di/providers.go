package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"ForecastMix/internal/domain/repository"
	"ForecastMix/internal/handler/api"
	mid "ForecastMix/internal/middleware"
	internalrepo "ForecastMix/internal/repository"
	icache "ForecastMix/internal/service/cache"
	"ForecastMix/internal/service/feed"
	"ForecastMix/internal/services/experts"
	"ForecastMix/internal/usecase"
	pkgcache "ForecastMix/pkg/cache"
	pkgch "ForecastMix/pkg/clickhouse"
	"ForecastMix/pkg/config"
	pkgkafka "ForecastMix/pkg/kafka"
	applogger "ForecastMix/pkg/logger"
	"ForecastMix/pkg/metrics"
	"ForecastMix/pkg/queue"
	"ForecastMix/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	format := "json"
	if cfg.Environment == "development" {
		format = "console"
	}
	return applogger.New(&applogger.Config{Level: "info", Format: format, Output: "stdout"})
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
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

	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database,
	}); err != nil {
		_ = client.Close() // cannot log here (DI layer no logger); propagate error
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	return producer, nil
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
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

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideRedisCache dials Redis when enabled. Returns nil when the
// deployment runs without Redis.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	host, portStr, err := net.SplitHostPort(cfg.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("redis addr: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("redis port: %w", err)
	}
	return pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
	)
}

// ProvideCacheService creates the shared key-value store: layered
// memory-over-Redis when Redis is enabled, in-process memory otherwise.
func ProvideCacheService(rc *pkgcache.RedisCache) pkgcache.Service {
	if rc == nil {
		return pkgcache.NewMemoryCache()
	}
	return pkgcache.NewLayeredCache(rc)
}

// ProvideBytesCache creates the byte-level cache used by the reporting
// handlers and the oracle job results.
func ProvideBytesCache(cfg *config.Config) icache.BytesCache {
	if cfg.Redis.Enabled {
		return icache.NewRedisCache(icache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	return icache.NewTTLCache()
}

// ProvideStateStore creates the mixture checkpoint store.
func ProvideStateStore(c pkgcache.Service, cfg *config.Config) repository.StateStore {
	return internalrepo.NewRedisStateStore(c, cfg.Mixture.CheckpointTTL)
}

// ProvideHistoryStore creates the ClickHouse step history repository.
func ProvideHistoryStore(chClient *pkgch.Client, cfg *config.Config) (repository.HistoryStore, error) {
	store := internalrepo.NewClickHouseHistory(chClient, cfg.ClickHouse.Database+".mixture_steps")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// ProvidePublisher creates the Kafka publisher repository.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.EventsTopic, cfg.Kafka.ResultsTopic)
}

// ProvideFeedStream creates the websocket forecast feed.
func ProvideFeedStream(cfg *config.Config) repository.ForecastStream {
	return feed.New(
		cfg.Feed.Token,
		cfg.Feed.URL,
		cfg.Feed.Mixtures,
		cfg.Feed.ReconnectDelay,
		cfg.Feed.PingInterval,
	)
}

// ProvideMixtureService creates the live mixture registry.
func ProvideMixtureService(
	history repository.HistoryStore,
	states repository.StateStore,
	m repository.Metrics,
	l *applogger.Logger,
	cfg *config.Config,
) *usecase.MixtureService {
	return usecase.NewMixtureService(history, states, m, l, cfg.Mixture.CheckpointEvery)
}

// ProvideForecastProcessor creates the event routing use case.
func ProvideForecastProcessor(
	pub repository.Publisher,
	mixtures *usecase.MixtureService,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.ForecastProcessor {
	return usecase.NewForecastProcessor(pub, mixtures, m, cfg.History.Sink)
}

// ProvideForecastCollector creates the feed collector use case.
func ProvideForecastCollector(
	stream repository.ForecastStream,
	processor *usecase.ForecastProcessor,
	m repository.Metrics,
) *usecase.ForecastCollector {
	// Build middleware pipeline between WebSocket and the step processor
	pipe := mid.NewRealtimePipeline(processor, m,
		mid.WithBufferSize(2000),
	)
	return usecase.NewForecastCollector(stream, processor, m, pipe)
}

// ProvideKafkaForecastsHandler registers the handler for the events topic.
func ProvideKafkaForecastsHandler(
	mixtures *usecase.MixtureService,
	pub repository.Publisher,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.KafkaForecastsHandler {
	return usecase.NewKafkaForecastsHandler(cfg.Kafka.EventsTopic, mixtures, pub, m)
}

// ProvideOracleUseCase creates the hindsight benchmark use case.
func ProvideOracleUseCase(m repository.Metrics, cfg *config.Config) *usecase.OracleUseCase {
	return usecase.NewOracleUseCase(m, cfg.Oracle.Timeout)
}

// ProvideBackfillUseCase creates the recorded-window replay use case. The
// experts client is only built when a service URL is configured.
func ProvideBackfillUseCase(
	mixtures *usecase.MixtureService,
	m repository.Metrics,
	l *applogger.Logger,
	cfg *config.Config,
) *usecase.BackfillUseCase {
	var client *experts.Client
	if cfg.Experts.ServiceURL != "" {
		client = experts.NewClient(cfg)
	}
	return usecase.NewBackfillUseCase(client, mixtures, m, l)
}

// ProvideOracleQueue creates the Redis-backed job queue for async oracle
// runs. Returns nil when Redis is disabled; the jobs API is then not routed.
func ProvideOracleQueue(
	rc *pkgcache.RedisCache,
	oracleUC *usecase.OracleUseCase,
	bytesCache icache.BytesCache,
	l *applogger.Logger,
) *queue.RedisQueue {
	if rc == nil {
		return nil
	}
	job := usecase.NewOracleCompareJob(oracleUC, bytesCache, l)
	q := queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:    2,
		RetryLimit: 3,
		RetryDelay: 10 * time.Second,
	}, rc.Client(), queue.ModeProducerConsumer)
	q.RegisterJob(job)
	return q
}

// ProvideHTTPHandler bundles every route group behind one xhttp.Handler.
func ProvideHTTPHandler(
	l *applogger.Logger,
	mixtures *usecase.MixtureService,
	oracleUC *usecase.OracleUseCase,
	backfill *usecase.BackfillUseCase,
	bytesCache icache.BytesCache,
	q *queue.RedisQueue,
) *api.Router {
	return api.NewRouter(l, mixtures, oracleUC, backfill, bytesCache, q)
}

// kafkaLogSink adapts the producer to the aggregated-log publisher.
type kafkaLogSink struct {
	producer *pkgkafka.Producer
}

func (s kafkaLogSink) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return s.producer.Publish(ctx, topic, nil, payload)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	m repository.Metrics,
	producer *pkgkafka.Producer,
	collector *usecase.ForecastCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaForecastsHandler,
	chClient *pkgch.Client,
	mixtures *usecase.MixtureService,
	q *queue.RedisQueue,
	handler *api.Router,
) *server.App {
	// Time every consumed message and count handler failures
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NewLatencyHook(m))
	}

	// Ship deduplicated error logs to Kafka when a logs topic is configured.
	if cfg.Kafka.LogsTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Kafka.LogsTopic,
			Publisher:      kafkaLogSink{producer: producer},
		})
	}
	app := server.New(cfg, l, collector, consumer, kh, chClient, mixtures, q)
	app.SetHTTPHandler(handler)
	// attach forecast processor to app for closing resources via collector
	if collector != nil {
		app.ForecastProc = collector.Processor()
	}
	return app
}
