package di

import (
	"context"
	"fmt"
	"time"

	"TasaPull/internal/domain/models"
	domrepo "TasaPull/internal/domain/repository"
	"TasaPull/internal/handler/api"
	internalrepo "TasaPull/internal/repository"
	"TasaPull/internal/scheduler"
	"TasaPull/internal/service/ratelimit"
	"TasaPull/internal/source"
	"TasaPull/internal/usecase"
	"TasaPull/pkg/cache"
	pkgch "TasaPull/pkg/clickhouse"
	"TasaPull/pkg/config"
	xhttp "TasaPull/pkg/http"
	pkgkafka "TasaPull/pkg/kafka"
	applogger "TasaPull/pkg/logger"
	"TasaPull/pkg/metrics"
	"TasaPull/pkg/retry"
	"TasaPull/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

// Stores holds the persistence backend selected by config.
type Stores struct {
	Obs     domrepo.ObservationStore
	Configs domrepo.ConfigStore
	Health  func(ctx context.Context) error
}

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder on the default registry.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideRedisClient connects to Redis when the backend or the lease needs it.
func ProvideRedisClient(cfg *config.Config) (redis.UniversalClient, func(), error) {
	if cfg.Backend.Type != "redis" && !cfg.Lease.Enabled {
		return nil, func() {}, nil
	}
	client, err := cache.NewRedisClient(context.Background(),
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdleConns, cfg.Redis.PoolTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideClickHouseClient creates a ClickHouse client and its schema when selected as backend.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, func(), error) {
	if cfg.Backend.Type != "clickhouse" {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	chc := cfg.ClickHouse
	client, err := pkgch.NewClient(ctx, l,
		pkgch.WithAddr(chc.Host, chc.Port),
		pkgch.WithAuth(chc.Database, chc.User, chc.Password),
		pkgch.WithPool(chc.MaxOpenConns, chc.MaxIdleConns, 0),
		pkgch.WithHTTP(chc.UseHTTP),
		pkgch.WithAsyncInsert(chc.AsyncInsert, chc.WaitForAsync),
		pkgch.WithTimeouts(chc.DialTimeout, chc.ReadTimeout),
		pkgch.WithMaxExecutionTime(chc.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if err := client.InitSchema(ctx, internalrepo.ClickHouseSchema(client.Database())); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideStores selects the observation and config stores.
func ProvideStores(cfg *config.Config, rdb redis.UniversalClient, ch *pkgch.Client, l *applogger.Logger) (*Stores, error) {
	switch cfg.Backend.Type {
	case "redis":
		s := internalrepo.NewRedisStore(rdb, cfg.Redis.Prefix)
		return &Stores{Obs: s, Configs: s, Health: s.Health}, nil
	case "clickhouse":
		s := internalrepo.NewClickHouseStore(ch, ch.Database())
		s.SetLogger(l)
		return &Stores{Obs: s, Configs: s, Health: s.Health}, nil
	case "memory":
		s := internalrepo.NewMemoryStore()
		return &Stores{Obs: s, Configs: s, Health: s.Health}, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend.Type)
}

func ProvideObservationStore(s *Stores) domrepo.ObservationStore { return s.Obs }

func ProvideConfigStore(s *Stores) domrepo.ConfigStore { return s.Configs }

// ProvideKafkaProducer creates a Kafka producer. It is nil when Kafka is disabled.
// The cleanup closes it when a later provider fails; closing again after shutdown is a no-op.
func ProvideKafkaProducer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithDelivery(cfg.Kafka.RequiredAcks, cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithKeyOrdering(true),
		pkgkafka.WithAutoCreateTopics(cfg.Environment != "production"),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	cleanup := func() {
		// the collector publishes through this producer
		l.RemoveCollector()
		if err := producer.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	return producer, cleanup, nil
}

// ProvideEventPublisher publishes update events to Kafka, or drops them when Kafka is off.
// With the log collector enabled, aggregated warn/error logs go out through the same producer.
func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config, l *applogger.Logger) domrepo.EventPublisher {
	if producer == nil {
		return internalrepo.NoopPublisher{}
	}
	pub := internalrepo.NewKafkaPublisher(producer, cfg.Kafka.UpdatesTopic)
	if cfg.Log.Collector.Enabled {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.Collector.Interval,
			CountThreshold: cfg.Log.Collector.Threshold,
			Topic:          cfg.Log.Collector.Topic,
			Publisher:      pub,
		})
	}
	return pub
}

// ProvideLease returns the cross-process lease, or nil when disabled.
func ProvideLease(cfg *config.Config, rdb redis.UniversalClient) cache.Lease {
	if !cfg.Lease.Enabled {
		return nil
	}
	if rdb == nil {
		return cache.NewMemoryLease(cache.WithLeasePrefix(cfg.Lease.Prefix))
	}
	return cache.NewRedisLease(rdb, cache.WithLeasePrefix(cfg.Lease.Prefix), cache.WithLeaseTTL(cfg.Lease.TTL))
}

func ProvideRateGuard(lease cache.Lease, cfg *config.Config, l *applogger.Logger) *usecase.RateGuard {
	return usecase.NewRateGuard(lease, cfg.Lease.TTL, l)
}

// ProvideRetryPolicy builds the source retry policy.
func ProvideRetryPolicy(cfg *config.Config) retry.Policy {
	r := cfg.Engine.Retry
	return retry.Policy{
		MaxRetries:     r.MaxRetries,
		InitialDelay:   r.InitialDelay,
		MaxDelay:       r.MaxDelay,
		Factor:         r.Factor,
		AttemptTimeout: cfg.Engine.AttemptTimeout,
		ShouldRetry:    models.IsRetryable,
	}
}

func ProvideBulkUpsert(obs domrepo.ObservationStore, events domrepo.EventPublisher, m domrepo.Metrics, l *applogger.Logger) *usecase.BulkUpsertTracker {
	return usecase.NewBulkUpsertTracker(obs, events, m, l)
}

func ProvideGapTracker(obs domrepo.ObservationStore, cfgs domrepo.ConfigStore, locks *usecase.RateLocks, m domrepo.Metrics, l *applogger.Logger) *usecase.GapTracker {
	return usecase.NewGapTracker(obs, cfgs, locks, m, l)
}

func ProvideBackfill(obs domrepo.ObservationStore, upsert *usecase.BulkUpsertTracker, gaps *usecase.GapTracker, m domrepo.Metrics, l *applogger.Logger) *usecase.BackfillEngine {
	return usecase.NewBackfillEngine(obs, upsert, gaps, m, l)
}

func ProvideErrorLedger(cfgs domrepo.ConfigStore, locks *usecase.RateLocks, l *applogger.Logger) *usecase.ErrorLedger {
	return usecase.NewErrorLedger(cfgs, locks, l)
}

func ProvideCycleRunner(
	gaps *usecase.GapTracker,
	upsert *usecase.BulkUpsertTracker,
	backfill *usecase.BackfillEngine,
	ledger *usecase.ErrorLedger,
	m domrepo.Metrics,
	l *applogger.Logger,
	policy retry.Policy,
) *usecase.CycleRunner {
	return usecase.NewCycleRunner(gaps, upsert, backfill, ledger, m, l, policy)
}

func ProvidePushIngestor(runner *usecase.CycleRunner, guard *usecase.RateGuard, m domrepo.Metrics, l *applogger.Logger) *usecase.PushIngestor {
	return usecase.NewPushIngestor(runner, guard, m, l)
}

// ProvideKafkaConsumer creates the ingestion consumer. It is nil unless Kafka and the consumer are enabled.
func ProvideKafkaConsumer(cfg *config.Config, ingest *usecase.PushIngestor, m domrepo.Metrics, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerRetryable(usecase.IsRetryableMessage),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			return pkgkafka.WithMessageKey(ctx, km.Key), km, data, nil
		},
		Err: func(_ context.Context, topic string, km kafka.Message, _ []byte, err error) {
			l.Warn("kafka message rejected",
				applogger.String("topic", topic),
				applogger.Int("partition", km.Partition),
				applogger.Int64("offset", km.Offset),
				applogger.Error(err),
			)
		},
	})
	consumer.RegisterHandler(usecase.NewKafkaIngestHandler(cfg.Kafka.IngestTopic, ingest, m, l))
	return consumer, nil
}

// ProvideSourceFactory builds HTTP sources sharing one client and one per-host limiter.
func ProvideSourceFactory(cfg *config.Config) *source.Factory {
	client := xhttp.NewClient(
		xhttp.WithTimeout(cfg.Engine.AttemptTimeout),
		xhttp.WithUserAgent(cfg.Source.UserAgent),
	)
	return source.NewFactory(client, ratelimit.New(), cfg.Source.RatePerSecond, cfg.Source.Burst)
}

// ProvideScheduler creates the scheduler and registers every configured job.
func ProvideScheduler(
	cfg *config.Config,
	runner *usecase.CycleRunner,
	sources *source.Factory,
	guard *usecase.RateGuard,
	m domrepo.Metrics,
	l *applogger.Logger,
) (*scheduler.Service, error) {
	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler timezone: %w", err)
	}
	svc := scheduler.New(loc, guard, m, l, cfg.Engine.CycleTimeout)
	jobs, err := scheduler.JobsFromConfig(cfg.Scheduler.Jobs, runner, sources, cfg.Engine.LookbackDays)
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		if err := svc.Schedule(j); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// ProvideHealthChecks checks every enabled dependency.
func ProvideHealthChecks(stores *Stores, rdb redis.UniversalClient, producer *pkgkafka.Producer, cfg *config.Config) []api.HealthCheck {
	checks := []api.HealthCheck{{Name: "store:" + cfg.Backend.Type, Check: stores.Health}}
	if rdb != nil && cfg.Backend.Type != "redis" {
		checks = append(checks, api.HealthCheck{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }})
	}
	if producer != nil {
		brokers := cfg.Kafka.Brokers
		checks = append(checks, api.HealthCheck{Name: "kafka", Check: func(ctx context.Context) error {
			conn, err := (&kafka.Dialer{Timeout: 2 * time.Second}).DialContext(ctx, "tcp", brokers[0])
			if err != nil {
				return err
			}
			return conn.Close()
		}})
	}
	return checks
}

func ProvideOpsHandler(
	l *applogger.Logger,
	runner *usecase.CycleRunner,
	ingest *usecase.PushIngestor,
	ledger *usecase.ErrorLedger,
	guard *usecase.RateGuard,
	configs domrepo.ConfigStore,
	obs domrepo.ObservationStore,
	sched *scheduler.Service,
	checks []api.HealthCheck,
) *api.OpsHandler {
	return api.NewOpsHandler(l, runner, ingest, ledger, guard, configs, obs, sched, checks)
}

// ProvideHTTPServer creates the ops HTTP server.
func ProvideHTTPServer(cfg *config.Config, ops *api.OpsHandler, l *applogger.Logger) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(l),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, prometheus.DefaultRegisterer, prometheus.DefaultGatherer))
	}
	return xhttp.NewServer([]xhttp.Handler{ops}, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	sched *scheduler.Service,
	consumer *pkgkafka.Consumer,
	events domrepo.EventPublisher,
) *server.App {
	return server.New(cfg, l, httpServer, sched, consumer, events)
}
