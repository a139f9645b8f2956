package kafka

import (
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

// ProducerConfig controls how rate updates are written to Kafka.
type ProducerConfig struct {
	Brokers []string

	// delivery
	RequiredAcks int
	MaxAttempts  int
	WriteTimeout time.Duration
	ReadTimeout  time.Duration

	// batching
	BatchSize    int
	BatchBytes   int
	BatchTimeout time.Duration
	Compression  string
	Async        bool

	// KeyOrdered routes a key to a fixed partition so one rate type stays in order.
	KeyOrdered       bool
	AutoCreateTopics bool
}

// ProducerOption adjusts ProducerConfig.
type ProducerOption func(*ProducerConfig)

func defaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		RequiredAcks: int(kafka.RequireAll),
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		BatchSize:    100,
		BatchBytes:   1 << 20,
		BatchTimeout: time.Second,
		Compression:  "gzip",
	}
}

// WithBrokers sets the bootstrap brokers.
func WithBrokers(brokers []string) ProducerOption {
	return func(c *ProducerConfig) { c.Brokers = brokers }
}

// WithDelivery sets acks (-1 waits for all replicas) and writer attempts.
func WithDelivery(acks, attempts int) ProducerOption {
	return func(c *ProducerConfig) {
		c.RequiredAcks = acks
		if attempts > 0 {
			c.MaxAttempts = attempts
		}
	}
}

// WithBatching sets the flush thresholds; the first one reached flushes the batch.
func WithBatching(size, bytes int, linger time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		if size > 0 {
			c.BatchSize = size
		}
		if bytes > 0 {
			c.BatchBytes = bytes
		}
		if linger > 0 {
			c.BatchTimeout = linger
		}
	}
}

// WithCompression selects gzip, snappy, lz4 or zstd.
func WithCompression(codec string) ProducerOption {
	return func(c *ProducerConfig) { c.Compression = codec }
}

// WithTimeouts sets broker write and read timeouts.
func WithTimeouts(write, read time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		if write > 0 {
			c.WriteTimeout = write
		}
		if read > 0 {
			c.ReadTimeout = read
		}
	}
}

// WithAsync makes Publish return before the broker acknowledges.
func WithAsync(async bool) ProducerOption {
	return func(c *ProducerConfig) { c.Async = async }
}

// WithKeyOrdering hashes message keys onto partitions.
func WithKeyOrdering(on bool) ProducerOption {
	return func(c *ProducerConfig) { c.KeyOrdered = on }
}

// WithAutoCreateTopics lets the writer create missing topics.
func WithAutoCreateTopics(on bool) ProducerOption {
	return func(c *ProducerConfig) { c.AutoCreateTopics = on }
}

func (c ProducerConfig) validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka: brokers are required")
	}
	switch c.RequiredAcks {
	case int(kafka.RequireNone), int(kafka.RequireOne), int(kafka.RequireAll):
	default:
		return errors.New("kafka: required acks must be -1, 0 or 1")
	}
	return nil
}

func (c ProducerConfig) writer() *kafka.Writer {
	var bal kafka.Balancer = &kafka.LeastBytes{}
	if c.KeyOrdered {
		bal = &kafka.Hash{}
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(c.Brokers...),
		Balancer:               bal,
		RequiredAcks:           kafka.RequiredAcks(c.RequiredAcks),
		Compression:            parseCompression(c.Compression),
		MaxAttempts:            c.MaxAttempts,
		WriteTimeout:           c.WriteTimeout,
		ReadTimeout:            c.ReadTimeout,
		BatchSize:              c.BatchSize,
		BatchBytes:             int64(c.BatchBytes),
		BatchTimeout:           c.BatchTimeout,
		Async:                  c.Async,
		AllowAutoTopicCreation: c.AutoCreateTopics,
	}
}

func parseCompression(s string) kafka.Compression {
	switch s {
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Gzip
	}
}
