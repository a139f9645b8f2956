package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // scheduler timezones on minimal images

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Job kinds understood by the scheduler.
const (
	JobRange       = "range"
	JobPublication = "publication"
	JobVerify      = "verify"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required,oneof=development staging production test"`
	Log         struct {
		Level     string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format    string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output    string `yaml:"output" default:"stdout"`
		Collector struct {
			Enabled   bool          `yaml:"enabled"`
			Topic     string        `yaml:"topic" default:"tasas.logs"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100" validate:"gt=0"`
		} `yaml:"collector"`
	} `yaml:"log"`
	Server struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lt=65536"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Backend struct {
		Type string `yaml:"type" default:"redis" validate:"oneof=redis clickhouse memory"`
	} `yaml:"backend"`
	Redis struct {
		Addr         string        `yaml:"addr" default:"localhost:6379"`
		Password     string        `yaml:"password"`
		DB           int           `yaml:"db" validate:"gte=0"`
		PoolSize     int           `yaml:"pool_size" default:"10"`
		MinIdleConns int           `yaml:"min_idle_conns" default:"2"`
		PoolTimeout  time.Duration `yaml:"pool_timeout" default:"30s"`
		Prefix       string        `yaml:"prefix" default:"tasapull"`
	} `yaml:"redis"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"tasapull"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxOpenConns     int           `yaml:"max_open_conns" default:"8" validate:"gte=1"`
		MaxIdleConns     int           `yaml:"max_idle_conns" default:"4" validate:"gte=0"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		UpdatesTopic string   `yaml:"updates_topic" default:"tasas.updates"`
		IngestTopic  string   `yaml:"ingest_topic" default:"tasas.ingest"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"100ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"tasapull"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"10"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Engine struct {
		LookbackDays   int           `yaml:"lookback_days" default:"45" validate:"gt=0"`
		AttemptTimeout time.Duration `yaml:"attempt_timeout" default:"30s"`
		CycleTimeout   time.Duration `yaml:"cycle_timeout" default:"10m"`
		Retry          struct {
			MaxRetries   int           `yaml:"max_retries" default:"3" validate:"gte=0"`
			InitialDelay time.Duration `yaml:"initial_delay" default:"1s"`
			MaxDelay     time.Duration `yaml:"max_delay" default:"30s"`
			Factor       float64       `yaml:"factor" default:"2"`
		} `yaml:"retry"`
	} `yaml:"engine"`
	Source struct {
		UserAgent     string  `yaml:"user_agent" default:"tasapull/1.0"`
		RatePerSecond float64 `yaml:"rate_per_second" default:"1" validate:"gt=0"`
		Burst         int     `yaml:"burst" default:"2" validate:"gt=0"`
	} `yaml:"source"`
	Scheduler struct {
		Enabled  bool   `yaml:"enabled" default:"true"`
		Timezone string `yaml:"timezone" default:"America/Argentina/Buenos_Aires"`
		Jobs     []Job  `yaml:"jobs" validate:"dive"`
	} `yaml:"scheduler"`
	Lease struct {
		Enabled bool          `yaml:"enabled" default:"true"`
		Prefix  string        `yaml:"prefix" default:"tasapull:lease"`
		TTL     time.Duration `yaml:"ttl" default:"15m"`
	} `yaml:"lease"`
}

// Job is one scheduled task.
type Job struct {
	Name         string `yaml:"name" validate:"required"`
	TipoTasa     string `yaml:"tipo_tasa" validate:"required"`
	Cron         string `yaml:"cron" validate:"required"`
	Kind         string `yaml:"kind" default:"range" validate:"oneof=range publication verify"`
	URL          string `yaml:"url"`
	CarryForward bool   `yaml:"carry_forward"`
	Disabled     bool   `yaml:"disabled"`
}

var validate = validator.New()

// Default returns a config holding only default values.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	return &c, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// jobs only exist after decoding
	for i := range c.Scheduler.Jobs {
		if err := defaults.Set(&c.Scheduler.Jobs[i]); err != nil {
			return nil, fmt.Errorf("job defaults: %w", err)
		}
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// LoadWithEnv loads config from YAML and overrides it with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("TASAPULL_ENV"); v != "" {
		c.Environment = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := getenv("SERVER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
}

// Validate runs tag validation and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	switch c.Backend.Type {
	case "clickhouse":
		if c.ClickHouse.Host == "" {
			return errors.New("clickhouse.host is required for the clickhouse backend")
		}
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("redis.addr is required for the redis backend")
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Kafka.Consumer.Enabled && !c.Kafka.Enabled {
		return errors.New("kafka.consumer requires kafka.enabled")
	}
	if c.Lease.Enabled && c.Engine.CycleTimeout > 0 && c.Lease.TTL <= c.Engine.CycleTimeout {
		// the lease must outlive a full cycle
		return fmt.Errorf("lease.ttl %s must exceed engine.cycle_timeout %s", c.Lease.TTL, c.Engine.CycleTimeout)
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}
	names := make(map[string]struct{}, len(c.Scheduler.Jobs))
	for _, j := range c.Scheduler.Jobs {
		if _, dup := names[j.Name]; dup {
			return fmt.Errorf("scheduler job %q defined twice", j.Name)
		}
		names[j.Name] = struct{}{}
		if _, err := cron.ParseStandard(j.Cron); err != nil {
			return fmt.Errorf("scheduler job %q: cron: %w", j.Name, err)
		}
		if j.Kind != JobVerify && j.URL == "" {
			return fmt.Errorf("scheduler job %q: url is required for %s jobs", j.Name, j.Kind)
		}
	}
	return nil
}
