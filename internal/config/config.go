// Package config loads the settings shared by the circulation processes.
// Values come from an optional <name>.env file layered under environment
// variables, with defaults for local development.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds the settings of every subsystem. Not every process uses every
// section; validation still covers all of them so one env file serves all.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Kafka       KafkaConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	Outbox      OutboxConfig
	WorkerPool  WorkerPoolConfig
	Circulation CirculationConfig
	Sweeper     SweeperConfig
}

type ApplicationConfig struct {
	Env  string
	Name string
}

type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
}

// KafkaConfig describes the event topic, its dead letter topic and the
// timeline projector's consumer group
type KafkaConfig struct {
	Brokers           string
	EventsTopic       string
	NumPartitions     int
	ReplicationFactor int
	ConsumerGroup     string
	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
	StartOffset       int64
	DLQTopic          string
}

type PostgresConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MigrationsPath  string
}

type MongoDBConfig struct {
	URI                string
	Database           string
	TimelineCollection string
	Timeout            time.Duration
	MaxPoolSize        uint64
	MinPoolSize        uint64
	MaxConnIdleTime    time.Duration
}

// OutboxConfig controls how pending events are drained to Kafka
type OutboxConfig struct {
	PollingInterval  time.Duration
	BatchSize        int
	MaxRetryAttempts int // after this many failures a message is parked as FAILED_TO_PUBLISH
}

type WorkerPoolConfig struct {
	Size int
}

// CirculationConfig holds the lending rules
type CirculationConfig struct {
	LoanPeriodDays     int // used when a title has no loan period of its own
	ExtensionDays      int
	PickupCodeTTL      time.Duration
	PickupCodeLength   int
	HoldWindow         time.Duration
	MaxOpenLoans       int
	MaxCodeGenAttempts int
}

// SweeperConfig controls the background pass over time-driven transitions
type SweeperConfig struct {
	Interval  time.Duration
	BatchSize int
}

func (c *Config) validate() error {
	var problems []string
	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	check(c.Server.Port > 0, "SERVER_PORT must be greater than 0")
	check(c.Server.ShutdownTimeout > 0, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	check(c.Server.ReadTimeout > 0, "SERVER_READ_TIMEOUT must be greater than 0")
	check(c.Server.WriteTimeout > 0, "SERVER_WRITE_TIMEOUT must be greater than 0")
	check(c.Server.IdleTimeout > 0, "SERVER_IDLE_TIMEOUT must be greater than 0")

	check(c.Kafka.Brokers != "", "KAFKA_BROKERS is required")
	check(c.Kafka.EventsTopic != "", "KAFKA_EVENTS_TOPIC is required")
	check(c.Kafka.ConsumerGroup != "", "KAFKA_CONSUMER_GROUP is required")
	check(c.Kafka.MinBytes > 0, "KAFKA_CONSUMER_MIN_BYTES must be greater than 0")
	check(c.Kafka.MaxBytes > 0, "KAFKA_CONSUMER_MAX_BYTES must be greater than 0")
	check(c.Kafka.MaxWait > 0, "KAFKA_CONSUMER_MAX_WAIT must be greater than 0")
	check(c.Kafka.DLQTopic != "", "KAFKA_DLQ_TOPIC is required")

	check(c.Postgres.URL != "", "POSTGRES_URL is required")
	check(c.Postgres.MaxConns > 0, "POSTGRES_MAX_CONNS must be greater than 0")
	check(c.Postgres.MinConns > 0, "POSTGRES_MIN_CONNS must be greater than 0")
	check(c.Postgres.ConnMaxLifetime > 0, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	check(c.Postgres.ConnMaxIdleTime > 0, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")

	check(c.MongoDB.URI != "", "MONGO_URI is required")
	check(c.MongoDB.Database != "", "MONGO_DATABASE is required")
	check(c.MongoDB.TimelineCollection != "", "MONGO_TIMELINE_COLLECTION is required")
	check(c.MongoDB.Timeout > 0, "MONGO_TIMEOUT must be greater than 0")
	check(c.MongoDB.MaxPoolSize > 0, "MONGO_MAX_POOL_SIZE must be greater than 0")
	check(c.MongoDB.MinPoolSize > 0, "MONGO_MIN_POOL_SIZE must be greater than 0")
	check(c.MongoDB.MaxConnIdleTime > 0, "MONGO_MAX_CONN_IDLE_TIME must be greater than 0")

	check(c.Outbox.PollingInterval > 0, "OUTBOX_POLLING_INTERVAL must be greater than 0")
	check(c.Outbox.BatchSize > 0, "OUTBOX_BATCH_SIZE must be greater than 0")
	check(c.Outbox.MaxRetryAttempts > 0, "OUTBOX_MAX_RETRY_ATTEMPTS must be greater than 0")

	check(c.WorkerPool.Size > 0, "WORKER_POOL_SIZE must be greater than 0")

	check(c.Circulation.LoanPeriodDays > 0, "CIRCULATION_LOAN_PERIOD_DAYS must be greater than 0")
	check(c.Circulation.ExtensionDays > 0, "CIRCULATION_EXTENSION_DAYS must be greater than 0")
	check(c.Circulation.PickupCodeTTL > 0, "CIRCULATION_PICKUP_CODE_TTL must be greater than 0")
	check(c.Circulation.PickupCodeLength >= 4, "CIRCULATION_PICKUP_CODE_LENGTH must be at least 4")
	check(c.Circulation.HoldWindow > 0, "CIRCULATION_HOLD_WINDOW must be greater than 0")
	check(c.Circulation.MaxOpenLoans > 0, "CIRCULATION_MAX_OPEN_LOANS must be greater than 0")
	check(c.Circulation.MaxCodeGenAttempts > 0, "CIRCULATION_MAX_CODE_GEN_ATTEMPTS must be greater than 0")

	check(c.Sweeper.Interval > 0, "SWEEPER_INTERVAL must be greater than 0")
	check(c.Sweeper.BatchSize > 0, "SWEEPER_BATCH_SIZE must be greater than 0")

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, ", "))
	}
	return nil
}
