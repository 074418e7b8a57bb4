// Package config reads the service configuration from the environment and an optional .env file.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel string
	GrpcPort string
	HttpPort string
	// AdminToken guards the admin endpoints when set.
	AdminToken string
	DB         DBConfig
	Redis      RedisConfig
	Compiler   CompilerConfig
	Blob       BlobConfig
	Kafka      KafkaConfig
	Jobs       JobsConfig
	Links      LinksConfig
}

type DBConfig struct {
	// Driver is sqlite or postgres.
	Driver string
	DSN    string
}

type RedisConfig struct {
	// Addr is empty when redis is disabled.
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type CompilerConfig struct {
	Endpoints        []string
	Timeout          time.Duration
	FailureThreshold uint32
	CoolDown         time.Duration
}

type BlobConfig struct {
	// Driver is one of fs, db, s3 or gcs.
	Driver      string
	Dir         string
	Bucket      string
	Region      string
	Prefix      string
	Compression string
}

type KafkaConfig struct {
	// Brokers is empty when events are not published.
	Brokers string
	Topic   string
}

type JobsConfig struct {
	PruneSchedule string
	PruneAfter    time.Duration
	SyncSchedule  string
	SyncLimit     int
}

type LinksConfig struct {
	TokenLength int
}

func defaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("GRPC_PORT", "4020")
	v.SetDefault("HTTP_PORT", "4021")
	v.SetDefault("ADMIN_TOKEN", "")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_DSN", "docrender.db")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_TTL", "24h")
	v.SetDefault("COMPILER_ENDPOINTS", "http://localhost:8080")
	v.SetDefault("COMPILER_TIMEOUT", "60s")
	v.SetDefault("COMPILER_FAILURE_THRESHOLD", 5)
	v.SetDefault("COMPILER_COOL_DOWN", "30s")
	v.SetDefault("BLOB_DRIVER", "fs")
	v.SetDefault("BLOB_DIR", ".data/artifacts")
	v.SetDefault("BLOB_BUCKET", "")
	v.SetDefault("BLOB_REGION", "")
	v.SetDefault("BLOB_PREFIX", "artifacts")
	v.SetDefault("BLOB_COMPRESSION", "nop")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "document.rendered")
	v.SetDefault("PRUNE_SCHEDULE", "@every 1h")
	v.SetDefault("PRUNE_AFTER", "168h")
	v.SetDefault("SYNC_SCHEDULE", "@every 10m")
	v.SetDefault("SYNC_LIMIT", 100)
	v.SetDefault("LINK_TOKEN_LENGTH", 8)
}

// LoadConfig reads the configuration. Values in the environment win over the .env file.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Debugf("no .env file loaded: %v", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	defaults(v)

	return fromViper(v)
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		LogLevel:   v.GetString("LOG_LEVEL"),
		GrpcPort:   v.GetString("GRPC_PORT"),
		HttpPort:   v.GetString("HTTP_PORT"),
		AdminToken: v.GetString("ADMIN_TOKEN"),
		DB: DBConfig{
			Driver: strings.ToLower(v.GetString("DB_DRIVER")),
			DSN:    v.GetString("DB_DSN"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			TTL:      v.GetDuration("CACHE_TTL"),
		},
		Compiler: CompilerConfig{
			Endpoints:        splitList(v.GetString("COMPILER_ENDPOINTS")),
			Timeout:          v.GetDuration("COMPILER_TIMEOUT"),
			FailureThreshold: v.GetUint32("COMPILER_FAILURE_THRESHOLD"),
			CoolDown:         v.GetDuration("COMPILER_COOL_DOWN"),
		},
		Blob: BlobConfig{
			Driver:      strings.ToLower(v.GetString("BLOB_DRIVER")),
			Dir:         v.GetString("BLOB_DIR"),
			Bucket:      v.GetString("BLOB_BUCKET"),
			Region:      v.GetString("BLOB_REGION"),
			Prefix:      v.GetString("BLOB_PREFIX"),
			Compression: strings.ToLower(v.GetString("BLOB_COMPRESSION")),
		},
		Kafka: KafkaConfig{
			Brokers: v.GetString("KAFKA_BROKERS"),
			Topic:   v.GetString("KAFKA_TOPIC"),
		},
		Jobs: JobsConfig{
			PruneSchedule: v.GetString("PRUNE_SCHEDULE"),
			PruneAfter:    v.GetDuration("PRUNE_AFTER"),
			SyncSchedule:  v.GetString("SYNC_SCHEDULE"),
			SyncLimit:     v.GetInt("SYNC_LIMIT"),
		},
		Links: LinksConfig{
			TokenLength: v.GetInt("LINK_TOKEN_LENGTH"),
		},
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	} else {
		logrus.Warnf("unknown log level %q, keeping %s", cfg.LogLevel, logrus.GetLevel())
	}

	return cfg
}

// splitList splits a comma separated value, dropping empty items.
func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}

	return items
}
