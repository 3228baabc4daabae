// Package config loads the tunable parameters of the relay from the
// environment, following the same load-with-defaults shape the rest of
// the fleet stack uses.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures every tunable named by the connection and broadcast
// engine: rate limits, movement/heartbeat thresholds, grace and stale
// windows, snapshot caps, and the optional side-channel addresses.
type Config struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	ShutdownSettle  time.Duration

	PingInterval    time.Duration
	PongTimeout     time.Duration
	MaxMessageBytes int64

	MovementThresholdDeg               float64
	HeartbeatInterval                  time.Duration
	StaleTimeout                       time.Duration
	GracePeriod                        time.Duration
	CleanupInterval                    time.Duration
	MaxUpdatesPerMinute                int
	MaxSnapshotDrivers                 int
	RequireDriverAccountAtRegistration bool

	RedisAddr      string
	RedisPassword  string
	RedisKeyPrefix string

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string

	LogLevel string
}

func defaultConfig() Config {
	return Config{
		HTTPAddr:        ":3000",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		ShutdownSettle:  2 * time.Second,

		PingInterval:    25 * time.Second,
		PongTimeout:     60 * time.Second,
		MaxMessageBytes: 1 << 20,

		MovementThresholdDeg:                0.0001,
		HeartbeatInterval:                   30 * time.Second,
		StaleTimeout:                        300 * time.Second,
		GracePeriod:                         30 * time.Second,
		CleanupInterval:                     60 * time.Second,
		MaxUpdatesPerMinute:                 60,
		MaxSnapshotDrivers:                  500,
		RequireDriverAccountAtRegistration:  false,

		RedisKeyPrefix: "fleetrelay",
		KafkaTopic:     "driver-locations",

		LogLevel: "info",
	}
}

// Load reads environment variables over the defaults, accumulating
// parse errors instead of failing fast on the first one.
func Load() (Config, error) {
	cfg := defaultConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownSettle, "SHUTDOWN_SETTLE", &errs)

	setDurationFromEnv(&cfg.PingInterval, "WS_PING_INTERVAL", &errs)
	setDurationFromEnv(&cfg.PongTimeout, "WS_PONG_TIMEOUT", &errs)
	setInt64FromEnv(&cfg.MaxMessageBytes, "WS_MAX_MESSAGE_BYTES", &errs)

	setFloatFromEnv(&cfg.MovementThresholdDeg, "MOVEMENT_THRESHOLD_DEG", &errs)
	setDurationFromEnv(&cfg.HeartbeatInterval, "HEARTBEAT_INTERVAL", &errs)
	setDurationFromEnv(&cfg.StaleTimeout, "STALE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.GracePeriod, "GRACE_PERIOD", &errs)
	setDurationFromEnv(&cfg.CleanupInterval, "CLEANUP_INTERVAL", &errs)
	setIntFromEnv(&cfg.MaxUpdatesPerMinute, "MAX_UPDATES_PER_MINUTE", &errs)
	setIntFromEnv(&cfg.MaxSnapshotDrivers, "MAX_SNAPSHOT_DRIVERS", &errs)
	setBoolFromEnv(&cfg.RequireDriverAccountAtRegistration, "REQUIRE_DRIVER_ACCOUNT_AT_REGISTRATION", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisKeyPrefix, "REDIS_KEY_PREFIX")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.MaxUpdatesPerMinute <= 0 {
		errs = append(errs, fmt.Errorf("MAX_UPDATES_PER_MINUTE must be > 0"))
	}
	if cfg.MaxSnapshotDrivers <= 0 {
		errs = append(errs, fmt.Errorf("MAX_SNAPSHOT_DRIVERS must be > 0"))
	}
	if cfg.MovementThresholdDeg <= 0 {
		errs = append(errs, fmt.Errorf("MOVEMENT_THRESHOLD_DEG must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setInt64FromEnv(target *int64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setBoolFromEnv(target *bool, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = b
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
