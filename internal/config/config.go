// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers a YAML file and MOTIONSCORE_* environment variables over the defaults.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"runtime"
	"strings"
)

// Supported storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// DefaultChannels is the 6-axis IMU schema used when a motion type declares none.
var DefaultChannels = []string{"ax", "ay", "az", "gx", "gy", "gz"} //nolint:gochecknoglobals // read-only default schema

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// StorageDriver is one of memory, sqlite, postgres.
	StorageDriver string `koanf:"storage_driver"`
	// StorageDSN is the sqlite file path or the postgres connection string.
	StorageDSN string `koanf:"storage_dsn"`
	// SeedFile optionally points at a YAML fixture loaded at startup.
	SeedFile string `koanf:"seed_file"`

	// DefaultChannels is the schema for motion types without their own channel list.
	DefaultChannels []string `koanf:"default_channels"`
	// DefaultMaxDTWDistance is the placeholder ceiling of a freshly created motion type.
	DefaultMaxDTWDistance float64 `koanf:"default_max_dtw_distance"`
	// MaxFrames caps the number of frames accepted in one recording.
	MaxFrames int `koanf:"max_frames"`
	// PassScore enables the pass/fail grade when > 0.
	PassScore float64 `koanf:"pass_score"`

	// ReferenceCacheSize bounds the number of motion types whose references are cached.
	ReferenceCacheSize int `koanf:"reference_cache_size"`
	// CalibrationParallelism bounds concurrent DTW computations during recalibration.
	CalibrationParallelism int `koanf:"calibration_parallelism"`
	// EvaluationParallelism bounds concurrent DTW computations inside one evaluation.
	EvaluationParallelism int `koanf:"evaluation_parallelism"`
	// RecalibrateOnStart recalibrates every motion type once the store is ready.
	RecalibrateOnStart bool `koanf:"recalibrate_on_start"`

	// RequireDeviceKey enforces X-API-Key authentication on the API.
	RequireDeviceKey bool `koanf:"require_device_key"`
	// DefaultCompany is the company used when device authentication is disabled.
	DefaultCompany string `koanf:"default_company"`
	// MaxListLimit caps ?limit on history and leaderboard queries.
	MaxListLimit int `koanf:"max_list_limit"`

	// IngestQueueSize bounds the asynchronous ingestion queue.
	IngestQueueSize int `koanf:"ingest_queue_size"`
	// IngestWorkerCount sets the number of ingestion workers.
	IngestWorkerCount int `koanf:"ingest_worker_count"`
	// DedupeSize sets the size of the recording-key idempotency window.
	DedupeSize int `koanf:"dedupe_size"`

	// MQTTBroker enables MQTT ingestion when set, e.g. "tcp://localhost:1883".
	MQTTBroker   string `koanf:"mqtt_broker"`
	MQTTClientID string `koanf:"mqtt_client_id"`
	MQTTTopic    string `koanf:"mqtt_topic"`
	MQTTQoS      int    `koanf:"mqtt_qos"`
	MQTTUsername string `koanf:"mqtt_username"`
	MQTTPassword string `koanf:"mqtt_password"`
}

// New creates a Config populated with defaults. Context is accepted first to
// satisfy the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9080",
		StorageDriver:          StorageMemory,
		DefaultChannels:        append([]string(nil), DefaultChannels...),
		DefaultMaxDTWDistance:  1000.0,
		MaxFrames:              10_000,
		PassScore:              60,
		ReferenceCacheSize:     128,
		CalibrationParallelism: runtime.NumCPU(),
		EvaluationParallelism:  runtime.NumCPU(),
		RecalibrateOnStart:     true,
		RequireDeviceKey:       true,
		MaxListLimit:           100,
		IngestQueueSize:        1_024,
		IngestWorkerCount:      runtime.NumCPU(),
		DedupeSize:             10_000,
		MQTTClientID:           "motionscore",
		MQTTTopic:              "motionscore/recordings/#",
		MQTTQoS:                1,
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DefaultMaxDTWDistance <= 0:
		return fmt.Errorf("%w: default_max_dtw_distance must be > 0", ErrInvalidConfig)
	case len(c.DefaultChannels) == 0:
		return fmt.Errorf("%w: default_channels must not be empty", ErrInvalidConfig)
	case c.MaxFrames <= 0:
		return fmt.Errorf("%w: max_frames must be > 0", ErrInvalidConfig)
	case c.PassScore < 0 || c.PassScore > 100:
		return fmt.Errorf("%w: pass_score must be within [0, 100]", ErrInvalidConfig)
	case c.IngestQueueSize <= 0 || c.IngestWorkerCount <= 0:
		return fmt.Errorf("%w: ingest_queue_size and ingest_worker_count must be > 0", ErrInvalidConfig)
	case c.MQTTQoS < 0 || c.MQTTQoS > 2:
		return fmt.Errorf("%w: mqtt_qos must be 0, 1 or 2", ErrInvalidConfig)
	case !c.RequireDeviceKey && c.DefaultCompany == "":
		return fmt.Errorf("%w: default_company is required when require_device_key is false", ErrInvalidConfig)
	}

	switch c.StorageDriver {
	case StorageMemory:
	case StorageSQLite, StoragePostgres:
		if c.StorageDSN == "" {
			return fmt.Errorf("%w: storage_dsn is required for %s", ErrInvalidConfig, c.StorageDriver)
		}
	default:
		return fmt.Errorf("%w: unknown storage_driver %q", ErrInvalidConfig, c.StorageDriver)
	}

	for i, ch := range c.DefaultChannels {
		if strings.TrimSpace(ch) == "" {
			return fmt.Errorf("%w: default_channels[%d] is blank", ErrInvalidConfig, i)
		}
	}
	return nil
}
