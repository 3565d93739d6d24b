// Package config loads and validates the worker's environment-driven settings.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Prometheus holds connection settings for the upstream time-series API.
type Prometheus struct {
	URL              string
	User             string
	Password         string
	Insecure         bool
	Timeout          time.Duration
	QueryStepSeconds int
}

// ClickHouse holds connection settings for the destination store.
type ClickHouse struct {
	URL                string
	User               string
	Password           string
	Insecure           bool
	ConnectTimeout     time.Duration
	SendReceiveTimeout time.Duration
	TableMetrics       string
	TableETL           string
}

// ETL holds the window-scheduling and scratch-file settings.
type ETL struct {
	BatchWindowSizeSeconds    int64
	BatchWindowOverlapSeconds int64
	MinWindowStartTimestamp   int64
	TempDir                   string
	LogLevel                  string
}

// Config is the top-level, fully validated application configuration.
type Config struct {
	Prometheus Prometheus
	ClickHouse ClickHouse
	ETL        ETL
}

// keys are bound explicitly (no prefix magic) so the environment surface
// stays auditable from this one place.
var envKeys = []string{
	"PROMETHEUS_URL",
	"PROMETHEUS_USER",
	"PROMETHEUS_PASSWORD",
	"PROMETHEUS_INSECURE",
	"PROMETHEUS_TIMEOUT",
	"PROMETHEUS_QUERY_STEP_SECONDS",
	"CLICKHOUSE_URL",
	"CLICKHOUSE_USER",
	"CLICKHOUSE_PASSWORD",
	"CLICKHOUSE_INSECURE",
	"CLICKHOUSE_CONNECT_TIMEOUT",
	"CLICKHOUSE_SEND_RECEIVE_TIMEOUT",
	"CLICKHOUSE_TABLE_METRICS",
	"CLICKHOUSE_TABLE_ETL",
	"BATCH_WINDOW_SIZE_SECONDS",
	"BATCH_WINDOW_OVERLAP_SECONDS",
	"MIN_WINDOW_START_TIMESTAMP",
	"TEMP_DIR",
	"LOG_LEVEL",
}

func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault("PROMETHEUS_TIMEOUT", 10)
	v.SetDefault("PROMETHEUS_QUERY_STEP_SECONDS", 15)
	v.SetDefault("CLICKHOUSE_CONNECT_TIMEOUT", 10)
	v.SetDefault("CLICKHOUSE_SEND_RECEIVE_TIMEOUT", 300)
	v.SetDefault("CLICKHOUSE_TABLE_METRICS", "default.metrics")
	v.SetDefault("CLICKHOUSE_TABLE_ETL", "default.etl")
	v.SetDefault("BATCH_WINDOW_SIZE_SECONDS", 300)
	v.SetDefault("BATCH_WINDOW_OVERLAP_SECONDS", 0)
	v.SetDefault("MIN_WINDOW_START_TIMESTAMP", 0)
	v.SetDefault("TEMP_DIR", os.TempDir())
	v.SetDefault("LOG_LEVEL", "info")

	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}
	return v, nil
}

// Load reads and validates configuration from the process environment.
func Load() (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Prometheus: Prometheus{
			URL:              v.GetString("PROMETHEUS_URL"),
			User:             v.GetString("PROMETHEUS_USER"),
			Password:         v.GetString("PROMETHEUS_PASSWORD"),
			Insecure:         v.GetBool("PROMETHEUS_INSECURE"),
			Timeout:          time.Duration(v.GetInt64("PROMETHEUS_TIMEOUT")) * time.Second,
			QueryStepSeconds: v.GetInt("PROMETHEUS_QUERY_STEP_SECONDS"),
		},
		ClickHouse: ClickHouse{
			URL:                v.GetString("CLICKHOUSE_URL"),
			User:               v.GetString("CLICKHOUSE_USER"),
			Password:           v.GetString("CLICKHOUSE_PASSWORD"),
			Insecure:           v.GetBool("CLICKHOUSE_INSECURE"),
			ConnectTimeout:     time.Duration(v.GetInt64("CLICKHOUSE_CONNECT_TIMEOUT")) * time.Second,
			SendReceiveTimeout: time.Duration(v.GetInt64("CLICKHOUSE_SEND_RECEIVE_TIMEOUT")) * time.Second,
			TableMetrics:       v.GetString("CLICKHOUSE_TABLE_METRICS"),
			TableETL:           v.GetString("CLICKHOUSE_TABLE_ETL"),
		},
		ETL: ETL{
			BatchWindowSizeSeconds:    v.GetInt64("BATCH_WINDOW_SIZE_SECONDS"),
			BatchWindowOverlapSeconds: v.GetInt64("BATCH_WINDOW_OVERLAP_SECONDS"),
			MinWindowStartTimestamp:   v.GetInt64("MIN_WINDOW_START_TIMESTAMP"),
			TempDir:                   v.GetString("TEMP_DIR"),
			LogLevel:                  v.GetString("LOG_LEVEL"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Prometheus.URL == "" {
		return fmt.Errorf("PROMETHEUS_URL is required")
	}
	if c.ClickHouse.URL == "" {
		return fmt.Errorf("CLICKHOUSE_URL is required")
	}
	if c.ETL.BatchWindowSizeSeconds <= 0 {
		return fmt.Errorf("BATCH_WINDOW_SIZE_SECONDS must be > 0, got %d", c.ETL.BatchWindowSizeSeconds)
	}
	if c.ETL.BatchWindowOverlapSeconds < 0 {
		return fmt.Errorf("BATCH_WINDOW_OVERLAP_SECONDS must be >= 0, got %d", c.ETL.BatchWindowOverlapSeconds)
	}
	return nil
}
