package config

import (
	"os"
	"testing"
)

// unsetEnv removes every bound key from the process environment for the
// duration of the test, restoring whatever was there before on cleanup, so
// a variable left set in the ambient shell can't leak into an assertion
// about defaults.
func unsetEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		prev, had := os.LookupEnv(key)
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unsetenv %s: %v", key, err)
		}
		t.Cleanup(func() {
			if had {
				os.Setenv(key, prev)
			}
		})
	}
}

func TestLoadRequiresPrometheusURL(t *testing.T) {
	unsetEnv(t)
	t.Setenv("CLICKHOUSE_URL", "http://localhost:8123")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when PROMETHEUS_URL is unset")
	}
}

func TestLoadRequiresClickHouseURL(t *testing.T) {
	unsetEnv(t)
	t.Setenv("PROMETHEUS_URL", "http://localhost:9090")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when CLICKHOUSE_URL is unset")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	unsetEnv(t)
	t.Setenv("PROMETHEUS_URL", "http://localhost:9090")
	t.Setenv("CLICKHOUSE_URL", "http://localhost:8123")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ETL.BatchWindowSizeSeconds != 300 {
		t.Fatalf("BatchWindowSizeSeconds=%d want 300", cfg.ETL.BatchWindowSizeSeconds)
	}
	if cfg.ClickHouse.TableMetrics != "default.metrics" {
		t.Fatalf("TableMetrics=%q want default.metrics", cfg.ClickHouse.TableMetrics)
	}
	if cfg.ClickHouse.TableETL != "default.etl" {
		t.Fatalf("TableETL=%q want default.etl", cfg.ClickHouse.TableETL)
	}
	if cfg.Prometheus.QueryStepSeconds != 15 {
		t.Fatalf("QueryStepSeconds=%d want 15", cfg.Prometheus.QueryStepSeconds)
	}
}

func TestLoadRejectsNonPositiveWindowSize(t *testing.T) {
	unsetEnv(t)
	t.Setenv("PROMETHEUS_URL", "http://localhost:9090")
	t.Setenv("CLICKHOUSE_URL", "http://localhost:8123")
	t.Setenv("BATCH_WINDOW_SIZE_SECONDS", "0")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for BATCH_WINDOW_SIZE_SECONDS=0")
	}
}

func TestLoadRejectsNegativeOverlap(t *testing.T) {
	unsetEnv(t)
	t.Setenv("PROMETHEUS_URL", "http://localhost:9090")
	t.Setenv("CLICKHOUSE_URL", "http://localhost:8123")
	t.Setenv("BATCH_WINDOW_OVERLAP_SECONDS", "-1")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative BATCH_WINDOW_OVERLAP_SECONDS")
	}
}
