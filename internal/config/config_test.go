package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
storage:
  dataDir: "/tmp/chart-trader-test"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Sync.PageSize != 1000 {
		t.Fatalf("expected default page size 1000, got %d", cfg.Sync.PageSize)
	}
	if cfg.Sync.StaleCandles != 3 {
		t.Fatalf("expected default stale candles 3, got %d", cfg.Sync.StaleCandles)
	}
	if cfg.Retry.Interactive.MaxAttempts != 5 {
		t.Fatalf("expected interactive max attempts 5, got %d", cfg.Retry.Interactive.MaxAttempts)
	}
	if cfg.Retry.Background.InitialDelay != time.Second {
		t.Fatalf("expected background initial delay 1s, got %s", cfg.Retry.Background.InitialDelay)
	}
	if cfg.Provider.BaseURL == "" {
		t.Fatal("expected a default provider base URL")
	}
	if !cfg.PaperTrade.Enabled || cfg.PaperTrade.InitialBalance != 10000 {
		t.Fatalf("unexpected paper trade defaults: %+v", cfg.PaperTrade)
	}
	if cfg.Bridge.Port != "8972" {
		t.Fatalf("expected default bridge port 8972, got %s", cfg.Bridge.Port)
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
sync:
  pageSize: 500
  staleCandles: 5
storage:
  dataDir: "/tmp/chart-trader-test"
series:
  - symbol: "BTCUSDT"
    timeframe: "1h"
    active: true
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Sync.PageSize != 500 || cfg.Sync.StaleCandles != 5 {
		t.Fatalf("overrides not applied: %+v", cfg.Sync)
	}
	if len(cfg.Series) != 1 || cfg.Series[0].Symbol != "BTCUSDT" || !cfg.Series[0].Active {
		t.Fatalf("series not loaded: %+v", cfg.Series)
	}
}

func TestLoadConfigRejectsInvalidTimeframe(t *testing.T) {
	path := writeConfig(t, `
storage:
  dataDir: "/tmp/chart-trader-test"
series:
  - symbol: "BTCUSDT"
    timeframe: "3h"
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation to reject an unsupported timeframe")
	}
}

func TestLoadConfigRejectsOversizedPage(t *testing.T) {
	path := writeConfig(t, `
sync:
  pageSize: 5000
storage:
  dataDir: "/tmp/chart-trader-test"
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation to reject a page size over the provider limit")
	}
}

func TestLoadConfigParsesStrategies(t *testing.T) {
	path := writeConfig(t, `
storage:
  dataDir: "/tmp/chart-trader-test"
strategies:
  - symbol: "BTCUSDT"
    timeframe: "1h"
    tag: "sma_cross"
    quantity: 0.01
    params:
      fastPeriod: 20
      slowPeriod: 60
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(cfg.Strategies) != 1 {
		t.Fatalf("expected 1 strategy, got %d", len(cfg.Strategies))
	}
	st := cfg.Strategies[0]
	if st.Tag != "sma_cross" || st.Quantity != 0.01 {
		t.Fatalf("unexpected strategy config: %+v", st)
	}
	if st.Params["fastPeriod"] != 20 || st.Params["slowPeriod"] != 60 {
		t.Fatalf("params not loaded: %+v", st.Params)
	}
}

func TestLoadConfigRejectsNonPositiveStrategyQuantity(t *testing.T) {
	path := writeConfig(t, `
storage:
  dataDir: "/tmp/chart-trader-test"
strategies:
  - symbol: "BTCUSDT"
    timeframe: "1h"
    tag: "sma_cross"
    quantity: 0
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation to reject a non-positive strategy quantity")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
