package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/yourorg/chart-trader/internal/model"

	"go.uber.org/zap"
)

func TestSeriesRepositoryRoundTrip(t *testing.T) {
	repo, err := NewSeriesRepository(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}

	series := model.SeriesID{Symbol: "BTCUSDT", Timeframe: "1h"}
	candles := []model.Candle{
		candleAt(3600, 100),
		candleAt(7200, 101),
	}

	if err := repo.Save(series, candles); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := repo.Load(series)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(loaded) != 2 || loaded[0] != candles[0] || loaded[1] != candles[1] {
		t.Fatalf("round trip mismatch: %v", loaded)
	}
}

func TestSeriesRepositoryLoadMissingFile(t *testing.T) {
	repo, err := NewSeriesRepository(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}

	loaded, err := repo.Load(model.SeriesID{Symbol: "ETHUSDT", Timeframe: "1d"})
	if err != nil {
		t.Fatalf("missing file should not be an error: %v", err)
	}
	if loaded != nil {
		t.Fatalf("expected nil candles, got %v", loaded)
	}
}

func TestSeriesRepositoryLoadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewSeriesRepository(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}

	series := model.SeriesID{Symbol: "BTCUSDT", Timeframe: "1h"}
	path := filepath.Join(dir, "series", series.String()+".json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("failed to write corrupt file: %v", err)
	}

	if _, err := repo.Load(series); err == nil {
		t.Fatal("expected an error for a corrupt file")
	}
}

func TestLedgerRepositoryRoundTrip(t *testing.T) {
	repo, err := NewLedgerRepository(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}

	// First load on a fresh directory reports no snapshot
	snapshot, err := repo.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if snapshot != nil {
		t.Fatalf("expected nil snapshot, got %+v", snapshot)
	}

	tp := 110.0
	saved := &model.LedgerSnapshot{
		Trades: []model.Trade{
			{ID: 1, Symbol: "BTCUSDT", Side: model.SideBuy, Quantity: 1, Price: 100, TotalAmount: 100, Timestamp: 1000},
		},
		OpenPositions: []model.Position{
			{Symbol: "BTCUSDT", Side: model.SideBuy, Quantity: 1, EntryPrice: 100, OpenTimestamp: 1000, TakeProfit: &tp},
		},
		NextTradeID: 2,
		NextOrderID: 1,
	}
	if err := repo.Save(saved); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := repo.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded == nil || len(loaded.Trades) != 1 || len(loaded.OpenPositions) != 1 {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
	if loaded.NextTradeID != 2 {
		t.Fatalf("expected nextTradeId 2, got %d", loaded.NextTradeID)
	}
	if loaded.OpenPositions[0].TakeProfit == nil || *loaded.OpenPositions[0].TakeProfit != 110 {
		t.Fatalf("take profit not preserved: %+v", loaded.OpenPositions[0])
	}
}
