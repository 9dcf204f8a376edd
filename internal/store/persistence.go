package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yourorg/chart-trader/internal/model"

	"go.uber.org/zap"
)

// SeriesRepository persists whole-series candle files under the data
// directory, one JSON file per series. Files are rewritten whole on every
// save; a crash mid-write can corrupt that one file, which the caller
// tolerates by re-syncing the series.
type SeriesRepository struct {
	dataDir string
	logger  *zap.Logger
}

// NewSeriesRepository creates a repository rooted at dataDir
func NewSeriesRepository(dataDir string, logger *zap.Logger) (*SeriesRepository, error) {
	dir := filepath.Join(dataDir, "series")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create series directory: %w", err)
	}
	return &SeriesRepository{dataDir: dir, logger: logger}, nil
}

func (r *SeriesRepository) path(series model.SeriesID) string {
	return filepath.Join(r.dataDir, series.String()+".json")
}

// Load reads the stored candles for a series. A missing file is not an
// error; it returns an empty slice.
func (r *SeriesRepository) Load(series model.SeriesID) ([]model.Candle, error) {
	data, err := os.ReadFile(r.path(series))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read series file: %w", err)
	}

	var candles []model.Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		return nil, fmt.Errorf("failed to decode series file: %w", err)
	}
	return candles, nil
}

// Save rewrites the whole series file
func (r *SeriesRepository) Save(series model.SeriesID, candles []model.Candle) error {
	data, err := json.Marshal(candles)
	if err != nil {
		return fmt.Errorf("failed to encode series: %w", err)
	}
	if err := os.WriteFile(r.path(series), data, 0o644); err != nil {
		return fmt.Errorf("failed to write series file: %w", err)
	}

	r.logger.Debug("Persisted series",
		zap.String("series", series.String()),
		zap.Int("candles", len(candles)))
	return nil
}

// LedgerRepository persists the trading ledger as a single JSON document,
// loaded at startup and rewritten after each mutating ledger operation
type LedgerRepository struct {
	path   string
	logger *zap.Logger
}

// NewLedgerRepository creates a repository writing to dataDir/ledger.json
func NewLedgerRepository(dataDir string, logger *zap.Logger) (*LedgerRepository, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &LedgerRepository{
		path:   filepath.Join(dataDir, "ledger.json"),
		logger: logger,
	}, nil
}

// Load reads the persisted ledger snapshot, or nil when none exists yet
func (r *LedgerRepository) Load() (*model.LedgerSnapshot, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read ledger file: %w", err)
	}

	var snapshot model.LedgerSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode ledger file: %w", err)
	}
	return &snapshot, nil
}

// Save rewrites the whole ledger document
func (r *LedgerRepository) Save(snapshot *model.LedgerSnapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write ledger file: %w", err)
	}

	r.logger.Debug("Persisted ledger",
		zap.Int("trades", len(snapshot.Trades)),
		zap.Int("positions", len(snapshot.OpenPositions)),
		zap.Int("orders", len(snapshot.PendingOrders)))
	return nil
}
