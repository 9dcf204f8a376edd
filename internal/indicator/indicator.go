package indicator

import (
	"sync"

	"github.com/markcheno/go-talib"
	"github.com/yourorg/chart-trader/internal/model"

	"go.uber.org/zap"
)

// Snapshot holds the derived indicator values for one series, aligned with
// its candles. Leading entries are zero until each indicator's warm-up
// period is filled.
type Snapshot struct {
	SMA20 []float64 `json:"sma20"`
	EMA20 []float64 `json:"ema20"`
	EMA60 []float64 `json:"ema60"`
	RSI14 []float64 `json:"rsi14"`
}

// Cache recomputes and holds derived indicators per series. The orchestrator
// recomputes a series once per pass in which it changed; the bridge reads
// concurrently.
type Cache struct {
	logger *zap.Logger

	mu     sync.RWMutex
	values map[string]Snapshot
}

// NewCache creates an empty indicator cache
func NewCache(logger *zap.Logger) *Cache {
	return &Cache{
		logger: logger,
		values: make(map[string]Snapshot),
	}
}

// Recompute rebuilds the cached indicators for a series from its close
// prices. Series shorter than the longest warm-up period keep whatever
// indicators have enough data.
func (c *Cache) Recompute(series model.SeriesID, closes []float64) {
	var snap Snapshot
	if len(closes) >= 20 {
		snap.SMA20 = talib.Sma(closes, 20)
		snap.EMA20 = talib.Ema(closes, 20)
	}
	if len(closes) >= 60 {
		snap.EMA60 = talib.Ema(closes, 60)
	}
	if len(closes) >= 15 {
		snap.RSI14 = talib.Rsi(closes, 14)
	}

	c.mu.Lock()
	c.values[series.String()] = snap
	c.mu.Unlock()

	c.logger.Debug("Recomputed indicators",
		zap.String("series", series.String()),
		zap.Int("closes", len(closes)))
}

// Get returns the cached snapshot for a series
func (c *Cache) Get(series model.SeriesID) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.values[series.String()]
	return snap, ok
}
