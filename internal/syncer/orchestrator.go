package syncer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yourorg/chart-trader/internal/config"
	"github.com/yourorg/chart-trader/internal/indicator"
	"github.com/yourorg/chart-trader/internal/ledger"
	"github.com/yourorg/chart-trader/internal/model"
	"github.com/yourorg/chart-trader/internal/provider"
	"github.com/yourorg/chart-trader/internal/store"

	"go.uber.org/zap"
)

// SeriesSummary describes one registered series for the UI bridge
type SeriesSummary struct {
	Series       model.SeriesID `json:"series"`
	Active       bool           `json:"active"`
	CandleCount  int            `json:"candle_count"`
	MinTimestamp int64          `json:"min_timestamp"`
	MaxTimestamp int64          `json:"max_timestamp"`
	LastClose    float64        `json:"last_close"`
}

// fetchResult carries one series' fan-out fetch back to the control loop
type fetchResult struct {
	series  model.SeriesID
	candles []model.Candle
	err     error
}

// Orchestrator runs the periodic sync passes for all registered series:
// a missing-data pass that catches series up and schedules backfills, and a
// live-tick pass that refreshes the newest candle and feeds every price
// change through the paper-trading matching engine. Per-series fetches fan
// out concurrently; all merges and ledger mutations happen on the control
// goroutine (or under its lock), so the stores and ledger need no locking of
// their own.
type Orchestrator struct {
	provider    provider.MarketDataProvider
	stream      *provider.KlineStream
	retry       *provider.RetryExecutor
	coordinator *Coordinator
	seriesRepo  *store.SeriesRepository
	ledger      *ledger.TradingLedger
	ledgerRepo  *store.LedgerRepository
	indicators  *indicator.Cache
	syncCfg     config.SyncConfig
	retryCfg    config.RetryProfilesConfig
	paperTrade  bool
	logger      *zap.Logger

	mu         sync.RWMutex
	stores     map[string]*store.CandleStore
	order      []model.SeriesID
	active     map[string]bool
	strategies map[string][]*strategyBinding

	renderGen atomic.Uint64

	// runCtx is fixed at construction; runCancel fires when Run exits so
	// backfills launched from the bridge stop with the engine
	runCtx    context.Context
	runCancel context.CancelFunc
}

// NewOrchestrator wires the sync engine together. The provider handle is
// injected once here and shared by every concurrent fetch.
func NewOrchestrator(
	p provider.MarketDataProvider,
	stream *provider.KlineStream,
	retry *provider.RetryExecutor,
	planner *Planner,
	seriesRepo *store.SeriesRepository,
	tradingLedger *ledger.TradingLedger,
	ledgerRepo *store.LedgerRepository,
	indicators *indicator.Cache,
	syncCfg config.SyncConfig,
	retryCfg config.RetryProfilesConfig,
	paperTrade bool,
	logger *zap.Logger,
) *Orchestrator {
	runCtx, runCancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		provider:   p,
		stream:     stream,
		retry:      retry,
		seriesRepo: seriesRepo,
		ledger:     tradingLedger,
		ledgerRepo: ledgerRepo,
		indicators: indicators,
		syncCfg:    syncCfg,
		retryCfg:   retryCfg,
		paperTrade: paperTrade,
		logger:     logger,
		stores:     make(map[string]*store.CandleStore),
		active:     make(map[string]bool),
		strategies: make(map[string][]*strategyBinding),
		runCtx:     runCtx,
		runCancel:  runCancel,
	}
	o.coordinator = NewCoordinator(
		p, retry, retryCfg.Background, planner, o,
		syncCfg.PageSize, syncCfg.BatchDelay, logger,
	)
	return o
}

// RegisterSeries creates the store for a series and loads its persisted
// candles
func (o *Orchestrator) RegisterSeries(series model.SeriesID, active bool) error {
	if series.IntervalSeconds() <= 0 {
		return fmt.Errorf("unsupported timeframe %q", series.Timeframe)
	}

	cs := store.NewCandleStore(series, o.logger)
	candles, err := o.seriesRepo.Load(series)
	if err != nil {
		// A corrupt file heals through a fresh full sync
		o.logger.Warn("Failed to load persisted series, starting empty",
			zap.String("series", series.String()),
			zap.Error(err))
	} else if len(candles) > 0 {
		cs.Restore(candles)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	key := series.String()
	if _, exists := o.stores[key]; exists {
		return fmt.Errorf("series %s already registered", key)
	}
	o.stores[key] = cs
	o.order = append(o.order, series)
	o.active[key] = active

	o.logger.Info("Registered series",
		zap.String("series", key),
		zap.Bool("active", active),
		zap.Int("loadedCandles", cs.Len()))
	return nil
}

// Run drives the periodic passes until ctx is cancelled
func (o *Orchestrator) Run(ctx context.Context) {
	defer o.runCancel()

	var streamUpdates chan provider.StreamCandle
	if o.stream != nil {
		streamUpdates = make(chan provider.StreamCandle, 64)
		go o.stream.Run(ctx, o.activeSeries(), streamUpdates)
	}

	missingTicker := time.NewTicker(o.syncCfg.MissingDataPeriod)
	defer missingTicker.Stop()
	liveTicker := time.NewTicker(o.syncCfg.LiveTickPeriod)
	defer liveTicker.Stop()

	// Catch up immediately on start instead of waiting a full period
	o.missingDataPass(ctx)

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("Orchestrator stopped")
			return
		case <-missingTicker.C:
			o.missingDataPass(ctx)
		case <-liveTicker.C:
			o.liveTickPass(ctx)
		case update := <-streamUpdates:
			o.applyLiveCandle(update.Series, update.Candle)
		}
	}
}

// missingDataPass catches every series up: empty series get a full backfill,
// stale series fetch forward from their last candle (or just grab the newest
// page when too far behind to walk), and any internal holes found afterwards
// schedule a backfill plan.
func (o *Orchestrator) missingDataPass(ctx context.Context) {
	now := time.Now().Unix()
	results := make(chan fetchResult)
	var wg sync.WaitGroup

	o.mu.RLock()
	var fetchCount int
	for _, series := range o.order {
		key := series.String()
		if o.coordinator.Active(series) {
			continue
		}
		cs := o.stores[key]

		if cs.Len() == 0 {
			// Nothing local: full sync through the coordinator
			o.startBackfillLocked(ctx, series)
			continue
		}

		maxTS := cs.MaxTimestamp()
		interval := series.IntervalSeconds()
		wg.Add(1)
		fetchCount++
		go func(series model.SeriesID, maxTS, interval int64) {
			defer wg.Done()
			candles, err := o.fetchSince(ctx, series, maxTS, interval, now)
			results <- fetchResult{series: series, candles: candles, err: err}
		}(series, maxTS, interval)
	}
	o.mu.RUnlock()

	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		if res.err != nil {
			o.logger.Warn("Missing-data fetch failed",
				zap.String("series", res.series.String()),
				zap.Error(res.err))
			continue
		}
		o.MergeAndPersist(res.series, res.candles)
	}

	// Internal-gap pass over everything just merged
	o.mu.RLock()
	for _, series := range o.order {
		cs := o.stores[series.String()]
		if cs.Len() == 0 || o.coordinator.Active(series) {
			continue
		}
		if gaps := cs.DetectGaps(series.IntervalSeconds()); len(gaps) > 0 {
			o.logger.Info("Internal gaps detected, scheduling backfill",
				zap.String("series", series.String()),
				zap.Int("gaps", len(gaps)))
			o.startBackfillLocked(ctx, series)
		}
	}
	o.mu.RUnlock()
}

// fetchSince walks forward from the last known candle, or grabs the newest
// page backward when the series is so stale that walking would take many
// pages anyway
func (o *Orchestrator) fetchSince(ctx context.Context, series model.SeriesID, maxTS, interval, now int64) ([]model.Candle, error) {
	var candles []model.Candle
	missed := (now - maxTS) / interval

	var err error
	if missed >= int64(o.syncCfg.PageSize) {
		_, err = o.retry.Execute(ctx, "fetchCandlesBackward", o.retryCfg.Background, func(ctx context.Context) error {
			var opErr error
			candles, opErr = o.provider.FetchCandlesBackward(ctx, series, maxTS, now+interval)
			return opErr
		})
	} else {
		_, err = o.retry.Execute(ctx, "fetchCandlesSince", o.retryCfg.Background, func(ctx context.Context) error {
			var opErr error
			candles, opErr = o.provider.FetchCandlesSince(ctx, series, maxTS)
			return opErr
		})
	}
	return candles, err
}

// liveTickPass fetches the newest candle for every active series in parallel
// and applies each result on the control goroutine
func (o *Orchestrator) liveTickPass(ctx context.Context) {
	results := make(chan fetchResult)
	var wg sync.WaitGroup

	for _, series := range o.activeSeries() {
		if o.coordinator.Active(series) {
			continue
		}
		wg.Add(1)
		go func(series model.SeriesID) {
			defer wg.Done()
			var candle *model.Candle
			_, err := o.retry.Execute(ctx, "fetchLatestCandle", o.retryCfg.Interactive, func(ctx context.Context) error {
				var opErr error
				candle, opErr = o.provider.FetchLatestCandle(ctx, series)
				return opErr
			})
			res := fetchResult{series: series, err: err}
			if candle != nil {
				res.candles = []model.Candle{*candle}
			}
			results <- res
		}(series)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		if res.err != nil {
			o.logger.Warn("Live tick fetch failed",
				zap.String("series", res.series.String()),
				zap.Error(res.err))
			continue
		}
		if len(res.candles) == 1 {
			o.applyLiveCandle(res.series, res.candles[0])
		}
	}
}

// applyLiveCandle merges one live candle and, when the price changed, runs
// strategies and the matching engine for the symbol and persists the ledger
// if it mutated. Series with an active backfill plan are skipped, like the
// periodic passes: the coordinator owns them until its plan finishes.
func (o *Orchestrator) applyLiveCandle(series model.SeriesID, candle model.Candle) {
	if o.coordinator.Active(series) {
		return
	}

	result := o.MergeAndPersist(series, []model.Candle{candle})
	if !result.Changed() || !o.paperTrade {
		return
	}

	price := candle.Close
	ts := candle.Timestamp

	o.mu.Lock()
	o.ledger.MatchPendingOrders(series.Symbol, price, ts)
	o.ledger.MatchTakeProfitStopLoss(series.Symbol, price, ts)
	o.evaluateStrategiesLocked(series, price, ts)
	snapshot := o.snapshotLedgerLocked()
	o.mu.Unlock()

	if snapshot != nil {
		o.persistLedger(snapshot)
		o.renderGen.Add(1)
	}
}

// MergeAndPersist is the single write path for candle data: it merges under
// the orchestrator lock, recomputes the series' cached indicators when the
// merge changed anything, persists the store, and bumps the render
// generation. Persistence failures are logged and non-fatal; the in-memory
// store stays authoritative.
func (o *Orchestrator) MergeAndPersist(series model.SeriesID, candles []model.Candle) store.MergeResult {
	key := series.String()

	o.mu.Lock()
	cs, ok := o.stores[key]
	if !ok {
		o.mu.Unlock()
		return store.MergeResult{}
	}
	result := cs.Merge(candles)
	var snapshot []model.Candle
	var closes []float64
	if result.Changed() {
		snapshot = cs.Candles()
		closes = cs.Closes()
	}
	o.mu.Unlock()

	if !result.Changed() {
		return result
	}

	o.indicators.Recompute(series, closes)
	if err := o.seriesRepo.Save(series, snapshot); err != nil {
		o.logger.Error("Failed to persist series, continuing with in-memory data",
			zap.String("series", key),
			zap.Error(err))
	}
	o.renderGen.Add(1)
	return result
}

// SeriesView snapshots a series' bounds and gaps under the orchestrator lock
// so the coordinator can plan against a store no merge is concurrently
// growing
func (o *Orchestrator) SeriesView(series model.SeriesID) (SeriesView, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	cs, ok := o.stores[series.String()]
	if !ok {
		return SeriesView{}, false
	}
	return SeriesView{
		Series:       series,
		Len:          cs.Len(),
		MinTimestamp: cs.MinTimestamp(),
		MaxTimestamp: cs.MaxTimestamp(),
		Gaps:         cs.DetectGaps(series.IntervalSeconds()),
	}, true
}

// startBackfillLocked claims and launches a coordinator run for the series.
// Callers hold at least the read lock.
func (o *Orchestrator) startBackfillLocked(ctx context.Context, series model.SeriesID) {
	if !o.coordinator.Begin(series) {
		return
	}
	go o.coordinator.Run(ctx, series)
}

func (o *Orchestrator) persistLedger(snapshot *model.LedgerSnapshot) {
	if err := o.ledgerRepo.Save(snapshot); err != nil {
		o.logger.Error("Failed to persist ledger, in-memory state remains authoritative",
			zap.Error(err))
	}
}

func (o *Orchestrator) activeSeries() []model.SeriesID {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]model.SeriesID, 0, len(o.order))
	for _, series := range o.order {
		if o.active[series.String()] {
			out = append(out, series)
		}
	}
	return out
}

// RenderGeneration returns the counter the rendering layer polls to decide
// when to redraw
func (o *Orchestrator) RenderGeneration() uint64 {
	return o.renderGen.Load()
}
