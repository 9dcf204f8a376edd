package syncer

import (
	"fmt"
	"time"

	"github.com/yourorg/chart-trader/internal/indicator"
	"github.com/yourorg/chart-trader/internal/model"
)

// This file is the orchestrator's surface for the UI bridge: thread-safe
// snapshot reads and the manual order entry path.

// SeriesList summarizes every registered series
func (o *Orchestrator) SeriesList() []SeriesSummary {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]SeriesSummary, 0, len(o.order))
	for _, series := range o.order {
		cs := o.stores[series.String()]
		out = append(out, SeriesSummary{
			Series:       series,
			Active:       o.active[series.String()],
			CandleCount:  cs.Len(),
			MinTimestamp: cs.MinTimestamp(),
			MaxTimestamp: cs.MaxTimestamp(),
			LastClose:    cs.LastClose(),
		})
	}
	return out
}

// Candles returns up to limit of the newest candles for a series
func (o *Orchestrator) Candles(series model.SeriesID, limit int) ([]model.Candle, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	cs, ok := o.stores[series.String()]
	if !ok {
		return nil, false
	}
	if limit <= 0 || limit > cs.Len() {
		limit = cs.Len()
	}
	return cs.Tail(limit), true
}

// Indicators returns the cached derived indicators for a series
func (o *Orchestrator) Indicators(series model.SeriesID) (indicator.Snapshot, bool) {
	return o.indicators.Get(series)
}

// Downloads returns every in-flight backfill plan
func (o *Orchestrator) Downloads() []model.DownloadProgress {
	return o.coordinator.ActivePlans()
}

// RequestBackfill schedules a backfill run for a registered series. An
// already-active plan is returned as-is.
func (o *Orchestrator) RequestBackfill(series model.SeriesID) (model.DownloadProgress, error) {
	o.mu.RLock()
	_, ok := o.stores[series.String()]
	o.mu.RUnlock()
	if !ok {
		return model.DownloadProgress{}, fmt.Errorf("series %s not registered", series.String())
	}

	if o.coordinator.Begin(series) {
		go o.coordinator.Run(o.runCtx, series)
	}

	// Begin registered the plan synchronously, so this cannot miss
	progress, _ := o.coordinator.Progress(series)
	return progress, nil
}

// CancelBackfill abandons a series' plan at the next batch boundary
func (o *Orchestrator) CancelBackfill(series model.SeriesID) bool {
	return o.coordinator.Cancel(series)
}

// PaperTradingEnabled reports whether the matching engine is active
func (o *Orchestrator) PaperTradingEnabled() bool {
	return o.paperTrade
}

// PlaceMarketOrder executes an order at the latest known price for the
// symbol, closing an opposite position first and opening one otherwise
func (o *Orchestrator) PlaceMarketOrder(symbol string, side model.Side, qty float64, takeProfit, stopLoss *float64, strategyName string) (model.Trade, error) {
	if !o.paperTrade {
		return model.Trade{}, fmt.Errorf("paper trading is disabled")
	}

	price, ok := o.lastPrice(symbol)
	if !ok {
		return model.Trade{}, fmt.Errorf("no known price for symbol %s", symbol)
	}

	o.mu.Lock()
	trade, err := o.ledger.ExecuteOrder(symbol, side, qty, price, takeProfit, stopLoss, time.Now().Unix(), strategyName)
	snapshot := o.snapshotLedgerLocked()
	o.mu.Unlock()

	if err != nil {
		return model.Trade{}, err
	}
	if snapshot != nil {
		o.persistLedger(snapshot)
		o.renderGen.Add(1)
	}
	return trade, nil
}

// PlaceLimitOrder queues a limit order for the matching engine
func (o *Orchestrator) PlaceLimitOrder(symbol string, side model.Side, qty, limitPrice float64, takeProfit, stopLoss *float64) (model.PendingOrder, error) {
	if !o.paperTrade {
		return model.PendingOrder{}, fmt.Errorf("paper trading is disabled")
	}

	o.mu.Lock()
	order, err := o.ledger.CreatePendingOrder(symbol, side, qty, limitPrice, takeProfit, stopLoss, time.Now().Unix())
	snapshot := o.snapshotLedgerLocked()
	o.mu.Unlock()

	if err != nil {
		return model.PendingOrder{}, err
	}
	if snapshot != nil {
		o.persistLedger(snapshot)
		o.renderGen.Add(1)
	}
	return order, nil
}

// CancelOrder removes a pending order by ID
func (o *Orchestrator) CancelOrder(orderID int64) bool {
	o.mu.Lock()
	ok := o.ledger.CancelPendingOrder(orderID)
	snapshot := o.snapshotLedgerLocked()
	o.mu.Unlock()

	if snapshot != nil {
		o.persistLedger(snapshot)
		o.renderGen.Add(1)
	}
	return ok
}

// ResetLedger wipes the paper-trading account back to its starting state
func (o *Orchestrator) ResetLedger() {
	o.mu.Lock()
	o.ledger.Reset()
	snapshot := o.snapshotLedgerLocked()
	o.mu.Unlock()

	if snapshot != nil {
		o.persistLedger(snapshot)
		o.renderGen.Add(1)
	}
	o.logger.Info("Paper-trading ledger reset")
}

// LedgerState returns a copy of the full ledger
func (o *Orchestrator) LedgerState() model.LedgerSnapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return *o.ledger.Snapshot()
}

// Account returns the ledger valued at the latest known prices
func (o *Orchestrator) Account() model.AccountInfo {
	prices := make(map[string]float64)
	o.mu.RLock()
	for _, series := range o.order {
		cs := o.stores[series.String()]
		if price := cs.LastClose(); price > 0 {
			prices[series.Symbol] = price
		}
	}
	info := o.ledger.AccountInfo(prices)
	o.mu.RUnlock()
	return info
}

// lastPrice finds the newest close for any series of the symbol
func (o *Orchestrator) lastPrice(symbol string) (float64, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, series := range o.order {
		if series.Symbol != symbol {
			continue
		}
		if price := o.stores[series.String()].LastClose(); price > 0 {
			return price, true
		}
	}
	return 0, false
}

// snapshotLedgerLocked captures and clears the dirty ledger, or returns nil
// when nothing changed. Callers hold the write lock.
func (o *Orchestrator) snapshotLedgerLocked() *model.LedgerSnapshot {
	if !o.ledger.Mutated() {
		return nil
	}
	snapshot := o.ledger.Snapshot()
	o.ledger.ClearMutated()
	return snapshot
}
