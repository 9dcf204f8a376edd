package syncer

import (
	"fmt"

	"github.com/yourorg/chart-trader/internal/model"
	"github.com/yourorg/chart-trader/internal/strategy"

	"go.uber.org/zap"
)

// strategyBinding attaches one strategy instance to a series. lastSignal
// dedups continuous signals (an RSI strategy stays "buy" for every tick it
// spends oversold); only signal transitions place orders.
type strategyBinding struct {
	series     model.SeriesID
	strat      strategy.Strategy
	quantity   float64
	lastSignal strategy.Signal
}

// StrategySummary describes one bound strategy for the UI bridge
type StrategySummary struct {
	Series     model.SeriesID     `json:"series"`
	Name       string             `json:"name"`
	Parameters map[string]float64 `json:"parameters"`
	Quantity   float64            `json:"quantity"`
	LastSignal strategy.Signal    `json:"last_signal"`
}

// BindStrategy attaches a strategy to a registered series. Every live candle
// that changes the series re-evaluates it; buy/sell transitions execute
// paper orders attributed to the strategy's name.
func (o *Orchestrator) BindStrategy(series model.SeriesID, strat strategy.Strategy, quantity float64) error {
	if quantity <= 0 {
		return fmt.Errorf("non-positive strategy quantity %f", quantity)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	key := series.String()
	if _, ok := o.stores[key]; !ok {
		return fmt.Errorf("series %s not registered", key)
	}
	o.strategies[key] = append(o.strategies[key], &strategyBinding{
		series:     series,
		strat:      strat,
		quantity:   quantity,
		lastSignal: strategy.SignalHold,
	})

	o.logger.Info("Bound strategy to series",
		zap.String("series", key),
		zap.String("strategy", strat.Name()),
		zap.Float64("quantity", quantity))
	return nil
}

// Strategies returns a summary of every bound strategy
func (o *Orchestrator) Strategies() []StrategySummary {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var out []StrategySummary
	for _, series := range o.order {
		for _, b := range o.strategies[series.String()] {
			out = append(out, StrategySummary{
				Series:     b.series,
				Name:       b.strat.Name(),
				Parameters: b.strat.Parameters(),
				Quantity:   b.quantity,
				LastSignal: b.lastSignal,
			})
		}
	}
	return out
}

// evaluateStrategiesLocked runs every strategy bound to the series against
// its latest closes and executes orders on signal transitions. Callers hold
// the write lock.
func (o *Orchestrator) evaluateStrategiesLocked(series model.SeriesID, price float64, ts int64) {
	key := series.String()
	bindings := o.strategies[key]
	if len(bindings) == 0 {
		return
	}

	closes := o.stores[key].Closes()
	for _, b := range bindings {
		signal := b.strat.Evaluate(closes)
		if signal == b.lastSignal {
			continue
		}
		b.lastSignal = signal
		if signal == strategy.SignalHold {
			continue
		}

		side := model.SideBuy
		if signal == strategy.SignalSell {
			side = model.SideSell
		}

		trade, err := o.ledger.ExecuteOrder(series.Symbol, side, b.quantity, price, nil, nil, ts, b.strat.Name())
		if err != nil {
			o.logger.Error("Strategy order failed",
				zap.String("series", key),
				zap.String("strategy", b.strat.Name()),
				zap.Error(err))
			continue
		}

		o.logger.Info("Strategy signal executed",
			zap.String("series", key),
			zap.String("strategy", b.strat.Name()),
			zap.String("signal", string(signal)),
			zap.Int64("tradeID", trade.ID),
			zap.Float64("price", price))
	}
}
