package ledger

import (
	"fmt"

	"github.com/yourorg/chart-trader/internal/model"

	"go.uber.org/zap"
)

// TradingLedger owns the open positions, pending limit orders, and trade
// history for one account scope. All operations are pure in-memory mutations;
// persistence is the caller's concern and a failed save never rolls state
// back. The ledger keeps positions as individual lots: opening again on the
// same side appends a new lot, and closes consume the first matching lot.
type TradingLedger struct {
	initialBalance float64
	positions      []model.Position
	pendingOrders  []model.PendingOrder
	trades         []model.Trade
	nextTradeID    int64
	nextOrderID    int64
	mutated        bool
	logger         *zap.Logger
}

// NewTradingLedger creates an empty ledger with the given starting balance
func NewTradingLedger(initialBalance float64, logger *zap.Logger) *TradingLedger {
	return &TradingLedger{
		initialBalance: initialBalance,
		nextTradeID:    1,
		nextOrderID:    1,
		logger:         logger,
	}
}

// OpenPosition opens a new lot and appends the opening trade. Opening is
// always permitted; an existing same-side lot is left as its own lot.
func (l *TradingLedger) OpenPosition(symbol string, side model.Side, qty, price float64, takeProfit, stopLoss *float64, timestamp int64, strategy string) (model.Trade, error) {
	if err := validateOrder(symbol, qty, price); err != nil {
		return model.Trade{}, err
	}

	l.positions = append(l.positions, model.Position{
		Symbol:        symbol,
		Side:          side,
		Quantity:      qty,
		EntryPrice:    price,
		OpenTimestamp: timestamp,
		TakeProfit:    takeProfit,
		StopLoss:      stopLoss,
	})

	trade := l.appendTrade(symbol, side, qty, price, 0, timestamp, strategy)

	l.logger.Info("Opened position",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Float64("quantity", qty),
		zap.Float64("price", price))
	return trade, nil
}

// ClosePosition closes (part of) the first open lot on the opposite side of
// the requested order side: a sell request closes a long, a buy request
// closes a short. It returns nil when no matching lot exists; the reversal
// policy of opening the opposite side instead belongs to the caller.
func (l *TradingLedger) ClosePosition(symbol string, side model.Side, qty, price float64, timestamp int64, strategy string) (*model.Trade, error) {
	if err := validateOrder(symbol, qty, price); err != nil {
		return nil, err
	}

	positionSide := side.Opposite()
	idx := -1
	for i := range l.positions {
		if l.positions[i].Symbol == symbol && l.positions[i].Side == positionSide {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, nil
	}

	trade := l.closeLotAt(idx, qty, price, timestamp, strategy)
	return &trade, nil
}

// closeLotAt realizes P&L against the lot at idx, removing it on a full
// close or decrementing its quantity on a partial one
func (l *TradingLedger) closeLotAt(idx int, qty, price float64, timestamp int64, strategy string) model.Trade {
	pos := &l.positions[idx]

	closeQty := qty
	if closeQty > pos.Quantity {
		closeQty = pos.Quantity
	}

	var pnl float64
	if pos.Side == model.SideBuy {
		pnl = (price - pos.EntryPrice) * closeQty
	} else {
		pnl = (pos.EntryPrice - price) * closeQty
	}

	fullClose := qty >= pos.Quantity
	symbol := pos.Symbol
	exitSide := pos.Side.Opposite()
	if fullClose {
		l.positions = append(l.positions[:idx], l.positions[idx+1:]...)
	} else {
		pos.Quantity -= closeQty
	}

	trade := l.appendTrade(symbol, exitSide, closeQty, price, pnl, timestamp, strategy)

	l.logger.Info("Closed position",
		zap.String("symbol", symbol),
		zap.Float64("quantity", closeQty),
		zap.Float64("price", price),
		zap.Float64("realizedPnL", pnl),
		zap.Bool("full", fullClose))
	return trade
}

// CreatePendingOrder queues a limit order unconditionally
func (l *TradingLedger) CreatePendingOrder(symbol string, side model.Side, qty, limitPrice float64, takeProfit, stopLoss *float64, timestamp int64) (model.PendingOrder, error) {
	if err := validateOrder(symbol, qty, limitPrice); err != nil {
		return model.PendingOrder{}, err
	}

	order := model.PendingOrder{
		ID:               l.nextOrderID,
		Symbol:           symbol,
		Side:             side,
		Quantity:         qty,
		LimitPrice:       limitPrice,
		TakeProfit:       takeProfit,
		StopLoss:         stopLoss,
		CreatedTimestamp: timestamp,
	}
	l.nextOrderID++
	l.pendingOrders = append(l.pendingOrders, order)
	l.mutated = true

	l.logger.Info("Created pending order",
		zap.Int64("orderID", order.ID),
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Float64("limitPrice", limitPrice))
	return order, nil
}

// CancelPendingOrder removes a queued order by ID, reporting whether it
// existed
func (l *TradingLedger) CancelPendingOrder(orderID int64) bool {
	for i := range l.pendingOrders {
		if l.pendingOrders[i].ID == orderID {
			l.pendingOrders = append(l.pendingOrders[:i], l.pendingOrders[i+1:]...)
			l.mutated = true
			l.logger.Info("Cancelled pending order", zap.Int64("orderID", orderID))
			return true
		}
	}
	return false
}

// MatchPendingOrders triggers every limit order for the symbol whose price
// condition is met: buys at currentPrice <= limit, sells at currentPrice >=
// limit. Triggered orders execute at the limit price, exactly like a manual
// order: a buy opens a long lot, a sell closes a long first and opens a
// short only if no long exists.
func (l *TradingLedger) MatchPendingOrders(symbol string, currentPrice float64, timestamp int64) []model.Trade {
	var executed []model.Trade

	remaining := l.pendingOrders[:0]
	for _, order := range l.pendingOrders {
		if order.Symbol != symbol || !order.Triggered(currentPrice) {
			remaining = append(remaining, order)
			continue
		}

		l.logger.Info("Limit order triggered",
			zap.Int64("orderID", order.ID),
			zap.Float64("limitPrice", order.LimitPrice),
			zap.Float64("currentPrice", currentPrice))

		trade, err := l.ExecuteOrder(order.Symbol, order.Side, order.Quantity, order.LimitPrice, order.TakeProfit, order.StopLoss, timestamp, "")
		if err != nil {
			// An order that cannot execute (a corrupt restored snapshot)
			// would fail again on every tick; drop it instead of re-queueing
			l.logger.Error("Dropping unexecutable pending order",
				zap.Int64("orderID", order.ID),
				zap.Error(err))
			l.mutated = true
			continue
		}
		l.mutated = true
		executed = append(executed, trade)
	}
	l.pendingOrders = remaining

	return executed
}

// MatchTakeProfitStopLoss closes every open lot for the symbol whose TP or
// SL trigger fires at currentPrice. The close executes at the trigger level,
// not the tick price. Lots are evaluated independently within one pass; a
// lot with neither trigger set never auto-closes.
func (l *TradingLedger) MatchTakeProfitStopLoss(symbol string, currentPrice float64, timestamp int64) []model.Trade {
	var closed []model.Trade

	for i := 0; i < len(l.positions); {
		pos := l.positions[i]
		if pos.Symbol != symbol {
			i++
			continue
		}

		exitPrice, hit := triggerPrice(&pos, currentPrice)
		if !hit {
			i++
			continue
		}

		l.logger.Info("Take-profit/stop-loss triggered",
			zap.String("symbol", symbol),
			zap.String("side", string(pos.Side)),
			zap.Float64("currentPrice", currentPrice),
			zap.Float64("exitPrice", exitPrice))

		// Full close removes the lot at i, so the index stays put
		closed = append(closed, l.closeLotAt(i, pos.Quantity, exitPrice, timestamp, ""))
	}

	return closed
}

// triggerPrice evaluates the side-specific TP/SL table and returns the exit
// level when a trigger fires
func triggerPrice(pos *model.Position, currentPrice float64) (float64, bool) {
	if pos.Side == model.SideBuy {
		if pos.TakeProfit != nil && currentPrice >= *pos.TakeProfit {
			return *pos.TakeProfit, true
		}
		if pos.StopLoss != nil && currentPrice <= *pos.StopLoss {
			return *pos.StopLoss, true
		}
		return 0, false
	}
	if pos.TakeProfit != nil && currentPrice <= *pos.TakeProfit {
		return *pos.TakeProfit, true
	}
	if pos.StopLoss != nil && currentPrice >= *pos.StopLoss {
		return *pos.StopLoss, true
	}
	return 0, false
}

// ExecuteOrder applies the close-else-open policy a manual order follows:
// try to close an opposite-side lot first, and open a new lot on the
// requested side when none exists
func (l *TradingLedger) ExecuteOrder(symbol string, side model.Side, qty, price float64, takeProfit, stopLoss *float64, timestamp int64, strategy string) (model.Trade, error) {
	closed, err := l.ClosePosition(symbol, side, qty, price, timestamp, strategy)
	if err != nil {
		return model.Trade{}, err
	}
	if closed != nil {
		return *closed, nil
	}
	return l.OpenPosition(symbol, side, qty, price, takeProfit, stopLoss, timestamp, strategy)
}

// Positions returns a copy of the open lots
func (l *TradingLedger) Positions() []model.Position {
	out := make([]model.Position, len(l.positions))
	copy(out, l.positions)
	return out
}

// PendingOrders returns a copy of the queued limit orders
func (l *TradingLedger) PendingOrders() []model.PendingOrder {
	out := make([]model.PendingOrder, len(l.pendingOrders))
	copy(out, l.pendingOrders)
	return out
}

// Trades returns a copy of the trade history
func (l *TradingLedger) Trades() []model.Trade {
	out := make([]model.Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

// Mutated reports whether the ledger changed since the last ClearMutated
func (l *TradingLedger) Mutated() bool {
	return l.mutated
}

// ClearMutated resets the dirty flag after a successful persist
func (l *TradingLedger) ClearMutated() {
	l.mutated = false
}

// Snapshot captures the full ledger state for persistence
func (l *TradingLedger) Snapshot() *model.LedgerSnapshot {
	return &model.LedgerSnapshot{
		Trades:        l.Trades(),
		OpenPositions: l.Positions(),
		PendingOrders: l.PendingOrders(),
		NextTradeID:   l.nextTradeID,
		NextOrderID:   l.nextOrderID,
	}
}

// Restore replaces the ledger state with a persisted snapshot
func (l *TradingLedger) Restore(snapshot *model.LedgerSnapshot) {
	l.trades = append([]model.Trade(nil), snapshot.Trades...)
	l.positions = append([]model.Position(nil), snapshot.OpenPositions...)
	l.pendingOrders = append([]model.PendingOrder(nil), snapshot.PendingOrders...)
	l.nextTradeID = snapshot.NextTradeID
	l.nextOrderID = snapshot.NextOrderID
	if l.nextTradeID < 1 {
		l.nextTradeID = 1
	}
	if l.nextOrderID < 1 {
		l.nextOrderID = 1
	}
	l.mutated = false
}

// Reset clears all state, used when a backtest restarts
func (l *TradingLedger) Reset() {
	l.trades = nil
	l.positions = nil
	l.pendingOrders = nil
	l.nextTradeID = 1
	l.nextOrderID = 1
	l.mutated = true
}

func (l *TradingLedger) appendTrade(symbol string, side model.Side, qty, price, pnl float64, timestamp int64, strategy string) model.Trade {
	trade := model.Trade{
		ID:          l.nextTradeID,
		Symbol:      symbol,
		Side:        side,
		Quantity:    qty,
		Price:       price,
		TotalAmount: qty * price,
		RealizedPnL: pnl,
		Timestamp:   timestamp,
		Strategy:    strategy,
	}
	l.nextTradeID++
	l.trades = append(l.trades, trade)
	l.mutated = true
	return trade
}

func validateOrder(symbol string, qty, price float64) error {
	if symbol == "" {
		return model.NewProviderError(model.ErrorKindValidation, "empty symbol", nil)
	}
	if qty <= 0 {
		return model.NewProviderError(model.ErrorKindValidation, fmt.Sprintf("non-positive quantity %f", qty), nil)
	}
	if price <= 0 {
		return model.NewProviderError(model.ErrorKindValidation, fmt.Sprintf("non-positive price %f", price), nil)
	}
	return nil
}
