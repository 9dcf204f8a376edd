package ledger

import (
	"github.com/yourorg/chart-trader/internal/model"
)

// AccountInfo derives the account summary from the ledger valued at the
// latest known price per symbol. Lots whose symbol has no known price
// contribute no unrealized P&L.
func (l *TradingLedger) AccountInfo(prices map[string]float64) model.AccountInfo {
	var realized float64
	for _, t := range l.trades {
		realized += t.RealizedPnL
	}

	var unrealized float64
	for i := range l.positions {
		price, ok := prices[l.positions[i].Symbol]
		if !ok {
			continue
		}
		unrealized += l.positions[i].UnrealizedPnL(price)
	}

	balance := l.initialBalance + realized
	return model.AccountInfo{
		Balance:       balance,
		Equity:        balance + unrealized,
		UnrealizedPnL: unrealized,
		RealizedPnL:   realized,
		OpenPositions: len(l.positions),
		PendingOrders: len(l.pendingOrders),
	}
}
