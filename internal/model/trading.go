package model

// Side represents the direction of an order or position
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the other side
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Position represents one open lot for a symbol. TakeProfit and StopLoss are
// nil when not set; a position with neither never auto-closes.
type Position struct {
	Symbol        string   `json:"symbol"`
	Side          Side     `json:"side"`
	Quantity      float64  `json:"quantity"`
	EntryPrice    float64  `json:"entry_price"`
	OpenTimestamp int64    `json:"open_timestamp"`
	TakeProfit    *float64 `json:"take_profit,omitempty"`
	StopLoss      *float64 `json:"stop_loss,omitempty"`
}

// UnrealizedPnL values the lot at price
func (p *Position) UnrealizedPnL(price float64) float64 {
	if p.Side == SideBuy {
		return (price - p.EntryPrice) * p.Quantity
	}
	return (p.EntryPrice - price) * p.Quantity
}

// PendingOrder represents an unexecuted limit order awaiting its trigger
type PendingOrder struct {
	ID               int64    `json:"id"`
	Symbol           string   `json:"symbol"`
	Side             Side     `json:"side"`
	Quantity         float64  `json:"quantity"`
	LimitPrice       float64  `json:"limit_price"`
	TakeProfit       *float64 `json:"take_profit,omitempty"`
	StopLoss         *float64 `json:"stop_loss,omitempty"`
	CreatedTimestamp int64    `json:"created_timestamp"`
}

// Triggered reports whether the limit condition is met at currentPrice: a
// buy fills at or below its limit, a sell at or above
func (o *PendingOrder) Triggered(currentPrice float64) bool {
	if o.Side == SideBuy {
		return currentPrice <= o.LimitPrice
	}
	return currentPrice >= o.LimitPrice
}

// Trade is an immutable execution record. RealizedPnL is zero for opening
// trades and computed against the entry price at close.
type Trade struct {
	ID          int64   `json:"id"`
	Symbol      string  `json:"symbol"`
	Side        Side    `json:"side"`
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"`
	TotalAmount float64 `json:"total_amount"`
	RealizedPnL float64 `json:"realized_pnl"`
	Timestamp   int64   `json:"timestamp"`
	Strategy    string  `json:"strategy,omitempty"`
}

// LedgerSnapshot is the persisted form of a trading ledger
type LedgerSnapshot struct {
	Trades        []Trade        `json:"trades"`
	OpenPositions []Position     `json:"openPositions"`
	PendingOrders []PendingOrder `json:"pendingOrders"`
	NextTradeID   int64          `json:"nextTradeId"`
	NextOrderID   int64          `json:"nextOrderId"`
}

// AccountInfo summarizes the ledger valued at the latest known prices
type AccountInfo struct {
	Balance       float64 `json:"balance"`
	Equity        float64 `json:"equity"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	RealizedPnL   float64 `json:"realized_pnl"`
	OpenPositions int     `json:"open_positions"`
	PendingOrders int     `json:"pending_orders"`
}
