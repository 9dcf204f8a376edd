package bridge

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yourorg/chart-trader/internal/model"
	"github.com/yourorg/chart-trader/internal/syncer"

	"go.uber.org/zap"
)

// TerminalHandler serves the bridge endpoints from orchestrator snapshots
type TerminalHandler struct {
	orchestrator *syncer.Orchestrator
	logger       *zap.Logger
}

// NewTerminalHandler creates a new terminal handler
func NewTerminalHandler(orchestrator *syncer.Orchestrator, logger *zap.Logger) *TerminalHandler {
	return &TerminalHandler{
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// OrderRequest is the manual order entry payload
type OrderRequest struct {
	Symbol     string   `json:"symbol" binding:"required"`
	Side       string   `json:"side" binding:"required,oneof=buy sell"`
	Type       string   `json:"type" binding:"required,oneof=market limit"`
	Quantity   float64  `json:"quantity" binding:"required,gt=0"`
	LimitPrice float64  `json:"limit_price" binding:"required_if=Type limit,omitempty,gt=0"`
	TakeProfit *float64 `json:"take_profit,omitempty"`
	StopLoss   *float64 `json:"stop_loss,omitempty"`
	Strategy   string   `json:"strategy,omitempty"`
}

// BackfillRequest identifies the series to backfill
type BackfillRequest struct {
	Symbol    string `json:"symbol" binding:"required"`
	Timeframe string `json:"timeframe" binding:"required"`
}

// GetRenderGeneration handles polling for redraw decisions
// GET /api/v1/render-generation
func (h *TerminalHandler) GetRenderGeneration(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"generation": h.orchestrator.RenderGeneration()})
}

// ListSeries handles listing all registered series
// GET /api/v1/series
func (h *TerminalHandler) ListSeries(c *gin.Context) {
	c.JSON(http.StatusOK, h.orchestrator.SeriesList())
}

// GetCandles handles retrieving the newest candles of a series
// GET /api/v1/series/:symbol/:timeframe/candles?limit=500
func (h *TerminalHandler) GetCandles(c *gin.Context) {
	series := pathSeries(c)

	limit := 500
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	candles, ok := h.orchestrator.Candles(series, limit)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "series not registered"})
		return
	}
	c.JSON(http.StatusOK, candles)
}

// GetIndicators handles retrieving the cached indicators of a series
// GET /api/v1/series/:symbol/:timeframe/indicators
func (h *TerminalHandler) GetIndicators(c *gin.Context) {
	snap, ok := h.orchestrator.Indicators(pathSeries(c))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no indicators for series"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// ListStrategies handles listing bound strategies and their latest signals
// GET /api/v1/strategies
func (h *TerminalHandler) ListStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, h.orchestrator.Strategies())
}

// GetDownloads handles listing in-flight backfill plans
// GET /api/v1/sync/progress
func (h *TerminalHandler) GetDownloads(c *gin.Context) {
	c.JSON(http.StatusOK, h.orchestrator.Downloads())
}

// StartBackfill handles scheduling a backfill for a series
// POST /api/v1/sync/backfill
func (h *TerminalHandler) StartBackfill(c *gin.Context) {
	var request BackfillRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	progress, err := h.orchestrator.RequestBackfill(model.SeriesID{
		Symbol:    request.Symbol,
		Timeframe: request.Timeframe,
	})
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, progress)
}

// CancelBackfill handles abandoning a series' backfill plan
// DELETE /api/v1/sync/backfill/:symbol/:timeframe
func (h *TerminalHandler) CancelBackfill(c *gin.Context) {
	if !h.orchestrator.CancelBackfill(pathSeries(c)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active plan for series"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelling"})
}

// GetPositions handles listing open positions
// GET /api/v1/ledger/positions
func (h *TerminalHandler) GetPositions(c *gin.Context) {
	c.JSON(http.StatusOK, h.orchestrator.LedgerState().OpenPositions)
}

// GetPendingOrders handles listing pending limit orders
// GET /api/v1/ledger/orders
func (h *TerminalHandler) GetPendingOrders(c *gin.Context) {
	c.JSON(http.StatusOK, h.orchestrator.LedgerState().PendingOrders)
}

// GetTrades handles listing the trade history
// GET /api/v1/ledger/trades
func (h *TerminalHandler) GetTrades(c *gin.Context) {
	c.JSON(http.StatusOK, h.orchestrator.LedgerState().Trades)
}

// PlaceOrder handles manual order entry
// POST /api/v1/ledger/orders
func (h *TerminalHandler) PlaceOrder(c *gin.Context) {
	var request OrderRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	side := model.Side(request.Side)
	if request.Type == "limit" {
		order, err := h.orchestrator.PlaceLimitOrder(
			request.Symbol, side, request.Quantity, request.LimitPrice,
			request.TakeProfit, request.StopLoss,
		)
		if err != nil {
			h.logger.Error("Failed to place limit order", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"order": order})
		return
	}

	trade, err := h.orchestrator.PlaceMarketOrder(
		request.Symbol, side, request.Quantity,
		request.TakeProfit, request.StopLoss, request.Strategy,
	)
	if err != nil {
		h.logger.Error("Failed to place market order", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"trade": trade})
}

// CancelOrder handles cancelling a pending order
// DELETE /api/v1/ledger/orders/:id
func (h *TerminalHandler) CancelOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	if !h.orchestrator.CancelOrder(orderID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// ResetLedger handles wiping the paper-trading account
// POST /api/v1/ledger/reset
func (h *TerminalHandler) ResetLedger(c *gin.Context) {
	h.orchestrator.ResetLedger()
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// GetAccount handles the derived account summary
// GET /api/v1/account
func (h *TerminalHandler) GetAccount(c *gin.Context) {
	c.JSON(http.StatusOK, h.orchestrator.Account())
}

func pathSeries(c *gin.Context) model.SeriesID {
	return model.SeriesID{
		Symbol:    c.Param("symbol"),
		Timeframe: c.Param("timeframe"),
	}
}
