package bridge

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourorg/chart-trader/internal/config"
	"github.com/yourorg/chart-trader/internal/syncer"

	"go.uber.org/zap"
)

// Server is the localhost HTTP bridge the rendering shell polls. It exposes
// read snapshots of the sync engine and the paper-trading ledger, plus
// manual order entry and backfill control. It is not part of the core data
// path.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewServer builds the bridge server around the orchestrator
func NewServer(cfg config.BridgeConfig, orchestrator *syncer.Orchestrator, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	handler := NewTerminalHandler(orchestrator, logger)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	v1 := router.Group("/api/v1")
	{
		v1.GET("/render-generation", handler.GetRenderGeneration)
		v1.GET("/series", handler.ListSeries)
		v1.GET("/series/:symbol/:timeframe/candles", handler.GetCandles)
		v1.GET("/series/:symbol/:timeframe/indicators", handler.GetIndicators)
		v1.GET("/strategies", handler.ListStrategies)

		sync := v1.Group("/sync")
		{
			sync.GET("/progress", handler.GetDownloads)
			sync.POST("/backfill", handler.StartBackfill)
			sync.DELETE("/backfill/:symbol/:timeframe", handler.CancelBackfill)
		}

		ledger := v1.Group("/ledger")
		{
			ledger.GET("/positions", handler.GetPositions)
			ledger.GET("/orders", handler.GetPendingOrders)
			ledger.GET("/trades", handler.GetTrades)
			ledger.POST("/orders", handler.PlaceOrder)
			ledger.DELETE("/orders/:id", handler.CancelOrder)
			ledger.POST("/reset", handler.ResetLedger)
		}

		v1.GET("/account", handler.GetAccount)
	}

	return &Server{
		srv: &http.Server{
			Addr:         "127.0.0.1:" + cfg.Port,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: logger,
	}
}

// Start runs the server until it is shut down
func (s *Server) Start() error {
	s.logger.Info("Starting UI bridge", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// requestLogger logs each bridge request with its latency
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Debug("Bridge request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
