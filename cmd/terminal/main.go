package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/yourorg/chart-trader/internal/bridge"
	"github.com/yourorg/chart-trader/internal/config"
	"github.com/yourorg/chart-trader/internal/indicator"
	"github.com/yourorg/chart-trader/internal/ledger"
	"github.com/yourorg/chart-trader/internal/model"
	"github.com/yourorg/chart-trader/internal/provider"
	"github.com/yourorg/chart-trader/internal/store"
	"github.com/yourorg/chart-trader/internal/strategy"
	"github.com/yourorg/chart-trader/internal/syncer"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := createLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting chart-trader terminal",
		zap.String("dataDir", cfg.Storage.DataDir),
		zap.Bool("paperTrade", cfg.PaperTrade.Enabled),
		zap.Bool("stream", cfg.Provider.UseStream))

	seriesRepo, err := store.NewSeriesRepository(cfg.Storage.DataDir, logger)
	if err != nil {
		logger.Fatal("Failed to initialize series storage", zap.Error(err))
	}
	ledgerRepo, err := store.NewLedgerRepository(cfg.Storage.DataDir, logger)
	if err != nil {
		logger.Fatal("Failed to initialize ledger storage", zap.Error(err))
	}

	tradingLedger := ledger.NewTradingLedger(cfg.PaperTrade.InitialBalance, logger)
	snapshot, err := ledgerRepo.Load()
	if err != nil {
		logger.Warn("Failed to load persisted ledger, starting fresh", zap.Error(err))
	} else if snapshot != nil {
		tradingLedger.Restore(snapshot)
		logger.Info("Restored ledger",
			zap.Int("trades", len(snapshot.Trades)),
			zap.Int("openPositions", len(snapshot.OpenPositions)),
			zap.Int("pendingOrders", len(snapshot.PendingOrders)))
	}

	binance := provider.NewBinanceProvider(cfg.Provider.BaseURL, cfg.Provider.Timeout, logger)
	var stream *provider.KlineStream
	if cfg.Provider.UseStream {
		stream = provider.NewKlineStream(cfg.Provider.StreamURL, logger)
	}

	orchestrator := syncer.NewOrchestrator(
		binance,
		stream,
		provider.NewRetryExecutor(logger),
		syncer.NewPlanner(cfg.Sync.StaleCandles, logger),
		seriesRepo,
		tradingLedger,
		ledgerRepo,
		indicator.NewCache(logger),
		cfg.Sync,
		cfg.Retry,
		cfg.PaperTrade.Enabled,
		logger,
	)

	for _, sc := range cfg.Series {
		series := model.SeriesID{Symbol: sc.Symbol, Timeframe: sc.Timeframe}
		if err := orchestrator.RegisterSeries(series, sc.Active); err != nil {
			logger.Fatal("Failed to register series",
				zap.String("series", series.String()),
				zap.Error(err))
		}
	}

	for _, st := range cfg.Strategies {
		strat, err := strategy.FromSpec(st.Tag, st.Params)
		if err != nil {
			logger.Fatal("Failed to build strategy", zap.String("tag", st.Tag), zap.Error(err))
		}
		series := model.SeriesID{Symbol: st.Symbol, Timeframe: st.Timeframe}
		if err := orchestrator.BindStrategy(series, strat, st.Quantity); err != nil {
			logger.Fatal("Failed to bind strategy",
				zap.String("series", series.String()),
				zap.String("tag", st.Tag),
				zap.Error(err))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		orchestrator.Run(ctx)
		close(done)
	}()

	var server *bridge.Server
	if cfg.Bridge.Enabled {
		server = bridge.NewServer(cfg.Bridge, orchestrator, logger)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("Bridge server error", zap.Error(err))
			}
		}()
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	cancel()

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Bridge shutdown error", zap.Error(err))
		}
	}

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn("Sync engine did not stop in time")
	}
	logger.Info("Stopped")
}

// createLogger creates a zap logger from the logging config
func createLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	if cfg.Format == "console" {
		zapCfg.Encoding = "console"
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	return zapCfg.Build()
}
