package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yourorg/chart-trader/internal/config"
	"github.com/yourorg/chart-trader/internal/model"
	"github.com/yourorg/chart-trader/internal/provider"
	"github.com/yourorg/chart-trader/internal/store"

	"go.uber.org/zap"
)

// Merger is the coordinator's window onto the candle stores. The orchestrator
// implements it so every mutation goes through one write path and every read
// happens under the same lock the writes take.
type Merger interface {
	MergeAndPersist(series model.SeriesID, candles []model.Candle) store.MergeResult
	SeriesView(series model.SeriesID) (SeriesView, bool)
}

// planState wraps the externally visible progress with coordinator-private
// run bookkeeping
type planState struct {
	progress  model.DownloadProgress
	running   bool
	cancelled bool
}

// Coordinator drives resumable, paginated backfills: it plans the missing
// ranges of a series and drains them newest-to-oldest in pages, merging each
// page immediately so partial progress is visible. One plan exists per
// series at a time; cancellation and interruption are observed only at batch
// boundaries, and a retained plan resumes when Run is invoked again.
type Coordinator struct {
	provider   provider.MarketDataProvider
	retry      *provider.RetryExecutor
	retryCfg   config.RetryConfig
	planner    *Planner
	merger     Merger
	pageSize   int
	batchDelay time.Duration
	logger     *zap.Logger

	mu    sync.Mutex
	plans map[string]*planState
}

// NewCoordinator creates a backfill coordinator
func NewCoordinator(
	p provider.MarketDataProvider,
	retry *provider.RetryExecutor,
	retryCfg config.RetryConfig,
	planner *Planner,
	merger Merger,
	pageSize int,
	batchDelay time.Duration,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		provider:   p,
		retry:      retry,
		retryCfg:   retryCfg,
		planner:    planner,
		merger:     merger,
		pageSize:   pageSize,
		batchDelay: batchDelay,
		logger:     logger,
		plans:      make(map[string]*planState),
	}
}

// Begin claims the series for a backfill run. It returns false when a run is
// already active; a retained interrupted plan is re-claimed for resumption.
func (c *Coordinator) Begin(series model.SeriesID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := series.String()
	if ps, ok := c.plans[key]; ok {
		if ps.running {
			return false
		}
		ps.running = true
		return true
	}

	c.plans[key] = &planState{
		progress: model.DownloadProgress{
			PlanID: uuid.NewString(),
			Series: series,
			State:  model.DownloadStatePlanning,
		},
		running: true,
	}
	return true
}

// Cancel requests abandonment of the series' plan. The in-flight batch is
// not interrupted; the drain loop observes the request at the next batch
// boundary.
func (c *Coordinator) Cancel(series model.SeriesID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ps, ok := c.plans[series.String()]
	if !ok {
		return false
	}
	ps.cancelled = true
	return true
}

// Progress returns a copy of the series' current plan, if one exists
func (c *Coordinator) Progress(series model.SeriesID) (model.DownloadProgress, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ps, ok := c.plans[series.String()]
	if !ok {
		return model.DownloadProgress{}, false
	}
	return copyProgress(&ps.progress), true
}

// ActivePlans returns copies of every retained plan
func (c *Coordinator) ActivePlans() []model.DownloadProgress {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]model.DownloadProgress, 0, len(c.plans))
	for _, ps := range c.plans {
		out = append(out, copyProgress(&ps.progress))
	}
	return out
}

// Active reports whether the series has a retained plan
func (c *Coordinator) Active(series model.SeriesID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.plans[series.String()]
	return ok
}

// Run plans (when needed) and drains the series' backfill. Begin must have
// claimed the series first. Run returns when the plan is exhausted,
// cancelled, or interrupted by ctx; an interrupted plan stays retained for a
// later Run to resume.
func (c *Coordinator) Run(ctx context.Context, series model.SeriesID) {
	key := series.String()
	defer c.release(key)

	ps := c.plan(ctx, series)
	if ps == nil {
		return
	}

	for {
		if done := c.checkBoundary(ctx, key); done {
			return
		}

		c.mu.Lock()
		if len(ps.progress.PendingRanges) == 0 {
			ps.progress.State = model.DownloadStateDone
			c.mu.Unlock()
			c.finish(key, model.DownloadStateDone)
			return
		}
		current := ps.progress.PendingRanges[0]
		if ps.progress.CurrentRangeEnd == 0 || ps.progress.CurrentRangeEnd < current.Start {
			ps.progress.CurrentRangeStart = current.Start
			ps.progress.CurrentRangeEnd = current.End
		}
		gapStart := ps.progress.CurrentRangeStart
		currentEnd := ps.progress.CurrentRangeEnd
		c.mu.Unlock()

		complete, nextEnd, fetched, err := c.drainBatch(ctx, series, gapStart, currentEnd)
		if err != nil {
			// Retries are exhausted; skip this range and let the next
			// orchestrator pass replan it
			c.logger.Error("Abandoning range after persistent failure",
				zap.String("series", key),
				zap.Int64("rangeStart", gapStart),
				zap.Int64("rangeEnd", currentEnd),
				zap.Error(err))
			complete = true
		}

		c.mu.Lock()
		ps.progress.CandlesFetched += fetched
		if complete {
			ps.progress.PendingRanges = ps.progress.PendingRanges[1:]
			ps.progress.CurrentRangeStart = 0
			ps.progress.CurrentRangeEnd = 0
		} else {
			ps.progress.CurrentRangeEnd = nextEnd
		}
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.batchDelay):
		}
	}
}

// plan queries the provider's earliest timestamp and builds the range list
// against a locked view of the store. A retained plan that already drained
// past planning resumes as-is.
func (c *Coordinator) plan(ctx context.Context, series model.SeriesID) *planState {
	key := series.String()

	c.mu.Lock()
	ps := c.plans[key]
	if ps == nil {
		c.mu.Unlock()
		return nil
	}
	if ps.progress.State == model.DownloadStateDraining {
		c.mu.Unlock()
		c.logger.Info("Resuming interrupted backfill plan",
			zap.String("series", key),
			zap.String("planID", ps.progress.PlanID))
		return ps
	}
	ps.progress.State = model.DownloadStatePlanning
	c.mu.Unlock()

	var earliest int64
	_, err := c.retry.Execute(ctx, "checkEarliestAvailable", c.retryCfg, func(ctx context.Context) error {
		var opErr error
		earliest, opErr = c.provider.CheckEarliestAvailableTimestamp(ctx, series)
		return opErr
	})
	if err != nil {
		c.logger.Error("Failed to check earliest available timestamp",
			zap.String("series", key),
			zap.Error(err))
		c.finish(key, model.DownloadStateCancelled)
		return nil
	}

	view, ok := c.merger.SeriesView(series)
	if !ok {
		c.logger.Error("Cannot plan unregistered series", zap.String("series", key))
		c.finish(key, model.DownloadStateCancelled)
		return nil
	}
	ranges := c.planner.Plan(view, earliest, time.Now().Unix())

	c.mu.Lock()
	ps.progress.PendingRanges = ranges
	ps.progress.State = model.DownloadStateDraining
	total := 0
	for _, r := range ranges {
		total += r.EstimatedCount
	}
	ps.progress.EstimatedTotal = total
	c.mu.Unlock()

	c.logger.Info("Backfill plan ready",
		zap.String("series", key),
		zap.String("planID", ps.progress.PlanID),
		zap.Int("ranges", len(ranges)),
		zap.Int("estimatedTotal", total))
	return ps
}

// drainBatch fetches one backward page for the current range, filters it to
// the range bounds, and merges it. It reports whether the range is complete
// and, when it is not, the end of the next page.
func (c *Coordinator) drainBatch(ctx context.Context, series model.SeriesID, gapStart, currentEnd int64) (complete bool, nextEnd int64, fetched int, err error) {
	var page []model.Candle
	_, err = c.retry.Execute(ctx, "fetchCandlesBackward", c.retryCfg, func(ctx context.Context) error {
		var opErr error
		page, opErr = c.provider.FetchCandlesBackward(ctx, series, gapStart, currentEnd)
		return opErr
	})
	if err != nil {
		return false, 0, 0, err
	}

	rawCount := len(page)
	if rawCount == 0 {
		// Provider has nothing more in this direction
		return true, 0, 0, nil
	}

	oldest := page[0].Timestamp
	filtered := make([]model.Candle, 0, rawCount)
	for _, candle := range page {
		if candle.Timestamp < oldest {
			oldest = candle.Timestamp
		}
		if candle.Timestamp >= gapStart && candle.Timestamp <= currentEnd {
			filtered = append(filtered, candle)
		}
	}

	result := c.merger.MergeAndPersist(series, filtered)

	c.logger.Debug("Drained backfill batch",
		zap.String("series", series.String()),
		zap.Int("rawCount", rawCount),
		zap.Int("merged", result.Appended+result.Updated),
		zap.Int64("oldest", oldest))

	// A short page signals provider exhaustion; reaching the gap start
	// completes the range
	if oldest <= gapStart || rawCount < c.pageSize {
		return true, 0, len(filtered), nil
	}
	return false, oldest - 1, len(filtered), nil
}

// checkBoundary enforces cancellation and interruption between batches
func (c *Coordinator) checkBoundary(ctx context.Context, key string) bool {
	if ctx.Err() != nil {
		c.logger.Info("Backfill interrupted, plan retained for resume",
			zap.String("series", key))
		return true
	}

	c.mu.Lock()
	cancelled := c.plans[key] != nil && c.plans[key].cancelled
	c.mu.Unlock()
	if cancelled {
		c.finish(key, model.DownloadStateCancelled)
		return true
	}
	return false
}

// finish removes an exhausted or cancelled plan
func (c *Coordinator) finish(key string, state model.DownloadState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ps, ok := c.plans[key]
	if !ok {
		return
	}
	ps.progress.State = state
	delete(c.plans, key)

	c.logger.Info("Backfill plan finished",
		zap.String("series", key),
		zap.String("state", string(state)),
		zap.Int("candlesFetched", ps.progress.CandlesFetched))
}

// release clears the running flag on a retained plan when Run returns
func (c *Coordinator) release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ps, ok := c.plans[key]; ok {
		ps.running = false
	}
}

func copyProgress(p *model.DownloadProgress) model.DownloadProgress {
	out := *p
	out.PendingRanges = append([]model.PlannedRange(nil), p.PendingRanges...)
	return out
}
