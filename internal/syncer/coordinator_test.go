package syncer

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/yourorg/chart-trader/internal/config"
	"github.com/yourorg/chart-trader/internal/model"
	"github.com/yourorg/chart-trader/internal/provider"
	"github.com/yourorg/chart-trader/internal/store"

	"go.uber.org/zap"
)

// fakeProvider serves pages out of a fixed in-memory history
type fakeProvider struct {
	mu            sync.Mutex
	history       []model.Candle // sorted ascending
	pageSize      int
	backwardErr   error
	fetchCalls    int
	earliestDelay time.Duration
}

func newFakeProvider(history []model.Candle, pageSize int) *fakeProvider {
	sorted := append([]model.Candle(nil), history...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })
	return &fakeProvider{history: sorted, pageSize: pageSize}
}

func (f *fakeProvider) FetchLatestCandle(ctx context.Context, series model.SeriesID) (*model.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.history) == 0 {
		return nil, nil
	}
	c := f.history[len(f.history)-1]
	return &c, nil
}

func (f *fakeProvider) FetchCandlesSince(ctx context.Context, series model.SeriesID, sinceTimestamp int64) ([]model.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Candle
	for _, c := range f.history {
		if c.Timestamp >= sinceTimestamp {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeProvider) FetchCandlesBackward(ctx context.Context, series model.SeriesID, lowerBound, upperBoundExclusive int64) ([]model.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.backwardErr != nil {
		return nil, f.backwardErr
	}
	var out []model.Candle
	for _, c := range f.history {
		if c.Timestamp < upperBoundExclusive {
			out = append(out, c)
		}
	}
	if len(out) > f.pageSize {
		out = out[len(out)-f.pageSize:]
	}
	return out, nil
}

func (f *fakeProvider) FetchCandlesInRange(ctx context.Context, series model.SeriesID, start, end int64) ([]model.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Candle
	for _, c := range f.history {
		if c.Timestamp >= start && c.Timestamp <= end {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeProvider) CheckEarliestAvailableTimestamp(ctx context.Context, series model.SeriesID) (int64, error) {
	if f.earliestDelay > 0 {
		time.Sleep(f.earliestDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.history) == 0 {
		return 0, nil
	}
	return f.history[0].Timestamp, nil
}

func (f *fakeProvider) backwardCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

// storeMerger merges straight into a candle store, standing in for the
// orchestrator's write path
type storeMerger struct {
	mu sync.Mutex
	cs *store.CandleStore
}

func (m *storeMerger) MergeAndPersist(series model.SeriesID, candles []model.Candle) store.MergeResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cs.Merge(candles)
}

func (m *storeMerger) SeriesView(series model.SeriesID) (SeriesView, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if series.String() != m.cs.Series().String() {
		return SeriesView{}, false
	}
	return SeriesView{
		Series:       series,
		Len:          m.cs.Len(),
		MinTimestamp: m.cs.MinTimestamp(),
		MaxTimestamp: m.cs.MaxTimestamp(),
		Gaps:         m.cs.DetectGaps(series.IntervalSeconds()),
	}, true
}

func fastRetryConfig() config.RetryConfig {
	return config.RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxDelay:          5 * time.Millisecond,
	}
}

func newTestCoordinator(p provider.MarketDataProvider, merger Merger, pageSize int) *Coordinator {
	logger := zap.NewNop()
	return NewCoordinator(
		p,
		provider.NewRetryExecutor(logger),
		fastRetryConfig(),
		NewPlanner(3, logger),
		merger,
		pageSize,
		0,
		logger,
	)
}

// hourlyHistory builds a contiguous hourly history ending at end
func hourlyHistory(start, end int64) []model.Candle {
	var out []model.Candle
	for ts := start; ts <= end; ts += 3600 {
		out = append(out, hourlyCandle(ts))
	}
	return out
}

func TestCoordinatorFillsSingleGapInOneBatch(t *testing.T) {
	now := time.Now().Unix()
	series := hourlySeries()

	full := hourlyHistory(now-12*3600, now)
	fake := newFakeProvider(full, 1000)

	// Local copy missing the candles between now-9h and now-3h
	cs := store.NewCandleStore(series, zap.NewNop())
	for _, c := range full {
		age := now - c.Timestamp
		if age > 3*3600 && age < 9*3600 {
			continue
		}
		cs.Merge([]model.Candle{c})
	}
	if gaps := cs.DetectGaps(3600); len(gaps) != 1 {
		t.Fatalf("fixture must contain exactly one gap, got %v", gaps)
	}

	merger := &storeMerger{cs: cs}
	c := newTestCoordinator(fake, merger, 1000)

	if !c.Begin(series) {
		t.Fatal("expected Begin to claim the series")
	}
	c.Run(context.Background(), series)

	if c.Active(series) {
		t.Fatal("finished plan must be removed")
	}
	if gaps := cs.DetectGaps(3600); len(gaps) != 0 {
		t.Fatalf("gap should be filled, got %v", gaps)
	}
	if cs.Len() != len(full) {
		t.Fatalf("expected %d candles, got %d", len(full), cs.Len())
	}
	if fake.fetchCalls != 1 {
		t.Fatalf("a sub-page gap should drain in one batch, got %d fetches", fake.fetchCalls)
	}
}

func TestCoordinatorPaginatesBackwardOverEmptyStore(t *testing.T) {
	now := time.Now().Unix()
	series := hourlySeries()

	// 24 hourly candles against a page size of 10 forces pagination
	full := hourlyHistory(now-24*3600, now-3600)
	fake := newFakeProvider(full, 10)

	cs := store.NewCandleStore(series, zap.NewNop())
	merger := &storeMerger{cs: cs}
	c := newTestCoordinator(fake, merger, 10)

	if !c.Begin(series) {
		t.Fatal("expected Begin to claim the series")
	}
	c.Run(context.Background(), series)

	if cs.Len() != len(full) {
		t.Fatalf("expected %d candles, got %d", len(full), cs.Len())
	}
	if gaps := cs.DetectGaps(3600); len(gaps) != 0 {
		t.Fatalf("expected contiguous history, got %v", gaps)
	}
	if fake.fetchCalls < 3 {
		t.Fatalf("expected multiple pages, got %d fetches", fake.fetchCalls)
	}
}

func TestCoordinatorBeginRejectsSecondClaim(t *testing.T) {
	series := hourlySeries()
	fake := newFakeProvider(nil, 1000)
	cs := store.NewCandleStore(series, zap.NewNop())
	c := newTestCoordinator(fake, &storeMerger{cs: cs}, 1000)

	if !c.Begin(series) {
		t.Fatal("first claim must succeed")
	}
	if c.Begin(series) {
		t.Fatal("second claim while running must fail")
	}
}

func TestCoordinatorCancelObservedAtBatchBoundary(t *testing.T) {
	now := time.Now().Unix()
	series := hourlySeries()
	fake := newFakeProvider(hourlyHistory(now-24*3600, now), 1000)
	cs := store.NewCandleStore(series, zap.NewNop())
	c := newTestCoordinator(fake, &storeMerger{cs: cs}, 1000)

	if !c.Begin(series) {
		t.Fatal("expected Begin to claim the series")
	}
	if !c.Cancel(series) {
		t.Fatal("expected Cancel to find the plan")
	}
	c.Run(context.Background(), series)

	if c.Active(series) {
		t.Fatal("cancelled plan must be removed")
	}
	if fake.fetchCalls != 0 {
		t.Fatalf("cancel before the first boundary must skip all fetches, got %d", fake.fetchCalls)
	}
	if c.Cancel(series) {
		t.Fatal("cancelling a finished plan must report missing")
	}
}

func TestCoordinatorResumesInterruptedPlan(t *testing.T) {
	now := time.Now().Unix()
	series := hourlySeries()
	full := hourlyHistory(now-24*3600, now-3600)
	fake := newFakeProvider(full, 1000)
	cs := store.NewCandleStore(series, zap.NewNop())
	c := newTestCoordinator(fake, &storeMerger{cs: cs}, 1000)

	// A cancelled context interrupts the run at the first boundary, after
	// planning; the plan is retained for resumption
	interrupted, cancel := context.WithCancel(context.Background())
	cancel()
	if !c.Begin(series) {
		t.Fatal("expected Begin to claim the series")
	}
	c.Run(interrupted, series)

	if !c.Active(series) {
		t.Fatal("interrupted plan must be retained")
	}
	progress, ok := c.Progress(series)
	if !ok || progress.State != model.DownloadStateDraining {
		t.Fatalf("expected retained draining plan, got %+v", progress)
	}
	planID := progress.PlanID

	// Re-claiming resumes the same plan and drains it to completion
	if !c.Begin(series) {
		t.Fatal("expected re-claim of the retained plan")
	}
	c.Run(context.Background(), series)

	if c.Active(series) {
		t.Fatal("resumed plan must finish and be removed")
	}
	if cs.Len() != len(full) {
		t.Fatalf("expected %d candles after resume, got %d", len(full), cs.Len())
	}
	if planID == "" {
		t.Fatal("plan must carry an ID")
	}
}

func TestCoordinatorAbandonsRangeOnPersistentFailure(t *testing.T) {
	now := time.Now().Unix()
	series := hourlySeries()
	full := hourlyHistory(now-24*3600, now)
	fake := newFakeProvider(full, 1000)
	fake.backwardErr = model.NewProviderError(model.ErrorKindValidation, "bad symbol", nil)

	cs := store.NewCandleStore(series, zap.NewNop())
	c := newTestCoordinator(fake, &storeMerger{cs: cs}, 1000)

	if !c.Begin(series) {
		t.Fatal("expected Begin to claim the series")
	}
	c.Run(context.Background(), series)

	// The failed range is skipped rather than retried forever
	if c.Active(series) {
		t.Fatal("plan must finish even when every range fails")
	}
	if cs.Len() != 0 {
		t.Fatalf("expected no candles merged, got %d", cs.Len())
	}
	// Non-retryable errors must not burn the retry budget
	if fake.fetchCalls != 1 {
		t.Fatalf("expected a single attempt, got %d", fake.fetchCalls)
	}
}

func TestCoordinatorProgressCountsFetched(t *testing.T) {
	now := time.Now().Unix()
	series := hourlySeries()
	full := hourlyHistory(now-24*3600, now-3600)
	fake := newFakeProvider(full, 1000)
	cs := store.NewCandleStore(series, zap.NewNop())
	c := newTestCoordinator(fake, &storeMerger{cs: cs}, 1000)

	c.Begin(series)
	c.Run(context.Background(), series)

	// The plan is gone, but the store reflects the drained estimate
	if cs.Len() != len(full) {
		t.Fatalf("expected %d candles, got %d", len(full), cs.Len())
	}
}
