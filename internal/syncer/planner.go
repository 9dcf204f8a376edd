package syncer

import (
	"sort"

	"github.com/yourorg/chart-trader/internal/model"

	"go.uber.org/zap"
)

// SeriesView is a point-in-time read of one series' store: its bounds and the
// holes in it. Views are produced under the orchestrator lock so planning
// never touches a store that a concurrent merge is growing.
type SeriesView struct {
	Series       model.SeriesID
	Len          int
	MinTimestamp int64
	MaxTimestamp int64
	Gaps         []model.Gap
}

// Planner computes the missing time ranges of a series and orders them by
// user-facing priority: the recent gap first, then internal holes newest
// first, then deep history last.
type Planner struct {
	staleCandles int
	logger       *zap.Logger
}

// NewPlanner creates a planner. staleCandles is how many missed candles make
// the series stale enough to schedule a recent range; a single missed tick
// is not staleness.
func NewPlanner(staleCandles int, logger *zap.Logger) *Planner {
	if staleCandles < 1 {
		staleCandles = 1
	}
	return &Planner{staleCandles: staleCandles, logger: logger}
}

// Plan returns the ordered backfill ranges for the series given the
// provider's earliest available timestamp and the current time. An empty
// series yields exactly one historical range covering everything the
// provider has.
func (p *Planner) Plan(view SeriesView, providerEarliest, now int64) []model.PlannedRange {
	series := view.Series
	interval := series.IntervalSeconds()
	if interval <= 0 {
		p.logger.Error("Cannot plan series with unknown timeframe",
			zap.String("series", series.String()))
		return nil
	}

	if view.Len == 0 {
		if providerEarliest <= 0 || providerEarliest >= now {
			return nil
		}
		return []model.PlannedRange{
			newRange(model.RangeKindHistorical, providerEarliest, now, interval),
		}
	}

	var ranges []model.PlannedRange

	// Recent gap: last known candle is older than the staleness threshold
	if now-view.MaxTimestamp > int64(p.staleCandles)*interval {
		ranges = append(ranges, newRange(model.RangeKindRecent, view.MaxTimestamp, now, interval))
	}

	// Internal holes, most recent first
	gaps := append([]model.Gap(nil), view.Gaps...)
	sort.Slice(gaps, func(i, j int) bool {
		return gaps[i].Start > gaps[j].Start
	})
	for _, g := range gaps {
		ranges = append(ranges, newRange(model.RangeKindInternal, g.Start, g.End, interval))
	}

	// Historical: the provider has older data than we hold
	if providerEarliest > 0 && providerEarliest < view.MinTimestamp {
		ranges = append(ranges, newRange(model.RangeKindHistorical, providerEarliest, view.MinTimestamp, interval))
	}

	p.logger.Debug("Planned backfill ranges",
		zap.String("series", series.String()),
		zap.Int("ranges", len(ranges)))
	return ranges
}

func newRange(kind model.RangeKind, start, end, interval int64) model.PlannedRange {
	return model.PlannedRange{
		Kind:            kind,
		Start:           start,
		End:             end,
		EstimatedCount:  int((end - start) / interval),
		IntervalSeconds: interval,
	}
}
