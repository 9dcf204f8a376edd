package store

import (
	"sort"

	"github.com/yourorg/chart-trader/internal/model"

	"go.uber.org/zap"
)

// MergeResult reports what a Merge call did with the incoming batch
type MergeResult struct {
	Appended int `json:"appended"`
	Updated  int `json:"updated"`
	Rejected int `json:"rejected"`
}

// Changed reports whether the merge mutated the store
func (r MergeResult) Changed() bool {
	return r.Appended > 0 || r.Updated > 0
}

// CandleStore is the ordered candle container for one series. Timestamps are
// strictly increasing with no duplicates; merges either append, update in
// place, or insert in sorted position. The store is mutated only by the
// orchestrator control goroutine, so it carries no lock.
type CandleStore struct {
	series  model.SeriesID
	candles []model.Candle
	logger  *zap.Logger
}

// NewCandleStore creates an empty store for the given series
func NewCandleStore(series model.SeriesID, logger *zap.Logger) *CandleStore {
	return &CandleStore{
		series: series,
		logger: logger,
	}
}

// Series returns the identity of the stream this store holds
func (s *CandleStore) Series() model.SeriesID {
	return s.series
}

// Len returns the number of stored candles
func (s *CandleStore) Len() int {
	return len(s.candles)
}

// MinTimestamp returns the oldest stored timestamp, or 0 when empty
func (s *CandleStore) MinTimestamp() int64 {
	if len(s.candles) == 0 {
		return 0
	}
	return s.candles[0].Timestamp
}

// MaxTimestamp returns the newest stored timestamp, or 0 when empty
func (s *CandleStore) MaxTimestamp() int64 {
	if len(s.candles) == 0 {
		return 0
	}
	return s.candles[len(s.candles)-1].Timestamp
}

// Merge applies a batch of candles. Each candle is validated individually;
// malformed records are rejected and logged without aborting the batch.
func (s *CandleStore) Merge(candles []model.Candle) MergeResult {
	var result MergeResult

	for _, c := range candles {
		if err := c.Validate(); err != nil {
			result.Rejected++
			s.logger.Warn("Rejecting malformed candle",
				zap.String("series", s.series.String()),
				zap.Error(err))
			continue
		}

		n := len(s.candles)
		switch {
		case n == 0 || c.Timestamp > s.candles[n-1].Timestamp:
			s.candles = append(s.candles, c)
			result.Appended++
		case c.Timestamp == s.candles[n-1].Timestamp:
			// The still-forming current candle being refreshed
			s.candles[n-1] = c
			result.Updated++
		default:
			idx := sort.Search(n, func(i int) bool {
				return s.candles[i].Timestamp >= c.Timestamp
			})
			if idx < n && s.candles[idx].Timestamp == c.Timestamp {
				s.candles[idx] = c
				result.Updated++
			} else {
				s.candles = append(s.candles, model.Candle{})
				copy(s.candles[idx+1:], s.candles[idx:])
				s.candles[idx] = c
				result.Appended++
			}
		}
	}

	return result
}

// DetectGaps scans consecutive candles and returns every hole wider than
// 1.5x the interval as a (prev, next) range. O(n); cheap enough to run on
// every tick as well as for full backfill planning.
func (s *CandleStore) DetectGaps(intervalSeconds int64) []model.Gap {
	if intervalSeconds <= 0 || len(s.candles) < 2 {
		return nil
	}

	var gaps []model.Gap
	for i := 1; i < len(s.candles); i++ {
		delta := s.candles[i].Timestamp - s.candles[i-1].Timestamp
		if delta*2 > intervalSeconds*3 {
			gaps = append(gaps, model.Gap{
				Start: s.candles[i-1].Timestamp,
				End:   s.candles[i].Timestamp,
			})
		}
	}
	return gaps
}

// Candles returns a copy of the stored candles in timestamp order
func (s *CandleStore) Candles() []model.Candle {
	out := make([]model.Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// Tail returns a copy of the newest n candles
func (s *CandleStore) Tail(n int) []model.Candle {
	if n > len(s.candles) {
		n = len(s.candles)
	}
	out := make([]model.Candle, n)
	copy(out, s.candles[len(s.candles)-n:])
	return out
}

// Closes returns the close price of every stored candle in order
func (s *CandleStore) Closes() []float64 {
	out := make([]float64, len(s.candles))
	for i, c := range s.candles {
		out[i] = c.Close
	}
	return out
}

// LastClose returns the newest close price, or 0 when empty
func (s *CandleStore) LastClose() float64 {
	if len(s.candles) == 0 {
		return 0
	}
	return s.candles[len(s.candles)-1].Close
}

// Restore replaces the store contents with a loaded snapshot, dropping any
// malformed or out-of-order records
func (s *CandleStore) Restore(candles []model.Candle) {
	s.candles = s.candles[:0]
	s.Merge(candles)
}
