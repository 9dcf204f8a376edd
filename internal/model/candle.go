package model

import (
	"fmt"
	"math"
)

// Candle represents a single OHLCV bar keyed by its open time in unix seconds
type Candle struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Validate checks the OHLC shape invariants and rejects non-finite values
func (c Candle) Validate() error {
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("candle at %d has non-finite value", c.Timestamp)
		}
	}
	if c.Timestamp <= 0 {
		return fmt.Errorf("candle has non-positive timestamp %d", c.Timestamp)
	}
	if c.High < math.Max(c.Open, c.Close) {
		return fmt.Errorf("candle at %d: high %f below body", c.Timestamp, c.High)
	}
	if c.Low > math.Min(c.Open, c.Close) {
		return fmt.Errorf("candle at %d: low %f above body", c.Timestamp, c.Low)
	}
	if c.Volume < 0 {
		return fmt.Errorf("candle at %d: negative volume %f", c.Timestamp, c.Volume)
	}
	return nil
}

// SeriesID identifies one candle stream as a symbol plus timeframe pair
type SeriesID struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
}

func (s SeriesID) String() string {
	return s.Symbol + "_" + s.Timeframe
}

// IntervalSeconds returns the bucket width of the series timeframe in seconds,
// or 0 for an unknown timeframe
func (s SeriesID) IntervalSeconds() int64 {
	return TimeframeSeconds(s.Timeframe)
}

// TimeframeSeconds maps a timeframe string to its width in seconds
func TimeframeSeconds(timeframe string) int64 {
	switch timeframe {
	case "1m":
		return 60
	case "5m":
		return 5 * 60
	case "15m":
		return 15 * 60
	case "30m":
		return 30 * 60
	case "1h":
		return 3600
	case "4h":
		return 4 * 3600
	case "1d":
		return 24 * 3600
	case "1w":
		return 7 * 24 * 3600
	default:
		return 0
	}
}

// ValidTimeframe reports whether the timeframe string is supported
func ValidTimeframe(timeframe string) bool {
	return TimeframeSeconds(timeframe) > 0
}

// Gap represents a (startExclusive, endInclusive] range of timestamps with no
// stored candles
type Gap struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}
