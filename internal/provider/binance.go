package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/yourorg/chart-trader/internal/model"

	"go.uber.org/zap"
)

const (
	// MaxKlinesLimit is the fixed page size of the klines endpoint
	MaxKlinesLimit = 1000
)

// BinanceProvider implements MarketDataProvider against the Binance spot REST
// API. Errors are classified here so callers only see the taxonomy.
type BinanceProvider struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewBinanceProvider creates a Binance REST market data provider
func NewBinanceProvider(baseURL string, timeout time.Duration, logger *zap.Logger) *BinanceProvider {
	return &BinanceProvider{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// FetchLatestCandle returns the newest candle for the series
func (p *BinanceProvider) FetchLatestCandle(ctx context.Context, series model.SeriesID) (*model.Candle, error) {
	candles, err := p.fetchKlines(ctx, series, nil, nil, 1)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, nil
	}
	return &candles[len(candles)-1], nil
}

// FetchCandlesSince returns candles from sinceTimestamp (inclusive) forward
func (p *BinanceProvider) FetchCandlesSince(ctx context.Context, series model.SeriesID, sinceTimestamp int64) ([]model.Candle, error) {
	start := sinceTimestamp * 1000
	return p.fetchKlines(ctx, series, &start, nil, MaxKlinesLimit)
}

// FetchCandlesBackward returns up to one page of candles strictly before
// upperBoundExclusive. lowerBound is advisory only; the response is not
// bounded below and the caller filters.
func (p *BinanceProvider) FetchCandlesBackward(ctx context.Context, series model.SeriesID, lowerBound, upperBoundExclusive int64) ([]model.Candle, error) {
	end := upperBoundExclusive*1000 - 1
	return p.fetchKlines(ctx, series, nil, &end, MaxKlinesLimit)
}

// FetchCandlesInRange returns all candles in [start, end], walking forward
// page by page
func (p *BinanceProvider) FetchCandlesInRange(ctx context.Context, series model.SeriesID, start, end int64) ([]model.Candle, error) {
	var all []model.Candle
	cursor := start

	for cursor <= end {
		startMs := cursor * 1000
		endMs := end*1000 + 999
		page, err := p.fetchKlines(ctx, series, &startMs, &endMs, MaxKlinesLimit)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
		if len(page) < MaxKlinesLimit {
			break
		}
		cursor = page[len(page)-1].Timestamp + 1
	}

	return all, nil
}

// CheckEarliestAvailableTimestamp returns the oldest timestamp Binance has
// for the series, or 0 when it has none
func (p *BinanceProvider) CheckEarliestAvailableTimestamp(ctx context.Context, series model.SeriesID) (int64, error) {
	start := int64(0)
	candles, err := p.fetchKlines(ctx, series, &start, nil, 1)
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		return 0, nil
	}
	return candles[0].Timestamp, nil
}

// fetchKlines calls the klines endpoint and parses the raw kline arrays.
// startMs/endMs are millisecond bounds; nil means unset.
func (p *BinanceProvider) fetchKlines(ctx context.Context, series model.SeriesID, startMs, endMs *int64, limit int) ([]model.Candle, error) {
	if !model.ValidTimeframe(series.Timeframe) {
		return nil, model.NewProviderError(model.ErrorKindValidation,
			fmt.Sprintf("invalid timeframe %q", series.Timeframe), nil)
	}
	if series.Symbol == "" {
		return nil, model.NewProviderError(model.ErrorKindValidation, "empty symbol", nil)
	}
	if limit > MaxKlinesLimit {
		limit = MaxKlinesLimit
	}

	params := url.Values{}
	params.Add("symbol", series.Symbol)
	params.Add("interval", series.Timeframe)
	params.Add("limit", strconv.Itoa(limit))
	if startMs != nil {
		params.Add("startTime", strconv.FormatInt(*startMs, 10))
	}
	if endMs != nil {
		params.Add("endTime", strconv.FormatInt(*endMs, 10))
	}

	reqURL := fmt.Sprintf("%s/klines?%s", p.baseURL, params.Encode())
	p.logger.Debug("Calling klines endpoint", zap.String("url", reqURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, model.NewProviderError(model.ErrorKindUnknown, "failed to create request", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, model.NewProviderError(model.ErrorKindNetwork, "failed to fetch klines", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		p.logger.Error("Provider API error response",
			zap.Int("statusCode", resp.StatusCode),
			zap.String("response", string(bodyBytes)))
		return nil, model.NewAPIError(resp.StatusCode, string(bodyBytes))
	}

	var rawKlines [][]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&rawKlines); err != nil {
		return nil, model.NewProviderError(model.ErrorKindParse, "failed to decode klines", err)
	}

	return p.parseKlines(series, rawKlines), nil
}

// parseKlines converts raw kline arrays to candles, skipping malformed
// records individually rather than failing the batch
func (p *BinanceProvider) parseKlines(series model.SeriesID, rawKlines [][]interface{}) []model.Candle {
	candles := make([]model.Candle, 0, len(rawKlines))

	for i, raw := range rawKlines {
		if len(raw) < 6 {
			p.logger.Warn("Skipping malformed kline",
				zap.String("series", series.String()),
				zap.Int("index", i))
			continue
		}

		openTimeVal, ok := raw[0].(float64)
		if !ok {
			p.logger.Warn("Skipping kline with invalid open time",
				zap.String("series", series.String()),
				zap.Int("index", i))
			continue
		}

		open, err1 := parseKlineFloat(raw[1])
		high, err2 := parseKlineFloat(raw[2])
		low, err3 := parseKlineFloat(raw[3])
		closePrice, err4 := parseKlineFloat(raw[4])
		volume, err5 := parseKlineFloat(raw[5])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			p.logger.Warn("Skipping kline with invalid price fields",
				zap.String("series", series.String()),
				zap.Int("index", i))
			continue
		}

		candles = append(candles, model.Candle{
			Timestamp: int64(openTimeVal) / 1000,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
		})
	}

	return candles
}

func parseKlineFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case string:
		return strconv.ParseFloat(t, 64)
	case float64:
		return t, nil
	default:
		return 0, fmt.Errorf("unexpected kline field type %T", v)
	}
}
