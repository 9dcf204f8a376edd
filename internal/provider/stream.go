package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yourorg/chart-trader/internal/model"

	"go.uber.org/zap"
)

// StreamCandle is one live candle update delivered by the kline stream
type StreamCandle struct {
	Series model.SeriesID
	Candle model.Candle
}

// KlineStream subscribes to the combined kline websocket stream and delivers
// live candle updates on a channel. It is a supplement to the REST
// FetchLatestCandle path; updates flow through the same merge pipeline.
type KlineStream struct {
	streamURL string
	logger    *zap.Logger
}

// klineEvent is the wire form of a kline stream message
type klineEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Kline     struct {
		StartTime int64  `json:"t"`
		Interval  string `json:"i"`
		Open      string `json:"o"`
		Close     string `json:"c"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Volume    string `json:"v"`
	} `json:"k"`
}

// streamSubscription is the subscribe frame for the combined stream
type streamSubscription struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

// NewKlineStream creates a kline stream client
func NewKlineStream(streamURL string, logger *zap.Logger) *KlineStream {
	return &KlineStream{
		streamURL: streamURL,
		logger:    logger,
	}
}

// Run connects, subscribes to every series, and forwards candle updates to
// updates until ctx is cancelled. Connection failures reconnect with a flat
// delay; the REST live-tick path keeps the charts moving in the meantime.
func (k *KlineStream) Run(ctx context.Context, series []model.SeriesID, updates chan<- StreamCandle) {
	const reconnectDelay = 5 * time.Second

	for {
		if err := k.streamOnce(ctx, series, updates); err != nil {
			if ctx.Err() != nil {
				return
			}
			k.logger.Warn("Kline stream disconnected, reconnecting",
				zap.Error(err),
				zap.Duration("delay", reconnectDelay))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (k *KlineStream) streamOnce(ctx context.Context, series []model.SeriesID, updates chan<- StreamCandle) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, k.streamURL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial kline stream: %w", err)
	}
	defer conn.Close()

	// Close the connection when the context ends so ReadMessage unblocks
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	params := make([]string, 0, len(series))
	for _, s := range series {
		params = append(params, fmt.Sprintf("%s@kline_%s", strings.ToLower(s.Symbol), s.Timeframe))
	}
	sub := streamSubscription{Method: "SUBSCRIBE", Params: params, ID: 1}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	k.logger.Info("Kline stream connected", zap.Strings("streams", params))

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read stream message: %w", err)
		}

		var event klineEvent
		if err := json.Unmarshal(message, &event); err != nil || event.EventType != "kline" {
			// Subscription acks and other frames are not kline events
			continue
		}

		candle, err := event.toCandle()
		if err != nil {
			k.logger.Warn("Skipping malformed stream candle",
				zap.String("symbol", event.Symbol),
				zap.Error(err))
			continue
		}

		update := StreamCandle{
			Series: model.SeriesID{Symbol: event.Symbol, Timeframe: event.Kline.Interval},
			Candle: candle,
		}

		select {
		case updates <- update:
		case <-ctx.Done():
			return nil
		default:
			k.logger.Debug("Stream channel full, dropping update",
				zap.String("symbol", event.Symbol))
		}
	}
}

func (e *klineEvent) toCandle() (model.Candle, error) {
	open, err1 := strconv.ParseFloat(e.Kline.Open, 64)
	high, err2 := strconv.ParseFloat(e.Kline.High, 64)
	low, err3 := strconv.ParseFloat(e.Kline.Low, 64)
	closePrice, err4 := strconv.ParseFloat(e.Kline.Close, 64)
	volume, err5 := strconv.ParseFloat(e.Kline.Volume, 64)
	for _, err := range []error{err1, err2, err3, err4, err5} {
		if err != nil {
			return model.Candle{}, err
		}
	}

	return model.Candle{
		Timestamp: e.Kline.StartTime / 1000,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
	}, nil
}
