package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultReconnectDelay = 5 * time.Second
	feedReadTimeout       = 60 * time.Second
)

// markPriceEvent 对应币安 <symbol>@markPrice 推送
type markPriceEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	MarkPrice string `json:"p"`
}

// MarkPriceFeed 订阅标记价格推送，断线后按固定间隔重连。
type MarkPriceFeed struct {
	baseURL        string
	symbol         string
	ReconnectDelay time.Duration
	dialer         *websocket.Dialer
	logger         *zap.Logger
}

func NewMarkPriceFeed(baseURL, symbol string, logger *zap.Logger) *MarkPriceFeed {
	return &MarkPriceFeed{
		baseURL:        strings.TrimRight(baseURL, "/"),
		symbol:         symbol,
		ReconnectDelay: defaultReconnectDelay,
		dialer:         websocket.DefaultDialer,
		logger:         logger.With(zap.String("component", "mark_price_feed"), zap.String("symbol", symbol)),
	}
}

// StreamURL 返回订阅地址，例如 wss://fstream.binance.com/ws/btcusdt@markPrice@1s
func (f *MarkPriceFeed) StreamURL() string {
	return fmt.Sprintf("%s/%s@markPrice@1s", f.baseURL, strings.ToLower(f.symbol))
}

// Run 阻塞直到 ctx 结束，每收到一条价格就调用 onPrice。
func (f *MarkPriceFeed) Run(ctx context.Context, onPrice func(symbol string, price decimal.Decimal)) {
	for {
		err := f.runOnce(ctx, onPrice)
		if ctx.Err() != nil {
			return
		}
		f.logger.Warn("mark price stream disconnected, reconnecting",
			zap.Error(err), zap.Duration("delay", f.ReconnectDelay))

		select {
		case <-ctx.Done():
			return
		case <-time.After(f.ReconnectDelay):
		}
	}
}

func (f *MarkPriceFeed) runOnce(ctx context.Context, onPrice func(symbol string, price decimal.Decimal)) error {
	conn, _, err := f.dialer.DialContext(ctx, f.StreamURL(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.StreamURL(), err)
	}
	defer conn.Close()
	f.logger.Info("mark price stream connected", zap.String("url", f.StreamURL()))

	// ctx 结束时关闭连接以打断阻塞的读
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(feedReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		symbol, price, ok := parseMarkPrice(message)
		if !ok {
			f.logger.Debug("ignoring stream message", zap.ByteString("message", message))
			continue
		}
		onPrice(symbol, price)
	}
}

func parseMarkPrice(message []byte) (string, decimal.Decimal, bool) {
	var event markPriceEvent
	if err := json.Unmarshal(message, &event); err != nil {
		return "", decimal.Zero, false
	}
	if event.EventType != "markPriceUpdate" || event.Symbol == "" {
		return "", decimal.Zero, false
	}
	price, err := decimal.NewFromString(event.MarkPrice)
	if err != nil || !price.IsPositive() {
		return "", decimal.Zero, false
	}
	return event.Symbol, price, true
}
