package exchange

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"futures-grid-bot-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaperConfig 模拟盘参数
type PaperConfig struct {
	Symbol       string
	QuoteAsset   string
	StartBalance decimal.Decimal
	StartPrice   decimal.Decimal
	MakerFeeRate decimal.Decimal
	TakerFeeRate decimal.Decimal
}

// PaperExchange 实现了 Exchange 接口，在内存中模拟合约撮合。
// 限价单在标记价格穿过挂单价时按挂单价成交（Maker），市价单按当前价立即成交（Taker）。
type PaperExchange struct {
	mu sync.Mutex

	cfg          PaperConfig
	apiKey       string
	cash         decimal.Decimal            // 钱包余额，含已实现盈亏，扣除手续费
	markPrice    map[string]decimal.Decimal // 最新标记价格
	positions    map[string]decimal.Decimal // 带符号的持仓数量，多为正，空为负
	entryPrice   map[string]decimal.Decimal
	leverage     map[string]int
	orders       map[int64]*models.Order
	nextOrderID  int64
	totalFees    decimal.Decimal
	realizedPnl  decimal.Decimal
	logger       *zap.Logger
	failNextCall map[string]error

	feedCancel context.CancelFunc
	feedDone   chan struct{}
}

// NewPaperExchange 创建一个新的模拟盘实例。
func NewPaperExchange(apiKey string, cfg PaperConfig, logger *zap.Logger) *PaperExchange {
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	e := &PaperExchange{
		cfg:          cfg,
		apiKey:       apiKey,
		cash:         cfg.StartBalance,
		markPrice:    make(map[string]decimal.Decimal),
		positions:    make(map[string]decimal.Decimal),
		entryPrice:   make(map[string]decimal.Decimal),
		leverage:     make(map[string]int),
		orders:       make(map[int64]*models.Order),
		nextOrderID:  1,
		logger:       logger.With(zap.String("exchange", "paper")),
		failNextCall: make(map[string]error),
	}
	if cfg.StartPrice.IsPositive() && cfg.Symbol != "" {
		e.markPrice[cfg.Symbol] = cfg.StartPrice
	}
	return e
}

// FailNext 让下一次指定操作返回 err，用于演练故障路径。
func (e *PaperExchange) FailNext(op string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failNextCall[op] = err
}

// injected 必须在持有锁的情况下调用。
func (e *PaperExchange) injected(op, symbol string) error {
	if err, ok := e.failNextCall[op]; ok {
		delete(e.failNextCall, op)
		return models.NewExchangeError(op, symbol, err)
	}
	return nil
}

// SetPrice 更新标记价格并检查挂单是否成交。
func (e *PaperExchange) SetPrice(symbol string, price decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.markPrice[symbol] = price

	// 按订单ID顺序撮合，保证结果可复现
	var ids []int64
	for id, o := range e.orders {
		if o.Symbol == symbol && o.Status == "NEW" {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		o := e.orders[id]
		if (o.Side == models.Buy && price.LessThanOrEqual(o.Price)) ||
			(o.Side == models.Sell && price.GreaterThanOrEqual(o.Price)) {
			e.fill(o, o.Price, e.cfg.MakerFeeRate)
		}
	}
}

// TotalFees 返回模拟盘累计扣除的手续费
func (e *PaperExchange) TotalFees() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalFees
}

// RealizedPnl 返回模拟盘累计的已实现盈亏
func (e *PaperExchange) RealizedPnl() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.realizedPnl
}

// fill 处理一个已成交的订单，更新账户状态。必须在持有锁的情况下调用。
func (e *PaperExchange) fill(o *models.Order, price, feeRate decimal.Decimal) {
	o.Status = "FILLED"
	o.Price = price

	fee := price.Mul(o.Size).Mul(feeRate)
	e.totalFees = e.totalFees.Add(fee)
	e.cash = e.cash.Sub(fee) // 无论开仓平仓，手续费总是支出

	delta := o.Size
	if o.Side == models.Sell {
		delta = delta.Neg()
	}

	current := e.positions[o.Symbol]
	entry := e.entryPrice[o.Symbol]
	next := current.Add(delta)

	switch {
	case current.IsZero() || current.Sign() == delta.Sign():
		// 开仓或加仓：更新加权平均开仓价
		total := entry.Mul(current.Abs()).Add(price.Mul(delta.Abs()))
		e.entryPrice[o.Symbol] = total.Div(next.Abs())
	default:
		// 减仓：只有减掉的部分产生已实现盈亏
		closed := decimal.Min(delta.Abs(), current.Abs())
		pnl := price.Sub(entry).Mul(closed)
		if current.IsNegative() {
			pnl = pnl.Neg()
		}
		e.cash = e.cash.Add(pnl)
		e.realizedPnl = e.realizedPnl.Add(pnl)

		switch {
		case next.IsZero():
			delete(e.entryPrice, o.Symbol)
		case next.Sign() != current.Sign():
			// 反手，剩余部分按成交价开新仓
			e.entryPrice[o.Symbol] = price
		}
	}

	if next.IsZero() {
		delete(e.positions, o.Symbol)
	} else {
		e.positions[o.Symbol] = next
	}

	e.logger.Debug("paper order filled",
		zap.String("id", o.ID),
		zap.String("side", string(o.Side)),
		zap.String("price", price.String()),
		zap.String("size", o.Size.String()),
		zap.String("fee", fee.String()),
		zap.String("position", next.String()))
}

// --- Exchange 接口实现 ---

func (e *PaperExchange) Authenticate(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.injected("authenticate", ""); err != nil {
		return err
	}
	if strings.TrimSpace(e.apiKey) == "" {
		return models.NewExchangeError("authenticate", "", errors.New("api key is required"))
	}
	return ctx.Err()
}

func (e *PaperExchange) FetchBalance(ctx context.Context, asset string) (models.Balance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.injected("fetch balance", ""); err != nil {
		return models.Balance{}, err
	}
	if !strings.EqualFold(asset, e.cfg.QuoteAsset) {
		return models.Balance{Asset: asset}, nil
	}

	margin := decimal.Zero
	for symbol, qty := range e.positions {
		lev := e.leverage[symbol]
		if lev < 1 {
			lev = 1
		}
		margin = margin.Add(qty.Abs().Mul(e.entryPrice[symbol]).Div(decimal.NewFromInt(int64(lev))))
	}
	return models.Balance{Asset: e.cfg.QuoteAsset, Total: e.cash, Available: e.cash.Sub(margin)}, nil
}

func (e *PaperExchange) FetchPositions(ctx context.Context, symbol string) ([]models.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.injected("fetch positions", symbol); err != nil {
		return nil, err
	}

	qty, ok := e.positions[symbol]
	if !ok {
		return []models.Position{}, nil
	}
	entry := e.entryPrice[symbol]
	mark := e.markPrice[symbol]
	side := models.Long
	if qty.IsNegative() {
		side = models.Short
	}
	return []models.Position{{
		Symbol:        symbol,
		Side:          side,
		Size:          qty.Abs(),
		EntryPrice:    entry,
		MarkPrice:     mark,
		UnrealizedPnl: mark.Sub(entry).Mul(qty),
		Leverage:      e.leverage[symbol],
	}}, nil
}

func (e *PaperExchange) FetchOpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.injected("fetch open orders", symbol); err != nil {
		return nil, err
	}

	var ids []int64
	for id, o := range e.orders {
		if o.Symbol == symbol && o.Status == "NEW" {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	result := make([]models.Order, 0, len(ids))
	for _, id := range ids {
		result = append(result, *e.orders[id])
	}
	return result, nil
}

func (e *PaperExchange) CreateLimitOrder(ctx context.Context, symbol string, side models.Side, size, price decimal.Decimal, clientOrderID string) (*models.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.injected("create limit order", symbol); err != nil {
		return nil, err
	}
	if !size.IsPositive() || !price.IsPositive() {
		return nil, models.NewExchangeError("create limit order", symbol, fmt.Errorf("invalid size %s or price %s", size, price))
	}

	o := e.newOrder(symbol, side, models.Limit, size, price)
	o.ClientOrderID = clientOrderID
	copied := *o
	return &copied, nil
}

func (e *PaperExchange) CreateMarketOrder(ctx context.Context, symbol string, side models.Side, size decimal.Decimal, reduceOnly bool) (*models.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.injected("create market order", symbol); err != nil {
		return nil, err
	}

	mark, ok := e.markPrice[symbol]
	if !ok || !mark.IsPositive() {
		return nil, models.NewExchangeError("create market order", symbol, errors.New("no mark price yet"))
	}
	if reduceOnly {
		current := e.positions[symbol]
		if current.IsZero() || (side == models.Buy) == current.IsPositive() {
			return nil, models.NewExchangeError("create market order", symbol, errors.New("reduce-only order would increase position"))
		}
		size = decimal.Min(size, current.Abs())
	}

	o := e.newOrder(symbol, side, models.Market, size, mark)
	o.ReduceOnly = reduceOnly
	e.fill(o, mark, e.cfg.TakerFeeRate)
	copied := *o
	return &copied, nil
}

// newOrder 必须在持有锁的情况下调用。
func (e *PaperExchange) newOrder(symbol string, side models.Side, typ models.OrderType, size, price decimal.Decimal) *models.Order {
	id := e.nextOrderID
	e.nextOrderID++
	o := &models.Order{
		ID:     strconv.FormatInt(id, 10),
		Symbol: symbol,
		Side:   side,
		Type:   typ,
		Price:  price,
		Size:   size,
		Status: "NEW",
	}
	e.orders[id] = o
	return o
}

func (e *PaperExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.injected("cancel order", symbol); err != nil {
		return err
	}

	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return models.NewExchangeError("cancel order", symbol, fmt.Errorf("invalid order ID %q", orderID))
	}
	o, ok := e.orders[id]
	if !ok || o.Symbol != symbol || o.Status != "NEW" {
		return models.NewExchangeError("cancel order", symbol, fmt.Errorf("unknown order %s", orderID))
	}
	o.Status = "CANCELED"
	return nil
}

func (e *PaperExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.injected("set leverage", symbol); err != nil {
		return err
	}
	if leverage < 1 || leverage > 125 {
		return models.NewExchangeError("set leverage", symbol, fmt.Errorf("leverage %d out of range", leverage))
	}
	e.leverage[symbol] = leverage
	return nil
}

// StartFeed 在后台运行价格推送，Close 时停止。
func (e *PaperExchange) StartFeed(feed *MarkPriceFeed) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	e.mu.Lock()
	e.feedCancel = cancel
	e.feedDone = done
	e.mu.Unlock()

	go func() {
		defer close(done)
		feed.Run(ctx, e.SetPrice)
	}()
}

func (e *PaperExchange) Close() error {
	e.mu.Lock()
	cancel, done := e.feedCancel, e.feedDone
	e.feedCancel, e.feedDone = nil, nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}
