package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"futures-grid-bot-go/internal/models"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// LiveExchange 实现了 Exchange 接口，通过 go-binance 与币安U本位合约交互。
type LiveExchange struct {
	client  *futures.Client
	limiter *rate.Limiter
	logger  *zap.Logger

	rulesMu sync.Mutex
	rules   map[string]*models.MarketRules // 按交易对缓存的精度规则
}

// NewLiveExchange 创建一个新的 LiveExchange 实例。ordersPerSecond 为 0 时不限速。
func NewLiveExchange(apiKey, secretKey string, testnet bool, ordersPerSecond float64, logger *zap.Logger) *LiveExchange {
	futures.UseTestnet = testnet
	client := futures.NewClient(apiKey, secretKey)

	limit := rate.Inf
	burst := 1
	if ordersPerSecond > 0 {
		limit = rate.Limit(ordersPerSecond)
		burst = int(ordersPerSecond)
		if burst < 1 {
			burst = 1
		}
	}

	return &LiveExchange{
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With(zap.String("exchange", "binance")),
		rules:   make(map[string]*models.MarketRules),
	}
}

// wait 在发送请求前等待限速器放行
func (e *LiveExchange) wait(ctx context.Context, op, symbol string) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return models.NewExchangeError(op, symbol, err)
	}
	return nil
}

// Authenticate 同步服务器时间并拉取一次余额，以验证 API Key 是否可用。
func (e *LiveExchange) Authenticate(ctx context.Context) error {
	if err := e.wait(ctx, "authenticate", ""); err != nil {
		return err
	}
	offset, err := e.client.NewSetServerTimeService().Do(ctx)
	if err != nil {
		return models.NewExchangeError("sync time", "", err)
	}
	e.logger.Info("与币安服务器时间同步完成", zap.Int64("timeOffset (ms)", offset))

	if _, err := e.client.NewGetBalanceService().Do(ctx); err != nil {
		return models.NewExchangeError("authenticate", "", err)
	}
	return nil
}

// FetchBalance 获取指定资产的合约钱包余额。
func (e *LiveExchange) FetchBalance(ctx context.Context, asset string) (models.Balance, error) {
	if err := e.wait(ctx, "fetch balance", ""); err != nil {
		return models.Balance{}, err
	}
	balances, err := e.client.NewGetBalanceService().Do(ctx)
	if err != nil {
		return models.Balance{}, models.NewExchangeError("fetch balance", "", err)
	}

	for _, b := range balances {
		if strings.EqualFold(b.Asset, asset) {
			return models.Balance{
				Asset:     b.Asset,
				Total:     parseDecimal(b.Balance),
				Available: parseDecimal(b.AvailableBalance),
			}, nil
		}
	}
	return models.Balance{Asset: asset}, nil
}

// FetchPositions 获取指定交易对的持仓信息。
func (e *LiveExchange) FetchPositions(ctx context.Context, symbol string) ([]models.Position, error) {
	if err := e.wait(ctx, "fetch positions", symbol); err != nil {
		return nil, err
	}
	risks, err := e.client.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, models.NewExchangeError("fetch positions", symbol, err)
	}

	positions := make([]models.Position, 0, len(risks))
	for _, p := range risks {
		amt := parseDecimal(p.PositionAmt)
		side := models.Long
		if amt.IsNegative() {
			side = models.Short
		}
		leverage, _ := strconv.Atoi(p.Leverage)
		positions = append(positions, models.Position{
			Symbol:        p.Symbol,
			Side:          side,
			Size:          amt.Abs(),
			EntryPrice:    parseDecimal(p.EntryPrice),
			MarkPrice:     parseDecimal(p.MarkPrice),
			UnrealizedPnl: parseDecimal(p.UnRealizedProfit),
			Leverage:      leverage,
		})
	}
	return positions, nil
}

// FetchOpenOrders 查询未完成订单。
func (e *LiveExchange) FetchOpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	if err := e.wait(ctx, "fetch open orders", symbol); err != nil {
		return nil, err
	}
	orders, err := e.client.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, models.NewExchangeError("fetch open orders", symbol, err)
	}

	result := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		result = append(result, models.Order{
			ID:            strconv.FormatInt(o.OrderID, 10),
			ClientOrderID: o.ClientOrderID,
			Symbol:        o.Symbol,
			Side:          models.Side(o.Side),
			Type:          models.OrderType(o.Type),
			Price:         parseDecimal(o.Price),
			Size:          parseDecimal(o.OrigQuantity),
			Status:        string(o.Status),
			ReduceOnly:    o.ReduceOnly,
		})
	}
	return result, nil
}

// CreateLimitOrder 下 GTC 限价单。
func (e *LiveExchange) CreateLimitOrder(ctx context.Context, symbol string, side models.Side, size, price decimal.Decimal, clientOrderID string) (*models.Order, error) {
	rules := e.cachedRules(ctx, symbol)
	size = quantizeSize(size, rules)
	price = quantizePrice(price, rules)
	if !size.IsPositive() {
		return nil, models.NewExchangeError("create limit order", symbol, fmt.Errorf("size is below step size %s", rules.StepSize))
	}

	if err := e.wait(ctx, "create limit order", symbol); err != nil {
		return nil, err
	}
	svc := e.client.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeLimit).
		TimeInForce(futures.TimeInForceTypeGTC).
		Quantity(size.String()).
		Price(price.String())
	if clientOrderID != "" {
		svc = svc.NewClientOrderID(clientOrderID)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return nil, models.NewExchangeError("create limit order", symbol, err)
	}
	return &models.Order{
		ID:            strconv.FormatInt(resp.OrderID, 10),
		ClientOrderID: resp.ClientOrderID,
		Symbol:        symbol,
		Side:          side,
		Type:          models.Limit,
		Price:         price,
		Size:          size,
		Status:        string(resp.Status),
	}, nil
}

// CreateMarketOrder 下市价单，平仓时应设置 reduceOnly。
func (e *LiveExchange) CreateMarketOrder(ctx context.Context, symbol string, side models.Side, size decimal.Decimal, reduceOnly bool) (*models.Order, error) {
	rules := e.cachedRules(ctx, symbol)
	size = quantizeSize(size, rules)
	if !size.IsPositive() {
		return nil, models.NewExchangeError("create market order", symbol, fmt.Errorf("size is below step size %s", rules.StepSize))
	}

	if err := e.wait(ctx, "create market order", symbol); err != nil {
		return nil, err
	}
	resp, err := e.client.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeMarket).
		Quantity(size.String()).
		ReduceOnly(reduceOnly).
		Do(ctx)
	if err != nil {
		return nil, models.NewExchangeError("create market order", symbol, err)
	}
	return &models.Order{
		ID:         strconv.FormatInt(resp.OrderID, 10),
		Symbol:     symbol,
		Side:       side,
		Type:       models.Market,
		Price:      parseDecimal(resp.Price),
		Size:       size,
		Status:     string(resp.Status),
		ReduceOnly: reduceOnly,
	}, nil
}

// CancelOrder 取消订单。
func (e *LiveExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return models.NewExchangeError("cancel order", symbol, fmt.Errorf("invalid order ID %q: %w", orderID, err))
	}
	if err := e.wait(ctx, "cancel order", symbol); err != nil {
		return err
	}
	if _, err := e.client.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx); err != nil {
		return models.NewExchangeError("cancel order", symbol, err)
	}
	return nil
}

// SetLeverage 调整交易对杠杆倍数。
func (e *LiveExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if err := e.wait(ctx, "set leverage", symbol); err != nil {
		return err
	}
	if _, err := e.client.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx); err != nil {
		return models.NewExchangeError("set leverage", symbol, err)
	}
	return nil
}

// MarketRules 从交易所信息中读取价格和数量精度。
func (e *LiveExchange) MarketRules(ctx context.Context, symbol string) (*models.MarketRules, error) {
	if err := e.wait(ctx, "exchange info", symbol); err != nil {
		return nil, err
	}
	info, err := e.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, models.NewExchangeError("exchange info", symbol, err)
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		rules := &models.MarketRules{Symbol: symbol}
		for _, f := range s.Filters {
			switch f["filterType"] {
			case "PRICE_FILTER":
				rules.TickSize = filterDecimal(f, "tickSize")
			case "LOT_SIZE":
				rules.StepSize = filterDecimal(f, "stepSize")
				rules.MinQty = filterDecimal(f, "minQty")
			case "MIN_NOTIONAL":
				rules.MinNotional = filterDecimal(f, "notional")
			}
		}
		return rules, nil
	}
	return nil, models.NewExchangeError("exchange info", symbol, fmt.Errorf("symbol not found"))
}

// cachedRules 返回交易对的精度规则，首次调用时从交易所加载。
// 加载失败时返回空规则，下单数值原样发送，下次再重试加载。
func (e *LiveExchange) cachedRules(ctx context.Context, symbol string) *models.MarketRules {
	e.rulesMu.Lock()
	rules, ok := e.rules[symbol]
	e.rulesMu.Unlock()
	if ok {
		return rules
	}

	rules, err := e.MarketRules(ctx, symbol)
	if err != nil {
		e.logger.Warn("加载交易规则失败，数量和价格将不做精度调整", zap.String("symbol", symbol), zap.Error(err))
		return &models.MarketRules{Symbol: symbol}
	}

	e.rulesMu.Lock()
	e.rules[symbol] = rules
	e.rulesMu.Unlock()
	return rules
}

// quantizeSize 将数量向下取整到 StepSize 的整数倍
func quantizeSize(size decimal.Decimal, rules *models.MarketRules) decimal.Decimal {
	if !rules.StepSize.IsPositive() {
		return size
	}
	return size.Div(rules.StepSize).Floor().Mul(rules.StepSize)
}

// quantizePrice 将价格四舍五入到 TickSize 的整数倍
func quantizePrice(price decimal.Decimal, rules *models.MarketRules) decimal.Decimal {
	if !rules.TickSize.IsPositive() {
		return price
	}
	return price.Div(rules.TickSize).Round(0).Mul(rules.TickSize)
}

// Close REST 客户端无需释放资源。
func (e *LiveExchange) Close() error {
	return nil
}

func filterDecimal(f map[string]interface{}, key string) decimal.Decimal {
	s, _ := f[key].(string)
	return parseDecimal(s)
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return v
}

// requestTimeout 单次请求的默认超时
const requestTimeout = 10 * time.Second

// WithRequestTimeout 为没有截止时间的 ctx 加上默认超时
func WithRequestTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, requestTimeout)
}
