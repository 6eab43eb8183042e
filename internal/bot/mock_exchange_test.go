package bot

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"futures-grid-bot-go/internal/models"

	"github.com/shopspring/decimal"
)

var errMock = errors.New("mock exchange error")

type limitCall struct {
	Side          models.Side
	Size          decimal.Decimal
	Price         decimal.Decimal
	ClientOrderID string
}

type marketCall struct {
	Side       models.Side
	Size       decimal.Decimal
	ReduceOnly bool
}

// mockExchange is a mutex-guarded in-memory implementation of exchange.Exchange for testing.
type mockExchange struct {
	sync.Mutex

	balance    models.Balance
	positions  []models.Position
	openOrders []models.Order

	authErr         error
	balanceErr      error
	positionsErr    error
	openOrdersErr   error
	leverageErr     error
	failLimitPrices map[string]bool
	failCancelIDs   map[string]bool
	failMarketSides map[models.Side]bool

	limitCalls  []limitCall
	marketCalls []marketCall
	cancelled   []string
	leverage    int
	closed      int
	nextID      int

	// failBalanceTimes makes the next N FetchBalance calls fail with errMock
	failBalanceTimes int
	// onFetchBalance runs outside the lock, used to simulate slow requests
	onFetchBalance   func()
	// adjustLimit rewrites the size and price reported back for a limit order
	adjustLimit      func(size, price decimal.Decimal) (decimal.Decimal, decimal.Decimal)
}

func newMockExchange() *mockExchange {
	return &mockExchange{
		failLimitPrices: make(map[string]bool),
		failCancelIDs:   make(map[string]bool),
		failMarketSides: make(map[models.Side]bool),
	}
}

func (m *mockExchange) Authenticate(ctx context.Context) error {
	m.Lock()
	defer m.Unlock()
	return m.authErr
}

func (m *mockExchange) FetchBalance(ctx context.Context, asset string) (models.Balance, error) {
	m.Lock()
	hook := m.onFetchBalance
	m.Unlock()
	if hook != nil {
		hook()
	}

	m.Lock()
	defer m.Unlock()
	if m.balanceErr != nil {
		return models.Balance{}, models.NewExchangeError("fetch balance", "", m.balanceErr)
	}
	if m.failBalanceTimes > 0 {
		m.failBalanceTimes--
		return models.Balance{}, models.NewExchangeError("fetch balance", "", errMock)
	}
	b := m.balance
	b.Asset = asset
	return b, nil
}

func (m *mockExchange) FetchPositions(ctx context.Context, symbol string) ([]models.Position, error) {
	m.Lock()
	defer m.Unlock()
	if m.positionsErr != nil {
		return nil, models.NewExchangeError("fetch positions", symbol, m.positionsErr)
	}
	return append([]models.Position(nil), m.positions...), nil
}

func (m *mockExchange) FetchOpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	m.Lock()
	defer m.Unlock()
	if m.openOrdersErr != nil {
		return nil, models.NewExchangeError("fetch open orders", symbol, m.openOrdersErr)
	}
	return append([]models.Order(nil), m.openOrders...), nil
}

func (m *mockExchange) CreateLimitOrder(ctx context.Context, symbol string, side models.Side, size, price decimal.Decimal, clientOrderID string) (*models.Order, error) {
	m.Lock()
	defer m.Unlock()
	m.limitCalls = append(m.limitCalls, limitCall{Side: side, Size: size, Price: price, ClientOrderID: clientOrderID})
	if m.failLimitPrices[price.String()] {
		return nil, models.NewExchangeError("create limit order", symbol, errMock)
	}
	m.nextID++
	if m.adjustLimit != nil {
		size, price = m.adjustLimit(size, price)
	}
	return &models.Order{
		ID:            strconv.Itoa(m.nextID),
		ClientOrderID: clientOrderID,
		Symbol:        symbol,
		Side:          side,
		Type:          models.Limit,
		Price:         price,
		Size:          size,
		Status:        "NEW",
	}, nil
}

func (m *mockExchange) CreateMarketOrder(ctx context.Context, symbol string, side models.Side, size decimal.Decimal, reduceOnly bool) (*models.Order, error) {
	m.Lock()
	defer m.Unlock()
	m.marketCalls = append(m.marketCalls, marketCall{Side: side, Size: size, ReduceOnly: reduceOnly})
	if m.failMarketSides[side] {
		return nil, models.NewExchangeError("create market order", symbol, errMock)
	}
	m.nextID++
	return &models.Order{ID: strconv.Itoa(m.nextID), Symbol: symbol, Side: side, Type: models.Market, Size: size, Status: "FILLED", ReduceOnly: reduceOnly}, nil
}

func (m *mockExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	m.Lock()
	defer m.Unlock()
	if m.failCancelIDs[orderID] {
		return models.NewExchangeError("cancel order", symbol, errMock)
	}
	m.cancelled = append(m.cancelled, orderID)
	return nil
}

func (m *mockExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	m.Lock()
	defer m.Unlock()
	if m.leverageErr != nil {
		return models.NewExchangeError("set leverage", symbol, m.leverageErr)
	}
	m.leverage = leverage
	return nil
}

func (m *mockExchange) Close() error {
	m.Lock()
	defer m.Unlock()
	m.closed++
	return nil
}

func (m *mockExchange) getLimitCalls() []limitCall {
	m.Lock()
	defer m.Unlock()
	return append([]limitCall(nil), m.limitCalls...)
}

func (m *mockExchange) getMarketCalls() []marketCall {
	m.Lock()
	defer m.Unlock()
	return append([]marketCall(nil), m.marketCalls...)
}

func (m *mockExchange) getCancelled() []string {
	m.Lock()
	defer m.Unlock()
	return append([]string(nil), m.cancelled...)
}

func (m *mockExchange) closeCount() int {
	m.Lock()
	defer m.Unlock()
	return m.closed
}

// rulesExchange adds market rules to the mock.
type rulesExchange struct {
	*mockExchange
	rules    *models.MarketRules
	rulesErr error
}

func (r *rulesExchange) MarketRules(ctx context.Context, symbol string) (*models.MarketRules, error) {
	if r.rulesErr != nil {
		return nil, r.rulesErr
	}
	return r.rules, nil
}
