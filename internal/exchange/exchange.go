package exchange

import (
	"context"

	"futures-grid-bot-go/internal/models"

	"github.com/shopspring/decimal"
)

// Exchange 定义了机器人需要的交易所能力集合。
// 真实交易所和模拟盘都实现该接口，机器人对两者一视同仁。
type Exchange interface {
	// Authenticate 验证凭证是否可用
	Authenticate(ctx context.Context) error
	FetchBalance(ctx context.Context, asset string) (models.Balance, error)
	// FetchPositions 返回该交易对的持仓，可能包含数量为零的条目
	FetchPositions(ctx context.Context, symbol string) ([]models.Position, error)
	FetchOpenOrders(ctx context.Context, symbol string) ([]models.Order, error)
	CreateLimitOrder(ctx context.Context, symbol string, side models.Side, size, price decimal.Decimal, clientOrderID string) (*models.Order, error)
	CreateMarketOrder(ctx context.Context, symbol string, side models.Side, size decimal.Decimal, reduceOnly bool) (*models.Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	Close() error
}

// RulesProvider 由能够提供下单精度规则的交易所实现
type RulesProvider interface {
	MarketRules(ctx context.Context, symbol string) (*models.MarketRules, error)
}

// Credentials 连接交易所所需的密钥
type Credentials struct {
	Exchange  string
	APIKey    string
	SecretKey string
}
