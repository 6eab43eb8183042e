package bot

import (
	"context"
	"sync"

	"futures-grid-bot-go/internal/config"
	"futures-grid-bot-go/internal/exchange"
	"futures-grid-bot-go/internal/grid"
	"futures-grid-bot-go/internal/models"
	"futures-grid-bot-go/internal/session"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Factory 根据配置和凭证构造交易所客户端，不做网络请求
type Factory func(cfg *models.Config, creds exchange.Credentials, logger *zap.Logger) (exchange.Exchange, error)

// GridBot 是网格交易机器人的核心结构，负责连接、挂单与平仓
type GridBot struct {
	config  *models.Config
	session *session.Session
	store   *config.CredentialStore
	factory Factory
	logger  *zap.Logger

	mu         sync.Mutex
	connecting *ConnectTask
}

// NewGridBot 创建一个新的网格交易机器人实例
func NewGridBot(cfg *models.Config, sess *session.Session, store *config.CredentialStore, factory Factory, logger *zap.Logger) *GridBot {
	if factory == nil {
		factory = exchange.New
	}
	return &GridBot{
		config:  cfg,
		session: sess,
		store:   store,
		factory: factory,
		logger:  logger,
	}
}

// Session 返回机器人持有的会话
func (b *GridBot) Session() *session.Session {
	return b.session
}

// Symbol 返回交易的合约
func (b *GridBot) Symbol() string {
	return b.config.Symbol
}

// Preview 网格预览结果
type Preview struct {
	Summary           grid.Summary
	Levels            []models.GridLevel
	MakerFeeRate      decimal.Decimal
	TotalEstimatedFee decimal.Decimal
}

// Preview 校验参数并计算网格，不需要连接交易所
func (b *GridBot) Preview(params models.GridParameters) (*Preview, error) {
	summary, err := grid.Summarize(params)
	if err != nil {
		return nil, err
	}
	levels, err := grid.Calculate(params)
	if err != nil {
		return nil, err
	}

	maker, _ := b.feeRates()
	total := decimal.Zero
	for i := range levels {
		levels[i].EstimatedFee = grid.EstimateFee(levels[i].Price, levels[i].Size, maker)
		total = total.Add(levels[i].EstimatedFee)
	}

	b.logger.Info("网格预览",
		zap.String("step", summary.Step.StringFixed(4)),
		zap.String("investment_per_grid", summary.InvestmentPerLevel.StringFixed(4)),
		zap.Int("grids", params.GridCount))

	return &Preview{Summary: summary, Levels: levels, MakerFeeRate: maker, TotalEstimatedFee: total}, nil
}

// Disconnect 清除交易所连接
func (b *GridBot) Disconnect() {
	b.session.Detach()
	b.logger.Info("已断开交易所连接")
}

// feeRates 返回当前交易所配置的 Maker/Taker 费率
func (b *GridBot) feeRates() (maker, taker decimal.Decimal) {
	profile, ok := b.config.Exchanges[b.session.ExchangeName()]
	if !ok {
		profile, _ = b.config.Profile()
	}
	return profile.MakerFeeRate, profile.TakerFeeRate
}

// requireExchange 返回已连接的交易所，未连接时返回 ErrNotConnected
func (b *GridBot) requireExchange() (exchange.Exchange, error) {
	ex, ok := b.session.Exchange()
	if !ok {
		return nil, models.ErrNotConnected
	}
	return ex, nil
}

func requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return exchange.WithRequestTimeout(ctx)
}
