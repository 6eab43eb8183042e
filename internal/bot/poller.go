package bot

import (
	"context"
	"time"

	"futures-grid-bot-go/internal/models"
	"futures-grid-bot-go/internal/session"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DisplayState 账户概览的连接状态指示
type DisplayState int

const (
	StateNotConnected DisplayState = iota
	StateOK
	StateError
)

func (s DisplayState) String() string {
	switch s {
	case StateOK:
		return "OK"
	case StateError:
		return "ERROR"
	default:
		return "NOT CONNECTED"
	}
}

// PollResult 一次轮询的结果
type PollResult struct {
	State     DisplayState
	Snapshot  *models.AccountSnapshot
	Positions []models.Position
	Err       error
}

// Display 接收每次轮询的结果并展示
type Display interface {
	ShowAccount(result PollResult)
}

// Poller 定期刷新账户概览
type Poller struct {
	session    *session.Session
	symbol     string
	quoteAsset string
	interval   time.Duration
	display    Display
	logger     *zap.Logger
}

// NewPoller 创建账户轮询器，display 可以为 nil
func NewPoller(sess *session.Session, cfg *models.Config, display Display, logger *zap.Logger) *Poller {
	return &Poller{
		session:    sess,
		symbol:     cfg.Symbol,
		quoteAsset: cfg.QuoteAsset,
		interval:   time.Duration(cfg.PollIntervalSec) * time.Second,
		display:    display,
		logger:     logger,
	}
}

// Run 立即轮询一次，之后每次轮询结束后等待 interval 再进行下一次，直到 ctx 结束
func (p *Poller) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			p.Tick(ctx)
			timer.Reset(p.interval)
		}
	}
}

// Tick 拉取余额和持仓并重新计算账户概览
func (p *Poller) Tick(ctx context.Context) PollResult {
	result := p.poll(ctx)
	if p.display != nil {
		p.display.ShowAccount(result)
	}
	return result
}

func (p *Poller) poll(ctx context.Context) PollResult {
	ex, ok := p.session.Exchange()
	if !ok {
		return PollResult{State: StateNotConnected}
	}

	rctx, cancel := requestContext(ctx)
	balance, err := ex.FetchBalance(rctx, p.quoteAsset)
	cancel()
	if err != nil {
		p.logger.Error("更新账户概览失败", zap.Error(err))
		return PollResult{State: StateError, Err: err}
	}
	// 余额拉取成功即记录初始余额，不受后续持仓查询失败影响
	if p.session.RecordBalance(balance.Total) {
		p.logger.Info("记录初始余额", zap.String("balance", balance.Total.StringFixed(2)))
	}

	rctx, cancel = requestContext(ctx)
	positions, err := ex.FetchPositions(rctx, p.symbol)
	cancel()
	if err != nil {
		p.logger.Error("更新账户概览失败", zap.Error(err))
		return PollResult{State: StateError, Err: err}
	}

	notional := decimal.Zero
	unrealized := decimal.Zero
	open := make([]models.Position, 0, len(positions))
	for _, pos := range positions {
		if pos.Size.IsZero() {
			continue
		}
		notional = notional.Add(pos.Notional())
		unrealized = unrealized.Add(pos.UnrealizedPnl)
		open = append(open, pos)
	}

	realized, fees := p.session.Totals()
	start, _ := p.session.StartBalance()
	snapshot := models.AccountSnapshot{
		Balance:                balance.Total,
		PositionsNotionalValue: notional,
		UnrealizedPnl:          unrealized,
		RealizedPnl:            realized,
		CumulativeFees:         fees,
		StartBalance:           start,
		TotalPnl:               realized.Add(unrealized).Sub(fees),
		UpdatedAt:              time.Now(),
	}
	p.session.SetSnapshot(snapshot)

	return PollResult{State: StateOK, Snapshot: &snapshot, Positions: open}
}
