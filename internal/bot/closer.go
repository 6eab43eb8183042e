package bot

import (
	"context"
	"fmt"

	"futures-grid-bot-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ClosedPosition 一次成功的市价平仓
type ClosedPosition struct {
	Side        models.PositionSide
	Size        decimal.Decimal
	RealizedPnl decimal.Decimal
	Fee         decimal.Decimal
	OrderID     string
}

// CloseReport 一键平仓的结果
type CloseReport struct {
	Cancelled    int
	CancelFailed int
	Closed       []ClosedPosition
	CloseFailed  int
	RealizedPnl  decimal.Decimal
	FeesAdded    decimal.Decimal
	Errors       []string
}

// CloseAllPositions 撤销所有挂单，再用市价单平掉所有持仓。
// 撤单和平仓各自独立，任一步失败都不会中断另一步。
func (b *GridBot) CloseAllPositions(ctx context.Context) (*CloseReport, error) {
	ex, err := b.requireExchange()
	if err != nil {
		return nil, err
	}

	symbol := b.config.Symbol
	_, taker := b.feeRates()
	report := &CloseReport{RealizedPnl: decimal.Zero, FeesAdded: decimal.Zero}
	b.logger.Info("=== 平掉所有仓位 ===", zap.String("symbol", symbol))

	// 1. 撤销所有挂单
	rctx, cancel := requestContext(ctx)
	orders, err := ex.FetchOpenOrders(rctx, symbol)
	cancel()
	if err != nil {
		b.logger.Error("获取挂单失败", zap.Error(err))
		report.Errors = append(report.Errors, fmt.Sprintf("fetch open orders: %v", err))
	}
	for _, o := range orders {
		rctx, cancel := requestContext(ctx)
		err := ex.CancelOrder(rctx, symbol, o.ID)
		cancel()
		if err != nil {
			report.CancelFailed++
			report.Errors = append(report.Errors, fmt.Sprintf("cancel order %s: %v", o.ID, err))
			b.logger.Error("撤单失败", zap.String("order_id", o.ID), zap.Error(err))
			continue
		}
		report.Cancelled++
		b.logger.Info("已撤单", zap.String("order_id", o.ID), zap.String("price", o.Price.String()))
	}

	// 2. 市价平仓
	rctx, cancel = requestContext(ctx)
	positions, err := ex.FetchPositions(rctx, symbol)
	cancel()
	if err != nil {
		b.logger.Error("获取持仓失败", zap.Error(err))
		report.Errors = append(report.Errors, fmt.Sprintf("fetch positions: %v", err))
	}
	for _, p := range positions {
		if !p.Size.IsPositive() {
			continue
		}

		rctx, cancel := requestContext(ctx)
		order, err := ex.CreateMarketOrder(rctx, symbol, p.CloseSide(), p.Size, true)
		cancel()
		if err != nil {
			report.CloseFailed++
			report.Errors = append(report.Errors, fmt.Sprintf("close %s position: %v", p.Side, err))
			b.logger.Error("平仓失败", zap.String("side", string(p.Side)), zap.Error(err))
			continue
		}

		size := p.Size
		if order.Size.IsPositive() {
			size = order.Size
		}
		closed := ClosedPosition{
			Side:        p.Side,
			Size:        size,
			RealizedPnl: p.UnrealizedPnl,
			Fee:         size.Mul(p.MarkPrice).Mul(taker),
			OrderID:     order.ID,
		}
		b.session.AddRealizedPnl(closed.RealizedPnl)
		if err := b.session.AddFee(closed.Fee); err != nil {
			b.logger.Warn("手续费未计入", zap.Error(err))
		} else {
			report.FeesAdded = report.FeesAdded.Add(closed.Fee)
		}
		report.RealizedPnl = report.RealizedPnl.Add(closed.RealizedPnl)
		report.Closed = append(report.Closed, closed)
		b.logger.Info("已平仓",
			zap.String("side", string(p.Side)),
			zap.String("size", size.String()),
			zap.String("pnl", closed.RealizedPnl.StringFixed(4)))
	}

	b.session.ClearLevels()
	b.logger.Info("所有挂单和仓位处理完毕",
		zap.Int("cancelled", report.Cancelled),
		zap.Int("closed", len(report.Closed)),
		zap.Int("errors", len(report.Errors)))

	return report, nil
}
