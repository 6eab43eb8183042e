package bot

import (
	"context"
	"fmt"

	"futures-grid-bot-go/internal/exchange"
	"futures-grid-bot-go/internal/grid"
	"futures-grid-bot-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SubmitReport 一次建网格的结果
type SubmitReport struct {
	Levels    []models.GridLevel
	Placed    int
	Failed    int
	FeesAdded decimal.Decimal
	Warnings  []string
}

// CreateGrid 按参数逐档挂限价单。单档失败只记录，不影响其他档位。
func (b *GridBot) CreateGrid(ctx context.Context, params models.GridParameters) (*SubmitReport, error) {
	ex, err := b.requireExchange()
	if err != nil {
		return nil, err
	}
	levels, err := grid.Calculate(params)
	if err != nil {
		return nil, err
	}

	symbol := b.config.Symbol
	maker, _ := b.feeRates()
	report := &SubmitReport{FeesAdded: decimal.Zero}

	b.logger.Info("=== 创建网格 ===",
		zap.String("symbol", symbol),
		zap.String("direction", string(params.Direction)),
		zap.Int("grids", params.GridCount))

	if err := b.setLeverage(ctx, ex, symbol, params.Leverage); err != nil {
		msg := fmt.Sprintf("设置杠杆失败: %v", err)
		b.logger.Warn(msg)
		report.Warnings = append(report.Warnings, msg)
	}

	report.Warnings = append(report.Warnings, b.checkMarketRules(ctx, ex, symbol, levels)...)

	b.session.ClearLevels()
	prefix := newBatchPrefix()
	for _, level := range levels {
		level.ClientOrderID = clientOrderID(prefix, level.Index)

		rctx, cancel := requestContext(ctx)
		order, err := ex.CreateLimitOrder(rctx, symbol, level.Side, level.Size, level.Price, level.ClientOrderID)
		cancel()

		if err != nil {
			level.Status = models.LevelFailed
			level.Error = err.Error()
			report.Failed++
			b.logger.Error("挂单失败",
				zap.Int("level", level.Index),
				zap.String("price", level.Price.StringFixed(2)),
				zap.Error(err))
		} else {
			level.Status = models.LevelOpen
			level.OrderID = order.ID
			// 交易所可能按精度调整了价格和数量，以实际挂单为准
			if order.Price.IsPositive() {
				level.Price = order.Price
			}
			if order.Size.IsPositive() {
				level.Size = order.Size
			}
			level.EstimatedFee = grid.EstimateFee(level.Price, level.Size, maker)
			if err := b.session.AddFee(level.EstimatedFee); err != nil {
				b.logger.Warn("手续费未计入", zap.Error(err))
			} else {
				report.FeesAdded = report.FeesAdded.Add(level.EstimatedFee)
			}
			report.Placed++
			b.logger.Info("挂单成功",
				zap.Int("level", level.Index),
				zap.String("side", string(level.Side)),
				zap.String("price", level.Price.StringFixed(2)),
				zap.String("size", level.Size.String()),
				zap.String("fee", level.EstimatedFee.StringFixed(4)),
				zap.String("order_id", order.ID))
		}

		b.session.AddLevel(level)
		report.Levels = append(report.Levels, level)
	}

	_, fees := b.session.Totals()
	b.logger.Info("网格创建完成",
		zap.Int("placed", report.Placed),
		zap.Int("failed", report.Failed),
		zap.String("total_fees", fees.StringFixed(4)))

	return report, nil
}

func (b *GridBot) setLeverage(ctx context.Context, ex exchange.Exchange, symbol string, leverage int) error {
	rctx, cancel := requestContext(ctx)
	defer cancel()
	return ex.SetLeverage(rctx, symbol, leverage)
}

// checkMarketRules 对不符合交易所精度规则的档位给出警告，但不修改数值
func (b *GridBot) checkMarketRules(ctx context.Context, ex exchange.Exchange, symbol string, levels []models.GridLevel) []string {
	provider, ok := ex.(exchange.RulesProvider)
	if !ok {
		return nil
	}

	rctx, cancel := requestContext(ctx)
	rules, err := provider.MarketRules(rctx, symbol)
	cancel()
	if err != nil {
		msg := fmt.Sprintf("获取交易规则失败: %v", err)
		b.logger.Warn(msg)
		return []string{msg}
	}

	var warnings []string
	for _, level := range levels {
		for _, msg := range ruleViolations(rules, level) {
			msg = fmt.Sprintf("level %d: %s", level.Index, msg)
			b.logger.Warn("档位不符合交易规则", zap.String("detail", msg))
			warnings = append(warnings, msg)
		}
	}
	return warnings
}

func ruleViolations(rules *models.MarketRules, level models.GridLevel) []string {
	var out []string
	if rules.TickSize.IsPositive() && !level.Price.Mod(rules.TickSize).IsZero() {
		out = append(out, fmt.Sprintf("price %s is not a multiple of tick size %s", level.Price, rules.TickSize))
	}
	if rules.StepSize.IsPositive() && !level.Size.Mod(rules.StepSize).IsZero() {
		out = append(out, fmt.Sprintf("size %s is not a multiple of step size %s", level.Size, rules.StepSize))
	}
	if rules.MinQty.IsPositive() && level.Size.LessThan(rules.MinQty) {
		out = append(out, fmt.Sprintf("size %s is below minimum quantity %s", level.Size, rules.MinQty))
	}
	if rules.MinNotional.IsPositive() && level.Notional().LessThan(rules.MinNotional) {
		out = append(out, fmt.Sprintf("notional %s is below minimum %s", level.Notional().StringFixed(4), rules.MinNotional))
	}
	return out
}
