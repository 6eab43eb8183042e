package reporter

import (
	"fmt"
	"io"
	"sync"

	"futures-grid-bot-go/internal/bot"
	"futures-grid-bot-go/internal/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"
)

// Reporter 将预览、下单结果和账户概览渲染为表格
type Reporter struct {
	mu         sync.Mutex
	out        io.Writer
	symbol     string
	quoteAsset string
	drawdown   drawdownTracker
}

// New 创建一个输出到 out 的 Reporter
func New(out io.Writer, symbol, quoteAsset string) *Reporter {
	return &Reporter{out: out, symbol: symbol, quoteAsset: quoteAsset}
}

func (r *Reporter) newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	return t
}

// PrintPreview 打印网格预览
func (r *Reporter) PrintPreview(p *bot.Preview) {
	r.mu.Lock()
	defer r.mu.Unlock()

	params := p.Summary.Params
	summary := r.newTable("网格预览 " + r.symbol)
	summary.AppendRows([]table.Row{
		{"方向", string(params.Direction)},
		{"价格区间", fmt.Sprintf("%s - %s", params.LowerPrice, params.UpperPrice)},
		{"网格数量", params.GridCount},
		{"网格间距", p.Summary.Step.StringFixed(4)},
		{"每格投资", r.money(p.Summary.InvestmentPerLevel)},
		{"杠杆", fmt.Sprintf("%dx", params.Leverage)},
		{"最大名义价值", r.money(p.Summary.MaxNotional)},
		{"Maker费率", p.MakerFeeRate.String()},
	})
	summary.Render()

	levels := r.newTable("")
	levels.AppendHeader(table.Row{"#", "方向", "价格", "数量", "名义价值", "预估手续费"})
	for _, l := range p.Levels {
		levels.AppendRow(table.Row{l.Index, l.Side, l.Price.StringFixed(2), l.Size.StringFixed(6), l.Notional().StringFixed(2), l.EstimatedFee.StringFixed(4)})
	}
	levels.AppendFooter(table.Row{"", "", "", "", "合计", p.TotalEstimatedFee.StringFixed(4)})
	levels.Render()
}

// PrintSubmitReport 打印建网格的结果
func (r *Reporter) PrintSubmitReport(rep *bot.SubmitReport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.newTable(fmt.Sprintf("网格挂单 %s (成功 %d / 失败 %d)", r.symbol, rep.Placed, rep.Failed))
	t.AppendHeader(table.Row{"#", "方向", "价格", "数量", "状态", "订单ID", "手续费 / 错误"})
	for _, l := range rep.Levels {
		detail := l.EstimatedFee.StringFixed(4)
		status := text.FgGreen.Sprint(l.Status)
		if l.Status == models.LevelFailed {
			detail = l.Error
			status = text.FgRed.Sprint(l.Status)
		}
		t.AppendRow(table.Row{l.Index, l.Side, l.Price.StringFixed(2), l.Size.StringFixed(6), status, l.OrderID, detail})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "手续费合计", rep.FeesAdded.StringFixed(4)})
	t.Render()

	r.printWarnings(rep.Warnings)
}

// PrintCloseReport 打印一键平仓的结果
func (r *Reporter) PrintCloseReport(rep *bot.CloseReport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.newTable("平仓结果 " + r.symbol)
	t.AppendRows([]table.Row{
		{"已撤单", rep.Cancelled},
		{"撤单失败", rep.CancelFailed},
		{"已平仓", len(rep.Closed)},
		{"平仓失败", rep.CloseFailed},
		{"已实现盈亏", r.money(rep.RealizedPnl)},
		{"平仓手续费", r.money(rep.FeesAdded)},
	})
	t.Render()

	if len(rep.Closed) > 0 {
		closed := r.newTable("")
		closed.AppendHeader(table.Row{"方向", "数量", "盈亏", "手续费", "订单ID"})
		for _, c := range rep.Closed {
			closed.AppendRow(table.Row{c.Side, c.Size.String(), c.RealizedPnl.StringFixed(4), c.Fee.StringFixed(4), c.OrderID})
		}
		closed.Render()
	}
	r.printWarnings(rep.Errors)
}

// ShowAccount 打印账户概览，实现 bot.Display
func (r *Reporter) ShowAccount(result bot.PollResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.newTable(fmt.Sprintf("账户概览 %s  %s", r.symbol, stateIndicator(result.State)))
	switch result.State {
	case bot.StateNotConnected:
		t.AppendRow(table.Row{"状态", "未连接交易所"})
		t.Render()
		return
	case bot.StateError:
		t.AppendRow(table.Row{"错误", fmt.Sprint(result.Err)})
		t.Render()
		return
	}

	s := result.Snapshot
	equity := s.Balance.Add(s.UnrealizedPnl)
	maxDrawdown := r.drawdown.Observe(equity)

	t.AppendRows([]table.Row{
		{"余额", r.money(s.Balance)},
		{"初始余额", r.money(s.StartBalance)},
		{"持仓价值", r.money(s.PositionsNotionalValue)},
		{"未实现盈亏", r.money(s.UnrealizedPnl)},
		{"已实现盈亏", r.money(s.RealizedPnl)},
		{"累计手续费", r.money(s.CumulativeFees)},
		{"总盈亏", r.money(s.TotalPnl)},
		{"收益率", profitPercentage(s).StringFixed(2) + "%"},
		{"最大回撤", maxDrawdown.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"},
		{"更新时间", s.UpdatedAt.Format("2006-01-02 15:04:05")},
	})
	t.Render()

	if len(result.Positions) > 0 {
		pos := r.newTable("")
		pos.AppendHeader(table.Row{"方向", "数量", "开仓价", "标记价格", "名义价值", "未实现盈亏"})
		for _, p := range result.Positions {
			pos.AppendRow(table.Row{p.Side, p.Size.String(), p.EntryPrice.StringFixed(2), p.MarkPrice.StringFixed(2), p.Notional().StringFixed(2), p.UnrealizedPnl.StringFixed(4)})
		}
		pos.Render()
	}
}

func (r *Reporter) printWarnings(lines []string) {
	for _, l := range lines {
		fmt.Fprintln(r.out, text.FgYellow.Sprint("! "+l))
	}
}

func (r *Reporter) money(v decimal.Decimal) string {
	return v.StringFixed(2) + " " + r.quoteAsset
}

func stateIndicator(s bot.DisplayState) string {
	switch s {
	case bot.StateOK:
		return text.FgGreen.Sprint("● " + s.String())
	case bot.StateError:
		return text.FgRed.Sprint("● " + s.String())
	default:
		return text.FgHiBlack.Sprint("● " + s.String())
	}
}

// profitPercentage 总盈亏相对初始余额的百分比
func profitPercentage(s *models.AccountSnapshot) decimal.Decimal {
	if s.StartBalance.IsZero() {
		return decimal.Zero
	}
	return s.TotalPnl.Div(s.StartBalance).Mul(decimal.NewFromInt(100))
}

// drawdownTracker 只保留历史峰值和最大回撤，内存占用不随轮询次数增长
type drawdownTracker struct {
	started bool
	peak    decimal.Decimal
	max     decimal.Decimal
}

// Observe 记录一个新的权益值并返回目前为止的最大回撤比例
func (dt *drawdownTracker) Observe(equity decimal.Decimal) decimal.Decimal {
	if !dt.started || equity.GreaterThan(dt.peak) {
		dt.started = true
		dt.peak = equity
	}
	if dt.peak.IsPositive() {
		if drawdown := dt.peak.Sub(equity).Div(dt.peak); drawdown.GreaterThan(dt.max) {
			dt.max = drawdown
		}
	}
	return dt.max
}

// MaxDrawdown 计算权益曲线的最大回撤比例
func MaxDrawdown(equityCurve []decimal.Decimal) decimal.Decimal {
	var tracker drawdownTracker
	for _, equity := range equityCurve {
		tracker.Observe(equity)
	}
	return tracker.max
}
