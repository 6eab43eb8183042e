package reporter

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"futures-grid-bot-go/internal/bot"
	"futures-grid-bot-go/internal/grid"
	"futures-grid-bot-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPrintPreview(t *testing.T) {
	params := models.GridParameters{
		LowerPrice: d("90"), UpperPrice: d("100"), GridCount: 3,
		TotalInvestment: d("300"), Leverage: 2, Direction: models.DirectionLong,
	}
	summary, err := grid.Summarize(params)
	require.NoError(t, err)
	levels, err := grid.Calculate(params)
	require.NoError(t, err)

	var buf bytes.Buffer
	New(&buf, "BTCUSDT", "USDT").PrintPreview(&bot.Preview{Summary: summary, Levels: levels, MakerFeeRate: d("0.0002")})

	out := buf.String()
	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "5.0000")
	assert.Contains(t, out, "600.00 USDT")
	assert.Contains(t, out, "95.00")
	assert.Contains(t, out, "2x")
}

func TestPrintSubmitReport(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "BTCUSDT", "USDT").PrintSubmitReport(&bot.SubmitReport{
		Levels: []models.GridLevel{
			{Index: 0, Price: d("100"), Size: d("1"), Side: models.Buy, Status: models.LevelOpen, OrderID: "42", EstimatedFee: d("0.02")},
			{Index: 1, Price: d("95"), Size: d("1"), Side: models.Buy, Status: models.LevelFailed, Error: "insufficient margin"},
		},
		Placed:    1,
		Failed:    1,
		FeesAdded: d("0.02"),
		Warnings:  []string{"leverage not changed"},
	})

	out := buf.String()
	assert.Contains(t, out, "42")
	assert.Contains(t, out, "insufficient margin")
	assert.Contains(t, out, "0.0200")
	assert.Contains(t, out, "leverage not changed")
}

func TestPrintCloseReport(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "BTCUSDT", "USDT").PrintCloseReport(&bot.CloseReport{
		Cancelled:   2,
		Closed:      []bot.ClosedPosition{{Side: models.Long, Size: d("1.5"), RealizedPnl: d("3.25"), Fee: d("0.07"), OrderID: "9"}},
		RealizedPnl: d("3.25"),
		FeesAdded:   d("0.07"),
		Errors:      []string{"cancel order 7: rejected"},
	})

	out := buf.String()
	assert.Contains(t, out, "3.25 USDT")
	assert.Contains(t, out, "1.5")
	assert.Contains(t, out, "cancel order 7: rejected")
}

func TestShowAccount(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, "BTCUSDT", "USDT")

	r.ShowAccount(bot.PollResult{State: bot.StateNotConnected})
	assert.Contains(t, buf.String(), "NOT CONNECTED")

	buf.Reset()
	r.ShowAccount(bot.PollResult{State: bot.StateError, Err: errors.New("timeout")})
	assert.Contains(t, buf.String(), "timeout")

	buf.Reset()
	r.ShowAccount(bot.PollResult{
		State: bot.StateOK,
		Snapshot: &models.AccountSnapshot{
			Balance:      d("1050"),
			StartBalance: d("1000"),
			TotalPnl:     d("50"),
			UpdatedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		},
		Positions: []models.Position{{Side: models.Short, Size: d("2"), EntryPrice: d("100"), MarkPrice: d("99"), UnrealizedPnl: d("2")}},
	})
	out := buf.String()
	assert.Contains(t, out, "1050.00 USDT")
	assert.Contains(t, out, "5.00%")
	assert.Contains(t, out, "2024-05-01 12:00:00")
	assert.Contains(t, out, "short")
}

func TestMaxDrawdown(t *testing.T) {
	assert.True(t, MaxDrawdown(nil).IsZero())
	assert.True(t, MaxDrawdown([]decimal.Decimal{d("100")}).IsZero())

	curve := []decimal.Decimal{d("100"), d("120"), d("90"), d("130"), d("117")}
	assert.True(t, MaxDrawdown(curve).Equal(d("0.25")))
}

func TestDrawdownTracker(t *testing.T) {
	var tracker drawdownTracker
	curve := []string{"100", "120", "90", "130", "117", "125"}
	want := []string{"0", "0", "0.25", "0.25", "0.25", "0.25"}
	for i, v := range curve {
		got := tracker.Observe(d(v))
		assert.True(t, got.Equal(d(want[i])), "point %d: %s", i, got)
	}
	assert.True(t, tracker.peak.Equal(d("130")))

	var flat drawdownTracker
	assert.True(t, flat.Observe(d("0")).IsZero())
	assert.True(t, flat.Observe(d("-5")).IsZero())
}

func TestShowAccount_TracksDrawdownAcrossPolls(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, "BTCUSDT", "USDT")

	for _, balance := range []string{"1000", "1200", "900", "1100"} {
		buf.Reset()
		r.ShowAccount(bot.PollResult{
			State:    bot.StateOK,
			Snapshot: &models.AccountSnapshot{Balance: d(balance), StartBalance: d("1000")},
		})
	}
	// 峰值 1200 回撤到 900
	assert.Contains(t, buf.String(), "25.00%")

	// 未连接和出错的轮询不计入权益曲线
	r.ShowAccount(bot.PollResult{State: bot.StateError, Err: errors.New("timeout")})
	assert.True(t, r.drawdown.peak.Equal(d("1200")))
	assert.True(t, r.drawdown.max.Equal(d("0.25")))
}
