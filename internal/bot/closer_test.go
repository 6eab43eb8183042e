package bot

import (
	"context"
	"errors"
	"testing"

	"futures-grid-bot-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closerFixture() *mockExchange {
	ex := newMockExchange()
	ex.openOrders = []models.Order{
		{ID: "11", Price: d("95")},
		{ID: "12", Price: d("90")},
	}
	ex.positions = []models.Position{
		{Symbol: "BTCUSDT", Side: models.Long, Size: d("1"), MarkPrice: d("100"), UnrealizedPnl: d("5")},
		{Symbol: "BTCUSDT", Side: models.Short, Size: decimal.Zero, MarkPrice: d("100")},
		{Symbol: "BTCUSDT", Side: models.Short, Size: d("2"), MarkPrice: d("100"), UnrealizedPnl: d("-3")},
	}
	return ex
}

func TestCloseAllPositions_NotConnected(t *testing.T) {
	_, err := newTestBot(nil).CloseAllPositions(context.Background())
	assert.True(t, errors.Is(err, models.ErrNotConnected))
}

func TestCloseAllPositions(t *testing.T) {
	ex := closerFixture()
	b := newTestBot(ex)
	b.Session().SetLevels([]models.GridLevel{{Index: 0}, {Index: 1}})

	report, err := b.CloseAllPositions(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"11", "12"}, ex.getCancelled())
	assert.Equal(t, 2, report.Cancelled)

	calls := ex.getMarketCalls()
	require.Len(t, calls, 2, "zero-size positions are skipped")
	assert.Equal(t, models.Sell, calls[0].Side)
	assert.True(t, calls[0].Size.Equal(d("1")))
	assert.True(t, calls[0].ReduceOnly)
	assert.Equal(t, models.Buy, calls[1].Side)
	assert.True(t, calls[1].Size.Equal(d("2")))

	// 未实现盈亏转入已实现，按 Taker 费率估算平仓手续费
	assert.True(t, report.RealizedPnl.Equal(d("2")))
	assert.True(t, report.FeesAdded.Equal(d("0.15")))
	realized, fees := b.Session().Totals()
	assert.True(t, realized.Equal(d("2")))
	assert.True(t, fees.Equal(d("0.15")))

	assert.Empty(t, b.Session().Levels())
	assert.Empty(t, report.Errors)
}

func TestCloseAllPositions_CancelFailureContinues(t *testing.T) {
	ex := closerFixture()
	ex.failCancelIDs["11"] = true
	b := newTestBot(ex)

	report, err := b.CloseAllPositions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.CancelFailed)
	assert.Equal(t, 1, report.Cancelled)
	assert.Equal(t, []string{"12"}, ex.getCancelled())
	assert.Len(t, report.Closed, 2)
}

func TestCloseAllPositions_FetchOrdersFailureStillClosesPositions(t *testing.T) {
	ex := closerFixture()
	ex.openOrdersErr = errMock
	b := newTestBot(ex)

	report, err := b.CloseAllPositions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ex.getCancelled())
	assert.Len(t, report.Closed, 2)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "fetch open orders")
}

func TestCloseAllPositions_FetchPositionsFailureStillCancels(t *testing.T) {
	ex := closerFixture()
	ex.positionsErr = errMock
	b := newTestBot(ex)
	b.Session().SetLevels([]models.GridLevel{{Index: 0}})

	report, err := b.CloseAllPositions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Cancelled)
	assert.Empty(t, ex.getMarketCalls())
	assert.Empty(t, b.Session().Levels(), "levels are cleared even when closing fails")
}

func TestCloseAllPositions_FailedCloseLeavesAccumulators(t *testing.T) {
	ex := closerFixture()
	ex.failMarketSides[models.Sell] = true
	b := newTestBot(ex)

	report, err := b.CloseAllPositions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.CloseFailed)
	require.Len(t, report.Closed, 1)
	assert.Equal(t, models.Short, report.Closed[0].Side)

	realized, fees := b.Session().Totals()
	assert.True(t, realized.Equal(d("-3")))
	assert.True(t, fees.Equal(d("0.1")))
}
