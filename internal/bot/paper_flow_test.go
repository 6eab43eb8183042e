package bot

import (
	"context"
	"testing"

	"futures-grid-bot-go/internal/exchange"
	"futures-grid-bot-go/internal/models"
	"futures-grid-bot-go/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestPaperFlow drives connect, create, poll and close against the paper exchange.
func TestPaperFlow(t *testing.T) {
	cfg := testConfig()
	cfg.Exchange = "paper"
	sess := session.New(cfg.Exchange, cfg.Symbol, nil, zap.NewNop())
	b := NewGridBot(cfg, sess, nil, exchange.New, zap.NewNop())
	ctx := context.Background()

	task, err := b.Connect(ctx, exchange.Credentials{Exchange: "paper", APIKey: "paper-key"})
	require.NoError(t, err)
	require.NoError(t, waitTask(t, task))

	report, err := b.CreateGrid(ctx, testParams())
	require.NoError(t, err)
	require.Equal(t, 3, report.Placed)

	handle, ok := sess.Exchange()
	require.True(t, ok)
	paper, ok := handle.(*exchange.PaperExchange)
	require.True(t, ok)

	// 价格下穿 95，前两档成交
	paper.SetPrice(cfg.Symbol, d("94"))

	poller := NewPoller(sess, cfg, nil, zap.NewNop())
	result := poller.Tick(ctx)
	require.Equal(t, StateOK, result.State)
	require.Len(t, result.Positions, 1)
	assert.Equal(t, models.Long, result.Positions[0].Side)
	assert.True(t, result.Snapshot.StartBalance.IsPositive())
	assert.True(t, result.Snapshot.UnrealizedPnl.IsNegative())

	closeReport, err := b.CloseAllPositions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, closeReport.Cancelled, "the 90 level is still open")
	require.Len(t, closeReport.Closed, 1)
	assert.True(t, closeReport.RealizedPnl.Equal(result.Snapshot.UnrealizedPnl))

	positions, err := paper.FetchPositions(ctx, cfg.Symbol)
	require.NoError(t, err)
	assert.Empty(t, positions)
	assert.Empty(t, sess.Levels())

	result = poller.Tick(ctx)
	require.Equal(t, StateOK, result.State)
	assert.True(t, result.Snapshot.UnrealizedPnl.IsZero())
	assert.True(t, result.Snapshot.RealizedPnl.IsNegative())
}
