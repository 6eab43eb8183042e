package bot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"futures-grid-bot-go/internal/config"
	"futures-grid-bot-go/internal/exchange"
	"futures-grid-bot-go/internal/models"
	"futures-grid-bot-go/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newConnectBot(t *testing.T, factory Factory) (*GridBot, *config.CredentialStore) {
	t.Helper()
	cfg := testConfig()
	store := config.NewCredentialStore(filepath.Join(t.TempDir(), "grid_trading_config.json"))
	sess := session.New(cfg.Exchange, cfg.Symbol, nil, zap.NewNop())
	return NewGridBot(cfg, sess, store, factory, zap.NewNop()), store
}

func staticFactory(ex exchange.Exchange) Factory {
	return func(*models.Config, exchange.Credentials, *zap.Logger) (exchange.Exchange, error) {
		return ex, nil
	}
}

func waitTask(t *testing.T, task *ConnectTask) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return task.Wait(ctx)
}

func TestConnect_Success(t *testing.T) {
	ex := newMockExchange()
	b, store := newConnectBot(t, staticFactory(ex))

	task, err := b.Connect(context.Background(), exchange.Credentials{Exchange: "Paper", APIKey: "my-key", SecretKey: "my-secret"})
	require.NoError(t, err)
	require.NoError(t, waitTask(t, task))

	attached, ok := b.Session().Exchange()
	require.True(t, ok)
	assert.Same(t, ex, attached)
	assert.Equal(t, "paper", b.Session().ExchangeName())

	saved, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, models.Credentials{LastExchange: "paper", APIKey: "my-key"}, saved)

	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(raw), "my-secret"), "secret must never be written")
	assert.Contains(t, string(raw), "\n  \"api_key\"")
}

func TestConnect_AuthenticationFailureDetaches(t *testing.T) {
	previous := newMockExchange()
	failing := newMockExchange()
	failing.authErr = errMock
	b, store := newConnectBot(t, staticFactory(failing))
	b.Session().Attach(previous, "binance")

	task, err := b.Connect(context.Background(), exchange.Credentials{Exchange: "binance", APIKey: "bad"})
	require.NoError(t, err)
	err = waitTask(t, task)
	assert.ErrorIs(t, err, errMock)

	_, ok := b.Session().Exchange()
	assert.False(t, ok)
	assert.Equal(t, 1, previous.closeCount(), "previous handle is dropped")
	assert.Equal(t, 1, failing.closeCount(), "failed client is closed")

	saved, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, saved.APIKey, "nothing is saved on failure")
}

func TestConnect_FactoryError(t *testing.T) {
	b, _ := newConnectBot(t, func(*models.Config, exchange.Credentials, *zap.Logger) (exchange.Exchange, error) {
		return nil, errors.New("unknown exchange")
	})

	task, err := b.Connect(context.Background(), exchange.Credentials{Exchange: "kraken"})
	require.NoError(t, err)
	assert.Error(t, waitTask(t, task))
	_, ok := b.Session().Exchange()
	assert.False(t, ok)
}

func TestConnect_RejectsConcurrentConnect(t *testing.T) {
	release := make(chan struct{})
	ex := newMockExchange()
	b, _ := newConnectBot(t, func(*models.Config, exchange.Credentials, *zap.Logger) (exchange.Exchange, error) {
		<-release
		return ex, nil
	})

	task, err := b.Connect(context.Background(), exchange.Credentials{APIKey: "k"})
	require.NoError(t, err)

	_, err = b.Connect(context.Background(), exchange.Credentials{APIKey: "k"})
	assert.ErrorIs(t, err, models.ErrConnectInProgress)

	// Wait 超时不会结束任务
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	assert.ErrorIs(t, task.Wait(ctx), context.DeadlineExceeded)
	cancel()
	_, err = b.Connect(context.Background(), exchange.Credentials{APIKey: "k"})
	assert.ErrorIs(t, err, models.ErrConnectInProgress)

	close(release)
	require.NoError(t, waitTask(t, task))
	require.NoError(t, waitTask(t, task), "Wait can be called again")

	again, err := b.Connect(context.Background(), exchange.Credentials{APIKey: "k"})
	require.NoError(t, err)
	require.NoError(t, waitTask(t, again))
}

func TestConnect_DefaultsToConfiguredExchange(t *testing.T) {
	var got exchange.Credentials
	b, _ := newConnectBot(t, func(_ *models.Config, creds exchange.Credentials, _ *zap.Logger) (exchange.Exchange, error) {
		got = creds
		return newMockExchange(), nil
	})

	task, err := b.Connect(context.Background(), exchange.Credentials{APIKey: "k"})
	require.NoError(t, err)
	require.NoError(t, waitTask(t, task))
	assert.Equal(t, "binance", got.Exchange)
}
