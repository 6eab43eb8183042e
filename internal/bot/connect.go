package bot

import (
	"context"
	"strings"
	"sync"

	"futures-grid-bot-go/internal/exchange"
	"futures-grid-bot-go/internal/models"

	"go.uber.org/zap"
)

// ConnectTask 一次后台连接。结果由 Wait 交给会话。
type ConnectTask struct {
	bot   *GridBot
	name  string
	creds exchange.Credentials
	done  chan struct{}

	ex  exchange.Exchange
	err error

	once   sync.Once
	result error
}

// Connect 在后台创建交易所客户端并验证凭证。
// 上一次连接的结果尚未被 Wait 取走时返回 ErrConnectInProgress。
func (b *GridBot) Connect(ctx context.Context, creds exchange.Credentials) (*ConnectTask, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connecting != nil {
		return nil, models.ErrConnectInProgress
	}

	name := strings.ToLower(creds.Exchange)
	if name == "" {
		name = b.config.Exchange
	}
	creds.Exchange = name

	task := &ConnectTask{bot: b, name: name, creds: creds, done: make(chan struct{})}
	b.connecting = task
	b.logger.Info("正在连接交易所", zap.String("exchange", name))

	go task.run(ctx)
	return task, nil
}

// run 只负责建立连接，不修改会话
func (t *ConnectTask) run(ctx context.Context) {
	defer close(t.done)

	ex, err := t.bot.factory(t.bot.config, t.creds, t.bot.logger)
	if err != nil {
		t.err = err
		return
	}

	rctx, cancel := requestContext(ctx)
	defer cancel()
	if err := ex.Authenticate(rctx); err != nil {
		ex.Close()
		t.err = err
		return
	}
	t.ex = ex
}

// Done 在连接结束时关闭
func (t *ConnectTask) Done() <-chan struct{} {
	return t.done
}

// Wait 等待连接结束并把结果交给会话：成功则挂上客户端并保存凭证，失败则断开旧连接。
// ctx 结束时返回 ctx.Err()，任务仍在进行中，可以再次 Wait。
func (t *ConnectTask) Wait(ctx context.Context) error {
	select {
	case <-t.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	t.once.Do(t.finish)
	return t.result
}

func (t *ConnectTask) finish() {
	b := t.bot
	defer func() {
		b.mu.Lock()
		if b.connecting == t {
			b.connecting = nil
		}
		b.mu.Unlock()
	}()

	if t.err != nil {
		b.session.Detach()
		b.logger.Error("连接失败", zap.String("exchange", t.name), zap.Error(t.err))
		t.result = t.err
		return
	}

	b.session.Attach(t.ex, t.name)
	b.logger.Info("连接成功", zap.String("exchange", t.name))

	if b.store == nil {
		return
	}
	if err := b.store.Save(models.Credentials{LastExchange: t.name, APIKey: t.creds.APIKey}); err != nil {
		// 保存失败不影响连接
		b.logger.Warn("保存连接配置失败", zap.String("path", b.store.Path()), zap.Error(err))
	}
}
