package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"futures-grid-bot-go/internal/bot"
	"futures-grid-bot-go/internal/config"
	"futures-grid-bot-go/internal/exchange"
	"futures-grid-bot-go/internal/logger"
	"futures-grid-bot-go/internal/models"
	"futures-grid-bot-go/internal/persistence"
	"futures-grid-bot-go/internal/reporter"
	"futures-grid-bot-go/internal/session"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// app 一次命令执行所需的全部组件
type app struct {
	cfg      *models.Config
	store    *config.CredentialStore
	saved    models.Credentials
	repo     persistence.StateRepository
	session  *session.Session
	bot      *bot.GridBot
	reporter *reporter.Reporter
	logger   *zap.Logger
}

// setup 加载配置、日志、会话存储并创建机器人
func setup(c *cli.Context) (*app, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	// --- 使用文件中的配置重新初始化日志 ---
	log := logger.InitLogger(cfg.LogConfig)

	store := config.NewCredentialStore(cfg.CredentialsPath)
	saved, err := store.Load()
	if err != nil {
		log.Warn("读取上次的连接配置失败", zap.Error(err))
	}

	// 交易所优先级：命令行 > 上次使用 > 配置文件
	if !c.IsSet("exchange") && saved.LastExchange != "" && saved.LastExchange != cfg.Exchange {
		if _, ok := cfg.Exchanges[saved.LastExchange]; ok {
			cfg.Exchange = saved.LastExchange
			if err := config.Validate(cfg); err != nil {
				return nil, err
			}
		}
	}

	a := &app{
		cfg:      cfg,
		store:    store,
		saved:    saved,
		reporter: reporter.New(os.Stdout, cfg.Symbol, cfg.QuoteAsset),
		logger:   log,
	}

	if cfg.DBPath != "" {
		a.repo, err = persistence.NewBadgerRepository(cfg.DBPath)
		if err != nil {
			return nil, err
		}
	}
	a.session, err = a.loadSession()
	if err != nil {
		a.close()
		return nil, err
	}
	a.session.Start()

	a.bot = bot.NewGridBot(cfg, a.session, store, exchange.New, log)
	return a, nil
}

func loadConfig(c *cli.Context) (*models.Config, error) {
	path := c.String("config")
	cfg, err := config.LoadConfig(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !c.IsSet("config"):
		logger.S().Infof("未找到配置文件 %s，使用默认配置。", path)
		cfg = config.Default()
	case err != nil:
		return nil, fmt.Errorf("无法加载配置文件: %w", err)
	}

	if c.IsSet("exchange") {
		cfg.Exchange = c.String("exchange")
	}
	if c.IsSet("symbol") {
		cfg.Symbol = c.String("symbol")
	}
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadSession 恢复同一交易所、同一合约的上次会话
func (a *app) loadSession() (*session.Session, error) {
	if a.repo == nil {
		return session.New(a.cfg.Exchange, a.cfg.Symbol, nil, a.logger), nil
	}
	state, err := a.repo.LoadState(a.cfg.Exchange, a.cfg.Symbol)
	if err != nil {
		return nil, fmt.Errorf("加载会话失败: %w", err)
	}
	if state == nil {
		return session.New(a.cfg.Exchange, a.cfg.Symbol, a.repo, a.logger), nil
	}
	a.logger.Info("恢复上次会话",
		zap.String("session_id", state.SessionID),
		zap.Int("levels", len(state.Levels)),
		zap.String("realized_pnl", state.RealizedPnl.String()),
		zap.String("fees", state.CumulativeFees.String()))
	return session.Restore(state, a.repo, a.logger), nil
}

// credentials API Key 优先取环境变量，其次取上次保存的值；Secret 只从环境变量读取
func (a *app) credentials() exchange.Credentials {
	apiKey := os.Getenv("BINANCE_API_KEY")
	if apiKey == "" {
		apiKey = a.saved.APIKey
	}
	return exchange.Credentials{
		Exchange:  a.cfg.Exchange,
		APIKey:    apiKey,
		SecretKey: os.Getenv("BINANCE_SECRET_KEY"),
	}
}

func (a *app) connect(ctx context.Context) error {
	task, err := a.bot.Connect(ctx, a.credentials())
	if err != nil {
		return err
	}
	return task.Wait(ctx)
}

func (a *app) close() {
	if a.bot != nil {
		a.bot.Disconnect()
	}
	if a.session != nil {
		a.session.Stop()
	}
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			a.logger.Warn("关闭数据库失败", zap.Error(err))
		}
	}
	a.logger.Sync()
}
