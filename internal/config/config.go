package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"futures-grid-bot-go/internal/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	DefaultCredentialsPath = "grid_trading_config.json"
	DefaultPollInterval    = 10
)

// LoadConfig 从指定路径加载配置文件(JSON 或 YAML)并解析到Config结构体中
func LoadConfig(path string) (*models.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := &models.Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	ApplyDefaults(config)
	if err := Validate(config); err != nil {
		return nil, err
	}
	return config, nil
}

// Default 返回一个可直接使用的默认配置
func Default() *models.Config {
	cfg := &models.Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults 为缺省字段填充默认值
func ApplyDefaults(cfg *models.Config) {
	if cfg.Exchange == "" {
		cfg.Exchange = "binance"
	}
	cfg.Exchange = strings.ToLower(cfg.Exchange)
	if cfg.Symbol == "" {
		cfg.Symbol = "BTCUSDT"
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	if cfg.CredentialsPath == "" {
		cfg.CredentialsPath = DefaultCredentialsPath
	}
	if cfg.PollIntervalSec <= 0 {
		cfg.PollIntervalSec = DefaultPollInterval
	}
	if cfg.Exchanges == nil {
		cfg.Exchanges = make(map[string]models.ExchangeProfile)
	}
	// 统一使用小写的交易所名
	for name, p := range cfg.Exchanges {
		if lower := strings.ToLower(name); lower != name {
			delete(cfg.Exchanges, name)
			cfg.Exchanges[lower] = p
		}
	}
	if _, ok := cfg.Exchanges["binance"]; !ok {
		cfg.Exchanges["binance"] = models.ExchangeProfile{
			Markets:         []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"},
			MakerFeeRate:    decimal.RequireFromString("0.0002"),
			TakerFeeRate:    decimal.RequireFromString("0.0005"),
			OrdersPerSecond: 10,
		}
	}
	if _, ok := cfg.Exchanges["paper"]; !ok {
		cfg.Exchanges["paper"] = models.ExchangeProfile{
			Markets:           []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"},
			MakerFeeRate:      decimal.RequireFromString("0.0001"),
			TakerFeeRate:      decimal.RequireFromString("0.0006"),
			MarkPriceWSURL:    "wss://fstream.binance.com/ws",
			PaperStartBalance: decimal.NewFromInt(10000),
		}
	}
	if cfg.Grid.GridCount == 0 {
		cfg.Grid.GridCount = 10
	}
	if cfg.Grid.TotalInvestment.IsZero() {
		cfg.Grid.TotalInvestment = decimal.NewFromInt(100)
	}
	if cfg.Grid.Leverage == 0 {
		cfg.Grid.Leverage = 1
	}
	if cfg.Grid.Direction == "" {
		cfg.Grid.Direction = models.DirectionLong
	} else if d, err := models.ParseDirection(string(cfg.Grid.Direction)); err == nil {
		// 配置文件中可能写成 "Long" 或 "SHORT"
		cfg.Grid.Direction = d
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.LogConfig.Output == "" {
		cfg.LogConfig.Output = "console"
	}
}

// Validate 检查配置的一致性
func Validate(cfg *models.Config) error {
	profile, ok := cfg.Profile()
	if !ok {
		return fmt.Errorf("unknown exchange %q", cfg.Exchange)
	}
	if profile.MakerFeeRate.IsNegative() || profile.TakerFeeRate.IsNegative() {
		return errors.New("fee rates must not be negative")
	}
	if len(profile.Markets) > 0 && !contains(profile.Markets, cfg.Symbol) {
		return fmt.Errorf("symbol %s is not listed for exchange %s", cfg.Symbol, cfg.Exchange)
	}
	if cfg.Grid.Direction != models.DirectionLong && cfg.Grid.Direction != models.DirectionShort {
		return fmt.Errorf("%w: unknown direction %q", models.ErrInvalidParameters, cfg.Grid.Direction)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
