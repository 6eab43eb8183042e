package exchange

import (
	"fmt"
	"strings"

	"futures-grid-bot-go/internal/models"

	"go.uber.org/zap"
)

// PaperExchangeName 模拟盘配置名，其余配置名都连接币安合约
const PaperExchangeName = "paper"

// New 根据配置和凭证创建交易所客户端，不做任何网络请求。
func New(cfg *models.Config, creds Credentials, logger *zap.Logger) (Exchange, error) {
	name := strings.ToLower(creds.Exchange)
	if name == "" {
		name = cfg.Exchange
	}
	profile, ok := cfg.Exchanges[name]
	if !ok {
		return nil, fmt.Errorf("unknown exchange %q", name)
	}

	if name == PaperExchangeName {
		paper := NewPaperExchange(creds.APIKey, PaperConfig{
			Symbol:       cfg.Symbol,
			QuoteAsset:   cfg.QuoteAsset,
			StartBalance: profile.PaperStartBalance,
			StartPrice:   profile.PaperStartPrice,
			MakerFeeRate: profile.MakerFeeRate,
			TakerFeeRate: profile.TakerFeeRate,
		}, logger)
		if profile.MarkPriceWSURL != "" {
			paper.StartFeed(NewMarkPriceFeed(profile.MarkPriceWSURL, cfg.Symbol, logger))
		}
		return paper, nil
	}

	return NewLiveExchange(creds.APIKey, creds.SecretKey, cfg.IsTestnet, profile.OrdersPerSecond, logger), nil
}
