package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Config 结构体定义了机器人的所有配置参数
type Config struct {
	Exchange        string                     `json:"exchange" yaml:"exchange"`                   // 使用的交易所配置名, e.g., "binance", "paper"
	Symbol          string                     `json:"symbol" yaml:"symbol"`                       // 交易对，如 "BTCUSDT"
	QuoteAsset      string                     `json:"quote_asset" yaml:"quote_asset"`             // 计价资产，用于读取账户余额
	IsTestnet       bool                       `json:"is_testnet" yaml:"is_testnet"`               // 是否使用测试网
	DBPath          string                     `json:"db_path" yaml:"db_path"`                     // 会话状态数据库路径，留空则不持久化
	CredentialsPath string                     `json:"credentials_path" yaml:"credentials_path"`   // 上次使用的交易所与API Key的保存文件
	PollIntervalSec int                        `json:"poll_interval_sec" yaml:"poll_interval_sec"` // 账户概览刷新间隔(秒)
	Exchanges       map[string]ExchangeProfile `json:"exchanges" yaml:"exchanges"`                 // 可选交易所及其费率
	Grid            GridParameters             `json:"grid" yaml:"grid"`                           // 默认网格参数，可被命令行覆盖
	LogConfig       LogConfig                  `json:"log" yaml:"log"`                             // 日志配置
}

// Profile 返回当前选中交易所的配置。
func (c *Config) Profile() (ExchangeProfile, bool) {
	p, ok := c.Exchanges[strings.ToLower(c.Exchange)]
	return p, ok
}

// ExchangeProfile 描述一个交易所/市场的静态属性
type ExchangeProfile struct {
	Markets           []string        `json:"markets" yaml:"markets"`                                               // 可交易的合约
	MakerFeeRate      decimal.Decimal `json:"maker_fee_rate" yaml:"maker_fee_rate"`                                 // 挂单手续费率
	TakerFeeRate      decimal.Decimal `json:"taker_fee_rate" yaml:"taker_fee_rate"`                                 // 吃单手续费率
	OrdersPerSecond   float64         `json:"orders_per_second,omitempty" yaml:"orders_per_second,omitempty"`       // REST 请求节流
	MarkPriceWSURL    string          `json:"mark_price_ws_url,omitempty" yaml:"mark_price_ws_url,omitempty"`       // 模拟盘使用的标记价格推送地址
	PaperStartBalance decimal.Decimal `json:"paper_start_balance,omitempty" yaml:"paper_start_balance,omitempty"`   // 模拟盘初始资金
	PaperStartPrice   decimal.Decimal `json:"paper_start_price,omitempty" yaml:"paper_start_price,omitempty"`       // 模拟盘在收到推送前使用的价格
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level" yaml:"level"`             // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output" yaml:"output"`           // 输出模式: "console", "file", "both"
	File       string `json:"file" yaml:"file"`               // 日志文件路径
	MaxSize    int    `json:"max_size" yaml:"max_size"`       // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups" yaml:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age" yaml:"max_age"`         // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress" yaml:"compress"`       // 是否压缩旧日志文件
}

// Side 定义了交易方向的类型
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite 返回反向的交易方向
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderType 订单类型
type OrderType string

const (
	Limit  OrderType = "LIMIT"
	Market OrderType = "MARKET"
)

// PositionSide 持仓方向
type PositionSide string

const (
	Long  PositionSide = "long"
	Short PositionSide = "short"
)

// Balance 定义了账户中特定资产的余额信息
type Balance struct {
	Asset     string          `json:"asset"`
	Total     decimal.Decimal `json:"total"`
	Available decimal.Decimal `json:"available"`
}

// Position 定义了持仓信息，Size 始终为非负数，方向由 Side 表示
type Position struct {
	Symbol        string          `json:"symbol"`
	Side          PositionSide    `json:"side"`
	Size          decimal.Decimal `json:"size"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	MarkPrice     decimal.Decimal `json:"mark_price"`
	UnrealizedPnl decimal.Decimal `json:"unrealized_pnl"`
	Leverage      int             `json:"leverage"`
}

// Notional 持仓名义价值
func (p Position) Notional() decimal.Decimal {
	return p.Size.Mul(p.MarkPrice).Abs()
}

// CloseSide 返回平掉该仓位所需的下单方向
func (p Position) CloseSide() Side {
	if p.Side == Short {
		return Buy
	}
	return Sell
}

// Order 定义了订单信息
type Order struct {
	ID            string          `json:"id"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	Symbol        string          `json:"symbol"`
	Side          Side            `json:"side"`
	Type          OrderType       `json:"type"`
	Price         decimal.Decimal `json:"price"`
	Size          decimal.Decimal `json:"size"`
	Status        string          `json:"status"`
	ReduceOnly    bool            `json:"reduce_only,omitempty"`
}

// MarketRules 交易对的下单精度规则
type MarketRules struct {
	Symbol      string
	TickSize    decimal.Decimal
	StepSize    decimal.Decimal
	MinQty      decimal.Decimal
	MinNotional decimal.Decimal
}
