package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountSnapshot 每次轮询重新计算的账户概览
type AccountSnapshot struct {
	Balance                decimal.Decimal `json:"balance"`
	PositionsNotionalValue decimal.Decimal `json:"positions_notional_value"`
	UnrealizedPnl          decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnl            decimal.Decimal `json:"realized_pnl"`
	CumulativeFees         decimal.Decimal `json:"cumulative_fees"`
	StartBalance           decimal.Decimal `json:"start_balance"`
	TotalPnl               decimal.Decimal `json:"total_pnl"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// SessionState 定义了需要持久化的会话数据
type SessionState struct {
	SessionID       string           `json:"session_id"`
	Exchange        string           `json:"exchange"`
	Symbol          string           `json:"symbol"`
	Levels          []GridLevel      `json:"levels"`
	RealizedPnl     decimal.Decimal  `json:"realized_pnl"`
	CumulativeFees  decimal.Decimal  `json:"cumulative_fees"`
	StartBalance    decimal.Decimal  `json:"start_balance"`
	HasStartBalance bool             `json:"has_start_balance"`
	LastSnapshot    *AccountSnapshot `json:"last_snapshot,omitempty"`
	LastUpdateTime  time.Time        `json:"last_update_time"`
}

// Credentials 本地保存的连接信息，从不包含 secret
type Credentials struct {
	LastExchange string `json:"last_exchange,omitempty"`
	APIKey       string `json:"api_key,omitempty"`
}
