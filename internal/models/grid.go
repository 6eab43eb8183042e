package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Direction 网格方向：做多网格只挂买单，做空网格只挂卖单
type Direction string

const (
	DirectionLong  Direction = "Long"
	DirectionShort Direction = "Short"
)

// ParseDirection 解析大小写不敏感的方向字符串
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long":
		return DirectionLong, nil
	case "short":
		return DirectionShort, nil
	}
	return "", fmt.Errorf("%w: unknown direction %q", ErrInvalidParameters, s)
}

// Side 返回该方向下每个网格挂单的交易方向
func (d Direction) Side() Side {
	if d == DirectionShort {
		return Sell
	}
	return Buy
}

// GridParameters 网格创建/预览的输入参数，一次运行开始后不再修改
type GridParameters struct {
	LowerPrice      decimal.Decimal `json:"lower_price" yaml:"lower_price"`
	UpperPrice      decimal.Decimal `json:"upper_price" yaml:"upper_price"`
	GridCount       int             `json:"grid_count" yaml:"grid_count"`
	TotalInvestment decimal.Decimal `json:"total_investment" yaml:"total_investment"`
	Leverage        int             `json:"leverage" yaml:"leverage"`
	Direction       Direction       `json:"direction" yaml:"direction"`
}

// LevelStatus 网格档位的状态
type LevelStatus string

const (
	LevelPending LevelStatus = "PENDING" // 已计算，尚未提交
	LevelOpen    LevelStatus = "OPEN"    // 挂单成功
	LevelFailed  LevelStatus = "FAILED"  // 挂单失败
)

// GridLevel 代表网格中的一个价格档位
type GridLevel struct {
	Index         int             `json:"index"`
	Price         decimal.Decimal `json:"price"`
	Size          decimal.Decimal `json:"size"`
	Side          Side            `json:"side"`
	EstimatedFee  decimal.Decimal `json:"estimated_fee"`
	OrderID       string          `json:"order_id,omitempty"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	Status        LevelStatus     `json:"status"`
	Error         string          `json:"error,omitempty"`
}

// Notional 档位的名义价值
func (l GridLevel) Notional() decimal.Decimal {
	return l.Price.Mul(l.Size)
}
